package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ayusman/meshstudio/internal/store"
	"github.com/ayusman/meshstudio/internal/studio"
)

// PresetHandler handles HTTP requests for saved selections.
type PresetHandler struct {
	store    *store.Store
	studio   *studio.Studio
	log      logrus.FieldLogger
	validate *validator.Validate
}

// NewPresetHandler creates a new PresetHandler.
func NewPresetHandler(s *store.Store, st *studio.Studio, log logrus.FieldLogger) *PresetHandler {
	return &PresetHandler{
		store:    s,
		studio:   st,
		log:      log.WithField("component", "api"),
		validate: newValidator(),
	}
}

type createPresetRequest struct {
	Name      string `json:"name" validate:"required,max=100"`
	Indices   []int  `json:"indices" validate:"required_without=SessionID,dive,min=0"`
	SessionID string `json:"session_id"`
}

type presetResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Indices   []int  `json:"indices"`
	MeshSize  int    `json:"mesh_size"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type listPresetsResponse struct {
	Presets []presetResponse `json:"presets"`
}

// toPresetResponse converts a store.Preset to a presetResponse.
func toPresetResponse(p *store.Preset) presetResponse {
	return presetResponse{
		ID:        p.ID,
		Name:      p.Name,
		Indices:   p.Indices,
		MeshSize:  p.MeshSize,
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
		UpdatedAt: p.UpdatedAt.Format(time.RFC3339),
	}
}

// List handles GET /api/presets.
func (h *PresetHandler) List(w http.ResponseWriter, r *http.Request) {
	presets, err := h.store.Presets().List()
	if err != nil {
		h.log.WithError(err).Error("failed to list presets")
		writeError(w, http.StatusInternalServerError, "Failed to list presets")
		return
	}

	response := listPresetsResponse{Presets: make([]presetResponse, 0, len(presets))}
	for _, p := range presets {
		response.Presets = append(response.Presets, toPresetResponse(p))
	}
	writeJSON(w, http.StatusOK, response)
}

// Create handles POST /api/presets. The indices come from the body, or from
// the current selection of session_id.
func (h *PresetHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createPresetRequest
	if err := decodeAndValidate(h.validate, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if store.NormalizeName(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name must not be blank")
		return
	}

	preset := &store.Preset{
		ID:      uuid.New().String(),
		Name:    req.Name,
		Indices: req.Indices,
	}

	if req.SessionID != "" {
		sess, err := h.studio.Get(req.SessionID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		preset.Indices = sess.Selected()
		preset.MeshSize = sess.State().Landmarks
	}

	if err := h.store.Presets().Create(preset); err != nil {
		if errors.Is(err, store.ErrDuplicateName) {
			writeError(w, http.StatusConflict, "Preset with this name already exists")
			return
		}
		h.log.WithError(err).Error("failed to create preset")
		writeError(w, http.StatusInternalServerError, "Failed to create preset")
		return
	}

	writeJSON(w, http.StatusCreated, toPresetResponse(preset))
}

// Get handles GET /api/presets/{id}.
func (h *PresetHandler) Get(w http.ResponseWriter, r *http.Request) {
	preset, err := h.store.Presets().GetByID(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Preset not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get preset")
		return
	}

	writeJSON(w, http.StatusOK, toPresetResponse(preset))
}

// Delete handles DELETE /api/presets/{id}.
func (h *PresetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Presets().Delete(chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Preset not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete preset")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Apply handles POST /api/sessions/{id}/presets/{presetID} and replaces the
// session's selection with the preset's indices.
func (h *PresetHandler) Apply(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(h.studio, w, r)
	if sess == nil {
		return
	}

	preset, err := h.store.Presets().GetByID(chi.URLParam(r, "presetID"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Preset not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get preset")
		return
	}

	if err := sess.Replace(preset.Indices); err != nil {
		writeDomainError(w, err)
		return
	}

	indices := sess.Selected()
	writeJSON(w, http.StatusOK, selectionResponse{Indices: indices, Count: len(indices)})
}
