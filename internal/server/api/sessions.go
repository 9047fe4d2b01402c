package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/ayusman/meshstudio/internal/mesh"
	"github.com/ayusman/meshstudio/internal/overlay"
	"github.com/ayusman/meshstudio/internal/studio"
)

// ExportFilename is the download name of an exported selection.
const ExportFilename = "facemesh_indices.json"

const defaultMaxUpload = 20 << 20

// SessionHandler handles HTTP requests for sessions and their selections.
type SessionHandler struct {
	studio    *studio.Studio
	log       logrus.FieldLogger
	validate  *validator.Validate
	maxUpload int64
}

// NewSessionHandler creates a new SessionHandler. maxUpload bounds the
// request body of an image upload; zero selects 20 MiB.
func NewSessionHandler(st *studio.Studio, log logrus.FieldLogger, maxUpload int64) *SessionHandler {
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}
	return &SessionHandler{
		studio:    st,
		log:       log.WithField("component", "api"),
		validate:  newValidator(),
		maxUpload: maxUpload,
	}
}

// Request and response types

type toggleRequest struct {
	Index *int `json:"index" validate:"required"`
}

type clickRequest struct {
	X *float64 `json:"x" validate:"required"`
	Y *float64 `json:"y" validate:"required"`
}

type replaceRequest struct {
	Indices []int `json:"indices" validate:"required"`
}

type toggleResponse struct {
	Index    int   `json:"index"`
	Selected bool  `json:"selected"`
	Indices  []int `json:"indices"`
}

type selectionResponse struct {
	Indices []int `json:"indices"`
	Count   int   `json:"count"`
}

type landmarksResponse struct {
	Width     int           `json:"width"`
	Height    int           `json:"height"`
	Count     int           `json:"count"`
	Landmarks mesh.FaceMesh `json:"landmarks"`
}

type uploadResponse struct {
	*studio.Result
	State studio.State `json:"state"`
}

type listSessionsResponse struct {
	Sessions []studio.State `json:"sessions"`
}

// List handles GET /api/sessions.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions := h.studio.List()
	response := listSessionsResponse{Sessions: make([]studio.State, 0, len(sessions))}
	for _, sess := range sessions {
		response.Sessions = append(response.Sessions, sess.State())
	}
	writeJSON(w, http.StatusOK, response)
}

// Create handles POST /api/sessions.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	sess := h.studio.Create()
	writeJSON(w, http.StatusCreated, sess.State())
}

// Get handles GET /api/sessions/{id}.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(h.studio, w, r)
	if sess == nil {
		return
	}
	writeJSON(w, http.StatusOK, sess.State())
}

// Delete handles DELETE /api/sessions/{id}.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(h.studio, w, r)
	if sess == nil {
		return
	}
	if err := h.studio.Delete(sess.ID()); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Upload handles POST /api/sessions/{id}/image with a multipart "image" field.
func (h *SessionHandler) Upload(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(h.studio, w, r)
	if sess == nil {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "image too large")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "image file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read image")
		return
	}

	result, err := sess.Upload(r.Context(), data)
	if err != nil {
		status, msg := statusFor(err)
		entry := h.log.WithError(err).WithField("session", sess.ID())
		if status >= http.StatusInternalServerError {
			entry.Error("image processing failed")
		} else {
			entry.Warn("image rejected")
		}
		writeError(w, status, msg)
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{Result: result, State: sess.State()})
}

// Landmarks handles GET /api/sessions/{id}/landmarks.
func (h *SessionHandler) Landmarks(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(h.studio, w, r)
	if sess == nil {
		return
	}

	m, width, height := sess.Mesh()
	if m == nil {
		m = mesh.FaceMesh{}
	}
	writeJSON(w, http.StatusOK, landmarksResponse{
		Width:     width,
		Height:    height,
		Count:     len(m),
		Landmarks: m,
	})
}

// OverlaySVG handles GET /api/sessions/{id}/overlay.svg.
func (h *SessionHandler) OverlaySVG(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(h.studio, w, r)
	if sess == nil {
		return
	}

	layer, err := sess.Overlay()
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "no-store")
	if err := overlay.WriteSVG(w, layer); err != nil {
		h.log.WithError(err).Warn("failed to write overlay")
	}
}

// OverlayPNG handles GET /api/sessions/{id}/overlay.png.
func (h *SessionHandler) OverlayPNG(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(h.studio, w, r)
	if sess == nil {
		return
	}

	data, err := sess.OverlayPNG()
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(data)
}

// Toggle handles POST /api/sessions/{id}/selection/toggle.
func (h *SessionHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(h.studio, w, r)
	if sess == nil {
		return
	}

	var req toggleRequest
	if err := decodeAndValidate(h.validate, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	selected, err := sess.Toggle(*req.Index)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toggleResponse{
		Index:    *req.Index,
		Selected: selected,
		Indices:  sess.Selected(),
	})
}

// Click handles POST /api/sessions/{id}/selection/click with pixel coordinates.
func (h *SessionHandler) Click(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(h.studio, w, r)
	if sess == nil {
		return
	}

	var req clickRequest
	if err := decodeAndValidate(h.validate, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	index, selected, err := sess.Click(*req.X, *req.Y)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toggleResponse{
		Index:    index,
		Selected: selected,
		Indices:  sess.Selected(),
	})
}

// SelectAll handles POST /api/sessions/{id}/selection/all.
func (h *SessionHandler) SelectAll(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(h.studio, w, r)
	if sess == nil {
		return
	}

	n := sess.SelectAll()
	writeJSON(w, http.StatusOK, selectionResponse{Indices: sess.Selected(), Count: n})
}

// Replace handles PUT /api/sessions/{id}/selection.
func (h *SessionHandler) Replace(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(h.studio, w, r)
	if sess == nil {
		return
	}

	var req replaceRequest
	if err := decodeAndValidate(h.validate, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := sess.Replace(req.Indices); err != nil {
		writeDomainError(w, err)
		return
	}

	indices := sess.Selected()
	writeJSON(w, http.StatusOK, selectionResponse{Indices: indices, Count: len(indices)})
}

// Clear handles DELETE /api/sessions/{id}/selection.
func (h *SessionHandler) Clear(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(h.studio, w, r)
	if sess == nil {
		return
	}

	sess.Clear()
	writeJSON(w, http.StatusOK, selectionResponse{Indices: []int{}, Count: 0})
}

// Analysis handles GET /api/sessions/{id}/analysis.
func (h *SessionHandler) Analysis(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(h.studio, w, r)
	if sess == nil {
		return
	}

	writeJSON(w, http.StatusOK, sess.Analysis())
}

// Export handles GET /api/sessions/{id}/export as a file download.
func (h *SessionHandler) Export(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(h.studio, w, r)
	if sess == nil {
		return
	}

	data, err := sess.Export()
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+ExportFilename+`"`)
	w.Write(data)
}

// ExportText handles GET /api/sessions/{id}/export/text, the clipboard payload.
func (h *SessionHandler) ExportText(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(h.studio, w, r)
	if sess == nil {
		return
	}

	data, err := sess.Export()
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write(data)
}
