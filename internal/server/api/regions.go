package api

import (
	"net/http"

	"github.com/ayusman/meshstudio/internal/mesh"
	"github.com/ayusman/meshstudio/internal/studio"
)

// RegionHandler serves the static face mesh topology.
type RegionHandler struct {
	studio *studio.Studio
}

// NewRegionHandler creates a new RegionHandler.
func NewRegionHandler(st *studio.Studio) *RegionHandler {
	return &RegionHandler{studio: st}
}

type regionResponse struct {
	Name    string `json:"name"`
	Total   int    `json:"total"`
	Indices []int  `json:"indices"`
}

type regionsResponse struct {
	Regions []regionResponse `json:"regions"`
}

type connectionsResponse struct {
	Tessellation []mesh.Connection            `json:"tessellation"`
	Regions      map[string][]mesh.Connection `json:"regions"`
}

// Regions handles GET /api/regions.
func (h *RegionHandler) Regions(w http.ResponseWriter, r *http.Request) {
	regions := h.studio.Regions()
	response := regionsResponse{Regions: make([]regionResponse, 0, len(regions))}
	for _, region := range regions {
		response.Regions = append(response.Regions, regionResponse{
			Name:    region.Name(),
			Total:   region.Total(),
			Indices: region.Indices(),
		})
	}
	writeJSON(w, http.StatusOK, response)
}

// Connections handles GET /api/connections.
func (h *RegionHandler) Connections(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, connectionsResponse{
		Tessellation: h.studio.Client().Connections(),
		Regions: map[string][]mesh.Connection{
			"lips":          mesh.Lips(),
			"left_eye":      mesh.LeftEye(),
			"left_eyebrow":  mesh.LeftEyebrow(),
			"left_iris":     mesh.LeftIris(),
			"right_eye":     mesh.RightEye(),
			"right_eyebrow": mesh.RightEyebrow(),
			"right_iris":    mesh.RightIris(),
			"face_oval":     mesh.FaceOval(),
		},
	})
}
