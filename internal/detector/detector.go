// Package detector wraps the external face landmark model.
package detector

import (
	"context"
	"time"

	"github.com/ayusman/meshstudio/internal/imaging"
	"github.com/ayusman/meshstudio/internal/mesh"
)

// Detector defines the interface for face landmark model implementations.
type Detector interface {
	// Start brings the model up and returns what it reports about itself.
	// Calling Start on a running detector is a no-op returning the same info.
	Start(ctx context.Context) (*ModelInfo, error)

	// Detect runs the model on an image and returns one mesh per detected face.
	// Returns an empty slice if no face is detected.
	Detect(ctx context.Context, img imaging.Image) ([]mesh.FaceMesh, error)

	// Close releases any resources held by the detector.
	Close() error
}

// ModelInfo is reported by a model when it starts.
type ModelInfo struct {
	// Name identifies the model implementation.
	Name string `json:"name"`

	// NumLandmarks is the mesh length the model produces.
	NumLandmarks int `json:"num_landmarks"`

	// Tessellation is the model's own edge list. May be empty.
	Tessellation []mesh.Connection `json:"-"`
}

// Config holds configuration options for face landmark detection.
type Config struct {
	// MaxFaces is the maximum number of faces to detect (default: 1).
	MaxFaces int

	// MinConfidence is the minimum detection confidence threshold (0.0-1.0).
	MinConfidence float64

	// Script overrides the path of the MediaPipe service script.
	Script string

	// Python overrides the interpreter used to run the script.
	Python string

	// URL is the base URL of an HTTP landmark server.
	URL string

	// IdleTimeout shuts a subprocess model down after this much inactivity.
	IdleTimeout time.Duration

	// RequestTimeout bounds a single HTTP request to a landmark server.
	RequestTimeout time.Duration
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		MaxFaces:       1,
		MinConfidence:  0.5,
		IdleTimeout:    30 * time.Second,
		RequestTimeout: 30 * time.Second,
	}
}

// jsonFace is the face shape shared by the subprocess and HTTP protocols.
type jsonFace struct {
	Points []mesh.Landmark `json:"points"`
}

// jsonInfo is the handshake shape shared by the subprocess and HTTP protocols.
type jsonInfo struct {
	Ready        bool     `json:"ready"`
	Error        string   `json:"error,omitempty"`
	Name         string   `json:"name"`
	NumLandmarks int      `json:"num_landmarks"`
	Tessellation [][2]int `json:"tessellation"`
}

func (j jsonInfo) toModelInfo(fallbackName string) *ModelInfo {
	info := &ModelInfo{
		Name:         j.Name,
		NumLandmarks: j.NumLandmarks,
		Tessellation: make([]mesh.Connection, 0, len(j.Tessellation)),
	}
	if info.Name == "" {
		info.Name = fallbackName
	}
	if info.NumLandmarks == 0 {
		info.NumLandmarks = mesh.NumLandmarks
	}
	for _, e := range j.Tessellation {
		info.Tessellation = append(info.Tessellation, mesh.Connection{Start: e[0], End: e[1]})
	}
	return info
}

// jsonReply is the detection reply shared by the subprocess and HTTP protocols.
type jsonReply struct {
	Faces []jsonFace `json:"faces"`
	Error string     `json:"error,omitempty"`
}

func (r jsonReply) toMeshes() []mesh.FaceMesh {
	out := make([]mesh.FaceMesh, 0, len(r.Faces))
	for _, f := range r.Faces {
		if len(f.Points) == 0 {
			continue
		}
		out = append(out, mesh.FaceMesh(f.Points).Clone())
	}
	return out
}
