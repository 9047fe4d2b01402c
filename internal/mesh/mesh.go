// Package mesh provides the face landmark types produced by the landmark model
// and the static MediaPipe face mesh connection lists.
package mesh

import "errors"

// Landmark counts following the MediaPipe Face Landmarker convention.
// See: https://developers.google.com/mediapipe/solutions/vision/face_landmarker
const (
	// NumLandmarks is the size of the classic face mesh.
	NumLandmarks = 468
	// NumLandmarksWithIrises is the size of the mesh when iris points are refined.
	NumLandmarksWithIrises = 478
)

// ErrEmptyMesh is returned when a face mesh contains no landmarks.
var ErrEmptyMesh = errors.New("face mesh has no landmarks")

// Landmark is a single normalized 3D point. X and Y are relative to the source
// image width and height, Z is a relative depth with no fixed range.
type Landmark struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Pixel maps the landmark onto an image of the given pixel dimensions.
func (l Landmark) Pixel(width, height int) (float64, float64) {
	return l.X * float64(width), l.Y * float64(height)
}

// FaceMesh is the ordered landmark list for one detected face. Index i refers
// to the same anatomical point on every image.
type FaceMesh []Landmark

// Has reports whether index is a valid landmark index for this mesh.
func (m FaceMesh) Has(index int) bool {
	return index >= 0 && index < len(m)
}

// Clone returns a copy of the mesh so callers never share the backing array.
func (m FaceMesh) Clone() FaceMesh {
	if m == nil {
		return nil
	}
	out := make(FaceMesh, len(m))
	copy(out, m)
	return out
}

// Validate checks that the mesh can be displayed.
func (m FaceMesh) Validate() error {
	if len(m) == 0 {
		return ErrEmptyMesh
	}
	return nil
}

// Connection is an edge between two landmark indices.
type Connection struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// In reports whether both endpoints exist in the mesh. Models of different
// versions disagree on the landmark count, so edges are filtered with this.
func (c Connection) In(m FaceMesh) bool {
	return m.Has(c.Start) && m.Has(c.End)
}
