package detector

import (
	"context"
	"math"
	"sync"

	"github.com/ayusman/meshstudio/internal/imaging"
	"github.com/ayusman/meshstudio/internal/mesh"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu       sync.Mutex
	faces    []mesh.FaceMesh
	err      error
	startErr []error
	info     ModelInfo
	calls    int
	starts   int
}

// NewMockDetector creates a new MockDetector that reports one synthetic face.
func NewMockDetector() *MockDetector {
	return &MockDetector{
		faces: []mesh.FaceMesh{SyntheticFace(mesh.NumLandmarks)},
		info: ModelInfo{
			Name:         "mock",
			NumLandmarks: mesh.NumLandmarks,
		},
	}
}

// SetFaces sets the faces that will be returned by Detect.
func (m *MockDetector) SetFaces(faces []mesh.FaceMesh) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faces = faces
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetStartErrors queues errors returned by successive Start calls.
// Once the queue is drained Start succeeds.
func (m *MockDetector) SetStartErrors(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startErr = errs
}

// SetTessellation sets the edge list reported by Start.
func (m *MockDetector) SetTessellation(edges []mesh.Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.info.Tessellation = edges
}

// Start returns the mock's model info, or the next queued start error.
func (m *MockDetector) Start(ctx context.Context) (*ModelInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.starts++
	if len(m.startErr) > 0 {
		err := m.startErr[0]
		m.startErr = m.startErr[1:]
		return nil, err
	}
	info := m.info
	return &info, nil
}

// Detect returns the pre-configured faces or error.
func (m *MockDetector) Detect(ctx context.Context, img imaging.Image) ([]mesh.FaceMesh, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	out := make([]mesh.FaceMesh, len(m.faces))
	for i, f := range m.faces {
		out[i] = f.Clone()
	}
	return out, nil
}

// Calls returns how many times Detect was called.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Starts returns how many times Start was called.
func (m *MockDetector) Starts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// SyntheticFace returns a deterministic mesh of n points laid out on a
// sunflower spiral inside an oval, roughly where a centered face would sit.
func SyntheticFace(n int) mesh.FaceMesh {
	golden := math.Pi * (3 - math.Sqrt(5))
	face := make(mesh.FaceMesh, n)
	for i := range face {
		r := math.Sqrt(float64(i)+0.5) / math.Sqrt(float64(n))
		theta := float64(i) * golden
		face[i] = mesh.Landmark{
			X: 0.5 + 0.3*r*math.Cos(theta),
			Y: 0.5 + 0.4*r*math.Sin(theta),
			Z: -0.05 * (1 - r),
		}
	}
	return face
}
