package studio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/meshstudio/internal/detector"
	"github.com/ayusman/meshstudio/internal/imaging"
	"github.com/ayusman/meshstudio/internal/mesh"
	"github.com/ayusman/meshstudio/internal/overlay"
	"github.com/ayusman/meshstudio/internal/selection"
	"github.com/ayusman/meshstudio/internal/topology"
)

// NoFaceNotice is shown when detection finds no face.
const NoFaceNotice = "No face detected in the image. Please try a clearer photo."

var (
	// ErrSuperseded is returned to an upload whose result arrived after a newer upload started.
	ErrSuperseded = errors.New("upload superseded by a newer image")
	// ErrNoMesh is returned when an operation needs a detected face mesh.
	ErrNoMesh = errors.New("no face mesh available, upload an image first")
	// ErrNoHit is returned when a click lands on no landmark.
	ErrNoHit = errors.New("no landmark at that position")
)

// Result summarizes one applied upload.
type Result struct {
	Generation uint64 `json:"generation"`
	Faces      int    `json:"faces"`
	Landmarks  int    `json:"landmarks"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Notice     string `json:"notice,omitempty"`
}

// State is a snapshot of a session.
type State struct {
	ID         string            `json:"id"`
	Generation uint64            `json:"generation"`
	Processing bool              `json:"processing"`
	Width      int               `json:"width"`
	Height     int               `json:"height"`
	Landmarks  int               `json:"landmarks"`
	Notice     string            `json:"notice,omitempty"`
	Selected   []int             `json:"selected"`
	Analysis   topology.Analysis `json:"analysis"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Session is one photo being annotated.
type Session struct {
	id      string
	created time.Time
	config  Config
	log     logrus.FieldLogger

	gen    atomic.Uint64
	active atomic.Int64

	// mu guards the image and mesh. The selection change hook never takes it.
	mu         sync.RWMutex
	processing bool
	img        imaging.Image
	mesh       mesh.FaceMesh
	notice     string

	sel *selection.Set

	// amu makes reading the selection, analyzing it, storing the result and
	// publishing it one step, so the last stored analysis matches the set.
	amu      sync.Mutex
	analysis topology.Analysis

	smu  sync.Mutex
	subs map[chan Event]struct{}
}

func newSession(id string, config Config, log logrus.FieldLogger) *Session {
	s := &Session{
		id:      id,
		created: time.Now(),
		config:  config,
		log:     log.WithField("session", id),
		sel:     selection.New(0),
		subs:    make(map[chan Event]struct{}),
	}
	s.analysis = topology.Analyze(nil, config.Regions)
	s.touch()
	s.sel.OnChange(s.selectionChanged)
	return s
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

func (s *Session) touch() {
	s.active.Store(time.Now().UnixNano())
}

func (s *Session) lastActive() time.Time {
	return time.Unix(0, s.active.Load())
}

// selectionChanged recomputes the analysis and tells subscribers.
func (s *Session) selectionChanged() {
	s.amu.Lock()
	defer s.amu.Unlock()

	selected := s.sel.Sorted()
	analysis := topology.Analyze(selected, s.config.Regions)
	s.analysis = analysis

	s.publish(Event{
		Type:       EventSelection,
		Generation: s.gen.Load(),
		Selected:   selected,
		Analysis:   &analysis,
	})
}

// Upload decodes data, runs detection and, unless a newer upload started in
// the meantime, replaces the session's mesh with the first detected face.
// The selection is cleared as soon as the upload starts.
func (s *Session) Upload(ctx context.Context, data []byte) (*Result, error) {
	s.touch()
	gen := s.begin()

	img, err := s.config.Decode(data)
	if err != nil {
		s.abort(gen)
		return nil, fmt.Errorf("%w: %w", detector.ErrInvalidImage, err)
	}

	faces, err := s.config.Client.Detect(ctx, img)
	if err != nil {
		s.abort(gen)
		return nil, err
	}

	return s.finish(gen, img, faces)
}

func (s *Session) begin() uint64 {
	s.mu.Lock()
	gen := s.gen.Add(1)
	s.processing = true
	s.img = imaging.Image{}
	s.mesh = nil
	s.notice = ""
	s.sel.Reset(0)
	s.mu.Unlock()

	s.publish(Event{Type: EventProcessing, Generation: gen})
	return gen
}

// abort clears the processing flag if gen is still current.
func (s *Session) abort(gen uint64) {
	s.mu.Lock()
	current := s.gen.Load() == gen
	if current {
		s.processing = false
	}
	s.mu.Unlock()

	if current {
		s.publish(Event{Type: EventFailed, Generation: gen})
	}
}

func (s *Session) finish(gen uint64, img imaging.Image, faces []mesh.FaceMesh) (*Result, error) {
	s.mu.Lock()
	if s.gen.Load() != gen {
		s.mu.Unlock()
		s.log.WithField("generation", gen).Debug("discarding stale detection result")
		return nil, ErrSuperseded
	}

	s.processing = false
	s.img = img
	if len(faces) == 0 {
		s.mesh = nil
		s.notice = NoFaceNotice
	} else {
		s.mesh = faces[0].Clone()
	}
	s.sel.Reset(len(s.mesh))

	result := &Result{
		Generation: gen,
		Faces:      len(faces),
		Landmarks:  len(s.mesh),
		Width:      img.Width,
		Height:     img.Height,
		Notice:     s.notice,
	}
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"generation": gen,
		"faces":      result.Faces,
		"landmarks":  result.Landmarks,
		"width":      img.Width,
		"height":     img.Height,
	}).Info("face mesh updated")

	state := s.State()
	s.publish(Event{Type: EventMesh, Generation: gen, State: &state})

	if s.config.OnDetection != nil {
		s.config.OnDetection(Detection{
			SessionID: s.id,
			Faces:     result.Faces,
			Landmarks: result.Landmarks,
			At:        time.Now(),
		})
	}

	return result, nil
}

// Toggle flips one landmark in or out of the selection.
func (s *Session) Toggle(index int) (bool, error) {
	s.touch()
	return s.sel.Toggle(index)
}

// Click toggles the topmost landmark under pixel (x, y).
func (s *Session) Click(x, y float64) (int, bool, error) {
	s.touch()

	layer, err := s.Overlay()
	if err != nil {
		return 0, false, err
	}

	index, ok := layer.HitTest(x, y)
	if !ok {
		return 0, false, ErrNoHit
	}

	selected, err := s.sel.Toggle(index)
	return index, selected, err
}

// SelectAll selects every landmark of the current mesh.
func (s *Session) SelectAll() int {
	s.touch()
	return s.sel.SelectAll()
}

// Clear empties the selection.
func (s *Session) Clear() {
	s.touch()
	s.sel.Clear()
}

// Replace sets the selection to exactly indices, or leaves it unchanged on error.
func (s *Session) Replace(indices []int) error {
	s.touch()
	return s.sel.Replace(indices)
}

// Selected returns the selection in ascending order.
func (s *Session) Selected() []int {
	return s.sel.Sorted()
}

// Export returns the selection as a sorted JSON array.
func (s *Session) Export() ([]byte, error) {
	return selection.Export(s.sel.Sorted())
}

// Analysis returns the topology analysis of the current selection.
func (s *Session) Analysis() topology.Analysis {
	s.amu.Lock()
	defer s.amu.Unlock()
	return s.analysis
}

// Mesh returns a copy of the current mesh and the image size it maps onto.
func (s *Session) Mesh() (mesh.FaceMesh, int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mesh.Clone(), s.img.Width, s.img.Height
}

// State returns a snapshot of the session.
func (s *Session) State() State {
	s.mu.RLock()
	state := State{
		ID:         s.id,
		Generation: s.gen.Load(),
		Processing: s.processing,
		Width:      s.img.Width,
		Height:     s.img.Height,
		Landmarks:  len(s.mesh),
		Notice:     s.notice,
		CreatedAt:  s.created,
	}
	s.mu.RUnlock()

	state.Selected = s.sel.Sorted()
	state.Analysis = s.Analysis()
	return state
}

// Overlay lays out the current mesh and selection over the image.
func (s *Session) Overlay() (*overlay.Layer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.mesh) == 0 {
		return nil, ErrNoMesh
	}
	return overlay.Build(s.mesh, s.img.Width, s.img.Height, s.sel, s.config.Client.Connections()), nil
}

// OverlayPNG renders the overlay onto the uploaded photo.
func (s *Session) OverlayPNG() ([]byte, error) {
	layer, err := s.Overlay()
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	photo := s.img.Data
	s.mu.RUnlock()

	return overlay.RenderPNG(photo, layer)
}
