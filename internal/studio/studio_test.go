package studio

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/meshstudio/internal/detector"
	"github.com/ayusman/meshstudio/internal/imaging"
	"github.com/ayusman/meshstudio/internal/mesh"
	"github.com/ayusman/meshstudio/internal/selection"
	"github.com/ayusman/meshstudio/internal/topology"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// fakeDecode accepts anything except "bad" as a 100x100 JPEG.
func fakeDecode(data []byte) (imaging.Image, error) {
	if string(data) == "bad" {
		return imaging.Image{}, imaging.ErrUnsupportedFormat
	}
	if string(data) == "empty" {
		return imaging.Image{Data: data, Format: imaging.FormatJPEG}, nil
	}
	return imaging.Image{Data: data, Format: imaging.FormatJPEG, Width: 100, Height: 100}, nil
}

func newTestStudio(t *testing.T, d detector.Detector) *Studio {
	t.Helper()
	log := quietLogger()
	return New(Config{
		Client: detector.NewClient(d, log),
		Log:    log,
		Decode: fakeDecode,
	})
}

func TestStudio_Sessions(t *testing.T) {
	st := newTestStudio(t, detector.NewMockDetector())

	a := st.Create()
	b := st.Create()
	if a.ID() == b.ID() {
		t.Fatal("expected unique session ids")
	}

	got, err := st.Get(a.ID())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != a {
		t.Error("expected Get to return the created session")
	}

	if len(st.List()) != 2 {
		t.Errorf("expected 2 sessions, got %d", len(st.List()))
	}

	if err := st.Delete(a.ID()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := st.Get(a.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	if err := st.Delete(a.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound on second delete, got %v", err)
	}
}

func TestStudio_Prune(t *testing.T) {
	st := newTestStudio(t, detector.NewMockDetector())
	sess := st.Create()

	if n := st.Prune(time.Hour); n != 0 {
		t.Errorf("expected nothing pruned, got %d", n)
	}

	sess.active.Store(time.Now().Add(-2 * time.Hour).UnixNano())
	if n := st.Prune(time.Hour); n != 1 {
		t.Errorf("expected 1 pruned, got %d", n)
	}
	if _, err := st.Get(sess.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected pruned session to be gone, got %v", err)
	}
}

func TestSession_Upload(t *testing.T) {
	t.Run("stores first face", func(t *testing.T) {
		mock := detector.NewMockDetector()
		mock.SetFaces([]mesh.FaceMesh{
			detector.SyntheticFace(mesh.NumLandmarksWithIrises),
			detector.SyntheticFace(10),
		})
		sess := newTestStudio(t, mock).Create()

		res, err := sess.Upload(context.Background(), []byte("photo"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Faces != 2 {
			t.Errorf("expected 2 faces, got %d", res.Faces)
		}
		if res.Landmarks != mesh.NumLandmarksWithIrises {
			t.Errorf("expected %d landmarks, got %d", mesh.NumLandmarksWithIrises, res.Landmarks)
		}
		if res.Notice != "" {
			t.Errorf("expected no notice, got %q", res.Notice)
		}

		state := sess.State()
		if state.Processing {
			t.Error("expected processing to be false")
		}
		if state.Width != 100 || state.Height != 100 {
			t.Errorf("expected 100x100, got %dx%d", state.Width, state.Height)
		}
	})

	t.Run("new upload resets selection", func(t *testing.T) {
		sess := newTestStudio(t, detector.NewMockDetector()).Create()

		sess.Upload(context.Background(), []byte("first"))
		sess.Toggle(1)
		sess.Toggle(2)
		if len(sess.Selected()) != 2 {
			t.Fatalf("expected 2 selected, got %d", len(sess.Selected()))
		}

		if _, err := sess.Upload(context.Background(), []byte("second")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(sess.Selected()) != 0 {
			t.Errorf("expected selection cleared, got %v", sess.Selected())
		}
		if sess.Analysis().Selected != 0 {
			t.Errorf("expected analysis reset, got %+v", sess.Analysis())
		}
	})

	t.Run("no face", func(t *testing.T) {
		mock := detector.NewMockDetector()
		sess := newTestStudio(t, mock).Create()
		sess.Upload(context.Background(), []byte("face"))

		mock.SetFaces(nil)
		res, err := sess.Upload(context.Background(), []byte("wall"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Notice != NoFaceNotice {
			t.Errorf("expected notice %q, got %q", NoFaceNotice, res.Notice)
		}
		if res.Landmarks != 0 {
			t.Errorf("expected empty mesh, got %d", res.Landmarks)
		}
		if _, err := sess.Toggle(0); !errors.Is(err, selection.ErrOutOfRange) {
			t.Errorf("expected toggle rejected without a mesh, got %v", err)
		}
		if _, err := sess.Overlay(); !errors.Is(err, ErrNoMesh) {
			t.Errorf("expected ErrNoMesh, got %v", err)
		}
	})

	t.Run("undecodable image", func(t *testing.T) {
		mock := detector.NewMockDetector()
		sess := newTestStudio(t, mock).Create()

		_, err := sess.Upload(context.Background(), []byte("bad"))
		if !errors.Is(err, detector.ErrInvalidImage) {
			t.Errorf("expected ErrInvalidImage, got %v", err)
		}
		if mock.Calls() != 0 {
			t.Errorf("expected no model calls, got %d", mock.Calls())
		}
		if sess.State().Processing {
			t.Error("expected processing cleared after failure")
		}
	})

	t.Run("zero dimensions never reach the model", func(t *testing.T) {
		mock := detector.NewMockDetector()
		sess := newTestStudio(t, mock).Create()

		_, err := sess.Upload(context.Background(), []byte("empty"))
		if !errors.Is(err, detector.ErrInvalidImage) {
			t.Errorf("expected ErrInvalidImage, got %v", err)
		}
		if mock.Calls() != 0 {
			t.Errorf("expected no model calls, got %d", mock.Calls())
		}
	})

	t.Run("detection failure", func(t *testing.T) {
		mock := detector.NewMockDetector()
		mock.SetError(errors.New("boom"))
		sess := newTestStudio(t, mock).Create()

		_, err := sess.Upload(context.Background(), []byte("photo"))
		if !errors.Is(err, detector.ErrDetectionFailed) {
			t.Errorf("expected ErrDetectionFailed, got %v", err)
		}
		if sess.State().Landmarks != 0 {
			t.Error("expected no partial mesh after failure")
		}
	})

	t.Run("reports detections", func(t *testing.T) {
		var got []Detection
		log := quietLogger()
		st := New(Config{
			Client:      detector.NewClient(detector.NewMockDetector(), log),
			Log:         log,
			Decode:      fakeDecode,
			OnDetection: func(d Detection) { got = append(got, d) },
		})
		sess := st.Create()
		sess.Upload(context.Background(), []byte("photo"))

		if len(got) != 1 {
			t.Fatalf("expected 1 detection, got %d", len(got))
		}
		if got[0].SessionID != sess.ID() || got[0].Landmarks != mesh.NumLandmarks {
			t.Errorf("unexpected detection %+v", got[0])
		}
	})
}

// gatedDetector blocks its first Detect call until released.
type gatedDetector struct {
	*detector.MockDetector
	once    sync.Once
	entered chan struct{}
	release chan struct{}
	first   []mesh.FaceMesh
}

func (g *gatedDetector) Detect(ctx context.Context, img imaging.Image) ([]mesh.FaceMesh, error) {
	gated := false
	g.once.Do(func() { gated = true })
	if gated {
		close(g.entered)
		<-g.release
		return g.first, nil
	}
	return g.MockDetector.Detect(ctx, img)
}

func TestSession_Upload_DiscardsStaleResult(t *testing.T) {
	mock := detector.NewMockDetector()
	mock.SetFaces([]mesh.FaceMesh{detector.SyntheticFace(20)})
	gated := &gatedDetector{
		MockDetector: mock,
		entered:      make(chan struct{}),
		release:      make(chan struct{}),
		first:        []mesh.FaceMesh{detector.SyntheticFace(10)},
	}
	sess := newTestStudio(t, gated).Create()

	var staleErr error
	done := make(chan struct{})
	go func() {
		_, staleErr = sess.Upload(context.Background(), []byte("slow"))
		close(done)
	}()

	<-gated.entered
	if !sess.State().Processing {
		t.Error("expected session to be processing")
	}

	res, err := sess.Upload(context.Background(), []byte("fast"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Landmarks != 20 {
		t.Fatalf("expected 20 landmarks, got %d", res.Landmarks)
	}

	sess.Toggle(15)
	close(gated.release)
	<-done

	if !errors.Is(staleErr, ErrSuperseded) {
		t.Errorf("expected ErrSuperseded, got %v", staleErr)
	}

	state := sess.State()
	if state.Landmarks != 20 {
		t.Errorf("expected newer mesh of 20 to survive, got %d", state.Landmarks)
	}
	if len(state.Selected) != 1 || state.Selected[0] != 15 {
		t.Errorf("expected selection [15] to survive, got %v", state.Selected)
	}
	if state.Processing {
		t.Error("expected processing to be false")
	}
}

func TestSession_Selection(t *testing.T) {
	sess := newTestStudio(t, detector.NewMockDetector()).Create()
	sess.Upload(context.Background(), []byte("photo"))

	t.Run("double toggle restores state", func(t *testing.T) {
		before := sess.Selected()
		sess.Toggle(33)
		sess.Toggle(33)
		after := sess.Selected()
		if len(before) != len(after) {
			t.Errorf("expected %v, got %v", before, after)
		}
	})

	t.Run("out of range", func(t *testing.T) {
		if _, err := sess.Toggle(mesh.NumLandmarks); !errors.Is(err, selection.ErrOutOfRange) {
			t.Errorf("expected ErrOutOfRange, got %v", err)
		}
	})

	t.Run("left eye analysis", func(t *testing.T) {
		if err := sess.Replace(mesh.Indices(mesh.LeftEye())); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		analysis := sess.Analysis()
		if len(analysis.Matches) == 0 {
			t.Fatal("expected matches")
		}
		top := analysis.Matches[0]
		if top.Name != topology.RegionLeftEye || top.Percentage != 100 {
			t.Errorf("expected Left Eye at 100%%, got %+v", top)
		}
	})

	t.Run("select all and clear", func(t *testing.T) {
		if n := sess.SelectAll(); n != mesh.NumLandmarks {
			t.Errorf("expected %d selected, got %d", mesh.NumLandmarks, n)
		}
		sess.Clear()
		if len(sess.Selected()) != 0 {
			t.Errorf("expected empty selection, got %d", len(sess.Selected()))
		}
		analysis := sess.Analysis()
		if len(analysis.Matches) != 0 || analysis.Uncategorized != 0 {
			t.Errorf("expected empty analysis, got %+v", analysis)
		}
	})

	t.Run("export", func(t *testing.T) {
		sess.Replace([]int{133, 7, 33})
		data, err := sess.Export()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(data) != "[7,33,133]" {
			t.Errorf("expected [7,33,133], got %s", data)
		}
	})
}

func TestSession_ConcurrentTogglesKeepAnalysisCurrent(t *testing.T) {
	sess := newTestStudio(t, detector.NewMockDetector()).Create()
	if _, err := sess.Upload(context.Background(), []byte("photo")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for round := 0; round < 20; round++ {
		sess.Clear()

		var wg sync.WaitGroup
		for i := 0; i < 64; i++ {
			wg.Add(1)
			go func(index int) {
				defer wg.Done()
				sess.Toggle(index)
			}(round + i*7)
		}
		wg.Wait()

		selected := sess.Selected()
		if len(selected) != 64 {
			t.Fatalf("round %d: expected 64 selected, got %d", round, len(selected))
		}
		if got := sess.Analysis().Selected; got != len(selected) {
			t.Fatalf("round %d: expected analysis of %d landmarks, got %d", round, len(selected), got)
		}
		state := sess.State()
		if state.Analysis.Selected != len(state.Selected) {
			t.Fatalf("round %d: state analysis covers %d, selection has %d", round, state.Analysis.Selected, len(state.Selected))
		}
	}
}

func TestSession_Overlay(t *testing.T) {
	sess := newTestStudio(t, detector.NewMockDetector()).Create()

	if _, err := sess.Overlay(); !errors.Is(err, ErrNoMesh) {
		t.Errorf("expected ErrNoMesh before upload, got %v", err)
	}

	sess.Upload(context.Background(), []byte("photo"))
	sess.Toggle(5)

	layer, err := sess.Overlay()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(layer.Points) != mesh.NumLandmarks {
		t.Errorf("expected %d points, got %d", mesh.NumLandmarks, len(layer.Points))
	}

	m, w, h := sess.Mesh()
	for i, p := range layer.Points {
		if p.X != m[i].X*float64(w) || p.Y != m[i].Y*float64(h) {
			t.Fatalf("point %d not at landmark position", i)
		}
	}
	if !layer.Points[5].Selected {
		t.Error("expected point 5 selected")
	}
}

func TestSession_Click(t *testing.T) {
	sess := newTestStudio(t, detector.NewMockDetector()).Create()
	sess.Upload(context.Background(), []byte("photo"))

	m, w, h := sess.Mesh()
	x, y := m[200].Pixel(w, h)

	index, selected, err := sess.Click(x, y)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !selected {
		t.Error("expected click to select")
	}
	layer, _ := sess.Overlay()
	if hit, _ := layer.HitTest(x, y); hit != index {
		t.Errorf("expected index %d, got %d", hit, index)
	}

	if _, _, err := sess.Click(-50, -50); !errors.Is(err, ErrNoHit) {
		t.Errorf("expected ErrNoHit, got %v", err)
	}
}

func TestSession_Subscribe(t *testing.T) {
	sess := newTestStudio(t, detector.NewMockDetector()).Create()
	events, cancel := sess.Subscribe()
	defer cancel()

	sess.Upload(context.Background(), []byte("photo"))
	sess.Toggle(3)

	var types []string
	timeout := time.After(time.Second)
	for len(types) < 5 {
		select {
		case ev := <-events:
			types = append(types, ev.Type)
		case <-timeout:
			t.Fatalf("timed out, got %v", types)
		}
	}

	want := []string{EventSelection, EventProcessing, EventSelection, EventMesh, EventSelection}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], types[i])
		}
	}

	cancel()
	if _, ok := <-events; ok {
		t.Error("expected channel closed after cancel")
	}
}
