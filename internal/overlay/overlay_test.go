package overlay

import (
	"bytes"
	"strings"
	"testing"

	"gocv.io/x/gocv"

	"github.com/ayusman/meshstudio/internal/imaging"
	"github.com/ayusman/meshstudio/internal/mesh"
)

type fakeSelection map[int]bool

func (f fakeSelection) Has(i int) bool { return f[i] }

func squareMesh() mesh.FaceMesh {
	return mesh.FaceMesh{
		{X: 0.25, Y: 0.25},
		{X: 0.75, Y: 0.25},
		{X: 0.75, Y: 0.75},
		{X: 0.25, Y: 0.75},
	}
}

func TestRadius(t *testing.T) {
	cases := []struct {
		width int
		want  float64
	}{
		{300, 2},
		{600, 2},
		{900, 3},
		{1500, 5},
		{0, 2},
	}
	for _, tc := range cases {
		if got := Radius(tc.width); got != tc.want {
			t.Errorf("Radius(%d) = %v, want %v", tc.width, got, tc.want)
		}
	}
}

func TestBuild(t *testing.T) {
	edges := []mesh.Connection{{Start: 0, End: 1}, {Start: 2, End: 500}}
	layer := Build(squareMesh(), 1200, 800, fakeSelection{2: true}, edges)

	t.Run("points in mesh order", func(t *testing.T) {
		if len(layer.Points) != 4 {
			t.Fatalf("expected 4 points, got %d", len(layer.Points))
		}
		for i, p := range layer.Points {
			if p.Index != i {
				t.Errorf("expected point %d to have index %d, got %d", i, i, p.Index)
			}
		}
		p := layer.Points[1]
		if p.X != 900 || p.Y != 200 {
			t.Errorf("expected (900,200), got (%v,%v)", p.X, p.Y)
		}
	})

	t.Run("selected points are larger and green", func(t *testing.T) {
		sel := layer.Points[2]
		unsel := layer.Points[0]
		if !sel.Selected || unsel.Selected {
			t.Fatal("unexpected selection flags")
		}
		if sel.Radius != 4*SelectedScale {
			t.Errorf("expected selected radius %v, got %v", 4*SelectedScale, sel.Radius)
		}
		if unsel.Radius != 4 {
			t.Errorf("expected unselected radius 4, got %v", unsel.Radius)
		}
		if sel.Fill() != SelectedFill || sel.Stroke() != SelectedStroke || sel.Opacity() != 1 {
			t.Errorf("unexpected selected style %s %s %v", sel.Fill(), sel.Stroke(), sel.Opacity())
		}
		if unsel.Fill() != UnselectedFill || unsel.Opacity() != 0.75 {
			t.Errorf("unexpected unselected style %s %v", unsel.Fill(), unsel.Opacity())
		}
	})

	t.Run("edges outside the mesh are skipped", func(t *testing.T) {
		if len(layer.Edges) != 1 {
			t.Fatalf("expected 1 edge, got %d", len(layer.Edges))
		}
		e := layer.Edges[0]
		if e.X1 != 300 || e.X2 != 900 || e.Y1 != 200 || e.Y2 != 200 {
			t.Errorf("unexpected edge %+v", e)
		}
	})

	t.Run("nil selection", func(t *testing.T) {
		l := Build(squareMesh(), 100, 100, nil, nil)
		for _, p := range l.Points {
			if p.Selected {
				t.Errorf("expected point %d unselected", p.Index)
			}
		}
	})
}

func TestLayer_HitTest(t *testing.T) {
	m := mesh.FaceMesh{
		{X: 0.5, Y: 0.5},
		{X: 0.501, Y: 0.5},
		{X: 0.9, Y: 0.9},
	}
	layer := Build(m, 1000, 1000, nil, nil)

	t.Run("topmost point wins", func(t *testing.T) {
		idx, ok := layer.HitTest(500.5, 500)
		if !ok {
			t.Fatal("expected a hit")
		}
		if idx != 1 {
			t.Errorf("expected index 1, got %d", idx)
		}
	})

	t.Run("miss", func(t *testing.T) {
		if _, ok := layer.HitTest(100, 100); ok {
			t.Error("expected no hit")
		}
	})

	t.Run("inside radius counts", func(t *testing.T) {
		idx, ok := layer.HitTest(900+layer.Radius-0.01, 900)
		if !ok || idx != 2 {
			t.Errorf("expected hit on 2, got %d %v", idx, ok)
		}
	})
}

func TestWriteSVG(t *testing.T) {
	layer := Build(squareMesh(), 600, 400, fakeSelection{3: true}, []mesh.Connection{{Start: 0, End: 1}})

	var buf bytes.Buffer
	if err := WriteSVG(&buf, layer); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	svg := buf.String()

	for _, want := range []string{
		`width="600" height="400"`,
		`data-index="3"`,
		`<title>Index: 3</title>`,
		`class="point selected"`,
		`fill="#10b981"`,
		`stroke="#065f46"`,
		`opacity="0.75"`,
		`stroke="rgba(255,255,255,0.2)"`,
		`<line x1="150.00" y1="100.00" x2="450.00" y2="100.00"/>`,
	} {
		if !strings.Contains(svg, want) {
			t.Errorf("expected SVG to contain %q", want)
		}
	}

	if strings.Count(svg, "<circle") != 4 {
		t.Errorf("expected 4 circles, got %d", strings.Count(svg, "<circle"))
	}
	if strings.Index(svg, "<line") > strings.Index(svg, "<circle") {
		t.Error("expected edges to be drawn under points")
	}
}

func TestRenderPNG(t *testing.T) {
	mat := gocv.NewMatWithSize(80, 120, gocv.MatTypeCV8UC3)
	defer mat.Close()
	photo, err := imaging.EncodeJPEG(mat)
	if err != nil {
		t.Fatalf("failed to encode photo: %v", err)
	}

	layer := Build(squareMesh(), 120, 80, fakeSelection{0: true}, mesh.ContourConnections())
	data, err := RenderPNG(photo, layer)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	img, err := imaging.Decode(data)
	if err != nil {
		t.Fatalf("rendered overlay did not decode: %v", err)
	}
	if img.Format != imaging.FormatPNG {
		t.Errorf("expected png, got %s", img.Format)
	}
	if img.Width != 120 || img.Height != 80 {
		t.Errorf("expected 120x80, got %dx%d", img.Width, img.Height)
	}

	if _, err := RenderPNG([]byte("nope"), layer); err == nil {
		t.Error("expected error for undecodable photo")
	}
}
