// Package overlay turns a face mesh and a selection into drawable points and
// edges, rendered either as interactive SVG or as an annotated PNG.
package overlay

import (
	"math"

	"github.com/ayusman/meshstudio/internal/mesh"
)

// Point styling.
const (
	SelectedFill      = "#10b981"
	SelectedStroke    = "#065f46"
	UnselectedFill    = "#ffffff"
	UnselectedStroke  = "none"
	SelectedOpacity   = 1.0
	UnselectedOpacity = 0.75
	EdgeStroke        = "rgba(255,255,255,0.2)"
	EdgeWidth         = 0.5

	// SelectedScale enlarges selected points relative to the base radius.
	SelectedScale = 1.5
	minRadius     = 2.0
)

// Selection is the read side of a selection set.
type Selection interface {
	Has(index int) bool
}

// Point is one drawable landmark.
type Point struct {
	Index    int     `json:"index"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Radius   float64 `json:"r"`
	Selected bool    `json:"selected"`
}

// Fill returns the point's fill color.
func (p Point) Fill() string {
	if p.Selected {
		return SelectedFill
	}
	return UnselectedFill
}

// Stroke returns the point's stroke color.
func (p Point) Stroke() string {
	if p.Selected {
		return SelectedStroke
	}
	return UnselectedStroke
}

// Opacity returns the point's opacity.
func (p Point) Opacity() float64 {
	if p.Selected {
		return SelectedOpacity
	}
	return UnselectedOpacity
}

// Edge is one drawable connection in pixel coordinates.
type Edge struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Layer is everything drawn over one image.
type Layer struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Radius float64 `json:"radius"`
	Edges  []Edge  `json:"edges"`
	Points []Point `json:"points"`
}

// Radius returns the base point radius for an image width.
func Radius(width int) float64 {
	return math.Max(float64(width)/300, minRadius)
}

// Build lays out the mesh over a width x height image. Edges whose endpoints
// fall outside the mesh are skipped. Points are in mesh order, so later
// points are drawn on top.
func Build(m mesh.FaceMesh, width, height int, sel Selection, edges []mesh.Connection) *Layer {
	r := Radius(width)
	layer := &Layer{
		Width:  width,
		Height: height,
		Radius: r,
		Edges:  make([]Edge, 0, len(edges)),
		Points: make([]Point, 0, len(m)),
	}

	for _, c := range edges {
		if !c.In(m) {
			continue
		}
		x1, y1 := m[c.Start].Pixel(width, height)
		x2, y2 := m[c.End].Pixel(width, height)
		layer.Edges = append(layer.Edges, Edge{X1: x1, Y1: y1, X2: x2, Y2: y2})
	}

	for i, l := range m {
		x, y := l.Pixel(width, height)
		selected := sel != nil && sel.Has(i)
		pr := r
		if selected {
			pr = r * SelectedScale
		}
		layer.Points = append(layer.Points, Point{
			Index:    i,
			X:        x,
			Y:        y,
			Radius:   pr,
			Selected: selected,
		})
	}

	return layer
}

// HitTest returns the index of the topmost point under (x, y), in pixels.
func (l *Layer) HitTest(x, y float64) (int, bool) {
	for i := len(l.Points) - 1; i >= 0; i-- {
		p := l.Points[i]
		if math.Hypot(p.X-x, p.Y-y) <= p.Radius {
			return p.Index, true
		}
	}
	return 0, false
}
