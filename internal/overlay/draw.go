package overlay

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/ayusman/meshstudio/internal/imaging"
)

var (
	selectedFill   = color.RGBA{R: 0x10, G: 0xb9, B: 0x81, A: 0xff}
	selectedStroke = color.RGBA{R: 0x06, G: 0x5f, B: 0x46, A: 0xff}
	unselectedFill = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	edgeColor      = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
)

// edgeAlpha is the blend weight of the edge layer over the photo.
const edgeAlpha = 0.2

// Draw renders the layer onto a copy of img. Edges are blended at low
// opacity, unselected points at 75%, selected points opaque with an outline.
// The caller must close the returned Mat.
func Draw(img gocv.Mat, l *Layer) gocv.Mat {
	dst := img.Clone()
	if img.Empty() {
		return dst
	}

	edges := img.Clone()
	defer edges.Close()
	for _, e := range l.Edges {
		gocv.Line(&edges,
			image.Pt(int(e.X1), int(e.Y1)),
			image.Pt(int(e.X2), int(e.Y2)),
			edgeColor, 1)
	}
	gocv.AddWeighted(edges, edgeAlpha, img, 1.0-edgeAlpha, 0, &dst)

	points := dst.Clone()
	defer points.Close()
	for _, p := range l.Points {
		if p.Selected {
			continue
		}
		gocv.Circle(&points, image.Pt(int(p.X), int(p.Y)), int(p.Radius+0.5), unselectedFill, -1)
	}
	blended := gocv.NewMat()
	defer blended.Close()
	gocv.AddWeighted(points, UnselectedOpacity, dst, 1.0-UnselectedOpacity, 0, &blended)
	blended.CopyTo(&dst)

	for _, p := range l.Points {
		if !p.Selected {
			continue
		}
		center := image.Pt(int(p.X), int(p.Y))
		r := int(p.Radius + 0.5)
		gocv.Circle(&dst, center, r, selectedFill, -1)
		gocv.Circle(&dst, center, r, selectedStroke, 1)
	}

	return dst
}

// RenderPNG decodes the photo, draws the layer on it and encodes a PNG.
func RenderPNG(photo []byte, l *Layer) ([]byte, error) {
	img, err := imaging.DecodeMat(photo)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	out := Draw(img, l)
	defer out.Close()

	data, err := imaging.EncodePNG(out)
	if err != nil {
		return nil, fmt.Errorf("render overlay: %w", err)
	}
	return data, nil
}
