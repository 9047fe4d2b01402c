// Package testdata builds synthetic photos for tests that exercise the real
// OpenCV decode and render paths.
package testdata

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/ayusman/meshstudio/internal/imaging"
)

// Photo draws a plain face-like picture of the given size and encodes it as
// imaging.FormatJPEG or imaging.FormatPNG.
func Photo(width, height int, format string) ([]byte, error) {
	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(235, 235, 235, 0), height, width, gocv.MatTypeCV8UC3)
	defer mat.Close()

	center := image.Pt(width/2, height/2)
	skin := color.RGBA{R: 224, G: 172, B: 105, A: 255}
	dark := color.RGBA{R: 40, G: 40, B: 40, A: 255}

	gocv.Ellipse(&mat, center, image.Pt(width*3/10, height*4/10), 0, 0, 360, skin, -1)
	gocv.Circle(&mat, image.Pt(width*4/10, height*4/10), max(width/30, 1), dark, -1)
	gocv.Circle(&mat, image.Pt(width*6/10, height*4/10), max(width/30, 1), dark, -1)
	gocv.Line(&mat, image.Pt(width*4/10, height*13/20), image.Pt(width*6/10, height*13/20), dark, max(width/100, 1))

	switch format {
	case imaging.FormatJPEG:
		return imaging.EncodeJPEG(mat)
	case imaging.FormatPNG:
		return imaging.EncodePNG(mat)
	default:
		return nil, fmt.Errorf("unsupported fixture format %q", format)
	}
}

// JPEG returns a width x height JPEG photo or panics.
func JPEG(width, height int) []byte {
	return must(Photo(width, height, imaging.FormatJPEG))
}

// PNG returns a width x height PNG photo or panics.
func PNG(width, height int) []byte {
	return must(Photo(width, height, imaging.FormatPNG))
}

func must(data []byte, err error) []byte {
	if err != nil {
		panic(err)
	}
	return data
}
