// Package imaging decodes uploaded face photos using GoCV (OpenCV).
package imaging

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"
)

// Supported upload formats.
const (
	FormatJPEG = "jpeg"
	FormatPNG  = "png"
)

var (
	// ErrUnsupportedFormat is returned for anything other than JPEG or PNG.
	ErrUnsupportedFormat = errors.New("unsupported image format: expected JPG or PNG")
	// ErrUndecodable is returned when OpenCV cannot decode the bytes.
	ErrUndecodable = errors.New("image could not be decoded")
)

// Image is an uploaded photo together with its decoded pixel dimensions.
type Image struct {
	Data   []byte
	Format string
	Width  int
	Height int
}

// Empty reports whether the image has no usable pixels.
func (i Image) Empty() bool {
	return i.Width <= 0 || i.Height <= 0
}

// ContentType returns the MIME type of the image data.
func (i Image) ContentType() string {
	switch i.Format {
	case FormatJPEG:
		return "image/jpeg"
	case FormatPNG:
		return "image/png"
	default:
		return "application/octet-stream"
	}
}

// DetectFormat identifies JPEG and PNG data by magic bytes.
func DetectFormat(data []byte) (string, error) {
	if len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return FormatJPEG, nil
	}
	if len(data) >= 8 && string(data[:8]) == "\x89PNG\r\n\x1a\n" {
		return FormatPNG, nil
	}
	return "", ErrUnsupportedFormat
}

// Decode validates the format and reads the pixel dimensions of data.
// The returned Image keeps the original bytes for the landmark provider.
func Decode(data []byte) (Image, error) {
	format, err := DetectFormat(data)
	if err != nil {
		return Image{}, err
	}

	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return Image{}, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	defer mat.Close()

	if mat.Empty() {
		return Image{}, ErrUndecodable
	}

	return Image{
		Data:   data,
		Format: format,
		Width:  mat.Cols(),
		Height: mat.Rows(),
	}, nil
}

// DecodeMat decodes data into a color Mat. The caller must close it.
func DecodeMat(data []byte) (gocv.Mat, error) {
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return mat, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	if mat.Empty() {
		mat.Close()
		return gocv.NewMat(), ErrUndecodable
	}
	return mat, nil
}

// EncodePNG encodes mat as PNG bytes.
func EncodePNG(mat gocv.Mat) ([]byte, error) {
	return encode(".png", mat)
}

// EncodeJPEG encodes mat as JPEG bytes.
func EncodeJPEG(mat gocv.Mat) ([]byte, error) {
	return encode(".jpg", mat)
}

func encode(ext gocv.FileExt, mat gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(ext, mat)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ext, err)
	}
	defer buf.Close()

	// The native buffer is freed on Close, so copy out.
	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}
