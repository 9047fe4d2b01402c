package app

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/meshstudio/internal/detector"
	"github.com/ayusman/meshstudio/internal/imaging"
	"github.com/ayusman/meshstudio/internal/mesh"
)

// FileResult is the detection outcome for one image file.
type FileResult struct {
	Path  string
	Image imaging.Image
	Faces int
	Mesh  mesh.FaceMesh // first face, nil when none was found
	Err   error
}

// Summary counts the outcomes of a pipeline run.
type Summary struct {
	Files  int `json:"files"`
	Meshes int `json:"meshes"`
	NoFace int `json:"no_face"`
	Failed int `json:"failed"`
}

// Pipeline runs face mesh detection over image files, one at a time.
type Pipeline struct {
	client *detector.Client
	decode func([]byte) (imaging.Image, error)
	log    logrus.FieldLogger
}

// NewPipeline creates a Pipeline. A nil decode uses imaging.Decode.
func NewPipeline(client *detector.Client, decode func([]byte) (imaging.Image, error), log logrus.FieldLogger) *Pipeline {
	if decode == nil {
		decode = imaging.Decode
	}
	return &Pipeline{
		client: client,
		decode: decode,
		log:    log.WithField("component", "pipeline"),
	}
}

// Run processes paths in order and calls fn after each file. Per-file
// failures are reported through FileResult.Err; only a model that cannot
// start or a cancelled context ends the run early.
func (p *Pipeline) Run(ctx context.Context, paths []string, fn func(FileResult)) (Summary, error) {
	var sum Summary

	if err := p.client.Initialize(ctx); err != nil {
		return sum, err
	}

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		res := p.detectFile(ctx, path)
		sum.Files++
		switch {
		case res.Err != nil:
			sum.Failed++
			p.log.WithError(res.Err).WithField("file", path).Warn("detection failed")
		case res.Mesh == nil:
			sum.NoFace++
		default:
			sum.Meshes++
		}

		if fn != nil {
			fn(res)
		}
	}

	return sum, nil
}

func (p *Pipeline) detectFile(ctx context.Context, path string) FileResult {
	res := FileResult{Path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		res.Err = err
		return res
	}

	img, err := p.decode(data)
	if err != nil {
		res.Err = fmt.Errorf("%w: %w", detector.ErrInvalidImage, err)
		return res
	}
	res.Image = img

	faces, err := p.client.Detect(ctx, img)
	if err != nil {
		res.Err = err
		return res
	}

	res.Faces = len(faces)
	if len(faces) > 0 {
		res.Mesh = faces[0]
	}
	return res
}
