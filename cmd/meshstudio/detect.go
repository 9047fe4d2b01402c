package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/ayusman/meshstudio/internal/app"
	"github.com/ayusman/meshstudio/internal/detector"
	"github.com/ayusman/meshstudio/internal/mesh"
	"github.com/ayusman/meshstudio/internal/overlay"
	"github.com/ayusman/meshstudio/internal/selection"
	"github.com/ayusman/meshstudio/internal/store"
)

var detectCmd = &cobra.Command{
	Use:   "detect <image>...",
	Short: "Detect the face mesh of image files",
	Long: `Run face mesh detection on JPG or PNG files and write the landmarks of the
first face next to each image as <name>.landmarks.json. Optionally render the
mesh as an SVG overlay or onto the photo as PNG, highlighting a saved preset.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDetect,
}

func init() {
	rootCmd.AddCommand(detectCmd)

	detectCmd.Flags().String("out", "", "Output directory (default: next to each image)")
	detectCmd.Flags().Bool("svg", false, "Also write an SVG overlay")
	detectCmd.Flags().Bool("png", false, "Also write the photo with the mesh drawn on it")
	detectCmd.Flags().String("preset", "", "Highlight the landmarks of this preset (name or id)")
	detectCmd.Flags().Bool("json", false, "Print a JSON summary instead of progress")
}

type landmarksFile struct {
	File      string        `json:"file"`
	Width     int           `json:"width"`
	Height    int           `json:"height"`
	Faces     int           `json:"faces"`
	Landmarks mesh.FaceMesh `json:"landmarks"`
}

type detectSummary struct {
	app.Summary
	Written []string `json:"written"`
	Errors  []string `json:"errors,omitempty"`
}

func runDetect(cmd *cobra.Command, args []string) error {
	outDir := mustGetString(cmd, "out")
	writeSVG := mustGetBool(cmd, "svg")
	writePNG := mustGetBool(cmd, "png")
	jsonOutput := mustGetBool(cmd, "json")

	if outDir != "" {
		if err := os.MkdirAll(outDir, 0755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}

	var highlight []int
	if name := mustGetString(cmd, "preset"); name != "" {
		p, err := lookupPreset(name)
		if err != nil {
			return err
		}
		highlight = p.Indices
	}

	d, provider := app.NewDetector(settings.Detector, logger)
	client := detector.NewClient(d, logger)
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	bar := newDetectProgressBar(len(args), provider, jsonOutput)
	summary := detectSummary{Written: []string{}}

	pipeline := app.NewPipeline(client, nil, logger)
	sum, err := pipeline.Run(ctx, args, func(res app.FileResult) {
		if bar != nil {
			bar.Add(1)
		}
		if res.Err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", res.Path, res.Err))
			return
		}

		written, err := writeDetection(res, outDir, writeSVG, writePNG, highlight, client.Connections())
		summary.Written = append(summary.Written, written...)
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", res.Path, err))
		}
	})
	summary.Summary = sum
	if err != nil {
		return fmt.Errorf("detection stopped: %w", err)
	}

	if jsonOutput {
		return outputJSON(summary)
	}

	fmt.Printf("\nProcessed %d files: %d meshes, %d without a face, %d failed\n",
		sum.Files, sum.Meshes, sum.NoFace, sum.Failed)
	for _, e := range summary.Errors {
		fmt.Printf("  - %s\n", e)
	}
	return nil
}

// writeDetection writes the landmark file and any requested overlays for one
// image and returns the paths written.
func writeDetection(res app.FileResult, outDir string, svg, png bool, highlight []int, edges []mesh.Connection) ([]string, error) {
	base := outputBase(res.Path, outDir)
	var written []string

	doc := landmarksFile{
		File:      filepath.Base(res.Path),
		Width:     res.Image.Width,
		Height:    res.Image.Height,
		Faces:     res.Faces,
		Landmarks: res.Mesh,
	}
	if doc.Landmarks == nil {
		doc.Landmarks = mesh.FaceMesh{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return written, err
	}
	if err := os.WriteFile(base+".landmarks.json", data, 0644); err != nil {
		return written, err
	}
	written = append(written, base+".landmarks.json")

	if len(res.Mesh) == 0 || (!svg && !png) {
		return written, nil
	}

	sel := selection.New(len(res.Mesh))
	// Preset indices outside this mesh are not drawn
	for _, i := range highlight {
		sel.Toggle(i)
	}
	layer := overlay.Build(res.Mesh, res.Image.Width, res.Image.Height, sel, edges)

	if svg {
		f, err := os.Create(base + ".overlay.svg")
		if err != nil {
			return written, err
		}
		err = overlay.WriteSVG(f, layer)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return written, err
		}
		written = append(written, base+".overlay.svg")
	}

	if png {
		data, err := overlay.RenderPNG(res.Image.Data, layer)
		if err != nil {
			return written, err
		}
		if err := os.WriteFile(base+".overlay.png", data, 0644); err != nil {
			return written, err
		}
		written = append(written, base+".overlay.png")
	}

	return written, nil
}

// outputBase returns the output path of path without its extension.
func outputBase(path, outDir string) string {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	if outDir != "" {
		base = filepath.Join(outDir, filepath.Base(base))
	}
	return base
}

// newDetectProgressBar creates a progress bar for detection, or nil if JSON output.
func newDetectProgressBar(count int, provider string, jsonOutput bool) *progressbar.ProgressBar {
	if jsonOutput {
		return nil
	}
	return progressbar.NewOptions(count,
		progressbar.OptionSetDescription("Detecting face meshes ("+provider+")"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)
}

// lookupPreset finds a preset by id, then by name.
func lookupPreset(key string) (*store.Preset, error) {
	s, err := openStore()
	if err != nil {
		return nil, err
	}
	defer s.Close()

	return findPreset(s, key)
}
