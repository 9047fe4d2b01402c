package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/atotto/clipboard"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ayusman/meshstudio/internal/selection"
	"github.com/ayusman/meshstudio/internal/store"
)

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "Manage saved landmark selections",
}

var presetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved presets",
	Args:  cobra.NoArgs,
	RunE:  runPresetsList,
}

var presetsExportCmd = &cobra.Command{
	Use:   "export <name|id>",
	Short: "Export a preset as a JSON array of indices",
	Long: `Export a preset's landmark indices as a sorted JSON array, the same
format the studio downloads as facemesh_indices.json.`,
	Args: cobra.ExactArgs(1),
	RunE: runPresetsExport,
}

var presetsImportCmd = &cobra.Command{
	Use:   "import <name> <file|->",
	Short: "Save a JSON array of indices as a preset",
	Args:  cobra.ExactArgs(2),
	RunE:  runPresetsImport,
}

var presetsDeleteCmd = &cobra.Command{
	Use:   "delete <name|id>",
	Short: "Delete a preset",
	Args:  cobra.ExactArgs(1),
	RunE:  runPresetsDelete,
}

func init() {
	rootCmd.AddCommand(presetsCmd)
	presetsCmd.AddCommand(presetsListCmd, presetsExportCmd, presetsImportCmd, presetsDeleteCmd)

	presetsListCmd.Flags().Bool("json", false, "Output as JSON")

	presetsExportCmd.Flags().String("out", "", "Write to this file instead of stdout")
	presetsExportCmd.Flags().Bool("copy", false, "Copy to the clipboard")

	presetsImportCmd.Flags().Bool("force", false, "Overwrite an existing preset with the same name")
	presetsImportCmd.Flags().Int("mesh-size", 0, "Landmark count of the mesh the indices refer to")
}

// openStore opens the configured preset database.
func openStore() (*store.Store, error) {
	path, err := settings.DatabasePath()
	if err != nil {
		return nil, err
	}
	s, err := store.New(path)
	if err != nil {
		return nil, fmt.Errorf("opening preset database: %w", err)
	}
	return s, nil
}

// findPreset looks a preset up by id, then by name.
func findPreset(s *store.Store, key string) (*store.Preset, error) {
	p, err := s.Presets().GetByID(key)
	if errors.Is(err, store.ErrNotFound) {
		p, err = s.Presets().GetByName(key)
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("preset %q not found", key)
	}
	return p, err
}

func runPresetsList(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	presets, err := s.Presets().List()
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(presets)
	}

	if len(presets) == 0 {
		fmt.Println("No presets saved")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tINDICES\tMESH\tUPDATED\tID")
	for _, p := range presets {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\n",
			p.Name, len(p.Indices), p.MeshSize, p.UpdatedAt.Format("2006-01-02 15:04"), p.ID)
	}
	return w.Flush()
}

func runPresetsExport(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	p, err := findPreset(s, args[0])
	if err != nil {
		return err
	}

	data, err := selection.Export(p.Indices)
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "copy") {
		if err := clipboard.WriteAll(string(data)); err != nil {
			return fmt.Errorf("copying to clipboard: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Copied %d indices to the clipboard\n", len(p.Indices))
	}

	if out := mustGetString(cmd, "out"); out != "" {
		if err := os.WriteFile(out, data, 0644); err != nil {
			return fmt.Errorf("writing %s: %w", out, err)
		}
		fmt.Fprintf(os.Stderr, "Wrote %d indices to %s\n", len(p.Indices), out)
		return nil
	}

	if !mustGetBool(cmd, "copy") {
		fmt.Println(string(data))
	}
	return nil
}

func runPresetsImport(cmd *cobra.Command, args []string) error {
	name, source := store.NormalizeName(args[0]), args[1]
	if name == "" {
		return fmt.Errorf("preset name must not be blank")
	}

	indices, err := readIndices(source)
	if err != nil {
		return err
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	meshSize, _ := cmd.Flags().GetInt("mesh-size")

	existing, err := s.Presets().GetByName(name)
	switch {
	case err == nil:
		if !mustGetBool(cmd, "force") {
			return fmt.Errorf("preset %q already exists, use --force to overwrite", name)
		}
		existing.Indices = indices
		existing.MeshSize = meshSize
		if err := s.Presets().Update(existing); err != nil {
			return err
		}
		fmt.Printf("Updated preset %q with %d indices\n", name, len(existing.Indices))
		return nil
	case !errors.Is(err, store.ErrNotFound):
		return err
	}

	p := &store.Preset{
		ID:       uuid.New().String(),
		Name:     name,
		Indices:  indices,
		MeshSize: meshSize,
	}
	if err := s.Presets().Create(p); err != nil {
		return err
	}
	fmt.Printf("Saved preset %q with %d indices\n", name, len(p.Indices))
	return nil
}

func runPresetsDelete(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	p, err := findPreset(s, args[0])
	if err != nil {
		return err
	}
	if err := s.Presets().Delete(p.ID); err != nil {
		return err
	}
	fmt.Printf("Deleted preset %q\n", p.Name)
	return nil
}

// readIndices reads a JSON array of landmark indices from a file, or stdin for "-".
func readIndices(source string) ([]int, error) {
	var (
		data []byte
		err  error
	)
	if source == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(source)
	}
	if err != nil {
		return nil, fmt.Errorf("reading indices: %w", err)
	}

	indices, err := selection.ParseExport(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", source, err)
	}
	return indices, nil
}
