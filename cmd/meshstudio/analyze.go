package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/ayusman/meshstudio/internal/selection"
	"github.com/ayusman/meshstudio/internal/topology"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [file|-]",
	Short: "Break a landmark selection down by facial region",
	Long: `Report how much of each facial region (lips, eyes, eyebrows, face oval)
a selection covers. The selection is a JSON array of indices read from a file,
from stdin with "-", from the clipboard with --paste, or from a saved preset.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().String("preset", "", "Analyze a saved preset (name or id)")
	analyzeCmd.Flags().Bool("paste", false, "Read the selection from the clipboard")
	analyzeCmd.Flags().Bool("json", false, "Output as JSON")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	var (
		indices []int
		err     error
	)

	switch {
	case mustGetString(cmd, "preset") != "":
		p, err := lookupPreset(mustGetString(cmd, "preset"))
		if err != nil {
			return err
		}
		indices = p.Indices
	case mustGetBool(cmd, "paste"):
		text, err := clipboard.ReadAll()
		if err != nil {
			return fmt.Errorf("reading clipboard: %w", err)
		}
		if indices, err = selection.ParseExport([]byte(text)); err != nil {
			return fmt.Errorf("parsing clipboard: %w", err)
		}
	case len(args) == 1:
		if indices, err = readIndices(args[0]); err != nil {
			return err
		}
	default:
		return fmt.Errorf("give a file, \"-\" for stdin, --paste or --preset")
	}

	analysis := topology.Analyze(indices, topology.DefaultRegions())

	if mustGetBool(cmd, "json") {
		return outputJSON(analysis)
	}
	printAnalysis(analysis)
	return nil
}

func printAnalysis(a topology.Analysis) {
	fmt.Printf("Selected: %d landmarks\n\n", a.Selected)
	if len(a.Matches) == 0 {
		fmt.Println("No facial region touched")
	} else {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "REGION\tSELECTED\tCOVERAGE\tTIER")
		for _, m := range a.Matches {
			fmt.Fprintf(w, "%s\t%d/%d\t%d%%\t%s\n", m.Name, m.Count, m.Total, m.Percentage, m.Tier)
		}
		w.Flush()
	}
	if a.Uncategorized > 0 {
		fmt.Printf("\nOutside named regions: %d\n", a.Uncategorized)
	}
}
