package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/phasegate/internal/workflow"
	"github.com/ppiankov/phasegate/internal/workflowdiff"
)

var diffFormat string

func init() {
	rootCmd.AddCommand(diffCmd)
	diffCmd.Flags().StringVarP(&diffFormat, "format", "f", "text", "Output format (text|json)")
}

var diffCmd = &cobra.Command{
	Use:   "diff <old.yaml> <new.yaml>",
	Short: "Compare two workflow definitions",
	Long:  "Shows what a workflow change tightens or loosens: phases, per-phase\ntool lists, gates, required artifacts, transitions, and enforcement\nsettings. Exits 1 when the definitions differ, for use in review gates.",
	Args:  cobra.ExactArgs(2),
	RunE:  runDiff,
}

func runDiff(cmd *cobra.Command, args []string) error {
	oldDef, err := workflow.Load(args[0])
	if err != nil {
		return fmt.Errorf("load %s: %w", args[0], err)
	}
	newDef, err := workflow.Load(args[1])
	if err != nil {
		return fmt.Errorf("load %s: %w", args[1], err)
	}

	r := workflowdiff.Diff(oldDef, newDef)
	r.OldPath = args[0]
	r.NewPath = args[1]

	switch diffFormat {
	case "json":
		out, err := workflowdiff.FormatJSON(r)
		if err != nil {
			return err
		}
		fmt.Println(out)
	default:
		fmt.Print(workflowdiff.FormatText(r))
	}

	if r.HasChanges {
		os.Exit(1)
	}
	return nil
}
