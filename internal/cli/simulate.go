package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/phasegate/internal/sim"
	"github.com/ppiankov/phasegate/internal/workflow"
)

var simulateFormat string

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().StringVarP(&simulateFormat, "format", "f", "text", "Output format (text|json)")
}

var simulateCmd = &cobra.Command{
	Use:   "simulate [audit-log]",
	Short: "Replay audited tool checks against a candidate workflow",
	Long:  "Re-evaluates every recorded tool_check decision under the workflow\ngiven by --workflow and reports which calls would flip from allow to\ndeny or back. Run before deploying a workflow change.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSimulate,
}

func runSimulate(cmd *cobra.Command, args []string) error {
	def, err := workflow.Load(flagWorkflow)
	if err != nil {
		return err
	}

	r, err := sim.Simulate(auditPathArg(args), def)
	if err != nil {
		return err
	}

	switch simulateFormat {
	case "json":
		out, err := sim.FormatJSON(r)
		if err != nil {
			return err
		}
		fmt.Println(out)
	default:
		fmt.Print(sim.FormatText(r))
	}
	return nil
}
