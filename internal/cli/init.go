package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/phasegate/internal/workflow"
)

var initForce bool

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing file")
}

var initCmd = &cobra.Command{
	Use:   "init <path>",
	Short: "Write the built-in default workflow to a file",
	Long:  "Writes the commented PLAN/TDD/IMPL/REVIEW workflow definition so it can\nbe edited and passed back via --workflow.",
	Args:  cobra.ExactArgs(1),
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	path := args[0]
	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	if err := os.WriteFile(path, []byte(workflow.DefaultYAML), 0o644); err != nil {
		return fmt.Errorf("write workflow: %w", err)
	}
	fmt.Printf("wrote %s\n", path)
	fmt.Println("set PHASEGATE_SIGNING_SECRET before serving with phase tokens enabled")
	return nil
}
