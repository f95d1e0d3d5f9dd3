package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status [task-id]",
	Short: "Show task state",
	Long:  "Prints one task's phase and status, or lists every stored task when no\nid is given.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	engine, cleanup, err := newEngine()
	if err != nil {
		return err
	}
	defer cleanup()

	if len(args) == 1 {
		task, err := engine.Status(args[0])
		if err != nil {
			return err
		}
		out, _ := json.MarshalIndent(task, "", "  ")
		fmt.Println(string(out))
		return nil
	}

	tasks, err := engine.Tasks()
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Println("no tasks")
		return nil
	}
	for _, t := range tasks {
		fmt.Printf("%-36s  %-10s  %-10s  %s\n", t.ID, t.Phase, t.Status, t.AgentID)
	}
	return nil
}
