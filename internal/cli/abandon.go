package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	abandonToken  string
	abandonTaskID string
)

func init() {
	rootCmd.AddCommand(abandonCmd)
	abandonCmd.Flags().StringVar(&abandonToken, "token", "", "Current phase token")
	abandonCmd.Flags().StringVar(&abandonTaskID, "task", "", "Task id when no token is held")
}

var abandonCmd = &cobra.Command{
	Use:   "abandon",
	Short: "Abandon a task",
	Long:  "Marks a task abandoned. Its tokens stay verifiable until expiry but no\ntransition or claim will accept the task again.",
	RunE:  runAbandon,
}

func runAbandon(cmd *cobra.Command, args []string) error {
	engine, cleanup, err := newEngine()
	if err != nil {
		return err
	}
	defer cleanup()

	task, err := engine.Abandon(abandonToken, abandonTaskID)
	if err != nil {
		return err
	}
	fmt.Printf("task %s is now %s\n", task.ID, task.Status)
	return nil
}
