package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	claimTaskID  string
	claimAgentID string
)

func init() {
	rootCmd.AddCommand(claimCmd)
	claimCmd.Flags().StringVar(&claimTaskID, "task", "", "Task id (generated when omitted)")
	claimCmd.Flags().StringVar(&claimAgentID, "agent", "", "Agent id (required)")
	claimCmd.MarkFlagRequired("agent")
}

var claimCmd = &cobra.Command{
	Use:   "claim",
	Short: "Claim a task into the workflow's first phase",
	Long:  "Registers a task, places it in the first phase, and prints the entry\nphase token. The token is printed once and never written to the audit log.",
	RunE:  runClaim,
}

func runClaim(cmd *cobra.Command, args []string) error {
	engine, cleanup, err := newEngine()
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := engine.ClaimTask(claimTaskID, claimAgentID)
	if err != nil {
		return err
	}

	out, _ := json.MarshalIndent(map[string]any{
		"task_id": res.Task.ID,
		"phase":   res.Task.Phase,
		"status":  res.Task.Status,
		"token":   res.Token,
	}, "", "  ")
	fmt.Println(string(out))
	return nil
}
