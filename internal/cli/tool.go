package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var toolToken string

func init() {
	rootCmd.AddCommand(toolCmd)
	toolCmd.Flags().StringVar(&toolToken, "token", "", "Current phase token (required)")
	toolCmd.MarkFlagRequired("token")
}

var toolCmd = &cobra.Command{
	Use:   "tool <name>",
	Short: "Check whether the current phase permits a tool",
	Long:  "Evaluates one tool call against the token's phase policy and records\nthe decision in the audit log. Exits 0 on allow, 1 on deny.",
	Args:  cobra.ExactArgs(1),
	RunE:  runTool,
}

func runTool(cmd *cobra.Command, args []string) error {
	engine, cleanup, err := newEngine()
	if err != nil {
		return err
	}
	defer cleanup()

	d, checkErr := engine.CheckTool(toolToken, args[0])

	out, _ := json.MarshalIndent(d, "", "  ")
	fmt.Println(string(out))

	if checkErr != nil && d.Reason == "" {
		return checkErr
	}
	if !d.Allowed {
		os.Exit(1)
	}
	return nil
}
