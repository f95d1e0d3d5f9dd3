package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/phasegate/internal/gate"
)

var (
	transToken     string
	transTaskID    string
	transArtifacts []string
	transAttest    []string
	transSkips     []string
)

func init() {
	rootCmd.AddCommand(transitionCmd)
	transitionCmd.Flags().StringVar(&transToken, "token", "", "Current phase token")
	transitionCmd.Flags().StringVar(&transTaskID, "task", "", "Task id (only for token-exempt transitions)")
	transitionCmd.Flags().StringArrayVar(&transArtifacts, "artifact", nil, "Artifact as type=path-to-json, repeatable")
	transitionCmd.Flags().StringArrayVar(&transAttest, "attest", nil, "Approval-gate check to attest as done, repeatable")
	transitionCmd.Flags().StringArrayVar(&transSkips, "skip", nil, "Skip as check=reason, repeatable")
}

var transitionCmd = &cobra.Command{
	Use:   "transition <target-phase>",
	Short: "Request a phase transition",
	Long:  "Submits artifacts to the transition gate. On success prints the new\nphase token; when blocked, lists every failed gate item and exits 1.",
	Args:  cobra.ExactArgs(1),
	RunE:  runTransition,
}

func runTransition(cmd *cobra.Command, args []string) error {
	req := gate.Request{
		Token:       transToken,
		TaskID:      transTaskID,
		TargetPhase: args[0],
	}

	for _, spec := range transArtifacts {
		typ, path, ok := strings.Cut(spec, "=")
		if !ok {
			return fmt.Errorf("artifact %q: want type=path", spec)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read artifact %q: %w", typ, err)
		}
		var payload map[string]any
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("parse artifact %q: %w", typ, err)
		}
		if req.Artifacts == nil {
			req.Artifacts = make(map[string]map[string]any)
		}
		req.Artifacts[typ] = payload
	}

	for _, check := range transAttest {
		if req.Attestations == nil {
			req.Attestations = make(map[string]bool)
		}
		req.Attestations[check] = true
	}

	for _, spec := range transSkips {
		check, reason, ok := strings.Cut(spec, "=")
		if !ok {
			return fmt.Errorf("skip %q: want check=reason", spec)
		}
		if req.Skips == nil {
			req.Skips = make(map[string]string)
		}
		req.Skips[check] = reason
	}

	engine, cleanup, err := newEngine()
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := engine.RequestTransition(req)
	if err != nil {
		var blocked *gate.BlockedError
		if errors.As(err, &blocked) {
			out, _ := json.MarshalIndent(map[string]any{
				"blocked":  true,
				"reason":   blocked.Error(),
				"blockers": blocked.Blockers,
			}, "", "  ")
			fmt.Println(string(out))
			os.Exit(1)
		}
		return err
	}

	out, _ := json.MarshalIndent(res, "", "  ")
	fmt.Println(string(out))
	return nil
}
