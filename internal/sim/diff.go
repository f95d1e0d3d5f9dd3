package sim

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DiffEntry represents one audited check where the decision changed.
type DiffEntry struct {
	Timestamp   string `json:"ts"`
	Actor       string `json:"actor"`
	Phase       string `json:"phase"`
	Tool        string `json:"tool"`
	OldDecision string `json:"old_decision"`
	NewDecision string `json:"new_decision"`
	NewReason   string `json:"new_reason"`
}

// SimResult holds the complete simulation output.
type SimResult struct {
	Workflow      string      `json:"workflow"`
	WorkflowHash  string      `json:"workflow_hash"`
	TotalChecks   int         `json:"total_checks"`
	ChangedChecks int         `json:"changed_checks"`
	NewlyDenied   int         `json:"newly_denied"`
	NewlyAllowed  int         `json:"newly_allowed"`
	SkippedLines  int         `json:"skipped_lines,omitempty"`
	Changes       []DiffEntry `json:"changes,omitempty"`
}

// FormatText renders the simulation result as human-readable text.
func FormatText(r *SimResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Simulated %d tool checks against workflow %q\n", r.TotalChecks, r.Workflow)

	if r.ChangedChecks == 0 {
		b.WriteString("\nNo decision changes.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "\n%d decision(s) would change: %d newly denied, %d newly allowed\n\n",
		r.ChangedChecks, r.NewlyDenied, r.NewlyAllowed)
	for _, c := range r.Changes {
		fmt.Fprintf(&b, "  %s  %-10s %-16s %s -> %s\n      %s\n",
			c.Timestamp, c.Phase, c.Tool, c.OldDecision, c.NewDecision, c.NewReason)
	}
	return b.String()
}

// FormatJSON renders the simulation result as JSON.
func FormatJSON(r *SimResult) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal simulation result: %w", err)
	}
	return string(data), nil
}
