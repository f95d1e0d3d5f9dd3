package workflowdiff

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatText renders the diff result as human-readable text.
func FormatText(r *DiffResult) string {
	if !r.HasChanges {
		return fmt.Sprintf("Workflow diff: %s -> %s\n\nNo changes detected.\n", r.OldPath, r.NewPath)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Workflow diff: %s -> %s\n", r.OldPath, r.NewPath)

	if len(r.Changes) > 0 {
		b.WriteString("\n")
		for _, c := range r.Changes {
			fmt.Fprintf(&b, "  %-40s %s -> %s", c.Field+":", c.Old, c.New)
			if c.Comment != "" {
				fmt.Fprintf(&b, "  (%s)", c.Comment)
			}
			b.WriteString("\n")
		}
	}

	if len(r.Phases) > 0 {
		b.WriteString("\n  Phases:\n")
		for _, pc := range r.Phases {
			switch pc.Type {
			case "added":
				fmt.Fprintf(&b, "    + %s\n", pc.Phase)
			case "removed":
				fmt.Fprintf(&b, "    - %s\n", pc.Phase)
			case "changed":
				fmt.Fprintf(&b, "    ~ %s\n", pc.Phase)
				for _, d := range pc.Detail {
					fmt.Fprintf(&b, "        %s\n", d)
				}
			}
		}
	}

	if len(r.Transitions) > 0 {
		b.WriteString("\n  Transitions:\n")
		for _, tc := range r.Transitions {
			switch tc.Type {
			case "added":
				fmt.Fprintf(&b, "    + %s\n", tc.Transition)
			case "removed":
				fmt.Fprintf(&b, "    - %s\n", tc.Transition)
			}
		}
	}

	return b.String()
}

// FormatJSON renders the diff result as JSON.
func FormatJSON(r *DiffResult) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal diff result: %w", err)
	}
	return string(data), nil
}
