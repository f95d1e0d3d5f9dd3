// Package sim replays audited tool checks against a candidate workflow
// definition before it is deployed. Decision flips show exactly which
// historical calls the new policy would have blocked or freed.
package sim

import (
	"fmt"

	"github.com/ppiankov/phasegate/internal/audit"
	"github.com/ppiankov/phasegate/internal/enforcer"
	"github.com/ppiankov/phasegate/internal/workflow"
)

// Simulate replays the tool_check entries of an audit log against a
// definition and returns the decision diffs. Non-decision entries
// (transitions, claims, token issuance) are skipped; invalid-token
// checks are skipped too since no phase is known for them.
func Simulate(logPath string, def *workflow.Definition) (*SimResult, error) {
	entries, corrupt, err := audit.ReadAll(logPath)
	if err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}

	result := &SimResult{
		Workflow:     def.Name,
		WorkflowHash: def.Hash,
		SkippedLines: len(corrupt),
	}

	for _, e := range entries {
		if e.Action != audit.ActionToolCheck {
			continue
		}
		oldDecision, ok := recordedDecision(e.Outcome)
		if !ok {
			continue
		}
		tool, _ := e.Context["tool"].(string)
		phase, _ := e.Context["phase"].(string)
		if tool == "" || phase == "" {
			continue
		}
		result.TotalChecks++

		d := enforcer.Evaluate(def, phase, tool)
		newDecision := "deny"
		if d.Allowed {
			newDecision = "allow"
		}
		if newDecision == oldDecision {
			continue
		}

		result.Changes = append(result.Changes, DiffEntry{
			Timestamp:   e.Timestamp,
			Actor:       e.Actor,
			Phase:       phase,
			Tool:        tool,
			OldDecision: oldDecision,
			NewDecision: newDecision,
			NewReason:   d.Reason,
		})
		result.ChangedChecks++
		if newDecision == "deny" {
			result.NewlyDenied++
		} else {
			result.NewlyAllowed++
		}
	}

	return result, nil
}

// recordedDecision maps an audited outcome back to allow/deny. Token
// failures carry no usable phase and are not replayable.
func recordedDecision(outcome string) (string, bool) {
	switch outcome {
	case audit.OutcomeAllow:
		return "allow", true
	case audit.OutcomeDeny:
		return "deny", true
	default:
		return "", false
	}
}
