package phasegate

import (
	"fmt"

	"github.com/ppiankov/phasegate/internal/gate"
)

// ToolCall describes one intended tool invocation.
type ToolCall struct {
	Tool string
	// Args are passed through to the wrapped function untouched;
	// enforcement looks only at the tool name.
	Args map[string]any
}

// Decision is the outcome of a tool permission check.
type Decision struct {
	Allowed bool
	Reason  string
	Phase   string
	Tool    string
}

// BlockedError is returned when the current phase denies a tool call.
type BlockedError struct {
	Call   ToolCall
	Phase  string
	Reason string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("phasegate: tool %q blocked in phase %q: %s", e.Call.Tool, e.Phase, e.Reason)
}

// TransitionRequest carries everything a gate needs to evaluate a
// phase change.
type TransitionRequest struct {
	TargetPhase  string
	Artifacts    map[string]map[string]any
	Attestations map[string]bool
	Skips        map[string]string
}

// Blocker is one evaluated gate item from a blocked or granted
// transition.
type Blocker struct {
	Check      string
	Severity   string
	Failed     bool
	Detail     string
	Skipped    bool
	SkipReason string
}

// TransitionBlockedError reports a transition stopped by failing gate
// items. Every evaluated item is included, not only the failures.
type TransitionBlockedError struct {
	From     string
	To       string
	Blockers []Blocker
	inner    *gate.BlockedError
}

func (e *TransitionBlockedError) Error() string {
	return "phasegate: " + e.inner.Error()
}

func toBlockers(in []gate.BlockerResult) []Blocker {
	out := make([]Blocker, 0, len(in))
	for _, b := range in {
		out = append(out, Blocker{
			Check:      b.Check,
			Severity:   string(b.Severity),
			Failed:     b.Failed,
			Detail:     b.Detail,
			Skipped:    b.Skipped,
			SkipReason: b.SkipReason,
		})
	}
	return out
}
