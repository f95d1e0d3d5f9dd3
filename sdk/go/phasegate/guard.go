package phasegate

import (
	"context"
)

// ToolFunc is the function signature that Wrap guards.
type ToolFunc func(ctx context.Context, call ToolCall) (any, error)

// Wrap returns a ToolFunc that checks phase policy before calling fn.
// A denial returns a *BlockedError without calling fn; the wrapped
// function only ever runs behind an allow that is already audited.
func (s *Session) Wrap(fn ToolFunc) ToolFunc {
	return func(ctx context.Context, call ToolCall) (any, error) {
		d, err := s.CheckTool(call.Tool)
		if !d.Allowed {
			reason := d.Reason
			if reason == "" && err != nil {
				reason = err.Error()
			}
			return nil, &BlockedError{Call: call, Phase: d.Phase, Reason: reason}
		}
		return fn(ctx, call)
	}
}
