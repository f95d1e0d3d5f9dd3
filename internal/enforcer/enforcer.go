// Package enforcer decides whether a tool call is permitted in the
// phase a token asserts. It holds no mutable state; concurrent checks
// share nothing but the immutable definition snapshot they are given.
package enforcer

import (
	"errors"
	"fmt"

	"github.com/ppiankov/phasegate/internal/audit"
	"github.com/ppiankov/phasegate/internal/token"
	"github.com/ppiankov/phasegate/internal/workflow"
)

// Decision is the outcome of a tool permission check. Every denial
// names the tool and phase so the caller can act on it.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
	TaskID  string `json:"task_id,omitempty"`
	Phase   string `json:"phase,omitempty"`
	Tool    string `json:"tool"`
}

// Enforcer verifies tokens and applies phase tool policy.
type Enforcer struct {
	authority *token.Authority
	log       *audit.Log
}

func New(authority *token.Authority, log *audit.Log) *Enforcer {
	return &Enforcer{authority: authority, log: log}
}

// Check evaluates a tool call under the given definition snapshot.
// Order: token verification fails closed; forbidden wins over
// allowed; any tool in neither list is denied in strict mode. The
// decision is audited before it is returned, so even a malformed
// token leaves a provable trace.
func (e *Enforcer) Check(def *workflow.Definition, tok, toolName string) (Decision, error) {
	canon := workflow.CanonicalTool(toolName)

	claims, err := e.authority.Verify(tok, "")
	if err != nil {
		d := Decision{Allowed: false, Tool: canon}
		outcome := audit.OutcomeInvalidToken
		if errors.Is(err, token.ErrExpired) {
			outcome = audit.OutcomeExpiredToken
			d.Reason = "phase token expired"
		} else {
			d.Reason = "phase token invalid"
		}
		if aerr := e.record("unknown", canon, "", outcome, d.Reason); aerr != nil {
			return Decision{}, aerr
		}
		return d, err
	}

	d := Evaluate(def, claims.PhaseID, canon)
	d.TaskID = claims.TaskID

	outcome := audit.OutcomeDeny
	if d.Allowed {
		outcome = audit.OutcomeAllow
	}
	if aerr := e.record(claims.TaskID, canon, claims.PhaseID, outcome, d.Reason); aerr != nil {
		// Fail closed: a decision that cannot be audited is not returned
		// as an allow.
		return Decision{}, aerr
	}
	return d, nil
}

// Evaluate applies phase tool policy without any token involved. It
// backs both live checks and offline scenario runs; the tool name is
// canonicalized here, so callers may pass it raw.
func Evaluate(def *workflow.Definition, phaseID, toolName string) Decision {
	canon := workflow.CanonicalTool(toolName)
	d := Decision{Phase: phaseID, Tool: canon}

	phase, ok := def.Phase(phaseID)
	if !ok {
		d.Reason = fmt.Sprintf("phase %q is not part of workflow %q", phaseID, def.Name)
		return d
	}

	switch {
	case phase.ToolForbidden(canon):
		d.Reason = fmt.Sprintf("tool %q is forbidden in phase %q", canon, phase.ID)
	case phase.ToolAllowed(canon):
		d.Allowed = true
		d.Reason = fmt.Sprintf("tool %q is allowed in phase %q", canon, phase.ID)
	default:
		switch def.Mode {
		case workflow.ModePermissive:
			d.Allowed = true
			d.Reason = fmt.Sprintf("tool %q is not listed for phase %q; permissive mode allows it", canon, phase.ID)
		default:
			d.Reason = fmt.Sprintf("tool %q is not allowed in phase %q (default deny)", canon, phase.ID)
		}
	}

	// Audit-only mode records the real decision but never blocks.
	if def.Mode == workflow.ModeAuditOnly && !d.Allowed {
		d.Allowed = true
		d.Reason = d.Reason + "; audit-only mode, not enforced"
	}
	return d
}

func (e *Enforcer) record(actor, tool, phase, outcome, reason string) error {
	ctx := map[string]any{
		"tool":   tool,
		"reason": reason,
	}
	if phase != "" {
		ctx["phase"] = phase
	}
	_, err := e.log.Append(audit.Entry{
		Actor:   actor,
		Action:  audit.ActionToolCheck,
		Outcome: outcome,
		Context: ctx,
	})
	return err
}
