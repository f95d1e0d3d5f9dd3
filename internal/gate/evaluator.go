// Package gate evaluates transition requests: artifact validation,
// blocker checks, and the issuance of a fresh phase token on success.
package gate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ppiankov/phasegate/internal/audit"
	"github.com/ppiankov/phasegate/internal/model"
	"github.com/ppiankov/phasegate/internal/taskstore"
	"github.com/ppiankov/phasegate/internal/token"
	"github.com/ppiankov/phasegate/internal/workflow"
)

// Request is one attempt to move a task to a new phase.
type Request struct {
	// Token is the caller's current phase token. Required unless the
	// transition is explicitly marked token-exempt, in which case
	// TaskID must be set instead.
	Token       string
	TaskID      string
	TargetPhase string
	// Artifacts are keyed by artifact type.
	Artifacts map[string]map[string]any
	// Attestations answer approval-gate checks that no builtin
	// implements: the named check is asserted to have passed.
	Attestations map[string]bool
	// Skips carries human-authored reasons for skipping skippable
	// blockers, keyed by check id.
	Skips map[string]string
}

// BlockerResult reports one evaluated gate item. Blocked responses
// include every result, not only the failing ones, for visibility.
type BlockerResult struct {
	Check      string            `json:"check"`
	Severity   workflow.Severity `json:"severity"`
	Message    string            `json:"message,omitempty"`
	Failed     bool              `json:"failed"`
	Detail     string            `json:"detail,omitempty"`
	Skipped    bool              `json:"skipped,omitempty"`
	SkipReason string            `json:"skip_reason,omitempty"`
}

// BlockedError is returned when one or more blocking-severity checks
// failed. The caller resubmits with corrected artifacts; nothing is
// retried silently.
type BlockedError struct {
	From     string
	To       string
	Blockers []BlockerResult
}

func (e *BlockedError) Error() string {
	var failing []string
	for _, b := range e.Blockers {
		if b.Failed && b.Severity == workflow.SeverityBlocking {
			failing = append(failing, b.Check)
		}
	}
	return fmt.Sprintf("transition %s->%s blocked by: %s", e.From, e.To, strings.Join(failing, ", "))
}

// Result is a granted transition.
type Result struct {
	Task *model.Task `json:"task"`
	// NewToken is scoped to the target phase. Empty when phase tokens
	// are disabled in the definition.
	NewToken string `json:"new_token,omitempty"`
	// Blockers carries warning/info results that fired but did not
	// block, plus accepted skips.
	Blockers []BlockerResult `json:"blockers,omitempty"`
}

// Evaluator runs transition requests against a definition snapshot.
type Evaluator struct {
	authority *token.Authority
	tasks     taskstore.Store
	log       *audit.Log
}

func New(authority *token.Authority, tasks taskstore.Store, log *audit.Log) *Evaluator {
	return &Evaluator{authority: authority, tasks: tasks, log: log}
}

// RequestTransition evaluates the request. Task state is advanced via
// compare-and-swap on the task revision, so of two racing requests
// for the same task exactly one can succeed.
func (ev *Evaluator) RequestTransition(def *workflow.Definition, req Request) (*Result, error) {
	taskID, fromPhase, err := ev.resolveCaller(def, req)
	if err != nil {
		return nil, err
	}

	task, err := ev.tasks.Get(taskID)
	if err != nil {
		if errors.Is(err, taskstore.ErrNotFound) {
			return nil, ev.deny(taskID, req.TargetPhase, fmt.Sprintf("task %q is not claimed", taskID))
		}
		return nil, err
	}
	if task.Status.Terminal() {
		return nil, ev.deny(taskID, req.TargetPhase, fmt.Sprintf("task %q is %s; no further transitions", taskID, task.Status))
	}
	if task.Phase != fromPhase {
		// Superseded token: the task has moved on since it was issued.
		return nil, ev.deny(taskID, req.TargetPhase, fmt.Sprintf("token phase %q does not match current task phase %q", fromPhase, task.Phase))
	}

	transition, ok := def.Transition(fromPhase, req.TargetPhase)
	if !ok {
		return nil, ev.deny(taskID, req.TargetPhase, fmt.Sprintf("no transition from %q to %q", fromPhase, req.TargetPhase))
	}
	if req.Token == "" && transition.RequiresToken {
		return nil, ev.deny(taskID, req.TargetPhase, fmt.Sprintf("transition %s->%s requires a phase token", fromPhase, req.TargetPhase))
	}

	target, ok := def.Phase(req.TargetPhase)
	if !ok {
		return nil, ev.deny(taskID, req.TargetPhase, fmt.Sprintf("unknown target phase %q", req.TargetPhase))
	}

	results := ev.validateArtifacts(def, target, req)
	if transition.GateID != "" {
		g, ok := def.Gate(transition.GateID)
		if !ok {
			// Unreachable after load validation, but fail closed anyway.
			return nil, ev.deny(taskID, req.TargetPhase, fmt.Sprintf("gate %q not found", transition.GateID))
		}
		results = append(results, ev.evaluateGate(g, req)...)
	}

	if hasBlockingFailure(results) {
		if err := ev.auditBlocked(taskID, fromPhase, req.TargetPhase, results); err != nil {
			return nil, err
		}
		return nil, &BlockedError{From: fromPhase, To: req.TargetPhase, Blockers: results}
	}

	// Gate passed: advance the task and mint the new token.
	next := task.Clone()
	next.Phase = target.ID
	if target.Terminal {
		next.Status = model.StatusCompleted
	} else {
		next.Status = model.StatusActive
	}

	updated, err := ev.tasks.CompareAndSwap(next, task.Revision)
	if err != nil {
		if errors.Is(err, taskstore.ErrRevisionConflict) {
			return nil, ev.deny(taskID, req.TargetPhase, "concurrent transition already in progress for this task")
		}
		return nil, err
	}

	var newToken string
	if def.TokensEnabled {
		newToken, err = ev.authority.Issue(taskID, target.ID)
		if err != nil {
			return nil, err
		}
		if _, err := ev.log.Append(audit.Entry{
			Actor:   taskID,
			Action:  audit.ActionTokenIssued,
			Outcome: audit.OutcomeIssued,
			Context: map[string]any{"phase": target.ID},
		}); err != nil {
			return nil, err
		}
	}

	if err := ev.auditGranted(taskID, fromPhase, target.ID, results); err != nil {
		return nil, err
	}

	return &Result{Task: updated, NewToken: newToken, Blockers: nonPassing(results)}, nil
}

// resolveCaller maps the request to a task id and originating phase,
// verifying the token when one is presented or required.
func (ev *Evaluator) resolveCaller(def *workflow.Definition, req Request) (string, string, error) {
	if req.Token != "" {
		claims, err := ev.authority.Verify(req.Token, req.TaskID)
		if err != nil {
			outcome := audit.OutcomeInvalidToken
			if errors.Is(err, token.ErrExpired) {
				outcome = audit.OutcomeExpiredToken
			}
			if _, aerr := ev.log.Append(audit.Entry{
				Actor:   "unknown",
				Action:  audit.ActionTransitionBlocked,
				Outcome: outcome,
				Context: map[string]any{"target": req.TargetPhase},
			}); aerr != nil {
				return "", "", aerr
			}
			return "", "", err
		}
		return claims.TaskID, claims.PhaseID, nil
	}

	// Token-exempt path: only valid for transitions declared with
	// requires_token: false, which is re-checked by the caller flow.
	if req.TaskID == "" {
		return "", "", ev.deny("unknown", req.TargetPhase, "request carries neither token nor task id")
	}
	task, err := ev.tasks.Get(req.TaskID)
	if err != nil {
		if errors.Is(err, taskstore.ErrNotFound) {
			return "", "", ev.deny(req.TaskID, req.TargetPhase, fmt.Sprintf("task %q is not claimed", req.TaskID))
		}
		return "", "", err
	}
	return task.ID, task.Phase, nil
}

// validateArtifacts turns missing or schema-invalid required artifacts
// into blocking failures. There is no separate silent path.
func (ev *Evaluator) validateArtifacts(def *workflow.Definition, target *workflow.Phase, req Request) []BlockerResult {
	var results []BlockerResult
	for _, want := range target.RequiredArtifacts {
		r := BlockerResult{
			Check:    "artifact:" + want.Type,
			Severity: workflow.SeverityBlocking,
		}
		payload, ok := req.Artifacts[want.Type]
		if !ok {
			r.Failed = true
			r.Detail = fmt.Sprintf("required artifact %q not submitted", want.Type)
			results = append(results, r)
			continue
		}
		schema, ok := def.Schema(want.SchemaRef)
		if !ok {
			r.Failed = true
			r.Detail = fmt.Sprintf("schema %q not found", want.SchemaRef)
			results = append(results, r)
			continue
		}
		if err := schema.Validate(toAny(payload)); err != nil {
			r.Failed = true
			r.Detail = err.Error()
		}
		results = append(results, r)
	}
	return results
}

// evaluateGate runs each blocker in declaration order. Skips are
// honored only for skippable blockers carrying a real reason.
func (ev *Evaluator) evaluateGate(g *workflow.Gate, req Request) []BlockerResult {
	ctx := CheckContext{Artifacts: req.Artifacts}
	results := make([]BlockerResult, 0, len(g.Blockers))

	for _, b := range g.Blockers {
		r := BlockerResult{Check: b.Check, Severity: b.Severity, Message: b.Message}

		if reason, skipRequested := req.Skips[b.Check]; skipRequested {
			if !b.Skippable {
				r.Failed = true
				r.Severity = workflow.SeverityBlocking
				r.Detail = fmt.Sprintf("check %q is not skippable", b.Check)
				results = append(results, r)
				continue
			}
			if problem := validateSkipReason(reason); problem != "" {
				r.Failed = true
				r.Severity = workflow.SeverityBlocking
				r.Detail = problem
				results = append(results, r)
				continue
			}
			r.Skipped = true
			r.SkipReason = strings.TrimSpace(reason)
			results = append(results, r)
			continue
		}

		if fn, ok := builtinChecks[b.Check]; ok {
			if passed, detail := fn(ctx); !passed {
				r.Failed = true
				r.Detail = detail
			}
			results = append(results, r)
			continue
		}

		if g.Type == workflow.GateApproval {
			if !req.Attestations[b.Check] {
				r.Failed = true
				r.Detail = fmt.Sprintf("approval item %q not attested", b.Check)
			}
			results = append(results, r)
			continue
		}

		// Validation gate naming a check nobody implements: fail closed.
		r.Failed = true
		r.Severity = workflow.SeverityBlocking
		r.Detail = fmt.Sprintf("unknown check %q", b.Check)
		results = append(results, r)
	}
	return results
}

func (ev *Evaluator) deny(taskID, target, reason string) error {
	if _, err := ev.log.Append(audit.Entry{
		Actor:   taskID,
		Action:  audit.ActionTransitionBlocked,
		Outcome: audit.OutcomeDeny,
		Context: map[string]any{"target": target, "reason": reason},
	}); err != nil {
		return err
	}
	return &DeniedError{Reason: reason}
}

// DeniedError rejects a transition before gate evaluation: no such
// transition, stale token, unclaimed or finished task.
type DeniedError struct {
	Reason string
}

func (e *DeniedError) Error() string {
	return "transition denied: " + e.Reason
}

func (ev *Evaluator) auditBlocked(taskID, from, to string, results []BlockerResult) error {
	_, err := ev.log.Append(audit.Entry{
		Actor:   taskID,
		Action:  audit.ActionTransitionBlocked,
		Outcome: audit.OutcomeBlocked,
		Context: map[string]any{
			"from":     from,
			"to":       to,
			"blockers": summarize(results, true),
		},
	})
	return err
}

func (ev *Evaluator) auditGranted(taskID, from, to string, results []BlockerResult) error {
	ctx := map[string]any{"from": from, "to": to}
	if skips := skippedSummary(results); len(skips) > 0 {
		ctx["skipped"] = skips
	}
	_, err := ev.log.Append(audit.Entry{
		Actor:   taskID,
		Action:  audit.ActionTransitionGranted,
		Outcome: audit.OutcomeGranted,
		Context: ctx,
	})
	return err
}

func hasBlockingFailure(results []BlockerResult) bool {
	for _, r := range results {
		if r.Failed && r.Severity == workflow.SeverityBlocking {
			return true
		}
	}
	return false
}

func nonPassing(results []BlockerResult) []BlockerResult {
	var out []BlockerResult
	for _, r := range results {
		if r.Failed || r.Skipped {
			out = append(out, r)
		}
	}
	return out
}

func summarize(results []BlockerResult, failedOnly bool) []map[string]any {
	var out []map[string]any
	for _, r := range results {
		if failedOnly && !r.Failed {
			continue
		}
		out = append(out, map[string]any{
			"check":    r.Check,
			"severity": string(r.Severity),
			"detail":   r.Detail,
		})
	}
	return out
}

// skippedSummary records accepted skips with their reasons: a skipped
// "required" item must stay visible in the audit trail.
func skippedSummary(results []BlockerResult) []map[string]any {
	var out []map[string]any
	for _, r := range results {
		if r.Skipped {
			out = append(out, map[string]any{
				"check":  r.Check,
				"reason": r.SkipReason,
			})
		}
	}
	return out
}

func toAny(m map[string]any) any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
