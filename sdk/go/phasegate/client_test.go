package phasegate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const sdkWorkflow = `
name: sdk-test
phases:
  - id: PLAN
    allowed_tools: [read_file]
    gates:
      - id: plan_approval
        type: validation
        blockers:
          - check: acceptance_criteria_present
            severity: blocking
            message: plan needs acceptance criteria
  - id: IMPL
    allowed_tools: [read_file, write_file]
    required_artifacts:
      - type: plan_document
        schema: plan_document
transitions:
  - from: PLAN
    to: IMPL
    gate: plan_approval
enforcement:
  mode: strict
artifact_schemas:
  plan_document:
    type: object
    required: [acceptance_criteria]
    properties:
      acceptance_criteria:
        type: array
        minItems: 1
`

func newTestClient(t *testing.T) *Client {
	t.Helper()
	dir := t.TempDir()
	wfPath := filepath.Join(dir, "workflow.yaml")
	if err := os.WriteFile(wfPath, []byte(sdkWorkflow), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := New(
		WithWorkflow(wfPath),
		WithAuditLog(filepath.Join(dir, "audit.jsonl")),
		WithSigningSecret([]byte("sdk-test-secret")),
	)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClaimAndCheckTool(t *testing.T) {
	c := newTestClient(t)

	session, err := c.Claim("", "agent-1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if session.TaskID() == "" || session.Phase() != "PLAN" {
		t.Fatalf("unexpected session state %q/%q", session.TaskID(), session.Phase())
	}

	d, err := session.CheckTool("read_file")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !d.Allowed {
		t.Fatalf("read_file should be allowed: %+v", d)
	}
	if d, _ := session.CheckTool("write_file"); d.Allowed {
		t.Fatal("write_file must be denied in PLAN")
	}
}

func TestWrapBlocksDeniedTool(t *testing.T) {
	c := newTestClient(t)
	session, err := c.Claim("task-1", "agent-1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}

	var called bool
	wrapped := session.Wrap(func(ctx context.Context, call ToolCall) (any, error) {
		called = true
		return "ok", nil
	})

	_, err = wrapped(context.Background(), ToolCall{Tool: "write_file"})
	var blocked *BlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("expected *BlockedError, got %v", err)
	}
	if called {
		t.Fatal("wrapped function must not run behind a denial")
	}
	if blocked.Phase != "PLAN" || blocked.Reason == "" {
		t.Fatalf("denial must name phase and reason: %+v", blocked)
	}

	out, err := wrapped(context.Background(), ToolCall{Tool: "read_file"})
	if err != nil {
		t.Fatalf("allowed tool: %v", err)
	}
	if out != "ok" || !called {
		t.Fatal("wrapped function should run behind an allow")
	}
}

func TestTransitionReplacesToken(t *testing.T) {
	c := newTestClient(t)
	session, err := c.Claim("task-1", "agent-1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	before := session.Token()

	err = session.Transition(TransitionRequest{
		TargetPhase: "IMPL",
		Artifacts: map[string]map[string]any{
			"plan_document": {"acceptance_criteria": []any{"list endpoint returns 200"}},
		},
	})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if session.Phase() != "IMPL" {
		t.Fatalf("session phase %q, want IMPL", session.Phase())
	}
	if session.Token() == before {
		t.Fatal("transition must replace the session token")
	}

	if d, _ := session.CheckTool("write_file"); !d.Allowed {
		t.Fatal("write_file should be allowed in IMPL")
	}
}

func TestTransitionBlockedCarriesBlockers(t *testing.T) {
	c := newTestClient(t)
	session, err := c.Claim("task-1", "agent-1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}

	err = session.Transition(TransitionRequest{
		TargetPhase: "IMPL",
		Artifacts: map[string]map[string]any{
			"plan_document": {"acceptance_criteria": []any{}},
		},
	})
	var blocked *TransitionBlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("expected *TransitionBlockedError, got %v", err)
	}
	if blocked.From != "PLAN" || blocked.To != "IMPL" || len(blocked.Blockers) == 0 {
		t.Fatalf("unexpected blocked error %+v", blocked)
	}

	// Session keeps its token; the caller fixes artifacts and retries.
	if session.Phase() != "PLAN" {
		t.Fatalf("blocked transition must not advance the session: %q", session.Phase())
	}
}

func TestAbandonStopsTransitions(t *testing.T) {
	c := newTestClient(t)
	session, err := c.Claim("task-1", "agent-1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := session.Abandon(); err != nil {
		t.Fatalf("abandon: %v", err)
	}

	task, err := session.Status()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if string(task.Status) != "abandoned" {
		t.Fatalf("unexpected status %q", task.Status)
	}

	err = session.Transition(TransitionRequest{TargetPhase: "IMPL"})
	if err == nil {
		t.Fatal("abandoned task must not transition")
	}
}
