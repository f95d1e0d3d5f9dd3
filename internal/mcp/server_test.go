package mcp

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/phasegate/internal/guard"
	"github.com/ppiankov/phasegate/internal/model"
)

const mcpWorkflow = `
name: mcp-test
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
  - id: DONE
    terminal: true
transitions:
  - from: PLAN
    to: IMPL
    gate: plan_approval
  - from: IMPL
    to: DONE
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

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	wfPath := filepath.Join(dir, "workflow.yaml")
	if err := os.WriteFile(wfPath, []byte(mcpWorkflow), 0o644); err != nil {
		t.Fatal(err)
	}
	engine, err := guard.New(guard.Config{
		WorkflowPath:  wfPath,
		AuditLogPath:  filepath.Join(dir, "audit.jsonl"),
		SigningSecret: []byte("mcp-test-secret"),
	})
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	t.Cleanup(func() { engine.Close() })
	return New(engine, nil)
}

func claim(t *testing.T, s *Server) ClaimOutput {
	t.Helper()
	_, out, err := s.handleClaim(context.Background(), &mcpsdk.CallToolRequest{}, ClaimInput{
		TaskID:  "task-1",
		AgentID: "agent-1",
	})
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	return out
}

func TestClaimReturnsToken(t *testing.T) {
	s := newTestServer(t)
	out := claim(t, s)
	if out.TaskID != "task-1" || out.Phase != "PLAN" {
		t.Fatalf("unexpected claim output %+v", out)
	}
	if out.Token == "" {
		t.Fatal("expected a phase token")
	}
}

func TestCheckToolDeniedIsErrorResult(t *testing.T) {
	s := newTestServer(t)
	out := claim(t, s)
	ctx := context.Background()

	result, d, err := s.handleCheckTool(ctx, &mcpsdk.CallToolRequest{}, CheckToolInput{
		Token: out.Token,
		Tool:  "write_file",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil || !result.IsError {
		t.Fatal("expected IsError result for denied tool")
	}
	if d.Allowed || d.Reason == "" {
		t.Fatalf("denial must carry a reason: %+v", d)
	}

	result, d, err = s.handleCheckTool(ctx, &mcpsdk.CallToolRequest{}, CheckToolInput{
		Token: out.Token,
		Tool:  "read_file",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil && result.IsError {
		t.Fatal("expected success for allowed tool")
	}
	if !d.Allowed {
		t.Fatalf("read_file should be allowed in PLAN: %+v", d)
	}
}

func TestCheckToolInvalidTokenIsErrorResult(t *testing.T) {
	s := newTestServer(t)

	result, d, err := s.handleCheckTool(context.Background(), &mcpsdk.CallToolRequest{}, CheckToolInput{
		Token: "garbage",
		Tool:  "read_file",
	})
	if err != nil {
		t.Fatalf("token failure should be reported in-band: %v", err)
	}
	if result == nil || !result.IsError || d.Allowed {
		t.Fatalf("invalid token must deny: %+v", d)
	}
}

func TestTransitionBlockedListsBlockers(t *testing.T) {
	s := newTestServer(t)
	out := claim(t, s)

	result, tr, err := s.handleTransition(context.Background(), &mcpsdk.CallToolRequest{}, TransitionInput{
		Token:       out.Token,
		TargetPhase: "IMPL",
		Artifacts: map[string]map[string]any{
			"plan_document": {"acceptance_criteria": []any{}},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil || !result.IsError || !tr.Blocked {
		t.Fatalf("expected blocked transition: %+v", tr)
	}
	if len(tr.Blockers) == 0 {
		t.Fatal("blocked transition must list its blockers")
	}
}

func TestTransitionGrantedReturnsNewToken(t *testing.T) {
	s := newTestServer(t)
	out := claim(t, s)

	result, tr, err := s.handleTransition(context.Background(), &mcpsdk.CallToolRequest{}, TransitionInput{
		Token:       out.Token,
		TargetPhase: "IMPL",
		Artifacts: map[string]map[string]any{
			"plan_document": {"acceptance_criteria": []any{"ship it"}},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil && result.IsError {
		t.Fatalf("expected granted transition: %+v", tr)
	}
	if tr.Phase != "IMPL" || tr.NewToken == "" {
		t.Fatalf("unexpected transition output %+v", tr)
	}
}

func TestTransitionDeniedForUnknownTarget(t *testing.T) {
	s := newTestServer(t)
	out := claim(t, s)

	result, tr, err := s.handleTransition(context.Background(), &mcpsdk.CallToolRequest{}, TransitionInput{
		Token:       out.Token,
		TargetPhase: "SHIP",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil || !result.IsError || !tr.Denied {
		t.Fatalf("expected denied transition: %+v", tr)
	}
}

func TestStatusReportsAllowedTools(t *testing.T) {
	s := newTestServer(t)
	claim(t, s)

	_, st, err := s.handleStatus(context.Background(), &mcpsdk.CallToolRequest{}, StatusInput{TaskID: "task-1"})
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Phase != "PLAN" || st.Workflow != "mcp-test" {
		t.Fatalf("unexpected status %+v", st)
	}
	if len(st.AllowedTools) != 1 || st.AllowedTools[0] != "read_file" {
		t.Fatalf("unexpected allowed tools %v", st.AllowedTools)
	}
}

func TestAbandonByToken(t *testing.T) {
	s := newTestServer(t)
	out := claim(t, s)

	_, ab, err := s.handleAbandon(context.Background(), &mcpsdk.CallToolRequest{}, AbandonInput{Token: out.Token})
	if err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if ab.Status != string(model.StatusAbandoned) {
		t.Fatalf("unexpected status %q", ab.Status)
	}
}
