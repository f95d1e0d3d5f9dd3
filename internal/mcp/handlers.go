package mcp

import (
	"context"
	"errors"
	"sort"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/phasegate/internal/gate"
	"github.com/ppiankov/phasegate/internal/token"
)

// --- Input/Output types ---

// ClaimInput defines parameters for the phasegate_claim tool.
type ClaimInput struct {
	TaskID  string `json:"task_id,omitempty" jsonschema:"task identifier, generated when omitted"`
	AgentID string `json:"agent_id" jsonschema:"identifier of the claiming agent"`
}

// ClaimOutput returns the claimed task and its entry token.
type ClaimOutput struct {
	TaskID string `json:"task_id"`
	Phase  string `json:"phase"`
	Token  string `json:"token,omitempty"`
}

// CheckToolInput defines parameters for the phasegate_check_tool tool.
type CheckToolInput struct {
	Token string `json:"token" jsonschema:"current phase token"`
	Tool  string `json:"tool" jsonschema:"tool name to check"`
}

// CheckToolOutput contains the permission decision.
type CheckToolOutput struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
	Phase   string `json:"phase,omitempty"`
	Tool    string `json:"tool"`
}

// TransitionInput defines parameters for the phasegate_transition tool.
type TransitionInput struct {
	Token        string                    `json:"token,omitempty" jsonschema:"current phase token"`
	TaskID       string                    `json:"task_id,omitempty" jsonschema:"task id, only for token-exempt transitions"`
	TargetPhase  string                    `json:"target_phase" jsonschema:"phase to transition into"`
	Artifacts    map[string]map[string]any `json:"artifacts,omitempty" jsonschema:"required artifacts keyed by type"`
	Attestations map[string]bool           `json:"attestations,omitempty" jsonschema:"approval-gate items asserted as done"`
	Skips        map[string]string         `json:"skips,omitempty" jsonschema:"skip reasons keyed by check id"`
}

// BlockerInfo describes one evaluated gate item in a response.
type BlockerInfo struct {
	Check      string `json:"check"`
	Severity   string `json:"severity"`
	Failed     bool   `json:"failed"`
	Detail     string `json:"detail,omitempty"`
	Skipped    bool   `json:"skipped,omitempty"`
	SkipReason string `json:"skip_reason,omitempty"`
}

// TransitionOutput contains the granted transition or block details.
type TransitionOutput struct {
	TaskID   string        `json:"task_id,omitempty"`
	Phase    string        `json:"phase,omitempty"`
	Status   string        `json:"status,omitempty"`
	NewToken string        `json:"new_token,omitempty"`
	Blocked  bool          `json:"blocked,omitempty"`
	Denied   bool          `json:"denied,omitempty"`
	Reason   string        `json:"reason,omitempty"`
	Blockers []BlockerInfo `json:"blockers,omitempty"`
}

// StatusInput defines parameters for the phasegate_status tool.
type StatusInput struct {
	TaskID string `json:"task_id" jsonschema:"task identifier"`
}

// StatusOutput reports a task's position in the workflow.
type StatusOutput struct {
	TaskID       string   `json:"task_id"`
	AgentID      string   `json:"agent_id"`
	Phase        string   `json:"phase"`
	Status       string   `json:"status"`
	AllowedTools []string `json:"allowed_tools,omitempty"`
	Workflow     string   `json:"workflow"`
}

// AbandonInput defines parameters for the phasegate_abandon tool.
type AbandonInput struct {
	Token  string `json:"token,omitempty" jsonschema:"current phase token"`
	TaskID string `json:"task_id,omitempty" jsonschema:"task id when no token is held"`
}

// AbandonOutput confirms the abandonment.
type AbandonOutput struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// --- Handlers ---

func (s *Server) handleClaim(ctx context.Context, req *mcpsdk.CallToolRequest, input ClaimInput) (*mcpsdk.CallToolResult, ClaimOutput, error) {
	res, err := s.engine.ClaimTask(input.TaskID, input.AgentID)
	if err != nil {
		return nil, ClaimOutput{}, err
	}
	return nil, ClaimOutput{
		TaskID: res.Task.ID,
		Phase:  res.Task.Phase,
		Token:  res.Token,
	}, nil
}

func (s *Server) handleCheckTool(ctx context.Context, req *mcpsdk.CallToolRequest, input CheckToolInput) (*mcpsdk.CallToolResult, CheckToolOutput, error) {
	d, err := s.engine.CheckTool(input.Token, input.Tool)
	if err != nil && !errors.Is(err, token.ErrInvalid) && !errors.Is(err, token.ErrExpired) {
		return nil, CheckToolOutput{}, err
	}

	out := CheckToolOutput{
		Allowed: d.Allowed,
		Reason:  d.Reason,
		Phase:   d.Phase,
		Tool:    d.Tool,
	}
	if !d.Allowed {
		// The denial is data, not a protocol failure: the agent reads
		// the reason and adjusts instead of retrying blindly.
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	return nil, out, nil
}

func (s *Server) handleTransition(ctx context.Context, req *mcpsdk.CallToolRequest, input TransitionInput) (*mcpsdk.CallToolResult, TransitionOutput, error) {
	res, err := s.engine.RequestTransition(gate.Request{
		Token:        input.Token,
		TaskID:       input.TaskID,
		TargetPhase:  input.TargetPhase,
		Artifacts:    input.Artifacts,
		Attestations: input.Attestations,
		Skips:        input.Skips,
	})
	if err != nil {
		var blocked *gate.BlockedError
		if errors.As(err, &blocked) {
			out := TransitionOutput{
				Blocked:  true,
				Reason:   blocked.Error(),
				Blockers: toBlockerInfo(blocked.Blockers),
			}
			return &mcpsdk.CallToolResult{IsError: true}, out, nil
		}
		var denied *gate.DeniedError
		if errors.As(err, &denied) {
			out := TransitionOutput{Denied: true, Reason: denied.Reason}
			return &mcpsdk.CallToolResult{IsError: true}, out, nil
		}
		if errors.Is(err, token.ErrInvalid) || errors.Is(err, token.ErrExpired) {
			out := TransitionOutput{Denied: true, Reason: err.Error()}
			return &mcpsdk.CallToolResult{IsError: true}, out, nil
		}
		return nil, TransitionOutput{}, err
	}

	return nil, TransitionOutput{
		TaskID:   res.Task.ID,
		Phase:    res.Task.Phase,
		Status:   string(res.Task.Status),
		NewToken: res.NewToken,
		Blockers: toBlockerInfo(res.Blockers),
	}, nil
}

func (s *Server) handleStatus(ctx context.Context, req *mcpsdk.CallToolRequest, input StatusInput) (*mcpsdk.CallToolResult, StatusOutput, error) {
	task, err := s.engine.Status(input.TaskID)
	if err != nil {
		return nil, StatusOutput{}, err
	}

	def := s.engine.Definition()
	out := StatusOutput{
		TaskID:   task.ID,
		AgentID:  task.AgentID,
		Phase:    task.Phase,
		Status:   string(task.Status),
		Workflow: def.Name,
	}
	if p, ok := def.Phase(task.Phase); ok {
		tools := p.AllowedTools()
		sort.Strings(tools)
		out.AllowedTools = tools
	}
	return nil, out, nil
}

func (s *Server) handleAbandon(ctx context.Context, req *mcpsdk.CallToolRequest, input AbandonInput) (*mcpsdk.CallToolResult, AbandonOutput, error) {
	task, err := s.engine.Abandon(input.Token, input.TaskID)
	if err != nil {
		return nil, AbandonOutput{}, err
	}
	return nil, AbandonOutput{
		TaskID: task.ID,
		Status: string(task.Status),
	}, nil
}

func toBlockerInfo(in []gate.BlockerResult) []BlockerInfo {
	out := make([]BlockerInfo, 0, len(in))
	for _, b := range in {
		out = append(out, BlockerInfo{
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
