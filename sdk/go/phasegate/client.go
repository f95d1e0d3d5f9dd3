package phasegate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ppiankov/phasegate/internal/gate"
	"github.com/ppiankov/phasegate/internal/guard"
	"github.com/ppiankov/phasegate/internal/model"
)

// Client holds the enforcement engine for in-process use. Safe for
// concurrent sessions.
type Client struct {
	engine *guard.Engine
}

// New creates a Client with the given options.
func New(opts ...Option) (*Client, error) {
	var cfg clientConfig
	for _, o := range opts {
		o(&cfg)
	}

	if cfg.auditLogPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("phasegate: determine home directory: %w", err)
		}
		cfg.auditLogPath = filepath.Join(home, ".phasegate", "audit.jsonl")
	}

	engine, err := guard.New(guard.Config{
		WorkflowPath:  cfg.workflowPath,
		AuditLogPath:  cfg.auditLogPath,
		SigningSecret: cfg.signingSecret,
		Store:         cfg.store,
		Logger:        cfg.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("phasegate: %w", err)
	}
	return &Client{engine: engine}, nil
}

// Close flushes and closes the audit log.
func (c *Client) Close() error {
	return c.engine.Close()
}

// Claim registers a task in the workflow's first phase and returns a
// session holding its phase token.
func (c *Client) Claim(taskID, agentID string) (*Session, error) {
	res, err := c.engine.ClaimTask(taskID, agentID)
	if err != nil {
		return nil, fmt.Errorf("phasegate: %w", err)
	}
	return &Session{
		client: c,
		taskID: res.Task.ID,
		phase:  res.Task.Phase,
		token:  res.Token,
	}, nil
}

// Session is one claimed task. The session tracks the current phase
// token; a granted transition replaces it in place.
type Session struct {
	client *Client
	mu     sync.Mutex
	taskID string
	phase  string
	token  string
}

// TaskID returns the claimed task's identifier.
func (s *Session) TaskID() string {
	return s.taskID
}

// Phase returns the phase of the last issued token.
func (s *Session) Phase() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Token returns the current phase token, for callers that talk to the
// enforcement surface out-of-process.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// CheckTool evaluates one tool call against the current phase policy.
// The decision is audited either way.
func (s *Session) CheckTool(tool string) (Decision, error) {
	s.mu.Lock()
	tok := s.token
	s.mu.Unlock()

	d, err := s.client.engine.CheckTool(tok, tool)
	out := Decision{Allowed: d.Allowed, Reason: d.Reason, Phase: d.Phase, Tool: d.Tool}
	if err != nil {
		return out, fmt.Errorf("phasegate: %w", err)
	}
	return out, nil
}

// Transition requests a phase change. On success the session's token
// is replaced with one scoped to the new phase.
func (s *Session) Transition(req TransitionRequest) error {
	s.mu.Lock()
	tok := s.token
	s.mu.Unlock()

	res, err := s.client.engine.RequestTransition(gate.Request{
		Token:        tok,
		TaskID:       s.taskID,
		TargetPhase:  req.TargetPhase,
		Artifacts:    req.Artifacts,
		Attestations: req.Attestations,
		Skips:        req.Skips,
	})
	if err != nil {
		var blocked *gate.BlockedError
		if errors.As(err, &blocked) {
			return &TransitionBlockedError{
				From:     blocked.From,
				To:       blocked.To,
				Blockers: toBlockers(blocked.Blockers),
				inner:    blocked,
			}
		}
		return fmt.Errorf("phasegate: %w", err)
	}

	s.mu.Lock()
	s.phase = res.Task.Phase
	s.token = res.NewToken
	s.mu.Unlock()
	return nil
}

// Abandon marks the task abandoned and invalidates the session for
// further transitions.
func (s *Session) Abandon() error {
	s.mu.Lock()
	tok := s.token
	s.mu.Unlock()

	if _, err := s.client.engine.Abandon(tok, s.taskID); err != nil {
		return fmt.Errorf("phasegate: %w", err)
	}
	return nil
}

// Status returns the stored task state.
func (s *Session) Status() (*model.Task, error) {
	return s.client.engine.Status(s.taskID)
}
