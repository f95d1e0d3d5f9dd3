// Package guard wires the workflow definition, token authority,
// enforcer, and gate evaluator into one engine behind an atomically
// swappable policy snapshot. Hot reload replaces the whole snapshot;
// in-flight requests finish against the definition they started with.
package guard

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/phasegate/internal/audit"
	"github.com/ppiankov/phasegate/internal/enforcer"
	"github.com/ppiankov/phasegate/internal/gate"
	"github.com/ppiankov/phasegate/internal/model"
	"github.com/ppiankov/phasegate/internal/secret"
	"github.com/ppiankov/phasegate/internal/taskstore"
	"github.com/ppiankov/phasegate/internal/token"
	"github.com/ppiankov/phasegate/internal/workflow"
)

// Config holds engine configuration.
type Config struct {
	// WorkflowPath is the definition file. Empty selects the built-in
	// default workflow.
	WorkflowPath string
	AuditLogPath string
	// SigningSecret overrides the definition's secret reference.
	// Mainly for tests; production deployments declare the reference
	// in the workflow file.
	SigningSecret []byte
	Store         taskstore.Store
	Logger        *zap.Logger
}

// snapshot is one immutable policy generation. Swapped as a unit so a
// definition and the authority verifying its tokens never drift apart.
type snapshot struct {
	def       *workflow.Definition
	authority *token.Authority
	enforcer  *enforcer.Enforcer
	evaluator *gate.Evaluator
}

// Engine is the single entry point for claim, tool-check, transition,
// and abandon operations.
type Engine struct {
	cfg   Config
	state atomic.Pointer[snapshot]
	tasks taskstore.Store
	log   *audit.Log
	lg    *zap.Logger

	reloadMu sync.Mutex
}

// New loads the workflow, opens the audit log, and builds the engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		cfg.Store = taskstore.NewMemoryStore()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.AuditLogPath == "" {
		return nil, errors.New("guard: audit log path is required")
	}

	log, err := audit.Open(cfg.AuditLogPath)
	if err != nil {
		return nil, err
	}

	e := &Engine{cfg: cfg, tasks: cfg.Store, log: log, lg: cfg.Logger}

	def, err := workflow.Load(cfg.WorkflowPath)
	if err != nil {
		log.Close()
		return nil, err
	}
	snap, err := e.buildSnapshot(def)
	if err != nil {
		log.Close()
		return nil, err
	}
	e.state.Store(snap)

	e.lg.Info("workflow loaded",
		zap.String("workflow", def.Name),
		zap.String("hash", def.Hash),
		zap.Int("phases", len(def.PhaseIDs())),
		zap.String("mode", string(def.Mode)))
	return e, nil
}

// buildSnapshot resolves the signing secret and constructs the
// per-definition components.
func (e *Engine) buildSnapshot(def *workflow.Definition) (*snapshot, error) {
	key := e.cfg.SigningSecret
	if len(key) == 0 && def.SecretRef != "" {
		resolved, err := secret.Resolve(def.SecretRef)
		if err != nil {
			if def.TokensEnabled {
				return nil, fmt.Errorf("guard: resolve signing secret: %w", err)
			}
		} else {
			key = resolved
		}
	}
	if len(key) == 0 {
		if def.TokensEnabled {
			return nil, errors.New("guard: phase tokens enabled but no signing secret configured")
		}
		// Tokens are off; the authority still backs internal paths.
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, err
		}
	}

	authority, err := token.New(key, def.TokenExpiry)
	if err != nil {
		return nil, err
	}
	return &snapshot{
		def:       def,
		authority: authority,
		enforcer:  enforcer.New(authority, e.log),
		evaluator: gate.New(authority, e.tasks, e.log),
	}, nil
}

// Definition returns the current policy snapshot's definition.
func (e *Engine) Definition() *workflow.Definition {
	return e.state.Load().def
}

// ClaimResult is a freshly claimed task and its entry token.
type ClaimResult struct {
	Task  *model.Task `json:"task"`
	Token string      `json:"token,omitempty"`
}

// ClaimTask registers a task in the workflow's first phase and issues
// its entry token. An empty taskID gets a generated one.
func (e *Engine) ClaimTask(taskID, agentID string) (*ClaimResult, error) {
	if agentID == "" {
		return nil, errors.New("guard: agent id is required")
	}
	if taskID == "" {
		taskID = uuid.NewString()
	}

	snap := e.state.Load()
	entry := snap.def.FirstPhase()

	if existing, err := e.tasks.Get(taskID); err == nil && !existing.Status.Terminal() {
		return nil, fmt.Errorf("guard: task %q already claimed by %q", taskID, existing.AgentID)
	}

	now := time.Now().UTC()
	task, err := e.tasks.Put(&model.Task{
		ID:        taskID,
		AgentID:   agentID,
		Phase:     entry.ID,
		Status:    model.StatusClaimed,
		ClaimedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return nil, err
	}

	if _, err := e.log.Append(audit.Entry{
		Actor:   agentID,
		Action:  audit.ActionTaskClaimed,
		Outcome: audit.OutcomeGranted,
		Context: map[string]any{"task_id": taskID, "phase": entry.ID, "workflow": snap.def.Name},
	}); err != nil {
		return nil, err
	}

	var tok string
	if snap.def.TokensEnabled {
		tok, err = snap.authority.Issue(taskID, entry.ID)
		if err != nil {
			return nil, err
		}
		if _, err := e.log.Append(audit.Entry{
			Actor:   taskID,
			Action:  audit.ActionTokenIssued,
			Outcome: audit.OutcomeIssued,
			Context: map[string]any{"phase": entry.ID},
		}); err != nil {
			return nil, err
		}
	}

	e.lg.Info("task claimed",
		zap.String("task_id", taskID),
		zap.String("agent_id", agentID),
		zap.String("phase", entry.ID))
	return &ClaimResult{Task: task, Token: tok}, nil
}

// CheckTool decides whether the token's phase permits the tool. The
// decision is audited before it is returned.
func (e *Engine) CheckTool(tok, tool string) (enforcer.Decision, error) {
	snap := e.state.Load()
	return snap.enforcer.Check(snap.def, tok, tool)
}

// RequestTransition evaluates a gate and, on success, advances the
// task and mints the next phase token.
func (e *Engine) RequestTransition(req gate.Request) (*gate.Result, error) {
	snap := e.state.Load()
	res, err := snap.evaluator.RequestTransition(snap.def, req)
	if err == nil {
		e.lg.Info("transition granted",
			zap.String("task_id", res.Task.ID),
			zap.String("phase", res.Task.Phase))
	}
	return res, err
}

// Status returns the stored task.
func (e *Engine) Status(taskID string) (*model.Task, error) {
	return e.tasks.Get(taskID)
}

// Abandon marks a task abandoned. Its tokens stay verifiable until
// expiry but no transition or claim will accept the task again.
func (e *Engine) Abandon(tok, taskID string) (*model.Task, error) {
	snap := e.state.Load()
	if tok != "" {
		claims, err := snap.authority.Verify(tok, taskID)
		if err != nil {
			return nil, err
		}
		taskID = claims.TaskID
	}
	if taskID == "" {
		return nil, errors.New("guard: abandon requires a token or task id")
	}

	for {
		task, err := e.tasks.Get(taskID)
		if err != nil {
			return nil, err
		}
		if task.Status.Terminal() {
			return nil, fmt.Errorf("guard: task %q is already %s", taskID, task.Status)
		}
		next := task.Clone()
		next.Status = model.StatusAbandoned
		updated, err := e.tasks.CompareAndSwap(next, task.Revision)
		if errors.Is(err, taskstore.ErrRevisionConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if _, err := e.log.Append(audit.Entry{
			Actor:   taskID,
			Action:  audit.ActionTaskAbandoned,
			Outcome: audit.OutcomeGranted,
			Context: map[string]any{"phase": task.Phase},
		}); err != nil {
			return nil, err
		}
		e.lg.Info("task abandoned", zap.String("task_id", taskID))
		return updated, nil
	}
}

// Tasks lists all stored tasks.
func (e *Engine) Tasks() ([]*model.Task, error) {
	return e.tasks.List()
}

// AuditPath returns the audit log location, for verify and export.
func (e *Engine) AuditPath() string {
	return e.log.Path()
}

// Reload re-reads the workflow file and swaps the policy snapshot.
// A definition that fails validation leaves the current one in place.
func (e *Engine) Reload() error {
	e.reloadMu.Lock()
	defer e.reloadMu.Unlock()

	if e.cfg.WorkflowPath == "" {
		return nil
	}
	def, err := workflow.Load(e.cfg.WorkflowPath)
	if err != nil {
		return err
	}
	if def.Hash == e.state.Load().def.Hash {
		return nil
	}
	snap, err := e.buildSnapshot(def)
	if err != nil {
		return err
	}
	e.state.Store(snap)
	e.lg.Info("workflow reloaded",
		zap.String("workflow", def.Name),
		zap.String("hash", def.Hash))
	return nil
}

// Close flushes and closes the audit log.
func (e *Engine) Close() error {
	return e.log.Close()
}
