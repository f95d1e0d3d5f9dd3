// Package workflow loads and validates declarative workflow definitions.
// A Definition is immutable after load; policy changes come in as a fresh
// Definition swapped atomically by the caller, never by mutation.
package workflow

import (
	"sort"
	"strings"
	"time"

	"github.com/ppiankov/phasegate/internal/artifact"
)

// EnforcementMode controls how tool decisions are applied.
type EnforcementMode string

const (
	ModeStrict     EnforcementMode = "strict"
	ModePermissive EnforcementMode = "permissive"
	ModeAuditOnly  EnforcementMode = "audit-only"
)

// GateType distinguishes human approval gates from automatic validation gates.
type GateType string

const (
	GateApproval   GateType = "approval"
	GateValidation GateType = "validation"
)

// Severity determines whether a failing blocker stops a transition.
type Severity string

const (
	SeverityBlocking Severity = "blocking"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Blocker is one named check inside a gate.
type Blocker struct {
	Check     string
	Severity  Severity
	Message   string
	Skippable bool
}

// Gate guards a transition between phases.
type Gate struct {
	ID       string
	Type     GateType
	Blockers []Blocker
}

// ArtifactRequirement names an artifact type a phase demands on entry,
// together with the schema it must validate against.
type ArtifactRequirement struct {
	Type      string
	SchemaRef string
}

// Phase is a named workflow stage with its own tool policy.
type Phase struct {
	ID                string
	Name              string
	Terminal          bool
	RequiredArtifacts []ArtifactRequirement
	Gates             []*Gate

	allowed   map[string]struct{}
	forbidden map[string]struct{}
}

// ToolAllowed reports whether the tool is in the phase allowlist.
func (p *Phase) ToolAllowed(tool string) bool {
	_, ok := p.allowed[CanonicalTool(tool)]
	return ok
}

// ToolForbidden reports whether the tool is in the phase denylist.
// Forbidden always wins over allowed.
func (p *Phase) ToolForbidden(tool string) bool {
	_, ok := p.forbidden[CanonicalTool(tool)]
	return ok
}

// AllowedTools returns the canonical allowlist, for reporting.
func (p *Phase) AllowedTools() []string {
	out := make([]string, 0, len(p.allowed))
	for t := range p.allowed {
		out = append(out, t)
	}
	return out
}

// ForbiddenTools returns the canonical denylist, for reporting.
func (p *Phase) ForbiddenTools() []string {
	out := make([]string, 0, len(p.forbidden))
	for t := range p.forbidden {
		out = append(out, t)
	}
	return out
}

// Transition is a permitted phase change guarded by a gate.
type Transition struct {
	From          string
	To            string
	GateID        string
	RequiresToken bool
}

// Definition is a fully validated workflow. All lookups are read-only
// and safe for concurrent use without locking.
type Definition struct {
	Name          string
	Version       string
	Hash          string
	Mode          EnforcementMode
	TokensEnabled bool
	TokenExpiry   time.Duration
	SecretRef     string

	order       []string
	phases      map[string]*Phase
	gates       map[string]*Gate
	transitions map[string]*Transition
	schemas     map[string]*artifact.Schema
}

// Phase returns the phase with the given id.
func (d *Definition) Phase(id string) (*Phase, bool) {
	p, ok := d.phases[id]
	return p, ok
}

// FirstPhase returns the initial phase of the workflow.
func (d *Definition) FirstPhase() *Phase {
	return d.phases[d.order[0]]
}

// Phases returns the phases in declaration order.
func (d *Definition) Phases() []*Phase {
	out := make([]*Phase, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.phases[id])
	}
	return out
}

// PhaseIDs returns the declared phase ids in order.
func (d *Definition) PhaseIDs() []string {
	return append([]string(nil), d.order...)
}

// Transition returns the declared transition from one phase to another.
func (d *Definition) Transition(from, to string) (*Transition, bool) {
	t, ok := d.transitions[transitionKey(from, to)]
	return t, ok
}

// Transitions returns every declared transition, ordered by source
// then target phase.
func (d *Definition) Transitions() []*Transition {
	out := make([]*Transition, 0, len(d.transitions))
	for _, t := range d.transitions {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

// Gate returns the gate with the given id.
func (d *Definition) Gate(id string) (*Gate, bool) {
	g, ok := d.gates[id]
	return g, ok
}

// Schema returns the compiled artifact schema for a reference.
func (d *Definition) Schema(ref string) (*artifact.Schema, bool) {
	s, ok := d.schemas[ref]
	return s, ok
}

// CanonicalTool normalizes a tool identifier for exact set membership.
// Matching is never prefix-based: "Read" and "ReadFile" are distinct tools.
func CanonicalTool(tool string) string {
	return strings.ToLower(strings.TrimSpace(tool))
}

func transitionKey(from, to string) string {
	return from + "\x00" + to
}
