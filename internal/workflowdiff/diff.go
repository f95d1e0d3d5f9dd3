// Package workflowdiff compares two workflow definitions and reports
// what a change would tighten or loosen, so a reviewer sees the
// enforcement consequences before deploying the new file.
package workflowdiff

import (
	"fmt"
	"sort"

	"github.com/ppiankov/phasegate/internal/workflow"
)

// Change represents a scalar field change.
type Change struct {
	Field   string `json:"field"`
	Old     string `json:"old"`
	New     string `json:"new"`
	Comment string `json:"comment,omitempty"`
}

// PhaseChange represents a phase addition, removal, or modification.
type PhaseChange struct {
	Type  string `json:"type"` // "added", "removed", "changed"
	Phase string `json:"phase"`
	// Detail names what changed inside the phase, tool by tool.
	Detail []string `json:"detail,omitempty"`
}

// TransitionChange represents a transition addition or removal.
type TransitionChange struct {
	Type       string `json:"type"` // "added", "removed"
	Transition string `json:"transition"`
}

// DiffResult holds the comparison of two workflow definitions.
type DiffResult struct {
	OldPath     string             `json:"old_path"`
	NewPath     string             `json:"new_path"`
	Changes     []Change           `json:"changes"`
	Phases      []PhaseChange      `json:"phase_changes"`
	Transitions []TransitionChange `json:"transition_changes"`
	HasChanges  bool               `json:"has_changes"`
}

// Diff compares two definitions and returns the differences.
func Diff(oldDef, newDef *workflow.Definition) *DiffResult {
	r := &DiffResult{}

	if oldDef.Mode != newDef.Mode {
		r.Changes = append(r.Changes, Change{
			Field:   "enforcement.mode",
			Old:     string(oldDef.Mode),
			New:     string(newDef.Mode),
			Comment: modeComment(oldDef.Mode, newDef.Mode),
		})
	}
	if oldDef.TokensEnabled != newDef.TokensEnabled {
		comment := "looser"
		if newDef.TokensEnabled {
			comment = "stricter"
		}
		r.Changes = append(r.Changes, Change{
			Field:   "enforcement.phase_tokens.enabled",
			Old:     fmt.Sprintf("%t", oldDef.TokensEnabled),
			New:     fmt.Sprintf("%t", newDef.TokensEnabled),
			Comment: comment,
		})
	}
	if oldDef.TokenExpiry != newDef.TokenExpiry {
		comment := "looser"
		if newDef.TokenExpiry < oldDef.TokenExpiry {
			comment = "stricter"
		}
		r.Changes = append(r.Changes, Change{
			Field:   "enforcement.phase_tokens.expiry_seconds",
			Old:     fmt.Sprintf("%d", int(oldDef.TokenExpiry.Seconds())),
			New:     fmt.Sprintf("%d", int(newDef.TokenExpiry.Seconds())),
			Comment: comment,
		})
	}

	diffPhases(r, oldDef, newDef)
	diffTransitions(r, oldDef, newDef)

	r.HasChanges = len(r.Changes) > 0 || len(r.Phases) > 0 || len(r.Transitions) > 0
	return r
}

func modeComment(old, new workflow.EnforcementMode) string {
	rank := map[workflow.EnforcementMode]int{
		workflow.ModeAuditOnly:  0,
		workflow.ModePermissive: 1,
		workflow.ModeStrict:     2,
	}
	if rank[new] > rank[old] {
		return "stricter"
	}
	return "looser"
}

func diffPhases(r *DiffResult, oldDef, newDef *workflow.Definition) {
	oldIDs := oldDef.PhaseIDs()
	newIDs := newDef.PhaseIDs()
	newSet := make(map[string]struct{}, len(newIDs))
	for _, id := range newIDs {
		newSet[id] = struct{}{}
	}

	for _, id := range oldIDs {
		if _, ok := newSet[id]; !ok {
			r.Phases = append(r.Phases, PhaseChange{Type: "removed", Phase: id})
		}
	}
	oldSet := make(map[string]struct{}, len(oldIDs))
	for _, id := range oldIDs {
		oldSet[id] = struct{}{}
	}
	for _, id := range newIDs {
		if _, ok := oldSet[id]; !ok {
			r.Phases = append(r.Phases, PhaseChange{Type: "added", Phase: id})
			continue
		}
		oldPhase, _ := oldDef.Phase(id)
		newPhase, _ := newDef.Phase(id)
		if detail := diffPhase(oldPhase, newPhase); len(detail) > 0 {
			r.Phases = append(r.Phases, PhaseChange{Type: "changed", Phase: id, Detail: detail})
		}
	}
}

// diffPhase reports tool, artifact, and gate-shape differences between
// two versions of the same phase.
func diffPhase(oldPhase, newPhase *workflow.Phase) []string {
	var detail []string

	detail = append(detail, diffToolSet("allowed", oldPhase.AllowedTools(), newPhase.AllowedTools())...)
	detail = append(detail, diffToolSet("forbidden", oldPhase.ForbiddenTools(), newPhase.ForbiddenTools())...)

	if oldPhase.Terminal != newPhase.Terminal {
		detail = append(detail, fmt.Sprintf("terminal: %t -> %t", oldPhase.Terminal, newPhase.Terminal))
	}

	oldArts := artifactTypes(oldPhase)
	newArts := artifactTypes(newPhase)
	for _, t := range missingFrom(oldArts, newArts) {
		detail = append(detail, fmt.Sprintf("required artifact %q removed (looser)", t))
	}
	for _, t := range missingFrom(newArts, oldArts) {
		detail = append(detail, fmt.Sprintf("required artifact %q added (stricter)", t))
	}

	oldGates := gateIDs(oldPhase)
	newGates := gateIDs(newPhase)
	for _, g := range missingFrom(oldGates, newGates) {
		detail = append(detail, fmt.Sprintf("gate %q removed (looser)", g))
	}
	for _, g := range missingFrom(newGates, oldGates) {
		detail = append(detail, fmt.Sprintf("gate %q added (stricter)", g))
	}

	return detail
}

func diffToolSet(list string, oldTools, newTools []string) []string {
	var detail []string
	// Removing from an allowlist tightens; removing from a denylist
	// loosens.
	removedComment, addedComment := "stricter", "looser"
	if list == "forbidden" {
		removedComment, addedComment = "looser", "stricter"
	}
	for _, t := range missingFrom(oldTools, newTools) {
		detail = append(detail, fmt.Sprintf("%s tool %q removed (%s)", list, t, removedComment))
	}
	for _, t := range missingFrom(newTools, oldTools) {
		detail = append(detail, fmt.Sprintf("%s tool %q added (%s)", list, t, addedComment))
	}
	return detail
}

func diffTransitions(r *DiffResult, oldDef, newDef *workflow.Definition) {
	oldKeys := transitionKeys(oldDef)
	newKeys := transitionKeys(newDef)
	for _, k := range missingFrom(oldKeys, newKeys) {
		r.Transitions = append(r.Transitions, TransitionChange{Type: "removed", Transition: k})
	}
	for _, k := range missingFrom(newKeys, oldKeys) {
		r.Transitions = append(r.Transitions, TransitionChange{Type: "added", Transition: k})
	}
}

func transitionKeys(def *workflow.Definition) []string {
	var keys []string
	for _, t := range def.Transitions() {
		keys = append(keys, t.From+" -> "+t.To)
	}
	return keys
}

func artifactTypes(p *workflow.Phase) []string {
	var out []string
	for _, a := range p.RequiredArtifacts {
		out = append(out, a.Type)
	}
	sort.Strings(out)
	return out
}

func gateIDs(p *workflow.Phase) []string {
	var out []string
	for _, g := range p.Gates {
		out = append(out, g.ID)
	}
	sort.Strings(out)
	return out
}

// missingFrom returns the members of a not present in b, sorted.
func missingFrom(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, s := range b {
		set[s] = struct{}{}
	}
	var out []string
	for _, s := range a {
		if _, ok := set[s]; !ok {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
