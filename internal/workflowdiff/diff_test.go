package workflowdiff

import (
	"strings"
	"testing"

	"github.com/ppiankov/phasegate/internal/workflow"
)

const baseYAML = `
name: diff-test
phases:
  - id: PLAN
    allowed_tools: [read_file, search]
  - id: IMPL
    allowed_tools: [read_file, write_file]
    forbidden_tools: [deploy]
transitions:
  - from: PLAN
    to: IMPL
enforcement:
  mode: strict
  phase_tokens:
    expiry_seconds: 7200
`

func parse(t *testing.T, yaml string) *workflow.Definition {
	t.Helper()
	def, err := workflow.Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return def
}

func TestDiffIdentical(t *testing.T) {
	old := parse(t, baseYAML)
	new := parse(t, baseYAML)

	r := Diff(old, new)
	if r.HasChanges {
		t.Fatalf("identical definitions must not diff: %+v", r)
	}
	if !strings.Contains(FormatText(r), "No changes detected") {
		t.Fatal("text output should say no changes")
	}
}

func TestDiffModeChange(t *testing.T) {
	old := parse(t, baseYAML)
	new := parse(t, strings.Replace(baseYAML, "mode: strict", "mode: permissive", 1))

	r := Diff(old, new)
	if len(r.Changes) != 1 {
		t.Fatalf("expected one scalar change, got %+v", r.Changes)
	}
	c := r.Changes[0]
	if c.Field != "enforcement.mode" || c.Comment != "looser" {
		t.Fatalf("unexpected change %+v", c)
	}
}

func TestDiffExpiryTightening(t *testing.T) {
	old := parse(t, baseYAML)
	new := parse(t, strings.Replace(baseYAML, "expiry_seconds: 7200", "expiry_seconds: 600", 1))

	r := Diff(old, new)
	if len(r.Changes) != 1 || r.Changes[0].Comment != "stricter" {
		t.Fatalf("shorter expiry should read stricter: %+v", r.Changes)
	}
}

func TestDiffToolChanges(t *testing.T) {
	old := parse(t, baseYAML)
	new := parse(t, strings.Replace(baseYAML,
		"allowed_tools: [read_file, search]",
		"allowed_tools: [read_file]", 1))

	r := Diff(old, new)
	if len(r.Phases) != 1 {
		t.Fatalf("expected one phase change, got %+v", r.Phases)
	}
	pc := r.Phases[0]
	if pc.Type != "changed" || pc.Phase != "PLAN" {
		t.Fatalf("unexpected phase change %+v", pc)
	}
	if len(pc.Detail) != 1 || !strings.Contains(pc.Detail[0], `"search" removed (stricter)`) {
		t.Fatalf("unexpected detail %v", pc.Detail)
	}
}

func TestDiffForbiddenRemovalIsLooser(t *testing.T) {
	old := parse(t, baseYAML)
	new := parse(t, strings.Replace(baseYAML, "    forbidden_tools: [deploy]\n", "", 1))

	r := Diff(old, new)
	if len(r.Phases) != 1 {
		t.Fatalf("expected one phase change, got %+v", r.Phases)
	}
	if !strings.Contains(r.Phases[0].Detail[0], `forbidden tool "deploy" removed (looser)`) {
		t.Fatalf("unexpected detail %v", r.Phases[0].Detail)
	}
}

func TestDiffPhaseAndTransition(t *testing.T) {
	extended := strings.Replace(baseYAML,
		"transitions:",
		"  - id: REVIEW\n    allowed_tools: [read_file]\ntransitions:", 1)
	extended = strings.Replace(extended,
		"  - from: PLAN\n    to: IMPL",
		"  - from: PLAN\n    to: IMPL\n  - from: IMPL\n    to: REVIEW", 1)

	r := Diff(parse(t, baseYAML), parse(t, extended))

	var phaseAdded, transitionAdded bool
	for _, pc := range r.Phases {
		if pc.Type == "added" && pc.Phase == "REVIEW" {
			phaseAdded = true
		}
	}
	for _, tc := range r.Transitions {
		if tc.Type == "added" && tc.Transition == "IMPL -> REVIEW" {
			transitionAdded = true
		}
	}
	if !phaseAdded || !transitionAdded {
		t.Fatalf("expected added phase and transition: %+v", r)
	}

	out := FormatText(r)
	if !strings.Contains(out, "+ REVIEW") || !strings.Contains(out, "+ IMPL -> REVIEW") {
		t.Fatalf("text output missing additions:\n%s", out)
	}
}
