package scenario

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ppiankov/phasegate/internal/workflow"
)

const scenarioWorkflow = `
name: scenario-test
phases:
  - id: PLAN
    allowed_tools: [read_file, search]
    forbidden_tools: [deploy]
  - id: IMPL
    allowed_tools: [read_file, write_file, run_command]
transitions:
  - from: PLAN
    to: IMPL
enforcement:
  mode: strict
`

func testDefinition(t *testing.T) *workflow.Definition {
	t.Helper()
	def, err := workflow.Parse([]byte(scenarioWorkflow))
	if err != nil {
		t.Fatalf("parse workflow: %v", err)
	}
	return def
}

func TestRunAllPass(t *testing.T) {
	def := testDefinition(t)
	s := &Scenario{
		Name: "plan policy",
		Cases: []Case{
			{Phase: "PLAN", Tool: "read_file", Expect: "allow"},
			{Phase: "PLAN", Tool: "write_file", Expect: "deny"},
			{Phase: "PLAN", Tool: "deploy", Expect: "deny"},
			{Phase: "IMPL", Tool: "run_command", Expect: "allow"},
		},
	}

	r := Run(s, def)
	if r.Failed != 0 || r.Passed != 4 {
		t.Fatalf("expected 4/4 pass, got %+v", r)
	}
}

func TestRunReportsMismatch(t *testing.T) {
	def := testDefinition(t)
	s := &Scenario{
		Name: "wrong expectation",
		Cases: []Case{
			{Phase: "PLAN", Tool: "write_file", Expect: "allow"},
		},
	}

	r := Run(s, def)
	if r.Failed != 1 {
		t.Fatalf("expected one failure, got %+v", r)
	}
	c := r.Cases[0]
	if c.Actual != "deny" || c.Expected != "allow" || c.Passed {
		t.Fatalf("unexpected case result %+v", c)
	}
	if c.Reason == "" {
		t.Fatal("case result should carry the policy reason")
	}
}

func TestRunUnknownPhaseDenies(t *testing.T) {
	def := testDefinition(t)
	r := Run(&Scenario{
		Name:  "unknown phase",
		Cases: []Case{{Phase: "SHIP", Tool: "read_file", Expect: "deny"}},
	}, def)
	if r.Passed != 1 {
		t.Fatalf("unknown phase should evaluate as deny: %+v", r)
	}
}

func TestLoadAndRun(t *testing.T) {
	dir := t.TempDir()
	wfPath := filepath.Join(dir, "workflow.yaml")
	if err := os.WriteFile(wfPath, []byte(scenarioWorkflow), 0o644); err != nil {
		t.Fatal(err)
	}

	scenarioYAML := `
name: roundtrip
cases:
  - phase: PLAN
    tool: read_file
    expect: allow
  - phase: PLAN
    tool: Write_File
    expect: deny
`
	scPath := filepath.Join(dir, "plan.yaml")
	if err := os.WriteFile(scPath, []byte(scenarioYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := LoadAndRun(scPath, wfPath)
	if err != nil {
		t.Fatalf("load and run: %v", err)
	}
	if r.Failed != 0 || r.Total != 2 {
		t.Fatalf("unexpected result %+v", r)
	}
	if r.File != scPath {
		t.Fatalf("result should carry the file path, got %q", r.File)
	}
}

func TestLoadAndRunEmptyScenario(t *testing.T) {
	dir := t.TempDir()
	scPath := filepath.Join(dir, "empty.yaml")
	if err := os.WriteFile(scPath, []byte("name: empty\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadAndRun(scPath, ""); err == nil || !strings.Contains(err.Error(), "no cases") {
		t.Fatalf("expected no-cases error, got %v", err)
	}
}

func TestFormatTextSummarizes(t *testing.T) {
	results := []*RunResult{
		{Name: "ok", Total: 2, Passed: 2},
		{Name: "bad", Total: 1, Failed: 1, Cases: []CaseResult{
			{Index: 1, Phase: "PLAN", Tool: "deploy", Expected: "allow", Actual: "deny"},
		}},
	}

	out := FormatText(results)
	for _, want := range []string{"PASS  ok", "FAIL  bad", "expected allow, got deny", "2 of 3 cases passed"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}
