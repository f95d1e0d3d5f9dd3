// Package scenario runs declarative tool-policy test files against a
// workflow definition, so a policy author can prove enforcement
// behavior before deploying a change.
package scenario

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/phasegate/internal/enforcer"
	"github.com/ppiankov/phasegate/internal/workflow"
)

// Run evaluates all cases in a scenario against the given definition.
// Cases are independent; no task state or audit entries are involved.
func Run(s *Scenario, def *workflow.Definition) *RunResult {
	result := &RunResult{
		Name:  s.Name,
		Total: len(s.Cases),
	}

	for i, c := range s.Cases {
		d := enforcer.Evaluate(def, c.Phase, c.Tool)

		actual := "deny"
		if d.Allowed {
			actual = "allow"
		}
		expected := strings.ToLower(strings.TrimSpace(c.Expect))

		cr := CaseResult{
			Index:    i + 1,
			Phase:    c.Phase,
			Tool:     c.Tool,
			Expected: expected,
			Actual:   actual,
			Reason:   d.Reason,
		}

		if actual == expected {
			cr.Passed = true
			result.Passed++
		} else {
			result.Failed++
		}

		result.Cases = append(result.Cases, cr)
	}

	return result
}

// LoadAndRun loads a scenario YAML file and its workflow, then runs.
// A workflow path given on the command line wins over one named in
// the scenario file.
func LoadAndRun(path, workflowPath string) (*RunResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if len(s.Cases) == 0 {
		return nil, fmt.Errorf("scenario %s has no cases", path)
	}

	wf := workflowPath
	if wf == "" {
		wf = s.Workflow
	}
	def, err := workflow.Load(wf)
	if err != nil {
		return nil, err
	}

	r := Run(&s, def)
	r.File = path
	return r, nil
}
