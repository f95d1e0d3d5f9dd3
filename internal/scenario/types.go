package scenario

// Case is one tool-policy expectation within a scenario.
type Case struct {
	Phase  string `yaml:"phase"`
	Tool   string `yaml:"tool"`
	Expect string `yaml:"expect"`
}

// Scenario is a named collection of tool-policy test cases, run
// against a workflow definition without tokens or audit entries.
type Scenario struct {
	Name     string `yaml:"name"`
	Workflow string `yaml:"workflow,omitempty"`
	Cases    []Case `yaml:"cases"`
}

// CaseResult is the outcome of evaluating one test case.
type CaseResult struct {
	Index    int    `json:"index"`
	Passed   bool   `json:"passed"`
	Phase    string `json:"phase"`
	Tool     string `json:"tool"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Reason   string `json:"reason"`
}

// RunResult is the outcome of running all cases in one scenario file.
type RunResult struct {
	File   string       `json:"file"`
	Name   string       `json:"name"`
	Total  int          `json:"total"`
	Passed int          `json:"passed"`
	Failed int          `json:"failed"`
	Cases  []CaseResult `json:"cases"`
}
