package workflow

// DefaultYAML is the built-in workflow definition, also emitted by
// `phasegate init-workflow` as a commented starting point.
const DefaultYAML = `# phasegate workflow definition
# Generated by: phasegate init-workflow
#
# Phases are evaluated with exact tool-name matching (case-insensitive).
# A tool in forbidden_tools always wins over allowed_tools. Tools in
# neither list are denied in strict mode.
name: default-coding-workflow
version: "1"

phases:
  - id: PLAN
    name: Planning
    allowed_tools: [read_file, search, list_files]
    forbidden_tools: [write_file, run_command, git_push]
    gates:
      - id: plan_approval
        type: validation
        blockers:
          - check: acceptance_criteria_present
            severity: blocking
            message: plan must contain at least one acceptance criterion
          - check: open_questions_resolved
            severity: warning
            message: unresolved open questions in plan
            skippable: true

  - id: TDD
    name: Test-first development
    allowed_tools: [read_file, search, list_files, write_file, run_tests]
    forbidden_tools: [git_push]
    required_artifacts:
      - type: plan_document
        schema: plan_document
    gates:
      - id: tests_written
        type: validation
        blockers:
          - check: failing_tests_present
            severity: blocking
            message: at least one failing test must exist before implementation

  - id: IMPL
    name: Implementation
    allowed_tools: [read_file, search, list_files, write_file, run_tests, run_command]
    forbidden_tools: [git_push]
    required_artifacts:
      - type: test_report
        schema: test_report
    gates:
      - id: impl_complete
        type: validation
        blockers:
          - check: tests_passing
            severity: blocking
            message: full test suite must pass
          - check: lint_clean
            severity: warning
            message: lint warnings outstanding
            skippable: true

  - id: REVIEW
    name: Review and handoff
    terminal: true
    allowed_tools: [read_file, search, list_files, git_push]
    forbidden_tools: [write_file, run_command]
    required_artifacts:
      - type: test_report
        schema: test_report

transitions:
  - from: PLAN
    to: TDD
    gate: plan_approval
  - from: TDD
    to: IMPL
    gate: tests_written
  - from: IMPL
    to: REVIEW
    gate: impl_complete

enforcement:
  mode: strict
  phase_tokens:
    enabled: true
    expiry_seconds: 7200
    secret: env:PHASEGATE_SIGNING_SECRET

artifact_schemas:
  plan_document:
    type: object
    required: [acceptance_criteria]
    properties:
      acceptance_criteria:
        type: array
        minItems: 1
        items:
          type: string
      open_questions:
        type: array
        items:
          type: string
  test_report:
    type: object
    required: [total, failed]
    properties:
      total:
        type: integer
        minimum: 0
      failed:
        type: integer
        minimum: 0
`

// Default returns the built-in workflow definition.
func Default() *Definition {
	d, err := Parse([]byte(DefaultYAML))
	if err != nil {
		panic("workflow: built-in default definition is invalid: " + err.Error())
	}
	return d
}
