package gate

import (
	"fmt"
	"strings"
)

// CheckContext is what a builtin blocker check can see: the submitted
// artifacts, keyed by artifact type.
type CheckContext struct {
	Artifacts map[string]map[string]any
}

// CheckFunc evaluates one named gate check. ok=false blocks (subject
// to the blocker's severity); detail explains why.
type CheckFunc func(ctx CheckContext) (ok bool, detail string)

// builtinChecks are the named checks a validation gate may reference.
// A validation-gate blocker naming an unregistered check fails closed.
var builtinChecks = map[string]CheckFunc{
	"acceptance_criteria_present": checkAcceptanceCriteria,
	"open_questions_resolved":     checkOpenQuestions,
	"failing_tests_present":       checkFailingTestsPresent,
	"tests_passing":               checkTestsPassing,
	"lint_clean":                  checkLintClean,
}

func checkAcceptanceCriteria(ctx CheckContext) (bool, string) {
	plan, ok := ctx.Artifacts["plan_document"]
	if !ok {
		return false, "plan_document artifact not submitted"
	}
	criteria, _ := plan["acceptance_criteria"].([]any)
	if len(criteria) == 0 {
		return false, "plan_document has no acceptance criteria"
	}
	return true, ""
}

func checkOpenQuestions(ctx CheckContext) (bool, string) {
	plan, ok := ctx.Artifacts["plan_document"]
	if !ok {
		return true, ""
	}
	open, _ := plan["open_questions"].([]any)
	if len(open) > 0 {
		return false, fmt.Sprintf("%d open question(s) unresolved", len(open))
	}
	return true, ""
}

func checkFailingTestsPresent(ctx CheckContext) (bool, string) {
	report, ok := ctx.Artifacts["test_report"]
	if !ok {
		return false, "test_report artifact not submitted"
	}
	if asInt(report["failed"]) == 0 {
		return false, "no failing tests: write the failing test before implementing"
	}
	return true, ""
}

func checkTestsPassing(ctx CheckContext) (bool, string) {
	report, ok := ctx.Artifacts["test_report"]
	if !ok {
		return false, "test_report artifact not submitted"
	}
	if asInt(report["total"]) == 0 {
		return false, "test_report shows zero tests"
	}
	if failed := asInt(report["failed"]); failed > 0 {
		return false, fmt.Sprintf("%d test(s) failing", failed)
	}
	return true, ""
}

func checkLintClean(ctx CheckContext) (bool, string) {
	report, ok := ctx.Artifacts["test_report"]
	if !ok {
		return true, ""
	}
	if warnings := asInt(report["lint_warnings"]); warnings > 0 {
		return false, fmt.Sprintf("%d lint warning(s) outstanding", warnings)
	}
	return true, ""
}

// asInt coerces JSON/YAML numeric representations.
func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

// minSkipReasonLength is the bar a human-authored skip justification
// must clear after trimming.
const minSkipReasonLength = 20

// placeholderReasons are rejected outright: a "required" gate item may
// not be waved through with a non-justification.
var placeholderReasons = map[string]struct{}{
	"skip": {}, "skipped": {}, "n/a": {}, "na": {}, "none": {},
	"todo": {}, "tbd": {}, "because": {}, "test": {}, "testing": {},
	"not needed": {}, "not applicable": {}, "no reason": {},
}

// validateSkipReason returns a non-empty problem description when the
// reason does not justify skipping a gate item.
func validateSkipReason(reason string) string {
	trimmed := strings.TrimSpace(reason)
	if trimmed == "" {
		return "skip reason is empty"
	}
	if len(trimmed) < minSkipReasonLength {
		return fmt.Sprintf("skip reason too short: %d chars, need at least %d", len(trimmed), minSkipReasonLength)
	}
	if _, bad := placeholderReasons[strings.ToLower(trimmed)]; bad {
		return "skip reason is a placeholder, not a justification"
	}
	if strings.Count(trimmed, string(trimmed[0])) == len(trimmed) {
		return "skip reason is a repeated character, not a justification"
	}
	return ""
}
