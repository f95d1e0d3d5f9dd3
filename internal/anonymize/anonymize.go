// Package anonymize transforms audit and usage records into a redacted
// form safe for cross-installation aggregation.
//
// It keeps an allowlist, not a denylist: only explicitly enumerated
// fields survive, so a field added by a future schema change is dropped
// by default instead of leaking.
package anonymize

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// hashedIDLength truncates identifier hashes so they correlate within
// an installation without being reversible via rainbow tables.
const hashedIDLength = 16

// scalarFields pass through unchanged when their value is a plain
// scalar. Nested values under these keys are dropped, not copied.
var scalarFields = map[string]struct{}{
	"timestamp":  {},
	"action":     {},
	"outcome":    {},
	"seq":        {},
	"elapsed_ms": {},
	"tool_calls": {},
	"denials":    {},
	"transition": {},
}

// hashedFields carry identifiers used for cross-record correlation.
// Values are replaced with a salted, truncated hash.
var hashedFields = map[string]struct{}{
	"actor":    {},
	"task_id":  {},
	"agent_id": {},
	"workflow": {},
}

// Anonymizer redacts records using an installation-specific salt and
// the set of phase ids declared by the loaded workflow.
type Anonymizer struct {
	salt   []byte
	phases map[string]struct{}
}

// New creates an Anonymizer. The salt must be non-empty: unsalted
// hashes of short identifiers are trivially reversible.
func New(salt []byte, phaseIDs []string) (*Anonymizer, error) {
	if len(salt) == 0 {
		return nil, errors.New("anonymize: salt must not be empty")
	}
	phases := make(map[string]struct{}, len(phaseIDs))
	for _, id := range phaseIDs {
		phases[strings.ToLower(id)] = struct{}{}
	}
	return &Anonymizer{salt: salt, phases: phases}, nil
}

// Anonymize returns a redacted copy of the record. The input is never
// mutated and no references are shared with the result.
func (a *Anonymizer) Anonymize(record map[string]any) map[string]any {
	out := make(map[string]any, len(record))
	for key, value := range record {
		k := strings.ToLower(key)

		if _, ok := scalarFields[k]; ok {
			if isScalar(value) {
				out[k] = value
			}
			continue
		}

		if _, ok := hashedFields[k]; ok {
			if s, ok := value.(string); ok && s != "" {
				out[k] = a.HashID(s)
			}
			continue
		}

		if k == "phases" {
			if filtered := a.filterPhases(value); len(filtered) > 0 {
				out[k] = filtered
			}
			continue
		}

		// Not on the allowlist: dropped, whatever it is.
	}
	return out
}

// HashID returns the salted, truncated hash of an identifier. The
// same id with the same salt always maps to the same value.
func (a *Anonymizer) HashID(id string) string {
	h := sha256.New()
	h.Write(a.salt)
	h.Write([]byte(id))
	return hex.EncodeToString(h.Sum(nil))[:hashedIDLength]
}

// filterPhases validates a phase-keyed map per field: only keys naming
// a declared phase survive (case-insensitive), and only with numeric
// values. Arbitrary user content smuggled in as a map key is dropped.
func (a *Anonymizer) filterPhases(value any) map[string]any {
	m, ok := value.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]any, len(m))
	for key, v := range m {
		k := strings.ToLower(key)
		if _, known := a.phases[k]; !known {
			continue
		}
		if !isNumeric(v) {
			continue
		}
		out[k] = v
	}
	return out
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool, int, int32, int64, float32, float64:
		return true
	default:
		return false
	}
}

func isNumeric(v any) bool {
	switch v.(type) {
	case int, int32, int64, float32, float64:
		return true
	default:
		return false
	}
}
