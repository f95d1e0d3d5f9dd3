// Package artifact validates transition artifacts against declared
// JSON Schemas. Schemas are compiled once at workflow load and are
// safe for concurrent use.
package artifact

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// Schema is a compiled artifact schema keyed by its reference name.
type Schema struct {
	Ref      string
	resolved *jsonschema.Resolved
}

// ValidationError reports a payload that failed schema validation.
// Gate evaluation treats it as a blocking failure, never a silent skip.
type ValidationError struct {
	Ref    string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("artifact schema %q: %s", e.Ref, e.Reason)
}

// Compile builds a Schema from the raw definition document map.
// The map is round-tripped through JSON because jsonschema speaks JSON
// and the workflow file speaks YAML.
func Compile(ref string, raw map[string]any) (*Schema, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("artifact schema %q is empty", ref)
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("artifact schema %q: marshal: %w", ref, err)
	}

	var js jsonschema.Schema
	if err := json.Unmarshal(data, &js); err != nil {
		return nil, fmt.Errorf("artifact schema %q: parse: %w", ref, err)
	}

	resolved, err := js.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("artifact schema %q: resolve: %w", ref, err)
	}

	return &Schema{Ref: ref, resolved: resolved}, nil
}

// Validate checks a payload against the compiled schema.
func (s *Schema) Validate(payload any) error {
	if err := s.resolved.Validate(payload); err != nil {
		return &ValidationError{Ref: s.Ref, Reason: err.Error()}
	}
	return nil
}
