package anonymize

import (
	"reflect"
	"testing"
)

func newTestAnonymizer(t *testing.T) *Anonymizer {
	t.Helper()
	a, err := New([]byte("install-salt"), []string{"PLAN", "TDD", "IMPL"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return a
}

func TestUnrecognizedFieldsAreStripped(t *testing.T) {
	a := newTestAnonymizer(t)

	out := a.Anonymize(map[string]any{
		"outcome":        "deny",
		"api_key":        "sk-live-123",
		"prompt_text":    "the entire user prompt",
		"some_new_field": map[string]any{"nested": "stuff"},
	})

	if out["outcome"] != "deny" {
		t.Fatalf("allowlisted field lost: %v", out)
	}
	for _, k := range []string{"api_key", "prompt_text", "some_new_field"} {
		if _, leaked := out[k]; leaked {
			t.Fatalf("field %q leaked through: %v", k, out)
		}
	}
}

func TestPhasesMapFilteredPerField(t *testing.T) {
	a := newTestAnonymizer(t)

	out := a.Anonymize(map[string]any{
		"phases": map[string]any{
			"PLAN":             3,
			"tdd":              1.5,
			"secret_user_name": 7,
			"IMPL":             "not a number",
		},
	})

	phases, ok := out["phases"].(map[string]any)
	if !ok {
		t.Fatalf("phases missing from output: %v", out)
	}
	want := map[string]any{"plan": 3, "tdd": 1.5}
	if !reflect.DeepEqual(phases, want) {
		t.Fatalf("phases = %v, want %v", phases, want)
	}
}

func TestPhasesMapOfWrongShapeDropped(t *testing.T) {
	a := newTestAnonymizer(t)
	out := a.Anonymize(map[string]any{"phases": []any{"PLAN"}})
	if _, ok := out["phases"]; ok {
		t.Fatalf("non-map phases value should be dropped: %v", out)
	}
}

func TestIdentifierHashingIsStableAndSalted(t *testing.T) {
	a := newTestAnonymizer(t)
	b, err := New([]byte("different-salt"), []string{"PLAN"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	h1 := a.HashID("task-42")
	h2 := a.HashID("task-42")
	h3 := b.HashID("task-42")

	if h1 != h2 {
		t.Fatalf("same id+salt must hash identically: %s vs %s", h1, h2)
	}
	if h1 == h3 {
		t.Fatal("different salt must change the hash")
	}
	if len(h1) != hashedIDLength {
		t.Fatalf("hash should be truncated to %d chars, got %d", hashedIDLength, len(h1))
	}
	if h1 == "task-42" {
		t.Fatal("identifier must not survive in plain text")
	}
}

func TestActorFieldIsHashedNotCopied(t *testing.T) {
	a := newTestAnonymizer(t)
	out := a.Anonymize(map[string]any{"actor": "task-42"})

	got, ok := out["actor"].(string)
	if !ok {
		t.Fatalf("actor missing: %v", out)
	}
	if got == "task-42" || got != a.HashID("task-42") {
		t.Fatalf("actor should be the salted hash, got %q", got)
	}
}

func TestInputIsNeverMutated(t *testing.T) {
	a := newTestAnonymizer(t)
	phases := map[string]any{"PLAN": 1, "evil": 2}
	record := map[string]any{"phases": phases, "secret": "x"}

	out := a.Anonymize(record)

	if len(record) != 2 || len(phases) != 2 {
		t.Fatal("input record was mutated")
	}
	if outPhases, ok := out["phases"].(map[string]any); ok {
		outPhases["injected"] = 1
		if _, shared := phases["injected"]; shared {
			t.Fatal("output shares map reference with input")
		}
	}
}

func TestNewRequiresSalt(t *testing.T) {
	if _, err := New(nil, []string{"PLAN"}); err == nil {
		t.Fatal("expected error for empty salt")
	}
}
