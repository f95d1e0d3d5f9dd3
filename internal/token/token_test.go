package token

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestAuthority(t *testing.T) *Authority {
	t.Helper()
	a, err := New([]byte("test-signing-key"), time.Hour)
	if err != nil {
		t.Fatalf("new authority: %v", err)
	}
	return a
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	a := newTestAuthority(t)

	tok, err := a.Issue("task-1", "PLAN")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !strings.HasPrefix(tok, "pgt_") {
		t.Fatalf("token missing prefix: %q", tok)
	}

	claims, err := a.Verify(tok, "task-1")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.TaskID != "task-1" || claims.PhaseID != "PLAN" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestVerifyRejectsWrongTask(t *testing.T) {
	a := newTestAuthority(t)
	tok, _ := a.Issue("task-1", "PLAN")

	if _, err := a.Verify(tok, "task-2"); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for task mismatch, got %v", err)
	}
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	a := newTestAuthority(t)
	tok, _ := a.Issue("task-1", "PLAN")

	// Swap the payload for one claiming a different phase. Signature no
	// longer matches.
	other, _ := a.Issue("task-1", "IMPL")
	tampered := "pgt_" + strings.SplitN(strings.TrimPrefix(other, "pgt_"), ".", 2)[0] +
		"." + strings.SplitN(strings.TrimPrefix(tok, "pgt_"), ".", 2)[1]

	if _, err := a.Verify(tampered, "task-1"); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for spliced token, got %v", err)
	}
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	a := newTestAuthority(t)
	b, _ := New([]byte("some-other-key"), time.Hour)

	tok, _ := b.Issue("task-1", "PLAN")
	if _, err := a.Verify(tok, "task-1"); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for foreign key, got %v", err)
	}
}

func TestVerifyExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a, _ := New([]byte("k"), time.Hour)
	a.WithClock(func() time.Time { return now })

	tok, _ := a.Issue("task-1", "PLAN")
	if _, err := a.Verify(tok, "task-1"); err != nil {
		t.Fatalf("token should be fresh: %v", err)
	}

	a.WithClock(func() time.Time { return now.Add(time.Hour + time.Second) })
	if _, err := a.Verify(tok, "task-1"); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestVerifyMalformedInputs(t *testing.T) {
	a := newTestAuthority(t)
	cases := []string{
		"",
		"pgt_",
		"pgt_nodot",
		"pgt_!!!.???",
		"nope_abc.def",
		"pgt_" + encode([]byte("{}")) + "." + encode([]byte("sig")),
	}
	for _, tok := range cases {
		if _, err := a.Verify(tok, ""); !errors.Is(err, ErrInvalid) {
			t.Fatalf("token %q: expected ErrInvalid, got %v", tok, err)
		}
	}
}

func TestNewRequiresKey(t *testing.T) {
	if _, err := New(nil, time.Hour); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func FuzzVerify(f *testing.F) {
	a, _ := New([]byte("fuzz-key"), time.Hour)
	seed, _ := a.Issue("task-1", "PLAN")
	f.Add(seed)
	f.Add("pgt_x.y")
	f.Add("")

	f.Fuzz(func(t *testing.T, tok string) {
		claims, err := a.Verify(tok, "")
		if err == nil && claims == nil {
			t.Fatal("nil claims with nil error")
		}
	})
}

func BenchmarkVerify(b *testing.B) {
	a, _ := New([]byte("bench-key"), time.Hour)
	tok, _ := a.Issue("task-1", "PLAN")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := a.Verify(tok, "task-1"); err != nil {
			b.Fatal(err)
		}
	}
}
