package taskstore

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/phasegate/internal/model"
)

// backends are exercised through the same contract tests.
func backends(t *testing.T) map[string]Store {
	t.Helper()

	fs, err := NewFileStore(filepath.Join(t.TempDir(), "tasks"))
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	ss, err := OpenSQL(filepath.Join(t.TempDir(), "tasks.db"))
	if err != nil {
		t.Fatalf("sql store: %v", err)
	}
	t.Cleanup(func() { ss.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   fs,
		"sqlite": ss,
	}
}

func testTask(id string) *model.Task {
	return &model.Task{
		ID:           id,
		AgentID:      "agent-7",
		Capabilities: []string{"code", "test"},
		Phase:        "PLAN",
		Status:       model.StatusClaimed,
		ClaimedAt:    time.Now().UTC(),
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			stored, err := store.Put(testTask("task-1"))
			if err != nil {
				t.Fatalf("put: %v", err)
			}
			if stored.Revision != 1 {
				t.Fatalf("fresh task revision = %d, want 1", stored.Revision)
			}

			got, err := store.Get("task-1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.AgentID != "agent-7" || got.Phase != "PLAN" || got.Status != model.StatusClaimed {
				t.Fatalf("unexpected task %+v", got)
			}
			if len(got.Capabilities) != 2 {
				t.Fatalf("capabilities lost: %+v", got)
			}
		})
	}
}

func TestGetMissingTask(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := store.Get("nope"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestCompareAndSwap(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			stored, err := store.Put(testTask("task-1"))
			if err != nil {
				t.Fatalf("put: %v", err)
			}

			next := stored.Clone()
			next.Phase = "TDD"
			next.Status = model.StatusActive

			updated, err := store.CompareAndSwap(next, stored.Revision)
			if err != nil {
				t.Fatalf("cas: %v", err)
			}
			if updated.Revision != stored.Revision+1 {
				t.Fatalf("revision = %d, want %d", updated.Revision, stored.Revision+1)
			}
			if updated.Phase != "TDD" {
				t.Fatalf("phase not updated: %+v", updated)
			}

			// Stale revision loses.
			if _, err := store.CompareAndSwap(next, stored.Revision); !errors.Is(err, ErrRevisionConflict) {
				t.Fatalf("expected ErrRevisionConflict, got %v", err)
			}

			// CAS on a task that does not exist.
			ghost := testTask("ghost")
			if _, err := store.CompareAndSwap(ghost, 1); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestConcurrentCASOnlyOneWins(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			stored, err := store.Put(testTask("task-1"))
			if err != nil {
				t.Fatalf("put: %v", err)
			}

			var wg sync.WaitGroup
			wins := make(chan string, 8)
			for i, phase := range []string{"TDD", "IMPL", "REVIEW", "TDD", "IMPL", "REVIEW", "TDD", "IMPL"} {
				wg.Add(1)
				go func(i int, phase string) {
					defer wg.Done()
					next := stored.Clone()
					next.Phase = phase
					if _, err := store.CompareAndSwap(next, stored.Revision); err == nil {
						wins <- phase
					}
				}(i, phase)
			}
			wg.Wait()
			close(wins)

			var winners []string
			for w := range wins {
				winners = append(winners, w)
			}
			if len(winners) != 1 {
				t.Fatalf("expected exactly one CAS winner, got %d", len(winners))
			}
		})
	}
}

func TestListReturnsCopies(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := store.Put(testTask("task-1")); err != nil {
				t.Fatalf("put: %v", err)
			}
			if _, err := store.Put(testTask("task-2")); err != nil {
				t.Fatalf("put: %v", err)
			}

			tasks, err := store.List()
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(tasks) != 2 {
				t.Fatalf("expected 2 tasks, got %d", len(tasks))
			}

			tasks[0].Phase = "MUTATED"
			again, _ := store.Get(tasks[0].ID)
			if again.Phase == "MUTATED" {
				t.Fatal("list must return copies, not live references")
			}
		})
	}
}

func TestFileStoreRejectsTraversalIDs(t *testing.T) {
	fs, err := NewFileStore(filepath.Join(t.TempDir(), "tasks"))
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	for _, id := range []string{"", "../evil", "a/b", "x y"} {
		task := testTask("x")
		task.ID = id
		if _, err := fs.Put(task); err == nil {
			t.Fatalf("expected rejection for id %q", id)
		}
	}
}
