// Package taskstore persists task state behind a small interface so
// the backend (memory, file, database) can change without touching
// enforcement logic. Compare-and-swap on the task revision is the
// concurrency primitive: two transition requests racing on the same
// task cannot both win.
package taskstore

import (
	"errors"
	"sync"
	"time"

	"github.com/ppiankov/phasegate/internal/model"
)

var (
	ErrNotFound = errors.New("taskstore: task not found")
	// ErrRevisionConflict means another writer got there first. The
	// caller re-reads and re-evaluates; it never blind-retries a write.
	ErrRevisionConflict = errors.New("taskstore: revision conflict")
)

// Store is the task persistence contract.
type Store interface {
	// Get returns a copy of the task.
	Get(id string) (*model.Task, error)
	// Put creates or replaces a task unconditionally, bumping its
	// revision. Used for claim; transitions go through CompareAndSwap.
	Put(t *model.Task) (*model.Task, error)
	// CompareAndSwap writes the task only if the stored revision still
	// equals expected, and returns the stored result.
	CompareAndSwap(t *model.Task, expected int64) (*model.Task, error)
	// List returns copies of all tasks.
	List() ([]*model.Task, error)
}

// MemoryStore keeps tasks in process memory. Suitable for tests and
// single-process embedding via the SDK.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*model.Task
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]*model.Task)}
}

func (s *MemoryStore) Get(id string) (*model.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

func (s *MemoryStore) Put(t *model.Task) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := t.Clone()
	if prev, ok := s.tasks[t.ID]; ok {
		stored.Revision = prev.Revision + 1
	} else {
		stored.Revision = 1
	}
	stored.UpdatedAt = time.Now().UTC()
	s.tasks[t.ID] = stored
	return stored.Clone(), nil
}

func (s *MemoryStore) CompareAndSwap(t *model.Task, expected int64) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.tasks[t.ID]
	if !ok {
		return nil, ErrNotFound
	}
	if prev.Revision != expected {
		return nil, ErrRevisionConflict
	}

	stored := t.Clone()
	stored.Revision = expected + 1
	stored.UpdatedAt = time.Now().UTC()
	s.tasks[t.ID] = stored
	return stored.Clone(), nil
}

func (s *MemoryStore) List() ([]*model.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.Clone())
	}
	return out, nil
}
