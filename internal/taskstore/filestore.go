package taskstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/ppiankov/phasegate/internal/model"
)

// validID matches alphanumeric, dash, underscore, and dot characters only.
var validID = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// validateID rejects ids that could cause path traversal.
func validateID(id string) error {
	if id == "" {
		return fmt.Errorf("task id must not be empty")
	}
	if strings.Contains(id, "..") {
		return fmt.Errorf("task id must not contain '..'")
	}
	if !validID.MatchString(id) {
		return fmt.Errorf("task id contains invalid characters")
	}
	return nil
}

// FileStore keeps one JSON file per task with atomic tmp+rename
// writes. A single mutex serializes writers, which is plenty at the
// scale of one workstation's agents.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates a FileStore backed by the given directory.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("taskstore: create directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// DefaultDir returns the default task store directory.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "phasegate-tasks")
	}
	return filepath.Join(home, ".phasegate", "tasks")
}

func (s *FileStore) Get(id string) (*model.Task, error) {
	if err := validateID(id); err != nil {
		return nil, fmt.Errorf("taskstore: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(id)
}

func (s *FileStore) Put(t *model.Task) (*model.Task, error) {
	if err := validateID(t.ID); err != nil {
		return nil, fmt.Errorf("taskstore: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := t.Clone()
	if prev, err := s.read(t.ID); err == nil {
		stored.Revision = prev.Revision + 1
	} else {
		stored.Revision = 1
	}
	stored.UpdatedAt = time.Now().UTC()

	if err := s.writeAtomic(stored); err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *FileStore) CompareAndSwap(t *model.Task, expected int64) (*model.Task, error) {
	if err := validateID(t.ID); err != nil {
		return nil, fmt.Errorf("taskstore: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, err := s.read(t.ID)
	if err != nil {
		return nil, err
	}
	if prev.Revision != expected {
		return nil, ErrRevisionConflict
	}

	stored := t.Clone()
	stored.Revision = expected + 1
	stored.UpdatedAt = time.Now().UTC()

	if err := s.writeAtomic(stored); err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *FileStore) List() ([]*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var tasks []*model.Task
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		t, err := s.read(strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *FileStore) read(id string) (*model.Task, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var t model.Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("taskstore: task %s is corrupt: %w", id, err)
	}
	return &t, nil
}

func (s *FileStore) writeAtomic(t *model.Task) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path(t.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path(t.ID))
}
