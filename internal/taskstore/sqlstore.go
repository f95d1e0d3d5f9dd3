package taskstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ppiankov/phasegate/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id           TEXT PRIMARY KEY,
	agent_id     TEXT NOT NULL,
	capabilities TEXT NOT NULL DEFAULT '[]',
	phase        TEXT NOT NULL,
	status       TEXT NOT NULL,
	revision     INTEGER NOT NULL,
	claimed_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL
);`

// SQLStore persists tasks in a SQLite database. Revision-conditioned
// updates give the same compare-and-swap discipline as the other
// backends without table-level locking by callers.
type SQLStore struct {
	db *sql.DB
}

// OpenSQL opens (or creates) a SQLite-backed task store.
func OpenSQL(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("taskstore: open sqlite: %w", err)
	}
	// SQLite allows one writer; serialize at the pool level instead of
	// bubbling SQLITE_BUSY up to callers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("taskstore: init schema: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) Get(id string) (*model.Task, error) {
	row := s.db.QueryRow(
		`SELECT id, agent_id, capabilities, phase, status, revision, claimed_at, updated_at
		 FROM tasks WHERE id = ?`, id)
	return scanTask(row)
}

func (s *SQLStore) Put(t *model.Task) (*model.Task, error) {
	caps, err := json.Marshal(t.Capabilities)
	if err != nil {
		return nil, fmt.Errorf("taskstore: marshal capabilities: %w", err)
	}

	stored := t.Clone()
	stored.UpdatedAt = time.Now().UTC()

	_, err = s.db.Exec(
		`INSERT INTO tasks (id, agent_id, capabilities, phase, status, revision, claimed_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			agent_id = excluded.agent_id,
			capabilities = excluded.capabilities,
			phase = excluded.phase,
			status = excluded.status,
			revision = tasks.revision + 1,
			updated_at = excluded.updated_at`,
		stored.ID, stored.AgentID, string(caps), stored.Phase, string(stored.Status),
		stored.ClaimedAt.Format(time.RFC3339Nano), stored.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("taskstore: put: %w", err)
	}
	return s.Get(stored.ID)
}

func (s *SQLStore) CompareAndSwap(t *model.Task, expected int64) (*model.Task, error) {
	caps, err := json.Marshal(t.Capabilities)
	if err != nil {
		return nil, fmt.Errorf("taskstore: marshal capabilities: %w", err)
	}

	now := time.Now().UTC()
	res, err := s.db.Exec(
		`UPDATE tasks SET
			agent_id = ?, capabilities = ?, phase = ?, status = ?,
			revision = revision + 1, updated_at = ?
		 WHERE id = ? AND revision = ?`,
		t.AgentID, string(caps), t.Phase, string(t.Status),
		now.Format(time.RFC3339Nano), t.ID, expected)
	if err != nil {
		return nil, fmt.Errorf("taskstore: cas: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("taskstore: cas rows: %w", err)
	}
	if n == 0 {
		// Distinguish a missing task from a lost race.
		if _, err := s.Get(t.ID); errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, ErrRevisionConflict
	}
	return s.Get(t.ID)
}

func (s *SQLStore) List() ([]*model.Task, error) {
	rows, err := s.db.Query(
		`SELECT id, agent_id, capabilities, phase, status, revision, claimed_at, updated_at
		 FROM tasks ORDER BY claimed_at`)
	if err != nil {
		return nil, fmt.Errorf("taskstore: list: %w", err)
	}
	defer rows.Close()

	var tasks []*model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*model.Task, error) {
	var t model.Task
	var caps, status, claimedAt, updatedAt string
	err := row.Scan(&t.ID, &t.AgentID, &caps, &t.Phase, &status, &t.Revision, &claimedAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("taskstore: scan: %w", err)
	}

	if err := json.Unmarshal([]byte(caps), &t.Capabilities); err != nil {
		return nil, fmt.Errorf("taskstore: capabilities for %s are corrupt: %w", t.ID, err)
	}
	t.Status = model.TaskStatus(status)
	if t.ClaimedAt, err = time.Parse(time.RFC3339Nano, claimedAt); err != nil {
		return nil, fmt.Errorf("taskstore: claimed_at for %s: %w", t.ID, err)
	}
	if t.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("taskstore: updated_at for %s: %w", t.ID, err)
	}
	return &t, nil
}
