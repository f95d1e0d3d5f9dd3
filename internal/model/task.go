package model

import "time"

// TaskStatus is the lifecycle state of a claimed task.
type TaskStatus string

const (
	StatusClaimed   TaskStatus = "claimed"
	StatusActive    TaskStatus = "active"
	StatusCompleted TaskStatus = "completed"
	StatusAbandoned TaskStatus = "abandoned"
)

// Terminal reports whether the status admits no further transitions.
func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusAbandoned
}

// Task is one claimed unit of agent work moving through workflow phases.
// Revision increments on every store write and backs compare-and-swap
// so that two concurrent transition requests cannot both succeed.
type Task struct {
	ID           string     `json:"id"`
	AgentID      string     `json:"agent_id"`
	Capabilities []string   `json:"capabilities,omitempty"`
	Phase        string     `json:"phase"`
	Status       TaskStatus `json:"status"`
	Revision     int64      `json:"revision"`
	ClaimedAt    time.Time  `json:"claimed_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Clone returns a deep copy so store callers never share mutable state.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	if t.Capabilities != nil {
		c.Capabilities = append([]string(nil), t.Capabilities...)
	}
	return &c
}
