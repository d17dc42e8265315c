package models

import (
	"fmt"
	"time"
)

type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusProcessing TaskStatus = "processing"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
)

func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// transitions is the set of allowed status moves. Terminal states have no
// outgoing edges, so a task can never re-enter pending or processing.
var transitions = map[TaskStatus][]TaskStatus{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusCompleted, StatusFailed},
}

type FileResult struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

type Task struct {
	ID        string       `json:"id"`
	Status    TaskStatus   `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	Results   []FileResult `json:"results,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// Transition moves the task to the given status, enforcing
// pending -> processing -> {completed, failed}.
func (t *Task) Transition(to TaskStatus) error {
	for _, allowed := range transitions[t.Status] {
		if allowed == to {
			t.Status = to
			return nil
		}
	}
	return fmt.Errorf("invalid status transition %s -> %s", t.Status, to)
}

// OrientedBox is a single detection: a rotated rectangle given by its
// center, dimensions and rotation angle in radians (counter-clockwise).
type OrientedBox struct {
	CX         float64 `json:"cx"`
	CY         float64 `json:"cy"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Angle      float64 `json:"angle"`
	Confidence float64 `json:"confidence"`
}
