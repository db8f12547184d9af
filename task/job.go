// ffwatcher/task/job.go
package task

import "time"

type State string

const (
	StateQueued   State = "queued"
	StateActive   State = "active"
	StateRequeued State = "requeued"
	StateDone     State = "done"
	StateFailed   State = "failed"
)

// Job is the record kept for the status API. The scheduler's single-flight
// table is separate: it only ever holds queued/active entries, and terminal
// outcomes exist solely here.
type Job struct {
	ID          string    `json:"id"`
	Path        string    `json:"path"`
	Output      string    `json:"output,omitempty"`
	State       State     `json:"state"`
	Attempts    int       `json:"attempts"`
	Error       string    `json:"error,omitempty"`
	SubmittedAt time.Time `json:"submittedAt"`
	StartedAt   time.Time `json:"startedAt,omitempty"`
	FinishedAt  time.Time `json:"finishedAt,omitempty"`
}
