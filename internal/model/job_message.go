package model

import "time"

type JobMessageKind string

const (
	JobMessageStdout    JobMessageKind = "stdout"
	JobMessageStderr    JobMessageKind = "stderr"
	JobMessageSystem    JobMessageKind = "system"
	JobMessageUserInput JobMessageKind = "user_input"
)

// JobMessage is an append-only log line attached to a Job, ordered by
// CreatedAt within the job.
type JobMessage struct {
	ID        int64          `json:"id"`
	JobID     int64          `json:"job_id"`
	Kind      JobMessageKind `json:"kind"`
	Content   string         `json:"content"`
	CreatedAt time.Time      `json:"created_at"`
}
