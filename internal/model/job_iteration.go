package model

import "time"

// JobIteration is a per-iteration record produced by the loop, PRD, and spec
// runners. Ordered by IterationNumber within a job.
type JobIteration struct {
	ID              int64      `json:"id"`
	JobID           int64      `json:"job_id"`
	IterationNumber int        `json:"iteration_number"`
	Prompt          string     `json:"prompt"`
	OutputSummary   *string    `json:"output_summary,omitempty"`
	PromiseDetected bool       `json:"promise_detected"`
	FeedbackResults []FeedbackResult `json:"feedback_results,omitempty"`
	ExitCode        *int       `json:"exit_code,omitempty"`
	StoryID         *int       `json:"story_id,omitempty"`
	CommitSHA       *string    `json:"commit_sha,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// FeedbackResult is a single feedback command's outcome, embedded in a
// JobIteration's feedback_results column.
type FeedbackResult struct {
	Command  string `json:"command"`
	ExitCode int    `json:"exit_code"`
	Output   string `json:"output"`
	TimedOut bool   `json:"timed_out"`
}
