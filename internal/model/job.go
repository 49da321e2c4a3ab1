package model

import "time"

type JobType string

const (
	JobTypeCode           JobType = "code"
	JobTypeRalph          JobType = "ralph"
	JobTypePrdGeneration  JobType = "prd_generation"
	JobTypeSpec           JobType = "spec"
)

type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Job is the unit of work dispatched by the scheduler. Its job_type plus the
// prd_mode/spec_output.specMode flags select which runner executes it; see
// the routing table in internal/runner/router.go.
type Job struct {
	ID               int64     `json:"id"`
	ClientID         int64     `json:"client_id"`
	FeatureID        *int64    `json:"feature_id,omitempty"`
	RepositoryID     *int64    `json:"repository_id,omitempty"`
	CreatedByMemberID *int64   `json:"created_by_member_id,omitempty"`

	JobType JobType `json:"job_type"`
	PrdMode bool    `json:"prd_mode"`

	Status JobStatus `json:"status"`

	Prompt             string   `json:"prompt"`
	BranchName         string   `json:"branch_name"`
	Title              *string  `json:"title,omitempty"`
	MaxIterations      *int     `json:"max_iterations,omitempty"`
	CompletionPromise  *string  `json:"completion_promise,omitempty"`
	FeedbackCommands   []string `json:"feedback_commands,omitempty"`
	Prd                *Prd     `json:"prd,omitempty"`
	SpecPhase          *string  `json:"spec_phase,omitempty"`
	SpecOutput         *SpecOutput `json:"spec_output,omitempty"`

	ExitCode           *int       `json:"exit_code,omitempty"`
	PRURL              *string    `json:"pr_url,omitempty"`
	PRNumber           *int       `json:"pr_number,omitempty"`
	FilesChanged       *int       `json:"files_changed,omitempty"`
	CodeBranchID       *int64     `json:"code_branch_id,omitempty"`
	CodePullRequestID  *int64     `json:"code_pull_request_id,omitempty"`
	Error              *string    `json:"error,omitempty"`
	WorktreePath       *string    `json:"worktree_path,omitempty"`
	PID                *int       `json:"pid,omitempty"`
	CompletionReason   *string    `json:"completion_reason,omitempty"`
	CurrentIteration   *int       `json:"current_iteration,omitempty"`
	TotalIterations    *int       `json:"total_iterations,omitempty"`
	PrdProgress        *PrdProgress `json:"prd_progress,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// SpecMode reports whether this job's spec_output carries the one-shot
// spec-task flag (§4.11), distinct from job_type=spec (the full pipeline).
func (j Job) SpecMode() bool {
	return j.SpecOutput != nil && j.SpecOutput.SpecMode
}
