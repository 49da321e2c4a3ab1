package store

import (
	"context"
	"errors"

	"basegraph.app/relay/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// JobStore defines the contract for agent job data access.
type JobStore interface {
	GetByID(ctx context.Context, id int64) (*model.Job, error)
	Create(ctx context.Context, job *model.Job) error
	Update(ctx context.Context, job *model.Job) error
	ListQueued(ctx context.Context, limit int) ([]model.Job, error)
	ListRunning(ctx context.Context) ([]model.Job, error)
	CountRunning(ctx context.Context) (int, error)
	// ClaimQueued atomically transitions one queued job to running, returning
	// false if the row is no longer queued (already claimed elsewhere).
	ClaimQueued(ctx context.Context, id int64) (bool, *model.Job, error)
	// FailRunning rewrites every running job to failed; used at scheduler
	// startup to recover from a restart mid-flight.
	FailRunning(ctx context.Context, errMsg string) (int, error)
	ListByFeature(ctx context.Context, featureID int64) ([]model.Job, error)
}

// JobMessageStore defines the contract for job log-line data access.
type JobMessageStore interface {
	Append(ctx context.Context, msg *model.JobMessage) error
	ListByJob(ctx context.Context, jobID int64) ([]model.JobMessage, error)
}

// JobIterationStore defines the contract for per-iteration job record access.
type JobIterationStore interface {
	Create(ctx context.Context, it *model.JobIteration) error
	ListByJob(ctx context.Context, jobID int64) ([]model.JobIteration, error)
}

// FeatureStore defines the contract for the externally-owned feature
// aggregate's read/write-back surface.
type FeatureStore interface {
	GetByID(ctx context.Context, id int64) (*model.Feature, error)
	UpdatePrd(ctx context.Context, id int64, prd *model.Prd) error
	UpdateSpecOutput(ctx context.Context, id int64, out *model.SpecOutput) error
	UpdateWorkflowStage(ctx context.Context, id int64, stageID int64) error
}

// RepositoryStore defines the contract for client repository data access.
type RepositoryStore interface {
	GetByID(ctx context.Context, id int64) (*model.Repository, error)
	GetByClientAndName(ctx context.Context, clientID int64, repoName string) (*model.Repository, error)
	Create(ctx context.Context, repo *model.Repository) error
}

// CodeBranchStore defines the contract for branch provenance data access.
type CodeBranchStore interface {
	Upsert(ctx context.Context, b *model.CodeBranch) (*model.CodeBranch, error)
}

// CodePullRequestStore defines the contract for pull-request provenance data
// access.
type CodePullRequestStore interface {
	Upsert(ctx context.Context, pr *model.CodePullRequest) (*model.CodePullRequest, error)
}

// ClientStore defines the contract for tenant data access.
type ClientStore interface {
	GetByID(ctx context.Context, id int64) (*model.Client, error)
	UpdateConstitution(ctx context.Context, id int64, constitution string) error
}

// MemberStore defines the contract for job-creator identity data access.
type MemberStore interface {
	GetByID(ctx context.Context, id int64) (*model.Member, error)
}

