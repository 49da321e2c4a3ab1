package sqlc

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

type Job struct {
	ID                int64
	ClientID          int64
	FeatureID         *int64
	RepositoryID      *int64
	CreatedByMemberID *int64

	JobType string
	PrdMode bool
	Status  string

	Prompt            string
	BranchName        string
	Title             *string
	MaxIterations     *int32
	CompletionPromise *string
	FeedbackCommands  []string
	Prd               []byte
	SpecPhase         *string
	SpecOutput        []byte

	ExitCode          *int32
	PrURL             *string
	PrNumber          *int32
	FilesChanged      *int32
	CodeBranchID      *int64
	CodePullRequestID *int64
	Error             *string
	WorktreePath      *string
	Pid               *int32
	CompletionReason  *string
	CurrentIteration  *int32
	TotalIterations   *int32
	PrdProgress       []byte

	CreatedAt   pgtype.Timestamptz
	StartedAt   pgtype.Timestamptz
	CompletedAt pgtype.Timestamptz
}

type CreateJobParams struct {
	ID                int64
	ClientID          int64
	FeatureID         *int64
	RepositoryID      *int64
	CreatedByMemberID *int64
	JobType           string
	PrdMode           bool
	Status            string
	Prompt            string
	BranchName        string
	Title             *string
	MaxIterations     *int32
	CompletionPromise *string
	FeedbackCommands  []string
	Prd               []byte
	SpecPhase         *string
	SpecOutput        []byte
}

func (q *Queries) CreateJob(ctx context.Context, arg CreateJobParams) (Job, error) {
	var row Job
	err := q.db.QueryRow(ctx, `
		INSERT INTO agent_jobs (
			id, client_id, feature_id, repository_id, created_by_member_id,
			job_type, prd_mode, status, prompt, branch_name, title,
			max_iterations, completion_promise, feedback_commands, prd,
			spec_phase, spec_output, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17, now())
		RETURNING id, client_id, feature_id, repository_id, created_by_member_id,
			job_type, prd_mode, status, prompt, branch_name, title,
			max_iterations, completion_promise, feedback_commands, prd,
			spec_phase, spec_output, exit_code, pr_url, pr_number,
			files_changed, code_branch_id, code_pull_request_id, error,
			worktree_path, pid, completion_reason, current_iteration,
			total_iterations, prd_progress, created_at, started_at, completed_at
	`,
		arg.ID, arg.ClientID, arg.FeatureID, arg.RepositoryID, arg.CreatedByMemberID,
		arg.JobType, arg.PrdMode, arg.Status, arg.Prompt, arg.BranchName, arg.Title,
		arg.MaxIterations, arg.CompletionPromise, arg.FeedbackCommands, arg.Prd,
		arg.SpecPhase, arg.SpecOutput,
	).Scan(
		&row.ID, &row.ClientID, &row.FeatureID, &row.RepositoryID, &row.CreatedByMemberID,
		&row.JobType, &row.PrdMode, &row.Status, &row.Prompt, &row.BranchName, &row.Title,
		&row.MaxIterations, &row.CompletionPromise, &row.FeedbackCommands, &row.Prd,
		&row.SpecPhase, &row.SpecOutput, &row.ExitCode, &row.PrURL, &row.PrNumber,
		&row.FilesChanged, &row.CodeBranchID, &row.CodePullRequestID, &row.Error,
		&row.WorktreePath, &row.Pid, &row.CompletionReason, &row.CurrentIteration,
		&row.TotalIterations, &row.PrdProgress, &row.CreatedAt, &row.StartedAt, &row.CompletedAt,
	)
	return row, err
}

func (q *Queries) GetJob(ctx context.Context, id int64) (Job, error) {
	var row Job
	err := q.db.QueryRow(ctx, `
		SELECT id, client_id, feature_id, repository_id, created_by_member_id,
			job_type, prd_mode, status, prompt, branch_name, title,
			max_iterations, completion_promise, feedback_commands, prd,
			spec_phase, spec_output, exit_code, pr_url, pr_number,
			files_changed, code_branch_id, code_pull_request_id, error,
			worktree_path, pid, completion_reason, current_iteration,
			total_iterations, prd_progress, created_at, started_at, completed_at
		FROM agent_jobs WHERE id = $1
	`, id).Scan(
		&row.ID, &row.ClientID, &row.FeatureID, &row.RepositoryID, &row.CreatedByMemberID,
		&row.JobType, &row.PrdMode, &row.Status, &row.Prompt, &row.BranchName, &row.Title,
		&row.MaxIterations, &row.CompletionPromise, &row.FeedbackCommands, &row.Prd,
		&row.SpecPhase, &row.SpecOutput, &row.ExitCode, &row.PrURL, &row.PrNumber,
		&row.FilesChanged, &row.CodeBranchID, &row.CodePullRequestID, &row.Error,
		&row.WorktreePath, &row.Pid, &row.CompletionReason, &row.CurrentIteration,
		&row.TotalIterations, &row.PrdProgress, &row.CreatedAt, &row.StartedAt, &row.CompletedAt,
	)
	return row, err
}

type UpdateJobParams struct {
	ID                int64
	Status            string
	Title             *string
	MaxIterations     *int32
	CompletionPromise *string
	FeedbackCommands  []string
	Prd               []byte
	SpecPhase         *string
	SpecOutput        []byte
	ExitCode          *int32
	PrURL             *string
	PrNumber          *int32
	FilesChanged      *int32
	CodeBranchID      *int64
	CodePullRequestID *int64
	Error             *string
	WorktreePath      *string
	Pid               *int32
	CompletionReason  *string
	CurrentIteration  *int32
	TotalIterations   *int32
	PrdProgress       []byte
	StartedAt         pgtype.Timestamptz
	CompletedAt       pgtype.Timestamptz
}

func (q *Queries) UpdateJob(ctx context.Context, arg UpdateJobParams) (Job, error) {
	var row Job
	err := q.db.QueryRow(ctx, `
		UPDATE agent_jobs SET
			status = $2, title = $3, max_iterations = $4, completion_promise = $5,
			feedback_commands = $6, prd = $7, spec_phase = $8, spec_output = $9,
			exit_code = $10, pr_url = $11, pr_number = $12, files_changed = $13,
			code_branch_id = $14, code_pull_request_id = $15, error = $16,
			worktree_path = $17, pid = $18, completion_reason = $19,
			current_iteration = $20, total_iterations = $21, prd_progress = $22,
			started_at = $23, completed_at = $24
		WHERE id = $1
		RETURNING id, client_id, feature_id, repository_id, created_by_member_id,
			job_type, prd_mode, status, prompt, branch_name, title,
			max_iterations, completion_promise, feedback_commands, prd,
			spec_phase, spec_output, exit_code, pr_url, pr_number,
			files_changed, code_branch_id, code_pull_request_id, error,
			worktree_path, pid, completion_reason, current_iteration,
			total_iterations, prd_progress, created_at, started_at, completed_at
	`,
		arg.ID, arg.Status, arg.Title, arg.MaxIterations, arg.CompletionPromise,
		arg.FeedbackCommands, arg.Prd, arg.SpecPhase, arg.SpecOutput,
		arg.ExitCode, arg.PrURL, arg.PrNumber, arg.FilesChanged,
		arg.CodeBranchID, arg.CodePullRequestID, arg.Error,
		arg.WorktreePath, arg.Pid, arg.CompletionReason,
		arg.CurrentIteration, arg.TotalIterations, arg.PrdProgress,
		arg.StartedAt, arg.CompletedAt,
	).Scan(
		&row.ID, &row.ClientID, &row.FeatureID, &row.RepositoryID, &row.CreatedByMemberID,
		&row.JobType, &row.PrdMode, &row.Status, &row.Prompt, &row.BranchName, &row.Title,
		&row.MaxIterations, &row.CompletionPromise, &row.FeedbackCommands, &row.Prd,
		&row.SpecPhase, &row.SpecOutput, &row.ExitCode, &row.PrURL, &row.PrNumber,
		&row.FilesChanged, &row.CodeBranchID, &row.CodePullRequestID, &row.Error,
		&row.WorktreePath, &row.Pid, &row.CompletionReason, &row.CurrentIteration,
		&row.TotalIterations, &row.PrdProgress, &row.CreatedAt, &row.StartedAt, &row.CompletedAt,
	)
	return row, err
}

func (q *Queries) ListQueuedJobs(ctx context.Context, limit int32) ([]Job, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, client_id, feature_id, repository_id, created_by_member_id,
			job_type, prd_mode, status, prompt, branch_name, title,
			max_iterations, completion_promise, feedback_commands, prd,
			spec_phase, spec_output, exit_code, pr_url, pr_number,
			files_changed, code_branch_id, code_pull_request_id, error,
			worktree_path, pid, completion_reason, current_iteration,
			total_iterations, prd_progress, created_at, started_at, completed_at
		FROM agent_jobs WHERE status = 'queued' ORDER BY created_at ASC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Job
	for rows.Next() {
		var row Job
		if err := rows.Scan(
			&row.ID, &row.ClientID, &row.FeatureID, &row.RepositoryID, &row.CreatedByMemberID,
			&row.JobType, &row.PrdMode, &row.Status, &row.Prompt, &row.BranchName, &row.Title,
			&row.MaxIterations, &row.CompletionPromise, &row.FeedbackCommands, &row.Prd,
			&row.SpecPhase, &row.SpecOutput, &row.ExitCode, &row.PrURL, &row.PrNumber,
			&row.FilesChanged, &row.CodeBranchID, &row.CodePullRequestID, &row.Error,
			&row.WorktreePath, &row.Pid, &row.CompletionReason, &row.CurrentIteration,
			&row.TotalIterations, &row.PrdProgress, &row.CreatedAt, &row.StartedAt, &row.CompletedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func (q *Queries) ListRunningJobs(ctx context.Context) ([]Job, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, client_id, feature_id, repository_id, created_by_member_id,
			job_type, prd_mode, status, prompt, branch_name, title,
			max_iterations, completion_promise, feedback_commands, prd,
			spec_phase, spec_output, exit_code, pr_url, pr_number,
			files_changed, code_branch_id, code_pull_request_id, error,
			worktree_path, pid, completion_reason, current_iteration,
			total_iterations, prd_progress, created_at, started_at, completed_at
		FROM agent_jobs WHERE status = 'running'
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Job
	for rows.Next() {
		var row Job
		if err := rows.Scan(
			&row.ID, &row.ClientID, &row.FeatureID, &row.RepositoryID, &row.CreatedByMemberID,
			&row.JobType, &row.PrdMode, &row.Status, &row.Prompt, &row.BranchName, &row.Title,
			&row.MaxIterations, &row.CompletionPromise, &row.FeedbackCommands, &row.Prd,
			&row.SpecPhase, &row.SpecOutput, &row.ExitCode, &row.PrURL, &row.PrNumber,
			&row.FilesChanged, &row.CodeBranchID, &row.CodePullRequestID, &row.Error,
			&row.WorktreePath, &row.Pid, &row.CompletionReason, &row.CurrentIteration,
			&row.TotalIterations, &row.PrdProgress, &row.CreatedAt, &row.StartedAt, &row.CompletedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func (q *Queries) CountRunningJobs(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, `SELECT count(*) FROM agent_jobs WHERE status = 'running'`).Scan(&count)
	return count, err
}

// ClaimQueuedJob atomically transitions a queued job to running, returning
// pgx.ErrNoRows if it was no longer queued.
func (q *Queries) ClaimQueuedJob(ctx context.Context, id int64) (Job, error) {
	var row Job
	err := q.db.QueryRow(ctx, `
		UPDATE agent_jobs SET status = 'running', started_at = now()
		WHERE id = $1 AND status = 'queued'
		RETURNING id, client_id, feature_id, repository_id, created_by_member_id,
			job_type, prd_mode, status, prompt, branch_name, title,
			max_iterations, completion_promise, feedback_commands, prd,
			spec_phase, spec_output, exit_code, pr_url, pr_number,
			files_changed, code_branch_id, code_pull_request_id, error,
			worktree_path, pid, completion_reason, current_iteration,
			total_iterations, prd_progress, created_at, started_at, completed_at
	`, id).Scan(
		&row.ID, &row.ClientID, &row.FeatureID, &row.RepositoryID, &row.CreatedByMemberID,
		&row.JobType, &row.PrdMode, &row.Status, &row.Prompt, &row.BranchName, &row.Title,
		&row.MaxIterations, &row.CompletionPromise, &row.FeedbackCommands, &row.Prd,
		&row.SpecPhase, &row.SpecOutput, &row.ExitCode, &row.PrURL, &row.PrNumber,
		&row.FilesChanged, &row.CodeBranchID, &row.CodePullRequestID, &row.Error,
		&row.WorktreePath, &row.Pid, &row.CompletionReason, &row.CurrentIteration,
		&row.TotalIterations, &row.PrdProgress, &row.CreatedAt, &row.StartedAt, &row.CompletedAt,
	)
	return row, err
}

func (q *Queries) FailRunningJobs(ctx context.Context, errMsg string) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE agent_jobs SET status = 'failed', error = $1, completed_at = now()
		WHERE status = 'running'
	`, errMsg)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) ListJobsByFeature(ctx context.Context, featureID int64) ([]Job, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, client_id, feature_id, repository_id, created_by_member_id,
			job_type, prd_mode, status, prompt, branch_name, title,
			max_iterations, completion_promise, feedback_commands, prd,
			spec_phase, spec_output, exit_code, pr_url, pr_number,
			files_changed, code_branch_id, code_pull_request_id, error,
			worktree_path, pid, completion_reason, current_iteration,
			total_iterations, prd_progress, created_at, started_at, completed_at
		FROM agent_jobs WHERE feature_id = $1 ORDER BY created_at ASC
	`, featureID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Job
	for rows.Next() {
		var row Job
		if err := rows.Scan(
			&row.ID, &row.ClientID, &row.FeatureID, &row.RepositoryID, &row.CreatedByMemberID,
			&row.JobType, &row.PrdMode, &row.Status, &row.Prompt, &row.BranchName, &row.Title,
			&row.MaxIterations, &row.CompletionPromise, &row.FeedbackCommands, &row.Prd,
			&row.SpecPhase, &row.SpecOutput, &row.ExitCode, &row.PrURL, &row.PrNumber,
			&row.FilesChanged, &row.CodeBranchID, &row.CodePullRequestID, &row.Error,
			&row.WorktreePath, &row.Pid, &row.CompletionReason, &row.CurrentIteration,
			&row.TotalIterations, &row.PrdProgress, &row.CreatedAt, &row.StartedAt, &row.CompletedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}
