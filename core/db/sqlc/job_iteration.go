package sqlc

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

type JobIteration struct {
	ID              int64
	JobID           int64
	IterationNumber int32
	Prompt          string
	OutputSummary   *string
	PromiseDetected bool
	FeedbackResults []byte
	ExitCode        *int32
	StoryID         *int32
	CommitSHA       *string
	CreatedAt       pgtype.Timestamptz
}

type CreateJobIterationParams struct {
	JobID           int64
	IterationNumber int32
	Prompt          string
	OutputSummary   *string
	PromiseDetected bool
	FeedbackResults []byte
	ExitCode        *int32
	StoryID         *int32
	CommitSHA       *string
}

func (q *Queries) CreateJobIteration(ctx context.Context, arg CreateJobIterationParams) (JobIteration, error) {
	var row JobIteration
	err := q.db.QueryRow(ctx, `
		INSERT INTO agent_job_iterations (
			job_id, iteration_number, prompt, output_summary,
			promise_detected, feedback_results, exit_code, story_id, commit_sha, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9, now())
		RETURNING id, job_id, iteration_number, prompt, output_summary,
			promise_detected, feedback_results, exit_code, story_id, commit_sha, created_at
	`,
		arg.JobID, arg.IterationNumber, arg.Prompt, arg.OutputSummary,
		arg.PromiseDetected, arg.FeedbackResults, arg.ExitCode, arg.StoryID, arg.CommitSHA,
	).Scan(
		&row.ID, &row.JobID, &row.IterationNumber, &row.Prompt, &row.OutputSummary,
		&row.PromiseDetected, &row.FeedbackResults, &row.ExitCode, &row.StoryID, &row.CommitSHA, &row.CreatedAt,
	)
	return row, err
}

func (q *Queries) ListJobIterationsByJob(ctx context.Context, jobID int64) ([]JobIteration, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, job_id, iteration_number, prompt, output_summary,
			promise_detected, feedback_results, exit_code, story_id, commit_sha, created_at
		FROM agent_job_iterations WHERE job_id = $1 ORDER BY iteration_number ASC
	`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []JobIteration
	for rows.Next() {
		var row JobIteration
		if err := rows.Scan(
			&row.ID, &row.JobID, &row.IterationNumber, &row.Prompt, &row.OutputSummary,
			&row.PromiseDetected, &row.FeedbackResults, &row.ExitCode, &row.StoryID, &row.CommitSHA, &row.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}
