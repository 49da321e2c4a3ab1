package store

import (
	"context"
	"encoding/json"
	"errors"

	"basegraph.app/relay/core/db/sqlc"
	"basegraph.app/relay/internal/model"
	"github.com/jackc/pgx/v5"
)

type jobStore struct {
	queries *sqlc.Queries
}

func newJobStore(queries *sqlc.Queries) JobStore {
	return &jobStore{queries: queries}
}

func (s *jobStore) GetByID(ctx context.Context, id int64) (*model.Job, error) {
	row, err := s.queries.GetJob(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return toJobModel(row)
}

func (s *jobStore) Create(ctx context.Context, job *model.Job) error {
	prdJSON, err := marshalOptional(job.Prd)
	if err != nil {
		return err
	}
	specOutputJSON, err := marshalOptional(job.SpecOutput)
	if err != nil {
		return err
	}

	row, err := s.queries.CreateJob(ctx, sqlc.CreateJobParams{
		ID:                job.ID,
		ClientID:          job.ClientID,
		FeatureID:         job.FeatureID,
		RepositoryID:      job.RepositoryID,
		CreatedByMemberID: job.CreatedByMemberID,
		JobType:           string(job.JobType),
		PrdMode:           job.PrdMode,
		Status:            string(job.Status),
		Prompt:            job.Prompt,
		BranchName:        job.BranchName,
		Title:             job.Title,
		MaxIterations:     toInt32Ptr(job.MaxIterations),
		CompletionPromise: job.CompletionPromise,
		FeedbackCommands:  job.FeedbackCommands,
		Prd:               prdJSON,
		SpecPhase:         job.SpecPhase,
		SpecOutput:        specOutputJSON,
	})
	if err != nil {
		return err
	}
	created, err := toJobModel(row)
	if err != nil {
		return err
	}
	*job = *created
	return nil
}

func (s *jobStore) Update(ctx context.Context, job *model.Job) error {
	prdJSON, err := marshalOptional(job.Prd)
	if err != nil {
		return err
	}
	specOutputJSON, err := marshalOptional(job.SpecOutput)
	if err != nil {
		return err
	}
	prdProgressJSON, err := marshalOptional(job.PrdProgress)
	if err != nil {
		return err
	}

	row, err := s.queries.UpdateJob(ctx, sqlc.UpdateJobParams{
		ID:                job.ID,
		Status:            string(job.Status),
		Title:             job.Title,
		MaxIterations:     toInt32Ptr(job.MaxIterations),
		CompletionPromise: job.CompletionPromise,
		FeedbackCommands:  job.FeedbackCommands,
		Prd:               prdJSON,
		SpecPhase:         job.SpecPhase,
		SpecOutput:        specOutputJSON,
		ExitCode:          toInt32Ptr(job.ExitCode),
		PrURL:             job.PRURL,
		PrNumber:          toInt32Ptr(job.PRNumber),
		FilesChanged:      toInt32Ptr(job.FilesChanged),
		CodeBranchID:      job.CodeBranchID,
		CodePullRequestID: job.CodePullRequestID,
		Error:             job.Error,
		WorktreePath:      job.WorktreePath,
		Pid:               toInt32Ptr(job.PID),
		CompletionReason:  job.CompletionReason,
		CurrentIteration:  toInt32Ptr(job.CurrentIteration),
		TotalIterations:   toInt32Ptr(job.TotalIterations),
		PrdProgress:       prdProgressJSON,
		StartedAt:         toTimestamptz(job.StartedAt),
		CompletedAt:       toTimestamptz(job.CompletedAt),
	})
	if err != nil {
		return err
	}
	updated, err := toJobModel(row)
	if err != nil {
		return err
	}
	*job = *updated
	return nil
}

func (s *jobStore) ListQueued(ctx context.Context, limit int) ([]model.Job, error) {
	rows, err := s.queries.ListQueuedJobs(ctx, int32(limit))
	if err != nil {
		return nil, err
	}
	return toJobModels(rows)
}

func (s *jobStore) ListRunning(ctx context.Context) ([]model.Job, error) {
	rows, err := s.queries.ListRunningJobs(ctx)
	if err != nil {
		return nil, err
	}
	return toJobModels(rows)
}

func (s *jobStore) CountRunning(ctx context.Context) (int, error) {
	count, err := s.queries.CountRunningJobs(ctx)
	return int(count), err
}

func (s *jobStore) ClaimQueued(ctx context.Context, id int64) (bool, *model.Job, error) {
	row, err := s.queries.ClaimQueuedJob(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil, nil
		}
		return false, nil, err
	}
	job, err := toJobModel(row)
	if err != nil {
		return false, nil, err
	}
	return true, job, nil
}

func (s *jobStore) FailRunning(ctx context.Context, errMsg string) (int, error) {
	count, err := s.queries.FailRunningJobs(ctx, errMsg)
	return int(count), err
}

func (s *jobStore) ListByFeature(ctx context.Context, featureID int64) ([]model.Job, error) {
	rows, err := s.queries.ListJobsByFeature(ctx, featureID)
	if err != nil {
		return nil, err
	}
	return toJobModels(rows)
}

func toJobModels(rows []sqlc.Job) ([]model.Job, error) {
	result := make([]model.Job, 0, len(rows))
	for _, row := range rows {
		job, err := toJobModel(row)
		if err != nil {
			return nil, err
		}
		result = append(result, *job)
	}
	return result, nil
}

func toJobModel(row sqlc.Job) (*model.Job, error) {
	job := &model.Job{
		ID:                row.ID,
		ClientID:          row.ClientID,
		FeatureID:         row.FeatureID,
		RepositoryID:      row.RepositoryID,
		CreatedByMemberID: row.CreatedByMemberID,
		JobType:           model.JobType(row.JobType),
		PrdMode:           row.PrdMode,
		Status:            model.JobStatus(row.Status),
		Prompt:            row.Prompt,
		BranchName:        row.BranchName,
		Title:             row.Title,
		MaxIterations:     toIntPtr(row.MaxIterations),
		CompletionPromise: row.CompletionPromise,
		FeedbackCommands:  row.FeedbackCommands,
		SpecPhase:         row.SpecPhase,
		ExitCode:          toIntPtr(row.ExitCode),
		PRURL:             row.PrURL,
		PRNumber:          toIntPtr(row.PrNumber),
		FilesChanged:      toIntPtr(row.FilesChanged),
		CodeBranchID:      row.CodeBranchID,
		CodePullRequestID: row.CodePullRequestID,
		Error:             row.Error,
		WorktreePath:      row.WorktreePath,
		PID:               toIntPtr(row.Pid),
		CompletionReason:  row.CompletionReason,
		CurrentIteration:  toIntPtr(row.CurrentIteration),
		TotalIterations:   toIntPtr(row.TotalIterations),
		CreatedAt:         row.CreatedAt.Time,
	}

	if len(row.Prd) > 0 {
		var prd model.Prd
		if err := json.Unmarshal(row.Prd, &prd); err != nil {
			return nil, err
		}
		job.Prd = &prd
	}
	if len(row.SpecOutput) > 0 {
		var specOutput model.SpecOutput
		if err := json.Unmarshal(row.SpecOutput, &specOutput); err != nil {
			return nil, err
		}
		job.SpecOutput = &specOutput
	}
	if len(row.PrdProgress) > 0 {
		var prdProgress model.PrdProgress
		if err := json.Unmarshal(row.PrdProgress, &prdProgress); err != nil {
			return nil, err
		}
		job.PrdProgress = &prdProgress
	}

	if row.StartedAt.Valid {
		t := row.StartedAt.Time
		job.StartedAt = &t
	}
	if row.CompletedAt.Valid {
		t := row.CompletedAt.Time
		job.CompletedAt = &t
	}

	return job, nil
}
