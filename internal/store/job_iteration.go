package store

import (
	"context"
	"encoding/json"

	"basegraph.app/relay/core/db/sqlc"
	"basegraph.app/relay/internal/model"
)

type jobIterationStore struct {
	queries *sqlc.Queries
}

func newJobIterationStore(queries *sqlc.Queries) JobIterationStore {
	return &jobIterationStore{queries: queries}
}

func (s *jobIterationStore) Create(ctx context.Context, it *model.JobIteration) error {
	feedbackJSON, err := marshalOptional(it.FeedbackResults)
	if err != nil {
		return err
	}

	row, err := s.queries.CreateJobIteration(ctx, sqlc.CreateJobIterationParams{
		JobID:           it.JobID,
		IterationNumber: int32(it.IterationNumber),
		Prompt:          it.Prompt,
		OutputSummary:   it.OutputSummary,
		PromiseDetected: it.PromiseDetected,
		FeedbackResults: feedbackJSON,
		ExitCode:        toInt32Ptr(it.ExitCode),
		StoryID:         toInt32Ptr(it.StoryID),
		CommitSHA:       it.CommitSHA,
	})
	if err != nil {
		return err
	}
	created, err := toJobIterationModel(row)
	if err != nil {
		return err
	}
	*it = *created
	return nil
}

func (s *jobIterationStore) ListByJob(ctx context.Context, jobID int64) ([]model.JobIteration, error) {
	rows, err := s.queries.ListJobIterationsByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	result := make([]model.JobIteration, 0, len(rows))
	for _, row := range rows {
		it, err := toJobIterationModel(row)
		if err != nil {
			return nil, err
		}
		result = append(result, *it)
	}
	return result, nil
}

func toJobIterationModel(row sqlc.JobIteration) (*model.JobIteration, error) {
	it := &model.JobIteration{
		ID:              row.ID,
		JobID:           row.JobID,
		IterationNumber: int(row.IterationNumber),
		Prompt:          row.Prompt,
		OutputSummary:   row.OutputSummary,
		PromiseDetected: row.PromiseDetected,
		ExitCode:        toIntPtr(row.ExitCode),
		StoryID:         toIntPtr(row.StoryID),
		CommitSHA:       row.CommitSHA,
		CreatedAt:       row.CreatedAt.Time,
	}
	if len(row.FeedbackResults) > 0 {
		if err := json.Unmarshal(row.FeedbackResults, &it.FeedbackResults); err != nil {
			return nil, err
		}
	}
	return it, nil
}
