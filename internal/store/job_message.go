package store

import (
	"context"

	"basegraph.app/relay/core/db/sqlc"
	"basegraph.app/relay/internal/model"
)

type jobMessageStore struct {
	queries *sqlc.Queries
}

func newJobMessageStore(queries *sqlc.Queries) JobMessageStore {
	return &jobMessageStore{queries: queries}
}

func (s *jobMessageStore) Append(ctx context.Context, msg *model.JobMessage) error {
	row, err := s.queries.CreateJobMessage(ctx, sqlc.CreateJobMessageParams{
		JobID:   msg.JobID,
		Kind:    string(msg.Kind),
		Content: msg.Content,
	})
	if err != nil {
		return err
	}
	msg.ID = row.ID
	msg.CreatedAt = row.CreatedAt.Time
	return nil
}

func (s *jobMessageStore) ListByJob(ctx context.Context, jobID int64) ([]model.JobMessage, error) {
	rows, err := s.queries.ListJobMessagesByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	result := make([]model.JobMessage, 0, len(rows))
	for _, row := range rows {
		result = append(result, model.JobMessage{
			ID:        row.ID,
			JobID:     row.JobID,
			Kind:      model.JobMessageKind(row.Kind),
			Content:   row.Content,
			CreatedAt: row.CreatedAt.Time,
		})
	}
	return result, nil
}
