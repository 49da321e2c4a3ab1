package sqlc

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

type JobMessage struct {
	ID        int64
	JobID     int64
	Kind      string
	Content   string
	CreatedAt pgtype.Timestamptz
}

type CreateJobMessageParams struct {
	JobID   int64
	Kind    string
	Content string
}

func (q *Queries) CreateJobMessage(ctx context.Context, arg CreateJobMessageParams) (JobMessage, error) {
	var row JobMessage
	err := q.db.QueryRow(ctx, `
		INSERT INTO agent_job_messages (job_id, kind, content, created_at)
		VALUES ($1, $2, $3, now())
		RETURNING id, job_id, kind, content, created_at
	`, arg.JobID, arg.Kind, arg.Content).Scan(
		&row.ID, &row.JobID, &row.Kind, &row.Content, &row.CreatedAt,
	)
	return row, err
}

func (q *Queries) ListJobMessagesByJob(ctx context.Context, jobID int64) ([]JobMessage, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, job_id, kind, content, created_at
		FROM agent_job_messages WHERE job_id = $1 ORDER BY created_at ASC
	`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []JobMessage
	for rows.Next() {
		var row JobMessage
		if err := rows.Scan(&row.ID, &row.JobID, &row.Kind, &row.Content, &row.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}
