package queue

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const statusStreamMaxLen = 2000

// StatusPublisher mirrors job lifecycle events onto a best-effort Redis
// stream for live status consumers (e.g. a dashboard); the database remains
// the system of record.
type StatusPublisher struct {
	client *redis.Client
	stream string
}

func NewStatusPublisher(client *redis.Client, stream string) *StatusPublisher {
	return &StatusPublisher{client: client, stream: stream}
}

func (p *StatusPublisher) Publish(ctx context.Context, jobID int64, status string, fields map[string]any) {
	values := map[string]any{
		"job_id": jobID,
		"status": status,
	}
	for k, v := range fields {
		values[k] = v
	}

	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: statusStreamMaxLen,
		Approx: true,
		Values: values,
	}).Err()
	if err != nil {
		slog.WarnContext(ctx, "publishing job status", "job_id", jobID, "error", err)
	}
}
