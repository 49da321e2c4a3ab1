// Package queue carries the scheduler's dispatch wake signal over Redis
// Pub/Sub and a best-effort live status stream over Redis Streams. Neither
// holds authoritative job state — that lives in Postgres — so a dropped
// message here only delays a dispatch pass until the next safety-net tick,
// never loses a job.
package queue

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const dispatchChannel = "agent-jobs:dispatch"

// WakeSignal publishes to, and subscribes on, the scheduler's dispatch
// channel.
type WakeSignal struct {
	client *redis.Client
}

func NewWakeSignal(client *redis.Client) *WakeSignal {
	return &WakeSignal{client: client}
}

// Publish asks any subscribed scheduler to run a dispatch pass. Errors are
// logged, not returned: a failed publish just means the safety-net ticker
// picks up the work a little later.
func (w *WakeSignal) Publish(ctx context.Context) {
	if err := w.client.Publish(ctx, dispatchChannel, "1").Err(); err != nil {
		slog.WarnContext(ctx, "publishing dispatch wake signal", "error", err)
	}
}

// Subscribe returns a channel of wake pulses for scheduler.Config.Wake. The
// returned channel is closed when ctx is done.
func (w *WakeSignal) Subscribe(ctx context.Context) <-chan struct{} {
	sub := w.client.Subscribe(ctx, dispatchChannel)
	out := make(chan struct{}, 1)

	go func() {
		defer close(out)
		defer sub.Close()

		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()

	return out
}
