package client

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/casualjim/tidings/pkg/slogx"
	"github.com/casualjim/tidings/pubsub"
)

// retry runs call until it succeeds, the broker rejects the request, ctx ends
// or the attempts run out.
func (a *Agent) retry(ctx context.Context, op string, call func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= a.attempts; attempt++ {
		lastErr = call(ctx)
		if lastErr == nil || pubsub.IsRejection(lastErr) {
			return lastErr
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.logger.WarnContext(ctx, "broker unreachable, retrying",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slogx.Error(lastErr),
		)
		if attempt == a.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.delay):
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, a.attempts, lastErr)
}
