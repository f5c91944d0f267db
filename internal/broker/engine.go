package broker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/casualjim/tidings/pkg/idset"
	"github.com/casualjim/tidings/pkg/slogx"
	"github.com/casualjim/tidings/pubsub"
)

// deliverFunc pushes payload to one subscriber.
type deliverFunc[T any] func(context.Context, pubsub.Subscriber, T) error

func notifyEvent(ctx context.Context, sub pubsub.Subscriber, event pubsub.Event) error {
	return sub.Notify(ctx, event.Clone())
}

func notifyAdvertisement(ctx context.Context, sub pubsub.Subscriber, topic pubsub.Topic) error {
	return sub.NotifyAdvertisement(ctx, topic.Clone())
}

// engine delivers one kind of payload: it makes the immediate attempt on the
// caller's goroutine and owns the retry queue and sweep loop for leftovers.
type engine[T any] struct {
	name     string
	registry *connectionRegistry
	queue    *retryQueue[T]
	deliver  deliverFunc[T]
	timeout  time.Duration
	interval time.Duration
	logger   *slog.Logger
}

func newEngine[T any](name string, registry *connectionRegistry, deliver deliverFunc[T], interval, timeout time.Duration, logger *slog.Logger) *engine[T] {
	return &engine[T]{
		name:     name,
		registry: registry,
		queue:    newRetryQueue[T](),
		deliver:  deliver,
		timeout:  timeout,
		interval: interval,
		logger:   logger.With(slog.String("engine", name)),
	}
}

// dispatch makes one delivery attempt to every target and queues the payload
// for retry when anyone is left. targets must not be shared yet.
func (e *engine[T]) dispatch(ctx context.Context, payload T, targets *idset.Set) int {
	left := targets.Drain(func(id int) bool {
		return e.deliverTo(ctx, id, payload)
	})
	if left > 0 {
		e.logger.DebugContext(ctx, "queueing for retry", slogx.Pending(left))
		e.queue.push(&pending[T]{payload: payload, targets: targets})
	}
	return left
}

// deliverTo reports whether subscriber id was reached. A disconnected
// subscriber or a failing callback leaves it pending.
func (e *engine[T]) deliverTo(ctx context.Context, id int, payload T) (ok bool) {
	sub, connected := e.registry.lookup(id)
	if !connected {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			e.logger.ErrorContext(ctx, "subscriber callback panicked", slogx.SubscriberID(id), slog.String("panic", fmt.Sprint(r)))
			ok = false
		}
	}()

	if err := e.deliver(ctx, sub, payload); err != nil {
		e.logger.DebugContext(ctx, "delivery failed", slogx.SubscriberID(id), slogx.Error(err))
		return false
	}
	return true
}

// sweep retries every queued item once.
func (e *engine[T]) sweep(ctx context.Context) {
	for _, item := range e.queue.list() {
		if ctx.Err() != nil {
			return
		}
		var delivered []int
		for _, id := range e.queue.targetsOf(item) {
			if e.deliverTo(ctx, id, item.payload) {
				delivered = append(delivered, id)
			}
		}
		if len(delivered) > 0 {
			left := e.queue.settle(item, delivered)
			e.logger.DebugContext(ctx, "retried delivery", slog.Int("delivered", len(delivered)), slogx.Pending(left))
		}
	}
}

// run sweeps on a fixed cadence until ctx is done. It sleeps while the queue
// is empty and wakes as soon as something is queued.
func (e *engine[T]) run(ctx context.Context) {
	e.logger.DebugContext(ctx, "sweep loop started", slog.Duration("interval", e.interval))
	defer e.logger.DebugContext(ctx, "sweep loop stopped")

	timer := time.NewTimer(e.interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if !e.queue.waitNonEmpty(ctx) {
			return
		}
		e.sweep(ctx)
		timer.Reset(e.interval)
	}
}
