package natsrpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/casualjim/tidings/pkg/slogx"
	"github.com/casualjim/tidings/pubsub"
	"github.com/fogfish/opts"
	json "github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
)

// Listener serves the push callbacks of one subscriber on its identity
// subjects. Callbacks are handled in arrival order.
type Listener struct {
	logger *slog.Logger

	sub     pubsub.Subscriber
	notify  *nats.Subscription
	adverts *nats.Subscription
}

// Listen subscribes sub's identity subjects on conn. The callbacks run with
// ctx as their parent context.
func Listen(ctx context.Context, conn *nats.Conn, sub pubsub.Subscriber, options ...opts.Option[Listener]) (*Listener, error) {
	if conn == nil {
		return nil, errors.New("natsrpc: a NATS connection is required")
	}
	identity, err := identityOf(sub)
	if err != nil {
		return nil, err
	}
	l := &Listener{sub: sub}
	if err := opts.Apply(l, options); err != nil {
		return nil, err
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	l.logger = l.logger.With(slogx.LoggerName("natsrpc.listener"), slog.String("identity", identity))

	l.notify, err = conn.Subscribe(notifySubject(identity), func(msg *nats.Msg) {
		var event pubsub.Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			l.ack(msg, fmt.Errorf("invalid event: %w", err))
			return
		}
		l.ack(msg, sub.Notify(ctx, event))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", notifySubject(identity), err)
	}

	l.adverts, err = conn.Subscribe(advertiseSubject(identity), func(msg *nats.Msg) {
		var topic pubsub.Topic
		if err := json.Unmarshal(msg.Data, &topic); err != nil {
			l.ack(msg, fmt.Errorf("invalid topic: %w", err))
			return
		}
		l.ack(msg, sub.NotifyAdvertisement(ctx, topic))
	})
	if err != nil {
		_ = l.notify.Unsubscribe()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", advertiseSubject(identity), err)
	}

	if err := conn.Flush(); err != nil {
		l.logger.Warn("failed to flush subscriptions", slogx.Error(err))
	}
	return l, nil
}

// Identity returns the identity the listener serves.
func (l *Listener) Identity() string {
	return l.sub.Identity()
}

func (l *Listener) ack(msg *nats.Msg, err error) {
	resp := reply{OK: true}
	if err != nil {
		l.logger.Warn("callback failed", slog.String("subject", msg.Subject), slogx.Error(err))
		resp = failure(err)
	}
	if msg.Reply == "" {
		return
	}
	if rerr := msg.Respond(encodeReply(resp)); rerr != nil {
		l.logger.Error("failed to ack callback", slogx.Error(rerr))
	}
}

// Close stops serving callbacks. The broker treats the subscriber as
// unreachable from then on.
func (l *Listener) Close() error {
	var errs []error
	for _, sub := range []*nats.Subscription{l.notify, l.adverts} {
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
