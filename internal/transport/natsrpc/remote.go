package natsrpc

import (
	"context"
	"fmt"

	"github.com/casualjim/tidings/pubsub"
	json "github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
)

var _ pubsub.Subscriber = (*remoteSubscriber)(nil)

// remoteSubscriber is the broker-side handle of an agent. Each callback is a
// NATS request to the agent's identity subjects and fails as soon as NATS
// reports no responders.
type remoteSubscriber struct {
	conn     *nats.Conn
	identity string
}

func newRemoteSubscriber(conn *nats.Conn, identity string) *remoteSubscriber {
	return &remoteSubscriber{conn: conn, identity: identity}
}

func (r *remoteSubscriber) Identity() string {
	return r.identity
}

func (r *remoteSubscriber) Notify(ctx context.Context, event pubsub.Event) error {
	return r.call(ctx, notifySubject(r.identity), event)
}

func (r *remoteSubscriber) NotifyAdvertisement(ctx context.Context, topic pubsub.Topic) error {
	return r.call(ctx, advertiseSubject(r.identity), topic)
}

func (r *remoteSubscriber) call(ctx context.Context, subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode callback for %s: %w", subject, err)
	}
	msg, err := r.conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		return fmt.Errorf("callback %s: %w", subject, err)
	}
	ack, err := decodeReply(msg.Data)
	if err != nil {
		return fmt.Errorf("callback %s: invalid ack: %w", subject, err)
	}
	return ack.asError()
}
