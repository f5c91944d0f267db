package natsrpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/casualjim/tidings/pubsub"
	"github.com/fogfish/opts"
	json "github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
)

var _ pubsub.Broker = (*Client)(nil)

// Client is a pubsub.Broker that forwards every call to a Server over NATS.
//
// Subscribers passed to Connect and Reconnect only contribute their identity;
// the broker reaches them through a Listener serving that identity, which must
// be running before Connect so the immediate advertisement push succeeds.
type Client struct {
	prefix  string
	timeout time.Duration
	conn    *nats.Conn
}

// NewClient creates a broker client on conn.
func NewClient(conn *nats.Conn, options ...opts.Option[Client]) (*Client, error) {
	if conn == nil {
		return nil, errors.New("natsrpc: a NATS connection is required")
	}
	c := &Client{
		prefix:  DefaultPrefix,
		timeout: defaultRequestTimeout,
		conn:    conn,
	}
	if err := opts.Apply(c, options); err != nil {
		return nil, err
	}
	if c.timeout <= 0 {
		return nil, fmt.Errorf("natsrpc: request timeout must be positive, got %s", c.timeout)
	}
	return c, nil
}

func (c *Client) call(ctx context.Context, op string, req request) (reply, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return reply{}, fmt.Errorf("failed to encode %s request: %w", op, err)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	msg, err := c.conn.RequestWithContext(ctx, rpcSubject(c.prefix, op), data)
	if err != nil {
		return reply{}, fmt.Errorf("broker %s: %w", op, err)
	}
	resp, err := decodeReply(msg.Data)
	if err != nil {
		return reply{}, fmt.Errorf("broker %s: invalid reply: %w", op, err)
	}
	return resp, resp.asError()
}

func identityOf(sub pubsub.Subscriber) (string, error) {
	if sub == nil {
		return "", pubsub.ErrNilSubscriber
	}
	if err := validateIdentity(sub.Identity()); err != nil {
		return "", err
	}
	return sub.Identity(), nil
}

func (c *Client) Connect(ctx context.Context, sub pubsub.Subscriber) (int, error) {
	identity, err := identityOf(sub)
	if err != nil {
		return 0, err
	}
	resp, err := c.call(ctx, opConnect, request{Identity: identity})
	return resp.ID, err
}

func (c *Client) Reconnect(ctx context.Context, id int, sub pubsub.Subscriber) (int, error) {
	identity, err := identityOf(sub)
	if err != nil {
		return 0, err
	}
	resp, err := c.call(ctx, opReconnect, request{SubscriberID: id, Identity: identity})
	return resp.ID, err
}

func (c *Client) Unbind(ctx context.Context, id int) error {
	_, err := c.call(ctx, opUnbind, request{SubscriberID: id})
	return err
}

func (c *Client) GetSubscriber(ctx context.Context, id int) (string, bool, error) {
	resp, err := c.call(ctx, opGetSubscriber, request{SubscriberID: id})
	return resp.Identity, resp.Found, err
}

func (c *Client) AddTopic(ctx context.Context, topic pubsub.Topic) (int, error) {
	resp, err := c.call(ctx, opAddTopic, request{Topic: &topic})
	return resp.ID, err
}

func (c *Client) Topics(ctx context.Context) ([]pubsub.Topic, error) {
	resp, err := c.call(ctx, opTopics, request{})
	if err != nil {
		return nil, err
	}
	return resp.Topics, nil
}

func (c *Client) AddSubscriber(ctx context.Context, id int, topic pubsub.Topic) (bool, error) {
	resp, err := c.call(ctx, opAddSubscriber, request{SubscriberID: id, Topic: &topic})
	return resp.Found, err
}

func (c *Client) RemoveSubscriber(ctx context.Context, id int, topic pubsub.Topic) (bool, error) {
	resp, err := c.call(ctx, opRemoveSubscriber, request{SubscriberID: id, Topic: &topic})
	return resp.Found, err
}

func (c *Client) RemoveSubscriberAll(ctx context.Context, id int) (bool, error) {
	resp, err := c.call(ctx, opRemoveAll, request{SubscriberID: id})
	return resp.Found, err
}

func (c *Client) SubscribeKeyword(ctx context.Context, id int, keyword string) (bool, error) {
	resp, err := c.call(ctx, opSubscribeKeyword, request{SubscriberID: id, Keyword: keyword})
	return resp.Found, err
}

func (c *Client) UnsubscribeKeyword(ctx context.Context, id int, keyword string) (bool, error) {
	resp, err := c.call(ctx, opUnsubscribeKeyword, request{SubscriberID: id, Keyword: keyword})
	return resp.Found, err
}

func (c *Client) Publish(ctx context.Context, event pubsub.Event) (int, error) {
	resp, err := c.call(ctx, opPublish, request{Event: &event})
	return resp.ID, err
}
