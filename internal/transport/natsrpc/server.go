package natsrpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/casualjim/tidings/internal/metrics"
	"github.com/casualjim/tidings/internal/registry"
	"github.com/casualjim/tidings/pkg/slogx"
	"github.com/casualjim/tidings/pubsub"
	"github.com/fogfish/opts"
	json "github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
)

// Server exposes a broker on NATS. Every inbound request is handled on its own
// goroutine, so a slow publish does not hold up other callers.
type Server struct {
	prefix string
	logger *slog.Logger

	conn    *nats.Conn
	broker  pubsub.Broker
	handles registry.Registry[*remoteSubscriber]

	mu     sync.Mutex
	subs   []*nats.Subscription
	ctx    context.Context
	closed bool
	wg     sync.WaitGroup
}

// NewServer creates a server for broker on conn. Call Start to begin serving.
func NewServer(conn *nats.Conn, broker pubsub.Broker, options ...opts.Option[Server]) (*Server, error) {
	if conn == nil {
		return nil, errors.New("natsrpc: a NATS connection is required")
	}
	if broker == nil {
		return nil, errors.New("natsrpc: a broker is required")
	}
	s := &Server{
		prefix:  DefaultPrefix,
		conn:    conn,
		broker:  broker,
		handles: registry.New[*remoteSubscriber](),
	}
	if err := opts.Apply(s, options); err != nil {
		return nil, err
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With(slogx.LoggerName("natsrpc.server"), slog.String("prefix", s.prefix))
	return s, nil
}

// Start subscribes to every operation subject. ctx is the parent context of
// all request handlers.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs != nil || s.closed {
		return errors.New("natsrpc: server already started")
	}
	s.ctx = ctx

	subs := make([]*nats.Subscription, 0, len(operations))
	for _, op := range operations {
		sub, err := s.conn.Subscribe(rpcSubject(s.prefix, op), func(msg *nats.Msg) {
			s.mu.Lock()
			if s.closed {
				s.mu.Unlock()
				return
			}
			s.wg.Add(1)
			s.mu.Unlock()
			go func() {
				defer s.wg.Done()
				s.handle(op, msg)
			}()
		})
		if err != nil {
			for _, prev := range subs {
				_ = prev.Unsubscribe()
			}
			return fmt.Errorf("failed to subscribe to %s: %w", rpcSubject(s.prefix, op), err)
		}
		subs = append(subs, sub)
	}
	if err := s.conn.Flush(); err != nil {
		s.logger.Warn("failed to flush subscriptions", slogx.Error(err))
	}
	s.subs = subs
	s.logger.Info("serving broker", slog.Int("operations", len(subs)))
	return nil
}

// Close stops accepting requests and waits for in-flight handlers.
func (s *Server) Close() error {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.closed = true
	s.mu.Unlock()

	var errs []error
	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			errs = append(errs, err)
		}
	}
	s.wg.Wait()
	return errors.Join(errs...)
}

// Handles reports how many distinct agent identities the server has seen.
func (s *Server) Handles() int {
	return s.handles.Len()
}

func (s *Server) handle(op string, msg *nats.Msg) {
	if msg.Reply == "" {
		s.logger.Warn("dropping request without reply subject", slog.String("op", op))
		return
	}

	start := time.Now()
	resp, outcome := s.serve(op, msg.Data)
	metrics.ObserveRequest(op, outcome, time.Since(start))
	s.respond(op, msg, resp)
}

func (s *Server) serve(op string, data []byte) (reply, string) {
	var req request
	if err := json.Unmarshal(data, &req); err != nil {
		return reply{Error: fmt.Sprintf("invalid request: %v", err)}, metrics.OutcomeError
	}

	resp, err := s.dispatch(s.ctx, op, req)
	switch {
	case err == nil:
		resp.OK = true
		return resp, metrics.OutcomeOK
	case pubsub.IsRejection(err) || errors.Is(err, ErrInvalidIdentity):
		return failure(err), metrics.OutcomeRejected
	default:
		s.logger.Error("request failed", slog.String("op", op), slogx.Error(err))
		return failure(err), metrics.OutcomeError
	}
}

func (s *Server) respond(op string, msg *nats.Msg, resp reply) {
	if err := msg.Respond(encodeReply(resp)); err != nil {
		s.logger.Error("failed to respond", slog.String("op", op), slogx.Error(err))
	}
}

func (s *Server) handleFor(identity string) (pubsub.Subscriber, error) {
	if err := validateIdentity(identity); err != nil {
		return nil, err
	}
	handle, _ := s.handles.GetOrAdd(identity, func() *remoteSubscriber {
		return newRemoteSubscriber(s.conn, identity)
	})
	return handle, nil
}

func (s *Server) dispatch(ctx context.Context, op string, req request) (reply, error) {
	switch op {
	case opConnect:
		sub, err := s.handleFor(req.Identity)
		if err != nil {
			return reply{}, err
		}
		id, err := s.broker.Connect(ctx, sub)
		return reply{ID: id}, err

	case opReconnect:
		sub, err := s.handleFor(req.Identity)
		if err != nil {
			return reply{}, err
		}
		id, err := s.broker.Reconnect(ctx, req.SubscriberID, sub)
		return reply{ID: id}, err

	case opUnbind:
		return reply{}, s.broker.Unbind(ctx, req.SubscriberID)

	case opGetSubscriber:
		identity, found, err := s.broker.GetSubscriber(ctx, req.SubscriberID)
		return reply{Identity: identity, Found: found}, err

	case opAddTopic:
		if req.Topic == nil {
			return reply{}, pubsub.ErrInvalidTopic
		}
		id, err := s.broker.AddTopic(ctx, *req.Topic)
		return reply{ID: id}, err

	case opTopics:
		topics, err := s.broker.Topics(ctx)
		if topics == nil {
			topics = []pubsub.Topic{}
		}
		return reply{Topics: topics}, err

	case opAddSubscriber:
		if req.Topic == nil {
			return reply{}, pubsub.ErrInvalidTopic
		}
		ok, err := s.broker.AddSubscriber(ctx, req.SubscriberID, *req.Topic)
		return reply{Found: ok}, err

	case opRemoveSubscriber:
		if req.Topic == nil {
			return reply{}, pubsub.ErrInvalidTopic
		}
		ok, err := s.broker.RemoveSubscriber(ctx, req.SubscriberID, *req.Topic)
		return reply{Found: ok}, err

	case opRemoveAll:
		ok, err := s.broker.RemoveSubscriberAll(ctx, req.SubscriberID)
		return reply{Found: ok}, err

	case opSubscribeKeyword:
		ok, err := s.broker.SubscribeKeyword(ctx, req.SubscriberID, req.Keyword)
		return reply{Found: ok}, err

	case opUnsubscribeKeyword:
		ok, err := s.broker.UnsubscribeKeyword(ctx, req.SubscriberID, req.Keyword)
		return reply{Found: ok}, err

	case opPublish:
		if req.Event == nil {
			return reply{}, pubsub.ErrInvalidTopic
		}
		id, err := s.broker.Publish(ctx, *req.Event)
		return reply{ID: id}, err
	}
	return reply{}, fmt.Errorf("unknown operation %q", op)
}
