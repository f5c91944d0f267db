package natsrpc

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/casualjim/tidings/pkg/uuidx"
	"github.com/casualjim/tidings/pubsub"
	"github.com/nats-io/nats.go"
)

var errOffline = errors.New("offline")

type recorder struct {
	identity string
	offline  atomic.Bool

	mu     sync.Mutex
	events []pubsub.Event
	topics []pubsub.Topic
}

func newRecorder(prefix string) *recorder {
	return &recorder{identity: NewIdentity(prefix)}
}

func (r *recorder) Identity() string { return r.identity }

func (r *recorder) Notify(_ context.Context, e pubsub.Event) error {
	if r.offline.Load() {
		return errOffline
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) NotifyAdvertisement(_ context.Context, t pubsub.Topic) error {
	if r.offline.Load() {
		return errOffline
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, t)
	return nil
}

func (r *recorder) eventTitles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var titles []string
	for _, e := range r.events {
		titles = append(titles, e.Title)
	}
	return titles
}

func (r *recorder) topicNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var names []string
	for _, t := range r.topics {
		names = append(names, t.Name)
	}
	return names
}

// connectNATS returns a connection to the local test server, skipping the test
// when none is running.
func connectNATS(t *testing.T) *nats.Conn {
	t.Helper()
	nc, err := nats.Connect(nats.DefaultURL)
	if err != nil {
		t.Skipf("no NATS server at %s: %v", nats.DefaultURL, err)
	}
	t.Cleanup(nc.Close)
	return nc
}

// testPrefix isolates concurrent test runs sharing one NATS server.
func testPrefix() string {
	return "tidingstest" + uuidx.NewToken()
}
