package broker

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/casualjim/tidings/pkg/idset"
	"github.com/casualjim/tidings/pubsub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newTestEngine(r *connectionRegistry) *engine[pubsub.Event] {
	return newEngine("events", r, notifyEvent, 10*time.Millisecond, 50*time.Millisecond, slog.Default())
}

func TestEngineDispatch(t *testing.T) {
	ctx := context.Background()

	t.Run("reachable targets are drained", func(t *testing.T) {
		r := newConnectionRegistry()
		a := newRecordingSubscriber("a")
		id := r.connect(a)
		e := newTestEngine(r)

		left := e.dispatch(ctx, pubsub.Event{ID: 1, Title: "hello"}, idset.New(id))
		assert.Zero(t, left)
		assert.Zero(t, e.queue.len())
		require.Len(t, a.receivedEvents(), 1)
	})

	t.Run("unreachable and disconnected targets are queued", func(t *testing.T) {
		r := newConnectionRegistry()
		ok := newRecordingSubscriber("ok")
		failing := newRecordingSubscriber("failing")
		failing.unreachable.Store(true)
		okID := r.connect(ok)
		failingID := r.connect(failing)
		goneID := r.connect(newRecordingSubscriber("gone"))
		r.unbind(goneID)
		e := newTestEngine(r)

		left := e.dispatch(ctx, pubsub.Event{ID: 1}, idset.New(okID, failingID, goneID))
		assert.Equal(t, 2, left)
		assert.Equal(t, 1, e.queue.len())

		ids, found := e.queue.find(func(ev pubsub.Event) bool { return ev.ID == 1 })
		assert.True(t, found)
		assert.Equal(t, []int{failingID, goneID}, ids)
	})

	t.Run("a panicking subscriber stays pending", func(t *testing.T) {
		r := newConnectionRegistry()
		id := r.connect(panickingSubscriber{})
		e := newTestEngine(r)

		assert.NotPanics(t, func() {
			assert.Equal(t, 1, e.dispatch(ctx, pubsub.Event{ID: 1}, idset.New(id)))
		})
	})

	t.Run("a slow subscriber fails fast", func(t *testing.T) {
		r := newConnectionRegistry()
		slow := &blockingSubscriber{}
		slowID := r.connect(slow)
		fast := newRecordingSubscriber("fast")
		fastID := r.connect(fast)
		e := newTestEngine(r)

		start := time.Now()
		left := e.dispatch(ctx, pubsub.Event{ID: 1}, idset.New(slowID, fastID))
		assert.Less(t, time.Since(start), time.Second)
		assert.Equal(t, 1, left)
		assert.Len(t, fast.receivedEvents(), 1)
	})
}

func TestEngineSweep(t *testing.T) {
	ctx := context.Background()
	r := newConnectionRegistry()
	a := newRecordingSubscriber("a")
	a.unreachable.Store(true)
	b := newRecordingSubscriber("b")
	b.unreachable.Store(true)
	aID, bID := r.connect(a), r.connect(b)
	e := newTestEngine(r)

	e.dispatch(ctx, pubsub.Event{ID: 1}, idset.New(aID, bID))
	e.dispatch(ctx, pubsub.Event{ID: 2}, idset.New(aID))
	require.Equal(t, 2, e.queue.len())

	a.unreachable.Store(false)
	e.sweep(ctx)

	assert.Len(t, a.receivedEvents(), 2)
	assert.Equal(t, 1, e.queue.len())
	ids, _ := e.queue.find(func(ev pubsub.Event) bool { return ev.ID == 1 })
	assert.Equal(t, []int{bID}, ids)

	b.unreachable.Store(false)
	e.sweep(ctx)
	assert.Zero(t, e.queue.len())
	assert.Len(t, b.receivedEvents(), 1)

	e.sweep(ctx)
	assert.Len(t, a.receivedEvents(), 2, "drained items are never retried")
}

func TestRetryQueueWait(t *testing.T) {
	t.Run("returns false when the context ends", func(t *testing.T) {
		q := newRetryQueue[int]()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.False(t, q.waitNonEmpty(ctx))
	})

	t.Run("wakes on push", func(t *testing.T) {
		q := newRetryQueue[int]()
		done := make(chan bool)
		go func() { done <- q.waitNonEmpty(context.Background()) }()

		q.push(&pending[int]{payload: 1, targets: idset.New(1)})
		select {
		case ok := <-done:
			assert.True(t, ok)
		case <-time.After(time.Second):
			t.Fatal("waiter was not woken")
		}
	})

	t.Run("a stale wake token does not end the wait", func(t *testing.T) {
		q := newRetryQueue[int]()
		item := &pending[int]{payload: 1, targets: idset.New(1)}
		q.push(item)
		q.settle(item, []int{1})

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()
		assert.False(t, q.waitNonEmpty(ctx))
	})
}

func TestSweepLoopsStop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	b, err := New(WithSweepInterval(5 * time.Millisecond))
	require.NoError(t, err)
	b.Start(context.Background())
	b.Start(context.Background())

	sub := newRecordingSubscriber("a")
	sub.unreachable.Store(true)
	_, err = b.Connect(context.Background(), sub)
	require.NoError(t, err)
	_, err = b.AddTopic(context.Background(), pubsub.NewTopic("sports"))
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
}
