package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/casualjim/tidings/client"
	"github.com/casualjim/tidings/internal/broker"
	"github.com/casualjim/tidings/internal/transport/natsrpc"
	"github.com/casualjim/tidings/pkg/uuidx"
	"github.com/fatih/color"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

func runAgent(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand(&out)
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSchemaCommand(t *testing.T) {
	out, err := runAgent(t, "schema", "event")
	require.NoError(t, err)
	assert.Contains(t, out, "published_at")
	assert.Contains(t, out, "date-time")

	_, err = runAgent(t, "schema", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "event, reply, request, topic")
}

func TestUnsubscribeArguments(t *testing.T) {
	t.Setenv("NATS_URL", "nats://127.0.0.1:1")
	_, err := runAgent(t, "unsubscribe")
	require.Error(t, err)
	_, err = runAgent(t, "unsubscribe", "--all", "weather")
	require.Error(t, err)
}

// startBroker serves an in-process broker on NATS under a fresh prefix.
func startBroker(t *testing.T) (string, *broker.Broker) {
	t.Helper()
	nc, err := nats.Connect(nats.DefaultURL)
	if err != nil {
		t.Skipf("no NATS server at %s: %v", nats.DefaultURL, err)
	}
	t.Cleanup(nc.Close)

	b, err := broker.New(broker.WithSweepInterval(20*time.Millisecond), broker.WithNotifyTimeout(500*time.Millisecond))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	b.Start(ctx)
	t.Cleanup(func() {
		cancel()
		_ = b.Close()
	})

	prefix := "tidingscli" + uuidx.NewToken()
	srv, err := natsrpc.NewServer(nc, b, natsrpc.WithServerPrefix(prefix))
	require.NoError(t, err)
	require.NoError(t, srv.Start(ctx))
	t.Cleanup(func() { _ = srv.Close() })
	return prefix, b
}

func TestAgentRoundTrip(t *testing.T) {
	prefix, b := startBroker(t)
	dir := t.TempDir()
	publisher := []string{"--nats", nats.DefaultURL, "--prefix", prefix, "--state", filepath.Join(dir, "publisher.json")}
	reader := []string{"--nats", nats.DefaultURL, "--prefix", prefix, "--state", filepath.Join(dir, "reader.json")}
	with := func(base []string, args ...string) []string {
		return append(append([]string(nil), base...), args...)
	}

	out, err := runAgent(t, with(publisher, "advertise", "Weather", "-k", "rain,snow")...)
	require.NoError(t, err)
	assert.Contains(t, out, "topic #1 Weather [rain, snow]")

	_, err = runAgent(t, with(publisher, "advertise", " Weather ")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	out, err = runAgent(t, with(reader, "subscribe", "WEATHER")...)
	require.NoError(t, err)
	assert.Contains(t, out, "subscribed to Weather")

	out, err = runAgent(t, with(reader, "keyword", "storm")...)
	require.NoError(t, err)
	assert.Contains(t, out, "storm added")

	out, err = runAgent(t, with(publisher, "publish", "weather", "Front", "cold air", "-k", "storm")...)
	require.NoError(t, err)
	assert.Contains(t, out, "event #1 Weather Front: cold air [storm]")

	// the reader was away, the event waits at the broker
	readerState, err := client.ReadState(filepath.Join(dir, "reader.json"))
	require.NoError(t, err)
	assert.Equal(t, []int{readerState.ID}, b.PendingNotifications(1))

	out, err = runAgent(t, with(reader, "inbox", "--wait", "300ms")...)
	require.NoError(t, err)
	assert.Contains(t, out, "received events (1)")
	assert.Contains(t, out, "Front: cold air")
	assert.Contains(t, out, "keywords (1)")
	assert.Empty(t, b.PendingNotifications(1))

	out, err = runAgent(t, with(reader, "topics", "--style", "notty")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Weather")

	out, err = runAgent(t, with(reader, "unsubscribe", "--all")...)
	require.NoError(t, err)
	assert.Contains(t, out, "unsubscribed from all")
	assert.Empty(t, b.Snapshot().Keywords)

	_, err = runAgent(t, with(reader, "publish", "climate", "x")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not listed")
}
