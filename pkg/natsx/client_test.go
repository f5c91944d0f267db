package natsx

import (
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	t.Setenv("NATS_URL", "")
	nc, err := NewClient("")
	if err != nil {
		t.Skipf("no NATS server at %s: %v", nats.DefaultURL, err)
	}
	defer nc.Close()

	assert.True(t, nc.IsConnected())
	assert.Equal(t, "tidings", nc.Opts.Name)
	assert.Equal(t, -1, nc.Opts.MaxReconnect)
}

func TestNewClientUsesEnvironment(t *testing.T) {
	t.Setenv("NATS_URL", "nats://127.0.0.1:1")
	_, err := NewClient("", nats.Timeout(100*time.Millisecond), nats.NoReconnect())
	require.Error(t, err)
}
