package metrics

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/casualjim/tidings/internal/broker"
	"github.com/casualjim/tidings/pubsub"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedStats broker.Stats

func (f fixedStats) Stats() broker.Stats { return broker.Stats(f) }

func TestObserveRequest(t *testing.T) {
	counter := RequestsTotal.WithLabelValues("publish", OutcomeRejected)
	before := testutil.ToFloat64(counter)

	ObserveRequest("publish", OutcomeRejected, 3*time.Millisecond)
	ObserveRequest("publish", OutcomeRejected, 5*time.Millisecond)

	assert.InDelta(t, before+2, testutil.ToFloat64(counter), 0.001)
	assert.Positive(t, testutil.CollectAndCount(RequestDuration, "tidings_rpc_request_duration_seconds"))
}

func TestCollector(t *testing.T) {
	c := NewCollector(fixedStats{
		Topics:                3,
		Subscribers:           4,
		Connected:             2,
		Keywords:              1,
		PendingEvents:         5,
		PendingAdvertisements: 1,
	})

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))

	expected := `
# HELP tidings_connected_subscribers Number of subscriber IDs bound to a live handle
# TYPE tidings_connected_subscribers gauge
tidings_connected_subscribers 2
# HELP tidings_pending_events Number of events that still have undelivered subscribers
# TYPE tidings_pending_events gauge
tidings_pending_events 5
# HELP tidings_pending_advertisements Number of topics that still have unnotified subscribers
# TYPE tidings_pending_advertisements gauge
tidings_pending_advertisements 1
# HELP tidings_topics Number of advertised topics
# TYPE tidings_topics gauge
tidings_topics 3
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"tidings_topics", "tidings_connected_subscribers", "tidings_pending_events",
		"tidings_pending_advertisements")
	require.NoError(t, err)
	assert.Equal(t, 6, testutil.CollectAndCount(c))
}

func TestCollectorReadsOnScrape(t *testing.T) {
	b, err := broker.New()
	require.NoError(t, err)
	c := NewCollector(b)

	assert.InDelta(t, 0, gauge(t, c, "tidings_topics"), 0.001)

	_, err = b.AddTopic(context.Background(), pubsub.Topic{Name: "weather"})
	require.NoError(t, err)
	assert.InDelta(t, 1, gauge(t, c, "tidings_topics"), 0.001)
}

func gauge(t *testing.T, c prometheus.Collector, name string) float64 {
	t.Helper()
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(c))
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			require.Len(t, f.GetMetric(), 1)
			return f.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s not gathered", name)
	return 0
}
