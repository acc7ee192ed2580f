package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visiongate/visiongate/internal/errors"
	"github.com/visiongate/visiongate/internal/observability"
)

type recordingSub struct {
	id      string
	got     []Message
	fail    error
	panicOn bool
}

func (s *recordingSub) ID() string { return s.id }

func (s *recordingSub) Deliver(msg Message) error {
	if s.panicOn {
		panic("subscriber blew up")
	}
	if s.fail != nil {
		return s.fail
	}
	s.got = append(s.got, msg)
	return nil
}

// events returns delivered messages with connection acks filtered out.
func (s *recordingSub) events() []Message {
	var out []Message
	for _, m := range s.got {
		if m.Event != EventConnectionAck {
			out = append(out, m)
		}
	}
	return out
}

func (s *recordingSub) acks() int {
	n := 0
	for _, m := range s.got {
		if m.Event == EventConnectionAck {
			n++
		}
	}
	return n
}

func TestSubscribeAcknowledgesCallerOnly(t *testing.T) {
	d := NewDispatcher(50, time.Minute)
	first := &recordingSub{id: "c1"}
	second := &recordingSub{id: "c2"}

	require.True(t, d.Subscribe(TopicFaceRecognition, first))
	require.True(t, d.Subscribe(TopicFaceRecognition, second))

	assert.Equal(t, 1, first.acks(), "earlier subscriber must not see later acks")
	assert.Equal(t, 1, second.acks())
}

func TestBroadcastDelivers(t *testing.T) {
	d := NewDispatcher(50, time.Minute)
	sub := &recordingSub{id: "c1"}
	d.Subscribe(TopicFaceRecognition, sub)

	d.Broadcast(TopicFaceRecognition, EventFaceRecognition, map[string]string{"user": "u-1"})

	events := sub.events()
	require.Len(t, events, 1)
	assert.Equal(t, EventFaceRecognition, events[0].Event)
	assert.Equal(t, TopicFaceRecognition, events[0].Topic)
}

func TestBroadcastSkipsOtherTopics(t *testing.T) {
	d := NewDispatcher(50, time.Minute)
	sub := &recordingSub{id: "c1"}
	d.Subscribe(TopicTrafficMonitoring, sub)

	d.Broadcast(TopicFaceRecognition, EventFaceRecognition, nil)
	assert.Empty(t, sub.events())
}

func TestFailingSubscriberDoesNotBlockPeers(t *testing.T) {
	d := NewDispatcher(50, time.Minute)
	first := &recordingSub{id: "c1"}
	second := &recordingSub{id: "c2", fail: errors.NewStd("connection reset")}
	third := &recordingSub{id: "c3"}
	d.Subscribe(TopicFaceRecognition, first)
	d.Subscribe(TopicFaceRecognition, second)
	d.Subscribe(TopicFaceRecognition, third)

	metrics := observability.NewTestMetrics()
	d.SetMetrics(metrics)
	d.Broadcast(TopicFaceRecognition, EventFaceRecognition, nil)

	assert.Len(t, first.events(), 1)
	assert.Len(t, third.events(), 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.DispatchErrors))
}

func TestPanickingSubscriberIsIsolated(t *testing.T) {
	d := NewDispatcher(50, time.Minute)
	bad := &recordingSub{id: "boom", panicOn: true}
	good := &recordingSub{id: "ok"}
	d.Subscribe(TopicFaceRecognition, bad)
	d.Subscribe(TopicFaceRecognition, good)

	metrics := observability.NewTestMetrics()
	d.SetMetrics(metrics)
	assert.NotPanics(t, func() {
		d.Broadcast(TopicFaceRecognition, EventFaceRecognition, nil)
	})
	assert.Len(t, good.events(), 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.DispatchErrors))
}

func TestDuplicateSubscriptionIsNoop(t *testing.T) {
	d := NewDispatcher(50, time.Minute)
	sub := &recordingSub{id: "c1"}
	assert.True(t, d.Subscribe(TopicFaceRecognition, sub))
	assert.False(t, d.Subscribe(TopicFaceRecognition, sub))
	assert.Equal(t, 1, d.SubscriberCount(TopicFaceRecognition))
	assert.Equal(t, 2, sub.acks(), "re-subscribing is still acknowledged")

	d.Broadcast(TopicFaceRecognition, EventFaceRecognition, nil)
	assert.Len(t, sub.events(), 1, "duplicate subscription must not double-deliver")
}

func TestUnsubscribe(t *testing.T) {
	d := NewDispatcher(50, time.Minute)
	sub := &recordingSub{id: "c1"}
	d.Subscribe(TopicFaceRecognition, sub)
	d.Unsubscribe(TopicFaceRecognition, "c1")

	d.Broadcast(TopicFaceRecognition, EventFaceRecognition, nil)
	assert.Empty(t, sub.events())
	assert.Zero(t, d.SubscriberCount(TopicFaceRecognition))
}

func TestUnsubscribeAllRemovesEveryTopic(t *testing.T) {
	d := NewDispatcher(50, time.Minute)
	sub := &recordingSub{id: "c1"}
	d.Subscribe(TopicFaceRecognition, sub)
	d.Subscribe(TopicTrafficMonitoring, sub)

	d.UnsubscribeAll("c1")
	assert.NotPanics(t, func() { d.UnsubscribeAll("c1") })

	d.Broadcast(TopicFaceRecognition, EventFaceRecognition, nil)
	d.Broadcast(TopicTrafficMonitoring, EventVehicleDetected, nil)
	assert.Empty(t, sub.events())
}

func TestRecentEventsCapped(t *testing.T) {
	d := NewDispatcher(3, time.Minute)
	for i := 0; i < 5; i++ {
		d.Broadcast(TopicTrafficMonitoring, EventVehicleDetected, i)
	}

	recent := d.RecentEvents()
	require.Len(t, recent, 3)
	assert.Equal(t, 2, recent[0].Payload, "oldest retained event")
	assert.Equal(t, 4, recent[2].Payload, "newest event last")
}

func TestHeartbeatCarriesHealthStats(t *testing.T) {
	d := NewDispatcher(10, 20*time.Millisecond)
	d.SetHealthSource(func() (bool, int, uint64) { return true, 3, 42 })
	sub := &recordingSub{id: "hb"}
	d.Subscribe(TopicFaceRecognition, sub)

	d.Start(context.Background())
	time.Sleep(70 * time.Millisecond)
	d.Stop()

	events := sub.events()
	require.NotEmpty(t, events)
	assert.Equal(t, EventHealthCheck, events[0].Event)
	stats, ok := events[0].Payload.(HealthStats)
	require.True(t, ok)
	assert.True(t, stats.DeviceConnected)
	assert.Equal(t, 3, stats.AnalyzersRunning)
	assert.Equal(t, uint64(42), stats.TotalEventsProcessed)
	assert.Equal(t, 1, stats.SubscriberCount)
}

func TestRingEvictsOldest(t *testing.T) {
	r := newRing(2)
	r.add("a")
	r.add("b")
	r.add("c")
	assert.Equal(t, []any{"b", "c"}, r.snapshot())
}

func TestRingZeroCapacityFallsBackToDefault(t *testing.T) {
	r := newRing(0)
	assert.NotPanics(t, func() { r.add("a") })
	assert.Equal(t, []any{"a"}, r.snapshot())
	assert.Equal(t, defaultRingCapacity, r.cap)
}
