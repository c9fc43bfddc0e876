package events

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"wazmeow/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPublish_RunsHandlersInSubscriptionOrder(t *testing.T) {
	bus := New("test")
	var order []string

	bus.Subscribe(domain.EventSessionStarted, func(domain.Event) { order = append(order, "first") })
	bus.SubscribeAll(func(domain.Event) { order = append(order, "all") })
	bus.Subscribe(domain.EventSessionStarted, func(domain.Event) { order = append(order, "second") })
	bus.Subscribe(domain.EventSessionStopped, func(domain.Event) { order = append(order, "other") })

	require.NoError(t, bus.Publish(domain.NewEvent("s1", domain.SessionStarted{})))
	assert.Equal(t, []string{"first", "all", "second"}, order)
}

func TestPublish_PanickingHandlerDoesNotStopOthers(t *testing.T) {
	bus := New("test")
	var called bool

	bus.Subscribe(domain.EventSessionStarted, func(domain.Event) { panic("boom") })
	bus.Subscribe(domain.EventSessionStarted, func(domain.Event) { called = true })

	require.NoError(t, bus.Publish(domain.NewEvent("s1", domain.SessionStarted{})))
	assert.True(t, called)
}

func TestSubscribeOnce_FiresOnce(t *testing.T) {
	bus := New("test")
	var n int

	bus.SubscribeOnce(domain.EventQRIssued, func(domain.Event) { n++ })

	for i := 0; i < 3; i++ {
		require.NoError(t, bus.Publish(domain.NewEvent("s1", domain.QRIssued{Code: "x"})))
	}
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, bus.Len())
}

func TestUnsubscribe(t *testing.T) {
	bus := New("test")
	var n int

	sub := bus.Subscribe(domain.EventSessionStarted, func(domain.Event) { n++ })
	assert.Equal(t, domain.EventSessionStarted, sub.Kind())

	assert.True(t, bus.Unsubscribe(sub))
	assert.False(t, bus.Unsubscribe(sub))

	require.NoError(t, bus.Publish(domain.NewEvent("s1", domain.SessionStarted{})))
	assert.Zero(t, n)
}

func TestUnsubscribeDuringPublish(t *testing.T) {
	bus := New("test")
	var second int
	var sub Subscription

	bus.Subscribe(domain.EventSessionStarted, func(domain.Event) { bus.Unsubscribe(sub) })
	sub = bus.Subscribe(domain.EventSessionStarted, func(domain.Event) { second++ })

	// The snapshot taken before dispatch still includes the second handler.
	require.NoError(t, bus.Publish(domain.NewEvent("s1", domain.SessionStarted{})))
	require.NoError(t, bus.Publish(domain.NewEvent("s1", domain.SessionStarted{})))
	assert.Equal(t, 1, second)
}

func TestPublish_RejectsMismatchedPayload(t *testing.T) {
	bus := New("test")
	var called bool
	bus.SubscribeAll(func(domain.Event) { called = true })

	event := domain.NewEvent("s1", domain.SessionStopped{})
	event.Kind = domain.EventSessionStarted

	assert.Error(t, bus.Publish(event))
	assert.Error(t, bus.Publish(domain.Event{Kind: domain.EventSessionStarted}))
	assert.False(t, called)
}

func TestGlobal_StampsMissingFields(t *testing.T) {
	bus := NewGlobal()
	var got domain.Event
	bus.SubscribeAll(func(e domain.Event) { got = e })

	require.NoError(t, bus.PublishFor("s9", domain.Event{
		Kind:    domain.EventSessionStopped,
		Payload: domain.SessionStopped{},
	}))

	assert.Equal(t, domain.SessionID("s9"), got.SessionID)
	assert.NotEmpty(t, got.ID)
	assert.False(t, got.Timestamp.IsZero())
}

func TestPublishFor_KeepsExistingSessionID(t *testing.T) {
	bus := New("test")
	var got domain.Event
	bus.SubscribeAll(func(e domain.Event) { got = e })

	require.NoError(t, bus.PublishFor("other", domain.NewEvent("s1", domain.SessionStarted{})))
	assert.Equal(t, domain.SessionID("s1"), got.SessionID)
}

func TestPublish_ConcurrentPublishers(t *testing.T) {
	bus := NewGlobal()
	var count atomic.Int64
	bus.Subscribe(domain.EventMessageReceived, func(domain.Event) { count.Add(1) })

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = bus.Publish(domain.NewEvent("s1", domain.MessageReceived{}))
			}
		}()
	}

	// Subscribing while publishers run must not race.
	extra := bus.SubscribeAll(func(domain.Event) {})
	wg.Wait()
	bus.Unsubscribe(extra)

	assert.Equal(t, int64(800), count.Load())
}

func TestPublish_MetricsAreLabelledByScope(t *testing.T) {
	kind := string(domain.EventSessionStopped)
	sessionBefore := counterValue(t, eventsPublished.WithLabelValues("session", kind))
	globalBefore := counterValue(t, eventsPublished.WithLabelValues("global", kind))

	require.NoError(t, New("session:alpha").Publish(domain.NewEvent("alpha", domain.SessionStopped{})))
	require.NoError(t, New("session:beta").Publish(domain.NewEvent("beta", domain.SessionStopped{})))
	require.NoError(t, NewGlobal().Publish(domain.NewEvent("alpha", domain.SessionStopped{})))

	assert.Equal(t, sessionBefore+2, counterValue(t, eventsPublished.WithLabelValues("session", kind)))
	assert.Equal(t, globalBefore+1, counterValue(t, eventsPublished.WithLabelValues("global", kind)))
	assert.False(t, eventsPublished.DeleteLabelValues("session:alpha", kind))
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}
