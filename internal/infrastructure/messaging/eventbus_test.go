package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/skillpath/skillpath-hub/internal/domain/shared"
	"github.com/skillpath/skillpath-hub/pkg/circuitbreaker"
)

// go-redis starts one process-wide clock goroutine on first use.
var ignoreRedisTimeCache = goleak.IgnoreAnyFunction("github.com/redis/go-redis/v9/internal/pool.startGlobalTimeCache.func1")

func TestInMemoryEventBus_Sync(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{EnableMetrics: true})
	defer bus.Close()

	var typed, all []shared.EventType
	require.NoError(t, bus.Subscribe(shared.EventCourseCompleted, func(e shared.Event) error {
		typed = append(typed, e.EventType())
		return nil
	}))
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		all = append(all, e.EventType())
		return errors.New("ignored")
	}))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { panic("boom") }))

	require.NoError(t, bus.Publish(shared.NewCourseCompletedEvent("0xA", "initiation")))
	require.NoError(t, bus.Publish(shared.NewProgressResetEvent("0xA", "initiation")))

	assert.Equal(t, []shared.EventType{shared.EventCourseCompleted}, typed)
	assert.Equal(t, []shared.EventType{shared.EventCourseCompleted, shared.EventProgressReset}, all)

	snap := bus.Metrics().Snapshot()
	assert.Equal(t, int64(2), snap.TotalPublished)
	assert.Equal(t, int64(5), snap.TotalHandlerExecs)
	assert.Equal(t, int64(4), snap.HandlerFailures)
}

func TestInMemoryEventBus_AsyncClose(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreRedisTimeCache)

	bus := NewInMemoryEventBus(DefaultInMemoryEventBusConfig())
	var (
		mu    sync.Mutex
		count int
	)
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	}))

	for i := 0; i < 20; i++ {
		require.NoError(t, bus.Publish(shared.NewCourseCompletedEvent("0xA", "initiation")))
	}
	require.NoError(t, bus.Close())

	mu.Lock()
	assert.LessOrEqual(t, count, 20)
	mu.Unlock()

	assert.ErrorIs(t, bus.Publish(shared.NewCourseCompletedEvent("0xA", "initiation")), ErrEventBusClosed)
	assert.ErrorIs(t, bus.SubscribeAll(func(shared.Event) error { return nil }), ErrEventBusClosed)
}

// hub is an in-process stand-in for a Redis channel shared by instances.
type hub struct {
	mu   sync.Mutex
	subs []chan RedisMessage
}

type hubClient struct {
	h        *hub
	failTx   bool
	attempts int
}

func (c *hubClient) Publish(_ context.Context, channel string, message []byte) error {
	c.attempts++
	if c.failTx {
		return errors.New("redis down")
	}
	c.h.mu.Lock()
	defer c.h.mu.Unlock()
	for _, s := range c.h.subs {
		s <- RedisMessage{Channel: channel, Payload: string(message)}
	}
	return nil
}

func (c *hubClient) Subscribe(context.Context, string) (<-chan RedisMessage, error) {
	ch := make(chan RedisMessage, 16)
	c.h.mu.Lock()
	c.h.subs = append(c.h.subs, ch)
	c.h.mu.Unlock()
	return ch, nil
}

func (c *hubClient) Close() error { return nil }

func TestRedisEventBus_FanOut(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreRedisTimeCache)

	h := &hub{}
	local := InMemoryEventBusConfig{AsyncMode: false}
	a, err := NewRedisEventBus(RedisEventBusConfig{Client: &hubClient{h: h}, LocalBusConfig: local})
	require.NoError(t, err)
	b, err := NewRedisEventBus(RedisEventBusConfig{Client: &hubClient{h: h}, LocalBusConfig: local})
	require.NoError(t, err)

	got := make(chan shared.Event, 4)
	var onA int
	require.NoError(t, a.SubscribeAll(func(shared.Event) error { onA++; return nil }))
	require.NoError(t, b.SubscribeAll(func(e shared.Event) error { got <- e; return nil }))

	ev := shared.NewCredentialClaimedEvent("0xA", 3, "initiation", "Initiation", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	ev.BaseEvent = ev.WithCorrelationID("req-1")
	require.NoError(t, a.Publish(ev))

	select {
	case e := <-got:
		assert.Equal(t, shared.EventCredentialClaimed, e.EventType())
		assert.Equal(t, "0xA", e.AggregateID())
		assert.Equal(t, "initiation", e.Payload()["course_id"])
		assert.Equal(t, float64(3), e.Payload()["token_id"])
		c, ok := e.(interface{ Correlation() string })
		require.True(t, ok)
		assert.Equal(t, "req-1", c.Correlation())
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered to the other instance")
	}

	require.NoError(t, a.Close())
	require.NoError(t, b.Close())

	// delivered locally once, never echoed back from the channel
	assert.Equal(t, 1, onA)
}

func TestRedisEventBus_PublishFailureStillDeliversLocally(t *testing.T) {
	bus, err := NewRedisEventBus(RedisEventBusConfig{
		Client:         &hubClient{h: &hub{}, failTx: true},
		LocalBusConfig: InMemoryEventBusConfig{AsyncMode: false},
	})
	require.NoError(t, err)
	defer bus.Close()

	var n int
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { n++; return nil }))
	require.NoError(t, bus.Publish(shared.NewCourseCompletedEvent("0xA", "initiation")))
	assert.Equal(t, 1, n)
}

func TestRedisEventBus_BreakerStopsPublishing(t *testing.T) {
	client := &hubClient{h: &hub{}, failTx: true}
	bus, err := NewRedisEventBus(RedisEventBusConfig{
		Client:         client,
		LocalBusConfig: InMemoryEventBusConfig{AsyncMode: false},
		Breaker:        circuitbreaker.New(circuitbreaker.Config{FailureThreshold: 2, CoolDown: time.Hour}),
	})
	require.NoError(t, err)
	defer bus.Close()

	var n int
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { n++; return nil }))
	for i := 0; i < 4; i++ {
		require.NoError(t, bus.Publish(shared.NewCourseCompletedEvent("0xA", "initiation")))
	}

	assert.Equal(t, 4, n)
	assert.Equal(t, 2, client.attempts)
}

func TestNewRedisEventBus_RequiresClient(t *testing.T) {
	_, err := NewRedisEventBus(RedisEventBusConfig{})
	assert.Error(t, err)
}
