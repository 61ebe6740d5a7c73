package distributed

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"callrelay/internal/core/domain"
	"callrelay/pkg/circuitbreaker"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestEventBus_DispatchSkipsOwnEvents(t *testing.T) {
	bus := NewEventBus(nil, "instance-a", "", zap.NewNop().Sugar())
	assert.Equal(t, DefaultChannel, bus.channel)

	var got []*domain.Event
	handler := func(e *domain.Event) error {
		got = append(got, e)
		return nil
	}

	own, _ := json.Marshal(domain.Event{Type: domain.EventCallStarted, InstanceID: "instance-a"})
	remote, _ := json.Marshal(domain.Event{Type: domain.EventCallEnded, InstanceID: "instance-b", Reason: "hangup"})

	bus.dispatch(string(own), handler)
	bus.dispatch(string(remote), handler)
	bus.dispatch("{not json", handler)

	require.Len(t, got, 1)
	assert.Equal(t, domain.EventCallEnded, got[0].Type)
	assert.Equal(t, "hangup", got[0].Reason)
}

func TestEventBus_DispatchLogsHandlerErrors(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	bus := NewEventBus(nil, "instance-a", "events", zap.New(core).Sugar())

	remote, _ := json.Marshal(domain.Event{Type: domain.EventRoomJoined, InstanceID: "instance-b"})
	bus.dispatch(string(remote), func(*domain.Event) error { return errors.New("boom") })

	assert.Equal(t, 1, logs.FilterMessage("error handling event").Len())
}

func TestEventBus_PublishFailsWithoutRedis(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	bus := NewEventBus(client, "instance-a", "events", zap.NewNop().Sugar())
	event := &domain.Event{Type: domain.EventConnectionRegistered, ConnectionID: "c1"}

	err := bus.Publish(context.Background(), event)
	assert.Error(t, err)
	assert.Equal(t, "instance-a", event.InstanceID)
	assert.False(t, event.Timestamp.IsZero())

	for i := 0; i < 5; i++ {
		bus.Publish(context.Background(), event)
	}
	assert.ErrorIs(t, bus.Publish(context.Background(), event), circuitbreaker.ErrOpen, "repeated failures open the circuit")
}

func TestEventBus_CloseWhileSubscribed(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	core, logs := observer.New(zapcore.WarnLevel)
	bus := NewEventBus(client, "instance-a", "events", zap.New(core).Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- bus.Subscribe(ctx, func(*domain.Event) error { return nil })
	}()
	require.Eventually(t, bus.subscribed, time.Second, 10*time.Millisecond)

	assert.Error(t, bus.Subscribe(ctx, func(*domain.Event) error { return nil }), "one subscription at a time")

	assert.NoError(t, bus.Close())
	assert.NoError(t, bus.Close())
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe did not return after Close")
	}
	assert.False(t, bus.subscribed())
	assert.Zero(t, logs.FilterMessage("failed to close subscription").Len())
}

func TestLogPublisher_StampsEvents(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	p := NewLogPublisher("instance-a", zap.New(core).Sugar())

	event := &domain.Event{Type: domain.EventCallAnswered, SessionID: "s1"}
	require.NoError(t, p.Publish(context.Background(), event))

	assert.Equal(t, "instance-a", event.InstanceID)
	entries := logs.FilterMessage("lifecycle event").All()
	require.Len(t, entries, 1)
	assert.EqualValues(t, "s1", entries[0].ContextMap()["session_id"])
}
