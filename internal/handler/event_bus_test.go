// internal/handler/event_bus_test.go
package handler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gnss-service/internal/model"
)

func TestEventBusDeliversToTypeSubscribers(t *testing.T) {
	bus := NewEventBus(zap.NewNop())
	go bus.Start()

	connected := bus.Subscribe(model.EventStreamConnected)
	errors := bus.Subscribe(model.EventStreamError)

	bus.Publish(model.NewStreamEvent(model.EventStreamConnected, "INFO", "connection", model.JSONObject{
		"state": "connected",
	}))

	select {
	case event := <-connected:
		require.Equal(t, model.EventStreamConnected, event.EventType)
		require.Equal(t, "connection", event.Source)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive event")
	}

	select {
	case <-errors:
		t.Fatal("event delivered to subscriber of a different type")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEventBusDeliversToAllSubscribers(t *testing.T) {
	bus := NewEventBus(zap.NewNop())
	go bus.Start()

	all := bus.SubscribeAll()

	bus.Publish(model.NewStreamEvent(model.EventTrackStarted, "INFO", "track", nil))
	bus.Publish(model.NewStreamEvent(model.EventWriteError, "ERROR", "connection", nil))

	var got []model.EventType
	for len(got) < 2 {
		select {
		case event := <-all:
			got = append(got, event.EventType)
		case <-time.After(time.Second):
			t.Fatalf("only %d of 2 events received", len(got))
		}
	}
	require.Equal(t, []model.EventType{model.EventTrackStarted, model.EventWriteError}, got)
}

func TestEventBusDropsWhenFull(t *testing.T) {
	bus := NewEventBus(zap.NewNop())
	// Not started: the buffered channel fills up and further
	// publishes must not block
	for i := 0; i < 1100; i++ {
		bus.Publish(model.NewStreamEvent(model.EventStateChange, "INFO", "connection", nil))
	}
}
