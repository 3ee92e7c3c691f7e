package events

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minhtran42/trade-executor/pkg/types"
)

func TestBus_PublishReachesAllSubscribers(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	defer bus.Close()

	a := bus.Subscribe(4)
	b := bus.Subscribe(4)

	bus.PublishTradingResumed()

	evA := <-a
	evB := <-b
	assert.Equal(t, TypeTradingResumed, evA.Type)
	assert.Equal(t, TypeTradingResumed, evB.Type)
	assert.False(t, evA.At.IsZero())
}

func TestBus_PublishNeverBlocksOnFullBuffer(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	defer bus.Close()

	sub := bus.Subscribe(1)

	// The second publish overflows the buffer; it must drop, not block.
	bus.PublishTradingResumed()
	bus.PublishTradingResumed()

	ev := <-sub
	assert.Equal(t, TypeTradingResumed, ev.Type)
	select {
	case ev, ok := <-sub:
		if ok {
			t.Fatalf("unexpected second event: %v", ev.Type)
		}
	default:
	}
}

func TestBus_TypedPayloads(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	defer bus.Close()

	sub := bus.Subscribe(8)

	bus.PublishRiskAlert(types.RiskAlert{Type: types.AlertTypeWarning, Metric: "daily_loss"})
	bus.PublishEmergencyStop("margin crisis", true)
	bus.PublishOrderExecuted(types.ExecutionResult{Success: true, Venue: "paper"})

	ev := <-sub
	require.Equal(t, TypeRiskAlert, ev.Type)
	require.NotNil(t, ev.Alert)
	assert.Equal(t, "daily_loss", ev.Alert.Metric)

	ev = <-sub
	require.Equal(t, TypeEmergencyStop, ev.Type)
	require.NotNil(t, ev.EmergencyStop)
	assert.True(t, ev.EmergencyStop.PositionsClosed)
	assert.Equal(t, "margin crisis", ev.EmergencyStop.Reason)

	ev = <-sub
	require.Equal(t, TypeOrderExecuted, ev.Type)
	require.NotNil(t, ev.Execution)
	assert.Equal(t, "paper", ev.Execution.Venue)
}

func TestBus_CloseEndsSubscriptions(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	sub := bus.Subscribe(1)
	bus.Close()

	_, ok := <-sub
	assert.False(t, ok)
}
