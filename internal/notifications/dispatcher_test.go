package notifications

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minhtran42/trade-executor/internal/events"
	"github.com/minhtran42/trade-executor/pkg/types"
)

// fakeNotifier records delivered messages.
type fakeNotifier struct {
	mu       sync.Mutex
	levels   []string
	messages []string
}

func (f *fakeNotifier) SendAlert(level, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levels = append(f.levels, level)
	f.messages = append(f.messages, message)
	return nil
}

func (f *fakeNotifier) delivered() ([]string, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.levels...), append([]string(nil), f.messages...)
}

func TestFormat_RiskAlertUsesSeverityClassAsLevel(t *testing.T) {
	level, msg := format(events.Event{
		Type: events.TypeRiskAlert,
		Alert: &types.RiskAlert{
			Type: types.AlertTypeCritical, Metric: "margin_level",
			Message: "margin level 110 below 150", CurrentValue: 110, Threshold: 150,
			RecommendedAction: "reduce positions",
		},
	})
	assert.Equal(t, "critical", level)
	assert.Contains(t, msg, "margin level 110 below 150")
	assert.Contains(t, msg, "reduce positions")
}

func TestFormat_FailedExecutionIsAnError(t *testing.T) {
	level, msg := format(events.Event{
		Type: events.TypeOrderExecuted,
		Execution: &types.ExecutionResult{
			Success:  false,
			Venue:    "bybit",
			Attempts: 3,
			Error:    "insufficient balance",
		},
	})
	assert.Equal(t, "error", level)
	assert.Contains(t, msg, "Order failed on bybit")
	assert.Contains(t, msg, "insufficient balance")
}

func TestFormat_SuccessfulExecution(t *testing.T) {
	level, msg := format(events.Event{
		Type: events.TypeOrderExecuted,
		Execution: &types.ExecutionResult{
			Success:       true,
			Venue:         "paper",
			FallbackUsed:  true,
			OriginalVenue: "bybit",
			Order: &types.OrderResult{
				Venue: "paper", Symbol: "BTCUSDT", Side: types.OrderSideBuy,
				FilledQuantity: 1, AverageFillPrice: 100, Status: "filled",
			},
		},
	})
	assert.Equal(t, "success", level)
	assert.Contains(t, msg, "Order executed on paper")
	assert.Contains(t, msg, "Fallback from bybit")
}

func TestFormat_MetricsEventsAreDropped(t *testing.T) {
	_, msg := format(events.Event{
		Type:    events.TypeRiskMetrics,
		Metrics: &types.RiskMetrics{PortfolioValue: 10000},
	})
	assert.Empty(t, msg)
}

func TestDispatcher_DeliversHaltAndStop(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	defer bus.Close()

	notifier := &fakeNotifier{}
	d := NewDispatcher(bus, zerolog.Nop(), notifier)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	bus.PublishEmergencyStop("margin crisis", true)
	bus.PublishEmergencyStop("daily loss limit", false)

	require.Eventually(t, func() bool {
		levels, _ := notifier.delivered()
		return len(levels) == 2
	}, time.Second, 5*time.Millisecond)

	levels, messages := notifier.delivered()
	assert.Equal(t, []string{"emergency", "emergency"}, levels)
	assert.Contains(t, messages[0], "All positions closed.")
	assert.Contains(t, messages[1], "Open positions left untouched.")

	cancel()
	<-done
}
