package notifications

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/minhtran42/trade-executor/internal/events"
)

// Dispatcher consumes the event bus and fans events out to notifiers.
// Metrics snapshots are intentionally not forwarded, they would flood
// the channel every cycle.
type Dispatcher struct {
	log       zerolog.Logger
	events    <-chan events.Event
	notifiers []Notifier
}

// NewDispatcher subscribes to the bus with its own buffer.
func NewDispatcher(bus *events.Bus, log zerolog.Logger, notifiers ...Notifier) *Dispatcher {
	return &Dispatcher{
		log:       log.With().Str("component", "notifications").Logger(),
		events:    bus.Subscribe(64),
		notifiers: notifiers,
	}
}

// Run drains the subscription until ctx is cancelled or the bus closes.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-d.events:
			if !ok {
				return
			}
			if level, msg := format(ev); msg != "" {
				d.send(level, msg)
			}
		}
	}
}

func (d *Dispatcher) send(level, msg string) {
	for _, n := range d.notifiers {
		if err := n.SendAlert(level, msg); err != nil {
			d.log.Warn().Err(err).Msg("notification delivery failed")
		}
	}
}

func format(ev events.Event) (level, msg string) {
	switch ev.Type {
	case events.TypeRiskAlert:
		if ev.Alert == nil {
			return "", ""
		}
		return string(ev.Alert.Type), fmt.Sprintf("%s\nMetric: %s (%.2f, threshold %.2f)\nAction: %s",
			ev.Alert.Message, ev.Alert.Metric, ev.Alert.CurrentValue, ev.Alert.Threshold, ev.Alert.RecommendedAction)
	case events.TypeEmergencyStop:
		if ev.EmergencyStop == nil {
			return "", ""
		}
		if ev.EmergencyStop.PositionsClosed {
			return "emergency", fmt.Sprintf("EMERGENCY STOP\n%s\nAll positions closed.", ev.EmergencyStop.Reason)
		}
		return "emergency", fmt.Sprintf("TRADING HALTED\n%s\nOpen positions left untouched.", ev.EmergencyStop.Reason)
	case events.TypeTradingResumed:
		return "success", "Trading resumed."
	case events.TypeOrderExecuted:
		if ev.Execution == nil {
			return "", ""
		}
		if !ev.Execution.Success {
			return "error", fmt.Sprintf("Order failed on %s after %d attempt(s)\n%s",
				ev.Execution.Venue, ev.Execution.Attempts, ev.Execution.Error)
		}
		if ev.Execution.Order == nil {
			return "", ""
		}
		o := ev.Execution.Order
		msg := fmt.Sprintf("Order executed on %s\n%s %s %.6f @ %.4f (%s)",
			o.Venue, string(o.Side), o.Symbol, o.FilledQuantity, o.AverageFillPrice, o.Status)
		if ev.Execution.FallbackUsed {
			msg += fmt.Sprintf("\nFallback from %s", ev.Execution.OriginalVenue)
		}
		return "success", msg
	default:
		return "", ""
	}
}
