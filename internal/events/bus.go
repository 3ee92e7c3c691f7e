package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/minhtran42/trade-executor/pkg/types"
)

// Type identifies the kind of event carried by an Event.
type Type string

const (
	TypeRiskAlert      Type = "risk_alert"
	TypeRiskMetrics    Type = "risk_metrics_update"
	TypeEmergencyStop  Type = "emergency_stop"
	TypeTradingResumed Type = "trading_resumed"
	TypeConfigUpdated  Type = "config_updated"
	TypeOrderExecuted  Type = "order_executed"
)

// EmergencyStopEvent records an emergency halt decision.
type EmergencyStopEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason"`
	// PositionsClosed distinguishes forced liquidation from a trading halt.
	PositionsClosed bool `json:"positions_closed"`
}

// TradingResumedEvent records an explicit resume after a halt.
type TradingResumedEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// Event is a typed envelope: exactly one payload field is set, matching
// the Type.
type Event struct {
	Type           Type                     `json:"type"`
	At             time.Time                `json:"at"`
	Alert          *types.RiskAlert         `json:"alert,omitempty"`
	Metrics        *types.RiskMetrics       `json:"metrics,omitempty"`
	EmergencyStop  *EmergencyStopEvent      `json:"emergency_stop,omitempty"`
	TradingResumed *TradingResumedEvent     `json:"trading_resumed,omitempty"`
	RiskConfig     *types.RiskConfig        `json:"risk_config,omitempty"`
	Execution      *types.ExecutionResult   `json:"execution,omitempty"`
}

// Bus is a typed in-process pub/sub channel abstraction. Publish never
// blocks: the core guarantees emission, not delivery, so a subscriber
// whose buffer is full drops the event (with a log line) rather than
// stalling execution or the risk loop.
type Bus struct {
	mu   sync.RWMutex
	subs []chan Event
	log  zerolog.Logger
}

// NewBus creates an event bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{log: log.With().Str("component", "events").Logger()}
}

// Subscribe registers a new consumer and returns its channel. The buffer
// size bounds how far a slow consumer may fall behind before dropping.
func (b *Bus) Subscribe(buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

// Publish delivers ev to every subscriber without blocking.
func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.log.Warn().Str("event", string(ev.Type)).Msg("subscriber buffer full, event dropped")
		}
	}
}

// Close closes all subscriber channels. Publish must not be called after
// Close.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}

// PublishRiskAlert emits a risk alert event.
func (b *Bus) PublishRiskAlert(a types.RiskAlert) {
	b.Publish(Event{Type: TypeRiskAlert, Alert: &a})
}

// PublishRiskMetrics emits a metrics update event.
func (b *Bus) PublishRiskMetrics(m types.RiskMetrics) {
	b.Publish(Event{Type: TypeRiskMetrics, Metrics: &m})
}

// PublishEmergencyStop emits an emergency stop event.
func (b *Bus) PublishEmergencyStop(reason string, positionsClosed bool) {
	b.Publish(Event{Type: TypeEmergencyStop, EmergencyStop: &EmergencyStopEvent{
		Timestamp:       time.Now(),
		Reason:          reason,
		PositionsClosed: positionsClosed,
	}})
}

// PublishTradingResumed emits a resume event.
func (b *Bus) PublishTradingResumed() {
	b.Publish(Event{Type: TypeTradingResumed, TradingResumed: &TradingResumedEvent{Timestamp: time.Now()}})
}

// PublishConfigUpdated emits the effective risk config after an update.
func (b *Bus) PublishConfigUpdated(c types.RiskConfig) {
	b.Publish(Event{Type: TypeConfigUpdated, RiskConfig: &c})
}

// PublishOrderExecuted emits the outcome of an order execution.
func (b *Bus) PublishOrderExecuted(r types.ExecutionResult) {
	b.Publish(Event{Type: TypeOrderExecuted, Execution: &r})
}
