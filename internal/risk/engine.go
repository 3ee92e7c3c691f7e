// Package risk implements the pre-trade gatekeeper and the background
// portfolio risk watchdog. Every order passes ValidateOrder before the
// router sends it anywhere; an independent periodic loop recomputes
// aggregate metrics and can halt trading or force-liquidate.
package risk

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/minhtran42/trade-executor/internal/events"
	"github.com/minhtran42/trade-executor/internal/monitoring"
	"github.com/minhtran42/trade-executor/pkg/types"
)

// PortfolioSource is the engine's read/act window onto the router,
// injected at wiring time.
type PortfolioSource interface {
	GetPortfolioSummary(ctx context.Context) (*types.PortfolioSummary, error)
	VenueAccount(ctx context.Context, venueName string) (*types.Account, error)
	LastPrice(ctx context.Context, venueName, symbol string) (float64, error)
	CloseAllPositions(ctx context.Context) ([]types.OrderResult, error)
}

// Engine is the risk manager. All mutable state sits behind one mutex so
// an emergency stop set by the background loop is visible to every
// validation call immediately.
type Engine struct {
	log    zerolog.Logger
	source PortfolioSource
	bus    *events.Bus
	health *monitoring.HealthChecker

	mu         sync.RWMutex
	config     types.RiskConfig
	state      types.RiskState
	dailyPnL   map[string]float64 // realized PnL keyed by date "2006-01-02"
	alerts     []types.RiskAlert
	metrics    types.RiskMetrics
	peakValue  float64
	maxDraw    float64
	interval   time.Duration
}

const alertWindow = 24 * time.Hour

// DefaultConfig returns the risk limits the engine starts with.
func DefaultConfig() types.RiskConfig {
	return types.RiskConfig{
		MaxDailyLoss:        1000,
		MaxPositionSize:     100,
		MaxLeverage:         5,
		MaxOrderSize:        10000,
		MinAccountBalance:   100,
		StopLossPercent:     2,
		TakeProfitPercent:   4,
		RiskPerTradePercent: 1,
		TradingHours:        types.TradingHours{Start: "00:00", End: "23:59", Timezone: "UTC"},
	}
}

// NewEngine creates a risk engine in the active state.
func NewEngine(cfg types.RiskConfig, source PortfolioSource, bus *events.Bus, log zerolog.Logger) *Engine {
	return &Engine{
		log:      log.With().Str("component", "risk").Logger(),
		source:   source,
		bus:      bus,
		config:   cfg,
		state:    types.RiskStateActive,
		dailyPnL: make(map[string]float64),
		interval: 30 * time.Second,
	}
}

// SetHealthChecker attaches the health endpoint state.
func (e *Engine) SetHealthChecker(h *monitoring.HealthChecker) {
	e.health = h
}

// SetInterval overrides the background recompute interval.
func (e *Engine) SetInterval(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.interval = d
}

// GetState returns the engine's operational mode.
func (e *Engine) GetState() types.RiskState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// GetConfig returns a copy of the current limits.
func (e *Engine) GetConfig() types.RiskConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.config
}

// GetMetrics returns the last computed aggregate metrics.
func (e *Engine) GetMetrics() types.RiskMetrics {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.metrics
}

// GetAlerts returns the alerts raised within the rolling 24-hour window.
func (e *Engine) GetAlerts() []types.RiskAlert {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pruneAlertsLocked()
	out := make([]types.RiskAlert, len(e.alerts))
	copy(out, e.alerts)
	return out
}

// UpdateConfig applies a partial limits change. The new limits are
// observable by in-flight and future checks immediately.
func (e *Engine) UpdateConfig(upd types.RiskConfigUpdate) types.RiskConfig {
	e.mu.Lock()
	if upd.MaxDailyLoss != nil {
		e.config.MaxDailyLoss = *upd.MaxDailyLoss
	}
	if upd.MaxPositionSize != nil {
		e.config.MaxPositionSize = *upd.MaxPositionSize
	}
	if upd.MaxLeverage != nil {
		e.config.MaxLeverage = *upd.MaxLeverage
	}
	if upd.MaxOrderSize != nil {
		e.config.MaxOrderSize = *upd.MaxOrderSize
	}
	if upd.MinAccountBalance != nil {
		e.config.MinAccountBalance = *upd.MinAccountBalance
	}
	if upd.StopLossPercent != nil {
		e.config.StopLossPercent = *upd.StopLossPercent
	}
	if upd.TakeProfitPercent != nil {
		e.config.TakeProfitPercent = *upd.TakeProfitPercent
	}
	if upd.RiskPerTradePercent != nil {
		e.config.RiskPerTradePercent = *upd.RiskPerTradePercent
	}
	if upd.AllowedSymbols != nil {
		e.config.AllowedSymbols = *upd.AllowedSymbols
	}
	if upd.BlockedSymbols != nil {
		e.config.BlockedSymbols = *upd.BlockedSymbols
	}
	if upd.TradingHours != nil {
		e.config.TradingHours = *upd.TradingHours
	}
	cfg := e.config
	e.mu.Unlock()

	e.log.Info().Msg("risk config updated")
	if e.bus != nil {
		e.bus.PublishConfigUpdated(cfg)
	}
	return cfg
}

// RecordRealizedPnL adds a realized trade result to today's running total.
func (e *Engine) RecordRealizedPnL(amount float64) {
	e.mu.Lock()
	key := time.Now().Format("2006-01-02")
	e.dailyPnL[key] += amount
	today := e.dailyPnL[key]
	e.mu.Unlock()
	monitoring.SetDailyPnL(today)
}

// TodayPnL returns today's realized PnL.
func (e *Engine) TodayPnL() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dailyPnL[time.Now().Format("2006-01-02")]
}

// ResetStaleDailyPnL drops realized-PnL buckets older than today. Run
// from the midnight cron job.
func (e *Engine) ResetStaleDailyPnL() {
	e.mu.Lock()
	defer e.mu.Unlock()
	today := time.Now().Format("2006-01-02")
	for key := range e.dailyPnL {
		if key != today {
			delete(e.dailyPnL, key)
		}
	}
	e.log.Info().Msg("daily risk counters reset")
}

// ValidateOrder is the synchronous pre-trade gate. Hard gates run in a
// fixed order and short-circuit on the first failure; an oversized order
// is the one soft limit: allowed with an adjusted quantity.
func (e *Engine) ValidateOrder(ctx context.Context, req types.OrderRequest, venueName string) (*types.OrderAssessment, error) {
	e.mu.RLock()
	cfg := e.config
	state := e.state
	todayPnL := e.dailyPnL[time.Now().Format("2006-01-02")]
	e.mu.RUnlock()

	if state != types.RiskStateActive || cfg.EmergencyStop {
		return &types.OrderAssessment{Allowed: false, Reason: "Emergency stop is active"}, nil
	}

	if ok, window := withinTradingHours(cfg.TradingHours, time.Now()); !ok {
		return &types.OrderAssessment{Allowed: false,
			Reason: fmt.Sprintf("Outside trading hours (%s)", window)}, nil
	}

	if reason := checkSymbolLists(cfg, req.Symbol); reason != "" {
		return &types.OrderAssessment{Allowed: false, Reason: reason}, nil
	}

	account, err := e.source.VenueAccount(ctx, venueName)
	if err != nil {
		return nil, fmt.Errorf("fetch account for %s: %w", venueName, err)
	}
	if account.AvailableBalance < cfg.MinAccountBalance {
		return &types.OrderAssessment{Allowed: false,
			Reason: fmt.Sprintf("Available balance %.2f below minimum %.2f",
				account.AvailableBalance, cfg.MinAccountBalance)}, nil
	}

	if cfg.MaxDailyLoss > 0 && todayPnL <= -cfg.MaxDailyLoss {
		return &types.OrderAssessment{Allowed: false,
			Reason: fmt.Sprintf("Daily loss limit reached (%.2f / -%.2f)", todayPnL, cfg.MaxDailyLoss)}, nil
	}

	price := req.Price
	if price <= 0 {
		price, err = e.source.LastPrice(ctx, venueName, req.Symbol)
		if err != nil {
			return nil, fmt.Errorf("fetch price for %s on %s: %w", req.Symbol, venueName, err)
		}
	}

	// The account and price fetches above can block on venue I/O. An
	// emergency stop engaged while they were in flight must still reject
	// this order, so the state is read again before approving.
	e.mu.RLock()
	state = e.state
	stopped := e.config.EmergencyStop
	e.mu.RUnlock()
	if state != types.RiskStateActive || stopped {
		return &types.OrderAssessment{Allowed: false, Reason: "Emergency stop is active"}, nil
	}

	assessment := &types.OrderAssessment{Allowed: true}

	// Soft limit: an oversized order is approved at a reduced quantity,
	// signaling the caller to execute the adjusted size. Deliberately
	// distinct from the hard rejections above.
	if cfg.MaxOrderSize > 0 && price > 0 && req.Quantity*price > cfg.MaxOrderSize {
		assessment.AdjustedQuantity = cfg.MaxOrderSize / price
		assessment.Reason = fmt.Sprintf("Order value %.2f exceeds max order size %.2f, quantity adjusted to %.6f",
			req.Quantity*price, cfg.MaxOrderSize, assessment.AdjustedQuantity)
	}

	assessment.RiskScore = e.orderRiskScore(cfg, req, price, account.AvailableBalance, time.Now())
	if sizing, err := e.CalculatePositionSize(account.AvailableBalance, price, 0); err == nil {
		assessment.SuggestedStopLoss = sizing.StopLoss
		assessment.SuggestedTakeProfit = sizing.TakeProfit
	}
	return assessment, nil
}

func checkSymbolLists(cfg types.RiskConfig, symbol string) string {
	for _, blocked := range cfg.BlockedSymbols {
		if strings.EqualFold(blocked, symbol) {
			return fmt.Sprintf("Symbol %s is blocked", symbol)
		}
	}
	if len(cfg.AllowedSymbols) == 0 {
		return ""
	}
	for _, allowed := range cfg.AllowedSymbols {
		if strings.EqualFold(allowed, symbol) {
			return ""
		}
	}
	return fmt.Sprintf("Symbol %s is not in the allowed list", symbol)
}

// withinTradingHours compares the local HH:MM clock against the window.
// A window whose start is after its end spans midnight.
func withinTradingHours(hours types.TradingHours, now time.Time) (bool, string) {
	if hours.Start == "" || hours.End == "" {
		return true, ""
	}
	loc, err := time.LoadLocation(hours.Timezone)
	if err != nil {
		loc = time.UTC
	}
	clock := now.In(loc).Format("15:04")
	window := fmt.Sprintf("%s-%s %s", hours.Start, hours.End, hours.Timezone)
	if hours.Start <= hours.End {
		return clock >= hours.Start && clock <= hours.End, window
	}
	return clock >= hours.Start || clock <= hours.End, window
}

func (e *Engine) pruneAlertsLocked() {
	cutoff := time.Now().Add(-alertWindow)
	kept := e.alerts[:0]
	for _, a := range e.alerts {
		if a.Timestamp.After(cutoff) {
			kept = append(kept, a)
		}
	}
	e.alerts = kept
}
