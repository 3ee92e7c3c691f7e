package risk

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/minhtran42/trade-executor/internal/monitoring"
	"github.com/minhtran42/trade-executor/pkg/types"
)

// Alert thresholds evaluated every monitoring cycle. Fractions of the
// configured daily-loss limit, of the exposure ratio, of the margin
// level, and of the portfolio risk score.
const (
	dailyLossWarningRatio = 0.8
	exposureWarning       = 0.8
	exposureCritical      = 1.0
	marginLevelWarning    = 200.0
	marginLevelCritical   = 150.0
	marginLevelLiquidate  = 120.0
	riskScoreWarning      = 70.0
	riskScoreCritical     = 85.0
)

// Start runs the background monitoring loop until ctx is cancelled. A
// single cycle's failure is logged and the loop continues on its next
// tick.
func (e *Engine) Start(ctx context.Context) {
	e.mu.RLock()
	interval := e.interval
	e.mu.RUnlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		e.log.Info().Dur("interval", interval).Msg("risk monitor started")
		for {
			select {
			case <-ctx.Done():
				e.log.Info().Msg("risk monitor stopped")
				return
			case <-ticker.C:
				if err := e.RunCycle(ctx); err != nil {
					e.log.Error().Err(err).Msg("risk cycle failed")
				}
			}
		}
	}()
}

// RunCycle performs one monitoring pass: recompute metrics, evaluate
// alerts, publish, and apply any automatic emergency actions.
func (e *Engine) RunCycle(ctx context.Context) error {
	metrics, err := e.CalculateRiskMetrics(ctx)
	if err != nil {
		return err
	}
	if e.bus != nil {
		e.bus.PublishRiskMetrics(*metrics)
	}
	if e.health != nil {
		e.health.MarkRiskCycle()
		e.health.SetRiskState(e.GetState())
	}

	alerts := e.evaluateAlerts(*metrics)
	for _, alert := range alerts {
		e.raiseAlert(alert)
	}
	e.applyAutoActions(ctx, *metrics, alerts)
	return nil
}

// CalculateRiskMetrics aggregates venue accounts and positions into the
// derived portfolio metrics. Consistency is per-venue snapshot: a venue
// skipped by the router this cycle is simply absent from the totals.
func (e *Engine) CalculateRiskMetrics(ctx context.Context) (*types.RiskMetrics, error) {
	summary, err := e.source.GetPortfolioSummary(ctx)
	if err != nil {
		return nil, fmt.Errorf("portfolio summary: %w", err)
	}

	var freeMargin, usedMargin float64
	for _, account := range summary.Accounts {
		freeMargin += account.AvailableBalance
		usedMargin += account.Margin
	}
	var exposure float64
	for _, pos := range summary.Positions {
		exposure += math.Abs(pos.MarketValue)
	}

	marginLevel := 100.0
	if usedMargin > 0 {
		marginLevel = freeMargin / usedMargin * 100
	}

	e.mu.Lock()
	today := e.dailyPnL[time.Now().Format("2006-01-02")]
	if summary.TotalValue > e.peakValue {
		e.peakValue = summary.TotalValue
	}
	if draw := e.peakValue - summary.TotalValue; draw > e.maxDraw {
		e.maxDraw = draw
	}
	metrics := types.RiskMetrics{
		DailyPnL:       today,
		TotalExposure:  exposure,
		PortfolioValue: summary.TotalValue,
		UsedMargin:     usedMargin,
		FreeMargin:     freeMargin,
		MarginLevel:    marginLevel,
		OpenPositions:  len(summary.Positions),
		MaxDrawdown:    e.maxDraw,
		SharpeRatio:    sharpeRatio(e.dailyPnL, summary.TotalValue),
		Timestamp:      time.Now(),
	}
	metrics.RiskScore = portfolioRiskScore(metrics)
	e.metrics = metrics
	e.mu.Unlock()

	monitoring.SetRiskScore(metrics.RiskScore)
	monitoring.SetDailyPnL(today)
	return &metrics, nil
}

// portfolioRiskScore weighs exposure (up to 40), margin-level shortfall
// below 300 (deficit/5), open position count (up to 20) and daily loss
// (up to 30, scaled by loss as a fraction of portfolio). Capped at 100.
func portfolioRiskScore(m types.RiskMetrics) float64 {
	score := 0.0
	if m.PortfolioValue > 0 {
		score += math.Min(m.TotalExposure/m.PortfolioValue*40, 40)
	}
	if m.UsedMargin > 0 && m.MarginLevel < 300 {
		score += (300 - m.MarginLevel) / 5
	}
	score += math.Min(float64(m.OpenPositions)*2, 20)
	if m.DailyPnL < 0 && m.PortfolioValue > 0 {
		score += math.Min(-m.DailyPnL/m.PortfolioValue*300, 30)
	}
	return math.Min(math.Round(score), 100)
}

// sharpeRatio annualizes the mean/stddev of the recorded daily realized
// PnL, expressed as returns on the current portfolio value. Needs at
// least two days of history.
func sharpeRatio(dailyPnL map[string]float64, portfolioValue float64) float64 {
	if len(dailyPnL) < 2 || portfolioValue <= 0 {
		return 0
	}
	var sum float64
	for _, pnl := range dailyPnL {
		sum += pnl / portfolioValue
	}
	mean := sum / float64(len(dailyPnL))
	var variance float64
	for _, pnl := range dailyPnL {
		d := pnl/portfolioValue - mean
		variance += d * d
	}
	variance /= float64(len(dailyPnL) - 1)
	if variance == 0 {
		return 0
	}
	return mean / math.Sqrt(variance) * math.Sqrt(365)
}

// evaluateAlerts checks every threshold independently; several alerts may
// fire in the same cycle.
func (e *Engine) evaluateAlerts(m types.RiskMetrics) []types.RiskAlert {
	e.mu.RLock()
	cfg := e.config
	e.mu.RUnlock()

	var alerts []types.RiskAlert
	now := time.Now()

	if cfg.MaxDailyLoss > 0 && m.DailyPnL < 0 {
		loss := -m.DailyPnL
		switch {
		case loss >= cfg.MaxDailyLoss:
			alerts = append(alerts, types.RiskAlert{
				Type: types.AlertTypeCritical, Severity: 9,
				Message:           fmt.Sprintf("Daily loss %.2f reached the limit %.2f", loss, cfg.MaxDailyLoss),
				Metric:            "daily_loss",
				CurrentValue:      loss,
				Threshold:         cfg.MaxDailyLoss,
				RecommendedAction: "Halt trading for the rest of the day",
				Timestamp:         now,
			})
		case loss >= cfg.MaxDailyLoss*dailyLossWarningRatio:
			alerts = append(alerts, types.RiskAlert{
				Type: types.AlertTypeWarning, Severity: 6,
				Message:           fmt.Sprintf("Daily loss %.2f at %.0f%% of the limit %.2f", loss, loss/cfg.MaxDailyLoss*100, cfg.MaxDailyLoss),
				Metric:            "daily_loss",
				CurrentValue:      loss,
				Threshold:         cfg.MaxDailyLoss * dailyLossWarningRatio,
				RecommendedAction: "Reduce position sizes and avoid new entries",
				Timestamp:         now,
			})
		}
	}

	if m.PortfolioValue > 0 {
		ratio := m.TotalExposure / m.PortfolioValue
		switch {
		case ratio > exposureCritical:
			alerts = append(alerts, types.RiskAlert{
				Type: types.AlertTypeCritical, Severity: 8,
				Message:           fmt.Sprintf("Exposure %.2f exceeds portfolio value", ratio),
				Metric:            "exposure_ratio",
				CurrentValue:      ratio,
				Threshold:         exposureCritical,
				RecommendedAction: "Close positions until exposure is below portfolio value",
				Timestamp:         now,
			})
		case ratio > exposureWarning:
			alerts = append(alerts, types.RiskAlert{
				Type: types.AlertTypeWarning, Severity: 5,
				Message:           fmt.Sprintf("Exposure ratio %.2f above %.1f", ratio, exposureWarning),
				Metric:            "exposure_ratio",
				CurrentValue:      ratio,
				Threshold:         exposureWarning,
				RecommendedAction: "Avoid adding exposure",
				Timestamp:         now,
			})
		}
	}

	// Margin alerts are meaningful only when margin is actually in use:
	// an unmargined portfolio reports level 100 by convention.
	if m.UsedMargin > 0 {
		switch {
		case m.MarginLevel < marginLevelCritical:
			alerts = append(alerts, types.RiskAlert{
				Type: types.AlertTypeCritical, Severity: 9,
				Message:           fmt.Sprintf("Margin level %.0f below %.0f", m.MarginLevel, marginLevelCritical),
				Metric:            "margin_level",
				CurrentValue:      m.MarginLevel,
				Threshold:         marginLevelCritical,
				RecommendedAction: "Deposit funds or reduce positions immediately",
				Timestamp:         now,
			})
		case m.MarginLevel < marginLevelWarning:
			alerts = append(alerts, types.RiskAlert{
				Type: types.AlertTypeWarning, Severity: 6,
				Message:           fmt.Sprintf("Margin level %.0f below %.0f", m.MarginLevel, marginLevelWarning),
				Metric:            "margin_level",
				CurrentValue:      m.MarginLevel,
				Threshold:         marginLevelWarning,
				RecommendedAction: "Reduce leverage before margin deteriorates further",
				Timestamp:         now,
			})
		}
	}

	switch {
	case m.RiskScore > riskScoreCritical:
		alerts = append(alerts, types.RiskAlert{
			Type: types.AlertTypeCritical, Severity: 8,
			Message:           fmt.Sprintf("Portfolio risk score %.0f above %.0f", m.RiskScore, riskScoreCritical),
			Metric:            "risk_score",
			CurrentValue:      m.RiskScore,
			Threshold:         riskScoreCritical,
			RecommendedAction: "De-risk the portfolio: cut exposure and leverage",
			Timestamp:         now,
		})
	case m.RiskScore > riskScoreWarning:
		alerts = append(alerts, types.RiskAlert{
			Type: types.AlertTypeWarning, Severity: 5,
			Message:           fmt.Sprintf("Portfolio risk score %.0f above %.0f", m.RiskScore, riskScoreWarning),
			Metric:            "risk_score",
			CurrentValue:      m.RiskScore,
			Threshold:         riskScoreWarning,
			RecommendedAction: "Review open positions",
			Timestamp:         now,
		})
	}

	return alerts
}

// raiseAlert appends to the rolling window and emits the event.
func (e *Engine) raiseAlert(alert types.RiskAlert) {
	e.mu.Lock()
	e.alerts = append(e.alerts, alert)
	e.pruneAlertsLocked()
	e.mu.Unlock()

	monitoring.RecordAlert(string(alert.Type), alert.Metric)
	e.log.Warn().
		Str("type", string(alert.Type)).
		Str("metric", alert.Metric).
		Float64("value", alert.CurrentValue).
		Float64("threshold", alert.Threshold).
		Msg(alert.Message)
	if e.bus != nil {
		e.bus.PublishRiskAlert(alert)
	}
}

// applyAutoActions enforces the two critical-alert policies: a margin
// crisis below the liquidation threshold force-closes everything, a
// breached daily-loss limit halts new trading but leaves positions
// untouched.
func (e *Engine) applyAutoActions(ctx context.Context, m types.RiskMetrics, alerts []types.RiskAlert) {
	if e.GetState() != types.RiskStateActive {
		return
	}
	for _, alert := range alerts {
		if alert.Type != types.AlertTypeCritical {
			continue
		}
		switch alert.Metric {
		case "margin_level":
			if m.MarginLevel < marginLevelLiquidate {
				reason := fmt.Sprintf("margin level %.0f below liquidation threshold %.0f", m.MarginLevel, marginLevelLiquidate)
				if err := e.EmergencyStop(ctx, reason); err != nil {
					e.log.Error().Err(err).Msg("emergency liquidation failed")
				}
				return
			}
		case "daily_loss":
			e.haltTrading(alert.Message)
			return
		}
	}
}

// EmergencyStop force-closes all positions across all venues and moves
// the engine to EMERGENCY_STOPPED. All new validations are rejected
// until ResumeTrading.
func (e *Engine) EmergencyStop(ctx context.Context, reason string) error {
	e.mu.Lock()
	if e.state == types.RiskStateEmergencyStopped {
		e.mu.Unlock()
		return nil
	}
	e.state = types.RiskStateEmergencyStopped
	e.config.EmergencyStop = true
	e.mu.Unlock()

	e.log.Error().Str("reason", reason).Msg("EMERGENCY STOP: closing all positions")
	closed, err := e.source.CloseAllPositions(ctx)
	e.log.Info().Int("closed", len(closed)).Msg("emergency liquidation finished")

	e.raiseAlert(types.RiskAlert{
		Type: types.AlertTypeEmergency, Severity: 10,
		Message:           "Emergency stop: " + reason,
		Metric:            "emergency_stop",
		RecommendedAction: "Review the trigger, then resume trading explicitly",
		Timestamp:         time.Now(),
	})
	if e.bus != nil {
		e.bus.PublishEmergencyStop(reason, true)
	}
	if e.health != nil {
		e.health.SetRiskState(types.RiskStateEmergencyStopped)
	}
	return err
}

// haltTrading rejects new orders without touching existing positions.
func (e *Engine) haltTrading(reason string) {
	e.mu.Lock()
	if e.state != types.RiskStateActive {
		e.mu.Unlock()
		return
	}
	e.state = types.RiskStateTradingHalted
	e.config.EmergencyStop = true
	e.mu.Unlock()

	e.log.Error().Str("reason", reason).Msg("trading halted, positions untouched")
	if e.bus != nil {
		e.bus.PublishEmergencyStop(reason, false)
	}
	if e.health != nil {
		e.health.SetRiskState(types.RiskStateTradingHalted)
	}
}

// ResumeTrading returns the engine to ACTIVE after an explicit operator
// decision.
func (e *Engine) ResumeTrading() {
	e.mu.Lock()
	e.state = types.RiskStateActive
	e.config.EmergencyStop = false
	e.mu.Unlock()

	e.log.Info().Msg("trading resumed")
	if e.bus != nil {
		e.bus.PublishTradingResumed()
	}
	if e.health != nil {
		e.health.SetRiskState(types.RiskStateActive)
	}
}
