package risk

import (
	"math"
	"time"

	"github.com/minhtran42/trade-executor/internal/venue"
	"github.com/minhtran42/trade-executor/pkg/types"
)

// highVolatilitySymbols score extra volatility points in the order risk
// score. Venue-native symbol forms, compared after normalization.
var highVolatilitySymbols = map[string]struct{}{
	"BTCUSDT":  {},
	"ETHUSDT":  {},
	"SOLUSDT":  {},
	"DOGEUSDT": {},
	"PEPEUSDT": {},
	"SHIBUSDT": {},
}

// orderRiskScore produces the advisory 0-100 score for a single order.
// It never gates: high-risk orders pass with a high score attached.
//
// Weights: order size relative to account up to 30, configured leverage
// up to 20, symbol volatility 15 or 5, off-hours placement 10.
func (e *Engine) orderRiskScore(cfg types.RiskConfig, req types.OrderRequest, price, accountBalance float64, now time.Time) int {
	score := 0.0

	if accountBalance > 0 && price > 0 {
		sizeComponent := req.Quantity * price / accountBalance * 50
		score += math.Min(sizeComponent, 30)
	}

	score += math.Min(cfg.MaxLeverage*2, 20)

	symbol := normalizeSymbol(req.Symbol)
	if _, ok := highVolatilitySymbols[symbol]; ok {
		score += 15
	} else {
		score += 5
	}

	if hour := now.Hour(); hour < 8 || hour >= 20 {
		score += 10
	}

	return int(math.Min(math.Round(score), 100))
}

// CalculatePositionSize sizes a trade from the configured risk per trade.
// With no explicit stop-loss price one is derived from the configured
// stop-loss percent; take-profit always comes from the configured
// take-profit percent. Entry equal to stop is a sizing failure.
func (e *Engine) CalculatePositionSize(accountBalance, entryPrice, stopLossPrice float64) (*types.PositionSize, error) {
	e.mu.RLock()
	cfg := e.config
	e.mu.RUnlock()

	if stopLossPrice == 0 {
		stopLossPrice = entryPrice * (1 - cfg.StopLossPercent/100)
	}
	takeProfit := entryPrice * (1 + cfg.TakeProfitPercent/100)

	quantity, err := venue.PositionSizeFromRisk(accountBalance, cfg.RiskPerTradePercent, entryPrice, stopLossPrice)
	if err != nil {
		return nil, err
	}
	if cfg.MaxPositionSize > 0 && quantity > cfg.MaxPositionSize {
		quantity = cfg.MaxPositionSize
	}

	return &types.PositionSize{
		Quantity:   quantity,
		StopLoss:   stopLossPrice,
		TakeProfit: takeProfit,
		RiskAmount: accountBalance * cfg.RiskPerTradePercent / 100,
	}, nil
}

func normalizeSymbol(symbol string) string {
	out := make([]byte, 0, len(symbol))
	for i := 0; i < len(symbol); i++ {
		c := symbol[i]
		switch {
		case c >= 'a' && c <= 'z':
			out = append(out, c-'a'+'A')
		case c == '/' || c == '-' || c == '_':
		default:
			out = append(out, c)
		}
	}
	return string(out)
}
