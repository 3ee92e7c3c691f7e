package types

import "time"

// TradingHours is a daily trading window compared as HH:MM strings in the
// configured timezone.
type TradingHours struct {
	Start    string `json:"start"` // "09:30"
	End      string `json:"end"`   // "16:00"
	Timezone string `json:"timezone"`
}

// RiskConfig holds the limits every order is validated against.
type RiskConfig struct {
	MaxDailyLoss        float64      `json:"max_daily_loss"`
	MaxPositionSize     float64      `json:"max_position_size"`
	MaxLeverage         float64      `json:"max_leverage"`
	MaxOrderSize        float64      `json:"max_order_size"`
	MinAccountBalance   float64      `json:"min_account_balance"`
	StopLossPercent     float64      `json:"stop_loss_percent"`
	TakeProfitPercent   float64      `json:"take_profit_percent"`
	RiskPerTradePercent float64      `json:"risk_per_trade_percent"`
	AllowedSymbols      []string     `json:"allowed_symbols"` // empty = all symbols allowed
	BlockedSymbols      []string     `json:"blocked_symbols"`
	TradingHours        TradingHours `json:"trading_hours"`

	// Reserved: configured but carries no computed behavior.
	MaxCorrelatedPositions int `json:"max_correlated_positions,omitempty"`

	EmergencyStop bool `json:"emergency_stop"`
}

// RiskConfigUpdate carries a partial risk config change. Nil fields are
// left untouched.
type RiskConfigUpdate struct {
	MaxDailyLoss        *float64      `json:"max_daily_loss,omitempty"`
	MaxPositionSize     *float64      `json:"max_position_size,omitempty"`
	MaxLeverage         *float64      `json:"max_leverage,omitempty"`
	MaxOrderSize        *float64      `json:"max_order_size,omitempty"`
	MinAccountBalance   *float64      `json:"min_account_balance,omitempty"`
	StopLossPercent     *float64      `json:"stop_loss_percent,omitempty"`
	TakeProfitPercent   *float64      `json:"take_profit_percent,omitempty"`
	RiskPerTradePercent *float64      `json:"risk_per_trade_percent,omitempty"`
	AllowedSymbols      *[]string     `json:"allowed_symbols,omitempty"`
	BlockedSymbols      *[]string     `json:"blocked_symbols,omitempty"`
	TradingHours        *TradingHours `json:"trading_hours,omitempty"`
}

// RiskMetrics is derived portfolio state, recomputed periodically by the
// risk engine's background loop. Never persisted as source of truth.
type RiskMetrics struct {
	DailyPnL       float64   `json:"daily_pnl"`
	TotalExposure  float64   `json:"total_exposure"`
	PortfolioValue float64   `json:"portfolio_value"`
	UsedMargin     float64   `json:"used_margin"`
	FreeMargin     float64   `json:"free_margin"`
	MarginLevel    float64   `json:"margin_level"`
	OpenPositions  int       `json:"open_positions"`
	RiskScore      float64   `json:"risk_score"` // 0-100
	MaxDrawdown    float64   `json:"max_drawdown"`
	SharpeRatio    float64   `json:"sharpe_ratio"`
	Timestamp      time.Time `json:"timestamp"`
}

// AlertType classifies risk alerts by severity class.
type AlertType string

const (
	AlertTypeWarning   AlertType = "warning"
	AlertTypeCritical  AlertType = "critical"
	AlertTypeEmergency AlertType = "emergency"
)

// RiskAlert is appended to a rolling 24-hour window and never mutated
// after creation.
type RiskAlert struct {
	Type              AlertType `json:"type"`
	Severity          int       `json:"severity"` // 1-10
	Message           string    `json:"message"`
	Metric            string    `json:"metric"`
	CurrentValue      float64   `json:"current_value"`
	Threshold         float64   `json:"threshold"`
	RecommendedAction string    `json:"recommended_action"`
	Timestamp         time.Time `json:"timestamp"`
}

// OrderAssessment is the risk engine's pre-trade verdict on an order.
// An order can be allowed with an adjusted quantity (soft limit) — the
// caller must resubmit or execute the reduced size, never the original.
type OrderAssessment struct {
	Allowed             bool    `json:"allowed"`
	Reason              string  `json:"reason,omitempty"`
	AdjustedQuantity    float64 `json:"adjusted_quantity,omitempty"`
	RiskScore           int     `json:"risk_score"` // 0-100, advisory
	SuggestedStopLoss   float64 `json:"suggested_stop_loss,omitempty"`
	SuggestedTakeProfit float64 `json:"suggested_take_profit,omitempty"`
}

// PositionSize is the risk engine's sizing suggestion for a trade.
type PositionSize struct {
	Quantity   float64 `json:"quantity"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
	RiskAmount float64 `json:"risk_amount"`
}

// RiskState is the risk engine's operational mode.
type RiskState string

const (
	// RiskStateActive permits new order validation.
	RiskStateActive RiskState = "ACTIVE"
	// RiskStateTradingHalted rejects new orders; existing positions untouched.
	RiskStateTradingHalted RiskState = "TRADING_HALTED"
	// RiskStateEmergencyStopped rejects new orders after force-closing all positions.
	RiskStateEmergencyStopped RiskState = "EMERGENCY_STOPPED"
)
