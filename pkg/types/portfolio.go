package types

import "time"

// PositionSide represents the direction of an open position
type PositionSide string

const (
	PositionSideLong  PositionSide = "long"
	PositionSideShort PositionSide = "short"
)

// Position is a venue-local open position. A position with quantity 0 is
// considered closed and is removed from venue-local state.
type Position struct {
	Symbol               string       `json:"symbol"`
	Side                 PositionSide `json:"side"`
	Quantity             float64      `json:"quantity"`
	EntryPrice           float64      `json:"entry_price"`
	CurrentPrice         float64      `json:"current_price,omitempty"`
	UnrealizedPnL        float64      `json:"unrealized_pnl"`
	UnrealizedPnLPercent float64      `json:"unrealized_pnl_percent"`
	MarketValue          float64      `json:"market_value"`
}

// Account is a per-venue account snapshot. Never shared across venues.
type Account struct {
	TotalBalance     float64 `json:"total_balance"`
	AvailableBalance float64 `json:"available_balance"`
	Equity           float64 `json:"equity"`
	Margin           float64 `json:"margin,omitempty"`
	PortfolioValue   float64 `json:"portfolio_value"`
}

// VenueConfig holds per-venue routing limits and selection priority.
type VenueConfig struct {
	Name               string  `json:"name"`
	Enabled            bool    `json:"enabled"`
	PaperTrading       bool    `json:"paper_trading"`
	MaxPositions       int     `json:"max_positions"`
	MaxCapitalPerTrade float64 `json:"max_capital_per_trade"`
	Priority           int     `json:"priority"` // higher wins; ties broken by registration order
}

// VenueConfigUpdate carries a partial venue config change. Nil fields are
// left untouched.
type VenueConfigUpdate struct {
	Enabled            *bool    `json:"enabled,omitempty"`
	MaxPositions       *int     `json:"max_positions,omitempty"`
	MaxCapitalPerTrade *float64 `json:"max_capital_per_trade,omitempty"`
	Priority           *int     `json:"priority,omitempty"`
}

// VenueStatus describes the router's view of one registered venue.
type VenueStatus struct {
	Name            string    `json:"name"`
	Connected       bool      `json:"connected"`
	LastHealthCheck time.Time `json:"last_health_check"`
	Config          VenueConfig `json:"config"`
}

// PortfolioSummary is the router's aggregate view across connected venues.
// Consistency is per-venue snapshot, not whole-portfolio atomic.
type PortfolioSummary struct {
	TotalValue       float64              `json:"total_value"`
	TotalPnL         float64              `json:"total_pnl"`
	TotalPnLPercent  float64              `json:"total_pnl_percent"`
	ExposureBySymbol map[string]float64   `json:"exposure_by_symbol"`
	ExposureByVenue  map[string]float64   `json:"exposure_by_venue"`
	Positions        []Position           `json:"positions"`
	Accounts         map[string]Account   `json:"accounts"`
	SkippedVenues    []string             `json:"skipped_venues,omitempty"` // venues that failed mid-fetch this cycle
	Timestamp        time.Time            `json:"timestamp"`
}
