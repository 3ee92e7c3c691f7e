package types

import (
	"time"
)

// OrderSide represents the direction of an order
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType represents how an order is executed
type OrderType string

const (
	OrderTypeMarket    OrderType = "market"
	OrderTypeLimit     OrderType = "limit"
	OrderTypeStop      OrderType = "stop"
	OrderTypeStopLimit OrderType = "stop_limit"
)

// TimeInForce represents how long an order remains active
type TimeInForce string

const (
	TimeInForceGTC TimeInForce = "GTC" // Good Till Cancelled
	TimeInForceIOC TimeInForce = "IOC" // Immediate Or Cancel
	TimeInForceFOK TimeInForce = "FOK" // Fill Or Kill
)

// OrderRequest is a normalized trade intent. It is immutable once submitted
// for execution; the router never mutates a submitted request.
type OrderRequest struct {
	ID             string      `json:"id"` // logical request ID, assigned at submission
	Symbol         string      `json:"symbol"`
	Side           OrderSide   `json:"side"`
	Quantity       float64     `json:"quantity"`
	Type           OrderType   `json:"type"`
	Price          float64     `json:"price,omitempty"`      // required for limit orders
	StopPrice      float64     `json:"stop_price,omitempty"` // required for stop orders
	TimeInForce    TimeInForce `json:"time_in_force,omitempty"`
	PreferredVenue string      `json:"preferred_venue,omitempty"`
	AllowFallback  bool        `json:"allow_fallback"`
	Capital        float64     `json:"capital,omitempty"` // notional cap for this trade
}

// OrderResult is produced once per execution attempt that reaches a venue.
// A retried or fallback attempt produces a new result associated with the
// same logical request ID.
type OrderResult struct {
	VenueOrderID     string    `json:"venue_order_id"`
	RequestID        string    `json:"request_id"`
	Status           string    `json:"status"`
	FilledQuantity   float64   `json:"filled_quantity"`
	AverageFillPrice float64   `json:"average_fill_price"`
	Symbol           string    `json:"symbol"`
	Side             OrderSide `json:"side"`
	Timestamp        time.Time `json:"timestamp"`
	Venue            string    `json:"venue"`
}

// ValidationResult is the outcome of venue-contract field validation.
type ValidationResult struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// ExecutionResult is the only shape the router returns to callers. Venue
// errors are flattened into the Error string; callers never see raw venue
// failures.
type ExecutionResult struct {
	Success          bool         `json:"success"`
	Venue            string       `json:"venue"`
	Order            *OrderResult `json:"order,omitempty"`
	Error            string       `json:"error,omitempty"`
	FallbackUsed     bool         `json:"fallback_used"`
	OriginalVenue    string       `json:"original_venue,omitempty"` // set when fallback switched venues
	AdjustedQuantity float64      `json:"adjusted_quantity,omitempty"`
	Attempts         int          `json:"attempts"`
}
