package venue

import (
	"context"
	"errors"

	"github.com/minhtran42/trade-executor/pkg/types"
)

// Client is the only way the router is permitted to interact with a
// concrete trading venue. Venue-specific wire details never leak past an
// implementation of this interface; field mapping happens once, at the
// adapter boundary.
type Client interface {
	// Name returns the venue's registered name.
	Name() string

	// TestConnection probes venue reachability with no side effects.
	TestConnection(ctx context.Context) error

	// PlaceOrder submits an order and returns whatever the venue reports,
	// including partial fills. A venue rejection is returned as an error.
	PlaceOrder(ctx context.Context, req types.OrderRequest) (*types.OrderResult, error)

	GetAccount(ctx context.Context) (*types.Account, error)
	GetPositions(ctx context.Context) ([]types.Position, error)

	// GetPosition returns the open position for symbol, or nil when there
	// is none.
	GetPosition(ctx context.Context, symbol string) (*types.Position, error)

	// ClosePosition flattens the position for symbol with a market order.
	ClosePosition(ctx context.Context, symbol string) (*types.OrderResult, error)

	// CloseAllPositions closes every open position independently; a failure
	// on one position must not prevent attempts on the others.
	CloseAllPositions(ctx context.Context) ([]types.OrderResult, error)

	GetLastPrice(ctx context.Context, symbol string) (float64, error)

	// FormatSymbol converts a normalized symbol into the venue-native
	// representation. Pure function, no I/O.
	FormatSymbol(symbol string) string

	// CalculatePositionSize derives an order quantity from the amount risked
	// per trade. Fails explicitly when entryPrice equals stopLossPrice.
	CalculatePositionSize(accountBalance, riskPercent, entryPrice, stopLossPrice float64) (float64, error)

	// ValidateOrder performs field-level validation without any I/O.
	ValidateOrder(req types.OrderRequest) types.ValidationResult
}

// Error is the standardized venue error. The Retryable flag drives the
// router's retry policy: transient failures are retried with backoff,
// rejections escalate straight to fallback.
type Error struct {
	Venue     string `json:"venue"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	Retryable bool   `json:"retryable"`
}

func (e *Error) Error() string {
	if e.Details != "" {
		return e.Venue + ": " + e.Message + ": " + e.Details
	}
	return e.Venue + ": " + e.Message
}

// Common venue error codes.
const (
	CodeConnectionFailed    = "CONNECTION_FAILED"
	CodeOrderRejected       = "ORDER_REJECTED"
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	CodeRateLimitExceeded   = "RATE_LIMIT_EXCEEDED"
	CodeInvalidSymbol       = "INVALID_SYMBOL"
	CodePositionNotFound    = "POSITION_NOT_FOUND"
	CodeSizingFailed        = "SIZING_FAILED"
	CodeUnknown             = "UNKNOWN_ERROR"
)

// NewTransient builds a retryable venue error.
func NewTransient(venue, code, message, details string) *Error {
	return &Error{Venue: venue, Code: code, Message: message, Details: details, Retryable: true}
}

// NewRejection builds a non-retryable venue error.
func NewRejection(venue, code, message, details string) *Error {
	return &Error{Venue: venue, Code: code, Message: message, Details: details, Retryable: false}
}

// IsRetryable reports whether err is a venue error marked retryable.
func IsRetryable(err error) bool {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Retryable
	}
	return false
}
