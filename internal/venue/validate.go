package venue

import (
	"fmt"

	"github.com/minhtran42/trade-executor/pkg/types"
)

// ValidateOrder implements the contract-level field validation shared by
// all venue adapters. It runs before any network call: a request that
// fails here never reaches a venue.
func ValidateOrder(req types.OrderRequest) types.ValidationResult {
	if req.Symbol == "" {
		return invalid("symbol is required")
	}
	if req.Quantity <= 0 {
		return invalid(fmt.Sprintf("quantity must be positive, got %v", req.Quantity))
	}
	if req.Side != types.OrderSideBuy && req.Side != types.OrderSideSell {
		return invalid(fmt.Sprintf("side must be buy or sell, got %q", req.Side))
	}
	switch req.Type {
	case types.OrderTypeMarket:
	case types.OrderTypeLimit:
		if req.Price <= 0 {
			return invalid("limit orders require a price")
		}
	case types.OrderTypeStop:
		if req.StopPrice <= 0 {
			return invalid("stop orders require a stop price")
		}
	case types.OrderTypeStopLimit:
		if req.Price <= 0 {
			return invalid("stop-limit orders require a price")
		}
		if req.StopPrice <= 0 {
			return invalid("stop-limit orders require a stop price")
		}
	default:
		return invalid(fmt.Sprintf("unsupported order type %q", req.Type))
	}
	return types.ValidationResult{Valid: true}
}

func invalid(reason string) types.ValidationResult {
	return types.ValidationResult{Valid: false, Reason: reason}
}
