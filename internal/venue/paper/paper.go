// Package paper implements an in-memory simulated venue. It fills market
// and limit orders instantly at the last known price, tracks positions and
// balances, and is used for demo wiring and as a deterministic venue in
// tests.
package paper

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/minhtran42/trade-executor/internal/venue"
	"github.com/minhtran42/trade-executor/pkg/types"
)

// Config seeds the simulated venue.
type Config struct {
	Name           string
	InitialBalance float64
	Prices         map[string]float64 // seed last prices per symbol
}

// Venue is a simulated trading venue. All state is in-memory and guarded
// by a single mutex.
type Venue struct {
	name string
	log  zerolog.Logger

	mu        sync.Mutex
	cash      float64
	positions map[string]*types.Position
	prices    map[string]float64
}

var _ venue.Client = (*Venue)(nil)

// New creates a paper venue with the configured balance and seed prices.
func New(cfg Config, log zerolog.Logger) *Venue {
	prices := make(map[string]float64, len(cfg.Prices))
	for sym, px := range cfg.Prices {
		prices[formatSymbol(sym)] = px
	}
	return &Venue{
		name:      cfg.Name,
		log:       log.With().Str("component", "venue").Str("venue", cfg.Name).Logger(),
		cash:      cfg.InitialBalance,
		positions: make(map[string]*types.Position),
		prices:    prices,
	}
}

func (v *Venue) Name() string { return v.name }

// TestConnection always succeeds: the simulated venue is local.
func (v *Venue) TestConnection(ctx context.Context) error { return nil }

// SetPrice updates the simulated last price and re-marks any open position.
func (v *Venue) SetPrice(symbol string, price float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	sym := formatSymbol(symbol)
	v.prices[sym] = price
	if pos, ok := v.positions[sym]; ok {
		markPosition(pos, price)
	}
}

func (v *Venue) PlaceOrder(ctx context.Context, req types.OrderRequest) (*types.OrderResult, error) {
	if res := v.ValidateOrder(req); !res.Valid {
		return nil, venue.NewRejection(v.name, venue.CodeOrderRejected, "order rejected", res.Reason)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	sym := v.FormatSymbol(req.Symbol)
	price, ok := v.prices[sym]
	if !ok {
		return nil, venue.NewRejection(v.name, venue.CodeInvalidSymbol, "no price for symbol", sym)
	}
	// Limit orders fill at the limit price, everything else at last price.
	if req.Type == types.OrderTypeLimit || req.Type == types.OrderTypeStopLimit {
		price = req.Price
	}

	if req.Side == types.OrderSideBuy && req.Quantity*price > v.cash {
		return nil, venue.NewRejection(v.name, venue.CodeInsufficientBalance,
			"insufficient balance", fmt.Sprintf("need %.2f, have %.2f", req.Quantity*price, v.cash))
	}

	v.applyFill(sym, req.Side, req.Quantity, price)

	return &types.OrderResult{
		VenueOrderID:     uuid.NewString(),
		RequestID:        req.ID,
		Status:           "filled",
		FilledQuantity:   req.Quantity,
		AverageFillPrice: price,
		Symbol:           sym,
		Side:             req.Side,
		Timestamp:        time.Now(),
		Venue:            v.name,
	}, nil
}

// applyFill nets the fill against the existing position. Closing a
// position realizes PnL into cash; a fill larger than the opposing
// position flips direction at the fill price. Caller holds the lock.
func (v *Venue) applyFill(sym string, side types.OrderSide, qty, price float64) {
	dir := types.PositionSideLong
	if side == types.OrderSideSell {
		dir = types.PositionSideShort
	}

	pos, ok := v.positions[sym]
	if !ok || pos.Side == dir {
		if !ok {
			pos = &types.Position{Symbol: sym, Side: dir}
			v.positions[sym] = pos
		}
		// Average in.
		total := pos.Quantity + qty
		pos.EntryPrice = (pos.EntryPrice*pos.Quantity + price*qty) / total
		pos.Quantity = total
		if dir == types.PositionSideLong {
			v.cash -= qty * price
		} else {
			v.cash += qty * price
		}
		markPosition(pos, price)
		return
	}

	// Opposing fill: close up to the open quantity, realizing PnL.
	closed := qty
	if closed > pos.Quantity {
		closed = pos.Quantity
	}
	if pos.Side == types.PositionSideLong {
		v.cash += closed * price
	} else {
		v.cash -= closed * price
	}
	pos.Quantity -= closed
	if pos.Quantity == 0 {
		delete(v.positions, sym)
	} else {
		markPosition(pos, price)
	}

	if rest := qty - closed; rest > 0 {
		v.applyFill(sym, side, rest, price)
	}
}

func (v *Venue) GetAccount(ctx context.Context) (*types.Account, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	// Long holdings add to equity; shorts owe the buy-back, and their
	// proceeds already sit in cash.
	holdings := 0.0
	for _, pos := range v.positions {
		if pos.Side == types.PositionSideLong {
			holdings += pos.MarketValue
		} else {
			holdings -= pos.MarketValue
		}
	}
	equity := v.cash + holdings
	return &types.Account{
		TotalBalance:     equity,
		AvailableBalance: v.cash,
		Equity:           equity,
		Margin:           0, // the simulated venue is unmargined
		PortfolioValue:   equity,
	}, nil
}

func (v *Venue) GetPositions(ctx context.Context) ([]types.Position, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]types.Position, 0, len(v.positions))
	for _, pos := range v.positions {
		out = append(out, *pos)
	}
	return out, nil
}

func (v *Venue) GetPosition(ctx context.Context, symbol string) (*types.Position, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	pos, ok := v.positions[v.FormatSymbol(symbol)]
	if !ok {
		return nil, nil
	}
	copied := *pos
	return &copied, nil
}

func (v *Venue) ClosePosition(ctx context.Context, symbol string) (*types.OrderResult, error) {
	v.mu.Lock()
	pos, ok := v.positions[v.FormatSymbol(symbol)]
	if !ok {
		v.mu.Unlock()
		return nil, venue.NewRejection(v.name, venue.CodePositionNotFound, "no open position", symbol)
	}
	side := types.OrderSideSell
	if pos.Side == types.PositionSideShort {
		side = types.OrderSideBuy
	}
	qty := pos.Quantity
	v.mu.Unlock()

	return v.PlaceOrder(ctx, types.OrderRequest{
		ID:       uuid.NewString(),
		Symbol:   symbol,
		Side:     side,
		Quantity: qty,
		Type:     types.OrderTypeMarket,
	})
}

func (v *Venue) CloseAllPositions(ctx context.Context) ([]types.OrderResult, error) {
	v.mu.Lock()
	symbols := make([]string, 0, len(v.positions))
	for sym := range v.positions {
		symbols = append(symbols, sym)
	}
	v.mu.Unlock()

	var results []types.OrderResult
	var lastErr error
	for _, sym := range symbols {
		res, err := v.ClosePosition(ctx, sym)
		if err != nil {
			lastErr = err
			v.log.Error().Err(err).Str("symbol", sym).Msg("close position failed")
			continue
		}
		results = append(results, *res)
	}
	return results, lastErr
}

func (v *Venue) GetLastPrice(ctx context.Context, symbol string) (float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	price, ok := v.prices[v.FormatSymbol(symbol)]
	if !ok {
		return 0, venue.NewRejection(v.name, venue.CodeInvalidSymbol, "no price for symbol", symbol)
	}
	return price, nil
}

func (v *Venue) FormatSymbol(symbol string) string { return formatSymbol(symbol) }

func (v *Venue) CalculatePositionSize(accountBalance, riskPercent, entryPrice, stopLossPrice float64) (float64, error) {
	qty, err := venue.PositionSizeFromRisk(accountBalance, riskPercent, entryPrice, stopLossPrice)
	if err != nil {
		return 0, venue.NewRejection(v.name, venue.CodeSizingFailed, "position sizing failed", err.Error())
	}
	return qty, nil
}

func (v *Venue) ValidateOrder(req types.OrderRequest) types.ValidationResult {
	return venue.ValidateOrder(req)
}

func formatSymbol(symbol string) string {
	s := strings.NewReplacer("/", "", "-", "", "_", "").Replace(symbol)
	return strings.ToUpper(s)
}

func markPosition(pos *types.Position, price float64) {
	pos.CurrentPrice = price
	pos.MarketValue = price * pos.Quantity
	if pos.Side == types.PositionSideLong {
		pos.UnrealizedPnL = (price - pos.EntryPrice) * pos.Quantity
	} else {
		pos.UnrealizedPnL = (pos.EntryPrice - price) * pos.Quantity
	}
	if notional := pos.EntryPrice * pos.Quantity; notional > 0 {
		pos.UnrealizedPnLPercent = pos.UnrealizedPnL / notional * 100
	}
}
