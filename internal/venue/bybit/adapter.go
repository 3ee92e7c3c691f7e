package bybit

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/minhtran42/trade-executor/internal/venue"
	"github.com/minhtran42/trade-executor/pkg/types"
)

// TestConnection probes the public tickers endpoint; no side effects.
func (v *Venue) TestConnection(ctx context.Context) error {
	resp, err := v.http.NewUtaBybitServiceWithParams(map[string]interface{}{
		"category": v.category,
		"symbol":   "BTCUSDT",
	}).GetMarketTickers(ctx)
	if err != nil {
		return v.transportError("ticker probe", err)
	}
	var result struct {
		List []struct {
			Symbol string `json:"symbol"`
		} `json:"list"`
	}
	return v.decode(resp, &result)
}

func (v *Venue) PlaceOrder(ctx context.Context, req types.OrderRequest) (*types.OrderResult, error) {
	if res := v.ValidateOrder(req); !res.Valid {
		return nil, venue.NewRejection(v.name, venue.CodeOrderRejected, "order rejected", res.Reason)
	}

	symbol := v.FormatSymbol(req.Symbol)
	params := map[string]interface{}{
		"category":    v.category,
		"symbol":      symbol,
		"side":        sideToBybit(req.Side),
		"orderType":   orderTypeToBybit(req.Type),
		"qty":         v.formatQty(ctx, symbol, req.Quantity),
		"orderLinkId": orderLinkID(req.ID),
	}
	if req.Type == types.OrderTypeLimit || req.Type == types.OrderTypeStopLimit {
		params["price"] = decimalString(req.Price)
	}
	if req.Type == types.OrderTypeStop || req.Type == types.OrderTypeStopLimit {
		params["triggerPrice"] = decimalString(req.StopPrice)
	}
	if req.TimeInForce != "" {
		params["timeInForce"] = string(req.TimeInForce)
	}

	resp, err := v.http.NewUtaBybitServiceWithParams(params).PlaceOrder(ctx)
	if err != nil {
		return nil, v.transportError("place order", err)
	}
	var ack struct {
		OrderID     string `json:"orderId"`
		OrderLinkID string `json:"orderLinkId"`
	}
	if err := v.decode(resp, &ack); err != nil {
		return nil, err
	}

	result := &types.OrderResult{
		VenueOrderID: ack.OrderID,
		RequestID:    req.ID,
		Status:       "new",
		Symbol:       symbol,
		Side:         req.Side,
		Timestamp:    time.Now(),
		Venue:        v.name,
	}

	// The create ack carries only IDs; fetch fill state best-effort so
	// partial fills are reported, not swallowed.
	if filled, err := v.fetchOrderFill(ctx, symbol, ack.OrderID); err != nil {
		v.log.Warn().Err(err).Str("order_id", ack.OrderID).Msg("fill lookup failed after placement")
	} else if filled != nil {
		result.Status = filled.Status
		result.FilledQuantity = filled.FilledQuantity
		result.AverageFillPrice = filled.AverageFillPrice
	}
	return result, nil
}

type orderFill struct {
	Status           string
	FilledQuantity   float64
	AverageFillPrice float64
}

func (v *Venue) fetchOrderFill(ctx context.Context, symbol, orderID string) (*orderFill, error) {
	resp, err := v.http.NewUtaBybitServiceWithParams(map[string]interface{}{
		"category": v.category,
		"symbol":   symbol,
		"orderId":  orderID,
	}).GetOrderHistory(ctx)
	if err != nil {
		return nil, v.transportError("get order history", err)
	}
	var result struct {
		List []struct {
			OrderStatus string `json:"orderStatus"`
			CumExecQty  string `json:"cumExecQty"`
			AvgPrice    string `json:"avgPrice"`
		} `json:"list"`
	}
	if err := v.decode(resp, &result); err != nil {
		return nil, err
	}
	if len(result.List) == 0 {
		return nil, nil
	}
	o := result.List[0]
	return &orderFill{
		Status:           strings.ToLower(o.OrderStatus),
		FilledQuantity:   parseFloat(o.CumExecQty),
		AverageFillPrice: parseFloat(o.AvgPrice),
	}, nil
}

func (v *Venue) GetAccount(ctx context.Context) (*types.Account, error) {
	resp, err := v.http.NewUtaBybitServiceWithParams(map[string]interface{}{
		"accountType": "UNIFIED",
	}).GetAccountWallet(ctx)
	if err != nil {
		return nil, v.transportError("get account wallet", err)
	}
	var result struct {
		List []struct {
			TotalEquity           string `json:"totalEquity"`
			TotalWalletBalance    string `json:"totalWalletBalance"`
			TotalAvailableBalance string `json:"totalAvailableBalance"`
			TotalInitialMargin    string `json:"totalInitialMargin"`
		} `json:"list"`
	}
	if err := v.decode(resp, &result); err != nil {
		return nil, err
	}
	if len(result.List) == 0 {
		return nil, venue.NewRejection(v.name, venue.CodeUnknown, "empty wallet response", "")
	}
	w := result.List[0]
	equity := parseFloat(w.TotalEquity)
	return &types.Account{
		TotalBalance:     parseFloat(w.TotalWalletBalance),
		AvailableBalance: parseFloat(w.TotalAvailableBalance),
		Equity:           equity,
		Margin:           parseFloat(w.TotalInitialMargin),
		PortfolioValue:   equity,
	}, nil
}

func (v *Venue) GetPositions(ctx context.Context) ([]types.Position, error) {
	return v.positions(ctx, "")
}

func (v *Venue) GetPosition(ctx context.Context, symbol string) (*types.Position, error) {
	positions, err := v.positions(ctx, v.FormatSymbol(symbol))
	if err != nil {
		return nil, err
	}
	if len(positions) == 0 {
		return nil, nil
	}
	return &positions[0], nil
}

func (v *Venue) positions(ctx context.Context, symbol string) ([]types.Position, error) {
	params := map[string]interface{}{"category": v.category}
	if symbol != "" {
		params["symbol"] = symbol
	} else {
		params["settleCoin"] = v.settleCoin
	}
	resp, err := v.http.NewUtaBybitServiceWithParams(params).GetPositionList(ctx)
	if err != nil {
		return nil, v.transportError("get positions", err)
	}
	var result struct {
		List []struct {
			Symbol        string `json:"symbol"`
			Side          string `json:"side"`
			Size          string `json:"size"`
			PositionValue string `json:"positionValue"`
			AvgPrice      string `json:"avgPrice"`
			MarkPrice     string `json:"markPrice"`
			UnrealisedPnl string `json:"unrealisedPnl"`
		} `json:"list"`
	}
	if err := v.decode(resp, &result); err != nil {
		return nil, err
	}

	out := make([]types.Position, 0, len(result.List))
	for _, p := range result.List {
		qty := parseFloat(p.Size)
		if qty == 0 {
			continue // flat positions are closed state, not reported
		}
		side := types.PositionSideLong
		if p.Side == "Sell" {
			side = types.PositionSideShort
		}
		entry := parseFloat(p.AvgPrice)
		pos := types.Position{
			Symbol:        p.Symbol,
			Side:          side,
			Quantity:      qty,
			EntryPrice:    entry,
			CurrentPrice:  parseFloat(p.MarkPrice),
			UnrealizedPnL: parseFloat(p.UnrealisedPnl),
			MarketValue:   parseFloat(p.PositionValue),
		}
		if notional := entry * qty; notional > 0 {
			pos.UnrealizedPnLPercent = pos.UnrealizedPnL / notional * 100
		}
		out = append(out, pos)
	}
	return out, nil
}

// ClosePosition flattens the symbol's position with a reduce-only market
// order on the opposite side.
func (v *Venue) ClosePosition(ctx context.Context, symbol string) (*types.OrderResult, error) {
	pos, err := v.GetPosition(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return nil, venue.NewRejection(v.name, venue.CodePositionNotFound, "no open position", symbol)
	}

	side := "Sell"
	reqSide := types.OrderSideSell
	if pos.Side == types.PositionSideShort {
		side = "Buy"
		reqSide = types.OrderSideBuy
	}

	requestID := uuid.NewString()
	resp, err := v.http.NewUtaBybitServiceWithParams(map[string]interface{}{
		"category":    v.category,
		"symbol":      pos.Symbol,
		"side":        side,
		"orderType":   "Market",
		"qty":         v.formatQty(ctx, pos.Symbol, pos.Quantity),
		"reduceOnly":  true,
		"orderLinkId": orderLinkID(requestID),
	}).PlaceOrder(ctx)
	if err != nil {
		return nil, v.transportError("close position", err)
	}
	var ack struct {
		OrderID string `json:"orderId"`
	}
	if err := v.decode(resp, &ack); err != nil {
		return nil, err
	}

	result := &types.OrderResult{
		VenueOrderID:   ack.OrderID,
		RequestID:      requestID,
		Status:         "new",
		FilledQuantity: 0,
		Symbol:         pos.Symbol,
		Side:           reqSide,
		Timestamp:      time.Now(),
		Venue:          v.name,
	}
	if filled, err := v.fetchOrderFill(ctx, pos.Symbol, ack.OrderID); err != nil {
		v.log.Warn().Err(err).Str("order_id", ack.OrderID).Msg("fill lookup failed after close")
	} else if filled != nil {
		result.Status = filled.Status
		result.FilledQuantity = filled.FilledQuantity
		result.AverageFillPrice = filled.AverageFillPrice
	}
	return result, nil
}

// CloseAllPositions closes every open position independently; one failure
// does not stop the others.
func (v *Venue) CloseAllPositions(ctx context.Context) ([]types.OrderResult, error) {
	positions, err := v.GetPositions(ctx)
	if err != nil {
		return nil, err
	}

	var results []types.OrderResult
	var lastErr error
	for _, pos := range positions {
		res, err := v.ClosePosition(ctx, pos.Symbol)
		if err != nil {
			lastErr = err
			v.log.Error().Err(err).Str("symbol", pos.Symbol).Msg("close position failed")
			continue
		}
		results = append(results, *res)
	}
	return results, lastErr
}

func (v *Venue) GetLastPrice(ctx context.Context, symbol string) (float64, error) {
	resp, err := v.http.NewUtaBybitServiceWithParams(map[string]interface{}{
		"category": v.category,
		"symbol":   v.FormatSymbol(symbol),
	}).GetMarketTickers(ctx)
	if err != nil {
		return 0, v.transportError("get ticker", err)
	}
	var result struct {
		List []struct {
			LastPrice string `json:"lastPrice"`
		} `json:"list"`
	}
	if err := v.decode(resp, &result); err != nil {
		return 0, err
	}
	if len(result.List) == 0 {
		return 0, venue.NewRejection(v.name, venue.CodeInvalidSymbol, "unknown symbol", symbol)
	}
	return parseFloat(result.List[0].LastPrice), nil
}

// FormatSymbol converts normalized symbols like "btc/usdt" into Bybit's
// concatenated uppercase form "BTCUSDT".
func (v *Venue) FormatSymbol(symbol string) string {
	s := strings.NewReplacer("/", "", "-", "", "_", "").Replace(symbol)
	return strings.ToUpper(s)
}

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

func sideToBybit(side types.OrderSide) string {
	if side == types.OrderSideSell {
		return "Sell"
	}
	return "Buy"
}

func orderTypeToBybit(t types.OrderType) string {
	switch t {
	case types.OrderTypeLimit, types.OrderTypeStopLimit:
		return "Limit"
	default:
		return "Market"
	}
}

// orderLinkID derives a Bybit order link ID from the logical request ID.
// Bybit caps the field at 36 characters, exactly a UUID's length.
func orderLinkID(requestID string) string {
	if requestID == "" {
		return uuid.NewString()
	}
	if len(requestID) > 36 {
		return requestID[:36]
	}
	return requestID
}
