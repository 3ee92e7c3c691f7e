package store

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minhtran42/trade-executor/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir()+"/executor.db", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndListOrders(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	req := types.OrderRequest{
		ID:       "req-1",
		Symbol:   "BTCUSDT",
		Side:     types.OrderSideBuy,
		Quantity: 2,
		Type:     types.OrderTypeLimit,
		Price:    100,
	}
	res := types.OrderResult{
		VenueOrderID:     "venue-1",
		RequestID:        "req-1",
		Status:           "filled",
		FilledQuantity:   2,
		AverageFillPrice: 99.5,
		Symbol:           "BTCUSDT",
		Side:             types.OrderSideBuy,
		Timestamp:        time.Now(),
		Venue:            "paper",
	}
	require.NoError(t, s.CreateOrder(ctx, req, res))

	orders, err := s.ListOrders(ctx, 10)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "req-1", orders[0].RequestID)
	assert.Equal(t, "venue-1", orders[0].VenueOrderID)
	assert.Equal(t, "paper", orders[0].Venue)
	assert.Equal(t, "limit", orders[0].Type)
	assert.Equal(t, 2.0, orders[0].FilledQuantity)
	assert.Equal(t, 99.5, orders[0].AverageFillPrice)
}

func TestCreateOrder_IdempotentPerAttempt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	req := types.OrderRequest{ID: "req-1", Symbol: "BTCUSDT", Side: types.OrderSideBuy, Quantity: 1, Type: types.OrderTypeMarket}
	res := types.OrderResult{RequestID: "req-1", VenueOrderID: "venue-1", Symbol: "BTCUSDT", Side: types.OrderSideBuy, Status: "filled", Timestamp: time.Now()}

	require.NoError(t, s.CreateOrder(ctx, req, res))
	require.NoError(t, s.CreateOrder(ctx, req, res))

	orders, err := s.ListOrders(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, orders, 1)

	// A fallback attempt under the same request is a distinct row.
	res.VenueOrderID = "venue-2"
	res.Venue = "bybit"
	require.NoError(t, s.CreateOrder(ctx, req, res))
	orders, err = s.ListOrders(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, orders, 2)
}

func TestAccountSnapshot_UpsertAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveAccountSnapshot(ctx, "paper", types.Account{
		TotalBalance: 10000, AvailableBalance: 9000, Equity: 10000, PortfolioValue: 10000,
	}))
	require.NoError(t, s.SaveAccountSnapshot(ctx, "paper", types.Account{
		TotalBalance: 10500, AvailableBalance: 8000, Equity: 10500, Margin: 500, PortfolioValue: 10500,
	}))

	account, err := s.GetAccount(ctx, "paper")
	require.NoError(t, err)
	assert.Equal(t, 10500.0, account.TotalBalance)
	assert.Equal(t, 8000.0, account.AvailableBalance)
	assert.Equal(t, 500.0, account.Margin)

	_, err = s.GetAccount(ctx, "bybit")
	assert.Error(t, err)
}

func TestSavePositions_ReplacesVenueSnapshot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SavePositions(ctx, "paper", []types.Position{
		{Symbol: "BTCUSDT", Side: types.PositionSideLong, Quantity: 1, EntryPrice: 100, CurrentPrice: 110, MarketValue: 110, UnrealizedPnL: 10},
		{Symbol: "ETHUSDT", Side: types.PositionSideLong, Quantity: 2, EntryPrice: 50, CurrentPrice: 50, MarketValue: 100},
	}))
	require.NoError(t, s.SavePositions(ctx, "bybit", []types.Position{
		{Symbol: "BTCUSDT", Side: types.PositionSideShort, Quantity: 1, EntryPrice: 100, CurrentPrice: 100, MarketValue: 100},
	}))

	// ETHUSDT was closed since the last cycle; only BTCUSDT survives.
	require.NoError(t, s.SavePositions(ctx, "paper", []types.Position{
		{Symbol: "BTCUSDT", Side: types.PositionSideLong, Quantity: 1, EntryPrice: 100, CurrentPrice: 120, MarketValue: 120, UnrealizedPnL: 20},
	}))

	records, err := s.ListPositions(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "bybit", records[0].Venue)
	assert.Equal(t, types.PositionSideShort, records[0].Position.Side)
	assert.Equal(t, "paper", records[1].Venue)
	assert.Equal(t, 120.0, records[1].Position.CurrentPrice)
	assert.Equal(t, 20.0, records[1].Position.UnrealizedPnL)
}

func TestCreateAndListAlerts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := types.RiskAlert{
		Type: types.AlertTypeWarning, Severity: 5, Metric: "exposure_ratio",
		Message: "stale", Timestamp: time.Now().Add(-48 * time.Hour),
	}
	fresh := types.RiskAlert{
		Type: types.AlertTypeCritical, Severity: 9, Metric: "margin_level",
		Message: "margin level 110 below 150", CurrentValue: 110, Threshold: 150,
		RecommendedAction: "reduce positions", Timestamp: time.Now(),
	}
	require.NoError(t, s.CreateAlert(ctx, old))
	require.NoError(t, s.CreateAlert(ctx, fresh))

	alerts, err := s.ListAlerts(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, types.AlertTypeCritical, alerts[0].Type)
	assert.Equal(t, "margin_level", alerts[0].Metric)
	assert.Equal(t, 110.0, alerts[0].CurrentValue)
}
