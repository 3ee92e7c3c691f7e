package paper

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minhtran42/trade-executor/pkg/types"
)

func newTestVenue() *Venue {
	return New(Config{
		Name:           "paper",
		InitialBalance: 10000,
		Prices:         map[string]float64{"BTCUSDT": 100},
	}, zerolog.Nop())
}

func TestPlaceOrder_MarketBuy(t *testing.T) {
	v := newTestVenue()
	ctx := context.Background()

	res, err := v.PlaceOrder(ctx, types.OrderRequest{
		ID:       "req-1",
		Symbol:   "BTC/USDT",
		Side:     types.OrderSideBuy,
		Quantity: 10,
		Type:     types.OrderTypeMarket,
	})
	require.NoError(t, err)
	assert.Equal(t, "filled", res.Status)
	assert.Equal(t, 10.0, res.FilledQuantity)
	assert.Equal(t, 100.0, res.AverageFillPrice)
	assert.Equal(t, "BTCUSDT", res.Symbol)

	account, err := v.GetAccount(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 9000.0, account.AvailableBalance, 1e-9)

	pos, err := v.GetPosition(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, types.PositionSideLong, pos.Side)
	assert.Equal(t, 10.0, pos.Quantity)
}

func TestPlaceOrder_InsufficientBalance(t *testing.T) {
	v := newTestVenue()

	_, err := v.PlaceOrder(context.Background(), types.OrderRequest{
		ID:       "req-1",
		Symbol:   "BTCUSDT",
		Side:     types.OrderSideBuy,
		Quantity: 1000,
		Type:     types.OrderTypeMarket,
	})
	assert.Error(t, err)
}

func TestPlaceOrder_UnknownSymbol(t *testing.T) {
	v := newTestVenue()

	_, err := v.PlaceOrder(context.Background(), types.OrderRequest{
		ID:       "req-1",
		Symbol:   "XRPUSDT",
		Side:     types.OrderSideBuy,
		Quantity: 1,
		Type:     types.OrderTypeMarket,
	})
	assert.Error(t, err)
}

func TestUnrealizedPnL_TracksPrice(t *testing.T) {
	v := newTestVenue()
	ctx := context.Background()

	_, err := v.PlaceOrder(ctx, types.OrderRequest{
		ID: "req-1", Symbol: "BTCUSDT", Side: types.OrderSideBuy,
		Quantity: 10, Type: types.OrderTypeMarket,
	})
	require.NoError(t, err)

	v.SetPrice("BTCUSDT", 110)

	pos, err := v.GetPosition(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.InDelta(t, 100.0, pos.UnrealizedPnL, 1e-9)

	account, err := v.GetAccount(ctx)
	require.NoError(t, err)
	// 9000 cash + 1100 market value of the position.
	assert.InDelta(t, 10100.0, account.Equity, 1e-9)
}

func TestClosePosition_RealizesPnL(t *testing.T) {
	v := newTestVenue()
	ctx := context.Background()

	_, err := v.PlaceOrder(ctx, types.OrderRequest{
		ID: "req-1", Symbol: "BTCUSDT", Side: types.OrderSideBuy,
		Quantity: 10, Type: types.OrderTypeMarket,
	})
	require.NoError(t, err)

	v.SetPrice("BTCUSDT", 110)

	res, err := v.ClosePosition(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, types.OrderSideSell, res.Side)
	assert.Equal(t, 10.0, res.FilledQuantity)

	pos, err := v.GetPosition(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Nil(t, pos)

	account, err := v.GetAccount(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 10100.0, account.AvailableBalance, 1e-9)
}

func TestShortPosition_FlipAndPnL(t *testing.T) {
	v := newTestVenue()
	ctx := context.Background()

	_, err := v.PlaceOrder(ctx, types.OrderRequest{
		ID: "req-1", Symbol: "BTCUSDT", Side: types.OrderSideSell,
		Quantity: 5, Type: types.OrderTypeMarket,
	})
	require.NoError(t, err)

	pos, err := v.GetPosition(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, types.PositionSideShort, pos.Side)

	v.SetPrice("BTCUSDT", 90)
	pos, err = v.GetPosition(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.InDelta(t, 50.0, pos.UnrealizedPnL, 1e-9)

	// Buying more than the short flips the position long.
	_, err = v.PlaceOrder(ctx, types.OrderRequest{
		ID: "req-2", Symbol: "BTCUSDT", Side: types.OrderSideBuy,
		Quantity: 8, Type: types.OrderTypeMarket,
	})
	require.NoError(t, err)

	pos, err = v.GetPosition(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, types.PositionSideLong, pos.Side)
	assert.InDelta(t, 3.0, pos.Quantity, 1e-9)
}

func TestCloseAllPositions(t *testing.T) {
	v := New(Config{
		Name:           "paper",
		InitialBalance: 10000,
		Prices:         map[string]float64{"BTCUSDT": 100, "ETHUSDT": 10},
	}, zerolog.Nop())
	ctx := context.Background()

	for _, sym := range []string{"BTCUSDT", "ETHUSDT"} {
		_, err := v.PlaceOrder(ctx, types.OrderRequest{
			ID: "req-" + sym, Symbol: sym, Side: types.OrderSideBuy,
			Quantity: 1, Type: types.OrderTypeMarket,
		})
		require.NoError(t, err)
	}

	closed, err := v.CloseAllPositions(ctx)
	require.NoError(t, err)
	assert.Len(t, closed, 2)

	positions, err := v.GetPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestFormatSymbol(t *testing.T) {
	v := newTestVenue()
	assert.Equal(t, "BTCUSDT", v.FormatSymbol("btc/usdt"))
	assert.Equal(t, "BTCUSDT", v.FormatSymbol("BTC-USDT"))
	assert.Equal(t, "BTCUSDT", v.FormatSymbol("btc_usdt"))
}
