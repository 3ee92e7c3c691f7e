package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minhtran42/trade-executor/internal/venue"
	"github.com/minhtran42/trade-executor/pkg/types"
)

// fakeVenue is a scriptable venue client.
type fakeVenue struct {
	name        string
	connectErr  error
	placeErrs   []error // consumed one per PlaceOrder call, nil = success
	placeCalls  int
	positions   []types.Position
	account     types.Account
	accountErr  error
	lastPrice   float64
	closeAllRes []types.OrderResult
}

func (f *fakeVenue) Name() string                             { return f.name }
func (f *fakeVenue) TestConnection(ctx context.Context) error { return f.connectErr }

func (f *fakeVenue) PlaceOrder(ctx context.Context, req types.OrderRequest) (*types.OrderResult, error) {
	call := f.placeCalls
	f.placeCalls++
	if call < len(f.placeErrs) && f.placeErrs[call] != nil {
		return nil, f.placeErrs[call]
	}
	return &types.OrderResult{
		VenueOrderID:     "ord-1",
		RequestID:        req.ID,
		Status:           "filled",
		FilledQuantity:   req.Quantity,
		AverageFillPrice: 100,
		Symbol:           req.Symbol,
		Side:             req.Side,
		Timestamp:        time.Now(),
		Venue:            f.name,
	}, nil
}

func (f *fakeVenue) GetAccount(ctx context.Context) (*types.Account, error) {
	if f.accountErr != nil {
		return nil, f.accountErr
	}
	account := f.account
	return &account, nil
}

func (f *fakeVenue) GetPositions(ctx context.Context) ([]types.Position, error) {
	return f.positions, nil
}

func (f *fakeVenue) GetPosition(ctx context.Context, symbol string) (*types.Position, error) {
	for _, p := range f.positions {
		if p.Symbol == symbol {
			pos := p
			return &pos, nil
		}
	}
	return nil, nil
}

func (f *fakeVenue) ClosePosition(ctx context.Context, symbol string) (*types.OrderResult, error) {
	return &types.OrderResult{Symbol: symbol, Venue: f.name, Status: "filled"}, nil
}

func (f *fakeVenue) CloseAllPositions(ctx context.Context) ([]types.OrderResult, error) {
	return f.closeAllRes, nil
}

func (f *fakeVenue) GetLastPrice(ctx context.Context, symbol string) (float64, error) {
	return f.lastPrice, nil
}

func (f *fakeVenue) FormatSymbol(symbol string) string { return symbol }

func (f *fakeVenue) CalculatePositionSize(accountBalance, riskPercent, entryPrice, stopLossPrice float64) (float64, error) {
	return venue.PositionSizeFromRisk(accountBalance, riskPercent, entryPrice, stopLossPrice)
}

func (f *fakeVenue) ValidateOrder(req types.OrderRequest) types.ValidationResult {
	return venue.ValidateOrder(req)
}

// allowAll is an OrderGate that approves everything.
type allowAll struct{}

func (allowAll) ValidateOrder(ctx context.Context, req types.OrderRequest, venueName string) (*types.OrderAssessment, error) {
	return &types.OrderAssessment{Allowed: true}, nil
}

func newTestManager(t *testing.T, venues ...*fakeVenue) *Manager {
	t.Helper()
	m := NewManager(allowAll{}, nil, nil, zerolog.Nop())
	m.SetRetryPolicy(RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond})
	for i, v := range venues {
		cfg := types.VenueConfig{Name: v.name, Enabled: true, Priority: 10 - i}
		require.NoError(t, m.RegisterVenue(v, cfg))
	}
	m.TestAllConnections(context.Background())
	return m
}

func marketBuy(qty float64) types.OrderRequest {
	return types.OrderRequest{
		Symbol:   "BTCUSDT",
		Side:     types.OrderSideBuy,
		Quantity: qty,
		Type:     types.OrderTypeMarket,
	}
}

func TestRegisterVenue_Duplicate(t *testing.T) {
	m := NewManager(nil, nil, nil, zerolog.Nop())
	require.NoError(t, m.RegisterVenue(&fakeVenue{name: "a"}, types.VenueConfig{Enabled: true}))
	assert.Error(t, m.RegisterVenue(&fakeVenue{name: "a"}, types.VenueConfig{Enabled: true}))
}

func TestSelectVenue_PriorityAndTieBreak(t *testing.T) {
	low := &fakeVenue{name: "low"}
	first := &fakeVenue{name: "first"}
	second := &fakeVenue{name: "second"}

	m := NewManager(allowAll{}, nil, nil, zerolog.Nop())
	require.NoError(t, m.RegisterVenue(low, types.VenueConfig{Enabled: true, Priority: 1}))
	require.NoError(t, m.RegisterVenue(first, types.VenueConfig{Enabled: true, Priority: 5}))
	require.NoError(t, m.RegisterVenue(second, types.VenueConfig{Enabled: true, Priority: 5}))
	m.TestAllConnections(context.Background())

	// Equal priorities resolve by registration order, deterministically.
	for i := 0; i < 5; i++ {
		res := m.ExecuteOrder(context.Background(), marketBuy(1))
		require.True(t, res.Success)
		assert.Equal(t, "first", res.Venue)
	}
}

func TestSelectVenue_PreferredWins(t *testing.T) {
	a := &fakeVenue{name: "a"}
	b := &fakeVenue{name: "b"}
	m := newTestManager(t, a, b)

	req := marketBuy(1)
	req.PreferredVenue = "b"
	res := m.ExecuteOrder(context.Background(), req)
	require.True(t, res.Success)
	assert.Equal(t, "b", res.Venue)
}

func TestSelectVenue_PreferredDisabledFallsThrough(t *testing.T) {
	a := &fakeVenue{name: "a"}
	b := &fakeVenue{name: "b"}
	m := newTestManager(t, a, b)

	disabled := false
	_, err := m.UpdateVenueConfig("b", types.VenueConfigUpdate{Enabled: &disabled})
	require.NoError(t, err)

	req := marketBuy(1)
	req.PreferredVenue = "b"
	res := m.ExecuteOrder(context.Background(), req)
	require.True(t, res.Success)
	assert.Equal(t, "a", res.Venue)
}

func TestExecuteOrder_NoVenueAvailable(t *testing.T) {
	down := &fakeVenue{name: "down", connectErr: errors.New("unreachable")}
	m := newTestManager(t, down)

	res := m.ExecuteOrder(context.Background(), marketBuy(1))
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
	assert.Zero(t, res.Attempts)
}

func TestExecuteOrder_RetriesTransientThenSucceeds(t *testing.T) {
	flaky := &fakeVenue{
		name: "flaky",
		placeErrs: []error{
			venue.NewTransient("flaky", venue.CodeRateLimitExceeded, "throttled", ""),
			venue.NewTransient("flaky", venue.CodeConnectionFailed, "timeout", ""),
			nil,
		},
	}
	m := newTestManager(t, flaky)

	res := m.ExecuteOrder(context.Background(), marketBuy(1))
	require.True(t, res.Success)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 3, flaky.placeCalls)
	assert.False(t, res.FallbackUsed)
}

func TestExecuteOrder_NonRetryableSkipsRetry(t *testing.T) {
	rejecting := &fakeVenue{
		name:      "rejecting",
		placeErrs: []error{venue.NewRejection("rejecting", venue.CodeOrderRejected, "size too small", "")},
	}
	m := newTestManager(t, rejecting)

	res := m.ExecuteOrder(context.Background(), marketBuy(1))
	assert.False(t, res.Success)
	assert.Equal(t, 1, rejecting.placeCalls)
}

func TestExecuteOrder_FallbackAfterExhaustedRetries(t *testing.T) {
	throttled := venue.NewTransient("primary", venue.CodeRateLimitExceeded, "throttled", "")
	primary := &fakeVenue{name: "primary", placeErrs: []error{throttled, throttled, throttled}}
	backup := &fakeVenue{name: "backup"}
	m := newTestManager(t, primary, backup)

	req := marketBuy(1)
	req.AllowFallback = true
	res := m.ExecuteOrder(context.Background(), req)

	require.True(t, res.Success)
	assert.True(t, res.FallbackUsed)
	assert.Equal(t, "backup", res.Venue)
	assert.Equal(t, "primary", res.OriginalVenue)
	assert.Equal(t, 4, res.Attempts)
	assert.Equal(t, 1, backup.placeCalls)
}

func TestExecuteOrder_NonRetryableGoesStraightToFallback(t *testing.T) {
	primary := &fakeVenue{
		name:      "primary",
		placeErrs: []error{venue.NewRejection("primary", venue.CodeInsufficientBalance, "no funds", "")},
	}
	backup := &fakeVenue{name: "backup"}
	m := newTestManager(t, primary, backup)

	req := marketBuy(1)
	req.AllowFallback = true
	res := m.ExecuteOrder(context.Background(), req)

	require.True(t, res.Success)
	assert.True(t, res.FallbackUsed)
	assert.Equal(t, 1, primary.placeCalls)
	assert.Equal(t, 2, res.Attempts)
}

func TestExecuteOrder_FallbackDisabled(t *testing.T) {
	primary := &fakeVenue{
		name:      "primary",
		placeErrs: []error{venue.NewRejection("primary", venue.CodeOrderRejected, "rejected", "")},
	}
	backup := &fakeVenue{name: "backup"}
	m := newTestManager(t, primary, backup)

	res := m.ExecuteOrder(context.Background(), marketBuy(1))
	assert.False(t, res.Success)
	assert.False(t, res.FallbackUsed)
	assert.Zero(t, backup.placeCalls)
}

func TestExecuteOrder_VenueLimits(t *testing.T) {
	full := &fakeVenue{
		name:      "full",
		positions: []types.Position{{Symbol: "BTCUSDT"}, {Symbol: "ETHUSDT"}},
	}
	m := NewManager(allowAll{}, nil, nil, zerolog.Nop())
	require.NoError(t, m.RegisterVenue(full, types.VenueConfig{Enabled: true, MaxPositions: 2}))
	m.TestAllConnections(context.Background())

	res := m.ExecuteOrder(context.Background(), marketBuy(1))
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "open positions")
	assert.Zero(t, full.placeCalls)
}

func TestExecuteOrder_CapitalLimit(t *testing.T) {
	v := &fakeVenue{name: "v"}
	m := NewManager(allowAll{}, nil, nil, zerolog.Nop())
	require.NoError(t, m.RegisterVenue(v, types.VenueConfig{Enabled: true, MaxCapitalPerTrade: 500}))
	m.TestAllConnections(context.Background())

	req := marketBuy(1)
	req.Capital = 1000
	res := m.ExecuteOrder(context.Background(), req)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "max capital per trade")
}

func TestGetPortfolioSummary_SkipsFailingVenue(t *testing.T) {
	healthy := &fakeVenue{
		name:    "healthy",
		account: types.Account{PortfolioValue: 5000, AvailableBalance: 5000},
		positions: []types.Position{
			{Symbol: "BTCUSDT", MarketValue: 1000, UnrealizedPnL: 50},
		},
	}
	broken := &fakeVenue{name: "broken", accountErr: errors.New("api down")}
	m := newTestManager(t, healthy, broken)

	summary, err := m.GetPortfolioSummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"broken"}, summary.SkippedVenues)
	assert.Equal(t, 5000.0, summary.TotalValue)
	assert.Equal(t, 50.0, summary.TotalPnL)
	assert.Equal(t, 1000.0, summary.ExposureBySymbol["BTCUSDT"])
	assert.Len(t, summary.Positions, 1)
}

// fakeRecorder captures persistence calls; fail makes every write error.
type fakeRecorder struct {
	fail      bool
	orders    int
	accounts  map[string]types.Account
	positions map[string][]types.Position
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{
		accounts:  make(map[string]types.Account),
		positions: make(map[string][]types.Position),
	}
}

func (f *fakeRecorder) CreateOrder(ctx context.Context, req types.OrderRequest, res types.OrderResult) error {
	if f.fail {
		return errors.New("store down")
	}
	f.orders++
	return nil
}

func (f *fakeRecorder) SaveAccountSnapshot(ctx context.Context, venueName string, account types.Account) error {
	if f.fail {
		return errors.New("store down")
	}
	f.accounts[venueName] = account
	return nil
}

func (f *fakeRecorder) SavePositions(ctx context.Context, venueName string, positions []types.Position) error {
	if f.fail {
		return errors.New("store down")
	}
	f.positions[venueName] = positions
	return nil
}

func TestGetPortfolioSummary_PersistsSnapshots(t *testing.T) {
	v := &fakeVenue{
		name:    "paper",
		account: types.Account{TotalBalance: 10000, AvailableBalance: 9000, PortfolioValue: 10000},
		positions: []types.Position{
			{Symbol: "BTCUSDT", Side: types.PositionSideLong, Quantity: 1, MarketValue: 1000},
		},
	}
	rec := newFakeRecorder()
	m := NewManager(allowAll{}, nil, rec, zerolog.Nop())
	require.NoError(t, m.RegisterVenue(v, types.VenueConfig{Name: "paper", Enabled: true}))
	m.TestAllConnections(context.Background())

	_, err := m.GetPortfolioSummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10000.0, rec.accounts["paper"].TotalBalance)
	require.Len(t, rec.positions["paper"], 1)
	assert.Equal(t, "BTCUSDT", rec.positions["paper"][0].Symbol)
}

func TestGetPortfolioSummary_StoreFailureDoesNotAbort(t *testing.T) {
	v := &fakeVenue{
		name:    "paper",
		account: types.Account{TotalBalance: 10000, PortfolioValue: 10000},
	}
	m := NewManager(allowAll{}, nil, &fakeRecorder{fail: true}, zerolog.Nop())
	require.NoError(t, m.RegisterVenue(v, types.VenueConfig{Name: "paper", Enabled: true}))
	m.TestAllConnections(context.Background())

	summary, err := m.GetPortfolioSummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10000.0, summary.TotalValue)
	assert.Empty(t, summary.SkippedVenues)
}

func TestRetryPolicy_ExponentialDelay(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second}
	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, 2*time.Second, p.Delay(2))
	assert.Equal(t, 4*time.Second, p.Delay(3))
}

// gateDeny rejects every order.
type gateDeny struct{}

func (gateDeny) ValidateOrder(ctx context.Context, req types.OrderRequest, venueName string) (*types.OrderAssessment, error) {
	return &types.OrderAssessment{Allowed: false, Reason: "Emergency stop is active"}, nil
}

func TestExecuteOrder_GateRejection(t *testing.T) {
	v := &fakeVenue{name: "v"}
	m := NewManager(gateDeny{}, nil, nil, zerolog.Nop())
	require.NoError(t, m.RegisterVenue(v, types.VenueConfig{Enabled: true}))
	m.TestAllConnections(context.Background())

	res := m.ExecuteOrder(context.Background(), marketBuy(1))
	assert.False(t, res.Success)
	assert.Equal(t, "Emergency stop is active", res.Error)
	assert.Zero(t, v.placeCalls)
}

// gateAdjust reduces every order to half its quantity.
type gateAdjust struct{}

func (gateAdjust) ValidateOrder(ctx context.Context, req types.OrderRequest, venueName string) (*types.OrderAssessment, error) {
	return &types.OrderAssessment{Allowed: true, AdjustedQuantity: req.Quantity / 2}, nil
}

func TestExecuteOrder_SoftLimitAdjustsQuantity(t *testing.T) {
	v := &fakeVenue{name: "v"}
	m := NewManager(gateAdjust{}, nil, nil, zerolog.Nop())
	require.NoError(t, m.RegisterVenue(v, types.VenueConfig{Enabled: true}))
	m.TestAllConnections(context.Background())

	res := m.ExecuteOrder(context.Background(), marketBuy(10))
	require.True(t, res.Success)
	assert.Equal(t, 5.0, res.AdjustedQuantity)
	assert.Equal(t, 5.0, res.Order.FilledQuantity)
}

func TestLastPrice_DefaultsToSelectedVenue(t *testing.T) {
	v := &fakeVenue{name: "v", lastPrice: 123.45}
	m := newTestManager(t, v)

	price, err := m.LastPrice(context.Background(), "", "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 123.45, price)
}

func TestVenueAccount_UnknownVenue(t *testing.T) {
	m := newTestManager(t, &fakeVenue{name: "v"})
	_, err := m.VenueAccount(context.Background(), "nope")
	assert.Error(t, err)
}
