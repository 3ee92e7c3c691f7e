// Package router owns the set of configured venue clients and is the
// single entry point for "execute this order somewhere". It selects a
// venue deterministically, validates venue-scoped limits, executes with
// retry and fallback, and exposes an aggregated portfolio view.
package router

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/minhtran42/trade-executor/internal/events"
	"github.com/minhtran42/trade-executor/internal/monitoring"
	"github.com/minhtran42/trade-executor/internal/venue"
	"github.com/minhtran42/trade-executor/pkg/types"
)

// OrderGate is the pre-trade risk check every order passes before it
// reaches a venue. Implemented by the risk engine, injected at wiring
// time.
type OrderGate interface {
	ValidateOrder(ctx context.Context, req types.OrderRequest, venueName string) (*types.OrderAssessment, error)
}

// Recorder is the slice of the persistence boundary the router writes:
// executed orders plus per-venue account and position snapshots. Store
// failures never fail an execution or an aggregation.
type Recorder interface {
	CreateOrder(ctx context.Context, req types.OrderRequest, res types.OrderResult) error
	SaveAccountSnapshot(ctx context.Context, venueName string, account types.Account) error
	SavePositions(ctx context.Context, venueName string, positions []types.Position) error
}

type venueHealth struct {
	connected bool
	lastCheck time.Time
}

// Manager is the venue registry / router. All registry state is guarded
// by a single mutex; venue I/O happens outside the lock.
type Manager struct {
	log    zerolog.Logger
	gate   OrderGate
	bus    *events.Bus
	store  Recorder
	retry  RetryPolicy

	mu      sync.RWMutex
	names   []string // registration order, breaks priority ties
	clients map[string]venue.Client
	configs map[string]types.VenueConfig
	health  map[string]*venueHealth
}

// NewManager creates a router. gate, bus and store may be nil (checks,
// events and persistence are then skipped); venues are registered
// afterwards with RegisterVenue.
func NewManager(gate OrderGate, bus *events.Bus, store Recorder, log zerolog.Logger) *Manager {
	return &Manager{
		log:     log.With().Str("component", "router").Logger(),
		gate:    gate,
		bus:     bus,
		store:   store,
		retry:   DefaultRetryPolicy(),
		clients: make(map[string]venue.Client),
		configs: make(map[string]types.VenueConfig),
		health:  make(map[string]*venueHealth),
	}
}

// SetGate attaches the pre-trade check after construction. The router
// and the risk engine reference each other, so one side is wired late.
func (m *Manager) SetGate(gate OrderGate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gate = gate
}

// SetRetryPolicy overrides the placement retry policy.
func (m *Manager) SetRetryPolicy(p RetryPolicy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retry = p
}

// RegisterVenue adds a venue client with its routing config. Registration
// order is preserved: the first registered venue wins priority ties.
func (m *Manager) RegisterVenue(client venue.Client, cfg types.VenueConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := client.Name()
	if _, exists := m.clients[name]; exists {
		return fmt.Errorf("venue %q already registered", name)
	}
	if cfg.Name == "" {
		cfg.Name = name
	}
	m.names = append(m.names, name)
	m.clients[name] = client
	m.configs[name] = cfg
	m.health[name] = &venueHealth{}
	m.log.Info().Str("venue", name).Int("priority", cfg.Priority).Bool("enabled", cfg.Enabled).Msg("venue registered")
	return nil
}

// UpdateVenueConfig applies a partial config change and returns the
// effective config.
func (m *Manager) UpdateVenueConfig(name string, upd types.VenueConfigUpdate) (types.VenueConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg, ok := m.configs[name]
	if !ok {
		return types.VenueConfig{}, fmt.Errorf("venue %q not registered", name)
	}
	if upd.Enabled != nil {
		cfg.Enabled = *upd.Enabled
	}
	if upd.MaxPositions != nil {
		cfg.MaxPositions = *upd.MaxPositions
	}
	if upd.MaxCapitalPerTrade != nil {
		cfg.MaxCapitalPerTrade = *upd.MaxCapitalPerTrade
	}
	if upd.Priority != nil {
		cfg.Priority = *upd.Priority
	}
	m.configs[name] = cfg
	m.log.Info().Str("venue", name).Msg("venue config updated")
	return cfg, nil
}

// TestAllConnections refreshes per-venue connectivity. The router holds no
// background timer of its own; callers or the risk engine's periodic loop
// drive refresh.
func (m *Manager) TestAllConnections(ctx context.Context) map[string]bool {
	m.mu.RLock()
	clients := make(map[string]venue.Client, len(m.clients))
	for name, c := range m.clients {
		clients[name] = c
	}
	m.mu.RUnlock()

	results := make(map[string]bool, len(clients))
	for name, client := range clients {
		err := client.TestConnection(ctx)
		connected := err == nil
		results[name] = connected
		if err != nil {
			m.log.Warn().Err(err).Str("venue", name).Msg("connection test failed")
		}

		m.mu.Lock()
		m.health[name].connected = connected
		m.health[name].lastCheck = time.Now()
		m.mu.Unlock()
		monitoring.SetVenueConnected(name, connected)
	}
	return results
}

// GetStatus reports the router's view of every registered venue.
func (m *Manager) GetStatus() []types.VenueStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]types.VenueStatus, 0, len(m.names))
	for _, name := range m.names {
		h := m.health[name]
		out = append(out, types.VenueStatus{
			Name:            name,
			Connected:       h.connected,
			LastHealthCheck: h.lastCheck,
			Config:          m.configs[name],
		})
	}
	return out
}

// selectVenue implements the deterministic selection algorithm: a
// qualifying preferred venue wins; otherwise the highest-priority
// enabled+connected venue, ties broken by registration order.
func (m *Manager) selectVenue(preferred string, exclude string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if preferred != "" && preferred != exclude {
		if cfg, ok := m.configs[preferred]; ok && cfg.Enabled && m.health[preferred].connected {
			return preferred, nil
		}
	}

	candidates := make([]string, 0, len(m.names))
	for _, name := range m.names {
		if name == exclude {
			continue
		}
		if m.configs[name].Enabled && m.health[name].connected {
			candidates = append(candidates, name)
		}
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("no suitable venue available")
	}
	// Stable sort keeps registration order within equal priorities.
	sort.SliceStable(candidates, func(i, j int) bool {
		return m.configs[candidates[i]].Priority > m.configs[candidates[j]].Priority
	})
	return candidates[0], nil
}

// validateForVenue runs the venue-scoped checks: config limits first,
// then the client's field-level validation. No silent clamping: a breach
// is a descriptive failure.
func (m *Manager) validateForVenue(ctx context.Context, name string, req types.OrderRequest) error {
	m.mu.RLock()
	cfg := m.configs[name]
	client := m.clients[name]
	m.mu.RUnlock()

	if !cfg.Enabled {
		return fmt.Errorf("venue %s is disabled", name)
	}
	if cfg.MaxCapitalPerTrade > 0 && req.Capital > cfg.MaxCapitalPerTrade {
		return fmt.Errorf("capital %.2f exceeds venue %s max capital per trade %.2f",
			req.Capital, name, cfg.MaxCapitalPerTrade)
	}
	if cfg.MaxPositions > 0 {
		positions, err := client.GetPositions(ctx)
		if err != nil {
			return fmt.Errorf("fetch positions on %s: %w", name, err)
		}
		if len(positions) >= cfg.MaxPositions {
			return fmt.Errorf("venue %s has %d open positions, limit is %d",
				name, len(positions), cfg.MaxPositions)
		}
	}
	if res := client.ValidateOrder(req); !res.Valid {
		return fmt.Errorf("order validation failed on %s: %s", name, res.Reason)
	}
	return nil
}

// ExecuteOrder is the single entry point for order execution. Venue
// errors never escape: every outcome is flattened into the result.
func (m *Manager) ExecuteOrder(ctx context.Context, req types.OrderRequest) *types.ExecutionResult {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	log := m.log.With().Str("request_id", req.ID).Str("symbol", req.Symbol).Logger()

	selected, err := m.selectVenue(req.PreferredVenue, "")
	if err != nil {
		// Terminal: no retry, no fallback.
		return m.finish(ctx, req, &types.ExecutionResult{Error: err.Error()})
	}

	result := &types.ExecutionResult{Venue: selected}

	// Pre-trade risk gate. An adjusted quantity is a soft-limit outcome:
	// the reduced size is executed and reported, never the original.
	execReq := req
	if m.gate != nil {
		assessment, err := m.gate.ValidateOrder(ctx, req, selected)
		if err != nil {
			result.Error = fmt.Sprintf("risk validation failed: %v", err)
			return m.finish(ctx, req, result)
		}
		if !assessment.Allowed {
			result.Error = assessment.Reason
			return m.finish(ctx, req, result)
		}
		if assessment.AdjustedQuantity > 0 && assessment.AdjustedQuantity < req.Quantity {
			execReq.Quantity = assessment.AdjustedQuantity
			result.AdjustedQuantity = assessment.AdjustedQuantity
			log.Info().Float64("from", req.Quantity).Float64("to", execReq.Quantity).
				Msg("quantity reduced to max order size")
		}
	}

	if err := m.validateForVenue(ctx, selected, execReq); err != nil {
		result.Error = err.Error()
		return m.finish(ctx, req, result)
	}

	order, attempts, err := m.placeWithRetry(ctx, selected, execReq)
	result.Attempts = attempts
	if err == nil {
		result.Success = true
		result.Order = order
		return m.finish(ctx, req, result)
	}
	log.Warn().Err(err).Str("venue", selected).Int("attempts", attempts).Msg("execution failed on selected venue")
	result.Error = err.Error()

	if !req.AllowFallback {
		return m.finish(ctx, req, result)
	}

	// Fallback: same selection algorithm, failed venue excluded, preferred
	// venue ignored. A single attempt, no further retry loop.
	alternate, selErr := m.selectVenue("", selected)
	if selErr != nil {
		log.Warn().Msg("no fallback venue available")
		return m.finish(ctx, req, result)
	}

	m.mu.RLock()
	client := m.clients[alternate]
	m.mu.RUnlock()

	order, fbErr := client.PlaceOrder(ctx, execReq)
	result.Attempts++
	if fbErr != nil {
		log.Error().Err(fbErr).Str("venue", alternate).Msg("fallback execution failed")
		result.Venue = alternate
		result.FallbackUsed = true
		result.OriginalVenue = selected
		result.Error = fbErr.Error()
		return m.finish(ctx, req, result)
	}

	monitoring.RecordFallback(selected, alternate)
	result.Success = true
	result.Order = order
	result.Venue = alternate
	result.FallbackUsed = true
	result.OriginalVenue = selected
	result.Error = ""
	log.Info().Str("from", selected).Str("to", alternate).Msg("order executed via fallback venue")
	return m.finish(ctx, req, result)
}

// placeWithRetry attempts placement on one venue with exponential backoff.
// Only retryable (transient) venue errors are re-attempted; the same venue
// is reused across retries. Retries happen between completed attempts,
// never interrupting an in-flight venue call.
func (m *Manager) placeWithRetry(ctx context.Context, name string, req types.OrderRequest) (*types.OrderResult, int, error) {
	m.mu.RLock()
	client := m.clients[name]
	policy := m.retry
	m.mu.RUnlock()

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		order, err := client.PlaceOrder(ctx, req)
		if err == nil {
			return order, attempt, nil
		}
		lastErr = err
		if !venue.IsRetryable(err) {
			return nil, attempt, err
		}
		if attempt == policy.MaxAttempts {
			break
		}
		monitoring.RecordRetry(name)
		select {
		case <-ctx.Done():
			return nil, attempt, ctx.Err()
		case <-time.After(policy.Delay(attempt)):
		}
	}
	return nil, policy.MaxAttempts, lastErr
}

// finish records, publishes and counts the outcome. Persistence failures
// are logged, never surfaced to the caller.
func (m *Manager) finish(ctx context.Context, req types.OrderRequest, result *types.ExecutionResult) *types.ExecutionResult {
	status := "rejected"
	if result.Success {
		status = result.Order.Status
	}
	monitoring.RecordOrder(result.Venue, string(req.Side), status)

	if m.store != nil && result.Order != nil {
		if err := m.store.CreateOrder(ctx, req, *result.Order); err != nil {
			m.log.Error().Err(err).Str("request_id", req.ID).Msg("order persistence failed")
		}
	}
	if m.bus != nil {
		m.bus.PublishOrderExecuted(*result)
	}
	return result
}

// GetPortfolioSummary aggregates positions and accounts across connected
// venues. A venue that fails mid-fetch is skipped for the cycle and
// logged; it never aborts the aggregation.
func (m *Manager) GetPortfolioSummary(ctx context.Context) (*types.PortfolioSummary, error) {
	m.mu.RLock()
	connected := make([]string, 0, len(m.names))
	clients := make(map[string]venue.Client, len(m.names))
	for _, name := range m.names {
		if m.health[name].connected {
			connected = append(connected, name)
			clients[name] = m.clients[name]
		}
	}
	m.mu.RUnlock()

	summary := &types.PortfolioSummary{
		ExposureBySymbol: make(map[string]float64),
		ExposureByVenue:  make(map[string]float64),
		Accounts:         make(map[string]types.Account),
		Timestamp:        time.Now(),
	}

	for _, name := range connected {
		client := clients[name]
		account, err := client.GetAccount(ctx)
		if err != nil {
			m.log.Warn().Err(err).Str("venue", name).Msg("account fetch failed, venue skipped this cycle")
			summary.SkippedVenues = append(summary.SkippedVenues, name)
			continue
		}
		positions, err := client.GetPositions(ctx)
		if err != nil {
			m.log.Warn().Err(err).Str("venue", name).Msg("positions fetch failed, venue skipped this cycle")
			summary.SkippedVenues = append(summary.SkippedVenues, name)
			continue
		}

		summary.Accounts[name] = *account
		summary.TotalValue += account.PortfolioValue
		for _, pos := range positions {
			summary.TotalPnL += pos.UnrealizedPnL
			summary.ExposureBySymbol[pos.Symbol] += pos.MarketValue
			summary.ExposureByVenue[name] += pos.MarketValue
			summary.Positions = append(summary.Positions, pos)
		}

		if m.store != nil {
			if err := m.store.SaveAccountSnapshot(ctx, name, *account); err != nil {
				m.log.Error().Err(err).Str("venue", name).Msg("account snapshot persistence failed")
			}
			if err := m.store.SavePositions(ctx, name, positions); err != nil {
				m.log.Error().Err(err).Str("venue", name).Msg("position snapshot persistence failed")
			}
		}
	}

	if summary.TotalValue != 0 {
		summary.TotalPnLPercent = summary.TotalPnL / summary.TotalValue * 100
	}
	monitoring.SetPortfolioValue(summary.TotalValue)
	return summary, nil
}

// ClosePosition closes the symbol's position. With a venue name it
// delegates directly; with an empty name it tries every connected venue
// independently, collecting one result per venue that held the position.
func (m *Manager) ClosePosition(ctx context.Context, symbol, venueName string) ([]types.OrderResult, error) {
	if venueName != "" {
		m.mu.RLock()
		client, ok := m.clients[venueName]
		m.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("venue %q not registered", venueName)
		}
		res, err := client.ClosePosition(ctx, symbol)
		if err != nil {
			return nil, err
		}
		return []types.OrderResult{*res}, nil
	}

	m.mu.RLock()
	connected := make(map[string]venue.Client)
	for _, name := range m.names {
		if m.health[name].connected {
			connected[name] = m.clients[name]
		}
	}
	m.mu.RUnlock()

	var results []types.OrderResult
	var lastErr error
	for name, client := range connected {
		pos, err := client.GetPosition(ctx, symbol)
		if err != nil {
			m.log.Warn().Err(err).Str("venue", name).Str("symbol", symbol).Msg("position lookup failed")
			lastErr = err
			continue
		}
		if pos == nil {
			continue
		}
		res, err := client.ClosePosition(ctx, symbol)
		if err != nil {
			m.log.Error().Err(err).Str("venue", name).Str("symbol", symbol).Msg("close position failed")
			lastErr = err
			continue
		}
		results = append(results, *res)
	}
	return results, lastErr
}

// CloseAllPositions flattens every connected venue independently; one
// venue's failure never blocks the others.
func (m *Manager) CloseAllPositions(ctx context.Context) ([]types.OrderResult, error) {
	m.mu.RLock()
	connected := make(map[string]venue.Client)
	for _, name := range m.names {
		if m.health[name].connected {
			connected[name] = m.clients[name]
		}
	}
	m.mu.RUnlock()

	var results []types.OrderResult
	var lastErr error
	for name, client := range connected {
		closed, err := client.CloseAllPositions(ctx)
		if err != nil {
			m.log.Error().Err(err).Str("venue", name).Msg("close all positions failed")
			lastErr = err
		}
		results = append(results, closed...)
	}
	return results, lastErr
}

// VenueAccount fetches the account snapshot of one registered venue.
func (m *Manager) VenueAccount(ctx context.Context, venueName string) (*types.Account, error) {
	m.mu.RLock()
	client, ok := m.clients[venueName]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("venue %q not registered", venueName)
	}
	return client.GetAccount(ctx)
}

// LastPrice returns the venue's last traded price for the symbol. With
// an empty venue name the first enabled, connected venue answers.
func (m *Manager) LastPrice(ctx context.Context, venueName, symbol string) (float64, error) {
	if venueName == "" {
		selected, err := m.selectVenue("", "")
		if err != nil {
			return 0, err
		}
		venueName = selected
	}
	m.mu.RLock()
	client, ok := m.clients[venueName]
	m.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("venue %q not registered", venueName)
	}
	return client.GetLastPrice(ctx, symbol)
}
