package monitoring

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/minhtran42/trade-executor/pkg/types"
)

var startTime = time.Now()

// HealthChecker serves a JSON health snapshot of the execution core.
type HealthChecker struct {
	mu             sync.RWMutex
	riskState      types.RiskState
	venuesUp       int
	venuesTotal    int
	lastRiskCycle  time.Time
	lastExecution  time.Time
}

// HealthStatus is the health endpoint payload.
type HealthStatus struct {
	Status        string          `json:"status"`
	Timestamp     time.Time       `json:"timestamp"`
	RiskState     types.RiskState `json:"risk_state"`
	VenuesUp      int             `json:"venues_up"`
	VenuesTotal   int             `json:"venues_total"`
	LastRiskCycle time.Time       `json:"last_risk_cycle"`
	LastExecution time.Time       `json:"last_execution,omitempty"`
	Uptime        string          `json:"uptime"`
}

// NewHealthChecker creates a health checker in the active state.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{riskState: types.RiskStateActive}
}

// SetRiskState records the risk engine's current state.
func (h *HealthChecker) SetRiskState(state types.RiskState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.riskState = state
}

// SetVenueCounts records connected vs registered venue counts.
func (h *HealthChecker) SetVenueCounts(up, total int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.venuesUp = up
	h.venuesTotal = total
}

// MarkRiskCycle records a completed background risk cycle.
func (h *HealthChecker) MarkRiskCycle() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastRiskCycle = time.Now()
}

// MarkExecution records a completed order execution.
func (h *HealthChecker) MarkExecution() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastExecution = time.Now()
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")

	status := "healthy"
	switch {
	case h.riskState == types.RiskStateEmergencyStopped:
		status = "emergency_stopped"
		w.WriteHeader(http.StatusServiceUnavailable)
	case h.venuesTotal > 0 && h.venuesUp == 0:
		status = "degraded"
		w.WriteHeader(http.StatusServiceUnavailable)
	case h.riskState == types.RiskStateTradingHalted:
		status = "trading_halted"
	}

	json.NewEncoder(w).Encode(HealthStatus{
		Status:        status,
		Timestamp:     time.Now(),
		RiskState:     h.riskState,
		VenuesUp:      h.venuesUp,
		VenuesTotal:   h.venuesTotal,
		LastRiskCycle: h.lastRiskCycle,
		LastExecution: h.lastExecution,
		Uptime:        time.Since(startTime).String(),
	})
}
