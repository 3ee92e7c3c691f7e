// Package bybit adapts Bybit's v5 unified trading API to the venue client
// contract. All field mapping between Bybit payloads and the core types
// happens here, at the boundary.
package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/minhtran42/trade-executor/internal/venue"
)

// Config holds the Bybit connection settings.
type Config struct {
	Name       string // registered venue name
	APIKey     string
	APISecret  string
	Testnet    bool
	Demo       bool   // demo trading environment (paper fills on mainnet data)
	Category   string // "linear", "spot", "inverse"
	SettleCoin string // settlement coin for position queries, e.g. "USDT"
}

// Venue implements the venue client contract against Bybit.
type Venue struct {
	name       string
	category   string
	settleCoin string
	http       *bybit_api.Client
	log        zerolog.Logger

	mu       sync.RWMutex
	qtySteps map[string]decimal.Decimal
	stepsAt  time.Time
}

var _ venue.Client = (*Venue)(nil)

const qtyStepTTL = time.Hour

// New creates a Bybit venue adapter.
func New(cfg Config, log zerolog.Logger) *Venue {
	var baseURL string
	switch {
	case cfg.Demo:
		baseURL = "https://api-demo.bybit.com"
	case cfg.Testnet:
		baseURL = bybit_api.TESTNET
	default:
		baseURL = bybit_api.MAINNET
	}

	if cfg.Category == "" {
		cfg.Category = "linear"
	}
	if cfg.SettleCoin == "" {
		cfg.SettleCoin = "USDT"
	}
	if cfg.Name == "" {
		cfg.Name = "bybit"
	}

	return &Venue{
		name:       cfg.Name,
		category:   cfg.Category,
		settleCoin: cfg.SettleCoin,
		http:       bybit_api.NewBybitHttpClient(cfg.APIKey, cfg.APISecret, bybit_api.WithBaseURL(baseURL)),
		log:        log.With().Str("component", "venue").Str("venue", cfg.Name).Logger(),
		qtySteps:   make(map[string]decimal.Decimal),
	}
}

func (v *Venue) Name() string { return v.name }

// decode unwraps a Bybit ServerResponse and unmarshals its Result into out.
func (v *Venue) decode(resp interface{}, out interface{}) error {
	serverResp, ok := resp.(*bybit_api.ServerResponse)
	if !ok {
		return venue.NewTransient(v.name, venue.CodeUnknown, "unexpected response type",
			fmt.Sprintf("%T", resp))
	}
	if serverResp.RetCode != 0 {
		return v.apiError(serverResp.RetCode, serverResp.RetMsg)
	}
	raw, err := json.Marshal(serverResp.Result)
	if err != nil {
		return fmt.Errorf("re-encode result: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

// Bybit v5 return codes the adapter classifies explicitly.
const (
	retCodeInvalidAPIKey       = 10003
	retCodeInvalidSignature    = 10004
	retCodeInvalidTimestamp    = 10005
	retCodeRateLimitExceeded   = 10006
	retCodeInsufficientBalance = 110007
)

// apiError converts a Bybit return code into the standardized venue error.
// Rate limiting and 5xx-style codes are retryable; rejections are not.
func (v *Venue) apiError(code int, msg string) *venue.Error {
	details := fmt.Sprintf("retCode=%d", code)
	switch code {
	case retCodeRateLimitExceeded,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return venue.NewTransient(v.name, venue.CodeRateLimitExceeded, msg, details)
	case retCodeInvalidAPIKey, retCodeInvalidSignature, retCodeInvalidTimestamp:
		return venue.NewRejection(v.name, venue.CodeConnectionFailed, "authentication failed: "+msg, details)
	case retCodeInsufficientBalance:
		return venue.NewRejection(v.name, venue.CodeInsufficientBalance, msg, details)
	default:
		return venue.NewRejection(v.name, venue.CodeOrderRejected, msg, details)
	}
}

// transportError wraps an SDK/network failure as a retryable venue error.
func (v *Venue) transportError(op string, err error) *venue.Error {
	return venue.NewTransient(v.name, venue.CodeConnectionFailed, op+" failed", err.Error())
}

// qtyStep returns the cached lot-size step for symbol, refreshing the
// cache from the instruments-info endpoint when stale.
func (v *Venue) qtyStep(ctx context.Context, symbol string) (decimal.Decimal, error) {
	v.mu.RLock()
	step, ok := v.qtySteps[symbol]
	fresh := time.Since(v.stepsAt) < qtyStepTTL
	v.mu.RUnlock()
	if ok && fresh {
		return step, nil
	}

	resp, err := v.http.NewUtaBybitServiceWithParams(map[string]interface{}{
		"category": v.category,
		"symbol":   symbol,
	}).GetInstrumentInfo(ctx)
	if err != nil {
		return decimal.Zero, v.transportError("get instrument info", err)
	}

	var result struct {
		List []struct {
			Symbol        string `json:"symbol"`
			LotSizeFilter struct {
				QtyStep     string `json:"qtyStep"`
				MinOrderQty string `json:"minOrderQty"`
			} `json:"lotSizeFilter"`
		} `json:"list"`
	}
	if err := v.decode(resp, &result); err != nil {
		return decimal.Zero, err
	}
	if len(result.List) == 0 {
		return decimal.Zero, venue.NewRejection(v.name, venue.CodeInvalidSymbol, "unknown instrument", symbol)
	}

	raw := result.List[0].LotSizeFilter.QtyStep
	if raw == "" {
		raw = result.List[0].LotSizeFilter.MinOrderQty
	}
	step, err = decimal.NewFromString(raw)
	if err != nil || step.IsZero() {
		return decimal.Zero, fmt.Errorf("bad qty step %q for %s", raw, symbol)
	}

	v.mu.Lock()
	v.qtySteps[symbol] = step
	v.stepsAt = time.Now()
	v.mu.Unlock()
	return step, nil
}

// formatQty quantizes a float quantity down to the instrument's lot step.
// Falls back to a plain decimal string when the step lookup fails.
func (v *Venue) formatQty(ctx context.Context, symbol string, qty float64) string {
	d := decimal.NewFromFloat(qty)
	step, err := v.qtyStep(ctx, symbol)
	if err != nil {
		v.log.Warn().Err(err).Str("symbol", symbol).Msg("qty step lookup failed, sending raw quantity")
		return d.String()
	}
	return d.Div(step).Floor().Mul(step).String()
}

func decimalString(f float64) string {
	return decimal.NewFromFloat(f).String()
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
