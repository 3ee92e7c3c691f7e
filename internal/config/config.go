// Package config loads the executor configuration from the environment,
// optionally seeded from a .env file.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/minhtran42/trade-executor/pkg/types"
)

type Config struct {
	Environment string
	LogLevel    string

	Bybit struct {
		Enabled            bool
		APIKey             string
		APISecret          string
		Testnet            bool
		Demo               bool
		Category           string
		SettleCoin         string
		Priority           int
		MaxPositions       int
		MaxCapitalPerTrade float64
	}

	Paper struct {
		Enabled            bool
		InitialBalance     float64
		Priority           int
		MaxPositions       int
		MaxCapitalPerTrade float64
	}

	Risk         types.RiskConfig
	RiskInterval time.Duration

	Store struct {
		Path string
	}

	Report struct {
		ExcelPath string
	}

	Monitoring struct {
		PrometheusPort int
		HealthPort     int
	}

	Notifications struct {
		TelegramToken  string
		TelegramChatID string
	}
}

// Load reads .env if present, then the process environment.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "debug"),
	}

	cfg.Bybit.Enabled = getEnvBool("BYBIT_ENABLED", false)
	cfg.Bybit.APIKey = getEnv("BYBIT_API_KEY", "")
	cfg.Bybit.APISecret = getEnv("BYBIT_API_SECRET", "")
	cfg.Bybit.Testnet = getEnvBool("BYBIT_TESTNET", true)
	cfg.Bybit.Demo = getEnvBool("BYBIT_DEMO", false)
	cfg.Bybit.Category = getEnv("BYBIT_CATEGORY", "linear")
	cfg.Bybit.SettleCoin = getEnv("BYBIT_SETTLE_COIN", "USDT")
	cfg.Bybit.Priority = getEnvInt("BYBIT_PRIORITY", 10)
	cfg.Bybit.MaxPositions = getEnvInt("BYBIT_MAX_POSITIONS", 10)
	cfg.Bybit.MaxCapitalPerTrade = getEnvFloat("BYBIT_MAX_CAPITAL_PER_TRADE", 0)

	cfg.Paper.Enabled = getEnvBool("PAPER_ENABLED", true)
	cfg.Paper.InitialBalance = getEnvFloat("PAPER_INITIAL_BALANCE", 10000)
	cfg.Paper.Priority = getEnvInt("PAPER_PRIORITY", 1)
	cfg.Paper.MaxPositions = getEnvInt("PAPER_MAX_POSITIONS", 20)
	cfg.Paper.MaxCapitalPerTrade = getEnvFloat("PAPER_MAX_CAPITAL_PER_TRADE", 0)

	cfg.Risk = types.RiskConfig{
		MaxDailyLoss:        getEnvFloat("RISK_MAX_DAILY_LOSS", 1000),
		MaxPositionSize:     getEnvFloat("RISK_MAX_POSITION_SIZE", 100),
		MaxLeverage:         getEnvFloat("RISK_MAX_LEVERAGE", 5),
		MaxOrderSize:        getEnvFloat("RISK_MAX_ORDER_SIZE", 10000),
		MinAccountBalance:   getEnvFloat("RISK_MIN_ACCOUNT_BALANCE", 100),
		StopLossPercent:     getEnvFloat("RISK_STOP_LOSS_PERCENT", 2),
		TakeProfitPercent:   getEnvFloat("RISK_TAKE_PROFIT_PERCENT", 4),
		RiskPerTradePercent: getEnvFloat("RISK_PER_TRADE_PERCENT", 1),
		AllowedSymbols:      getEnvList("RISK_ALLOWED_SYMBOLS"),
		BlockedSymbols:      getEnvList("RISK_BLOCKED_SYMBOLS"),
		TradingHours: types.TradingHours{
			Start:    getEnv("RISK_TRADING_HOURS_START", "00:00"),
			End:      getEnv("RISK_TRADING_HOURS_END", "23:59"),
			Timezone: getEnv("RISK_TRADING_HOURS_TZ", "UTC"),
		},
	}
	cfg.RiskInterval = getEnvDuration("RISK_CHECK_INTERVAL", 30*time.Second)

	cfg.Store.Path = getEnv("STORE_PATH", "data/executor.db")
	cfg.Report.ExcelPath = getEnv("REPORT_XLSX_PATH", "")

	cfg.Monitoring.PrometheusPort = getEnvInt("PROMETHEUS_PORT", 8080)
	cfg.Monitoring.HealthPort = getEnvInt("HEALTH_PORT", 8081)

	cfg.Notifications.TelegramToken = getEnv("TELEGRAM_TOKEN", "")
	cfg.Notifications.TelegramChatID = getEnv("TELEGRAM_CHAT_ID", "")

	return cfg
}

// BybitVenueConfig returns the router-level config for the Bybit venue.
func (c *Config) BybitVenueConfig() types.VenueConfig {
	return types.VenueConfig{
		Name:               "bybit",
		Enabled:            c.Bybit.Enabled,
		PaperTrading:       c.Bybit.Testnet || c.Bybit.Demo,
		MaxPositions:       c.Bybit.MaxPositions,
		MaxCapitalPerTrade: c.Bybit.MaxCapitalPerTrade,
		Priority:           c.Bybit.Priority,
	}
}

// PaperVenueConfig returns the router-level config for the paper venue.
func (c *Config) PaperVenueConfig() types.VenueConfig {
	return types.VenueConfig{
		Name:               "paper",
		Enabled:            c.Paper.Enabled,
		PaperTrading:       true,
		MaxPositions:       c.Paper.MaxPositions,
		MaxCapitalPerTrade: c.Paper.MaxCapitalPerTrade,
		Priority:           c.Paper.Priority,
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvList(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
