package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/minhtran42/trade-executor/internal/config"
	"github.com/minhtran42/trade-executor/internal/events"
	"github.com/minhtran42/trade-executor/internal/monitoring"
	"github.com/minhtran42/trade-executor/internal/notifications"
	"github.com/minhtran42/trade-executor/internal/report"
	"github.com/minhtran42/trade-executor/internal/risk"
	"github.com/minhtran42/trade-executor/internal/router"
	"github.com/minhtran42/trade-executor/internal/scheduler"
	"github.com/minhtran42/trade-executor/internal/store"
	"github.com/minhtran42/trade-executor/internal/venue/bybit"
	"github.com/minhtran42/trade-executor/internal/venue/paper"
	"github.com/minhtran42/trade-executor/pkg/types"
)

func main() {
	cfg := config.Load()
	log := newLogger(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.Open(cfg.Store.Path, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer db.Close()

	bus := events.NewBus(log)
	defer bus.Close()

	health := monitoring.NewHealthChecker()

	// The router and the risk engine reference each other through narrow
	// interfaces; the gate is attached after both exist.
	manager := router.NewManager(nil, bus, db, log)
	engine := risk.NewEngine(cfg.Risk, manager, bus, log)
	engine.SetHealthChecker(health)
	engine.SetInterval(cfg.RiskInterval)
	manager.SetGate(engine)

	venueConfigs := registerVenues(cfg, manager, log)

	report.PrintStartup(venueConfigs, cfg.Risk)

	connected := manager.TestAllConnections(ctx)
	up := 0
	for _, ok := range connected {
		if ok {
			up++
		}
	}
	health.SetVenueCounts(up, len(connected))
	if up == 0 {
		log.Warn().Msg("no venue connected at startup")
	}
	report.PrintVenueStatus(manager.GetStatus())

	// Persist alerts off the bus; the store never sits on the hot path.
	go persistAlerts(ctx, bus, db, health, log)

	if cfg.Notifications.TelegramToken != "" && cfg.Notifications.TelegramChatID != "" {
		dispatcher := notifications.NewDispatcher(bus, log,
			notifications.NewTelegramNotifier(cfg.Notifications.TelegramToken, cfg.Notifications.TelegramChatID))
		go dispatcher.Run(ctx)
	}

	engine.Start(ctx)

	sched := scheduler.New(log)
	if err := sched.AddJob("0 0 0 * * *", scheduler.FuncJob{
		JobName: "daily-pnl-reset",
		Fn: func() error {
			engine.ResetStaleDailyPnL()
			return nil
		},
	}); err != nil {
		log.Fatal().Err(err).Msg("failed to register daily reset job")
	}
	if err := sched.AddJob("@every 1h", scheduler.FuncJob{
		JobName: "venue-connectivity-sweep",
		Fn: func() error {
			results := manager.TestAllConnections(ctx)
			up := 0
			for _, ok := range results {
				if ok {
					up++
				}
			}
			health.SetVenueCounts(up, len(results))
			return nil
		},
	}); err != nil {
		log.Fatal().Err(err).Msg("failed to register connectivity job")
	}
	sched.Start()
	defer sched.Stop()

	startHTTP(cfg, health, log)

	log.Info().Str("env", cfg.Environment).Msg("trade executor running")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("shutdown signal received")
	cancel()

	if summary, err := manager.GetPortfolioSummary(context.Background()); err == nil {
		report.PrintPortfolio(summary)
	}

	if cfg.Report.ExcelPath != "" {
		reporter := report.NewExcelReporter(db)
		if err := reporter.WriteHistoryXLSX(context.Background(), cfg.Report.ExcelPath, 1000); err != nil {
			log.Error().Err(err).Msg("failed to write execution report")
		} else {
			log.Info().Str("path", cfg.Report.ExcelPath).Msg("execution report written")
		}
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().Timestamp().Logger()
}

func registerVenues(cfg *config.Config, manager *router.Manager, log zerolog.Logger) []types.VenueConfig {
	var configs []types.VenueConfig

	paperCfg := cfg.PaperVenueConfig()
	paperVenue := paper.New(paper.Config{
		Name:           paperCfg.Name,
		InitialBalance: cfg.Paper.InitialBalance,
	}, log)
	if err := manager.RegisterVenue(paperVenue, paperCfg); err != nil {
		log.Fatal().Err(err).Msg("failed to register paper venue")
	}
	configs = append(configs, paperCfg)

	if cfg.Bybit.APIKey != "" && cfg.Bybit.APISecret != "" {
		bybitCfg := cfg.BybitVenueConfig()
		bybitVenue := bybit.New(bybit.Config{
			Name:       bybitCfg.Name,
			APIKey:     cfg.Bybit.APIKey,
			APISecret:  cfg.Bybit.APISecret,
			Testnet:    cfg.Bybit.Testnet,
			Demo:       cfg.Bybit.Demo,
			Category:   cfg.Bybit.Category,
			SettleCoin: cfg.Bybit.SettleCoin,
		}, log)
		if err := manager.RegisterVenue(bybitVenue, bybitCfg); err != nil {
			log.Fatal().Err(err).Msg("failed to register bybit venue")
		}
		configs = append(configs, bybitCfg)
	}

	return configs
}

func persistAlerts(ctx context.Context, bus *events.Bus, db *store.Store, health *monitoring.HealthChecker, log zerolog.Logger) {
	sub := bus.Subscribe(64)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			switch {
			case ev.Type == events.TypeRiskAlert && ev.Alert != nil:
				if err := db.CreateAlert(ctx, *ev.Alert); err != nil {
					log.Warn().Err(err).Msg("failed to persist alert")
				}
			case ev.Type == events.TypeOrderExecuted:
				health.MarkExecution()
			}
		}
	}
}

func startHTTP(cfg *config.Config, health *monitoring.HealthChecker, log zerolog.Logger) {
	metricsAddr := fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort)
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", monitoring.Handler())
		log.Info().Str("addr", metricsAddr).Msg("metrics server listening")
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			log.Error().Err(err).Msg("metrics server stopped")
		}
	}()

	healthAddr := fmt.Sprintf(":%d", cfg.Monitoring.HealthPort)
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/health", health)
		log.Info().Str("addr", healthAddr).Msg("health server listening")
		if err := http.ListenAndServe(healthAddr, mux); err != nil {
			log.Error().Err(err).Msg("health server stopped")
		}
	}()
}
