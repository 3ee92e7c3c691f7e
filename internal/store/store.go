// Package store persists executed orders, risk alerts and per-venue
// account and position snapshots in SQLite so execution history survives
// restarts. Persistence is best-effort from the caller's point of view:
// the router and the event subscriber log store failures but never fail
// the trade on them.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/minhtran42/trade-executor/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
	request_id       TEXT NOT NULL,
	venue_order_id   TEXT NOT NULL,
	venue            TEXT NOT NULL,
	symbol           TEXT NOT NULL,
	side             TEXT NOT NULL,
	order_type       TEXT NOT NULL,
	quantity         REAL NOT NULL,
	price            REAL NOT NULL,
	filled_quantity  REAL NOT NULL,
	avg_fill_price   REAL NOT NULL,
	status           TEXT NOT NULL,
	executed_at      TIMESTAMP NOT NULL,
	PRIMARY KEY (request_id, venue_order_id)
);
CREATE INDEX IF NOT EXISTS idx_orders_symbol ON orders(symbol);
CREATE INDEX IF NOT EXISTS idx_orders_executed_at ON orders(executed_at);

CREATE TABLE IF NOT EXISTS risk_alerts (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	alert_type         TEXT NOT NULL,
	severity           INTEGER NOT NULL,
	metric             TEXT NOT NULL,
	message            TEXT NOT NULL,
	current_value      REAL NOT NULL,
	threshold          REAL NOT NULL,
	recommended_action TEXT NOT NULL,
	raised_at          TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alerts_raised_at ON risk_alerts(raised_at);

CREATE TABLE IF NOT EXISTS accounts (
	venue             TEXT PRIMARY KEY,
	total_balance     REAL NOT NULL,
	available_balance REAL NOT NULL,
	equity            REAL NOT NULL,
	margin            REAL NOT NULL,
	portfolio_value   REAL NOT NULL,
	updated_at        TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
	venue          TEXT NOT NULL,
	symbol         TEXT NOT NULL,
	side           TEXT NOT NULL,
	quantity       REAL NOT NULL,
	entry_price    REAL NOT NULL,
	current_price  REAL NOT NULL,
	market_value   REAL NOT NULL,
	unrealized_pnl REAL NOT NULL,
	updated_at     TIMESTAMP NOT NULL,
	PRIMARY KEY (venue, symbol)
);
`

// Store wraps the SQLite connection.
type Store struct {
	conn *sql.DB
	log  zerolog.Logger
}

// Open creates the database file if needed, applies the schema and
// returns a ready store. WAL mode keeps the background writer from
// blocking reads from the report commands.
func Open(dbPath string, log zerolog.Logger) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{
		conn: conn,
		log:  log.With().Str("component", "store").Logger(),
	}, nil
}

// OpenInMemory returns a store backed by an in-memory database, used in
// tests.
func OpenInMemory(log zerolog.Logger) (*Store, error) {
	conn, err := sql.Open("sqlite", "file::memory:?cache=shared")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{conn: conn, log: log}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// CreateOrder records one executed order result.
func (s *Store) CreateOrder(ctx context.Context, req types.OrderRequest, res types.OrderResult) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT OR REPLACE INTO orders
			(request_id, venue_order_id, venue, symbol, side, order_type,
			 quantity, price, filled_quantity, avg_fill_price, status, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.RequestID, res.VenueOrderID, res.Venue, res.Symbol, string(res.Side),
		string(req.Type), req.Quantity, req.Price,
		res.FilledQuantity, res.AverageFillPrice, res.Status, res.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

// OrderRecord is one persisted execution row.
type OrderRecord struct {
	RequestID        string
	VenueOrderID     string
	Venue            string
	Symbol           string
	Side             string
	Type             string
	Quantity         float64
	Price            float64
	FilledQuantity   float64
	AverageFillPrice float64
	Status           string
	ExecutedAt       time.Time
}

// ListOrders returns the most recent orders, newest first.
func (s *Store) ListOrders(ctx context.Context, limit int) ([]OrderRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.conn.QueryContext(ctx, `
		SELECT request_id, venue_order_id, venue, symbol, side, order_type,
		       quantity, price, filled_quantity, avg_fill_price, status, executed_at
		FROM orders ORDER BY executed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []OrderRecord
	for rows.Next() {
		var o OrderRecord
		if err := rows.Scan(&o.RequestID, &o.VenueOrderID, &o.Venue, &o.Symbol,
			&o.Side, &o.Type, &o.Quantity, &o.Price,
			&o.FilledQuantity, &o.AverageFillPrice, &o.Status, &o.ExecutedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order row: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// SaveAccountSnapshot upserts the latest account state for a venue.
func (s *Store) SaveAccountSnapshot(ctx context.Context, venueName string, account types.Account) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO accounts (venue, total_balance, available_balance, equity, margin, portfolio_value, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(venue) DO UPDATE SET
			total_balance     = excluded.total_balance,
			available_balance = excluded.available_balance,
			equity            = excluded.equity,
			margin            = excluded.margin,
			portfolio_value   = excluded.portfolio_value,
			updated_at        = excluded.updated_at`,
		venueName, account.TotalBalance, account.AvailableBalance,
		account.Equity, account.Margin, account.PortfolioValue, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert account snapshot: %w", err)
	}
	return nil
}

// GetAccount returns the last persisted account snapshot for a venue.
func (s *Store) GetAccount(ctx context.Context, venueName string) (*types.Account, error) {
	var a types.Account
	err := s.conn.QueryRowContext(ctx, `
		SELECT total_balance, available_balance, equity, margin, portfolio_value
		FROM accounts WHERE venue = ?`, venueName).
		Scan(&a.TotalBalance, &a.AvailableBalance, &a.Equity, &a.Margin, &a.PortfolioValue)
	if err != nil {
		return nil, fmt.Errorf("failed to load account snapshot for %s: %w", venueName, err)
	}
	return &a, nil
}

// SavePositions replaces a venue's persisted positions with the given
// set. A flat position (symbol no longer held) disappears from the
// table, so the snapshot always mirrors the venue.
func (s *Store) SavePositions(ctx context.Context, venueName string, positions []types.Position) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin positions transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM positions WHERE venue = ?`, venueName); err != nil {
		return fmt.Errorf("failed to clear positions: %w", err)
	}
	now := time.Now().UTC()
	for _, pos := range positions {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO positions
				(venue, symbol, side, quantity, entry_price, current_price, market_value, unrealized_pnl, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			venueName, pos.Symbol, string(pos.Side), pos.Quantity,
			pos.EntryPrice, pos.CurrentPrice, pos.MarketValue, pos.UnrealizedPnL, now); err != nil {
			return fmt.Errorf("failed to insert position: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit positions: %w", err)
	}
	return nil
}

// PositionRecord is one persisted position row.
type PositionRecord struct {
	Venue    string
	Position types.Position
}

// ListPositions returns every persisted position, grouped by venue.
func (s *Store) ListPositions(ctx context.Context) ([]PositionRecord, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT venue, symbol, side, quantity, entry_price, current_price, market_value, unrealized_pnl
		FROM positions ORDER BY venue, symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var records []PositionRecord
	for rows.Next() {
		var r PositionRecord
		var side string
		if err := rows.Scan(&r.Venue, &r.Position.Symbol, &side, &r.Position.Quantity,
			&r.Position.EntryPrice, &r.Position.CurrentPrice,
			&r.Position.MarketValue, &r.Position.UnrealizedPnL); err != nil {
			return nil, fmt.Errorf("failed to scan position row: %w", err)
		}
		r.Position.Side = types.PositionSide(side)
		records = append(records, r)
	}
	return records, rows.Err()
}

// CreateAlert records one risk alert.
func (s *Store) CreateAlert(ctx context.Context, alert types.RiskAlert) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO risk_alerts
			(alert_type, severity, metric, message, current_value, threshold, recommended_action, raised_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(alert.Type), alert.Severity, alert.Metric, alert.Message,
		alert.CurrentValue, alert.Threshold, alert.RecommendedAction, alert.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// ListAlerts returns alerts raised after the cutoff, newest first.
func (s *Store) ListAlerts(ctx context.Context, since time.Time) ([]types.RiskAlert, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT alert_type, severity, metric, message, current_value, threshold, recommended_action, raised_at
		FROM risk_alerts WHERE raised_at >= ? ORDER BY raised_at DESC`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []types.RiskAlert
	for rows.Next() {
		var a types.RiskAlert
		var alertType string
		if err := rows.Scan(&alertType, &a.Severity, &a.Metric, &a.Message,
			&a.CurrentValue, &a.Threshold, &a.RecommendedAction, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan alert row: %w", err)
		}
		a.Type = types.AlertType(alertType)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}
