package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	apperrors "robotrader/internal/errors"
	"robotrader/internal/models"
	"robotrader/internal/stoploss"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ DataStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates the database and applies the schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	store := NewFromDB(db)
	if err := store.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// NewFromDB wraps an open handle without touching the schema.
func NewFromDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	session_type TEXT NOT NULL,
	started_at DATETIME NOT NULL,
	total_trades INTEGER NOT NULL DEFAULT 0,
	money_spent TEXT NOT NULL DEFAULT '0',
	money_earned TEXT NOT NULL DEFAULT '0',
	net_profit TEXT NOT NULL DEFAULT '0',
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS trades (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	asset_class TEXT NOT NULL,
	action TEXT NOT NULL,
	quantity REAL NOT NULL,
	price TEXT NOT NULL,
	value TEXT NOT NULL,
	stop_loss INTEGER NOT NULL DEFAULT 0,
	order_id TEXT,
	created_at DATETIME NOT NULL,
	FOREIGN KEY (session_id) REFERENCES sessions(id)
);

CREATE TABLE IF NOT EXISTS position_trackers (
	symbol TEXT PRIMARY KEY,
	asset_class TEXT NOT NULL,
	entry_price REAL NOT NULL,
	entry_time DATETIME NOT NULL,
	high_price REAL NOT NULL,
	quantity REAL NOT NULL,
	atr_value REAL NOT NULL,
	atr_updated_at DATETIME NOT NULL,
	current_price REAL NOT NULL,
	last_check DATETIME NOT NULL,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at);
CREATE INDEX IF NOT EXISTS idx_trades_session ON trades(session_id);
CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
`

// Migrate creates missing tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrDatabaseError, err)
	}
	return nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveSession writes the session row and its trades in one transaction.
func (s *SQLiteStore) SaveSession(ctx context.Context, session models.SessionRecord, trades []models.TradeRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, session_type, started_at, total_trades, money_spent, money_earned, net_profit)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			total_trades = excluded.total_trades,
			money_spent = excluded.money_spent,
			money_earned = excluded.money_earned,
			net_profit = excluded.net_profit`,
		session.ID, string(session.SessionType), session.StartedAt.UTC(), session.TotalTrades,
		session.MoneySpent.String(), session.MoneyEarned.String(), session.NetProfit.String())
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	for _, t := range trades {
		sessionID := t.SessionID
		if sessionID == "" {
			sessionID = session.ID
		}
		_, err = tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO trades (id, session_id, symbol, asset_class, action, quantity, price, value, stop_loss, order_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, sessionID, t.Symbol, string(t.AssetClass), string(t.Action), t.Quantity,
			t.Price.String(), t.Value.String(), boolToInt(t.StopLoss), t.OrderID, t.CreatedAt.UTC())
		if err != nil {
			return fmt.Errorf("insert trade %s: %w", t.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session: %w", err)
	}
	return nil
}

// ListSessions returns sessions newest first.
func (s *SQLiteStore) ListSessions(ctx context.Context, filter SessionFilter) ([]models.SessionRecord, error) {
	query := `SELECT id, session_type, started_at, total_trades, money_spent, money_earned, net_profit FROM sessions`
	var conds []string
	var args []interface{}
	if filter.SessionType != "" {
		conds = append(conds, "session_type = ?")
		args = append(args, string(filter.SessionType))
	}
	if !filter.Since.IsZero() {
		conds = append(conds, "started_at >= ?")
		args = append(args, filter.Since.UTC())
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY started_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []models.SessionRecord
	for rows.Next() {
		var rec models.SessionRecord
		var sessionType, spent, earned, net string
		if err := rows.Scan(&rec.ID, &sessionType, &rec.StartedAt, &rec.TotalTrades, &spent, &earned, &net); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		rec.SessionType = models.SessionType(sessionType)
		if rec.MoneySpent, err = decimal.NewFromString(spent); err != nil {
			return nil, fmt.Errorf("session %s money_spent: %w", rec.ID, err)
		}
		if rec.MoneyEarned, err = decimal.NewFromString(earned); err != nil {
			return nil, fmt.Errorf("session %s money_earned: %w", rec.ID, err)
		}
		if rec.NetProfit, err = decimal.NewFromString(net); err != nil {
			return nil, fmt.Errorf("session %s net_profit: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetTrades returns trades in execution order.
func (s *SQLiteStore) GetTrades(ctx context.Context, filter TradeFilter) ([]models.TradeRecord, error) {
	query := `SELECT id, session_id, symbol, asset_class, action, quantity, price, value, stop_loss, order_id, created_at FROM trades`
	var conds []string
	var args []interface{}
	if filter.SessionID != "" {
		conds = append(conds, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.Symbol != "" {
		conds = append(conds, "symbol = ?")
		args = append(args, filter.Symbol)
	}
	if filter.StopLoss != nil {
		conds = append(conds, "stop_loss = ?")
		args = append(args, boolToInt(*filter.StopLoss))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var out []models.TradeRecord
	for rows.Next() {
		var t models.TradeRecord
		var class, action, price, value string
		var stopLoss int
		var orderID sql.NullString
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Symbol, &class, &action, &t.Quantity, &price, &value, &stopLoss, &orderID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.AssetClass = models.AssetClass(class)
		t.Action = models.OrderSide(action)
		t.StopLoss = stopLoss == 1
		t.OrderID = orderID.String
		if t.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("trade %s price: %w", t.ID, err)
		}
		if t.Value, err = decimal.NewFromString(value); err != nil {
			return nil, fmt.Errorf("trade %s value: %w", t.ID, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SaveTrackers upserts every tracker.
func (s *SQLiteStore) SaveTrackers(ctx context.Context, trackers []stoploss.Tracker) error {
	if len(trackers) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO position_trackers (symbol, asset_class, entry_price, entry_time, high_price, quantity, atr_value, atr_updated_at, current_price, last_check, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(symbol) DO UPDATE SET
			asset_class = excluded.asset_class,
			entry_price = excluded.entry_price,
			entry_time = excluded.entry_time,
			high_price = excluded.high_price,
			quantity = excluded.quantity,
			atr_value = excluded.atr_value,
			atr_updated_at = excluded.atr_updated_at,
			current_price = excluded.current_price,
			last_check = excluded.last_check,
			updated_at = CURRENT_TIMESTAMP`)
	if err != nil {
		return fmt.Errorf("prepare tracker upsert: %w", err)
	}
	defer stmt.Close()

	for _, t := range trackers {
		_, err := stmt.ExecContext(ctx, t.Symbol, string(t.AssetClass), t.EntryPrice, t.EntryTime.UTC(),
			t.HighPrice, t.Quantity, t.ATR, t.ATRUpdatedAt.UTC(), t.CurrentPrice, t.LastCheck.UTC())
		if err != nil {
			return fmt.Errorf("upsert tracker %s: %w", t.Symbol, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit trackers: %w", err)
	}
	return nil
}

// DeleteTracker removes a tracker. Deleting a missing symbol is not an error.
func (s *SQLiteStore) DeleteTracker(ctx context.Context, symbol string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM position_trackers WHERE symbol = ?`, symbol); err != nil {
		return fmt.Errorf("delete tracker %s: %w", symbol, err)
	}
	return nil
}

// LoadTrackers returns all persisted trackers ordered by symbol.
func (s *SQLiteStore) LoadTrackers(ctx context.Context) ([]stoploss.Tracker, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, asset_class, entry_price, entry_time, high_price, quantity, atr_value, atr_updated_at, current_price, last_check
		FROM position_trackers ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("query trackers: %w", err)
	}
	defer rows.Close()

	var out []stoploss.Tracker
	for rows.Next() {
		var t stoploss.Tracker
		var class string
		if err := rows.Scan(&t.Symbol, &class, &t.EntryPrice, &t.EntryTime, &t.HighPrice, &t.Quantity,
			&t.ATR, &t.ATRUpdatedAt, &t.CurrentPrice, &t.LastCheck); err != nil {
			return nil, fmt.Errorf("scan tracker: %w", err)
		}
		t.AssetClass = models.AssetClass(class)
		out = append(out, t)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
