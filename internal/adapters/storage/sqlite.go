// Package storage implementa ports.Storage usando SQLite puro Go (sin CGo),
// siguiendo el patrón de
// internal/adapters/storage/sqlite.go del repositorio original: conexión
// single-writer (SetMaxOpenConns(1)), schema idempotente vía
// CREATE TABLE IF NOT EXISTS, y transacciones explícitas para las
// escrituras multi-fila. El esquema se rediseña por completo para §6.4:
// trades completados paginados, posiciones abiertas, snapshot de riesgo,
// y un almacén clave/valor de configuración — suficiente para reconstruir
// el tracking de posiciones y el estado de riesgo tras un reinicio.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazza-sg/weather-trader/internal/domain"
	"github.com/hazza-sg/weather-trader/internal/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
    trade_id     TEXT PRIMARY KEY,
    market_id    TEXT    NOT NULL,
    side         TEXT    NOT NULL,
    size         REAL    NOT NULL,
    entry_price  REAL    NOT NULL,
    exit_price   REAL    NOT NULL,
    realized_pnl REAL    NOT NULL,
    result       TEXT    NOT NULL,
    opened_at    DATETIME NOT NULL,
    closed_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
    position_id     TEXT PRIMARY KEY,
    market_id       TEXT    NOT NULL,
    token_id        TEXT    NOT NULL,
    side            TEXT    NOT NULL,
    entry_price     REAL    NOT NULL,
    quantity        REAL    NOT NULL,
    size_usd        REAL    NOT NULL,
    current_price   REAL    NOT NULL,
    unrealized_pnl  REAL    NOT NULL,
    realized_pnl    REAL    NOT NULL,
    status          TEXT    NOT NULL,
    resolution_time DATETIME,
    location        TEXT,
    cluster         TEXT
);

CREATE TABLE IF NOT EXISTS risk_snapshot (
    id                 INTEGER PRIMARY KEY CHECK (id = 1),
    daily_pnl          REAL    NOT NULL,
    weekly_pnl         REAL    NOT NULL,
    monthly_pnl        REAL    NOT NULL,
    total_pnl          REAL    NOT NULL,
    day_start          DATETIME NOT NULL,
    week_start         DATETIME NOT NULL,
    month_start        DATETIME NOT NULL,
    is_halted          INTEGER NOT NULL DEFAULT 0,
    halt_cause         TEXT,
    halt_reason        TEXT,
    halt_time          DATETIME,
    last_loss_time     DATETIME,
    consecutive_losses INTEGER NOT NULL DEFAULT 0,
    trade_count        INTEGER NOT NULL DEFAULT 0,
    loss_count         INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS config_kv (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_closed  ON trades(closed_at DESC);
CREATE INDEX IF NOT EXISTS idx_trades_result  ON trades(result);
CREATE INDEX IF NOT EXISTS idx_trades_market  ON trades(market_id);
`

// SQLiteStorage implementa ports.Storage.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada y aplica el schema.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// SaveTrade persiste un trade completado (upsert por trade_id).
func (s *SQLiteStorage) SaveTrade(ctx context.Context, trade ports.CompletedTrade) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades
			(trade_id, market_id, side, size, entry_price, exit_price, realized_pnl, result, opened_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(trade_id) DO UPDATE SET
			exit_price   = excluded.exit_price,
			realized_pnl = excluded.realized_pnl,
			result       = excluded.result,
			closed_at    = excluded.closed_at
	`,
		trade.TradeID, trade.MarketID, string(trade.Side), trade.Size,
		trade.EntryPrice, trade.ExitPrice, trade.RealizedPnL, trade.Result,
		trade.OpenedAt.UTC(), trade.ClosedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveTrade: %w", err)
	}
	return nil
}

// ListTrades devuelve una página de trades cerrados en [from, to], filtrados
// opcionalmente por resultado ("win"/"loss") y por tipo de mercado
// (coincidencia de prefijo sobre market_id), usando closed_at como cursor de
// paginación.
func (s *SQLiteStorage) ListTrades(ctx context.Context, from, to time.Time, result, marketType, cursor string, pageSize int) (ports.TradePage, error) {
	if pageSize <= 0 {
		pageSize = 50
	}

	query := `SELECT trade_id, market_id, side, size, entry_price, exit_price, realized_pnl, result, opened_at, closed_at
		FROM trades WHERE closed_at BETWEEN ? AND ?`
	args := []any{from.UTC(), to.UTC()}

	if result != "" {
		query += ` AND result = ?`
		args = append(args, result)
	}
	if marketType != "" {
		query += ` AND market_id LIKE ?`
		args = append(args, marketType+"%")
	}
	if cursor != "" {
		c, err := time.Parse(time.RFC3339Nano, cursor)
		if err != nil {
			return ports.TradePage{}, fmt.Errorf("storage.ListTrades: cursor: %w", err)
		}
		query += ` AND closed_at < ?`
		args = append(args, c.UTC())
	}
	query += ` ORDER BY closed_at DESC LIMIT ?`
	args = append(args, pageSize+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return ports.TradePage{}, fmt.Errorf("storage.ListTrades: query: %w", err)
	}
	defer rows.Close()

	var trades []ports.CompletedTrade
	for rows.Next() {
		var t ports.CompletedTrade
		var side string
		if err := rows.Scan(&t.TradeID, &t.MarketID, &side, &t.Size, &t.EntryPrice,
			&t.ExitPrice, &t.RealizedPnL, &t.Result, &t.OpenedAt, &t.ClosedAt); err != nil {
			return ports.TradePage{}, fmt.Errorf("storage.ListTrades: scan: %w", err)
		}
		t.Side = domain.Side(side)
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return ports.TradePage{}, fmt.Errorf("storage.ListTrades: rows: %w", err)
	}

	var next string
	if len(trades) > pageSize {
		next = trades[pageSize-1].ClosedAt.Format(time.RFC3339Nano)
		trades = trades[:pageSize]
	}

	return ports.TradePage{Trades: trades, NextCursor: next}, nil
}

// SavePosition hace upsert de una posición abierta.
func (s *SQLiteStorage) SavePosition(ctx context.Context, p domain.Position) error {
	var resolution *time.Time
	if !p.ResolutionTime.IsZero() {
		t := p.ResolutionTime.UTC()
		resolution = &t
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO positions
			(position_id, market_id, token_id, side, entry_price, quantity, size_usd,
			 current_price, unrealized_pnl, realized_pnl, status, resolution_time, location, cluster)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(position_id) DO UPDATE SET
			entry_price     = excluded.entry_price,
			quantity        = excluded.quantity,
			size_usd        = excluded.size_usd,
			current_price   = excluded.current_price,
			unrealized_pnl  = excluded.unrealized_pnl,
			realized_pnl    = excluded.realized_pnl,
			status          = excluded.status,
			resolution_time = excluded.resolution_time
	`,
		p.PositionID, p.MarketID, p.TokenID, string(p.Side), p.EntryPrice, p.Quantity,
		p.SizeUSD, p.CurrentPrice, p.UnrealizedPnL, p.RealizedPnL, string(p.Status),
		resolution, p.Location, p.Cluster,
	)
	if err != nil {
		return fmt.Errorf("storage.SavePosition: %w", err)
	}
	return nil
}

// DeletePosition elimina una posición (tras su cierre o resolución).
func (s *SQLiteStorage) DeletePosition(ctx context.Context, positionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM positions WHERE position_id = ?`, positionID); err != nil {
		return fmt.Errorf("storage.DeletePosition: %w", err)
	}
	return nil
}

// LoadOpenPositions devuelve todas las posiciones persistidas, usado para
// reconstruir el estado de PositionTracker tras un reinicio.
func (s *SQLiteStorage) LoadOpenPositions(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT position_id, market_id, token_id, side, entry_price, quantity, size_usd,
		       current_price, unrealized_pnl, realized_pnl, status, resolution_time, location, cluster
		FROM positions
	`)
	if err != nil {
		return nil, fmt.Errorf("storage.LoadOpenPositions: query: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		var p domain.Position
		var side, status string
		var resolution sql.NullTime
		if err := rows.Scan(&p.PositionID, &p.MarketID, &p.TokenID, &side, &p.EntryPrice,
			&p.Quantity, &p.SizeUSD, &p.CurrentPrice, &p.UnrealizedPnL, &p.RealizedPnL,
			&status, &resolution, &p.Location, &p.Cluster); err != nil {
			return nil, fmt.Errorf("storage.LoadOpenPositions: scan: %w", err)
		}
		p.Side = domain.Side(side)
		p.Status = domain.PositionStatus(status)
		if resolution.Valid {
			p.ResolutionTime = resolution.Time
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// SaveRiskSnapshot persiste el estado actual de RiskManager (única fila).
func (s *SQLiteStorage) SaveRiskSnapshot(ctx context.Context, state domain.RiskState) error {
	var haltTime, lastLossTime *time.Time
	if !state.HaltTime.IsZero() {
		t := state.HaltTime.UTC()
		haltTime = &t
	}
	if !state.LastLossTime.IsZero() {
		t := state.LastLossTime.UTC()
		lastLossTime = &t
	}

	halted := 0
	if state.IsHalted {
		halted = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO risk_snapshot
			(id, daily_pnl, weekly_pnl, monthly_pnl, total_pnl, day_start, week_start, month_start,
			 is_halted, halt_cause, halt_reason, halt_time, last_loss_time, consecutive_losses,
			 trade_count, loss_count)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			daily_pnl          = excluded.daily_pnl,
			weekly_pnl         = excluded.weekly_pnl,
			monthly_pnl        = excluded.monthly_pnl,
			total_pnl          = excluded.total_pnl,
			day_start          = excluded.day_start,
			week_start         = excluded.week_start,
			month_start        = excluded.month_start,
			is_halted          = excluded.is_halted,
			halt_cause         = excluded.halt_cause,
			halt_reason        = excluded.halt_reason,
			halt_time          = excluded.halt_time,
			last_loss_time     = excluded.last_loss_time,
			consecutive_losses = excluded.consecutive_losses,
			trade_count        = excluded.trade_count,
			loss_count         = excluded.loss_count
	`,
		state.DailyPnL, state.WeeklyPnL, state.MonthlyPnL, state.TotalPnL,
		state.DayStart.UTC(), state.WeekStart.UTC(), state.MonthStart.UTC(),
		halted, string(state.HaltCause), state.HaltReason, haltTime, lastLossTime,
		state.ConsecutiveLosses, state.TradeCount, state.LossCount,
	)
	if err != nil {
		return fmt.Errorf("storage.SaveRiskSnapshot: %w", err)
	}
	return nil
}

// LoadRiskSnapshot carga el último estado de riesgo persistido. found es
// false si el motor nunca ha guardado un snapshot (primer arranque).
func (s *SQLiteStorage) LoadRiskSnapshot(ctx context.Context) (domain.RiskState, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT daily_pnl, weekly_pnl, monthly_pnl, total_pnl, day_start, week_start, month_start,
		       is_halted, halt_cause, halt_reason, halt_time, last_loss_time, consecutive_losses,
		       trade_count, loss_count
		FROM risk_snapshot WHERE id = 1
	`)

	var state domain.RiskState
	var halted int
	var haltCause, haltReason string
	var haltTime, lastLossTime sql.NullTime

	err := row.Scan(&state.DailyPnL, &state.WeeklyPnL, &state.MonthlyPnL, &state.TotalPnL,
		&state.DayStart, &state.WeekStart, &state.MonthStart, &halted, &haltCause,
		&haltReason, &haltTime, &lastLossTime, &state.ConsecutiveLosses,
		&state.TradeCount, &state.LossCount)
	if err == sql.ErrNoRows {
		return domain.RiskState{}, false, nil
	}
	if err != nil {
		return domain.RiskState{}, false, fmt.Errorf("storage.LoadRiskSnapshot: %w", err)
	}

	state.IsHalted = halted == 1
	state.HaltCause = domain.HaltCause(haltCause)
	state.HaltReason = haltReason
	if haltTime.Valid {
		state.HaltTime = haltTime.Time
	}
	if lastLossTime.Valid {
		state.LastLossTime = lastLossTime.Time
	}
	return state, true, nil
}

// SetConfigValue escribe un par clave/valor en el almacén de configuración.
func (s *SQLiteStorage) SetConfigValue(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO config_kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("storage.SetConfigValue: %w", err)
	}
	return nil
}

// GetConfigValue lee un valor de configuración. found es false si la clave no existe.
func (s *SQLiteStorage) GetConfigValue(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM config_kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("storage.GetConfigValue: %w", err)
	}
	return value, true, nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
