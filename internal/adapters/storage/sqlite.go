package storage

// sqlite.go - archivo de trades propios.
//
// Estrategia:
//   - `trades`: una fila por trade ejecutado, clave = id del exchange.
//   - INSERT OR IGNORE: re-archivar la misma ventana no duplica nada y el
//     archivador no necesita recordar qué ya guardó.
//   - Todo el lote va en una transacción; el conteo de nuevos sale de
//     RowsAffected por fila.

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/alejandrodnm/skewmm/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
    id        TEXT PRIMARY KEY,
    timestamp INTEGER,
    symbol    TEXT,
    side      TEXT,
    price     REAL,
    amount    REAL,
    fee       REAL,
    liquidity TEXT
);

CREATE INDEX IF NOT EXISTS idx_trades_ts ON trades(timestamp DESC);
`

// SQLiteStorage implementa ports.TradeStore usando SQLite (pure Go, sin CGo).
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

// SaveTrades inserta los trades cuyo id no existe todavía y devuelve cuántos
// eran nuevos. Los duplicados se ignoran en silencio.
func (s *SQLiteStorage) SaveTrades(ctx context.Context, trades []domain.Trade) (int, error) {
	if len(trades) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("storage.SaveTrades: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO trades
			(id, timestamp, symbol, side, price, amount, fee, liquidity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("storage.SaveTrades: prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, t := range trades {
		res, err := stmt.ExecContext(ctx,
			t.ID,
			t.TimestampMs,
			t.Symbol,
			string(t.Side),
			t.Price,
			t.Amount,
			t.Fee,
			string(t.Liquidity),
		)
		if err != nil {
			return 0, fmt.Errorf("storage.SaveTrades: insert %s: %w", t.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("storage.SaveTrades: rows affected: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("storage.SaveTrades: commit: %w", err)
	}
	return inserted, nil
}

// RecentTrades devuelve los últimos limit trades, más recientes primero.
func (s *SQLiteStorage) RecentTrades(ctx context.Context, limit int) ([]domain.Trade, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, symbol, side, price, amount, fee, liquidity
		FROM trades
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.RecentTrades: query: %w", err)
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var (
			t         domain.Trade
			side, liq sql.NullString
			fee       sql.NullFloat64
		)
		if err := rows.Scan(&t.ID, &t.TimestampMs, &t.Symbol, &side, &t.Price, &t.Amount, &fee, &liq); err != nil {
			return nil, fmt.Errorf("storage.RecentTrades: scan row: %w", err)
		}
		t.Side = domain.Side(side.String)
		t.Fee = fee.Float64
		t.Liquidity = domain.Liquidity(liq.String)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// CountTrades devuelve el total de trades archivados.
func (s *SQLiteStorage) CountTrades(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trades`).Scan(&n); err != nil {
		return 0, fmt.Errorf("storage.CountTrades: %w", err)
	}
	return n, nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
