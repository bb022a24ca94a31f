package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/skalibog/bast/pkg/models"
)

// TradeStore интерфейс долговременного журнала сделок
type TradeStore interface {
	// RecordOpen долговременно фиксирует открытие сделки и возвращает ее
	// идентификатор. Запись обязана быть зафиксирована до размещения ордера.
	RecordOpen(ctx context.Context, symbol string, amount, entryPrice float64) (int64, error)
	// RecordClose помечает сделку закрытой; повторное закрытие не является
	// ошибкой и не меняет запись
	RecordClose(ctx context.Context, tradeID int64, result string) error
	// ListTrades возвращает последние сделки, новые первыми
	ListTrades(ctx context.Context, limit int) ([]*models.Trade, error)
	Close() error
}

// SQLiteTradeStore реализует TradeStore поверх SQLite
type SQLiteTradeStore struct {
	db *sql.DB
}

// NewSQLiteTradeStore открывает базу сделок и инициализирует схему
func NewSQLiteTradeStore(path string) (*SQLiteTradeStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия базы сделок: %w", err)
	}

	// Единственный писатель
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS trades (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol      TEXT NOT NULL,
			amount      REAL NOT NULL,
			entry_price REAL NOT NULL,
			result      TEXT NOT NULL,
			open_time   TEXT NOT NULL,
			close_time  TEXT
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("ошибка инициализации схемы сделок: %w", err)
	}

	return &SQLiteTradeStore{db: db}, nil
}

// RecordOpen фиксирует открытие сделки
func (s *SQLiteTradeStore) RecordOpen(ctx context.Context, symbol string, amount, entryPrice float64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO trades (symbol, amount, entry_price, result, open_time) VALUES (?, ?, ?, ?, ?)`,
		symbol, amount, entryPrice, "OPEN", time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("ошибка записи открытия сделки: %w", err)
	}

	tradeID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("ошибка получения идентификатора сделки: %w", err)
	}
	return tradeID, nil
}

// RecordClose помечает сделку закрытой. Срабатывает только для еще не
// закрытой записи, поэтому повторный вызов безвреден.
func (s *SQLiteTradeStore) RecordClose(ctx context.Context, tradeID int64, result string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE trades SET result = ?, close_time = ? WHERE id = ? AND close_time IS NULL`,
		result, time.Now().UTC().Format(time.RFC3339Nano), tradeID)
	if err != nil {
		return fmt.Errorf("ошибка записи закрытия сделки: %w", err)
	}
	return nil
}

// ListTrades возвращает последние сделки
func (s *SQLiteTradeStore) ListTrades(ctx context.Context, limit int) ([]*models.Trade, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, symbol, amount, entry_price, result, open_time, close_time
		 FROM trades ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса сделок: %w", err)
	}
	defer rows.Close()

	var trades []*models.Trade
	for rows.Next() {
		var (
			trade     models.Trade
			openTime  string
			closeTime sql.NullString
		)
		if err := rows.Scan(&trade.ID, &trade.Symbol, &trade.Amount, &trade.EntryPrice, &trade.Result, &openTime, &closeTime); err != nil {
			return nil, fmt.Errorf("ошибка чтения сделки: %w", err)
		}

		if t, err := time.Parse(time.RFC3339Nano, openTime); err == nil {
			trade.OpenTime = t
		}
		if closeTime.Valid {
			if t, err := time.Parse(time.RFC3339Nano, closeTime.String); err == nil {
				trade.CloseTime = &t
			}
		}
		trades = append(trades, &trade)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка при обработке результатов: %w", err)
	}
	return trades, nil
}

// Close закрывает базу сделок
func (s *SQLiteTradeStore) Close() error {
	return s.db.Close()
}
