package storage

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *SQLiteTradeStore {
	t.Helper()
	store, err := NewSQLiteTradeStore(filepath.Join(t.TempDir(), "trades.db"))
	if err != nil {
		t.Fatalf("открытие базы сделок: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordOpenAssignsIDs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.RecordOpen(ctx, "ADAUSDT", 2, 100)
	if err != nil {
		t.Fatalf("RecordOpen: %v", err)
	}
	second, err := store.RecordOpen(ctx, "ADAUSDT", 3, 101)
	if err != nil {
		t.Fatalf("RecordOpen: %v", err)
	}
	if first <= 0 || second <= first {
		t.Fatalf("идентификаторы не растут: %d, %d", first, second)
	}
}

func TestRecordCloseMarksTradeOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.RecordOpen(ctx, "ADAUSDT", 2, 100)
	if err != nil {
		t.Fatalf("RecordOpen: %v", err)
	}

	if err := store.RecordClose(ctx, id, "CLOSED"); err != nil {
		t.Fatalf("RecordClose: %v", err)
	}
	// Повторное закрытие безвредно и не перетирает результат
	if err := store.RecordClose(ctx, id, "FAILED"); err != nil {
		t.Fatalf("повторный RecordClose: %v", err)
	}

	trades, err := store.ListTrades(ctx, 10)
	if err != nil {
		t.Fatalf("ListTrades: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("сделок = %d, ожидалась 1", len(trades))
	}
	if trades[0].Result != "CLOSED" {
		t.Fatalf("результат = %q, повторное закрытие перетерло запись", trades[0].Result)
	}
	if trades[0].CloseTime == nil {
		t.Fatal("время закрытия не записано")
	}
}

func TestListTradesNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.RecordOpen(ctx, "ADAUSDT", float64(i+1), 100); err != nil {
			t.Fatalf("RecordOpen: %v", err)
		}
	}

	trades, err := store.ListTrades(ctx, 2)
	if err != nil {
		t.Fatalf("ListTrades: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("сделок = %d, ожидалось 2", len(trades))
	}
	if trades[0].ID <= trades[1].ID {
		t.Fatalf("порядок не от новых к старым: %d, %d", trades[0].ID, trades[1].ID)
	}
	if trades[0].Amount != 3 {
		t.Fatalf("первой должна идти последняя сделка, amount = %v", trades[0].Amount)
	}
	if trades[0].Result != "OPEN" || trades[0].CloseTime != nil {
		t.Fatalf("открытая сделка: result=%q closeTime=%v", trades[0].Result, trades[0].CloseTime)
	}
}
