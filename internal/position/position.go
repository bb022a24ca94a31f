// Package position содержит модель позиции и ее монитор: автомат
// ENTERED -> FIRST_TP_TAKEN -> CLOSED с частичным тейк-профитом и
// трейлинг-стопом по ATR.
package position

import (
	"time"

	"github.com/google/uuid"

	"github.com/skalibog/bast/pkg/models"
)

// New создает позицию в начальном состоянии ENTERED
func New(tradeID int64, symbol string, entryPrice, amount float64) *models.Position {
	return &models.Position{
		ID:         uuid.NewString(),
		TradeID:    tradeID,
		Symbol:     symbol,
		EntryPrice: entryPrice,
		Amount:     amount,
		Remaining:  amount,
		State:      models.PositionEntered,
		OpenedAt:   time.Now(),
	}
}
