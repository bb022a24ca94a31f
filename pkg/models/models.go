package models

import (
	"time"
)

// Candle представляет свечу
type Candle struct {
	Symbol    string
	Interval  string
	OpenTime  time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime time.Time
}

// PositionState представляет состояние позиции
type PositionState string

const (
	// PositionEntered позиция открыта, первый тейк-профит еще не взят
	PositionEntered PositionState = "ENTERED"
	// PositionFirstTPTaken первый тейк-профит взят, действует трейлинг-стоп
	PositionFirstTPTaken PositionState = "FIRST_TP_TAKEN"
	// PositionClosed терминальное состояние
	PositionClosed PositionState = "CLOSED"
)

// Position представляет открытую позицию
type Position struct {
	ID         string
	TradeID    int64
	Symbol     string
	EntryPrice float64
	Amount     float64
	Remaining  float64
	State      PositionState
	OpenedAt   time.Time
}

// Market представляет торговую пару биржи
type Market struct {
	Symbol string
	Base   string
	Quote  string
	Active bool
}

// SignalResult представляет результат оценки сигнала на покупку
type SignalResult struct {
	Symbol       string
	Timestamp    time.Time
	Buy          bool
	Score        float64
	Threshold    float64
	CurrentPrice float64
	Vetoed       bool
	Components   map[string]float64
}

// OrderOutcome представляет исход размещения ордера
type OrderOutcome string

const (
	// OrderFilled ордер подтвержденно исполнен
	OrderFilled OrderOutcome = "FILLED"
	// OrderRejected биржа отклонила ордер
	OrderRejected OrderOutcome = "REJECTED"
	// OrderUnknown исход неизвестен (сетевая ошибка, таймаут)
	OrderUnknown OrderOutcome = "UNKNOWN"
)

// OrderReceipt представляет квитанцию рыночного ордера
type OrderReceipt struct {
	OrderID   string
	Symbol    string
	Side      string
	Amount    float64
	Outcome   OrderOutcome
	DryRun    bool
	Timestamp time.Time
}

// Trade представляет запись о сделке в хранилище
type Trade struct {
	ID         int64
	Symbol     string
	Amount     float64
	EntryPrice float64
	Result     string
	OpenTime   time.Time
	CloseTime  *time.Time
}
