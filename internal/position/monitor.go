package position

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/skalibog/bast/internal/config"
	"github.com/skalibog/bast/internal/exchange"
	"github.com/skalibog/bast/internal/indicator"
	"github.com/skalibog/bast/internal/strategy"
	"github.com/skalibog/bast/pkg/logger"
	"github.com/skalibog/bast/pkg/models"
)

// PriceSource источник последней цены символа
type PriceSource interface {
	GetLastPrice(ctx context.Context, symbol string) (float64, error)
}

// TradeCloser фиксирует закрытие сделки в журнале
type TradeCloser interface {
	RecordClose(ctx context.Context, tradeID int64, result string) error
}

// Monitor сопровождает одну открытую позицию. Ровно один монитор владеет
// позицией до ее закрытия; никакой другой код позицию не трогает.
type Monitor struct {
	pos     *models.Position
	prices  PriceSource
	orders  exchange.OrderExecutor
	trades  TradeCloser
	weights *strategy.WeightStore

	// ATR фиксируется по снимку свечей на момент входа и не пересчитывается
	// по живым данным
	atr          float64
	trailingStop float64
	firstTPPct   float64
	pollInterval time.Duration

	finalized bool
}

// NewMonitor создает монитор позиции. snapshot — приватная копия окна свечей
// на момент входа, используется только для затравки ATR.
func NewMonitor(
	pos *models.Position,
	snapshot []*models.Candle,
	prices PriceSource,
	orders exchange.OrderExecutor,
	trades TradeCloser,
	weights *strategy.WeightStore,
	cfg config.Config,
) *Monitor {
	return &Monitor{
		pos:          pos,
		prices:       prices,
		orders:       orders,
		trades:       trades,
		weights:      weights,
		atr:          indicator.ATR(snapshot, cfg.Strategy.ATRPeriod),
		firstTPPct:   cfg.Strategy.FirstTPPercent,
		pollInterval: time.Duration(cfg.Engine.MonitorPollSeconds) * time.Second,
	}
}

// Run опрашивает цену с фиксированным интервалом до закрытия позиции.
// При отмене контекста монитор бросает сопровождение без финальной продажи
// и НЕ помечает сделку закрытой — позиция остается на бирже.
func (m *Monitor) Run(ctx context.Context) {
	logger.Info("Монитор позиции запущен",
		zap.String("position", m.pos.ID),
		zap.String("symbol", m.pos.Symbol),
		zap.Float64("entry_price", m.pos.EntryPrice),
		zap.Float64("amount", m.pos.Amount),
		zap.Float64("atr", m.atr))

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Warn("Монитор позиции остановлен до закрытия",
				zap.String("position", m.pos.ID),
				zap.String("state", string(m.pos.State)),
				zap.Float64("remaining", m.pos.Remaining))
			return
		case <-ticker.C:
			price, err := m.prices.GetLastPrice(ctx, m.pos.Symbol)
			if err != nil {
				// Временный сбой тикера не повод бросать позицию:
				// повторим на следующем тике
				logger.Error("Ошибка получения цены",
					zap.String("position", m.pos.ID),
					zap.String("symbol", m.pos.Symbol),
					zap.Error(err))
				continue
			}

			m.tick(ctx, price)
			if m.pos.State == models.PositionClosed {
				return
			}
		}
	}
}

// tick выполняет один шаг автомата. Переходы взаимоисключающие: проверка
// трейлинг-стопа невозможна до взятия первого тейк-профита.
func (m *Monitor) tick(ctx context.Context, price float64) {
	switch m.pos.State {
	case models.PositionEntered:
		m.tryFirstTakeProfit(ctx, price)
	case models.PositionFirstTPTaken:
		m.tryTrailingStop(ctx, price)
	}

	// Защитный случай: нечего сопровождать — закрываем ровно один раз
	if m.pos.State != models.PositionClosed && m.pos.Remaining <= 0 {
		m.finalize(ctx)
	}
}

// tryFirstTakeProfit продает половину остатка при достижении первой цели.
// Переход одноразовый.
func (m *Monitor) tryFirstTakeProfit(ctx context.Context, price float64) {
	if price < m.pos.EntryPrice*(1+m.firstTPPct) {
		return
	}

	sellAmount := m.pos.Remaining / 2
	receipt, err := m.orders.MarketSell(ctx, m.pos.Symbol, sellAmount)
	if err != nil || receipt.Outcome != models.OrderFilled {
		// Неподтвержденная продажа не продвигает автомат; повтор на
		// следующем тике
		logger.Warn("Продажа первого тейк-профита не подтверждена",
			zap.String("position", m.pos.ID),
			zap.Float64("amount", sellAmount),
			zap.Error(err))
		return
	}

	m.pos.Remaining -= sellAmount
	m.pos.State = models.PositionFirstTPTaken
	m.trailingStop = price - m.atr*m.weights.Snapshot().ATRMultiplier

	logger.Info("Первый тейк-профит взят",
		zap.String("position", m.pos.ID),
		zap.Float64("price", price),
		zap.Float64("sold", sellAmount),
		zap.Float64("remaining", m.pos.Remaining),
		zap.Float64("trailing_stop", m.trailingStop))
}

// tryTrailingStop подтягивает стоп за ценой и закрывает остаток позиции,
// когда цена падает ниже стопа
func (m *Monitor) tryTrailingStop(ctx context.Context, price float64) {
	if candidate := price - m.atr*m.weights.Snapshot().ATRMultiplier; candidate > m.trailingStop {
		m.trailingStop = candidate
	}
	if price >= m.trailingStop {
		return
	}

	receipt, err := m.orders.MarketSell(ctx, m.pos.Symbol, m.pos.Remaining)
	if err != nil || receipt.Outcome != models.OrderFilled {
		logger.Warn("Финальная продажа не подтверждена",
			zap.String("position", m.pos.ID),
			zap.Float64("amount", m.pos.Remaining),
			zap.Error(err))
		return
	}

	m.pos.Remaining = 0
	profitPct := (price - m.pos.EntryPrice) / m.pos.EntryPrice
	m.weights.Adjust(profitPct)

	logger.Info("Трейлинг-стоп сработал",
		zap.String("position", m.pos.ID),
		zap.Float64("price", price),
		zap.Float64("trailing_stop", m.trailingStop),
		zap.Float64("profit_pct", profitPct))

	m.finalize(ctx)
}

// finalize переводит позицию в CLOSED и фиксирует закрытие в журнале.
// Идемпотентно: закрытие происходит ровно один раз на позицию.
func (m *Monitor) finalize(ctx context.Context) {
	if m.finalized {
		return
	}
	m.finalized = true
	m.pos.State = models.PositionClosed

	if err := m.trades.RecordClose(ctx, m.pos.TradeID, "CLOSED"); err != nil {
		logger.Error("Ошибка записи закрытия сделки",
			zap.String("position", m.pos.ID),
			zap.Int64("trade_id", m.pos.TradeID),
			zap.Error(err))
	}

	logger.Info("Позиция закрыта",
		zap.String("position", m.pos.ID),
		zap.Int64("trade_id", m.pos.TradeID))
}
