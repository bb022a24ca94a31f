// Package engine содержит цикл опроса рынка: получение окна свечей, оценку
// сигнала и запуск мониторов позиций.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"go.uber.org/zap"

	"github.com/skalibog/bast/internal/config"
	"github.com/skalibog/bast/internal/exchange"
	"github.com/skalibog/bast/internal/position"
	"github.com/skalibog/bast/internal/storage"
	"github.com/skalibog/bast/internal/strategy"
	"github.com/skalibog/bast/pkg/logger"
	"github.com/skalibog/bast/pkg/models"
)

// MarketData источник рыночных данных для цикла опроса и мониторов
type MarketData interface {
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]*models.Candle, error)
	GetLastPrice(ctx context.Context, symbol string) (float64, error)
}

// Engine управляет циклом опроса и порождает мониторы позиций. Цикл никогда
// не ждет мониторы в рабочем режиме; ожидание происходит только при
// завершении процесса.
type Engine struct {
	cfg       *config.Config
	market    MarketData
	orders    exchange.OrderExecutor
	trades    storage.TradeStore
	history   storage.MarketStorage
	weights   *strategy.WeightStore
	evaluator *strategy.Evaluator

	retry    *backoff.Backoff
	monitors sync.WaitGroup
}

// New создает движок
func New(
	cfg *config.Config,
	market MarketData,
	orders exchange.OrderExecutor,
	trades storage.TradeStore,
	history storage.MarketStorage,
	weights *strategy.WeightStore,
	evaluator *strategy.Evaluator,
) *Engine {
	return &Engine{
		cfg:       cfg,
		market:    market,
		orders:    orders,
		trades:    trades,
		history:   history,
		weights:   weights,
		evaluator: evaluator,
		retry:     newBackoff(cfg.Engine),
	}
}

// newBackoff строит экспоненциальную выдержку: старт с seed, удвоение,
// потолок max
func newBackoff(cfg config.EngineConfig) *backoff.Backoff {
	return &backoff.Backoff{
		Min:    time.Duration(cfg.BackoffSeedSeconds) * time.Second,
		Max:    time.Duration(cfg.BackoffMaxSeconds) * time.Second,
		Factor: 2,
		Jitter: false,
	}
}

// Run крутит цикл опроса до отмены контекста, после чего перестает открывать
// позиции и дожидается завершения всех мониторов
func (e *Engine) Run(ctx context.Context) {
	logger.Info("Цикл опроса запущен",
		zap.String("symbol", e.cfg.Trading.Symbol),
		zap.String("interval", e.cfg.Trading.Interval),
		zap.Bool("live_trading", e.cfg.Trading.LiveTrading))

	pollInterval := time.Duration(e.cfg.Engine.PollSeconds) * time.Second

	for ctx.Err() == nil {
		if err := e.cycle(ctx); err != nil {
			delay := e.retry.Duration()
			logger.Error("Ошибка цикла опроса",
				zap.String("symbol", e.cfg.Trading.Symbol),
				zap.Duration("backoff", delay),
				zap.Error(err))
			if !sleepCtx(ctx, delay) {
				break
			}
			continue
		}

		// Успешный цикл сбрасывает выдержку
		e.retry.Reset()
		if !sleepCtx(ctx, pollInterval) {
			break
		}
	}

	logger.Info("Цикл опроса остановлен, ожидание мониторов")
	e.monitors.Wait()
	logger.Info("Все мониторы завершены")
}

// cycle выполняет один цикл: окно свечей, оценка, открытие позиции
func (e *Engine) cycle(ctx context.Context) error {
	candles, err := e.market.GetKlines(ctx, e.cfg.Trading.Symbol, e.cfg.Trading.Interval, e.cfg.Engine.CandleLimit)
	if err != nil {
		return fmt.Errorf("ошибка получения окна свечей: %w", err)
	}

	if len(candles) < e.cfg.Strategy.BollingerPeriod {
		logger.Debug("Недостаточно свечей для оценки",
			zap.String("symbol", e.cfg.Trading.Symbol),
			zap.Int("candles", len(candles)))
		return nil
	}

	// Рыночная история пишется по возможности и не влияет на решения
	if err := e.history.SaveCandles(ctx, candles); err != nil {
		logger.Warn("Не удалось сохранить свечи", zap.Error(err))
	}

	result := e.evaluator.Evaluate(candles)
	if err := e.history.SaveSignal(ctx, result); err != nil {
		logger.Warn("Не удалось сохранить сигнал", zap.Error(err))
	}

	logger.Debug("Сигнал оценен",
		zap.String("symbol", e.cfg.Trading.Symbol),
		zap.Float64("score", result.Score),
		zap.Bool("buy", result.Buy),
		zap.Bool("vetoed", result.Vetoed))

	if !result.Buy {
		return nil
	}

	return e.openPosition(ctx, candles)
}

// openPosition открывает позицию по сигналу: сперва долговременная запись
// сделки, затем ордер, затем монитор с приватным снимком окна
func (e *Engine) openPosition(ctx context.Context, candles []*models.Candle) error {
	entryPrice := candles[len(candles)-1].Close
	amount := e.cfg.Trading.BuyUSD / entryPrice
	symbol := e.cfg.Trading.Symbol

	// Запись об открытии фиксируется ДО размещения ордера
	tradeID, err := e.trades.RecordOpen(ctx, symbol, amount, entryPrice)
	if err != nil {
		return fmt.Errorf("ошибка записи открытия сделки: %w", err)
	}

	logger.Info("Сигнал на покупку",
		zap.String("symbol", symbol),
		zap.Int64("trade_id", tradeID),
		zap.Float64("entry_price", entryPrice),
		zap.Float64("amount", amount))

	receipt, err := e.orders.MarketBuy(ctx, symbol, amount)
	if err != nil && receipt != nil && receipt.Outcome == models.OrderRejected {
		// Ордера точно нет: сопровождать нечего
		if closeErr := e.trades.RecordClose(ctx, tradeID, "FAILED"); closeErr != nil {
			logger.Error("Ошибка записи отклоненной сделки", zap.Int64("trade_id", tradeID), zap.Error(closeErr))
		}
		return fmt.Errorf("покупка отклонена биржей: %w", err)
	}
	if err != nil {
		// Неизвестный исход: позиция могла открыться, сопровождаем
		logger.Warn("Исход покупки неизвестен, позиция будет сопровождаться",
			zap.String("symbol", symbol),
			zap.Int64("trade_id", tradeID),
			zap.Error(err))
	}

	// Приватный снимок окна: монитор не должен видеть живое окно
	snapshot := append([]*models.Candle(nil), candles...)

	pos := position.New(tradeID, symbol, entryPrice, amount)
	monitor := position.NewMonitor(pos, snapshot, e.market, e.orders, e.trades, e.weights, *e.cfg)

	e.monitors.Add(1)
	go func() {
		defer e.monitors.Done()
		monitor.Run(ctx)
	}()

	return nil
}

// sleepCtx спит d или меньше, если контекст отменен; false при отмене
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
