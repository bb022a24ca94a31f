package strategy

import (
	"sync"

	"go.uber.org/zap"

	"github.com/skalibog/bast/internal/config"
	"github.com/skalibog/bast/pkg/logger"
)

// Weights представляет снимок весов индикаторов и множителя ATR
type Weights struct {
	EMA           float64
	RSI           float64
	Bollinger     float64
	Wedge         float64
	Volume        float64
	ATRMultiplier float64
}

// Sum возвращает сумму весов индикаторов (без множителя ATR)
func (w Weights) Sum() float64 {
	return w.EMA + w.RSI + w.Bollinger + w.Wedge + w.Volume
}

// WeightStore хранит единственный на процесс набор весов. Все чтения и
// записи сериализованы мьютексом: мониторы позиций могут закрываться
// одновременно, и потерянное обновление недопустимо.
type WeightStore struct {
	mu  sync.RWMutex
	w   Weights
	min float64
	max float64
}

// NewWeightStore создает хранилище весов со стартовыми значениями из
// конфигурации
func NewWeightStore(cfg config.StrategyConfig) *WeightStore {
	return &WeightStore{
		w: Weights{
			EMA:           cfg.EMAWeight,
			RSI:           cfg.RSIWeight,
			Bollinger:     cfg.BollingerWeight,
			Wedge:         cfg.WedgeWeight,
			Volume:        cfg.VolumeWeight,
			ATRMultiplier: cfg.ATRMultiplier,
		},
		min: cfg.WeightMin,
		max: cfg.WeightMax,
	}
}

// Snapshot возвращает копию текущих весов
func (s *WeightStore) Snapshot() Weights {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.w
}

// Adjust умножает каждый вес и множитель ATR на 1.01 при прибыльной сделке
// и на 0.99 при убыточной. Эвристика подкрепления намеренно не различает,
// какой индикатор внес вклад в исход.
func (s *WeightStore) Adjust(profitPct float64) Weights {
	factor := 0.99
	if profitPct > 0 {
		factor = 1.01
	}

	s.mu.Lock()
	s.w.EMA = s.clamp(s.w.EMA * factor)
	s.w.RSI = s.clamp(s.w.RSI * factor)
	s.w.Bollinger = s.clamp(s.w.Bollinger * factor)
	s.w.Wedge = s.clamp(s.w.Wedge * factor)
	s.w.Volume = s.clamp(s.w.Volume * factor)
	s.w.ATRMultiplier = s.clamp(s.w.ATRMultiplier * factor)
	updated := s.w
	s.mu.Unlock()

	logger.Info("Веса обновлены",
		zap.Float64("profit_pct", profitPct),
		zap.Float64("factor", factor),
		zap.Float64("ema", updated.EMA),
		zap.Float64("rsi", updated.RSI),
		zap.Float64("bollinger", updated.Bollinger),
		zap.Float64("wedge", updated.Wedge),
		zap.Float64("volume", updated.Volume),
		zap.Float64("atr_multiplier", updated.ATRMultiplier))

	return updated
}

// clamp ограничивает дрейф веса настроенными границами; нулевые границы
// отключают ограничение
func (s *WeightStore) clamp(v float64) float64 {
	if s.min == 0 && s.max == 0 {
		return v
	}
	if v < s.min {
		return s.min
	}
	if v > s.max {
		return s.max
	}
	return v
}
