package strategy

import (
	"math"
	"time"

	"github.com/skalibog/bast/internal/config"
	"github.com/skalibog/bast/internal/indicator"
	"github.com/skalibog/bast/pkg/models"
)

// recentWindow количество последних свечей для недавнего максимума и
// среднего объема
const recentWindow = 20

// Evaluator оценивает сигнал на покупку по взвешенной сумме индикаторов.
// Веса читаются из общего хранилища на каждый вызов.
type Evaluator struct {
	cfg     config.StrategyConfig
	weights *WeightStore
}

// NewEvaluator создает новый оценщик сигналов
func NewEvaluator(cfg config.StrategyConfig, weights *WeightStore) *Evaluator {
	return &Evaluator{
		cfg:     cfg,
		weights: weights,
	}
}

// Evaluate оценивает историю свечей и возвращает решение о покупке.
// История короче периода Боллинджера не является ошибкой: индикаторы
// деградируют до нейтральных значений.
func (e *Evaluator) Evaluate(candles []*models.Candle) *models.SignalResult {
	result := &models.SignalResult{
		Timestamp: time.Now(),
		Threshold: e.cfg.ScoreThreshold,
		Components: map[string]float64{
			"ema":       0,
			"rsi":       0,
			"bollinger": 0,
			"wedge":     0,
			"volume":    0,
		},
	}
	if len(candles) == 0 {
		return result
	}
	result.Symbol = candles[0].Symbol

	closes := make([]float64, len(candles))
	highs := make([]float64, len(candles))
	volumes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		volumes[i] = c.Volume
	}

	currentPrice := closes[len(closes)-1]
	result.CurrentPrice = currentPrice

	// Недавний максимум и средний объем за последние recentWindow свечей
	window := len(candles)
	if window > recentWindow {
		window = recentWindow
	}
	recentHigh := highs[len(highs)-window]
	var volumeSum float64
	for i := len(candles) - window; i < len(candles); i++ {
		if highs[i] > recentHigh {
			recentHigh = highs[i]
		}
		volumeSum += volumes[i]
	}
	avgVolume := volumeSum / float64(window)
	lastVolume := volumes[len(volumes)-1]

	// Вето: цена уперлась в сопротивление без подтвержденного объемом
	// пробоя — отклоняем независимо от итогового счета
	if indicator.NearResistance(currentPrice, recentHigh, e.cfg.ResistanceBufferPercent) &&
		!indicator.IsBreakout(currentPrice, recentHigh, lastVolume, avgVolume, e.cfg.BreakoutVolumeMultiplier) {
		result.Vetoed = true
		return result
	}

	w := e.weights.Snapshot()
	var score float64

	// Короткая EMA растет
	emaShort := indicator.EMA(closes, e.cfg.EMAShortPeriod)
	if len(emaShort) >= 2 && emaShort[len(emaShort)-1] > emaShort[len(emaShort)-2] {
		score += w.EMA
		result.Components["ema"] = w.EMA
	}

	// RSI в зоне перепроданности
	rsi := indicator.RSI(closes, e.cfg.RSIPeriod)
	if rsi[len(rsi)-1] < e.cfg.RSIOversold {
		score += w.RSI
		result.Components["rsi"] = w.RSI
	}

	// Цена у нижней полосы Боллинджера; NaN до заполнения окна — не сигнал
	_, lower := indicator.Bollinger(closes, e.cfg.BollingerPeriod, e.cfg.BollingerStd)
	if lastLower := lower[len(lower)-1]; !math.IsNaN(lastLower) && currentPrice <= lastLower {
		score += w.Bollinger
		result.Components["bollinger"] = w.Bollinger
	}

	// Сжатие цены (клин)
	if indicator.DetectWedge(candles, e.cfg.WedgeLookback) {
		score += w.Wedge
		result.Components["wedge"] = w.Wedge
	}

	// Объем выше среднего
	if lastVolume > avgVolume {
		score += w.Volume
		result.Components["volume"] = w.Volume
	}

	result.Score = score
	result.Buy = score >= e.cfg.ScoreThreshold
	return result
}
