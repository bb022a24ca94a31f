package strategy

import (
	"testing"

	"github.com/skalibog/bast/pkg/models"
)

func mkCandle(high, low, close, volume float64) *models.Candle {
	return &models.Candle{
		Symbol: "ADAUSDT",
		High:   high,
		Low:    low,
		Close:  close,
		Volume: volume,
	}
}

func TestEvaluateShortHistoryDegradesSafely(t *testing.T) {
	ev := NewEvaluator(testStrategyConfig(), NewWeightStore(testStrategyConfig()))

	// 10 свечей — меньше периода Боллинджера; падать и давать ложный
	// сигнал полосы нельзя
	var candles []*models.Candle
	for i := 0; i < 10; i++ {
		candles = append(candles, mkCandle(100.5, 99.5, 100, 100))
	}

	result := ev.Evaluate(candles)
	if result.Buy {
		t.Fatal("короткая плоская история не должна давать сигнал на покупку")
	}
	if result.Components["bollinger"] != 0 {
		t.Fatalf("незаполненное окно Боллинджера дало вклад %v", result.Components["bollinger"])
	}
}

func TestEvaluateEmptyHistory(t *testing.T) {
	ev := NewEvaluator(testStrategyConfig(), NewWeightStore(testStrategyConfig()))
	if result := ev.Evaluate(nil); result.Buy {
		t.Fatal("пустая история не должна давать сигнал")
	}
}

func TestEvaluateDecliningEMANeverContributes(t *testing.T) {
	ev := NewEvaluator(testStrategyConfig(), NewWeightStore(testStrategyConfig()))

	var candles []*models.Candle
	for i := 0; i < 25; i++ {
		close := 124.0 - float64(i)
		candles = append(candles, mkCandle(close+1, close-1, close, 100))
	}

	result := ev.Evaluate(candles)
	if result.Components["ema"] != 0 {
		t.Fatalf("падающая EMA дала вклад %v", result.Components["ema"])
	}
	if result.Buy {
		t.Fatal("падающий рынок не должен давать сигнал на покупку")
	}
}

func TestEvaluateResistanceVeto(t *testing.T) {
	ev := NewEvaluator(testStrategyConfig(), NewWeightStore(testStrategyConfig()))

	// Цена в буфере 0.2% под сопротивлением, объем без пробоя: отказ
	// независимо от счета
	var candles []*models.Candle
	for i := 0; i < 24; i++ {
		candles = append(candles, mkCandle(100, 99, 100, 100))
	}
	candles = append(candles, mkCandle(100, 99, 99.9, 100))

	result := ev.Evaluate(candles)
	if !result.Vetoed {
		t.Fatal("ожидалось вето у сопротивления")
	}
	if result.Buy {
		t.Fatal("вето обязано отменять покупку")
	}
	if result.Score != 0 {
		t.Fatalf("после вето счет не считается, получено %v", result.Score)
	}
}

// TestEvaluateAllFiveSignals строит историю из 25 свечей, в которой
// срабатывают все пять слагаемых: растущая EMA (затравка низким первым
// закрытием), RSI(14) ниже 30, цена под нижней полосой Боллинджера,
// клин и объем выше среднего.
func TestEvaluateAllFiveSignals(t *testing.T) {
	cfg := testStrategyConfig()
	store := NewWeightStore(cfg)
	ev := NewEvaluator(cfg, store)

	var candles []*models.Candle
	// Затравка EMA: очень низкое первое закрытие
	candles = append(candles, mkCandle(50.5, 49.5, 50, 100))
	for i := 1; i <= 22; i++ {
		candles = append(candles, mkCandle(100.5, 96, 100, 100))
	}
	candles = append(candles, mkCandle(100.5, 96, 98, 100))
	candles = append(candles, mkCandle(100.5, 96, 96.2, 1000))

	result := ev.Evaluate(candles)
	if result.Vetoed {
		t.Fatal("вето не должно срабатывать: цена далеко от сопротивления")
	}

	w := store.Snapshot()
	expected := map[string]float64{
		"ema":       w.EMA,
		"rsi":       w.RSI,
		"bollinger": w.Bollinger,
		"wedge":     w.Wedge,
		"volume":    w.Volume,
	}
	for name, want := range expected {
		if got := result.Components[name]; !relClose(got, want) {
			t.Fatalf("вклад %s = %v, ожидалось %v", name, got, want)
		}
	}

	if !relClose(result.Score, w.Sum()) {
		t.Fatalf("счет = %v, ожидалась сумма весов %v", result.Score, w.Sum())
	}
	if !result.Buy {
		t.Fatalf("сумма весов %v выше порога %v, ожидался сигнал", result.Score, cfg.ScoreThreshold)
	}
}
