package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/skalibog/bast/internal/config"
	"github.com/skalibog/bast/internal/storage"
	"github.com/skalibog/bast/internal/strategy"
	"github.com/skalibog/bast/pkg/models"
)

func testConfig() *config.Config {
	return &config.Config{
		Trading: config.TradingConfig{
			Symbol:   "ADAUSDT",
			Interval: "1m",
			BuyUSD:   10,
		},
		Strategy: config.StrategyConfig{
			EMAShortPeriod:           20,
			RSIPeriod:                14,
			RSIOversold:              30,
			BollingerPeriod:          20,
			BollingerStd:             2,
			WedgeLookback:            10,
			EMAWeight:                1.0,
			RSIWeight:                0.8,
			BollingerWeight:          0.5,
			WedgeWeight:              0.7,
			VolumeWeight:             0.6,
			ScoreThreshold:           2.5,
			ResistanceBufferPercent:  0.002,
			BreakoutVolumeMultiplier: 2,
			FirstTPPercent:           0.01,
			ATRPeriod:                14,
			ATRMultiplier:            1.5,
		},
		Engine: config.EngineConfig{
			CandleLimit:        100,
			PollSeconds:        1,
			MonitorPollSeconds: 1,
			BackoffSeedSeconds: 1,
			BackoffMaxSeconds:  300,
		},
	}
}

// buyWindow строит окно из 25 свечей, на котором срабатывают все пять
// слагаемых сигнала
func buyWindow() []*models.Candle {
	mk := func(high, low, close, volume float64) *models.Candle {
		return &models.Candle{Symbol: "ADAUSDT", High: high, Low: low, Close: close, Volume: volume}
	}

	var candles []*models.Candle
	candles = append(candles, mk(50.5, 49.5, 50, 100))
	for i := 1; i <= 22; i++ {
		candles = append(candles, mk(100.5, 96, 100, 100))
	}
	candles = append(candles, mk(100.5, 96, 98, 100))
	candles = append(candles, mk(100.5, 96, 96.2, 1000))
	return candles
}

type callRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *callRecorder) record(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *callRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type fakeMarket struct {
	candles []*models.Candle
	err     error
	price   float64
}

func (f *fakeMarket) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]*models.Candle, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.candles, nil
}

func (f *fakeMarket) GetLastPrice(ctx context.Context, symbol string) (float64, error) {
	return f.price, nil
}

type fakeOrders struct {
	rec *callRecorder
}

func (f *fakeOrders) MarketBuy(ctx context.Context, symbol string, amount float64) (*models.OrderReceipt, error) {
	f.rec.record("buy")
	return &models.OrderReceipt{Symbol: symbol, Side: "BUY", Amount: amount, Outcome: models.OrderFilled}, nil
}

func (f *fakeOrders) MarketSell(ctx context.Context, symbol string, amount float64) (*models.OrderReceipt, error) {
	f.rec.record("sell")
	return &models.OrderReceipt{Symbol: symbol, Side: "SELL", Amount: amount, Outcome: models.OrderFilled}, nil
}

type fakeTrades struct {
	rec    *callRecorder
	nextID int64
}

func (f *fakeTrades) RecordOpen(ctx context.Context, symbol string, amount, entryPrice float64) (int64, error) {
	f.rec.record("open")
	f.nextID++
	return f.nextID, nil
}

func (f *fakeTrades) RecordClose(ctx context.Context, tradeID int64, result string) error {
	f.rec.record("close")
	return nil
}

func (f *fakeTrades) ListTrades(ctx context.Context, limit int) ([]*models.Trade, error) {
	return nil, nil
}

func (f *fakeTrades) Close() error {
	return nil
}

func newTestEngine(cfg *config.Config, market *fakeMarket, rec *callRecorder) *Engine {
	weights := strategy.NewWeightStore(cfg.Strategy)
	evaluator := strategy.NewEvaluator(cfg.Strategy, weights)
	return New(cfg, market, &fakeOrders{rec: rec}, &fakeTrades{rec: rec}, storage.NoopMarketStorage{}, weights, evaluator)
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	b := newBackoff(config.EngineConfig{BackoffSeedSeconds: 1, BackoffMaxSeconds: 300})

	// N-я выдержка равна min(300, 2^(N-1)) секунд
	want := []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 32 * time.Second, 64 * time.Second, 128 * time.Second,
		256 * time.Second, 300 * time.Second, 300 * time.Second,
	}
	for i, w := range want {
		if got := b.Duration(); got != w {
			t.Fatalf("выдержка №%d = %v, ожидалось %v", i+1, got, w)
		}
	}

	// Успешный цикл возвращает выдержку к начальной
	b.Reset()
	if got := b.Duration(); got != 1*time.Second {
		t.Fatalf("после сброса выдержка = %v, ожидалась 1s", got)
	}
}

func TestCycleOpensPositionRecordBeforeOrder(t *testing.T) {
	cfg := testConfig()
	rec := &callRecorder{}
	market := &fakeMarket{candles: buyWindow(), price: 96.2}
	eng := newTestEngine(cfg, market, rec)

	ctx, cancel := context.WithCancel(context.Background())
	if err := eng.cycle(ctx); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	events := rec.snapshot()
	if len(events) != 2 || events[0] != "open" || events[1] != "buy" {
		t.Fatalf("последовательность вызовов = %v, ожидалось [open buy]", events)
	}

	// Монитор порожден и завершается по отмене контекста
	cancel()
	done := make(chan struct{})
	go func() {
		eng.monitors.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("монитор не завершился после отмены контекста")
	}
}

func TestCycleShortWindowIsNotAnError(t *testing.T) {
	cfg := testConfig()
	rec := &callRecorder{}
	short := buyWindow()[:10]
	eng := newTestEngine(cfg, &fakeMarket{candles: short, price: 100}, rec)

	if err := eng.cycle(context.Background()); err != nil {
		t.Fatalf("короткое окно не должно быть ошибкой: %v", err)
	}
	if events := rec.snapshot(); len(events) != 0 {
		t.Fatalf("короткое окно открыло позицию: %v", events)
	}
}

func TestCycleFetchErrorPropagates(t *testing.T) {
	cfg := testConfig()
	eng := newTestEngine(cfg, &fakeMarket{err: errors.New("таймаут")}, &callRecorder{})

	if err := eng.cycle(context.Background()); err == nil {
		t.Fatal("ошибка получения свечей должна всплывать для выдержки")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testConfig()
	rec := &callRecorder{}
	// Плоское окно без сигнала: цикл крутится вхолостую
	flat := buyWindow()[:10]
	eng := newTestEngine(cfg, &fakeMarket{candles: flat, price: 100}, rec)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		eng.Run(ctx)
		close(done)
	}()

	time.Sleep(150 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("движок не остановился после отмены контекста")
	}
}
