// Package server отдает рыночные данные и журнал сделок по HTTP и
// WebSocket: снимки свечей, потоковый тикер и обновления свечей.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/skalibog/bast/internal/storage"
	"github.com/skalibog/bast/internal/symbols"
	"github.com/skalibog/bast/pkg/logger"
	"github.com/skalibog/bast/pkg/models"
)

// MarketData источник рыночных данных для HTTP и WebSocket ручек
type MarketData interface {
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]*models.Candle, error)
	GetLastPrice(ctx context.Context, symbol string) (float64, error)
}

// Server обслуживает HTTP и WebSocket клиентов
type Server struct {
	cfg      ServerOptions
	market   MarketData
	trades   storage.TradeStore
	resolver *symbols.Resolver
	markets  []*models.Market

	// Интервалы опроса вынесены в поля ради тестов
	tickerPoll time.Duration
	ohlcvPoll  time.Duration
}

// ServerOptions параметры HTTP-сервера
type ServerOptions struct {
	Addr string
}

// New создает сервер
func New(opts ServerOptions, market MarketData, trades storage.TradeStore, markets []*models.Market) *Server {
	return &Server{
		cfg:        opts,
		market:     market,
		trades:     trades,
		resolver:   symbols.NewResolver(markets),
		markets:    markets,
		tickerPoll: 2 * time.Second,
		ohlcvPoll:  30 * time.Second,
	}
}

// Handler возвращает маршрутизатор сервера
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /markets", s.handleMarkets)
	mux.HandleFunc("GET /ohlcv/{symbol}", s.handleOHLCV)
	mux.HandleFunc("GET /trades", s.handleTrades)
	mux.HandleFunc("/ws/ticker/{symbol}", s.handleTickerWS)
	mux.HandleFunc("/ws/ohlcv/{symbol}/{interval}", s.handleOHLCVWS)
	return mux
}

// Run обслуживает клиентов до отмены контекста
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP-сервер запущен", zap.String("addr", s.cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// Проводные структуры ответов: модели наружу не отдаются как есть
type candleOut struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

type marketOut struct {
	Symbol string `json:"symbol"`
	Base   string `json:"base"`
	Quote  string `json:"quote"`
	Active bool   `json:"active"`
}

type tradeOut struct {
	ID         int64   `json:"id"`
	Symbol     string  `json:"symbol"`
	Amount     float64 `json:"amount"`
	EntryPrice float64 `json:"entry_price"`
	Result     string  `json:"result"`
	OpenTime   string  `json:"open_time"`
	CloseTime  string  `json:"close_time,omitempty"`
}

func candleToOut(c *models.Candle) candleOut {
	return candleOut{
		Timestamp: c.OpenTime.UnixMilli(),
		Open:      c.Open,
		High:      c.High,
		Low:       c.Low,
		Close:     c.Close,
		Volume:    c.Volume,
	}
}

func candlesToOut(candles []*models.Candle) []candleOut {
	out := make([]candleOut, 0, len(candles))
	for _, c := range candles {
		out = append(out, candleToOut(c))
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Ошибка записи JSON-ответа", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "bast API is running",
		"version": "1.0.0",
	})
}

// handleMarkets отдает не более 100 активных рынков
func (s *Server) handleMarkets(w http.ResponseWriter, r *http.Request) {
	const maxMarkets = 100

	out := make([]marketOut, 0, maxMarkets)
	for _, m := range s.markets {
		if !m.Active {
			continue
		}
		out = append(out, marketOut{Symbol: m.Symbol, Base: m.Base, Quote: m.Quote, Active: m.Active})
		if len(out) == maxMarkets {
			break
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"markets": out})
}

func (s *Server) handleOHLCV(w http.ResponseWriter, r *http.Request) {
	symbol, err := s.resolver.Resolve(r.PathValue("symbol"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	interval := r.URL.Query().Get("interval")
	if interval == "" {
		interval = "1m"
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	candles, err := s.market.GetKlines(r.Context(), symbol, interval, limit)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":   symbol,
		"interval": interval,
		"candles":  candlesToOut(candles),
	})
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	trades, err := s.trades.ListTrades(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]tradeOut, 0, len(trades))
	for _, t := range trades {
		item := tradeOut{
			ID:         t.ID,
			Symbol:     t.Symbol,
			Amount:     t.Amount,
			EntryPrice: t.EntryPrice,
			Result:     t.Result,
			OpenTime:   t.OpenTime.UTC().Format(time.RFC3339Nano),
		}
		if t.CloseTime != nil {
			item.CloseTime = t.CloseTime.UTC().Format(time.RFC3339Nano)
		}
		out = append(out, item)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"trades": out})
}
