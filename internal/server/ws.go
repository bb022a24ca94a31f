package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/skalibog/bast/pkg/logger"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

type tickerMessage struct {
	Type      string  `json:"type"`
	Symbol    string  `json:"symbol"`
	Last      float64 `json:"last"`
	Timestamp int64   `json:"timestamp"`
}

type ohlcvSnapshot struct {
	Type     string      `json:"type"`
	Symbol   string      `json:"symbol"`
	Interval string      `json:"interval"`
	Data     []candleOut `json:"data"`
}

type ohlcvUpdate struct {
	Type     string    `json:"type"`
	Symbol   string    `json:"symbol"`
	Interval string    `json:"interval"`
	Candle   candleOut `json:"candle"`
}

// handleTickerWS шлет последнюю цену символа каждые две секунды, пока клиент
// подключен
func (s *Server) handleTickerWS(w http.ResponseWriter, r *http.Request) {
	symbol, err := s.resolver.Resolve(r.PathValue("symbol"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Ошибка апгрейда WebSocket", zap.Error(err))
		return
	}
	defer conn.Close()

	// Отбрасываем входящие кадры и узнаем о разрыве соединения
	go discardReads(conn)

	logger.Info("Тикер-клиент подключен", zap.String("symbol", symbol))

	ticker := time.NewTicker(s.tickerPoll)
	defer ticker.Stop()

	for {
		price, err := s.market.GetLastPrice(r.Context(), symbol)
		if err != nil {
			logger.Error("Ошибка получения цены для тикер-потока",
				zap.String("symbol", symbol), zap.Error(err))
		} else {
			msg := tickerMessage{
				Type:      "ticker",
				Symbol:    symbol,
				Last:      price,
				Timestamp: time.Now().UnixMilli(),
			}
			if err := conn.WriteJSON(msg); err != nil {
				logger.Info("Тикер-клиент отключен", zap.String("symbol", symbol))
				return
			}
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

// handleOHLCVWS отправляет начальный снимок из 100 свечей, затем обновления
// последней свечи каждые 30 секунд
func (s *Server) handleOHLCVWS(w http.ResponseWriter, r *http.Request) {
	symbol, err := s.resolver.Resolve(r.PathValue("symbol"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	interval := r.PathValue("interval")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Ошибка апгрейда WebSocket", zap.Error(err))
		return
	}
	defer conn.Close()

	go discardReads(conn)

	logger.Info("OHLCV-клиент подключен",
		zap.String("symbol", symbol), zap.String("interval", interval))

	if candles, err := s.market.GetKlines(r.Context(), symbol, interval, 100); err != nil {
		logger.Error("Ошибка начального снимка OHLCV",
			zap.String("symbol", symbol), zap.Error(err))
	} else {
		snapshot := ohlcvSnapshot{
			Type:     "initial_ohlcv",
			Symbol:   symbol,
			Interval: interval,
			Data:     candlesToOut(candles),
		}
		if err := conn.WriteJSON(snapshot); err != nil {
			return
		}
	}

	ticker := time.NewTicker(s.ohlcvPoll)
	defer ticker.Stop()

	var lastOpenTime time.Time
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		candles, err := s.market.GetKlines(r.Context(), symbol, interval, 2)
		if err != nil {
			logger.Error("Ошибка обновления OHLCV",
				zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		if len(candles) == 0 {
			continue
		}

		latest := candles[len(candles)-1]
		if latest.OpenTime.Equal(lastOpenTime) {
			continue
		}

		update := ohlcvUpdate{
			Type:     "ohlcv_update",
			Symbol:   symbol,
			Interval: interval,
			Candle:   candleToOut(latest),
		}
		if err := conn.WriteJSON(update); err != nil {
			logger.Info("OHLCV-клиент отключен", zap.String("symbol", symbol))
			return
		}
		lastOpenTime = latest.OpenTime
	}
}

// discardReads вычитывает входящие кадры до закрытия соединения
func discardReads(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
