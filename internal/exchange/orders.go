package exchange

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skalibog/bast/internal/config"
	"github.com/skalibog/bast/pkg/logger"
	"github.com/skalibog/bast/pkg/models"
)

// OrderExecutor интерфейс размещения рыночных ордеров
type OrderExecutor interface {
	MarketBuy(ctx context.Context, symbol string, amount float64) (*models.OrderReceipt, error)
	MarketSell(ctx context.Context, symbol string, amount float64) (*models.OrderReceipt, error)
}

// NewOrderExecutor выбирает исполнителя ордеров: боевой только при явно
// включенной торговле И наличии обоих ключей, иначе безопасный dry-run
func NewOrderExecutor(cfg *config.Config, client *BinanceClient) OrderExecutor {
	if cfg.Trading.LiveTrading && cfg.Binance.APIKey != "" && cfg.Binance.APISecret != "" {
		logger.Info("Исполнение ордеров: боевой режим", zap.String("symbol", cfg.Trading.Symbol))
		return &LiveExecutor{spot: client.Spot()}
	}
	logger.Info("Исполнение ордеров: режим dry-run", zap.String("symbol", cfg.Trading.Symbol))
	return &DryRunExecutor{}
}

// DryRunExecutor возвращает синтетические квитанции, не обращаясь к бирже
type DryRunExecutor struct{}

// MarketBuy имитирует рыночную покупку
func (e *DryRunExecutor) MarketBuy(ctx context.Context, symbol string, amount float64) (*models.OrderReceipt, error) {
	return e.receipt(symbol, "BUY", amount), nil
}

// MarketSell имитирует рыночную продажу
func (e *DryRunExecutor) MarketSell(ctx context.Context, symbol string, amount float64) (*models.OrderReceipt, error) {
	return e.receipt(symbol, "SELL", amount), nil
}

func (e *DryRunExecutor) receipt(symbol, side string, amount float64) *models.OrderReceipt {
	receipt := &models.OrderReceipt{
		OrderID:   "dry-run-" + uuid.NewString(),
		Symbol:    symbol,
		Side:      side,
		Amount:    amount,
		Outcome:   models.OrderFilled,
		DryRun:    true,
		Timestamp: time.Now(),
	}
	logger.Info("DRY-RUN ордер",
		zap.String("symbol", symbol),
		zap.String("side", side),
		zap.Float64("amount", amount))
	return receipt
}

// LiveExecutor размещает настоящие рыночные ордера на споте Binance
type LiveExecutor struct {
	spot *binance.Client
}

// MarketBuy размещает рыночную покупку
func (e *LiveExecutor) MarketBuy(ctx context.Context, symbol string, amount float64) (*models.OrderReceipt, error) {
	return e.placeMarket(ctx, symbol, binance.SideTypeBuy, amount)
}

// MarketSell размещает рыночную продажу
func (e *LiveExecutor) MarketSell(ctx context.Context, symbol string, amount float64) (*models.OrderReceipt, error) {
	return e.placeMarket(ctx, symbol, binance.SideTypeSell, amount)
}

// placeMarket размещает рыночный ордер и классифицирует исход: подтвержденное
// исполнение, отказ биржи или неизвестность (сетевая ошибка). Неизвестный
// исход не считается исполнением — решение за вызывающей стороной.
func (e *LiveExecutor) placeMarket(ctx context.Context, symbol string, side binance.SideType, amount float64) (*models.OrderReceipt, error) {
	receipt := &models.OrderReceipt{
		Symbol:    symbol,
		Side:      string(side),
		Amount:    amount,
		Timestamp: time.Now(),
	}

	quantity := strconv.FormatFloat(amount, 'f', 8, 64)
	res, err := e.spot.NewCreateOrderService().
		Symbol(symbol).
		Side(side).
		Type(binance.OrderTypeMarket).
		Quantity(quantity).
		Do(ctx)
	if err != nil {
		var apiErr *common.APIError
		if errors.As(err, &apiErr) {
			// Биржа ответила отказом: ордер точно не размещен
			receipt.Outcome = models.OrderRejected
		} else {
			// Ответ не получен: ордер мог исполниться
			receipt.Outcome = models.OrderUnknown
		}
		logger.Error("Ошибка размещения ордера",
			zap.String("symbol", symbol),
			zap.String("side", string(side)),
			zap.String("outcome", string(receipt.Outcome)),
			zap.Error(err))
		return receipt, err
	}

	receipt.OrderID = strconv.FormatInt(res.OrderID, 10)
	if res.Status == binance.OrderStatusTypeFilled {
		receipt.Outcome = models.OrderFilled
	} else {
		// Рыночный ордер в неожиданном статусе: требует сверки
		receipt.Outcome = models.OrderUnknown
	}

	logger.Info("Ордер размещен",
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.String("order_id", receipt.OrderID),
		zap.String("status", string(res.Status)))
	return receipt, nil
}
