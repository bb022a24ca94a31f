package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/skalibog/bast/internal/config"
	"github.com/skalibog/bast/internal/engine"
	"github.com/skalibog/bast/internal/exchange"
	"github.com/skalibog/bast/internal/server"
	"github.com/skalibog/bast/internal/storage"
	"github.com/skalibog/bast/internal/strategy"
	"github.com/skalibog/bast/internal/symbols"
	"github.com/skalibog/bast/pkg/logger"
)

func main() {
	logger.Init()
	defer logger.GetLogger().Sync()

	// Обработка флагов командной строки
	configPath := flag.String("config", "config.yaml", "путь к файлу конфигурации")
	flag.Parse()

	// Проверяем наличие файла конфигурации
	logger.Info("Проверка наличия файла конфигурации", zap.String("path", *configPath))
	if _, err := os.Stat(*configPath); os.IsNotExist(err) {
		logger.Fatal("Файл конфигурации не найден", zap.String("path", *configPath))
	}

	// Загружаем конфигурацию
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Ошибка загрузки конфигурации", zap.Error(err))
	}

	// Контекст отменяется сигналами завершения
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Журнал сделок обязателен: без него позиции нельзя сопровождать
	trades, err := storage.NewSQLiteTradeStore(cfg.Storage.SQLitePath)
	if err != nil {
		logger.Fatal("Ошибка инициализации журнала сделок", zap.Error(err))
	}
	defer trades.Close()

	// Рыночная история опциональна
	history, err := storage.NewMarketStorage(cfg.Storage)
	if err != nil {
		logger.Fatal("Ошибка инициализации хранилища рыночной истории", zap.Error(err))
	}
	defer history.Close()

	// Клиент биржи
	client, err := exchange.NewBinanceClient(cfg.Binance)
	if err != nil {
		logger.Fatal("Ошибка инициализации клиента биржи", zap.Error(err))
	}

	// Разрешаем торговый символ по рынкам биржи
	markets, err := client.GetMarkets(ctx)
	if err != nil {
		logger.Fatal("Ошибка загрузки рынков биржи", zap.Error(err))
	}
	resolved, err := symbols.NewResolver(markets).Resolve(cfg.Trading.Symbol)
	if err != nil {
		logger.Fatal("Ошибка разрешения торгового символа",
			zap.String("symbol", cfg.Trading.Symbol), zap.Error(err))
	}
	if resolved != cfg.Trading.Symbol {
		logger.Info("Торговый символ разрешен",
			zap.String("from", cfg.Trading.Symbol), zap.String("to", resolved))
		cfg.Trading.Symbol = resolved
	}

	// Стратегия и исполнение ордеров
	weights := strategy.NewWeightStore(cfg.Strategy)
	evaluator := strategy.NewEvaluator(cfg.Strategy, weights)
	orders := exchange.NewOrderExecutor(cfg, client)

	eng := engine.New(cfg, client, orders, trades, history, weights, evaluator)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		eng.Run(gctx)
		return nil
	})
	if cfg.Server.Enabled {
		srv := server.New(server.ServerOptions{Addr: cfg.Server.Addr}, client, trades, markets)
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Fatal("Ошибка при работе сервиса", zap.Error(err))
	}
	logger.Info("Завершение работы")
}
