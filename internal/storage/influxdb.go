// internal/storage/influxdb.go
package storage

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/skalibog/bast/internal/config"
	"github.com/skalibog/bast/pkg/models"
)

// MarketStorage интерфейс хранилища рыночной истории: свечи и результаты
// оценки сигналов. Хранилище не участвует в принятии решений — ядро пишет
// в него для последующего анализа.
type MarketStorage interface {
	SaveCandles(ctx context.Context, candles []*models.Candle) error
	SaveSignal(ctx context.Context, signal *models.SignalResult) error
	Close()
}

// NewMarketStorage возвращает InfluxDB-хранилище, если оно включено в
// конфигурации, иначе заглушку
func NewMarketStorage(cfg config.StorageConfig) (MarketStorage, error) {
	if !cfg.InfluxEnabled {
		return NoopMarketStorage{}, nil
	}
	return NewInfluxDBStorage(cfg)
}

// InfluxDBStorage реализует интерфейс MarketStorage с использованием InfluxDB
type InfluxDBStorage struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	org      string
	bucket   string
}

// NewInfluxDBStorage создает новое хранилище InfluxDB
func NewInfluxDBStorage(cfg config.StorageConfig) (*InfluxDBStorage, error) {
	client := influxdb2.NewClient(cfg.InfluxURL, cfg.InfluxToken)

	// Проверка соединения
	health, err := client.Health(context.Background())
	if err != nil {
		return nil, fmt.Errorf("ошибка соединения с InfluxDB: %w", err)
	}
	if health == nil || health.Status != "pass" {
		return nil, fmt.Errorf("InfluxDB не в состоянии 'pass': %+v", health)
	}

	writeAPI := client.WriteAPI(cfg.InfluxOrganization, cfg.InfluxBucket)

	return &InfluxDBStorage{
		client:   client,
		writeAPI: writeAPI,
		org:      cfg.InfluxOrganization,
		bucket:   cfg.InfluxBucket,
	}, nil
}

// Close закрывает соединение с базой данных
func (s *InfluxDBStorage) Close() {
	s.client.Close()
}

// SaveCandles сохраняет окно свечей
func (s *InfluxDBStorage) SaveCandles(ctx context.Context, candles []*models.Candle) error {
	for _, candle := range candles {
		point := influxdb2.NewPoint(
			"candles",
			map[string]string{
				"symbol":   candle.Symbol,
				"interval": candle.Interval,
			},
			map[string]interface{}{
				"open":   candle.Open,
				"high":   candle.High,
				"low":    candle.Low,
				"close":  candle.Close,
				"volume": candle.Volume,
			},
			candle.OpenTime,
		)
		s.writeAPI.WritePoint(point)
	}

	s.writeAPI.Flush()
	return nil
}

// SaveSignal сохраняет результат оценки сигнала
func (s *InfluxDBStorage) SaveSignal(ctx context.Context, signal *models.SignalResult) error {
	point := influxdb2.NewPoint(
		"signals",
		map[string]string{
			"symbol": signal.Symbol,
		},
		map[string]interface{}{
			"buy":        signal.Buy,
			"vetoed":     signal.Vetoed,
			"score":      signal.Score,
			"threshold":  signal.Threshold,
			"price":      signal.CurrentPrice,
			"components": fmt.Sprintf("%v", signal.Components),
		},
		signal.Timestamp,
	)

	s.writeAPI.WritePoint(point)
	s.writeAPI.Flush()

	return nil
}

// NoopMarketStorage заглушка хранилища рыночной истории, когда InfluxDB
// выключен в конфигурации
type NoopMarketStorage struct{}

func (NoopMarketStorage) SaveCandles(ctx context.Context, candles []*models.Candle) error {
	return nil
}

func (NoopMarketStorage) SaveSignal(ctx context.Context, signal *models.SignalResult) error {
	return nil
}

func (NoopMarketStorage) Close() {}
