package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"
)

// Config представляет полную конфигурацию приложения
type Config struct {
	Binance  BinanceConfig  `yaml:"binance"`
	Trading  TradingConfig  `yaml:"trading"`
	Strategy StrategyConfig `yaml:"strategy"`
	Engine   EngineConfig   `yaml:"engine"`
	Storage  StorageConfig  `yaml:"storage"`
	Server   ServerConfig   `yaml:"server"`
}

// BinanceConfig содержит настройки подключения к Binance
type BinanceConfig struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	Testnet   bool   `yaml:"testnet"`
}

// TradingConfig содержит настройки торговли
type TradingConfig struct {
	Symbol      string  `yaml:"symbol"`
	Interval    string  `yaml:"interval"`
	BuyUSD      float64 `yaml:"buy_usd"`
	LiveTrading bool    `yaml:"live_trading"`
}

// StrategyConfig содержит параметры стратегии и стартовые веса индикаторов
type StrategyConfig struct {
	EMAShortPeriod int     `yaml:"ema_short_period"`
	RSIPeriod      int     `yaml:"rsi_period"`
	RSIOversold    float64 `yaml:"rsi_oversold"`
	BollingerPeriod int    `yaml:"bollinger_period"`
	BollingerStd   float64 `yaml:"bollinger_std"`
	WedgeLookback  int     `yaml:"wedge_lookback"`

	EMAWeight       float64 `yaml:"ema_weight"`
	RSIWeight       float64 `yaml:"rsi_weight"`
	BollingerWeight float64 `yaml:"bollinger_weight"`
	WedgeWeight     float64 `yaml:"wedge_weight"`
	VolumeWeight    float64 `yaml:"volume_weight"`

	ScoreThreshold           float64 `yaml:"score_threshold"`
	ResistanceBufferPercent  float64 `yaml:"resistance_buffer_percent"`
	BreakoutVolumeMultiplier float64 `yaml:"breakout_volume_multiplier"`

	FirstTPPercent float64 `yaml:"first_tp_percent"`
	ATRPeriod      int     `yaml:"atr_period"`
	ATRMultiplier  float64 `yaml:"atr_multiplier"`

	// Границы дрейфа весов; нули отключают ограничение
	WeightMin float64 `yaml:"weight_min"`
	WeightMax float64 `yaml:"weight_max"`
}

// EngineConfig содержит настройки цикла опроса рынка
type EngineConfig struct {
	CandleLimit        int `yaml:"candle_limit"`
	PollSeconds        int `yaml:"poll_seconds"`
	MonitorPollSeconds int `yaml:"monitor_poll_seconds"`
	BackoffSeedSeconds int `yaml:"backoff_seed_seconds"`
	BackoffMaxSeconds  int `yaml:"backoff_max_seconds"`
}

// StorageConfig содержит настройки хранилищ
type StorageConfig struct {
	SQLitePath string `yaml:"sqlite_path"`

	InfluxEnabled      bool   `yaml:"influx_enabled"`
	InfluxURL          string `yaml:"influx_url"`
	InfluxToken        string `yaml:"influx_token"`
	InfluxOrganization string `yaml:"influx_organization"`
	InfluxBucket       string `yaml:"influx_bucket"`
}

// ServerConfig содержит настройки сервера раздачи рыночных данных
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Load загружает конфигурацию из файла и применяет переменные окружения
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла конфигурации: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("ошибка разбора файла конфигурации: %w", err)
	}

	applyEnv(&config)
	applyDefaults(&config)

	if config.Trading.Symbol == "" {
		return nil, fmt.Errorf("не задан торговый символ")
	}

	return &config, nil
}

// applyEnv применяет переменные окружения поверх файла конфигурации.
// Учетные данные живут только в окружении.
func applyEnv(cfg *Config) {
	if v := os.Getenv("TRADING_SYMBOL"); v != "" {
		cfg.Trading.Symbol = v
	}
	if v := os.Getenv("BUY_USD_AMOUNT"); v != "" {
		if amount, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Trading.BuyUSD = amount
		}
	}
	if v := os.Getenv("LIVE_TRADING"); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes":
			cfg.Trading.LiveTrading = true
		default:
			cfg.Trading.LiveTrading = false
		}
	}
	if v := os.Getenv("BINANCE_API_KEY"); v != "" {
		cfg.Binance.APIKey = v
	}
	if v := os.Getenv("BINANCE_API_SECRET"); v != "" {
		cfg.Binance.APISecret = v
	}
}

// applyDefaults заполняет параметры стратегии значениями по умолчанию
func applyDefaults(cfg *Config) {
	s := &cfg.Strategy
	if s.EMAShortPeriod == 0 {
		s.EMAShortPeriod = 20
	}
	if s.RSIPeriod == 0 {
		s.RSIPeriod = 14
	}
	if s.RSIOversold == 0 {
		s.RSIOversold = 30
	}
	if s.BollingerPeriod == 0 {
		s.BollingerPeriod = 20
	}
	if s.BollingerStd == 0 {
		s.BollingerStd = 2
	}
	if s.WedgeLookback == 0 {
		s.WedgeLookback = 10
	}
	if s.EMAWeight == 0 {
		s.EMAWeight = 1.0
	}
	if s.RSIWeight == 0 {
		s.RSIWeight = 0.8
	}
	if s.BollingerWeight == 0 {
		s.BollingerWeight = 0.5
	}
	if s.WedgeWeight == 0 {
		s.WedgeWeight = 0.7
	}
	if s.VolumeWeight == 0 {
		s.VolumeWeight = 0.6
	}
	if s.ScoreThreshold == 0 {
		s.ScoreThreshold = 2.5
	}
	if s.ResistanceBufferPercent == 0 {
		s.ResistanceBufferPercent = 0.002
	}
	if s.BreakoutVolumeMultiplier == 0 {
		s.BreakoutVolumeMultiplier = 2
	}
	if s.FirstTPPercent == 0 {
		s.FirstTPPercent = 0.01
	}
	if s.ATRPeriod == 0 {
		s.ATRPeriod = 14
	}
	if s.ATRMultiplier == 0 {
		s.ATRMultiplier = 1.5
	}

	e := &cfg.Engine
	if e.CandleLimit == 0 {
		e.CandleLimit = 100
	}
	if e.PollSeconds == 0 {
		e.PollSeconds = 30
	}
	if e.MonitorPollSeconds == 0 {
		e.MonitorPollSeconds = 15
	}
	if e.BackoffSeedSeconds == 0 {
		e.BackoffSeedSeconds = 1
	}
	if e.BackoffMaxSeconds == 0 {
		e.BackoffMaxSeconds = 300
	}

	if cfg.Trading.Interval == "" {
		cfg.Trading.Interval = "1m"
	}
	if cfg.Trading.BuyUSD == 0 {
		cfg.Trading.BuyUSD = 10
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "trades.db"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}
}
