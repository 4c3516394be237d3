package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Database DatabaseConfig
	Exchange ExchangeConfig
	Bot      BotConfig
	Ops      OpsConfig
	Logging  LoggingConfig

	// Путь к YAML файлу с аккаунтами и таблицей символов
	AccountsFile string

	// Ключ AES-256 для расшифровки api_secret в файле аккаунтов.
	// Пусто = секреты хранятся открытым текстом.
	SecretsKey string
}

// DatabaseConfig - настройки подключения к БД
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// ExchangeConfig - настройки клиента биржи
type ExchangeConfig struct {
	BaseURL string
	WSURL   string

	// Rate limit на аккаунт: запросов в секунду и burst
	RequestRate  float64
	RequestBurst float64

	// Включить WebSocket поток тикеров как кэш цен
	EnableTickerFeed bool
}

// BotConfig - параметры цикла накрутки объёма
type BotConfig struct {
	// Целевые объёмы (могут переопределяться на уровне аккаунта)
	SpotTargetVolume float64
	PerpTargetVolume float64

	// Перпетуальный режим: сравниваем perp-объём и ставим плечо
	IsPerpetual bool
	Leverage    float64

	// Доля доступного баланса, идущая в ордер (остаток - на комиссии)
	BalanceFraction float64

	// Правила выхода
	Slippage      float64       // доля роста цены для профитного выхода
	HoldTime      time.Duration // минимальное удержание до временных правил
	MaxCheckPrice int           // эскалаций до принудительного закрытия

	// Лимитные ордера
	OrderStyle       string        // "market" или "limit"
	CloseOrderStyle  string        // стиль ордера закрытия
	LimitOrderDiff   float64       // смещение цены лимитника от рынка
	LimitHoldTime    time.Duration // сколько держим неисполненный лимитник
	FillPollInterval time.Duration // период опроса открытых ордеров

	// Пейсинг цикла: равномерно случайная пауза в [PacingMin, PacingMax]
	PacingMin time.Duration
	PacingMax time.Duration

	// Базовая задержка восстановления после ошибки цикла
	ErrorRetryDelay time.Duration
}

// OpsConfig - служебный HTTP (health + метрики)
type OpsConfig struct {
	Enabled bool
	Listen  string
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level    string
	Format   string // json или console
	File     string // пусто = только stdout
	MaxSize  int    // МБ до ротации
	MaxAge   int    // дней хранения
	Backups  int
	Compress bool
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "volume_bot"),
			User:     getEnv("DB_USER", "bot"),
			Password: getEnv("DB_PASSWORD", ""),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Exchange: ExchangeConfig{
			BaseURL:          getEnv("ARKHAM_BASE_URL", "https://arkm.com/api"),
			WSURL:            getEnv("ARKHAM_WS_URL", "wss://arkm.com/ws"),
			RequestRate:      getEnvAsFloat("REQUEST_RATE", 5),
			RequestBurst:     getEnvAsFloat("REQUEST_BURST", 10),
			EnableTickerFeed: getEnvAsBool("ENABLE_TICKER_FEED", false),
		},
		Bot: BotConfig{
			SpotTargetVolume: getEnvAsFloat("SPOT_TARGET_VOLUME", 10000),
			PerpTargetVolume: getEnvAsFloat("PERP_TARGET_VOLUME", 0),
			IsPerpetual:      getEnvAsBool("IS_PERPETUAL", false),
			Leverage:         getEnvAsFloat("LEVERAGE", 1),
			BalanceFraction:  getEnvAsFloat("BALANCE_FRACTION", 0.9),

			Slippage:      getEnvAsFloat("SLIPPAGE", 0.005),
			HoldTime:      getEnvAsDuration("HOLD_TIME", 5*time.Minute),
			MaxCheckPrice: getEnvAsInt("MAX_CHECK_PRICE", 10),

			OrderStyle:       getEnv("ORDER_STYLE", "market"),
			CloseOrderStyle:  getEnv("CLOSE_ORDER_STYLE", "market"),
			LimitOrderDiff:   getEnvAsFloat("LIMIT_ORDER_DIFF", 0.0005),
			LimitHoldTime:    getEnvAsDuration("LIMIT_HOLD_TIME", 2*time.Minute),
			FillPollInterval: getEnvAsDuration("FILL_POLL_INTERVAL", 5*time.Second),

			PacingMin: getEnvAsDuration("PACING_MIN", 20*time.Second),
			PacingMax: getEnvAsDuration("PACING_MAX", 60*time.Second),

			ErrorRetryDelay: getEnvAsDuration("ERROR_RETRY_DELAY", 10*time.Second),
		},
		Ops: OpsConfig{
			Enabled: getEnvAsBool("OPS_ENABLED", true),
			Listen:  getEnv("OPS_LISTEN", "127.0.0.1:9090"),
		},
		Logging: LoggingConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			Format:   getEnv("LOG_FORMAT", "console"),
			File:     getEnv("LOG_FILE", ""),
			MaxSize:  getEnvAsInt("LOG_MAX_SIZE", 100),
			MaxAge:   getEnvAsInt("LOG_MAX_AGE", 14),
			Backups:  getEnvAsInt("LOG_BACKUPS", 7),
			Compress: getEnvAsBool("LOG_COMPRESS", true),
		},
		AccountsFile: getEnv("ACCOUNTS_FILE", "accounts.yaml"),
		SecretsKey:   getEnv("SECRETS_KEY", ""),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate проверяет диапазоны параметров
func (c *Config) validate() error {
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	b := &c.Bot

	if b.SpotTargetVolume <= 0 && b.PerpTargetVolume <= 0 {
		return fmt.Errorf("at least one of SPOT_TARGET_VOLUME / PERP_TARGET_VOLUME must be positive")
	}

	if b.BalanceFraction <= 0 || b.BalanceFraction > 1 {
		return fmt.Errorf("BALANCE_FRACTION must be in (0, 1], got %v", b.BalanceFraction)
	}

	if b.Leverage < 1 {
		return fmt.Errorf("LEVERAGE must be >= 1, got %v", b.Leverage)
	}

	if b.Slippage < 0 {
		return fmt.Errorf("SLIPPAGE cannot be negative, got %v", b.Slippage)
	}

	if b.MaxCheckPrice < 1 {
		return fmt.Errorf("MAX_CHECK_PRICE must be >= 1, got %d", b.MaxCheckPrice)
	}

	if b.HoldTime <= 0 {
		return fmt.Errorf("HOLD_TIME must be positive, got %v", b.HoldTime)
	}

	if b.OrderStyle != "market" && b.OrderStyle != "limit" {
		return fmt.Errorf("ORDER_STYLE must be market or limit, got %q", b.OrderStyle)
	}

	if b.CloseOrderStyle != "market" && b.CloseOrderStyle != "limit" {
		return fmt.Errorf("CLOSE_ORDER_STYLE must be market or limit, got %q", b.CloseOrderStyle)
	}

	if b.OrderStyle == "limit" {
		if b.LimitOrderDiff <= 0 {
			return fmt.Errorf("LIMIT_ORDER_DIFF must be positive for limit orders, got %v", b.LimitOrderDiff)
		}
		if b.LimitHoldTime <= 0 {
			return fmt.Errorf("LIMIT_HOLD_TIME must be positive for limit orders, got %v", b.LimitHoldTime)
		}
		if b.FillPollInterval <= 0 {
			return fmt.Errorf("FILL_POLL_INTERVAL must be positive, got %v", b.FillPollInterval)
		}
	}

	if b.PacingMin <= 0 || b.PacingMax < b.PacingMin {
		return fmt.Errorf("pacing window invalid: [%v, %v]", b.PacingMin, b.PacingMax)
	}

	if b.ErrorRetryDelay <= 0 {
		return fmt.Errorf("ERROR_RETRY_DELAY must be positive, got %v", b.ErrorRetryDelay)
	}

	if c.SecretsKey != "" && len(c.SecretsKey) != 32 {
		return fmt.Errorf("SECRETS_KEY must be exactly 32 bytes for AES-256, got %d", len(c.SecretsKey))
	}

	return nil
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// TargetVolume возвращает целевой объём для активного режима
func (b BotConfig) TargetVolume() float64 {
	if b.IsPerpetual {
		return b.PerpTargetVolume
	}
	return b.SpotTargetVolume
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
