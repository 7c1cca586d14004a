package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Risk     RiskConfig
	Contract ContractConfig
	Resolver ResolverConfig
	Executor ExecutorConfig
	Logging  LoggingConfig
}

// ServerConfig - настройки HTTP сервера (status API + /metrics)
type ServerConfig struct {
	Port int
	Host string
}

// DatabaseConfig - настройки подключения к БД (reporting sink)
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// RiskConfig - конфигурация риск-менеджера
//
// Все лимиты процессные и неизменяемые после старта.
type RiskConfig struct {
	InitialEquity float64 // стартовый капитал

	MaxPositionSize float64 // максимальная доля капитала в одной позиции
	MaxDrawdown     float64 // максимальная просадка (доля от пика equity)
	DailyLossLimit  float64 // дневной лимит убытка (доля от equity)
	PositionLimit   int     // максимум одновременных позиций
	RiskPerTrade    float64 // риск на сделку (доля от equity)
	LeverageLimit   float64 // лимит суммарной экспозиции (множитель equity)

	CorrelationLimit   float64 // лимит корреляции с открытыми позициями
	MinDiversification int     // с какого числа позиций проверять среднюю корреляцию

	StopLossATRMultiple   float64 // множитель ATR для стоп-лосса
	TakeProfitATRMultiple float64 // множитель ATR для тейк-профита

	MaxLeverage              float64 // максимальное плечо контрактной позиции
	MaxPositionValue         float64 // максимальная стоимость одной позиции
	MinMaintenanceMarginRate float64 // минимальная ставка поддерживающей маржи

	FundingIntervalHours int // интервал списания funding (часы)

	LiquidationWarnThreshold float64 // предупреждение при приближении к ликвидации
	MarginCallThreshold      float64 // порог margin call
}

// ContractConfig - конфигурация контрактной торговли
type ContractConfig struct {
	EnabledPairs    []string // allowlist символов для контрактов
	LeverageOptions []int    // допустимые плечи
	MarginTypes     []string // поддерживаемые режимы маржи
}

// ResolverConfig - настройки резолвера цен
type ResolverConfig struct {
	CallTimeout    time.Duration // таймаут одного запроса к источнику
	MaxRetries     int           // попыток на источник
	RetryBaseDelay time.Duration // начальная задержка backoff
	RetryMaxDelay  time.Duration // максимальная задержка backoff
}

// ExecutorConfig - настройки исполнителя и мониторинг-цикла
type ExecutorConfig struct {
	TickInterval    time.Duration // базовый интервал мониторинга
	MaxTickInterval time.Duration // потолок при backoff после ошибок
	TickTimeout     time.Duration // таймаут фазы резолва цен в тике
	ShutdownTimeout time.Duration // таймаут закрытия позиций при остановке
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnvAsInt("SERVER_PORT", 8080),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "tradecore"),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Risk: RiskConfig{
			InitialEquity: getEnvAsFloat("INITIAL_EQUITY", 100000.0),

			MaxPositionSize: getEnvAsFloat("MAX_POSITION_SIZE", 0.1),
			MaxDrawdown:     getEnvAsFloat("MAX_DRAWDOWN", 0.2),
			DailyLossLimit:  getEnvAsFloat("DAILY_LOSS_LIMIT", 0.05),
			PositionLimit:   getEnvAsInt("POSITION_LIMIT", 10),
			RiskPerTrade:    getEnvAsFloat("RISK_PER_TRADE", 0.01),
			LeverageLimit:   getEnvAsFloat("LEVERAGE_LIMIT", 3.0),

			CorrelationLimit:   getEnvAsFloat("CORRELATION_LIMIT", 0.7),
			MinDiversification: getEnvAsInt("MIN_DIVERSIFICATION", 3),

			StopLossATRMultiple:   getEnvAsFloat("STOP_LOSS_ATR", 2.0),
			TakeProfitATRMultiple: getEnvAsFloat("TAKE_PROFIT_ATR", 3.0),

			MaxLeverage:              getEnvAsFloat("MAX_LEVERAGE", 3.0),
			MaxPositionValue:         getEnvAsFloat("MAX_POSITION_VALUE", 100000.0),
			MinMaintenanceMarginRate: getEnvAsFloat("MIN_MAINTENANCE_MARGIN", 0.005),

			FundingIntervalHours: getEnvAsInt("FUNDING_INTERVAL_HOURS", 8),

			LiquidationWarnThreshold: getEnvAsFloat("LIQUIDATION_WARN_THRESHOLD", 0.05),
			MarginCallThreshold:      getEnvAsFloat("MARGIN_CALL_THRESHOLD", 0.1),
		},
		Contract: ContractConfig{
			EnabledPairs:    getEnvAsSlice("CONTRACT_PAIRS", []string{"BTC/USDT", "ETH/USDT"}),
			LeverageOptions: getEnvAsIntSlice("CONTRACT_LEVERAGE_OPTIONS", []int{1, 2, 3}),
			MarginTypes:     getEnvAsSlice("CONTRACT_MARGIN_TYPES", []string{"isolated", "cross"}),
		},
		Resolver: ResolverConfig{
			CallTimeout:    getEnvAsDuration("RESOLVER_CALL_TIMEOUT", 5*time.Second),
			MaxRetries:     getEnvAsInt("RESOLVER_MAX_RETRIES", 3),
			RetryBaseDelay: getEnvAsDuration("RESOLVER_RETRY_BASE_DELAY", 1*time.Second),
			RetryMaxDelay:  getEnvAsDuration("RESOLVER_RETRY_MAX_DELAY", 30*time.Second),
		},
		Executor: ExecutorConfig{
			TickInterval:    getEnvAsDuration("TICK_INTERVAL", 1*time.Second),
			MaxTickInterval: getEnvAsDuration("MAX_TICK_INTERVAL", 30*time.Second),
			TickTimeout:     getEnvAsDuration("TICK_TIMEOUT", 10*time.Second),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Валидация числовых диапазонов
	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Risk.InitialEquity <= 0 {
		return fmt.Errorf("INITIAL_EQUITY must be positive, got %v", c.Risk.InitialEquity)
	}

	if c.Risk.RiskPerTrade <= 0 || c.Risk.RiskPerTrade > 1 {
		return fmt.Errorf("RISK_PER_TRADE must be in (0, 1], got %v", c.Risk.RiskPerTrade)
	}

	if c.Risk.MaxDrawdown <= 0 || c.Risk.MaxDrawdown > 1 {
		return fmt.Errorf("MAX_DRAWDOWN must be in (0, 1], got %v", c.Risk.MaxDrawdown)
	}

	if c.Risk.PositionLimit < 1 {
		return fmt.Errorf("POSITION_LIMIT must be at least 1, got %d", c.Risk.PositionLimit)
	}

	if c.Risk.MaxLeverage < 1 {
		return fmt.Errorf("MAX_LEVERAGE must be at least 1, got %v", c.Risk.MaxLeverage)
	}

	if c.Risk.MinMaintenanceMarginRate <= 0 || c.Risk.MinMaintenanceMarginRate >= 1 {
		return fmt.Errorf("MIN_MAINTENANCE_MARGIN must be in (0, 1), got %v", c.Risk.MinMaintenanceMarginRate)
	}

	if c.Risk.FundingIntervalHours < 1 || c.Risk.FundingIntervalHours > 24 {
		return fmt.Errorf("FUNDING_INTERVAL_HOURS must be between 1 and 24, got %d", c.Risk.FundingIntervalHours)
	}

	if c.Resolver.MaxRetries < 1 || c.Resolver.MaxRetries > 10 {
		return fmt.Errorf("RESOLVER_MAX_RETRIES must be between 1 and 10, got %d", c.Resolver.MaxRetries)
	}

	if c.Resolver.CallTimeout <= 0 {
		return fmt.Errorf("RESOLVER_CALL_TIMEOUT must be positive, got %v", c.Resolver.CallTimeout)
	}

	if c.Executor.TickInterval <= 0 {
		return fmt.Errorf("TICK_INTERVAL must be positive, got %v", c.Executor.TickInterval)
	}

	if c.Executor.MaxTickInterval < c.Executor.TickInterval {
		return fmt.Errorf("MAX_TICK_INTERVAL must be >= TICK_INTERVAL, got %v < %v",
			c.Executor.MaxTickInterval, c.Executor.TickInterval)
	}

	if c.Executor.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be positive, got %v", c.Executor.ShutdownTimeout)
	}

	return nil
}

// ContractAllowed проверяет, разрешена ли контрактная торговля для символа
func (c ContractConfig) ContractAllowed(symbol string) bool {
	for _, s := range c.EnabledPairs {
		if s == symbol {
			return true
		}
	}
	return false
}

// LeverageAllowed проверяет, входит ли плечо в список допустимых
func (c ContractConfig) LeverageAllowed(leverage int) bool {
	for _, l := range c.LeverageOptions {
		if l == leverage {
			return true
		}
	}
	return false
}

// MarginTypeAllowed проверяет поддержку режима маржи
func (c ContractConfig) MarginTypeAllowed(marginType string) bool {
	for _, m := range c.MarginTypes {
		if m == marginType {
			return true
		}
	}
	return false
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
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

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getEnvAsIntSlice(key string, defaultValue []int) []int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return defaultValue
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
