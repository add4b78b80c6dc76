package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Matching  MatchingConfig
	Secondary SecondaryConfig
	Logging   LoggingConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port     int
	Host     string
	UseHTTPS bool
	CertFile string
	KeyFile  string
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

// RedisConfig - настройки общего key/value хранилища
//
// Хранилище держит только флаги, heartbeat и pub/sub - мягкое
// состояние, потеря которого не ломает матчинг.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MatchingConfig - параметры цикла матчинга и протоколов подтверждения
type MatchingConfig struct {
	TickInterval    time.Duration // период сканирования
	StartupGrace    time.Duration // пауза перед первым проходом
	SnapshotTTL     time.Duration // окно валидности снапшот-кэша
	NegotiationTTL  time.Duration // таймаут ответа в переговорах
	ConfirmationTTL time.Duration // таймаут каждой стадии подтверждения количества
	HeartbeatTTL    time.Duration // срок жизни ключа matching:last_run
	ActiveFlagTTL   time.Duration // срок жизни ключа matching:has_active_orders
	AdvisoryMinGap  time.Duration // минимальный интервал между advisory по активу

	CommissionRate float64 // комиссия от оборота сделки (доли)
	// Порог advisory: при спреде выше этого процента уведомления
	// о конкурентных ценах не отправляются
	AdvisoryMaxSpreadPct float64
}

// SecondaryConfig - настройки шлюза вторичного канала уведомлений
type SecondaryConfig struct {
	GatewayURL string // пустой = вторичный канал выключен
	AuthToken  string
	Timeout    time.Duration
	MaxRetries int
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
			Port:     getEnvAsInt("SERVER_PORT", 8080),
			Host:     getEnv("SERVER_HOST", "0.0.0.0"),
			UseHTTPS: getEnvAsBool("USE_HTTPS", false),
			CertFile: getEnv("CERT_FILE", ""),
			KeyFile:  getEnv("KEY_FILE", ""),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "lotmarket"),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Matching: MatchingConfig{
			TickInterval:    getEnvAsDuration("MATCH_TICK_INTERVAL", 5*time.Second),
			StartupGrace:    getEnvAsDuration("MATCH_STARTUP_GRACE", 10*time.Second),
			SnapshotTTL:     getEnvAsDuration("SNAPSHOT_TTL", 30*time.Second),
			NegotiationTTL:  getEnvAsDuration("NEGOTIATION_TIMEOUT", 30*time.Second),
			ConfirmationTTL: getEnvAsDuration("CONFIRMATION_TIMEOUT", 60*time.Second),
			HeartbeatTTL:    getEnvAsDuration("HEARTBEAT_TTL", 10*time.Minute),
			ActiveFlagTTL:   getEnvAsDuration("ACTIVE_ORDERS_FLAG_TTL", 5*time.Minute),
			AdvisoryMinGap:  getEnvAsDuration("ADVISORY_MIN_INTERVAL", 5*time.Minute),

			CommissionRate:       getEnvAsFloat("COMMISSION_RATE", 0.001),
			AdvisoryMaxSpreadPct: getEnvAsFloat("ADVISORY_MAX_SPREAD_PCT", 20.0),
		},
		Secondary: SecondaryConfig{
			GatewayURL: getEnv("SECONDARY_GATEWAY_URL", ""),
			AuthToken:  getEnv("SECONDARY_GATEWAY_TOKEN", ""),
			Timeout:    getEnvAsDuration("SECONDARY_GATEWAY_TIMEOUT", 10*time.Second),
			MaxRetries: getEnvAsInt("SECONDARY_MAX_RETRIES", 3),
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
	// Валидация портов
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	// Таймауты протоколов должны быть положительными
	if c.Matching.TickInterval <= 0 {
		return fmt.Errorf("MATCH_TICK_INTERVAL must be positive, got %v", c.Matching.TickInterval)
	}

	if c.Matching.SnapshotTTL <= 0 {
		return fmt.Errorf("SNAPSHOT_TTL must be positive, got %v", c.Matching.SnapshotTTL)
	}

	if c.Matching.NegotiationTTL <= 0 {
		return fmt.Errorf("NEGOTIATION_TIMEOUT must be positive, got %v", c.Matching.NegotiationTTL)
	}

	if c.Matching.ConfirmationTTL <= 0 {
		return fmt.Errorf("CONFIRMATION_TIMEOUT must be positive, got %v", c.Matching.ConfirmationTTL)
	}

	// Комиссия в долях: [0, 1)
	if c.Matching.CommissionRate < 0 || c.Matching.CommissionRate >= 1 {
		return fmt.Errorf("COMMISSION_RATE must be in [0, 1), got %v", c.Matching.CommissionRate)
	}

	if c.Matching.AdvisoryMaxSpreadPct < 0 {
		return fmt.Errorf("ADVISORY_MAX_SPREAD_PCT cannot be negative, got %v", c.Matching.AdvisoryMaxSpreadPct)
	}

	if c.Secondary.MaxRetries < 0 {
		return fmt.Errorf("SECONDARY_MAX_RETRIES cannot be negative, got %d", c.Secondary.MaxRetries)
	}

	if c.Secondary.MaxRetries > 10 {
		return fmt.Errorf("SECONDARY_MAX_RETRIES should not exceed 10, got %d", c.Secondary.MaxRetries)
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
