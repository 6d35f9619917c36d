package config

import (
	"os"
	"strconv"
	"strings"
)

// Config представляет конфигурацию приложения
type Config struct {
	Server    ServerConfig    `json:"server"`
	Storage   StorageConfig   `json:"storage"`
	Database  DatabaseConfig  `json:"database"`
	Redis     RedisConfig     `json:"redis"`
	Kafka     KafkaConfig     `json:"kafka"`
	Logger    LoggerConfig    `json:"logger"`
	Promo     PromoConfig     `json:"promo"`
	RateLimit RateLimitConfig `json:"rate_limit"`
}

// ServerConfig представляет конфигурацию HTTP сервера
type ServerConfig struct {
	Port         string `json:"port"`
	Host         string `json:"host"`
	ReadTimeout  int    `json:"read_timeout"`
	WriteTimeout int    `json:"write_timeout"`
}

// Поддерживаемые хранилища промокодов и аккаунтов.
const (
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

// StorageConfig выбирает хранилище документов промокодов и аккаунтов
type StorageConfig struct {
	Backend string `json:"backend"` // redis | postgres
}

// DatabaseConfig представляет конфигурацию базы данных
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig представляет конфигурацию Redis
type RedisConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// KafkaConfig представляет конфигурацию Kafka
type KafkaConfig struct {
	Enabled bool     `json:"enabled"`
	Brokers []string `json:"brokers"`
	GroupID string   `json:"group_id"`
	Topics  Topics   `json:"topics"`
}

// Topics представляет список топиков Kafka
type Topics struct {
	Promos string `json:"promos"`
}

// LoggerConfig представляет конфигурацию логгера
type LoggerConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	File   string `json:"file"`
}

// PromoConfig хранит настройки промокодов
type PromoConfig struct {
	StaticFile       string `json:"static_file"`      // YAML с глобальными промокодами, пусто = встроенная таблица
	ListLimit        int    `json:"list_limit"`       // размер выдачи последних промокодов
	TxMaxRetries     int    `json:"tx_max_retries"`   // повторы транзакции при конфликте записи
	TxRetryBackoffMs int    `json:"tx_retry_backoff"` // пауза между повторами
	DepositRedirect  string `json:"deposit_redirect"` // куда отправлять за депозитным бонусом
	MaxCodeLength    int    `json:"max_code_length"`  // ограничение длины кода
}

// RateLimitConfig описывает настройки rate limiting
type RateLimitConfig struct {
	Enabled       bool   `json:"enabled"`
	Requests      int    `json:"requests"`
	WindowSeconds int    `json:"window_seconds"`
	KeyPrefix     string `json:"key_prefix"`

	// Отдельный, более строгий лимит на активацию промокодов
	RedeemRequests      int `json:"redeem_requests"`
	RedeemWindowSeconds int `json:"redeem_window_seconds"`
}

// ForRedemptions возвращает настройки лимитера для POST /api/redemptions.
// Счётчики хранятся под отдельным префиксом и не пересекаются с общим лимитом.
func (c RateLimitConfig) ForRedemptions() RateLimitConfig {
	prefix := c.KeyPrefix
	if prefix == "" {
		prefix = "ratelimit"
	}
	return RateLimitConfig{
		Enabled:       c.Enabled,
		Requests:      c.RedeemRequests,
		WindowSeconds: c.RedeemWindowSeconds,
		KeyPrefix:     prefix + ":redeem",
	}
}

// Load загружает конфигурацию из переменных окружения
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 10),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 10),
		},
		Storage: StorageConfig{
			Backend: strings.ToLower(getEnv("STORAGE_BACKEND", StorageRedis)),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "promo_user"),
			Password: getEnv("DB_PASSWORD", "promo_pass"),
			DBName:   getEnv("DB_NAME", "promo_system"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Enabled: getEnvAsBool("KAFKA_ENABLED", false),
			Brokers: strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			GroupID: getEnv("KAFKA_GROUP_ID", "promo-service"),
			Topics: Topics{
				Promos: getEnv("KAFKA_TOPIC_PROMOS", "promos"),
			},
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			File:   getEnv("LOG_FILE", ""),
		},
		Promo: PromoConfig{
			StaticFile:       getEnv("PROMO_STATIC_FILE", ""),
			ListLimit:        getEnvAsInt("PROMO_LIST_LIMIT", 20),
			TxMaxRetries:     getEnvAsInt("PROMO_TX_MAX_RETRIES", 10),
			TxRetryBackoffMs: getEnvAsInt("PROMO_TX_RETRY_BACKOFF_MS", 5),
			DepositRedirect:  getEnv("PROMO_DEPOSIT_REDIRECT", "dep.html"),
			MaxCodeLength:    getEnvAsInt("PROMO_MAX_CODE_LENGTH", 64),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getEnvAsBool("RATE_LIMIT_ENABLED", false),
			Requests:      getEnvAsInt("RATE_LIMIT_REQUESTS", 100),
			WindowSeconds: getEnvAsInt("RATE_LIMIT_WINDOW_SECONDS", 60),
			KeyPrefix:     getEnv("RATE_LIMIT_KEY_PREFIX", "ratelimit"),

			RedeemRequests:      getEnvAsInt("RATE_LIMIT_REDEEM_REQUESTS", 10),
			RedeemWindowSeconds: getEnvAsInt("RATE_LIMIT_REDEEM_WINDOW_SECONDS", 60),
		},
	}
}

// getEnv получает значение переменной окружения с значением по умолчанию
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt получает значение переменной окружения как int с значением по умолчанию
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool получает значение переменной окружения как bool с значением по умолчанию
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := strings.ToLower(getEnv(key, ""))
	if valueStr == "true" || valueStr == "1" || valueStr == "yes" {
		return true
	}
	if valueStr == "false" || valueStr == "0" || valueStr == "no" {
		return false
	}
	return defaultValue
}
