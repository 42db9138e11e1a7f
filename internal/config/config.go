package config

import (
	"fmt"
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config содержит конфигурацию GM-сервера.
type Config struct {
	// Настройки сервера
	Port        string `envconfig:"GM_SERVER_PORT" default:"8080"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding string `envconfig:"LOG_ENCODING" default:"json"`

	// Настройки PostgreSQL
	DBHost        string        `envconfig:"DB_HOST" required:"true"`
	DBPort        string        `envconfig:"DB_PORT" default:"5432"`
	DBUser        string        `envconfig:"DB_USER" required:"true"`
	DBPassword    string        `envconfig:"DB_PASSWORD" required:"true"`
	DBName        string        `envconfig:"DB_NAME" required:"true"`
	DBSSLMode     string        `envconfig:"DB_SSL_MODE" default:"disable"`
	DBMaxConns    int           `envconfig:"DB_MAX_CONNECTIONS" default:"10"`
	DBIdleTimeout time.Duration `envconfig:"DB_MAX_IDLE_MINUTES" default:"5m"`

	// Настройки Redis (межзапросная сериализация ходов на сессию)
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// Провайдер текстового LLM (OpenAI-совместимый API)
	LLMAPIKey     string        `envconfig:"LLM_API_KEY" required:"true"`
	LLMBaseURL    string        `envconfig:"LLM_BASE_URL" default:""`
	LLMModel      string        `envconfig:"LLM_MODEL" default:"gpt-4o-mini"`
	LLMTimeout    time.Duration `envconfig:"LLM_TIMEOUT" default:"60s"`
	LLMMaxRetries int           `envconfig:"LLM_MAX_RETRIES" default:"3"`

	// Генерация изображений
	ImageModel   string        `envconfig:"IMAGE_MODEL" default:"dall-e-3"`
	ImageTimeout time.Duration `envconfig:"IMAGE_TIMEOUT" default:"60s"`

	// Генерация музыки
	MusicAPIKey  string        `envconfig:"MUSIC_API_KEY" required:"true"`
	MusicBaseURL string        `envconfig:"MUSIC_BASE_URL" default:""`
	MusicModel   string        `envconfig:"MUSIC_MODEL" default:"music-gen-v1"`
	MusicTimeout time.Duration `envconfig:"MUSIC_TIMEOUT" default:"180s"`

	// Объектное хранилище (Supabase Storage или совместимое)
	StorageBaseURL    string `envconfig:"SUPABASE_URL" default:""`
	StorageServiceKey string `envconfig:"SUPABASE_SERVICE_KEY" default:""`

	// JWT (проверка auth_token на BGM-стриме)
	JWTSecret string `envconfig:"JWT_SECRET" default:""`
}

// GetDSN возвращает строку подключения (DSN) для PostgreSQL.
func (c *Config) GetDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// LoadConfig загружает конфигурацию из переменных окружения.
// Отсутствие обязательного API-ключа - ошибка на старте, не во время хода.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации gm-server: %w", err)
	}

	log.Printf("Конфигурация GM-сервера загружена:")
	log.Printf("  Port: %s", cfg.Port)
	log.Printf("  LogLevel: %s", cfg.LogLevel)
	log.Printf("  DB DSN: postgres://%s:***@%s:%s/%s?sslmode=%s", cfg.DBUser, cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.DBSSLMode)
	log.Printf("  DB Max Conns: %d", cfg.DBMaxConns)
	log.Printf("  Redis Addr: %s", cfg.RedisAddr)
	log.Printf("  LLM Model: %s", cfg.LLMModel)
	log.Printf("  Image Model: %s", cfg.ImageModel)
	log.Printf("  Music Model: %s", cfg.MusicModel)

	return &cfg, nil
}
