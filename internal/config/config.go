package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/clinicsync/internal/logger"
)

// loadEnv читает .env только вне production (в контейнере/prod конфиг только из env).
// Уже заданные переменные окружения не перезаписываются.
func loadEnv() {
	if os.Getenv("APP_ENV") == "production" {
		return
	}
	dir, err := os.Getwd()
	if err != nil {
		return
	}
	for i := 0; i < 5; i++ {
		path := dir + "/.env"
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err != nil {
				logger.Errorf("config: ошибка чтения %s: %v", path, err)
			}
			return
		}
		parent := strings.TrimSuffix(dir, "/")
		idx := strings.LastIndex(parent, "/")
		if idx <= 0 {
			return
		}
		dir = parent[:idx]
	}
}

// CacheConfig — кеш последней загруженной страницы диалогов (warm start).
type CacheConfig struct {
	TTLMinutes int `yaml:"ttl_minutes"`
}

// TTL возвращает время жизни записи кеша.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// RedisConfig — Redis для кеша. Пустой URL — кеш в памяти процесса.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// NATSConfig — публикация алертов в NATS. Пустой URL — публикация отключена.
type NATSConfig struct {
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// TracingConfig — экспорт трейсов OTLP/HTTP.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// Config содержит настройки сессии дашборда и локального HTTP-моста.
// Приоритет: переменные окружения > YAML-файл > значения по умолчанию.
type Config struct {
	// Локальный HTTP-мост для UI
	ServerAddr   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// REST API клиники (базовый путь /api/v1 входит в URL)
	APIBaseURL    string
	APITimeout    time.Duration
	APIMaxRetries int
	APIRetryBase  time.Duration
	PageSize      int
	SessionToken  string

	// Поток событий (WebSocket)
	StreamURL        string
	ReconnectDelay   time.Duration
	WSPongTimeout    time.Duration
	WSMaxMessageSize int64

	CORSAllowedOrigins string
	RateLimitRequests  int
	// Секрет для доступа к мосту не с локальных адресов; пусто — только loopback/приватные сети
	BridgeSecret       string

	LogLevel string

	Cache          CacheConfig
	Redis          RedisConfig
	NATS           NATSConfig
	Tracing        TracingConfig
	PushServiceURL string
	PushUserID     string
}

// yamlConfig — промежуточная структура для парсинга YAML.
type yamlConfig struct {
	ServerAddr         string        `yaml:"server_addr"`
	ReadTimeout        int           `yaml:"read_timeout"`
	WriteTimeout       int           `yaml:"write_timeout"`
	IdleTimeout        int           `yaml:"idle_timeout"`
	APIBaseURL         string        `yaml:"api_base_url"`
	APITimeout         int           `yaml:"api_timeout"`
	APIMaxRetries      int           `yaml:"api_max_retries"`
	APIRetryBaseMS     int           `yaml:"api_retry_base_ms"`
	PageSize           int           `yaml:"page_size"`
	Token              string        `yaml:"token"`
	StreamURL          string        `yaml:"stream_url"`
	StreamReconnectMS  int           `yaml:"stream_reconnect_ms"`
	WSPongTimeout      int           `yaml:"ws_pong_timeout"`
	WSMaxMessageSize   int           `yaml:"ws_max_message_size"`
	CORSAllowedOrigins string        `yaml:"cors_allowed_origins"`
	RateLimitRequests  int           `yaml:"rate_limit_requests"`
	BridgeSecret       string        `yaml:"bridge_secret"`
	LogLevel           string        `yaml:"log_level"`
	Cache              CacheConfig   `yaml:"cache"`
	Redis              RedisConfig   `yaml:"redis"`
	NATS               NATSConfig    `yaml:"nats"`
	Tracing            TracingConfig `yaml:"tracing"`
	PushServiceURL     string        `yaml:"push_service_url"`
	PushUserID         string        `yaml:"push_user_id"`
}

func defaults() yamlConfig {
	return yamlConfig{
		ServerAddr:         "127.0.0.1:8090",
		ReadTimeout:        15,
		WriteTimeout:       0,
		IdleTimeout:        60,
		APIBaseURL:         "http://localhost:8000/api/v1",
		APITimeout:         30,
		APIMaxRetries:      3,
		APIRetryBaseMS:     500,
		PageSize:           20,
		StreamURL:          "ws://localhost:8000/ws",
		StreamReconnectMS:  3000,
		WSPongTimeout:      60,
		WSMaxMessageSize:   1 << 20,
		CORSAllowedOrigins: "*",
		RateLimitRequests:  300,
		LogLevel:           "info",
		Cache:              CacheConfig{TTLMinutes: 10},
		NATS:               NATSConfig{SubjectPrefix: "clinic.alerts"},
		Tracing:            TracingConfig{Endpoint: "localhost:4318"},
	}
}

// Load загружает конфигурацию.
// Сначала подгружаются переменные из .env (если есть), затем YAML и env (env имеет приоритет).
func Load() *Config {
	loadEnv()
	yc := defaults()

	paths := []string{os.Getenv("CONFIG_PATH"), "config/inboxd.yaml"}
	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, &yc); err != nil {
			logger.Errorf("config: ошибка парсинга %s: %v (используются значения по умолчанию)", path, err)
			yc = defaults()
		} else {
			logger.Infof("config: загружен %s", path)
		}
		break
	}
	return fromYAML(yc)
}

func fromYAML(yc yamlConfig) *Config {
	cfg := &Config{
		ServerAddr:         envStr("SERVER_ADDR", yc.ServerAddr),
		ReadTimeout:        time.Duration(envInt("READ_TIMEOUT", yc.ReadTimeout)) * time.Second,
		WriteTimeout:       time.Duration(envInt("WRITE_TIMEOUT", yc.WriteTimeout)) * time.Second,
		IdleTimeout:        time.Duration(envInt("IDLE_TIMEOUT", yc.IdleTimeout)) * time.Second,
		APIBaseURL:         strings.TrimRight(envStr("API_BASE_URL", yc.APIBaseURL), "/"),
		APITimeout:         time.Duration(envInt("API_TIMEOUT", yc.APITimeout)) * time.Second,
		APIMaxRetries:      envInt("API_MAX_RETRIES", yc.APIMaxRetries),
		APIRetryBase:       time.Duration(envInt("API_RETRY_BASE_MS", yc.APIRetryBaseMS)) * time.Millisecond,
		PageSize:           envInt("PAGE_SIZE", yc.PageSize),
		SessionToken:       envStr("INBOX_TOKEN", yc.Token),
		StreamURL:          envStr("STREAM_URL", yc.StreamURL),
		ReconnectDelay:     time.Duration(envInt("STREAM_RECONNECT_MS", yc.StreamReconnectMS)) * time.Millisecond,
		WSPongTimeout:      time.Duration(envInt("WS_PONG_TIMEOUT", yc.WSPongTimeout)) * time.Second,
		WSMaxMessageSize:   int64(envInt("WS_MAX_MESSAGE_SIZE", yc.WSMaxMessageSize)),
		CORSAllowedOrigins: envStr("CORS_ALLOWED_ORIGINS", yc.CORSAllowedOrigins),
		RateLimitRequests:  envInt("RATE_LIMIT_REQUESTS", yc.RateLimitRequests),
		BridgeSecret:       envStr("INBOX_BRIDGE_SECRET", yc.BridgeSecret),
		LogLevel:           envStr("LOG_LEVEL", yc.LogLevel),
		Cache:              CacheConfig{TTLMinutes: envInt("CACHE_TTL_MINUTES", yc.Cache.TTLMinutes)},
		Redis:              RedisConfig{URL: envStr("REDIS_URL", yc.Redis.URL)},
		NATS: NATSConfig{
			URL:           envStr("NATS_URL", yc.NATS.URL),
			Token:         envStr("NATS_TOKEN", yc.NATS.Token),
			SubjectPrefix: envStr("NATS_SUBJECT_PREFIX", yc.NATS.SubjectPrefix),
		},
		Tracing: TracingConfig{
			Enabled:  envBool("TRACING_ENABLED", yc.Tracing.Enabled),
			Endpoint: envStr("TRACING_ENDPOINT", yc.Tracing.Endpoint),
		},
		PushServiceURL: envStr("PUSH_SERVICE_URL", yc.PushServiceURL),
		PushUserID:     envStr("PUSH_USER_ID", yc.PushUserID),
	}

	if cfg.APIMaxRetries < 0 {
		cfg.APIMaxRetries = 0
	}
	if cfg.APIRetryBase <= 0 {
		cfg.APIRetryBase = 500 * time.Millisecond
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 3 * time.Second
	}
	if cfg.Cache.TTLMinutes <= 0 {
		cfg.Cache.TTLMinutes = 10
	}
	if cfg.NATS.SubjectPrefix == "" {
		cfg.NATS.SubjectPrefix = "clinic.alerts"
	}

	if os.Getenv("APP_ENV") == "production" && (cfg.CORSAllowedOrigins == "" || cfg.CORSAllowedOrigins == "*") {
		logger.Errorf("config: в production задайте CORS_ALLOWED_ORIGINS (явный список origins, не *)")
	}
	return cfg
}

// envStr возвращает значение переменной окружения или fallback.
func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envInt возвращает числовое значение переменной окружения или fallback.
func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
