package config

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// データソースの種類。
const (
	DataSourceCSV      = "csv"
	DataSourcePostgres = "postgres"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Data
	DataSource string
	DataCSV    string
	DataXML    string
	CacheTTL   time.Duration

	// Database
	DatabaseURL string

	// Users XML
	UsersXMLURL        string
	XMLRefreshInterval time.Duration
	XMLFetchTimeout    time.Duration
	XMLMaxSize         int64

	// Rate Limit
	RateLimitPerMin int

	// Server
	ServerPort     string
	MaxConnections int

	// CORS
	CORSAllowedOrigin string

	// Logging
	LogLevel slog.Level
}

// Load は環境変数からConfigを読み込む。
// DATA_SOURCE=postgresでDATABASE_URLが未設定の場合や、CACHE_TTLが負の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.DataSource = strings.ToLower(getEnvString("DATA_SOURCE", DataSourceCSV))
	switch cfg.DataSource {
	case DataSourceCSV, DataSourcePostgres:
	default:
		return nil, fmt.Errorf("invalid DATA_SOURCE: %q (allowed: %s, %s)", cfg.DataSource, DataSourceCSV, DataSourcePostgres)
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DataSource == DataSourcePostgres && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("required environment variables are not set: [DATABASE_URL]")
	}

	level, err := parseLogLevel(getEnvString("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level

	// Optional fields with defaults
	cfg.DataCSV = getEnvString("DATA_CSV", "runtime/data/sample_data.csv")
	cfg.DataXML = getEnvString("DATA_XML", "runtime/data/users.xml")
	cfg.CacheTTL = getEnvDuration("CACHE_TTL", 600*time.Second)
	if cfg.CacheTTL < 0 {
		return nil, fmt.Errorf("invalid CACHE_TTL: %s (must be >= 0)", cfg.CacheTTL)
	}
	cfg.UsersXMLURL = getEnvString("USERS_XML_URL", "")
	cfg.XMLRefreshInterval = getEnvDuration("XML_REFRESH_INTERVAL", time.Hour)
	cfg.XMLFetchTimeout = getEnvDuration("XML_FETCH_TIMEOUT", 10*time.Second)
	cfg.XMLMaxSize = getEnvBytes("XML_MAX_SIZE", 5242880)
	cfg.RateLimitPerMin = getEnvInt("RATE_LIMIT_PER_MIN", 600)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.MaxConnections = getEnvInt("MAX_CONNECTIONS", 256)
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// RequireDatabase はDATABASE_URLが設定されていることを確認する。
// migrate / importコマンドから呼ばれる。
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("required environment variables are not set: [DATABASE_URL]")
	}
	return nil
}

func parseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid LOG_LEVEL: %q", s)
	}
	return level, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

// getEnvBytes は"5MiB"や"512kB"のような単位付きのバイト数も受け付ける。
func getEnvBytes(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := humanize.ParseBytes(v)
	if err != nil || n > math.MaxInt64 {
		return defaultVal
	}
	return int64(n)
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
