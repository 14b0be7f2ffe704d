package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// placeholderAPIKey は.env.exampleのままのAPIキー。未設定として扱う。
const placeholderAPIKey = "your_api_key_here"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Storage
	DataDir      string
	DatabasePath string
	ImagesDir    string

	// AI
	AnthropicAPIKey  string
	AnthropicModel   string
	AnthropicBaseURL string
	AITimeout        time.Duration

	// Bridge
	BridgeAddr          string
	BridgeToken         string
	BridgeAllowedOrigin string

	// Logging
	LogLevel  string
	LogFormat string

	// Jobs
	JobPollInterval   time.Duration
	JobMaxConcurrency int
	JobMaxAttempts    int
	PublishTimeout    time.Duration

	// Retention
	ImageRetentionDays     int
	AnalyticsRetentionDays int
	JobRetentionDays       int

	// Download
	DownloadMaxBytes int64
}

// AIConfigured はAPIキーが設定されているかを返す。
func (c *Config) AIConfigured() bool {
	return c.AnthropicAPIKey != ""
}

// BridgeTokenPath はトークン未指定時に生成したトークンを書き出すパス。
func (c *Config) BridgeTokenPath() string {
	return filepath.Join(c.DataDir, "bridge.token")
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリとデータディレクトリの.envを先に読み込むが、既存の環境変数は上書きしない。
// 不正な値はまとめてエラーとして返す。
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	cfg := &Config{}

	cfg.DataDir = os.Getenv("RESALEMAN_DATA_DIR")
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("RESALEMAN_DATA_DIR is not set and home directory is unknown: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".resaleman")
	}

	if err := loadDotEnv(filepath.Join(cfg.DataDir, ".env")); err != nil {
		return nil, err
	}

	env := &envReader{}

	cfg.DatabasePath = env.string("DATABASE_PATH", filepath.Join(cfg.DataDir, "resaleman.db"))
	cfg.ImagesDir = env.string("IMAGES_DIR", filepath.Join(cfg.DataDir, "images"))

	cfg.AnthropicAPIKey = strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	if cfg.AnthropicAPIKey == placeholderAPIKey {
		cfg.AnthropicAPIKey = ""
	}
	cfg.AnthropicModel = env.string("ANTHROPIC_MODEL", "claude-3-haiku-20240307")
	cfg.AnthropicBaseURL = env.string("ANTHROPIC_BASE_URL", "")
	cfg.AITimeout = env.duration("AI_TIMEOUT", 60*time.Second)

	cfg.BridgeAddr = env.string("BRIDGE_ADDR", "127.0.0.1:7788")
	cfg.BridgeToken = env.string("BRIDGE_TOKEN", "")
	cfg.BridgeAllowedOrigin = env.string("BRIDGE_ALLOWED_ORIGIN", "")

	cfg.LogLevel = env.oneOf("LOG_LEVEL", "info", "debug", "info", "warn", "error")
	cfg.LogFormat = env.oneOf("LOG_FORMAT", "json", "json", "text")

	cfg.JobPollInterval = env.duration("JOB_POLL_INTERVAL", 30*time.Second)
	cfg.JobMaxConcurrency = env.int("JOB_MAX_CONCURRENCY", 2)
	cfg.JobMaxAttempts = env.int("JOB_MAX_ATTEMPTS", 3)
	cfg.PublishTimeout = env.duration("PUBLISH_TIMEOUT", 30*time.Second)

	cfg.ImageRetentionDays = env.int("IMAGE_RETENTION_DAYS", 30)
	cfg.AnalyticsRetentionDays = env.int("ANALYTICS_RETENTION_DAYS", 365)
	cfg.JobRetentionDays = env.int("JOB_RETENTION_DAYS", 30)

	cfg.DownloadMaxBytes = env.int64("DOWNLOAD_MAX_BYTES", 20<<20)

	if len(env.invalid) > 0 {
		return nil, fmt.Errorf("invalid environment variables: %v", env.invalid)
	}

	return cfg, nil
}

// loadDotEnv はファイルが存在する場合のみ読み込む。
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// envReader は不正な値を持つ環境変数名を蓄積しながら読み込む。
type envReader struct {
	invalid []string
}

func (e *envReader) string(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func (e *envReader) oneOf(key, defaultVal string, allowed ...string) string {
	v := strings.ToLower(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	e.invalid = append(e.invalid, key)
	return defaultVal
}

// int は正の整数を読み込む。
func (e *envReader) int(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil || i <= 0 {
		e.invalid = append(e.invalid, key)
		return defaultVal
	}
	return i
}

func (e *envReader) int64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil || i <= 0 {
		e.invalid = append(e.invalid, key)
		return defaultVal
	}
	return i
}

func (e *envReader) duration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		e.invalid = append(e.invalid, key)
		return defaultVal
	}
	return d
}
