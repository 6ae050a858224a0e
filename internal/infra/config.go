package infra

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment
// variables. Every field has a default so the service boots with zero
// configuration and serves from the local generator only.
type Config struct {
	AppEnv         string
	Port           string
	PublicBaseURL  string
	StoragePath    string
	StorageBaseURL string

	DashScopeAPIKey  string
	DashScopeBaseURL string
	DashScopeModel   string

	ModelScopeAPIKey  string
	ModelScopeBaseURL string
	ModelScopeModel   string

	FreeDailyLimit int
	ProDailyLimit  int // 0 means unlimited
	BypassQuota    bool

	GlobalConcurrency  int
	PerUserConcurrency int
	MaxQualityRetries  int

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies
// defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		Port:           getEnv("PORT", "8787"),
		PublicBaseURL:  getEnv("PUBLIC_BASE_URL", "http://127.0.0.1:8787"),
		StoragePath:    getEnv("STORAGE_PATH", "./static"),
		StorageBaseURL: getEnv("STORAGE_BASE_URL", "/static"),

		DashScopeAPIKey:  os.Getenv("DASHSCOPE_API_KEY"),
		DashScopeBaseURL: getEnv("DASHSCOPE_BASE_URL", "https://dashscope.aliyuncs.com/api/v1"),
		DashScopeModel:   getEnv("DASHSCOPE_T2I_MODEL", "qwen-image"),

		ModelScopeAPIKey:  os.Getenv("MODELSCOPE_API_KEY"),
		ModelScopeBaseURL: getEnv("MODELSCOPE_API_BASE", "https://api-inference.modelscope.cn/v1"),
		ModelScopeModel:   getEnv("MODELSCOPE_T2I_MODEL", "Qwen/Qwen-Image"),

		FreeDailyLimit: getEnvInt("FREE_DAILY_LIMIT", 2),
		ProDailyLimit:  getEnvInt("PRO_DAILY_LIMIT", 0),
		BypassQuota:    getEnvBool("BYPASS_QUOTA", false),

		GlobalConcurrency:  getEnvInt("GLOBAL_CONCURRENCY", 3),
		PerUserConcurrency: getEnvInt("PER_USER_CONCURRENCY", 3),
		MaxQualityRetries:  getEnvInt("MAX_QUALITY_RETRIES", 2),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	cfg.DashScopeAPIKey = strings.TrimSpace(cfg.DashScopeAPIKey)
	cfg.ModelScopeAPIKey = strings.TrimSpace(cfg.ModelScopeAPIKey)

	return cfg, nil
}

// DashScopeConfigured reports whether the synchronous remote provider has
// credentials.
func (c *Config) DashScopeConfigured() bool {
	return c.DashScopeAPIKey != "" && c.DashScopeModel != ""
}

// ModelScopeConfigured reports whether the polling remote provider has
// credentials.
func (c *Config) ModelScopeConfigured() bool {
	return c.ModelScopeAPIKey != "" && c.ModelScopeModel != ""
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return fallback
}
