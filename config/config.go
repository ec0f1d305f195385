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

type Config struct {
	ProjectDir   string `json:"project_dir"`
	DataDir      string `json:"data_dir"`
	DataCacheDir string `json:"data_cache_dir"`
	LogLevel     string `json:"log_level"`
	Debug        bool   `json:"debug"`

	// Durable store
	DBDriver string `json:"db_driver"` // sqlite | postgres
	DBPath   string `json:"db_path"`
	DBDSN    string `json:"db_dsn"`

	// Cache store
	CacheBackend  string `json:"cache_backend"` // file | memory | redis
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`

	CacheTTLRealtime  Duration `json:"cache_ttl_realtime"`
	CacheTTLMinute    Duration `json:"cache_ttl_minute"`
	CacheTTLDaily     Duration `json:"cache_ttl_daily"`
	CacheTTLHistory   Duration `json:"cache_ttl_history"`
	CacheTTLWatchlist Duration `json:"cache_ttl_watchlist"`

	// Sync scheduler
	SyncEnabled       bool     `json:"sync_enabled"`
	RealtimeInterval  Duration `json:"realtime_interval"`
	SlowInterval      Duration `json:"slow_interval"`
	PacingDelay       Duration `json:"pacing_delay"`
	HistoryPacing     Duration `json:"history_pacing"`
	ProviderTimeout   Duration `json:"provider_timeout"`
	ExchangeTimezone  string   `json:"exchange_timezone"`
	NewsSyncCron      string   `json:"news_sync_cron"`
	NewsQueries       []string `json:"news_queries"`
	NewsSyncLookback  int      `json:"news_sync_hours"`
	HistoryWarmupDays []int    `json:"history_warmup_days"`

	// LLM
	LLMProvider      string   `json:"llm_provider"` // deepseek | openai
	LLMBaseURL       string   `json:"llm_base_url"`
	LLMModel         string   `json:"llm_model"`
	LLMMaxTokens     int      `json:"llm_max_tokens"`
	LLMTemperature   float32  `json:"llm_temperature"`
	LLMTimeout       Duration `json:"llm_timeout"`
	AgentMaxIter     int      `json:"agent_max_iterations"`
	SessionLimit     int      `json:"session_limit"`
	SessionIdleTTL   Duration `json:"session_idle_ttl"`
	EinoDebugEnabled bool     `json:"eino_debug_enabled"`

	// API keys
	DeepSeekAPIKey      string `json:"deepseek_api_key"`
	OpenAIAPIKey        string `json:"openai_api_key"`
	TavilyAPIKey        string `json:"tavily_api_key"`
	FinnhubAPIKey       string `json:"finnhub_api_key"`
	LongportAppKey      string `json:"longport_app_key"`
	LongportAppSecret   string `json:"longport_app_secret"`
	LongportAccessToken string `json:"longport_access_token"`
}

func DefaultConfig() *Config {
	currentDir, _ := os.Getwd()

	cfg := &Config{
		ProjectDir:   currentDir,
		DataDir:      filepath.Join(currentDir, "data"),
		DataCacheDir: filepath.Join(currentDir, "data", "cache"),
		LogLevel:     "info",

		DBDriver: "sqlite",
		DBPath:   filepath.Join(currentDir, "data", "cortexmarket.db"),

		CacheBackend: "file",
		RedisAddr:    "localhost:6379",

		CacheTTLRealtime:  Duration(30 * time.Second),
		CacheTTLMinute:    Duration(time.Minute),
		CacheTTLDaily:     Duration(5 * time.Minute),
		CacheTTLHistory:   Duration(24 * time.Hour),
		CacheTTLWatchlist: Duration(24 * time.Hour),

		SyncEnabled:       true,
		RealtimeInterval:  Duration(30 * time.Second),
		SlowInterval:      Duration(60 * time.Second),
		PacingDelay:       Duration(time.Second),
		HistoryPacing:     Duration(500 * time.Millisecond),
		ProviderTimeout:   Duration(10 * time.Second),
		ExchangeTimezone:  "Asia/Shanghai",
		NewsSyncCron:      "@every 6h",
		NewsQueries:       []string{"A股 市场", "央行 货币政策"},
		NewsSyncLookback:  24,
		HistoryWarmupDays: []int{7, 30, 90, 180, 365},

		LLMProvider:    "deepseek",
		LLMModel:       "deepseek-chat",
		LLMMaxTokens:   4000,
		LLMTemperature: 0.7,
		LLMTimeout:     Duration(90 * time.Second),
		AgentMaxIter:   5,
		SessionLimit:   256,
		SessionIdleTTL: Duration(time.Hour),
	}

	// Load environment variables from .env file
	_ = godotenv.Load()

	cfg.loadFromEnv()

	return cfg
}

func (c *Config) loadFromEnv() {
	setString := func(key string, dst *string) {
		if val := os.Getenv(key); val != "" {
			*dst = val
		}
	}
	setBool := func(key string, dst *bool) {
		if val := os.Getenv(key); val != "" {
			if v, err := strconv.ParseBool(val); err == nil {
				*dst = v
			}
		}
	}
	setInt := func(key string, dst *int) {
		if val := os.Getenv(key); val != "" {
			if v, err := strconv.Atoi(val); err == nil {
				*dst = v
			}
		}
	}
	setDuration := func(key string, dst *Duration) {
		if val := os.Getenv(key); val != "" {
			if d, err := parseDuration(val); err == nil {
				*dst = Duration(d)
			}
		}
	}

	setString("PROJECT_DIR", &c.ProjectDir)
	setString("DATA_DIR", &c.DataDir)
	setString("DATA_CACHE_DIR", &c.DataCacheDir)
	setString("LOG_LEVEL", &c.LogLevel)
	setBool("CORTEX_DEBUG", &c.Debug)

	setString("DB_DRIVER", &c.DBDriver)
	setString("DB_PATH", &c.DBPath)
	setString("DB_DSN", &c.DBDSN)

	setString("CACHE_BACKEND", &c.CacheBackend)
	setString("REDIS_ADDR", &c.RedisAddr)
	setString("REDIS_PASSWORD", &c.RedisPassword)

	setDuration("CACHE_TTL_REALTIME", &c.CacheTTLRealtime)
	setDuration("CACHE_TTL_MINUTE", &c.CacheTTLMinute)
	setDuration("CACHE_TTL_DAILY", &c.CacheTTLDaily)
	setDuration("CACHE_TTL_HISTORY", &c.CacheTTLHistory)
	setDuration("CACHE_TTL_WATCHLIST", &c.CacheTTLWatchlist)

	setBool("SYNC_ENABLED", &c.SyncEnabled)
	setDuration("SYNC_REALTIME_INTERVAL", &c.RealtimeInterval)
	setDuration("SYNC_SLOW_INTERVAL", &c.SlowInterval)
	setDuration("SYNC_PACING_DELAY", &c.PacingDelay)
	setDuration("SYNC_HISTORY_PACING", &c.HistoryPacing)
	setDuration("PROVIDER_TIMEOUT", &c.ProviderTimeout)
	setString("EXCHANGE_TIMEZONE", &c.ExchangeTimezone)
	setString("NEWS_SYNC_CRON", &c.NewsSyncCron)
	setInt("NEWS_SYNC_HOURS", &c.NewsSyncLookback)
	if val := os.Getenv("NEWS_QUERIES"); val != "" {
		c.NewsQueries = splitList(val)
	}

	setString("LLM_PROVIDER", &c.LLMProvider)
	setString("LLM_BASE_URL", &c.LLMBaseURL)
	setString("LLM_MODEL", &c.LLMModel)
	setInt("LLM_MAX_TOKENS", &c.LLMMaxTokens)
	if val := os.Getenv("LLM_TEMPERATURE"); val != "" {
		if v, err := strconv.ParseFloat(val, 32); err == nil {
			c.LLMTemperature = float32(v)
		}
	}
	setDuration("LLM_TIMEOUT", &c.LLMTimeout)
	setInt("AGENT_MAX_ITERATIONS", &c.AgentMaxIter)
	setInt("SESSION_LIMIT", &c.SessionLimit)
	setDuration("SESSION_IDLE_TTL", &c.SessionIdleTTL)
	setBool("EINO_DEBUG_ENABLED", &c.EinoDebugEnabled)

	setString("DEEPSEEK_API_KEY", &c.DeepSeekAPIKey)
	setString("OPENAI_API_KEY", &c.OpenAIAPIKey)
	setString("DASHSCOPE_API_KEY", &c.OpenAIAPIKey)
	setString("TAVILY_API_KEY", &c.TavilyAPIKey)
	setString("FINNHUB_API_KEY", &c.FinnhubAPIKey)
	setString("LONGPORT_APP_KEY", &c.LongportAppKey)
	setString("LONGPORT_APP_SECRET", &c.LongportAppSecret)
	setString("LONGPORT_ACCESS_TOKEN", &c.LongportAccessToken)
}

// Validate rejects settings the services cannot start with.
func (c Config) Validate() error {
	var errs []error
	switch c.DBDriver {
	case "sqlite":
		if strings.TrimSpace(c.DBPath) == "" {
			errs = append(errs, errors.New("db_path is required for sqlite"))
		}
	case "postgres":
		if strings.TrimSpace(c.DBDSN) == "" {
			errs = append(errs, errors.New("db_dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown db_driver %q", c.DBDriver))
	}
	switch c.CacheBackend {
	case "memory":
	case "file":
		if strings.TrimSpace(c.DataCacheDir) == "" {
			errs = append(errs, errors.New("data_cache_dir is required for file cache"))
		}
	case "redis":
		if strings.TrimSpace(c.RedisAddr) == "" {
			errs = append(errs, errors.New("redis_addr is required for redis cache"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cache_backend %q", c.CacheBackend))
	}
	if c.AgentMaxIter <= 0 {
		errs = append(errs, errors.New("agent_max_iterations must be positive"))
	}
	if c.RealtimeInterval <= 0 || c.SlowInterval <= 0 {
		errs = append(errs, errors.New("sync intervals must be positive"))
	}
	if _, err := time.LoadLocation(c.ExchangeTimezone); err != nil {
		errs = append(errs, fmt.Errorf("exchange_timezone: %w", err))
	}
	return errors.Join(errs...)
}

// Location returns the exchange timezone, falling back to UTC+8.
func (c Config) Location() *time.Location {
	if loc, err := time.LoadLocation(c.ExchangeTimezone); err == nil {
		return loc
	}
	return time.FixedZone("CST", 8*3600)
}

// LLMAPIKey picks the key matching the configured provider.
func (c Config) LLMAPIKey() string {
	if c.LLMProvider == "deepseek" {
		return c.DeepSeekAPIKey
	}
	return c.OpenAIAPIKey
}

func (c *Config) EnsureDirectories() error {
	dirs := []string{c.ProjectDir, c.DataDir, c.DataCacheDir}
	if c.DBDriver == "sqlite" && c.DBPath != "" {
		dirs = append(dirs, filepath.Dir(c.DBPath))
	}
	for _, dir := range dirs {
		path := strings.TrimSpace(dir)
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", path, err)
		}
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
