package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/rewired-gh/arbscout/internal/arbitrage"
)

// Config represents the complete application configuration
type Config struct {
	Feed      FeedConfig      `mapstructure:"feed"`
	Arbitrage ArbitrageConfig `mapstructure:"arbitrage"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Server    ServerConfig    `mapstructure:"server"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// FeedConfig holds the odds source configuration
type FeedConfig struct {
	Mode           string        `mapstructure:"mode"` // http | synthetic
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
	RateLimit      float64       `mapstructure:"rate_limit"` // requests per second
	Matches        int           `mapstructure:"matches"`    // synthetic mode only
	Seed           int64         `mapstructure:"seed"`       // synthetic mode only
}

// ArbitrageConfig holds the evaluator configuration
type ArbitrageConfig struct {
	TotalStake           float64            `mapstructure:"total_stake"`
	Tolerance            float64            `mapstructure:"tolerance"`
	PremiumBookmakers    []string           `mapstructure:"premium_bookmakers"`
	BookmakerReliability map[string]float64 `mapstructure:"bookmaker_reliability"`
	DefaultReliability   float64            `mapstructure:"default_reliability"`
	Enhanced             EnhancedConfig     `mapstructure:"enhanced"`
}

// EnhancedConfig holds the enhanced evaluator configuration
type EnhancedConfig struct {
	Enabled             bool    `mapstructure:"enabled"`
	MinProfitPercentage float64 `mapstructure:"min_profit_percentage"`
	MaxRiskLevel        float64 `mapstructure:"max_risk_level"`
	TimeHorizonHours    float64 `mapstructure:"time_horizon_hours"`
	EnableCrossMarket   bool    `mapstructure:"enable_cross_market"`
	DynamicThresholds   bool    `mapstructure:"dynamic_thresholds"`
}

// MonitorConfig holds refresh cycle and alerting configuration
type MonitorConfig struct {
	TopK               int  `mapstructure:"top_k"`
	CooldownMultiplier int  `mapstructure:"cooldown_multiplier"`
	GuaranteedOnly     bool `mapstructure:"guaranteed_only"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// StorageConfig holds storage and persistence configuration
type StorageConfig struct {
	MaxOpportunities int    `mapstructure:"max_opportunities"`
	DBPath           string `mapstructure:"db_path"`
}

// ServerConfig holds HTTP API configuration
type ServerConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Addr           string        `mapstructure:"addr"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
}

// RedisConfig holds the stream publisher configuration
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Stream   string `mapstructure:"stream"`
	MaxLen   int64  `mapstructure:"max_len"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables. A .env file
// in the working directory is applied to the environment first.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	// ARBSCOUT_TELEGRAM_BOT_TOKEN overrides telegram.bot_token
	v.SetEnvPrefix("ARBSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	defaults := arbitrage.DefaultTables()
	enhanced := arbitrage.DefaultEnhancedOptions()

	v.SetDefault("feed.mode", "http")
	v.SetDefault("feed.base_url", "http://localhost:8081")
	v.SetDefault("feed.api_key", "")
	v.SetDefault("feed.poll_interval", "30s")
	v.SetDefault("feed.timeout", "10s")
	v.SetDefault("feed.max_retries", 3)
	v.SetDefault("feed.retry_delay_base", "1s")
	v.SetDefault("feed.rate_limit", 1.0)
	v.SetDefault("feed.matches", 20)
	v.SetDefault("feed.seed", 1)

	v.SetDefault("arbitrage.total_stake", arbitrage.DefaultTotalStake)
	v.SetDefault("arbitrage.tolerance", arbitrage.DefaultTolerance)
	v.SetDefault("arbitrage.premium_bookmakers", defaults.PremiumBookmakers)
	v.SetDefault("arbitrage.bookmaker_reliability", defaults.Reliability)
	v.SetDefault("arbitrage.default_reliability", defaults.DefaultReliability)
	v.SetDefault("arbitrage.enhanced.enabled", false)
	v.SetDefault("arbitrage.enhanced.min_profit_percentage", enhanced.MinProfitPercentage)
	v.SetDefault("arbitrage.enhanced.max_risk_level", enhanced.MaxRiskLevel)
	v.SetDefault("arbitrage.enhanced.time_horizon_hours", enhanced.TimeHorizonHours)
	v.SetDefault("arbitrage.enhanced.enable_cross_market", enhanced.EnableCrossMarket)
	v.SetDefault("arbitrage.enhanced.dynamic_thresholds", enhanced.DynamicThresholds)

	v.SetDefault("monitor.top_k", 10)
	v.SetDefault("monitor.cooldown_multiplier", 5)
	v.SetDefault("monitor.guaranteed_only", true)

	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	v.SetDefault("storage.max_opportunities", 5000)
	v.SetDefault("storage.db_path", "./data/arbscout.db")

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "15s")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.stream", "arbscout.opportunities")
	v.SetDefault("redis.max_len", 10000)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	switch c.Feed.Mode {
	case "http":
		if c.Feed.BaseURL == "" {
			return fmt.Errorf("feed.base_url is required in http mode")
		}
	case "synthetic":
		if c.Feed.Matches < 1 {
			return fmt.Errorf("feed.matches must be at least 1 in synthetic mode")
		}
	default:
		return fmt.Errorf("feed.mode must be one of: http, synthetic")
	}
	if c.Feed.PollInterval < 10*time.Second {
		return fmt.Errorf("feed.poll_interval must be at least 10 seconds")
	}
	if c.Feed.MaxRetries < 0 {
		return fmt.Errorf("feed.max_retries must not be negative")
	}
	if c.Feed.RateLimit <= 0 {
		return fmt.Errorf("feed.rate_limit must be positive")
	}

	if c.Arbitrage.TotalStake <= 0 {
		return fmt.Errorf("arbitrage.total_stake must be positive")
	}
	if c.Arbitrage.Tolerance < 1.0 || c.Arbitrage.Tolerance > 1.1 {
		return fmt.Errorf("arbitrage.tolerance must be between 1.0 and 1.1")
	}
	if c.Arbitrage.DefaultReliability < 0 || c.Arbitrage.DefaultReliability > 1 {
		return fmt.Errorf("arbitrage.default_reliability must be between 0 and 1")
	}
	for name, r := range c.Arbitrage.BookmakerReliability {
		if r < 0 || r > 1 {
			return fmt.Errorf("arbitrage.bookmaker_reliability.%s must be between 0 and 1", name)
		}
	}
	if c.Arbitrage.Enhanced.MaxRiskLevel < 0 || c.Arbitrage.Enhanced.MaxRiskLevel > 1 {
		return fmt.Errorf("arbitrage.enhanced.max_risk_level must be between 0 and 1")
	}
	if c.Arbitrage.Enhanced.MinProfitPercentage < 0 {
		return fmt.Errorf("arbitrage.enhanced.min_profit_percentage must not be negative")
	}

	if c.Monitor.TopK < 1 {
		return fmt.Errorf("monitor.top_k must be at least 1")
	}
	if c.Monitor.CooldownMultiplier < 0 {
		return fmt.Errorf("monitor.cooldown_multiplier must not be negative")
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	if c.Storage.MaxOpportunities < 1 {
		return fmt.Errorf("storage.max_opportunities must be at least 1")
	}
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}

	if c.Server.Enabled && c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required when the server is enabled")
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required when redis is enabled")
		}
		if c.Redis.Stream == "" {
			return fmt.Errorf("redis.stream is required when redis is enabled")
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// Tables builds the evaluator weight tables from the arbitrage section.
func (a ArbitrageConfig) Tables() arbitrage.Tables {
	t := arbitrage.DefaultTables()
	if len(a.PremiumBookmakers) > 0 {
		t.PremiumBookmakers = a.PremiumBookmakers
	}
	if len(a.BookmakerReliability) > 0 {
		t.Reliability = a.BookmakerReliability
	}
	t.DefaultReliability = a.DefaultReliability
	return t
}

// EnhancedOptions converts the enhanced section into evaluator options.
func (a ArbitrageConfig) EnhancedOptions() arbitrage.EnhancedOptions {
	return arbitrage.EnhancedOptions{
		MinProfitPercentage: a.Enhanced.MinProfitPercentage,
		MaxRiskLevel:        a.Enhanced.MaxRiskLevel,
		TimeHorizonHours:    a.Enhanced.TimeHorizonHours,
		EnableCrossMarket:   a.Enhanced.EnableCrossMarket,
		DynamicThresholds:   a.Enhanced.DynamicThresholds,
	}
}
