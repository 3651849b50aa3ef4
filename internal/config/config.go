package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Cache    CacheConfig    `yaml:"cache" mapstructure:"cache"`
	Scoring  ScoringConfig  `yaml:"scoring" mapstructure:"scoring"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
	// ConnectAttempts bounds startup connection retries for postgres and redis.
	ConnectAttempts int `yaml:"connect_attempts" mapstructure:"connect_attempts"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	RateLimitBurst int      `yaml:"rate_limit_burst" mapstructure:"rate_limit_burst"`
	MaxUploadBytes int64    `yaml:"max_upload_bytes" mapstructure:"max_upload_bytes"`
}

// PipelineConfig configures batch scoring.
type PipelineConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// CacheConfig configures the optional Redis export cache.
// An empty RedisURL disables caching.
type CacheConfig struct {
	RedisURL   string `yaml:"redis_url" mapstructure:"redis_url"`
	TTLMinutes int    `yaml:"ttl_minutes" mapstructure:"ttl_minutes"`
}

// ScoringConfig is the tunable scoring policy. Zero values mean "use the
// built-in default" when resolved by the scorer package, so a setting in
// config.yaml or the environment cannot turn a weight, bonus or penalty off.
// Set zeros in the file named by PolicyFile instead; values read from it are
// taken as-is.
type ScoringConfig struct {
	PolicyFile string `yaml:"policy_file" mapstructure:"policy_file"`

	// Weights of the sub-scores (should sum to 1).
	RatingWeight      float64 `yaml:"rating_weight" mapstructure:"rating_weight"`
	ReviewWeight      float64 `yaml:"review_weight" mapstructure:"review_weight"`
	LocationWeight    float64 `yaml:"location_weight" mapstructure:"location_weight"`
	TransactionWeight float64 `yaml:"transaction_weight" mapstructure:"transaction_weight"`

	// Neutral substitutes for absent inputs.
	NeutralRating           float64 `yaml:"neutral_rating" mapstructure:"neutral_rating"`
	NeutralReviewScore      float64 `yaml:"neutral_review_score" mapstructure:"neutral_review_score"`
	NeutralLocationScore    float64 `yaml:"neutral_location_score" mapstructure:"neutral_location_score"`
	NeutralTransactionScore float64 `yaml:"neutral_transaction_score" mapstructure:"neutral_transaction_score"`

	// ReviewSaturation is the review count at which the review sub-score reaches 100.
	ReviewSaturation int `yaml:"review_saturation" mapstructure:"review_saturation"`

	// Transaction-history signal.
	TransactionBaseScore float64  `yaml:"transaction_base_score" mapstructure:"transaction_base_score"`
	FrequencyBonus       float64  `yaml:"frequency_bonus" mapstructure:"frequency_bonus"`
	RecencyBonus         float64  `yaml:"recency_bonus" mapstructure:"recency_bonus"`
	InactivityPenalty    float64  `yaml:"inactivity_penalty" mapstructure:"inactivity_penalty"`
	FrequencyKeywords    []string `yaml:"frequency_keywords" mapstructure:"frequency_keywords"`
	RecencyKeywords      []string `yaml:"recency_keywords" mapstructure:"recency_keywords"`
	InactivityKeywords   []string `yaml:"inactivity_keywords" mapstructure:"inactivity_keywords"`

	// Priority cutoffs: score >= HighThreshold is high, score < MediumThreshold is low.
	HighThreshold   int `yaml:"high_threshold" mapstructure:"high_threshold"`
	MediumThreshold int `yaml:"medium_threshold" mapstructure:"medium_threshold"`

	// CategoryMultipliers maps lower-cased business category to its deal-value multiplier.
	CategoryMultipliers map[string]float64 `yaml:"category_multipliers" mapstructure:"category_multipliers"`
	// LocationScores maps a lower-cased city or location keyword to a 0-100 score.
	LocationScores map[string]float64 `yaml:"location_scores" mapstructure:"location_scores"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Validate checks the settings required by a command mode ("serve" or "cli").
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be sqlite or postgres (got %q)", c.Store.Driver))
	}

	if c.Pipeline.Workers < 1 || c.Pipeline.Workers > 64 {
		errs = append(errs, "pipeline.workers must be between 1 and 64")
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Server.MaxUploadBytes <= 0 {
			errs = append(errs, "server.max_upload_bytes must be > 0")
		}
		if c.Server.RateLimitRPS < 0 {
			errs = append(errs, "server.rate_limit_rps must be >= 0")
		}
	case "cli":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ANALYZER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "analyzer.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("store.connect_attempts", 3)
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("server.rate_limit_rps", 10)
	v.SetDefault("server.rate_limit_burst", 20)
	v.SetDefault("server.max_upload_bytes", 16<<20)
	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.ttl_minutes", 60)
	v.SetDefault("scoring.policy_file", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
