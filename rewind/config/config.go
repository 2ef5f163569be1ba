// Package config loads rewind settings from defaults, an optional YAML file
// and REWIND_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/theimaginaryfoundation/chat-rewind/rewind"
	"github.com/theimaginaryfoundation/chat-rewind/rewind/privacy"
)

const EnvPrefix = "REWIND"

// Config is the full application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Classify ClassifyConfig `mapstructure:"classify"`
	Summary  SummaryConfig  `mapstructure:"summary"`
	Bangers  BangersConfig  `mapstructure:"bangers"`
	Privacy  PrivacyConfig  `mapstructure:"privacy"`
	Storage  StorageConfig  `mapstructure:"storage"`
	AI       AIConfig       `mapstructure:"ai"`
}

type AppConfig struct {
	LogLevel string `mapstructure:"log_level"`
}

// IngestConfig bounds memory between the reading and parsing halves.
type IngestConfig struct {
	TargetFile     string `mapstructure:"target_file"`
	HighWaterBytes int    `mapstructure:"high_water_bytes"`
	LowWaterBytes  int    `mapstructure:"low_water_bytes"`
	ChunkBytes     int    `mapstructure:"chunk_bytes"`
	YieldEvery     int    `mapstructure:"yield_every"`
}

type ClassifyConfig struct {
	Timezone      string `mapstructure:"timezone"`
	LookbackDays  int    `mapstructure:"lookback_days"`
	MaxVocabulary int    `mapstructure:"max_vocabulary"`
}

type SummaryConfig struct {
	TopN             int `mapstructure:"top_n"`
	MinPhraseCount   int `mapstructure:"min_phrase_count"`
	MinNicknameCount int `mapstructure:"min_nickname_count"`
}

type BangersConfig struct {
	Spice            string `mapstructure:"spice"`
	IncludeSensitive bool   `mapstructure:"include_sensitive"`
}

// PrivacyConfig adds redaction patterns on top of the built-in ones.
type PrivacyConfig struct {
	Patterns []string `mapstructure:"patterns"`
}

type StorageConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DBPath  string `mapstructure:"db_path"`
}

type AIConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Model   string `mapstructure:"model"`
	APIKey  string `mapstructure:"api_key"`
}

// Load reads configuration. With an empty path it looks for rewind.yaml in
// ./config and the working directory and falls back to defaults when none
// exists; an explicit path must exist.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("rewind")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config.Load: read %s: %w", configPath, err)
		}
		slog.Debug("config file not found, using defaults")
	} else {
		slog.Debug("config file loaded", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: decode: %w", err)
	}
	cfg.AI.APIKey = expandEnv(cfg.AI.APIKey)
	return &cfg, nil
}

// Default returns the configuration Load yields with no file and no
// environment overrides.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(err)
	}
	cfg.AI.APIKey = expandEnv(cfg.AI.APIKey)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.log_level", "info")

	v.SetDefault("ingest.target_file", "conversations.json")
	v.SetDefault("ingest.high_water_bytes", 16<<20)
	v.SetDefault("ingest.low_water_bytes", 8<<20)
	v.SetDefault("ingest.chunk_bytes", 64<<10)
	v.SetDefault("ingest.yield_every", 25)

	v.SetDefault("classify.timezone", "UTC")
	v.SetDefault("classify.lookback_days", 0)
	v.SetDefault("classify.max_vocabulary", 50000)

	v.SetDefault("summary.top_n", 10)
	v.SetDefault("summary.min_phrase_count", 3)
	v.SetDefault("summary.min_nickname_count", 2)

	v.SetDefault("bangers.spice", string(rewind.SpiceSpicy))
	v.SetDefault("bangers.include_sensitive", false)

	v.SetDefault("privacy.patterns", []string{})

	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.db_path", "./data/rewind.db")

	v.SetDefault("ai.enabled", false)
	v.SetDefault("ai.model", "gpt-5-mini")
	v.SetDefault("ai.api_key", "${OPENAI_API_KEY}")
}

// expandEnv expands a whole-value ${VAR} placeholder.
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return os.Getenv(s[2 : len(s)-1])
	}
	return s
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if _, err := ParseLevel(c.App.LogLevel); err != nil {
		return err
	}
	if strings.TrimSpace(c.Ingest.TargetFile) == "" {
		return errors.New("ingest.target_file is required")
	}
	if c.Ingest.HighWaterBytes <= 0 || c.Ingest.LowWaterBytes < 0 {
		return errors.New("ingest.high_water_bytes must be > 0 and ingest.low_water_bytes >= 0")
	}
	if c.Ingest.LowWaterBytes >= c.Ingest.HighWaterBytes {
		return errors.New("ingest.low_water_bytes must be below ingest.high_water_bytes")
	}
	if c.Ingest.ChunkBytes <= 0 || c.Ingest.YieldEvery <= 0 {
		return errors.New("ingest.chunk_bytes and ingest.yield_every must be > 0")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Classify.LookbackDays < 0 {
		return errors.New("classify.lookback_days must be >= 0")
	}
	if c.Summary.TopN <= 0 {
		return errors.New("summary.top_n must be > 0")
	}
	if _, err := rewind.ParseSpice(c.Bangers.Spice); err != nil {
		return fmt.Errorf("bangers.spice: %w", err)
	}
	if _, err := privacy.New(c.Privacy.Patterns); err != nil {
		return fmt.Errorf("privacy.patterns: %w", err)
	}
	if c.Storage.Enabled && strings.TrimSpace(c.Storage.DBPath) == "" {
		return errors.New("storage.db_path is required when storage is enabled")
	}
	if c.AI.Enabled {
		if strings.TrimSpace(c.AI.Model) == "" {
			return errors.New("ai.model is required when ai is enabled")
		}
		if strings.TrimSpace(c.AI.APIKey) == "" {
			return errors.New("ai.api_key is required when ai is enabled (set OPENAI_API_KEY)")
		}
	}
	return nil
}

// Location resolves classify.timezone.
func (c *Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Classify.Timezone)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("classify.timezone: %w", err)
	}
	return loc, nil
}

// PipelineOptions maps the configuration onto rewind.Options. The caller
// adds the logger, progress callback and metrics.
func (c *Config) PipelineOptions() (rewind.Options, error) {
	loc, err := c.Location()
	if err != nil {
		return rewind.Options{}, err
	}
	sanitizer, err := privacy.New(c.Privacy.Patterns)
	if err != nil {
		return rewind.Options{}, err
	}
	return rewind.Options{
		TargetFile:       c.Ingest.TargetFile,
		HighWaterBytes:   c.Ingest.HighWaterBytes,
		LowWaterBytes:    c.Ingest.LowWaterBytes,
		ChunkBytes:       c.Ingest.ChunkBytes,
		YieldEvery:       c.Ingest.YieldEvery,
		Location:         loc,
		LookbackDays:     c.Classify.LookbackDays,
		TopN:             c.Summary.TopN,
		MinPhraseCount:   c.Summary.MinPhraseCount,
		MinNicknameCount: c.Summary.MinNicknameCount,
		MaxVocabulary:    c.Classify.MaxVocabulary,
		Anonymizer:       sanitizer,
	}, nil
}

// Redactor is the sanitizer with the configured extra patterns.
func (c *Config) Redactor() (privacy.Redactor, error) {
	return privacy.New(c.Privacy.Patterns)
}

// BangerOptions maps the bangers section.
func (c *Config) BangerOptions() (rewind.BangerOptions, error) {
	spice, err := rewind.ParseSpice(c.Bangers.Spice)
	if err != nil {
		return rewind.BangerOptions{}, err
	}
	return rewind.BangerOptions{Spice: spice, IncludeSensitive: c.Bangers.IncludeSensitive}, nil
}

// ParseLevel maps a log level name onto slog.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("app.log_level: unknown level %q", level)
	}
}

// SetupLogger installs a text handler on stderr as the default logger.
// Stdout is left to the command's output.
func SetupLogger(level string) *slog.Logger {
	lvl, _ := ParseLevel(level)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}
