package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config represents runtime configuration derived from environment variables.
type Config struct {
	Server    ServerConfig
	Logging   LoggingConfig
	Database  DatabaseConfig
	OpenAI    OpenAIConfig
	Pipeline  PipelineConfig
	Media     MediaConfig
	Publisher PublisherConfig
	Scheduler SchedulerConfig
}

// ServerConfig holds HTTP server runtime parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// LoggingConfig represents structured logging configuration.
type LoggingConfig struct {
	Level  slog.Level
	Format string
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	URL            string
	MaxConnections int
	ConnectTimeout time.Duration
}

// OpenAIConfig holds parameters for the writer and judge model calls.
type OpenAIConfig struct {
	APIKey            string
	WriterModel       string
	JudgeModel        string
	Temperature       float32
	MaxOutputTokens   int
	StandardTimeout   time.Duration // drafts, verification
	GenerationTimeout time.Duration // long-form thread generation
}

// PipelineConfig holds the verification-gated generation loop tuning.
// The thresholds are heuristic; they ship as configuration so they can
// be re-tuned against a labeled evaluation set without a code change.
type PipelineConfig struct {
	TargetConfidence    float64 // >= target: publish without review
	MinQueueConfidence  float64 // >= min (< target): park for human review
	CorrectionFloor     float64 // >= floor (< min): attempt a correction pass
	BestResultQueueBar  float64 // exhausted attempts resolve to QUEUED at or above this
	MaxAttempts         int
	CrossRefTrigger     float64 // primary confidence that triggers the secondary pass
	PrimaryWeight       float64
	SecondaryWeight     float64
	ConfidenceCap       float64 // never report absolute certainty
	DuplicateWindowDays int
	SimilarityThreshold float64 // token-overlap ratio for digest-match checks
	TermOverlapRatio    float64 // union overlap ratio for key-term checks
	TermOverlapMin      int     // minimum shared terms for key-term checks
	DailyPostLimit      int
}

// MediaConfig holds media acquisition tuning.
type MediaConfig struct {
	ProviderTimeout  time.Duration
	CooldownDays     int
	MaxBytes         int
	LedgerMaxAgeDays int
}

// PublisherConfig holds social platform API credentials.
type PublisherConfig struct {
	APIKey            string
	APISecret         string
	AccessToken       string
	AccessTokenSecret string
	BearerToken       string
}

// SchedulerConfig controls the internal run trigger.
type SchedulerConfig struct {
	Enabled       bool
	RunInterval   time.Duration
	PostInterval  time.Duration // approved-queue drain cadence
	PurgeInterval time.Duration // fingerprint/ledger retention pass
}

const (
	defaultPort            = "8080"
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second

	defaultLogFormat = "json"

	defaultWriterModel = "gpt-4o"
	defaultJudgeModel  = "gpt-4o"
	defaultTemperature = 0.7
	defaultMaxOutput   = 1200
	defaultStdTimeout  = 30 * time.Second
	defaultGenTimeout  = 60 * time.Second
)

// Load reads configuration from environment variables, applying defaults when
// values are not provided or invalid.
func Load() (Config, error) {
	// Cloud Run sets PORT, but allow SERVER_PORT override for local dev
	port := getEnv("PORT", "")
	if port == "" {
		port = getEnv("SERVER_PORT", defaultPort)
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            port,
			ReadTimeout:     defaultReadTimeout,
			WriteTimeout:    defaultWriteTimeout,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Logging: LoggingConfig{
			Level:  slog.LevelInfo,
			Format: defaultLogFormat,
		},
		Database: DatabaseConfig{
			URL:            os.Getenv("DATABASE_URL"),
			MaxConnections: 25,
			ConnectTimeout: 10 * time.Second,
		},
		OpenAI: OpenAIConfig{
			APIKey:            os.Getenv("OPENAI_API_KEY"),
			WriterModel:       getEnv("OPENAI_WRITER_MODEL", defaultWriterModel),
			JudgeModel:        getEnv("OPENAI_JUDGE_MODEL", defaultJudgeModel),
			Temperature:       defaultTemperature,
			MaxOutputTokens:   defaultMaxOutput,
			StandardTimeout:   defaultStdTimeout,
			GenerationTimeout: defaultGenTimeout,
		},
		Pipeline: DefaultPipelineConfig(),
		Media:    DefaultMediaConfig(),
		Publisher: PublisherConfig{
			APIKey:            os.Getenv("TWITTER_API_KEY"),
			APISecret:         os.Getenv("TWITTER_API_SECRET"),
			AccessToken:       os.Getenv("TWITTER_ACCESS_TOKEN"),
			AccessTokenSecret: os.Getenv("TWITTER_ACCESS_TOKEN_SECRET"),
			BearerToken:       os.Getenv("TWITTER_BEARER_TOKEN"),
		},
		Scheduler: SchedulerConfig{
			Enabled:       getEnv("SCHEDULER_ENABLED", "true") == "true",
			RunInterval:   6 * time.Hour,
			PostInterval:  15 * time.Minute,
			PurgeInterval: 24 * time.Hour,
		},
	}

	if v := os.Getenv("OPENAI_TEMPERATURE"); v != "" {
		temp, err := strconv.ParseFloat(v, 32)
		if err != nil || temp < 0 || temp > 2 {
			return Config{}, fmt.Errorf("invalid OPENAI_TEMPERATURE: must be a number in [0, 2]")
		}
		cfg.OpenAI.Temperature = float32(temp)
	}

	if v := os.Getenv("SERVER_READ_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_READ_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.ReadTimeout = d
	}

	if v := os.Getenv("SERVER_WRITE_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_WRITE_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.WriteTimeout = d
	}

	if v := os.Getenv("SERVER_SHUTDOWN_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_SHUTDOWN_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.ShutdownTimeout = d
	}

	if v := os.Getenv("RUN_INTERVAL_MINUTES"); v != "" {
		minutes, err := strconv.Atoi(v)
		if err != nil || minutes <= 0 {
			return Config{}, fmt.Errorf("invalid RUN_INTERVAL_MINUTES: must be a positive integer")
		}
		cfg.Scheduler.RunInterval = time.Duration(minutes) * time.Minute
	}

	if v := os.Getenv("DUPLICATE_WINDOW_DAYS"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days <= 0 {
			return Config{}, fmt.Errorf("invalid DUPLICATE_WINDOW_DAYS: must be a positive integer")
		}
		cfg.Pipeline.DuplicateWindowDays = days
	}

	if v := os.Getenv("MEDIA_COOLDOWN_DAYS"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days <= 0 {
			return Config{}, fmt.Errorf("invalid MEDIA_COOLDOWN_DAYS: must be a positive integer")
		}
		cfg.Media.CooldownDays = days
	}

	if v := os.Getenv("DAILY_POST_LIMIT"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			return Config{}, fmt.Errorf("invalid DAILY_POST_LIMIT: must be a positive integer")
		}
		cfg.Pipeline.DailyPostLimit = limit
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		cfg.Logging.Level = level
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		switch v {
		case "json", "text":
			cfg.Logging.Format = v
		default:
			return Config{}, fmt.Errorf("invalid LOG_FORMAT: must be 'json' or 'text'")
		}
	}

	return cfg, nil
}

// DefaultPipelineConfig returns the shipped threshold set.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		TargetConfidence:    95,
		MinQueueConfidence:  90,
		CorrectionFloor:     70,
		BestResultQueueBar:  85,
		MaxAttempts:         3,
		CrossRefTrigger:     85,
		PrimaryWeight:       0.7,
		SecondaryWeight:     0.3,
		ConfidenceCap:       98,
		DuplicateWindowDays: 30,
		SimilarityThreshold: 0.7,
		TermOverlapRatio:    0.6,
		TermOverlapMin:      3,
		DailyPostLimit:      8,
	}
}

// DefaultMediaConfig returns the shipped media acquisition tuning.
func DefaultMediaConfig() MediaConfig {
	return MediaConfig{
		ProviderTimeout:  15 * time.Second,
		CooldownDays:     30,
		MaxBytes:         4 << 20,
		LedgerMaxAgeDays: 90,
	}
}

func parseSeconds(raw string) (time.Duration, error) {
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("must be a non-negative integer")
	}
	return time.Duration(seconds) * time.Second, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch raw {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("must be one of debug, info, warn, error")
	}
}
