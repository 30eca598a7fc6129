// Package config provides configuration management for promptvid using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort            = 8080
	defaultServerTimeout         = 30 * time.Second
	defaultShutdownTimeout       = 10 * time.Second
	defaultMaxOpenConns          = 25
	defaultMaxIdleConns          = 10
	defaultConnMaxIdleTime       = 30 * time.Minute
	defaultSegmentDuration       = 12
	defaultMaxSegmentRetries     = 3
	defaultMaxConcurrentJobs     = 1
	defaultPollingIntervalMS     = 10000
	defaultVideoTimeout          = 30 * time.Minute
	defaultSegmentTimeout        = 5 * time.Minute
	defaultLockTimeout           = 30 * time.Minute
	defaultCacheHashLength       = 32
	defaultCacheTTL              = 7 * 24 * time.Hour
	defaultProviderTimeout       = 60 * time.Second
	defaultProviderRetryAttempts = 3
	defaultProviderRetryDelay    = 2 * time.Second
	defaultCircuitBreakerThresh  = 3
	defaultCircuitBreakerTimeout = 30 * time.Second
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Lock      LockConfig      `mapstructure:"lock"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Providers ProvidersConfig `mapstructure:"providers"`
	FFmpeg    FFmpegConfig    `mapstructure:"ffmpeg"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// StorageConfig holds file storage configuration. BaseDir is the sandbox
// root a storage.Layout is built on; BaseURL is
// used to derive public URLs for served files.
type StorageConfig struct {
	BaseDir string `mapstructure:"base_dir"`
	BaseURL string `mapstructure:"base_url"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// PipelineConfig holds video-processing pipeline configuration.
type PipelineConfig struct {
	MinVideoDuration      int           `mapstructure:"min_video_duration"`
	MaxVideoDuration      int           `mapstructure:"max_video_duration"`
	SegmentDuration       int           `mapstructure:"segment_duration"`
	MaxSegmentRetries     int           `mapstructure:"max_segment_retries"`
	MaxConcurrentJobs     int           `mapstructure:"max_concurrent_jobs"`
	PollingInterval       time.Duration `mapstructure:"polling_interval"`
	VideoTimeout          time.Duration `mapstructure:"video_timeout"`
	SegmentTimeout        time.Duration `mapstructure:"segment_timeout"`
	FadeDuration          float64       `mapstructure:"fade_duration"`
	SyncToleranceSeconds  float64       `mapstructure:"sync_tolerance_seconds"`
	EnableGCHints         bool          `mapstructure:"enable_gc_hints"`
}

// LockConfig holds the global processing lock's configuration.
type LockConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// CacheConfig holds the content-addressed segment cache's configuration.
type CacheConfig struct {
	HashLength int           `mapstructure:"hash_length"`
	TTL        time.Duration `mapstructure:"ttl"`
}

// ProviderEndpoint configures one external capability provider (storyboard,
// video segment generation, or narration synthesis).
type ProviderEndpoint struct {
	BaseURL       string        `mapstructure:"base_url"`
	APIKey        string        `mapstructure:"api_key"`
	Model         string        `mapstructure:"model"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
}

// ProvidersConfig holds the three external-provider configurations. An
// empty BaseURL means the in-memory fake implementation is wired in place
// of an HTTP-backed one (used for local development and tests).
type ProvidersConfig struct {
	Storyboard   ProviderEndpoint `mapstructure:"storyboard"`
	VideoSegment ProviderEndpoint `mapstructure:"video_segment"`
	Narration    ProviderEndpoint `mapstructure:"narration"`
}

// FFmpegConfig holds FFmpeg binary configuration.
type FFmpegConfig struct {
	BinaryPath string `mapstructure:"binary_path"` // Path to ffmpeg binary (empty = auto-detect)
	ProbePath  string `mapstructure:"probe_path"`  // Path to ffprobe binary (empty = auto-detect)
}

// SchedulerConfig holds the cron schedules for the three internal
// maintenance jobs (lock sweep, segment-cache cleanup, orphaned-run
// recovery sweep).
type SchedulerConfig struct {
	LockSweepCron     string `mapstructure:"lock_sweep_cron"`
	CacheCleanupCron  string `mapstructure:"cache_cleanup_cron"`
	RecoverySweepCron string `mapstructure:"recovery_sweep_cron"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with PROMPTVID_ and use underscores for nesting.
// Example: PROMPTVID_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	SetDefaults(v)

	// Config file settings
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/promptvid")
		v.AddConfigPath("$HOME/.promptvid")
	}

	// Environment variable settings
	v.SetEnvPrefix("PROMPTVID")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults are in place.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "promptvid.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	// Storage defaults
	v.SetDefault("storage.base_dir", "./data")
	v.SetDefault("storage.base_url", "http://localhost:8080")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Pipeline defaults
	v.SetDefault("pipeline.min_video_duration", 5)
	v.SetDefault("pipeline.max_video_duration", 120)
	v.SetDefault("pipeline.segment_duration", defaultSegmentDuration)
	v.SetDefault("pipeline.max_segment_retries", defaultMaxSegmentRetries)
	v.SetDefault("pipeline.max_concurrent_jobs", defaultMaxConcurrentJobs)
	v.SetDefault("pipeline.polling_interval", defaultPollingIntervalMS*time.Millisecond)
	v.SetDefault("pipeline.video_timeout", defaultVideoTimeout)
	v.SetDefault("pipeline.segment_timeout", defaultSegmentTimeout)
	v.SetDefault("pipeline.fade_duration", 0.5)
	v.SetDefault("pipeline.sync_tolerance_seconds", 0.5)
	v.SetDefault("pipeline.enable_gc_hints", true)

	// Lock defaults
	v.SetDefault("lock.timeout", defaultLockTimeout)

	// Cache defaults
	v.SetDefault("cache.hash_length", defaultCacheHashLength)
	v.SetDefault("cache.ttl", defaultCacheTTL)

	// Provider defaults
	v.SetDefault("providers.storyboard.timeout", defaultProviderTimeout)
	v.SetDefault("providers.storyboard.retry_attempts", defaultProviderRetryAttempts)
	v.SetDefault("providers.storyboard.retry_delay", defaultProviderRetryDelay)
	v.SetDefault("providers.video_segment.timeout", defaultProviderTimeout)
	v.SetDefault("providers.video_segment.retry_attempts", defaultProviderRetryAttempts)
	v.SetDefault("providers.video_segment.retry_delay", defaultProviderRetryDelay)
	v.SetDefault("providers.narration.timeout", defaultProviderTimeout)
	v.SetDefault("providers.narration.retry_attempts", defaultProviderRetryAttempts)
	v.SetDefault("providers.narration.retry_delay", defaultProviderRetryDelay)

	// FFmpeg defaults
	v.SetDefault("ffmpeg.binary_path", "")
	v.SetDefault("ffmpeg.probe_path", "")

	// Scheduler defaults: lock sweep every 5 minutes, cache cleanup daily at
	// 03:00, recovery sweep every 30 minutes.
	v.SetDefault("scheduler.lock_sweep_cron", "0 */5 * * * *")
	v.SetDefault("scheduler.cache_cleanup_cron", "0 0 3 * * *")
	v.SetDefault("scheduler.recovery_sweep_cron", "0 */30 * * * *")
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Server validation
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	// Database validation
	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	// Storage validation
	if c.Storage.BaseDir == "" {
		return fmt.Errorf("storage.base_dir is required")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	// Pipeline validation
	if c.Pipeline.MinVideoDuration < 1 {
		return fmt.Errorf("pipeline.min_video_duration must be at least 1")
	}
	if c.Pipeline.MaxVideoDuration < c.Pipeline.MinVideoDuration {
		return fmt.Errorf("pipeline.max_video_duration must be >= pipeline.min_video_duration")
	}
	if c.Pipeline.SegmentDuration < 1 {
		return fmt.Errorf("pipeline.segment_duration must be at least 1")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
