// Package config handles loading and validating the podcastd configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for the podcastd daemon.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Transports TransportsConfig `mapstructure:"transports"`
	Auth       AuthConfig       `mapstructure:"auth"`
	LLM        LLMConfig        `mapstructure:"llm"`
	TTS        TTSConfig        `mapstructure:"tts"`
	Media      MediaConfig      `mapstructure:"media"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Jobs       JobsConfig       `mapstructure:"jobs"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds the health check server settings.
type ServerConfig struct {
	HealthPort int `mapstructure:"health_port"`
}

// TransportsConfig holds the configuration for each transport layer.
type TransportsConfig struct {
	HTTP HTTPConfig `mapstructure:"http"`
	GRPC GRPCConfig `mapstructure:"grpc"`
}

// HTTPConfig configures the HTTP/WebSocket API.
type HTTPConfig struct {
	Enabled   bool  `mapstructure:"enabled"`
	Port      int   `mapstructure:"port"`
	MaxFormMB int64 `mapstructure:"max_form_mb"`
}

// GRPCConfig configures the gRPC transport (health service).
type GRPCConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// AuthConfig controls request signature verification.
// An empty Secret disables verification.
type AuthConfig struct {
	Secret  string        `mapstructure:"secret"`
	MaxSkew time.Duration `mapstructure:"max_skew"`
}

// LLMConfig holds defaults for the chat completion backend.
// Requests may override the key, base URL and model per job.
type LLMConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Stream  bool          `mapstructure:"stream"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// TTSConfig locates provider configuration and tunes per-line synthesis.
type TTSConfig struct {
	ConfigDir      string        `mapstructure:"config_dir"`     // directory holding <provider>.json / <provider>.toml
	ProvidersFile  string        `mapstructure:"providers_file"` // fallback credentials blob
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	DefaultThreads int           `mapstructure:"default_threads"`
	MaxThreads     int           `mapstructure:"max_threads"`
}

// MediaConfig holds ffmpeg settings and the working directory for clips.
type MediaConfig struct {
	FFmpeg             string        `mapstructure:"ffmpeg"`
	FFprobe            string        `mapstructure:"ffprobe"`
	WorkDir            string        `mapstructure:"work_dir"`
	SilenceThresholdDB float64       `mapstructure:"silence_threshold_db"`
	MinSilence         time.Duration `mapstructure:"min_silence"`
	Bitrate            string        `mapstructure:"bitrate"`
}

// StorageConfig selects where merged artifacts live.
type StorageConfig struct {
	Backend string     `mapstructure:"backend"` // "local" or "nats"
	Dir     string     `mapstructure:"dir"`     // local backend directory
	NATS    NATSConfig `mapstructure:"nats"`
}

// NATSConfig holds JetStream object store settings.
type NATSConfig struct {
	URL    string `mapstructure:"url"`
	Bucket string `mapstructure:"bucket"`
}

// JobsConfig holds orchestrator retention and callback policy.
type JobsConfig struct {
	Retention     time.Duration  `mapstructure:"retention"`
	SweepInterval time.Duration  `mapstructure:"sweep_interval"`
	Callback      CallbackConfig `mapstructure:"callback"`
}

// CallbackConfig controls outbound job-completion callbacks.
type CallbackConfig struct {
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// Load reads the configuration from file, environment variables, and defaults.
// If configFile is non-empty it is used directly; otherwise the standard
// search order applies: ./podcastd.yaml, ./configs/podcastd.yaml, /etc/podcastd/podcastd.yaml.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("podcastd")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/podcastd")
	}

	// Environment variables: PODCASTD_TRANSPORTS_HTTP_PORT, PODCASTD_JOBS_RETENTION, etc.
	v.SetEnvPrefix("PODCASTD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		slog.Info("no config file found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	cfg.Auth.Secret = resolveEnvRef(cfg.Auth.Secret)
	cfg.LLM.APIKey = resolveEnvRef(cfg.LLM.APIKey)
	cfg.Storage.NATS.URL = resolveEnvRef(cfg.Storage.NATS.URL)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.health_port", 8081)
	v.SetDefault("transports.http.enabled", true)
	v.SetDefault("transports.http.port", 8000)
	v.SetDefault("transports.http.max_form_mb", 32)
	v.SetDefault("transports.grpc.enabled", false)
	v.SetDefault("transports.grpc.port", 50051)
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.max_skew", 300*time.Second)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-3.5-turbo")
	v.SetDefault("llm.stream", true)
	v.SetDefault("llm.timeout", 5*time.Minute)
	v.SetDefault("tts.config_dir", "config")
	v.SetDefault("tts.providers_file", "config/tts_providers.json")
	v.SetDefault("tts.max_retries", 3)
	v.SetDefault("tts.retry_base_delay", time.Second)
	v.SetDefault("tts.request_timeout", 30*time.Second)
	v.SetDefault("tts.default_threads", 1)
	v.SetDefault("tts.max_threads", 16)
	v.SetDefault("media.ffmpeg", "ffmpeg")
	v.SetDefault("media.ffprobe", "ffprobe")
	v.SetDefault("media.work_dir", "output")
	v.SetDefault("media.silence_threshold_db", -60.0)
	v.SetDefault("media.min_silence", 500*time.Millisecond)
	v.SetDefault("media.bitrate", "192k")
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.dir", "output")
	v.SetDefault("storage.nats.url", "nats://localhost:4222")
	v.SetDefault("storage.nats.bucket", "podcasts")
	v.SetDefault("jobs.retention", 30*time.Minute)
	v.SetDefault("jobs.sweep_interval", time.Minute)
	v.SetDefault("jobs.callback.max_retries", 3)
	v.SetDefault("jobs.callback.retry_delay", 5*time.Second)
	v.SetDefault("jobs.callback.timeout", 30*time.Second)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks the values that would otherwise fail deep inside a job.
func (c *Config) Validate() error {
	if c.Transports.HTTP.Enabled && c.Transports.HTTP.Port <= 0 {
		return errors.New("transports.http.port must be positive")
	}
	if c.Transports.GRPC.Enabled && c.Transports.GRPC.Port <= 0 {
		return errors.New("transports.grpc.port must be positive")
	}
	if c.Jobs.Retention <= 0 {
		return errors.New("jobs.retention must be positive")
	}
	if c.Jobs.SweepInterval <= 0 {
		return errors.New("jobs.sweep_interval must be positive")
	}
	if c.Jobs.Callback.MaxRetries < 0 {
		return errors.New("jobs.callback.max_retries must be non-negative")
	}
	if c.TTS.MaxRetries < 1 {
		return errors.New("tts.max_retries must be at least 1")
	}
	if c.TTS.DefaultThreads < 1 || c.TTS.MaxThreads < c.TTS.DefaultThreads {
		return fmt.Errorf("tts threads out of range: default=%d max=%d", c.TTS.DefaultThreads, c.TTS.MaxThreads)
	}
	switch c.Storage.Backend {
	case "local", "nats":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	return nil
}

// resolveEnvRef replaces "${VAR_NAME}" patterns with the corresponding env var value.
func resolveEnvRef(val string) string {
	if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
		envKey := val[2 : len(val)-1]
		if envVal := os.Getenv(envKey); envVal != "" {
			return envVal
		}
	}
	return val
}

// SetupLogging configures the global slog logger based on config.
func SetupLogging(cfg LoggingConfig) {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
