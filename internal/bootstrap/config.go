package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	ServerAddr     string `envconfig:"SERVER_ADDR" default:":8080"`
	MaxUploadBytes int64  `envconfig:"MAX_UPLOAD_BYTES" default:"26214400"`

	OpenAIAPIKey     string        `envconfig:"OPENAI_API_KEY" required:"true"`
	OpenAIBaseURL    string        `envconfig:"OPENAI_BASE_URL" default:""`
	TranscribeModel  string        `envconfig:"TRANSCRIBE_MODEL" default:"whisper-1"`
	TranslateModel   string        `envconfig:"TRANSLATE_MODEL" default:"gpt-4o-mini"`
	SummaryModel     string        `envconfig:"SUMMARY_MODEL" default:""`
	SummaryLanguage  string        `envconfig:"SUMMARY_LANGUAGE" default:"German"`
	TTSModel         string        `envconfig:"TTS_MODEL" default:"tts-1"`
	RealtimeModel    string        `envconfig:"REALTIME_MODEL" default:"gpt-4o-realtime-preview-2024-10-01"`
	RealtimeVoice    string        `envconfig:"REALTIME_VOICE" default:"alloy"`
	TranslateRPS     float64       `envconfig:"TRANSLATE_RPS" default:"5"`
	RequestTimeout   time.Duration `envconfig:"REQUEST_TIMEOUT" default:"60s"`
	RetryMaxAttempts int           `envconfig:"RETRY_MAX_ATTEMPTS" default:"5"`

	TargetLanguage   string        `envconfig:"TARGET_LANGUAGE" default:"de"`
	Workers          int           `envconfig:"WORKERS" default:"3"`
	SegmentDuration  time.Duration `envconfig:"SEGMENT_DURATION" default:"15s"`
	SummaryInterval  time.Duration `envconfig:"SUMMARY_INTERVAL" default:"45s"`
	MinSummaryChars  int           `envconfig:"MIN_SUMMARY_CHARS" default:"20"`
	MinTextLength    int           `envconfig:"MIN_TEXT_LENGTH" default:"2"`
	MaxContextChars  int           `envconfig:"MAX_CONTEXT_CHARS" default:"200"`
	RealtimeEnabled  bool          `envconfig:"REALTIME_ENABLED" default:"true"`
	RealtimeFallback string        `envconfig:"REALTIME_FALLBACK_TARGET" default:"English"`

	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	RTCICEServers []string `envconfig:"RTC_ICE_SERVERS" default:"stun:stun.l.google.com:19302"`
	RTCPortMin    int      `envconfig:"RTC_PORT_MIN" default:"10000"`
	RTCPortMax    int      `envconfig:"RTC_PORT_MAX" default:"20000"`

	RateLimitRPS   float64 `envconfig:"RATE_LIMIT_RPS" default:"20"`
	RateLimitBurst int     `envconfig:"RATE_LIMIT_BURST" default:"40"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
}

// LoadConfig reads a .env file when present, then the environment.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()
	return LoadConfigFromEnv()
}

func LoadConfigFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.OpenAIAPIKey) == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required"))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("WORKERS must be at least 1, got %d", c.Workers))
	}
	if c.SegmentDuration < time.Second {
		errs = append(errs, fmt.Errorf("SEGMENT_DURATION must be at least 1s, got %s", c.SegmentDuration))
	}
	if c.SummaryInterval <= 0 {
		errs = append(errs, errors.New("SUMMARY_INTERVAL must be positive"))
	}
	if c.MaxContextChars < 0 || c.MinTextLength < 0 || c.MinSummaryChars < 0 {
		errs = append(errs, errors.New("character bounds must not be negative"))
	}
	if c.RTCPortMin < 0 || c.RTCPortMax > 65535 || (c.RTCPortMax > 0 && c.RTCPortMax < c.RTCPortMin) {
		errs = append(errs, fmt.Errorf("invalid RTC port range %d-%d", c.RTCPortMin, c.RTCPortMax))
	}
	if c.RetryMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1, got %d", c.RetryMaxAttempts))
	}
	return errors.Join(errs...)
}

type ICEServerConfig struct {
	URLs       []string
	Username   string
	Credential string
}

func (c *Config) ICEServers() []ICEServerConfig {
	var servers []ICEServerConfig
	for _, url := range c.RTCICEServers {
		url = strings.TrimSpace(url)
		if url != "" {
			servers = append(servers, ICEServerConfig{URLs: []string{url}})
		}
	}
	if len(servers) == 0 {
		return []ICEServerConfig{{URLs: []string{"stun:stun.l.google.com:19302"}}}
	}
	return servers
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func ProvideLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}
	var handler slog.Handler
	if strings.EqualFold(cfg.LogFormat, "text") {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
