package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// DefaultPath is read when it exists; environment variables override it.
const DefaultPath = "configs/config.yaml"

type Config struct {
	Telegram struct {
		Token            string        `yaml:"token" env:"TELEGRAM_BOT_TOKEN,BOT_ID"`
		PollTimeout      time.Duration `yaml:"poll_timeout" env:"TELEGRAM_POLL_TIMEOUT" env-default:"5s"`
		RequestTimeout   time.Duration `yaml:"request_timeout" env:"TELEGRAM_REQUEST_TIMEOUT" env-default:"10s"`
		DownloadAttempts int           `yaml:"download_attempts" env:"TELEGRAM_DOWNLOAD_ATTEMPTS" env-default:"3"`
		SendRate         int           `yaml:"send_rate" env:"TELEGRAM_SEND_RATE" env-default:"30"`
		VoiceChatTypes   []string      `yaml:"voice_chat_types" env:"VOICE_CHAT_TYPES" env-default:"private,group,supergroup"`
	} `yaml:"telegram"`

	ASR struct {
		Backend         string        `yaml:"backend" env:"ASR_BACKEND" env-default:"whisper"`
		URL             string        `yaml:"url" env:"ASR_URL" env-default:"http://localhost:8000"`
		APIKey          string        `yaml:"api_key" env:"ASR_API_KEY"`
		Model           string        `yaml:"model" env:"ASR_MODEL" env-default:"small"`
		Language        string        `yaml:"language" env:"ASR_LANGUAGE"`
		VADFilter       bool          `yaml:"vad_filter" env:"ASR_VAD_FILTER" env-default:"true"`
		BeamSize        int           `yaml:"beam_size" env:"ASR_BEAM_SIZE" env-default:"1"`
		JoinSeparator   string        `yaml:"join_separator" env:"ASR_JOIN_SEPARATOR"`
		Timeout         time.Duration `yaml:"timeout" env:"ASR_TIMEOUT" env-default:"0s"`
		BreakerFailures uint32        `yaml:"breaker_failures" env:"ASR_BREAKER_FAILURES" env-default:"5"`
		BreakerTimeout  time.Duration `yaml:"breaker_timeout" env:"ASR_BREAKER_TIMEOUT" env-default:"30s"`
		StartupCheck    bool          `yaml:"startup_check" env:"ASR_STARTUP_CHECK" env-default:"true"`
	} `yaml:"asr"`

	Audio struct {
		Decoder    string `yaml:"decoder" env:"AUDIO_DECODER" env-default:"ffmpeg"`
		SampleRate int    `yaml:"sample_rate" env:"AUDIO_SAMPLE_RATE" env-default:"16000"`
	} `yaml:"audio"`

	Metrics struct {
		Addr string `yaml:"addr" env:"METRICS_ADDR" env-default:":8080"`
	} `yaml:"metrics"`

	Log struct {
		Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
		Debug bool   `yaml:"debug" env:"LOG_DEBUG" env-default:"false"`
	} `yaml:"log"`

	Redis struct {
		Addr     string        `yaml:"addr" env:"REDIS_ADDR"`
		Password string        `yaml:"password" env:"REDIS_PASSWORD" env-default:""`
		DB       int           `yaml:"db" env:"REDIS_DB" env-default:"0"`
		TTL      time.Duration `yaml:"ttl" env:"CACHE_TTL" env-default:"24h"`
	} `yaml:"redis"`

	Postgres struct {
		DSN            string `yaml:"dsn" env:"POSTGRES_DSN"`
		MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`
	} `yaml:"postgres"`

	S3 struct {
		Endpoint  string `yaml:"endpoint" env:"S3_ENDPOINT"`
		Region    string `yaml:"region" env:"S3_REGION" env-default:"ru-central1"`
		AccessKey string `yaml:"access_key" env:"S3_ACCESS_KEY"`
		SecretKey string `yaml:"secret_key" env:"S3_SECRET_KEY"`
		Bucket    string `yaml:"bucket" env:"S3_BUCKET"`
	} `yaml:"s3"`

	RabbitMQ struct {
		URL string `yaml:"url" env:"RABBITMQ_URL"`
	} `yaml:"rabbitmq"`
}

// Load reads the YAML file at path, falling back to the environment alone
// when the file does not exist.
func Load(path string) (*Config, error) {
	// Load .env file
	_ = godotenv.Load()

	var cfg Config
	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks required and ranged values.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return errors.New("telegram token is required (TELEGRAM_BOT_TOKEN or BOT_ID)")
	}
	if c.Telegram.DownloadAttempts < 1 {
		return fmt.Errorf("download_attempts must be at least 1, got %d", c.Telegram.DownloadAttempts)
	}
	if c.Telegram.SendRate < 1 {
		return fmt.Errorf("send_rate must be at least 1, got %d", c.Telegram.SendRate)
	}
	if c.Telegram.RequestTimeout <= c.Telegram.PollTimeout {
		return fmt.Errorf("request_timeout (%s) must exceed poll_timeout (%s)",
			c.Telegram.RequestTimeout, c.Telegram.PollTimeout)
	}

	switch c.ASR.Backend {
	case "whisper", "openai":
	default:
		return fmt.Errorf("unknown asr backend %q", c.ASR.Backend)
	}
	if c.ASR.URL == "" {
		return errors.New("asr url cannot be empty")
	}
	if c.ASR.Model == "" {
		return errors.New("asr model cannot be empty")
	}
	if c.ASR.BeamSize < 1 {
		return fmt.Errorf("beam_size must be at least 1, got %d", c.ASR.BeamSize)
	}
	if c.ASR.BreakerFailures < 1 {
		return fmt.Errorf("breaker_failures must be at least 1, got %d", c.ASR.BreakerFailures)
	}

	if c.Audio.Decoder == "" {
		return errors.New("audio decoder cannot be empty")
	}
	if c.Audio.SampleRate < 8000 || c.Audio.SampleRate > 48000 {
		return fmt.Errorf("sample_rate must be between 8000 and 48000, got %d", c.Audio.SampleRate)
	}

	if c.Metrics.Addr == "" {
		return errors.New("metrics addr cannot be empty")
	}

	return nil
}

// AnyChatType in the voice allow-list lifts the chat-type restriction.
const AnyChatType = "*"

// VoiceChatTypes returns the voice allow-list with blank entries removed.
// An empty result means voice messages are accepted from every chat type.
func (c *Config) VoiceChatTypes() []string {
	var types []string
	for _, t := range c.Telegram.VoiceChatTypes {
		t = strings.TrimSpace(t)
		if t == AnyChatType {
			return nil
		}
		if t != "" {
			types = append(types, t)
		}
	}
	return types
}

