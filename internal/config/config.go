// Package config loads the captioning client configuration from the
// environment, an optional .env file and command line overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Configuration is the complete client configuration.
type Configuration struct {
	Session       SessionConfig       `envPrefix:"CAPTION_"`
	Capture       CaptureConfig       `envPrefix:"CAPTURE_"`
	Kafka         KafkaConfig         `envPrefix:"KAFKA_"`
	Indicator     IndicatorConfig     `envPrefix:"INDICATOR_"`
	Observability ObservabilityConfig `envPrefix:"OBSERVABILITY_"`
	Control       ControlConfig       `envPrefix:"CONTROL_"`
}

// SessionConfig identifies the room to join. Rooms themselves are created
// and destroyed by the session service; the client only consumes them.
type SessionConfig struct {
	ClientName string `env:"CLIENT_NAME" envDefault:"caption-client"`
	ServerURL  string `env:"SERVER_URL" envDefault:"ws://localhost:8080"`
	Room       string `env:"ROOM"`
	Role       string `env:"ROLE" envDefault:"viewer"`
	Provider   string `env:"PROVIDER" envDefault:"azure"`
	Token      string `env:"WS_TOKEN"`
}

// CaptureConfig tunes the capture adapters.
type CaptureConfig struct {
	DeviceSampleRate  int           `env:"DEVICE_SAMPLE_RATE" envDefault:"48000"`
	BlockSize         int           `env:"BLOCK_SIZE" envDefault:"4096"`
	TargetSampleRate  int           `env:"TARGET_SAMPLE_RATE" envDefault:"16000"`
	ChunkInterval     time.Duration `env:"CHUNK_INTERVAL" envDefault:"250ms"`
	SyntheticSize     int           `env:"SYNTHETIC_FRAME_SIZE" envDefault:"4096"`
	SyntheticInterval time.Duration `env:"SYNTHETIC_INTERVAL" envDefault:"250ms"`
	FFmpegPath        string        `env:"FFMPEG_PATH" envDefault:"ffmpeg"`
	EchoCancellation  bool          `env:"ECHO_CANCELLATION" envDefault:"true"`
	NoiseSuppression  bool          `env:"NOISE_SUPPRESSION" envDefault:"true"`
	AutoGainControl   bool          `env:"AUTO_GAIN_CONTROL" envDefault:"true"`
	WAVFile           string        `env:"WAV_FILE"`
}

// KafkaConfig controls the transcript export.
type KafkaConfig struct {
	Enabled      bool     `env:"ENABLED" envDefault:"false"`
	Brokers      []string `env:"BROKERS" envSeparator:","`
	TopicPartial string   `env:"TOPIC_PARTIAL" envDefault:"caption.transcript.partial"`
	TopicFinal   string   `env:"TOPIC_FINAL" envDefault:"caption.transcript.final"`
	Principal    string   `env:"PRINCIPAL"`
}

// IndicatorConfig controls the MQTT direction indicator output.
type IndicatorConfig struct {
	Enabled   bool   `env:"ENABLED" envDefault:"false"`
	BrokerURL string `env:"BROKER_URL" envDefault:"tcp://localhost:1883"`
	ClientID  string `env:"CLIENT_ID" envDefault:"caption-client"`
	Topic     string `env:"TOPIC" envDefault:"caption/direction"`
	Username  string `env:"USERNAME"`
	Password  string `env:"PASSWORD"`
}

// ObservabilityConfig controls logging and the metrics endpoint.
type ObservabilityConfig struct {
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"console"`
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9090"`
}

// ControlConfig controls the local control API.
type ControlConfig struct {
	Enabled bool   `env:"ENABLED" envDefault:"true"`
	Addr    string `env:"ADDR" envDefault:"127.0.0.1:8090"`
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile   string
	ServerURL string
	Room      string
	Role      string
	Provider  string
	Token     string
	LogLevel  string
	WAVFile   string
}

// Load reads configuration from a .env file, environment variables and CLI
// overrides. Priority: CLI flags > environment variables > .env file > defaults.
func Load(overrides Overrides) (*Configuration, error) {
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Configuration{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if overrides.ServerURL != "" {
		cfg.Session.ServerURL = overrides.ServerURL
	}
	if overrides.Room != "" {
		cfg.Session.Room = overrides.Room
	}
	if overrides.Role != "" {
		cfg.Session.Role = overrides.Role
	}
	if overrides.Provider != "" {
		cfg.Session.Provider = overrides.Provider
	}
	if overrides.Token != "" {
		cfg.Session.Token = overrides.Token
	}
	if overrides.LogLevel != "" {
		cfg.Observability.LogLevel = overrides.LogLevel
	}
	if overrides.WAVFile != "" {
		cfg.Capture.WAVFile = overrides.WAVFile
	}

	// The export principal defaults to the client name.
	if cfg.Kafka.Principal == "" {
		cfg.Kafka.Principal = cfg.Session.ClientName
	}
	cfg.Session.Role = strings.ToLower(strings.TrimSpace(cfg.Session.Role))
	cfg.Session.Provider = strings.ToLower(strings.TrimSpace(cfg.Session.Provider))

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Configuration) validate() error {
	if c.Session.Role != "host" && c.Session.Role != "viewer" {
		return fmt.Errorf("invalid role %q: must be host or viewer", c.Session.Role)
	}
	if c.Capture.BlockSize <= 0 {
		return fmt.Errorf("capture block size must be positive, got %d", c.Capture.BlockSize)
	}
	if c.Capture.TargetSampleRate <= 0 {
		return fmt.Errorf("capture target sample rate must be positive, got %d", c.Capture.TargetSampleRate)
	}
	if c.Capture.ChunkInterval <= 0 || c.Capture.SyntheticInterval <= 0 {
		return fmt.Errorf("capture intervals must be positive")
	}
	return nil
}
