package drawrelay

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "drawrelay.yaml"

// Config holds the settings of a relay server process.
type Config struct {
	Port           string        `yaml:"port"`
	AllowedOrigin  string        `yaml:"allowed_origin"`
	StaticDir      string        `yaml:"static_dir"`
	Protocol       string        `yaml:"protocol"`
	Compression    bool          `yaml:"compression"`
	MaxMessageSize int           `yaml:"max_message_size"`
	RedisURL       string        `yaml:"redis_url"`
	RedisChannel   string        `yaml:"redis_channel"`
	WebhookURL     string        `yaml:"webhook_url"`
	WebhookDelay   time.Duration `yaml:"webhook_delay"`
	SecretUser     string        `yaml:"secret_user"`
	SecretPassword string        `yaml:"secret_password"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Port:           "3000",
		AllowedOrigin:  DefaultAllowedOrigin,
		StaticDir:      "public",
		Protocol:       string(ProtocolBoth),
		Compression:    true,
		MaxMessageSize: maxMessageSize,
		RedisChannel:   DefaultRedisChannel,
		WebhookDelay:   defaultWebhookDelay,
	}
}

// LoadConfig returns a Config using the hierarchy: defaults < YAML < ENV.
// The YAML file is DRAWRELAY_CONFIG, or drawrelay.yaml when that is unset.
func LoadConfig() (*Config, error) {
	path := os.Getenv("DRAWRELAY_CONFIG")
	if path == "" {
		path = DefaultConfigFile
	}
	return LoadConfigFrom(path)
}

// LoadConfigFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. A missing file is not an error.
func LoadConfigFrom(yamlPath string) (*Config, error) {
	cfg := DefaultConfig()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Port, "PORT")
	setString(&cfg.AllowedOrigin, "DRAWRELAY_ALLOWED_ORIGIN")
	setString(&cfg.StaticDir, "DRAWRELAY_STATIC_DIR")
	setString(&cfg.Protocol, "DRAWRELAY_PROTOCOL")
	setBool(&cfg.Compression, "DRAWRELAY_COMPRESSION")
	setInt(&cfg.MaxMessageSize, "DRAWRELAY_MAX_MESSAGE_SIZE")
	setString(&cfg.RedisURL, "REDIS_URL")
	setString(&cfg.RedisChannel, "DRAWRELAY_REDIS_CHANNEL")
	setString(&cfg.WebhookURL, "DRAWRELAY_WEBHOOK_URL")
	setDuration(&cfg.WebhookDelay, "DRAWRELAY_WEBHOOK_DELAY")
	setString(&cfg.SecretUser, "DRAWRELAY_SECRET_USER")
	setString(&cfg.SecretPassword, "DRAWRELAY_SECRET_PASSWORD")
}

func (cfg *Config) validate() error {
	if cfg.Port == "" {
		return errors.New("port is required")
	}
	if _, err := ParseProtocol(cfg.Protocol); err != nil {
		return err
	}
	if cfg.MaxMessageSize < 1 {
		return errors.New("max_message_size must be >= 1")
	}
	if cfg.WebhookDelay < 0 {
		return errors.New("webhook_delay must not be negative")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
