package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	WebSocket struct {
		Port         int `yaml:"port" validate:"omitempty,gt=0,lte=65535"`
		SendBuffer   int `yaml:"send_buffer" validate:"omitempty,gt=0"`
		PingSeconds  int `yaml:"ping_seconds" validate:"omitempty,gt=0"`
		PongSeconds  int `yaml:"pong_seconds" validate:"omitempty,gt=0"`
		StaleSeconds int `yaml:"stale_seconds" validate:"omitempty,gt=0"`
	} `yaml:"websocket"`

	Destination struct {
		Name      string  `yaml:"name"`
		Latitude  float64 `yaml:"latitude" validate:"gte=-90,lte=90"`
		Longitude float64 `yaml:"longitude" validate:"gte=-180,lte=180"`
	} `yaml:"destination"`

	Traffic struct {
		MorningStartHour int     `yaml:"morning_start_hour" validate:"omitempty,gte=0,lte=23"`
		MorningEndHour   int     `yaml:"morning_end_hour" validate:"omitempty,gte=0,lte=23"`
		MorningFactor    float64 `yaml:"morning_factor" validate:"omitempty,gt=0,lte=1"`
		EveningStartHour int     `yaml:"evening_start_hour" validate:"omitempty,gte=0,lte=23"`
		EveningEndHour   int     `yaml:"evening_end_hour" validate:"omitempty,gte=0,lte=23"`
		EveningFactor    float64 `yaml:"evening_factor" validate:"omitempty,gt=0,lte=1"`
		OffPeakFactor    float64 `yaml:"off_peak_factor" validate:"omitempty,gt=0,lte=1"`
		CruiseSpeedKmh   float64 `yaml:"cruise_speed_kmh" validate:"omitempty,gt=0"`
	} `yaml:"traffic"`

	Reconnect struct {
		MaxAttempts           int `yaml:"max_attempts" validate:"omitempty,gt=0"`
		BackoffSeconds        int `yaml:"backoff_seconds" validate:"omitempty,gt=0"`
		ConnectTimeoutSeconds int `yaml:"connect_timeout_seconds" validate:"omitempty,gt=0"`
	} `yaml:"reconnect"`

	JWT struct {
		SecretKey string `yaml:"secret_key"`
	} `yaml:"jwt"`

	Database struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port" validate:"omitempty,gt=0,lte=65535"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"database"`
	} `yaml:"database"`

	RabbitMQ struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port" validate:"omitempty,gt=0,lte=65535"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
	} `yaml:"rabbitmq"`
}

// LoadFromFile loads config from a YAML file, applies defaults, and validates
// required fields.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets safe defaults for some fields.
func applyDefaults(cfg *Config) {
	// WebSocket
	if cfg.WebSocket.Port == 0 {
		cfg.WebSocket.Port = 8080
	}
	if cfg.WebSocket.SendBuffer == 0 {
		cfg.WebSocket.SendBuffer = 32
	}
	if cfg.WebSocket.PingSeconds == 0 {
		cfg.WebSocket.PingSeconds = 30
	}
	if cfg.WebSocket.PongSeconds == 0 {
		cfg.WebSocket.PongSeconds = 60
	}
	if cfg.WebSocket.StaleSeconds == 0 {
		cfg.WebSocket.StaleSeconds = 120
	}

	// Traffic heuristic
	if cfg.Traffic.MorningStartHour == 0 && cfg.Traffic.MorningEndHour == 0 {
		cfg.Traffic.MorningStartHour = 7
		cfg.Traffic.MorningEndHour = 9
	}
	if cfg.Traffic.EveningStartHour == 0 && cfg.Traffic.EveningEndHour == 0 {
		cfg.Traffic.EveningStartHour = 16
		cfg.Traffic.EveningEndHour = 19
	}
	if cfg.Traffic.MorningFactor == 0 {
		cfg.Traffic.MorningFactor = 0.7
	}
	if cfg.Traffic.EveningFactor == 0 {
		cfg.Traffic.EveningFactor = 0.6
	}
	if cfg.Traffic.OffPeakFactor == 0 {
		cfg.Traffic.OffPeakFactor = 0.9
	}
	if cfg.Traffic.CruiseSpeedKmh == 0 {
		cfg.Traffic.CruiseSpeedKmh = 30
	}

	// Reconnect
	if cfg.Reconnect.MaxAttempts == 0 {
		cfg.Reconnect.MaxAttempts = 5
	}
	if cfg.Reconnect.BackoffSeconds == 0 {
		cfg.Reconnect.BackoffSeconds = 5
	}
	if cfg.Reconnect.ConnectTimeoutSeconds == 0 {
		cfg.Reconnect.ConnectTimeoutSeconds = 10
	}

	// Database
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}

	// RabbitMQ
	if cfg.RabbitMQ.Host == "" {
		cfg.RabbitMQ.Host = "localhost"
	}
	if cfg.RabbitMQ.Port == 0 {
		cfg.RabbitMQ.Port = 5672
	}
}

// validate checks ranges via struct tags plus the conditional requirements of
// optional sections.
func (c *Config) validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return err
	}

	var problems []string

	if c.Database.Enabled {
		if c.Database.User == "" {
			problems = append(problems, "database.user is required when database.enabled")
		}
		if c.Database.Password == "" {
			problems = append(problems, "database.password is required when database.enabled")
		}
		if c.Database.Name == "" {
			problems = append(problems, "database.database is required when database.enabled")
		}
	}

	if c.RabbitMQ.Enabled {
		if c.RabbitMQ.User == "" {
			problems = append(problems, "rabbitmq.user is required when rabbitmq.enabled")
		}
		if c.RabbitMQ.Password == "" {
			problems = append(problems, "rabbitmq.password is required when rabbitmq.enabled")
		}
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// ----- Duration helpers -----

func (c *Config) PingInterval() time.Duration {
	return time.Duration(c.WebSocket.PingSeconds) * time.Second
}

func (c *Config) PongWait() time.Duration {
	return time.Duration(c.WebSocket.PongSeconds) * time.Second
}

func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.WebSocket.StaleSeconds) * time.Second
}

func (c *Config) ReconnectBackoff() time.Duration {
	return time.Duration(c.Reconnect.BackoffSeconds) * time.Second
}

func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Reconnect.ConnectTimeoutSeconds) * time.Second
}
