package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Signaling struct {
		URL               string        `yaml:"url"`
		ClientID          string        `yaml:"client_id"`
		DisplayName       string        `yaml:"display_name"`
		TokenSecret       string        `yaml:"token_secret"`
		TokenTTL          time.Duration `yaml:"token_ttl"`
		DialTimeout       time.Duration `yaml:"dial_timeout"`
		DialAttempts      int           `yaml:"dial_attempts"`
		PingInterval      time.Duration `yaml:"ping_interval"`
		PongTimeout       time.Duration `yaml:"pong_timeout"`
		WriteTimeout      time.Duration `yaml:"write_timeout"`
		CommandsPerSecond float64       `yaml:"commands_per_second"`
		Burst             int           `yaml:"burst"`
	} `yaml:"signaling"`

	Media struct {
		AudioEnabled bool `yaml:"audio_enabled"`
		VideoEnabled bool `yaml:"video_enabled"`
		ICEServers   []struct {
			URLs       []string `yaml:"urls"`
			Username   string   `yaml:"username,omitempty"`
			Credential string   `yaml:"credential,omitempty"`
		} `yaml:"ice_servers"`
	} `yaml:"media"`

	VAD struct {
		SpeakingThreshold float64       `yaml:"speaking_threshold"`
		SilenceTimeout    time.Duration `yaml:"silence_timeout"`
	} `yaml:"vad"`

	Control struct {
		Address         string        `yaml:"address"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"control"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
	} `yaml:"monitoring"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		ServiceName string  `yaml:"service_name"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Signaling
	if c.Signaling.URL == "" {
		return fmt.Errorf("signaling.url must not be empty")
	}
	if c.Signaling.ClientID == "" {
		return fmt.Errorf("signaling.client_id must not be empty")
	}
	if c.Signaling.TokenSecret == "" {
		return fmt.Errorf("signaling.token_secret must not be empty")
	}
	if c.Signaling.TokenTTL <= 0 {
		return fmt.Errorf("signaling.token_ttl must be > 0")
	}
	if c.Signaling.DialTimeout <= 0 {
		return fmt.Errorf("signaling.dial_timeout must be > 0")
	}
	if c.Signaling.DialAttempts < 0 {
		return fmt.Errorf("signaling.dial_attempts must be >= 0")
	}
	if c.Signaling.PingInterval <= 0 {
		return fmt.Errorf("signaling.ping_interval must be > 0")
	}
	if c.Signaling.PongTimeout <= 0 {
		return fmt.Errorf("signaling.pong_timeout must be > 0")
	}
	if c.Signaling.WriteTimeout <= 0 {
		return fmt.Errorf("signaling.write_timeout must be > 0")
	}
	if c.Signaling.CommandsPerSecond <= 0 {
		return fmt.Errorf("signaling.commands_per_second must be > 0")
	}
	if c.Signaling.Burst <= 0 {
		return fmt.Errorf("signaling.burst must be > 0")
	}

	// VAD
	if c.VAD.SpeakingThreshold <= 0 || c.VAD.SpeakingThreshold >= 1 {
		return fmt.Errorf("vad.speaking_threshold must be in (0, 1)")
	}
	if c.VAD.SilenceTimeout <= 0 {
		return fmt.Errorf("vad.silence_timeout must be > 0")
	}

	// Control
	if c.Control.Address == "" {
		return fmt.Errorf("control.address must not be empty")
	}
	if c.Control.ShutdownTimeout <= 0 {
		return fmt.Errorf("control.shutdown_timeout must be > 0")
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.ServiceName == "" {
			return fmt.Errorf("tracing.service_name must not be empty when tracing.enabled=true")
		}
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate <= 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be in (0, 1]")
		}
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Signaling.URL = "ws://localhost:8081/ws"
	cfg.Signaling.ClientID = ""
	cfg.Signaling.DisplayName = "callkit"
	cfg.Signaling.TokenSecret = "change-me-in-production"
	cfg.Signaling.TokenTTL = 15 * time.Minute
	cfg.Signaling.DialTimeout = 10 * time.Second
	cfg.Signaling.DialAttempts = 3
	cfg.Signaling.PingInterval = 30 * time.Second
	cfg.Signaling.PongTimeout = 60 * time.Second
	cfg.Signaling.WriteTimeout = 10 * time.Second
	cfg.Signaling.CommandsPerSecond = 50
	cfg.Signaling.Burst = 100

	cfg.Media.AudioEnabled = true
	cfg.Media.VideoEnabled = true

	cfg.VAD.SpeakingThreshold = 0.05
	cfg.VAD.SilenceTimeout = 500 * time.Millisecond

	cfg.Control.Address = ":8086"
	cfg.Control.ShutdownTimeout = 30 * time.Second

	cfg.Monitoring.PrometheusEnabled = true

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Tracing.Enabled = false
	cfg.Tracing.ServiceName = "callkit"
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if url := os.Getenv("CALLKIT_SIGNALING_URL"); url != "" {
		c.Signaling.URL = url
	}
	if id := os.Getenv("CALLKIT_CLIENT_ID"); id != "" {
		c.Signaling.ClientID = id
	}
	if secret := os.Getenv("CALLKIT_TOKEN_SECRET"); secret != "" {
		c.Signaling.TokenSecret = secret
	}
	if level := os.Getenv("CALLKIT_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if addr := os.Getenv("CALLKIT_CONTROL_ADDRESS"); addr != "" {
		c.Control.Address = addr
	}
}
