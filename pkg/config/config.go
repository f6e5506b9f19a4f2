package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Backend names accepted in radio.backend
const (
	BackendNative   = "native"
	BackendRTLPower = "rtl_power"
	BackendMock     = "mock"
)

// Frequency bounds accepted at the boundary, in kHz
const (
	MinFrequencyKHz = 50_000
	MaxFrequencyKHz = 1_500_000
)

// Config represents the sdrgain configuration
type Config struct {
	Radio struct {
		Backend             string `yaml:"backend"`
		// Gain is handed to the backend unchanged: tenths of dB for native
		// and rtl_tcp, whole dB for rtl_power -g
		Gain                int    `yaml:"gain"`
		RTLTCPAddress       string `yaml:"rtl_tcp_address"`
		RTLPowerPath        string `yaml:"rtl_power_path"`
		DefaultFrequencyKHz uint32 `yaml:"default_frequency_khz"`

		// Mock backend only
		MockSignalKHz uint32  `yaml:"mock_signal_khz"`
		MockAmplitude float64 `yaml:"mock_amplitude"`
	} `yaml:"radio"`

	Engine struct {
		PollIntervalMS int `yaml:"poll_interval_ms"`
	} `yaml:"engine"`

	Web struct {
		Port        int    `yaml:"port"`
		BindAddress string `yaml:"bind_address"`
		TLS         bool   `yaml:"tls"`
	} `yaml:"web"`

	API struct {
		UnixSocket string `yaml:"unix_socket"`
	} `yaml:"api"`

	Storage struct {
		DatabasePath string `yaml:"database_path"`
	} `yaml:"storage"`

	MQTT struct {
		Enabled  bool   `yaml:"enabled"`
		Server   string `yaml:"server"`
		ClientID string `yaml:"client_id"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		Topic    string `yaml:"topic"`
	} `yaml:"mqtt"`

	Logging struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		Console    bool   `yaml:"console"`
		Structured bool   `yaml:"structured"`
		MaxSize    int    `yaml:"max_size"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAge     int    `yaml:"max_age"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"logging"`
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	cfg.Logging.Console = true
	cfg.applyDefaults()
	return cfg
}

// LoadConfig loads configuration from a YAML file. A missing file is not an
// error, the defaults are returned instead.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{}
	config.Logging.Console = true
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Radio.Backend == "" {
		c.Radio.Backend = BackendNative
	}
	c.Radio.Backend = strings.ToLower(c.Radio.Backend)
	if c.Radio.Gain == 0 {
		c.Radio.Gain = 1
	}
	if c.Radio.RTLTCPAddress == "" {
		c.Radio.RTLTCPAddress = "127.0.0.1:1234"
	}
	if c.Radio.RTLPowerPath == "" {
		c.Radio.RTLPowerPath = "rtl_power"
	}
	if c.Radio.DefaultFrequencyKHz == 0 {
		c.Radio.DefaultFrequencyKHz = 145_000 // 2m band
	}
	if c.Radio.MockSignalKHz == 0 {
		c.Radio.MockSignalKHz = c.Radio.DefaultFrequencyKHz
	}
	if c.Radio.MockAmplitude == 0 {
		c.Radio.MockAmplitude = 0.25
	}
	if c.Engine.PollIntervalMS == 0 {
		c.Engine.PollIntervalMS = 100
	}
	if c.Web.Port == 0 {
		c.Web.Port = 8000
	}
	if c.Web.BindAddress == "" {
		c.Web.BindAddress = "0.0.0.0"
	}
	if c.API.UnixSocket == "" {
		c.API.UnixSocket = "/tmp/sdrgain.sock"
	}
	if c.MQTT.Server == "" {
		c.MQTT.Server = "tcp://localhost:1883"
	}
	if c.MQTT.Topic == "" {
		c.MQTT.Topic = "sdrgain/power"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.MaxSize == 0 {
		c.Logging.MaxSize = 10
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = 3
	}
	if c.Logging.MaxAge == 0 {
		c.Logging.MaxAge = 28
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Radio.Backend {
	case BackendNative, BackendRTLPower, BackendMock:
	default:
		return fmt.Errorf("unsupported radio backend %q, pick one of: %s, %s, %s",
			c.Radio.Backend, BackendNative, BackendRTLPower, BackendMock)
	}
	if c.Radio.Gain < 0 {
		return fmt.Errorf("radio gain must not be negative, got %d", c.Radio.Gain)
	}
	if c.Radio.DefaultFrequencyKHz < MinFrequencyKHz || c.Radio.DefaultFrequencyKHz > MaxFrequencyKHz {
		return fmt.Errorf("default frequency %d kHz is outside %d-%d kHz",
			c.Radio.DefaultFrequencyKHz, MinFrequencyKHz, MaxFrequencyKHz)
	}
	if c.Radio.MockAmplitude < 0 || c.Radio.MockAmplitude > 1 {
		return fmt.Errorf("mock amplitude must be within 0-1, got %g", c.Radio.MockAmplitude)
	}
	if c.Engine.PollIntervalMS < 0 {
		return fmt.Errorf("poll interval must be positive, got %d ms", c.Engine.PollIntervalMS)
	}
	if c.Web.Port < 1 || c.Web.Port > 65535 {
		return fmt.Errorf("web port %d is out of range", c.Web.Port)
	}
	if c.MQTT.Enabled && c.MQTT.Topic == "" {
		return fmt.Errorf("mqtt topic is required when mqtt is enabled")
	}
	return nil
}

// ListenAddress returns the address the web server binds to
func (c *Config) ListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Web.BindAddress, c.Web.Port)
}

// PollInterval returns the control loop frequency poll interval
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Engine.PollIntervalMS) * time.Millisecond
}
