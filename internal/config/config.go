package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultAPIBaseURL is used when neither the config file nor the environment names a backend.
const DefaultAPIBaseURL = "http://localhost:8000/api"

// Config captures the settings of the detection console and its local mock backend.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
	Preview PreviewConfig `yaml:"preview"`
	Mock    MockConfig    `yaml:"mock"`
}

// APIConfig configures access to the detection backend REST API.
type APIConfig struct {
	BaseURL string        `yaml:"baseURL"`
	Timeout time.Duration `yaml:"timeout"`
}

// ServerConfig controls the optional metrics listener and shutdown.
type ServerConfig struct {
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// PreviewConfig bounds how long an unreleased preview may live.
type PreviewConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// MockConfig configures the local mock backend.
type MockConfig struct {
	Address      string `yaml:"address"`
	DatabasePath string `yaml:"databasePath"`
	UploadDir    string `yaml:"uploadDir"`
}

// Load initialises Config from defaults, an optional YAML file, an optional .env
// file and finally the process environment. Later sources win.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("DETECT_CONSOLE_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := loadDotEnv(os.Getenv("DETECT_CONSOLE_ENV_FILE")); err != nil {
		return nil, err
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the console cannot start with.
func (c *Config) Validate() error {
	c.API.BaseURL = strings.TrimSpace(c.API.BaseURL)
	if c.API.BaseURL == "" {
		return errors.New("config: api.baseURL is required")
	}
	if !strings.HasPrefix(c.API.BaseURL, "http://") && !strings.HasPrefix(c.API.BaseURL, "https://") {
		return fmt.Errorf("config: api.baseURL %q must be an http(s) URL", c.API.BaseURL)
	}
	if c.API.Timeout < 0 {
		return fmt.Errorf("config: api.timeout must not be negative")
	}
	return nil
}

// loadDotEnv populates unset variables from path, or ./.env when path is empty.
// A missing default file is not an error.
func loadDotEnv(path string) error {
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		API: APIConfig{
			BaseURL: DefaultAPIBaseURL,
			Timeout: 30 * time.Second,
		},
		Server: ServerConfig{
			GracefulTimeout: 5 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Preview: PreviewConfig{TTL: time.Hour},
		Mock: MockConfig{
			Address:      ":8000",
			DatabasePath: "detections.db",
			UploadDir:    "uploads",
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DETECT_API_URL"); v != "" {
		cfg.API.BaseURL = v
	} else if v := os.Getenv("NEXT_PUBLIC_API_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("DETECT_API_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.API.Timeout = d
		}
	}
	if v := os.Getenv("DETECT_CONSOLE_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("DETECT_CONSOLE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DETECT_CONSOLE_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("DETECT_CONSOLE_PREVIEW_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Preview.TTL = d
		}
	}
	if v := os.Getenv("DETECT_MOCK_ADDRESS"); v != "" {
		cfg.Mock.Address = v
	}
	if v := os.Getenv("DETECT_MOCK_DB"); v != "" {
		cfg.Mock.DatabasePath = v
	}
	if v := os.Getenv("DETECT_MOCK_UPLOAD_DIR"); v != "" {
		cfg.Mock.UploadDir = v
	}
}
