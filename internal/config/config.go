package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Storage  StorageConfig  `yaml:"storage"`
	Capture  CaptureConfig  `yaml:"capture"`
	Scan     ScanConfig     `yaml:"scan"`
	OCR      OCRConfig      `yaml:"ocr"`
	Webhooks WebhooksConfig `yaml:"webhooks"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	WebUIPath    string        `yaml:"webui_path"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type StorageConfig struct {
	OutputFolder string `yaml:"output_folder"`
	SharedFolder string `yaml:"shared_folder"`
	// AutoSaveSharedFolder is the startup default; it can be changed at
	// runtime through the settings API.
	AutoSaveSharedFolder bool `yaml:"auto_save_shared_folder"`
}

type CaptureConfig struct {
	// Backend selects the capture driver. Only "escl" is supported.
	Backend string `yaml:"backend"`
	// Endpoints are statically configured scanner base URLs probed in
	// addition to mDNS discovery.
	Endpoints        []string      `yaml:"endpoints"`
	EnableMDNS       bool          `yaml:"enable_mdns"`
	DiscoveryTimeout time.Duration `yaml:"discovery_timeout"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
}

type ScanConfig struct {
	DefaultDPI        int `yaml:"default_dpi"`
	MaxConcurrentJobs int `yaml:"max_concurrent_jobs"`
}

type OCRConfig struct {
	Enabled         bool   `yaml:"enabled"`
	TessdataPath    string `yaml:"tessdata_path"`
	DefaultLanguage string `yaml:"default_language"`
}

type WebhooksConfig struct {
	RetryCount  int           `yaml:"retry_count"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	Timeout     time.Duration `yaml:"timeout"`
	WorkerCount int           `yaml:"worker_count"`
	QueueSize   int           `yaml:"queue_size"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			WebUIPath:    "./webui",
		},
		Database: DatabaseConfig{
			Path: "./data/scanhost.db",
		},
		Storage: StorageConfig{
			OutputFolder:         "./data/output",
			SharedFolder:         "",
			AutoSaveSharedFolder: false,
		},
		Capture: CaptureConfig{
			Backend:          "escl",
			EnableMDNS:       true,
			DiscoveryTimeout: 3 * time.Second,
			RequestTimeout:   60 * time.Second,
		},
		Scan: ScanConfig{
			DefaultDPI:        300,
			MaxConcurrentJobs: 3,
		},
		OCR: OCRConfig{
			Enabled:         true,
			TessdataPath:    "./tessdata",
			DefaultLanguage: "eng",
		},
		Webhooks: WebhooksConfig{
			RetryCount:  3,
			RetryDelay:  5 * time.Second,
			Timeout:     10 * time.Second,
			WorkerCount: 3,
			QueueSize:   100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func Load(configPath string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

func LoadFromEnv() *Config {
	cfg := defaults()

	if v := os.Getenv("SCANHOST_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("SCANHOST_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("SCANHOST_OUTPUT_FOLDER"); v != "" {
		cfg.Storage.OutputFolder = v
	}

	if v := os.Getenv("SCANHOST_SHARED_FOLDER"); v != "" {
		cfg.Storage.SharedFolder = v
	}

	if v := os.Getenv("SCANHOST_TESSDATA_PATH"); v != "" {
		cfg.OCR.TessdataPath = v
	}

	if v := os.Getenv("SCANHOST_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return cfg
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server read timeout must be non-negative")
	}

	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server write timeout must be non-negative")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	if c.Storage.OutputFolder == "" {
		return fmt.Errorf("storage output folder is required")
	}

	if c.Capture.Backend != "escl" {
		return fmt.Errorf("unsupported capture backend: %s (valid: escl)", c.Capture.Backend)
	}

	if c.Capture.DiscoveryTimeout < 0 {
		return fmt.Errorf("discovery timeout must be non-negative")
	}

	if c.Capture.RequestTimeout < 0 {
		return fmt.Errorf("request timeout must be non-negative")
	}

	if c.Scan.DefaultDPI < 50 || c.Scan.DefaultDPI > 6400 {
		return fmt.Errorf("default dpi must be between 50 and 6400, got %d", c.Scan.DefaultDPI)
	}

	// A cap of 1 would serialize scans across independent devices; zero
	// disables the cap entirely.
	if c.Scan.MaxConcurrentJobs < 0 || c.Scan.MaxConcurrentJobs == 1 {
		return fmt.Errorf("max concurrent jobs must be 0 (unlimited) or at least 2, got %d", c.Scan.MaxConcurrentJobs)
	}

	if c.OCR.Enabled && c.OCR.TessdataPath == "" {
		return fmt.Errorf("tessdata path is required when ocr is enabled")
	}

	if c.OCR.DefaultLanguage == "" {
		return fmt.Errorf("default ocr language is required")
	}

	if c.Webhooks.RetryCount < 0 {
		return fmt.Errorf("webhook retry count must be non-negative")
	}

	if c.Webhooks.RetryDelay < 0 {
		return fmt.Errorf("webhook retry delay must be non-negative")
	}

	if c.Webhooks.WorkerCount < 1 {
		return fmt.Errorf("webhook worker count must be at least 1")
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json":  true,
		"text":  true,
		"plain": true,
	}

	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (valid: json, text, plain)", c.Logging.Format)
	}

	return nil
}
