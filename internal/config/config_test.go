package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "escl", cfg.Capture.Backend)
	assert.Equal(t, 300, cfg.Scan.DefaultDPI)
	assert.Equal(t, 3, cfg.Scan.MaxConcurrentJobs)
	assert.Equal(t, "eng", cfg.OCR.DefaultLanguage)
	assert.NoError(t, cfg.Validate())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9090
storage:
  output_folder: /srv/scans
  shared_folder: /mnt/share
  auto_save_shared_folder: true
capture:
  endpoints:
    - http://192.168.1.50:8080/eSCL
  enable_mdns: false
  discovery_timeout: 5s
scan:
  default_dpi: 600
  max_concurrent_jobs: 4
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/srv/scans", cfg.Storage.OutputFolder)
	assert.True(t, cfg.Storage.AutoSaveSharedFolder)
	assert.Equal(t, []string{"http://192.168.1.50:8080/eSCL"}, cfg.Capture.Endpoints)
	assert.False(t, cfg.Capture.EnableMDNS)
	assert.Equal(t, 5*time.Second, cfg.Capture.DiscoveryTimeout)
	assert.Equal(t, 600, cfg.Scan.DefaultDPI)
	assert.Equal(t, 4, cfg.Scan.MaxConcurrentJobs)

	// Untouched sections keep their defaults.
	assert.Equal(t, "./data/scanhost.db", cfg.Database.Path)
	assert.NoError(t, cfg.Validate())
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid defaults", func(c *Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server port"},
		{"missing db path", func(c *Config) { c.Database.Path = "" }, "database path"},
		{"missing output folder", func(c *Config) { c.Storage.OutputFolder = "" }, "output folder"},
		{"unknown backend", func(c *Config) { c.Capture.Backend = "wia" }, "capture backend"},
		{"dpi too low", func(c *Config) { c.Scan.DefaultDPI = 10 }, "default dpi"},
		{"dpi too high", func(c *Config) { c.Scan.DefaultDPI = 9600 }, "default dpi"},
		{"single job cap", func(c *Config) { c.Scan.MaxConcurrentJobs = 1 }, "max concurrent jobs"},
		{"unlimited jobs ok", func(c *Config) { c.Scan.MaxConcurrentJobs = 0 }, ""},
		{"ocr without tessdata", func(c *Config) { c.OCR.TessdataPath = "" }, "tessdata path"},
		{"ocr disabled without tessdata ok", func(c *Config) {
			c.OCR.Enabled = false
			c.OCR.TessdataPath = ""
		}, ""},
		{"missing ocr language", func(c *Config) { c.OCR.DefaultLanguage = "" }, "ocr language"},
		{"zero webhook workers", func(c *Config) { c.Webhooks.WorkerCount = 0 }, "worker count"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "log level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SCANHOST_PORT", "8888")
	t.Setenv("SCANHOST_OUTPUT_FOLDER", "/tmp/out")
	t.Setenv("SCANHOST_LOG_LEVEL", "debug")

	cfg := LoadFromEnv()
	assert.Equal(t, 8888, cfg.Server.Port)
	assert.Equal(t, "/tmp/out", cfg.Storage.OutputFolder)
	assert.Equal(t, "debug", cfg.Logging.Level)
}
