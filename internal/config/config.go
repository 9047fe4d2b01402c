// Package config loads meshstudio settings from embedded defaults and the
// environment.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ayusman/meshstudio/internal/detector"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Detector providers.
const (
	ProviderAuto      = "auto"
	ProviderMediaPipe = "mediapipe"
	ProviderHTTP      = "http"
	ProviderMock      = "mock"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Detector DetectorConfig `yaml:"detector"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	StaticDir    string        `yaml:"static_dir"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	MaxUploadMB  int           `yaml:"max_upload_mb"`
	SessionIdle  time.Duration `yaml:"session_idle"`
	UploadRate   float64       `yaml:"upload_rate"` // per minute per client
	UploadBurst  int           `yaml:"upload_burst"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"` // defaults to ~/.meshstudio/meshstudio.db
}

type DetectorConfig struct {
	Provider       string        `yaml:"provider"`
	URL            string        `yaml:"url"`
	Script         string        `yaml:"script"`
	Python         string        `yaml:"python"`
	MaxFaces       int           `yaml:"max_faces"`
	MinConfidence  float64       `yaml:"min_confidence"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxAgeDays int    `yaml:"max_age_days"`
	MaxBackups int    `yaml:"max_backups"`
}

// DetectorOptions converts the detector section for the detector package.
func (c DetectorConfig) DetectorOptions() detector.Config {
	return detector.Config{
		MaxFaces:       c.MaxFaces,
		MinConfidence:  c.MinConfidence,
		Script:         c.Script,
		Python:         c.Python,
		URL:            c.URL,
		IdleTimeout:    c.IdleTimeout,
		RequestTimeout: c.RequestTimeout,
	}
}

// MaxUploadBytes returns the upload limit in bytes.
func (c ServerConfig) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// envString reads an environment variable, returning defaultVal if unset or empty.
func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a float in [0, 1].
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 && f <= 1 {
		return f
	}
	return defaultVal
}

// envRate reads a non-negative float; 0 is allowed and disables a limit.
func envRate(key string, defaultVal float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil && f >= 0 {
		return f
	}
	return defaultVal
}

// envDuration reads an environment variable as a positive time.Duration.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

// Defaults returns the embedded default configuration.
func Defaults() *Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// Embedded file, so this only fails on a broken build.
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return &cfg
}

// Load returns the defaults overridden by MESHSTUDIO_* environment variables.
func Load() *Config {
	cfg := Defaults()

	cfg.Server.Addr = envString("MESHSTUDIO_ADDR", cfg.Server.Addr)
	cfg.Server.StaticDir = envString("MESHSTUDIO_STATIC_DIR", cfg.Server.StaticDir)
	cfg.Server.ReadTimeout = envDuration("MESHSTUDIO_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = envDuration("MESHSTUDIO_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.MaxUploadMB = envInt("MESHSTUDIO_MAX_UPLOAD_MB", cfg.Server.MaxUploadMB)
	cfg.Server.SessionIdle = envDuration("MESHSTUDIO_SESSION_IDLE", cfg.Server.SessionIdle)
	cfg.Server.UploadRate = envRate("MESHSTUDIO_UPLOAD_RATE", cfg.Server.UploadRate)
	cfg.Server.UploadBurst = envInt("MESHSTUDIO_UPLOAD_BURST", cfg.Server.UploadBurst)

	cfg.Database.Path = envString("MESHSTUDIO_DB", cfg.Database.Path)

	cfg.Detector.Provider = envString("MESHSTUDIO_DETECTOR", cfg.Detector.Provider)
	cfg.Detector.URL = envString("MESHSTUDIO_DETECTOR_URL", cfg.Detector.URL)
	cfg.Detector.Script = envString("MESHSTUDIO_DETECTOR_SCRIPT", cfg.Detector.Script)
	cfg.Detector.Python = envString("MESHSTUDIO_PYTHON", cfg.Detector.Python)
	cfg.Detector.MaxFaces = envInt("MESHSTUDIO_MAX_FACES", cfg.Detector.MaxFaces)
	cfg.Detector.MinConfidence = envFloat("MESHSTUDIO_MIN_CONFIDENCE", cfg.Detector.MinConfidence)
	cfg.Detector.IdleTimeout = envDuration("MESHSTUDIO_DETECTOR_IDLE", cfg.Detector.IdleTimeout)

	cfg.Log.Level = envString("MESHSTUDIO_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = envString("MESHSTUDIO_LOG_FILE", cfg.Log.File)

	return cfg
}

// Validate checks settings that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.Detector.Provider {
	case ProviderAuto, ProviderMediaPipe, ProviderMock:
	case ProviderHTTP:
		if c.Detector.URL == "" {
			return fmt.Errorf("detector provider %q needs MESHSTUDIO_DETECTOR_URL", ProviderHTTP)
		}
	default:
		return fmt.Errorf("unknown detector provider %q", c.Detector.Provider)
	}
	if c.Server.UploadRate < 0 {
		return fmt.Errorf("upload_rate must not be negative, got %g", c.Server.UploadRate)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("max_upload_mb must be positive, got %d", c.Server.MaxUploadMB)
	}
	return nil
}

// DataDir returns ~/.meshstudio, creating it if needed.
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	dir := filepath.Join(home, ".meshstudio")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dir, nil
}

// DatabasePath returns the configured database path or the default one.
func (c *Config) DatabasePath() (string, error) {
	if c.Database.Path != "" {
		return c.Database.Path, nil
	}
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "meshstudio.db"), nil
}
