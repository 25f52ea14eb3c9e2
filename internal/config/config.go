package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jo-hoe/travelgallery/internal/common"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration loaded from YAML.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Images     ImagesConfig     `yaml:"images"`
	Geocoding  GeocodingConfig  `yaml:"geocoding"`
	Directions DirectionsConfig `yaml:"directions"`
	Jobs       JobsConfig       `yaml:"jobs"`
}

// ServerConfig holds HTTP server and runtime settings.
type ServerConfig struct {
	Addr            string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	MaxUploadSize   ByteSize      `yaml:"maxUploadSize"`
	WorkerCount     int           `yaml:"workerCount"`
	QueueCapacity   int           `yaml:"queueCapacity"`
	StorageDir      string        `yaml:"storageDir"`
	APIKey          string        `yaml:"apiKey"`          // optional static API key header (X-API-Key)
	ShutdownGrace   time.Duration `yaml:"shutdownGrace"`   // time to wait for workers before forced stop
	CallbackRetries int           `yaml:"callbackRetries"` // number of callback attempts
	CallbackBackoff time.Duration `yaml:"callbackBackoff"` // base backoff duration
	LogLevel        string        `yaml:"logLevel"`        // debug|info|warn|error
}

// DatabaseConfig selects the SQL driver backing the store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite|pgx
	DSN    string `yaml:"dsn"`    // sqlite file path or postgres connection string
}

// ImagesConfig controls processed image output.
type ImagesConfig struct {
	MaxWidth      int `yaml:"maxWidth"`
	ThumbnailSize int `yaml:"thumbnailSize"`
	JPEGQuality   int `yaml:"jpegQuality"`
}

// GeocodingConfig configures the reverse-geocoding provider (Nominatim API).
type GeocodingConfig struct {
	Enabled   *bool         `yaml:"enabled"`
	BaseURL   string        `yaml:"baseUrl"`
	UserAgent string        `yaml:"userAgent"`
	Email     string        `yaml:"email"`
	MinDelay  time.Duration `yaml:"minDelay"`
	Timeout   time.Duration `yaml:"timeout"`
}

// IsEnabled defaults to true when unset.
func (g GeocodingConfig) IsEnabled() bool {
	return g.Enabled == nil || *g.Enabled
}

// DirectionsConfig selects the routing provider.
type DirectionsConfig struct {
	Provider       string        `yaml:"provider"` // openroute|mock
	BaseURL        string        `yaml:"baseUrl"`
	APIKey         string        `yaml:"apiKey"`
	MinDelay       time.Duration `yaml:"minDelay"`
	Timeout        time.Duration `yaml:"timeout"`
	DefaultProfile string        `yaml:"defaultProfile"`
}

// JobsConfig bounds the in-memory job registry.
type JobsConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweepInterval"`
}

// ByteSize represents a size in bytes that unmarshals from strings like "10Mi", "20MB", "512KiB", "1024".
type ByteSize uint64

// UnmarshalYAML implements yaml unmarshalling for ByteSize.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		str := strings.TrimSpace(value.Value)
		parsed, err := ParseByteSize(str)
		if err != nil {
			return err
		}
		*b = ByteSize(parsed)
		return nil
	}
	return fmt.Errorf("invalid bytesize node kind: %v", value.Kind)
}

var reNumeric = regexp.MustCompile(`^\d+$`)

// ParseByteSize parses a string like "10Mi", "20MB", "512KiB", "1024" into bytes.
// Supports Kubernetes-style quantities for binary units: Ki, Mi, Gi (case-insensitive).
// Also accepts KiB/MiB/GiB and decimal KB/MB/GB, and bare bytes.
func ParseByteSize(s string) (uint64, error) {
	orig := s
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty size")
	}
	if reNumeric.MatchString(s) {
		val, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid size number: %w", err)
		}
		return val, nil
	}

	up := strings.ToUpper(s)

	type unit struct {
		suffix string
		value  uint64
	}
	// Longer suffixes first so "KIB" is not read as "B".
	units := []unit{
		{"KIB", 1024},
		{"MIB", 1024 * 1024},
		{"GIB", 1024 * 1024 * 1024},
		{"KI", 1024},
		{"MI", 1024 * 1024},
		{"GI", 1024 * 1024 * 1024},
		{"KB", 1000},
		{"MB", 1000 * 1000},
		{"GB", 1000 * 1000 * 1000},
		{"B", 1},
	}
	for _, u := range units {
		if strings.HasSuffix(up, u.suffix) {
			num := strings.TrimSpace(s[:len(s)-len(u.suffix)])
			val, err := strconv.ParseFloat(num, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid size number in %q: %w", orig, err)
			}
			return uint64(val * float64(u.value)), nil
		}
	}
	return 0, fmt.Errorf("unknown size suffix in %q", orig)
}

// Load reads YAML config from path, expands environment variables, and validates it.
// If path is empty, it will attempt to read from env var TRAVELGALLERY_CONFIG, then default to "config.yaml".
func Load(path string) (*Config, error) {
	if path == "" {
		if env := os.Getenv("TRAVELGALLERY_CONFIG"); env != "" {
			path = env
		} else {
			path = "config.yaml"
		}
	}
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath) // #nosec G304 - reading sanitized config file path is expected
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	if cfg.Server.StorageDir != "" {
		if err := os.MkdirAll(cfg.Server.StorageDir, 0o750); err != nil {
			return nil, fmt.Errorf("ensure storage_dir: %w", err)
		}
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == common.DriverSQLite {
		cfg.Database.DSN = filepath.Join(cfg.Server.StorageDir, "travelgallery.db")
	}
	return &cfg, nil
}

// ApplyDefaults fills zero values. Exported so tests and embedders can build
// a Config in code.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	// Streams stay open for the whole batch, so no write timeout by default.
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 60 * time.Second
	}
	if cfg.Server.MaxUploadSize == 0 {
		cfg.Server.MaxUploadSize = ByteSize(100 * 1024 * 1024)
	}
	if cfg.Server.WorkerCount <= 0 {
		cfg.Server.WorkerCount = common.DefaultWorkerCount
	}
	if cfg.Server.QueueCapacity <= 0 {
		cfg.Server.QueueCapacity = common.DefaultQueueCapacity
	}
	if cfg.Server.StorageDir == "" {
		cfg.Server.StorageDir = "data"
	}
	if cfg.Server.ShutdownGrace == 0 {
		cfg.Server.ShutdownGrace = 15 * time.Second
	}
	if cfg.Server.CallbackRetries == 0 {
		cfg.Server.CallbackRetries = 3
	}
	if cfg.Server.CallbackBackoff == 0 {
		cfg.Server.CallbackBackoff = 2 * time.Second
	}
	if strings.TrimSpace(cfg.Server.LogLevel) == "" {
		cfg.Server.LogLevel = "info"
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = common.DriverSQLite
	}

	if cfg.Images.MaxWidth <= 0 {
		cfg.Images.MaxWidth = 2048
	}
	if cfg.Images.ThumbnailSize <= 0 {
		cfg.Images.ThumbnailSize = 300
	}
	if cfg.Images.JPEGQuality <= 0 || cfg.Images.JPEGQuality > 100 {
		cfg.Images.JPEGQuality = 85
	}

	if strings.TrimSpace(cfg.Geocoding.BaseURL) == "" {
		cfg.Geocoding.BaseURL = "https://nominatim.openstreetmap.org"
	}
	if strings.TrimSpace(cfg.Geocoding.UserAgent) == "" {
		cfg.Geocoding.UserAgent = "travelgallery/1.0"
	}
	// Nominatim usage policy: at most one request per second.
	if cfg.Geocoding.MinDelay == 0 {
		cfg.Geocoding.MinDelay = time.Second
	}
	if cfg.Geocoding.Timeout == 0 {
		cfg.Geocoding.Timeout = 10 * time.Second
	}

	if cfg.Directions.Provider == "" {
		cfg.Directions.Provider = common.ProviderOpenRoute
	}
	if strings.TrimSpace(cfg.Directions.BaseURL) == "" {
		cfg.Directions.BaseURL = "https://api.openrouteservice.org"
	}
	if cfg.Directions.MinDelay == 0 {
		cfg.Directions.MinDelay = 100 * time.Millisecond
	}
	if cfg.Directions.Timeout == 0 {
		cfg.Directions.Timeout = 30 * time.Second
	}
	if strings.TrimSpace(cfg.Directions.DefaultProfile) == "" {
		cfg.Directions.DefaultProfile = "driving-car"
	}

	if cfg.Jobs.TTL == 0 {
		cfg.Jobs.TTL = time.Hour
	}
	if cfg.Jobs.SweepInterval == 0 {
		cfg.Jobs.SweepInterval = time.Minute
	}
}

func validate(cfg *Config) error {
	switch cfg.Database.Driver {
	case common.DriverSQLite:
	case common.DriverPgx:
		if strings.TrimSpace(cfg.Database.DSN) == "" {
			return errors.New("database.dsn is required for driver pgx")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}

	switch cfg.Directions.Provider {
	case common.ProviderOpenRoute, common.ProviderMock:
	default:
		return fmt.Errorf("unsupported directions provider %q", cfg.Directions.Provider)
	}

	if cfg.Images.ThumbnailSize > cfg.Images.MaxWidth {
		return fmt.Errorf("images.thumbnailSize (%d) must not exceed images.maxWidth (%d)", cfg.Images.ThumbnailSize, cfg.Images.MaxWidth)
	}
	if cfg.Geocoding.MinDelay < 0 || cfg.Directions.MinDelay < 0 {
		return errors.New("minDelay must not be negative")
	}
	return nil
}
