package types

import (
	"errors"
	"strings"
)

// Config selects the file system driver and tunes the engine. The CLI fills
// it from config.yaml; library callers build it directly.
type Config struct {
	Driver        string       `json:"driver" yaml:"driver" mapstructure:"driver"`
	ContentDir    string       `json:"content_dir" yaml:"content_dir" mapstructure:"content_dir"`
	DefaultFormat string       `json:"default_format" yaml:"default_format" mapstructure:"default_format"`
	MaxHistory    int          `json:"max_history" yaml:"max_history" mapstructure:"max_history"`
	LogLevel      string       `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
	SQLite        SQLiteConfig `json:"sqlite" yaml:"sqlite" mapstructure:"sqlite"`
	S3            S3Config     `json:"s3" yaml:"s3" mapstructure:"s3"`
	HTTP          HTTPConfig   `json:"http" yaml:"http" mapstructure:"http"`
}

// SQLiteConfig locates the database file of the sqlite driver.
type SQLiteConfig struct {
	Path string `json:"path" yaml:"path" mapstructure:"path"`
}

// S3Config addresses the bucket used by the s3 driver. Endpoint and PathStyle
// are set for S3-compatible stores such as MinIO.
type S3Config struct {
	Bucket    string `json:"bucket" yaml:"bucket" mapstructure:"bucket"`
	Region    string `json:"region" yaml:"region" mapstructure:"region"`
	Endpoint  string `json:"endpoint" yaml:"endpoint" mapstructure:"endpoint"`
	PathStyle bool   `json:"path_style" yaml:"path_style" mapstructure:"path_style"`
}

// HTTPConfig points the read-only http driver at a content root.
type HTTPConfig struct {
	BaseURL string `json:"base_url" yaml:"base_url" mapstructure:"base_url"`
}

// Supported driver names.
const (
	DriverLocal  = "local"
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverS3     = "s3"
	DriverHTTP   = "http"
)

// Engine defaults.
const (
	DefaultMaxHistory = 100
	DefaultFormatName = "json"
	DefaultLogLevel   = "info"
)

// Config validation errors.
var (
	ErrDriverEmpty       = errors.New("driver must not be empty")
	ErrDriverUnknown     = errors.New("unknown driver")
	ErrMaxHistoryInvalid = errors.New("max history must be positive")
	ErrSQLitePathEmpty   = errors.New("sqlite driver requires sqlite.path")
	ErrS3BucketEmpty     = errors.New("s3 driver requires s3.bucket")
	ErrHTTPBaseURLEmpty  = errors.New("http driver requires http.base_url")
	ErrLogLevelUnknown   = errors.New("unknown log level")
)

var knownDrivers = map[string]bool{
	DriverLocal:  true,
	DriverMemory: true,
	DriverSQLite: true,
	DriverS3:     true,
	DriverHTTP:   true,
}

var knownLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true,
}

// DefaultConfig returns a local-disk configuration rooted at contentDir.
func DefaultConfig(contentDir string) Config {
	return Config{
		Driver:        DriverLocal,
		ContentDir:    contentDir,
		DefaultFormat: DefaultFormatName,
		MaxHistory:    DefaultMaxHistory,
		LogLevel:      DefaultLogLevel,
	}
}

// Validate checks that the Config is well-formed. It returns a sentinel error
// from this package on failure. Zero MaxHistory, LogLevel and DefaultFormat
// mean "use the default" and are accepted.
func (c Config) Validate() error {
	if c.Driver == "" {
		return ErrDriverEmpty
	}
	if !knownDrivers[c.Driver] {
		return ErrDriverUnknown
	}
	if c.MaxHistory < 0 {
		return ErrMaxHistoryInvalid
	}
	if c.LogLevel != "" && !knownLogLevels[strings.ToLower(c.LogLevel)] {
		return ErrLogLevelUnknown
	}
	switch c.Driver {
	case DriverSQLite:
		if c.SQLite.Path == "" {
			return ErrSQLitePathEmpty
		}
	case DriverS3:
		if c.S3.Bucket == "" {
			return ErrS3BucketEmpty
		}
	case DriverHTTP:
		if c.HTTP.BaseURL == "" {
			return ErrHTTPBaseURLEmpty
		}
	}
	return nil
}

// HistorySize returns MaxHistory or the default when unset.
func (c Config) HistorySize() int {
	if c.MaxHistory <= 0 {
		return DefaultMaxHistory
	}
	return c.MaxHistory
}

// FormatName returns DefaultFormat or "json" when unset.
func (c Config) FormatName() string {
	if c.DefaultFormat == "" {
		return DefaultFormatName
	}
	return c.DefaultFormat
}
