package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/schematic/internal/paths"
	"github.com/mesh-intelligence/schematic/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	envPrefix      = "SCHEMATIC"
)

// Config keys.
const (
	cfgKeyDriver        = "driver"
	cfgKeyContentDir    = "content_dir"
	cfgKeyDefaultFormat = "default_format"
	cfgKeyMaxHistory    = "max_history"
	cfgKeyLogLevel      = "log_level"
	cfgKeySQLitePath    = "sqlite.path"
	cfgKeyS3Bucket      = "s3.bucket"
	cfgKeyS3Region      = "s3.region"
	cfgKeyS3Endpoint    = "s3.endpoint"
	cfgKeyS3PathStyle   = "s3.path_style"
	cfgKeyHTTPBaseURL   = "http.base_url"
)

// loadConfig reads config.yaml from configDir. Every key can be overridden
// by a SCHEMATIC_ environment variable (sqlite.path is SCHEMATIC_SQLITE_PATH).
// A missing config.yaml is not an error.
func loadConfig(configDir string) (types.Config, error) {
	def := types.DefaultConfig("")
	v := viper.New()
	v.SetDefault(cfgKeyDriver, def.Driver)
	v.SetDefault(cfgKeyContentDir, def.ContentDir)
	v.SetDefault(cfgKeyDefaultFormat, def.DefaultFormat)
	v.SetDefault(cfgKeyMaxHistory, def.MaxHistory)
	v.SetDefault(cfgKeyLogLevel, def.LogLevel)
	v.SetDefault(cfgKeySQLitePath, "")
	v.SetDefault(cfgKeyS3Bucket, "")
	v.SetDefault(cfgKeyS3Region, "")
	v.SetDefault(cfgKeyS3Endpoint, "")
	v.SetDefault(cfgKeyS3PathStyle, false)
	v.SetDefault(cfgKeyHTTPBaseURL, "")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return types.Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg types.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return types.Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// writeConfigIfMissing creates config.yaml holding cfg. An existing file is
// left alone and reported as not written.
func writeConfigIfMissing(configDir string, cfg types.Config) (string, bool, error) {
	p := filepath.Join(configDir, paths.ConfigFileName)
	if _, err := os.Stat(p); err == nil {
		return p, false, nil
	} else if !os.IsNotExist(err) {
		return p, false, fmt.Errorf("stat config file: %w", err)
	}
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return p, false, fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return p, false, fmt.Errorf("marshal config: %w", err)
	}
	header := []byte("# schematic configuration\n")
	if err := os.WriteFile(p, append(header, data...), 0o644); err != nil {
		return p, false, err
	}
	return p, true, nil
}
