// Package config loads ospace settings from a YAML file and OSPACE_
// environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/syssam/ospace"
	"github.com/syssam/ospace/objects"
)

// EnvPrefix prefixes the environment variables overriding file settings.
// Nested keys join with an underscore: OSPACE_GENERATE_WORKERS.
const EnvPrefix = "OSPACE"

// Config holds the ospace settings.
type Config struct {
	Proxy       ProxyConfig       `mapstructure:"proxy"`
	LazyLoading LazyLoadingConfig `mapstructure:"lazy_loading"`
	Metadata    MetadataConfig    `mapstructure:"metadata"`
	Generate    GenerateConfig    `mapstructure:"generate"`
	Log         LogConfig         `mapstructure:"log"`
}

// ProxyConfig controls runtime proxy creation.
type ProxyConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LazyLoadingConfig controls lazy loading of navigation members.
type LazyLoadingConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// MetadataConfig locates the metadata document.
type MetadataConfig struct {
	Path  string `mapstructure:"path"`
	Watch bool   `mapstructure:"watch"`
}

// GenerateConfig holds the proxy generator settings.
type GenerateConfig struct {
	Out        string `mapstructure:"out"`
	Package    string `mapstructure:"package"`
	BaseImport string `mapstructure:"base_import"`
	Workers    int    `mapstructure:"workers"`
}

// LogConfig holds the logger settings.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("proxy.enabled", true)
	v.SetDefault("lazy_loading.enabled", true)
	v.SetDefault("metadata.path", "model.yaml")
	v.SetDefault("metadata.watch", false)
	v.SetDefault("generate.out", "proxies")
	v.SetDefault("generate.package", "")
	v.SetDefault("generate.base_import", "")
	v.SetDefault("generate.workers", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads the configuration. An empty path looks for ospace.yaml in the
// working directory and falls back to defaults when there is none.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("ospace")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, ospace.NewConfigurationError("config", "read config file", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, ospace.NewConfigurationError("config", "decode config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings.
func (c *Config) Validate() error {
	if c.Generate.Workers < 0 {
		return ospace.NewConfigurationError("config",
			fmt.Sprintf("generate.workers must not be negative, got %d", c.Generate.Workers), nil)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return ospace.NewConfigurationError("config", "log.level", err)
	}
	return nil
}

// ContextOptions returns the object context options of the settings.
func (c *Config) ContextOptions(log *zap.Logger) []objects.Option {
	return []objects.Option{
		objects.WithProxyCreation(c.Proxy.Enabled),
		objects.WithLazyLoading(c.LazyLoading.Enabled),
		objects.WithLogger(log),
	}
}
