// Package config loads fontserve's runtime configuration: server settings,
// the LRU cache size, and logging. It has no backend-selection setting;
// the serve command builds its backend from flags. It follows the same
// viper+toml+mapstructure wiring the rest of the font-collaboration stack
// uses for its own configuration.
package config

import (
	"strings"

	"github.com/fontserve/fontserve/errors"
	"github.com/spf13/viper"
)

// Config is the root fontserve configuration.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Cache  CacheConfig  `mapstructure:"cache"`
	Log    LogConfig    `mapstructure:"log"`
}

// ServerConfig configures the websocket/HTTP front end.
type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	ReadOnly       bool     `mapstructure:"read_only"`
	DummyEditor    bool     `mapstructure:"dummy_editor"`
}

// CacheConfig configures the FontHandler's LRU cache.
type CacheConfig struct {
	MaxEntries int `mapstructure:"max_entries"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	JSON bool `mapstructure:"json"`
}

// DefaultServerPort is used when no configuration or flag overrides it.
const DefaultServerPort = 8765

var globalConfig *Config

// Load reads fontserve.toml (if present) from the working directory, the
// user config directory, and /etc, overlaying environment variables
// prefixed FONTSERVE_, and returns the merged configuration. Results are
// cached; call Reset to force a re-read (used by tests).
func Load() (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	v := newViper()
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	globalConfig = &cfg
	return globalConfig, nil
}

// LoadFromFile loads configuration from one explicit TOML file, bypassing
// the default search path. Used by the CLI's --config flag.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", path)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal config from %s", path)
	}
	return &cfg, nil
}

// Reset clears the cached configuration. Tests call this between cases.
func Reset() {
	globalConfig = nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName("fontserve")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/fontserve")
	v.AddConfigPath("/etc/fontserve")

	SetDefaults(v)
	v.SetEnvPrefix("FONTSERVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// A missing config file is fine — defaults + env vars still apply.
	_ = v.ReadInConfig()

	return v
}

// SetDefaults installs fontserve's default configuration values.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", []string{
		"http://localhost",
		"https://localhost",
		"http://127.0.0.1",
	})
	v.SetDefault("server.read_only", false)
	v.SetDefault("server.dummy_editor", false)

	v.SetDefault("cache.max_entries", 2048)

	v.SetDefault("log.json", false)
}
