// Package config loads scopelens settings from .scopelens/config.{json,yaml,toml}.
package config

import (
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Dir is the per-repository configuration directory.
const Dir = ".scopelens"

// Config is the complete scopelens configuration.
type Config struct {
	// Languages restricts indexing to these languages. Empty means all.
	Languages []string `json:"languages" mapstructure:"languages"`

	// ScriptsDir holds user outline scripts (outline/<lang>.risor). Empty
	// means the embedded scripts only.
	ScriptsDir string `json:"scriptsDir" mapstructure:"scriptsDir"`

	// GapPolicy is "none" or "preceding".
	GapPolicy string `json:"gapPolicy" mapstructure:"gapPolicy"`

	EditDebounceMs int `json:"editDebounceMs" mapstructure:"editDebounceMs"`

	// Parallel enables concurrent extraction during indexing.
	Parallel bool `json:"parallel" mapstructure:"parallel"`

	DB      string        `json:"db" mapstructure:"db"`
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level string `json:"level" mapstructure:"level"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Languages: []string{},
		GapPolicy: "none",
		Parallel:  true,
		DB:        filepath.Join(Dir, "index.db"),
		Logging:   LoggingConfig{Level: "warn"},
	}
}

// LoadConfig reads repoRoot/.scopelens/config.* and overlays it on the
// defaults. SCOPELENS_* environment variables override file values, e.g.
// SCOPELENS_GAPPOLICY or SCOPELENS_LOGGING_LEVEL.
func LoadConfig(repoRoot string) (*Config, error) {
	v := viper.New()

	def := DefaultConfig()
	v.SetDefault("languages", def.Languages)
	v.SetDefault("scriptsDir", def.ScriptsDir)
	v.SetDefault("gapPolicy", def.GapPolicy)
	v.SetDefault("editDebounceMs", def.EditDebounceMs)
	v.SetDefault("parallel", def.Parallel)
	v.SetDefault("db", def.DB)
	v.SetDefault("logging.level", def.Logging.Level)

	v.SetConfigName("config")
	v.AddConfigPath(filepath.Join(repoRoot, Dir))
	v.SetEnvPrefix("scopelens")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, &ConfigError{Field: "file", Message: err.Error()}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// EditDebounce returns EditDebounceMs as a duration.
func (c *Config) EditDebounce() time.Duration {
	return time.Duration(c.EditDebounceMs) * time.Millisecond
}

// DBPath resolves DB against repoRoot when it is relative.
func (c *Config) DBPath(repoRoot string) string {
	if filepath.IsAbs(c.DB) {
		return c.DB
	}
	return filepath.Join(repoRoot, c.DB)
}

// Validate checks field values. GapPolicy is normalized to lower case and
// an empty policy means "none".
func (c *Config) Validate() error {
	c.GapPolicy = strings.ToLower(strings.TrimSpace(c.GapPolicy))
	switch c.GapPolicy {
	case "none", "preceding":
	case "":
		c.GapPolicy = "none"
	default:
		return &ConfigError{Field: "gapPolicy", Message: "must be \"none\" or \"preceding\", got " + c.GapPolicy}
	}
	if c.EditDebounceMs < 0 {
		return &ConfigError{Field: "editDebounceMs", Message: "must not be negative"}
	}
	if c.DB == "" {
		return &ConfigError{Field: "db", Message: "must not be empty"}
	}
	return nil
}

// ConfigError reports an invalid configuration value.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
