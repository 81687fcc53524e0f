// Package config loads pagebuilder settings from config.toml and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"pagebuilder/internal/dnd"
	"pagebuilder/internal/domain"
	"pagebuilder/internal/publish"
)

const (
	appName     = "pagebuilder"
	fileName    = "config"
	envPrefix   = "PAGEBUILDER"
	defaultSave = "500ms"
)

type Config struct {
	DataDir string `mapstructure:"data_dir" toml:"data_dir"`
	// Database is the sqlite file. Empty means <data_dir>/pagebuilder.db.
	Database string `mapstructure:"database" toml:"database"`

	Editor    EditorConfig   `mapstructure:"editor" toml:"editor"`
	Snapshots SnapshotConfig `mapstructure:"snapshots" toml:"snapshots"`
	Drag      DragConfig     `mapstructure:"drag" toml:"drag"`
	Templates TemplateConfig `mapstructure:"templates" toml:"templates"`
	Registry  RegistryConfig `mapstructure:"registry" toml:"registry"`
	Publish   publish.Target `mapstructure:"publish" toml:"publish"`
}

type EditorConfig struct {
	// HistoryLimit caps the undo stack. Zero keeps everything.
	HistoryLimit int `mapstructure:"history_limit" toml:"history_limit"`
	// Autosave is the debounce before a state snapshot is written, as a Go
	// duration string.
	Autosave string `mapstructure:"autosave" toml:"autosave"`
	GridCols int    `mapstructure:"grid_cols" toml:"grid_cols"`
	GridSnap bool   `mapstructure:"grid_snap" toml:"grid_snap"`
}

type SnapshotConfig struct {
	// Keep bounds checkpoints per page. Zero keeps all.
	Keep int `mapstructure:"keep" toml:"keep"`
	// Schedule is a cron expression for pruning. Empty disables it.
	Schedule string `mapstructure:"schedule" toml:"schedule"`
}

type DragConfig struct {
	AutoscrollEdge  float64 `mapstructure:"autoscroll_edge" toml:"autoscroll_edge"`
	AutoscrollSpeed float64 `mapstructure:"autoscroll_speed" toml:"autoscroll_speed"`
}

type TemplateConfig struct {
	// Dir holds *.json / *.yaml templates. Empty means <data_dir>/templates.
	Dir   string `mapstructure:"dir" toml:"dir"`
	Watch bool   `mapstructure:"watch" toml:"watch"`
}

type RegistryConfig struct {
	// Overlay is an optional YAML file extending the built-in registry.
	Overlay string `mapstructure:"overlay" toml:"overlay"`
}

// DefaultDataDir returns ~/.local/share/pagebuilder, or a relative
// directory when the home directory is unknown.
func DefaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "." + appName
	}
	return filepath.Join(home, ".local", "share", appName)
}

// DefaultPath is where `config init` writes and the first place Load looks.
func DefaultPath() string {
	return filepath.Join(configDirs()[0], fileName+".toml")
}

func configDirs() []string {
	var dirs []string
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		dirs = append(dirs, filepath.Join(dir, appName))
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".config", appName))
	}
	return append(dirs, ".")
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DataDir: DefaultDataDir(),
		Editor: EditorConfig{
			HistoryLimit: 100,
			Autosave:     defaultSave,
			GridCols:     domain.DefaultGridCols,
			GridSnap:     true,
		},
		Snapshots: SnapshotConfig{Keep: 20, Schedule: "@hourly"},
		Drag:      DragConfig{AutoscrollEdge: dnd.AutoscrollEdge, AutoscrollSpeed: dnd.AutoscrollMaxSpeed},
		Templates: TemplateConfig{Watch: true},
	}
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("database", d.Database)
	v.SetDefault("editor.history_limit", d.Editor.HistoryLimit)
	v.SetDefault("editor.autosave", d.Editor.Autosave)
	v.SetDefault("editor.grid_cols", d.Editor.GridCols)
	v.SetDefault("editor.grid_snap", d.Editor.GridSnap)
	v.SetDefault("snapshots.keep", d.Snapshots.Keep)
	v.SetDefault("snapshots.schedule", d.Snapshots.Schedule)
	v.SetDefault("drag.autoscroll_edge", d.Drag.AutoscrollEdge)
	v.SetDefault("drag.autoscroll_speed", d.Drag.AutoscrollSpeed)
	v.SetDefault("templates.dir", d.Templates.Dir)
	v.SetDefault("templates.watch", d.Templates.Watch)
	v.SetDefault("registry.overlay", d.Registry.Overlay)
	v.SetDefault("publish.driver", string(d.Publish.Driver))
	v.SetDefault("publish.host", d.Publish.Host)
	v.SetDefault("publish.port", d.Publish.Port)
	v.SetDefault("publish.database", d.Publish.Database)
	v.SetDefault("publish.username", d.Publish.Username)
	v.SetDefault("publish.password", d.Publish.Password)
	v.SetDefault("publish.secret_key", d.Publish.SecretKey)
	v.SetDefault("publish.sslmode", d.Publish.SSLMode)
}

// Load reads path, or searches the config dirs for config.toml when path is
// empty. A missing file in the search path is not an error; the defaults
// and PAGEBUILDER_* environment overrides still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
	} else {
		v.SetConfigName(fileName)
		v.SetConfigType("toml")
		for _, dir := range configDirs() {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Save writes the configuration as TOML, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(c)
}

// DatabasePath resolves the sqlite file.
func (c *Config) DatabasePath() string {
	if c.Database != "" {
		return c.Database
	}
	return filepath.Join(c.DataDir, appName+".db")
}

// TemplateDir resolves the template library directory.
func (c *Config) TemplateDir() string {
	if c.Templates.Dir != "" {
		return c.Templates.Dir
	}
	return filepath.Join(c.DataDir, "templates")
}

// AutosaveDelay parses Editor.Autosave, falling back to the default.
func (c *Config) AutosaveDelay() time.Duration {
	d, err := time.ParseDuration(c.Editor.Autosave)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(defaultSave)
	}
	return d
}

// Validate checks if the configuration is usable.
func (c *Config) Validate() error {
	if c.DataDir == "" && c.Database == "" {
		return &ConfigError{Field: "data_dir", Message: "either data_dir or database must be set"}
	}
	if c.Editor.HistoryLimit < 0 {
		return &ConfigError{Field: "editor.history_limit", Message: "must not be negative"}
	}
	if d, err := time.ParseDuration(c.Editor.Autosave); err != nil || d <= 0 {
		return &ConfigError{Field: "editor.autosave", Message: fmt.Sprintf("invalid duration %q", c.Editor.Autosave)}
	}
	if c.Editor.GridCols < 1 {
		return &ConfigError{Field: "editor.grid_cols", Message: "must be at least 1"}
	}
	if c.Snapshots.Keep < 0 {
		return &ConfigError{Field: "snapshots.keep", Message: "must not be negative"}
	}
	if c.Snapshots.Schedule != "" {
		if _, err := cron.ParseStandard(c.Snapshots.Schedule); err != nil {
			return &ConfigError{Field: "snapshots.schedule", Message: err.Error()}
		}
	}
	if c.Drag.AutoscrollEdge < 0 || c.Drag.AutoscrollSpeed < 0 {
		return &ConfigError{Field: "drag", Message: "autoscroll values must not be negative"}
	}
	switch c.Publish.Driver {
	case domain.PublishDriverNone, domain.PublishDriverSQLite, domain.PublishDriverMySQL,
		domain.PublishDriverPostgres, domain.PublishDriverMongoDB:
	default:
		return &ConfigError{Field: "publish.driver", Message: fmt.Sprintf("unsupported driver %q", c.Publish.Driver)}
	}
	if c.Publish.Driver == domain.PublishDriverSQLite && c.Publish.Host == "" {
		return &ConfigError{Field: "publish.host", Message: "sqlite publishing needs the database file as host"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error in %s: %s", e.Field, e.Message)
}
