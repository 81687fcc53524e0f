package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pagebuilder/internal/domain"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	return dir
}

func TestLoadDefaults(t *testing.T) {
	dir := isolate(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Editor.GridCols != domain.DefaultGridCols || cfg.Editor.HistoryLimit != 100 {
		t.Errorf("unexpected editor defaults %+v", cfg.Editor)
	}
	if cfg.DataDir != filepath.Join(dir, "data", "pagebuilder") {
		t.Errorf("unexpected data dir %s", cfg.DataDir)
	}
	if cfg.DatabasePath() != filepath.Join(cfg.DataDir, "pagebuilder.db") {
		t.Errorf("unexpected database path %s", cfg.DatabasePath())
	}
	if cfg.AutosaveDelay() != 500*time.Millisecond {
		t.Errorf("unexpected autosave %v", cfg.AutosaveDelay())
	}
	if cfg.Drag.AutoscrollEdge != 48 || cfg.Drag.AutoscrollSpeed != 28 {
		t.Errorf("drag defaults should match the controller's, got %+v", cfg.Drag)
	}
	if cfg.Snapshots.Keep != 20 {
		t.Errorf("unexpected snapshot retention %d", cfg.Snapshots.Keep)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.toml")
	body := `
data_dir = "/srv/pages"

[editor]
history_limit = 5
autosave = "2s"

[publish]
driver = "postgres"
host = "db.local"
port = 5432

[publish.options]
application_name = "pagebuilder"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PAGEBUILDER_EDITOR_GRID_COLS", "24")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataDir != "/srv/pages" || cfg.Editor.HistoryLimit != 5 {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Editor.GridCols != 24 {
		t.Errorf("expected env override 24, got %d", cfg.Editor.GridCols)
	}
	if cfg.AutosaveDelay() != 2*time.Second {
		t.Errorf("unexpected autosave %v", cfg.AutosaveDelay())
	}
	if cfg.Publish.Driver != domain.PublishDriverPostgres || cfg.Publish.Port != 5432 {
		t.Errorf("unexpected publish target %+v", cfg.Publish)
	}
	if cfg.Publish.Options["application_name"] != "pagebuilder" {
		t.Errorf("unexpected options %v", cfg.Publish.Options)
	}
	if cfg.Snapshots.Keep != 20 {
		t.Errorf("unset keys keep defaults, got keep=%d", cfg.Snapshots.Keep)
	}
}

func TestLoadMissingExplicitPath(t *testing.T) {
	dir := isolate(t)
	if _, err := Load(filepath.Join(dir, "nope.toml")); err == nil {
		t.Error("expected error for a missing explicit config file")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	isolate(t)
	cfg := Default()
	cfg.Snapshots.Keep = 3
	cfg.Registry.Overlay = "/etc/pagebuilder/registry.yaml"
	cfg.Publish.Driver = domain.PublishDriverSQLite
	cfg.Publish.Host = "/tmp/published.db"

	path := DefaultPath()
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Snapshots.Keep != 3 || got.Registry.Overlay != cfg.Registry.Overlay {
		t.Errorf("round trip lost values: %+v", got)
	}
	if got.Publish.Driver != domain.PublishDriverSQLite || got.Publish.Host != "/tmp/published.db" {
		t.Errorf("round trip lost publish target: %+v", got.Publish)
	}
}

func TestValidate(t *testing.T) {
	isolate(t)
	tests := []struct {
		name  string
		edit  func(*Config)
		field string
	}{
		{"negative history", func(c *Config) { c.Editor.HistoryLimit = -1 }, "editor.history_limit"},
		{"bad autosave", func(c *Config) { c.Editor.Autosave = "soon" }, "editor.autosave"},
		{"zero cols", func(c *Config) { c.Editor.GridCols = 0 }, "editor.grid_cols"},
		{"bad schedule", func(c *Config) { c.Snapshots.Schedule = "every tuesday" }, "snapshots.schedule"},
		{"bad driver", func(c *Config) { c.Publish.Driver = "oracle" }, "publish.driver"},
		{"sqlite without file", func(c *Config) { c.Publish.Driver = domain.PublishDriverSQLite }, "publish.host"},
	}
	for _, tt := range tests {
		cfg := Default()
		tt.edit(cfg)
		var ce *ConfigError
		if err := cfg.Validate(); !errors.As(err, &ce) || ce.Field != tt.field {
			t.Errorf("%s: expected error on %s, got %v", tt.name, tt.field, err)
		}
	}
}
