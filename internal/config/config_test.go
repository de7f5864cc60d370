package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(cwd) }) //nolint:errcheck

	v, err := Load("")
	if err != nil {
		t.Fatalf("missing config file must not error: %v", err)
	}
	if got := v.GetString("logging.level"); got != "info" {
		t.Errorf("logging.level = %q, want info", got)
	}
	if got := v.GetString("database.path"); got != "devscope.db" {
		t.Errorf("database.path = %q, want devscope.db", got)
	}
}

func TestLoadExplicitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devscope.yaml")
	content := "logging:\n  level: debug\nmodules:\n  runtime:\n    monitor_interval: 10s\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	v, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := v.GetString("logging.level"); got != "debug" {
		t.Errorf("logging.level = %q, want debug", got)
	}
	if got := v.GetString("modules.runtime.monitor_interval"); got != "10s" {
		t.Errorf("monitor_interval = %q, want 10s", got)
	}
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("explicitly named missing file must error")
	}
}

func TestSubMissingSection(t *testing.T) {
	c := New(viper.New())
	sub := c.Sub("modules.ghost")
	if sub == nil {
		t.Fatal("Sub returned nil for a missing section")
	}
	if sub.IsSet("anything") {
		t.Error("empty section reports keys as set")
	}
}

func TestSubScopesKeys(t *testing.T) {
	v := viper.New()
	v.Set("modules.runtime.history_size", 42)

	c := New(v)
	sub := c.Sub("modules.runtime")
	if got := sub.GetInt("history_size"); got != 42 {
		t.Errorf("history_size = %d, want 42", got)
	}
}

func TestNewLogger(t *testing.T) {
	cases := []struct {
		name    string
		level   string
		format  string
		wantErr bool
	}{
		{"json info", "info", "json", false},
		{"console debug", "debug", "console", false},
		{"bad level", "loud", "json", true},
		{"bad format", "info", "xml", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := viper.New()
			v.Set("logging.level", tc.level)
			v.Set("logging.format", tc.format)
			logger, err := NewLogger(v)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			logger.Sync() //nolint:errcheck
		})
	}
}
