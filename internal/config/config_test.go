package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.yaml", `poll_interval_ms: 250
auto_confirm: false
firmware_dir: /opt/fw
http_addr: 127.0.0.1:8089
cors_origins: ["http://localhost:3000"]
models:
  - name: DSO-2250
    vendor_id: 0x04b5
    product_id: 0x2250
    loader_vendor_id: 0x04b4
    loader_product_id: 0x2250
    firmware: dso2250.hex
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PollInterval() != 250*time.Millisecond || cfg.AutoConfirmEnabled() || cfg.FirmwareDir != "/opt/fw" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.HTTPAddr != "127.0.0.1:8089" || len(cfg.CORSOrigins) != 1 {
		t.Fatalf("unexpected http settings: %+v", cfg)
	}

	reg, err := cfg.Registry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	m, ok := reg.Lookup(0x04B4, 0x2250)
	if !ok || m.Model.Name != "DSO-2250" || !m.NeedsFirmware {
		t.Fatalf("configured model not registered: %+v", m)
	}
}

func TestLoadJSON(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.json", `{"poll_interval_ms":500,"enable_hid":false,"log_format":"json"}`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PollIntervalMS != 500 || cfg.HIDEnabled() || cfg.LogFormat != "json" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if !cfg.AutoConfirmEnabled() {
		t.Fatalf("auto_confirm should default to true")
	}
}

func TestLoadTOML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.toml", "poll_interval_ms = 2000\nlog_level = \"debug\"\nhistory_path = \"/tmp/h.db\"\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PollIntervalMS != 2000 || cfg.LogLevel != "debug" || cfg.HistoryPath != "/tmp/h.db" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error on empty path")
	}
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.txt", "not supported")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected unsupported extension error")
	}
	p = writeTempFile(t, d, "bad.yaml", "poll_interval_ms: [")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.PollInterval() != time.Second {
		t.Fatalf("default interval = %v", cfg.PollInterval())
	}
	if !cfg.AutoConfirmEnabled() || !cfg.HIDEnabled() {
		t.Fatalf("auto_confirm and enable_hid default to true")
	}
	if len(cfg.UdevRulesPaths) != 2 || cfg.FirmwareDir == "" || cfg.HistoryPath == "" {
		t.Fatalf("missing defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"log format", func(c *Config) { c.LogFormat = "xml" }},
		{"model without vendor", func(c *Config) { c.Models = []ModelConfig{{Name: "x"}} }},
		{"model clashing with a default", func(c *Config) {
			c.Models = []ModelConfig{{Name: "clone", Transport: "hid", VendorID: 0x10C4, ProductID: 0xEA80}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestFindPath(t *testing.T) {
	d := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(d); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("HOME", d)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(d, "xdg"))
	t.Setenv(EnvConfigPath, "")

	if got := FindPath(); got != "" {
		t.Fatalf("expected no config, got %q", got)
	}

	xdg := filepath.Join(d, "xdg", AppDirName)
	if err := os.MkdirAll(xdg, 0o755); err != nil {
		t.Fatal(err)
	}
	xdgPath := writeTempFile(t, xdg, "config.yaml", "log_level: warn\n")
	if got := FindPath(); got != xdgPath {
		t.Fatalf("FindPath() = %q, want %q", got, xdgPath)
	}

	writeTempFile(t, d, ConfigFileName, "log_level: debug\n")
	if got := FindPath(); filepath.Base(got) != ConfigFileName {
		t.Fatalf("working directory file should win, got %q", got)
	}

	explicit := writeTempFile(t, d, "explicit.toml", "log_level = \"error\"\n")
	t.Setenv(EnvConfigPath, explicit)
	if got := FindPath(); got != explicit {
		t.Fatalf("FindPath() = %q, want %q", got, explicit)
	}
}
