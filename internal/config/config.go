// Package config loads scopeselect settings from YAML, JSON or TOML files.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/seagrayinc/scopeselect/pkg/models"
)

var ErrInvalid = errors.New("invalid configuration")

// Config holds runtime parameters. Zero values are replaced by defaults.
type Config struct {
	PollIntervalMS int    `json:"poll_interval_ms" yaml:"poll_interval_ms" toml:"poll_interval_ms"`
	AutoConfirm    *bool  `json:"auto_confirm" yaml:"auto_confirm" toml:"auto_confirm"`
	FirmwareDir    string `json:"firmware_dir" yaml:"firmware_dir" toml:"firmware_dir"`
	EnableHID      *bool  `json:"enable_hid" yaml:"enable_hid" toml:"enable_hid"`

	LogLevel  string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format" toml:"log_format"`

	HistoryPath string   `json:"history_path" yaml:"history_path" toml:"history_path"`
	HTTPAddr    string   `json:"http_addr" yaml:"http_addr" toml:"http_addr"`
	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`

	UdevRulesPaths []string `json:"udev_rules_paths" yaml:"udev_rules_paths" toml:"udev_rules_paths"`

	Models []ModelConfig `json:"models" yaml:"models" toml:"models"`
}

// ModelConfig defines an extra supported device.
type ModelConfig struct {
	Name            string `json:"name" yaml:"name" toml:"name"`
	Transport       string `json:"transport" yaml:"transport" toml:"transport"`
	VendorID        uint16 `json:"vendor_id" yaml:"vendor_id" toml:"vendor_id"`
	ProductID       uint16 `json:"product_id" yaml:"product_id" toml:"product_id"`
	LoaderVendorID  uint16 `json:"loader_vendor_id" yaml:"loader_vendor_id" toml:"loader_vendor_id"`
	LoaderProductID uint16 `json:"loader_product_id" yaml:"loader_product_id" toml:"loader_product_id"`
	Firmware        string `json:"firmware" yaml:"firmware" toml:"firmware"`
}

// Model converts the entry. Transport defaults to libusb.
func (m ModelConfig) Model() models.Model {
	t := models.Transport(strings.ToLower(m.Transport))
	if t == "" {
		t = models.TransportLibUSB
	}
	return models.Model{
		Name:            m.Name,
		Transport:       t,
		VendorID:        m.VendorID,
		ProductID:       m.ProductID,
		LoaderVendorID:  m.LoaderVendorID,
		LoaderProductID: m.LoaderProductID,
		Firmware:        m.Firmware,
	}
}

// Default returns a configuration with every default applied.
func Default() Config {
	var cfg Config
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.PollIntervalMS <= 0 {
		c.PollIntervalMS = 1000
	}
	if c.AutoConfirm == nil {
		c.AutoConfirm = boolPtr(true)
	}
	if c.EnableHID == nil {
		c.EnableHID = boolPtr(true)
	}
	if c.FirmwareDir == "" {
		c.FirmwareDir = defaultFirmwareDir()
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.HistoryPath == "" {
		c.HistoryPath = defaultHistoryPath()
	}
	if len(c.UdevRulesPaths) == 0 {
		c.UdevRulesPaths = []string{
			"/lib/udev/rules.d/60-hantek.rules",
			"/etc/udev/rules.d/60-hantek.rules",
		}
	}
}

// Validate checks values defaults cannot repair.
func (c Config) Validate() error {
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log_format %q", ErrInvalid, c.LogFormat)
	}
	if _, err := c.Registry(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// PollInterval is PollIntervalMS as a duration.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// AutoConfirmEnabled reports auto_confirm, true when unset.
func (c Config) AutoConfirmEnabled() bool { return c.AutoConfirm == nil || *c.AutoConfirm }

// HIDEnabled reports enable_hid, true when unset.
func (c Config) HIDEnabled() bool { return c.EnableHID == nil || *c.EnableHID }

// Registry returns the default models extended by the configured ones.
func (c Config) Registry() (*models.Registry, error) {
	if len(c.Models) == 0 {
		return models.Default(), nil
	}
	extra := make([]models.Model, 0, len(c.Models))
	for _, m := range c.Models {
		extra = append(extra, m.Model())
	}
	return models.Default().With(extra...)
}

// Load reads a configuration file based on its extension and applies
// defaults. Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	case ".json":
		err = json.Unmarshal(b, &cfg)
	case ".toml":
		err = toml.Unmarshal(b, &cfg)
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// LoadOrDefault loads path, or the first file FindPath finds when path is
// empty. Without any file it returns Default.
func LoadOrDefault(path string) (Config, string, error) {
	if path == "" {
		path = FindPath()
	}
	if path == "" {
		return Default(), "", nil
	}
	cfg, err := Load(path)
	return cfg, path, err
}

func boolPtr(b bool) *bool { return &b }
