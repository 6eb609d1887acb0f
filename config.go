package main

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds the tunables that describe the host application's UI
// surface and the timing knobs around probing it. All fields have working
// defaults for Mastercam; a config.toml next to the settings file can
// override any of them.
type Config struct {
	// HostTitle is the substring that identifies the host's main window
	// title. HostMarker further narrows the match to a window with a
	// document open; the locator prefers marker matches and falls back to
	// any visible HostTitle window.
	HostTitle  string `toml:"host_title"`
	HostMarker string `toml:"host_marker"`

	// Automation identifiers inside the panel.
	TreeAutomationID   string `toml:"tree_automation_id"`
	ToggleAutomationID string `toml:"toggle_automation_id"`
	ItemDiscriminator  string `toml:"item_discriminator"`

	// WrapperClassHint marks the host's panel wrapper windows; candidates
	// whose class name lacks it are never probed.
	WrapperClassHint string `toml:"wrapper_class_hint"`

	HealthIntervalSec  int `toml:"health_interval_sec"`
	ProbeTimeoutMs     int `toml:"probe_timeout_ms"`
	ConfirmTimeoutMs   int `toml:"confirm_timeout_ms"`
	CandidateTimeoutMs int `toml:"candidate_timeout_ms"`

	ServerPort  string `toml:"server_port"`
	HistoryDays int    `toml:"history_days"`
}

func defaultConfig() Config {
	return Config{
		HostTitle:          "Mastercam",
		HostMarker:         ".mcam",
		TreeAutomationID:   "LevelTreeListBox",
		ToggleAutomationID: "IsLevelVisibleButton",
		ItemDiscriminator:  "LevelTreeItem",
		WrapperClassHint:   "HwndWrapper",
		HealthIntervalSec:  15,
		ProbeTimeoutMs:     300,
		ConfirmTimeoutMs:   500,
		CandidateTimeoutMs: 1000,
		ServerPort:         "8766",
		HistoryDays:        30,
	}
}

// loadConfig overlays config.toml (if present) on the defaults. A missing
// file is not an error; a malformed file is, so a typo never silently
// reverts every knob.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.HostTitle == "" {
		return fmt.Errorf("host_title must not be empty")
	}
	if c.TreeAutomationID == "" || c.ToggleAutomationID == "" {
		return fmt.Errorf("tree_automation_id and toggle_automation_id must not be empty")
	}
	if c.HealthIntervalSec < 1 {
		return fmt.Errorf("health_interval_sec must be >= 1, got %d", c.HealthIntervalSec)
	}
	if c.ProbeTimeoutMs < 50 {
		return fmt.Errorf("probe_timeout_ms must be >= 50, got %d", c.ProbeTimeoutMs)
	}
	if c.HistoryDays < 1 {
		return fmt.Errorf("history_days must be >= 1, got %d", c.HistoryDays)
	}
	return nil
}

func (c *Config) HealthInterval() time.Duration {
	return time.Duration(c.HealthIntervalSec) * time.Second
}

func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutMs) * time.Millisecond
}

func (c *Config) ConfirmTimeout() time.Duration {
	return time.Duration(c.ConfirmTimeoutMs) * time.Millisecond
}

func (c *Config) CandidateTimeout() time.Duration {
	return time.Duration(c.CandidateTimeoutMs) * time.Millisecond
}

// candidateProbeTimeout picks the probe bound for one panel candidate:
// the cached panel gets the short confirm window, cold candidates the
// full probe window.
func candidateProbeTimeout(cfg *Config, cached bool) time.Duration {
	if cached {
		return cfg.ConfirmTimeout()
	}
	return cfg.CandidateTimeout()
}
