package main

import (
	"fmt"
	"strings"

	"github.com/theimaginaryfoundation/chat-rewind/rewind"
	"github.com/theimaginaryfoundation/chat-rewind/rewind/config"
)

// Config holds per-invocation flags. Anything left at its zero value (or -1
// for LookbackDays) defers to the config file and environment.
type Config struct {
	InputPath   string
	ConfigPath  string
	OutPath     string
	Format      string
	Spice       string
	Sensitive   bool
	Sanitized   bool
	Store       bool
	ClientID    string
	Polish      bool
	Schema      bool
	MetricsFile string

	LookbackDays int
	Timezone     string
}

const (
	formatJSON = "json"
	formatYAML = "yaml"
	formatMD   = "md"
)

func (c Config) Validate() error {
	if c.Schema {
		return nil
	}
	if strings.TrimSpace(c.InputPath) == "" {
		return fmt.Errorf("missing -in")
	}
	switch c.Format {
	case formatJSON, formatYAML, formatMD:
	default:
		return fmt.Errorf("invalid -format %q (want json, yaml or md)", c.Format)
	}
	if c.Spice != "" {
		if _, err := rewind.ParseSpice(c.Spice); err != nil {
			return fmt.Errorf("invalid -spice %q (want mild, spicy or savage)", c.Spice)
		}
	}
	if c.Store && strings.TrimSpace(c.ClientID) == "" {
		return fmt.Errorf("-store requires -client-id")
	}
	if c.LookbackDays < -1 {
		return fmt.Errorf("-lookback-days must be >= 0")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Format:       formatJSON,
		ClientID:     "local",
		LookbackDays: -1,
	}
}

// applyTo layers the flags over the loaded application config.
func (c Config) applyTo(app *config.Config) {
	if c.LookbackDays >= 0 {
		app.Classify.LookbackDays = c.LookbackDays
	}
	if c.Timezone != "" {
		app.Classify.Timezone = c.Timezone
	}
	if c.Spice != "" {
		app.Bangers.Spice = c.Spice
	}
	if c.Sensitive {
		app.Bangers.IncludeSensitive = true
	}
	if c.Store {
		app.Storage.Enabled = true
	}
	if c.Polish {
		app.AI.Enabled = true
	}
}
