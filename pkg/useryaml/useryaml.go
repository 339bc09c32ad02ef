// Package useryaml parses the commit-level user configuration: flag
// carryforward policy, path fix rules, ignore patterns and report age
// limits.
package useryaml

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// CarryforwardMode selects how a flag's stale carried-forward sessions are
// cleaned up when fresh coverage for the flag arrives.
type CarryforwardMode string

// Carryforward modes.
const (
	// CarryforwardAll deletes the stale session outright.
	CarryforwardAll CarryforwardMode = "all"
	// CarryforwardLabels strips only the labels the new upload
	// re-contributed, keeping the session while it still adds anything.
	CarryforwardLabels CarryforwardMode = "labels"
)

// FlagConfig is the per-flag policy.
type FlagConfig struct {
	Carryforward     bool             `yaml:"carryforward"`
	CarryforwardMode CarryforwardMode `yaml:"carryforward_mode"`
}

// Mode returns the effective carryforward mode, defaulting to "all".
func (f FlagConfig) Mode() CarryforwardMode {
	if f.CarryforwardMode == "" {
		return CarryforwardAll
	}

	return f.CarryforwardMode
}

// Settings is the engine-level block of the user configuration.
type Settings struct {
	// MaxReportAge bounds how old an uploaded coverage file may be. The
	// zero value means no limit; users write a duration ("12h", "2d"),
	// seconds, or `false` to disable.
	MaxReportAge MaxAge `yaml:"max_report_age"`
}

// Config is the parsed commit-level user configuration.
type Config struct {
	Covmerge Settings              `yaml:"covmerge"`
	Flags    map[string]FlagConfig `yaml:"flags"`
	Fixes    []string              `yaml:"fixes"`
	Ignore   []string              `yaml:"ignore"`
}

// Parse reads the user configuration document. An empty document yields
// the zero config.
func Parse(raw []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse user config: %w", err)
	}

	for name, fc := range c.Flags {
		switch fc.CarryforwardMode {
		case "", CarryforwardAll, CarryforwardLabels:
		default:
			return nil, fmt.Errorf("parse user config: flag %s: unknown carryforward_mode %q", name, fc.CarryforwardMode)
		}
	}

	return &c, nil
}

// Flag returns the policy for a flag name. Unknown flags get the zero
// policy: no carryforward.
func (c *Config) Flag(name string) FlagConfig {
	if c == nil {
		return FlagConfig{}
	}

	return c.Flags[name]
}

// CarryforwardFlags returns the names of flags with carryforward enabled,
// sorted.
func (c *Config) CarryforwardFlags() []string {
	if c == nil {
		return nil
	}

	var names []string

	for name, fc := range c.Flags {
		if fc.Carryforward {
			names = append(names, name)
		}
	}

	sort.Strings(names)

	return names
}

// LabelAware reports whether any flag uses labels-mode carryforward, which
// switches report construction into label-aware mode.
func (c *Config) LabelAware() bool {
	if c == nil {
		return false
	}

	for _, fc := range c.Flags {
		if fc.Carryforward && fc.Mode() == CarryforwardLabels {
			return true
		}
	}

	return false
}

// MaxAge is a duration that additionally accepts `false` (no limit), bare
// seconds, and a "d" day suffix in YAML.
type MaxAge struct {
	Duration time.Duration
}

// Enabled reports whether a limit is set.
func (m MaxAge) Enabled() bool {
	return m.Duration > 0
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (m *MaxAge) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("max_report_age: expected scalar, got %s", node.Tag)
	}

	value := strings.TrimSpace(node.Value)

	switch strings.ToLower(value) {
	case "", "false", "off", "no":
		m.Duration = 0

		return nil
	}

	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return fmt.Errorf("max_report_age: negative %d", secs)
		}

		m.Duration = time.Duration(secs) * time.Second

		return nil
	}

	if days, ok := strings.CutSuffix(value, "d"); ok {
		n, err := strconv.Atoi(days)
		if err == nil {
			if n < 0 {
				return fmt.Errorf("max_report_age: negative %q", value)
			}

			m.Duration = time.Duration(n) * 24 * time.Hour

			return nil
		}
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("max_report_age: %w", err)
	}

	if d < 0 {
		return fmt.Errorf("max_report_age: negative %q", value)
	}

	m.Duration = d

	return nil
}
