package config

import (
	"fmt"
	"time"

	"zapfacil/pkg/logx"
)

// Duration wraps time.Duration so YAML configs can say "15s" or "2m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) { return time.Duration(d).String(), nil }

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Log logx.Config `yaml:"log"`

	// CountryCode is prepended to bare phone numbers during normalization.
	CountryCode string `yaml:"country_code"`

	ReportsDir   string `yaml:"reports_dir"`
	HistoryPath  string `yaml:"history_path"`
	SettingsPath string `yaml:"settings_path"`
	Timezone     string `yaml:"timezone"`

	Pacing    PacingConfig    `yaml:"pacing"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Audio     AudioConfig     `yaml:"audio"`
	Driver    DriverConfig    `yaml:"driver"`
}

// PacingConfig bounds the random inter-recipient delay.
type PacingConfig struct {
	MinDelay Duration `yaml:"min_delay"`
	MaxDelay Duration `yaml:"max_delay"`
}

type ReconnectConfig struct {
	Attempts int      `yaml:"attempts"`
	Wait     Duration `yaml:"wait"`
}

type AudioConfig struct {
	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`
}

type DriverConfig struct {
	Headless       bool     `yaml:"headless"`
	ProfileDir     string   `yaml:"profile_dir"`
	Bin            string   `yaml:"bin"`
	CallTimeout    Duration `yaml:"call_timeout"`
	StartupTimeout Duration `yaml:"startup_timeout"`
}

func Default() *Config {
	cfg := &Config{}
	cfg.Normalize()
	return cfg
}

// Normalize fills zero fields with working defaults. Called after every
// parse so partial config files stay valid.
func (c *Config) Normalize() {
	if c.CountryCode == "" {
		c.CountryCode = "55"
	}
	if c.ReportsDir == "" {
		c.ReportsDir = "relatorios"
	}
	if c.HistoryPath == "" {
		c.HistoryPath = "historico.db"
	}
	if c.SettingsPath == "" {
		c.SettingsPath = "settings.yaml"
	}
	if c.Timezone == "" {
		c.Timezone = "America/Sao_Paulo"
	}
	if c.Pacing.MinDelay <= 0 {
		c.Pacing.MinDelay = Duration(5 * time.Second)
	}
	if c.Pacing.MaxDelay < c.Pacing.MinDelay {
		c.Pacing.MaxDelay = Duration(10 * time.Second)
	}
	if c.Reconnect.Attempts <= 0 {
		c.Reconnect.Attempts = 20
	}
	if c.Reconnect.Wait <= 0 {
		c.Reconnect.Wait = Duration(15 * time.Second)
	}
	if c.Audio.SampleRate <= 0 {
		c.Audio.SampleRate = 44100
	}
	if c.Audio.Channels <= 0 {
		c.Audio.Channels = 1
	}
	if c.Driver.CallTimeout <= 0 {
		c.Driver.CallTimeout = Duration(10 * time.Second)
	}
	if c.Driver.StartupTimeout <= 0 {
		c.Driver.StartupTimeout = Duration(180 * time.Second)
	}
}
