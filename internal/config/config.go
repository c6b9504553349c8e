package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/loykin/minermon/internal/env"
	"github.com/loykin/minermon/internal/logger"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. MINERMON_SMTP_SERVER.
const EnvPrefix = "MINERMON"

// Config is the read-only settings snapshot for one watchdog run.
type Config struct {
	MonitorName       string `toml:"monitor_name" mapstructure:"monitor_name"`
	StartMinerCommand string `toml:"start_miner_command" mapstructure:"start_miner_command"`
	StopMinerCommand  string `toml:"stop_miner_command" mapstructure:"stop_miner_command"`
	MinerExecutable   string `toml:"miner_executable" mapstructure:"miner_executable"`

	PoolStatsAddressURL          string        `toml:"pool_stats_address_url" mapstructure:"pool_stats_address_url"`
	PoolMaximumLastUpdateTimeout time.Duration `toml:"pool_maximum_last_update_timeout" mapstructure:"pool_maximum_last_update_timeout"`
	PoolRequestTimeout           time.Duration `toml:"pool_request_timeout" mapstructure:"pool_request_timeout"`

	// StartupGrace is how long a freshly started miner is left alone. Zero means
	// PoolMaximumLastUpdateTimeout.
	StartupGrace    time.Duration `toml:"startup_grace" mapstructure:"startup_grace"`
	NotifyOnStartup bool          `toml:"notify_on_startup" mapstructure:"notify_on_startup"`
	CheckPeriod     time.Duration `toml:"check_period" mapstructure:"check_period"`
	DevMode         bool          `toml:"dev_mode" mapstructure:"dev_mode"`
	DevCheckPeriod  time.Duration `toml:"dev_check_period" mapstructure:"dev_check_period"`
	StartGrace      time.Duration `toml:"start_grace" mapstructure:"start_grace"`
	StopGrace       time.Duration `toml:"stop_grace" mapstructure:"stop_grace"`
	StopTimeout     time.Duration `toml:"stop_timeout" mapstructure:"stop_timeout"`
	ExitGrace       time.Duration `toml:"exit_grace" mapstructure:"exit_grace"`
	LockFile        string        `toml:"lock_file" mapstructure:"lock_file"`
	// Env holds "K=V" entries added to the environment of the start and stop commands.
	Env []string `toml:"env" mapstructure:"env"`

	SMTP    SMTPConfig    `toml:"smtp" mapstructure:"smtp"`
	Log     LogConfig     `toml:"log" mapstructure:"log"`
	HTTP    HTTPConfig    `toml:"http" mapstructure:"http"`
	History HistoryConfig `toml:"history" mapstructure:"history"`
}

type SMTPConfig struct {
	Server     string `toml:"server" mapstructure:"server"`
	Port       int    `toml:"port" mapstructure:"port"`
	Sender     string `toml:"sender" mapstructure:"sender"`
	Recipients string `toml:"recipients" mapstructure:"recipients"` // ';' separated
	Username   string `toml:"username" mapstructure:"username"`
	Password   string `toml:"password" mapstructure:"password"`
	TLS        string `toml:"tls" mapstructure:"tls"` // opportunistic | mandatory | none
}

type LogConfig struct {
	Level      string `toml:"level" mapstructure:"level"`
	Format     string `toml:"format" mapstructure:"format"`
	Color      bool   `toml:"color" mapstructure:"color"`
	File       string `toml:"file" mapstructure:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

type HTTPConfig struct {
	Listen string `toml:"listen" mapstructure:"listen"`
}

type HistoryConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

// ValidationError reports a missing or invalid setting.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s parameter %s", e.Field, e.Reason)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("monitor_name", "")
	v.SetDefault("start_miner_command", "")
	v.SetDefault("stop_miner_command", "")
	v.SetDefault("miner_executable", "")
	v.SetDefault("pool_stats_address_url", "")
	v.SetDefault("pool_maximum_last_update_timeout", 5*time.Minute)
	v.SetDefault("pool_request_timeout", 30*time.Second)
	v.SetDefault("startup_grace", time.Duration(0))
	v.SetDefault("notify_on_startup", false)
	v.SetDefault("check_period", time.Minute)
	v.SetDefault("dev_mode", false)
	v.SetDefault("dev_check_period", 5*time.Second)
	v.SetDefault("start_grace", 10*time.Second)
	v.SetDefault("stop_grace", 10*time.Second)
	v.SetDefault("stop_timeout", 5*time.Second)
	v.SetDefault("exit_grace", 10*time.Second)
	v.SetDefault("lock_file", "")
	v.SetDefault("env", []string{})

	v.SetDefault("smtp.server", "")
	v.SetDefault("smtp.port", 25)
	v.SetDefault("smtp.sender", "")
	v.SetDefault("smtp.recipients", "")
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.tls", "opportunistic")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.color", true)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("log.compress", false)

	v.SetDefault("http.listen", "")
	v.SetDefault("history.dsn", "")
}

// Load reads the config file at path (TOML unless the extension says otherwise) and applies
// MINERMON_* environment overrides. An empty path loads defaults and environment only.
// The result is not validated; call Validate before use.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if filepath.Ext(path) == "" {
			v.SetConfigType("toml")
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.trim()
	if c.StartupGrace <= 0 {
		c.StartupGrace = c.PoolMaximumLastUpdateTimeout
	}
	return &c, nil
}

func (c *Config) trim() {
	c.MonitorName = strings.TrimSpace(c.MonitorName)
	c.StartMinerCommand = strings.TrimSpace(c.StartMinerCommand)
	c.StopMinerCommand = strings.TrimSpace(c.StopMinerCommand)
	c.MinerExecutable = strings.TrimSpace(c.MinerExecutable)
	c.PoolStatsAddressURL = strings.TrimSpace(c.PoolStatsAddressURL)
}

// Validate enforces the settings the watchdog cannot run without.
func (c *Config) Validate() error {
	required := []struct{ field, val string }{
		{"MonitorName", c.MonitorName},
		{"StartMinerCommand", c.StartMinerCommand},
		{"StopMinerCommand", c.StopMinerCommand},
		{"MinerExecutable", c.MinerExecutable},
	}
	for _, r := range required {
		if r.val == "" {
			return &ValidationError{Field: r.field, Reason: "not set"}
		}
	}
	positive := []struct {
		field string
		val   time.Duration
	}{
		{"PoolMaximumLastUpdateTimeout", c.PoolMaximumLastUpdateTimeout},
		{"CheckPeriod", c.CheckPeriod},
		{"DevCheckPeriod", c.DevCheckPeriod},
		{"PoolRequestTimeout", c.PoolRequestTimeout},
		{"StopTimeout", c.StopTimeout},
	}
	for _, p := range positive {
		if p.val <= 0 {
			return &ValidationError{Field: p.field, Reason: "must be positive"}
		}
	}
	for _, p := range []struct {
		field string
		val   time.Duration
	}{
		{"StartGrace", c.StartGrace},
		{"StopGrace", c.StopGrace},
		{"ExitGrace", c.ExitGrace},
	} {
		if p.val < 0 {
			return &ValidationError{Field: p.field, Reason: "must not be negative"}
		}
	}
	switch strings.ToLower(c.SMTP.TLS) {
	case "", "opportunistic", "mandatory", "none":
	default:
		return &ValidationError{Field: "SMTP.TLS", Reason: fmt.Sprintf("has unknown value %q", c.SMTP.TLS)}
	}
	if _, err := env.Parse(c.Env); err != nil {
		return &ValidationError{Field: "Env", Reason: err.Error()}
	}
	return nil
}

// CommandEnv returns the environment for the miner commands, or nil to inherit ours.
func (c *Config) CommandEnv() []string {
	e, err := env.Parse(c.Env)
	if err != nil || e.Empty() {
		return nil
	}
	return e.Merge()
}

// PoolMonitoringEnabled reports whether a pool status URL is configured.
func (c *Config) PoolMonitoringEnabled() bool { return c.PoolStatsAddressURL != "" }

// CheckInterval is the wait between monitor cycles.
func (c *Config) CheckInterval() time.Duration {
	if c.DevMode {
		return c.DevCheckPeriod
	}
	return c.CheckPeriod
}

// RecipientList splits the ';' separated recipient list, dropping empty entries.
func (s SMTPConfig) RecipientList() []string {
	var out []string
	for _, r := range strings.Split(s.Recipients, ";") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

// LoggerConfig converts the [log] section to the logger package's configuration.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Slog: logger.SlogConfig{
			Level:      logger.ParseLevel(c.Log.Level),
			Format:     logger.Format(strings.ToLower(c.Log.Format)),
			Color:      c.Log.Color,
			TimeStamps: true,
		},
		File: logger.FileConfig{
			Path:       c.Log.File,
			MaxSizeMB:  c.Log.MaxSizeMB,
			MaxBackups: c.Log.MaxBackups,
			MaxAgeDays: c.Log.MaxAgeDays,
			Compress:   c.Log.Compress,
		},
	}
}
