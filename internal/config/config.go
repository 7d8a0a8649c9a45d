// Package config loads the FolioPipe runtime configuration.
//
// Values are merged by viper in this order of precedence: command line flags,
// FOLIOPIPE_* environment variables, the optional YAML config file, defaults.
// Nested keys map to environment variables with "." replaced by "_", so
// session.dsn is FOLIOPIPE_SESSION_DSN.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/BTreeMap/FolioPipe/internal/flow"
	"github.com/BTreeMap/FolioPipe/internal/messaging"
	"github.com/BTreeMap/FolioPipe/internal/scheduler"
	"github.com/BTreeMap/FolioPipe/internal/store"
	"github.com/BTreeMap/FolioPipe/internal/views"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "FOLIOPIPE"

// Default configuration constants
const (
	// DefaultStateDir is the default directory for FolioPipe state data
	DefaultStateDir = "/var/lib/foliopipe"
	// DefaultSessionDBFileName is the SQLite session database filename
	DefaultSessionDBFileName = "sessions.db"
	// DefaultRecordsDBFileName is the SQLite service records database filename
	DefaultRecordsDBFileName = "records.db"
	// DefaultWhatsAppDBFileName is the whatsmeow device database filename
	DefaultWhatsAppDBFileName = "whatsmeow.db"
	// DefaultAPIAddr is the default HTTP listen address
	DefaultAPIAddr = ":8080"
)

// Session backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// RecordsMemory as records DSN keeps the demo records in process memory.
const RecordsMemory = "memory"

// Config is the complete FolioPipe configuration.
type Config struct {
	LogLevel    string               `mapstructure:"log_level"`
	LogFormat   string               `mapstructure:"log_format"`
	StateDir    string               `mapstructure:"state_dir"`
	RecordsDSN  string               `mapstructure:"records_dsn"`
	APIAddr     string               `mapstructure:"api_addr"`
	CallTimeout time.Duration        `mapstructure:"call_timeout"`
	Workers     int                  `mapstructure:"workers"`
	Session     SessionConfig        `mapstructure:"session"`
	Vocabulary  views.Vocabulary     `mapstructure:"vocabulary"`
	Support     views.SupportContact `mapstructure:"support"`
	Telegram    TelegramConfig       `mapstructure:"telegram"`
	Discord     DiscordConfig        `mapstructure:"discord"`
	WhatsApp    WhatsAppConfig       `mapstructure:"whatsapp"`
	Twilio      TwilioConfig         `mapstructure:"twilio"`
}

// SessionConfig selects and tunes the session store.
type SessionConfig struct {
	Backend       string        `mapstructure:"backend"`
	DSN           string        `mapstructure:"dsn"`
	TTL           time.Duration `mapstructure:"ttl"`
	PurgeSchedule string        `mapstructure:"purge_schedule"`
}

type TelegramConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token"`
}

type DiscordConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token"`
}

type WhatsAppConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	DSN         string `mapstructure:"dsn"`
	QROutput    string `mapstructure:"qr_output"`
	NumericCode bool   `mapstructure:"numeric_code"`
	LogLevel    string `mapstructure:"log_level"`
}

type TwilioConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	FromNumber string `mapstructure:"from_number"`
	// WebhookURL is the public URL Twilio posts to. Signatures are only
	// validated when it is set.
	WebhookURL string `mapstructure:"webhook_url"`
}

// Platforms lists the enabled transports in a stable order.
func (c *Config) Platforms() []messaging.Platform {
	var out []messaging.Platform
	if c.WhatsApp.Enabled {
		out = append(out, messaging.PlatformWhatsApp)
	}
	if c.Twilio.Enabled {
		out = append(out, messaging.PlatformTwilio)
	}
	if c.Telegram.Enabled {
		out = append(out, messaging.PlatformTelegram)
	}
	if c.Discord.Enabled {
		out = append(out, messaging.PlatformDiscord)
	}
	return out
}

// flagKeys maps command line flag names to configuration keys.
var flagKeys = map[string]string{
	"log-level":       "log_level",
	"log-format":      "log_format",
	"state-dir":       "state_dir",
	"records-dsn":     "records_dsn",
	"addr":            "api_addr",
	"call-timeout":    "call_timeout",
	"workers":         "workers",
	"session-backend": "session.backend",
	"session-dsn":     "session.dsn",
	"session-ttl":     "session.ttl",
	"qr-output":       "whatsapp.qr_output",
	"numeric-code":    "whatsapp.numeric_code",
}

func setDefaults(v *viper.Viper) {
	vocab := views.DefaultVocabulary()
	support := views.DefaultSupportContact()

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("state_dir", DefaultStateDir)
	v.SetDefault("records_dsn", "")
	v.SetDefault("api_addr", DefaultAPIAddr)
	v.SetDefault("call_timeout", flow.DefaultCallTimeout)
	v.SetDefault("workers", messaging.DefaultWorkers)

	v.SetDefault("session.backend", BackendSQLite)
	v.SetDefault("session.dsn", "")
	v.SetDefault("session.ttl", store.DefaultSessionTTL)
	v.SetDefault("session.purge_schedule", scheduler.DefaultPurgeSchedule)

	v.SetDefault("vocabulary.consult_label", vocab.ConsultLabel)
	v.SetDefault("vocabulary.ai_label", vocab.AILabel)
	v.SetDefault("vocabulary.support_label", vocab.SupportLabel)
	v.SetDefault("vocabulary.back_label", vocab.BackLabel)
	v.SetDefault("vocabulary.reset_tokens", vocab.ResetTokens)

	v.SetDefault("support.phone", support.Phone)
	v.SetDefault("support.email", support.Email)
	v.SetDefault("support.hours", support.Hours)

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.token", "")
	v.SetDefault("discord.enabled", false)
	v.SetDefault("discord.token", "")
	v.SetDefault("whatsapp.enabled", false)
	v.SetDefault("whatsapp.dsn", "")
	v.SetDefault("whatsapp.qr_output", "")
	v.SetDefault("whatsapp.numeric_code", false)
	v.SetDefault("whatsapp.log_level", "INFO")
	v.SetDefault("twilio.enabled", false)
	v.SetDefault("twilio.account_sid", "")
	v.SetDefault("twilio.auth_token", "")
	v.SetDefault("twilio.from_number", "")
	v.SetDefault("twilio.webhook_url", "")
}

// Load reads the configuration. path names an optional YAML file; flags, when
// non-nil, override every other source for the flags the user actually set.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		slog.Debug("Config file loaded", "path", path)
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("config: bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.applyDerived()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	slog.Debug("Configuration loaded",
		"state_dir", cfg.StateDir,
		"session_backend", cfg.Session.Backend,
		"records_dsn_set", cfg.RecordsDSN != "",
		"api_addr", cfg.APIAddr,
		"platforms", cfg.Platforms())
	return &cfg, nil
}

// applyDerived places file databases in the state directory unless they were
// given explicitly.
func (c *Config) applyDerived() {
	c.Session.Backend = strings.ToLower(strings.TrimSpace(c.Session.Backend))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))

	if c.Session.DSN == "" && c.Session.Backend == BackendSQLite {
		c.Session.DSN = filepath.Join(c.StateDir, DefaultSessionDBFileName)
	}
	if c.RecordsDSN == "" {
		c.RecordsDSN = filepath.Join(c.StateDir, DefaultRecordsDBFileName)
	}
	if c.WhatsApp.DSN == "" {
		c.WhatsApp.DSN = "file:" + filepath.Join(c.StateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
	}
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Session.Backend {
	case BackendMemory, BackendSQLite:
	case BackendPostgres, BackendRedis:
		if c.Session.DSN == "" {
			errs = append(errs, fmt.Errorf("session.dsn is required for the %s backend", c.Session.Backend))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown session.backend %q", c.Session.Backend))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	if c.StateDir == "" {
		errs = append(errs, errors.New("state_dir must not be empty"))
	}
	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if c.CallTimeout <= 0 {
		errs = append(errs, fmt.Errorf("call_timeout must be positive, got %s", c.CallTimeout))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, fmt.Errorf("session.ttl must be positive, got %s", c.Session.TTL))
	}

	if c.Telegram.Enabled && c.Telegram.Token == "" {
		errs = append(errs, errors.New("telegram.token is required when telegram is enabled"))
	}
	if c.Discord.Enabled && c.Discord.Token == "" {
		errs = append(errs, errors.New("discord.token is required when discord is enabled"))
	}
	labels := append(c.Vocabulary.MainMenuButtons(), c.Vocabulary.BackButtons()...)
	for _, p := range c.Platforms() {
		if err := messaging.ValidateButtonLabels(p, labels); err != nil {
			errs = append(errs, fmt.Errorf("vocabulary: %w", err))
		}
	}
	if c.Twilio.Enabled && (c.Twilio.AccountSID == "" || c.Twilio.AuthToken == "" || c.Twilio.FromNumber == "") {
		errs = append(errs, errors.New("twilio.account_sid, twilio.auth_token and twilio.from_number are required when twilio is enabled"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
