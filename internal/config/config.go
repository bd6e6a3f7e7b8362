package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/mail"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

type Config struct {
	Port      int    `yaml:"port"`
	DBPath    string `yaml:"db_path"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	// Timezone is the IANA zone used for calendar days in the allocation
	// report and the iCalendar feed.
	Timezone string `yaml:"timezone"`
	// BaseURL is the externally reachable address, used in feed links.
	BaseURL string `yaml:"base_url"`

	Reminder     ReminderConfig     `yaml:"reminder"`
	Housekeeping HousekeepingConfig `yaml:"housekeeping"`
	Push         PushConfig         `yaml:"push"`
	Email        EmailConfig        `yaml:"email"`
	Backup       BackupConfig       `yaml:"backup"`
}

// ReminderConfig tunes the scan loop. Reminder offsets are runtime settings
// stored in the database.
type ReminderConfig struct {
	Interval time.Duration `yaml:"interval"`
}

type HousekeepingConfig struct {
	Cron          string `yaml:"cron"`
	RetentionDays int    `yaml:"retention_days"`
}

type PushConfig struct {
	VAPIDPublicKey  string `yaml:"vapid_public_key"`
	VAPIDPrivateKey string `yaml:"vapid_private_key"`
	Subscriber      string `yaml:"subscriber"`
}

// EmailConfig enables reminder emails through Postmark.
type EmailConfig struct {
	PostmarkToken string `yaml:"postmark_token"`
	From          string `yaml:"from"`
}

func (e EmailConfig) Enabled() bool {
	return e.PostmarkToken != ""
}

// BackupConfig controls the off-site database snapshot job. Backups run only
// when a bucket and credentials are set.
type BackupConfig struct {
	Cron          string   `yaml:"cron"`
	RetentionDays int      `yaml:"retention_days"`
	Prefix        string   `yaml:"prefix"`
	Passphrase    string   `yaml:"passphrase"`
	S3            S3Config `yaml:"s3"`
}

type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

func (b BackupConfig) Enabled() bool {
	return b.S3.Bucket != "" && b.S3.AccessKey != "" && b.S3.SecretKey != ""
}

// Enabled reports whether a VAPID key pair is configured.
func (p PushConfig) Enabled() bool {
	return p.VAPIDPublicKey != "" && p.VAPIDPrivateKey != ""
}

func Default() *Config {
	return &Config{
		Port:      8080,
		DBPath:    "cadence.db",
		LogLevel:  "info",
		LogFormat: "text",
		Timezone:  "UTC",
		Reminder: ReminderConfig{
			Interval: 60 * time.Second,
		},
		Housekeeping: HousekeepingConfig{
			Cron:          "0 3 * * *",
			RetentionDays: 30,
		},
		Backup: BackupConfig{
			Cron:          "30 3 * * *",
			RetentionDays: 14,
			Prefix:        "cadence",
			S3: S3Config{
				Region: "us-east-1",
			},
		},
	}
}

// Load reads the YAML file at path over the defaults, then applies CADENCE_*
// environment overrides. A missing file or empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"CADENCE_DB_PATH":           &c.DBPath,
		"CADENCE_LOG_LEVEL":         &c.LogLevel,
		"CADENCE_LOG_FORMAT":        &c.LogFormat,
		"CADENCE_TIMEZONE":          &c.Timezone,
		"CADENCE_BASE_URL":          &c.BaseURL,
		"CADENCE_VAPID_PUBLIC_KEY":  &c.Push.VAPIDPublicKey,
		"CADENCE_VAPID_PRIVATE_KEY": &c.Push.VAPIDPrivateKey,
		"CADENCE_POSTMARK_TOKEN":    &c.Email.PostmarkToken,
		"CADENCE_EMAIL_FROM":        &c.Email.From,
		"CADENCE_BACKUP_PASSPHRASE": &c.Backup.Passphrase,
		"CADENCE_S3_ENDPOINT":       &c.Backup.S3.Endpoint,
		"CADENCE_S3_BUCKET":         &c.Backup.S3.Bucket,
		"CADENCE_S3_REGION":         &c.Backup.S3.Region,
		"CADENCE_S3_ACCESS_KEY":     &c.Backup.S3.AccessKey,
		"CADENCE_S3_SECRET_KEY":     &c.Backup.S3.SecretKey,
	}
	for key, dst := range str {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := lookup("CADENCE_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: CADENCE_PORT %q", ErrInvalid, v)
		}
		c.Port = port
	}
	if v, ok := lookup("CADENCE_REMINDER_INTERVAL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: CADENCE_REMINDER_INTERVAL %q", ErrInvalid, v)
		}
		c.Reminder.Interval = d
	}
	return nil
}

// Validate checks every field and reports the first problem found.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalid, c.Port)
	}
	if strings.TrimSpace(c.DBPath) == "" {
		return fmt.Errorf("%w: db_path is empty", ErrInvalid)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log_format %q must be text or json", ErrInvalid, c.LogFormat)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("%w: timezone %q: %v", ErrInvalid, c.Timezone, err)
	}
	if c.Reminder.Interval <= 0 {
		return fmt.Errorf("%w: reminder.interval must be positive", ErrInvalid)
	}
	if _, err := cron.ParseStandard(c.Housekeeping.Cron); err != nil {
		return fmt.Errorf("%w: housekeeping.cron %q: %v", ErrInvalid, c.Housekeeping.Cron, err)
	}
	if c.Housekeeping.RetentionDays < 1 {
		return fmt.Errorf("%w: housekeeping.retention_days must be at least 1", ErrInvalid)
	}
	if (c.Push.VAPIDPublicKey == "") != (c.Push.VAPIDPrivateKey == "") {
		return fmt.Errorf("%w: push needs both VAPID keys", ErrInvalid)
	}
	if c.Email.Enabled() {
		if _, err := mail.ParseAddress(c.Email.From); err != nil {
			return fmt.Errorf("%w: email.from %q: %v", ErrInvalid, c.Email.From, err)
		}
	}
	if c.Backup.Enabled() {
		if _, err := cron.ParseStandard(c.Backup.Cron); err != nil {
			return fmt.Errorf("%w: backup.cron %q: %v", ErrInvalid, c.Backup.Cron, err)
		}
		if c.Backup.RetentionDays < 1 {
			return fmt.Errorf("%w: backup.retention_days must be at least 1", ErrInvalid)
		}
		if c.Backup.S3.Region == "" {
			return fmt.Errorf("%w: backup.s3.region is empty", ErrInvalid)
		}
	}
	return nil
}

// Location returns the configured time zone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}
