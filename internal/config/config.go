package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config keeps runtime settings for the bot.
type Config struct {
	BotToken      string `envconfig:"BOT_TOKEN" required:"true"`
	EncryptionKey string `envconfig:"ENCRYPTION_KEY" required:"true"`
	DBPath        string `envconfig:"DB_PATH" default:"data/deadlines.db"`
	Timezone      string `envconfig:"TIMEZONE" default:"Europe/Moscow"`
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"` // debug|info|warn|error
	HTTPAddr      string `envconfig:"HTTP_ADDR" default:":8080"`
	AdminChatID   int64  `envconfig:"ADMIN_CHAT_ID"`

	PortalBaseURL string        `envconfig:"PORTAL_BASE_URL" default:"https://pro.guap.ru"`
	PortalTimeout time.Duration `envconfig:"PORTAL_TIMEOUT" default:"60s"`
	PortalWorkers int           `envconfig:"PORTAL_WORKERS" default:"4"`

	SweepUserDelay    time.Duration `envconfig:"SWEEP_USER_DELAY" default:"5s"`
	DailyReminderHour int           `envconfig:"DAILY_REMINDER_HOUR" default:"9"`

	location *time.Location
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return cfg, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	cfg.location = loc

	if cfg.DailyReminderHour < 0 || cfg.DailyReminderHour > 23 {
		return cfg, fmt.Errorf("DAILY_REMINDER_HOUR must be within 0..23, got %d", cfg.DailyReminderHour)
	}
	if cfg.PortalWorkers <= 0 {
		cfg.PortalWorkers = 1
	}

	return cfg, nil
}

// Location returns the timezone all calendar dates are evaluated in.
func (c Config) Location() *time.Location {
	if c.location == nil {
		return time.Local
	}
	return c.location
}
