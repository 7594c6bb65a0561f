package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Database configuration
	DBFile string `long:"db-file" env:"DB_FILE" default:"./.data/app.db" description:"SQLite database file"`

	// Application configuration
	Port              string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	WorkerCount       int    `long:"worker-count" env:"WORKER_COUNT" default:"2" description:"Number of background workers for scheduled tasks"`
	SchedulerInterval int    `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"60" description:"Source polling interval in seconds"`
	DigestTime        string `long:"digest-time" env:"DIGEST_TIME" default:"08:00" description:"Daily digest time of day (HH:MM, in --timezone)"`
	APIAccessKey      string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`
	SourcesFile       string `long:"sources-file" env:"SOURCES_FILE" description:"YAML file with default sources to seed (optional, built-in list otherwise)"`

	// Fetching
	UserAgent    string `long:"user-agent" env:"USER_AGENT" default:"RSS Digest/1.0" description:"User agent string for HTTP requests"`
	FetchTimeout int    `long:"fetch-timeout" env:"FETCH_TIMEOUT" default:"300" description:"Feed fetch timeout in seconds (0 disables it)"`

	// Summarization
	AIBaseURL   string `long:"ai-base-url" env:"AI_BASE_URL" default:"https://api.openai.com/v1" description:"OpenAI-compatible API base URL"`
	AIAPIKey    string `long:"ai-api-key" env:"AI_API_KEY" description:"API key for summarization (summaries disabled when empty)"`
	AIModel     string `long:"ai-model" env:"AI_MODEL" default:"gpt-4o-mini" description:"Model identifier used for summaries"`
	AIRateLimit int    `long:"ai-rate-limit" env:"AI_RATE_LIMIT" default:"0" description:"Maximum summarization requests per minute (0 = unlimited)"`

	// Notifications
	TelegramAPIURL   string `long:"telegram-api-url" env:"TELEGRAM_API_URL" default:"https://api.telegram.org" description:"Telegram Bot API base URL"`
	TelegramBotToken string `long:"telegram-bot-token" env:"TELEGRAM_BOT_TOKEN" description:"Telegram bot token (digest delivery disabled when empty)"`
	TelegramChatID   string `long:"telegram-chat-id" env:"TELEGRAM_CHAT_ID" description:"Telegram chat to deliver digests to"`

	// Application metadata
	Timezone string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for the daily digest trigger (e.g., UTC, Europe/Berlin)"`
	Debug    bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

// Load parses args (typically os.Args[1:]) together with the environment.
// It returns nil, nil when help was requested.
func Load(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBFile:            raw.DBFile,
		Port:              raw.Port,
		WorkerCount:       raw.WorkerCount,
		SchedulerInterval: raw.SchedulerInterval,
		DigestTime:        raw.DigestTime,
		APIAccessKey:      raw.APIAccessKey,
		SourcesFile:       raw.SourcesFile,
		UserAgent:         raw.UserAgent,
		FetchTimeout:      time.Duration(raw.FetchTimeout) * time.Second,
		AI: AI{
			BaseURL:   strings.TrimRight(raw.AIBaseURL, "/"),
			APIKey:    strings.TrimSpace(raw.AIAPIKey),
			Model:     raw.AIModel,
			RateLimit: raw.AIRateLimit,
		},
		Telegram: Telegram{
			APIURL:   strings.TrimRight(raw.TelegramAPIURL, "/"),
			BotToken: strings.TrimSpace(raw.TelegramBotToken),
			ChatID:   strings.TrimSpace(raw.TelegramChatID),
		},
		Timezone: raw.Timezone,
		Debug:    raw.Debug,
		Version:  GetVersion(),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Cfg) validate() error {
	if c.WorkerCount <= 0 {
		return fmt.Errorf("worker count must be positive, got %d", c.WorkerCount)
	}
	if c.SchedulerInterval <= 0 {
		return fmt.Errorf("scheduler interval must be positive, got %d", c.SchedulerInterval)
	}
	if c.FetchTimeout < 0 {
		return fmt.Errorf("fetch timeout must be non-negative")
	}
	if c.AI.RateLimit < 0 {
		return fmt.Errorf("AI rate limit must be non-negative")
	}
	if _, _, err := c.DigestClock(); err != nil {
		return err
	}
	return nil
}

// DigestClock returns the hour and minute of the daily digest trigger.
func (c *Cfg) DigestClock() (int, int, error) {
	t, err := time.Parse("15:04", c.DigestTime)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid digest time %q (want HH:MM): %w", c.DigestTime, err)
	}
	return t.Hour(), t.Minute(), nil
}

// Location resolves the configured timezone, falling back to UTC.
func (c *Cfg) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
