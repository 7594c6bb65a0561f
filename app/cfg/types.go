package cfg

import "time"

type Cfg struct {
	// Database configuration
	DBFile string

	// Application configuration
	Port              string
	WorkerCount       int
	SchedulerInterval int
	DigestTime        string
	APIAccessKey      string
	SourcesFile       string

	// Fetching
	UserAgent    string
	FetchTimeout time.Duration

	AI       AI
	Telegram Telegram

	// Application metadata
	Timezone string
	Debug    bool
	Version  string
}

// AI holds the chat-completions endpoint settings. An empty APIKey disables
// summarization: calls fail with ai.ErrNotConfigured.
type AI struct {
	BaseURL   string
	APIKey    string
	Model     string
	RateLimit int // requests per minute, 0 means unlimited
}

// Telegram holds the digest delivery settings. An empty BotToken or ChatID
// disables delivery silently.
type Telegram struct {
	APIURL   string
	BotToken string
	ChatID   string
}

func (t Telegram) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

func (a AI) Enabled() bool {
	return a.APIKey != ""
}
