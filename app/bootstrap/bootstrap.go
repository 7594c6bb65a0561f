package bootstrap

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/lysyi3m/rss-digest/app/ai"
	"github.com/lysyi3m/rss-digest/app/cfg"
	"github.com/lysyi3m/rss-digest/app/database"
	"github.com/lysyi3m/rss-digest/app/digest"
	"github.com/lysyi3m/rss-digest/app/feed"
	"github.com/lysyi3m/rss-digest/app/notify"
	"github.com/lysyi3m/rss-digest/app/sources"
	"github.com/lysyi3m/rss-digest/app/summary"
)

// App holds the components shared by the server and the CLI.
type App struct {
	DB       *database.DB
	Items    database.ItemRepository
	Sources  *sources.Service
	Enricher *summary.Enricher
	Digests  *digest.Compiler
	Notifier *notify.Telegram
}

// New opens and migrates the database and wires every component from c.
func New(c *cfg.Cfg) (*App, error) {
	db, err := database.NewConnection(c.DBFile)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Database ready", "file", c.DBFile, "schema_version", version, "dirty", dirty)

	sourceRepo := database.NewSourceRepository(db)
	itemRepo := database.NewItemRepository(db)
	summaryRepo := database.NewSummaryRepository(db)
	digestRepo := database.NewDigestRepository(db)

	httpClient := &http.Client{}
	strategies := feed.NewStrategies(httpClient, c.UserAgent, c.FetchTimeout)
	notifier := notify.NewTelegram(c.Telegram, nil)

	if !c.AI.Enabled() {
		slog.Info("Summarization disabled (AI_API_KEY not set)")
	}
	if !c.Telegram.Enabled() {
		slog.Info("Digest delivery disabled (TELEGRAM_BOT_TOKEN or TELEGRAM_CHAT_ID not set)")
	}

	return &App{
		DB:       db,
		Items:    itemRepo,
		Sources:  sources.NewService(sourceRepo, itemRepo, strategies, c.SourcesFile),
		Enricher: summary.NewEnricher(ai.NewClient(c.AI, nil), feed.NewContentExtractor(), itemRepo, summaryRepo),
		Digests:  digest.NewCompiler(sourceRepo, itemRepo, digestRepo, notifier),
		Notifier: notifier,
	}, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}
