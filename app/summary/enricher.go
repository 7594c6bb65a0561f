package summary

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lysyi3m/rss-digest/app/ai"
	"github.com/lysyi3m/rss-digest/app/database"
)

// Summarizer produces a structured summary for one article.
type Summarizer interface {
	Model() string
	Summarize(ctx context.Context, input ai.Input) (ai.Result, error)
}

// TextExtractor derives readable text from an article's markup.
type TextExtractor interface {
	Run(html, pageURL string) (string, error)
}

// Enricher attaches AI summaries to items, at most one per item and model.
type Enricher struct {
	summarizer  Summarizer
	extractor   TextExtractor
	itemRepo    database.ItemRepository
	summaryRepo database.SummaryRepository
}

func NewEnricher(summarizer Summarizer, extractor TextExtractor, itemRepo database.ItemRepository, summaryRepo database.SummaryRepository) *Enricher {
	return &Enricher{
		summarizer:  summarizer,
		extractor:   extractor,
		itemRepo:    itemRepo,
		summaryRepo: summaryRepo,
	}
}

// Get returns the stored summary of itemID for the configured model, or nil.
func (e *Enricher) Get(ctx context.Context, itemID string) (*database.Summary, error) {
	return e.summaryRepo.GetSummary(ctx, itemID, e.summarizer.Model())
}

// Summarize returns the existing summary of itemID or creates one. It
// returns nil, nil when the item does not exist.
func (e *Enricher) Summarize(ctx context.Context, itemID string) (*database.Summary, error) {
	existing, err := e.Get(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	item, err := e.itemRepo.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, nil
	}

	start := time.Now()
	result, err := e.summarizer.Summarize(ctx, ai.Input{
		Title:   item.Title,
		URL:     item.URL,
		Content: e.contentFor(item),
	})
	if err != nil {
		return nil, err
	}

	_, err = e.summaryRepo.InsertSummary(ctx, database.Summary{
		ID:        uuid.NewString(),
		ItemID:    item.ID,
		Model:     e.summarizer.Model(),
		Summary:   result.Summary,
		KeyPoints: result.KeyPoints,
		Sentiment: result.Sentiment,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store summary: %w", err)
	}

	slog.Info("Item summarized",
		"item_id", item.ID,
		"model", e.summarizer.Model(),
		"key_points", len(result.KeyPoints),
		"duration", time.Since(start))

	return e.Get(ctx, itemID)
}

func (e *Enricher) contentFor(item *database.Item) string {
	if item.ContentText != nil && *item.ContentText != "" {
		return *item.ContentText
	}
	if item.ContentHTML == nil || *item.ContentHTML == "" || e.extractor == nil {
		return ""
	}

	text, err := e.extractor.Run(*item.ContentHTML, item.URL)
	if err != nil {
		slog.Debug("No readable text in item content", "item_id", item.ID, "error", err)
		return ""
	}
	return text
}
