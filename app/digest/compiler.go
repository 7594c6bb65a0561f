package digest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lysyi3m/rss-digest/app/database"
)

const (
	DateLayout = "2006-01-02"

	MaxItems           = 50
	MaxItemsPerSection = 10

	uncategorized = "Uncategorized"
	unknownSource = "Unknown"
)

var ErrInvalidDate = errors.New("digest date must be formatted as YYYY-MM-DD")

// Notifier delivers a compiled digest. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, digest *database.Digest)
}

type Compiler struct {
	sourceRepo database.SourceRepository
	itemRepo   database.ItemRepository
	digestRepo database.DigestRepository
	notifier   Notifier
	now        func() time.Time
}

func NewCompiler(sourceRepo database.SourceRepository, itemRepo database.ItemRepository, digestRepo database.DigestRepository, notifier Notifier) *Compiler {
	return &Compiler{
		sourceRepo: sourceRepo,
		itemRepo:   itemRepo,
		digestRepo: digestRepo,
		notifier:   notifier,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source used to pick the default date.
func (c *Compiler) SetClock(now func() time.Time) {
	c.now = now
}

func (c *Compiler) List(ctx context.Context, limit int) ([]database.Digest, error) {
	return c.digestRepo.ListDigests(ctx, limit)
}

func (c *Compiler) Get(ctx context.Context, date string) (*database.Digest, error) {
	if _, err := ParseDate(date); err != nil {
		return nil, err
	}
	return c.digestRepo.GetDigest(ctx, date)
}

// Run compiles the digest for date (today in UTC when empty), stores it in
// place of any previous digest for that date and hands it to the notifier.
func (c *Compiler) Run(ctx context.Context, date string) (*database.Digest, error) {
	start := time.Now()

	if date == "" {
		date = c.now().UTC().Format(DateLayout)
	}
	since, err := ParseDate(date)
	if err != nil {
		return nil, err
	}

	sources, err := c.sourceRepo.ListSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	sourcesByID := make(map[string]database.Source, len(sources))
	for _, source := range sources {
		sourcesByID[source.ID] = source
	}

	items, err := c.itemRepo.ListPublishedSince(ctx, since, MaxItems)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent items: %w", err)
	}

	summary := "No items found for this day."
	if len(items) > 0 {
		summary = fmt.Sprintf("Items: %d", len(items))
	}

	err = c.digestRepo.UpsertDigest(ctx, database.Digest{
		ID:        uuid.NewString(),
		Date:      date,
		Title:     "Daily digest " + date,
		Summary:   summary,
		Sections:  BuildSections(items, sourcesByID),
		CreatedAt: c.now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store digest: %w", err)
	}

	saved, err := c.digestRepo.GetDigest(ctx, date)
	if err != nil {
		return nil, err
	}
	if saved == nil {
		return nil, fmt.Errorf("digest for %s missing after upsert", date)
	}

	if c.notifier != nil {
		c.notifier.Notify(ctx, saved)
	}

	slog.Info("Digest compiled",
		"date", date,
		"duration", time.Since(start),
		"items", len(items),
		"sections", len(saved.Sections))

	return saved, nil
}

// BuildSections groups items (newest first) by their source's category.
// Larger sections come first, ties broken by title; each section keeps at
// most MaxItemsPerSection entries in input order.
func BuildSections(items []database.Item, sourcesByID map[string]database.Source) []database.DigestSection {
	grouped := make(map[string][]database.DigestItem)
	var order []string

	for _, item := range items {
		category := uncategorized
		sourceName := unknownSource
		if source, ok := sourcesByID[item.SourceID]; ok {
			sourceName = source.Name
			if source.Category != nil {
				category = *source.Category
			}
		}

		if _, ok := grouped[category]; !ok {
			order = append(order, category)
		}
		grouped[category] = append(grouped[category], database.DigestItem{
			Title:      item.Title,
			URL:        item.URL,
			SourceName: sourceName,
		})
	}

	sort.SliceStable(order, func(i, j int) bool {
		a, b := len(grouped[order[i]]), len(grouped[order[j]])
		if a != b {
			return a > b
		}
		return order[i] < order[j]
	})

	sections := make([]database.DigestSection, 0, len(order))
	for _, category := range order {
		entries := grouped[category]
		if len(entries) > MaxItemsPerSection {
			entries = entries[:MaxItemsPerSection]
		}
		sections = append(sections, database.DigestSection{Title: category, Items: entries})
	}

	return sections
}

// ParseDate validates a YYYY-MM-DD date and returns its UTC midnight.
func ParseDate(date string) (time.Time, error) {
	t, err := time.Parse(DateLayout, date)
	if err != nil || t.Format(DateLayout) != date {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return t, nil
}
