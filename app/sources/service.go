package sources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lysyi3m/rss-digest/app/database"
	"github.com/lysyi3m/rss-digest/app/feed"
)

const DefaultFetchIntervalMinutes = 60

var (
	ErrSourceExists   = errors.New("source with this URL already exists")
	ErrSourceNotFound = errors.New("source not found")
	ErrInvalidSource  = errors.New("invalid source")
)

// Known aliases of feed URLs that resolve to the same feed.
var urlAliases = map[string]string{
	"https://dev.to/feed/": "https://dev.to/feed",
}

// Fetchers resolves a source type to its fetch strategy.
type Fetchers interface {
	Supports(sourceType string) bool
	Fetch(ctx context.Context, sourceType, url string) ([]feed.Entry, error)
}

// Input describes a source to create.
type Input struct {
	Name                 string  `json:"name"`
	Category             *string `json:"category"`
	Type                 string  `json:"type"`
	URL                  string  `json:"url"`
	ContentType          *string `json:"contentType"`
	Enabled              *bool   `json:"enabled"`
	FetchIntervalMinutes int     `json:"fetchIntervalMinutes"`
}

// PollResult summarises one pass over the due sources.
type PollResult struct {
	Due      int
	Failed   int
	Inserted int
}

type Service struct {
	sourceRepo  database.SourceRepository
	itemRepo    database.ItemRepository
	fetchers    Fetchers
	catalogPath string
	now         func() time.Time
}

func NewService(sourceRepo database.SourceRepository, itemRepo database.ItemRepository, fetchers Fetchers, catalogPath string) *Service {
	return &Service{
		sourceRepo:  sourceRepo,
		itemRepo:    itemRepo,
		fetchers:    fetchers,
		catalogPath: catalogPath,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source used for fetch bookkeeping.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) List(ctx context.Context) ([]database.Source, error) {
	return s.sourceRepo.ListSources(ctx)
}

func (s *Service) Get(ctx context.Context, id string) (*database.Source, error) {
	return s.sourceRepo.GetSource(ctx, id)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.sourceRepo.GetSourceCount(ctx)
}

func (s *Service) Create(ctx context.Context, input Input) (*database.Source, error) {
	source, err := s.buildSource(input)
	if err != nil {
		return nil, err
	}

	inserted, err := s.sourceRepo.InsertSource(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("failed to create source: %w", err)
	}
	if !inserted {
		return nil, ErrSourceExists
	}

	slog.Info("Source created", "id", source.ID, "name", source.Name, "url", source.URL)
	return &source, nil
}

func (s *Service) Update(ctx context.Context, id string, patch database.SourcePatch) (*database.Source, error) {
	existing, err := s.sourceRepo.GetSource(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrSourceNotFound
	}

	if err := s.validatePatch(&patch); err != nil {
		return nil, err
	}

	if !patch.IsEmpty() {
		err := s.sourceRepo.UpdateSource(ctx, id, patch)
		if errors.Is(err, database.ErrDuplicateURL) {
			return nil, ErrSourceExists
		}
		if err != nil {
			return nil, fmt.Errorf("failed to update source: %w", err)
		}
	}

	return s.sourceRepo.GetSource(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	deleted, err := s.sourceRepo.DeleteSource(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete source: %w", err)
	}
	if !deleted {
		return ErrSourceNotFound
	}

	slog.Info("Source deleted", "id", id)
	return nil
}

func (s *Service) Toggle(ctx context.Context, id string) (*database.Source, error) {
	existing, err := s.sourceRepo.GetSource(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrSourceNotFound
	}

	if err := s.sourceRepo.SetSourceEnabled(ctx, id, !existing.Enabled); err != nil {
		return nil, fmt.Errorf("failed to toggle source: %w", err)
	}

	return s.sourceRepo.GetSource(ctx, id)
}

func (s *Service) ListDue(ctx context.Context, now time.Time) ([]database.Source, error) {
	return s.sourceRepo.ListDueSources(ctx, now)
}

func (s *Service) MarkFetched(ctx context.Context, id string, at time.Time) error {
	return s.sourceRepo.MarkFetched(ctx, id, at)
}

// FetchSource fetches one source and stores the new items. The source is
// marked fetched whatever the outcome so a failing feed waits a full
// interval before the next attempt.
func (s *Service) FetchSource(ctx context.Context, source database.Source) (int, error) {
	entries, fetchErr := s.fetchers.Fetch(ctx, source.Type, source.URL)

	inserted := 0
	if fetchErr == nil && len(entries) > 0 {
		items := feed.Normalize(source.ID, entries, s.now())
		n, err := s.itemRepo.InsertItems(ctx, items)
		if err != nil {
			fetchErr = fmt.Errorf("failed to store items: %w", err)
		} else {
			inserted = n
		}
	}

	// A cancelled fetch still advances the due clock.
	if err := s.sourceRepo.MarkFetched(context.WithoutCancel(ctx), source.ID, s.now()); err != nil {
		slog.Error("Failed to mark source as fetched", "source", source.Name, "error", err)
	}

	if fetchErr != nil {
		return 0, fetchErr
	}

	slog.Debug("Source fetched", "source", source.Name, "entries", len(entries), "inserted", inserted)
	return inserted, nil
}

// FetchNow fetches the source with the given id immediately, ignoring its
// schedule.
func (s *Service) FetchNow(ctx context.Context, id string) (int, error) {
	source, err := s.sourceRepo.GetSource(ctx, id)
	if err != nil {
		return 0, err
	}
	if source == nil {
		return 0, ErrSourceNotFound
	}

	return s.FetchSource(ctx, *source)
}

// PollDue fetches every due source in turn. A failing source is logged and
// does not stop the pass.
func (s *Service) PollDue(ctx context.Context) (PollResult, error) {
	var result PollResult

	due, err := s.sourceRepo.ListDueSources(ctx, s.now())
	if err != nil {
		return result, fmt.Errorf("failed to list due sources: %w", err)
	}
	result.Due = len(due)

	for _, source := range due {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		inserted, err := s.FetchSource(ctx, source)
		if err != nil {
			result.Failed++
			slog.Error("Failed to fetch source", "source", source.Name, "url", source.URL, "error", err)
			continue
		}
		result.Inserted += inserted
	}

	return result, nil
}

// Seed inserts the catalog sources, skipping URLs that already exist.
func (s *Service) Seed(ctx context.Context) (int, error) {
	catalog, err := LoadCatalog(s.catalogPath)
	if err != nil {
		return 0, fmt.Errorf("failed to load source catalog: %w", err)
	}

	inserted := 0
	for _, entry := range catalog {
		source, err := s.buildSource(entry.toInput())
		if err != nil {
			return inserted, fmt.Errorf("catalog source %q: %w", entry.Name, err)
		}

		ok, err := s.sourceRepo.InsertSource(ctx, source)
		if err != nil {
			return inserted, fmt.Errorf("failed to seed source %q: %w", entry.Name, err)
		}
		if ok {
			inserted++
		}
	}

	slog.Info("Sources seeded", "catalog", len(catalog), "inserted", inserted)
	return inserted, nil
}

// SeedIfEmpty seeds the catalog only into an empty source table.
func (s *Service) SeedIfEmpty(ctx context.Context) (int, error) {
	count, err := s.sourceRepo.GetSourceCount(ctx)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, nil
	}
	return s.Seed(ctx)
}

func (s *Service) buildSource(input Input) (database.Source, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return database.Source{}, fmt.Errorf("%w: name is required", ErrInvalidSource)
	}

	sourceURL, err := normalizeURL(input.URL)
	if err != nil {
		return database.Source{}, err
	}

	sourceType := input.Type
	if sourceType == "" {
		sourceType = feed.SourceTypeRSS
	}
	if !s.fetchers.Supports(sourceType) {
		return database.Source{}, fmt.Errorf("%w: unsupported type %q", ErrInvalidSource, sourceType)
	}

	interval := input.FetchIntervalMinutes
	if interval == 0 {
		interval = DefaultFetchIntervalMinutes
	}
	if interval < 0 {
		return database.Source{}, fmt.Errorf("%w: fetch interval must be positive", ErrInvalidSource)
	}

	enabled := true
	if input.Enabled != nil {
		enabled = *input.Enabled
	}

	return database.Source{
		ID:                   uuid.NewString(),
		Name:                 name,
		Category:             trimmed(input.Category),
		Type:                 sourceType,
		URL:                  sourceURL,
		ContentType:          trimmed(input.ContentType),
		Enabled:              enabled,
		FetchIntervalMinutes: interval,
		CreatedAt:            s.now(),
	}, nil
}

func (s *Service) validatePatch(patch *database.SourcePatch) error {
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return fmt.Errorf("%w: name cannot be empty", ErrInvalidSource)
		}
		patch.Name = &name
	}

	if patch.URL != nil {
		sourceURL, err := normalizeURL(*patch.URL)
		if err != nil {
			return err
		}
		patch.URL = &sourceURL
	}

	if patch.Type != nil && !s.fetchers.Supports(*patch.Type) {
		return fmt.Errorf("%w: unsupported type %q", ErrInvalidSource, *patch.Type)
	}

	if patch.FetchIntervalMinutes != nil && *patch.FetchIntervalMinutes <= 0 {
		return fmt.Errorf("%w: fetch interval must be positive", ErrInvalidSource)
	}

	return nil
}

func normalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: url is required", ErrInvalidSource)
	}

	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return "", fmt.Errorf("%w: url must be an absolute http(s) URL", ErrInvalidSource)
	}

	if alias, ok := urlAliases[raw]; ok {
		return alias, nil
	}
	return raw, nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	return optional(*s)
}
