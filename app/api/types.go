package api

import (
	"context"

	"github.com/lysyi3m/rss-digest/app/database"
	"github.com/lysyi3m/rss-digest/app/digest"
	"github.com/lysyi3m/rss-digest/app/sources"
	"github.com/lysyi3m/rss-digest/app/summary"
)

type SourceService interface {
	List(ctx context.Context) ([]database.Source, error)
	Count(ctx context.Context) (int, error)
	Create(ctx context.Context, input sources.Input) (*database.Source, error)
	Update(ctx context.Context, id string, patch database.SourcePatch) (*database.Source, error)
	Delete(ctx context.Context, id string) error
	Toggle(ctx context.Context, id string) (*database.Source, error)
	FetchNow(ctx context.Context, id string) (int, error)
	Seed(ctx context.Context) (int, error)
}

type SummaryService interface {
	Get(ctx context.Context, itemID string) (*database.Summary, error)
	Summarize(ctx context.Context, itemID string) (*database.Summary, error)
}

type DigestService interface {
	List(ctx context.Context, limit int) ([]database.Digest, error)
	Get(ctx context.Context, date string) (*database.Digest, error)
	Run(ctx context.Context, date string) (*database.Digest, error)
}

var (
	_ SourceService  = (*sources.Service)(nil)
	_ SummaryService = (*summary.Enricher)(nil)
	_ DigestService  = (*digest.Compiler)(nil)
)

type Handler struct {
	sourceService  SourceService
	itemRepo       database.ItemRepository
	summaryService SummaryService
	digestService  DigestService
	version        string
}
