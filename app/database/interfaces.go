package database

import (
	"context"
	"time"
)

type SourceRepository interface {
	ListSources(ctx context.Context) ([]Source, error)
	GetSource(ctx context.Context, id string) (*Source, error)
	GetSourceByURL(ctx context.Context, url string) (*Source, error)
	GetSourceCount(ctx context.Context) (int, error)

	// InsertSource returns false when a source with the same URL exists.
	InsertSource(ctx context.Context, source Source) (bool, error)
	UpdateSource(ctx context.Context, id string, patch SourcePatch) error
	DeleteSource(ctx context.Context, id string) (bool, error)
	SetSourceEnabled(ctx context.Context, id string, enabled bool) error

	ListDueSources(ctx context.Context, now time.Time) ([]Source, error)
	MarkFetched(ctx context.Context, id string, at time.Time) error
}

type ItemRepository interface {
	// InsertItems skips items whose (source, URL) already exists and
	// returns the number of rows actually inserted.
	InsertItems(ctx context.Context, items []Item) (int, error)
	ListItems(ctx context.Context, sourceID string, limit int) ([]Item, error)
	GetItem(ctx context.Context, id string) (*Item, error)
	ListPublishedSince(ctx context.Context, since time.Time, limit int) ([]Item, error)
	GetItemCount(ctx context.Context) (int, error)
}

type SummaryRepository interface {
	GetSummary(ctx context.Context, itemID, model string) (*Summary, error)
	// InsertSummary returns false when a summary for (item, model) exists.
	InsertSummary(ctx context.Context, summary Summary) (bool, error)
}

type DigestRepository interface {
	UpsertDigest(ctx context.Context, digest Digest) error
	GetDigest(ctx context.Context, date string) (*Digest, error)
	ListDigests(ctx context.Context, limit int) ([]Digest, error)
}
