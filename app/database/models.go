package database

import (
	"time"
)

// Source is a configured feed to poll.
type Source struct {
	ID                   string     `json:"id"`
	Name                 string     `json:"name"`
	Category             *string    `json:"category"`
	Type                 string     `json:"type"`
	URL                  string     `json:"url"`
	ContentType          *string    `json:"contentType"`
	Enabled              bool       `json:"enabled"`
	FetchIntervalMinutes int        `json:"fetchIntervalMinutes"`
	LastFetchedAt        *time.Time `json:"lastFetchedAt"`
	CreatedAt            time.Time  `json:"createdAt"`
}

// IsDue reports whether the source should be fetched at now. A source that
// was never fetched is always due; a disabled source never is.
func (s Source) IsDue(now time.Time) bool {
	if !s.Enabled {
		return false
	}
	var last int64
	if s.LastFetchedAt != nil {
		last = s.LastFetchedAt.UnixMilli()
	}
	return now.UnixMilli()-last >= int64(s.FetchIntervalMinutes)*60_000
}

// SourcePatch carries a partial update. Nil fields are left unchanged; an
// empty Category or ContentType clears the column.
type SourcePatch struct {
	Name                 *string `json:"name"`
	Category             *string `json:"category"`
	URL                  *string `json:"url"`
	Type                 *string `json:"type"`
	ContentType          *string `json:"contentType"`
	Enabled              *bool   `json:"enabled"`
	FetchIntervalMinutes *int    `json:"fetchIntervalMinutes"`
}

func (p SourcePatch) IsEmpty() bool {
	return p.Name == nil && p.Category == nil && p.URL == nil && p.Type == nil &&
		p.ContentType == nil && p.Enabled == nil && p.FetchIntervalMinutes == nil
}

// Item is one normalized entry ingested from a source.
type Item struct {
	ID          string     `json:"id"`
	SourceID    string     `json:"sourceId"`
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	Author      *string    `json:"author"`
	PublishedAt *time.Time `json:"publishedAt"`
	ContentText *string    `json:"contentText"`
	ContentHTML *string    `json:"contentHtml"`
	Language    *string    `json:"language"`
	Hash        *string    `json:"hash"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Summary is the AI enrichment of one item for one model.
type Summary struct {
	ID        string    `json:"id"`
	ItemID    string    `json:"itemId"`
	Model     string    `json:"model"`
	Summary   string    `json:"summary"`
	KeyPoints []string  `json:"keyPoints"`
	Sentiment *string   `json:"sentiment"`
	CreatedAt time.Time `json:"createdAt"`
}

// Digest is a dated snapshot of recently published items.
type Digest struct {
	ID        string          `json:"id"`
	Date      string          `json:"date"`
	Title     string          `json:"title"`
	Summary   string          `json:"summary"`
	Sections  []DigestSection `json:"sections"`
	CreatedAt time.Time       `json:"createdAt"`
}

type DigestSection struct {
	Title string       `json:"title"`
	Items []DigestItem `json:"items"`
}

type DigestItem struct {
	Title      string `json:"title"`
	URL        string `json:"url"`
	SourceName string `json:"sourceName"`
}
