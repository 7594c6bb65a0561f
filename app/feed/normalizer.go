package feed

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/lysyi3m/rss-digest/app/database"
	"golang.org/x/text/unicode/norm"
)

var fallbackDateLayouts = []string{
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	"2006-01-02",
}

// Normalize turns fetched entries into items owned by sourceID. Items get
// fresh ids; deduplication happens on insert.
func Normalize(sourceID string, entries []Entry, now time.Time) []database.Item {
	items := make([]database.Item, 0, len(entries))
	createdAt := now.UTC()

	for _, entry := range entries {
		title := norm.NFC.String(strings.TrimSpace(entry.Title))
		if entry.Link == "" || title == "" {
			continue
		}

		item := database.Item{
			ID:          uuid.NewString(),
			SourceID:    sourceID,
			URL:         entry.Link,
			Title:       title,
			Author:      verbatim(entry.Author),
			PublishedAt: publishedAt(entry),
			Language:    optional(entry.Language),
			CreatedAt:   createdAt,
		}

		if html := entry.RichContent(); html != "" {
			item.ContentHTML = verbatim(html)
			item.ContentText = optional(PlainText(html))
		}

		items = append(items, item)
	}

	return items
}

// PlainText strips markup and collapses whitespace.
func PlainText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.Join(strings.Fields(html), " ")
	}
	doc.Find("script, style").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func publishedAt(entry Entry) *time.Time {
	if entry.PublishedAt != nil {
		t := entry.PublishedAt.UTC()
		return &t
	}

	raw := strings.TrimSpace(entry.Published)
	if raw == "" {
		return nil
	}
	for _, layout := range fallbackDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// verbatim keeps s as the feed sent it; only an empty string is absent.
func verbatim(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
