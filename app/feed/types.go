package feed

import (
	"time"
)

// Entry is a single feed entry as read from the wire, before normalization.
type Entry struct {
	Link        string
	Title       string
	Published   string     // raw date string as found in the feed
	PublishedAt *time.Time // parsed by gofeed when it recognised the format
	Author      string
	Description string
	Content     string
	Language    string // declared by the enclosing feed
}

// RichContent returns the richest markup the entry carries.
func (e Entry) RichContent() string {
	if e.Content != "" {
		return e.Content
	}
	return e.Description
}
