package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewConnection(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, dirty, err := RunMigrations(db); err != nil {
		t.Fatalf("migrate: %v", err)
	} else if dirty {
		t.Fatal("expected clean migration state")
	}
	return db
}

func strPtr(s string) *string { return &s }

func testSource(id, url string) Source {
	return Source{
		ID:                   id,
		Name:                 "Source " + id,
		Category:             strPtr("Go"),
		Type:                 "rss",
		URL:                  url,
		Enabled:              true,
		FetchIntervalMinutes: 60,
		CreatedAt:            time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	db := openTestDB(t)

	version, dirty, err := RunMigrations(db)
	if err != nil {
		t.Fatalf("second migration run: %v", err)
	}
	if version != 1 || dirty {
		t.Errorf("version = %d dirty = %v, want 1 false", version, dirty)
	}
}

func TestInsertSourceRejectsDuplicateURL(t *testing.T) {
	db := openTestDB(t)
	repo := NewSourceRepository(db)
	ctx := context.Background()

	inserted, err := repo.InsertSource(ctx, testSource("s1", "https://example.com/feed"))
	if err != nil || !inserted {
		t.Fatalf("first insert: inserted=%v err=%v", inserted, err)
	}

	inserted, err = repo.InsertSource(ctx, testSource("s2", "https://example.com/feed"))
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if inserted {
		t.Error("expected duplicate URL insert to be ignored")
	}

	got, err := repo.GetSourceByURL(ctx, "https://example.com/feed")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.ID != "s1" {
		t.Errorf("expected original source to survive, got %+v", got)
	}
}

func TestGetSourceNotFound(t *testing.T) {
	db := openTestDB(t)
	repo := NewSourceRepository(db)

	got, err := repo.GetSource(context.Background(), "missing")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestUpdateSourcePatch(t *testing.T) {
	db := openTestDB(t)
	repo := NewSourceRepository(db)
	ctx := context.Background()

	source := testSource("s1", "https://example.com/feed")
	source.ContentType = strPtr("Blog posts")
	if _, err := repo.InsertSource(ctx, source); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.InsertSource(ctx, testSource("s2", "https://other.example.com/feed")); err != nil {
		t.Fatal(err)
	}

	interval := 15
	err := repo.UpdateSource(ctx, "s1", SourcePatch{
		Name:                 strPtr("Renamed"),
		Category:             strPtr(""),
		FetchIntervalMinutes: &interval,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := repo.GetSource(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Renamed" {
		t.Errorf("name = %q, want %q", got.Name, "Renamed")
	}
	if got.Category != nil {
		t.Errorf("expected category cleared, got %q", *got.Category)
	}
	if got.ContentType == nil || *got.ContentType != "Blog posts" {
		t.Errorf("expected content type untouched, got %v", got.ContentType)
	}
	if got.FetchIntervalMinutes != 15 {
		t.Errorf("interval = %d, want 15", got.FetchIntervalMinutes)
	}
	if got.URL != "https://example.com/feed" {
		t.Errorf("url changed unexpectedly: %s", got.URL)
	}

	err = repo.UpdateSource(ctx, "s1", SourcePatch{URL: strPtr("https://other.example.com/feed")})
	if !errors.Is(err, ErrDuplicateURL) {
		t.Errorf("expected ErrDuplicateURL, got %v", err)
	}
}

func TestListDueSources(t *testing.T) {
	db := openTestDB(t)
	repo := NewSourceRepository(db)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	never := testSource("never", "https://a.example.com/feed")

	fresh := testSource("fresh", "https://b.example.com/feed")
	freshAt := now.Add(-59 * time.Minute)
	fresh.LastFetchedAt = &freshAt

	stale := testSource("stale", "https://c.example.com/feed")
	staleAt := now.Add(-60 * time.Minute)
	stale.LastFetchedAt = &staleAt

	disabled := testSource("disabled", "https://d.example.com/feed")
	disabled.Enabled = false

	for _, s := range []Source{never, fresh, stale, disabled} {
		if _, err := repo.InsertSource(ctx, s); err != nil {
			t.Fatal(err)
		}
	}

	due, err := repo.ListDueSources(ctx, now)
	if err != nil {
		t.Fatal(err)
	}

	ids := map[string]bool{}
	for _, s := range due {
		ids[s.ID] = true
	}
	if len(due) != 2 || !ids["never"] || !ids["stale"] {
		t.Errorf("expected never and stale to be due, got %v", ids)
	}

	if err := repo.MarkFetched(ctx, "stale", now); err != nil {
		t.Fatal(err)
	}
	due, err = repo.ListDueSources(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 1 || due[0].ID != "never" {
		t.Errorf("expected only never to be due after marking, got %+v", due)
	}
}

func TestInsertItemsIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	sources := NewSourceRepository(db)
	items := NewItemRepository(db)
	ctx := context.Background()

	if _, err := sources.InsertSource(ctx, testSource("s1", "https://example.com/feed")); err != nil {
		t.Fatal(err)
	}

	published := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	batch := []Item{
		{ID: "i1", SourceID: "s1", URL: "https://example.com/1", Title: "One", PublishedAt: &published, CreatedAt: published},
		{ID: "i2", SourceID: "s1", URL: "https://example.com/2", Title: "Two", CreatedAt: published},
	}

	inserted, err := items.InsertItems(ctx, batch)
	if err != nil {
		t.Fatal(err)
	}
	if inserted != 2 {
		t.Errorf("first insert = %d, want 2", inserted)
	}

	again := []Item{
		{ID: "i3", SourceID: "s1", URL: "https://example.com/1", Title: "One again", CreatedAt: published},
		{ID: "i4", SourceID: "s1", URL: "https://example.com/3", Title: "Three", CreatedAt: published},
	}
	inserted, err = items.InsertItems(ctx, again)
	if err != nil {
		t.Fatal(err)
	}
	if inserted != 1 {
		t.Errorf("second insert = %d, want 1", inserted)
	}

	got, err := items.GetItem(ctx, "i1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "One" {
		t.Errorf("expected original item untouched, got title %q", got.Title)
	}
	if got.PublishedAt == nil || !got.PublishedAt.Equal(published) {
		t.Errorf("published at = %v, want %v", got.PublishedAt, published)
	}

	count, err := items.GetItemCount(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
}

func TestListItemsOrderingAndFilter(t *testing.T) {
	db := openTestDB(t)
	sources := NewSourceRepository(db)
	items := NewItemRepository(db)
	ctx := context.Background()

	for _, s := range []Source{testSource("s1", "https://a.example.com/feed"), testSource("s2", "https://b.example.com/feed")} {
		if _, err := sources.InsertSource(ctx, s); err != nil {
			t.Fatal(err)
		}
	}

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	older := base.Add(time.Hour)
	newer := base.Add(2 * time.Hour)
	batch := []Item{
		{ID: "old", SourceID: "s1", URL: "https://a.example.com/old", Title: "Old", PublishedAt: &older, CreatedAt: base},
		{ID: "new", SourceID: "s1", URL: "https://a.example.com/new", Title: "New", PublishedAt: &newer, CreatedAt: base},
		{ID: "undated", SourceID: "s1", URL: "https://a.example.com/undated", Title: "Undated", CreatedAt: base},
		{ID: "other", SourceID: "s2", URL: "https://b.example.com/x", Title: "Other", PublishedAt: &newer, CreatedAt: base},
	}
	if _, err := items.InsertItems(ctx, batch); err != nil {
		t.Fatal(err)
	}

	got, err := items.ListItems(ctx, "s1", 50)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"new", "old", "undated"}
	if len(got) != len(want) {
		t.Fatalf("got %d items, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("position %d = %s, want %s", i, got[i].ID, id)
		}
	}

	all, err := items.ListItems(ctx, "", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("expected limit to cap results at 2, got %d", len(all))
	}

	since, err := items.ListPublishedSince(ctx, newer, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(since) != 2 {
		t.Errorf("expected 2 items published at or after cutoff, got %d", len(since))
	}
}

func TestDeleteSourceCascades(t *testing.T) {
	db := openTestDB(t)
	sources := NewSourceRepository(db)
	items := NewItemRepository(db)
	summaries := NewSummaryRepository(db)
	ctx := context.Background()

	if _, err := sources.InsertSource(ctx, testSource("s1", "https://example.com/feed")); err != nil {
		t.Fatal(err)
	}
	now := time.Now().UTC()
	if _, err := items.InsertItems(ctx, []Item{{ID: "i1", SourceID: "s1", URL: "https://example.com/1", Title: "One", CreatedAt: now}}); err != nil {
		t.Fatal(err)
	}
	if _, err := summaries.InsertSummary(ctx, Summary{ID: "sum1", ItemID: "i1", Model: "m", Summary: "s", CreatedAt: now}); err != nil {
		t.Fatal(err)
	}

	deleted, err := sources.DeleteSource(ctx, "s1")
	if err != nil || !deleted {
		t.Fatalf("delete: deleted=%v err=%v", deleted, err)
	}

	if item, _ := items.GetItem(ctx, "i1"); item != nil {
		t.Error("expected item to be deleted with its source")
	}
	if summary, _ := summaries.GetSummary(ctx, "i1", "m"); summary != nil {
		t.Error("expected summary to be deleted with its item")
	}

	deleted, err = sources.DeleteSource(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if deleted {
		t.Error("expected second delete to report nothing deleted")
	}
}

func TestInsertSummaryUniquePerModel(t *testing.T) {
	db := openTestDB(t)
	sources := NewSourceRepository(db)
	items := NewItemRepository(db)
	summaries := NewSummaryRepository(db)
	ctx := context.Background()

	if _, err := sources.InsertSource(ctx, testSource("s1", "https://example.com/feed")); err != nil {
		t.Fatal(err)
	}
	now := time.Now().UTC()
	if _, err := items.InsertItems(ctx, []Item{{ID: "i1", SourceID: "s1", URL: "https://example.com/1", Title: "One", CreatedAt: now}}); err != nil {
		t.Fatal(err)
	}

	first := Summary{ID: "a", ItemID: "i1", Model: "m1", Summary: "first", KeyPoints: []string{"k1", "k2"}, Sentiment: strPtr("positive"), CreatedAt: now}
	if inserted, err := summaries.InsertSummary(ctx, first); err != nil || !inserted {
		t.Fatalf("insert: inserted=%v err=%v", inserted, err)
	}

	dup := Summary{ID: "b", ItemID: "i1", Model: "m1", Summary: "second", CreatedAt: now}
	if inserted, err := summaries.InsertSummary(ctx, dup); err != nil || inserted {
		t.Fatalf("duplicate insert: inserted=%v err=%v", inserted, err)
	}

	other := Summary{ID: "c", ItemID: "i1", Model: "m2", Summary: "other model", CreatedAt: now}
	if inserted, err := summaries.InsertSummary(ctx, other); err != nil || !inserted {
		t.Fatalf("other model insert: inserted=%v err=%v", inserted, err)
	}

	got, err := summaries.GetSummary(ctx, "i1", "m1")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "a" || got.Summary != "first" {
		t.Errorf("expected first summary to win, got %+v", got)
	}
	if len(got.KeyPoints) != 2 || got.KeyPoints[1] != "k2" {
		t.Errorf("key points = %v", got.KeyPoints)
	}

	got, err = summaries.GetSummary(ctx, "i1", "m2")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.KeyPoints) != 0 || got.Sentiment != nil {
		t.Errorf("expected empty key points and no sentiment, got %+v", got)
	}
}

func TestUpsertDigestKeepsIdentity(t *testing.T) {
	db := openTestDB(t)
	repo := NewDigestRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	first := Digest{
		ID: "d1", Date: "2024-05-01", Title: "Daily digest 2024-05-01", Summary: "Items: 1",
		Sections: []DigestSection{{Title: "Go", Items: []DigestItem{{Title: "A", URL: "https://a", SourceName: "Blog"}}}},
		CreatedAt: now,
	}
	if err := repo.UpsertDigest(ctx, first); err != nil {
		t.Fatal(err)
	}

	second := Digest{ID: "d2", Date: "2024-05-01", Title: "Daily digest 2024-05-01", Summary: "No items found for this day.", CreatedAt: now}
	if err := repo.UpsertDigest(ctx, second); err != nil {
		t.Fatal(err)
	}

	got, err := repo.GetDigest(ctx, "2024-05-01")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "d1" {
		t.Errorf("expected row identity d1 to be preserved, got %s", got.ID)
	}
	if got.Summary != "No items found for this day." || len(got.Sections) != 0 {
		t.Errorf("expected second run content, got %+v", got)
	}

	if err := repo.UpsertDigest(ctx, Digest{ID: "d3", Date: "2024-05-02", Title: "t", Summary: "s", CreatedAt: now}); err != nil {
		t.Fatal(err)
	}
	list, err := repo.ListDigests(ctx, 30)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Date != "2024-05-02" {
		t.Errorf("expected 2 digests newest first, got %+v", list)
	}
}
