package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

const itemColumns = `id, source_id, url, title, author, published_at, content_text,
	content_html, language, hash, created_at`

// SQLItemRepository handles database operations for items
type SQLItemRepository struct {
	db *DB
}

var _ ItemRepository = (*SQLItemRepository)(nil)

// NewItemRepository creates a new item repository
func NewItemRepository(db *DB) *SQLItemRepository {
	return &SQLItemRepository{db: db}
}

func scanItem(row rowScanner) (*Item, error) {
	var (
		item        Item
		author      sql.NullString
		publishedAt sql.NullInt64
		contentText sql.NullString
		contentHTML sql.NullString
		language    sql.NullString
		hash        sql.NullString
		createdAt   int64
	)
	err := row.Scan(
		&item.ID, &item.SourceID, &item.URL, &item.Title, &author, &publishedAt,
		&contentText, &contentHTML, &language, &hash, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	item.Author = fromNullString(author)
	item.PublishedAt = fromNullMillis(publishedAt)
	item.ContentText = fromNullString(contentText)
	item.ContentHTML = fromNullString(contentHTML)
	item.Language = fromNullString(language)
	item.Hash = fromNullString(hash)
	item.CreatedAt = fromMillis(createdAt)
	return &item, nil
}

func (r *SQLItemRepository) queryItems(ctx context.Context, query string, args ...any) ([]Item, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item row: %w", err)
		}
		items = append(items, *item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating item rows: %w", err)
	}

	return items, nil
}

// InsertItems stores new items in one transaction, ignoring (source, URL) conflicts
func (r *SQLItemRepository) InsertItems(ctx context.Context, items []Item) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO items (`+itemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_id, url) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare item insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, item := range items {
		res, err := stmt.ExecContext(ctx,
			item.ID, item.SourceID, item.URL, item.Title, nullString(item.Author),
			nullMillis(item.PublishedAt), nullString(item.ContentText), nullString(item.ContentHTML),
			nullString(item.Language), nullString(item.Hash), toMillis(item.CreatedAt))
		if err != nil {
			return 0, fmt.Errorf("failed to insert item %s: %w", item.URL, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to read affected rows: %w", err)
		}
		inserted += int(affected)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit items: %w", err)
	}

	return inserted, nil
}

// ListItems returns items ordered by publish time then creation time, newest
// first. An empty sourceID lists items across all sources.
func (r *SQLItemRepository) ListItems(ctx context.Context, sourceID string, limit int) ([]Item, error) {
	builder := sq.Select(itemColumns).
		From("items").
		OrderBy("published_at DESC", "created_at DESC").
		Limit(uint64(limit))
	if sourceID != "" {
		builder = builder.Where(sq.Eq{"source_id": sourceID})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build item query: %w", err)
	}

	return r.queryItems(ctx, query, args...)
}

// GetItem retrieves an item by ID, returning nil when it does not exist
func (r *SQLItemRepository) GetItem(ctx context.Context, id string) (*Item, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return item, nil
}

// ListPublishedSince returns items with a publish time at or after since,
// most recent first
func (r *SQLItemRepository) ListPublishedSince(ctx context.Context, since time.Time, limit int) ([]Item, error) {
	return r.queryItems(ctx, `
		SELECT `+itemColumns+`
		FROM items
		WHERE published_at IS NOT NULL
		  AND published_at >= ?
		ORDER BY published_at DESC
		LIMIT ?
	`, toMillis(since), limit)
}

// GetItemCount returns the total number of stored items
func (r *SQLItemRepository) GetItemCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM items").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get item count: %w", err)
	}
	return count, nil
}
