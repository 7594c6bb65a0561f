package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// ErrDuplicateURL is returned when an update would give a source the URL of
// another source.
var ErrDuplicateURL = errors.New("source URL already exists")

const sourceColumns = `id, name, category, type, url, content_type, enabled,
	fetch_interval_minutes, last_fetched_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// SQLSourceRepository handles database operations for sources
type SQLSourceRepository struct {
	db *DB
}

var _ SourceRepository = (*SQLSourceRepository)(nil)

// NewSourceRepository creates a new source repository
func NewSourceRepository(db *DB) *SQLSourceRepository {
	return &SQLSourceRepository{db: db}
}

func scanSource(row rowScanner) (*Source, error) {
	var (
		source      Source
		category    sql.NullString
		contentType sql.NullString
		lastFetched sql.NullInt64
		createdAt   int64
	)
	err := row.Scan(
		&source.ID, &source.Name, &category, &source.Type, &source.URL, &contentType,
		&source.Enabled, &source.FetchIntervalMinutes, &lastFetched, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	source.Category = fromNullString(category)
	source.ContentType = fromNullString(contentType)
	source.LastFetchedAt = fromNullMillis(lastFetched)
	source.CreatedAt = fromMillis(createdAt)
	return &source, nil
}

func (r *SQLSourceRepository) querySources(ctx context.Context, query string, args ...any) ([]Source, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		sources = append(sources, *source)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating source rows: %w", err)
	}

	return sources, nil
}

func (r *SQLSourceRepository) getSourceBy(ctx context.Context, column, value string) (*Source, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE `+column+` = ?`, value)
	source, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get source by %s: %w", column, err)
	}
	return source, nil
}

// ListSources returns all sources, newest first
func (r *SQLSourceRepository) ListSources(ctx context.Context) ([]Source, error) {
	return r.querySources(ctx, `SELECT `+sourceColumns+` FROM sources ORDER BY created_at DESC, name`)
}

// GetSource retrieves a source by ID, returning nil when it does not exist
func (r *SQLSourceRepository) GetSource(ctx context.Context, id string) (*Source, error) {
	return r.getSourceBy(ctx, "id", id)
}

// GetSourceByURL retrieves a source by its feed URL
func (r *SQLSourceRepository) GetSourceByURL(ctx context.Context, url string) (*Source, error) {
	return r.getSourceBy(ctx, "url", url)
}

// GetSourceCount returns the total number of sources
func (r *SQLSourceRepository) GetSourceCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sources").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get source count: %w", err)
	}
	return count, nil
}

// InsertSource inserts a source unless its URL is already registered
func (r *SQLSourceRepository) InsertSource(ctx context.Context, source Source) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO sources (`+sourceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (url) DO NOTHING
	`, source.ID, source.Name, nullString(source.Category), source.Type, source.URL,
		nullString(source.ContentType), source.Enabled, source.FetchIntervalMinutes,
		nullMillis(source.LastFetchedAt), toMillis(source.CreatedAt))
	if err != nil {
		return false, fmt.Errorf("failed to insert source: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return affected > 0, nil
}

// UpdateSource applies the non-nil fields of patch
func (r *SQLSourceRepository) UpdateSource(ctx context.Context, id string, patch SourcePatch) error {
	if patch.IsEmpty() {
		return nil
	}

	set := map[string]any{}
	if patch.Name != nil {
		set["name"] = *patch.Name
	}
	if patch.Category != nil {
		set["category"] = emptyAsNull(*patch.Category)
	}
	if patch.URL != nil {
		set["url"] = *patch.URL
	}
	if patch.Type != nil {
		set["type"] = *patch.Type
	}
	if patch.ContentType != nil {
		set["content_type"] = emptyAsNull(*patch.ContentType)
	}
	if patch.Enabled != nil {
		set["enabled"] = *patch.Enabled
	}
	if patch.FetchIntervalMinutes != nil {
		set["fetch_interval_minutes"] = *patch.FetchIntervalMinutes
	}

	query, args, err := sq.Update("sources").SetMap(set).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build source update: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateURL
		}
		return fmt.Errorf("failed to update source: %w", err)
	}

	return nil
}

// DeleteSource removes a source; items and summaries cascade
func (r *SQLSourceRepository) DeleteSource(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete source: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return affected > 0, nil
}

// SetSourceEnabled sets the enabled status of a source
func (r *SQLSourceRepository) SetSourceEnabled(ctx context.Context, id string, enabled bool) error {
	_, err := r.db.ExecContext(ctx, `UPDATE sources SET enabled = ? WHERE id = ?`, enabled, id)
	if err != nil {
		return fmt.Errorf("failed to set source enabled status: %w", err)
	}
	return nil
}

// ListDueSources returns enabled sources whose fetch interval has elapsed at now
func (r *SQLSourceRepository) ListDueSources(ctx context.Context, now time.Time) ([]Source, error) {
	enabled, err := r.querySources(ctx, `
		SELECT `+sourceColumns+`
		FROM sources
		WHERE enabled = 1
		ORDER BY COALESCE(last_fetched_at, 0), created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get sources due for refresh: %w", err)
	}

	due := make([]Source, 0, len(enabled))
	for _, source := range enabled {
		if source.IsDue(now) {
			due = append(due, source)
		}
	}

	return due, nil
}

// MarkFetched records a fetch attempt, successful or not
func (r *SQLSourceRepository) MarkFetched(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE sources SET last_fetched_at = ? WHERE id = ?`, toMillis(at), id)
	if err != nil {
		return fmt.Errorf("failed to mark source fetched: %w", err)
	}
	return nil
}

func emptyAsNull(s string) any {
	if s == "" {
		return nil
	}
	return s
}
