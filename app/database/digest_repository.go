package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// SQLDigestRepository handles database operations for digests
type SQLDigestRepository struct {
	db *DB
}

var _ DigestRepository = (*SQLDigestRepository)(nil)

func NewDigestRepository(db *DB) *SQLDigestRepository {
	return &SQLDigestRepository{db: db}
}

type sectionsDocument struct {
	Sections []DigestSection `json:"sections"`
}

func scanDigest(row rowScanner) (*Digest, error) {
	var (
		digest       Digest
		sectionsJSON string
		createdAt    int64
	)
	if err := row.Scan(&digest.ID, &digest.Date, &digest.Title, &digest.Summary, &sectionsJSON, &createdAt); err != nil {
		return nil, err
	}

	var doc sectionsDocument
	if err := json.Unmarshal([]byte(sectionsJSON), &doc); err != nil {
		return nil, fmt.Errorf("failed to decode digest sections: %w", err)
	}
	digest.Sections = doc.Sections
	if digest.Sections == nil {
		digest.Sections = []DigestSection{}
	}
	digest.CreatedAt = fromMillis(createdAt)

	return &digest, nil
}

// UpsertDigest inserts the digest for its date or overwrites title, summary
// and sections of the existing row, keeping its identity
func (r *SQLDigestRepository) UpsertDigest(ctx context.Context, digest Digest) error {
	sections := digest.Sections
	if sections == nil {
		sections = []DigestSection{}
	}
	data, err := json.Marshal(sectionsDocument{Sections: sections})
	if err != nil {
		return fmt.Errorf("failed to encode digest sections: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO digests (id, date, title, summary, sections_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (date) DO UPDATE SET
			title = excluded.title,
			summary = excluded.summary,
			sections_json = excluded.sections_json
	`, digest.ID, digest.Date, digest.Title, digest.Summary, string(data), toMillis(digest.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert digest: %w", err)
	}

	return nil
}

func (r *SQLDigestRepository) GetDigest(ctx context.Context, date string) (*Digest, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, date, title, summary, sections_json, created_at
		FROM digests
		WHERE date = ?
	`, date)
	digest, err := scanDigest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get digest: %w", err)
	}
	return digest, nil
}

// ListDigests returns the most recent digests by date
func (r *SQLDigestRepository) ListDigests(ctx context.Context, limit int) ([]Digest, error) {
	query, args, err := sq.Select("id", "date", "title", "summary", "sections_json", "created_at").
		From("digests").
		OrderBy("date DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build digest query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list digests: %w", err)
	}
	defer rows.Close()

	var digests []Digest
	for rows.Next() {
		digest, err := scanDigest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan digest row: %w", err)
		}
		digests = append(digests, *digest)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating digest rows: %w", err)
	}

	return digests, nil
}
