package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// SQLSummaryRepository handles database operations for item summaries
type SQLSummaryRepository struct {
	db *DB
}

var _ SummaryRepository = (*SQLSummaryRepository)(nil)

func NewSummaryRepository(db *DB) *SQLSummaryRepository {
	return &SQLSummaryRepository{db: db}
}

func (r *SQLSummaryRepository) GetSummary(ctx context.Context, itemID, model string) (*Summary, error) {
	var (
		summary       Summary
		keyPointsJSON sql.NullString
		sentiment     sql.NullString
		createdAt     int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, item_id, model, summary, key_points_json, sentiment, created_at
		FROM summaries
		WHERE item_id = ? AND model = ?
	`, itemID, model).Scan(
		&summary.ID, &summary.ItemID, &summary.Model, &summary.Summary,
		&keyPointsJSON, &sentiment, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get summary: %w", err)
	}

	summary.KeyPoints = []string{}
	if keyPointsJSON.Valid && keyPointsJSON.String != "" {
		if err := json.Unmarshal([]byte(keyPointsJSON.String), &summary.KeyPoints); err != nil {
			return nil, fmt.Errorf("failed to decode key points: %w", err)
		}
	}
	summary.Sentiment = fromNullString(sentiment)
	summary.CreatedAt = fromMillis(createdAt)

	return &summary, nil
}

// InsertSummary stores a summary unless one already exists for (item, model).
// Key points are stored as a JSON list, or NULL when there are none.
func (r *SQLSummaryRepository) InsertSummary(ctx context.Context, summary Summary) (bool, error) {
	var keyPoints sql.NullString
	if len(summary.KeyPoints) > 0 {
		data, err := json.Marshal(summary.KeyPoints)
		if err != nil {
			return false, fmt.Errorf("failed to encode key points: %w", err)
		}
		keyPoints = sql.NullString{String: string(data), Valid: true}
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO summaries (id, item_id, model, summary, key_points_json, sentiment, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (item_id, model) DO NOTHING
	`, summary.ID, summary.ItemID, summary.Model, summary.Summary, keyPoints,
		nullString(summary.Sentiment), toMillis(summary.CreatedAt))
	if err != nil {
		return false, fmt.Errorf("failed to insert summary: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return affected > 0, nil
}
