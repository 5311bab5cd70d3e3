package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmylchreest/herbscan-api/internal/models"
)

// ========================================
// Scan Repository
// ========================================

// SQLiteScanRepository implements ScanRepository for SQLite.
type SQLiteScanRepository struct {
	db *sql.DB
}

// NewSQLiteScanRepository creates a new SQLite scan repository.
func NewSQLiteScanRepository(db *sql.DB) *SQLiteScanRepository {
	return &SQLiteScanRepository{db: db}
}

func (r *SQLiteScanRepository) Create(ctx context.Context, scan *models.Scan) error {
	query := `INSERT INTO scans (id, user_id, top_species, top_common_name, confidence, thumbnail_url, image_key, raw_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var rawJSON *string
	if len(scan.RawJSON) > 0 {
		s := string(scan.RawJSON)
		rawJSON = &s
	}

	_, err := r.db.ExecContext(ctx, query,
		scan.ID, scan.UserID, scan.TopSpecies, scan.TopCommonName, scan.Confidence,
		nullString(scan.ThumbnailURL), nullString(scan.ImageKey), rawJSON, formatTime(scan.CreatedAt))
	return err
}

func (r *SQLiteScanRepository) CountSince(ctx context.Context, userID string, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM scans WHERE user_id = ? AND created_at >= ?`
	var count int
	err := r.db.QueryRowContext(ctx, query, userID, formatTime(since)).Scan(&count)
	return count, err
}

func (r *SQLiteScanRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Scan, error) {
	query := `SELECT id, user_id, top_species, top_common_name, confidence, thumbnail_url, image_key, raw_json, created_at
		FROM scans WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`

	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var scans []*models.Scan
	for rows.Next() {
		var s models.Scan
		var topSpecies, topCommonName, thumbnailURL, imageKey, rawJSON sql.NullString
		var confidence sql.NullFloat64
		var createdAt string

		if err := rows.Scan(&s.ID, &s.UserID, &topSpecies, &topCommonName, &confidence, &thumbnailURL, &imageKey, &rawJSON, &createdAt); err != nil {
			return nil, err
		}

		s.TopSpecies = topSpecies.String
		s.TopCommonName = topCommonName.String
		s.Confidence = confidence.Float64
		s.ThumbnailURL = thumbnailURL.String
		s.ImageKey = imageKey.String
		if rawJSON.Valid {
			s.RawJSON = []byte(rawJSON.String)
		}
		s.CreatedAt = parseTime(createdAt)

		scans = append(scans, &s)
	}

	return scans, rows.Err()
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
