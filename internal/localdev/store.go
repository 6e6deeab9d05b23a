// Package localdev provides a stand-alone implementation of the detection backend
// for local development and end-to-end tests.
package localdev

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/persondetect/detect-console/internal/models"
)

// timestampLayout matches the zone-less ISO form the real backend emits.
const timestampLayout = "2006-01-02T15:04:05.000000"

// Detection is one stored detection in its wire shape.
type Detection struct {
	ID                int64   `json:"id"`
	Timestamp         string  `json:"timestamp"`
	NumPeople         int     `json:"num_people"`
	OriginalImagePath string  `json:"original_image_path"`
	DetectedImagePath string  `json:"detected_image_path"`
	ConfidenceScore   float64 `json:"confidence_score"`
	ProcessingTime    float64 `json:"processing_time"`
}

// ErrNotFound reports an unknown detection id.
var ErrNotFound = errors.New("detection not found")

// Store persists detections in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (creating when needed) the database at path. Use ":memory:"
// for a throwaway store.
func NewSQLiteStore(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite path required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS detections (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  timestamp TEXT NOT NULL,
  num_people INTEGER NOT NULL DEFAULT 0,
  original_image_path TEXT NOT NULL,
  detected_image_path TEXT NOT NULL,
  confidence_score REAL NOT NULL DEFAULT 0,
  processing_time REAL NOT NULL DEFAULT 0
);
`); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_detections_timestamp ON detections(timestamp);`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Insert stores d, stamping it with the current time, and returns it with its id.
func (s *Store) Insert(ctx context.Context, d Detection) (Detection, error) {
	d.Timestamp = s.now().UTC().Format(timestampLayout)
	res, err := s.db.ExecContext(ctx, `
INSERT INTO detections (timestamp, num_people, original_image_path, detected_image_path, confidence_score, processing_time)
VALUES (?, ?, ?, ?, ?, ?);
`, d.Timestamp, d.NumPeople, d.OriginalImagePath, d.DetectedImagePath, d.ConfidenceScore, d.ProcessingTime)
	if err != nil {
		return Detection{}, fmt.Errorf("insert detection: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Detection{}, fmt.Errorf("insert detection: %w", err)
	}
	d.ID = id
	return d, nil
}

// Get returns one detection or ErrNotFound.
func (s *Store) Get(ctx context.Context, id int64) (Detection, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, timestamp, num_people, original_image_path, detected_image_path, confidence_score, processing_time
FROM detections
WHERE id = ?;
`, id)
	d, err := scanDetection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Detection{}, ErrNotFound
	}
	return d, err
}

// List returns the filtered detections newest first, plus the filtered total.
func (s *Store) List(ctx context.Context, filter models.FilterCriteria, skip, limit int) ([]Detection, int, error) {
	where := " WHERE 1=1"
	args := []any{}
	if filter.MinPeople != nil {
		where += " AND num_people >= ?"
		args = append(args, *filter.MinPeople)
	}
	if filter.MaxPeople != nil {
		where += " AND num_people <= ?"
		args = append(args, *filter.MaxPeople)
	}
	if filter.MinConfidence != nil {
		where += " AND confidence_score >= ?"
		args = append(args, *filter.MinConfidence)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM detections"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count detections: %w", err)
	}

	query := `SELECT id, timestamp, num_people, original_image_path, detected_image_path, confidence_score, processing_time
FROM detections` + where + " ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?"
	rows, err := s.db.QueryContext(ctx, query, append(args, limit, skip)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list detections: %w", err)
	}
	defer rows.Close()

	out := make([]Detection, 0, limit)
	for rows.Next() {
		d, err := scanDetection(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Delete removes one detection and returns it so its files can be cleaned up.
func (s *Store) Delete(ctx context.Context, id int64) (Detection, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return Detection{}, err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM detections WHERE id = ?;`, id); err != nil {
		return Detection{}, fmt.Errorf("delete detection %d: %w", id, err)
	}
	return d, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDetection(row scanner) (Detection, error) {
	var d Detection
	err := row.Scan(&d.ID, &d.Timestamp, &d.NumPeople, &d.OriginalImagePath, &d.DetectedImagePath, &d.ConfidenceScore, &d.ProcessingTime)
	return d, err
}
