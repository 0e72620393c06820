package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver registration

	"github.com/bdougie/fieldscan/internal/models"
)

// SQLiteStorage keeps scans in a local SQLite file, for runs without a
// Postgres server.
type SQLiteStorage struct {
	db     *sql.DB
	scanID uuid.UUID
}

// NewSQLiteStorage opens or creates the database at dataSourceName.
func NewSQLiteStorage(dataSourceName string) (*SQLiteStorage, error) {
	dbPath := dataSourceName
	if idx := strings.Index(dataSourceName, "?"); idx != -1 {
		dbPath = dataSourceName[:idx]
	}
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("error creating database directory: %w", err)
		}
	}

	if !strings.Contains(dataSourceName, "_busy_timeout") {
		if strings.Contains(dataSourceName, "?") {
			dataSourceName += "&_busy_timeout=5000"
		} else {
			dataSourceName += "?_busy_timeout=5000"
		}
	}

	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("error connecting to SQLite: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating tables: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS scans (
		id TEXT PRIMARY KEY,
		video_path TEXT NOT NULL,
		track_path TEXT NOT NULL,
		look_for TEXT NOT NULL,
		skipped INTEGER NOT NULL DEFAULT 0,
		started_at DATETIME NOT NULL,
		finished_at DATETIME
	);
	CREATE TABLE IF NOT EXISTS frames (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		scan_id TEXT NOT NULL REFERENCES scans(id) ON DELETE CASCADE,
		frame_index INTEGER NOT NULL,
		image_path TEXT NOT NULL,
		gps_text TEXT NOT NULL,
		latitude REAL,
		longitude REAL,
		boxed_image_path TEXT,
		UNIQUE(scan_id, frame_index)
	);
	CREATE TABLE IF NOT EXISTS detections (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		frame_id INTEGER NOT NULL REFERENCES frames(id) ON DELETE CASCADE,
		object_type TEXT NOT NULL,
		report TEXT NOT NULL,
		confidence REAL NOT NULL,
		box TEXT,
		extra TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_frames_location ON frames(latitude, longitude);
	CREATE INDEX IF NOT EXISTS idx_detections_frame_id ON detections(frame_id);
	`)
	return err
}

func (s *SQLiteStorage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStorage) Begin(ctx context.Context, scan *models.ScanResult) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO scans (id, video_path, track_path, look_for, started_at) VALUES (?, ?, ?, ?, ?)",
		scan.ID.String(), scan.VideoPath, scan.TrackPath, scan.LookFor, scan.StartedAt)
	if err != nil {
		return fmt.Errorf("error creating scan: %w", err)
	}
	s.scanID = scan.ID
	return nil
}

func (s *SQLiteStorage) AddRecord(ctx context.Context, rec models.FrameRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	var lat, lon sql.NullFloat64
	if rec.Position != nil {
		lat = sql.NullFloat64{Float64: rec.Position.Latitude, Valid: true}
		lon = sql.NullFloat64{Float64: rec.Position.Longitude, Valid: true}
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO frames (scan_id, frame_index, image_path, gps_text, latitude, longitude, boxed_image_path)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.scanID.String(), rec.FrameIndex, rec.ImagePath, rec.TelemetryText, lat, lon,
		sql.NullString{String: rec.AnnotatedImagePath, Valid: rec.AnnotatedImagePath != ""})
	if err != nil {
		return fmt.Errorf("error inserting frame: %w", err)
	}
	frameID, err := res.LastInsertId()
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO detections (frame_id, object_type, report, confidence, box, extra) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("error preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, d := range rec.Detections {
		var box, extra sql.NullString
		if d.Box != nil {
			box = sql.NullString{String: d.Box.String(), Valid: true}
		}
		if len(d.Extra) > 0 {
			data, err := json.Marshal(d.Extra)
			if err != nil {
				return err
			}
			extra = sql.NullString{String: string(data), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, frameID, string(d.ObjectType), d.ReportText, d.Confidence, box, extra); err != nil {
			return fmt.Errorf("error inserting detection: %w", err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStorage) Flush(ctx context.Context, scan *models.ScanResult) error {
	if scan == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		"UPDATE scans SET finished_at = ?, skipped = ? WHERE id = ?",
		scan.FinishedAt, len(scan.Skipped), scan.ID.String())
	return err
}

// Records loads the frame records stored for a scan, ordered by frame.
func (s *SQLiteStorage) Records(ctx context.Context, scanID uuid.UUID) ([]models.FrameRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, frame_index, image_path, gps_text, latitude, longitude, boxed_image_path
		FROM frames WHERE scan_id = ? ORDER BY frame_index`, scanID.String())
	if err != nil {
		return nil, fmt.Errorf("error querying frames: %w", err)
	}

	var (
		records []models.FrameRecord
		ids     []int64
	)
	for rows.Next() {
		var (
			id       int64
			rec      models.FrameRecord
			lat, lon sql.NullFloat64
			boxed    sql.NullString
		)
		if err := rows.Scan(&id, &rec.FrameIndex, &rec.ImagePath, &rec.TelemetryText, &lat, &lon, &boxed); err != nil {
			rows.Close()
			return nil, fmt.Errorf("error scanning row: %w", err)
		}
		if lat.Valid && lon.Valid {
			rec.Position = &models.GeoPoint{Latitude: lat.Float64, Longitude: lon.Float64}
		}
		rec.AnnotatedImagePath = boxed.String
		ids = append(ids, id)
		records = append(records, rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, id := range ids {
		dets, err := s.detections(ctx, id)
		if err != nil {
			return nil, err
		}
		records[i].Detections = dets
	}
	return records, nil
}

func (s *SQLiteStorage) detections(ctx context.Context, frameID int64) ([]models.Detection, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT object_type, report, confidence, box, extra FROM detections WHERE frame_id = ? ORDER BY id", frameID)
	if err != nil {
		return nil, fmt.Errorf("error querying detections: %w", err)
	}
	defer rows.Close()

	var out []models.Detection
	for rows.Next() {
		var (
			d          models.Detection
			objectType string
			box, extra sql.NullString
		)
		if err := rows.Scan(&objectType, &d.ReportText, &d.Confidence, &box, &extra); err != nil {
			return nil, fmt.Errorf("error scanning row: %w", err)
		}
		d.ObjectType = models.ObjectType(objectType)
		if box.Valid {
			if d.Box, err = parseBox(box.String); err != nil {
				return nil, err
			}
		}
		if extra.Valid {
			if err := json.Unmarshal([]byte(extra.String), &d.Extra); err != nil {
				return nil, fmt.Errorf("error decoding extra: %w", err)
			}
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
