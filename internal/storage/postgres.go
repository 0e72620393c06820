package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/bdougie/fieldscan/internal/models"
)

// PostgresStorage writes scans to PostgreSQL. Frame positions are stored as
// pgvector points so frames can be searched by distance.
type PostgresStorage struct {
	pool   *pgxpool.Pool
	scanID uuid.UUID
}

// NearbyFrame is a frame returned by SearchNearby.
type NearbyFrame struct {
	ScanID     uuid.UUID
	FrameIndex int
	ImagePath  string
	Position   models.GeoPoint
	Detections []models.Detection
	Distance   float64
}

// NewPostgresStorage connects to databaseURL.
func NewPostgresStorage(ctx context.Context, databaseURL string) (*PostgresStorage, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStorage{pool: pool}, nil
}

// Close closes the database connection
func (s *PostgresStorage) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *PostgresStorage) Begin(ctx context.Context, scan *models.ScanResult) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO scans (id, video_path, track_path, look_for, started_at)
		VALUES ($1, $2, $3, $4, $5)`,
		scan.ID, scan.VideoPath, scan.TrackPath, scan.LookFor, scan.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to create scan entry: %w", err)
	}
	s.scanID = scan.ID
	return nil
}

// AddRecord stores the frame and its detections in one transaction.
func (s *PostgresStorage) AddRecord(ctx context.Context, rec models.FrameRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var position *pgvector.Vector
	var lat, lon *float64
	if rec.Position != nil {
		v := pgvector.NewVector([]float32{float32(rec.Position.Latitude), float32(rec.Position.Longitude)})
		position = &v
		lat, lon = &rec.Position.Latitude, &rec.Position.Longitude
	}

	var frameID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO frames
		(scan_id, frame_index, image_path, gps_text, latitude, longitude, position, boxed_image_path, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		s.scanID, rec.FrameIndex, rec.ImagePath, rec.TelemetryText, lat, lon, position,
		nullable(rec.AnnotatedImagePath), time.Now()).Scan(&frameID)
	if err != nil {
		return fmt.Errorf("failed to store frame information: %w", err)
	}

	for _, d := range rec.Detections {
		var box []int32
		if d.Box != nil {
			box = []int32{int32(d.Box.X1), int32(d.Box.Y1), int32(d.Box.X2), int32(d.Box.Y2)}
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO detections (frame_id, object_type, report, confidence, box, extra)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			frameID, string(d.ObjectType), d.ReportText, d.Confidence, box, d.Extra)
		if err != nil {
			return fmt.Errorf("failed to store detection: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// Flush marks the scan finished. Records are already saved by AddRecord.
func (s *PostgresStorage) Flush(ctx context.Context, scan *models.ScanResult) error {
	if scan == nil {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE scans SET finished_at = $2, skipped = $3 WHERE id = $1`,
		scan.ID, scan.FinishedAt, len(scan.Skipped))
	if err != nil {
		return fmt.Errorf("failed to finish scan: %w", err)
	}
	return nil
}

// SearchNearby returns frames that have detections, closest to (lat, lon) first.
func (s *PostgresStorage) SearchNearby(ctx context.Context, lat, lon float64, limit int) ([]NearbyFrame, error) {
	query := pgvector.NewVector([]float32{float32(lat), float32(lon)})

	rows, err := s.pool.Query(ctx,
		`SELECT f.id, f.scan_id, f.frame_index, f.image_path, f.latitude, f.longitude,
		f.position <-> $1 AS distance
		FROM frames f
		WHERE f.position IS NOT NULL
		AND EXISTS (SELECT 1 FROM detections d WHERE d.frame_id = f.id)
		ORDER BY f.position <-> $1
		LIMIT $2`,
		query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search nearby frames: %w", err)
	}

	var (
		results []NearbyFrame
		ids     []int64
	)
	for rows.Next() {
		var (
			id int64
			nf NearbyFrame
		)
		if err := rows.Scan(&id, &nf.ScanID, &nf.FrameIndex, &nf.ImagePath,
			&nf.Position.Latitude, &nf.Position.Longitude, &nf.Distance); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan search results: %w", err)
		}
		ids = append(ids, id)
		results = append(results, nf)
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
		results[i].Detections = dets
	}
	return results, nil
}

func (s *PostgresStorage) detections(ctx context.Context, frameID int64) ([]models.Detection, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT object_type, report, confidence, box, extra
		FROM detections WHERE frame_id = $1 ORDER BY id`, frameID)
	if err != nil {
		return nil, fmt.Errorf("failed to load detections: %w", err)
	}
	defer rows.Close()

	var out []models.Detection
	for rows.Next() {
		var (
			d          models.Detection
			objectType string
			box        []int32
		)
		if err := rows.Scan(&objectType, &d.ReportText, &d.Confidence, &box, &d.Extra); err != nil {
			return nil, fmt.Errorf("failed to scan detection: %w", err)
		}
		d.ObjectType = models.ObjectType(objectType)
		if len(box) == 4 {
			d.Box = &models.BoundingBox{X1: int(box[0]), Y1: int(box[1]), X2: int(box[2]), Y2: int(box[3])}
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// InitSchema creates the database schema if it doesn't exist
func InitSchema(ctx context.Context, databaseURL string) error {
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	_, err = conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS scans (
			id UUID PRIMARY KEY,
			video_path TEXT NOT NULL,
			track_path TEXT NOT NULL,
			look_for TEXT NOT NULL,
			skipped INTEGER NOT NULL DEFAULT 0,
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ
		);

		CREATE TABLE IF NOT EXISTS frames (
			id BIGSERIAL PRIMARY KEY,
			scan_id UUID REFERENCES scans(id) ON DELETE CASCADE,
			frame_index INTEGER NOT NULL,
			image_path TEXT NOT NULL,
			gps_text TEXT NOT NULL,
			latitude DOUBLE PRECISION,
			longitude DOUBLE PRECISION,
			position vector(2),
			boxed_image_path TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			UNIQUE(scan_id, frame_index)
		);

		CREATE TABLE IF NOT EXISTS detections (
			id BIGSERIAL PRIMARY KEY,
			frame_id BIGINT REFERENCES frames(id) ON DELETE CASCADE,
			object_type TEXT NOT NULL,
			report TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			box INTEGER[],
			extra JSONB
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create database schema: %w", err)
	}

	_, err = conn.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS idx_frames_scan_id ON frames(scan_id);
		CREATE INDEX IF NOT EXISTS idx_detections_frame_id ON detections(frame_id);
		CREATE INDEX IF NOT EXISTS idx_frames_position ON frames USING hnsw (position vector_l2_ops);
	`)
	if err != nil {
		return fmt.Errorf("failed to create database indexes: %w", err)
	}

	return nil
}
