package database

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteDB implements the Database interface using SQLite
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB creates a new SQLite database instance
func NewSQLiteDB(dbPath string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %v", err)
	}

	if err := initTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize tables: %v", err)
	}

	return &SQLiteDB{db: db}, nil
}

// initTables creates the necessary tables if they don't exist
func initTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS recordings (
			id TEXT PRIMARY KEY,
			camera_name TEXT NOT NULL,
			requested_minutes INTEGER NOT NULL,
			covered_seconds INTEGER NOT NULL,
			segment_count INTEGER NOT NULL,
			size INTEGER DEFAULT 0,
			local_path TEXT NOT NULL,
			archive_path TEXT,
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_recordings_camera_created
		ON recordings (camera_name, created_at)
	`)
	return err
}

// CreateRecording inserts a new deliverable ledger row
func (s *SQLiteDB) CreateRecording(meta RecordingMetadata) error {
	_, err := s.db.Exec(`
		INSERT INTO recordings (
			id, camera_name, requested_minutes, covered_seconds,
			segment_count, size, local_path, archive_path, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		meta.ID,
		meta.CameraName,
		meta.RequestedMinutes,
		meta.CoveredSeconds,
		meta.SegmentCount,
		meta.Size,
		meta.LocalPath,
		meta.ArchivePath,
		meta.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create recording: %v", err)
	}
	return nil
}

// LatestRecording returns the most recent deliverable for a camera, or nil
func (s *SQLiteDB) LatestRecording(cameraName string) (*RecordingMetadata, error) {
	recordings, err := s.ListRecordings(cameraName, 1)
	if err != nil {
		return nil, err
	}
	if len(recordings) == 0 {
		return nil, nil
	}
	return &recordings[0], nil
}

// ListRecordings returns a camera's deliverables, newest first
func (s *SQLiteDB) ListRecordings(cameraName string, limit int) ([]RecordingMetadata, error) {
	rows, err := s.db.Query(`
		SELECT id, camera_name, requested_minutes, covered_seconds,
		       segment_count, size, local_path, archive_path, created_at
		FROM recordings
		WHERE camera_name = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, cameraName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recordings: %v", err)
	}
	defer rows.Close()

	var recordings []RecordingMetadata
	for rows.Next() {
		var meta RecordingMetadata
		var archivePath sql.NullString
		if err := rows.Scan(
			&meta.ID,
			&meta.CameraName,
			&meta.RequestedMinutes,
			&meta.CoveredSeconds,
			&meta.SegmentCount,
			&meta.Size,
			&meta.LocalPath,
			&archivePath,
			&meta.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan recording: %v", err)
		}
		if archivePath.Valid {
			meta.ArchivePath = archivePath.String
		}
		recordings = append(recordings, meta)
	}
	return recordings, rows.Err()
}

// DeleteRecordingByPath removes the ledger row for a pruned file
func (s *SQLiteDB) DeleteRecordingByPath(localPath string) error {
	_, err := s.db.Exec(`DELETE FROM recordings WHERE local_path = ?`, localPath)
	if err != nil {
		return fmt.Errorf("failed to delete recording: %v", err)
	}
	return nil
}

// SetArchivePath records where a deliverable was archived
func (s *SQLiteDB) SetArchivePath(id, archivePath string) error {
	_, err := s.db.Exec(`UPDATE recordings SET archive_path = ? WHERE id = ?`, archivePath, id)
	if err != nil {
		return fmt.Errorf("failed to set archive path: %v", err)
	}
	return nil
}

// AllRecordingPaths returns every ledgered local path, for reconciliation
func (s *SQLiteDB) AllRecordingPaths() ([]string, error) {
	rows, err := s.db.Query(`SELECT local_path FROM recordings`)
	if err != nil {
		return nil, fmt.Errorf("failed to query recording paths: %v", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, fmt.Errorf("failed to scan path: %v", err)
		}
		paths = append(paths, path)
	}
	return paths, rows.Err()
}

// Stats aggregates the ledger
func (s *SQLiteDB) Stats() (RecordingStats, error) {
	var stats RecordingStats
	err := s.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(size), 0), COUNT(DISTINCT camera_name)
		FROM recordings
	`).Scan(&stats.TotalRecordings, &stats.TotalBytes, &stats.CamerasWithData)
	if err != nil {
		return stats, fmt.Errorf("failed to aggregate stats: %v", err)
	}
	return stats, nil
}

// GetDB exposes the underlying *sql.DB for maintenance queries
func (s *SQLiteDB) GetDB() *sql.DB {
	return s.db
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}
