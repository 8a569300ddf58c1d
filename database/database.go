package database

import "time"

// RecordingMetadata is the ledger row for one assembled deliverable.
// The filesystem stays the source of truth for the bytes; the ledger exists
// so stats and listings don't rescan every file.
type RecordingMetadata struct {
	ID               string    `json:"id"`
	CameraName       string    `json:"camera_name"`
	RequestedMinutes int       `json:"requested_minutes"`
	CoveredSeconds   int       `json:"covered_seconds"`
	SegmentCount     int       `json:"segment_count"`
	Size             int64     `json:"size"`
	LocalPath        string    `json:"local_path"`
	ArchivePath      string    `json:"archive_path,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// RecordingStats aggregates the ledger for the stats endpoint.
type RecordingStats struct {
	TotalRecordings int
	TotalBytes      int64
	CamerasWithData int
}

// Database defines the operations used by the assembler, API and cron.
type Database interface {
	CreateRecording(meta RecordingMetadata) error
	LatestRecording(cameraName string) (*RecordingMetadata, error)
	ListRecordings(cameraName string, limit int) ([]RecordingMetadata, error)
	DeleteRecordingByPath(localPath string) error
	SetArchivePath(id, archivePath string) error
	AllRecordingPaths() ([]string, error)
	Stats() (RecordingStats, error)
	Close() error
}
