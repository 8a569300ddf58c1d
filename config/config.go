package config

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// CameraConfig holds configuration for a single live camera stream
type CameraConfig struct {
	Name      string `json:"name"`       // Display name (may contain non-ASCII characters)
	StreamURL string `json:"stream_url"` // HLS playlist URL (m3u8)
	Enabled   bool   `json:"enabled"`    // Whether this camera is captured
}

// Config contains all configuration for the application
type Config struct {
	// Capture Configuration
	SegmentDuration int           // Seconds per captured segment
	MaxSegments     int           // Ring buffer size per camera
	SessionDuration time.Duration // How long a single ffmpeg capture session runs before restart
	StopGrace       time.Duration // Grace period between SIGTERM and SIGKILL on session teardown
	RetryDelay      time.Duration // Backoff before retrying a failed capture session

	// Assembly Configuration
	MinDurationMinutes     int           // Lower bound for requested recording duration
	MaxDurationMinutes     int           // Upper bound for requested recording duration
	DefaultDurationMinutes int           // Duration used by warm listing when none requested
	KeepRecordings         int           // Deliverables kept per camera after pruning
	ConcatTimeout          time.Duration // Upper bound for a single ffmpeg concat run

	// Storage Configuration
	SegmentsPath   string // Root directory for per-camera segment ring buffers
	RecordingsPath string // Directory for assembled deliverables

	// Server Configuration
	ServerPort string

	// Database Configuration
	DatabasePath string

	// Classifier Configuration
	ClassifierURL     string // Endpoint of the external video classifier; empty disables it
	ClassifierTimeout time.Duration

	// Archive Configuration (S3-compatible, optional)
	ArchiveEnabled   bool
	ArchiveAccessKey string
	ArchiveSecretKey string
	ArchiveBucket    string
	ArchiveEndpoint  string
	ArchiveRegion    string

	// Camera table
	Cameras []CameraConfig
}

// defaultCameras is the built-in Istanbul municipal camera set, used when
// CAMERAS_CONFIG is not provided.
var defaultCameras = []CameraConfig{
	{Name: "KAPALI ÇARŞI", StreamURL: "https://livestream.ibb.gov.tr/cam_turistik/b_kapalicarsi.stream/playlist.m3u8", Enabled: true},
	{Name: "METROHAN", StreamURL: "https://livestream.ibb.gov.tr/cam_turistik/b_metrohan.stream/playlist.m3u8", Enabled: true},
	{Name: "SARAÇHANE", StreamURL: "https://livestream.ibb.gov.tr/cam_turistik/b_sarachane.stream/playlist.m3u8", Enabled: true},
	{Name: "SULTANAHMET 1", StreamURL: "https://livestream.ibb.gov.tr/cam_turistik/b_sultanahmet.stream/playlist.m3u8", Enabled: true},
	{Name: "TAKSİM MEYDANI", StreamURL: "https://livestream.ibb.gov.tr/cam_turistik/b_taksim_meydan.stream/playlist.m3u8", Enabled: true},
}

// LoadConfig loads configuration from environment variables
func LoadConfig() Config {
	cfg := Config{
		SegmentDuration: getEnvInt("SEGMENT_DURATION", 10),
		MaxSegments:     getEnvInt("MAX_SEGMENTS", 18),
		SessionDuration: time.Duration(getEnvInt("SESSION_DURATION", 180)) * time.Second,
		StopGrace:       time.Duration(getEnvInt("STOP_GRACE_SECONDS", 10)) * time.Second,
		RetryDelay:      time.Duration(getEnvInt("RETRY_DELAY_SECONDS", 10)) * time.Second,

		MinDurationMinutes:     1,
		MaxDurationMinutes:     10,
		DefaultDurationMinutes: getEnvInt("DEFAULT_RECORDING_MINUTES", 1),
		KeepRecordings:         getEnvInt("KEEP_RECORDINGS", 2),
		ConcatTimeout:          time.Duration(getEnvInt("CONCAT_TIMEOUT_SECONDS", 120)) * time.Second,

		SegmentsPath:   getEnv("SEGMENTS_PATH", "./segments"),
		RecordingsPath: getEnv("RECORDINGS_PATH", "./recordings"),

		ServerPort:   getEnv("SERVER_PORT", "8000"),
		DatabasePath: getEnv("DATABASE_PATH", "./data/recordings.db"),

		ClassifierURL:     getEnv("CLASSIFIER_URL", ""),
		ClassifierTimeout: time.Duration(getEnvInt("CLASSIFIER_TIMEOUT_SECONDS", 300)) * time.Second,

		ArchiveEnabled:   getEnv("ARCHIVE_ENABLED", "false") == "true",
		ArchiveAccessKey: getEnv("ARCHIVE_ACCESS_KEY", ""),
		ArchiveSecretKey: getEnv("ARCHIVE_SECRET_KEY", ""),
		ArchiveBucket:    getEnv("ARCHIVE_BUCKET", ""),
		ArchiveEndpoint:  getEnv("ARCHIVE_ENDPOINT", ""),
		ArchiveRegion:    getEnv("ARCHIVE_REGION", "auto"),
	}

	// Camera table: CAMERAS_CONFIG env overrides the built-in Istanbul set
	camerasJSON := getEnv("CAMERAS_CONFIG", "")
	if camerasJSON != "" {
		var envCams []CameraConfig
		if err := json.Unmarshal([]byte(camerasJSON), &envCams); err != nil {
			log.Printf("Warning: failed to parse CAMERAS_CONFIG, falling back to defaults: %v", err)
			cfg.Cameras = defaultCameras
		} else {
			cfg.Cameras = envCams
		}
	} else {
		cfg.Cameras = defaultCameras
	}

	log.Printf("Loaded configuration with %d cameras", len(cfg.Cameras))
	for i, camera := range cfg.Cameras {
		log.Printf("Camera %d: %s @ %s (Enabled: %v)", i+1, camera.Name, camera.StreamURL, camera.Enabled)
	}
	log.Printf("Segments: %s (ring of %d x %ds), Recordings: %s (keep %d)",
		cfg.SegmentsPath, cfg.MaxSegments, cfg.SegmentDuration, cfg.RecordingsPath, cfg.KeepRecordings)
	log.Printf("Server running on port %s", cfg.ServerPort)

	return cfg
}

// EnsurePaths creates necessary directories
func EnsurePaths(cfg Config) {
	dirs := []string{
		cfg.SegmentsPath,
		cfg.RecordingsPath,
		filepath.Dir(cfg.DatabasePath),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Printf("Failed to create directory %s: %v", dir, err)
		}
	}
}

// getEnv returns environment variable or fallback value
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt returns an integer environment variable or fallback value
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		log.Printf("Warning: invalid integer for %s, using default %d", key, fallback)
	}
	return fallback
}
