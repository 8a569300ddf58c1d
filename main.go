package main

import (
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"livecam-dvr/api"
	"livecam-dvr/classify"
	"livecam-dvr/config"
	"livecam-dvr/cron"
	"livecam-dvr/database"
	"livecam-dvr/metrics"
	"livecam-dvr/monitoring"
	"livecam-dvr/recording"
	"livecam-dvr/storage"

	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables from .env file if present
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.LoadConfig()
	config.EnsurePaths(cfg)

	db, err := database.NewSQLiteDB(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	segments := storage.NewSegmentStore(cfg.SegmentsPath, cfg.MaxSegments, cfg.SegmentDuration)
	recordings := storage.NewRecordingStore(cfg.RecordingsPath)
	m := metrics.New()

	var archive *storage.ArchiveStorage
	if cfg.ArchiveEnabled {
		archive, err = storage.NewArchiveStorage(storage.ArchiveConfig{
			AccessKey: cfg.ArchiveAccessKey,
			SecretKey: cfg.ArchiveSecretKey,
			Bucket:    cfg.ArchiveBucket,
			Endpoint:  cfg.ArchiveEndpoint,
			Region:    cfg.ArchiveRegion,
		})
		if err != nil {
			log.Printf("Archive storage disabled: %v", err)
			archive = nil
		}
	}

	runner := recording.ExecRunner{}
	capture := recording.NewCaptureManager(&cfg, segments, runner, m)
	assembler := recording.NewAssembler(&cfg, segments, recordings, db, runner, archive, m)

	var classifier classify.Classifier = classify.Disabled{}
	if cfg.ClassifierURL != "" {
		classifier = classify.NewHTTPClassifier(cfg.ClassifierURL, cfg.ClassifierTimeout)
		log.Printf("Classifier enabled at %s", cfg.ClassifierURL)
	}

	// Capture starts immediately; missing ffmpeg degrades to serving
	// previously assembled deliverables instead of exiting.
	if err := capture.StartAll(); err != nil {
		if errors.Is(err, recording.ErrToolMissing) {
			log.Printf("WARNING: ffmpeg not found, capture disabled. Existing recordings remain available.")
		} else {
			log.Printf("WARNING: failed to start capture workers: %v", err)
		}
	}

	maintenance := cron.NewMaintenanceCron(&cfg, db, segments, recordings, m)
	if err := maintenance.Start(); err != nil {
		log.Printf("Failed to start maintenance cron: %v", err)
	}

	monitoring.StartMonitoring(5 * time.Minute)

	// Stop workers cleanly on SIGINT/SIGTERM so ffmpeg children get their
	// grace period instead of being orphaned
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received %v, shutting down", sig)
		capture.StopAll()
		maintenance.Stop()
		db.Close()
		os.Exit(0)
	}()

	server := api.NewServer(&cfg, db, segments, recordings, assembler, capture, classifier, m)
	if err := server.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
