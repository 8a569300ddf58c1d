package cron

import (
	"log"
	"os"
	"time"

	"livecam-dvr/config"
	"livecam-dvr/database"
	"livecam-dvr/metrics"
	"livecam-dvr/storage"

	"github.com/robfig/cron/v3"
)

// MaintenanceCron runs the periodic housekeeping jobs: reconciling the
// recording ledger against the filesystem, sweeping segment ring buffers for
// cameras whose worker died mid-cycle, and updating the retained-bytes gauge.
type MaintenanceCron struct {
	cron       *cron.Cron
	cfg        *config.Config
	db         database.Database
	segments   *storage.SegmentStore
	recordings *storage.RecordingStore
	metrics    *metrics.Metrics
}

// NewMaintenanceCron creates the maintenance scheduler. metrics may be nil.
func NewMaintenanceCron(cfg *config.Config, db database.Database, segments *storage.SegmentStore,
	recordings *storage.RecordingStore, m *metrics.Metrics) *MaintenanceCron {
	return &MaintenanceCron{
		cron:       cron.New(cron.WithSeconds()),
		cfg:        cfg,
		db:         db,
		segments:   segments,
		recordings: recordings,
		metrics:    m,
	}
}

// Start schedules the maintenance jobs and runs an initial reconciliation.
func (m *MaintenanceCron) Start() error {
	log.Println("Starting maintenance cron (reconcile hourly, segment sweep every 5 minutes)")

	// Ledger reconciliation at the top of every hour
	if _, err := m.cron.AddFunc("0 0 * * * *", m.runReconcile); err != nil {
		return err
	}

	// Segment sweep every 5 minutes
	if _, err := m.cron.AddFunc("0 */5 * * * *", m.runSegmentSweep); err != nil {
		return err
	}

	m.cron.Start()

	// Run initial reconciliation immediately so a restart cleans up stale
	// ledger rows before the first request arrives
	go m.runReconcile()
	return nil
}

// Stop stops the maintenance scheduler.
func (m *MaintenanceCron) Stop() {
	log.Println("Stopping maintenance cron")
	m.cron.Stop()
}

// orphanGrace is how long a deliverable without a ledger row may sit on disk
// before reconciliation deletes it. Long enough that a row insert racing the
// scan never loses a fresh file.
const orphanGrace = time.Hour

// runReconcile drops ledger rows whose deliverable no longer exists on disk
// and deletes unledgered deliverables past the orphan grace period.
func (m *MaintenanceCron) runReconcile() {
	log.Println("Running ledger reconciliation...")
	startTime := time.Now()

	paths, err := m.db.AllRecordingPaths()
	if err != nil {
		log.Printf("Reconciliation failed to read ledger: %v", err)
		return
	}

	ledgered := make(map[string]bool, len(paths))
	removed := 0
	for _, path := range paths {
		ledgered[path] = true
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := m.db.DeleteRecordingByPath(path); err != nil {
				log.Printf("Error dropping stale ledger row for %s: %v", path, err)
				continue
			}
			removed++
		}
	}

	orphans := 0
	for _, cam := range m.cfg.Cameras {
		recs, err := m.recordings.ListRecordings(cam.Name)
		if err != nil {
			log.Printf("[%s] Reconciliation listing error: %v", cam.Name, err)
			continue
		}
		for _, rec := range recs {
			if ledgered[rec.Path] {
				continue
			}
			if time.Since(rec.ModTime) < orphanGrace {
				log.Printf("[%s] Deliverable on disk without ledger row (recent, keeping): %s", cam.Name, rec.Name)
				continue
			}
			if err := os.Remove(rec.Path); err != nil {
				log.Printf("[%s] Error removing orphan deliverable %s: %v", cam.Name, rec.Name, err)
				continue
			}
			orphans++
			log.Printf("[%s] Removed orphan deliverable: %s", cam.Name, rec.Name)
		}
	}

	log.Printf("Ledger reconciliation completed in %v: %d stale rows removed, %d orphan files removed",
		time.Since(startTime), removed, orphans)
}

// runSegmentSweep enforces the ring buffer bound for every camera. The
// capture workers already clean up after each session; this catches cameras
// whose worker is stuck in backoff with a full directory.
func (m *MaintenanceCron) runSegmentSweep() {
	total := 0
	var totalBytes int64
	for _, cam := range m.cfg.Cameras {
		removed, err := m.segments.CleanupSegments(cam.Name)
		if err != nil {
			log.Printf("[%s] Segment sweep error: %v", cam.Name, err)
			continue
		}
		total += removed

		segs, err := m.segments.ListSegments(cam.Name)
		if err != nil {
			continue
		}
		for _, seg := range segs {
			totalBytes += seg.Size
		}
	}

	if m.metrics != nil {
		m.metrics.SetRetainedSegmentBytes(totalBytes)
	}
	if total > 0 {
		log.Printf("Segment sweep removed %d segments across all cameras", total)
	}
}
