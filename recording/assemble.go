package recording

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"livecam-dvr/config"
	"livecam-dvr/database"
	"livecam-dvr/metrics"
	"livecam-dvr/storage"
)

// Assembler produces one contiguous deliverable MP4 covering up to a
// requested duration from the most recent segments available. Assembly is
// read-only against the segment ring buffer and never blocks live capture.
//
// Not idempotent by design: every call produces a new file because the
// segment window moves; two calls within the same window yield equivalent
// content under different names.
type Assembler struct {
	cfg        *config.Config
	segments   *storage.SegmentStore
	recordings *storage.RecordingStore
	db         database.Database
	runner     Runner
	archive    *storage.ArchiveStorage
	metrics    *metrics.Metrics

	// findTool resolves the ffmpeg binary. Injected so tests run without one.
	findTool func() (string, error)

	mu         sync.Mutex
	ffmpegPath string
}

// NewAssembler creates an assembler. archive may be nil when archiving is
// disabled; metrics may be nil in tests.
func NewAssembler(cfg *config.Config, segments *storage.SegmentStore, recordings *storage.RecordingStore,
	db database.Database, runner Runner, archive *storage.ArchiveStorage, m *metrics.Metrics) *Assembler {
	return &Assembler{
		cfg:        cfg,
		segments:   segments,
		recordings: recordings,
		db:         db,
		runner:     runner,
		archive:    archive,
		metrics:    m,
		findTool:   FindFFmpeg,
	}
}

// RequiredSegments returns how many segments cover the requested minutes.
func (a *Assembler) RequiredSegments(minutes int) int {
	seconds := minutes * 60
	d := a.segments.SegmentDuration()
	return (seconds + d - 1) / d
}

// ValidateDuration rejects out-of-range durations before any work is
// attempted. Requests are rejected, not clamped.
func (a *Assembler) ValidateDuration(minutes int) error {
	if minutes < a.cfg.MinDurationMinutes || minutes > a.cfg.MaxDurationMinutes {
		return NewValidationError("duration must be between %d and %d minutes, got %d",
			a.cfg.MinDurationMinutes, a.cfg.MaxDurationMinutes, minutes)
	}
	return nil
}

// Assemble selects the newest segments covering minutes of footage,
// stream-copies them into one MP4 deliverable and records it in the ledger.
// Fewer segments than requested is a degraded result, not an error; the
// returned metadata reports the actually covered seconds.
func (a *Assembler) Assemble(ctx context.Context, cameraName string, minutes int) (*database.RecordingMetadata, error) {
	if err := a.ValidateDuration(minutes); err != nil {
		return nil, err
	}

	selected, err := a.segments.RecentSegments(cameraName, a.RequiredSegments(minutes))
	if err != nil {
		return nil, fmt.Errorf("failed to select segments: %w", err)
	}

	// A zero-size file is a chunk the capture session is still writing.
	valid := selected[:0]
	for _, seg := range selected {
		if seg.Size > 0 {
			valid = append(valid, seg)
		}
	}
	if len(valid) == 0 {
		return nil, ErrNoSegments
	}

	ffmpegPath, err := a.findFFmpeg()
	if err != nil {
		return nil, err
	}

	invocationID := uuid.NewString()[:8]
	outputPath := a.recordings.OutputPath(cameraName, minutes, invocationID)

	listPath, err := a.writeConcatList(cameraName, invocationID, valid)
	if err != nil {
		return nil, err
	}
	defer os.Remove(listPath)

	log.Printf("[%s] Assembling %d segments into %s", cameraName, len(valid), filepath.Base(outputPath))
	output, err := a.runner.Run(ctx, ConcatCommand(ffmpegPath, listPath, outputPath, a.cfg.ConcatTimeout))
	if err != nil {
		os.Remove(outputPath) // never leave a partial deliverable behind
		if a.metrics != nil {
			a.metrics.IncAssemblyFailures()
		}
		if errors.Is(err, ErrToolMissing) {
			return nil, err
		}
		return nil, &AssemblyError{Diagnostic: string(output), Err: err}
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		if a.metrics != nil {
			a.metrics.IncAssemblyFailures()
		}
		return nil, &AssemblyError{Diagnostic: string(output), Err: fmt.Errorf("output file missing: %w", err)}
	}

	meta := database.RecordingMetadata{
		ID:               uuid.NewString(),
		CameraName:       cameraName,
		RequestedMinutes: minutes,
		CoveredSeconds:   a.segments.CoveredSeconds(len(valid)),
		SegmentCount:     len(valid),
		Size:             info.Size(),
		LocalPath:        outputPath,
		CreatedAt:        time.Now(),
	}
	if err := a.db.CreateRecording(meta); err != nil {
		log.Printf("[%s] Error recording deliverable in ledger: %v", cameraName, err)
	}

	a.pruneOld(cameraName)

	if a.archive != nil {
		go a.archiveRecording(meta)
	}
	if a.metrics != nil {
		a.metrics.IncAssemblies()
	}

	log.Printf("[%s] Assembled %s: %d segments, %ds covered, %.2f MB",
		cameraName, filepath.Base(outputPath), meta.SegmentCount, meta.CoveredSeconds,
		float64(meta.Size)/(1024*1024))
	return &meta, nil
}

// writeConcatList writes the newline-delimited file list consumed by the
// concat demuxer, with absolute paths so the working directory is irrelevant.
func (a *Assembler) writeConcatList(cameraName, invocationID string, segments []storage.SegmentInfo) (string, error) {
	listPath := filepath.Join(a.recordings.Dir(),
		fmt.Sprintf("%s_filelist_%s.txt", storage.SanitizeName(cameraName), invocationID))
	f, err := os.Create(listPath)
	if err != nil {
		return "", fmt.Errorf("failed to create concat list file: %w", err)
	}

	for _, seg := range segments {
		absPath, err := filepath.Abs(seg.Path)
		if err != nil {
			f.Close()
			os.Remove(listPath)
			return "", fmt.Errorf("failed to resolve segment path: %w", err)
		}
		if _, err := fmt.Fprintf(f, "file '%s'\n", absPath); err != nil {
			f.Close()
			os.Remove(listPath)
			return "", fmt.Errorf("failed to write concat list: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		os.Remove(listPath)
		return "", fmt.Errorf("failed to close concat list: %w", err)
	}
	return listPath, nil
}

// pruneOld keeps only the newest K deliverables for the camera and drops
// ledger rows for the files it removed.
func (a *Assembler) pruneOld(cameraName string) {
	removed, err := a.recordings.Prune(cameraName, a.cfg.KeepRecordings)
	if err != nil {
		log.Printf("[%s] Recording prune error: %v", cameraName, err)
		return
	}
	for _, path := range removed {
		if err := a.db.DeleteRecordingByPath(path); err != nil {
			log.Printf("[%s] Error removing pruned recording from ledger: %v", cameraName, err)
		}
	}
}

func (a *Assembler) archiveRecording(meta database.RecordingMetadata) {
	remotePath, err := a.archive.UploadRecording(meta.LocalPath)
	if err != nil {
		log.Printf("[%s] Archive upload failed for %s: %v", meta.CameraName, filepath.Base(meta.LocalPath), err)
		return
	}
	if err := a.db.SetArchivePath(meta.ID, remotePath); err != nil {
		log.Printf("[%s] Error saving archive path: %v", meta.CameraName, err)
	}
}

// findFFmpeg resolves and caches the ffmpeg path.
func (a *Assembler) findFFmpeg() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ffmpegPath != "" {
		return a.ffmpegPath, nil
	}
	path, err := a.findTool()
	if err != nil {
		return "", err
	}
	a.ffmpegPath = path
	return path, nil
}
