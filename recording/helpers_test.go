package recording

import (
	"context"
	"sync"
	"time"

	"livecam-dvr/config"
	"livecam-dvr/database"
)

// stubRunner records every command and delegates to an injectable function,
// so the capture loop and assembler run without spawning subprocesses.
type stubRunner struct {
	mu    sync.Mutex
	calls []Command
	run   func(ctx context.Context, cmd Command) ([]byte, error)
}

func (s *stubRunner) Run(ctx context.Context, cmd Command) ([]byte, error) {
	s.mu.Lock()
	s.calls = append(s.calls, cmd)
	s.mu.Unlock()
	if s.run != nil {
		return s.run(ctx, cmd)
	}
	return nil, nil
}

func (s *stubRunner) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *stubRunner) lastCall() Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[len(s.calls)-1]
}

// fakeDB is an in-memory ledger for assembler tests.
type fakeDB struct {
	mu      sync.Mutex
	created []database.RecordingMetadata
	deleted []string
}

func (f *fakeDB) CreateRecording(meta database.RecordingMetadata) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, meta)
	return nil
}

func (f *fakeDB) LatestRecording(cameraName string) (*database.RecordingMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.created) - 1; i >= 0; i-- {
		if f.created[i].CameraName == cameraName {
			meta := f.created[i]
			return &meta, nil
		}
	}
	return nil, nil
}

func (f *fakeDB) ListRecordings(cameraName string, limit int) ([]database.RecordingMetadata, error) {
	return nil, nil
}

func (f *fakeDB) DeleteRecordingByPath(localPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, localPath)
	return nil
}

func (f *fakeDB) SetArchivePath(id, archivePath string) error { return nil }

func (f *fakeDB) AllRecordingPaths() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	paths := make([]string, 0, len(f.created))
	for _, meta := range f.created {
		paths = append(paths, meta.LocalPath)
	}
	return paths, nil
}

func (f *fakeDB) Stats() (database.RecordingStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return database.RecordingStats{TotalRecordings: len(f.created)}, nil
}

func (f *fakeDB) Close() error { return nil }

func testCaptureConfig() *config.Config {
	return &config.Config{
		SegmentDuration:    10,
		MaxSegments:        18,
		SessionDuration:    180 * time.Second,
		StopGrace:          10 * time.Second,
		RetryDelay:         10 * time.Second,
		MinDurationMinutes: 1,
		MaxDurationMinutes: 10,
		KeepRecordings:     2,
		ConcatTimeout:      120 * time.Second,
	}
}
