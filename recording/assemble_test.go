package recording

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"livecam-dvr/storage"
)

func newTestAssembler(t *testing.T, runner Runner) (*Assembler, *storage.SegmentStore, *storage.RecordingStore, *fakeDB) {
	t.Helper()
	cfg := testCaptureConfig()
	cfg.SegmentsPath = t.TempDir()
	cfg.RecordingsPath = t.TempDir()

	segments := storage.NewSegmentStore(cfg.SegmentsPath, cfg.MaxSegments, cfg.SegmentDuration)
	recordings := storage.NewRecordingStore(cfg.RecordingsPath)
	db := &fakeDB{}

	a := NewAssembler(cfg, segments, recordings, db, runner, nil, nil)
	a.findTool = func() (string, error) { return "/usr/bin/ffmpeg", nil }
	return a, segments, recordings, db
}

func writeTestSegment(t *testing.T, segments *storage.SegmentStore, camera, name string, size int, age time.Duration) {
	t.Helper()
	dir, err := segments.CameraDir(camera)
	if err != nil {
		t.Fatalf("CameraDir failed: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, make([]byte, size), 0644); err != nil {
		t.Fatalf("Failed to write segment: %v", err)
	}
	mtime := time.Now().Add(-age)
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("Failed to set mtime: %v", err)
	}
}

// concatStub simulates a successful ffmpeg concat: it captures the list file
// contents (deleted after assembly) and creates the output file.
type concatStub struct {
	stubRunner
	listContents string
}

func newConcatStub(outputSize int) *concatStub {
	s := &concatStub{}
	s.run = func(ctx context.Context, cmd Command) ([]byte, error) {
		listPath := argValueRaw(cmd.Args, "-i")
		if data, err := os.ReadFile(listPath); err == nil {
			s.listContents = string(data)
		}
		outputPath := cmd.Args[len(cmd.Args)-1]
		return nil, os.WriteFile(outputPath, make([]byte, outputSize), 0644)
	}
	return s
}

func argValueRaw(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func TestRequiredSegments(t *testing.T) {
	a, _, _, _ := newTestAssembler(t, &stubRunner{})

	tests := []struct {
		minutes  int
		expected int
	}{
		{1, 6},
		{2, 12},
		{3, 18},
		{10, 60},
	}
	for _, tt := range tests {
		if got := a.RequiredSegments(tt.minutes); got != tt.expected {
			t.Errorf("RequiredSegments(%d) = %d, expected %d", tt.minutes, got, tt.expected)
		}
	}
}

func TestValidateDuration(t *testing.T) {
	a, _, _, _ := newTestAssembler(t, &stubRunner{})

	for _, minutes := range []int{1, 5, 10} {
		if err := a.ValidateDuration(minutes); err != nil {
			t.Errorf("ValidateDuration(%d) unexpected error: %v", minutes, err)
		}
	}
	for _, minutes := range []int{0, -1, 11, 100} {
		err := a.ValidateDuration(minutes)
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Errorf("ValidateDuration(%d) expected ValidationError, got %v", minutes, err)
		}
	}
}

func TestAssembleRejectsOutOfRange(t *testing.T) {
	a, _, _, _ := newTestAssembler(t, &stubRunner{})
	_, err := a.Assemble(context.Background(), "TEST CAM", 11)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("Expected ValidationError, got %v", err)
	}
}

func TestAssembleNoSegments(t *testing.T) {
	a, _, _, _ := newTestAssembler(t, &stubRunner{})
	_, err := a.Assemble(context.Background(), "TEST CAM", 1)
	if !errors.Is(err, ErrNoSegments) {
		t.Fatalf("Expected ErrNoSegments, got %v", err)
	}
}

func TestAssembleOnlyZeroSizeSegments(t *testing.T) {
	runner := &stubRunner{}
	a, segments, _, _ := newTestAssembler(t, runner)
	writeTestSegment(t, segments, "TEST CAM", "seg_000.ts", 0, 5*time.Second)

	_, err := a.Assemble(context.Background(), "TEST CAM", 1)
	if !errors.Is(err, ErrNoSegments) {
		t.Fatalf("Expected ErrNoSegments for in-progress chunk only, got %v", err)
	}
	if runner.callCount() != 0 {
		t.Errorf("Expected no ffmpeg invocation, got %d", runner.callCount())
	}
}

func TestAssembleSuccess(t *testing.T) {
	runner := newConcatStub(2048)
	a, segments, _, db := newTestAssembler(t, runner)

	for i := 0; i < 8; i++ {
		writeTestSegment(t, segments, "TEST CAM", segName(i), 100, time.Duration(80-i*10)*time.Second)
	}

	meta, err := a.Assemble(context.Background(), "TEST CAM", 1)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	// 1 minute of 10s segments selects the newest 6 of 8
	if meta.SegmentCount != 6 {
		t.Errorf("Expected 6 segments, got %d", meta.SegmentCount)
	}
	if meta.CoveredSeconds != 60 {
		t.Errorf("Expected 60 covered seconds, got %d", meta.CoveredSeconds)
	}
	if meta.RequestedMinutes != 1 {
		t.Errorf("Expected requested minutes 1, got %d", meta.RequestedMinutes)
	}
	if meta.Size != 2048 {
		t.Errorf("Expected size 2048, got %d", meta.Size)
	}
	if _, err := os.Stat(meta.LocalPath); err != nil {
		t.Errorf("Deliverable missing: %v", err)
	}

	// Concat list holds the selected segments oldest first, newest two excluded
	lines := strings.Split(strings.TrimSpace(runner.listContents), "\n")
	if len(lines) != 6 {
		t.Fatalf("Expected 6 concat entries, got %d: %q", len(lines), runner.listContents)
	}
	if !strings.Contains(lines[0], segName(2)) {
		t.Errorf("Expected oldest selected segment first, got %s", lines[0])
	}
	if !strings.Contains(lines[5], segName(7)) {
		t.Errorf("Expected newest segment last, got %s", lines[5])
	}

	if len(db.created) != 1 {
		t.Fatalf("Expected 1 ledger row, got %d", len(db.created))
	}
	if db.created[0].LocalPath != meta.LocalPath {
		t.Errorf("Ledger path mismatch: %s vs %s", db.created[0].LocalPath, meta.LocalPath)
	}
}

func TestAssembleDegradedCoverage(t *testing.T) {
	runner := newConcatStub(1024)
	a, segments, _, _ := newTestAssembler(t, runner)

	// Only 3 segments exist for a 1 minute (6 segment) request
	for i := 0; i < 3; i++ {
		writeTestSegment(t, segments, "TEST CAM", segName(i), 100, time.Duration(30-i*10)*time.Second)
	}

	meta, err := a.Assemble(context.Background(), "TEST CAM", 1)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	if meta.SegmentCount != 3 {
		t.Errorf("Expected 3 segments, got %d", meta.SegmentCount)
	}
	if meta.CoveredSeconds != 30 {
		t.Errorf("Expected 30 covered seconds, got %d", meta.CoveredSeconds)
	}
}

func TestAssembleSkipsZeroSizeSegments(t *testing.T) {
	runner := newConcatStub(1024)
	a, segments, _, _ := newTestAssembler(t, runner)

	writeTestSegment(t, segments, "TEST CAM", segName(0), 100, 20*time.Second)
	// The newest chunk is still being written
	writeTestSegment(t, segments, "TEST CAM", segName(1), 0, 5*time.Second)

	meta, err := a.Assemble(context.Background(), "TEST CAM", 1)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	if meta.SegmentCount != 1 {
		t.Errorf("Expected in-progress chunk to be skipped, got %d segments", meta.SegmentCount)
	}
	if strings.Contains(runner.listContents, segName(1)) {
		t.Errorf("In-progress chunk leaked into concat list: %q", runner.listContents)
	}
}

func TestAssembleConcatFailure(t *testing.T) {
	runner := &stubRunner{
		run: func(ctx context.Context, cmd Command) ([]byte, error) {
			// Simulate ffmpeg writing a partial file before dying
			outputPath := cmd.Args[len(cmd.Args)-1]
			os.WriteFile(outputPath, []byte("partial"), 0644)
			return []byte("Invalid data found when processing input"), errors.New("exit status 1")
		},
	}
	a, segments, recordings, db := newTestAssembler(t, runner)
	writeTestSegment(t, segments, "TEST CAM", segName(0), 100, 10*time.Second)

	_, err := a.Assemble(context.Background(), "TEST CAM", 1)
	var aErr *AssemblyError
	if !errors.As(err, &aErr) {
		t.Fatalf("Expected AssemblyError, got %v", err)
	}
	if !strings.Contains(aErr.Diagnostic, "Invalid data") {
		t.Errorf("Expected ffmpeg output in diagnostic, got %q", aErr.Diagnostic)
	}

	// No partial deliverable, no ledger row
	recs, _ := recordings.ListRecordings("TEST CAM")
	if len(recs) != 0 {
		t.Errorf("Expected no deliverables after failure, got %d", len(recs))
	}
	if len(db.created) != 0 {
		t.Errorf("Expected no ledger rows after failure, got %d", len(db.created))
	}
}

func TestAssembleToolMissing(t *testing.T) {
	a, segments, _, _ := newTestAssembler(t, &stubRunner{})
	a.findTool = func() (string, error) { return "", ErrToolMissing }
	writeTestSegment(t, segments, "TEST CAM", segName(0), 100, 10*time.Second)

	_, err := a.Assemble(context.Background(), "TEST CAM", 1)
	if !errors.Is(err, ErrToolMissing) {
		t.Fatalf("Expected ErrToolMissing, got %v", err)
	}
}

func TestAssembleWrappedToolMissing(t *testing.T) {
	runner := &stubRunner{
		run: func(ctx context.Context, cmd Command) ([]byte, error) {
			return nil, fmt.Errorf("spawn failed: %w", ErrToolMissing)
		},
	}
	a, segments, _, _ := newTestAssembler(t, runner)
	writeTestSegment(t, segments, "TEST CAM", segName(0), 100, 10*time.Second)

	_, err := a.Assemble(context.Background(), "TEST CAM", 1)
	if !errors.Is(err, ErrToolMissing) {
		t.Fatalf("Expected ErrToolMissing through wrapping, got %v", err)
	}
	var aErr *AssemblyError
	if errors.As(err, &aErr) {
		t.Errorf("Expected tool-missing passthrough, got AssemblyError: %v", aErr)
	}
}

func TestAssemblePrunesOldDeliverables(t *testing.T) {
	runner := newConcatStub(1024)
	a, segments, recordings, db := newTestAssembler(t, runner)
	writeTestSegment(t, segments, "TEST CAM", segName(0), 100, 10*time.Second)

	// Three assemblies with keep limit 2: the first deliverable goes away
	var paths []string
	for i := 0; i < 3; i++ {
		meta, err := a.Assemble(context.Background(), "TEST CAM", 1)
		if err != nil {
			t.Fatalf("Assemble %d failed: %v", i, err)
		}
		paths = append(paths, meta.LocalPath)
		// Distinct mtimes so prune ordering is stable
		mtime := time.Now().Add(time.Duration(i-3) * time.Minute)
		os.Chtimes(meta.LocalPath, mtime, mtime)
	}

	recs, err := recordings.ListRecordings("TEST CAM")
	if err != nil {
		t.Fatalf("ListRecordings failed: %v", err)
	}
	if len(recs) != 2 {
		t.Errorf("Expected 2 deliverables after pruning, got %d", len(recs))
	}

	found := false
	for _, deleted := range db.deleted {
		if deleted == paths[0] {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected ledger row for pruned deliverable %s to be dropped", paths[0])
	}
}

func segName(i int) string {
	return "TEST_CAM_20250101_120000_00" + string(rune('0'+i)) + ".ts"
}
