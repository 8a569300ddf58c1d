package storage

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// SegmentInfo describes a single captured segment file.
type SegmentInfo struct {
	Name    string
	Path    string
	Size    int64
	ModTime time.Time
}

// SegmentStore manages the per-camera ring buffers of captured .ts segments.
// Each camera owns one directory under the root; the capture worker is the
// sole writer, everything else reads a snapshot of the listing.
type SegmentStore struct {
	root            string
	maxSegments     int
	segmentDuration int
}

// NewSegmentStore creates a segment store rooted at root.
func NewSegmentStore(root string, maxSegments, segmentDuration int) *SegmentStore {
	return &SegmentStore{
		root:            root,
		maxSegments:     maxSegments,
		segmentDuration: segmentDuration,
	}
}

// MaxSegments returns the ring buffer capacity per camera.
func (s *SegmentStore) MaxSegments() int { return s.maxSegments }

// SegmentDuration returns the nominal segment length in seconds.
func (s *SegmentStore) SegmentDuration() int { return s.segmentDuration }

// CameraDir returns the segment directory for a camera, creating it if needed.
func (s *SegmentStore) CameraDir(cameraName string) (string, error) {
	dir := filepath.Join(s.root, SanitizeName(cameraName))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create segment directory %s: %w", dir, err)
	}
	return dir, nil
}

// ListSegments returns the camera's segments ordered oldest first by
// modification time. Files that vanish between the directory listing and the
// stat call are skipped: a delete racing a new write is not an error.
func (s *SegmentStore) ListSegments(cameraName string) ([]SegmentInfo, error) {
	dir := filepath.Join(s.root, SanitizeName(cameraName))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list segment directory: %w", err)
	}

	segments := make([]SegmentInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".ts") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue // vanished mid-scan
		}
		segments = append(segments, SegmentInfo{
			Name:    entry.Name(),
			Path:    filepath.Join(dir, entry.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(segments, func(i, j int) bool {
		if segments[i].ModTime.Equal(segments[j].ModTime) {
			return segments[i].Name < segments[j].Name
		}
		return segments[i].ModTime.Before(segments[j].ModTime)
	})
	return segments, nil
}

// RecentSegments returns the newest count segments in chronological order
// (oldest of the selected batch first). When fewer than count exist, all
// available segments are returned.
func (s *SegmentStore) RecentSegments(cameraName string, count int) ([]SegmentInfo, error) {
	segments, err := s.ListSegments(cameraName)
	if err != nil {
		return nil, err
	}
	if len(segments) > count {
		segments = segments[len(segments)-count:]
	}
	return segments, nil
}

// CleanupSegments enforces the ring buffer bound for one camera, deleting
// the oldest files beyond MaxSegments. Runs after each capture session
// rather than continuously, to avoid contending with an active writer; a
// directory may therefore transiently hold more than MaxSegments files
// mid-session, up to roughly twice the bound.
func (s *SegmentStore) CleanupSegments(cameraName string) (int, error) {
	segments, err := s.ListSegments(cameraName)
	if err != nil {
		return 0, err
	}
	if len(segments) <= s.maxSegments {
		return 0, nil
	}

	removed := 0
	for _, seg := range segments[:len(segments)-s.maxSegments] {
		if err := os.Remove(seg.Path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			log.Printf("[%s] Error removing old segment %s: %v", cameraName, seg.Name, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		log.Printf("[%s] Removed %d old segments", cameraName, removed)
	}
	return removed, nil
}

// CoveredSeconds returns the total footage seconds represented by n segments.
func (s *SegmentStore) CoveredSeconds(n int) int {
	return n * s.segmentDuration
}

var (
	unsafeChars    = regexp.MustCompile(`[^\p{L}\p{N}-]`)
	underscoreRuns = regexp.MustCompile(`_+`)
)

// SanitizeName converts a camera display name to a filesystem-safe form:
// anything that is not a letter, digit or hyphen becomes an underscore,
// runs are collapsed and leading/trailing underscores trimmed. Non-ASCII
// letters ("TAKSİM MEYDANI") survive unchanged.
func SanitizeName(name string) string {
	safe := unsafeChars.ReplaceAllString(name, "_")
	safe = underscoreRuns.ReplaceAllString(safe, "_")
	return strings.Trim(safe, "_")
}
