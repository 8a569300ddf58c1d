package storage

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// RecordingInfo describes an assembled deliverable on disk.
type RecordingInfo struct {
	Name    string
	Path    string
	Size    int64
	ModTime time.Time
}

// RecordingStore manages the flat directory of assembled deliverables.
// Files are named <sanitized-camera>_<minutes>min_<timestamp>_<id>.mp4 so a
// camera's deliverables can be recovered by prefix scan.
type RecordingStore struct {
	dir string
}

// NewRecordingStore creates a recording store at dir.
func NewRecordingStore(dir string) *RecordingStore {
	return &RecordingStore{dir: dir}
}

// Dir returns the deliverables directory.
func (r *RecordingStore) Dir() string { return r.dir }

// OutputPath builds a deterministic, collision-free deliverable path for one
// assembly invocation.
func (r *RecordingStore) OutputPath(cameraName string, minutes int, invocationID string) string {
	name := fmt.Sprintf("%s_%dmin_%s_%s.mp4",
		SanitizeName(cameraName), minutes, time.Now().Format("20060102_150405"), invocationID)
	return filepath.Join(r.dir, name)
}

// ListRecordings returns a camera's deliverables, newest first.
func (r *RecordingStore) ListRecordings(cameraName string) ([]RecordingInfo, error) {
	prefix := SanitizeName(cameraName) + "_"
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list recordings directory: %w", err)
	}

	var recordings []RecordingInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) || !strings.HasSuffix(entry.Name(), ".mp4") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		recordings = append(recordings, RecordingInfo{
			Name:    entry.Name(),
			Path:    filepath.Join(r.dir, entry.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(recordings, func(i, j int) bool {
		return recordings[i].ModTime.After(recordings[j].ModTime)
	})
	return recordings, nil
}

// Latest returns the most recent non-empty deliverable for a camera, or nil.
func (r *RecordingStore) Latest(cameraName string) (*RecordingInfo, error) {
	recordings, err := r.ListRecordings(cameraName)
	if err != nil {
		return nil, err
	}
	for i := range recordings {
		if recordings[i].Size > 0 {
			return &recordings[i], nil
		}
	}
	return nil, nil
}

// Prune deletes a camera's deliverables beyond the newest keep files and
// returns the removed paths so callers can drop matching ledger rows.
func (r *RecordingStore) Prune(cameraName string, keep int) ([]string, error) {
	recordings, err := r.ListRecordings(cameraName)
	if err != nil {
		return nil, err
	}
	if len(recordings) <= keep {
		return nil, nil
	}

	var removed []string
	for _, rec := range recordings[keep:] {
		if err := os.Remove(rec.Path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			log.Printf("[%s] Error removing old recording %s: %v", cameraName, rec.Name, err)
			continue
		}
		removed = append(removed, rec.Path)
		log.Printf("[%s] Removed old recording: %s", cameraName, rec.Name)
	}
	return removed, nil
}

// TotalUsage returns the deliverable count and total bytes across all cameras.
func (r *RecordingStore) TotalUsage() (files int, bytes int64, err error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("failed to scan recordings directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".mp4") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files++
		bytes += info.Size()
	}
	return files, bytes, nil
}
