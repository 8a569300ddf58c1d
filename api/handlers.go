package api

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"livecam-dvr/classify"
	"livecam-dvr/config"
	"livecam-dvr/monitoring"
	"livecam-dvr/recording"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

// CameraStatus is the per-camera entry returned by /cameras
type CameraStatus struct {
	HasRecording bool    `json:"has_recording"`
	FilePath     string  `json:"file_path,omitempty"`
	FileSizeMB   float64 `json:"file_size_mb"`
	LastUpdated  string  `json:"last_updated,omitempty"`
}

// SegmentEntry is one raw segment in the /camera/:id/segments inventory
type SegmentEntry struct {
	Filename   string  `json:"filename"`
	SizeMB     float64 `json:"size_mb"`
	AgeSeconds float64 `json:"age_seconds"`
}

func (s *Server) listEndpoints(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Live Camera Recording Server",
		"endpoints": gin.H{
			"GET /cameras":                        "List all cameras and their recording status",
			"GET /camera/{id}/recording":          "Assemble and describe a default-duration recording",
			"GET /camera/{id}/recording/{mins}":   "Assemble and describe a custom-duration recording (1-10)",
			"GET /camera/{id}/download":           "Assemble and download a default-duration recording",
			"GET /camera/{id}/download/{mins}":    "Assemble and download a custom-duration recording (1-10)",
			"GET /camera/{id}/status":             "Camera capture status and segment coverage",
			"GET /camera/{id}/segments":           "Raw segment inventory",
			"POST /camera/{id}/classify":          "Run the video classifier on the latest recording",
			"GET /stats":                          "Aggregate recording statistics",
			"POST /start-recordings":              "Start capture workers for all cameras",
			"GET /health":                         "Health check",
			"GET /metrics":                        "Prometheus metrics",
		},
	})
}

// resolveCamera maps the path parameter to a configured camera or answers
// 404 enumerating the valid identifiers. Lookup is case-insensitive and
// accepts partial matches; exact match wins over partial.
func (s *Server) resolveCamera(c *gin.Context) (*config.CameraConfig, bool) {
	query := c.Param("id")
	camera, ok := s.config.FindCamera(query)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"success":           false,
			"error":             fmt.Sprintf("Camera location '%s' not found", query),
			"available_cameras": s.config.CameraNames(),
		})
		return nil, false
	}
	return camera, true
}

// parseMinutes reads the optional :minutes path parameter. Non-numeric or
// out-of-range values are rejected before any assembly work starts.
func (s *Server) parseMinutes(c *gin.Context) (int, bool) {
	raw := c.Param("minutes")
	if raw == "" {
		return s.config.DefaultDurationMinutes, true
	}
	minutes, err := strconv.Atoi(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   fmt.Sprintf("Invalid duration '%s': must be an integer number of minutes", raw),
		})
		return 0, false
	}
	if err := s.assembler.ValidateDuration(minutes); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return 0, false
	}
	return minutes, true
}

// respondAssemblyError converts the assembler error taxonomy into HTTP
// responses. Request-path failures never crash the process.
func respondAssemblyError(c *gin.Context, cameraName string, err error) {
	var vErr *recording.ValidationError
	if errors.As(err, &vErr) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": vErr.Error()})
		return
	}
	if errors.Is(err, recording.ErrNoSegments) {
		c.JSON(http.StatusNotFound, gin.H{
			"success":     false,
			"camera_name": cameraName,
			"error":       fmt.Sprintf("No recording could be created for %s: no segments captured yet", cameraName),
		})
		return
	}
	if errors.Is(err, recording.ErrToolMissing) {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error":   "Recording assembly is unavailable: ffmpeg not found",
		})
		return
	}
	var aErr *recording.AssemblyError
	if errors.As(err, &aErr) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success":     false,
			"camera_name": cameraName,
			"error":       aErr.Error(),
		})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
}

// GET /cameras
//
// Warm listing: cameras without a ready deliverable get a default-duration
// assembly attempt; assembly failures degrade to has_recording=false rather
// than failing the listing. Cameras are scanned concurrently.
func (s *Server) listCameras(c *gin.Context) {
	statuses := make(map[string]CameraStatus, len(s.config.Cameras))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(c.Request.Context())
	for _, cam := range s.config.Cameras {
		camera := cam
		g.Go(func() error {
			status := CameraStatus{}

			latest, err := s.recordings.Latest(camera.Name)
			if err == nil && latest == nil {
				if meta, err := s.assembler.Assemble(ctx, camera.Name, s.config.DefaultDurationMinutes); err == nil {
					status = CameraStatus{
						HasRecording: true,
						FilePath:     meta.LocalPath,
						FileSizeMB:   toMB(meta.Size),
						LastUpdated:  meta.CreatedAt.Format("2006-01-02 15:04:05"),
					}
				}
			} else if latest != nil {
				status = CameraStatus{
					HasRecording: true,
					FilePath:     latest.Path,
					FileSizeMB:   toMB(latest.Size),
					LastUpdated:  latest.ModTime.Format("2006-01-02 15:04:05"),
				}
			}

			mu.Lock()
			statuses[camera.Name] = status
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"total_cameras": len(s.config.Cameras),
		"cameras":       statuses,
	})
}

// GET /camera/:id/recording and /camera/:id/recording/:minutes
func (s *Server) getRecording(c *gin.Context) {
	camera, ok := s.resolveCamera(c)
	if !ok {
		return
	}
	minutes, ok := s.parseMinutes(c)
	if !ok {
		return
	}

	meta, err := s.assembler.Assemble(c.Request.Context(), camera.Name, minutes)
	if err != nil {
		respondAssemblyError(c, camera.Name, err)
		return
	}

	absPath, _ := filepath.Abs(meta.LocalPath)
	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"camera_name":       camera.Name,
		"camera_location":   c.Param("id"),
		"file_path":         meta.LocalPath,
		"absolute_path":     absPath,
		"file_size_bytes":   meta.Size,
		"file_size_mb":      toMB(meta.Size),
		"requested_minutes": meta.RequestedMinutes,
		"covered_seconds":   meta.CoveredSeconds,
		"segment_count":     meta.SegmentCount,
		"last_updated":      meta.CreatedAt.Format("2006-01-02 15:04:05"),
	})
}

// GET /camera/:id/download and /camera/:id/download/:minutes
func (s *Server) downloadRecording(c *gin.Context) {
	camera, ok := s.resolveCamera(c)
	if !ok {
		return
	}
	minutes, ok := s.parseMinutes(c)
	if !ok {
		return
	}

	meta, err := s.assembler.Assemble(c.Request.Context(), camera.Name, minutes)
	if err != nil {
		respondAssemblyError(c, camera.Name, err)
		return
	}

	if s.metrics != nil {
		s.metrics.IncRecordingsServed()
	}
	c.FileAttachment(meta.LocalPath, filepath.Base(meta.LocalPath))
}

// GET /camera/:id/status
func (s *Server) getCameraStatus(c *gin.Context) {
	camera, ok := s.resolveCamera(c)
	if !ok {
		return
	}

	segments, err := s.segments.ListSegments(camera.Name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	coveredSeconds := s.segments.CoveredSeconds(len(segments))
	var newestAge *float64
	status := "no-data"
	if len(segments) > 0 {
		age := time.Since(segments[len(segments)-1].ModTime).Seconds()
		newestAge = &age
		if age < 60 {
			status = "active"
		} else {
			status = "stale"
		}
	}

	var latestRecording gin.H
	if latest, err := s.recordings.Latest(camera.Name); err == nil && latest != nil {
		latestRecording = gin.H{
			"path":        latest.Path,
			"size_mb":     toMB(latest.Size),
			"age_seconds": time.Since(latest.ModTime).Seconds(),
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"camera_name":     camera.Name,
		"camera_location": c.Param("id"),
		"status":          status,
		"latest_recording": latestRecording,
		"segments": gin.H{
			"available":                  len(segments),
			"total_duration_seconds":     coveredSeconds,
			"newest_segment_age_seconds": newestAge,
		},
		"max_recording_duration_minutes": coveredSeconds / 60,
	})
}

// GET /camera/:id/segments
func (s *Server) getSegmentsInfo(c *gin.Context) {
	camera, ok := s.resolveCamera(c)
	if !ok {
		return
	}

	segments, err := s.segments.ListSegments(camera.Name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	entries := make([]SegmentEntry, 0, len(segments))
	for _, seg := range segments {
		entries = append(entries, SegmentEntry{
			Filename:   seg.Name,
			SizeMB:     toMB(seg.Size),
			AgeSeconds: time.Since(seg.ModTime).Seconds(),
		})
	}

	totalDuration := s.segments.CoveredSeconds(len(entries))
	c.JSON(http.StatusOK, gin.H{
		"camera_name":              camera.Name,
		"segments_available":       len(entries),
		"total_duration_seconds":   totalDuration,
		"max_recording_minutes":    totalDuration / 60,
		"segment_duration_seconds": s.segments.SegmentDuration(),
		"segments":                 entries,
	})
}

// POST /camera/:id/classify
//
// Runs the external classifier against the camera's latest deliverable.
// The classifier is an opaque remote model: slow, but never allowed to
// interfere with capture.
func (s *Server) classifyRecording(c *gin.Context) {
	camera, ok := s.resolveCamera(c)
	if !ok {
		return
	}

	latest, err := s.recordings.Latest(camera.Name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	if latest == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success":     false,
			"camera_name": camera.Name,
			"error":       fmt.Sprintf("No recording available for %s", camera.Name),
		})
		return
	}

	verdict, err := s.classifier.Classify(c.Request.Context(), latest.Path)
	if err != nil {
		if errors.Is(err, classify.ErrDisabled) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "Classifier is not configured"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": err.Error()})
		return
	}

	response := gin.H{
		"success":     true,
		"camera_name": camera.Name,
		"file_path":   latest.Path,
		"verdict":     verdict,
	}
	// Duration is informational; a missing ffprobe does not fail the verdict
	if duration, err := recording.ProbeDuration(c.Request.Context(), latest.Path); err == nil {
		response["duration_seconds"] = duration
	}
	c.JSON(http.StatusOK, response)
}

// GET /stats
func (s *Server) getStats(c *gin.Context) {
	ledger, err := s.db.Stats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	files, bytes, err := s.recordings.TotalUsage()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	// A camera is active when its ring buffer holds at least one segment.
	var activeCameras int64
	var mu sync.Mutex
	g, _ := errgroup.WithContext(c.Request.Context())
	for _, cam := range s.config.Cameras {
		camera := cam
		g.Go(func() error {
			segs, err := s.segments.ListSegments(camera.Name)
			if err == nil && len(segs) > 0 {
				mu.Lock()
				activeCameras++
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()

	absDir, _ := filepath.Abs(s.recordings.Dir())
	c.JSON(http.StatusOK, gin.H{
		"success":                  true,
		"total_cameras_configured": len(s.config.Cameras),
		"active_cameras":           activeCameras,
		"total_recording_files":    files,
		"total_storage_used_mb":    toMB(bytes),
		"ledger_recordings":        ledger.TotalRecordings,
		"ledger_bytes":             ledger.TotalBytes,
		"recordings_directory":     absDir,
		"system_status":            systemStatus(s.capture.IsRunning()),
	})
}

// POST /start-recordings
func (s *Server) startRecordings(c *gin.Context) {
	if s.capture.IsRunning() {
		c.JSON(http.StatusOK, gin.H{
			"message":        "Recordings already running",
			"active_workers": s.capture.WorkerCount(),
		})
		return
	}

	if err := s.capture.StartAll(); err != nil {
		if errors.Is(err, recording.ErrToolMissing) {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"success": false,
				"error":   "Cannot start capture: ffmpeg not found. Existing recordings remain available.",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":        fmt.Sprintf("Started capture for %d cameras", len(s.config.EnabledCameras())),
		"cameras":        s.config.CameraNames(),
		"active_workers": s.capture.WorkerCount(),
	})
}

// GET /health
func (s *Server) getHealth(c *gin.Context) {
	healthResponse := gin.H{
		"status":             "healthy",
		"timestamp":          time.Now().UTC().Format(time.RFC3339),
		"uptime":             time.Since(s.startedAt).String(),
		"cameras_configured": len(s.config.Cameras),
		"capture_running":    s.capture.IsRunning(),
		"workers":            s.capture.Status(),
	}

	if _, err := s.db.Stats(); err != nil {
		healthResponse["status"] = "unhealthy"
		healthResponse["database"] = gin.H{"status": "failed", "error": err.Error()}
		c.JSON(http.StatusServiceUnavailable, healthResponse)
		return
	}
	healthResponse["database"] = gin.H{"status": "connected"}

	enabled := len(s.config.EnabledCameras())
	if enabled > 0 && s.capture.WorkerCount() == 0 {
		healthResponse["status"] = "degraded"
	} else if s.capture.WorkerCount() < enabled {
		healthResponse["status"] = "degraded"
	}

	if usage, err := monitoring.Snapshot(); err == nil {
		healthResponse["system"] = usage
	}

	c.JSON(http.StatusOK, healthResponse)
}

func toMB(bytes int64) float64 {
	return float64(int64(float64(bytes)/(1024*1024)*100+0.5)) / 100
}

func systemStatus(running bool) string {
	if running {
		return "Running"
	}
	return "Stopped"
}
