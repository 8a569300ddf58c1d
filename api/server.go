package api

import (
	"context"
	"fmt"
	"time"

	"livecam-dvr/classify"
	"livecam-dvr/config"
	"livecam-dvr/database"
	"livecam-dvr/metrics"
	"livecam-dvr/recording"
	"livecam-dvr/storage"

	"github.com/gin-gonic/gin"
)

// Assembler is the subset of the assembler the API depends on. Tests
// substitute a stub so handlers can be exercised without ffmpeg.
type Assembler interface {
	Assemble(ctx context.Context, cameraName string, minutes int) (*database.RecordingMetadata, error)
	ValidateDuration(minutes int) error
}

// CaptureController is the subset of the capture manager the API depends on.
type CaptureController interface {
	StartAll() error
	Status() []recording.WorkerStatus
	WorkerCount() int
	IsRunning() bool
}

type Server struct {
	config     *config.Config
	db         database.Database
	segments   *storage.SegmentStore
	recordings *storage.RecordingStore
	assembler  Assembler
	capture    CaptureController
	classifier classify.Classifier
	metrics    *metrics.Metrics
	startedAt  time.Time
}

func NewServer(cfg *config.Config, db database.Database, segments *storage.SegmentStore,
	recordings *storage.RecordingStore, assembler Assembler, capture CaptureController,
	classifier classify.Classifier, m *metrics.Metrics) *Server {
	return &Server{
		config:     cfg,
		db:         db,
		segments:   segments,
		recordings: recordings,
		assembler:  assembler,
		capture:    capture,
		classifier: classifier,
		metrics:    m,
		startedAt:  time.Now(),
	}
}

func (s *Server) Start() error {
	r := gin.Default()
	s.setupCORS(r)
	s.setupRoutes(r)
	portAddr := ":" + s.config.ServerPort
	fmt.Printf("Starting API server on %s\n", portAddr)
	return r.Run(portAddr)
}

func (s *Server) setupCORS(r *gin.Engine) {
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})
}

func (s *Server) setupRoutes(r *gin.Engine) {
	r.GET("/", s.listEndpoints)
	r.GET("/cameras", s.listCameras)
	r.GET("/camera/:id/recording", s.getRecording)
	r.GET("/camera/:id/recording/:minutes", s.getRecording)
	r.GET("/camera/:id/download", s.downloadRecording)
	r.GET("/camera/:id/download/:minutes", s.downloadRecording)
	r.GET("/camera/:id/status", s.getCameraStatus)
	r.GET("/camera/:id/segments", s.getSegmentsInfo)
	r.POST("/camera/:id/classify", s.classifyRecording)
	r.GET("/stats", s.getStats)
	r.POST("/start-recordings", s.startRecordings)
	r.GET("/health", s.getHealth)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler(s.refreshGauges)))
	}
}

// refreshGauges recomputes scrape-time gauge values.
func (s *Server) refreshGauges() {
	s.metrics.SetActiveWorkers(s.capture.WorkerCount())

	var total int64
	for _, cam := range s.config.Cameras {
		segs, err := s.segments.ListSegments(cam.Name)
		if err != nil {
			continue
		}
		for _, seg := range segs {
			total += seg.Size
		}
	}
	s.metrics.SetRetainedSegmentBytes(total)
}
