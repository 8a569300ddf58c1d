package recording

import (
	"context"
	"fmt"
	"log"
	"sync"

	"livecam-dvr/config"
	"livecam-dvr/metrics"
	"livecam-dvr/storage"
)

// CaptureManager supervises one capture worker per enabled camera. Workers
// are fully isolated: a stall or crash in one never affects the others.
type CaptureManager struct {
	cfg        *config.Config
	store      *storage.SegmentStore
	runner     Runner
	metrics    *metrics.Metrics
	ffmpegPath string

	// findTool resolves the ffmpeg binary. Injected so tests run without one.
	findTool func() (string, error)

	mu        sync.RWMutex
	workers   map[string]*workerHandle
	ctx       context.Context
	cancel    context.CancelFunc
	isRunning bool
}

type workerHandle struct {
	worker *CaptureWorker
	cancel context.CancelFunc
}

// WorkerStatus describes one camera worker for status endpoints.
type WorkerStatus struct {
	Camera string      `json:"camera"`
	State  WorkerState `json:"state"`
}

// NewCaptureManager creates a capture manager. The runner is injectable for
// tests; pass ExecRunner{} in production.
func NewCaptureManager(cfg *config.Config, store *storage.SegmentStore, runner Runner, m *metrics.Metrics) *CaptureManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &CaptureManager{
		cfg:      cfg,
		store:    store,
		runner:   runner,
		metrics:  m,
		findTool: FindFFmpeg,
		workers:  make(map[string]*workerHandle),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// StartAll starts capture workers for all enabled cameras. Probes for ffmpeg
// first: without it capture cannot run at all and the caller degrades to
// serving previously assembled deliverables.
func (cm *CaptureManager) StartAll() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.isRunning {
		log.Printf("[CaptureManager] Workers are already running")
		return nil
	}

	// StopAll cancels the parent context, so a restart needs a fresh one
	if cm.ctx.Err() != nil {
		cm.ctx, cm.cancel = context.WithCancel(context.Background())
	}

	ffmpegPath, err := cm.findTool()
	if err != nil {
		return fmt.Errorf("cannot start capture: %w", err)
	}
	cm.ffmpegPath = ffmpegPath
	log.Printf("[CaptureManager] Found ffmpeg at: %s", ffmpegPath)

	started := 0
	for _, camera := range cm.cfg.Cameras {
		if !camera.Enabled {
			log.Printf("[CaptureManager] Skipping disabled camera: %s", camera.Name)
			continue
		}
		cm.startWorkerLocked(camera)
		started++
	}

	cm.isRunning = true
	if cm.metrics != nil {
		cm.metrics.SetActiveWorkers(started)
	}
	log.Printf("[CaptureManager] Started %d capture workers", started)
	return nil
}

// startWorkerLocked launches one camera worker. Caller holds cm.mu.
func (cm *CaptureManager) startWorkerLocked(camera config.CameraConfig) {
	cameraName := camera.Name

	if existing, exists := cm.workers[cameraName]; exists {
		log.Printf("[CaptureManager] Stopping existing worker for camera: %s", cameraName)
		existing.cancel()
		delete(cm.workers, cameraName)
	}

	ctx, cancel := context.WithCancel(cm.ctx)
	worker := NewCaptureWorker(camera, cm.cfg, cm.store, cm.runner, cm.ffmpegPath, cm.metrics)
	cm.workers[cameraName] = &workerHandle{worker: worker, cancel: cancel}

	go func() {
		defer func() {
			cm.mu.Lock()
			delete(cm.workers, cameraName)
			if cm.metrics != nil {
				cm.metrics.SetActiveWorkers(len(cm.workers))
			}
			cm.mu.Unlock()
			log.Printf("[CaptureManager] Camera %s worker stopped", cameraName)
		}()
		worker.Run(ctx)
	}()
}

// StopAll gracefully stops every worker.
func (cm *CaptureManager) StopAll() {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if !cm.isRunning {
		log.Printf("[CaptureManager] Workers are not running")
		return
	}

	log.Printf("[CaptureManager] Stopping all capture workers...")
	for cameraName, handle := range cm.workers {
		log.Printf("[CaptureManager] Stopping camera: %s", cameraName)
		handle.cancel()
	}
	cm.workers = make(map[string]*workerHandle)
	cm.isRunning = false
	cm.cancel()
	if cm.metrics != nil {
		cm.metrics.SetActiveWorkers(0)
	}
	log.Printf("[CaptureManager] All capture workers stopped")
}

// Status returns the per-camera worker states.
func (cm *CaptureManager) Status() []WorkerStatus {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	statuses := make([]WorkerStatus, 0, len(cm.workers))
	for name, handle := range cm.workers {
		statuses = append(statuses, WorkerStatus{Camera: name, State: handle.worker.State()})
	}
	return statuses
}

// WorkerCount returns the number of running workers.
func (cm *CaptureManager) WorkerCount() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.workers)
}

// IsRunning reports whether capture has been started.
func (cm *CaptureManager) IsRunning() bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.isRunning
}
