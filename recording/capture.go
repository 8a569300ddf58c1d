package recording

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"livecam-dvr/config"
	"livecam-dvr/metrics"
	"livecam-dvr/storage"
)

// WorkerState is the supervised lifecycle state of a capture worker.
type WorkerState string

const (
	StateStarting   WorkerState = "starting"
	StateCapturing  WorkerState = "capturing"
	StateRestarting WorkerState = "restarting"
	StateBackoff    WorkerState = "backoff"
)

// CaptureWorker perpetually pulls one camera's live stream and writes it out
// as fixed-length segments. Each worker owns its camera's segment directory
// exclusively; workers never share mutable state.
type CaptureWorker struct {
	camera     config.CameraConfig
	cfg        *config.Config
	store      *storage.SegmentStore
	runner     Runner
	ffmpegPath string
	metrics    *metrics.Metrics

	// sleep waits for d or until ctx is done, returning false when
	// cancelled. Injected so tests simulate time instead of sleeping.
	sleep func(ctx context.Context, d time.Duration) bool

	mu    sync.Mutex
	state WorkerState
}

// NewCaptureWorker creates a worker for one camera.
func NewCaptureWorker(camera config.CameraConfig, cfg *config.Config, store *storage.SegmentStore,
	runner Runner, ffmpegPath string, m *metrics.Metrics) *CaptureWorker {
	return &CaptureWorker{
		camera:     camera,
		cfg:        cfg,
		store:      store,
		runner:     runner,
		ffmpegPath: ffmpegPath,
		metrics:    m,
		sleep:      sleepCtx,
		state:      StateStarting,
	}
}

// State returns the worker's current lifecycle state.
func (w *CaptureWorker) State() WorkerState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *CaptureWorker) setState(s WorkerState) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// Run executes the unbounded capture loop: start a bounded ffmpeg session,
// tear it down when the session limit elapses, enforce retention, repeat.
// A single failure never exits the loop; only ctx cancellation does.
func (w *CaptureWorker) Run(ctx context.Context) {
	cameraName := w.camera.Name
	log.Printf("[%s] Starting segment capture worker", cameraName)

	for {
		select {
		case <-ctx.Done():
			log.Printf("[%s] Context canceled, stopping capture", cameraName)
			return
		default:
		}

		w.setState(StateStarting)
		cameraDir, err := w.store.CameraDir(cameraName)
		if err != nil {
			log.Printf("[%s] Error preparing segment directory: %v", cameraName, err)
			w.backoff(ctx)
			continue
		}

		cmd := SegmentCaptureCommand(
			w.ffmpegPath,
			w.camera.StreamURL,
			cameraDir,
			storage.SanitizeName(cameraName),
			w.cfg.SegmentDuration,
			w.cfg.MaxSegments,
			w.cfg.SessionDuration,
			w.cfg.StopGrace,
		)

		w.setState(StateCapturing)
		log.Printf("[%s] Starting capture session (%v)", cameraName, w.cfg.SessionDuration)
		output, err := w.runner.Run(ctx, cmd)

		if ctx.Err() != nil {
			log.Printf("[%s] Capture session stopped by shutdown", cameraName)
			return
		}

		// Session timeout expiry is the normal teardown path; anything
		// that ends the session early is treated as a connection failure.
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			log.Printf("[%s] Capture session failed: %v", cameraName, err)
			if len(output) > 0 {
				log.Printf("[%s] FFmpeg output: %s", cameraName, string(output))
			}
			if errors.Is(err, ErrToolMissing) {
				log.Printf("[%s] FFmpeg unavailable, worker idling until retry", cameraName)
			}
			w.backoff(ctx)
			continue
		}

		w.setState(StateRestarting)
		if w.metrics != nil {
			w.metrics.IncCaptureRestarts()
		}
		if _, err := w.store.CleanupSegments(cameraName); err != nil {
			log.Printf("[%s] Segment cleanup error: %v", cameraName, err)
		}
	}
}

// backoff waits the configured retry delay, respecting cancellation.
func (w *CaptureWorker) backoff(ctx context.Context) {
	w.setState(StateBackoff)
	w.sleep(ctx, w.cfg.RetryDelay)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
