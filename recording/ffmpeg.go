package recording

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Command is a fully specified external media-tool invocation: binary,
// argument list, run bound and teardown behavior. Building the argument list
// up front keeps subprocess orchestration free of string-assembled command
// lines and makes timeout behavior testable.
type Command struct {
	Binary    string
	Args      []string
	Timeout   time.Duration // zero means no bound
	StopGrace time.Duration // SIGTERM to SIGKILL gap on timeout/cancel
}

// Runner executes Commands. The production implementation shells out; tests
// substitute a stub so no ffmpeg binary is needed.
type Runner interface {
	Run(ctx context.Context, cmd Command) ([]byte, error)
}

// ExecRunner runs commands as real subprocesses.
type ExecRunner struct{}

// Run starts the command and waits for completion, the context, or the
// timeout, whichever comes first. On timeout or cancellation the process is
// asked to stop with SIGTERM and force-killed after the grace period. The
// combined output is always returned for diagnostics.
func (ExecRunner) Run(ctx context.Context, c Command) ([]byte, error) {
	runCtx := ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.Command(c.Binary, c.Args...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, ErrToolMissing
		}
		return nil, fmt.Errorf("failed to start %s: %w", c.Binary, err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case err := <-done:
		return output.Bytes(), err
	case <-runCtx.Done():
		grace := c.StopGrace
		if grace <= 0 {
			grace = 10 * time.Second
		}
		cmd.Process.Signal(syscall.SIGTERM)
		select {
		case <-done:
			return output.Bytes(), runCtx.Err()
		case <-time.After(grace):
			log.Printf("Process %s did not stop after %v, killing", c.Binary, grace)
			cmd.Process.Kill()
			<-done
			return output.Bytes(), runCtx.Err()
		}
	}
}

// FindFFmpeg probes for a working ffmpeg binary and returns its path.
// Absence is a hard operational error for capture; callers may still serve
// previously assembled deliverables.
func FindFFmpeg() (string, error) {
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return "", ErrToolMissing
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := exec.CommandContext(ctx, path, "-version").Run(); err != nil {
		return "", ErrToolMissing
	}
	return path, nil
}

// SegmentCaptureCommand builds the ffmpeg invocation for one capture
// session: remux (no re-encode) the live stream into fixed-length MPEG-TS
// chunks, wrapping the output pattern at the ring size. The session itself
// is bounded by Timeout; expiry is the normal teardown, not a failure.
func SegmentCaptureCommand(ffmpegPath, streamURL, cameraDir, safeName string,
	segmentDuration, maxSegments int, sessionDuration, stopGrace time.Duration) Command {

	timestamp := time.Now().Format("20060102_150405")
	pattern := filepath.Join(cameraDir, fmt.Sprintf("%s_%s_%%03d.ts", safeName, timestamp))
	playlist := filepath.Join(cameraDir, fmt.Sprintf("%s_playlist.m3u8", safeName))

	return Command{
		Binary: ffmpegPath,
		Args: []string{
			"-y",
			"-i", streamURL,
			"-c", "copy",
			"-f", "segment",
			"-segment_time", strconv.Itoa(segmentDuration),
			"-segment_list", playlist,
			"-segment_list_flags", "live",
			"-segment_wrap", strconv.Itoa(maxSegments),
			"-reset_timestamps", "1",
			"-loglevel", "error",
			pattern,
		},
		Timeout:   sessionDuration,
		StopGrace: stopGrace,
	}
}

// ConcatCommand builds the ffmpeg invocation that stream-copies the segments
// named in listPath into a single MP4, normalizing timestamps so playback
// starts at zero.
func ConcatCommand(ffmpegPath, listPath, outputPath string, timeout time.Duration) Command {
	return Command{
		Binary: ffmpegPath,
		Args: []string{
			"-y",
			"-f", "concat",
			"-safe", "0",
			"-i", listPath,
			"-c", "copy",
			"-avoid_negative_ts", "make_zero",
			"-fflags", "+genpts",
			outputPath,
		},
		Timeout: timeout,
	}
}

// ProbeDuration returns a video file's duration in seconds using ffprobe.
func ProbeDuration(ctx context.Context, videoPath string) (float64, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed for %s: %w", videoPath, err)
	}
	dur, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse ffprobe output %q: %w", output, err)
	}
	return dur, nil
}
