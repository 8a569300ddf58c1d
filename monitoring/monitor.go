package monitoring

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// ResourceUsage is a point-in-time snapshot of process resource consumption.
// Capture workers hold ffmpeg subprocesses open continuously, so RSS and CPU
// here are the early warning for a camera stream gone bad.
type ResourceUsage struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryUsedMB  float64 `json:"memory_used_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	MemoryPercent float64 `json:"memory_percent"`
	NumGoroutines int     `json:"goroutines"`
}

var (
	procOnce sync.Once
	proc     *process.Process
	procErr  error
)

func selfProcess() (*process.Process, error) {
	procOnce.Do(func() {
		proc, procErr = process.NewProcess(int32(os.Getpid()))
	})
	return proc, procErr
}

// StartMonitoring logs process resource usage at the given interval.
func StartMonitoring(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for range ticker.C {
			usage, err := Snapshot()
			if err != nil {
				log.Printf("Error getting resource usage: %v", err)
				continue
			}
			log.Printf("Resource Usage - CPU: %.2f%%, Memory: %.2f/%.2f MB (%.2f%%), Goroutines: %d",
				usage.CPUPercent,
				usage.MemoryUsedMB,
				usage.MemoryTotalMB,
				usage.MemoryPercent,
				usage.NumGoroutines)
		}
	}()
}

// Snapshot returns the current process resource usage, also surfaced by the
// health endpoint.
func Snapshot() (ResourceUsage, error) {
	var usage ResourceUsage

	p, err := selfProcess()
	if err != nil {
		return usage, fmt.Errorf("error getting process: %v", err)
	}

	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return usage, fmt.Errorf("error getting CPU usage: %v", err)
	}
	usage.CPUPercent = cpuPercent

	virtualMem, err := mem.VirtualMemory()
	if err != nil {
		return usage, fmt.Errorf("error getting memory info: %v", err)
	}
	procMem, err := p.MemoryInfo()
	if err != nil {
		return usage, fmt.Errorf("error getting process memory: %v", err)
	}

	usage.MemoryUsedMB = float64(procMem.RSS) / 1024 / 1024
	usage.MemoryTotalMB = float64(virtualMem.Total) / 1024 / 1024
	usage.MemoryPercent = float64(procMem.RSS) / float64(virtualMem.Total) * 100
	usage.NumGoroutines = runtime.NumGoroutine()

	return usage, nil
}
