// Package runstats samples process-level resource usage during training so
// the CLI can report CPU and memory pressure alongside the loss curve.
package runstats

import (
	"fmt"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/process"
)

// Sample is a point-in-time snapshot of the training process.
type Sample struct {
	CPUPercent float64 // process CPU usage since the previous sample
	RSSMB      float64 // resident set size in megabytes
	Goroutines int
}

// Sampler reads resource usage of the current process. CPU percentages are
// measured between consecutive Sample calls, so the first reading is zero.
type Sampler struct {
	proc *process.Process
}

// NewSampler creates a sampler bound to the current process.
func NewSampler() (*Sampler, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("runstats: %w", err)
	}
	return &Sampler{proc: proc}, nil
}

// Sample returns the current resource usage snapshot.
func (s *Sampler) Sample() (Sample, error) {
	cpu, err := s.proc.Percent(0)
	if err != nil {
		return Sample{}, fmt.Errorf("runstats: cpu: %w", err)
	}
	mem, err := s.proc.MemoryInfo()
	if err != nil {
		return Sample{}, fmt.Errorf("runstats: memory: %w", err)
	}
	return Sample{
		CPUPercent: cpu,
		RSSMB:      float64(mem.RSS) / (1024 * 1024),
		Goroutines: runtime.NumGoroutine(),
	}, nil
}

// String formats the sample for log lines.
func (s Sample) String() string {
	return fmt.Sprintf("cpu=%.1f%% rss=%.1fMB goroutines=%d", s.CPUPercent, s.RSSMB, s.Goroutines)
}
