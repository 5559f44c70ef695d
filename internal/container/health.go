package container

import (
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"gonum.org/v1/gonum/stat"
)

// systemStatsHistoryLimit bounds how many samples Diagnostics.Sample keeps
// for its trend calculation.
const systemStatsHistoryLimit = 60

// SystemStats is one point-in-time CPU/RAM reading, grounded on the
// teacher's getSystemStats helper.
type SystemStats struct {
	CPUPercent float64
	RAMPercent float64
	SampledAt  time.Time
}

// Diagnostics samples process-wide system load on demand and keeps a
// rolling window for trend reporting, supplementing the per-call CPU/RAM
// snapshot the teacher exposes with a smoothed trend the single snapshot
// can't show.
type Diagnostics struct {
	mu      sync.Mutex
	history []SystemStats
}

// NewDiagnostics builds an empty Diagnostics.
func NewDiagnostics() *Diagnostics {
	return &Diagnostics{}
}

// Sample takes one CPU/RAM reading (blocking up to 100ms for the CPU
// percentage, matching the teacher's fast-response interval), records it,
// and returns it.
func (d *Diagnostics) Sample() SystemStats {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	cpuAvg := 0.0
	if err == nil && len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	ramPercent := 0.0
	if memStat, err := mem.VirtualMemory(); err == nil {
		ramPercent = memStat.UsedPercent
	}

	sample := SystemStats{CPUPercent: cpuAvg, RAMPercent: ramPercent, SampledAt: time.Now()}

	d.mu.Lock()
	d.history = append(d.history, sample)
	if len(d.history) > systemStatsHistoryLimit {
		d.history = d.history[len(d.history)-systemStatsHistoryLimit:]
	}
	d.mu.Unlock()

	return sample
}

// Trend reports the mean and standard deviation of CPU/RAM over the
// retained window, used by the health surface to flag sustained load a
// single noisy sample wouldn't.
type Trend struct {
	CPUMean   float64
	CPUStdDev float64
	RAMMean   float64
	RAMStdDev float64
	Samples   int
}

// Trend computes the rolling mean/stddev of every retained sample.
func (d *Diagnostics) Trend() Trend {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.history) == 0 {
		return Trend{}
	}

	cpuVals := make([]float64, len(d.history))
	ramVals := make([]float64, len(d.history))
	for i, s := range d.history {
		cpuVals[i] = s.CPUPercent
		ramVals[i] = s.RAMPercent
	}

	var cpuMean, cpuStd, ramMean, ramStd float64
	if len(d.history) == 1 {
		cpuMean, ramMean = cpuVals[0], ramVals[0]
	} else {
		cpuMean, cpuStd = stat.MeanStdDev(cpuVals, nil)
		ramMean, ramStd = stat.MeanStdDev(ramVals, nil)
	}

	return Trend{
		CPUMean:   cpuMean,
		CPUStdDev: cpuStd,
		RAMMean:   ramMean,
		RAMStdDev: ramStd,
		Samples:   len(d.history),
	}
}
