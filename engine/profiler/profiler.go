package profiler

import (
	"log/slog"
	"runtime"
	"time"

	"github.com/Carmen-Shannon/oxy-rendergraph/common"
	"github.com/Carmen-Shannon/oxy-rendergraph/engine/renderer/render_graph"
)

// Profiler tracks frame rate, memory and render graph statistics for performance monitoring.
// Outputs stats to the logger at a configurable interval.
type Profiler struct {
	logger *slog.Logger
	now    func() time.Time

	frameCount     int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64

	// render graph totals over the current interval
	stages   int
	barriers int
	uploads  int
	bytes    uint64

	last Report
}

// Report is the summary logged at the end of each update interval.
type Report struct {
	FPS         float64
	HeapMB      float64
	AllocRateMB float64
	GCCount     uint32
	LastPauseUs uint64
	MaxPauseUs  uint64
	SysMB       float64

	// Render graph averages per frame.
	StagesPerFrame   float64
	BarriersPerFrame float64
	UploadsPerFrame  float64
	UploadBytes      uint64
}

// NewProfiler creates a new Profiler with default settings.
// Update interval defaults to 1 second.
//
// Parameters:
//   - logger: the logger reports are written to; nil discards them
//   - options: functional options such as WithUpdateInterval
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(logger *slog.Logger, options ...ProfilerBuilderOption) *Profiler {
	p := &Profiler{
		logger:         common.LoggerOrNop(logger),
		now:            time.Now,
		updateInterval: time.Second,
		memStats:       runtime.MemStats{},
	}
	for _, opt := range options {
		opt(p)
	}
	p.lastTime = p.now()
	return p
}

// Tick should be called once per rendered frame with that frame's graph statistics.
// Logs performance statistics when the update interval has elapsed.
//
// Parameters:
//   - stats: the render graph statistics of the frame just rendered
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick(stats render_graph.FrameStats) bool {
	p.frameCount++
	p.stages += stats.StagesRecorded
	p.barriers += stats.Barriers
	p.uploads += stats.BuffersUploaded
	p.bytes += stats.BytesUploaded

	currentTime := p.now()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	frames := float64(p.frameCount)
	r := Report{
		FPS:              frames / elapsed.Seconds(),
		StagesPerFrame:   float64(p.stages) / frames,
		BarriersPerFrame: float64(p.barriers) / frames,
		UploadsPerFrame:  float64(p.uploads) / frames,
		UploadBytes:      p.bytes,
	}

	runtime.ReadMemStats(&p.memStats)
	// Alloc: live heap. TotalAlloc: cumulative, tracks churn. Sys: process footprint.
	r.HeapMB = float64(p.memStats.Alloc) / 1024 / 1024
	r.SysMB = float64(p.memStats.Sys) / 1024 / 1024
	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
	r.AllocRateMB = float64(allocDelta) / 1024 / 1024 / elapsed.Seconds()

	r.GCCount = p.memStats.NumGC
	if r.GCCount > 0 {
		// PauseNs is a circular buffer of last 256 GC pauses
		r.LastPauseUs = p.memStats.PauseNs[(r.GCCount-1)%256] / 1000

		startIdx := p.lastGCCount
		if r.GCCount-startIdx > 256 {
			startIdx = r.GCCount - 256
		}
		for i := startIdx; i < r.GCCount; i++ {
			if pause := p.memStats.PauseNs[i%256] / 1000; pause > r.MaxPauseUs {
				r.MaxPauseUs = pause
			}
		}
	}

	p.logger.Info("profiler",
		slog.Float64("fps", r.FPS),
		slog.Float64("heap_mb", r.HeapMB),
		slog.Float64("alloc_rate_mb_s", r.AllocRateMB),
		slog.Uint64("gc", uint64(r.GCCount)),
		slog.Uint64("gc_last_us", r.LastPauseUs),
		slog.Uint64("gc_max_us", r.MaxPauseUs),
		slog.Float64("sys_mb", r.SysMB),
		slog.Group("graph",
			slog.Float64("stages", r.StagesPerFrame),
			slog.Float64("barriers", r.BarriersPerFrame),
			slog.Float64("uploads", r.UploadsPerFrame),
			slog.Uint64("upload_bytes", r.UploadBytes),
		),
	)

	p.last = r
	p.frameCount = 0
	p.stages, p.barriers, p.uploads, p.bytes = 0, 0, 0, 0
	p.lastTime = currentTime
	p.lastGCCount = r.GCCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return true
}

// LastReport returns the most recently logged report.
func (p *Profiler) LastReport() Report {
	return p.last
}
