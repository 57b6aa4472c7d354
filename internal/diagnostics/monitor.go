// Package diagnostics samples host-machine load while a session is
// open, so a slow stream can be attributed to host contention rather
// than device backpressure. It never touches the device link.
package diagnostics

import (
	"log/slog"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostStats holds one sample of host-machine telemetry.
type HostStats struct {
	CPUPercent    float64
	MemoryPercent float64
	LoadAverage1  float64
	SampledAt     time.Time
}

// HostMonitor periodically samples CPU, memory and load average.
type HostMonitor struct {
	logger   *slog.Logger
	interval time.Duration

	close chan struct{}
	wg    sync.WaitGroup

	mu    sync.RWMutex
	stats HostStats
}

// NewHostMonitor builds a monitor that samples every interval. A
// non-positive interval falls back to 15 seconds.
func NewHostMonitor(logger *slog.Logger, interval time.Duration) *HostMonitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &HostMonitor{
		logger:   logger.With("component", "diagnostics"),
		interval: interval,
		close:    make(chan struct{}),
	}
}

// Start begins periodic sampling in the background.
func (m *HostMonitor) Start() {
	m.wg.Add(1)
	go m.run()
}

// Stop halts sampling and waits for the background goroutine to exit.
func (m *HostMonitor) Stop() {
	close(m.close)
	m.wg.Wait()
}

// Stats returns the most recently collected sample.
func (m *HostMonitor) Stats() HostStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

func (m *HostMonitor) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.sample()

	for {
		select {
		case <-m.close:
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

func (m *HostMonitor) sample() {
	stats := HostStats{SampledAt: time.Now()}

	if percentages, err := cpu.Percent(0, false); err == nil && len(percentages) > 0 {
		stats.CPUPercent = percentages[0]
	} else {
		m.logger.Debug("failed to sample cpu", "error", err)
	}

	if v, err := mem.VirtualMemory(); err == nil {
		stats.MemoryPercent = v.UsedPercent
	} else {
		m.logger.Debug("failed to sample memory", "error", err)
	}

	if l, err := load.Avg(); err == nil {
		stats.LoadAverage1 = l.Load1
	} else {
		m.logger.Debug("failed to sample load average", "error", err)
	}

	m.mu.Lock()
	m.stats = stats
	m.mu.Unlock()
}
