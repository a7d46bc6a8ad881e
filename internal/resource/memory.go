package resource

import (
	"context"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MemoryLevel grades current memory pressure.
type MemoryLevel int

const (
	MemoryNormal    MemoryLevel = iota
	MemoryHigh                  // above the GC threshold
	MemoryEmergency             // above the emergency threshold
)

func (l MemoryLevel) String() string {
	switch l {
	case MemoryNormal:
		return "normal"
	case MemoryHigh:
		return "high"
	case MemoryEmergency:
		return "emergency"
	default:
		return "unknown"
	}
}

// MemoryMonitor samples process heap usage against a configured ceiling.
// Crossing the GC threshold requests a collection; crossing the emergency
// threshold forces an aggressive pass that also returns memory to the OS.
type MemoryMonitor struct {
	mu sync.Mutex

	maxBytes           uint64
	gcThreshold        float64
	emergencyThreshold float64
	peakBytes          uint64
	lastGC             time.Time
	logger             *zap.Logger

	// readUsage is swappable in tests.
	readUsage func() uint64
}

// NewMemoryMonitor creates a monitor with the given ceiling in MB.
// Thresholds of 0 default to 0.80 and 0.95.
func NewMemoryMonitor(maxMemoryMB int, gcThreshold, emergencyThreshold float64, logger *zap.Logger) *MemoryMonitor {
	if maxMemoryMB <= 0 {
		maxMemoryMB = 2048
	}
	if gcThreshold <= 0 {
		gcThreshold = 0.80
	}
	if emergencyThreshold <= 0 {
		emergencyThreshold = 0.95
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryMonitor{
		maxBytes:           uint64(maxMemoryMB) * 1024 * 1024,
		gcThreshold:        gcThreshold,
		emergencyThreshold: emergencyThreshold,
		logger:             logger,
		readUsage:          heapInUse,
	}
}

func heapInUse() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapInuse + ms.StackInuse
}

// Usage returns current usage in bytes and as a fraction of the ceiling.
func (m *MemoryMonitor) Usage() (uint64, float64) {
	used := m.readUsage()

	m.mu.Lock()
	if used > m.peakBytes {
		m.peakBytes = used
	}
	m.mu.Unlock()

	return used, float64(used) / float64(m.maxBytes)
}

// Level grades the current usage.
func (m *MemoryMonitor) Level() MemoryLevel {
	_, frac := m.Usage()
	switch {
	case frac >= m.emergencyThreshold:
		return MemoryEmergency
	case frac >= m.gcThreshold:
		return MemoryHigh
	default:
		return MemoryNormal
	}
}

// Check samples usage and reacts: a high reading requests a GC, an
// emergency reading forces collection and returns freed pages to the OS.
// GC requests are rate-limited to one per second so a hot loop calling
// Check does not spend its time collecting.
func (m *MemoryMonitor) Check() MemoryLevel {
	level := m.Level()
	if level == MemoryNormal {
		return level
	}

	m.mu.Lock()
	recent := time.Since(m.lastGC) < time.Second
	if !recent {
		m.lastGC = time.Now()
	}
	m.mu.Unlock()
	if recent {
		return level
	}

	used, frac := m.Usage()
	m.logger.Warn("memory pressure",
		zap.String("level", level.String()),
		zap.Uint64("used_bytes", used),
		zap.Float64("fraction", frac))

	if level == MemoryEmergency {
		debug.FreeOSMemory()
	} else {
		runtime.GC()
	}
	return level
}

// PeakMB returns the highest usage observed, in MB.
func (m *MemoryMonitor) PeakMB() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return float64(m.peakBytes) / (1024 * 1024)
}

// WaitForHeadroom blocks until usage drops below the emergency threshold or
// the context ends. Used by the streaming processor to drain in-flight work
// before admitting more.
func (m *MemoryMonitor) WaitForHeadroom(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if m.Check() != MemoryEmergency {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
