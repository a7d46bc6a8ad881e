package resource

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func monitorAt(usedMB int) *MemoryMonitor {
	m := NewMemoryMonitor(1000, 0, 0, nil)
	m.readUsage = func() uint64 { return uint64(usedMB) * 1024 * 1024 }
	return m
}

func TestMemoryLevels(t *testing.T) {
	tests := []struct {
		name   string
		usedMB int
		want   MemoryLevel
	}{
		{"well under", 100, MemoryNormal},
		{"just under gc threshold", 799, MemoryNormal},
		{"at gc threshold", 800, MemoryHigh},
		{"between thresholds", 900, MemoryHigh},
		{"at emergency threshold", 950, MemoryEmergency},
		{"over ceiling", 1100, MemoryEmergency},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, monitorAt(tt.usedMB).Level())
		})
	}
}

func TestMemoryPeakTracking(t *testing.T) {
	m := NewMemoryMonitor(1000, 0, 0, nil)
	used := uint64(100)
	m.readUsage = func() uint64 { return used * 1024 * 1024 }

	m.Usage()
	used = 600
	m.Usage()
	used = 300
	m.Usage()

	assert.InDelta(t, 600.0, m.PeakMB(), 0.01, "peak must not decrease when usage drops")
}

func TestMemoryCheckReturnsLevel(t *testing.T) {
	assert.Equal(t, MemoryNormal, monitorAt(100).Check())
	assert.Equal(t, MemoryHigh, monitorAt(850).Check())
	assert.Equal(t, MemoryEmergency, monitorAt(990).Check())
}

func TestWorkerCountHalvesUnderPressure(t *testing.T) {
	assert.Equal(t, 8, WorkerCount(8, monitorAt(100)))
	assert.Equal(t, 4, WorkerCount(8, monitorAt(850)))
	assert.Equal(t, 1, WorkerCount(1, monitorAt(990)), "worker count never drops below 1")
	assert.Greater(t, WorkerCount(0, nil), 0, "defaults to CPU count")
}
