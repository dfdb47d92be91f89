package thumbnail

import (
	"math"
	"runtime"
	"runtime/debug"

	"github.com/fruitsalade/mediavault/internal/bytesize"
)

// MemoryMonitor reports the process memory ceiling and current usage, both
// in bytes. A Limit of zero or less means no ceiling is known.
type MemoryMonitor interface {
	Limit() int64
	Usage() int64
}

// RuntimeMonitor reads usage from the Go runtime.
type RuntimeMonitor struct {
	limit int64
}

// NewRuntimeMonitor resolves the ceiling once. configured is a value from
// bytesize.ParseMemoryLimit: positive values win, bytesize.Unlimited disables
// the preflight, and zero falls back to the Go soft memory limit and then to
// the process address-space rlimit.
func NewRuntimeMonitor(configured int64) *RuntimeMonitor {
	switch {
	case configured > 0:
		return &RuntimeMonitor{limit: configured}
	case configured == bytesize.Unlimited:
		return &RuntimeMonitor{}
	}

	if soft := debug.SetMemoryLimit(-1); soft > 0 && soft < math.MaxInt64 {
		return &RuntimeMonitor{limit: soft}
	}
	return &RuntimeMonitor{limit: processMemoryLimit()}
}

func (m *RuntimeMonitor) Limit() int64 { return m.limit }

// Usage returns memory obtained from the OS minus what has been returned.
func (m *RuntimeMonitor) Usage() int64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return int64(ms.Sys - ms.HeapReleased)
}

// StaticMonitor reports fixed values.
type StaticMonitor struct {
	LimitBytes int64
	UsageBytes int64
}

func (m StaticMonitor) Limit() int64 { return m.LimitBytes }
func (m StaticMonitor) Usage() int64 { return m.UsageBytes }
