package indicators

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// slowOpThreshold is the duration beyond which a sub-score computation is
// logged as slow.
const slowOpThreshold = 100 * time.Millisecond

// OpStats summarizes the recorded durations of one operation.
type OpStats struct {
	Count int           `json:"count"`
	Total time.Duration `json:"total"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Avg   time.Duration `json:"avg"`
}

// PerfMonitor records per-operation timing for an indicator. It is safe for
// concurrent use.
type PerfMonitor struct {
	mu    sync.Mutex
	stats map[string]*OpStats
	log   zerolog.Logger
}

// NewPerfMonitor creates a performance monitor.
func NewPerfMonitor(log zerolog.Logger) *PerfMonitor {
	return &PerfMonitor{
		stats: make(map[string]*OpStats),
		log:   log,
	}
}

// Track runs fn, recording its duration under op.
func (p *PerfMonitor) Track(op string, fn func()) {
	start := time.Now()
	fn()
	p.Record(op, time.Since(start))
}

// Record adds one observation for op.
func (p *PerfMonitor) Record(op string, d time.Duration) {
	p.mu.Lock()
	s, ok := p.stats[op]
	if !ok {
		s = &OpStats{Min: d, Max: d}
		p.stats[op] = s
	}
	s.Count++
	s.Total += d
	if d < s.Min {
		s.Min = d
	}
	if d > s.Max {
		s.Max = d
	}
	p.mu.Unlock()

	if d > slowOpThreshold {
		p.log.Warn().
			Str("operation", op).
			Dur("duration", d).
			Msg("Slow indicator operation")
	}
}

// GetPerformanceMetrics returns a copy of the recorded stats with averages
// filled in.
func (p *PerfMonitor) GetPerformanceMetrics() map[string]OpStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]OpStats, len(p.stats))
	for op, s := range p.stats {
		c := *s
		if c.Count > 0 {
			c.Avg = c.Total / time.Duration(c.Count)
		}
		out[op] = c
	}
	return out
}
