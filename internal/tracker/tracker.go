// Package tracker persists per-analysis quality records to append-only
// daily JSONL files and serves statistics queries over a bounded in-memory
// ring.
package tracker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantflux/confluence/internal/models"
)

// DefaultRingCapacity bounds the in-memory record ring when the config
// gives no capacity.
const DefaultRingCapacity = 1000

// filePattern names one UTC day's record file.
const filePattern = "quality_metrics_%s.jsonl"

// Tracker appends quality records to one JSONL file per UTC day and keeps
// the most recent records in a ring for statistics queries. Writes hold the
// file lock only; ring reads use their own lock so queries never stall an
// append.
type Tracker struct {
	dir string
	log zerolog.Logger

	fileMu  sync.Mutex
	file    *os.File
	fileDay string

	ringMu sync.RWMutex
	ring   []models.QualityRecord
	next   int
	filled bool
}

// New creates a tracker writing under dir. The directory is created on
// first use.
func New(dir string, ringCapacity int, log zerolog.Logger) *Tracker {
	if ringCapacity <= 0 {
		ringCapacity = DefaultRingCapacity
	}
	return &Tracker{
		dir:  dir,
		log:  log.With().Str("component", "quality_tracker").Logger(),
		ring: make([]models.QualityRecord, ringCapacity),
	}
}

// Record appends one quality record to the current day's file and retains
// it in the ring. File errors are returned after the ring is updated, so
// statistics stay usable even with a broken disk.
func (t *Tracker) Record(rec models.QualityRecord) error {
	t.retain(rec)

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal quality record: %w", err)
	}

	t.fileMu.Lock()
	defer t.fileMu.Unlock()
	f, err := t.currentFile(rec.Time())
	if err != nil {
		return err
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append quality record: %w", err)
	}
	return nil
}

// currentFile returns the open handle for the record's UTC day, rotating
// when the day changed. Caller holds fileMu.
func (t *Tracker) currentFile(at time.Time) (*os.File, error) {
	day := at.UTC().Format("20060102")
	if t.file != nil && t.fileDay == day {
		return t.file, nil
	}
	if t.file != nil {
		if err := t.file.Close(); err != nil {
			t.log.Error().Err(err).Msg("Failed to close rotated quality file")
		}
		t.file = nil
	}
	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create tracker directory %s: %w", t.dir, err)
	}
	path := filepath.Join(t.dir, fmt.Sprintf(filePattern, day))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open quality file %s: %w", path, err)
	}
	t.file = f
	t.fileDay = day
	t.log.Info().Str("path", path).Msg("Opened quality metrics file")
	return f, nil
}

// retain stores the record in the ring.
func (t *Tracker) retain(rec models.QualityRecord) {
	t.ringMu.Lock()
	t.ring[t.next] = rec
	t.next++
	if t.next == len(t.ring) {
		t.next = 0
		t.filled = true
	}
	t.ringMu.Unlock()
}

// Recent returns the retained records newer than the cutoff, optionally
// restricted to one symbol. Records come back in no particular order.
func (t *Tracker) Recent(cutoff time.Time, symbol string) []models.QualityRecord {
	t.ringMu.RLock()
	defer t.ringMu.RUnlock()
	n := t.next
	if t.filled {
		n = len(t.ring)
	}
	out := make([]models.QualityRecord, 0, n)
	for i := 0; i < n; i++ {
		rec := t.ring[i]
		if rec.Time().Before(cutoff) {
			continue
		}
		if symbol != "" && rec.Symbol != symbol {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// Close closes the current day's file.
func (t *Tracker) Close() error {
	t.fileMu.Lock()
	defer t.fileMu.Unlock()
	if t.file == nil {
		return nil
	}
	err := t.file.Close()
	t.file = nil
	return err
}
