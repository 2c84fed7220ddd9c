package prep

import (
	"sync/atomic"
	"time"
)

// Tracker counts processed records across workers.
type Tracker struct {
	Name  string
	total int64
	start time.Time

	processed atomic.Int64
	converted atomic.Int64
	failed    atomic.Int64
}

// Snapshot is a point-in-time view of a Tracker.
type Snapshot struct {
	Name      string  `json:"name"`
	Total     int64   `json:"total"`
	Processed int64   `json:"processed"`
	Percent   float64 `json:"percent"`
	Rate      float64 `json:"rate"`
}

// NewTracker starts tracking total records.
func NewTracker(total int64, name string) *Tracker {
	return &Tracker{Name: name, total: total, start: time.Now()}
}

// Convert counts one converted record.
func (t *Tracker) Convert() Snapshot {
	t.converted.Add(1)
	return t.snapshot(t.processed.Add(1))
}

// Fail counts one failed record.
func (t *Tracker) Fail() Snapshot {
	t.failed.Add(1)
	return t.snapshot(t.processed.Add(1))
}

// Snapshot returns the current progress.
func (t *Tracker) Snapshot() Snapshot {
	return t.snapshot(t.processed.Load())
}

func (t *Tracker) snapshot(done int64) Snapshot {
	s := Snapshot{Name: t.Name, Total: t.total, Processed: done}
	if t.total > 0 {
		s.Percent = float64(done) / float64(t.total) * 100
	}
	if secs := time.Since(t.start).Seconds(); secs > 0 {
		s.Rate = float64(done) / secs
	}
	return s
}

// Stats returns the final counters.
func (t *Tracker) Stats() Stats {
	return Stats{
		Total:     int(t.total),
		Converted: int(t.converted.Load()),
		Failed:    int(t.failed.Load()),
		Elapsed:   time.Since(t.start),
	}
}
