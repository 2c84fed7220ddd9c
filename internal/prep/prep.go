// Package prep converts raw layer geometries into usable ones: repaired,
// SRID-tagged and measured. It is the offline step that lets the SQL store
// answer bulk intersections.
package prep

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-overlap/internal/geometry"
	"github.com/joeblew999/plat-overlap/internal/layer"
	"github.com/joeblew999/plat-overlap/internal/logger"
)

// Lister returns the records still waiting for a usable geometry.
type Lister interface {
	Pending(ctx context.Context, layer string) ([]layer.Record, error)
}

// Saver writes one prepared record back.
type Saver interface {
	SaveUsable(ctx context.Context, layer, id, usableWKT string, areaM2 float64) error
}

// Session opens a Saver for one worker and returns its release func.
type Session func(ctx context.Context) (Saver, func(), error)

// ConnSessions gives every worker its own *sql.Conn bound to store.
func ConnSessions(db *sql.DB, store *layer.SQLStore) Session {
	return func(ctx context.Context) (Saver, func(), error) {
		conn, err := db.Conn(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("open worker connection: %w", err)
		}
		return store.WithQuerier(conn), func() { _ = conn.Close() }, nil
	}
}

// SharedSession hands the same Saver to every worker.
func SharedSession(s Saver) Session {
	return func(context.Context) (Saver, func(), error) {
		return s, func() {}, nil
	}
}

// Stats is the outcome of a run.
type Stats struct {
	Total     int           `json:"total"`
	Converted int           `json:"converted"`
	Failed    int           `json:"failed"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Job runs the conversion with a pool of workers.
type Job struct {
	Workers   int
	SRID      int
	Projector geometry.Projector
	Session   Session
	Logger    *zerolog.Logger
	// Progress, when set, receives a snapshot every ProgressEvery records.
	Progress      func(Snapshot)
	ProgressEvery int
}

// Run prepares every pending record of layerID.
func (j *Job) Run(ctx context.Context, layerID string, src Lister) (Stats, error) {
	if j.Session == nil || j.Projector == nil {
		return Stats{}, errors.New("prep: session and projector are required")
	}
	if err := layer.ValidateID(layerID); err != nil {
		return Stats{}, err
	}
	log := logger.FromContext(logger.WithLayer(logger.WithComponent(ctx, "prep"), layerID), j.logger())

	pending, err := src.Pending(ctx, layerID)
	if err != nil {
		return Stats{}, err
	}
	log.Info().Int("pending", len(pending)).Int("workers", j.workers()).Msg("preparing layer")

	tracker := NewTracker(int64(len(pending)), layerID)
	if len(pending) == 0 {
		return tracker.Stats(), nil
	}

	jobs := make(chan layer.Record)
	errs := make(chan error, j.workers())
	var wg sync.WaitGroup
	for i := 0; i < j.workers(); i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if err := j.worker(ctx, id, layerID, jobs, tracker, log); err != nil {
				errs <- err
			}
		}(i)
	}

feed:
	for _, rec := range pending {
		select {
		case jobs <- rec:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	close(errs)

	stats := tracker.Stats()
	log.Info().
		Int("converted", stats.Converted).
		Int("failed", stats.Failed).
		Dur("elapsed", stats.Elapsed).
		Msg("layer prepared")

	if err := ctx.Err(); err != nil {
		return stats, err
	}
	var werr error
	for err := range errs {
		werr = errors.Join(werr, err)
	}
	return stats, werr
}

func (j *Job) worker(ctx context.Context, id int, layerID string, jobs <-chan layer.Record, tracker *Tracker, log *zerolog.Logger) error {
	saver, release, err := j.Session(ctx)
	if err != nil {
		// drain so the feeder does not block on a dead worker
		for range jobs {
			tracker.Fail()
		}
		return err
	}
	defer release()

	// GEOS contexts are not shared between workers.
	norm := geometry.NewIsolatedNormalizer(j.SRID)
	for rec := range jobs {
		if ctx.Err() != nil {
			continue
		}
		if err := j.prepare(ctx, norm, saver, layerID, rec); err != nil {
			log.Debug().Err(err).Int("worker", id).Str("id", rec.ID).Msg("record not prepared")
			j.report(tracker.Fail())
			continue
		}
		j.report(tracker.Convert())
	}
	return nil
}

func (j *Job) prepare(ctx context.Context, norm *geometry.Normalizer, saver Saver, layerID string, rec layer.Record) error {
	g, err := norm.Parse(rec.WKT)
	if err != nil {
		return err
	}
	var wkt string
	if err := geometry.Guard(func() error {
		wkt = g.ToWKT()
		return nil
	}); err != nil {
		return err
	}
	area, err := geometry.AreaM2(g, j.Projector)
	if err != nil {
		return err
	}
	return saver.SaveUsable(ctx, layerID, rec.ID, wkt, area)
}

func (j *Job) report(s Snapshot) {
	if j.Progress == nil {
		return
	}
	every := int64(j.ProgressEvery)
	if every <= 0 {
		every = 100
	}
	if s.Processed%every == 0 || s.Processed == s.Total {
		j.Progress(s)
	}
}

func (j *Job) workers() int {
	if j.Workers <= 0 {
		return runtime.NumCPU()
	}
	return j.Workers
}

func (j *Job) logger() *zerolog.Logger {
	if j.Logger == nil {
		return logger.Nop()
	}
	return j.Logger
}
