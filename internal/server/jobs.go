package server

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-overlap/internal/config"
	"github.com/joeblew999/plat-overlap/internal/layer"
	"github.com/joeblew999/plat-overlap/internal/prep"
)

// ErrNoDatabase is returned by jobs that need the SQL backend when the
// memory backend is configured.
var ErrNoDatabase = errors.New("job needs BACKEND=duckdb or BACKEND=postgres")

func openSQLStore(ctx context.Context, cfg config.Config) (*layer.SQLStore, func() error, error) {
	if cfg.Backend == config.BackendMemory {
		return nil, nil, ErrNoDatabase
	}
	conn, d, err := OpenDB(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return layer.NewSQLStore(conn, d, cfg.GeographicSRID), conn.Close, nil
}

// RunPrep converts the pending raw geometries of layerID into usable
// geometries with cfg.PrepWorkers workers, one connection each.
func RunPrep(ctx context.Context, cfg config.Config, layerID string, log *zerolog.Logger, progress func(prep.Snapshot)) (prep.Stats, error) {
	c, err := newComponents(cfg)
	if err != nil {
		return prep.Stats{}, err
	}
	if cfg.Backend == config.BackendMemory {
		return prep.Stats{}, ErrNoDatabase
	}
	conn, d, err := OpenDB(ctx, cfg)
	if err != nil {
		return prep.Stats{}, err
	}
	defer conn.Close()

	store := layer.NewSQLStore(conn, d, cfg.GeographicSRID)
	job := &prep.Job{
		Workers:       cfg.PrepWorkers,
		SRID:          cfg.GeographicSRID,
		Projector:     c.projector,
		Session:       prep.ConnSessions(conn, store),
		Logger:        log,
		Progress:      progress,
		ProgressEvery: 100,
	}
	return job.Run(ctx, layerID, store)
}

// Import replaces the rows of layerID with the features of a GeoJSON file.
// Imported rows are pending until RunPrep converts them.
func Import(ctx context.Context, cfg config.Config, layerID, path, idProp string) (int, error) {
	if err := layer.ValidateID(layerID); err != nil {
		return 0, err
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	recs, err := layer.DecodeGeoJSON(f, idProp)
	if err != nil {
		return 0, fmt.Errorf("decode %s: %w", path, err)
	}

	store, closeDB, err := openSQLStore(ctx, cfg)
	if err != nil {
		return 0, err
	}
	defer closeDB()
	return store.Import(ctx, layerID, recs)
}
