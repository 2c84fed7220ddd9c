package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joeblew999/plat-overlap/internal/config"
	"github.com/joeblew999/plat-overlap/internal/db"
	"github.com/joeblew999/plat-overlap/internal/format"
	"github.com/joeblew999/plat-overlap/internal/geometry"
	"github.com/joeblew999/plat-overlap/internal/layer"
	"github.com/joeblew999/plat-overlap/internal/overlap"
	"github.com/joeblew999/plat-overlap/internal/service"
)

// components are the geometry pieces shared by the server and the CLI jobs.
type components struct {
	normalizer *geometry.Normalizer
	projector  geometry.Projector
	engine     *overlap.Engine
	formatters *format.Registry
}

func newComponents(cfg config.Config) (*components, error) {
	var (
		p   geometry.Projector
		err error
	)
	if cfg.MetricProj != "" {
		p, err = geometry.NewProjector(geometry.DefaultGeographicProj, cfg.MetricProj)
	} else {
		p, err = geometry.DefaultProjector()
	}
	if err != nil {
		return nil, fmt.Errorf("metric projection: %w", err)
	}

	table := format.DefaultPreservationTable()
	if cfg.PreservationFile != "" {
		if table, err = format.LoadPreservationTable(cfg.PreservationFile); err != nil {
			return nil, err
		}
	}

	return &components{
		normalizer: geometry.NewNormalizer(cfg.GeographicSRID),
		projector:  p,
		engine: overlap.NewEngine(p,
			overlap.WithMinAreaHa(cfg.MinOverlapHa),
			overlap.WithRegistryDiscardPercent(cfg.RegistryDiscardPercent),
		),
		formatters: format.DefaultRegistry(table),
	}, nil
}

// openStore opens the configured backend. The memory backend is filled from
// the GeoJSON source file of every catalog layer; missing files leave the
// layer empty.
func (s *Server) openStore(ctx context.Context, c *components, catalog *service.LayerService, sources *service.SourceService) (layer.Store, error) {
	switch s.cfg.Backend {
	case config.BackendMemory:
		mem := layer.NewMemoryStore(c.normalizer)
		for _, l := range catalog.Ordered(false) {
			if err := s.loadSource(mem, sources, l); err != nil {
				return nil, err
			}
		}
		return mem, nil

	case config.BackendDuckDB, config.BackendPostgres:
		conn, d, err := OpenDB(ctx, s.cfg)
		if err != nil {
			return nil, err
		}
		s.db, s.dialect = conn, d
		return layer.NewSQLStore(conn, d, s.cfg.GeographicSRID), nil

	default:
		return nil, fmt.Errorf("unknown backend %q", s.cfg.Backend)
	}
}

func (s *Server) loadSource(mem *layer.MemoryStore, sources *service.SourceService, l service.LayerConfig) error {
	if l.File == "" {
		return nil
	}
	path, err := sources.Path(l.File)
	if err != nil {
		return fmt.Errorf("layer %s: %w", l.ID, err)
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		s.log.Debug().Str("layer", l.ID).Str("file", path).Msg("no source file, layer left empty")
		return nil
	}
	if err != nil {
		return fmt.Errorf("layer %s: %w", l.ID, err)
	}
	defer f.Close()

	n, err := mem.LoadGeoJSON(l.ID, f, l.IDField)
	if err != nil {
		return fmt.Errorf("layer %s: load %s: %w", l.ID, l.File, err)
	}
	s.log.Info().Str("layer", l.ID).Int("records", n).Msg("layer loaded")
	return nil
}

// OpenDB opens the SQL backend selected by cfg.
func OpenDB(ctx context.Context, cfg config.Config) (*sql.DB, layer.Dialect, error) {
	return db.Open(ctx, db.Config{
		Backend: string(cfg.Backend),
		DataDir: cfg.DataDir,
		DBName:  cfg.DuckDBName,
		DSN:     cfg.DatabaseURL,
	})
}
