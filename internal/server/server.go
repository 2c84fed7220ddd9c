// Package server assembles the overlap service: layer store, caches,
// analyzer, invalidation and the Huma HTTP API.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-overlap/internal/analysis"
	"github.com/joeblew999/plat-overlap/internal/api"
	"github.com/joeblew999/plat-overlap/internal/config"
	"github.com/joeblew999/plat-overlap/internal/invalidation"
	"github.com/joeblew999/plat-overlap/internal/layer"
	"github.com/joeblew999/plat-overlap/internal/logger"
	"github.com/joeblew999/plat-overlap/internal/metrics"
	"github.com/joeblew999/plat-overlap/internal/reportcache"
	"github.com/joeblew999/plat-overlap/internal/service"
)

// Server is the overlap HTTP server.
type Server struct {
	cfg     config.Config
	log     *zerolog.Logger
	mux     *http.ServeMux
	humaAPI huma.API

	db       *sql.DB
	dialect  layer.Dialect
	cached   *layer.CachedStore
	reports  *reportcache.Cache
	provider *metrics.Provider
	recorder *metrics.Recorder
	services *api.Services
}

// New builds every component from cfg. It fails when the backend cannot be
// opened or a catalog layer has no formatter.
func New(ctx context.Context, cfg config.Config, log *zerolog.Logger) (*Server, error) {
	if log == nil {
		log = logger.Nop()
	}
	mux := http.NewServeMux()

	humaConfig := huma.DefaultConfig("plat-overlap API", api.Version)
	humaConfig.Info.Description = "Overlap analysis of rural parcels against environmental and land-registry reference layers."
	humaConfig.Transformers = append(humaConfig.Transformers, api.LinkTransformer())
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}

	s := &Server{
		cfg:     cfg,
		log:     log,
		mux:     mux,
		humaAPI: humago.New(mux, humaConfig),
	}
	if err := s.build(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	s.routes()
	return s, nil
}

func (s *Server) build(ctx context.Context) error {
	if s.cfg.MetricsEnabled {
		s.provider = metrics.Init(metrics.Config{Build: metrics.BuildInfo{Version: api.Version}})
		s.recorder = metrics.NewRecorder(s.provider.Registerer())
	}

	bus := service.NewEventBus()
	catalog := service.NewLayerService(s.cfg.DataDir, bus)
	if s.cfg.RegistryLayer != "" {
		if err := catalog.SetRegistry(s.cfg.RegistryLayer); err != nil {
			return fmt.Errorf("registry layer: %w", err)
		}
	}
	sources := service.NewSourceService(s.cfg.DataDir)

	c, err := newComponents(s.cfg)
	if err != nil {
		return err
	}

	store, err := s.openStore(ctx, c, catalog, sources)
	if err != nil {
		return err
	}
	s.cached = layer.NewCachedStore(store, s.cfg.CandidateCacheSize)

	if s.cfg.RedisAddr != "" {
		rc, err := reportcache.New(ctx, s.cfg.RedisAddr, s.cfg.ReportCacheTTL)
		if err != nil {
			return err
		}
		s.reports = rc
	}

	opts := analysis.Options{
		Catalog:     catalog,
		Store:       s.cached,
		Normalizer:  c.normalizer,
		Engine:      c.engine,
		Formatters:  c.formatters,
		Metrics:     s.recorder,
		Logger:      s.log,
		PerfLogPath: s.cfg.PerfLogPath,
	}
	invs := []invalidation.Invalidator{invalidation.Candidates(s.cached)}
	if s.reports != nil {
		opts.Cache = s.reports
		invs = append(invs, s.reports)
	}
	analyzer, err := analysis.New(opts)
	if err != nil {
		return err
	}

	s.services = &api.Services{
		Catalog:     catalog,
		Sources:     sources,
		Bus:         bus,
		Store:       s.cached,
		Analyzer:    analyzer,
		Invalidator: invalidation.Chain(invs...),
		Metrics:     s.recorder,
		Logger:      s.log,
	}
	return nil
}

func (s *Server) routes() {
	s.humaAPI.UseMiddleware(s.requestID)
	huma.AutoRegister(s.humaAPI, api.NewAPIHandler(s.services))
	api.NewInfoHandler(api.Features{
		Backend:     string(s.cfg.Backend),
		DataDir:     s.cfg.DataDir,
		DB:          s.db != nil,
		ReportCache: s.reports != nil,
		Kafka:       s.cfg.KafkaEnabled,
	}).RegisterRoutes(s.humaAPI)
	api.NewDBHandler(s.db, s.dialect).RegisterRoutes(s.humaAPI)

	if s.provider != nil {
		s.mux.Handle("/metrics", s.provider.Handler())
	}
}

// requestID tags the request context with an id taken from X-Request-ID or
// generated, and logs the request once it is served.
func (s *Server) requestID(ctx huma.Context, next func(huma.Context)) {
	id := ctx.Header("X-Request-ID")
	if id == "" {
		id = logger.NewID()
	}
	ctx.SetHeader("X-Request-ID", id)
	start := time.Now()
	rctx := logger.WithRequestID(ctx.Context(), id)
	next(huma.WithContext(ctx, rctx))

	logger.FromContext(rctx, s.log).Debug().
		Str("method", ctx.Method()).
		Str("path", ctx.URL().Path).
		Int("status", ctx.Status()).
		Dur("elapsed", time.Since(start)).
		Msg("request")
}

// Start runs the background invalidation sources until ctx is done: the
// catalog event watcher and, when enabled, the Kafka consumer.
func (s *Server) Start(ctx context.Context) {
	slog := logger.NewSlog(s.log)
	go invalidation.Watch(ctx, s.services.Bus, s.services.Invalidator, slog, s.recorder)

	if s.cfg.KafkaEnabled {
		kc := invalidation.New(
			invalidation.DefaultConfig(s.cfg.KafkaBrokers, s.cfg.KafkaTopic, s.cfg.KafkaGroupID),
			slog, s.services.Invalidator, s.recorder,
		)
		go func() {
			if err := kc.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.log.Error().Err(err).Msg("kafka consumer stopped")
			}
		}()
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// OpenAPI returns the OpenAPI document of the registered routes.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Analyzer returns the analyzer behind the API.
func (s *Server) Analyzer() *analysis.Analyzer {
	return s.services.Analyzer
}

// Catalog returns the layer catalog.
func (s *Server) Catalog() *service.LayerService {
	return s.services.Catalog
}

// Close releases the database and the report cache.
func (s *Server) Close() error {
	var errs []error
	if s.reports != nil {
		errs = append(errs, s.reports.Close())
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	return errors.Join(errs...)
}
