package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-overlap/internal/config"
	"github.com/joeblew999/plat-overlap/internal/logger"
	"github.com/joeblew999/plat-overlap/internal/server"
)

// Options defines the CLI flags and env vars of the overlap server.
// Flags: --host, --port, --env
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_ENV
// Everything else is read from the environment (see internal/config).
type Options struct {
	Host string `doc:"Host to bind to" default:"0.0.0.0"`
	Port int    `doc:"Port to listen on" short:"p" default:"8086"`
	Env  string `doc:"Path of a .env file to load" default:".env"`
}

// load reads the runtime configuration and builds the logger.
func load(opts *Options) (config.Config, zerolog.Logger) {
	config.LoadDotEnv(opts.Env)
	cfg := config.FromEnv()
	cfg.Addr = fmt.Sprintf("%s:%d", opts.Host, opts.Port)
	log := logger.Build(logger.Config{Level: cfg.LogLevel, Console: cfg.LogConsole, Component: "overlap"}, os.Stderr)
	return cfg, log
}

func fatal(log *zerolog.Logger, err error, msg string) {
	log.Error().Err(err).Msg(msg)
	os.Exit(1)
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		var (
			httpSrv *http.Server
			cancel  context.CancelFunc
		)

		hooks.OnStart(func() {
			cfg, log := load(opts)
			ctx, stop := context.WithCancel(context.Background())
			cancel = stop

			srv, err := server.New(ctx, cfg, &log)
			if err != nil {
				fatal(&log, err, "build server")
			}
			defer srv.Close()
			srv.Start(ctx)

			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)
			log.Info().
				Str("addr", cfg.Addr).
				Str("backend", string(cfg.Backend)).
				Str("docs", baseURL+"/docs").
				Str("openapi", baseURL+"/openapi.json").
				Msg("plat-overlap API server starting")

			httpSrv = &http.Server{Addr: cfg.Addr, Handler: srv, ReadHeaderTimeout: 10 * time.Second}
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				fatal(&log, err, "server error")
			}
		})

		hooks.OnStop(func() {
			if cancel != nil {
				cancel()
			}
			if httpSrv != nil {
				ctx, done := context.WithTimeout(context.Background(), 10*time.Second)
				defer done()
				_ = httpSrv.Shutdown(ctx)
			}
		})
	})

	cli.Root().Use = "overlap"
	cli.Root().Short = "Overlap analysis of rural parcels against reference layers"
	cli.Root().Version = "0.1.0"

	cli.Root().AddCommand(specCmd(), analyzeCmd(), prepCmd(), importCmd())
	cli.Run()
}

// printOut writes v as indented JSON, or YAML when asYAML is set.
func printOut(v any, asYAML bool) error {
	var (
		out []byte
		err error
	)
	if asYAML {
		out, err = yaml.Marshal(v)
	} else {
		out, err = json.MarshalIndent(v, "", "  ")
	}
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
