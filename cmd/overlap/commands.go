package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"

	"github.com/joeblew999/plat-overlap/internal/analysis"
	"github.com/joeblew999/plat-overlap/internal/prep"
	"github.com/joeblew999/plat-overlap/internal/server"
)

// specCmd exports the OpenAPI spec.
func specCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			cfg, log := load(opts)
			srv, err := server.New(cmd.Context(), cfg, &log)
			if err != nil {
				fatal(&log, err, "build server")
			}
			defer srv.Close()

			useYAML, _ := cmd.Flags().GetBool("yaml")
			if err := printOut(srv.OpenAPI(), useYAML); err != nil {
				fatal(&log, err, "marshal spec")
			}
		}),
	}
	cmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	return cmd
}

// analyzeCmd runs one analysis and prints the report.
func analyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze a parcel (--wkt, --file or --registry) and print the report",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			cfg, log := load(opts)
			wkt, _ := cmd.Flags().GetString("wkt")
			file, _ := cmd.Flags().GetString("file")
			registry, _ := cmd.Flags().GetString("registry")
			useYAML, _ := cmd.Flags().GetBool("yaml")

			if file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					fatal(&log, err, "read wkt file")
				}
				wkt = string(data)
			}
			if wkt == "" && registry == "" {
				fatal(&log, errors.New("one of --wkt, --file or --registry is required"), "analyze")
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			srv, err := server.New(ctx, cfg, &log)
			if err != nil {
				fatal(&log, err, "build server")
			}
			defer srv.Close()

			progress := func(s analysis.Step) {
				log.Info().Str("layer", s.Layer).Int("step", s.Index).Int("of", s.Total).
					Int("overlaps", s.Overlaps).Dur("elapsed", s.Elapsed).Msg("layer done")
			}

			var rep *analysis.Report
			if registry != "" {
				reg, ok := srv.Catalog().Registry()
				if !ok {
					fatal(&log, errors.New("no registry layer configured"), "analyze")
				}
				rep, err = srv.Analyzer().AnalyzeRecord(ctx, reg.ID, registry, progress)
			} else {
				rep, err = srv.Analyzer().AnalyzeWKT(ctx, wkt, progress)
			}
			if err != nil {
				fatal(&log, err, "analysis failed")
			}
			if err := printOut(rep, useYAML); err != nil {
				fatal(&log, err, "marshal report")
			}
		}),
	}
	cmd.Flags().String("wkt", "", "Parcel polygon as WKT")
	cmd.Flags().StringP("file", "f", "", "File holding the parcel WKT")
	cmd.Flags().String("registry", "", "Registry record code to analyze")
	cmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	return cmd
}

// prepCmd converts pending raw geometries of a layer in the SQL backend.
func prepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prep",
		Short: "Normalize the pending geometries of a layer (SQL backends)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			cfg, log := load(opts)
			layerID, _ := cmd.Flags().GetString("layer")
			if workers, _ := cmd.Flags().GetInt("workers"); workers > 0 {
				cfg.PrepWorkers = workers
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			progress := func(s prep.Snapshot) {
				log.Info().Str("layer", s.Name).Int64("processed", s.Processed).Int64("total", s.Total).
					Float64("percent", s.Percent).Float64("rate", s.Rate).Msg("prep progress")
			}
			stats, err := server.RunPrep(ctx, cfg, layerID, &log, progress)
			if err != nil {
				fatal(&log, err, "prep failed")
			}
			if err := printOut(stats, false); err != nil {
				fatal(&log, err, "marshal stats")
			}
		}),
	}
	cmd.Flags().StringP("layer", "l", "", "Layer id")
	cmd.Flags().Int("workers", 0, "Worker count (default PREP_WORKERS)")
	_ = cmd.MarkFlagRequired("layer")
	return cmd
}

// importCmd loads a GeoJSON file into a layer table of the SQL backend.
func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Replace a layer table with the features of a GeoJSON file (SQL backends)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			cfg, log := load(opts)
			layerID, _ := cmd.Flags().GetString("layer")
			file, _ := cmd.Flags().GetString("file")
			idField, _ := cmd.Flags().GetString("id-field")

			n, err := server.Import(cmd.Context(), cfg, layerID, file, idField)
			if err != nil {
				fatal(&log, err, "import failed")
			}
			fmt.Printf("imported %d records into %s; run `overlap prep --layer %s` next\n", n, layerID, layerID)
		}),
	}
	cmd.Flags().StringP("layer", "l", "", "Layer id")
	cmd.Flags().StringP("file", "f", "", "GeoJSON FeatureCollection")
	cmd.Flags().String("id-field", "", "Feature property holding the record id")
	_ = cmd.MarkFlagRequired("layer")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
