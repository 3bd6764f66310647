// triage is the operator tool for scoring detections and probing road data
// without going through the HTTP API.
//
//	triage score --width 0.4 --height 0.2 --confidence 0.92 --priority-factor 5 --traffic 4
//	triage road --lat 12.9716 --lon 77.5946
//	triage path --from-lat 12.9716 --from-lon 77.5946 --to-lat 12.9352 --to-lon 77.6245
//	triage rank
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/potholeops/backend/internal/cache"
	"github.com/potholeops/backend/internal/config"
	"github.com/potholeops/backend/internal/db"
	"github.com/potholeops/backend/internal/geo"
	"github.com/potholeops/backend/internal/graph"
	"github.com/potholeops/backend/internal/roadinfo"
	"github.com/potholeops/backend/internal/routing"
	"github.com/potholeops/backend/internal/service"
	"github.com/potholeops/backend/internal/severity"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		printUsage()
		return errors.New("missing command")
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	switch args[0] {
	case "score":
		return scoreCmd(cfg, args[1:])
	case "road":
		return roadCmd(ctx, cfg, logger, args[1:])
	case "path":
		return pathCmd(ctx, cfg, logger, args[1:])
	case "rank":
		return rankCmd(ctx, cfg, logger, args[1:])
	case "help", "-h", "--help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: triage <command> [flags]

commands:
  score   compute a priority score from detection metrics
  road    resolve the road context at a coordinate
  path    shortest road path between two coordinates
  rank    rank every unranked pothole in the database`)
}

func scoreCmd(cfg config.Config, args []string) error {
	var in severity.Input
	fs := pflag.NewFlagSet("score", pflag.ContinueOnError)
	fs.Float64Var(&in.BBoxWidth, "width", 0, "bounding box width fraction (0-1)")
	fs.Float64Var(&in.BBoxHeight, "height", 0, "bounding box height fraction (0-1)")
	fs.Float64VarP(&in.Confidence, "confidence", "c", 0, "detector confidence (0-1)")
	fs.Float64Var(&in.RoadPriorityFactor, "priority-factor", cfg.DefaultPriorityFactor, "road priority factor")
	fs.Float64Var(&in.TrafficImportance, "traffic", cfg.DefaultTrafficImportance, "traffic importance")
	if err := fs.Parse(args); err != nil {
		return err
	}
	scorer := severity.NewScorer(severity.Limits{
		PriorityFactorMax:    cfg.PriorityFactorMax,
		TrafficImportanceMax: cfg.TrafficImportanceMax,
	})
	res := scorer.Calculate(in)
	return printJSON(map[string]any{
		"ranking":     res,
		"description": severity.LevelDescription(res.PriorityLevel),
		"explanation": severity.Explain(res),
	})
}

func roadCmd(ctx context.Context, cfg config.Config, logger zerolog.Logger, args []string) error {
	var lat, lon float64
	fs := pflag.NewFlagSet("road", pflag.ContinueOnError)
	fs.Float64Var(&lat, "lat", 0, "latitude")
	fs.Float64Var(&lon, "lon", 0, "longitude")
	mock := fs.Bool("mock", cfg.UseMockRoads(), "use the synthetic road grid")
	if err := fs.Parse(args); err != nil {
		return err
	}
	resolver := &roadinfo.Resolver{
		Provider:     roadProvider(cfg, logger, *mock),
		RadiusMeters: cfg.RoadInfoRadius,
		Defaults: roadinfo.Defaults{
			TrafficImportance: cfg.DefaultTrafficImportance,
			PriorityFactor:    cfg.DefaultPriorityFactor,
		},
		Logger: logger,
	}
	rc, err := resolver.Lookup(ctx, lat, lon)
	if err != nil {
		return err
	}
	return printJSON(rc)
}

func pathCmd(ctx context.Context, cfg config.Config, logger zerolog.Logger, args []string) error {
	var from, to geo.Point
	fs := pflag.NewFlagSet("path", pflag.ContinueOnError)
	fs.Float64Var(&from.Lat, "from-lat", 0, "start latitude")
	fs.Float64Var(&from.Lon, "from-lon", 0, "start longitude")
	fs.Float64Var(&to.Lat, "to-lat", 0, "end latitude")
	fs.Float64Var(&to.Lon, "to-lon", 0, "end longitude")
	radius := fs.Float64("radius", cfg.GraphRadius, "minimum graph radius in meters")
	mock := fs.Bool("mock", cfg.UseMockRoads(), "use the synthetic road grid")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := from.Validate(); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	if err := to.Validate(); err != nil {
		return fmt.Errorf("end: %w", err)
	}
	b := &graph.Builder{
		Provider:  roadProvider(cfg, logger, *mock),
		Radius:    *radius,
		MaxRadius: cfg.GraphMaxRadius,
		Logger:    logger,
	}
	route, err := b.Route(ctx, from, to)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{
		"distance_m": route.Distance,
		"distance":   routing.FormatDistance(route.Distance),
		"duration":   routing.FormatDuration(route.DurationSeconds),
		"nodes":      len(route.Nodes),
		"polyline":   route.Polyline,
	})
}

func rankCmd(ctx context.Context, cfg config.Config, logger zerolog.Logger, args []string) error {
	fs := pflag.NewFlagSet("rank", pflag.ContinueOnError)
	concurrency := fs.IntP("concurrency", "j", cfg.TriageConcurrency, "parallel road lookups")
	limit := fs.Int("limit", service.DefaultBatchLimit, "maximum potholes per run")
	mock := fs.Bool("mock", cfg.UseMockRoads(), "use the synthetic road grid")
	if err := fs.Parse(args); err != nil {
		return err
	}
	store, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer store.Close()

	triage := &service.TriageService{
		Potholes: store,
		Runs:     store,
		Roads: &roadinfo.Resolver{
			Provider:     roadProvider(cfg, logger, *mock),
			RadiusMeters: cfg.RoadInfoRadius,
			Defaults: roadinfo.Defaults{
				TrafficImportance: cfg.DefaultTrafficImportance,
				PriorityFactor:    cfg.DefaultPriorityFactor,
			},
			Logger: logger,
		},
		Scorer: severity.NewScorer(severity.Limits{
			PriorityFactorMax:    cfg.PriorityFactorMax,
			TrafficImportanceMax: cfg.TrafficImportanceMax,
		}),
		Concurrency: *concurrency,
		BatchLimit:  *limit,
		Logger:      logger,
	}
	summary, err := triage.RankPending(ctx)
	if err != nil {
		return err
	}
	return printJSON(summary)
}

func roadProvider(cfg config.Config, logger zerolog.Logger, mock bool) roadinfo.Provider {
	if mock {
		return roadinfo.MockProvider{}
	}
	return &roadinfo.CachedProvider{
		Next: &roadinfo.OverpassClient{
			URLs:        cfg.OverpassMirrors(),
			UserAgent:   cfg.UserAgent,
			MinInterval: time.Second,
			Client:      &http.Client{Timeout: cfg.ExternalTimeout},
		},
		Cache:  cache.NewMemory(),
		TTL:    cfg.GraphCacheTTL,
		Logger: logger,
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
