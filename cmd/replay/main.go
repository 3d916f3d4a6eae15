// Package main replays a recorded sample track through a claim or explore
// session and reports what the engine would have decided.
//
// Samples are JSON lines such as
//
//	{"point":{"lat":47.6062,"lng":-122.3321},"accuracy":5,"timestamp":"2026-03-14T09:00:00Z"}
//
// Foreign territories come from a JSON file, the shared Redis snapshot
// backed by the territory database, or the database directly. With
// DATABASE_URL set the session record is written to the session history.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/onnwee/turf/internal/config"
	"github.com/onnwee/turf/internal/db"
	"github.com/onnwee/turf/internal/middleware"
	"github.com/onnwee/turf/internal/session"
	"github.com/onnwee/turf/internal/territory"
	"github.com/onnwee/turf/internal/track"
)

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", "", "path to a YAML config file")
	samplesPath := flag.String("samples", "-", "JSON-lines sample file, - for stdin")
	owner := flag.String("owner", "replay", "owner ID of the replayed session")
	mode := flag.String("mode", "claim", "session mode: claim or explore")
	source := flag.String("source", "none", "foreign territories: none, file, redis or postgres")
	territoriesPath := flag.String("territories", "", "JSON territory file for -source=file")
	upload := flag.Bool("upload", false, "store a valid loop as a territory")
	verbose := flag.Bool("v", false, "print every sample result as a JSON line")
	kmlPath := flag.String("kml", "", "write territories and the recorded path as KML")
	flag.Parse()

	if *help {
		fmt.Println("Turf Track Replay")
		fmt.Println()
		fmt.Println("Usage: replay [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config:", err)
		}
		os.Exit(1)
	}

	// Logs go to stderr so stdout stays machine-readable.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	if *verbose {
		logger = middleware.NewLogger(cfg.Env)
	}
	slog.SetDefault(logger)

	sessionMode, err := session.ParseMode(*mode)
	if err != nil {
		fail(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	samples, err := readSamplesFrom(*samplesPath)
	if err != nil {
		fail(err)
	}
	var pool *sql.DB
	if cfg.DatabaseURL != "" {
		if pool, _, err = db.Open(ctx, cfg.DatabaseURL); err != nil {
			fail(err)
		}
		defer pool.Close()
	}

	foreign, err := loadTerritories(ctx, cfg, pool, *source, *territoriesPath)
	if err != nil {
		fail(err)
	}

	opts := Options{
		OwnerID:     *owner,
		Mode:        sessionMode,
		Upload:      *upload,
		Session:     cfg.SessionConfig(),
		Validator:   cfg.ValidatorConfig(),
		Bands:       cfg.ProximityBands(),
		Territories: foreign,
		Logger:      logger,
	}
	if pool != nil {
		opts.History = session.NewPostgresHistory(pool)
	}
	if *verbose {
		opts.Updates = os.Stdout
	}

	summary, err := Replay(ctx, opts, samples)
	if err != nil {
		fail(err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		fail(err)
	}

	if *kmlPath != "" {
		if err := writeKML(*kmlPath, *owner, foreign, summary); err != nil {
			fail(err)
		}
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "replay:", err)
	os.Exit(1)
}

func readSamplesFrom(path string) ([]track.Sample, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	return ReadSamples(r)
}

func loadTerritories(ctx context.Context, cfg *config.Config, pool *sql.DB, source, path string) ([]*territory.Territory, error) {
	if source == "file" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return ReadTerritories(f)
	}

	var cache territory.SnapshotCache
	if source == "redis" && cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()
		cache = territory.NewRedisSnapshotCache(client, "", cfg.SnapshotCacheTTL)
	}
	var repo territory.Source
	if pool != nil {
		repo = territory.NewPostgresRepository(pool)
	}

	src, err := territorySource(source, cache, repo, territory.NewMetrics())
	if err != nil || src == nil {
		return nil, err
	}
	return src.ListActive(ctx)
}

// territorySource picks where foreign territories come from. The Redis
// snapshot is read through to the database on a miss and refilled. A nil
// source means no foreign territories.
func territorySource(kind string, cache territory.SnapshotCache, repo territory.Source, metrics *territory.Metrics) (territory.Source, error) {
	switch kind {
	case "none":
		return nil, nil
	case "redis":
		if cache == nil {
			return nil, errors.New("-source=redis needs REDIS_URL")
		}
		if repo == nil {
			return nil, errors.New("-source=redis needs DATABASE_URL for cache misses")
		}
		return territory.NewCacheThroughSource(cache, repo, metrics), nil
	case "postgres":
		if repo == nil {
			return nil, errors.New("-source=postgres needs DATABASE_URL")
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown territory source %q", kind)
	}
}

func writeKML(path, owner string, foreign []*territory.Territory, summary Summary) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	all := foreign
	if summary.Territory != nil {
		all = append(all[:len(all):len(all)], summary.Territory)
	}
	if err := territory.WriteKML(f, "replay "+summary.Record.SessionID, owner, all, summary.Path); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
