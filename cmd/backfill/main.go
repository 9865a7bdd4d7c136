// Package main is the counter backfill job. It rebuilds every month counter
// from the raw subscriber records and exits.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/apodmail/apodmail/internal/backfill"
	"github.com/apodmail/apodmail/internal/cache"
	"github.com/apodmail/apodmail/internal/store"
)

func main() {
	var (
		databaseURL = flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
		redisURL    = flag.String("redis-url", os.Getenv("REDIS_URL"), "Redis URL for stats cache invalidation (optional)")
		timeout     = flag.Duration("timeout", 30*time.Minute, "Overall job timeout")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if *databaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := store.NewPostgres(ctx, *databaseURL, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Without Redis the counters are still repaired; the cached stats
	// payload then just ages out on its TTL.
	var invalidator backfill.StatsInvalidator
	if *redisURL != "" {
		c, err := cache.New(ctx, *redisURL)
		if err != nil {
			logger.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer c.Close()
		invalidator = c
	}

	runner := backfill.NewRunner(db, invalidator, logger)

	start := time.Now()
	report, err := runner.Run(ctx)
	if err != nil {
		logger.Error("backfill failed", "error", err)
		os.Exit(1)
	}

	logger.Info("backfill complete",
		"deleted_counters", report.Deleted,
		"processed_records", report.Processed,
		"counted", report.Counted,
		"months", report.Months,
		"duration", time.Since(start).String(),
	)
}
