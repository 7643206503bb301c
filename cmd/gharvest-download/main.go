// Command gharvest-download fetches hourly archive files without running
// the rest of the pipeline. Useful for pre-seeding a data directory.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gharvest/gharvest/internal/config"
	"github.com/gharvest/gharvest/internal/pipeline"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
)

func main() {
	var (
		dataDir   = flag.String("data-dir", "./data", "base directory for data files")
		startDate = flag.String("start", "", "start date YYYY-MM-DD (required)")
		endDate   = flag.String("end", "", "end date YYYY-MM-DD, inclusive (required)")
		workers   = flag.Int("workers", 5, "parallel downloads")
		verbose   = flag.Bool("v", false, "enable debug logging")
	)
	flag.Parse()

	_ = godotenv.Load()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))

	if *startDate == "" || *endDate == "" {
		logger.Error("both -start and -end are required")
		os.Exit(1)
	}

	cfg := config.DefaultConfig()
	config.LoadFromEnv(cfg)
	cfg.Stage = config.StageDownload
	cfg.DataDir = *dataDir
	cfg.Archive.StartDate = *startDate
	cfg.Archive.EndDate = *endDate
	cfg.Archive.Workers = *workers

	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	summary, err := pipeline.New(cfg, logger).Run(ctx)
	if err != nil {
		logger.Error("download failed", "error", err)
		os.Exit(1)
	}
	if summary.AnyFailed() {
		os.Exit(1)
	}
}
