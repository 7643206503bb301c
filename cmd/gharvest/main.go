// Command gharvest runs the event analytics pipeline: download, bronze,
// silver, gold and publish stages over hourly archive files.
package main

import (
	"context"
	"flag"
	"fmt"
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
		configPath = flag.String("config", "", "path to config file (YAML or JSON)")
		stage      = flag.String("stage", "", "stage to run: all, download, bronze, silver, gold, publish")
		dataDir    = flag.String("data-dir", "", "base directory for data files")
		startDate  = flag.String("start", "", "start date YYYY-MM-DD (download and gold range)")
		endDate    = flag.String("end", "", "end date YYYY-MM-DD, inclusive")
		topN       = flag.Int("top-n", 0, "size of the gold ranking tables")
		forceCSV   = flag.Bool("csv", false, "write delimited text instead of sqlite partitions")
		verbose    = flag.Bool("v", false, "enable debug logging")
	)
	flag.Parse()

	// A .env file is optional; missing is fine.
	_ = godotenv.Load()

	logger := newLogger(*verbose)

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.LoadFromFile(*configPath)
		if err != nil {
			logger.Error("failed to load config", "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	config.LoadFromEnv(cfg)

	if *stage != "" {
		cfg.Stage = config.Stage(*stage)
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *startDate != "" {
		cfg.Archive.StartDate = *startDate
		cfg.Gold.StartDate = *startDate
	}
	if *endDate != "" {
		cfg.Archive.EndDate = *endDate
		cfg.Gold.EndDate = *endDate
	}
	if *topN > 0 {
		cfg.Gold.TopN = *topN
	}
	if *forceCSV {
		cfg.Bronze.ForceCSV = true
		cfg.Silver.ForceCSV = true
		cfg.Gold.ForceCSV = true
	}

	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	summary, err := pipeline.New(cfg, logger).Run(ctx)
	if err != nil {
		logger.Error("pipeline run failed", "error", err)
		os.Exit(1)
	}

	fmt.Println(renderSummary(summary))
	if summary.AnyFailed() {
		os.Exit(1)
	}
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}

func renderSummary(s *pipeline.RunSummary) string {
	out := fmt.Sprintf("run %s\n", s.RunID)
	for _, l := range s.Layers {
		out += fmt.Sprintf("  %-10s total=%-5d ok=%-5d skipped=%-5d failed=%-5d records=%-8d %s\n",
			l.Layer, l.Total, l.Succeeded, l.Skipped, l.Failed, l.Records,
			l.Duration.Round(time.Millisecond))
	}
	return out
}
