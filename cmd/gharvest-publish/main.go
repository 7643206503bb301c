// Command gharvest-publish mirrors the local layer trees into object
// storage. Credentials and bucket settings come from the environment or a
// .env file in the working directory.
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
		dataDir = flag.String("data-dir", "./data", "base directory for data files")
		bucket  = flag.String("bucket", "", "s3 bucket to publish to (empty uses local storage)")
		region  = flag.String("region", "", "aws region")
		prefix  = flag.String("prefix", "", "object key prefix")
		verbose = flag.Bool("v", false, "enable debug logging")
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

	cfg := config.DefaultConfig()
	config.LoadFromEnv(cfg)
	cfg.Stage = config.StagePublish
	cfg.DataDir = *dataDir
	if *bucket != "" {
		cfg.Storage.Type = "s3"
		cfg.Storage.S3.Bucket = *bucket
	}
	if *region != "" {
		cfg.Storage.S3.Region = *region
	}
	if *prefix != "" {
		cfg.Storage.Prefix = *prefix
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
		logger.Error("publish failed", "error", err)
		os.Exit(1)
	}
	if summary.AnyFailed() {
		os.Exit(1)
	}
}
