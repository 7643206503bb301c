// Package pipeline orchestrates the layered runs: download, bronze,
// silver, gold and publish. Each layer processes its input files through a
// bounded worker pool and reports a per-unit outcome.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gharvest/gharvest/internal/archive"
	"github.com/gharvest/gharvest/internal/bronze"
	"github.com/gharvest/gharvest/internal/config"
	"github.com/gharvest/gharvest/internal/gold"
	"github.com/gharvest/gharvest/internal/reconcile"
	"github.com/gharvest/gharvest/internal/silver"
	"github.com/gharvest/gharvest/internal/storage"
	"github.com/gharvest/gharvest/internal/table"
	"github.com/gharvest/gharvest/pkg/types"
	"github.com/google/uuid"
)

// UnitStatus is the outcome of processing one file.
type UnitStatus string

const (
	StatusSuccess UnitStatus = "success"
	StatusSkipped UnitStatus = "skipped"
	StatusError   UnitStatus = "error"
)

// UnitResult reports one processed file.
type UnitResult struct {
	Name    string
	Status  UnitStatus
	Records int
	Err     error
}

// LayerSummary tallies a layer's units.
type LayerSummary struct {
	Layer     string
	Total     int
	Succeeded int
	Skipped   int
	Failed    int
	Records   int
	Duration  time.Duration
}

// AnyFailed reports whether any unit of the layer errored.
func (s LayerSummary) AnyFailed() bool { return s.Failed > 0 }

// RunSummary collects the summaries of every layer that ran.
type RunSummary struct {
	RunID  string
	Layers []LayerSummary
}

// AnyFailed reports whether any layer had a failed unit.
func (r *RunSummary) AnyFailed() bool {
	for _, l := range r.Layers {
		if l.AnyFailed() {
			return true
		}
	}
	return false
}

// Pipeline wires the layer builders together for one run.
type Pipeline struct {
	cfg    *config.Config
	logger *slog.Logger
	runID  string
}

// New creates a pipeline for the given configuration.
func New(cfg *config.Config, logger *slog.Logger) *Pipeline {
	runID := uuid.New().String()[:8]
	return &Pipeline{
		cfg:    cfg,
		logger: logger.With("run_id", runID),
		runID:  runID,
	}
}

// Run executes the configured stages in layer order and returns the run
// summary. A failed unit marks the summary but does not stop the other
// units of its layer; a failed layer does not stop later layers, which
// simply see fewer inputs.
func (p *Pipeline) Run(ctx context.Context) (*RunSummary, error) {
	if err := p.cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	summary := &RunSummary{RunID: p.runID}
	p.logger.Info("pipeline run starting", "stage", p.cfg.Stage)

	if p.cfg.ShouldRun(config.StageDownload) {
		ls, err := p.runDownload(ctx)
		if err != nil {
			return summary, err
		}
		summary.Layers = append(summary.Layers, *ls)
	}

	if p.cfg.ShouldRun(config.StageBronze) {
		ls, err := p.runBronze(ctx)
		if err != nil {
			return summary, err
		}
		summary.Layers = append(summary.Layers, *ls)
	}

	if p.cfg.ShouldRun(config.StageSilver) {
		ls, err := p.runSilver(ctx)
		if err != nil {
			return summary, err
		}
		summary.Layers = append(summary.Layers, *ls)
	}

	if p.cfg.ShouldRun(config.StageGold) {
		ls, err := p.runGold(ctx)
		if err != nil {
			return summary, err
		}
		summary.Layers = append(summary.Layers, *ls)
	}

	if p.cfg.ShouldRun(config.StagePublish) {
		ls, err := p.runPublish(ctx)
		if err != nil {
			return summary, err
		}
		summary.Layers = append(summary.Layers, *ls)
	}

	for _, l := range summary.Layers {
		p.logger.Info("layer finished",
			"layer", l.Layer,
			"total", l.Total,
			"succeeded", l.Succeeded,
			"skipped", l.Skipped,
			"failed", l.Failed,
			"records", l.Records,
			"duration", l.Duration.Round(time.Millisecond))
	}

	return summary, nil
}

func (p *Pipeline) runDownload(ctx context.Context) (*LayerSummary, error) {
	if p.cfg.Archive.StartDate == "" || p.cfg.Archive.EndDate == "" {
		return nil, fmt.Errorf("pipeline: download stage requires archive start and end dates")
	}

	keys, err := archive.Hours(p.cfg.Archive.StartDate, p.cfg.Archive.EndDate)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	dl := archive.NewDownloader(p.cfg.Archive, p.cfg.RawDir(), p.logger)
	results := p.runPool(ctx, "download", p.cfg.Archive.Workers, len(keys), func(i int) string {
		return keys[i].ArchiveName()
	}, func(i int) UnitResult {
		key := keys[i]
		skipped, err := dl.Fetch(ctx, key)
		res := UnitResult{Name: key.ArchiveName()}
		switch {
		case err != nil:
			res.Status = StatusError
			res.Err = err
		case skipped:
			res.Status = StatusSkipped
		default:
			res.Status = StatusSuccess
		}
		return res
	})

	return p.summarize("download", start, results), nil
}

func (p *Pipeline) runBronze(ctx context.Context) (*LayerSummary, error) {
	files, err := findFiles(p.cfg.RawDir(), ".json.gz")
	if err != nil {
		return nil, err
	}

	start := time.Now()
	writer := table.NewWriter(p.logger, p.cfg.Bronze.ForceCSV)
	builder := bronze.NewBuilder(p.cfg.BronzeDir(), p.cfg.Bronze.BatchSize, writer, p.logger)

	results := p.runPool(ctx, "bronze", p.cfg.Bronze.Workers, len(files), func(i int) string {
		return filepath.Base(files[i])
	}, func(i int) UnitResult {
		path := files[i]
		res := UnitResult{Name: filepath.Base(path)}

		key, err := types.ParseHourKey(path)
		if err != nil {
			res.Status = StatusError
			res.Err = err
			return res
		}

		br, err := builder.Process(ctx, path, key)
		switch {
		case err != nil:
			res.Status = StatusError
			res.Err = err
		case br.Skipped:
			res.Status = StatusSkipped
		default:
			res.Status = StatusSuccess
			res.Records = br.Records
		}
		return res
	})

	return p.summarize("bronze", start, results), nil
}

func (p *Pipeline) runSilver(ctx context.Context) (*LayerSummary, error) {
	var files []string
	for _, ext := range []string{".bronze.sqlite", ".bronze.csv"} {
		found, err := findFiles(p.cfg.BronzeDir(), ext)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}
	sort.Strings(files)

	start := time.Now()
	writer := table.NewWriter(p.logger, p.cfg.Silver.ForceCSV)
	cache := reconcile.NewCache()
	builder := silver.NewBuilder(p.cfg.SilverDir(), writer, cache, p.logger)

	if err := builder.SeedFromPrior(ctx); err != nil {
		return nil, err
	}

	results := p.runPool(ctx, "silver", p.cfg.Silver.Workers, len(files), func(i int) string {
		return filepath.Base(files[i])
	}, func(i int) UnitResult {
		path := files[i]
		res := UnitResult{Name: filepath.Base(path)}

		key, err := types.ParseHourKey(path)
		if err != nil {
			res.Status = StatusError
			res.Err = err
			return res
		}

		sr, err := builder.Process(ctx, path, key)
		switch {
		case err != nil:
			res.Status = StatusError
			res.Err = err
		case sr.Skipped:
			res.Status = StatusSkipped
		default:
			res.Status = StatusSuccess
			res.Records = sr.Events
		}
		return res
	})

	if dropped := cache.Dropped(); dropped > 0 {
		p.logger.Warn("dropped dimension observations without ids", "count", dropped)
	}

	return p.summarize("silver", start, results), nil
}

func (p *Pipeline) runGold(ctx context.Context) (*LayerSummary, error) {
	start := time.Now()

	writer := table.NewWriter(p.logger, p.cfg.Gold.ForceCSV)
	builder := gold.NewBuilder(p.cfg.SilverDir(), p.cfg.GoldDir(), p.cfg.Gold.TopN, writer, p.logger)

	rangeStart, rangeEnd := p.cfg.GoldRange()
	runDate := time.Now().UTC().Format("2006-01-02")

	res, err := builder.Build(ctx, runDate, types.DateRange{Start: rangeStart, End: rangeEnd})

	ls := &LayerSummary{Layer: "gold", Duration: time.Since(start)}
	if err != nil {
		ls.Total = 1
		ls.Failed = 1
		p.logger.Error("gold build failed", "error", err)
		return ls, nil
	}

	ls.Records = res.Events
	for _, tr := range res.Tables {
		ls.Total++
		if tr.SkipReason != "" {
			ls.Skipped++
			continue
		}
		ls.Succeeded++
		p.logger.Info("gold table written", "table", tr.Table, "rows", tr.Rows, "path", tr.OutputPath)
	}
	return ls, nil
}

func (p *Pipeline) runPublish(ctx context.Context) (*LayerSummary, error) {
	start := time.Now()

	store, err := p.openStorage(ctx)
	if err != nil {
		return nil, err
	}

	pub := storage.NewPublisher(store, p.cfg.Storage.Prefix, p.logger)
	ls := &LayerSummary{Layer: "publish"}

	layers := map[string]string{
		"bronze": p.cfg.BronzeDir(),
		"silver": p.cfg.SilverDir(),
		"gold":   p.cfg.GoldDir(),
	}
	for _, layer := range []string{"bronze", "silver", "gold"} {
		res, err := pub.PublishTree(ctx, layer, layers[layer])
		ls.Total++
		if err != nil {
			ls.Failed++
			p.logger.Error("publish failed", "layer", layer, "error", err)
			continue
		}
		ls.Succeeded++
		ls.Records += res.Uploaded
		p.logger.Info("layer published", "layer", layer, "uploaded", res.Uploaded, "skipped", res.Skipped, "bytes", res.Bytes)
	}

	ls.Duration = time.Since(start)
	return ls, nil
}

func (p *Pipeline) openStorage(ctx context.Context) (storage.ObjectStorage, error) {
	switch p.cfg.Storage.Type {
	case "s3":
		return storage.NewS3Storage(ctx, p.cfg.Storage.S3.Bucket, storage.S3Config{
			Region:       p.cfg.Storage.S3.Region,
			Endpoint:     p.cfg.Storage.S3.Endpoint,
			UsePathStyle: p.cfg.Storage.S3.Endpoint != "",
		})
	default:
		return storage.NewLocalStorage(p.cfg.Storage.Path)
	}
}

// runPool fans n units out over a bounded worker pool and gathers the
// results in input order. name labels units that never ran because the
// context was canceled.
func (p *Pipeline) runPool(ctx context.Context, layer string, workers, n int, name func(i int) string, fn func(i int) UnitResult) []UnitResult {
	if workers < 1 {
		workers = 1
	}

	results := make([]UnitResult, n)
	indexes := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				results[i] = fn(i)
				if results[i].Status == StatusError {
					p.logger.Error("unit failed", "layer", layer, "unit", results[i].Name, "error", results[i].Err)
				}
			}
		}()
	}

	for i := 0; i < n; i++ {
		select {
		case indexes <- i:
		case <-ctx.Done():
			results[i] = UnitResult{Name: name(i), Status: StatusError, Err: ctx.Err()}
		}
	}
	close(indexes)
	wg.Wait()

	return results
}

func (p *Pipeline) summarize(layer string, start time.Time, results []UnitResult) *LayerSummary {
	ls := &LayerSummary{Layer: layer, Total: len(results), Duration: time.Since(start)}
	for _, r := range results {
		switch r.Status {
		case StatusSuccess:
			ls.Succeeded++
			ls.Records += r.Records
		case StatusSkipped:
			ls.Skipped++
		default:
			ls.Failed++
		}
	}
	return ls
}

// findFiles walks dir and returns files whose names end with suffix.
func findFiles(dir, suffix string) ([]string, error) {
	var out []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == dir {
				return filepath.SkipAll
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, suffix) {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: failed to scan %s: %w", dir, err)
	}
	sort.Strings(out)
	return out, nil
}
