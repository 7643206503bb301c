// Package integration exercises the full pipeline over a synthesized raw
// archive: bronze, silver and gold built end to end in a temp directory.
package integration

import (
	"compress/gzip"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gharvest/gharvest/internal/config"
	"github.com/gharvest/gharvest/internal/gold"
	"github.com/gharvest/gharvest/internal/pipeline"
	"github.com/gharvest/gharvest/internal/silver"
	"github.com/gharvest/gharvest/internal/table"
	"github.com/gharvest/gharvest/pkg/types"
)

func writeRawArchive(t *testing.T, cfg *config.Config, key types.HourKey, lines []string) {
	t.Helper()
	dir := filepath.Join(cfg.RawDir(), key.DateDir())
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(filepath.Join(dir, key.ArchiveName()))
	if err != nil {
		t.Fatal(err)
	}
	zw := gzip.NewWriter(f)
	for _, line := range lines {
		fmt.Fprintln(zw, line)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

func pushLine(id, actorID, repoID, commits int, hour int) string {
	return fmt.Sprintf(`{"id": "%d", "type": "PushEvent", "actor": {"id": %d, "login": "user%d"}, "repo": {"id": %d, "name": "owner/repo%d"}, "org": {"id": 300, "login": "owner"}, "payload": {"size": %d, "distinct_size": %d, "ref": "refs/heads/main"}, "public": true, "created_at": "2024-03-01T%02d:00:00Z"}`,
		id, actorID, actorID, repoID, repoID, commits, commits, hour)
}

func runStage(t *testing.T, cfg *config.Config, stage config.Stage) *pipeline.RunSummary {
	t.Helper()
	cfg.Stage = stage
	summary, err := pipeline.New(cfg, slog.Default()).Run(context.Background())
	if err != nil {
		t.Fatalf("stage %s failed: %v", stage, err)
	}
	if summary.AnyFailed() {
		t.Fatalf("stage %s had failed units: %+v", stage, summary.Layers)
	}
	return summary
}

func TestPipelineEndToEnd(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}

	key5 := types.HourKey{Year: 2024, Month: 3, Day: 1, Hour: 5}
	key6 := types.HourKey{Year: 2024, Month: 3, Day: 1, Hour: 6}

	// Hour 5: three pushes from two actors on two repos, one duplicated line
	dup := pushLine(1, 100, 200, 2, 5)
	writeRawArchive(t, cfg, key5, []string{
		dup,
		dup,
		pushLine(2, 100, 201, 4, 5),
		pushLine(3, 101, 200, 1, 5),
	})
	// Hour 6: one more push from a third actor
	writeRawArchive(t, cfg, key6, []string{
		pushLine(4, 102, 200, 3, 6),
	})

	runStage(t, cfg, config.StageBronze)
	runStage(t, cfg, config.StageSilver)
	runStage(t, cfg, config.StageGold)

	// Silver events: 4 distinct events survive the duplicate line
	eventsDir := filepath.Join(cfg.SilverDir(), silver.TableEvents)
	entries, err := os.ReadDir(eventsDir)
	if err != nil {
		t.Fatalf("silver events missing: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d silver event partitions, want 2", len(entries))
	}

	var totalEvents int
	for _, e := range entries {
		rows, err := table.Read(context.Background(), filepath.Join(eventsDir, e.Name()), silver.Schemas[silver.TableEvents])
		if err != nil {
			t.Fatal(err)
		}
		totalEvents += len(rows)
	}
	if totalEvents != 4 {
		t.Errorf("silver events = %d, want 4 after dedup", totalEvents)
	}

	// Gold repo metrics: repo 200 saw three events from three actors
	runDate := time.Now().UTC().Format("2006-01-02")
	repoMetricsPath := table.ExistingPath(filepath.Join(
		cfg.GoldDir(), gold.TableRepoMetrics,
		fmt.Sprintf("%s.%s", runDate, gold.TableRepoMetrics)))
	if repoMetricsPath == "" {
		t.Fatal("gold repo_metrics output missing")
	}

	rows, err := table.Read(context.Background(), repoMetricsPath, gold.Schemas[gold.TableRepoMetrics])
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d repo metric rows, want 2", len(rows))
	}

	byRepo := map[int64]types.Record{}
	for _, r := range rows {
		id, _ := r["repo_id"].(int64)
		byRepo[id] = r
	}
	if got, _ := byRepo[200]["total_events"].(int64); got != 3 {
		t.Errorf("repo 200 total_events = %d, want 3", got)
	}
	if got, _ := byRepo[200]["unique_actors"].(int64); got != 3 {
		t.Errorf("repo 200 unique_actors = %d, want 3", got)
	}
	if got, _ := byRepo[200]["repo_name"].(string); got != "owner/repo200" {
		t.Errorf("repo 200 name = %q, dimension join failed", got)
	}

	// Repo activity: commits come from push payload sizes
	activityPath := table.ExistingPath(filepath.Join(
		cfg.GoldDir(), gold.TableRepoActivity,
		fmt.Sprintf("%s.%s", runDate, gold.TableRepoActivity)))
	if activityPath == "" {
		t.Fatal("gold repo_activity output missing")
	}
	activityRows, err := table.Read(context.Background(), activityPath, gold.Schemas[gold.TableRepoActivity])
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range activityRows {
		if id, _ := r["repo_id"].(int64); id == 200 {
			if got, _ := r["pushes"].(int64); got != 3 {
				t.Errorf("repo 200 pushes = %d, want 3", got)
			}
			if got, _ := r["commits"].(int64); got != 6 {
				t.Errorf("repo 200 commits = %d, want 6", got)
			}
		}
	}

	// Daily summary: one row per hour bucket
	summaryPath := table.ExistingPath(filepath.Join(
		cfg.GoldDir(), gold.TableDailySummary,
		fmt.Sprintf("%s.%s", runDate, gold.TableDailySummary)))
	if summaryPath == "" {
		t.Fatal("gold daily_summary output missing")
	}
	summaryRows, err := table.Read(context.Background(), summaryPath, gold.Schemas[gold.TableDailySummary])
	if err != nil {
		t.Fatal(err)
	}
	if len(summaryRows) != 2 {
		t.Errorf("daily_summary rows = %d, want 2 hour buckets", len(summaryRows))
	}
}

func TestPipelineRerunSkips(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Resolve()

	key := types.HourKey{Year: 2024, Month: 3, Day: 1, Hour: 5}
	writeRawArchive(t, cfg, key, []string{pushLine(1, 100, 200, 1, 5)})

	runStage(t, cfg, config.StageBronze)
	runStage(t, cfg, config.StageSilver)

	bronzeAgain := runStage(t, cfg, config.StageBronze)
	if bronzeAgain.Layers[0].Skipped != 1 {
		t.Errorf("bronze rerun skipped = %d, want 1", bronzeAgain.Layers[0].Skipped)
	}

	silverAgain := runStage(t, cfg, config.StageSilver)
	if silverAgain.Layers[0].Skipped != 1 {
		t.Errorf("silver rerun skipped = %d, want 1", silverAgain.Layers[0].Skipped)
	}
}

func TestPipelinePublishToLocalStorage(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Resolve()

	key := types.HourKey{Year: 2024, Month: 3, Day: 1, Hour: 5}
	writeRawArchive(t, cfg, key, []string{pushLine(1, 100, 200, 1, 5)})

	runStage(t, cfg, config.StageBronze)
	runStage(t, cfg, config.StageSilver)
	runStage(t, cfg, config.StageGold)
	runStage(t, cfg, config.StagePublish)

	var published int
	err := filepath.Walk(cfg.Storage.Path, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			published++
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if published == 0 {
		t.Error("publish stage wrote nothing to local storage")
	}
}
