package gold

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gharvest/gharvest/internal/table"
	"github.com/gharvest/gharvest/pkg/types"
)

// TableResult reports one Gold table of a run.
type TableResult struct {
	Table      string
	Rows       int
	OutputPath string
	SkipReason string
}

// Result reports a whole Gold run.
type Result struct {
	RunDate string
	Events  int
	Tables  []TableResult
}

// Builder computes the Gold metric tables from Silver data.
type Builder struct {
	silverDir string
	goldDir   string
	topN      int
	writer    *table.Writer
	logger    *slog.Logger
}

// NewBuilder creates a Gold builder reading Silver from silverDir and
// writing under goldDir.
func NewBuilder(silverDir, goldDir string, topN int, writer *table.Writer, logger *slog.Logger) *Builder {
	return &Builder{
		silverDir: silverDir,
		goldDir:   goldDir,
		topN:      topN,
		writer:    writer,
		logger:    logger,
	}
}

// BasePath returns the extension-less output path for one Gold table keyed
// by run date.
func (b *Builder) BasePath(tbl, runDate string) string {
	return filepath.Join(b.goldDir, tbl, fmt.Sprintf("%s.%s", runDate, tbl))
}

// Build computes every Gold table over the Silver partitions within the
// date range and writes them keyed by runDate (YYYY-MM-DD). Unlike the
// earlier layers Gold always overwrites: a rerun for the same date
// replaces its previous outputs in either format.
func (b *Builder) Build(ctx context.Context, runDate string, dateRange types.DateRange) (*Result, error) {
	ds, err := LoadDataset(ctx, b.silverDir, dateRange)
	if err != nil {
		return nil, err
	}

	res := &Result{RunDate: runDate, Events: len(ds.Events)}
	if len(ds.Events) == 0 {
		for _, tbl := range Tables {
			res.Tables = append(res.Tables, TableResult{Table: tbl, SkipReason: "no silver events in range"})
		}
		b.logger.Warn("gold run found no silver events", "run_date", runDate)
		return res, nil
	}

	orgRows, orgSkip := OrgMetrics(ds)
	repoActivity := RepoActivity(ds)
	userContribution := UserContribution(ds)

	outputs := map[string][]types.Record{
		TableActorMetrics:     ActorMetrics(ds),
		TableRepoMetrics:      RepoMetrics(ds),
		TableOrgMetrics:       orgRows,
		TableEventTypeMetrics: EventTypeMetrics(ds),
		TableDailySummary:     DailySummary(ds),
		TableRepoActivity:     repoActivity,
		TableTopRepos:         TopN(repoActivity, "activity_score", "repo_id", b.topN),
		TableUserContribution: userContribution,
		TableTopContributors:  TopN(userContribution, "contribution_score", "actor_id", b.topN),
		TableHourlyActivity:   HourlyActivity(ds),
		TableDateActivity:     DateActivity(ds),
		TableEventTypeTrends:  EventTypeTrends(ds),
	}

	for _, tbl := range Tables {
		rows := outputs[tbl]
		tr := TableResult{Table: tbl, Rows: len(rows)}

		if tbl == TableOrgMetrics && orgSkip != "" {
			tr.SkipReason = orgSkip
			b.logger.Info("skipping gold table", "table", tbl, "reason", orgSkip)
			res.Tables = append(res.Tables, tr)
			continue
		}
		if len(rows) == 0 {
			tr.SkipReason = "no rows"
			res.Tables = append(res.Tables, tr)
			continue
		}

		base := b.BasePath(tbl, runDate)
		b.removeExisting(base)

		path, err := b.writer.Write(ctx, base, Schemas[tbl], rows)
		if err != nil {
			return nil, fmt.Errorf("gold: failed to write table %s: %w", tbl, err)
		}
		tr.OutputPath = path
		res.Tables = append(res.Tables, tr)
	}

	return res, nil
}

// removeExisting clears a prior run's output for the same date so a format
// downgrade cannot leave both a stale SQLite file and a fresh CSV behind.
func (b *Builder) removeExisting(base string) {
	for _, ext := range []string{".sqlite", ".csv"} {
		path := base + ext
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			b.logger.Warn("failed to remove prior gold output", "path", path, "error", err)
		}
	}
}
