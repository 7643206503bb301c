package gold

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/gharvest/gharvest/internal/errors"
	"github.com/gharvest/gharvest/internal/silver"
	"github.com/gharvest/gharvest/internal/table"
	"github.com/gharvest/gharvest/pkg/types"
)

// silverFilePattern extracts the date prefix of a Silver partition file
// name, e.g. 2024-03-01-15.events.sqlite.
var silverFilePattern = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})-\d{2}\.`)

// Dataset is the Silver data one Gold run aggregates over.
type Dataset struct {
	Events  []types.Record
	Actors  []types.Record
	Repos   []types.Record
	Orgs    []types.Record
	Details []types.Record

	// Cols resolves canonical column names for the events frame
	Cols columnMap
}

// LoadDataset reads every Silver partition inside the date range,
// concatenates the partitions per table and deduplicates events by event
// id and dimensions by id, keeping the last occurrence.
func LoadDataset(ctx context.Context, silverDir string, dateRange types.DateRange) (*Dataset, error) {
	ds := &Dataset{}

	load := func(tbl string) ([]types.Record, error) {
		dir := filepath.Join(silverDir, tbl)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}
			return nil, errors.NewIOError(errors.CategoryGold,
				fmt.Sprintf("failed to scan silver table %s", tbl), err)
		}

		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if !inRange(e.Name(), dateRange) {
				continue
			}
			names = append(names, e.Name())
		}
		sort.Strings(names)

		var out []types.Record
		for _, name := range names {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			rows, err := table.Read(ctx, filepath.Join(dir, name), silver.Schemas[tbl])
			if err != nil {
				return nil, errors.NewIOError(errors.CategoryGold,
					fmt.Sprintf("failed to read silver partition %s", name), err)
			}
			out = append(out, rows...)
		}
		return out, nil
	}

	events, err := load(silver.TableEvents)
	if err != nil {
		return nil, err
	}
	ds.Cols = resolveColumns(events)
	ds.Events = dedupEvents(events, ds.Cols)

	if ds.Actors, err = load(silver.TableActors); err != nil {
		return nil, err
	}
	ds.Actors = dedupByID(ds.Actors, "actor_id")

	if ds.Repos, err = load(silver.TableRepositories); err != nil {
		return nil, err
	}
	ds.Repos = dedupByID(ds.Repos, "repo_id")

	if ds.Orgs, err = load(silver.TableOrganizations); err != nil {
		return nil, err
	}
	ds.Orgs = dedupByID(ds.Orgs, "org_id")

	if ds.Details, err = load(silver.TablePayloadDetails); err != nil {
		return nil, err
	}
	ds.Details = dedupByStr(ds.Details, "event_id")

	return ds, nil
}

// inRange checks a Silver file name's date prefix against the range. Files
// whose names do not carry a date prefix are always included.
func inRange(name string, r types.DateRange) bool {
	m := silverFilePattern.FindStringSubmatch(name)
	if m == nil {
		return true
	}
	t, err := time.Parse("2006-01-02", m[1])
	if err != nil {
		return true
	}
	return r.Contains(t)
}

// dedupEvents keeps the last record per event id, falling back to the
// content hash when an event carries no id. Records with neither are kept
// unconditionally.
func dedupEvents(recs []types.Record, cols columnMap) []types.Record {
	index := make(map[string]int)
	out := make([]types.Record, 0, len(recs))
	for _, rec := range recs {
		k := cols.str(rec, "event_id")
		if k == "" {
			k, _ = rec["event_hash"].(string)
		}
		if k == "" {
			out = append(out, rec)
			continue
		}
		if i, ok := index[k]; ok {
			out[i] = rec
			continue
		}
		index[k] = len(out)
		out = append(out, rec)
	}
	return out
}

// dedupByStr keeps the last record per string key. Records missing the key
// are kept unconditionally.
func dedupByStr(recs []types.Record, key string) []types.Record {
	index := make(map[string]int)
	out := make([]types.Record, 0, len(recs))
	for _, rec := range recs {
		k, _ := rec[key].(string)
		if k == "" {
			out = append(out, rec)
			continue
		}
		if i, ok := index[k]; ok {
			out[i] = rec
			continue
		}
		index[k] = len(out)
		out = append(out, rec)
	}
	return out
}

// dedupByID keeps the last record per integer key.
func dedupByID(recs []types.Record, key string) []types.Record {
	cm := columnMap{key: key}
	index := make(map[int64]int)
	out := make([]types.Record, 0, len(recs))
	for _, rec := range recs {
		id := cm.id(rec, key)
		if id == 0 {
			out = append(out, rec)
			continue
		}
		if i, ok := index[id]; ok {
			out[i] = rec
			continue
		}
		index[id] = len(out)
		out = append(out, rec)
	}
	return out
}
