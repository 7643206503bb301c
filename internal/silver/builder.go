package silver

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gharvest/gharvest/internal/bronze"
	"github.com/gharvest/gharvest/internal/errors"
	"github.com/gharvest/gharvest/internal/event"
	"github.com/gharvest/gharvest/internal/reconcile"
	"github.com/gharvest/gharvest/internal/table"
	"github.com/gharvest/gharvest/pkg/types"
)

// Result summarizes processing of one Bronze partition.
type Result struct {
	Key        types.HourKey
	Skipped    bool
	Events     int
	Duplicates int
	Outputs    map[string]string
}

// Builder turns Bronze partitions into the Silver fact and dimension
// tables. One run shares a single dimension cache so first-seen and
// last-seen timestamps reconcile across every hour processed.
type Builder struct {
	silverDir string
	writer    *table.Writer
	cache     *reconcile.Cache
	logger    *slog.Logger
}

// NewBuilder creates a Silver builder writing under silverDir.
func NewBuilder(silverDir string, writer *table.Writer, cache *reconcile.Cache, logger *slog.Logger) *Builder {
	return &Builder{
		silverDir: silverDir,
		writer:    writer,
		cache:     cache,
		logger:    logger,
	}
}

// BasePath returns the extension-less output path for one table of one
// hour bucket.
func (b *Builder) BasePath(tbl string, key types.HourKey) string {
	return filepath.Join(b.silverDir, tbl, fmt.Sprintf("%s.%s", key.String(), tbl))
}

// allOutputsExist reports whether every Silver table already has an output
// for this hour. Partial table sets, whether from an interrupted run or
// from zero-row tables that were never written, get rebuilt.
func (b *Builder) allOutputsExist(key types.HourKey) bool {
	for _, tbl := range Tables {
		if table.ExistingPath(b.BasePath(tbl, key)) == "" {
			return false
		}
	}
	return true
}

// Process builds all Silver tables for one Bronze partition. Events are
// deduplicated by event id within the hour, falling back to the content
// hash when an id is absent. On any write failure the outputs already
// written for this hour are removed so a rerun starts from a clean slate.
func (b *Builder) Process(ctx context.Context, bronzePath string, key types.HourKey) (*Result, error) {
	res := &Result{Key: key, Outputs: make(map[string]string)}

	if b.allOutputsExist(key) {
		res.Skipped = true
		return res, nil
	}

	rows, err := table.Read(ctx, bronzePath, bronze.Schema())
	if err != nil {
		return nil, errors.NewIOError(errors.CategorySilver,
			fmt.Sprintf("failed to read bronze partition %s", bronzePath), err)
	}
	if len(rows) == 0 {
		return nil, errors.NewEmptyInputError(errors.CategorySilver,
			fmt.Sprintf("bronze partition %s is empty", bronzePath))
	}

	processedAt := time.Now().UTC().Format(time.RFC3339)
	seen := make(map[string]struct{}, len(rows))

	var events []types.Record
	var payloads []types.Record
	hourActors := make(map[int64]struct{})
	hourRepos := make(map[int64]struct{})
	hourOrgs := make(map[int64]struct{})

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		hash, _ := row["event_hash"].(string)
		dedupKey := recStr(row, "event_id")
		if dedupKey == "" {
			dedupKey = hash
		}
		if dedupKey != "" {
			if _, dup := seen[dedupKey]; dup {
				res.Duplicates++
				continue
			}
			seen[dedupKey] = struct{}{}
		}

		line, err := bronze.DecodeRaw(row["raw_data"])
		if err != nil {
			return nil, errors.Wrap(errors.CategorySilver, errors.CodeMalformedRecord,
				fmt.Sprintf("corrupt raw_data in %s", bronzePath), err)
		}

		ev, err := event.Parse(line)
		if err != nil {
			return nil, errors.Wrap(errors.CategorySilver, errors.CodeMalformedRecord,
				fmt.Sprintf("bronze partition %s holds an unparsable event", bronzePath), err)
		}

		isBot := ev.Actor != nil && reconcile.IsBot(ev.Actor.Login)

		evRec := types.Record{
			"event_id":     ev.ID,
			"event_hash":   hash,
			"event_type":   ev.Type,
			"created_at":   ev.CreatedAt,
			"is_bot":       boolInt(isBot),
			"public":       boolInt(ev.Public),
			"hour_bucket":  key.String(),
			"processed_at": processedAt,
		}
		if ev.Actor != nil && ev.Actor.ID != 0 {
			evRec["actor_id"] = ev.Actor.ID
			hourActors[ev.Actor.ID] = struct{}{}
		}
		if ev.Repo != nil && ev.Repo.ID != 0 {
			evRec["repo_id"] = ev.Repo.ID
			hourRepos[ev.Repo.ID] = struct{}{}
		}
		if ev.Org != nil && ev.Org.ID != 0 {
			evRec["org_id"] = ev.Org.ID
			hourOrgs[ev.Org.ID] = struct{}{}
		}
		events = append(events, evRec)

		b.cache.MergeActor(ev.Actor, ev.CreatedAt)
		b.cache.MergeRepo(ev.Repo, ev.CreatedAt)
		b.cache.MergeOrg(ev.Org, ev.CreatedAt)

		payloads = append(payloads, ExtractPayload(ev.ID, ev.Type, ev.Payload))
	}

	if len(events) == 0 {
		return nil, errors.NewEmptyInputError(errors.CategorySilver,
			fmt.Sprintf("bronze partition %s deduplicated to nothing", bronzePath))
	}

	outputs := map[string][]types.Record{
		TableEvents:         events,
		TablePayloadDetails: payloads,
		TableActors:         b.actorRows(hourActors),
		TableRepositories:   b.repoRows(hourRepos),
		TableOrganizations:  b.orgRows(hourOrgs),
	}

	for _, tbl := range Tables {
		if len(outputs[tbl]) == 0 {
			b.logger.Info("no rows for silver table, skipping", "table", tbl, "hour", key.String())
			continue
		}
		path, err := b.writer.Write(ctx, b.BasePath(tbl, key), Schemas[tbl], outputs[tbl])
		if err != nil {
			b.cleanup(res.Outputs)
			return nil, errors.NewIOError(errors.CategorySilver,
				fmt.Sprintf("failed to write silver table %s for %s", tbl, key), err)
		}
		res.Outputs[tbl] = path
	}

	res.Events = len(events)
	return res, nil
}

// SeedFromPrior loads dimension rows written by earlier runs into the
// cache so first-seen timestamps survive across runs.
func (b *Builder) SeedFromPrior(ctx context.Context) error {
	for _, tbl := range []string{TableActors, TableRepositories, TableOrganizations} {
		dir := filepath.Join(b.silverDir, tbl)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return errors.NewIOError(errors.CategorySilver,
				fmt.Sprintf("failed to scan prior silver table %s", tbl), err)
		}

		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if !e.IsDir() {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)

		for _, name := range names {
			rows, err := table.Read(ctx, filepath.Join(dir, name), Schemas[tbl])
			if err != nil {
				return errors.NewIOError(errors.CategorySilver,
					fmt.Sprintf("failed to read prior silver file %s", name), err)
			}
			for _, row := range rows {
				switch tbl {
				case TableActors:
					b.cache.SeedActor(reconcile.ActorState{
						ID:           recInt(row, "actor_id"),
						Login:        recStr(row, "actor_login"),
						DisplayLogin: recStr(row, "actor_display_login"),
						URL:          recStr(row, "actor_url"),
						AvatarURL:    recStr(row, "avatar_url"),
						GravatarID:   recStr(row, "gravatar_id"),
						IsBot:        recInt(row, "is_bot") != 0,
						FirstSeenAt:  recStr(row, "first_seen_at"),
						LastSeenAt:   recStr(row, "last_seen_at"),
					})
				case TableRepositories:
					b.cache.SeedRepo(reconcile.RepoState{
						ID:          recInt(row, "repo_id"),
						Name:        recStr(row, "repo_name"),
						URL:         recStr(row, "repo_url"),
						OwnerLogin:  recStr(row, "owner_login"),
						FirstSeenAt: recStr(row, "first_seen_at"),
						LastSeenAt:  recStr(row, "last_seen_at"),
					})
				case TableOrganizations:
					b.cache.SeedOrg(reconcile.OrgState{
						ID:          recInt(row, "org_id"),
						Login:       recStr(row, "org_login"),
						URL:         recStr(row, "org_url"),
						AvatarURL:   recStr(row, "avatar_url"),
						FirstSeenAt: recStr(row, "first_seen_at"),
						LastSeenAt:  recStr(row, "last_seen_at"),
					})
				}
			}
		}
	}
	return nil
}

func (b *Builder) actorRows(ids map[int64]struct{}) []types.Record {
	var out []types.Record
	for _, st := range b.cache.Actors() {
		if _, ok := ids[st.ID]; !ok {
			continue
		}
		out = append(out, types.Record{
			"actor_id":            st.ID,
			"actor_login":         st.Login,
			"actor_display_login": st.DisplayLogin,
			"actor_url":           st.URL,
			"avatar_url":          st.AvatarURL,
			"gravatar_id":         st.GravatarID,
			"is_bot":              boolInt(st.IsBot),
			"first_seen_at":       st.FirstSeenAt,
			"last_seen_at":        st.LastSeenAt,
		})
	}
	sortByInt(out, "actor_id")
	return out
}

func (b *Builder) repoRows(ids map[int64]struct{}) []types.Record {
	var out []types.Record
	for _, st := range b.cache.Repos() {
		if _, ok := ids[st.ID]; !ok {
			continue
		}
		out = append(out, types.Record{
			"repo_id":       st.ID,
			"repo_name":     st.Name,
			"repo_url":      st.URL,
			"owner_login":   st.OwnerLogin,
			"first_seen_at": st.FirstSeenAt,
			"last_seen_at":  st.LastSeenAt,
		})
	}
	sortByInt(out, "repo_id")
	return out
}

func (b *Builder) orgRows(ids map[int64]struct{}) []types.Record {
	var out []types.Record
	for _, st := range b.cache.Orgs() {
		if _, ok := ids[st.ID]; !ok {
			continue
		}
		out = append(out, types.Record{
			"org_id":        st.ID,
			"org_login":     st.Login,
			"org_url":       st.URL,
			"avatar_url":    st.AvatarURL,
			"first_seen_at": st.FirstSeenAt,
			"last_seen_at":  st.LastSeenAt,
		})
	}
	sortByInt(out, "org_id")
	return out
}

func (b *Builder) cleanup(outputs map[string]string) {
	for tbl, path := range outputs {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			b.logger.Warn("failed to remove partial silver output", "table", tbl, "path", path, "error", err)
		}
	}
}

func boolInt(v bool) int64 {
	if v {
		return 1
	}
	return 0
}

func sortByInt(recs []types.Record, key string) {
	sort.Slice(recs, func(i, j int) bool {
		a, _ := recs[i][key].(int64)
		b, _ := recs[j][key].(int64)
		return a < b
	})
}

func recStr(rec types.Record, key string) string {
	if s, ok := rec[key].(string); ok {
		return s
	}
	return ""
}

func recInt(rec types.Record, key string) int64 {
	switch v := rec[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case string:
		var i int64
		fmt.Sscanf(v, "%d", &i)
		return i
	}
	return 0
}
