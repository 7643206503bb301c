package gold

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gharvest/gharvest/pkg/types"
)

// entityAgg accumulates per-entity partial aggregates during the group-by
// passes.
type entityAgg struct {
	total    int64
	counter  map[int64]struct{}
	counter2 map[int64]struct{}
	first    string
	last     string
	byType   map[string]int64
}

func newEntityAgg() *entityAgg {
	return &entityAgg{
		counter:  make(map[int64]struct{}),
		counter2: make(map[int64]struct{}),
		byType:   make(map[string]int64),
	}
}

func (a *entityAgg) observe(ts string) {
	a.total++
	if ts == "" {
		return
	}
	if a.first == "" || ts < a.first {
		a.first = ts
	}
	if ts > a.last {
		a.last = ts
	}
}

// ActorMetrics aggregates events per actor and joins actor dimension
// attributes.
func ActorMetrics(ds *Dataset) []types.Record {
	aggs := make(map[int64]*entityAgg)
	for _, ev := range ds.Events {
		id := ds.Cols.id(ev, "actor_id")
		if id == 0 {
			continue
		}
		a, ok := aggs[id]
		if !ok {
			a = newEntityAgg()
			aggs[id] = a
		}
		a.observe(ds.Cols.str(ev, "created_at"))
		if repoID := ds.Cols.id(ev, "repo_id"); repoID != 0 {
			a.counter[repoID] = struct{}{}
		}
	}

	dim := indexByID(ds.Actors, "actor_id")
	out := make([]types.Record, 0, len(aggs))
	for id, a := range aggs {
		rec := types.Record{
			"actor_id":       id,
			"total_events":   a.total,
			"unique_repos":   int64(len(a.counter)),
			"first_event_at": a.first,
			"last_event_at":  a.last,
		}
		if d, ok := dim[id]; ok {
			rec["actor_login"] = d["actor_login"]
			rec["is_bot"] = d["is_bot"]
		}
		out = append(out, rec)
	}
	sortByIDAsc(out, "actor_id")
	return out
}

// RepoMetrics aggregates events per repository.
func RepoMetrics(ds *Dataset) []types.Record {
	aggs := make(map[int64]*entityAgg)
	for _, ev := range ds.Events {
		id := ds.Cols.id(ev, "repo_id")
		if id == 0 {
			continue
		}
		a, ok := aggs[id]
		if !ok {
			a = newEntityAgg()
			aggs[id] = a
		}
		a.observe(ds.Cols.str(ev, "created_at"))
		if actorID := ds.Cols.id(ev, "actor_id"); actorID != 0 {
			a.counter[actorID] = struct{}{}
		}
	}

	dim := indexByID(ds.Repos, "repo_id")
	out := make([]types.Record, 0, len(aggs))
	for id, a := range aggs {
		rec := types.Record{
			"repo_id":        id,
			"total_events":   a.total,
			"unique_actors":  int64(len(a.counter)),
			"first_event_at": a.first,
			"last_event_at":  a.last,
		}
		if d, ok := dim[id]; ok {
			rec["repo_name"] = d["repo_name"]
			rec["owner_login"] = d["owner_login"]
		}
		out = append(out, rec)
	}
	sortByIDAsc(out, "repo_id")
	return out
}

// OrgMetrics aggregates events per organization. The second return value
// is a skip reason when no event carries an org id.
func OrgMetrics(ds *Dataset) ([]types.Record, string) {
	aggs := make(map[int64]*entityAgg)
	for _, ev := range ds.Events {
		id := ds.Cols.id(ev, "org_id")
		if id == 0 {
			continue
		}
		a, ok := aggs[id]
		if !ok {
			a = newEntityAgg()
			aggs[id] = a
		}
		a.observe(ds.Cols.str(ev, "created_at"))
		if actorID := ds.Cols.id(ev, "actor_id"); actorID != 0 {
			a.counter[actorID] = struct{}{}
		}
		if repoID := ds.Cols.id(ev, "repo_id"); repoID != 0 {
			a.counter2[repoID] = struct{}{}
		}
	}
	if len(aggs) == 0 {
		return nil, "no events with org_id"
	}

	dim := indexByID(ds.Orgs, "org_id")
	out := make([]types.Record, 0, len(aggs))
	for id, a := range aggs {
		rec := types.Record{
			"org_id":         id,
			"total_events":   a.total,
			"unique_actors":  int64(len(a.counter)),
			"unique_repos":   int64(len(a.counter2)),
			"first_event_at": a.first,
			"last_event_at":  a.last,
		}
		if d, ok := dim[id]; ok {
			rec["org_login"] = d["org_login"]
		}
		out = append(out, rec)
	}
	sortByIDAsc(out, "org_id")
	return out, ""
}

// EventTypeMetrics aggregates events per event type, with each type's
// share of the total.
func EventTypeMetrics(ds *Dataset) []types.Record {
	type typeAgg struct {
		total  int64
		actors map[int64]struct{}
		repos  map[int64]struct{}
	}
	aggs := make(map[string]*typeAgg)
	var grand int64
	for _, ev := range ds.Events {
		t := ds.Cols.str(ev, "event_type")
		if t == "" {
			continue
		}
		a, ok := aggs[t]
		if !ok {
			a = &typeAgg{actors: make(map[int64]struct{}), repos: make(map[int64]struct{})}
			aggs[t] = a
		}
		a.total++
		grand++
		if id := ds.Cols.id(ev, "actor_id"); id != 0 {
			a.actors[id] = struct{}{}
		}
		if id := ds.Cols.id(ev, "repo_id"); id != 0 {
			a.repos[id] = struct{}{}
		}
	}

	out := make([]types.Record, 0, len(aggs))
	for t, a := range aggs {
		out = append(out, types.Record{
			"event_type":    t,
			"total_events":  a.total,
			"unique_actors": int64(len(a.actors)),
			"unique_repos":  int64(len(a.repos)),
			"pct_of_total":  SafeRatio(float64(a.total), float64(grand)) * 100,
		})
	}
	sortByStrAsc(out, "event_type")
	return out
}

// DailySummary aggregates events per hour bucket.
func DailySummary(ds *Dataset) []types.Record {
	type bucketAgg struct {
		total  int64
		actors map[int64]struct{}
		repos  map[int64]struct{}
	}
	aggs := make(map[string]*bucketAgg)
	for _, ev := range ds.Events {
		bucket, _ := ev["hour_bucket"].(string)
		if bucket == "" {
			continue
		}
		a, ok := aggs[bucket]
		if !ok {
			a = &bucketAgg{actors: make(map[int64]struct{}), repos: make(map[int64]struct{})}
			aggs[bucket] = a
		}
		a.total++
		if id := ds.Cols.id(ev, "actor_id"); id != 0 {
			a.actors[id] = struct{}{}
		}
		if id := ds.Cols.id(ev, "repo_id"); id != 0 {
			a.repos[id] = struct{}{}
		}
	}

	out := make([]types.Record, 0, len(aggs))
	for bucket, a := range aggs {
		out = append(out, types.Record{
			"hour_bucket":   bucket,
			"total_events":  a.total,
			"unique_actors": int64(len(a.actors)),
			"unique_repos":  int64(len(a.repos)),
		})
	}
	sortByStrAsc(out, "hour_bucket")
	return out
}

// RepoActivity counts push, commit, pull request and issue activity per
// repository and scores it with a weighted mix: one point per commit,
// five per pull request, three per issue, and a tenth of a point per
// event of any kind.
func RepoActivity(ds *Dataset) []types.Record {
	details := detailIndex(ds.Details)

	type repoAgg struct {
		pushes, commits, prs, prMerged, issues, issuesClosed, comments, total int64
	}
	aggs := make(map[int64]*repoAgg)
	for _, ev := range ds.Events {
		id := ds.Cols.id(ev, "repo_id")
		if id == 0 {
			continue
		}
		a, ok := aggs[id]
		if !ok {
			a = &repoAgg{}
			aggs[id] = a
		}
		a.total++
		det := details[ds.Cols.str(ev, "event_id")]
		t := ds.Cols.str(ev, "event_type")
		switch {
		case t == "PushEvent":
			a.pushes++
			if size := int64(recFloat(det, "payload_size")); size > 0 {
				a.commits += size
			} else {
				// A push with no recorded size still carries at least one commit.
				a.commits++
			}
		case t == "PullRequestEvent":
			a.prs++
			if recFloat(det, "payload_pr_merged") != 0 {
				a.prMerged++
			}
		case t == "IssuesEvent":
			a.issues++
			if action, _ := det["payload_action"].(string); action == "closed" {
				a.issuesClosed++
			}
		case strings.HasSuffix(t, "CommentEvent"):
			a.comments++
		}
	}

	dim := indexByID(ds.Repos, "repo_id")
	out := make([]types.Record, 0, len(aggs))
	for id, a := range aggs {
		score := float64(a.commits)*1 + float64(a.prs)*5 + float64(a.issues)*3 + float64(a.total)*0.1
		rec := types.Record{
			"repo_id":           id,
			"pushes":            a.pushes,
			"commits":           a.commits,
			"prs":               a.prs,
			"pr_merged":         a.prMerged,
			"issues":            a.issues,
			"issues_closed":     a.issuesClosed,
			"comments":          a.comments,
			"total_events":      a.total,
			"pr_merge_ratio":    SafeRatio(float64(a.prMerged), float64(a.prs)),
			"issue_close_ratio": SafeRatio(float64(a.issuesClosed), float64(a.issues)),
			"commits_per_push":  SafeRatio(float64(a.commits), float64(a.pushes)),
			"activity_score":    score,
		}
		if d, ok := dim[id]; ok {
			rec["repo_name"] = d["repo_name"]
		}
		out = append(out, rec)
	}
	sortByIDAsc(out, "repo_id")
	return out
}

// UserContribution scores actors by a weighted mix of activity: one point
// per commit, five per pull request, two per merged pull request, two per
// issue, half a point per comment. Commits come from push payload sizes,
// counting one for a push with no recorded size.
func UserContribution(ds *Dataset) []types.Record {
	details := detailIndex(ds.Details)

	type userAgg struct {
		commits, prs, merged, issues, comments, total int64
	}
	aggs := make(map[int64]*userAgg)
	for _, ev := range ds.Events {
		id := ds.Cols.id(ev, "actor_id")
		if id == 0 {
			continue
		}
		a, ok := aggs[id]
		if !ok {
			a = &userAgg{}
			aggs[id] = a
		}
		a.total++
		det := details[ds.Cols.str(ev, "event_id")]
		t := ds.Cols.str(ev, "event_type")
		switch {
		case t == "PushEvent":
			if size := int64(recFloat(det, "payload_size")); size > 0 {
				a.commits += size
			} else {
				// A push with no recorded size still carries at least one commit.
				a.commits++
			}
		case t == "PullRequestEvent":
			a.prs++
			if recFloat(det, "payload_pr_merged") != 0 {
				a.merged++
			}
		case t == "IssuesEvent":
			a.issues++
		case strings.HasSuffix(t, "CommentEvent"):
			a.comments++
		}
	}

	dim := indexByID(ds.Actors, "actor_id")
	out := make([]types.Record, 0, len(aggs))
	for id, a := range aggs {
		score := float64(a.commits)*1 + float64(a.prs)*5 + float64(a.merged)*2 +
			float64(a.issues)*2 + float64(a.comments)*0.5
		rec := types.Record{
			"actor_id":           id,
			"commits":            a.commits,
			"prs":                a.prs,
			"pr_merged":          a.merged,
			"issues":             a.issues,
			"comments":           a.comments,
			"total_events":       a.total,
			"contribution_score": score,
		}
		if d, ok := dim[id]; ok {
			rec["actor_login"] = d["actor_login"]
		}
		out = append(out, rec)
	}
	sortByIDAsc(out, "actor_id")
	return out
}

// HourlyActivity aggregates events per hour of day (0 through 23).
func HourlyActivity(ds *Dataset) []types.Record {
	type hourAgg struct {
		total  int64
		actors map[int64]struct{}
	}
	aggs := make(map[int64]*hourAgg)
	for _, ev := range ds.Events {
		bucket, _ := ev["hour_bucket"].(string)
		hour, ok := hourOfBucket(bucket)
		if !ok {
			continue
		}
		a, exists := aggs[hour]
		if !exists {
			a = &hourAgg{actors: make(map[int64]struct{})}
			aggs[hour] = a
		}
		a.total++
		if id := ds.Cols.id(ev, "actor_id"); id != 0 {
			a.actors[id] = struct{}{}
		}
	}

	out := make([]types.Record, 0, len(aggs))
	for hour, a := range aggs {
		out = append(out, types.Record{
			"hour":          hour,
			"total_events":  a.total,
			"unique_actors": int64(len(a.actors)),
		})
	}
	sortByIDAsc(out, "hour")
	return out
}

// DateActivity aggregates events per calendar date.
func DateActivity(ds *Dataset) []types.Record {
	type dateAgg struct {
		total  int64
		actors map[int64]struct{}
		repos  map[int64]struct{}
	}
	aggs := make(map[string]*dateAgg)
	for _, ev := range ds.Events {
		date := eventDate(ds.Cols, ev)
		if date == "" {
			continue
		}
		a, ok := aggs[date]
		if !ok {
			a = &dateAgg{actors: make(map[int64]struct{}), repos: make(map[int64]struct{})}
			aggs[date] = a
		}
		a.total++
		if id := ds.Cols.id(ev, "actor_id"); id != 0 {
			a.actors[id] = struct{}{}
		}
		if id := ds.Cols.id(ev, "repo_id"); id != 0 {
			a.repos[id] = struct{}{}
		}
	}

	out := make([]types.Record, 0, len(aggs))
	for date, a := range aggs {
		out = append(out, types.Record{
			"date":          date,
			"total_events":  a.total,
			"unique_actors": int64(len(a.actors)),
			"unique_repos":  int64(len(a.repos)),
		})
	}
	sortByStrAsc(out, "date")
	return out
}

// EventTypeTrends compares each event type's daily volume to the calendar
// day before it. The change percentage is 0 when the previous calendar day
// had no events, including across gap days.
func EventTypeTrends(ds *Dataset) []types.Record {
	counts := make(map[string]map[string]int64)
	for _, ev := range ds.Events {
		date := eventDate(ds.Cols, ev)
		t := ds.Cols.str(ev, "event_type")
		if date == "" || t == "" {
			continue
		}
		if counts[t] == nil {
			counts[t] = make(map[string]int64)
		}
		counts[t][date]++
	}

	var out []types.Record
	for t, byDate := range counts {
		dates := make([]string, 0, len(byDate))
		for d := range byDate {
			dates = append(dates, d)
		}
		sort.Strings(dates)

		for _, d := range dates {
			today := byDate[d]
			prev := byDate[prevDay(d)]
			changePct := 0.0
			if prev != 0 {
				changePct = SafeRatio(float64(today-prev), float64(prev)) * 100
			}
			out = append(out, types.Record{
				"date":         d,
				"event_type":   t,
				"total_events": today,
				"prev_events":  prev,
				"change_pct":   changePct,
			})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		di, _ := out[i]["date"].(string)
		dj, _ := out[j]["date"].(string)
		if di != dj {
			return di < dj
		}
		ti, _ := out[i]["event_type"].(string)
		tj, _ := out[j]["event_type"].(string)
		return ti < tj
	})
	return out
}

// TopN returns the n highest-scoring records. Ties break on ascending
// entity id to keep the ranking deterministic.
func TopN(recs []types.Record, scoreKey, idKey string, n int) []types.Record {
	cm := columnMap{idKey: idKey}
	sorted := make([]types.Record, len(recs))
	copy(sorted, recs)
	sort.Slice(sorted, func(i, j int) bool {
		si := recFloat(sorted[i], scoreKey)
		sj := recFloat(sorted[j], scoreKey)
		if si != sj {
			return si > sj
		}
		return cm.id(sorted[i], idKey) < cm.id(sorted[j], idKey)
	})
	if n > 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// prevDay returns the calendar day before a YYYY-MM-DD date, or "" when
// the date does not parse.
func prevDay(date string) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return ""
	}
	return t.AddDate(0, 0, -1).Format("2006-01-02")
}

// eventDate derives the calendar date of an event, preferring created_at
// and falling back to the hour bucket prefix.
func eventDate(cm columnMap, ev types.Record) string {
	if ts := cm.str(ev, "created_at"); len(ts) >= 10 {
		return ts[:10]
	}
	if bucket, _ := ev["hour_bucket"].(string); len(bucket) >= 10 {
		return bucket[:10]
	}
	return ""
}

func hourOfBucket(bucket string) (int64, bool) {
	idx := strings.LastIndex(bucket, "-")
	if idx < 0 || idx+1 >= len(bucket) {
		return 0, false
	}
	h, err := strconv.ParseInt(bucket[idx+1:], 10, 64)
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	return h, true
}

// detailIndex maps event ids to their payload_details record.
func detailIndex(recs []types.Record) map[string]types.Record {
	out := make(map[string]types.Record, len(recs))
	for _, rec := range recs {
		if id, ok := rec["event_id"].(string); ok && id != "" {
			out[id] = rec
		}
	}
	return out
}

func indexByID(recs []types.Record, key string) map[int64]types.Record {
	cm := columnMap{key: key}
	out := make(map[int64]types.Record, len(recs))
	for _, rec := range recs {
		if id := cm.id(rec, key); id != 0 {
			out[id] = rec
		}
	}
	return out
}

func recFloat(rec types.Record, key string) float64 {
	switch v := rec[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func sortByIDAsc(recs []types.Record, key string) {
	cm := columnMap{key: key}
	sort.Slice(recs, func(i, j int) bool {
		return cm.id(recs[i], key) < cm.id(recs[j], key)
	})
}

func sortByStrAsc(recs []types.Record, key string) {
	sort.Slice(recs, func(i, j int) bool {
		a, _ := recs[i][key].(string)
		b, _ := recs[j][key].(string)
		return a < b
	})
}
