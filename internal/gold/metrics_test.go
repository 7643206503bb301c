package gold

import (
	"fmt"
	"testing"

	"github.com/gharvest/gharvest/pkg/types"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// testDataset builds 2 hours x 100 events spread over 5 repos and 10
// actors, all on 2024-03-01.
func testDataset() *Dataset {
	ds := &Dataset{}
	n := 0
	for hour := 5; hour <= 6; hour++ {
		for i := 0; i < 100; i++ {
			n++
			actorID := int64(1 + i%10)
			repoID := int64(101 + i%5)
			eventType := "PushEvent"
			if i%4 == 1 {
				eventType = "PullRequestEvent"
			} else if i%4 == 2 {
				eventType = "IssuesEvent"
			}
			ds.Events = append(ds.Events, types.Record{
				"event_id":    fmt.Sprint(n),
				"event_hash":  fmt.Sprintf("h%d", n),
				"event_type":  eventType,
				"created_at":  fmt.Sprintf("2024-03-01T%02d:%02d:00Z", hour, i%60),
				"actor_id":    actorID,
				"repo_id":     repoID,
				"hour_bucket": fmt.Sprintf("2024-03-01-%02d", hour),
			})
		}
	}
	for i := 1; i <= 10; i++ {
		ds.Actors = append(ds.Actors, types.Record{
			"actor_id":    int64(i),
			"actor_login": fmt.Sprintf("user%d", i),
			"is_bot":      int64(0),
		})
	}
	for i := 101; i <= 105; i++ {
		ds.Repos = append(ds.Repos, types.Record{
			"repo_id":   int64(i),
			"repo_name": fmt.Sprintf("owner/repo%d", i),
		})
	}
	ds.Cols = resolveColumns(ds.Events)
	return ds
}

func sumTotals(recs []types.Record) int64 {
	var sum int64
	for _, r := range recs {
		sum += recFloatAsInt(r, "total_events")
	}
	return sum
}

func recFloatAsInt(r types.Record, key string) int64 {
	return int64(recFloat(r, key))
}

func TestRepoMetrics(t *testing.T) {
	ds := testDataset()
	rows := RepoMetrics(ds)

	if len(rows) != 5 {
		t.Fatalf("got %d repo rows, want 5", len(rows))
	}
	if sum := sumTotals(rows); sum != 200 {
		t.Errorf("total events across repos = %d, want 200", sum)
	}
	for _, row := range rows {
		if row["repo_name"] == nil {
			t.Errorf("repo %v missing joined name", row["repo_id"])
		}
		if got := recFloatAsInt(row, "unique_actors"); got == 0 {
			t.Errorf("repo %v has zero unique actors", row["repo_id"])
		}
	}
}

func TestActorMetrics(t *testing.T) {
	ds := testDataset()
	rows := ActorMetrics(ds)

	if len(rows) != 10 {
		t.Fatalf("got %d actor rows, want 10", len(rows))
	}
	if sum := sumTotals(rows); sum != 200 {
		t.Errorf("total events across actors = %d, want 200", sum)
	}

	first := rows[0]
	if first["actor_login"] != "user1" {
		t.Errorf("actor_login = %v, want joined user1", first["actor_login"])
	}
	if first["first_event_at"] == "" || first["last_event_at"] == "" {
		t.Error("event time range missing")
	}
	if first["first_event_at"].(string) > first["last_event_at"].(string) {
		t.Error("first_event_at is after last_event_at")
	}
}

func TestOrgMetricsSkipsWithoutOrgIDs(t *testing.T) {
	ds := testDataset()
	rows, reason := OrgMetrics(ds)
	if rows != nil {
		t.Errorf("got %d org rows, want none", len(rows))
	}
	if reason != "no events with org_id" {
		t.Errorf("skip reason = %q", reason)
	}
}

func TestOrgMetrics(t *testing.T) {
	ds := testDataset()
	for i := range ds.Events[:50] {
		ds.Events[i]["org_id"] = int64(900)
	}
	ds.Orgs = []types.Record{{"org_id": int64(900), "org_login": "acme"}}

	rows, reason := OrgMetrics(ds)
	if reason != "" {
		t.Fatalf("unexpected skip: %s", reason)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d org rows, want 1", len(rows))
	}
	if got := recFloatAsInt(rows[0], "total_events"); got != 50 {
		t.Errorf("total_events = %d, want 50", got)
	}
	if rows[0]["org_login"] != "acme" {
		t.Errorf("org_login = %v, want acme", rows[0]["org_login"])
	}
}

func TestEventTypeMetricsPercentagesSum(t *testing.T) {
	ds := testDataset()
	rows := EventTypeMetrics(ds)

	var pctSum float64
	for _, row := range rows {
		pctSum += recFloat(row, "pct_of_total")
	}
	if pctSum < 99.99 || pctSum > 100.01 {
		t.Errorf("percentages sum to %f, want 100", pctSum)
	}
}

func TestDailySummary(t *testing.T) {
	ds := testDataset()
	rows := DailySummary(ds)

	if len(rows) != 2 {
		t.Fatalf("got %d hour buckets, want 2", len(rows))
	}
	for _, row := range rows {
		if got := recFloatAsInt(row, "total_events"); got != 100 {
			t.Errorf("bucket %v total = %d, want 100", row["hour_bucket"], got)
		}
		if got := recFloatAsInt(row, "unique_actors"); got != 10 {
			t.Errorf("bucket %v unique_actors = %d, want 10", row["hour_bucket"], got)
		}
		if got := recFloatAsInt(row, "unique_repos"); got != 5 {
			t.Errorf("bucket %v unique_repos = %d, want 5", row["hour_bucket"], got)
		}
	}
}

func TestRepoActivityScore(t *testing.T) {
	ds := &Dataset{
		Events: []types.Record{
			{"event_hash": "1", "event_id": "1", "event_type": "PushEvent", "repo_id": int64(1), "created_at": "2024-03-01T01:00:00Z"},
			{"event_hash": "2", "event_id": "2", "event_type": "PullRequestEvent", "repo_id": int64(1), "created_at": "2024-03-01T02:00:00Z"},
			{"event_hash": "3", "event_id": "3", "event_type": "IssuesEvent", "repo_id": int64(1), "created_at": "2024-03-01T03:00:00Z"},
			{"event_hash": "4", "event_id": "4", "event_type": "WatchEvent", "repo_id": int64(1), "created_at": "2024-03-01T04:00:00Z"},
		},
		Details: []types.Record{
			{"event_id": "1", "event_type": "PushEvent", "payload_size": int64(3)},
			{"event_id": "2", "event_type": "PullRequestEvent", "payload_action": "closed", "payload_pr_merged": int64(1)},
			{"event_id": "3", "event_type": "IssuesEvent", "payload_action": "closed"},
		},
	}
	ds.Cols = resolveColumns(ds.Events)

	rows := RepoActivity(ds)
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	row := rows[0]
	// 3 commits + 5 per pr + 3 per issue + 0.1 per event
	want := 3.0 + 5.0 + 3.0 + 4*0.1
	if got := recFloat(row, "activity_score"); got != want {
		t.Errorf("activity_score = %f, want %f", got, want)
	}
	if got := recFloatAsInt(row, "pushes"); got != 1 {
		t.Errorf("pushes = %d, want 1", got)
	}
	if got := recFloatAsInt(row, "commits"); got != 3 {
		t.Errorf("commits = %d, want 3", got)
	}
	if got := recFloatAsInt(row, "pr_merged"); got != 1 {
		t.Errorf("pr_merged = %d, want 1", got)
	}
	if got := recFloatAsInt(row, "issues_closed"); got != 1 {
		t.Errorf("issues_closed = %d, want 1", got)
	}
	if got := recFloat(row, "pr_merge_ratio"); got != 1 {
		t.Errorf("pr_merge_ratio = %f, want 1", got)
	}
	if got := recFloat(row, "commits_per_push"); got != 3 {
		t.Errorf("commits_per_push = %f, want 3", got)
	}
}

func TestRepoActivityPushWithoutSizeCountsOneCommit(t *testing.T) {
	ds := &Dataset{
		Events: []types.Record{
			{"event_hash": "1", "event_id": "1", "event_type": "PushEvent", "repo_id": int64(1), "created_at": "2024-03-01T01:00:00Z"},
		},
	}
	ds.Cols = resolveColumns(ds.Events)

	rows := RepoActivity(ds)
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if got := recFloatAsInt(rows[0], "commits"); got != 1 {
		t.Errorf("commits = %d, want 1", got)
	}
}

func TestUserContributionScore(t *testing.T) {
	ds := &Dataset{
		Events: []types.Record{
			{"event_hash": "1", "event_id": "1", "event_type": "PushEvent", "actor_id": int64(1), "created_at": "2024-03-01T01:00:00Z"},
			{"event_hash": "2", "event_id": "2", "event_type": "PullRequestEvent", "actor_id": int64(1), "created_at": "2024-03-01T02:00:00Z"},
			{"event_hash": "3", "event_id": "3", "event_type": "IssuesEvent", "actor_id": int64(1), "created_at": "2024-03-01T03:00:00Z"},
			{"event_hash": "4", "event_id": "4", "event_type": "IssueCommentEvent", "actor_id": int64(1), "created_at": "2024-03-01T04:00:00Z"},
		},
		Details: []types.Record{
			{"event_id": "1", "event_type": "PushEvent", "payload_size": int64(2)},
			{"event_id": "2", "event_type": "PullRequestEvent", "payload_action": "closed", "payload_pr_merged": int64(1)},
		},
	}
	ds.Cols = resolveColumns(ds.Events)

	rows := UserContribution(ds)
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	// 2 commits + 5 pr + 2 merged + 2 issue + 0.5 comment
	want := 2.0 + 5.0 + 2.0 + 2.0 + 0.5
	if got := recFloat(rows[0], "contribution_score"); got != want {
		t.Errorf("contribution_score = %f, want %f", got, want)
	}
	if got := recFloatAsInt(rows[0], "commits"); got != 2 {
		t.Errorf("commits = %d, want 2 from the push payload size", got)
	}
	if got := recFloatAsInt(rows[0], "pr_merged"); got != 1 {
		t.Errorf("pr_merged = %d, want 1", got)
	}
}

func TestTopNDeterministicTieBreak(t *testing.T) {
	recs := []types.Record{
		{"repo_id": int64(30), "activity_score": 5.0},
		{"repo_id": int64(10), "activity_score": 5.0},
		{"repo_id": int64(20), "activity_score": 9.0},
	}

	top := TopN(recs, "activity_score", "repo_id", 2)
	if len(top) != 2 {
		t.Fatalf("got %d rows, want 2", len(top))
	}
	if top[0]["repo_id"] != int64(20) {
		t.Errorf("first = %v, want the highest score", top[0]["repo_id"])
	}
	if top[1]["repo_id"] != int64(10) {
		t.Errorf("tie break = %v, want the lower id", top[1]["repo_id"])
	}
}

func TestEventTypeTrends(t *testing.T) {
	var events []types.Record
	addDay := func(date string, count int) {
		for i := 0; i < count; i++ {
			events = append(events, types.Record{
				"event_hash": fmt.Sprintf("%s-%d", date, i),
				"event_id":   fmt.Sprintf("%s-%d", date, i),
				"event_type": "PushEvent",
				"created_at": date + "T12:00:00Z",
			})
		}
	}
	addDay("2024-03-01", 10)
	addDay("2024-03-02", 15)
	addDay("2024-03-03", 15)

	ds := &Dataset{Events: events}
	ds.Cols = resolveColumns(ds.Events)

	rows := EventTypeTrends(ds)
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}

	if got := recFloat(rows[0], "change_pct"); got != 0 {
		t.Errorf("first day change_pct = %f, want 0", got)
	}
	if got := recFloat(rows[1], "change_pct"); got != 50 {
		t.Errorf("day 2 change_pct = %f, want 50", got)
	}
	if got := recFloat(rows[2], "change_pct"); got != 0 {
		t.Errorf("day 3 change_pct = %f, want 0", got)
	}
	if got := recFloatAsInt(rows[1], "prev_events"); got != 10 {
		t.Errorf("day 2 prev_events = %d, want 10", got)
	}
}

func TestEventTypeTrendsGapDay(t *testing.T) {
	var events []types.Record
	addDay := func(date string, count int) {
		for i := 0; i < count; i++ {
			events = append(events, types.Record{
				"event_hash": fmt.Sprintf("%s-%d", date, i),
				"event_id":   fmt.Sprintf("%s-%d", date, i),
				"event_type": "PushEvent",
				"created_at": date + "T12:00:00Z",
			})
		}
	}
	addDay("2024-03-01", 10)
	addDay("2024-03-03", 20)

	ds := &Dataset{Events: events}
	ds.Cols = resolveColumns(ds.Events)

	rows := EventTypeTrends(ds)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}

	// 2024-03-02 had no events, so 2024-03-03 compares against zero.
	if got := recFloatAsInt(rows[1], "prev_events"); got != 0 {
		t.Errorf("prev_events after a zero-event day = %d, want 0", got)
	}
	if got := recFloat(rows[1], "change_pct"); got != 0 {
		t.Errorf("change_pct after a zero-event day = %f, want 0", got)
	}
}

func TestColumnAliasFallback(t *testing.T) {
	recs := []types.Record{
		{"actorid": int64(7), "type": "PushEvent", "createdat": "2024-03-01T00:00:00Z"},
	}
	cm := resolveColumns(recs)

	if got := cm.id(recs[0], "actor_id"); got != 7 {
		t.Errorf("actor_id via alias = %d, want 7", got)
	}
	if got := cm.str(recs[0], "event_type"); got != "PushEvent" {
		t.Errorf("event_type via alias = %q, want PushEvent", got)
	}
	if got := cm.str(recs[0], "created_at"); got != "2024-03-01T00:00:00Z" {
		t.Errorf("created_at via alias = %q", got)
	}
}

func TestCanonicalColumnWinsOverAlias(t *testing.T) {
	recs := []types.Record{
		{"actor_id": int64(1), "actorid": int64(2)},
	}
	cm := resolveColumns(recs)
	if got := cm.id(recs[0], "actor_id"); got != 1 {
		t.Errorf("actor_id = %d, canonical column must win", got)
	}
}

func TestSafeRatio(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("zero denominator yields zero", prop.ForAll(
		func(n float64) bool {
			return SafeRatio(n, 0) == 0
		},
		gen.Float64(),
	))

	properties.Property("matches plain division otherwise", prop.ForAll(
		func(n, d float64) bool {
			if d == 0 {
				return true
			}
			return SafeRatio(n, d) == n/d
		},
		gen.Float64(),
		gen.Float64(),
	))

	properties.TestingRun(t)
}
