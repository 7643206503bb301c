package event

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestParse(t *testing.T) {
	line := []byte(`{
		"id": "36000000001",
		"type": "PushEvent",
		"actor": {"id": 9000000001, "login": "octocat", "display_login": "octocat", "url": "https://api.github.com/users/octocat", "avatar_url": "https://avatars.example/1", "gravatar_id": ""},
		"repo": {"id": 1296269, "name": "octocat/hello-world", "url": "https://api.github.com/repos/octocat/hello-world"},
		"org": {"id": 44, "login": "octo-org", "url": "https://api.github.com/orgs/octo-org"},
		"payload": {"size": 3, "ref": "refs/heads/main"},
		"public": true,
		"created_at": "2024-03-01T15:42:11Z"
	}`)

	ev, err := Parse(line)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	if ev.ID != "36000000001" {
		t.Errorf("ID = %q, want 36000000001", ev.ID)
	}
	if ev.Type != "PushEvent" {
		t.Errorf("Type = %q, want PushEvent", ev.Type)
	}
	if !ev.Public {
		t.Error("Public = false, want true")
	}
	if ev.Actor == nil || ev.Actor.ID != 9000000001 {
		t.Errorf("Actor.ID = %+v, want 9000000001", ev.Actor)
	}
	if ev.Repo == nil || ev.Repo.Name != "octocat/hello-world" {
		t.Errorf("Repo = %+v, want octocat/hello-world", ev.Repo)
	}
	if ev.Org == nil || ev.Org.Login != "octo-org" {
		t.Errorf("Org = %+v, want octo-org", ev.Org)
	}
	if ev.EventDate != "2024-03-01" {
		t.Errorf("EventDate = %q, want 2024-03-01", ev.EventDate)
	}
	if ev.EventHour != "2024-03-01-15" {
		t.Errorf("EventHour = %q, want 2024-03-01-15", ev.EventHour)
	}
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"truncated", `{"id": "1", "type": "PushEv`},
		{"not json", `this is not json at all`},
		{"array", `[1, 2, 3]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.line)); err == nil {
				t.Error("Parse succeeded, want error")
			}
		})
	}
}

func TestParseMissingFields(t *testing.T) {
	ev, err := Parse([]byte(`{"id": "5", "type": "WatchEvent"}`))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if ev.Actor != nil || ev.Repo != nil || ev.Org != nil {
		t.Errorf("expected nil sub-entities, got actor=%v repo=%v org=%v", ev.Actor, ev.Repo, ev.Org)
	}
	if ev.EventDate != "" || ev.EventHour != "" {
		t.Errorf("expected empty date buckets without created_at, got %q %q", ev.EventDate, ev.EventHour)
	}
}

func TestSplitTimestampNormalizesToUTC(t *testing.T) {
	date, hour := splitTimestamp("2024-03-01T23:30:00+02:00")
	if date != "2024-03-01" || hour != "2024-03-01-21" {
		t.Errorf("got (%q, %q), want (2024-03-01, 2024-03-01-21)", date, hour)
	}
}

func TestCanonicalHashIgnoresKeyOrder(t *testing.T) {
	a, err := Parse([]byte(`{"id": "1", "type": "PushEvent", "public": true}`))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Parse([]byte(`{"public": true, "type": "PushEvent", "id": "1"}`))
	if err != nil {
		t.Fatal(err)
	}

	ha, err := CanonicalHash(a.Raw)
	if err != nil {
		t.Fatal(err)
	}
	hb, err := CanonicalHash(b.Raw)
	if err != nil {
		t.Fatal(err)
	}
	if ha != hb {
		t.Errorf("hashes differ for reordered keys: %s vs %s", ha, hb)
	}
	if len(ha) != 32 {
		t.Errorf("hash length = %d, want 32 hex chars", len(ha))
	}
}

func TestCanonicalHashDistinguishesContent(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("events with different ids hash differently", prop.ForAll(
		func(id1, id2 int64) bool {
			if id1 == id2 {
				return true
			}
			h1, err1 := CanonicalHash(map[string]interface{}{"id": id1})
			h2, err2 := CanonicalHash(map[string]interface{}{"id": id2})
			return err1 == nil && err2 == nil && h1 != h2
		},
		gen.Int64(),
		gen.Int64(),
	))

	properties.TestingRun(t)
}
