// Package event parses raw archive event lines into typed records and
// computes the canonical content hash used for deduplication.
package event

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/gharvest/gharvest/internal/errors"
	"github.com/gharvest/gharvest/pkg/types"
)

// Parse decodes a single JSON event line into a ParsedEvent. Numbers are
// decoded as json.Number so that large identifiers survive a re-marshal
// without losing precision.
func Parse(line []byte) (*types.ParsedEvent, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()

	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, errors.NewParseError("malformed event line", err)
	}

	ev := &types.ParsedEvent{
		ID:        stringField(raw, "id"),
		Type:      stringField(raw, "type"),
		CreatedAt: stringField(raw, "created_at"),
		Raw:       raw,
	}

	if v, ok := raw["public"].(bool); ok {
		ev.Public = v
	}

	if actor, ok := raw["actor"].(map[string]interface{}); ok {
		ev.Actor = &types.Actor{
			ID:           intField(actor, "id"),
			Login:        stringField(actor, "login"),
			DisplayLogin: stringField(actor, "display_login"),
			URL:          stringField(actor, "url"),
			AvatarURL:    stringField(actor, "avatar_url"),
			GravatarID:   stringField(actor, "gravatar_id"),
		}
	}

	if repo, ok := raw["repo"].(map[string]interface{}); ok {
		ev.Repo = &types.Repo{
			ID:   intField(repo, "id"),
			Name: stringField(repo, "name"),
			URL:  stringField(repo, "url"),
		}
	}

	if org, ok := raw["org"].(map[string]interface{}); ok {
		ev.Org = &types.Org{
			ID:        intField(org, "id"),
			Login:     stringField(org, "login"),
			URL:       stringField(org, "url"),
			AvatarURL: stringField(org, "avatar_url"),
		}
	}

	if payload, ok := raw["payload"].(map[string]interface{}); ok {
		ev.Payload = payload
	}

	ev.EventDate, ev.EventHour = splitTimestamp(ev.CreatedAt)

	return ev, nil
}

// splitTimestamp derives the date and hour bucket from an RFC3339 event
// timestamp, normalized to UTC. Unparsable timestamps yield empty strings
// rather than an error so a single bad clock does not reject an event.
func splitTimestamp(ts string) (date, hour string) {
	if ts == "" {
		return "", ""
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return "", ""
	}
	t = t.UTC()
	return t.Format("2006-01-02"), t.Format("2006-01-02-15")
}

func stringField(m map[string]interface{}, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func intField(m map[string]interface{}, key string) int64 {
	if n, ok := m[key].(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			return i
		}
	}
	return 0
}
