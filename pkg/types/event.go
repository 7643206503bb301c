// Package types provides core data types shared across the gharvest pipeline.
package types

// ParsedEvent is the flattened form of one raw GitHub event record.
// It holds the top-level scalar fields plus extracted sub-entity records;
// the event itself keeps only the foreign-key IDs.
type ParsedEvent struct {
	// ID is the globally unique event identifier assigned by GitHub
	ID string

	// Type categorizes the event (e.g. "PushEvent", "PullRequestEvent")
	Type string

	// CreatedAt is the original ISO-8601 timestamp string
	CreatedAt string

	// Public reports whether the event was publicly visible
	Public bool

	// EventDate is the UTC date (YYYY-MM-DD) derived from CreatedAt,
	// empty when CreatedAt is missing or unparsable
	EventDate string

	// EventHour is the UTC hour bucket (YYYY-MM-DD-HH) derived from
	// CreatedAt, empty when CreatedAt is missing or unparsable
	EventHour string

	// Actor is the user who triggered the event (nil when absent)
	Actor *Actor

	// Repo is the repository the event occurred in (nil when absent)
	Repo *Repo

	// Org is the owning organization (nil for most events)
	Org *Org

	// Payload is the type-specific nested payload object (nil when absent)
	Payload map[string]interface{}

	// Raw is the full decoded record, used for canonical hashing and for
	// preserving the original content in the Bronze layer
	Raw map[string]interface{}
}

// Actor is the extracted actor sub-record of an event.
type Actor struct {
	ID           int64
	Login        string
	DisplayLogin string
	URL          string
	AvatarURL    string
	GravatarID   string
}

// Repo is the extracted repository sub-record of an event.
type Repo struct {
	ID   int64
	Name string
	URL  string
}

// OwnerLogin returns the owner part of the "owner/repo" full name,
// or empty when the name has no owner prefix.
func (r *Repo) OwnerLogin() string {
	for i := 0; i < len(r.Name); i++ {
		if r.Name[i] == '/' {
			return r.Name[:i]
		}
	}
	return ""
}

// Org is the extracted organization sub-record of an event.
type Org struct {
	ID        int64
	Login     string
	URL       string
	AvatarURL string
}
