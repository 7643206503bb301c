// Package silver normalizes Bronze partitions into the cleaned fact and
// dimension tables of the Silver layer.
package silver

import "github.com/gharvest/gharvest/pkg/types"

// Table names of the Silver layer.
const (
	TableEvents         = "events"
	TableActors         = "actors"
	TableRepositories   = "repositories"
	TableOrganizations  = "organizations"
	TablePayloadDetails = "payload_details"
)

// Tables lists every Silver table in output order.
var Tables = []string{
	TableEvents,
	TableActors,
	TableRepositories,
	TableOrganizations,
	TablePayloadDetails,
}

// Schemas holds the column whitelist for each Silver table. Projection
// through these schemas is what enforces the whitelist: extra record keys
// are dropped, missing ones surface as nulls.
var Schemas = map[string]types.Schema{
	TableEvents: {
		Table: TableEvents,
		Columns: []types.Column{
			{Name: "event_id", Type: types.ColText},
			{Name: "event_hash", Type: types.ColText},
			{Name: "event_type", Type: types.ColText},
			{Name: "created_at", Type: types.ColText},
			{Name: "actor_id", Type: types.ColInteger},
			{Name: "repo_id", Type: types.ColInteger},
			{Name: "org_id", Type: types.ColInteger},
			{Name: "is_bot", Type: types.ColInteger},
			{Name: "public", Type: types.ColInteger},
			{Name: "hour_bucket", Type: types.ColText},
			{Name: "processed_at", Type: types.ColText},
		},
	},
	TableActors: {
		Table: TableActors,
		Columns: []types.Column{
			{Name: "actor_id", Type: types.ColInteger},
			{Name: "actor_login", Type: types.ColText},
			{Name: "actor_display_login", Type: types.ColText},
			{Name: "actor_url", Type: types.ColText},
			{Name: "avatar_url", Type: types.ColText},
			{Name: "gravatar_id", Type: types.ColText},
			{Name: "is_bot", Type: types.ColInteger},
			{Name: "first_seen_at", Type: types.ColText},
			{Name: "last_seen_at", Type: types.ColText},
		},
	},
	TableRepositories: {
		Table: TableRepositories,
		Columns: []types.Column{
			{Name: "repo_id", Type: types.ColInteger},
			{Name: "repo_name", Type: types.ColText},
			{Name: "repo_url", Type: types.ColText},
			{Name: "owner_login", Type: types.ColText},
			{Name: "first_seen_at", Type: types.ColText},
			{Name: "last_seen_at", Type: types.ColText},
		},
	},
	TableOrganizations: {
		Table: TableOrganizations,
		Columns: []types.Column{
			{Name: "org_id", Type: types.ColInteger},
			{Name: "org_login", Type: types.ColText},
			{Name: "org_url", Type: types.ColText},
			{Name: "avatar_url", Type: types.ColText},
			{Name: "first_seen_at", Type: types.ColText},
			{Name: "last_seen_at", Type: types.ColText},
		},
	},
	TablePayloadDetails: {
		Table: TablePayloadDetails,
		Columns: []types.Column{
			{Name: "event_id", Type: types.ColText},
			{Name: "event_type", Type: types.ColText},
			{Name: "payload_action", Type: types.ColText},
			{Name: "payload_issue_id", Type: types.ColInteger},
			{Name: "payload_issue_number", Type: types.ColInteger},
			{Name: "payload_issue_state", Type: types.ColText},
			{Name: "payload_pull_request_id", Type: types.ColInteger},
			{Name: "payload_pr_number", Type: types.ColInteger},
			{Name: "payload_pr_state", Type: types.ColText},
			{Name: "payload_pr_merged", Type: types.ColInteger},
			{Name: "payload_comment_id", Type: types.ColInteger},
			{Name: "payload_ref", Type: types.ColText},
			{Name: "payload_ref_type", Type: types.ColText},
			{Name: "payload_head", Type: types.ColText},
			{Name: "payload_before", Type: types.ColText},
			{Name: "payload_size", Type: types.ColInteger},
			{Name: "payload_distinct_size", Type: types.ColInteger},
		},
	},
}
