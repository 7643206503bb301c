package gold

import "github.com/gharvest/gharvest/pkg/types"

// Gold table names.
const (
	TableActorMetrics     = "actor_metrics"
	TableRepoMetrics      = "repo_metrics"
	TableOrgMetrics       = "org_metrics"
	TableEventTypeMetrics = "event_type_metrics"
	TableDailySummary     = "daily_summary"
	TableRepoActivity     = "repo_activity"
	TableTopRepos         = "top_repos"
	TableUserContribution = "user_contribution"
	TableTopContributors  = "top_contributors"
	TableHourlyActivity   = "hourly_activity"
	TableDateActivity     = "date_activity"
	TableEventTypeTrends  = "event_type_trends"
)

// Tables lists every Gold output in build order.
var Tables = []string{
	TableActorMetrics,
	TableRepoMetrics,
	TableOrgMetrics,
	TableEventTypeMetrics,
	TableDailySummary,
	TableRepoActivity,
	TableTopRepos,
	TableUserContribution,
	TableTopContributors,
	TableHourlyActivity,
	TableDateActivity,
	TableEventTypeTrends,
}

var repoActivityColumns = []types.Column{
	{Name: "repo_id", Type: types.ColInteger},
	{Name: "repo_name", Type: types.ColText},
	{Name: "pushes", Type: types.ColInteger},
	{Name: "commits", Type: types.ColInteger},
	{Name: "prs", Type: types.ColInteger},
	{Name: "pr_merged", Type: types.ColInteger},
	{Name: "issues", Type: types.ColInteger},
	{Name: "issues_closed", Type: types.ColInteger},
	{Name: "comments", Type: types.ColInteger},
	{Name: "total_events", Type: types.ColInteger},
	{Name: "pr_merge_ratio", Type: types.ColReal},
	{Name: "issue_close_ratio", Type: types.ColReal},
	{Name: "commits_per_push", Type: types.ColReal},
	{Name: "activity_score", Type: types.ColReal},
}

var userContributionColumns = []types.Column{
	{Name: "actor_id", Type: types.ColInteger},
	{Name: "actor_login", Type: types.ColText},
	{Name: "commits", Type: types.ColInteger},
	{Name: "prs", Type: types.ColInteger},
	{Name: "pr_merged", Type: types.ColInteger},
	{Name: "issues", Type: types.ColInteger},
	{Name: "comments", Type: types.ColInteger},
	{Name: "total_events", Type: types.ColInteger},
	{Name: "contribution_score", Type: types.ColReal},
}

// Schemas holds the output schema of each Gold table.
var Schemas = map[string]types.Schema{
	TableActorMetrics: {
		Table: TableActorMetrics,
		Columns: []types.Column{
			{Name: "actor_id", Type: types.ColInteger},
			{Name: "actor_login", Type: types.ColText},
			{Name: "is_bot", Type: types.ColInteger},
			{Name: "total_events", Type: types.ColInteger},
			{Name: "unique_repos", Type: types.ColInteger},
			{Name: "first_event_at", Type: types.ColText},
			{Name: "last_event_at", Type: types.ColText},
		},
	},
	TableRepoMetrics: {
		Table: TableRepoMetrics,
		Columns: []types.Column{
			{Name: "repo_id", Type: types.ColInteger},
			{Name: "repo_name", Type: types.ColText},
			{Name: "owner_login", Type: types.ColText},
			{Name: "total_events", Type: types.ColInteger},
			{Name: "unique_actors", Type: types.ColInteger},
			{Name: "first_event_at", Type: types.ColText},
			{Name: "last_event_at", Type: types.ColText},
		},
	},
	TableOrgMetrics: {
		Table: TableOrgMetrics,
		Columns: []types.Column{
			{Name: "org_id", Type: types.ColInteger},
			{Name: "org_login", Type: types.ColText},
			{Name: "total_events", Type: types.ColInteger},
			{Name: "unique_actors", Type: types.ColInteger},
			{Name: "unique_repos", Type: types.ColInteger},
			{Name: "first_event_at", Type: types.ColText},
			{Name: "last_event_at", Type: types.ColText},
		},
	},
	TableEventTypeMetrics: {
		Table: TableEventTypeMetrics,
		Columns: []types.Column{
			{Name: "event_type", Type: types.ColText},
			{Name: "total_events", Type: types.ColInteger},
			{Name: "unique_actors", Type: types.ColInteger},
			{Name: "unique_repos", Type: types.ColInteger},
			{Name: "pct_of_total", Type: types.ColReal},
		},
	},
	TableDailySummary: {
		Table: TableDailySummary,
		Columns: []types.Column{
			{Name: "hour_bucket", Type: types.ColText},
			{Name: "total_events", Type: types.ColInteger},
			{Name: "unique_actors", Type: types.ColInteger},
			{Name: "unique_repos", Type: types.ColInteger},
		},
	},
	TableRepoActivity: {Table: TableRepoActivity, Columns: repoActivityColumns},
	TableTopRepos:     {Table: TableTopRepos, Columns: repoActivityColumns},
	TableUserContribution: {
		Table:   TableUserContribution,
		Columns: userContributionColumns,
	},
	TableTopContributors: {Table: TableTopContributors, Columns: userContributionColumns},
	TableHourlyActivity: {
		Table: TableHourlyActivity,
		Columns: []types.Column{
			{Name: "hour", Type: types.ColInteger},
			{Name: "total_events", Type: types.ColInteger},
			{Name: "unique_actors", Type: types.ColInteger},
		},
	},
	TableDateActivity: {
		Table: TableDateActivity,
		Columns: []types.Column{
			{Name: "date", Type: types.ColText},
			{Name: "total_events", Type: types.ColInteger},
			{Name: "unique_actors", Type: types.ColInteger},
			{Name: "unique_repos", Type: types.ColInteger},
		},
	},
	TableEventTypeTrends: {
		Table: TableEventTypeTrends,
		Columns: []types.Column{
			{Name: "date", Type: types.ColText},
			{Name: "event_type", Type: types.ColText},
			{Name: "total_events", Type: types.ColInteger},
			{Name: "prev_events", Type: types.ColInteger},
			{Name: "change_pct", Type: types.ColReal},
		},
	},
}
