package silver

import (
	"encoding/json"
	"strings"

	"github.com/gharvest/gharvest/pkg/types"
)

// payloadExtractor pulls the event-type-specific detail columns out of a
// payload map into a payload_details record.
type payloadExtractor func(payload map[string]interface{}, rec types.Record)

// payloadExtractorFor selects the extractor for an event type. Exact
// matches win; comment events of any flavor share one extractor.
func payloadExtractorFor(eventType string) payloadExtractor {
	switch eventType {
	case "PushEvent":
		return extractPush
	case "PullRequestEvent":
		return extractPullRequest
	case "IssuesEvent":
		return extractIssue
	case "CreateEvent", "DeleteEvent":
		return extractRef
	}
	if strings.HasSuffix(eventType, "CommentEvent") {
		return extractComment
	}
	return extractDefault
}

// ExtractPayload builds a payload_details record for one event.
func ExtractPayload(eventID, eventType string, payload map[string]interface{}) types.Record {
	rec := types.Record{
		"event_id":   eventID,
		"event_type": eventType,
	}
	if payload != nil {
		payloadExtractorFor(eventType)(payload, rec)
	}
	return rec
}

func extractDefault(payload map[string]interface{}, rec types.Record) {
	if action, ok := payload["action"].(string); ok {
		rec["payload_action"] = action
	}
}

func extractPush(payload map[string]interface{}, rec types.Record) {
	rec["payload_ref"] = strVal(payload, "ref")
	rec["payload_head"] = strVal(payload, "head")
	rec["payload_before"] = strVal(payload, "before")
	rec["payload_size"] = numVal(payload, "size")
	rec["payload_distinct_size"] = numVal(payload, "distinct_size")
}

func extractPullRequest(payload map[string]interface{}, rec types.Record) {
	extractDefault(payload, rec)
	if pr, ok := payload["pull_request"].(map[string]interface{}); ok {
		rec["payload_pull_request_id"] = numVal(pr, "id")
		rec["payload_pr_number"] = numVal(pr, "number")
		rec["payload_pr_state"] = strVal(pr, "state")
		if merged, ok := pr["merged"].(bool); ok && merged {
			rec["payload_pr_merged"] = int64(1)
		} else {
			rec["payload_pr_merged"] = int64(0)
		}
	}
}

func extractIssue(payload map[string]interface{}, rec types.Record) {
	extractDefault(payload, rec)
	if issue, ok := payload["issue"].(map[string]interface{}); ok {
		rec["payload_issue_id"] = numVal(issue, "id")
		rec["payload_issue_number"] = numVal(issue, "number")
		rec["payload_issue_state"] = strVal(issue, "state")
	}
}

func extractComment(payload map[string]interface{}, rec types.Record) {
	extractDefault(payload, rec)
	if comment, ok := payload["comment"].(map[string]interface{}); ok {
		rec["payload_comment_id"] = numVal(comment, "id")
	}
	if issue, ok := payload["issue"].(map[string]interface{}); ok {
		rec["payload_issue_id"] = numVal(issue, "id")
	}
	if pr, ok := payload["pull_request"].(map[string]interface{}); ok {
		rec["payload_pull_request_id"] = numVal(pr, "id")
	}
}

func extractRef(payload map[string]interface{}, rec types.Record) {
	rec["payload_ref"] = strVal(payload, "ref")
	rec["payload_ref_type"] = strVal(payload, "ref_type")
}

func strVal(m map[string]interface{}, key string) interface{} {
	if s, ok := m[key].(string); ok {
		return s
	}
	return nil
}

func numVal(m map[string]interface{}, key string) interface{} {
	if n, ok := m[key].(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			return i
		}
	}
	return nil
}
