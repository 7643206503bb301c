// Package gold aggregates the Silver layer into analytical metric tables.
package gold

import (
	"strconv"

	"github.com/gharvest/gharvest/pkg/types"
)

// columnAliases maps each canonical column name to the fallback names
// accepted when loading Silver data produced by older layouts. The
// canonical name always wins; aliases are tried in order.
var columnAliases = map[string][]string{
	"event_id":   {"id", "eventid"},
	"event_type": {"type", "eventtype", "event"},
	"actor_id":   {"actorid", "actor"},
	"repo_id":    {"repoid", "repository_id"},
	"org_id":     {"orgid", "organization_id", "org"},
	"created_at": {"createdat", "date", "timestamp"},
}

// columnMap holds the resolved physical name for each canonical column of
// one loaded frame. Resolution happens once per frame, not per row.
type columnMap map[string]string

// resolveColumns inspects the keys present in a sample of records and
// binds each canonical name to the first physical column that carries it.
func resolveColumns(recs []types.Record) columnMap {
	present := make(map[string]struct{})
	for i, rec := range recs {
		if i >= 100 {
			break
		}
		for k := range rec {
			present[k] = struct{}{}
		}
	}

	cm := make(columnMap, len(columnAliases))
	for canonical, aliases := range columnAliases {
		if _, ok := present[canonical]; ok {
			cm[canonical] = canonical
			continue
		}
		for _, alias := range aliases {
			if _, ok := present[alias]; ok {
				cm[canonical] = alias
				break
			}
		}
	}
	return cm
}

// str returns the canonical column of a record as a string.
func (cm columnMap) str(rec types.Record, canonical string) string {
	phys, ok := cm[canonical]
	if !ok {
		return ""
	}
	switch v := rec[phys].(type) {
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// id returns the canonical column of a record as an integer id. Zero means
// absent.
func (cm columnMap) id(rec types.Record, canonical string) int64 {
	phys, ok := cm[canonical]
	if !ok {
		return 0
	}
	switch v := rec[phys].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case string:
		if v == "" {
			return 0
		}
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0
		}
		return i
	default:
		return 0
	}
}

// SafeRatio divides numerator by denominator, returning 0 when the
// denominator is 0.
func SafeRatio(numerator, denominator float64) float64 {
	if denominator == 0 {
		return 0
	}
	return numerator / denominator
}
