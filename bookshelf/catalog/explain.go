package catalog

import (
	"go.mongodb.org/mongo-driver/bson"
)

// ExecutionStats summarizes an explain document produced with executionStats
// verbosity. Raw keeps the full document as returned by the engine.
type ExecutionStats struct {
	NReturned           int64  `json:"nReturned"`
	TotalDocsExamined   int64  `json:"totalDocsExamined"`
	TotalKeysExamined   int64  `json:"totalKeysExamined"`
	ExecutionTimeMillis int64  `json:"executionTimeMillis"`
	WinningStage        string `json:"winningStage"`
	IndexName           string `json:"indexName,omitempty"`
	Raw                 bson.M `json:"raw"`
}

// UsedIndex reports whether the winning plan scanned an index.
func (s *ExecutionStats) UsedIndex() bool {
	return s != nil && s.IndexName != ""
}

// ParseExecutionStats extracts the counters and winning plan from an explain
// document. Missing sections leave the matching fields zero.
func ParseExecutionStats(raw bson.M) *ExecutionStats {
	stats := &ExecutionStats{Raw: raw}

	if execution, ok := document(raw["executionStats"]); ok {
		stats.NReturned = integer(execution["nReturned"])
		stats.TotalDocsExamined = integer(execution["totalDocsExamined"])
		stats.TotalKeysExamined = integer(execution["totalKeysExamined"])
		stats.ExecutionTimeMillis = integer(execution["executionTimeMillis"])
	}

	planner, ok := document(raw["queryPlanner"])
	if !ok {
		return stats
	}

	plan, ok := document(planner["winningPlan"])
	if !ok {
		return stats
	}

	// Slot based engine nests the classic plan under queryPlan.
	if nested, ok := document(plan["queryPlan"]); ok {
		plan = nested
	}

	if stage, ok := plan["stage"].(string); ok {
		stats.WinningStage = stage
	}

	stats.IndexName = findIndexName(plan)

	return stats
}

func findIndexName(stage bson.M) string {
	if name, ok := stage["indexName"].(string); ok && name != "" {
		return name
	}

	if input, ok := document(stage["inputStage"]); ok {
		if name := findIndexName(input); name != "" {
			return name
		}
	}

	for _, child := range array(stage["inputStages"]) {
		if input, ok := document(child); ok {
			if name := findIndexName(input); name != "" {
				return name
			}
		}
	}

	return ""
}

func document(v any) (bson.M, bool) {
	switch doc := v.(type) {
	case bson.M:
		return doc, true
	case map[string]any:
		return bson.M(doc), true
	case bson.D:
		out := make(bson.M, len(doc))
		for _, e := range doc {
			out[e.Key] = e.Value
		}

		return out, true
	default:
		return nil, false
	}
}

func array(v any) []any {
	switch arr := v.(type) {
	case bson.A:
		return arr
	case []any:
		return arr
	default:
		return nil
	}
}

func integer(v any) int64 {
	switch n := v.(type) {
	case int32:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
