package graph

import (
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// ============================================================================
// Helper Functions
// ============================================================================

func getStringFromRecord(record *neo4j.Record, key string) string {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

func getInt64FromRecord(record *neo4j.Record, key string) int64 {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return 0
	}
	if i, ok := val.(int64); ok {
		return i
	}
	if i, ok := val.(int); ok {
		return int64(i)
	}
	return 0
}

func getTimeFromRecord(record *neo4j.Record, key string) time.Time {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return time.Time{}
	}
	// Neo4j datetime values come back as time.Time
	if t, ok := val.(time.Time); ok {
		return t
	}
	return time.Time{}
}

func summaryFromRecord(record *neo4j.Record) AccountSummary {
	return AccountSummary{
		ID:       getStringFromRecord(record, "id"),
		Handle:   getStringFromRecord(record, "handle"),
		Name:     getStringFromRecord(record, "name"),
		ImageURL: getStringFromRecord(record, "image_url"),
	}
}
