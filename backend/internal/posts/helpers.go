package posts

import (
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"currents/backend/internal/graph"
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

func getTimeFromRecord(record *neo4j.Record, key string) time.Time {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return time.Time{}
	}
	if t, ok := val.(time.Time); ok {
		return t
	}
	return time.Time{}
}

func getStringFromMap(m map[string]interface{}, key string) string {
	if val, ok := m[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

func getTimeFromMap(m map[string]interface{}, key string) time.Time {
	if val, ok := m[key]; ok {
		if t, ok := val.(time.Time); ok {
			return t
		}
	}
	return time.Time{}
}

// viewFromRecord builds a PostView from the shared read-query column shape
func viewFromRecord(record *neo4j.Record) *PostView {
	view := &PostView{
		ID:        getStringFromRecord(record, "id"),
		Content:   getStringFromRecord(record, "content"),
		CreatedAt: getTimeFromRecord(record, "created_at"),
		Author: graph.AccountSummary{
			ID:       getStringFromRecord(record, "author_id"),
			Handle:   getStringFromRecord(record, "author_handle"),
			Name:     getStringFromRecord(record, "author_name"),
			ImageURL: getStringFromRecord(record, "author_image"),
		},
		Likes:    []string{},
		Comments: []CommentView{},
	}

	if url := getStringFromRecord(record, "image_url"); url != "" {
		view.Image = &Image{
			URL:         url,
			ExternalRef: getStringFromRecord(record, "image_ref"),
		}
	}

	if raw, ok := record.Get("likes"); ok {
		if list, ok := raw.([]interface{}); ok {
			for _, v := range list {
				if id, ok := v.(string); ok && id != "" {
					view.Likes = append(view.Likes, id)
				}
			}
		}
	}

	if raw, ok := record.Get("comments"); ok {
		if list, ok := raw.([]interface{}); ok {
			for _, v := range list {
				cm, ok := v.(map[string]interface{})
				if !ok {
					continue
				}
				id := getStringFromMap(cm, "id")
				if id == "" {
					// OPTIONAL MATCH with no comments collects a single null entry
					continue
				}
				comment := CommentView{
					ID:        id,
					Text:      getStringFromMap(cm, "text"),
					CreatedAt: getTimeFromMap(cm, "created_at"),
				}
				if am, ok := cm["author"].(map[string]interface{}); ok {
					comment.Author = graph.AccountSummary{
						ID:       getStringFromMap(am, "id"),
						Handle:   getStringFromMap(am, "handle"),
						Name:     getStringFromMap(am, "name"),
						ImageURL: getStringFromMap(am, "image_url"),
					}
				}
				view.Comments = append(view.Comments, comment)
			}
		}
	}

	return view
}
