package graph

import (
	"context"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	apperrors "currents/backend/pkg/errors"
)

// ============================================================================
// Account Operations
// ============================================================================

// UpsertAccount creates or refreshes the display summary for an account.
// The identity collaborator calls this after registration or profile edits.
func (r *Repository) UpsertAccount(ctx context.Context, id, handle, name, imageURL string) (*Account, error) {
	if id == "" {
		return nil, apperrors.NewValidation("id", "is required")
	}
	if handle == "" {
		return nil, apperrors.NewValidation("handle", "is required")
	}

	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	now := time.Now().UTC().Format(time.RFC3339)

	query := `
		MERGE (a:Account {id: $id})
		ON CREATE SET a.created_at = datetime($now)
		SET a.handle = $handle,
		    a.name = $name,
		    a.image_url = $imageURL
		RETURN a.id as id, a.handle as handle, a.name as name,
		       a.image_url as image_url, a.created_at as created_at
	`

	result, err := session.Run(ctx, query, map[string]interface{}{
		"id":       id,
		"handle":   handle,
		"name":     name,
		"imageURL": imageURL,
		"now":      now,
	})
	if err != nil {
		if isConstraintViolation(err) {
			return nil, apperrors.NewConflict("handle", handle, err)
		}
		return nil, apperrors.NewTransientStore("upsert account", err)
	}

	record, err := result.Single(ctx)
	if err != nil {
		if isConstraintViolation(err) {
			return nil, apperrors.NewConflict("handle", handle, err)
		}
		return nil, apperrors.NewTransientStore("upsert account", err)
	}

	r.logger.Info("Account upserted",
		zap.String("account_id", id),
		zap.String("handle", handle),
	)

	return &Account{
		ID:        getStringFromRecord(record, "id"),
		Handle:    getStringFromRecord(record, "handle"),
		Name:      getStringFromRecord(record, "name"),
		ImageURL:  getStringFromRecord(record, "image_url"),
		CreatedAt: getTimeFromRecord(record, "created_at"),
	}, nil
}

// GetAccount returns an account with its follow counts
func (r *Repository) GetAccount(ctx context.Context, id string) (*Account, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
		MATCH (a:Account {id: $id})
		RETURN a.id as id, a.handle as handle, a.name as name,
		       a.image_url as image_url, a.created_at as created_at,
		       COUNT { (a)-[:FOLLOWS]->(:Account) } as following_count,
		       COUNT { (:Account)-[:FOLLOWS]->(a) } as follower_count
	`

	result, err := session.Run(ctx, query, map[string]interface{}{
		"id": id,
	})
	if err != nil {
		return nil, apperrors.NewTransientStore("get account", err)
	}

	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return nil, apperrors.NewTransientStore("get account", err)
		}
		return nil, apperrors.NewNotFound("account", id)
	}

	record := result.Record()
	return &Account{
		ID:             getStringFromRecord(record, "id"),
		Handle:         getStringFromRecord(record, "handle"),
		Name:           getStringFromRecord(record, "name"),
		ImageURL:       getStringFromRecord(record, "image_url"),
		CreatedAt:      getTimeFromRecord(record, "created_at"),
		FollowingCount: getInt64FromRecord(record, "following_count"),
		FollowerCount:  getInt64FromRecord(record, "follower_count"),
	}, nil
}

// SearchAccounts matches handle or display name case-insensitively.
// A blank query returns no results rather than scanning every account.
func (r *Repository) SearchAccounts(ctx context.Context, query string, limit int) ([]AccountSummary, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []AccountSummary{}, nil
	}
	if limit < 1 || limit > maxSearchResults {
		limit = maxSearchResults
	}

	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	cypher := `
		MATCH (a:Account)
		WHERE toLower(a.handle) CONTAINS toLower($query)
		   OR toLower(a.name) CONTAINS toLower($query)
		RETURN a.id as id, a.handle as handle, a.name as name, a.image_url as image_url
		LIMIT $limit
	`

	result, err := session.Run(ctx, cypher, map[string]interface{}{
		"query": query,
		"limit": limit,
	})
	if err != nil {
		return nil, apperrors.NewTransientStore("search accounts", err)
	}

	matches := []AccountSummary{}
	for result.Next(ctx) {
		matches = append(matches, summaryFromRecord(result.Record()))
	}
	if err := result.Err(); err != nil {
		return nil, apperrors.NewTransientStore("search accounts", err)
	}

	return matches, nil
}

const maxSearchResults = 50
