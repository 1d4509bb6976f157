package graph

import (
	"context"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	apperrors "currents/backend/pkg/errors"
)

// ============================================================================
// Follow Edge Operations
// ============================================================================

// The graph keeps a single authoritative [:FOLLOWS] edge per pair. "Following"
// and "followers" are the two traversal directions of that edge set, so the two
// views can never disagree and a half-written dual update cannot exist.

const (
	defaultFollowingLimit = 100
	defaultSuggestLimit   = 10
)

// Follow adds a follow edge from follower to followee. Re-following an
// existing edge is a no-op success. Following yourself is rejected: an
// account already sees its own posts in its home feed.
func (r *Repository) Follow(ctx context.Context, followerID, followeeID string) error {
	if followeeID == "" {
		return apperrors.NewValidation("account_id", "follow target is required")
	}
	if followerID == followeeID {
		return apperrors.NewValidation("account_id", "cannot follow yourself")
	}

	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	now := time.Now().UTC().Format(time.RFC3339)

	query := `
		MATCH (follower:Account {id: $followerID})
		MATCH (followee:Account {id: $followeeID})
		MERGE (follower)-[f:FOLLOWS]->(followee)
		ON CREATE SET f.since = datetime($now)
		RETURN f.since as since
	`

	result, err := session.Run(ctx, query, map[string]interface{}{
		"followerID": followerID,
		"followeeID": followeeID,
		"now":        now,
	})
	if err != nil {
		return apperrors.NewTransientStore("follow", err)
	}

	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return apperrors.NewTransientStore("follow", err)
		}
		// MERGE produced nothing, so one of the two MATCH clauses missed
		return r.missingAccount(ctx, followerID, followeeID)
	}

	r.logger.Info("Follow edge ensured",
		zap.String("follower_id", followerID),
		zap.String("followee_id", followeeID),
	)
	return nil
}

// Unfollow removes the follow edge. Removing an absent edge is a no-op success.
func (r *Repository) Unfollow(ctx context.Context, followerID, followeeID string) error {
	if followeeID == "" {
		return apperrors.NewValidation("account_id", "unfollow target is required")
	}
	if followerID == followeeID {
		return apperrors.NewValidation("account_id", "cannot unfollow yourself")
	}

	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := `
		MATCH (follower:Account {id: $followerID})
		MATCH (followee:Account {id: $followeeID})
		OPTIONAL MATCH (follower)-[f:FOLLOWS]->(followee)
		DELETE f
		RETURN follower.id as follower_id
	`

	result, err := session.Run(ctx, query, map[string]interface{}{
		"followerID": followerID,
		"followeeID": followeeID,
	})
	if err != nil {
		return apperrors.NewTransientStore("unfollow", err)
	}

	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return apperrors.NewTransientStore("unfollow", err)
		}
		return r.missingAccount(ctx, followerID, followeeID)
	}

	r.logger.Info("Follow edge removed",
		zap.String("follower_id", followerID),
		zap.String("followee_id", followeeID),
	)
	return nil
}

// ListFollowing returns the accounts followed by accountID. The read is a
// capped, unordered set.
func (r *Repository) ListFollowing(ctx context.Context, accountID string, limit int) ([]AccountSummary, error) {
	if limit < 1 || limit > defaultFollowingLimit {
		limit = defaultFollowingLimit
	}

	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
		MATCH (:Account {id: $accountID})-[:FOLLOWS]->(f:Account)
		RETURN f.id as id, f.handle as handle, f.name as name, f.image_url as image_url
		LIMIT $limit
	`

	result, err := session.Run(ctx, query, map[string]interface{}{
		"accountID": accountID,
		"limit":     limit,
	})
	if err != nil {
		return nil, apperrors.NewTransientStore("list following", err)
	}

	following := []AccountSummary{}
	for result.Next(ctx) {
		following = append(following, summaryFromRecord(result.Record()))
	}
	if err := result.Err(); err != nil {
		return nil, apperrors.NewTransientStore("list following", err)
	}

	return following, nil
}

// ListFollowingIDs returns only the ids of accounts followed by accountID.
// Used by the feed assembler; unbounded because the feed must cover the
// whole following set.
func (r *Repository) ListFollowingIDs(ctx context.Context, accountID string) ([]string, error) {
	return r.edgeIDs(ctx, accountID, `
		MATCH (:Account {id: $accountID})-[:FOLLOWS]->(f:Account)
		RETURN f.id as id
	`, "list following ids")
}

// ListFollowerIDs returns the ids of accounts following accountID.
// Used by the fan-out notifier for targeted delivery.
func (r *Repository) ListFollowerIDs(ctx context.Context, accountID string) ([]string, error) {
	return r.edgeIDs(ctx, accountID, `
		MATCH (f:Account)-[:FOLLOWS]->(:Account {id: $accountID})
		RETURN f.id as id
	`, "list follower ids")
}

// SuggestAccounts returns accounts the requester does not already follow,
// excluding the requester. Ordering is whatever the store yields; it is
// non-deterministic, not a ranking.
func (r *Repository) SuggestAccounts(ctx context.Context, accountID string, limit int) ([]AccountSummary, error) {
	if limit < 1 {
		limit = defaultSuggestLimit
	}

	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
		MATCH (me:Account {id: $accountID})
		MATCH (candidate:Account)
		WHERE candidate.id <> me.id
		  AND NOT (me)-[:FOLLOWS]->(candidate)
		RETURN candidate.id as id, candidate.handle as handle,
		       candidate.name as name, candidate.image_url as image_url
		LIMIT $limit
	`

	result, err := session.Run(ctx, query, map[string]interface{}{
		"accountID": accountID,
		"limit":     limit,
	})
	if err != nil {
		return nil, apperrors.NewTransientStore("suggest accounts", err)
	}

	suggestions := []AccountSummary{}
	for result.Next(ctx) {
		suggestions = append(suggestions, summaryFromRecord(result.Record()))
	}
	if err := result.Err(); err != nil {
		return nil, apperrors.NewTransientStore("suggest accounts", err)
	}

	return suggestions, nil
}

func (r *Repository) edgeIDs(ctx context.Context, accountID, cypher, op string) ([]string, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, cypher, map[string]interface{}{
		"accountID": accountID,
	})
	if err != nil {
		return nil, apperrors.NewTransientStore(op, err)
	}

	ids := []string{}
	for result.Next(ctx) {
		ids = append(ids, getStringFromRecord(result.Record(), "id"))
	}
	if err := result.Err(); err != nil {
		return nil, apperrors.NewTransientStore(op, err)
	}

	return ids, nil
}

// missingAccount reports which side of a follow pair does not exist
func (r *Repository) missingAccount(ctx context.Context, followerID, followeeID string) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
		MATCH (a:Account)
		WHERE a.id IN [$followerID, $followeeID]
		RETURN collect(a.id) as found
	`

	result, err := session.Run(ctx, query, map[string]interface{}{
		"followerID": followerID,
		"followeeID": followeeID,
	})
	if err != nil {
		return apperrors.NewTransientStore("resolve follow pair", err)
	}

	found := map[string]bool{}
	if result.Next(ctx) {
		if raw, ok := result.Record().Get("found"); ok {
			if list, ok := raw.([]interface{}); ok {
				for _, v := range list {
					if id, ok := v.(string); ok {
						found[id] = true
					}
				}
			}
		}
	}

	if !found[followerID] {
		return apperrors.NewNotFound("account", followerID)
	}
	return apperrors.NewNotFound("account", followeeID)
}
