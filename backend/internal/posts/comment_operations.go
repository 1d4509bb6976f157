package posts

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	apperrors "currents/backend/pkg/errors"
)

// ============================================================================
// Comment Operations
// ============================================================================

// AddComment appends a comment to the post and returns the refreshed
// view-model. The comment sequence number is allocated inside the same write,
// so arrival order stays total even for same-instant appends.
func (r *Repository) AddComment(ctx context.Context, postID, authorID, text string) (*PostView, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.NewValidation("text", "is required")
	}

	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	commentID := uuid.NewString()

	query := `
		MATCH (author:Account {id: $authorID})
		MATCH (p:Post {id: $postID})
		SET p.comment_seq = coalesce(p.comment_seq, 0) + 1
		CREATE (c:Comment {
			id: $commentID,
			text: $text,
			seq: p.comment_seq,
			created_at: datetime($now)
		})
		CREATE (p)-[:HAS_COMMENT]->(c)
		CREATE (author)-[:WROTE]->(c)
		RETURN c.id as id
	`

	result, err := session.Run(ctx, query, map[string]interface{}{
		"authorID":  authorID,
		"postID":    postID,
		"commentID": commentID,
		"text":      text,
		"now":       time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, apperrors.NewTransientStore("add comment", err)
	}

	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return nil, apperrors.NewTransientStore("add comment", err)
		}
		return nil, r.missingEngagementTarget(ctx, postID, authorID)
	}

	r.logger.Info("Comment added",
		zap.String("post_id", postID),
		zap.String("comment_id", commentID),
		zap.String("author_id", authorID),
	)

	return r.Get(ctx, postID)
}

// RemoveComment removes exactly one comment by id; the relative order of the
// remaining comments is untouched because their seq values never change.
func (r *Repository) RemoveComment(ctx context.Context, postID, commentID string) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := `
		MATCH (p:Post {id: $postID})-[:HAS_COMMENT]->(c:Comment {id: $commentID})
		WITH c, c.id as removed_id
		DETACH DELETE c
		RETURN removed_id
	`

	result, err := session.Run(ctx, query, map[string]interface{}{
		"postID":    postID,
		"commentID": commentID,
	})
	if err != nil {
		return apperrors.NewTransientStore("remove comment", err)
	}

	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return apperrors.NewTransientStore("remove comment", err)
		}
		// Distinguish a missing post from a missing comment
		if _, err := r.Get(ctx, postID); err != nil {
			return err
		}
		return apperrors.NewNotFound("comment", commentID)
	}

	r.logger.Info("Comment removed",
		zap.String("post_id", postID),
		zap.String("comment_id", commentID),
	)
	return nil
}

// CommentAuthorID returns the author of a single comment; the authorization
// gate in front of RemoveComment uses it.
func (r *Repository) CommentAuthorID(ctx context.Context, postID, commentID string) (string, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
		MATCH (p:Post {id: $postID})-[:HAS_COMMENT]->(c:Comment {id: $commentID})<-[:WROTE]-(author:Account)
		RETURN author.id as author_id
	`

	result, err := session.Run(ctx, query, map[string]interface{}{
		"postID":    postID,
		"commentID": commentID,
	})
	if err != nil {
		return "", apperrors.NewTransientStore("resolve comment author", err)
	}

	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return "", apperrors.NewTransientStore("resolve comment author", err)
		}
		return "", apperrors.NewNotFound("comment", commentID)
	}

	return getStringFromRecord(result.Record(), "author_id"), nil
}
