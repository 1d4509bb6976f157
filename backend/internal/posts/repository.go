package posts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	apperrors "currents/backend/pkg/errors"
	"currents/backend/pkg/logger"
)

// Releaser asks the media collaborator to drop a stored blob by its opaque ref
type Releaser interface {
	Release(ctx context.Context, externalRef string) error
}

// Repository handles all Neo4j post and engagement operations
type Repository struct {
	driver neo4j.DriverWithContext
	media  Releaser
	logger *zap.Logger
}

// NewRepository creates a new post repository. media may be nil when no
// media collaborator is configured.
func NewRepository(driver neo4j.DriverWithContext, media Releaser) *Repository {
	return &Repository{
		driver: driver,
		media:  media,
		logger: logger.Get(),
	}
}

// EnsureSchema creates the uniqueness constraints for posts and comments.
// Safe to run on every startup.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	constraints := []string{
		`CREATE CONSTRAINT post_id_unique IF NOT EXISTS FOR (p:Post) REQUIRE p.id IS UNIQUE`,
		`CREATE CONSTRAINT comment_id_unique IF NOT EXISTS FOR (c:Comment) REQUIRE c.id IS UNIQUE`,
	}

	for _, stmt := range constraints {
		if _, err := session.Run(ctx, stmt, nil); err != nil {
			return apperrors.NewTransientStore("ensure post schema", err)
		}
	}

	return nil
}

// Shared tail of every read query: expand likes and seq-ordered comments,
// then project the flat view-model columns.
const postViewProjection = `
	OPTIONAL MATCH (liker:Account)-[:LIKES]->(p)
	WITH p, author, collect(DISTINCT liker.id) as likes
	OPTIONAL MATCH (p)-[:HAS_COMMENT]->(c:Comment)<-[:WROTE]-(ca:Account)
	WITH p, author, likes, c, ca
	ORDER BY c.seq ASC
	WITH p, author, likes, collect({
		id: c.id, text: c.text, created_at: c.created_at,
		author: {id: ca.id, handle: ca.handle, name: ca.name, image_url: ca.image_url}
	}) as comments
	RETURN p.id as id, p.content as content,
	       p.image_url as image_url, p.image_ref as image_ref,
	       p.created_at as created_at,
	       author.id as author_id, author.handle as author_handle,
	       author.name as author_name, author.image_url as author_image,
	       likes, comments
`

// Create stores a new post and returns its resolved view-model
func (r *Repository) Create(ctx context.Context, authorID, content string, image *Image) (*PostView, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apperrors.NewValidation("content", "is required")
	}

	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	postID := uuid.NewString()
	imageURL, imageRef := "", ""
	if image != nil {
		imageURL, imageRef = image.URL, image.ExternalRef
	}

	query := `
		MATCH (author:Account {id: $authorID})
		CREATE (p:Post {
			id: $postID,
			content: $content,
			image_url: $imageURL,
			image_ref: $imageRef,
			created_at: datetime($now),
			comment_seq: 0
		})
		CREATE (author)-[:POSTED]->(p)
		RETURN p.id as id
	`

	result, err := session.Run(ctx, query, map[string]interface{}{
		"authorID": authorID,
		"postID":   postID,
		"content":  content,
		"imageURL": imageURL,
		"imageRef": imageRef,
		"now":      time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, apperrors.NewTransientStore("create post", err)
	}

	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return nil, apperrors.NewTransientStore("create post", err)
		}
		return nil, apperrors.NewNotFound("account", authorID)
	}

	r.logger.Info("Post created",
		zap.String("post_id", postID),
		zap.String("author_id", authorID),
	)

	return r.Get(ctx, postID)
}

// Get returns the post with author and comment-author summaries resolved
func (r *Repository) Get(ctx context.Context, postID string) (*PostView, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
		MATCH (author:Account)-[:POSTED]->(p:Post {id: $postID})
	` + postViewProjection

	result, err := session.Run(ctx, query, map[string]interface{}{
		"postID": postID,
	})
	if err != nil {
		return nil, apperrors.NewTransientStore("get post", err)
	}

	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return nil, apperrors.NewTransientStore("get post", err)
		}
		return nil, apperrors.NewNotFound("post", postID)
	}

	return viewFromRecord(result.Record()), nil
}

// Update replaces exactly the fields present in the patch. Ownership is not
// checked here; the authorization gate sits in front of this call.
func (r *Repository) Update(ctx context.Context, postID string, patch Patch) (*PostView, error) {
	assignments := []string{}
	params := map[string]interface{}{
		"postID": postID,
	}

	if patch.Content != nil {
		if strings.TrimSpace(*patch.Content) == "" {
			return nil, apperrors.NewValidation("content", "is required")
		}
		assignments = append(assignments, "p.content = $content")
		params["content"] = *patch.Content
	}
	if patch.Image != nil {
		assignments = append(assignments, "p.image_url = $imageURL", "p.image_ref = $imageRef")
		params["imageURL"] = patch.Image.URL
		params["imageRef"] = patch.Image.ExternalRef
	}

	if len(assignments) == 0 {
		// Nothing to replace; behave as a plain read
		return r.Get(ctx, postID)
	}

	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := fmt.Sprintf(`
		MATCH (p:Post {id: $postID})
		SET %s
		RETURN p.id as id
	`, strings.Join(assignments, ", "))

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return nil, apperrors.NewTransientStore("update post", err)
	}

	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return nil, apperrors.NewTransientStore("update post", err)
		}
		return nil, apperrors.NewNotFound("post", postID)
	}

	return r.Get(ctx, postID)
}

// Delete removes the post and cascades its comments. When an image was
// attached, the media collaborator is asked to release the blob; that call is
// best-effort and its failure never fails the delete.
func (r *Repository) Delete(ctx context.Context, postID string) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := `
		MATCH (p:Post {id: $postID})
		WITH p, p.image_ref as image_ref
		OPTIONAL MATCH (p)-[:HAS_COMMENT]->(c:Comment)
		DETACH DELETE c, p
		RETURN DISTINCT image_ref
	`

	result, err := session.Run(ctx, query, map[string]interface{}{
		"postID": postID,
	})
	if err != nil {
		return apperrors.NewTransientStore("delete post", err)
	}

	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return apperrors.NewTransientStore("delete post", err)
		}
		return apperrors.NewNotFound("post", postID)
	}
	imageRef := getStringFromRecord(result.Record(), "image_ref")

	r.logger.Info("Post deleted", zap.String("post_id", postID))

	if imageRef != "" && r.media != nil {
		if err := r.media.Release(ctx, imageRef); err != nil {
			// User-visible deletion must not be blocked by the media system
			r.logger.Warn("Media release failed",
				zap.String("post_id", postID),
				zap.String("external_ref", imageRef),
				zap.Error(err),
			)
		}
	}

	return nil
}

// Like records that accountID likes the post. Liking twice leaves a single
// membership; MERGE carries the idempotency.
func (r *Repository) Like(ctx context.Context, postID, accountID string) error {
	return r.writeLikeEdge(ctx, postID, accountID, `
		MATCH (a:Account {id: $accountID})
		MATCH (p:Post {id: $postID})
		MERGE (a)-[:LIKES]->(p)
		RETURN p.id as id
	`, "like")
}

// Unlike removes the like membership; a redundant unlike is a no-op success
func (r *Repository) Unlike(ctx context.Context, postID, accountID string) error {
	return r.writeLikeEdge(ctx, postID, accountID, `
		MATCH (a:Account {id: $accountID})
		MATCH (p:Post {id: $postID})
		OPTIONAL MATCH (a)-[l:LIKES]->(p)
		DELETE l
		RETURN p.id as id
	`, "unlike")
}

func (r *Repository) writeLikeEdge(ctx context.Context, postID, accountID, cypher, op string) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	result, err := session.Run(ctx, cypher, map[string]interface{}{
		"postID":    postID,
		"accountID": accountID,
	})
	if err != nil {
		return apperrors.NewTransientStore(op, err)
	}

	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return apperrors.NewTransientStore(op, err)
		}
		return r.missingEngagementTarget(ctx, postID, accountID)
	}

	return nil
}

// ListByAuthors returns one newest-first page of posts authored by any of the
// given accounts, as resolved view-models.
func (r *Repository) ListByAuthors(ctx context.Context, authorIDs []string, offset, limit int) ([]*PostView, error) {
	if len(authorIDs) == 0 {
		return []*PostView{}, nil
	}
	return r.listPage(ctx, `
		MATCH (author:Account)-[:POSTED]->(p:Post)
		WHERE author.id IN $authorIDs
	`, map[string]interface{}{"authorIDs": authorIDs}, offset, limit, "list posts by authors")
}

// ListAll returns one newest-first page across every author
func (r *Repository) ListAll(ctx context.Context, offset, limit int) ([]*PostView, error) {
	return r.listPage(ctx, `
		MATCH (author:Account)-[:POSTED]->(p:Post)
	`, map[string]interface{}{}, offset, limit, "list all posts")
}

// ListByAuthor returns an account's own wall, newest first
func (r *Repository) ListByAuthor(ctx context.Context, authorID string, limit int) ([]*PostView, error) {
	if limit < 1 {
		limit = 10
	}
	return r.listPage(ctx, `
		MATCH (author:Account {id: $authorID})-[:POSTED]->(p:Post)
	`, map[string]interface{}{"authorID": authorID}, 0, limit, "list posts by author")
}

func (r *Repository) listPage(ctx context.Context, matchClause string, params map[string]interface{}, offset, limit int, op string) ([]*PostView, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		return []*PostView{}, nil
	}

	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	// Page on (created_at, id) before expanding engagement so the expansion
	// only touches one page of posts
	query := matchClause + `
		WITH p, author
		ORDER BY p.created_at DESC, p.id DESC
		SKIP $offset LIMIT $limit
	` + postViewProjection + `
		ORDER BY created_at DESC, id DESC
	`

	params["offset"] = offset
	params["limit"] = limit

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return nil, apperrors.NewTransientStore(op, err)
	}

	page := []*PostView{}
	for result.Next(ctx) {
		page = append(page, viewFromRecord(result.Record()))
	}
	if err := result.Err(); err != nil {
		return nil, apperrors.NewTransientStore(op, err)
	}

	return page, nil
}

// CountPosts returns the exact post total straight from the store
func (r *Repository) CountPosts(ctx context.Context) (int64, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `MATCH (p:Post) RETURN count(p) as total`, nil)
	if err != nil {
		return 0, apperrors.NewTransientStore("count posts", err)
	}

	record, err := result.Single(ctx)
	if err != nil {
		return 0, apperrors.NewTransientStore("count posts", err)
	}

	if total, ok := record.Get("total"); ok {
		if n, ok := total.(int64); ok {
			return n, nil
		}
	}
	return 0, nil
}

// missingEngagementTarget reports whether the post or the account was absent
func (r *Repository) missingEngagementTarget(ctx context.Context, postID, accountID string) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		OPTIONAL MATCH (p:Post {id: $postID})
		RETURN p.id as post_id
	`, map[string]interface{}{"postID": postID})
	if err != nil {
		return apperrors.NewTransientStore("resolve engagement target", err)
	}

	if result.Next(ctx) && getStringFromRecord(result.Record(), "post_id") == postID {
		return apperrors.NewNotFound("account", accountID)
	}
	return apperrors.NewNotFound("post", postID)
}
