package feed

import (
	"context"

	"go.uber.org/zap"

	"currents/backend/internal/posts"
	"currents/backend/pkg/logger"
)

const (
	// HomePageSize is the page size of the personalized home feed
	HomePageSize = 3
	// GlobalPageSize is the page size of the discovery feed
	GlobalPageSize = 12
)

// FollowingSource answers "who does this account follow"
type FollowingSource interface {
	ListFollowingIDs(ctx context.Context, accountID string) ([]string, error)
}

// PostSource serves newest-first pages of resolved post view-models
type PostSource interface {
	ListByAuthors(ctx context.Context, authorIDs []string, offset, limit int) ([]*posts.PostView, error)
	ListAll(ctx context.Context, offset, limit int) ([]*posts.PostView, error)
}

// Assembler combines the social graph and the post repository into paginated
// streams. The two reads are independent and unlocked; a follow landing
// between them shows up one request later, which is acceptable staleness.
//
// Offset pagination is not stable under concurrent inserts: a post created
// between two page fetches can shift or duplicate an item across pages. That
// is a documented trade-off of the (page, pageSize) contract, not a bug.
type Assembler struct {
	graph  FollowingSource
	posts  PostSource
	logger *zap.Logger
}

// NewAssembler creates a feed assembler
func NewAssembler(graph FollowingSource, posts PostSource) *Assembler {
	return &Assembler{
		graph:  graph,
		posts:  posts,
		logger: logger.Get(),
	}
}

// HomeFeed returns one page of posts from the accounts accountID follows,
// plus the account's own posts, newest first.
func (a *Assembler) HomeFeed(ctx context.Context, accountID string, page int) ([]*posts.PostView, error) {
	following, err := a.graph.ListFollowingIDs(ctx, accountID)
	if err != nil {
		return nil, err
	}

	// An account always sees its own posts
	authors := append(following, accountID)

	offset := pageOffset(page, HomePageSize)
	views, err := a.posts.ListByAuthors(ctx, authors, offset, HomePageSize)
	if err != nil {
		return nil, err
	}

	a.logger.Debug("Home feed assembled",
		zap.String("account_id", accountID),
		zap.Int("page", page),
		zap.Int("authors", len(authors)),
		zap.Int("posts", len(views)),
	)
	return views, nil
}

// GlobalFeed returns one page of all posts, newest first; used for discovery
func (a *Assembler) GlobalFeed(ctx context.Context, page int) ([]*posts.PostView, error) {
	offset := pageOffset(page, GlobalPageSize)
	return a.posts.ListAll(ctx, offset, GlobalPageSize)
}

// pageOffset clamps page to 1 and converts it to a row offset
func pageOffset(page, pageSize int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * pageSize
}
