package fanout

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"currents/backend/internal/posts"
	"currents/backend/pkg/logger"
)

// EventNewPost is the only event kind on the real-time channel
const EventNewPost = "new-post"

const publishTimeout = 5 * time.Second

// Event is the wire payload pushed to live connections
type Event struct {
	Type string          `json:"type"`
	Post *posts.PostView `json:"post"`
}

// FollowerSource answers "who follows this account"
type FollowerSource interface {
	ListFollowerIDs(ctx context.Context, accountID string) ([]string, error)
}

// Notifier publishes new-post events to the author's followers' live
// connections. Delivery is fire-and-forget: nothing here ever blocks or
// fails the create call that triggered it, and a disconnected recipient
// permanently misses the event.
type Notifier struct {
	hub    *Hub
	graph  FollowerSource
	logger *zap.Logger
}

// NewNotifier creates a notifier over the given hub and follower source
func NewNotifier(hub *Hub, graph FollowerSource) *Notifier {
	return &Notifier{
		hub:    hub,
		graph:  graph,
		logger: logger.Get(),
	}
}

// PostCreated fans the created post out to the author's followers, skipping
// the connection that originated the create call. Runs asynchronously; the
// caller returns immediately.
func (n *Notifier) PostCreated(post *posts.PostView, originConnID string) {
	go n.publish(post, originConnID)
}

func (n *Notifier) publish(post *posts.PostView, originConnID string) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	followers, err := n.graph.ListFollowerIDs(ctx, post.Author.ID)
	if err != nil {
		// Best-effort: a failed follower lookup drops the event, never the post
		n.logger.Warn("Fan-out follower lookup failed",
			zap.String("post_id", post.ID),
			zap.String("author_id", post.Author.ID),
			zap.Error(err),
		)
		return
	}
	if len(followers) == 0 {
		return
	}

	payload, err := json.Marshal(Event{Type: EventNewPost, Post: post})
	if err != nil {
		n.logger.Warn("Fan-out payload encoding failed",
			zap.String("post_id", post.ID),
			zap.Error(err),
		)
		return
	}

	delivered := n.hub.PublishTo(followers, payload, originConnID)
	n.logger.Debug("New post fanned out",
		zap.String("post_id", post.ID),
		zap.Int("followers", len(followers)),
		zap.Int("delivered", delivered),
	)
}
