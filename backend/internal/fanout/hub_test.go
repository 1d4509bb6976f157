package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"currents/backend/internal/graph"
	"currents/backend/internal/posts"
	"currents/backend/internal/telemetry"
)

func newTestClient(accountID, connID string, buffer int) *Client {
	return &Client{
		connID:    connID,
		accountID: accountID,
		send:      make(chan []byte, buffer),
	}
}

func newTestHub() *Hub {
	return NewHub(telemetry.NewNopMetrics())
}

func TestHub_PublishTo_TargetsOnlyGivenAccounts(t *testing.T) {
	hub := newTestHub()
	follower := newTestClient("follower", "conn-f", 1)
	stranger := newTestClient("stranger", "conn-s", 1)
	hub.Register(follower)
	hub.Register(stranger)

	delivered := hub.PublishTo([]string{"follower"}, []byte("event"), "")
	assert.Equal(t, 1, delivered)

	select {
	case payload := <-follower.send:
		assert.Equal(t, "event", string(payload))
	default:
		t.Fatal("Expected follower to receive the event")
	}

	select {
	case <-stranger.send:
		t.Fatal("Stranger must not receive the event")
	default:
	}
}

func TestHub_PublishTo_SkipsOriginConnection(t *testing.T) {
	hub := newTestHub()
	// The author follows themselves in another tab: two connections, one of
	// which originated the create call
	origin := newTestClient("acct", "conn-origin", 1)
	other := newTestClient("acct", "conn-other", 1)
	hub.Register(origin)
	hub.Register(other)

	delivered := hub.PublishTo([]string{"acct"}, []byte("event"), "conn-origin")
	assert.Equal(t, 1, delivered)

	select {
	case <-origin.send:
		t.Fatal("Originating connection must not receive its own event")
	default:
	}
	select {
	case <-other.send:
	default:
		t.Fatal("Other connection of the same account must receive the event")
	}
}

func TestHub_PublishTo_DropsSlowClient(t *testing.T) {
	hub := newTestHub()
	slow := newTestClient("acct", "conn-slow", 1)
	hub.Register(slow)

	// Fill the buffer, then publish again: the second event cannot block
	done := make(chan struct{})
	go func() {
		hub.PublishTo([]string{"acct"}, []byte("one"), "")
		hub.PublishTo([]string{"acct"}, []byte("two"), "")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("PublishTo must never block on a slow client")
	}

	assert.Equal(t, 0, hub.ConnectionCount("acct"), "slow client must be dropped from the registry")
}

func TestHub_Unregister_Idempotent(t *testing.T) {
	hub := newTestHub()
	client := newTestClient("acct", "conn-1", 1)
	hub.Register(client)

	hub.Unregister(client)
	// A racing read pump teardown may call this again
	hub.Unregister(client)
	assert.Equal(t, 0, hub.ConnectionCount("acct"))
}

type fakeFollowerSource struct {
	followers map[string][]string
	err       error
}

func (f *fakeFollowerSource) ListFollowerIDs(ctx context.Context, accountID string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.followers[accountID], nil
}

func authoredPost(author string) *posts.PostView {
	return &posts.PostView{
		ID:        "post-1",
		Author:    graph.AccountSummary{ID: author, Handle: author},
		Content:   "hello",
		Likes:     []string{},
		Comments:  []posts.CommentView{},
		CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestNotifier_Publish_ReachesFollowersOnly(t *testing.T) {
	hub := newTestHub()
	follower := newTestClient("follower", "conn-f", 1)
	stranger := newTestClient("stranger", "conn-s", 1)
	hub.Register(follower)
	hub.Register(stranger)

	notifier := NewNotifier(hub, &fakeFollowerSource{
		followers: map[string][]string{"author": {"follower"}},
	})
	notifier.publish(authoredPost("author"), "")

	select {
	case payload := <-follower.send:
		var event Event
		require.NoError(t, json.Unmarshal(payload, &event))
		assert.Equal(t, EventNewPost, event.Type)
		assert.Equal(t, "post-1", event.Post.ID)
		assert.Equal(t, "author", event.Post.Author.ID)
	default:
		t.Fatal("Expected follower to receive the new-post event")
	}

	select {
	case <-stranger.send:
		t.Fatal("Non-follower must not receive the event")
	default:
	}
}

func TestNotifier_Publish_LookupFailureIsSwallowed(t *testing.T) {
	hub := newTestHub()
	follower := newTestClient("follower", "conn-f", 1)
	hub.Register(follower)

	notifier := NewNotifier(hub, &fakeFollowerSource{err: errors.New("graph down")})
	// Must not panic and must not deliver anything
	notifier.publish(authoredPost("author"), "")

	select {
	case <-follower.send:
		t.Fatal("No event expected when the follower lookup fails")
	default:
	}
}
