package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"currents/backend/internal/fanout"
	"currents/backend/internal/graph"
	"currents/backend/internal/posts"
	"currents/backend/internal/telemetry"
	apperrors "currents/backend/pkg/errors"
)

// ============================================================================
// FAKES
// ============================================================================

type fakeGraph struct {
	followErr error
	followed  [][2]string
	summaries []graph.AccountSummary
	account   *graph.Account
	err       error
}

func (f *fakeGraph) UpsertAccount(_ context.Context, id, handle, name, imageURL string) (*graph.Account, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &graph.Account{ID: id, Handle: handle, Name: name, ImageURL: imageURL}, nil
}

func (f *fakeGraph) GetAccount(_ context.Context, id string) (*graph.Account, error) {
	if f.account == nil {
		return nil, apperrors.NewNotFound("account", id)
	}
	return f.account, nil
}

func (f *fakeGraph) SearchAccounts(_ context.Context, _ string, _ int) ([]graph.AccountSummary, error) {
	return f.summaries, f.err
}

func (f *fakeGraph) Follow(_ context.Context, followerID, followeeID string) error {
	if f.followErr != nil {
		return f.followErr
	}
	f.followed = append(f.followed, [2]string{followerID, followeeID})
	return nil
}

func (f *fakeGraph) Unfollow(_ context.Context, _, _ string) error {
	return f.followErr
}

func (f *fakeGraph) ListFollowing(_ context.Context, _ string, _ int) ([]graph.AccountSummary, error) {
	return f.summaries, f.err
}

func (f *fakeGraph) SuggestAccounts(_ context.Context, _ string, _ int) ([]graph.AccountSummary, error) {
	return f.summaries, f.err
}

type fakePosts struct {
	post       *posts.PostView
	err        error
	commentBy  string
	deleted    []string
	liked      [][2]string
	unliked    [][2]string
	removed    [][2]string
	lastPatch  posts.Patch
	lastAuthor string
}

func (f *fakePosts) Create(_ context.Context, authorID, content string, image *posts.Image) (*posts.PostView, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.lastAuthor = authorID
	return &posts.PostView{
		ID:      "post-1",
		Author:  graph.AccountSummary{ID: authorID},
		Content: content,
		Image:   image,
	}, nil
}

func (f *fakePosts) Get(_ context.Context, postID string) (*posts.PostView, error) {
	if f.post == nil {
		return nil, apperrors.NewNotFound("post", postID)
	}
	return f.post, f.err
}

func (f *fakePosts) Update(_ context.Context, _ string, patch posts.Patch) (*posts.PostView, error) {
	f.lastPatch = patch
	return f.post, f.err
}

func (f *fakePosts) Delete(_ context.Context, postID string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, postID)
	return nil
}

func (f *fakePosts) Like(_ context.Context, postID, accountID string) error {
	f.liked = append(f.liked, [2]string{postID, accountID})
	return f.err
}

func (f *fakePosts) Unlike(_ context.Context, postID, accountID string) error {
	f.unliked = append(f.unliked, [2]string{postID, accountID})
	return f.err
}

func (f *fakePosts) AddComment(_ context.Context, _, _, _ string) (*posts.PostView, error) {
	return f.post, f.err
}

func (f *fakePosts) RemoveComment(_ context.Context, postID, commentID string) error {
	if f.err != nil {
		return f.err
	}
	f.removed = append(f.removed, [2]string{postID, commentID})
	return nil
}

func (f *fakePosts) CommentAuthorID(_ context.Context, _, commentID string) (string, error) {
	if f.commentBy == "" {
		return "", apperrors.NewNotFound("comment", commentID)
	}
	return f.commentBy, nil
}

func (f *fakePosts) ListByAuthor(_ context.Context, _ string, _ int) ([]*posts.PostView, error) {
	if f.post == nil {
		return []*posts.PostView{}, f.err
	}
	return []*posts.PostView{f.post}, f.err
}

type fakeFeed struct {
	views    []*posts.PostView
	err      error
	lastPage int
	lastKind string
}

func (f *fakeFeed) HomeFeed(_ context.Context, _ string, page int) ([]*posts.PostView, error) {
	f.lastPage = page
	f.lastKind = "home"
	return f.views, f.err
}

func (f *fakeFeed) GlobalFeed(_ context.Context, page int) ([]*posts.PostView, error) {
	f.lastPage = page
	f.lastKind = "global"
	return f.views, f.err
}

type fakeCounter struct {
	count int64
	err   error
}

func (f *fakeCounter) Approximate(_ context.Context) (int64, error) {
	return f.count, f.err
}

type fakeNotifier struct {
	post   *posts.PostView
	origin string
}

func (f *fakeNotifier) PostCreated(post *posts.PostView, originConnID string) {
	f.post = post
	f.origin = originConnID
}

type deps struct {
	graph    *fakeGraph
	posts    *fakePosts
	feed     *fakeFeed
	counter  *fakeCounter
	notifier *fakeNotifier
}

func newTestRouter(t *testing.T) (*gin.Engine, *deps) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	d := &deps{
		graph:    &fakeGraph{},
		posts:    &fakePosts{},
		feed:     &fakeFeed{},
		counter:  &fakeCounter{},
		notifier: &fakeNotifier{},
	}
	metrics := telemetry.NewNopMetrics()
	router := newRouter(&server{
		graph:    d.graph,
		posts:    d.posts,
		feed:     d.feed,
		counter:  d.counter,
		notifier: d.notifier,
		hub:      fanout.NewHub(metrics),
		metrics:  metrics,
		logger:   zap.NewNop(),
	}, "*")
	return router, d
}

func doJSON(router *gin.Engine, method, path, actor string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if actor != "" {
		req.Header.Set(accountIDHeader, actor)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// ============================================================================
// TESTS
// ============================================================================

func TestHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, "GET", "/health", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, "ok", response["status"])
}

func TestAPI_MissingIdentityHeader(t *testing.T) {
	router, d := newTestRouter(t)

	w := doJSON(router, "GET", "/api/feed", "", nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "", d.feed.lastKind, "handler should not run without identity")
}

func TestFollowEndpoint(t *testing.T) {
	router, d := newTestRouter(t)

	w := doJSON(router, "PUT", "/api/accounts/follow", "u", gin.H{"account_id": "v"})

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, d.graph.followed, 1)
	assert.Equal(t, [2]string{"u", "v"}, d.graph.followed[0])
}

func TestFollowEndpoint_ValidationMapsTo400(t *testing.T) {
	router, d := newTestRouter(t)
	d.graph.followErr = apperrors.NewValidation("followee_id", "cannot follow yourself")

	w := doJSON(router, "PUT", "/api/accounts/follow", "u", gin.H{"account_id": "u"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFollowEndpoint_MissingTargetMapsTo404(t *testing.T) {
	router, d := newTestRouter(t)
	d.graph.followErr = apperrors.NewNotFound("account", "ghost")

	w := doJSON(router, "PUT", "/api/accounts/follow", "u", gin.H{"account_id": "ghost"})

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreatePost_NotifiesWithOriginConnection(t *testing.T) {
	router, d := newTestRouter(t)

	var buf bytes.Buffer
	json.NewEncoder(&buf).Encode(gin.H{"content": "hello"})
	req, _ := http.NewRequest("POST", "/api/posts", &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(accountIDHeader, "u")
	req.Header.Set(connectionIDHeader, "conn-9")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, d.notifier.post)
	assert.Equal(t, "u", d.notifier.post.Author.ID)
	assert.Equal(t, "conn-9", d.notifier.origin)
}

func TestCreatePost_EmptyBodyRejected(t *testing.T) {
	router, d := newTestRouter(t)

	w := doJSON(router, "POST", "/api/posts", "u", gin.H{})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, d.notifier.post, "no fan-out on rejected create")
}

func TestUpdatePost_NotOwnerForbidden(t *testing.T) {
	router, d := newTestRouter(t)
	d.posts.post = &posts.PostView{ID: "p1", Author: graph.AccountSummary{ID: "owner"}}

	w := doJSON(router, "PUT", "/api/posts/p1", "intruder", gin.H{"content": "edited"})

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Nil(t, d.posts.lastPatch.Content, "update must not reach the repository")
}

func TestUpdatePost_OwnerSucceeds(t *testing.T) {
	router, d := newTestRouter(t)
	d.posts.post = &posts.PostView{ID: "p1", Author: graph.AccountSummary{ID: "owner"}}

	w := doJSON(router, "PUT", "/api/posts/p1", "owner", gin.H{"content": "edited"})

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, d.posts.lastPatch.Content)
	assert.Equal(t, "edited", *d.posts.lastPatch.Content)
}

func TestDeletePost_NotOwnerForbidden(t *testing.T) {
	router, d := newTestRouter(t)
	d.posts.post = &posts.PostView{ID: "p1", Author: graph.AccountSummary{ID: "owner"}}

	w := doJSON(router, "DELETE", "/api/posts/p1", "intruder", nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, d.posts.deleted)
}

func TestDeletePost_OwnerSucceeds(t *testing.T) {
	router, d := newTestRouter(t)
	d.posts.post = &posts.PostView{ID: "p1", Author: graph.AccountSummary{ID: "owner"}}

	w := doJSON(router, "DELETE", "/api/posts/p1", "owner", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"p1"}, d.posts.deleted)
}

func TestRemoveComment_NotAuthorForbidden(t *testing.T) {
	router, d := newTestRouter(t)
	d.posts.commentBy = "author"

	w := doJSON(router, "DELETE", "/api/posts/p1/comments/c1", "intruder", nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, d.posts.removed)
}

func TestRemoveComment_AuthorSucceeds(t *testing.T) {
	router, d := newTestRouter(t)
	d.posts.commentBy = "author"

	w := doJSON(router, "DELETE", "/api/posts/p1/comments/c1", "author", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, d.posts.removed, 1)
	assert.Equal(t, [2]string{"p1", "c1"}, d.posts.removed[0])
}

func TestHomeFeed_PageQuery(t *testing.T) {
	router, d := newTestRouter(t)

	w := doJSON(router, "GET", "/api/feed?page=3", "u", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, d.feed.lastPage)
	assert.Equal(t, "home", d.feed.lastKind)
}

func TestHomeFeed_BadPageFallsBackToFirst(t *testing.T) {
	router, d := newTestRouter(t)

	w := doJSON(router, "GET", "/api/feed?page=banana", "u", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, d.feed.lastPage)
}

func TestGlobalFeed_ListPostsRoute(t *testing.T) {
	router, d := newTestRouter(t)

	w := doJSON(router, "GET", "/api/posts?page=2", "u", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, d.feed.lastPage)
	assert.Equal(t, "global", d.feed.lastKind)
}

func TestPostCount(t *testing.T) {
	router, d := newTestRouter(t)
	d.counter.count = 42

	w := doJSON(router, "GET", "/api/posts/count", "u", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, float64(42), response["count"])
}

func TestTransientStoreMapsTo503WithRetryable(t *testing.T) {
	router, d := newTestRouter(t)
	d.feed.err = apperrors.NewTransientStore("list posts", assert.AnError)

	w := doJSON(router, "GET", "/api/feed", "u", nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, true, response["retryable"])
}

func TestLikeEndpoint(t *testing.T) {
	router, d := newTestRouter(t)

	w := doJSON(router, "PUT", "/api/posts/p1/like", "u", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, d.posts.liked, 1)
	assert.Equal(t, [2]string{"p1", "u"}, d.posts.liked[0])
}
