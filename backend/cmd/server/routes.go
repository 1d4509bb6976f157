package main

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"currents/backend/internal/fanout"
	"currents/backend/internal/graph"
	"currents/backend/internal/posts"
	"currents/backend/internal/telemetry"
	apperrors "currents/backend/pkg/errors"
)

const (
	// accountIDHeader carries the acting account, placed by the identity
	// collaborator in front of this service.
	accountIDHeader = "X-Account-Id"
	// connectionIDHeader names the websocket connection that originated a
	// request, so fan-out can skip echoing back to it.
	connectionIDHeader = "X-Connection-Id"

	ctxAccountID = "account_id"

	defaultSearchLimit = 20
	ownWallLimit       = 100
)

// ============================================================================
// SERVICE INTERFACES
// ============================================================================

type graphService interface {
	UpsertAccount(ctx context.Context, id, handle, name, imageURL string) (*graph.Account, error)
	GetAccount(ctx context.Context, id string) (*graph.Account, error)
	SearchAccounts(ctx context.Context, query string, limit int) ([]graph.AccountSummary, error)
	Follow(ctx context.Context, followerID, followeeID string) error
	Unfollow(ctx context.Context, followerID, followeeID string) error
	ListFollowing(ctx context.Context, accountID string, limit int) ([]graph.AccountSummary, error)
	SuggestAccounts(ctx context.Context, accountID string, limit int) ([]graph.AccountSummary, error)
}

type postService interface {
	Create(ctx context.Context, authorID, content string, image *posts.Image) (*posts.PostView, error)
	Get(ctx context.Context, postID string) (*posts.PostView, error)
	Update(ctx context.Context, postID string, patch posts.Patch) (*posts.PostView, error)
	Delete(ctx context.Context, postID string) error
	Like(ctx context.Context, postID, accountID string) error
	Unlike(ctx context.Context, postID, accountID string) error
	AddComment(ctx context.Context, postID, authorID, text string) (*posts.PostView, error)
	RemoveComment(ctx context.Context, postID, commentID string) error
	CommentAuthorID(ctx context.Context, postID, commentID string) (string, error)
	ListByAuthor(ctx context.Context, authorID string, limit int) ([]*posts.PostView, error)
}

type feedService interface {
	HomeFeed(ctx context.Context, accountID string, page int) ([]*posts.PostView, error)
	GlobalFeed(ctx context.Context, page int) ([]*posts.PostView, error)
}

type counterService interface {
	Approximate(ctx context.Context) (int64, error)
}

type postNotifier interface {
	PostCreated(post *posts.PostView, originConnID string)
}

type server struct {
	graph    graphService
	posts    postService
	feed     feedService
	counter  counterService
	notifier postNotifier
	hub      *fanout.Hub
	metrics  *telemetry.Metrics
	logger   *zap.Logger
}

// ============================================================================
// ROUTER
// ============================================================================

func newRouter(s *server, clientOrigin string) *gin.Engine {
	router := gin.New()
	router.Use(ginLogger(s.logger))
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(clientOrigin))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/ws", s.requireAccount, s.handleAttach)

	api := router.Group("/api")
	api.Use(s.requireAccount)
	{
		accounts := api.Group("/accounts")
		{
			accounts.PUT("", s.handleUpsertAccount)
			accounts.GET("/search", s.handleSearchAccounts)
			accounts.GET("/suggested", s.handleSuggestAccounts)
			accounts.GET("/following", s.handleListFollowing)
			accounts.PUT("/follow", s.handleFollow)
			accounts.PUT("/unfollow", s.handleUnfollow)
			accounts.GET("/:id", s.handleGetAccount)
		}

		postRoutes := api.Group("/posts")
		{
			postRoutes.POST("", s.handleCreatePost)
			postRoutes.GET("", s.handleGlobalFeed)
			postRoutes.GET("/count", s.handlePostCount)
			postRoutes.GET("/:id", s.handleGetPost)
			postRoutes.PUT("/:id", s.handleUpdatePost)
			postRoutes.DELETE("/:id", s.handleDeletePost)
			postRoutes.PUT("/:id/like", s.handleLike)
			postRoutes.PUT("/:id/unlike", s.handleUnlike)
			postRoutes.PUT("/:id/comments", s.handleAddComment)
			postRoutes.DELETE("/:id/comments/:commentId", s.handleRemoveComment)
		}

		api.GET("/feed", s.handleHomeFeed)
		api.GET("/me/posts", s.handleOwnPosts)
	}

	return router
}

// requireAccount binds the acting account from the identity header. There is
// no ambient user; every handler reads the actor from the request context.
func (s *server) requireAccount(c *gin.Context) {
	accountID := c.GetHeader(accountIDHeader)
	if accountID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing " + accountIDHeader + " header"})
		return
	}
	c.Set(ctxAccountID, accountID)
	c.Next()
}

func corsMiddleware(clientOrigin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", clientOrigin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Account-Id, X-Connection-Id")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// ============================================================================
// ERROR MAPPING
// ============================================================================

// respondError maps the domain error vocabulary onto HTTP once, here.
func (s *server) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case apperrors.IsType(err, apperrors.ErrorTypeValidation):
		status = http.StatusBadRequest
	case apperrors.IsType(err, apperrors.ErrorTypeUnauthorized):
		status = http.StatusForbidden
	case apperrors.IsType(err, apperrors.ErrorTypeNotFound):
		status = http.StatusNotFound
	case apperrors.IsType(err, apperrors.ErrorTypeConflict),
		apperrors.IsType(err, apperrors.ErrorTypePartialGraphUpdate):
		status = http.StatusConflict
	case apperrors.IsType(err, apperrors.ErrorTypeTransientStore):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}

	resp := gin.H{"error": err.Error()}
	if apperrors.IsRetryable(err) {
		resp["retryable"] = true
	}
	c.JSON(status, resp)
}

// ============================================================================
// ACCOUNT HANDLERS
// ============================================================================

func (s *server) handleUpsertAccount(c *gin.Context) {
	var req struct {
		Handle   string `json:"handle" binding:"required"`
		Name     string `json:"name" binding:"required"`
		ImageURL string `json:"image_url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	account, err := s.graph.UpsertAccount(c.Request.Context(), c.GetString(ctxAccountID), req.Handle, req.Name, req.ImageURL)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

func (s *server) handleGetAccount(c *gin.Context) {
	account, err := s.graph.GetAccount(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

func (s *server) handleSearchAccounts(c *gin.Context) {
	limit := intQuery(c, "limit", defaultSearchLimit)
	results, err := s.graph.SearchAccounts(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": results})
}

func (s *server) handleSuggestAccounts(c *gin.Context) {
	results, err := s.graph.SuggestAccounts(c.Request.Context(), c.GetString(ctxAccountID), 0)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": results})
}

func (s *server) handleListFollowing(c *gin.Context) {
	results, err := s.graph.ListFollowing(c.Request.Context(), c.GetString(ctxAccountID), 0)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": results})
}

func (s *server) handleFollow(c *gin.Context) {
	var req struct {
		AccountID string `json:"account_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.graph.Follow(c.Request.Context(), c.GetString(ctxAccountID), req.AccountID); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "following"})
}

func (s *server) handleUnfollow(c *gin.Context) {
	var req struct {
		AccountID string `json:"account_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.graph.Unfollow(c.Request.Context(), c.GetString(ctxAccountID), req.AccountID); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "not_following"})
}

// ============================================================================
// POST HANDLERS
// ============================================================================

func (s *server) handleCreatePost(c *gin.Context) {
	var req struct {
		Content string `json:"content" binding:"required"`
		Image   *struct {
			URL         string `json:"url" binding:"required"`
			ExternalRef string `json:"external_ref"`
		} `json:"image"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var image *posts.Image
	if req.Image != nil {
		image = &posts.Image{URL: req.Image.URL, ExternalRef: req.Image.ExternalRef}
	}

	post, err := s.posts.Create(c.Request.Context(), c.GetString(ctxAccountID), req.Content, image)
	if err != nil {
		s.respondError(c, err)
		return
	}

	s.metrics.PostsCreated.Inc()
	s.notifier.PostCreated(post, c.GetHeader(connectionIDHeader))

	c.JSON(http.StatusCreated, post)
}

func (s *server) handleGetPost(c *gin.Context) {
	post, err := s.posts.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

func (s *server) handleUpdatePost(c *gin.Context) {
	postID := c.Param("id")
	if !s.requirePostOwner(c, postID) {
		return
	}

	var req struct {
		Content *string `json:"content"`
		Image   *struct {
			URL         string `json:"url" binding:"required"`
			ExternalRef string `json:"external_ref"`
		} `json:"image"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	patch := posts.Patch{Content: req.Content}
	if req.Image != nil {
		patch.Image = &posts.Image{URL: req.Image.URL, ExternalRef: req.Image.ExternalRef}
	}

	post, err := s.posts.Update(c.Request.Context(), postID, patch)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

func (s *server) handleDeletePost(c *gin.Context) {
	postID := c.Param("id")
	if !s.requirePostOwner(c, postID) {
		return
	}

	if err := s.posts.Delete(c.Request.Context(), postID); err != nil {
		s.respondError(c, err)
		return
	}

	s.metrics.PostsDeleted.Inc()
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (s *server) handleLike(c *gin.Context) {
	if err := s.posts.Like(c.Request.Context(), c.Param("id"), c.GetString(ctxAccountID)); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "liked"})
}

func (s *server) handleUnlike(c *gin.Context) {
	if err := s.posts.Unlike(c.Request.Context(), c.Param("id"), c.GetString(ctxAccountID)); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "unliked"})
}

func (s *server) handleAddComment(c *gin.Context) {
	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	post, err := s.posts.AddComment(c.Request.Context(), c.Param("id"), c.GetString(ctxAccountID), req.Text)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

func (s *server) handleRemoveComment(c *gin.Context) {
	postID := c.Param("id")
	commentID := c.Param("commentId")
	actor := c.GetString(ctxAccountID)

	authorID, err := s.posts.CommentAuthorID(c.Request.Context(), postID, commentID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if authorID != actor {
		s.respondError(c, apperrors.NewUnauthorized(actor, "comment"))
		return
	}

	if err := s.posts.RemoveComment(c.Request.Context(), postID, commentID); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}

func (s *server) handlePostCount(c *gin.Context) {
	count, err := s.counter.Approximate(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

// requirePostOwner gates mutations on the acting account owning the post.
// The repository mutations themselves stay unchecked.
func (s *server) requirePostOwner(c *gin.Context, postID string) bool {
	actor := c.GetString(ctxAccountID)

	post, err := s.posts.Get(c.Request.Context(), postID)
	if err != nil {
		s.respondError(c, err)
		return false
	}
	if post.Author.ID != actor {
		s.respondError(c, apperrors.NewUnauthorized(actor, "post"))
		return false
	}
	return true
}

// ============================================================================
// FEED HANDLERS
// ============================================================================

func (s *server) handleHomeFeed(c *gin.Context) {
	page := intQuery(c, "page", 1)

	views, err := s.feed.HomeFeed(c.Request.Context(), c.GetString(ctxAccountID), page)
	if err != nil {
		s.respondError(c, err)
		return
	}

	s.metrics.FeedRequests.WithLabelValues("home").Inc()
	c.JSON(http.StatusOK, gin.H{"page": page, "posts": views})
}

func (s *server) handleGlobalFeed(c *gin.Context) {
	page := intQuery(c, "page", 1)

	views, err := s.feed.GlobalFeed(c.Request.Context(), page)
	if err != nil {
		s.respondError(c, err)
		return
	}

	s.metrics.FeedRequests.WithLabelValues("global").Inc()
	c.JSON(http.StatusOK, gin.H{"page": page, "posts": views})
}

func (s *server) handleOwnPosts(c *gin.Context) {
	views, err := s.posts.ListByAuthor(c.Request.Context(), c.GetString(ctxAccountID), ownWallLimit)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": views})
}

// ============================================================================
// WEBSOCKET
// ============================================================================

func (s *server) handleAttach(c *gin.Context) {
	accountID := c.GetString(ctxAccountID)

	connID, err := fanout.ServeWS(s.hub, c, accountID)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed",
			zap.String("account_id", accountID),
			zap.Error(err),
		)
		return
	}

	s.logger.Info("Websocket attached",
		zap.String("account_id", accountID),
		zap.String("conn_id", connID),
	)
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
