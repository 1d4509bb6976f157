package posts

import (
	"time"

	"currents/backend/internal/graph"
)

// Image is the media descriptor handed back by the media collaborator.
// ExternalRef is opaque here; it only travels back out on release.
type Image struct {
	URL         string `json:"url"`
	ExternalRef string `json:"external_ref"`
}

// PostView is the display-ready view-model: the post plus the author summary
// and resolved comment-author summaries. Computed on read, never persisted.
type PostView struct {
	ID        string               `json:"id"`
	Author    graph.AccountSummary `json:"author"`
	Content   string               `json:"content"`
	Image     *Image               `json:"image,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
	Likes     []string             `json:"likes"`
	Comments  []CommentView        `json:"comments"`
}

// CommentView is a comment with its author summary resolved
type CommentView struct {
	ID        string               `json:"id"`
	Author    graph.AccountSummary `json:"author"`
	Text      string               `json:"text"`
	CreatedAt time.Time            `json:"created_at"`
}

// Patch carries the fields of an update; nil fields are left untouched,
// present fields replace unconditionally.
type Patch struct {
	Content *string `json:"content"`
	Image   *Image  `json:"image"`
}
