package graph

import "time"

// Account represents an account node with its aggregate graph counts.
// Credentials live with the identity collaborator; only the display
// summary is mirrored here.
type Account struct {
	ID             string    `json:"id"`
	Handle         string    `json:"handle"`
	Name           string    `json:"name"`
	ImageURL       string    `json:"image_url,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	FollowingCount int64     `json:"following_count"`
	FollowerCount  int64     `json:"follower_count"`
}

// AccountSummary is the display summary joined into view-models
type AccountSummary struct {
	ID       string `json:"id"`
	Handle   string `json:"handle"`
	Name     string `json:"name"`
	ImageURL string `json:"image_url,omitempty"`
}
