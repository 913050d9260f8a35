package model

import "time"

// Portfolio themes.
var PortfolioThemes = []string{"minimal", "dark", "terminal", "gradient"}

// Portfolio is a user's public showcase page, served at /api/p/{slug}
// once Published is set.
type Portfolio struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	Slug          string    `json:"slug"`
	Headline      string    `json:"headline"`
	Bio           string    `json:"bio"`
	Theme         string    `json:"theme"`
	FeaturedRepos []string  `json:"featuredRepos"` // "owner/name"
	Published     bool      `json:"published"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
