package models

import "time"

// Post is the normalized shape of one scraped post, shared by every
// platform adapter.
type Post struct {
	ID           string    `json:"id"`
	Platform     string    `json:"platform"`
	Author       string    `json:"author"`
	Content      string    `json:"content"`
	Timestamp    time.Time `json:"timestamp,omitempty"`
	Likes        int       `json:"likes"`
	Comments     int       `json:"comments"`
	Shares       int       `json:"shares"`
	Views        int       `json:"views"`
	URL          string    `json:"url,omitempty"`
	MediaURLs    []string  `json:"media_urls,omitempty"`
	Hashtags     []string  `json:"hashtags,omitempty"`
	Mentions     []string  `json:"mentions,omitempty"`
	IsVerified   bool      `json:"is_verified"`
	IsRetweet    bool      `json:"is_retweet"`
	IsReply      bool      `json:"is_reply"`
	ParentPostID string    `json:"parent_post_id,omitempty"`
	ScrapedAt    time.Time `json:"scraped_at"`
}

// Profile is the normalized shape of one scraped account profile.
type Profile struct {
	Platform        string    `json:"platform"`
	Username        string    `json:"username"`
	DisplayName     string    `json:"display_name,omitempty"`
	Bio             string    `json:"bio,omitempty"`
	FollowersCount  int       `json:"followers_count"`
	FollowingCount  int       `json:"following_count"`
	PostsCount      int       `json:"posts_count"`
	Verified        bool      `json:"verified"`
	ProfileImageURL string    `json:"profile_image_url,omitempty"`
	Location        string    `json:"location,omitempty"`
	Website         string    `json:"website,omitempty"`
	ScrapedAt       time.Time `json:"scraped_at"`
}
