package scraper

import (
	"context"

	"smscraper/pkg/dispatch"
	"smscraper/pkg/models"
)

// Sender dispatches one outbound request. It is satisfied by
// *dispatch.Dispatcher.
type Sender interface {
	Send(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error)
}

// Adapter maps one platform's payloads into normalized records.
type Adapter interface {
	// Platform is the destination key the adapter scrapes, e.g. "twitter".
	Platform() string
	// TargetURL builds the URL to fetch for a scrape target.
	TargetURL(target string) string
	// ParsePosts maps a fetched payload to normalized posts.
	ParsePosts(body []byte) ([]*models.Post, error)
}

// RecordStore persists normalized records. It is satisfied by
// *storage.Manager.
type RecordStore interface {
	IsSaved(platform, id string) bool
	SavePost(post *models.Post) (bool, error)
}
