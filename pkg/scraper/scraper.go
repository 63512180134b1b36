package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"smscraper/pkg/dispatch"
	"smscraper/pkg/errors"
	"smscraper/pkg/logger"
	"smscraper/pkg/models"
)

// Session scrapes a list of targets on one platform through the dispatcher
// and persists the normalized records.
type Session struct {
	sender        Sender
	adapter       Adapter
	store         RecordStore
	log           logger.Logger
	proxyRequired bool
}

// Result summarizes the outcome of scraping one target.
type Result struct {
	Target  string
	Fetched int
	Saved   int
	Skipped int
	Err     error
}

// NewSession creates a scrape session. All collaborators are required.
func NewSession(sender Sender, adapter Adapter, store RecordStore, log logger.Logger, proxyRequired bool) (*Session, error) {
	if sender == nil || adapter == nil || store == nil {
		return nil, fmt.Errorf("scraper: sender, adapter and store are required")
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Session{
		sender:        sender,
		adapter:       adapter,
		store:         store,
		log:           log,
		proxyRequired: proxyRequired,
	}, nil
}

// ScrapeTargets scrapes every target in order. A failed target is recorded
// in its Result and never aborts the remaining targets; only context
// cancellation stops the run early.
func (s *Session) ScrapeTargets(ctx context.Context, targets []string) []Result {
	results := make([]Result, 0, len(targets))

	for _, target := range targets {
		result := s.Scrape(ctx, target)
		results = append(results, result)

		if result.Err != nil && errors.Is(result.Err, errors.TypeCancelled) {
			break
		}
		if result.Err != nil {
			s.log.WarnWithFields("target failed, continuing", map[string]interface{}{
				"platform": s.adapter.Platform(),
				"target":   target,
				"error":    result.Err.Error(),
			})
		}
	}

	return results
}

// Scrape fetches one target and persists its posts.
func (s *Session) Scrape(ctx context.Context, target string) Result {
	result := Result{Target: target}
	platform := s.adapter.Platform()

	s.log.InfoWithFields("scraping target", map[string]interface{}{
		"platform": platform,
		"target":   target,
	})

	resp, err := s.sender.Send(ctx, &dispatch.Request{
		URL:           s.adapter.TargetURL(target),
		Destination:   platform,
		ProxyRequired: s.proxyRequired,
	})
	if err != nil {
		result.Err = err
		return result
	}

	posts, err := s.adapter.ParsePosts(resp.Body)
	if err != nil {
		result.Err = fmt.Errorf("parse %s payload: %w", platform, err)
		return result
	}
	result.Fetched = len(posts)

	for _, post := range posts {
		if s.store.IsSaved(platform, post.ID) {
			result.Skipped++
			continue
		}
		saved, err := s.store.SavePost(post)
		if err != nil {
			s.log.WithError(err).WithField("post_id", post.ID).Error("failed to save post")
			continue
		}
		if saved {
			result.Saved++
		} else {
			result.Skipped++
		}
	}

	s.log.InfoWithFields("target complete", map[string]interface{}{
		"platform": platform,
		"target":   target,
		"fetched":  result.Fetched,
		"saved":    result.Saved,
		"skipped":  result.Skipped,
	})
	return result
}

// JSONFeedAdapter consumes endpoints that already serve posts as a JSON
// array in the normalized shape. It stamps the platform and scrape time and
// backfills hashtags and mentions from the post content.
type JSONFeedAdapter struct {
	PlatformName string
	BaseURL      string // target is appended as a path element
}

func (a *JSONFeedAdapter) Platform() string { return strings.ToLower(a.PlatformName) }

func (a *JSONFeedAdapter) TargetURL(target string) string {
	return strings.TrimRight(a.BaseURL, "/") + "/" + target
}

func (a *JSONFeedAdapter) ParsePosts(body []byte) ([]*models.Post, error) {
	var posts []*models.Post
	if err := json.Unmarshal(body, &posts); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for _, post := range posts {
		post.Platform = a.Platform()
		if post.ScrapedAt.IsZero() {
			post.ScrapedAt = now
		}
		if len(post.Hashtags) == 0 {
			post.Hashtags = ExtractHashtags(post.Content)
		}
		if len(post.Mentions) == 0 {
			post.Mentions = ExtractMentions(post.Content)
		}
	}
	return posts, nil
}

var (
	hashtagPattern = regexp.MustCompile(`#(\w+)`)
	mentionPattern = regexp.MustCompile(`@(\w+)`)
)

// ExtractHashtags returns the lowercased hashtags found in text, without the
// leading #.
func ExtractHashtags(text string) []string {
	return extractTags(hashtagPattern, text)
}

// ExtractMentions returns the lowercased mentions found in text, without the
// leading @.
func ExtractMentions(text string) []string {
	return extractTags(mentionPattern, text)
}

func extractTags(pattern *regexp.Regexp, text string) []string {
	matches := pattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(matches))
	tags := make([]string, 0, len(matches))
	for _, m := range matches {
		tag := strings.ToLower(m[1])
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	return tags
}
