package source

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/SlyMarbo/rss"
	"github.com/samber/lo"

	"github.com/kovalyov-valentin/brinet/internal/apperr"
	"github.com/kovalyov-valentin/brinet/internal/model"
)

const redditFeedBase = "https://www.reddit.com"

// RedditFeedSource reads the same listing from the public Atom feed. It
// needs no credentials but gets no thumbnails.
type RedditFeedSource struct {
	http      *HTTPGetter
	baseURL   string
	subreddit string
	limit     int
}

func NewRedditFeedSource(getter *HTTPGetter, subreddit string, dev bool) *RedditFeedSource {
	return &RedditFeedSource{
		http:      getter,
		baseURL:   redditFeedBase,
		subreddit: lo.Ternary(subreddit != "", subreddit, model.SourceWorldNews),
		limit:     lo.Ternary(dev, redditListLimitDev, redditListLimit),
	}
}

func (s *RedditFeedSource) ListTopToday(ctx context.Context) ([]model.NewsPost, error) {
	q := url.Values{}
	q.Set("t", "day")
	q.Set("limit", strconv.Itoa(s.limit))
	feedURL := fmt.Sprintf("%s/r/%s/top/.rss?%s", s.baseURL, s.subreddit, q.Encode())

	resp, err := s.http.Get(ctx, feedURL, "application/atom+xml", 0)
	if err != nil {
		return nil, apperr.Fetch("list", "", err)
	}

	feed, err := rss.Parse(resp.Body)
	if err != nil {
		return nil, apperr.Fetch("list", "", fmt.Errorf("parse feed: %w", err))
	}

	posts := lo.FilterMap(feed.Items, func(item *rss.Item, _ int) (model.NewsPost, bool) {
		post, ok := feedItemToPost(item)
		return post, ok
	})
	if len(posts) > s.limit {
		posts = posts[:s.limit]
	}
	return posts, nil
}

func feedItemToPost(item *rss.Item) (model.NewsPost, bool) {
	id := strings.TrimPrefix(item.ID, "t3_")
	if id == "" {
		return model.NewsPost{}, false
	}

	link, err := url.Parse(item.Link)
	if err != nil || link.Path == "" {
		return model.NewsPost{}, false
	}

	return model.NewsPost{
		ID:        id,
		Title:     item.Title,
		Permalink: link.Path,
		URL:       item.Link,
		CreatedAt: item.Date.Unix(),
	}, true
}
