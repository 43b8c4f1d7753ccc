package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/loganintech/go-reddit/v2/reddit"
	"github.com/samber/lo"

	"github.com/kovalyov-valentin/brinet/internal/apperr"
	"github.com/kovalyov-valentin/brinet/internal/model"
)

const (
	redditListLimit    = 10
	redditListLimitDev = 3

	redditWebBase = "https://reddit.com"
)

type RedditCredentials struct {
	ID       string
	Secret   string
	Username string
	Password string
}

// RedditSource lists the top posts of a subreddit over the last day through
// the authenticated API.
type RedditSource struct {
	creds      RedditCredentials
	userAgent  string
	subreddit  string
	limit      int
	baseURL    string
	tokenURL   string
	httpClient *http.Client
}

type RedditOption func(*RedditSource)

// WithRedditEndpoints points the client at a different API and token
// endpoint.
func WithRedditEndpoints(baseURL, tokenURL string) RedditOption {
	return func(s *RedditSource) {
		s.baseURL = baseURL
		s.tokenURL = tokenURL
	}
}

func WithRedditHTTPClient(c *http.Client) RedditOption {
	return func(s *RedditSource) { s.httpClient = c }
}

func NewRedditSource(creds RedditCredentials, userAgent, subreddit string, dev bool, opts ...RedditOption) *RedditSource {
	s := &RedditSource{
		creds:     creds,
		userAgent: userAgent,
		subreddit: lo.Ternary(subreddit != "", subreddit, model.SourceWorldNews),
		limit:     lo.Ternary(dev, redditListLimitDev, redditListLimit),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type redditListing struct {
	Data struct {
		Children []redditChild `json:"children"`
	} `json:"data"`
}

type redditChild struct {
	Data redditPost `json:"data"`
}

type redditPost struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Permalink  string  `json:"permalink"`
	URL        string  `json:"url"`
	CreatedUTC float64 `json:"created_utc"`
	Thumbnail  string  `json:"thumbnail"`
}

// ListTopToday fetches the top posts of the day. A new client is built on
// every call so the password grant always yields a fresh token.
func (s *RedditSource) ListTopToday(ctx context.Context) ([]model.NewsPost, error) {
	client, err := s.newClient()
	if err != nil {
		return nil, apperr.Fetch("list", "", err)
	}

	q := url.Values{}
	q.Set("t", "day")
	q.Set("limit", strconv.Itoa(s.limit))
	req, err := client.NewRequest(http.MethodGet, fmt.Sprintf("r/%s/top?%s", s.subreddit, q.Encode()), nil)
	if err != nil {
		return nil, apperr.Fetch("list", "", err)
	}

	var listing redditListing
	if _, err := client.Do(ctx, req, &listing); err != nil {
		return nil, apperr.Fetch("list", "", err)
	}

	return lo.Map(listing.Data.Children, func(child redditChild, _ int) model.NewsPost {
		return child.Data.toModel()
	}), nil
}

func (s *RedditSource) newClient() (*reddit.Client, error) {
	opts := []reddit.Opt{reddit.WithUserAgent(s.userAgent)}
	if s.baseURL != "" {
		opts = append(opts, reddit.WithBaseURL(s.baseURL))
	}
	if s.tokenURL != "" {
		opts = append(opts, reddit.WithTokenURL(s.tokenURL))
	}
	if s.httpClient != nil {
		opts = append(opts, reddit.WithHTTPClient(s.httpClient))
	}

	return reddit.NewClient(reddit.Credentials{
		ID:       s.creds.ID,
		Secret:   s.creds.Secret,
		Username: s.creds.Username,
		Password: s.creds.Password,
	}, opts...)
}

func (p redditPost) toModel() model.NewsPost {
	return model.NewsPost{
		ID:           p.ID,
		Title:        p.Title,
		Permalink:    p.Permalink,
		URL:          p.URL,
		CreatedAt:    int64(p.CreatedUTC),
		ThumbnailURL: usableThumbnail(p.Thumbnail),
	}
}

// Listings use placeholder words like "self" or "default" for posts
// without a thumbnail.
func usableThumbnail(s string) string {
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return s
	}
	return ""
}

// PermalinkURL is the public address of a post.
func PermalinkURL(permalink string) string {
	return redditWebBase + permalink
}
