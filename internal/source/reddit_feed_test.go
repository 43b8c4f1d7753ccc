package source

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const worldnewsAtom = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>top scoring links : worldnews</title>
  <id>/r/worldnews/top/.rss?t=day</id>
  <updated>2024-03-02T15:00:00+00:00</updated>
  <entry>
    <id>t3_abc123</id>
    <title>Summit ends with agreement</title>
    <link href="https://www.reddit.com/r/worldnews/comments/abc123/summit_ends/" />
    <updated>2024-03-02T14:50:00+00:00</updated>
    <published>2024-03-02T14:50:00+00:00</published>
  </entry>
  <entry>
    <id>t3_def456</id>
    <title>Second story</title>
    <link href="https://www.reddit.com/r/worldnews/comments/def456/second_story/" />
    <updated>2024-03-02T13:00:00+00:00</updated>
    <published>2024-03-02T13:00:00+00:00</published>
  </entry>
</feed>`

func TestRedditFeedListTopToday(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/r/worldnews/top/.rss", r.URL.Path)
		assert.Equal(t, "day", r.URL.Query().Get("t"))
		assert.Equal(t, "3", r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "application/atom+xml")
		_, _ = io.WriteString(w, worldnewsAtom)
	}))
	defer srv.Close()

	src := NewRedditFeedSource(testGetter(srv.Client()), "", true)
	src.baseURL = srv.URL

	posts, err := src.ListTopToday(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 2)

	assert.Equal(t, "abc123", posts[0].ID)
	assert.Equal(t, "Summit ends with agreement", posts[0].Title)
	assert.Equal(t, "/r/worldnews/comments/abc123/summit_ends/", posts[0].Permalink)
	assert.Empty(t, posts[0].ThumbnailURL)
	assert.Equal(t, "def456", posts[1].ID)
}
