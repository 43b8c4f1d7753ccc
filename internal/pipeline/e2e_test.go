package pipeline

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kovalyov-valentin/brinet/internal/model"
	"github.com/kovalyov-valentin/brinet/internal/source"
)

func fastGetter(c *http.Client) *source.HTTPGetter {
	return source.NewHTTPGetter(c, "brinet-test", source.RetryConfig{BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})
}

func TestBillPipelineEndToEnd(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/bill":
			_, _ = io.WriteString(w, `{"bills":[
				{"congress":118,"number":"1234","type":"HR","title":"Clean Water Act","updateDate":"2024-03-02","url":"`+srv.URL+`/bill/118/hr/1234?format=json"},
				{"congress":118,"number":"77","type":"HR","title":"Yesterday Act","updateDate":"2024-03-01","url":"`+srv.URL+`/bill/118/hr/77?format=json"}
			]}`)
		case "/bill/118/hr/1234":
			_, _ = io.WriteString(w, `{"bill":{"congress":118,"number":"1234","type":"HR","originChamber":"House",
				"title":"Clean Water Act","introducedDate":"2024-01-15","updateDate":"2024-03-02",
				"sponsors":[{"fullName":"Rep. Doe, Jane [D-CA-12]"},{"fullName":"Rep. Roe, Rick [R-TX-3]"}],
				"summaries":{"count":2,"url":"`+srv.URL+`/bill/118/hr/1234/summaries?format=json"}}}`)
		case "/bill/118/hr/1234/summaries":
			_, _ = io.WriteString(w, `{"summaries":[
				{"lastSummaryUpdateDate":"2024-01-16T12:00:00Z","text":"<p>Earlier text.</p>"},
				{"lastSummaryUpdateDate":"2024-03-02T08:00:00Z","text":"<p><strong>Clean Water Act</strong></p><p>Funds water systems.</p>"}
			]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	pub := &fakePublisher{}
	deps := testDeps(t, pub, &fakeSession{})
	src := source.NewCongressSource("key", false, fastGetter(srv.Client()), discardLog(), source.WithCongressBaseURL(srv.URL))

	report, err := NewBillPipeline(deps, src, nil, DefaultSponsorBudget).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Fetched)
	assert.Equal(t, 1, report.Published)
	assert.Empty(t, report.Failures)

	require.Len(t, pub.posts, 3)
	assert.True(t, strings.HasPrefix(pub.posts[0].Text, "Clean Water Act\n\nFirst Introduced: 2024-01-15\nLast Updated: 2024-03-02"))
	assert.Equal(t, "https://www.congress.gov/bill/118th-congress/house-bill/1234", pub.posts[0].Link)
	assert.Nil(t, pub.posts[0].ReplyTo)
	assert.Equal(t, "Clean Water Act Funds water systems.", pub.posts[1].Text)
	assert.Equal(t, "Sponsors of this Bill:\nRep. Doe, Jane [D-CA-12]\nRep. Roe, Rick [R-TX-3]\n", pub.posts[2].Text)
	assert.Equal(t, "cid-1", pub.posts[1].ReplyTo.Root.CID)
	assert.Equal(t, "cid-2", pub.posts[2].ReplyTo.Parent.CID)

	posted, err := deps.Store.IsPosted(context.Background(), model.SourceCongress, "118-1234")
	require.NoError(t, err)
	assert.True(t, posted)
	posted, err = deps.Store.IsPosted(context.Background(), model.SourceCongress, "118-77")
	require.NoError(t, err)
	assert.False(t, posted)
}

func TestNewsPipelineEndToEndWithoutImage(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, `<html><body><p>Text only.</p></body></html>`)
	}))
	defer page.Close()

	post := model.NewsPost{
		ID:           "abc123",
		Title:        "Summit ends with agreement",
		Permalink:    "/r/worldnews/comments/abc123/summit_ends/",
		URL:          page.URL + "/story",
		CreatedAt:    time.Date(2024, 3, 2, 14, 50, 0, 0, time.UTC).Unix(),
		ThumbnailURL: page.URL + "/thumb",
	}

	pub := &fakePublisher{}
	deps := testDeps(t, pub, &fakeSession{})
	images := source.NewImageResolver(fastGetter(page.Client()), discardLog())

	report, err := NewNewsPipeline(deps, &fakeNewsSource{posts: []model.NewsPost{post, post}}, images).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Published)
	assert.Equal(t, 1, report.Skipped)

	require.Len(t, pub.posts, 2)
	assert.Nil(t, pub.posts[0].Image)
	assert.Equal(t, "Posted on Mar 2, 2024 9:50 AM ET\n\nSummit ends with agreement", pub.posts[0].Text)
	assert.Equal(t, "Link to post:", pub.posts[1].Text)
	assert.Equal(t, "https://reddit.com/r/worldnews/comments/abc123/summit_ends/", pub.posts[1].Link)
	require.NotNil(t, pub.posts[1].ReplyTo)
	assert.Equal(t, pub.posts[1].ReplyTo.Root, pub.posts[1].ReplyTo.Parent)

	posted, err := deps.Store.IsPosted(context.Background(), model.SourceWorldNews, "abc123")
	require.NoError(t, err)
	assert.True(t, posted)
}
