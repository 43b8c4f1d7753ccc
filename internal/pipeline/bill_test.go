package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kovalyov-valentin/brinet/internal/apperr"
	"github.com/kovalyov-valentin/brinet/internal/model"
)

func TestBillPipelineDuplicateKeysInBatch(t *testing.T) {
	pub := &fakePublisher{}
	deps := testDeps(t, pub, &fakeSession{})
	src := &fakeBillSource{bills: []model.Bill{testBill("1234"), testBill("1234")}}

	report, err := NewBillPipeline(deps, src, nil, DefaultSponsorBudget).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Fetched)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Published)
	assert.Len(t, pub.posts, 3)

	records, err := deps.Store.(interface {
		Latest(ctx context.Context, source string, limit int) ([]model.PublishedRecord, error)
	}).Latest(context.Background(), model.SourceCongress, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "118-1234", records[0].NaturalKey)
	assert.Equal(t, "at://did:plc:test/app.bsky.feed.post/1", records[0].RootURI)
}

func TestBillPipelineSkipsPublished(t *testing.T) {
	pub := &fakePublisher{}
	session := &fakeSession{}
	deps := testDeps(t, pub, session)
	p := NewBillPipeline(deps, &fakeBillSource{bills: []model.Bill{testBill("1")}}, nil, 0)

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, pub.posts, 3)

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 0, report.Published)
	assert.Len(t, pub.posts, 3)
	assert.Equal(t, 1, session.prepared, "nothing to publish, no session needed")
}

func TestBillPipelinePartialThreadIsNotRecorded(t *testing.T) {
	// the summary reply of the first bill fails
	pub := &fakePublisher{failAt: map[int]error{2: apperr.Publish("create_post", "", errors.New("upstream 502"))}}
	deps := testDeps(t, pub, &fakeSession{})
	src := &fakeBillSource{bills: []model.Bill{testBill("1"), testBill("2")}}

	report, err := NewBillPipeline(deps, src, nil, 0).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Published)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "118-1", report.Failures[0].Key)
	assert.Equal(t, apperr.KindPublish, report.Failures[0].Kind)

	posted, err := deps.Store.IsPosted(context.Background(), model.SourceCongress, "118-1")
	require.NoError(t, err)
	assert.False(t, posted)

	posted, err = deps.Store.IsPosted(context.Background(), model.SourceCongress, "118-2")
	require.NoError(t, err)
	assert.True(t, posted)
}

func TestBillPipelineItemErrorsAndListingFailure(t *testing.T) {
	t.Run("item errors are reported, the rest publishes", func(t *testing.T) {
		pub := &fakePublisher{}
		src := &fakeBillSource{
			bills: []model.Bill{testBill("1")},
			err: errors.Join(
				apperr.Fetch("detail", "118-7", errors.New("timeout")),
				apperr.ScrapeBlocked("scrape", "118-8", errors.New("challenge")),
			),
		}
		report, err := NewBillPipeline(testDeps(t, pub, &fakeSession{}), src, nil, 0).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, report.Published)
		require.Len(t, report.Failures, 2)
		assert.Equal(t, apperr.KindFetch, report.Failures[0].Kind)
		assert.Equal(t, apperr.KindScrapeBlocked, report.Failures[1].Kind)
	})

	t.Run("listing failure ends the run", func(t *testing.T) {
		pub := &fakePublisher{}
		src := &fakeBillSource{err: apperr.Fetch("list", "", errors.New("503"))}
		_, err := NewBillPipeline(testDeps(t, pub, &fakeSession{}), src, nil, 0).Run(context.Background())
		assert.ErrorIs(t, err, apperr.ErrFetch)
		assert.Empty(t, pub.posts)
	})

	t.Run("session failure ends the run", func(t *testing.T) {
		pub := &fakePublisher{}
		session := &fakeSession{err: apperr.Publish("session_login", "", errors.New("bad password"))}
		src := &fakeBillSource{bills: []model.Bill{testBill("1")}}
		_, err := NewBillPipeline(testDeps(t, pub, session), src, nil, 0).Run(context.Background())
		assert.ErrorIs(t, err, apperr.ErrPublish)
		assert.Empty(t, pub.posts)
	})
}

type upperSummarizer struct{ err error }

func (s upperSummarizer) Summarize(_ context.Context, text string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "Short: " + text, nil
}

func TestBillPipelineSummarizer(t *testing.T) {
	for name, tt := range map[string]struct {
		summarizer Summarizer
		want       string
	}{
		"condensed":       {upperSummarizer{}, "Short: This bill funds water systems."},
		"failure is raw":  {upperSummarizer{err: errors.New("quota")}, "This bill funds water systems."},
		"none configured": {nil, "This bill funds water systems."},
	} {
		t.Run(name, func(t *testing.T) {
			pub := &fakePublisher{}
			src := &fakeBillSource{bills: []model.Bill{testBill("1")}}
			_, err := NewBillPipeline(testDeps(t, pub, &fakeSession{}), src, tt.summarizer, 0).Run(context.Background())
			require.NoError(t, err)
			require.Len(t, pub.posts, 3)
			assert.Equal(t, tt.want, pub.posts[1].Text)
		})
	}
}
