package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kovalyov-valentin/brinet/internal/model"
)

type fakeLister struct {
	records []model.PublishedRecord
	err     error

	source string
	limit  int
}

func (f *fakeLister) Latest(_ context.Context, source string, limit int) ([]model.PublishedRecord, error) {
	f.source, f.limit = source, limit
	if f.err != nil {
		return nil, f.err
	}
	return f.records[:min(limit, len(f.records))], nil
}

func TestViewCmdHistory(t *testing.T) {
	tg, api := newFakeTelegram(t)
	lister := &fakeLister{records: []model.PublishedRecord{{
		Source:      model.SourceCongress,
		NaturalKey:  "118-1234",
		Permalink:   "https://www.congress.gov/bill/118th-congress/house-bill/1234",
		PublishedAt: time.Date(2024, 3, 2, 15, 4, 0, 0, time.UTC),
	}}}

	err := ViewCmdHistory(lister)(context.Background(), api, command("/history congress 3", 42))
	require.NoError(t, err)
	assert.Equal(t, model.SourceCongress, lister.source)
	assert.Equal(t, 3, lister.limit)

	msgs := tg.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "MarkdownV2", msgs[0]["parse_mode"])
	assert.Equal(t,
		"*Latest from congress* \\(1\\):\n\n`118-1234` 2024\\-03\\-02 15:04 UTC\nhttps://www\\.congress\\.gov/bill/118th\\-congress/house\\-bill/1234",
		msgs[0]["text"],
	)
}

func TestViewCmdHistoryCapsLimit(t *testing.T) {
	_, api := newFakeTelegram(t)
	lister := &fakeLister{}

	require.NoError(t, ViewCmdHistory(lister)(context.Background(), api, command("/history worldnews 500", 42)))
	assert.Equal(t, maxHistory, lister.limit)
}

func TestViewCmdHistoryUsage(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"no source", "/history", "Usage: /history <congress|worldnews> [n]"},
		{"unknown source", "/history hackernews", "Usage: /history <congress|worldnews> [n]"},
		{"bad count", "/history congress many", `argument 2 must be a positive number, got "many"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tg, api := newFakeTelegram(t)
			lister := &fakeLister{}

			require.NoError(t, ViewCmdHistory(lister)(context.Background(), api, command(tt.text, 42)))
			msgs := tg.messages()
			require.Len(t, msgs, 1)
			assert.Equal(t, tt.want, msgs[0]["text"])
			assert.Empty(t, lister.source)
		})
	}
}

func TestViewCmdHistoryStorageError(t *testing.T) {
	_, api := newFakeTelegram(t)
	err := ViewCmdHistory(&fakeLister{err: errors.New("db closed")})(context.Background(), api, command("/history congress", 42))
	assert.EqualError(t, err, "db closed")
}
