package pipeline

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/kovalyov-valentin/brinet/internal/metrics"
	"github.com/kovalyov-valentin/brinet/internal/model"
	"github.com/kovalyov-valentin/brinet/internal/storage"
)

type fakePublisher struct {
	mu     sync.Mutex
	posts  []model.ThreadPost
	failAt map[int]error // 1-based call index
}

func (f *fakePublisher) Publish(_ context.Context, post model.ThreadPost) (model.PostRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	call := len(f.posts) + 1
	if err := f.failAt[call]; err != nil {
		f.posts = append(f.posts, model.ThreadPost{Text: "<failed>"})
		return model.PostRef{}, err
	}
	f.posts = append(f.posts, post)
	return model.PostRef{URI: fmt.Sprintf("at://did:plc:test/app.bsky.feed.post/%d", call), CID: fmt.Sprintf("cid-%d", call)}, nil
}

type fakeSession struct {
	prepared int
	err      error
}

func (f *fakeSession) Prepare(context.Context) error {
	f.prepared++
	return f.err
}

type fakeBillSource struct {
	bills []model.Bill
	err   error
}

func (f *fakeBillSource) ListUpdatedToday(context.Context, time.Time) ([]model.Bill, error) {
	return f.bills, f.err
}

type fakeNewsSource struct {
	posts []model.NewsPost
	err   error
}

func (f *fakeNewsSource) ListTopToday(context.Context) ([]model.NewsPost, error) {
	return f.posts, f.err
}

func discardLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func testStore(t *testing.T) *storage.PostedStorage {
	t.Helper()

	db, err := storage.Open(context.Background(), storage.DriverSQLite, filepath.Join(t.TempDir(), "brinet.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return storage.NewPostedStorage(db)
}

func testDeps(t *testing.T, pub Publisher, session Session) Deps {
	t.Helper()

	return Deps{
		Store:     testStore(t),
		Publisher: pub,
		Session:   session,
		Pacer:     NewPacer(0, 1),
		Metrics:   metrics.NewPipeline(prometheus.NewRegistry()),
		Log:       discardLog(),
		Now:       func() time.Time { return time.Date(2024, 3, 2, 15, 0, 0, 0, time.UTC) },
	}
}

func testBill(number string) model.Bill {
	return model.Bill{
		Number:         number,
		Congress:       118,
		Type:           "HR",
		OriginChamber:  model.ChamberHouse,
		Title:          "Clean Water Act",
		IntroducedDate: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		UpdateDate:     time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
		Sponsors:       []model.Sponsor{{FullName: "Rep. Doe, Jane [D-CA-12]"}},
		SummaryText:    "This bill funds water systems.",
	}
}
