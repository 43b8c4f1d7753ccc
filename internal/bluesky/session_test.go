package bluesky

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/bluesky-social/indigo/xrpc"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kovalyov-valentin/brinet/internal/apperr"
)

type fakeAuth struct {
	logins    int
	resumes   int
	loginErr  error
	resumeErr error
}

func (f *fakeAuth) Login(_ context.Context, identifier, _ string) (*xrpc.AuthInfo, error) {
	f.logins++
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &xrpc.AuthInfo{AccessJwt: "access", RefreshJwt: "refresh", Handle: identifier, Did: "did:plc:abc"}, nil
}

func (f *fakeAuth) Resume(_ context.Context, auth *xrpc.AuthInfo) (*xrpc.AuthInfo, error) {
	f.resumes++
	if f.resumeErr != nil {
		return nil, f.resumeErr
	}
	return auth, nil
}

func discardLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestSessionManagerPrepare(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)
	now := start

	auth := &fakeAuth{}
	var persisted []SessionState
	m := NewSessionManager(auth, Credentials{Identifier: "bills.test", Password: "pw"}, discardLog(),
		WithClock(func() time.Time { return now }),
		WithPersistHook(func(s SessionState) { persisted = append(persisted, s) }),
	)

	_, ok := m.State()
	assert.False(t, ok)

	// no session yet
	require.NoError(t, m.Prepare(ctx))
	assert.Equal(t, 1, auth.logins)
	assert.Equal(t, 0, auth.resumes)

	// fresh session is resumed
	now = start.Add(time.Hour)
	require.NoError(t, m.Prepare(ctx))
	assert.Equal(t, 1, auth.logins)
	assert.Equal(t, 1, auth.resumes)

	// exactly at the threshold still counts as fresh
	now = now.Add(StalenessThreshold)
	require.NoError(t, m.Prepare(ctx))
	assert.Equal(t, 1, auth.logins)
	assert.Equal(t, 2, auth.resumes)

	// past the threshold a new login happens
	now = now.Add(StalenessThreshold + time.Second)
	require.NoError(t, m.Prepare(ctx))
	assert.Equal(t, 2, auth.logins)

	require.Len(t, persisted, 4)
	state, ok := m.State()
	require.True(t, ok)
	assert.Equal(t, now, state.LastRefreshedAt)
	assert.Equal(t, "did:plc:abc", state.Auth.Did)
}

func TestSessionManagerFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("login failure is a publish error", func(t *testing.T) {
		m := NewSessionManager(&fakeAuth{loginErr: errors.New("bad credentials")},
			Credentials{Identifier: "bills.test", Password: "pw"}, discardLog())
		err := m.Prepare(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, apperr.ErrPublish)
		_, ok := m.State()
		assert.False(t, ok)
	})

	t.Run("missing credentials", func(t *testing.T) {
		auth := &fakeAuth{}
		m := NewSessionManager(auth, Credentials{Identifier: "bills.test"}, discardLog())
		err := m.Prepare(ctx)
		assert.ErrorIs(t, err, apperr.ErrConfig)
		assert.Equal(t, 0, auth.logins)
	})

	t.Run("resume failure", func(t *testing.T) {
		auth := &fakeAuth{}
		m := NewSessionManager(auth, Credentials{Identifier: "bills.test", Password: "pw"}, discardLog())
		require.NoError(t, m.Prepare(ctx))

		auth.resumeErr = errors.New("network down")
		err := m.Prepare(ctx)
		assert.ErrorIs(t, err, apperr.ErrPublish)
	})
}
