package bluesky

import (
	"context"
	"errors"
	"time"

	"github.com/bluesky-social/indigo/xrpc"
	"github.com/sirupsen/logrus"

	"github.com/kovalyov-valentin/brinet/internal/apperr"
)

// StalenessThreshold is kept below the platform's 24h token lifetime so a
// session is re-created before it can expire mid-run.
const StalenessThreshold = 23 * time.Hour

type Credentials struct {
	Identifier string
	Password   string
}

type SessionState struct {
	Auth            *xrpc.AuthInfo
	LastRefreshedAt time.Time
}

type Authenticator interface {
	Login(ctx context.Context, identifier, password string) (*xrpc.AuthInfo, error)
	Resume(ctx context.Context, auth *xrpc.AuthInfo) (*xrpc.AuthInfo, error)
}

// SessionManager owns one account's session. It is not safe for concurrent
// Prepare calls; each pipeline serializes its own runs.
type SessionManager struct {
	auth      Authenticator
	creds     Credentials
	state     *SessionState
	now       func() time.Time
	onPersist func(SessionState)
	log       *logrus.Entry
}

type SessionOption func(*SessionManager)

func WithClock(now func() time.Time) SessionOption {
	return func(m *SessionManager) { m.now = now }
}

// WithPersistHook is called with the new state after every login or resume.
func WithPersistHook(fn func(SessionState)) SessionOption {
	return func(m *SessionManager) { m.onPersist = fn }
}

func NewSessionManager(auth Authenticator, creds Credentials, log *logrus.Entry, opts ...SessionOption) *SessionManager {
	m := &SessionManager{
		auth:  auth,
		creds: creds,
		now:   time.Now,
		log:   log,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Prepare makes sure a usable session exists: a fresh login when there is
// none or it is older than StalenessThreshold, a resume otherwise.
func (m *SessionManager) Prepare(ctx context.Context) error {
	now := m.now()

	if m.state != nil && now.Sub(m.state.LastRefreshedAt) <= StalenessThreshold {
		auth, err := m.auth.Resume(ctx, m.state.Auth)
		if err != nil {
			return apperr.Publish("session_resume", "", err)
		}
		m.log.WithField("last_refreshed_at", m.state.LastRefreshedAt).Info("resumed bluesky session")
		m.persist(auth, now)
		return nil
	}

	if m.state != nil {
		m.log.Info("detected stale bluesky session, reinitializing")
	}

	if m.creds.Identifier == "" || m.creds.Password == "" {
		return apperr.Config("session_login", errors.New("bluesky identifier and password are required"))
	}

	auth, err := m.auth.Login(ctx, m.creds.Identifier, m.creds.Password)
	if err != nil {
		return apperr.Publish("session_login", "", err)
	}
	m.log.WithField("handle", auth.Handle).Info("initialized new bluesky session")
	m.persist(auth, now)
	return nil
}

// State returns a copy of the current session state.
func (m *SessionManager) State() (SessionState, bool) {
	if m.state == nil {
		return SessionState{}, false
	}
	return *m.state, true
}

func (m *SessionManager) persist(auth *xrpc.AuthInfo, at time.Time) {
	m.state = &SessionState{Auth: auth, LastRefreshedAt: at}
	if m.onPersist != nil {
		m.onPersist(*m.state)
	}
}
