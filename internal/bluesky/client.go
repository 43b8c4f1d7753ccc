// Package bluesky publishes threads to Bluesky. Client is the XRPC transport,
// SessionManager keeps its auth fresh and Publisher turns thread posts into
// app.bsky.feed.post records.
package bluesky

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	lexutil "github.com/bluesky-social/indigo/lex/util"
	"github.com/bluesky-social/indigo/xrpc"

	"github.com/kovalyov-valentin/brinet/internal/model"
)

const (
	DefaultService = "https://bsky.social"
	postCollection = "app.bsky.feed.post"
)

// Client wraps an XRPC client bound to one account.
type Client struct {
	xrpc *xrpc.Client
}

func NewClient(service string) *Client {
	if service == "" {
		service = DefaultService
	}
	return &Client{
		xrpc: &xrpc.Client{
			Host:   service,
			Client: &http.Client{Timeout: 30 * time.Second},
		},
	}
}

// Login creates a new session from credentials.
func (c *Client) Login(ctx context.Context, identifier, password string) (*xrpc.AuthInfo, error) {
	out, err := atproto.ServerCreateSession(ctx, c.xrpc, &atproto.ServerCreateSession_Input{
		Identifier: identifier,
		Password:   password,
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	auth := &xrpc.AuthInfo{
		AccessJwt:  out.AccessJwt,
		RefreshJwt: out.RefreshJwt,
		Handle:     out.Handle,
		Did:        out.Did,
	}
	c.xrpc.Auth = auth
	return auth, nil
}

// Resume revalidates a stored session without sending credentials. An
// expired access token is exchanged through the refresh token.
func (c *Client) Resume(ctx context.Context, auth *xrpc.AuthInfo) (*xrpc.AuthInfo, error) {
	if auth == nil {
		return nil, errors.New("no session to resume")
	}

	current := *auth
	c.xrpc.Auth = &current
	if _, err := atproto.ServerGetSession(ctx, c.xrpc); err == nil {
		return &current, nil
	}

	// refreshSession authenticates with the refresh token
	c.xrpc.Auth = &xrpc.AuthInfo{
		AccessJwt:  auth.RefreshJwt,
		RefreshJwt: auth.RefreshJwt,
		Handle:     auth.Handle,
		Did:        auth.Did,
	}
	out, err := atproto.ServerRefreshSession(ctx, c.xrpc)
	if err != nil {
		c.xrpc.Auth = &current
		return nil, fmt.Errorf("refresh session: %w", err)
	}

	refreshed := &xrpc.AuthInfo{
		AccessJwt:  out.AccessJwt,
		RefreshJwt: out.RefreshJwt,
		Handle:     out.Handle,
		Did:        out.Did,
	}
	c.xrpc.Auth = refreshed
	return refreshed, nil
}

func (c *Client) UploadBlob(ctx context.Context, data io.Reader) (*lexutil.LexBlob, error) {
	out, err := atproto.RepoUploadBlob(ctx, c.xrpc, data)
	if err != nil {
		return nil, fmt.Errorf("upload blob: %w", err)
	}
	return out.Blob, nil
}

func (c *Client) CreatePost(ctx context.Context, post *bsky.FeedPost) (model.PostRef, error) {
	if c.xrpc.Auth == nil {
		return model.PostRef{}, errors.New("create post: no session")
	}

	out, err := atproto.RepoCreateRecord(ctx, c.xrpc, &atproto.RepoCreateRecord_Input{
		Collection: postCollection,
		Repo:       c.xrpc.Auth.Did,
		Record:     &lexutil.LexiconTypeDecoder{Val: post},
	})
	if err != nil {
		return model.PostRef{}, fmt.Errorf("create record: %w", err)
	}

	return model.PostRef{URI: out.Uri, CID: out.Cid}, nil
}
