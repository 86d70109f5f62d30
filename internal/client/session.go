package client

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"duoboard/internal/localstore"
)

type session struct {
	mu    sync.Mutex
	uid   string
	token string
}

// EnsureIdentity returns this installation's participant uid, minting
// an anonymous identity on first use. The identity is cached for the
// process lifetime and, when a local store is attached, across
// restarts; signing out clears it.
func (c *Client) EnsureIdentity(ctx context.Context) (string, error) {
	c.session.mu.Lock()
	defer c.session.mu.Unlock()

	if c.session.uid != "" {
		return c.session.uid, nil
	}

	if c.flags != nil {
		if id, err := c.flags.Identity(); err == nil && id != nil {
			c.session.uid, c.session.token = id.UID, id.Token
			return c.session.uid, nil
		}
	}

	var out struct {
		UID   string `json:"uid"`
		Token string `json:"token"`
	}
	status, err := c.postJSON(ctx, "/api/auth/anonymous", "", struct{}{}, &out)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuthUnavailable, err)
	}
	if status != http.StatusCreated || out.UID == "" || out.Token == "" {
		return "", fmt.Errorf("%w: identity endpoint returned %d", ErrAuthUnavailable, status)
	}

	c.session.uid, c.session.token = out.UID, out.Token

	if c.flags != nil {
		_ = c.flags.SetIdentity(localstore.Identity{UID: out.UID, Token: out.Token})
	}
	return c.session.uid, nil
}

// SignOut forgets the current identity. The next EnsureIdentity mints
// a fresh anonymous participant.
func (c *Client) SignOut() error {
	c.session.mu.Lock()
	c.session.uid, c.session.token = "", ""
	c.session.mu.Unlock()

	if c.flags != nil {
		if err := c.flags.ClearIdentity(); err != nil {
			return err
		}
		return c.flags.ClearLastRoom()
	}
	return nil
}

// token returns the bearer token, bootstrapping the identity if
// needed.
func (c *Client) token(ctx context.Context) (string, error) {
	if _, err := c.EnsureIdentity(ctx); err != nil {
		return "", err
	}
	c.session.mu.Lock()
	defer c.session.mu.Unlock()
	return c.session.token, nil
}

// forgetIdentity drops a cached identity the server no longer accepts,
// e.g. a token restored from the local store after it expired. The next
// EnsureIdentity mints a fresh anonymous participant.
func (c *Client) forgetIdentity() {
	c.session.mu.Lock()
	c.session.uid, c.session.token = "", ""
	c.session.mu.Unlock()

	if c.flags != nil {
		_ = c.flags.ClearIdentity()
	}
}
