package luci

import (
	"context"
	"fmt"

	"github.com/jgrimard/TPLink-APIClient/internal/envelope"
	"github.com/jgrimard/TPLink-APIClient/internal/logging"
)

// State is the handshake position of a connection attempt or session.
type State int

const (
	StateIdle State = iota
	StateKeyFetched
	StateCredentialsSent
	StateAuthenticated
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateKeyFetched:
		return "key_fetched"
	case StateCredentialsSent:
		return "credentials_sent"
	case StateAuthenticated:
		return "authenticated"
	case StateRejected:
		return "rejected"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Connect runs the login handshake and returns an authenticated Session.
// It waits while another handshake on c is running; ctx bounds the wait
// and the handshake itself.
//
// With evictExisting, a session conflict is resolved by re-sending the same
// login with confirm=true, which logs the other admin out.
func (c *Client) Connect(ctx context.Context, password string, evictExisting bool) (*Session, error) {
	if err := c.handshake.Acquire(ctx, 1); err != nil {
		return nil, newError(KindTransport, "connect", fmt.Errorf("waiting for handshake: %w", err))
	}
	defer c.handshake.Release(1)
	return c.connect(ctx, password, evictExisting)
}

// TryConnect is Connect without waiting: it fails with
// ErrHandshakeInProgress if another handshake is running.
func (c *Client) TryConnect(ctx context.Context, password string, evictExisting bool) (*Session, error) {
	if !c.handshake.TryAcquire(1) {
		return nil, ErrHandshakeInProgress
	}
	defer c.handshake.Release(1)
	return c.connect(ctx, password, evictExisting)
}

// attempt tracks one handshake for logging.
type attempt struct {
	state State
	log   *logging.Logger
}

func (a *attempt) advance(s State) {
	a.state = s
	a.log.Debug("handshake state", "state", s.String())
}

func (c *Client) connect(ctx context.Context, password string, evict bool) (*Session, error) {
	start := c.clock.Now()
	a := &attempt{state: StateIdle, log: c.logger.WithFields(map[string]any{"host": c.baseURL})}

	sess, err := c.runHandshake(ctx, a, password, evict)
	c.recordHandshake(err, c.clock.Since(start))
	if err != nil {
		a.log.Warn("login failed", "state", a.state.String(), "error", err)
		return nil, err
	}
	return sess, nil
}

func (c *Client) runHandshake(ctx context.Context, a *attempt, password string, evict bool) (*Session, error) {
	kx, err := c.fetchKeyExchange(ctx)
	if err != nil {
		return nil, err
	}
	a.advance(StateKeyFetched)

	key, err := envelope.GenerateSessionKey(c.random)
	if err != nil {
		return nil, newError(KindProtocol, "connect", fmt.Errorf("session key: %w", err))
	}
	codec, err := envelope.NewCodec(kx, key, envelope.PasswordHash(c.username, password), c.random)
	if err != nil {
		key.Zero()
		return nil, newError(KindProtocol, "connect", err)
	}

	a.advance(StateCredentialsSent)
	token, evicted, err := c.login(ctx, codec, password, evict)
	if err != nil {
		codec.Zero()
		a.advance(StateRejected)
		return nil, err
	}
	a.advance(StateAuthenticated)

	sess := newSession(c, codec, token, c.clock.Now())
	c.replaceSession(sess)

	a.log.Audit("login", c.baseURL, map[string]any{
		"stok":    logging.Redact(token),
		"evicted": evicted,
	})
	return sess, nil
}
