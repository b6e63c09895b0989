package luci

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jgrimard/TPLink-APIClient/internal/envelope"
	"github.com/jgrimard/TPLink-APIClient/internal/logging"
)

// Session is an authenticated connection. Calls may run concurrently;
// Logout waits for them and then destroys the key material.
type Session struct {
	client      *Client
	established time.Time

	mu     sync.RWMutex
	codec  *envelope.Codec
	token  string
	closed bool
}

func newSession(c *Client, codec *envelope.Codec, token string, at time.Time) *Session {
	if c.metrics != nil {
		c.metrics.SessionOpened()
	}
	return &Session{client: c, codec: codec, token: token, established: at}
}

// Token returns the stok, or "" once closed.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// State is StateAuthenticated until the session is closed, then StateIdle.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return StateIdle
	}
	return StateAuthenticated
}

// Closed reports whether Logout ran or a newer session replaced this one.
func (s *Session) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// EstablishedAt is when the login was granted.
func (s *Session) EstablishedAt() time.Time {
	return s.established
}

// Age is how long the session has been open.
func (s *Session) Age() time.Duration {
	return s.client.clock.Since(s.established)
}

// Call sends one encrypted request and returns the decrypted reply. A
// success=false reply is returned as a Response; only transport, protocol,
// decryption and session-expiry failures are errors.
func (s *Session) Call(ctx context.Context, ep Endpoint, params envelope.Params) (*Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrSessionClosed
	}

	log := s.client.logger.WithFields(map[string]any{
		"request_id": uuid.NewString(),
		"endpoint":   ep.String(),
	})
	start := s.client.clock.Now()

	resp, err := s.call(ctx, ep, params)

	if m := s.client.metrics; m != nil {
		m.RecordCall(ep.String(), outcomeLabel(err), s.client.clock.Since(start))
	}
	if err != nil {
		log.Warn("call failed", "error", err)
		return nil, err
	}
	log.Debug("call done", "success", resp.Success, "errorcode", resp.ErrorCode)
	return resp, nil
}

// call must hold s.mu for reading.
func (s *Session) call(ctx context.Context, ep Endpoint, params envelope.Params) (*Response, error) {
	op := ep.String()

	env, err := s.codec.EncryptRequest(params)
	if err != nil {
		return nil, newError(KindProtocol, op, err)
	}
	body, err := s.client.post(ctx, s.token, ep, env.Encode(), true)
	if err != nil {
		return nil, err
	}
	plain, err := s.codec.DecryptResponse(body)
	if err != nil {
		if errors.Is(err, envelope.ErrNotEncrypted) {
			return nil, withOp(ClassifyPlain(body), op)
		}
		return nil, withOp(ClassifyCodecError(err), op)
	}
	resp, err := ClassifyReply(plain)
	if err != nil {
		return nil, withOp(err, op)
	}
	return resp, nil
}

// Logout ends the session on the device. The key is zeroized and the token
// cleared whatever the device answers; a second Logout does nothing.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	defer s.zeroLocked()

	op := EndpointLogout.String()
	err := func() error {
		resp, err := s.call(ctx, EndpointLogout, envelope.NewParams("operation", "write"))
		if err != nil {
			return err
		}
		if !resp.Success {
			return &Error{Kind: KindProtocol, Op: op, Code: resp.ErrorCode}
		}
		return nil
	}()

	if m := s.client.metrics; m != nil {
		m.RecordLogout(outcomeLabel(err))
	}
	s.client.logger.Audit("logout", s.client.baseURL, map[string]any{
		"stok": logging.Redact(s.token),
		"ok":   err == nil,
	})
	return err
}

// closeLocal drops the session without telling the device.
func (s *Session) closeLocal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.zeroLocked()
	}
}

// zeroLocked must hold s.mu for writing.
func (s *Session) zeroLocked() {
	s.codec.Zero()
	s.token = ""
	s.closed = true
	if m := s.client.metrics; m != nil {
		m.SessionClosed()
	}
}
