// Package luci talks to the LuCI management API of TP-Link Archer routers:
// the RSA/AES login handshake, the encrypted request envelope, and the
// classification of everything the device can answer.
package luci

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"github.com/jgrimard/TPLink-APIClient/internal/clock"
	"github.com/jgrimard/TPLink-APIClient/internal/logging"
	"github.com/jgrimard/TPLink-APIClient/internal/metrics"

	"golang.org/x/net/publicsuffix"
	"golang.org/x/sync/semaphore"
)

const (
	// DefaultUsername is the only account Archer firmware has.
	DefaultUsername = "admin"
	// DefaultTimeout bounds every HTTP round trip.
	DefaultTimeout = 10 * time.Second
	// DefaultUserAgent is what the web UI sends; some firmware checks it.
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/115.0"

	acceptHeader      = "application/json, text/javascript, */*; q=0.01"
	contentTypeHeader = "application/x-www-form-urlencoded; charset=UTF-8"

	// maxReplySize caps a reply body. Client lists are the largest at a few
	// tens of KiB.
	maxReplySize = 4 << 20
)

// Endpoint addresses one LuCI handler as path plus form.
type Endpoint struct {
	Path string
	Form string
}

func (e Endpoint) String() string {
	return e.Path + "?form=" + e.Form
}

var (
	endpointKeys  = Endpoint{Path: "login", Form: "keys"}
	endpointAuth  = Endpoint{Path: "login", Form: "auth"}
	endpointLogin = Endpoint{Path: "login", Form: "login"}

	// EndpointLogout ends the session on the device.
	EndpointLogout = Endpoint{Path: "admin/system", Form: "logout"}
)

// Client holds the transport to one router. It owns at most one Session at
// a time and runs at most one handshake at a time.
type Client struct {
	baseURL    string
	username   string
	userAgent  string
	httpClient *http.Client
	logger     *logging.Logger
	random     io.Reader
	clock      clock.Clock
	metrics    *metrics.Registry

	handshake *semaphore.Weighted

	mu      sync.Mutex
	session *Session
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithUsername overrides the login name used in the password hash.
func WithUsername(name string) ClientOption {
	return func(c *Client) {
		if name != "" {
			c.username = name
		}
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient replaces the HTTP client. The Client works on a copy, and
// still refuses redirects and keeps a cookie jar if hc has none.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc == nil {
			return
		}
		cp := *hc
		if cp.Jar == nil {
			cp.Jar = c.httpClient.Jar
		}
		if cp.Timeout == 0 {
			cp.Timeout = c.httpClient.Timeout
		}
		cp.CheckRedirect = noRedirect
		c.httpClient = &cp
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l.WithComponent("luci")
		}
	}
}

// WithRandom sets the entropy source for session keys and RSA padding.
func WithRandom(r io.Reader) ClientOption {
	return func(c *Client) {
		c.random = r
	}
}

// WithClock sets the clock used for session timestamps and latencies.
func WithClock(clk clock.Clock) ClientOption {
	return func(c *Client) {
		c.clock = clock.Or(clk)
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithMetrics records handshake and call metrics into r.
func WithMetrics(r *metrics.Registry) ClientOption {
	return func(c *Client) {
		c.metrics = r
	}
}

// NewClient creates a Client for the router at host. host may be a bare
// address ("192.168.0.1", "router.lan:8080") or carry an http:// scheme.
func NewClient(host string, opts ...ClientOption) (*Client, error) {
	base, err := normalizeHost(host)
	if err != nil {
		return nil, err
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	c := &Client{
		baseURL:   base,
		username:  DefaultUsername,
		userAgent: DefaultUserAgent,
		httpClient: &http.Client{
			Timeout:       DefaultTimeout,
			Jar:           jar,
			CheckRedirect: noRedirect,
		},
		logger:    logging.Default().WithComponent("luci"),
		clock:     clock.RealClock{},
		handshake: semaphore.NewWeighted(1),
	}

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func normalizeHost(host string) (string, error) {
	host = strings.TrimSpace(host)
	host = strings.TrimRight(host, "/")
	switch {
	case host == "":
		return "", errors.New("luci: router host is empty")
	case strings.HasPrefix(host, "https://"):
		return "", fmt.Errorf("luci: %q: the management API is plain http", host)
	case strings.HasPrefix(host, "http://"):
	default:
		host = "http://" + host
	}
	if strings.ContainsAny(strings.TrimPrefix(host, "http://"), "/?#") {
		return "", fmt.Errorf("luci: %q is not a bare host", host)
	}
	return host, nil
}

// noRedirect surfaces a redirect to the caller. The firmware redirects to the
// login page when a stok is no longer valid.
func noRedirect(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
}

// BaseURL returns the normalized router address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Username returns the login name.
func (c *Client) Username() string {
	return c.username
}

func (c *Client) endpointURL(token string, ep Endpoint) string {
	return c.baseURL + "/cgi-bin/luci/;stok=" + token + "/" + ep.Path + "?form=" + ep.Form
}

// post sends one form body and returns the raw reply. authenticated selects
// how 3xx/401/403 are read: before login they are protocol errors, after
// login they mean the session is gone.
func (c *Client) post(ctx context.Context, token string, ep Endpoint, body string, authenticated bool) ([]byte, error) {
	op := ep.String()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpointURL(token, ep), strings.NewReader(body))
	if err != nil {
		return nil, newError(KindTransport, op, err)
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Content-Type", contentTypeHeader)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, newError(KindTransport, op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReplySize))
	if err != nil {
		return nil, newError(KindTransport, op, fmt.Errorf("failed to read reply: %w", err))
	}
	if err := ClassifyHTTP(resp.StatusCode, authenticated); err != nil {
		return nil, withOp(err, op)
	}
	return data, nil
}

// withOp stamps op onto a classified error that has none.
func withOp(err error, op string) error {
	var e *Error
	if errors.As(err, &e) && e.Op == "" {
		e.Op = op
	}
	return err
}

// Session returns the live session, or nil if none is held.
func (c *Client) Session() *Session {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s == nil || s.Closed() {
		return nil
	}
	return s
}

// Logout ends the held session, if any.
func (c *Client) Logout(ctx context.Context) error {
	s := c.Session()
	if s == nil {
		return nil
	}
	return s.Logout(ctx)
}

// replaceSession installs s and locally closes the one it supersedes. The
// device itself only allows one admin, so the old stok is already dead.
func (c *Client) replaceSession(s *Session) {
	c.mu.Lock()
	old := c.session
	c.session = s
	c.mu.Unlock()

	if old != nil && old != s {
		old.closeLocal()
	}
}

func (c *Client) recordHandshake(err error, d time.Duration) {
	if c.metrics != nil {
		c.metrics.RecordHandshake(outcomeLabel(err), d)
	}
}

func outcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return strings.ReplaceAll(KindOf(err).String(), " ", "_")
}
