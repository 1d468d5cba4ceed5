// Package client talks to the salon booking API. One Client is bound to one
// base origin; controllers receive it at construction.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/salon-booking/pkg/errors"
	"github.com/jwalitptl/salon-booking/pkg/httputil"
	"github.com/jwalitptl/salon-booking/pkg/logger"
	"github.com/jwalitptl/salon-booking/pkg/metrics"
)

const (
	HeaderXRequestID = "X-Request-ID"

	// maxBodyBytes caps how much of a response is read.
	maxBodyBytes = 1 << 20
)

// Client is safe for concurrent use.
type Client struct {
	baseURL *url.URL
	timeout time.Duration
	// session carries the cookie jar and is used for credentialed calls.
	session *http.Client
	// public never sends cookies.
	public *http.Client
	cookie string
	// upstream collects Set-Cookie headers for a visitor-scoped copy.
	upstream *cookieSink
	metrics  *metrics.Metrics
	logger   *logger.Logger
}

type Option func(*Client)

// WithTimeout bounds every request. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithTransport replaces the HTTP transport of both underlying clients.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.session.Transport = rt
		c.public.Transport = rt
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid api base url %q", baseURL)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	c := &Client{
		baseURL: u,
		timeout: 10 * time.Second,
		session: &http.Client{Jar: jar},
		public:  &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = metrics.NewNop()
	}
	if c.logger == nil {
		c.logger = logger.Nop()
	}
	return c, nil
}

// WithCookies returns a copy that forwards header as the Cookie of every
// credentialed request. The web front uses it to act on behalf of a visitor.
// The copy has no cookie jar: cookies the API sets are collected for the
// caller (see SetCookies) and never reach another visitor.
func (c *Client) WithCookies(header string) *Client {
	cp := *c
	cp.cookie = header
	cp.session = &http.Client{Transport: c.session.Transport}
	cp.upstream = &cookieSink{}
	return &cp
}

// SetCookies returns the raw Set-Cookie values the API answered with on
// credentialed calls made through a WithCookies copy.
func (c *Client) SetCookies() []string {
	if c.upstream == nil {
		return nil
	}
	return c.upstream.values()
}

type cookieSink struct {
	mu      sync.Mutex
	headers []string
}

func (s *cookieSink) add(values []string) {
	if len(values) == 0 {
		return
	}
	s.mu.Lock()
	s.headers = append(s.headers, values...)
	s.mu.Unlock()
}

func (s *cookieSink) values() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.headers...)
}

// BaseURL returns the configured origin.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

type response struct {
	status int
	body   []byte
}

func (r response) ok() bool {
	return r.status >= 200 && r.status < 300
}

// message extracts the message field of a JSON error body, or "".
func (r response) message() string {
	var m struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(r.body, &m); err != nil {
		return ""
	}
	return m.Message
}

// do performs one request. Transport failures, timeouts and unreadable bodies
// come back as errors.Transport; any HTTP status is returned as a response.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, payload interface{}, credentials bool) (response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	// path is already escaped by the caller.
	target := c.baseURL.String() + path
	if query != nil {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return response{}, errors.Transport(op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return response{}, errors.Transport(op, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	requestID := httputil.RequestID(ctx)
	if requestID == "" {
		requestID = uuid.New().String()
	}
	req.Header.Set(HeaderXRequestID, requestID)

	httpClient := c.public
	if credentials {
		httpClient = c.session
		if c.cookie != "" {
			req.Header.Set("Cookie", c.cookie)
		}
	}

	start := time.Now()
	resp, err := httpClient.Do(req)
	c.metrics.APILatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.APIRequests.WithLabelValues(op, "transport_error").Inc()
		c.logger.Error(err, "booking api request failed", "operation", op, "request_id", requestID)
		return response{}, errors.Transport(op, err)
	}
	defer resp.Body.Close()

	if credentials && c.upstream != nil {
		c.upstream.add(resp.Header.Values("Set-Cookie"))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		c.metrics.APIRequests.WithLabelValues(op, "transport_error").Inc()
		return response{}, errors.Transport(op, err)
	}

	outcome := "ok"
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		outcome = "server_error"
	}
	c.metrics.APIRequests.WithLabelValues(op, outcome).Inc()
	c.logger.Debug("booking api request", "operation", op, "status", resp.StatusCode, "request_id", requestID)

	return response{status: resp.StatusCode, body: data}, nil
}

// decodeArray decodes body into out when it is a JSON array. It reports
// false, without error, for any other valid JSON value.
func decodeArray(op string, body []byte, out interface{}) (bool, error) {
	trimmed := bytes.TrimSpace(body)
	if !json.Valid(trimmed) {
		return false, errors.Transport(op, fmt.Errorf("response is not valid JSON"))
	}
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return false, nil
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return false, errors.Transport(op, err)
	}
	return true, nil
}
