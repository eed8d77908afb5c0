package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"errors"
	"io"
	"net/http"
	neturl "net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fortuna/pythia/internal/logging"
	"github.com/fortuna/pythia/internal/metrics"
)

const (
	// BrowserUserAgent is sent to sources that reject non-browser clients.
	BrowserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	defaultTimeout        = 15 * time.Second
	defaultMaxRetries     = 4
	defaultInitialBackoff = 600 * time.Millisecond
	maxRetryAfter         = 30 * time.Second
	maxBodySnippet        = 200
)

// Client is the shared HTTP layer for every upstream source: one retry policy,
// one error taxonomy, one set of metrics.
type Client struct {
	provider       string
	http           *http.Client
	userAgent      string
	headers        map[string]string
	maxRetries     int
	initialBackoff time.Duration
	limiter        *rate.Limiter
	recorder       *metrics.Recorder
	logger         *zap.SugaredLogger
	secretParams   []string
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

func WithUserAgent(ua string) Option { return func(c *Client) { c.userAgent = ua } }

func WithHeader(key, value string) Option { return func(c *Client) { c.headers[key] = value } }

// WithMaxRetries sets the total attempt count (values < 1 mean a single attempt).
func WithMaxRetries(n int) Option { return func(c *Client) { c.maxRetries = n } }

func WithBackoff(initial time.Duration) Option { return func(c *Client) { c.initialBackoff = initial } }

// WithRateLimit paces requests to every events per interval.
func WithRateLimit(interval time.Duration, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Every(interval), burst) }
}

// WithSecretParams masks the named query parameters in errors and logs.
func WithSecretParams(names ...string) Option {
	return func(c *Client) { c.secretParams = append(c.secretParams, names...) }
}

func WithRecorder(r *metrics.Recorder) Option { return func(c *Client) { c.recorder = r } }

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = logging.OrNop(l).Named("fetch").Sugar() }
}

// New creates a Client labelled provider in logs and metrics.
func New(provider string, opts ...Option) *Client {
	c := &Client{
		provider:       provider,
		http:           &http.Client{Timeout: defaultTimeout},
		userAgent:      BrowserUserAgent,
		headers:        map[string]string{},
		maxRetries:     defaultMaxRetries,
		initialBackoff: defaultInitialBackoff,
		logger:         zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxRetries < 1 {
		c.maxRetries = 1
	}
	return c
}

// Provider returns the label this client reports under.
func (c *Client) Provider() string { return c.provider }

// Response is a successful upstream reply.
type Response struct {
	Body   []byte
	Header http.Header
}

// Get performs a GET with retries and returns the 2xx body.
func (c *Client) Get(ctx context.Context, url, accept string) (*Response, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0.2
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.maxRetries-1)), ctx)

	var resp *Response
	attempt := 0
	op := func() error {
		attempt++
		r, err := c.attempt(ctx, url, accept)
		if err == nil {
			resp = r
			return nil
		}
		if !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		if rl, ok := AsRateLimitError(err); ok && rl.RetryAfter > 0 && rl.RetryAfter <= maxRetryAfter {
			select {
			case <-ctx.Done():
				return backoff.Permanent(ctx.Err())
			case <-time.After(rl.RetryAfter):
			}
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warnf("[%s] ⚠️  attempt %d/%d failed: %v (retrying in %v)", c.provider, attempt, c.maxRetries, err, wait.Round(time.Millisecond))
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) attempt(ctx context.Context, url, accept string) (*Response, error) {
	shown := c.redact(url)
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", c.provider, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		c.recorder.RecordProviderAttempt(c.provider, time.Since(start), err)
		return nil, fmt.Errorf("%s: GET %s: %w", c.provider, shown, c.scrub(err))
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err == nil {
		err = classify(c.provider, shown, res, body)
	}
	c.recorder.RecordProviderAttempt(c.provider, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return &Response{Body: body, Header: res.Header}, nil
}

func (c *Client) redact(raw string) string {
	if len(c.secretParams) == 0 {
		return raw
	}
	u, err := neturl.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	changed := false
	for _, name := range c.secretParams {
		if q.Has(name) {
			q.Set(name, "REDACTED")
			changed = true
		}
	}
	if !changed {
		return raw
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// scrub drops the *url.Error wrapper, which embeds the raw URL, when secrets are configured.
func (c *Client) scrub(err error) error {
	if len(c.secretParams) == 0 {
		return err
	}
	var ue *neturl.Error
	if errors.As(err, &ue) {
		return ue.Err
	}
	return err
}

func classify(provider, url string, res *http.Response, body []byte) error {
	switch {
	case res.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{
			Provider:   provider,
			URL:        url,
			RetryAfter: parseRetryAfter(res.Header.Get("Retry-After")),
			Remaining:  res.Header.Get("X-Requests-Remaining"),
		}
	case res.StatusCode < 200 || res.StatusCode > 299:
		return &StatusError{Provider: provider, URL: url, Code: res.StatusCode, Body: snippet(body)}
	}
	return nil
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxBodySnippet {
		return s[:maxBodySnippet]
	}
	return s
}

func looksLikeHTML(body []byte) bool {
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '<'
}

// GetJSON decodes a JSON response into out and returns the response headers.
func (c *Client) GetJSON(ctx context.Context, url string, out interface{}) (http.Header, error) {
	resp, err := c.Get(ctx, url, "application/json")
	if err != nil {
		return nil, err
	}
	if looksLikeHTML(resp.Body) {
		return resp.Header, fmt.Errorf("%s: %s: %w", c.provider, c.redact(url), ErrHTMLResponse)
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return resp.Header, fmt.Errorf("%s: decoding %s: %w (body: %s)", c.provider, c.redact(url), err, snippet(resp.Body))
	}
	return resp.Header, nil
}

// GetMap decodes a JSON object into a generic map, for sources whose shape drifts.
func (c *Client) GetMap(ctx context.Context, url string) (map[string]interface{}, error) {
	var out map[string]interface{}
	if _, err := c.GetJSON(ctx, url, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetHTML returns a page body as a string.
func (c *Client) GetHTML(ctx context.Context, url string) (string, error) {
	resp, err := c.Get(ctx, url, "text/html,application/xhtml+xml")
	if err != nil {
		return "", err
	}
	return string(resp.Body), nil
}
