package elan

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Default client settings.
const (
	// DefaultTimeout bounds every HTTP call to the hub.
	DefaultTimeout = 3 * time.Second

	// maxBodySize caps how much of a hub response is read.
	maxBodySize = 4 << 20
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config holds hub connection settings.
type Config struct {
	// BaseURL is the hub address, e.g. "http://192.168.1.10".
	BaseURL string

	Username string
	Password string

	// Timeout bounds each HTTP call. Default: 3 seconds.
	Timeout time.Duration

	// Retry controls the login loop.
	Retry RetryPolicy

	// Logger is optional.
	Logger Logger
}

// Response is a fully read hub response.
type Response struct {
	StatusCode int
	Body       []byte
}

// Client is an authenticated HTTP session with an eLAN hub.
//
// Each Client owns its own cookie jar; a new session means a new Client.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Client struct {
	base    *url.URL
	http    *http.Client
	jar     http.CookieJar
	timeout time.Duration

	username string
	key      string

	retry  RetryPolicy
	logger Logger

	// sleep waits between login attempts; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error

	mu              sync.RWMutex
	authenticatedAt time.Time
	logins          int
}

// NewClient creates an unauthenticated hub session.
func NewClient(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: base URL: %w", ErrInvalidConfig, err)
	}
	if (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("%w: base URL %q must be http(s)", ErrInvalidConfig, cfg.BaseURL)
	}

	key, err := HashPassword(cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var logger Logger = noopLogger{}
	if cfg.Logger != nil {
		logger = cfg.Logger
	}

	return &Client{
		base: base,
		http: &http.Client{
			Jar:     jar,
			Timeout: timeout,
		},
		jar:      jar,
		timeout:  timeout,
		username: cfg.Username,
		key:      key,
		retry:    cfg.Retry.withDefaults(),
		logger:   logger,
		sleep:    sleepCtx,
	}, nil
}

// Do performs a request against the hub.
//
// target is either an absolute URL (device URLs come back absolute from the
// device list) or a path relative to the base URL. A non-nil body is sent as
// JSON. Responses outside 2xx are returned together with a *StatusError.
func (c *Client) Do(ctx context.Context, method, target string, body []byte) (*Response, error) {
	resp, err := c.send(ctx, method, target, body, "application/json")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp, &StatusError{Method: method, URL: target, Code: resp.StatusCode}
	}
	return resp, nil
}

// GetJSON fetches target and decodes the JSON body into v.
func (c *Client) GetJSON(ctx context.Context, target string, v any) error {
	resp, err := c.Do(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return fmt.Errorf("%w: GET %s: %w", ErrMalformedResponse, target, err)
	}
	return nil
}

// send performs one HTTP exchange and reads the body. Only transport
// failures are errors; any status code is returned as-is.
func (c *Client) send(ctx context.Context, method, target string, body []byte, contentType string) (*Response, error) {
	u, err := c.resolve(target)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("elan: building %s %s: %w", method, target, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, method, target, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, c.transportError(ctx, method, target, err)
	}

	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}

func (c *Client) resolve(target string) (string, error) {
	ref, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("elan: invalid target %q: %w", target, err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	return c.base.ResolveReference(ref).String(), nil
}

func (c *Client) transportError(ctx context.Context, method, target string, err error) error {
	if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("elan: %s %s: %w", method, target, ctx.Err())
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %s %s after %v", ErrTimeout, method, target, c.timeout)
	}
	return fmt.Errorf("elan: %s %s: %w", method, target, err)
}

// sleepCtx sleeps for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
