package elan

import (
	"context"
	"crypto/sha1" //nolint:gosec // the hub's login scheme is SHA-1
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/text/encoding/charmap"
)

// Hub endpoints used during login.
const (
	pathRoot    = "/"
	pathAPI     = "/api"
	pathLogin   = "/login"
	pathDevices = "/api/devices"
)

// RetryPolicy is an exponential backoff for the login loop.
type RetryPolicy struct {
	// Attempts is the total number of login rounds. Default: 5.
	Attempts int

	// InitialDelay is the pause after the first failed round. Default: 1s.
	InitialDelay time.Duration

	// MaxDelay caps the pause. Default: 30s.
	MaxDelay time.Duration

	// Multiplier grows the pause after each round. Default: 2.
	Multiplier float64
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.Attempts <= 0 {
		p.Attempts = 5
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	return p
}

// Delay returns the pause after the given failed round (1-based).
func (p RetryPolicy) Delay(round int) time.Duration {
	d := float64(p.InitialDelay)
	for i := 1; i < round; i++ {
		d *= p.Multiplier
		if d >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	if time.Duration(d) > p.MaxDelay {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// HashPassword returns the login key the hub expects: the password encoded
// as Windows-1250, hashed with SHA-1, in lowercase hex.
func HashPassword(password string) (string, error) {
	encoded, err := charmap.Windows1250.NewEncoder().String(password)
	if err != nil {
		return "", fmt.Errorf("password is not representable in windows-1250: %w", err)
	}
	sum := sha1.Sum([]byte(encoded)) //nolint:gosec // hub protocol
	return hex.EncodeToString(sum[:]), nil
}

// Authenticate (re)establishes the hub session.
//
// The sequence is:
//  1. GET / and GET /api to pick up cookies and check the session
//  2. POST /login with the hashed password whenever the last check failed
//  3. GET /api/devices as the authoritative check
//
// Steps 2 and 3 repeat with exponential backoff up to RetryPolicy.Attempts
// times; exhaustion returns ErrAuthExhausted.
func (c *Client) Authenticate(ctx context.Context) error {
	c.Invalidate()

	if _, err := c.send(ctx, http.MethodGet, pathRoot, nil, ""); err != nil {
		return err
	}
	apiResp, err := c.send(ctx, http.MethodGet, pathAPI, nil, "")
	if err != nil {
		return err
	}
	status := apiResp.StatusCode

	for round := 1; ; round++ {
		if status != http.StatusOK {
			if err := c.login(ctx); err != nil {
				c.logger.Warn("hub login request failed", "round", round, "error", err)
			}
		}

		status = 0
		resp, err := c.send(ctx, http.MethodGet, pathDevices, nil, "")
		switch {
		case err != nil:
			c.logger.Warn("hub session check failed", "round", round, "error", err)
		case resp.StatusCode == http.StatusOK:
			c.markAuthenticated()
			c.logger.Info("hub session authenticated", "url", c.base.String(), "rounds", round)
			return nil
		default:
			status = resp.StatusCode
			c.logger.Warn("hub rejected session", "round", round, "status", status)
		}

		if round >= c.retry.Attempts {
			return fmt.Errorf("%w: %d attempts against %s", ErrAuthExhausted, round, c.base.String())
		}
		if err := c.sleep(ctx, c.retry.Delay(round)); err != nil {
			return fmt.Errorf("elan: authentication interrupted: %w", err)
		}
	}
}

// login posts the credentials form. The hub answers with a session cookie;
// its status code is not meaningful, the following session check decides.
func (c *Client) login(ctx context.Context) error {
	form := url.Values{
		"name": {c.username},
		"key":  {c.key},
	}

	c.mu.Lock()
	c.logins++
	c.mu.Unlock()

	_, err := c.send(ctx, http.MethodPost, pathLogin, []byte(form.Encode()), "application/x-www-form-urlencoded")
	return err
}

func (c *Client) markAuthenticated() {
	c.mu.Lock()
	c.authenticatedAt = time.Now()
	c.mu.Unlock()
}

// Invalidate forgets the current session so the next renewal check fails.
func (c *Client) Invalidate() {
	c.mu.Lock()
	c.authenticatedAt = time.Time{}
	c.mu.Unlock()
}

// AuthenticatedAt returns when the session was last confirmed; zero when
// not authenticated.
func (c *Client) AuthenticatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authenticatedAt
}

// NeedsRenewal reports whether the session is missing or older than interval.
func (c *Client) NeedsRenewal(interval time.Duration) bool {
	at := c.AuthenticatedAt()
	return at.IsZero() || time.Since(at) >= interval
}

// LoginCount returns how many login forms were posted by this client.
func (c *Client) LoginCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logins
}
