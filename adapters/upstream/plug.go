// Package upstream talks to the plug.dj web API on behalf of the relay.
//
// The relay logs in once at startup with its own account and reuses the
// resulting session cookie for every profile lookup. The session is never
// renewed; once plug.dj expires it every lookup fails until restart.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/layer-3/sepha/core"
	"github.com/layer-3/sepha/ports"
)

const (
	DefaultBaseURL = "https://plug.dj"
	DefaultTimeout = 10 * time.Second

	sessionCookie   = "session"
	maxResponseSize = 1 << 20
)

var ErrLoginFailed = errors.New("upstream login failed")

// Config holds what the client needs to log in
type Config struct {
	BaseURL  string
	Email    string
	Password string
	Timeout  time.Duration
}

// envelope is the wrapper plug.dj puts around every response
type envelope[T any] struct {
	Data   []T             `json:"data"`
	Meta   json.RawMessage `json:"meta"`
	Status string          `json:"status"`
}

type initData struct {
	CSRF string `json:"c"`
	F    string `json:"f"`
	S    string `json:"s"`
	T    string `json:"t"`
}

type loginPayload struct {
	CSRF     string `json:"csrf"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type blurbData struct {
	Blurb string `json:"blurb"`
}

// Client is a logged-in plug.dj session. It is safe for concurrent use;
// nothing in it changes after Login returns.
type Client struct {
	baseURL string
	http    *http.Client
	session *http.Cookie
	log     *slog.Logger
}

// Login performs the one-time bootstrap: it fetches a session cookie and a
// CSRF token from the init endpoint, then logs in with the relay account.
func Login(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		log:     logger,
	}

	res, err := c.do(ctx, http.MethodGet, "/_/mobile/init", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: init: %v", ErrLoginFailed, err)
	}
	for _, cookie := range res.Cookies() {
		if cookie.Name == sessionCookie {
			c.session = cookie
		}
	}
	var initEnv envelope[initData]
	err = decode(res, &initEnv)
	if err != nil {
		return nil, fmt.Errorf("%w: init: %v", ErrLoginFailed, err)
	}
	if c.session == nil {
		return nil, fmt.Errorf("%w: no session cookie returned by init", ErrLoginFailed)
	}
	if len(initEnv.Data) == 0 || initEnv.Data[len(initEnv.Data)-1].CSRF == "" {
		return nil, fmt.Errorf("%w: no csrf returned by init", ErrLoginFailed)
	}

	body, err := json.Marshal(loginPayload{
		CSRF:     initEnv.Data[len(initEnv.Data)-1].CSRF,
		Email:    cfg.Email,
		Password: cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}

	res, err = c.do(ctx, http.MethodPost, "/_/auth/login", body)
	if err != nil {
		return nil, fmt.Errorf("%w: login: %v", ErrLoginFailed, err)
	}
	for _, cookie := range res.Cookies() {
		if cookie.Name == sessionCookie {
			c.session = cookie
		}
	}
	var login envelope[json.RawMessage]
	if err := decode(res, &login); err != nil {
		return nil, fmt.Errorf("%w: login: %v", ErrLoginFailed, err)
	}
	if login.Status != "ok" {
		return nil, fmt.Errorf("%w: status %q", ErrLoginFailed, login.Status)
	}

	logger.Info("upstream.login", slog.String("base_url", c.baseURL))
	return c, nil
}

// FetchBlurb returns the current profile blurb of a user
func (c *Client) FetchBlurb(ctx context.Context, userID uint64) (string, error) {
	path := "/_/profile/" + strconv.FormatUint(userID, 10) + "/blurb"

	res, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrUpstream, err)
	}

	var env envelope[blurbData]
	if err := decode(res, &env); err != nil {
		return "", fmt.Errorf("%w: blurb of %d: %v", core.ErrUpstream, userID, err)
	}
	if len(env.Data) == 0 {
		return "", fmt.Errorf("%w: no blurb returned for %d", core.ErrUpstream, userID)
	}

	c.log.DebugContext(ctx, "upstream.blurb",
		slog.Uint64("user_id", userID),
		slog.String("status", env.Status),
	)

	return env.Data[len(env.Data)-1].Blurb, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.session != nil {
		req.AddCookie(&http.Cookie{Name: c.session.Name, Value: c.session.Value})
	}
	return c.http.Do(req)
}

func decode(res *http.Response, v any) error {
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, maxResponseSize))
		return fmt.Errorf("unexpected status %d", res.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(res.Body, maxResponseSize)).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

var _ ports.ProfileFetcher = (*Client)(nil)
