// Package sepha is a client for the sepha plug.dj authentication relay.
//
// A relying application calls Init with the user's plug.dj id, asks the user
// to set their profile blurb to the returned public token, then calls
// Authenticate with the secret. The resulting token can be checked with Verify
// for one hour.
package sepha

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultBasePath = "auth"
	DefaultTimeout  = 15 * time.Second
)

// Challenge is returned by Init
type Challenge struct {
	PublicToken string `json:"public_token"`
	Secret      string `json:"secret"`
}

type authenticateResponse struct {
	Valid string  `json:"valid"`
	Token *string `json:"token"`
}

type verifyResponse struct {
	Verify bool `json:"verify"`
}

// Client talks to a sepha relay over HTTP
type Client struct {
	baseURL  string
	basePath string
	http     *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithBasePath sets the path the relay's auth routes are mounted on
func WithBasePath(path string) Option {
	return func(c *Client) { c.basePath = strings.Trim(path, "/") }
}

// NewClient creates a client for the relay at baseURL
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		basePath: DefaultBasePath,
		http:     &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Init requests a new challenge for userID
func (c *Client) Init(ctx context.Context, userID uint64) (*Challenge, error) {
	res, err := c.do(ctx, http.MethodGet, "/init/"+strconv.FormatUint(userID, 10), nil)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, statusError(res)
	}

	var challenge Challenge
	if err := json.NewDecoder(res.Body).Decode(&challenge); err != nil {
		return nil, fmt.Errorf("failed to decode challenge: %w", err)
	}
	return &challenge, nil
}

// Authenticate exchanges secret for an authentication token. A refusal is
// returned as an error wrapping ErrRejected with the relay's reason.
func (c *Client) Authenticate(ctx context.Context, secret string) (string, error) {
	res, err := c.do(ctx, http.MethodPost, "/authenticate", map[string]string{"secret": secret})
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
	case http.StatusBadGateway:
		return "", ErrUpstream
	default:
		return "", statusError(res)
	}

	var body authenticateResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode authenticate response: %w", err)
	}
	if body.Token == nil {
		return "", fmt.Errorf("%w: %s", ErrRejected, body.Valid)
	}
	return *body.Token, nil
}

// Verify reports whether token is a valid authentication token
func (c *Client) Verify(ctx context.Context, token string) (bool, error) {
	res, err := c.do(ctx, http.MethodPost, "/verify", map[string]string{"token": token})
	if err != nil {
		return false, err
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK, http.StatusForbidden:
	default:
		return false, statusError(res)
	}

	var body verifyResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("failed to decode verify response: %w", err)
	}
	return body.Verify, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}

	url := c.baseURL + "/" + c.basePath + path
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return res, nil
}

func statusError(res *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(res.Body, 512))
	return fmt.Errorf("%w: %d %s", ErrUnexpectedStatus, res.StatusCode, strings.TrimSpace(string(b)))
}

var _ Relay = (*Client)(nil)
