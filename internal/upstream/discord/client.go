// Package discord talks to the Discord username availability endpoint.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://discord.com"
	checkPath      = "/api/v9/users/@me/pomelo-attempt"
	maxBodyBytes   = 1 << 20
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient = &http.Client{Timeout: timeout, Transport: c.httpClient.Transport}
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// CheckUsername asks Discord whether username is taken, authenticating with
// the user's token. Any answer without a boolean "taken" is an error.
func (c *Client) CheckUsername(ctx context.Context, token, username string) (*Result, error) {
	payload, err := json.Marshal(checkRequest{Username: username})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+checkPath, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		//nolint:errcheck
		resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, parseError(resp.StatusCode, body)
	}

	var decoded struct {
		Taken *bool `json:"taken"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if decoded.Taken == nil {
		return nil, fmt.Errorf("%w: missing taken field", ErrMalformedResponse)
	}

	return &Result{Taken: *decoded.Taken, Raw: json.RawMessage(body)}, nil
}
