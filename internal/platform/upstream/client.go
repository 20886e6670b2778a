// Package upstream is the JSON-over-HTTP client shared by the device registry,
// the shift lookup and the device bridge. It classifies failures; retry and
// circuit breaking are left to the resilience stack wrapping each call.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxResponseBytes = 1 << 20

type Client struct {
	service string
	baseURL *url.URL
	http    *http.Client
	token   string
}

type Option func(*Client)

// WithHTTPClient replaces the default client (10s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithBearerToken authenticates every request.
func WithBearerToken(token string) Option {
	return func(cl *Client) {
		cl.token = token
	}
}

func New(service, baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("upstream %s: invalid base url %q", service, baseURL)
	}
	c := &Client{
		service: service,
		baseURL: u,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GetJSON fetches baseURL+path and decodes the body into out.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, http.MethodGet, path, query, nil, out)
}

// Do sends in as a JSON body (when non-nil) and decodes the response into out
// (when non-nil).
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	u := *c.baseURL
	u.Path += path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return &Error{Category: CategoryInternal, Service: c.service, Message: "encode request", Underlying: err}
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return &Error{Category: CategoryInternal, Service: c.service, Message: "build request", Underlying: err}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		category := CategoryOutage
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			category = CategoryTimeout
		}
		return &Error{Category: category, Service: c.service, Message: "request failed", Underlying: err}
	}
	defer resp.Body.Close()

	respBody := io.LimitReader(resp.Body, maxResponseBytes)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, respBody)
		return &Error{
			Category:   categoryFor(resp.StatusCode),
			Service:    c.service,
			StatusCode: resp.StatusCode,
			Message:    resp.Status,
		}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, respBody)
		return nil
	}
	if err := json.NewDecoder(respBody).Decode(out); err != nil {
		return &Error{Category: CategoryBadData, Service: c.service, StatusCode: resp.StatusCode, Message: "decode response", Underlying: err}
	}
	return nil
}
