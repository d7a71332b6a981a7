// Package client calls the rbld API over its Unix socket. Results come back
// as the pkg/api types.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"

	"github.com/lc/rbl/internal/dnsbl"
	"github.com/lc/rbl/internal/socket"
	"github.com/lc/rbl/pkg/api"
)

// Error is a non-2xx reply from the daemon.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("rbld: %s (HTTP %d)", e.Message, e.StatusCode)
}

// Client holds an http.Client wired to a Unix socket.
type Client struct {
	hc   *http.Client
	base string
}

// New returns a Client for the daemon listening on socketPath.
func New(socketPath string) *Client {
	dial := func(ctx context.Context, _, _ string) (net.Conn, error) {
		return socket.Dial(ctx, socketPath)
	}
	tr := &http.Transport{DialContext: dial}
	return &Client{hc: &http.Client{Transport: tr}, base: "http://unix"}
}

// Lookup checks addr against the daemon's lists. A nil earlyExit keeps the
// daemon default.
func (c *Client) Lookup(ctx context.Context, addr string, earlyExit *bool) (api.LookupResponse, error) {
	var out api.LookupResponse
	err := c.do(ctx, http.MethodPost, "/v1/lookup", api.LookupRequest{Address: addr, EarlyExit: earlyExit}, &out)
	return out, err
}

// Status returns the daemon status.
func (c *Client) Status(ctx context.Context) (api.StatusResponse, error) {
	var out api.StatusResponse
	err := c.do(ctx, http.MethodGet, "/v1/status", nil, &out)
	return out, err
}

// Lists returns the checks the daemon is configured with.
func (c *Client) Lists(ctx context.Context) ([]dnsbl.Check, error) {
	var out []dnsbl.Check
	err := c.do(ctx, http.MethodGet, "/v1/lists", nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, payload, v any) error {
	var body *bytes.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(buf)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e api.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&e) != nil || e.Error == "" {
			e.Error = resp.Status
		}
		return &Error{StatusCode: resp.StatusCode, Message: e.Error}
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
