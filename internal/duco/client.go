// Package duco fetches the three public JSON resources of the Duino-Coin
// pool server that the dashboard is built from.
package duco

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/bardlex/ducomon/pkg/errors"
	"github.com/bardlex/ducomon/pkg/log"
)

// Resource paths relative to the API base URL.
const (
	PathMiners   = "/miners.json"
	PathBalances = "/balances.json"
	PathAPI      = "/api.json"
)

// Doer is the part of *http.Client the endpoint client needs.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// StatusError is returned for any non-2xx response.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%d %s for url: %s", e.StatusCode, http.StatusText(e.StatusCode), e.URL)
}

// Client fetches pool resources over HTTP.
type Client struct {
	baseURL    string
	httpClient Doer
	logger     *log.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the transport.
func WithHTTPClient(doer Doer) ClientOption {
	return func(c *Client) {
		c.httpClient = doer
	}
}

// WithTimeout bounds each request. Zero leaves requests unbounded, relying on
// the context alone.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient = &http.Client{Timeout: timeout}
	}
}

// NewClient creates a client for the pool API rooted at baseURL.
func NewClient(baseURL string, logger *log.Logger, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		logger:     logger.WithComponent("duco_client"),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// FetchAll retrieves the miner directory, the balance table and the pool info,
// in that order. Any failure aborts the whole fetch; callers never see a mix
// of fresh and stale payloads.
func (c *Client) FetchAll(ctx context.Context) (*Payloads, error) {
	start := time.Now()
	defer func() {
		c.logger.LogDuration("fetch_all", time.Since(start))
	}()

	var p Payloads

	if err := c.getJSON(ctx, PathMiners, &p.Miners); err != nil {
		return nil, err
	}
	if err := c.getJSON(ctx, PathBalances, &p.Balances); err != nil {
		return nil, err
	}
	if err := c.getJSON(ctx, PathAPI, &p.Pool); err != nil {
		return nil, err
	}

	return &p, nil
}

func (c *Client) getJSON(ctx context.Context, path string, dest any) error {
	url := c.baseURL + path
	op := "fetch" + strings.ReplaceAll(strings.TrimSuffix(path, ".json"), "/", "_")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, op, "failed to create request").
			WithContext("url", url)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		errType := errors.ErrorTypeNetwork
		var netErr net.Error
		if stderrors.As(err, &netErr) && netErr.Timeout() {
			errType = errors.ErrorTypeTimeout
		}
		return errors.Wrap(err, errType, op, "request failed").
			WithContext("url", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return errors.Wrap(&StatusError{StatusCode: resp.StatusCode, URL: url},
			errors.ErrorTypeHTTP, op, "unexpected status").
			WithContext("url", url).
			WithContext("status", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return errors.Wrap(err, errors.ErrorTypeDecode, op, "failed to decode response").
			WithContext("url", url)
	}

	c.logger.Debug("fetched resource", "url", url, "status", resp.StatusCode)
	return nil
}
