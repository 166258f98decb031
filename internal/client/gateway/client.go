// Package gateway calls the skip-loss lookup service. Every failure degrades
// to an empty result.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/GregMSThompson/skiploss-console/pkg/logger"
)

const (
	PathSkipLossVehicles     = "/api/get_skip_loss_vehicles"
	PathRepossessionAgents   = "/api/find_repossession_agent"
	DefaultMaxAttempts       = 3
	initialBackoff           = time.Second
	backoffMultiplier        = 2
	DefaultTimeout           = 30 * time.Second
	maxErrorBodyLogBytes     = 512
	defaultConnectTimeout    = 10 * time.Second
	defaultIdleConnTimeout   = 90 * time.Second
	defaultTLSHandshakeLimit = 10 * time.Second
)

type Client struct {
	baseURL     string
	http        *http.Client
	maxAttempts int
	timer       backoff.Timer
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

func WithMaxAttempts(n int) Option {
	return func(cl *Client) {
		if n > 0 {
			cl.maxAttempts = n
		}
	}
}

// WithTimer replaces the timer that paces retries, mainly for tests.
func WithTimer(t backoff.Timer) Option {
	return func(cl *Client) { cl.timer = t }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:     baseURL,
		http:        NewHTTPClient(DefaultTimeout),
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewHTTPClient returns an HTTP client whose timeout bounds a single attempt.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   defaultConnectTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     defaultIdleConnTimeout,
			TLSHandshakeTimeout: defaultTLSHandshakeLimit,
		},
	}
}

// retryPolicy waits 1s, 2s, 4s, ... between attempts and gives up after
// maxAttempts or when ctx ends.
func retryPolicy(ctx context.Context, maxAttempts int) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initialBackoff
	b.Multiplier = backoffMultiplier
	b.RandomizationFactor = 0
	b.MaxInterval = time.Minute
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxAttempts-1)), ctx)
}

// Call GETs path with the non-empty params and returns the records of the
// JSON array body. It never returns an error; failures yield an empty slice.
func (c *Client) Call(ctx context.Context, path string, params map[string]string) []json.RawMessage {
	log := logger.FromContext(ctx).With("path", path)
	target := c.buildURL(path, params)

	var (
		records []json.RawMessage
		attempt int
	)
	operation := func() error {
		attempt++
		body, err := c.get(ctx, target)
		if err != nil {
			return err
		}
		records = decodeRecords(log, body)
		return nil
	}
	notify := func(err error, wait time.Duration) {
		log.Warn("gateway attempt failed", "attempt", attempt, "retry_in", wait, "error", err)
	}

	if err := backoff.RetryNotifyWithTimer(operation, retryPolicy(ctx, c.maxAttempts), notify, c.timer); err != nil {
		log.Error("gateway call failed after retries", "attempts", attempt, "error", err)
		return []json.RawMessage{}
	}
	return records
}

// GetSkipLossVehicles returns the vehicle records undecoded. The error is
// always nil; the gateway fails open.
func (c *Client) GetSkipLossVehicles(ctx context.Context, country, region string) ([]json.RawMessage, error) {
	return c.Call(ctx, PathSkipLossVehicles, locationParams(country, region)), nil
}

func (c *Client) FindRepossessionAgents(ctx context.Context, country, region string) ([]json.RawMessage, error) {
	return c.Call(ctx, PathRepossessionAgents, locationParams(country, region)), nil
}

func (c *Client) buildURL(path string, params map[string]string) string {
	q := url.Values{}
	for k, v := range params {
		if v != "" {
			q.Set(k, v)
		}
	}
	target := c.baseURL + path
	if encoded := q.Encode(); encoded != "" {
		target += "?" + encoded
	}
	return target
}

func (c *Client) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, truncate(body, maxErrorBodyLogBytes))
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("invalid JSON body")
	}
	return body, nil
}

// decodeRecords accepts a JSON array. An object carrying an "error" field is
// an application failure and is not retried.
func decodeRecords(log *slog.Logger, body []byte) []json.RawMessage {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var envelope struct {
			Error json.RawMessage `json:"error"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err == nil && hasValue(envelope.Error) {
			log.Error("gateway returned an application error", "error", string(envelope.Error))
			return []json.RawMessage{}
		}
	}

	var records []json.RawMessage
	if err := json.Unmarshal(trimmed, &records); err != nil {
		log.Warn("gateway body is not a record list", "error", err)
		return []json.RawMessage{}
	}
	if records == nil {
		return []json.RawMessage{}
	}
	return records
}

func locationParams(country, region string) map[string]string {
	return map[string]string{"country": country, "region": region}
}

// hasValue mirrors a truthiness check on the error field: null, false, ""
// and 0 do not count as an error.
func hasValue(raw json.RawMessage) bool {
	switch string(bytes.TrimSpace(raw)) {
	case "", "null", "false", `""`, "0":
		return false
	}
	return true
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
