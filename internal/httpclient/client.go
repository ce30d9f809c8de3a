package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// HttpClientWrapper issues one WebDAV request per call and hands back the
// whole response body. Implementations never retry.
type HttpClientWrapper interface {
	// Do sends method to url without following redirects. A non-2xx status
	// yields a *StatusError together with the response.
	Do(ctx context.Context, method, url string, header http.Header, body []byte) (*Response, error)
	// Discover issues a GET following redirects, discards the body and
	// returns the final effective URL.
	Discover(ctx context.Context, url string) (string, error)
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
}

// StatusError reports a response whose status is outside 2xx.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
}

type httpClientWrapper struct {
	client   *http.Client
	redirect *http.Client
	baseURL  url.URL
	logger   *slog.Logger
	metrics  *Metrics
}

// Option configures the wrapper.
type Option func(*httpClientWrapper)

// WithMetrics records every request in m.
func WithMetrics(m *Metrics) Option {
	return func(w *httpClientWrapper) {
		w.metrics = m
	}
}

// NewHttpClientWrapper creates a new client wrapper around client. Relative
// URLs are resolved against baseURL.
func NewHttpClientWrapper(client *http.Client, baseURL url.URL, logger *slog.Logger, opts ...Option) (HttpClientWrapper, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if client == nil {
		client = http.DefaultClient
	}

	noFollow := *client
	noFollow.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	follow := *client

	w := &httpClientWrapper{
		client:   &noFollow,
		redirect: &follow,
		baseURL:  baseURL,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// resolveURL resolves a URL string against the base URL
func (c *httpClientWrapper) resolveURL(urlStr string) (*url.URL, error) {
	ref, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL %q: %w", urlStr, err)
	}
	return c.baseURL.ResolveReference(ref), nil
}

func (c *httpClientWrapper) newRequest(ctx context.Context, method, urlStr string, header http.Header, body []byte) (*http.Request, error) {
	resolvedURL, err := c.resolveURL(urlStr)
	if err != nil {
		c.logger.Debug("failed to resolve URL", "url", urlStr, "error", err)
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, resolvedURL.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", method, err)
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	return req, nil
}

func (c *httpClientWrapper) Do(ctx context.Context, method, urlStr string, header http.Header, body []byte) (*Response, error) {
	c.logger.Debug("starting request",
		"method", method,
		"url", urlStr,
		"body_length", len(body))

	req, err := c.newRequest(ctx, method, urlStr, header, body)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.metrics.observe(method, outcomeError, time.Since(start))
		c.logger.Debug("request failed", "method", method, "url", req.URL.String(), "error", err)
		return nil, fmt.Errorf("failed to send %s request: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.observe(method, outcomeError, time.Since(start))
		return nil, fmt.Errorf("failed to read %s response: %w", method, err)
	}
	c.metrics.observe(method, statusOutcome(resp.StatusCode), time.Since(start))

	result := &Response{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header,
		Body:       data,
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Debug("unexpected status code",
			"method", method,
			"url", req.URL.String(),
			"status_code", resp.StatusCode,
			"status", resp.Status)
		return result, &StatusError{
			Method:     method,
			URL:        req.URL.String(),
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
		}
	}

	c.logger.Debug("request complete",
		"method", method,
		"url", req.URL.String(),
		"status", resp.Status,
		"response_length", len(data))
	return result, nil
}

func (c *httpClientWrapper) Discover(ctx context.Context, urlStr string) (string, error) {
	c.logger.Debug("starting discovery request", "url", urlStr)

	req, err := c.newRequest(ctx, http.MethodGet, urlStr, nil, nil)
	if err != nil {
		return "", err
	}

	start := time.Now()
	resp, err := c.redirect.Do(req)
	if err != nil {
		c.metrics.observe(http.MethodGet, outcomeError, time.Since(start))
		c.logger.Debug("discovery request failed", "url", req.URL.String(), "error", err)
		return "", fmt.Errorf("failed to send GET request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	c.metrics.observe(http.MethodGet, statusOutcome(resp.StatusCode), time.Since(start))

	effective := resp.Request.URL.String()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{
			Method:     http.MethodGet,
			URL:        effective,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
		}
	}

	c.logger.Debug("discovery complete", "url", urlStr, "effective_url", effective)
	return effective, nil
}
