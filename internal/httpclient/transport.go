package httpclient

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
)

// maxLoggedBody caps how much of a body is echoed into debug logs.
const maxLoggedBody = 2048

// BasicAuthTransport implements http.RoundTripper and adds Basic Auth
// credentials to outgoing requests.
type BasicAuthTransport struct {
	Username  string
	Password  string
	Transport http.RoundTripper
	Logger    *slog.Logger
}

// NewBasicAuthTransport creates a new BasicAuthTransport. If transport is nil,
// http.DefaultTransport will be used.
func NewBasicAuthTransport(username, password string, transport http.RoundTripper, logger *slog.Logger) *BasicAuthTransport {
	if transport == nil {
		transport = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &BasicAuthTransport{
		Username:  username,
		Password:  password,
		Transport: transport,
		Logger:    logger,
	}
}

// RoundTrip adds credentials to a clone of req and delegates to the
// underlying transport.
func (t *BasicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Username == "" {
		return nil, errors.New("basic auth username cannot be empty")
	}
	if t.Transport == nil {
		return nil, errors.New("transport cannot be nil")
	}

	out := req.Clone(req.Context())
	var reqBody []byte
	if req.Body != nil && req.Body != http.NoBody {
		data, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, err
		}
		reqBody = data
		out.Body = io.NopCloser(bytes.NewReader(data))
	}
	out.SetBasicAuth(t.Username, t.Password)

	t.Logger.Debug("outgoing request",
		"method", out.Method,
		"url", out.URL.String(),
		"headers", redact(out.Header),
		"body", truncate(reqBody))

	resp, err := t.Transport.RoundTrip(out)
	if err != nil || resp == nil {
		return resp, err
	}

	if resp.Body != nil {
		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, readErr
		}
		resp.Body = io.NopCloser(bytes.NewReader(data))
		t.Logger.Debug("incoming response",
			"status", resp.Status,
			"headers", resp.Header,
			"body", truncate(data))
	}
	return resp, nil
}

func redact(h http.Header) http.Header {
	c := h.Clone()
	if c.Get("Authorization") != "" {
		c.Set("Authorization", "REDACTED")
	}
	return c
}

func truncate(body []byte) string {
	if len(body) > maxLoggedBody {
		return string(body[:maxLoggedBody]) + "..."
	}
	return string(body)
}
