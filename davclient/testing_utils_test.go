package davclient

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/errandsync/errandsync/internal/httpclient"
)

type mockCall struct {
	method string
	url    string
	header http.Header
	body   []byte
}

type mockReply struct {
	status int
	body   string
	err    error
}

// mockHTTPClient answers requests from handler, then from a table keyed by
// "METHOD url". Unknown requests get a 404.
type mockHTTPClient struct {
	discoverURL string
	discoverErr error
	replies     map[string]mockReply
	handler     func(method, url string) (mockReply, bool)
	calls       []mockCall
}

func newMockHTTPClient(discoverURL string) *mockHTTPClient {
	return &mockHTTPClient{discoverURL: discoverURL, replies: map[string]mockReply{}}
}

func (m *mockHTTPClient) on(method, url string, status int, body string) *mockHTTPClient {
	m.replies[method+" "+url] = mockReply{status: status, body: body}
	return m
}

func (m *mockHTTPClient) fail(method, url string, err error) *mockHTTPClient {
	m.replies[method+" "+url] = mockReply{err: err}
	return m
}

func (m *mockHTTPClient) Do(_ context.Context, method, url string, header http.Header, body []byte) (*httpclient.Response, error) {
	m.calls = append(m.calls, mockCall{method: method, url: url, header: header, body: body})

	reply, ok := m.replies[method+" "+url]
	if m.handler != nil {
		if r, handled := m.handler(method, url); handled {
			reply, ok = r, true
		}
	}
	if !ok {
		reply = mockReply{status: http.StatusNotFound}
	}
	if reply.err != nil {
		return nil, reply.err
	}
	if reply.status == 0 {
		reply.status = http.StatusOK
	}
	resp := &httpclient.Response{StatusCode: reply.status, Header: http.Header{}, Body: []byte(reply.body)}
	if reply.status < 200 || reply.status > 299 {
		return resp, &httpclient.StatusError{Method: method, URL: url, StatusCode: reply.status}
	}
	return resp, nil
}

func (m *mockHTTPClient) Discover(_ context.Context, url string) (string, error) {
	m.calls = append(m.calls, mockCall{method: http.MethodGet, url: url})
	return m.discoverURL, m.discoverErr
}

func (m *mockHTTPClient) methods() []string {
	out := make([]string, len(m.calls))
	for i, c := range m.calls {
		out[i] = c.method + " " + c.url
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const (
	testBase         = "https://cal.example.com"
	testCalDAV       = "https://cal.example.com/dav/"
	testPrincipal    = "https://cal.example.com/principals/alice/"
	testCalendarHome = "https://cal.example.com/calendars/alice/"
)

const principalResponse = `<?xml version="1.0" encoding="utf-8"?>
<d:multistatus xmlns:d="DAV:">
  <d:response>
    <d:href>/dav/</d:href>
    <d:propstat>
      <d:prop>
        <d:current-user-principal><d:href>/principals/alice/</d:href></d:current-user-principal>
      </d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
  </d:response>
</d:multistatus>`

const homeSetResponse = `<?xml version="1.0" encoding="utf-8"?>
<d:multistatus xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav">
  <d:response>
    <d:href>/principals/alice/</d:href>
    <d:propstat>
      <d:prop>
        <c:calendar-home-set><d:href>/calendars/alice/</d:href></c:calendar-home-set>
      </d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
  </d:response>
</d:multistatus>`

// discoveredMock answers the three discovery steps.
func discoveredMock() *mockHTTPClient {
	return newMockHTTPClient(testCalDAV).
		on("PROPFIND", testCalDAV, http.StatusMultiStatus, principalResponse).
		on("PROPFIND", testPrincipal, http.StatusMultiStatus, homeSetResponse)
}

func newTestClient(m *mockHTTPClient) (*Client, error) {
	return NewClient(context.Background(), testBase, "alice", "secret",
		WithHTTPClientWrapper(m), WithLogger(discardLogger()))
}
