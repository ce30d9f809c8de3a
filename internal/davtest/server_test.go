package davtest

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/errandsync/errandsync/internal/xmltree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const todo = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//test//EN\r\nBEGIN:VTODO\r\nUID:a\r\nDTSTAMP:20240101T000000Z\r\nSUMMARY:A & B\r\nEND:VTODO\r\nEND:VCALENDAR\r\n"

func do(t *testing.T, s *Server, method, path, body string, auth bool) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, s.URL()+path, strings.NewReader(body))
	require.NoError(t, err)
	if auth {
		req.SetBasicAuth(s.Username, s.Password)
	}
	req.Header.Set("Depth", "1")
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestAuthAndRedirect(t *testing.T) {
	s := New("alice", "pw")
	defer s.Close()

	resp := do(t, s, http.MethodGet, "/.well-known/caldav", "", false)
	assert.Equal(t, http.StatusMovedPermanently, resp.StatusCode)
	assert.Equal(t, "/dav/", resp.Header.Get("Location"))

	resp = do(t, s, "PROPFIND", "/dav/", "", false)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCalendarLifecycle(t *testing.T) {
	s := New("alice", "pw")
	defer s.Close()

	mk := `<c:mkcalendar xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav" xmlns:ic="http://apple.com/ns/ical/"><d:set><d:prop><d:displayname>Home</d:displayname><c:supported-calendar-component-set><c:comp name="VTODO"/></c:supported-calendar-component-set><ic:calendar-color>#fff</ic:calendar-color></d:prop></d:set></c:mkcalendar>`
	resp := do(t, s, "MKCALENDAR", "/calendars/alice/home/", mk, true)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = do(t, s, "MKCALENDAR", "/calendars/alice/home/", mk, true)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	cal, ok := s.Calendar("home")
	require.True(t, ok)
	assert.Equal(t, "Home", cal.Name)
	assert.Equal(t, "#fff", cal.Color)
	assert.Equal(t, []string{"VTODO"}, cal.Components)

	resp = do(t, s, http.MethodPut, "/calendars/alice/home/a.ics", todo, true)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = do(t, s, http.MethodPut, "/calendars/alice/home/a.ics", todo, true)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = do(t, s, http.MethodPut, "/calendars/alice/home/b.ics", "nonsense", true)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = do(t, s, http.MethodPut, "/calendars/alice/none/b.ics", todo, true)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	data, ok := s.Object("home", "a.ics")
	require.True(t, ok)
	assert.Equal(t, todo, string(data))

	pp := `<d:propertyupdate xmlns:d="DAV:"><d:set><d:prop><d:displayname>House</d:displayname></d:prop></d:set></d:propertyupdate>`
	resp = do(t, s, "PROPPATCH", "/calendars/alice/home/", pp, true)
	assert.Equal(t, http.StatusMultiStatus, resp.StatusCode)
	cal, _ = s.Calendar("home")
	assert.Equal(t, "House", cal.Name)
	assert.Equal(t, "#fff", cal.Color)

	resp = do(t, s, http.MethodDelete, "/calendars/alice/home/a.ics", "", true)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = do(t, s, http.MethodDelete, "/calendars/alice/home/a.ics", "", true)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = do(t, s, http.MethodDelete, "/calendars/alice/home/", "", true)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, s.Calendars())
}

func TestReportFiltersComponents(t *testing.T) {
	s := New("alice", "pw")
	defer s.Close()
	require.NoError(t, s.AddCalendar("mixed", "Mixed", "", "VEVENT", "VTODO"))
	require.NoError(t, s.PutObject("mixed", "a.ics", []byte(todo)))
	event := strings.NewReplacer("VTODO", "VEVENT", "UID:a", "UID:e").Replace(todo)
	require.NoError(t, s.PutObject("mixed", "e.ics", []byte(event)))

	query := `<c:calendar-query xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav"><d:prop><d:getetag/><c:calendar-data/></d:prop><c:filter><c:comp-filter name="VCALENDAR"><c:comp-filter name="VTODO"/></c:comp-filter></c:filter></c:calendar-query>`
	resp := do(t, s, "REPORT", "/calendars/alice/mixed/", query, true)
	require.Equal(t, http.StatusMultiStatus, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	root, err := xmltree.Parse(string(body))
	require.NoError(t, err)

	responses := root.Find("multistatus").MustGet().ChildrenMatching("response")
	require.Len(t, responses, 2)
	assert.Equal(t, "/calendars/alice/mixed/", responses[0].FindPath("href").MustGet().Text)
	assert.Equal(t, "/calendars/alice/mixed/a.ics", responses[1].FindPath("href").MustGet().Text)
	assert.Contains(t, responses[1].Find("calendar-data").MustGet().Text, "SUMMARY:A & B")
}

func TestFailInjection(t *testing.T) {
	s := New("alice", "pw")
	defer s.Close()
	s.Fail(http.MethodPut, "/calendars/alice/x/a.ics", http.StatusInsufficientStorage)

	resp := do(t, s, http.MethodPut, "/calendars/alice/x/a.ics", todo, true)
	assert.Equal(t, http.StatusInsufficientStorage, resp.StatusCode)
	assert.Equal(t, []string{"PUT /calendars/alice/x/a.ics"}, s.Requests())
}
