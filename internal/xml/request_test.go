package xml

import (
	"testing"

	"github.com/errandsync/errandsync/internal/xmltree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPropfindBody(t *testing.T) {
	got := string(PropfindBody(PropResourceType, PropDisplayName, PropCalendarColor))

	want := `<?xml version="1.0" encoding="utf-8"?>
<d:propfind xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav" xmlns:cs="http://calendarserver.org/ns/" xmlns:ic="http://apple.com/ns/ical/">
  <d:prop>
    <d:resourcetype/>
    <d:displayname/>
    <ic:calendar-color/>
  </d:prop>
</d:propfind>`
	assert.Equal(t, normalizeXML(want), normalizeXML(got))
}

func TestCalendarQueryBody(t *testing.T) {
	tests := []struct {
		name       string
		components []string
		wantTest   bool
	}{
		{name: "single component", components: []string{"VTODO"}},
		{name: "two components", components: []string{"VEVENT", "VTODO"}, wantTest: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root, err := xmltree.Parse(string(CalendarQueryBody(tt.components...)))
			require.NoError(t, err)

			query := root.Child(0).MustGet()
			assert.Equal(t, "c:calendar-query", query.Tag)
			assert.True(t, query.FindPath("d:prop/d:getetag").IsPresent())
			assert.True(t, query.FindPath("d:prop/c:calendar-data").IsPresent())

			vcal := query.FindPath("c:filter/c:comp-filter").MustGet()
			assert.Equal(t, "VCALENDAR", vcal.Attr("name").MustGet())
			assert.Equal(t, tt.wantTest, vcal.Attr("test").IsPresent())

			var names []string
			for _, child := range vcal.Children {
				names = append(names, child.Attr("name").MustGet())
			}
			assert.Equal(t, tt.components, names)
		})
	}
}

func TestMkcalendarBodyEscapesUserText(t *testing.T) {
	body := string(MkcalendarBody(`Home & <Garden>`, "#ff0000", "VTODO", "VEVENT"))
	assert.NotContains(t, body, "<Garden>")

	root, err := xmltree.Parse(body)
	require.NoError(t, err)

	prop := root.FindPath("c:mkcalendar/d:set/d:prop").MustGet()
	assert.Equal(t, `Home & <Garden>`, prop.FindPath("d:displayname").MustGet().Text)
	assert.Equal(t, "#ff0000", prop.FindPath("ic:calendar-color").MustGet().Text)

	set := prop.FindPath("c:supported-calendar-component-set").MustGet()
	require.Len(t, set.Children, 2)
	assert.Equal(t, "VTODO", set.Children[0].Attr("name").MustGet())
	assert.Equal(t, "VEVENT", set.Children[1].Attr("name").MustGet())
}

func TestMkcalendarBodyWithoutColor(t *testing.T) {
	root, err := xmltree.Parse(string(MkcalendarBody("Plain", "", "VTODO")))
	require.NoError(t, err)
	assert.True(t, root.Find("calendar-color").IsAbsent())
}

func TestProppatchBody(t *testing.T) {
	root, err := xmltree.Parse(string(ProppatchBody("Renamed", "")))
	require.NoError(t, err)

	prop := root.FindPath("d:propertyupdate/d:set/d:prop").MustGet()
	assert.Equal(t, "Renamed", prop.FindPath("d:displayname").MustGet().Text)
	assert.Len(t, prop.Children, 1)
}

func TestMultistatusResponse(t *testing.T) {
	var ms MultistatusResponse
	ms.Add("/calendars/alice/", ResourceTypeProp(false, false))
	ms.Add("/calendars/alice/work/",
		ResourceTypeProp(true, false),
		TextProp(PropDisplayName, "Work"),
		ComponentSetProp("VTODO"),
		HrefProp(PropCurrentUserPrincipal, "/principals/alice/"),
	)

	root, err := xmltree.Parse(string(ms.Bytes()))
	require.NoError(t, err)

	responses := root.Find("multistatus").MustGet().ChildrenMatching("response")
	require.Len(t, responses, 2)

	work := responses[1]
	assert.Equal(t, "/calendars/alice/work/", work.FindPath("href").MustGet().Text)
	assert.Equal(t, "HTTP/1.1 200 OK", work.FindPath("propstat/status").MustGet().Text)
	assert.True(t, work.FindPath("propstat/prop/resourcetype/calendar").IsPresent())
	assert.Equal(t, "/principals/alice/", work.FindPath("propstat/prop/current-user-principal/href").MustGet().Text)
}
