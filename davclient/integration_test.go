package davclient

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRealServerOperations runs against a live CalDAV server.
// Set these environment variables to run:
// - CALDAV_SERVER_URL (e.g., "https://caldav.fastmail.com")
// - CALDAV_USERNAME
// - CALDAV_PASSWORD
func TestRealServerOperations(t *testing.T) {
	serverURL := os.Getenv("CALDAV_SERVER_URL")
	username := os.Getenv("CALDAV_USERNAME")
	password := os.Getenv("CALDAV_PASSWORD")

	if serverURL == "" || username == "" || password == "" {
		t.Skip("Real server test requires CALDAV_SERVER_URL, CALDAV_USERNAME, and CALDAV_PASSWORD environment variables")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	client, err := NewClient(ctx, serverURL, username, password,
		WithLogger(logger),
		WithHTTPClient(&http.Client{Timeout: 30 * time.Second}))
	require.NoError(t, err)
	t.Logf("calendars URL: %s", client.CalendarsURL())

	require.NoError(t, client.PullCalendars(ctx, CompVTODO))
	for _, cal := range client.Calendars() {
		t.Logf("calendar %q at %s (%s)", cal.Name, cal.URL, cal.Components)
	}

	cal, err := client.CreateCalendar(ctx, "errandsync test "+time.Now().Format(time.RFC3339), "#3584e4", CompVTODO)
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, cal.Delete(context.Background()))
	}()

	data := ical.NewCalendar()
	data.Props.SetText(ical.PropVersion, "2.0")
	data.Props.SetText(ical.PropProductID, "-//errandsync//test//EN")
	todo := ical.NewComponent(ical.CompToDo)
	uid := uuid.NewString()
	todo.Props.SetText(ical.PropUID, uid)
	todo.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	todo.Props.SetText(ical.PropSummary, "integration test task")
	todo.Props.Set(&ical.Prop{Name: "X-ERRANDS-COLOR", Value: "#ff0000", Params: ical.Params{}})
	data.Children = append(data.Children, todo)

	ev, err := cal.CreateEvent(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, uid, ev.UID())

	require.NoError(t, cal.PullEvents(ctx, CompVTODO))
	pulled, ok := cal.EventByUID(uid)
	require.True(t, ok)
	color := pulled.Component().Props.Get("X-ERRANDS-COLOR")
	require.NotNil(t, color, "extension properties survive the round trip")
	assert.Equal(t, "#ff0000", color.Value)

	require.NoError(t, pulled.Delete(ctx))
}
