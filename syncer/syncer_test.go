package syncer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/errandsync/errandsync/davclient"
	"github.com/errandsync/errandsync/internal/davtest"
	"github.com/errandsync/errandsync/tasks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

type fixture struct {
	srv    *davtest.Server
	store  *tasks.Store
	clock  *clock
	syncer *Syncer
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	srv := davtest.New("alice", "secret")
	t.Cleanup(srv.Close)

	c := &clock{now: time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)}
	store, err := tasks.Open(t.TempDir(), tasks.WithLogger(discardLogger()), tasks.WithClock(c.Now))
	require.NoError(t, err)

	client, err := davclient.NewClient(context.Background(), srv.URL(), "alice", "secret",
		davclient.WithLogger(discardLogger()))
	require.NoError(t, err)

	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	return &fixture{srv: srv, store: store, clock: c, syncer: New(client, store, opts...)}
}

func (f *fixture) sync(t *testing.T) Report {
	t.Helper()
	report, err := f.syncer.Sync(context.Background())
	require.NoError(t, err)
	return report
}

// remoteTodo leaves out LAST-MODIFIED when lastModified is empty.
func remoteTodo(uid, summary, lastModified string) []byte {
	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//other client//EN",
		"BEGIN:VTODO",
		"UID:" + uid,
		"DTSTAMP:20240101T000000Z",
		"SUMMARY:" + summary,
	}
	if lastModified != "" {
		lines = append(lines, "LAST-MODIFIED:"+lastModified)
	}
	lines = append(lines, "STATUS:NEEDS-ACTION", "END:VTODO", "END:VCALENDAR", "")
	return []byte(strings.Join(lines, "\r\n"))
}

func TestSyncPushesLocalAndImportsRemote(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.srv.AddCalendar("remote", "Remote", "#00ff00", "VTODO"))
	require.NoError(t, f.srv.PutObject("remote", "R1.ics", remoteTodo("R1", "From phone", "20240401T000000Z")))
	require.NoError(t, f.srv.AddCalendar("events", "Meetings", "", "VEVENT"))

	home, err := f.store.AddList("Home")
	require.NoError(t, err)
	milk, err := f.store.AddTask(home.UID, "Buy milk", "")
	require.NoError(t, err)

	report := f.sync(t)
	assert.Empty(t, report.Errors())
	assert.Equal(t, 1, report.Count(CreateCalendar))
	assert.Equal(t, 1, report.Count(PushTask))
	assert.Equal(t, 1, report.Count(ImportList))
	assert.Equal(t, 1, report.Count(PullTask))

	cal, ok := f.srv.Calendar(home.UID)
	require.True(t, ok)
	assert.Equal(t, "Home", cal.Name)
	pushed, ok := f.srv.Object(home.UID, milk.UID+".ics")
	require.True(t, ok)
	assert.Contains(t, string(pushed), "SUMMARY:Buy milk")
	assert.Contains(t, string(pushed), "X-ERRANDS-EXPANDED:0")

	gotHome, err := f.store.List(home.UID)
	require.NoError(t, err)
	assert.True(t, gotHome.Synced)

	remote, err := f.store.List("remote")
	require.NoError(t, err)
	assert.Equal(t, "Remote", remote.Name)
	assert.Equal(t, "#00ff00", remote.Color)
	assert.True(t, remote.Synced)
	imported := f.store.Tasks("remote")
	require.Len(t, imported, 1)
	assert.Equal(t, "From phone", imported[0].Text)
	assert.Equal(t, "2024-04-01T00:00:00Z", imported[0].ChangedAt)

	_, err = f.store.List("events")
	assert.ErrorIs(t, err, tasks.ErrListNotFound)

	again := f.sync(t)
	assert.Empty(t, again.Results)
}

func TestSyncLastWriteWins(t *testing.T) {
	f := newFixture(t)
	home, _ := f.store.AddList("Home")
	task, _ := f.store.AddTask(home.UID, "original", "")
	f.sync(t)

	// newer on the server
	require.NoError(t, f.srv.PutObject(home.UID, task.UID+".ics", remoteTodo(task.UID, "edited remotely", "20240601T000000Z")))
	report := f.sync(t)
	assert.Equal(t, 1, report.Count(PullTask))
	got, err := f.store.Task(task.UID)
	require.NoError(t, err)
	assert.Equal(t, "edited remotely", got.Text)

	// newer locally
	f.clock.now = time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	got.Text = "edited locally"
	require.NoError(t, f.store.UpdateTask(got))
	report = f.sync(t)
	assert.Equal(t, 1, report.Count(PushTask))
	data, ok := f.srv.Object(home.UID, task.UID+".ics")
	require.True(t, ok)
	assert.Contains(t, string(data), "SUMMARY:edited locally")
	assert.Contains(t, string(data), "LAST-MODIFIED:20240701T000000Z")

	// older on the server
	require.NoError(t, f.srv.PutObject(home.UID, task.UID+".ics", remoteTodo(task.UID, "stale", "20240101T000000Z")))
	report = f.sync(t)
	assert.Equal(t, 1, report.Count(PushTask))
	got, _ = f.store.Task(task.UID)
	assert.Equal(t, "edited locally", got.Text)
}

func TestSyncRemoteWithoutLastModifiedKeepsLocalEdits(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.srv.AddCalendar("remote", "Remote", "", "VTODO"))
	require.NoError(t, f.srv.PutObject("remote", "R1.ics", remoteTodo("R1", "From phone", "")))

	report := f.sync(t)
	assert.Equal(t, 1, report.Count(PullTask))
	got, err := f.store.Task("R1")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01T00:00:00Z", got.ChangedAt)

	again := f.sync(t)
	assert.Empty(t, again.Results)

	got.Text = "edited locally"
	require.NoError(t, f.store.UpdateTask(got))
	report = f.sync(t)
	assert.Empty(t, report.Errors())
	assert.Equal(t, 1, report.Count(PushTask))
	assert.Equal(t, 0, report.Count(PullTask))
	data, ok := f.srv.Object("remote", "R1.ics")
	require.True(t, ok)
	assert.Contains(t, string(data), "SUMMARY:edited locally")
	got, _ = f.store.Task("R1")
	assert.Equal(t, "edited locally", got.Text)
}

func TestSyncDeletions(t *testing.T) {
	f := newFixture(t)
	home, _ := f.store.AddList("Home")
	work, _ := f.store.AddList("Work")
	keep, _ := f.store.AddTask(home.UID, "keep", "")
	drop, _ := f.store.AddTask(home.UID, "drop", "")
	f.sync(t)
	require.Len(t, f.srv.Objects(home.UID), 2)

	require.NoError(t, f.store.DeleteTask(drop.UID))
	require.NoError(t, f.store.DeleteList(work.UID))
	report := f.sync(t)
	assert.Empty(t, report.Errors())
	assert.Equal(t, 1, report.Count(DeleteTask))
	assert.Equal(t, 1, report.Count(DeleteCalendar))

	objects := f.srv.Objects(home.UID)
	require.Len(t, objects, 1)
	assert.Equal(t, keep.UID+".ics", objects[0].Name)
	_, err := f.store.Task(drop.UID)
	assert.ErrorIs(t, err, tasks.ErrTaskNotFound)

	_, ok := f.srv.Calendar(work.UID)
	assert.False(t, ok)
	_, err = f.store.List(work.UID)
	assert.ErrorIs(t, err, tasks.ErrListNotFound)
}

func TestSyncDropsListRemovedOnServer(t *testing.T) {
	f := newFixture(t)
	home, _ := f.store.AddList("Home")
	f.sync(t)

	require.NoError(t, f.srv.MarkDeleted(home.UID))
	report := f.sync(t)
	assert.Equal(t, 1, report.Count(DropList))
	_, err := f.store.List(home.UID)
	assert.ErrorIs(t, err, tasks.ErrListNotFound)
}

func TestSyncRenamesCalendar(t *testing.T) {
	f := newFixture(t)
	home, _ := f.store.AddList("Home")
	f.sync(t)

	home, _ = f.store.List(home.UID)
	home.Name = "House"
	home.Color = "#123456"
	require.NoError(t, f.store.UpdateList(home))

	report := f.sync(t)
	assert.Equal(t, 1, report.Count(UpdateCalendar))
	cal, ok := f.srv.Calendar(home.UID)
	require.True(t, ok)
	assert.Equal(t, "House", cal.Name)
	assert.Equal(t, "#123456", cal.Color)
}

func TestSyncRecordsItemFailures(t *testing.T) {
	f := newFixture(t)
	home, _ := f.store.AddList("Home")
	f.sync(t)

	bad, _ := f.store.AddTask(home.UID, "rejected", "")
	good, _ := f.store.AddTask(home.UID, "accepted", "")
	f.srv.Fail(http.MethodPut, f.srv.HomePath()+home.UID+"/"+bad.UID+".ics", http.StatusInternalServerError)

	report, err := f.syncer.Sync(context.Background())
	require.NoError(t, err)

	errs := report.Errors()
	require.Len(t, errs, 1)
	var ce *ChangeError
	require.True(t, errors.As(errs[0], &ce))
	assert.Equal(t, Change{Action: PushTask, List: home.UID, Task: bad.UID}, ce.Change)
	assert.True(t, davclient.IsKind(errs[0], davclient.KindStatus))

	_, ok := f.srv.Object(home.UID, good.UID+".ics")
	assert.True(t, ok)
	assert.Equal(t, 1, report.Count(PushTask))
}

func TestSyncAbortsWhenCalendarsCannotBeListed(t *testing.T) {
	f := newFixture(t)
	f.srv.Fail("PROPFIND", f.srv.HomePath(), http.StatusServiceUnavailable)

	_, err := f.syncer.Sync(context.Background())
	require.Error(t, err)
	assert.True(t, davclient.IsKind(err, davclient.KindStatus))
}

func TestSyncMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	f := newFixture(t, WithMetrics(m))
	home, _ := f.store.AddList("Home")
	f.store.AddTask(home.UID, "one", "")
	f.sync(t)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.changes.WithLabelValues(string(CreateCalendar), "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.changes.WithLabelValues(string(PushTask), "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.passes.WithLabelValues("ok")))
	assert.Greater(t, testutil.ToFloat64(m.lastSuccess), 0.0)

	f.srv.Fail("PROPFIND", f.srv.HomePath(), http.StatusInternalServerError)
	_, err := f.syncer.Sync(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.passes.WithLabelValues("error")))
}
