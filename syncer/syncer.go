// Package syncer reconciles the local task store with a CalDAV account.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/errandsync/errandsync/davclient"
	"github.com/errandsync/errandsync/tasks"
	"github.com/emersion/go-ical"
)

// Syncer runs sync passes between one Client and one Store. A pass is not
// safe to run concurrently with another pass or with store writes.
type Syncer struct {
	client  *davclient.Client
	store   *tasks.Store
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time
}

type Option func(*Syncer)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Syncer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Syncer) { s.metrics = m }
}

func New(client *davclient.Client, store *tasks.Store, opts ...Option) *Syncer {
	s := &Syncer{
		client: client,
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync runs one pass:
//   - lists deleted locally are removed from the server and purged
//   - lists never synced get a calendar named after their UID
//   - synced lists whose calendar is gone are dropped locally
//   - tasks are reconciled per list, newer LAST-MODIFIED wins
//   - remote VTODO calendars unknown locally are imported
//
// Only a failure to list the remote calendars aborts the pass. Other
// failures are recorded in the report and the pass moves on.
func (s *Syncer) Sync(ctx context.Context) (Report, error) {
	var report Report
	s.logger.Debug("sync started")

	if err := s.client.PullCalendars(ctx, davclient.CompVTODO); err != nil {
		s.metrics.record(report, err, s.now())
		return report, fmt.Errorf("failed to pull calendars: %w", err)
	}

	for _, l := range s.store.Lists() {
		if err := ctx.Err(); err != nil {
			s.metrics.record(report, err, s.now())
			return report, err
		}
		s.syncList(ctx, l, &report)
	}

	for _, cal := range s.client.ActiveCalendars() {
		if _, err := s.store.List(cal.UUID); err == nil {
			continue
		}
		s.importCalendar(ctx, cal, &report)
	}

	s.metrics.record(report, nil, s.now())
	s.logger.Info("sync finished",
		"changes", report.Succeeded(),
		"failures", len(report.Errors()))
	return report, nil
}

func (s *Syncer) syncList(ctx context.Context, l tasks.TaskListData, report *Report) {
	cal, remote := s.client.CalendarByUUID(l.UID)
	if remote && cal.State() == davclient.Deleted {
		remote = false
	}

	switch {
	case l.State == tasks.Deleted:
		change := Change{Action: DeleteCalendar, List: l.UID}
		if remote {
			if err := cal.Delete(ctx); err != nil {
				report.fail(change, err)
				return
			}
		}
		if err := s.store.PurgeList(l.UID); err != nil {
			report.fail(change, err)
			return
		}
		report.ok(change)
		return

	case !remote && l.Synced:
		change := Change{Action: DropList, List: l.UID}
		s.logger.Info("calendar removed on server, dropping list", "list", l.UID, "name", l.Name)
		if err := s.store.PurgeList(l.UID); err != nil {
			report.fail(change, err)
			return
		}
		report.ok(change)
		return

	case !remote:
		change := Change{Action: CreateCalendar, List: l.UID}
		created, err := s.client.CreateCalendarWithID(ctx, l.UID, l.Name, l.Color, davclient.CompVTODO)
		if err != nil {
			report.fail(change, err)
			return
		}
		l.Synced = true
		if err := s.store.UpdateList(l); err != nil {
			report.fail(change, err)
			return
		}
		report.ok(change)
		cal = created

	case cal.Name != l.Name || (l.Color != "" && cal.Color != l.Color):
		change := Change{Action: UpdateCalendar, List: l.UID}
		if err := cal.Update(ctx, l.Name, l.Color); err != nil {
			report.fail(change, err)
		} else {
			report.ok(change)
		}
	}

	s.syncTasks(ctx, l, cal, report)
}

func (s *Syncer) syncTasks(ctx context.Context, l tasks.TaskListData, cal *davclient.Calendar, report *Report) {
	if err := cal.PullEvents(ctx, davclient.CompVTODO); err != nil {
		report.fail(Change{Action: PullTask, List: l.UID}, err)
		return
	}
	mapper := s.store.Mapper()

	remote := make(map[string]*davclient.Event)
	for _, ev := range cal.ActiveEvents() {
		if uid := ev.UID(); uid != "" {
			remote[uid] = ev
		}
	}

	for _, local := range s.store.Tasks(l.UID) {
		ev, onServer := remote[local.UID]
		delete(remote, local.UID)

		if local.Deleted() {
			change := Change{Action: DeleteTask, List: l.UID, Task: local.UID}
			if onServer {
				if err := ev.Delete(ctx); err != nil {
					report.fail(change, err)
					continue
				}
			}
			if err := s.store.Purge(local.UID); err != nil {
				report.fail(change, err)
				continue
			}
			report.ok(change)
			continue
		}

		if !onServer {
			change := Change{Action: PushTask, List: l.UID, Task: local.UID}
			if _, err := cal.CreateEvent(ctx, mapper.TaskCalendar(local)); err != nil {
				report.fail(change, err)
				continue
			}
			report.ok(change)
			continue
		}

		comp := ev.Component()
		if comp == nil {
			continue
		}
		// a VTODO without LAST-MODIFIED or DTSTAMP never wins
		theirs := mapper.TaskFromVTODO(comp, l.UID)
		switch ours, remoteAt := local.Changed(), tasks.LastModified(comp); {
		case remoteAt.After(ours):
			change := Change{Action: PullTask, List: l.UID, Task: local.UID}
			if err := s.store.ImportTask(theirs); err != nil {
				report.fail(change, err)
				continue
			}
			report.ok(change)
		case ours.After(remoteAt):
			change := Change{Action: PushTask, List: l.UID, Task: local.UID}
			ev.Data = mapper.TaskCalendar(local)
			if err := ev.Push(ctx); err != nil {
				report.fail(change, err)
				continue
			}
			report.ok(change)
		}
	}

	// what is left exists only on the server
	for _, ev := range cal.ActiveEvents() {
		uid := ev.UID()
		if _, left := remote[uid]; !left {
			continue
		}
		comp := ev.Component()
		if comp == nil || comp.Name != ical.CompToDo {
			continue
		}
		change := Change{Action: PullTask, List: l.UID, Task: uid}
		if err := s.store.ImportTask(mapper.TaskFromVTODO(comp, l.UID)); err != nil {
			report.fail(change, err)
			continue
		}
		report.ok(change)
	}
}

func (s *Syncer) importCalendar(ctx context.Context, cal *davclient.Calendar, report *Report) {
	l := tasks.TaskListData{
		UID:           cal.UUID,
		Name:          cal.Name,
		Color:         cal.Color,
		Synced:        true,
		ShowCompleted: true,
	}
	change := Change{Action: ImportList, List: l.UID}
	if err := s.store.ImportList(l); err != nil {
		report.fail(change, err)
		return
	}
	report.ok(change)
	s.logger.Info("imported remote calendar", "list", l.UID, "name", l.Name)
	s.syncTasks(ctx, l, cal, report)
}
