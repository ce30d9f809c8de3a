package tasks

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/errandsync/errandsync/internal/list"
	"github.com/emersion/go-ical"
)

const fileExt = ".ics"

// Store keeps task lists in a data directory, one VCALENDAR file per list
// named <list-uid>.ics. It is not safe for concurrent use.
type Store struct {
	dir    string
	mapper *Mapper
	logger *slog.Logger
	now    func() time.Time

	lists *list.List[*TaskListData]
	tasks *list.List[*TaskData]
	// tags is the account-wide tag set, written to every list file.
	tags []string
}

type StoreOption func(*Store)

func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithColorProperty sets the calendar property list colors are written to.
func WithColorProperty(name string) StoreOption {
	return func(s *Store) {
		if name != "" {
			s.mapper.ColorProperty = strings.ToUpper(name)
		}
	}
}

func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open creates dir if needed and loads every list file in it. Files that
// cannot be decoded are skipped with a warning.
func Open(dir string, opts ...StoreOption) (*Store, error) {
	s := &Store{
		dir:    dir,
		mapper: NewMapper(""),
		logger: slog.Default(),
		now:    time.Now,
		lists:  list.New[*TaskListData](nil),
		tasks:  list.New[*TaskData](nil),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mapper.Now = s.now

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to read data directory: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != fileExt {
			continue
		}
		path := filepath.Join(s.dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", name, err)
		}
		cal, err := Decode(string(data))
		if err != nil {
			s.logger.Warn("skipping unreadable list file", "path", path, "error", err)
			continue
		}
		for _, p := range cal.Props[PropErrandsTags] {
			s.mergeTags(splitList(p.Value))
		}
		l, tasks := s.mapper.ListFromCalendar(cal, strings.TrimSuffix(name, fileExt))
		if err := ValidateForest(tasks); err != nil {
			s.logger.Warn("list has an invalid task forest", "list", l.UID, "error", err)
		}
		s.lists.Append(&l)
		for i := range tasks {
			s.tasks.Append(&tasks[i])
		}
		s.logger.Debug("loaded list", "list", l.UID, "name", l.Name, "tasks", len(tasks))
	}
	return nil
}

// Mapper returns the mapper the store writes files with.
func (s *Store) Mapper() *Mapper { return s.mapper }

// Dir returns the data directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the file a list is stored in.
func (s *Store) Path(listUID string) string {
	return filepath.Join(s.dir, listUID+fileExt)
}

// Lists returns every list, deleted ones included.
func (s *Store) Lists() []TaskListData {
	out := make([]TaskListData, 0, s.lists.Len())
	s.lists.Each(func(_ int, l *TaskListData) bool {
		out = append(out, *l)
		return true
	})
	return out
}

func (s *Store) ActiveLists() []TaskListData {
	var out []TaskListData
	for _, l := range s.lists.Filter(func(l *TaskListData) bool { return l.State == Active }) {
		out = append(out, *l)
	}
	return out
}

func (s *Store) List(uid string) (TaskListData, error) {
	l, err := s.findList(uid)
	if err != nil {
		return TaskListData{}, err
	}
	return *l, nil
}

// Tasks returns the tasks of a list in file order, deleted ones included.
func (s *Store) Tasks(listUID string) []TaskData {
	var out []TaskData
	for _, t := range s.tasks.Filter(func(t *TaskData) bool { return t.ListUID == listUID }) {
		out = append(out, *t)
	}
	return out
}

func (s *Store) Task(uid string) (TaskData, error) {
	t, err := s.findTask(uid)
	if err != nil {
		return TaskData{}, err
	}
	return *t, nil
}

// Tags returns the tag set shared by all lists.
func (s *Store) Tags() []string {
	return append([]string(nil), s.tags...)
}

// mergeTags adds the tags not yet known and reports whether any was new.
func (s *Store) mergeTags(tags []string) bool {
	added := false
	for _, tag := range tags {
		if tag == "" || slices.Contains(s.tags, tag) {
			continue
		}
		s.tags = append(s.tags, tag)
		added = true
	}
	return added
}

func (s *Store) AddList(name string) (TaskListData, error) {
	l := NewList(name)
	s.lists.Append(&l)
	if err := s.commit(l.UID, s.dropLastList); err != nil {
		return TaskListData{}, err
	}
	return l, nil
}

// AddTask creates a task in listUID. parent may be empty or the UID of a
// task in the same list.
func (s *Store) AddTask(listUID, text, parent string) (TaskData, error) {
	l, err := s.findList(listUID)
	if err != nil {
		return TaskData{}, err
	}
	if l.State == Deleted {
		return TaskData{}, fmt.Errorf("%w: %s", ErrListDeleted, listUID)
	}
	if parent != "" {
		p, err := s.findTask(parent)
		if err != nil || p.ListUID != listUID {
			return TaskData{}, fmt.Errorf("%w: %s", ErrParentNotFound, parent)
		}
	}

	t := NewTask(listUID, text, s.now())
	t.Parent = parent
	s.tasks.Append(&t)
	if err := s.commit(listUID, s.dropLastTask); err != nil {
		return TaskData{}, err
	}
	return t, nil
}

// UpdateTask replaces the stored task with the same UID and bumps its
// modification time. The task may not move to another list.
func (s *Store) UpdateTask(t TaskData) error {
	cur, err := s.findTask(t.UID)
	if err != nil {
		return err
	}
	if t.ListUID != cur.ListUID {
		return fmt.Errorf("task %s: cannot move from list %s to %s", t.UID, cur.ListUID, t.ListUID)
	}
	if err := ValidateRRule(t.RRule); err != nil {
		return err
	}
	if err := s.checkParent(t.ListUID, t.UID, t.Parent); err != nil {
		return err
	}

	t.ChangedAt = formatTimestamp(s.now())
	prev := *cur
	*cur = t
	return s.commit(t.ListUID, func() { *cur = prev })
}

// UpdateList replaces the stored list with the same UID.
func (s *Store) UpdateList(l TaskListData) error {
	cur, err := s.findList(l.UID)
	if err != nil {
		return err
	}
	prev := *cur
	*cur = l
	return s.commit(l.UID, func() { *cur = prev })
}

// SetParent moves a task under parent, or to the top level when parent is
// empty. Parents outside the list and cycles are rejected.
func (s *Store) SetParent(uid, parent string) error {
	t, err := s.findTask(uid)
	if err != nil {
		return err
	}
	if err := s.checkParent(t.ListUID, uid, parent); err != nil {
		return err
	}
	prev := *t
	t.Parent = parent
	t.ChangedAt = formatTimestamp(s.now())
	return s.commit(t.ListUID, func() { *t = prev })
}

func (s *Store) checkParent(listUID, uid, parent string) error {
	if parent == "" {
		return nil
	}
	tasks := s.Tasks(listUID)
	byUID := make(map[string]TaskData, len(tasks))
	for _, t := range tasks {
		byUID[t.UID] = t
	}
	if _, ok := byUID[parent]; !ok {
		return fmt.Errorf("%w: %s", ErrParentNotFound, parent)
	}
	if wouldCycle(byUID, uid, parent) {
		return fmt.Errorf("task %s under %s: %w", uid, parent, ErrCycle)
	}
	return nil
}

// DeleteList marks a list deleted. Its tasks are kept.
func (s *Store) DeleteList(uid string) error {
	l, err := s.findList(uid)
	if err != nil {
		return err
	}
	prev := l.State
	l.State = Deleted
	return s.commit(uid, func() { l.State = prev })
}

// DeleteTask marks a task and all of its descendants deleted.
func (s *Store) DeleteTask(uid string) error {
	t, err := s.findTask(uid)
	if err != nil {
		return err
	}
	stamp := formatTimestamp(s.now())
	doomed := append([]string{uid}, descendants(s.Tasks(t.ListUID), uid)...)
	prev := make(map[*TaskData]TaskData, len(doomed))
	for _, d := range doomed {
		if dt, err := s.findTask(d); err == nil {
			prev[dt] = *dt
			dt.State = Deleted
			dt.ChangedAt = stamp
		}
	}
	return s.commit(t.ListUID, func() {
		for dt, old := range prev {
			*dt = old
		}
	})
}

// ToggleCompleted flips a task's completion. Completing a recurring task
// moves its due date to the next occurrence and leaves it open.
func (s *Store) ToggleCompleted(uid string) (TaskData, error) {
	t, err := s.findTask(uid)
	if err != nil {
		return TaskData{}, err
	}
	now := s.now()
	prev := *t
	undo := func() { *t = prev }

	if !t.Completed && t.RRule != "" {
		next, err := NextDue(*t, now)
		if err != nil {
			return TaskData{}, err
		}
		if next != "" {
			t.DueDate = next
			t.PercentComplete = 0
			t.ChangedAt = formatTimestamp(now)
			if err := s.commit(t.ListUID, undo); err != nil {
				return TaskData{}, err
			}
			return *t, nil
		}
	}

	t.Completed = !t.Completed
	if t.Completed {
		t.PercentComplete = 100
	} else {
		t.PercentComplete = 0
	}
	t.ChangedAt = formatTimestamp(now)
	if err := s.commit(t.ListUID, undo); err != nil {
		return TaskData{}, err
	}
	return *t, nil
}

// ImportList inserts or replaces a list as given.
func (s *Store) ImportList(l TaskListData) error {
	if cur, err := s.findList(l.UID); err == nil {
		prev := *cur
		*cur = l
		return s.commit(l.UID, func() { *cur = prev })
	}
	s.lists.Append(&l)
	return s.commit(l.UID, s.dropLastList)
}

// ImportTask inserts or replaces a task keeping its timestamps. The list
// must exist and not be deleted. A parent not yet in the list is accepted
// since a server may hand out children before their parents; a parent that
// closes a cycle is rejected.
func (s *Store) ImportTask(t TaskData) error {
	l, err := s.findList(t.ListUID)
	if err != nil {
		return err
	}
	if l.State == Deleted {
		return fmt.Errorf("%w: %s", ErrListDeleted, t.ListUID)
	}
	if t.Parent != "" {
		byUID := make(map[string]TaskData)
		for _, other := range s.Tasks(t.ListUID) {
			byUID[other.UID] = other
		}
		if wouldCycle(byUID, t.UID, t.Parent) {
			return fmt.Errorf("task %s under %s: %w", t.UID, t.Parent, ErrCycle)
		}
	}

	cur, err := s.findTask(t.UID)
	if err != nil {
		s.tasks.Append(&t)
		return s.commit(t.ListUID, s.dropLastTask)
	}
	if cur.ListUID != t.ListUID {
		return fmt.Errorf("task %s: cannot move from list %s to %s", t.UID, cur.ListUID, t.ListUID)
	}
	prev := *cur
	*cur = t
	return s.commit(t.ListUID, func() { *cur = prev })
}

// Purge removes a task from the store for good.
func (s *Store) Purge(uid string) error {
	i := s.tasks.Index(func(t *TaskData) bool { return t.UID == uid })
	t, ok := s.tasks.Get(i)
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, uid)
	}
	before := s.tasks.Items()
	s.tasks.RemoveAt(i)
	return s.commit(t.ListUID, func() { s.tasks = list.From(before, nil) })
}

// PurgeList removes a list, its tasks and its file.
func (s *Store) PurgeList(uid string) error {
	i := s.lists.Index(func(l *TaskListData) bool { return l.UID == uid })
	if !s.lists.RemoveAt(i) {
		return fmt.Errorf("%w: %s", ErrListNotFound, uid)
	}
	for {
		j := s.tasks.Index(func(t *TaskData) bool { return t.ListUID == uid })
		if !s.tasks.RemoveAt(j) {
			break
		}
	}
	if err := os.Remove(s.Path(uid)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove list file: %w", err)
	}
	return nil
}

// Save writes one list and its tasks to disk, replacing the file
// atomically.
func (s *Store) Save(listUID string) error {
	l, err := s.findList(listUID)
	if err != nil {
		return err
	}
	cal := s.mapper.ListToCalendar(*l, s.Tasks(listUID))
	if len(s.tags) > 0 {
		prop := ical.NewProp(PropErrandsTags)
		prop.Value = joinList(s.tags)
		cal.Props.Set(prop)
	}
	data, err := Encode(cal)
	if err != nil {
		return err
	}

	path := s.Path(listUID)
	tmp, err := os.CreateTemp(s.dir, "."+listUID+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write list %s: %w", listUID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write list %s: %w", listUID, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	s.logger.Debug("saved list", "list", listUID, "path", path, "bytes", len(data))
	return nil
}

// commit saves listUID. When the save fails undo restores memory to match
// what is still on disk.
func (s *Store) commit(listUID string, undo func()) error {
	if err := s.Save(listUID); err != nil {
		undo()
		return err
	}
	return nil
}

func (s *Store) dropLastList() { s.lists.RemoveAt(s.lists.Len() - 1) }

func (s *Store) dropLastTask() { s.tasks.RemoveAt(s.tasks.Len() - 1) }

func (s *Store) findList(uid string) (*TaskListData, error) {
	l, ok := s.lists.Get(s.lists.Index(func(l *TaskListData) bool { return l.UID == uid }))
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrListNotFound, uid)
	}
	return l, nil
}

func (s *Store) findTask(uid string) (*TaskData, error) {
	t, ok := s.tasks.Get(s.tasks.Index(func(t *TaskData) bool { return t.UID == uid }))
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, uid)
	}
	return t, nil
}
