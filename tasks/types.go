// Package tasks maps local task lists to iCalendar and keeps them on disk,
// one VCALENDAR file per list.
package tasks

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrListNotFound   = errors.New("list not found")
	ErrListDeleted    = errors.New("list is deleted")
	ErrTaskNotFound   = errors.New("task not found")
	ErrParentNotFound = errors.New("parent task not found in list")
	ErrCycle          = errors.New("parent reference would create a cycle")
	ErrInvalidRRule   = errors.New("invalid recurrence rule")
)

// State is the soft-delete state of a list or task.
type State int

const (
	Active State = iota
	Deleted
)

func (s State) String() string {
	if s == Deleted {
		return "deleted"
	}
	return "active"
}

// TaskListData is a local task list.
type TaskListData struct {
	Color         string
	State         State
	Name          string
	ShowCompleted bool
	Synced        bool
	UID           string
}

// TaskData is a local task. Timestamps are RFC 3339 strings; DueDate and
// StartDate hold iCalendar DATE or DATE-TIME values. An empty Parent means
// top level.
type TaskData struct {
	Color           string
	Completed       bool
	CreatedAt       string
	ChangedAt       string
	State           State
	DueDate         string
	StartDate       string
	Expanded        bool
	ListUID         string
	Notes           string
	Notified        bool
	Parent          string
	PercentComplete int
	Priority        int
	RRule           string
	Tags            []string
	Text            string
	Toolbar         bool
	Trash           bool
	UID             string
}

func (t TaskData) Deleted() bool { return t.State == Deleted }

// Changed parses ChangedAt, returning the zero time when unset or invalid.
func (t TaskData) Changed() time.Time {
	ts, err := parseTimestamp(t.ChangedAt)
	if err != nil {
		return time.Time{}
	}
	return ts
}

// NewList returns an active list with a fresh UID.
func NewList(name string) TaskListData {
	return TaskListData{Name: name, UID: uuid.NewString()}
}

// NewTask returns an active task with a fresh UID and both timestamps set to
// now.
func NewTask(listUID, text string, now time.Time) TaskData {
	stamp := formatTimestamp(now)
	return TaskData{
		CreatedAt: stamp,
		ChangedAt: stamp,
		ListUID:   listUID,
		Text:      text,
		UID:       uuid.NewString(),
	}
}

var timestampLayouts = []string{
	time.RFC3339,
	"20060102T150405Z",
	"20060102T150405",
	"2006-01-02T15:04:05",
	"20060102",
	"2006-01-02",
}

func parseTimestamp(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
