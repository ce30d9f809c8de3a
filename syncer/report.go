package syncer

import (
	"fmt"

	"github.com/samber/mo"
)

// Action is one kind of change a sync pass can make.
type Action string

const (
	CreateCalendar Action = "create-calendar"
	UpdateCalendar Action = "update-calendar"
	DeleteCalendar Action = "delete-calendar"
	ImportList     Action = "import-list"
	DropList       Action = "drop-list"
	PushTask       Action = "push-task"
	PullTask       Action = "pull-task"
	DeleteTask     Action = "delete-task"
)

// Actions lists every Action in the order a pass applies them.
var Actions = []Action{
	DeleteCalendar, DropList, CreateCalendar, UpdateCalendar,
	DeleteTask, PushTask, PullTask, ImportList,
}

// Change identifies the list, and task if any, an action applied to.
type Change struct {
	Action Action
	List   string
	Task   string
}

func (c Change) String() string {
	if c.Task == "" {
		return fmt.Sprintf("%s %s", c.Action, c.List)
	}
	return fmt.Sprintf("%s %s/%s", c.Action, c.List, c.Task)
}

// ChangeError is a failed change.
type ChangeError struct {
	Change Change
	Err    error
}

func (e *ChangeError) Error() string { return fmt.Sprintf("%s: %v", e.Change, e.Err) }
func (e *ChangeError) Unwrap() error { return e.Err }

// Report is the outcome of one pass, one result per attempted change.
type Report struct {
	Results []mo.Result[Change]
}

func (r *Report) ok(c Change) {
	r.Results = append(r.Results, mo.Ok(c))
}

func (r *Report) fail(c Change, err error) {
	r.Results = append(r.Results, mo.Err[Change](&ChangeError{Change: c, Err: err}))
}

// Count returns how many changes of kind a succeeded.
func (r Report) Count(a Action) int {
	n := 0
	for _, res := range r.Results {
		if c, err := res.Get(); err == nil && c.Action == a {
			n++
		}
	}
	return n
}

// Errors returns the failures in the order they happened.
func (r Report) Errors() []error {
	var errs []error
	for _, res := range r.Results {
		if res.IsError() {
			errs = append(errs, res.Error())
		}
	}
	return errs
}

func (r Report) Succeeded() int { return len(r.Results) - len(r.Errors()) }
