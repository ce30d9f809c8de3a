package tasks

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"
)

const (
	productID = "-//errandsync//errandsync//EN"

	statusCompleted  = "COMPLETED"
	statusInProgress = "IN-PROCESS"
)

// Mapper converts between local records and iCalendar components.
type Mapper struct {
	// ColorProperty names the calendar-level color property written by
	// ListToCalendar. Reads fall back to X-ERRANDS-COLOR and
	// X-APPLE-CALENDAR-COLOR.
	ColorProperty string
	Now           func() time.Time
}

// NewMapper returns a Mapper writing list colors to colorProperty, or to
// X-APPLE-CALENDAR-COLOR when empty.
func NewMapper(colorProperty string) *Mapper {
	if colorProperty == "" {
		colorProperty = DefaultColorProp
	}
	return &Mapper{ColorProperty: strings.ToUpper(colorProperty), Now: time.Now}
}

var defaultMapper = NewMapper("")

func (m *Mapper) now() time.Time {
	if m.Now == nil {
		return time.Now()
	}
	return m.Now()
}

// TaskToVTODO builds a VTODO from t using the default mapper.
func TaskToVTODO(t TaskData) *ical.Component { return defaultMapper.TaskToVTODO(t) }

// SerializeTask renders t as a VCALENDAR holding one VTODO.
func SerializeTask(t TaskData) (string, error) { return defaultMapper.SerializeTask(t) }

// ParseTasks decodes every VTODO in ics as a task of listUID.
func ParseTasks(ics, listUID string) ([]TaskData, error) {
	return defaultMapper.ParseTasks(ics, listUID)
}

// ListToCalendar builds the VCALENDAR for l holding the tasks that belong
// to it.
func ListToCalendar(l TaskListData, tasks []TaskData) *ical.Calendar {
	return defaultMapper.ListToCalendar(l, tasks)
}

// ListFromCalendar reads a list and its tasks. uid is used when the
// calendar carries no X-WR-RELCALID.
func ListFromCalendar(cal *ical.Calendar, uid string) (TaskListData, []TaskData) {
	return defaultMapper.ListFromCalendar(cal, uid)
}

func (m *Mapper) TaskToVTODO(t TaskData) *ical.Component {
	todo := ical.NewComponent(ical.CompToDo)
	now := m.now()

	uid := t.UID
	if uid == "" {
		uid = uuid.NewString()
	}
	todo.Props.SetText(ical.PropUID, uid)
	todo.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	todo.Props.SetText(ical.PropSummary, cleanText(t.Text))

	if t.Color != "" {
		setXText(todo, PropErrandsColor, t.Color)
	}
	if t.StartDate != "" {
		setDateValue(todo, ical.PropDateTimeStart, t.StartDate)
	}
	if t.DueDate != "" {
		setDateValue(todo, ical.PropDue, t.DueDate)
	}
	if t.RRule != "" {
		rrule := ical.NewProp(ical.PropRecurrenceRule)
		rrule.Value = strings.TrimPrefix(t.RRule, "RRULE:")
		todo.Props.Set(rrule)
	}
	if t.Notes != "" {
		todo.Props.SetText(ical.PropDescription, cleanText(t.Notes))
	}
	setInt(todo, ical.PropPriority, clamp(t.Priority, 0, 9))
	setInt(todo, ical.PropPercentComplete, clamp(t.PercentComplete, 0, 100))
	if t.Completed {
		todo.Props.SetText(ical.PropStatus, statusCompleted)
	} else {
		todo.Props.SetText(ical.PropStatus, statusInProgress)
	}
	todo.Props.SetDateTime(ical.PropLastModified, timestampOr(t.ChangedAt, now))
	todo.Props.SetDateTime(ical.PropCreated, timestampOr(t.CreatedAt, now))
	if t.Parent != "" {
		todo.Props.SetText(ical.PropRelatedTo, t.Parent)
	}
	if len(t.Tags) > 0 {
		categories := ical.NewProp(ical.PropCategories)
		categories.Value = joinList(t.Tags)
		todo.Props.Set(categories)
	}

	if t.State == Deleted {
		setXBool(todo, PropErrandsDeleted, true)
	}
	setXBool(todo, PropErrandsExpanded, t.Expanded)
	setXBool(todo, PropErrandsNotified, t.Notified)
	setXBool(todo, PropErrandsToolbar, t.Toolbar)
	setXBool(todo, PropErrandsTrash, t.Trash)
	return todo
}

func (m *Mapper) newCalendar() *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	return cal
}

// TaskCalendar wraps the VTODO for t in a VCALENDAR, the unit stored as
// one calendar object on a server.
func (m *Mapper) TaskCalendar(t TaskData) *ical.Calendar {
	cal := m.newCalendar()
	cal.Children = append(cal.Children, m.TaskToVTODO(t))
	return cal
}

func (m *Mapper) SerializeTask(t TaskData) (string, error) {
	data, err := Encode(m.TaskCalendar(t))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (m *Mapper) ParseTasks(ics, listUID string) ([]TaskData, error) {
	cal, err := Decode(ics)
	if err != nil {
		return nil, err
	}
	return m.tasksFrom(cal, listUID), nil
}

func (m *Mapper) tasksFrom(cal *ical.Calendar, listUID string) []TaskData {
	var out []TaskData
	for _, child := range cal.Children {
		if child.Name == ical.CompToDo {
			out = append(out, m.TaskFromVTODO(child, listUID))
		}
	}
	return out
}

// TaskFromVTODO reads one VTODO. Missing fields get defaults: a fresh UID,
// timestamps of now, false and zero.
func (m *Mapper) TaskFromVTODO(todo *ical.Component, listUID string) TaskData {
	now := formatTimestamp(m.now())
	t := TaskData{
		ListUID:   listUID,
		CreatedAt: now,
		ChangedAt: now,
	}

	t.UID = text(todo, ical.PropUID)
	if t.UID == "" {
		t.UID = uuid.NewString()
	}
	t.Text = text(todo, ical.PropSummary)
	t.Notes = text(todo, ical.PropDescription)
	t.Parent = text(todo, ical.PropRelatedTo)
	t.Color = xText(todo, PropErrandsColor).OrEmpty()

	if p := todo.Props.Get(ical.PropDateTimeStart); p != nil {
		t.StartDate = p.Value
	}
	if p := todo.Props.Get(ical.PropDue); p != nil {
		t.DueDate = p.Value
	}
	if p := todo.Props.Get(ical.PropRecurrenceRule); p != nil {
		t.RRule = p.Value
	}

	t.Priority = clamp(intValue(todo, ical.PropPriority), 0, 9)
	t.PercentComplete = clamp(intValue(todo, ical.PropPercentComplete), 0, 100)
	t.Completed = strings.EqualFold(text(todo, ical.PropStatus), statusCompleted)

	if ts := LastModified(todo); !ts.IsZero() {
		t.ChangedAt = formatTimestamp(ts)
	}
	if p := todo.Props.Get(ical.PropCreated); p != nil {
		if ts, err := parseTimestamp(p.Value); err == nil {
			t.CreatedAt = formatTimestamp(ts)
		}
	}
	for _, p := range todo.Props[ical.PropCategories] {
		t.Tags = append(t.Tags, splitList(p.Value)...)
	}

	if xBool(todo, PropErrandsDeleted) {
		t.State = Deleted
	}
	t.Expanded = xBool(todo, PropErrandsExpanded)
	t.Notified = xBool(todo, PropErrandsNotified)
	t.Toolbar = xBool(todo, PropErrandsToolbar)
	t.Trash = xBool(todo, PropErrandsTrash)
	return t
}

// LastModified returns when a VTODO last changed: its LAST-MODIFIED, else
// its DTSTAMP, else the zero time.
func LastModified(todo *ical.Component) time.Time {
	for _, name := range []string{ical.PropLastModified, ical.PropDateTimeStamp} {
		if p := todo.Props.Get(name); p != nil {
			if ts, err := parseTimestamp(p.Value); err == nil {
				return ts
			}
		}
	}
	return time.Time{}
}

func (m *Mapper) ListToCalendar(l TaskListData, tasks []TaskData) *ical.Calendar {
	cal := m.newCalendar()
	setXText(cal.Component, PropCalendarName, l.Name)
	setXText(cal.Component, PropCalendarID, l.UID)
	if l.Color != "" {
		setXText(cal.Component, m.ColorProperty, l.Color)
	}
	setXBool(cal.Component, PropErrandsDeleted, l.State == Deleted)
	setXBool(cal.Component, PropErrandsSynced, l.Synced)
	setXBool(cal.Component, PropErrandsShowCompleted, l.ShowCompleted)

	for _, t := range tasks {
		if t.ListUID == l.UID {
			cal.Children = append(cal.Children, m.TaskToVTODO(t))
		}
	}
	return cal
}

func (m *Mapper) ListFromCalendar(cal *ical.Calendar, uid string) (TaskListData, []TaskData) {
	comp := cal.Component
	l := TaskListData{
		Name: xText(comp, PropCalendarName).OrEmpty(),
		UID:  xText(comp, PropCalendarID).OrElse(uid),
	}
	if l.UID == "" {
		l.UID = uid
	}
	for _, name := range []string{m.ColorProperty, PropErrandsColor, PropAppleColor} {
		if color, ok := xText(comp, name).Get(); ok && color != "" {
			l.Color = color
			break
		}
	}
	if xBool(comp, PropErrandsDeleted) {
		l.State = Deleted
	}
	l.Synced = xBool(comp, PropErrandsSynced)
	l.ShowCompleted = xBool(comp, PropErrandsShowCompleted)
	return l, m.tasksFrom(cal, l.UID)
}

// Decode parses iCalendar text, tolerating bare LF line endings.
func Decode(ics string) (*ical.Calendar, error) {
	if !strings.Contains(ics, "\r\n") {
		ics = strings.ReplaceAll(ics, "\n", "\r\n")
	}
	if !strings.HasSuffix(ics, "\r\n") {
		ics += "\r\n"
	}
	cal, err := ical.NewDecoder(strings.NewReader(ics)).Decode()
	if err != nil {
		return nil, fmt.Errorf("failed to decode calendar: %w", err)
	}
	return cal, nil
}

// bareName stands in for VCALENDAR while encoding a calendar without
// components, which go-ical refuses to write.
const bareName = "X-ERRANDS-BARE"

// Encode serializes cal. A calendar without components, such as the file of
// an empty list, is written as its properties alone.
func Encode(cal *ical.Calendar) ([]byte, error) {
	if len(cal.Children) > 0 {
		return encode(cal)
	}
	bare := &ical.Calendar{Component: &ical.Component{Name: bareName, Props: cal.Props}}
	data, err := encode(bare)
	if err != nil {
		return nil, err
	}
	body := bytes.TrimPrefix(data, []byte("BEGIN:"+bareName+"\r\n"))
	body = bytes.TrimSuffix(body, []byte("END:"+bareName+"\r\n"))

	var buf bytes.Buffer
	buf.WriteString("BEGIN:" + ical.CompCalendar + "\r\n")
	buf.Write(body)
	buf.WriteString("END:" + ical.CompCalendar + "\r\n")
	return buf.Bytes(), nil
}

func encode(cal *ical.Calendar) ([]byte, error) {
	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("failed to encode calendar: %w", err)
	}
	return buf.Bytes(), nil
}

// cleanText turns carriage returns into newlines. go-ical cannot encode a
// text value holding CR.
func cleanText(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "\r\n", "\n"), "\r", "\n")
}

func text(comp *ical.Component, name string) string {
	v, err := comp.Props.Text(name)
	if err != nil {
		return ""
	}
	return v
}

func intValue(comp *ical.Component, name string) int {
	p := comp.Props.Get(name)
	if p == nil {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(p.Value))
	if err != nil {
		return 0
	}
	return n
}

func setInt(comp *ical.Component, name string, v int) {
	prop := ical.NewProp(name)
	prop.Value = strconv.Itoa(v)
	comp.Props.Set(prop)
}

// setDateValue writes an iCalendar DATE (8 digits) or DATE-TIME value.
// RFC 3339 and ISO dates are converted first.
func setDateValue(comp *ical.Component, name, value string) {
	value = normalizeDate(value)
	prop := ical.NewProp(name)
	prop.Value = value
	if len(value) == len("20060102") {
		prop.Params.Set(ical.ParamValue, string(ical.ValueDate))
	}
	comp.Props.Set(prop)
}

// normalizeDate converts RFC 3339 or ISO-8601 values into the iCalendar
// basic format. Unknown formats are kept as they are.
func normalizeDate(value string) string {
	value = strings.TrimSpace(value)
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t.Format("20060102")
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC().Format("20060102T150405Z")
	}
	if t, err := time.Parse("2006-01-02T15:04:05", value); err == nil {
		return t.Format("20060102T150405")
	}
	return value
}

func timestampOr(s string, fallback time.Time) time.Time {
	if ts, err := parseTimestamp(s); err == nil {
		return ts
	}
	return fallback.UTC()
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
