package davclient

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/errandsync/errandsync/internal/list"
	"github.com/errandsync/errandsync/internal/xml"
	"github.com/emersion/go-ical"
)

// Calendar is a remote calendar collection owned by a Client.
type Calendar struct {
	client *Client

	Name       string
	Color      string
	URL        string
	UUID       string
	Components ComponentSet

	state  State
	events *list.List[*Event]
}

func (cal *Calendar) Client() *Client { return cal.client }
func (cal *Calendar) State() State    { return cal.state }

// PullEvents replaces the event list with every object of the given
// component types. A zero set means the calendar's own component set.
func (cal *Calendar) PullEvents(ctx context.Context, set ComponentSet) error {
	const op = "pull events"
	if set == 0 {
		set = cal.Components
	}
	logger := cal.client.logger
	logger.Debug("pulling events", "url", cal.URL, "components", set.String())

	data, err := cal.client.Report(ctx, cal.URL, xml.CalendarQueryBody(set.Names()...))
	if err != nil {
		return wrapErr(op, cal.URL, err)
	}
	responses, err := parseMultistatus(op, cal.URL, data)
	if err != nil {
		return err
	}

	events := list.New[*Event](nil)
	for i, resp := range responses {
		href, ok := resp.FindPath("href").Get()
		if !ok || href.Text == "" {
			return newError(op, cal.URL, KindMalformed, "response %d has no href", i)
		}
		target, err := resolveHref(cal.URL, href.Text)
		if err != nil {
			return newError(op, cal.URL, KindMalformed, "bad href %q: %w", href.Text, err)
		}
		if i == 0 && sameResource(target, cal.URL) {
			continue
		}

		calData, ok := resp.Find("calendar-data").Get()
		if !ok || calData.Text == "" {
			return newError(op, target, KindMalformed, "missing calendar-data")
		}
		decoded, err := decodeCalendar(calData.Text)
		if err != nil {
			return newError(op, target, KindParse, "failed to decode calendar data: %w", err)
		}
		events.Append(&Event{calendar: cal, Data: decoded, URL: target})
	}

	cal.events = events
	logger.Debug("pulled events", "url", cal.URL, "count", events.Len())
	return nil
}

// CreateEvent uploads data as a new object named after its UID and then
// re-fetches it so server-side changes are visible.
func (cal *Calendar) CreateEvent(ctx context.Context, data *ical.Calendar) (*Event, error) {
	const op = "create event"
	comp := firstComponent(data)
	if comp == nil {
		return nil, newError(op, cal.URL, KindInvalid, "no VTODO, VEVENT or VJOURNAL component")
	}
	uid, _ := comp.Props.Text(ical.PropUID)
	if uid == "" {
		return nil, newError(op, cal.URL, KindInvalid, "component has no UID")
	}

	ev := &Event{
		calendar: cal,
		Data:     data,
		URL:      cal.URL + url.PathEscape(uid) + ".ics",
	}
	if err := ev.Push(ctx); err != nil {
		return nil, err
	}
	if err := ev.Pull(ctx); err != nil {
		return nil, err
	}
	cal.events.Append(ev)
	return ev, nil
}

// Delete removes the collection on the server and marks it deleted. It
// stays in the client's list.
func (cal *Calendar) Delete(ctx context.Context) error {
	if err := cal.client.Delete(ctx, cal.URL); err != nil {
		return err
	}
	cal.state = Deleted
	return nil
}

// Update renames or recolors the calendar. Empty arguments are unchanged.
func (cal *Calendar) Update(ctx context.Context, name, color string) error {
	if name == "" && color == "" {
		return nil
	}
	if err := cal.client.Proppatch(ctx, cal.URL, name, color); err != nil {
		return err
	}
	if name != "" {
		cal.Name = name
	}
	if color != "" {
		cal.Color = color
	}
	return nil
}

// Events returns every event from the last pull, deleted ones included.
func (cal *Calendar) Events() []*Event {
	return cal.events.Items()
}

func (cal *Calendar) ActiveEvents() []*Event {
	return cal.events.Filter(func(ev *Event) bool { return ev.state == Active })
}

func (cal *Calendar) EventByUID(uid string) (*Event, bool) {
	i := cal.events.Index(func(ev *Event) bool { return ev.UID() == uid })
	return cal.events.Get(i)
}

func decodeCalendar(text string) (*ical.Calendar, error) {
	// calendar-data often arrives with bare LF line endings.
	if !strings.Contains(text, "\r\n") {
		text = strings.ReplaceAll(text, "\n", "\r\n")
	}
	if !strings.HasSuffix(text, "\r\n") {
		text += "\r\n"
	}
	return ical.NewDecoder(strings.NewReader(text)).Decode()
}

func encodeCalendar(data *ical.Calendar) ([]byte, error) {
	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func firstComponent(data *ical.Calendar) *ical.Component {
	if data == nil || data.Component == nil {
		return nil
	}
	for _, child := range data.Children {
		switch child.Name {
		case ical.CompToDo, ical.CompEvent, ical.CompJournal:
			return child
		}
	}
	return nil
}
