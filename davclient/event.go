package davclient

import (
	"context"

	"github.com/emersion/go-ical"
)

// Event is one calendar object resource. Data holds the whole decoded
// VCALENDAR, so extension properties survive a pull/push round trip.
type Event struct {
	calendar *Calendar
	Data     *ical.Calendar
	URL      string
	state    State
}

func (ev *Event) Calendar() *Calendar { return ev.calendar }
func (ev *Event) State() State        { return ev.state }

func (ev *Event) UID() string {
	comp := ev.Component()
	if comp == nil {
		return ""
	}
	uid, _ := comp.Props.Text(ical.PropUID)
	return uid
}

// Component returns the first VTODO, VEVENT or VJOURNAL, or nil.
func (ev *Event) Component() *ical.Component {
	return firstComponent(ev.Data)
}

// Pull replaces Data with the server copy.
func (ev *Event) Pull(ctx context.Context) error {
	body, err := ev.calendar.client.Get(ctx, ev.URL)
	if err != nil {
		return err
	}
	data, err := decodeCalendar(string(body))
	if err != nil {
		return newError("pull event", ev.URL, KindParse, "failed to decode calendar data: %w", err)
	}
	ev.Data = data
	return nil
}

// Push uploads Data.
func (ev *Event) Push(ctx context.Context) error {
	body, err := encodeCalendar(ev.Data)
	if err != nil {
		return newError("push event", ev.URL, KindInvalid, "failed to encode calendar data: %w", err)
	}
	return ev.calendar.client.Put(ctx, ev.URL, body)
}

// Delete removes the object on the server and marks the event deleted.
func (ev *Event) Delete(ctx context.Context) error {
	if err := ev.calendar.client.Delete(ctx, ev.URL); err != nil {
		return err
	}
	ev.state = Deleted
	return nil
}
