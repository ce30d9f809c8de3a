package tasks

import (
	"strings"

	"github.com/emersion/go-ical"
	"github.com/samber/mo"
)

// Extension properties private to this application.
const (
	PropErrandsColor         = "X-ERRANDS-COLOR"
	PropErrandsDeleted       = "X-ERRANDS-DELETED"
	PropErrandsSynced        = "X-ERRANDS-SYNCED"
	PropErrandsShowCompleted = "X-ERRANDS-SHOW-COMPLETED"
	PropErrandsExpanded      = "X-ERRANDS-EXPANDED"
	PropErrandsNotified      = "X-ERRANDS-NOTIFIED"
	PropErrandsToolbar       = "X-ERRANDS-TOOLBAR-SHOWN"
	PropErrandsTrash         = "X-ERRANDS-TRASH"
	PropErrandsTags          = "X-ERRANDS-TAGS"

	PropCalendarName = "X-WR-CALNAME"
	PropCalendarID   = "X-WR-RELCALID"
	PropAppleColor   = "X-APPLE-CALENDAR-COLOR"
	DefaultColorProp = PropAppleColor
)

var textEscaper = strings.NewReplacer("\r\n", `\n`, "\r", `\n`, `\`, `\\`, "\n", `\n`, ";", `\;`, ",", `\,`)

var textUnescaper = strings.NewReplacer(`\\`, `\`, `\n`, "\n", `\N`, "\n", `\;`, ";", `\,`, ",")

// xText reads an extension property as text.
func xText(comp *ical.Component, name string) mo.Option[string] {
	prop := comp.Props.Get(name)
	if prop == nil {
		return mo.None[string]()
	}
	return mo.Some(textUnescaper.Replace(prop.Value))
}

// setXText writes an extension property without a VALUE parameter.
func setXText(comp *ical.Component, name, value string) {
	prop := ical.NewProp(name)
	prop.Value = textEscaper.Replace(value)
	comp.Props.Set(prop)
}

// xBool reads a "0"/"1" extension property. When the property is absent
// the default "0" is written back and false returned.
func xBool(comp *ical.Component, name string) bool {
	v, ok := xText(comp, name).Get()
	if !ok {
		setXBool(comp, name, false)
		return false
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func setXBool(comp *ical.Component, name string, v bool) {
	if v {
		setXText(comp, name, "1")
		return
	}
	setXText(comp, name, "0")
}

// splitList splits a comma-separated text value, honoring escaped commas.
func splitList(value string) []string {
	var out []string
	var cur strings.Builder
	escaped := false
	for _, r := range value {
		switch {
		case escaped:
			cur.WriteRune('\\')
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == ',':
			out = append(out, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	out = append(out, cur.String())

	items := out[:0]
	for _, item := range out {
		item = strings.TrimSpace(textUnescaper.Replace(item))
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}

func joinList(items []string) string {
	escaped := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			escaped = append(escaped, textEscaper.Replace(item))
		}
	}
	return strings.Join(escaped, ",")
}
