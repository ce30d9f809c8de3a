package xml

import "github.com/beevik/etree"

// Prop names a property in a request body by prefix and local name.
type Prop struct {
	Prefix string
	Name   string
}

func (p Prop) tag() string {
	return p.Prefix + ":" + p.Name
}

// Properties requested by the client.
var (
	PropResourceType         = Prop{PrefixDAV, "resourcetype"}
	PropDisplayName          = Prop{PrefixDAV, "displayname"}
	PropGetETag              = Prop{PrefixDAV, "getetag"}
	PropCurrentUserPrincipal = Prop{PrefixDAV, "current-user-principal"}
	PropCalendarHomeSet      = Prop{PrefixCalDAV, "calendar-home-set"}
	PropSupportedComponents  = Prop{PrefixCalDAV, "supported-calendar-component-set"}
	PropCalendarData         = Prop{PrefixCalDAV, "calendar-data"}
	PropCalendarColor        = Prop{PrefixAppleICal, "calendar-color"}
	PropGetCTag              = Prop{PrefixCalendarServer, "getctag"}
)

// PropfindBody builds a PROPFIND request asking for props.
func PropfindBody(props ...Prop) []byte {
	doc, root := newDocument("d:propfind")
	prop := root.CreateElement("d:prop")
	for _, p := range props {
		prop.CreateElement(p.tag())
	}
	return encode(doc)
}

// CalendarQueryBody builds a calendar-query REPORT selecting every object of
// the given component types. Several components are OR-ed with test="anyof".
func CalendarQueryBody(components ...string) []byte {
	doc, root := newDocument("c:calendar-query", PrefixDAV, PrefixCalDAV)

	prop := root.CreateElement("d:prop")
	prop.CreateElement(PropGetETag.tag())
	prop.CreateElement(PropCalendarData.tag())

	filter := root.CreateElement("c:filter")
	vcalendar := filter.CreateElement("c:comp-filter")
	vcalendar.CreateAttr("name", "VCALENDAR")
	if len(components) > 1 {
		vcalendar.CreateAttr("test", "anyof")
	}
	for _, comp := range components {
		vcalendar.CreateElement("c:comp-filter").CreateAttr("name", comp)
	}
	return encode(doc)
}

// MkcalendarBody builds the MKCALENDAR body declaring the display name,
// supported component set and color of a new collection.
func MkcalendarBody(name, color string, components ...string) []byte {
	doc, root := newDocument("c:mkcalendar", PrefixDAV, PrefixCalDAV, PrefixAppleICal)
	prop := root.CreateElement("d:set").CreateElement("d:prop")

	prop.CreateElement(PropDisplayName.tag()).SetText(name)
	prop.AddChild(componentSet(components))
	if color != "" {
		prop.CreateElement(PropCalendarColor.tag()).SetText(color)
	}
	return encode(doc)
}

// ProppatchBody builds a PROPPATCH setting display name and color. Empty
// values are left out.
func ProppatchBody(name, color string) []byte {
	doc, root := newDocument("d:propertyupdate", PrefixDAV, PrefixAppleICal)
	prop := root.CreateElement("d:set").CreateElement("d:prop")
	if name != "" {
		prop.CreateElement(PropDisplayName.tag()).SetText(name)
	}
	if color != "" {
		prop.CreateElement(PropCalendarColor.tag()).SetText(color)
	}
	return encode(doc)
}

func componentSet(components []string) *etree.Element {
	set := etree.NewElement(PropSupportedComponents.tag())
	for _, comp := range components {
		set.CreateElement("c:comp").CreateAttr("name", comp)
	}
	return set
}
