package xml

import "github.com/beevik/etree"

// Namespace definitions for CalDAV and WebDAV
const (
	// DAV is the WebDAV namespace
	DAV = "DAV:"
	// CalDAV is the CalDAV namespace
	CalDAV = "urn:ietf:params:xml:ns:caldav"
	// CalendarServer is the Calendar Server namespace (used by some implementations)
	CalendarServer = "http://calendarserver.org/ns/"
	// AppleICal carries calendar-color
	AppleICal = "http://apple.com/ns/ical/"
)

// Prefixes used in every body this package writes.
const (
	PrefixDAV            = "d"
	PrefixCalDAV         = "c"
	PrefixCalendarServer = "cs"
	PrefixAppleICal      = "ic"
)

var prefixNamespaces = map[string]string{
	PrefixDAV:            DAV,
	PrefixCalDAV:         CalDAV,
	PrefixCalendarServer: CalendarServer,
	PrefixAppleICal:      AppleICal,
}

// AddNamespaces declares the given prefixes on the document root. With no
// arguments every known prefix is declared.
func AddNamespaces(doc *etree.Document, prefixes ...string) {
	root := doc.Root()
	if root == nil {
		return
	}
	if len(prefixes) == 0 {
		prefixes = []string{PrefixDAV, PrefixCalDAV, PrefixCalendarServer, PrefixAppleICal}
	}
	for _, prefix := range prefixes {
		if ns, ok := prefixNamespaces[prefix]; ok {
			root.CreateAttr("xmlns:"+prefix, ns)
		}
	}
}

// newDocument starts a body with an XML declaration and a root element.
func newDocument(rootTag string, prefixes ...string) (*etree.Document, *etree.Element) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)
	root := doc.CreateElement(rootTag)
	AddNamespaces(doc, prefixes...)
	return doc, root
}

func encode(doc *etree.Document) []byte {
	b, err := doc.WriteToBytes()
	if err != nil {
		return nil
	}
	return b
}
