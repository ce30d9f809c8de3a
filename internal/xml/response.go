package xml

import "github.com/beevik/etree"

const statusOK = "HTTP/1.1 200 OK"

// MultistatusResponse is a multistatus body under construction.
type MultistatusResponse struct {
	Responses []Response
}

// Response is a single response entry; every prop shares one propstat.
type Response struct {
	Href   string
	Props  []*etree.Element
	Status string
}

// Add appends a response for href carrying props.
func (m *MultistatusResponse) Add(href string, props ...*etree.Element) {
	m.Responses = append(m.Responses, Response{Href: href, Props: props})
}

// ToXML converts a MultistatusResponse to an XML document
func (m *MultistatusResponse) ToXML() *etree.Document {
	doc, root := newDocument("d:multistatus")
	for _, resp := range m.Responses {
		response := root.CreateElement("d:response")
		response.CreateElement("d:href").SetText(resp.Href)

		propstat := response.CreateElement("d:propstat")
		prop := propstat.CreateElement("d:prop")
		for _, p := range resp.Props {
			prop.AddChild(p)
		}
		status := resp.Status
		if status == "" {
			status = statusOK
		}
		propstat.CreateElement("d:status").SetText(status)
	}
	return doc
}

// Bytes serializes the response body.
func (m *MultistatusResponse) Bytes() []byte {
	return encode(m.ToXML())
}

// TextProp builds <prefix:name>text</prefix:name>.
func TextProp(p Prop, text string) *etree.Element {
	elem := etree.NewElement(p.tag())
	elem.SetText(text)
	return elem
}

// HrefProp builds <prefix:name><d:href>href</d:href></prefix:name>.
func HrefProp(p Prop, href string) *etree.Element {
	elem := etree.NewElement(p.tag())
	elem.CreateElement("d:href").SetText(href)
	return elem
}

// ResourceTypeProp builds a resourcetype for a plain collection or a calendar.
func ResourceTypeProp(calendar, deleted bool) *etree.Element {
	elem := etree.NewElement(PropResourceType.tag())
	elem.CreateElement("d:collection")
	if calendar {
		elem.CreateElement("c:calendar")
	}
	if deleted {
		elem.CreateElement("cs:deleted-calendar")
	}
	return elem
}

// ComponentSetProp builds supported-calendar-component-set.
func ComponentSetProp(components ...string) *etree.Element {
	return componentSet(components)
}
