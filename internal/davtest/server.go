// Package davtest runs an in-memory CalDAV server for tests.
package davtest

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/beevik/etree"
	"github.com/errandsync/errandsync/internal/xml"
	"github.com/errandsync/errandsync/internal/xmltree"
	"github.com/emersion/go-ical"
)

const (
	headerContentType = "Content-Type"
	headerETag        = "ETag"

	mimeTypeCalendar = "text/calendar; charset=utf-8"
	mimeTypeXML      = "application/xml; charset=utf-8"

	collectionPath = "/dav/"
)

// Server is a CalDAV server for one user backed by maps. Discovery follows
// /.well-known/caldav -> /dav/ -> /principals/<user>/ -> /calendars/<user>/.
type Server struct {
	Username string
	Password string

	srv      *httptest.Server
	store    *store
	handlers map[string]http.HandlerFunc
	logger   *slog.Logger

	mu       sync.Mutex
	requests []string
	failures map[string]int
}

// New starts a server. Callers must Close it.
func New(username, password string) *Server {
	s := &Server{
		Username: username,
		Password: password,
		store:    newStore(),
		handlers: make(map[string]http.HandlerFunc),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		failures: make(map[string]int),
	}

	s.handlers["PROPFIND"] = s.handlePropfind
	s.handlers["REPORT"] = s.handleReport
	s.handlers["MKCALENDAR"] = s.handleMkcalendar
	s.handlers["PROPPATCH"] = s.handleProppatch
	s.handlers[http.MethodGet] = s.handleGet
	s.handlers[http.MethodPut] = s.handlePut
	s.handlers[http.MethodDelete] = s.handleDelete

	s.srv = httptest.NewServer(s)
	return s
}

func (s *Server) URL() string { return s.srv.URL }

func (s *Server) Close() { s.srv.Close() }

// HomePath is the calendar-home-set path.
func (s *Server) HomePath() string { return "/calendars/" + s.Username + "/" }

func (s *Server) principalPath() string { return "/principals/" + s.Username + "/" }

// AddCalendar creates a calendar directly in the store.
func (s *Server) AddCalendar(id, name, color string, components ...string) error {
	return s.store.createCalendar(Calendar{ID: id, Name: name, Color: color, Components: components})
}

// MarkDeleted flags a calendar as a deleted-calendar (trash) collection.
func (s *Server) MarkDeleted(id string) error {
	return s.store.updateCalendar(id, func(c *Calendar) { c.Deleted = true })
}

// PutObject stores an object directly.
func (s *Server) PutObject(calID, name string, data []byte) error {
	_, err := s.store.putObject(calID, name, data)
	return err
}

func (s *Server) Object(calID, name string) ([]byte, bool) {
	obj, ok := s.store.object(calID, name)
	return obj.Data, ok
}

func (s *Server) Objects(calID string) []Object { return s.store.listObjects(calID) }

func (s *Server) Calendars() []Calendar { return s.store.listCalendars() }

func (s *Server) Calendar(id string) (Calendar, bool) { return s.store.calendar(id) }

// Fail makes every request with method on path answer status.
func (s *Server) Fail(method, path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+" "+path] = status
}

// Requests lists "METHOD path" for every request served.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// ServeHTTP implements http.Handler interface
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, r.Method+" "+r.URL.Path)
	failStatus, fail := s.failures[r.Method+" "+r.URL.Path]
	s.mu.Unlock()

	if r.URL.Path == "/.well-known/caldav" {
		http.Redirect(w, r, collectionPath, http.StatusMovedPermanently)
		return
	}
	if !s.checkAuth(w, r) {
		return
	}
	if fail {
		http.Error(w, http.StatusText(failStatus), failStatus)
		return
	}

	handler, ok := s.handlers[r.Method]
	if !ok {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	handler(w, r)
}

func (s *Server) checkAuth(w http.ResponseWriter, r *http.Request) bool {
	user, pass, ok := r.BasicAuth()
	if !ok || user != s.Username || pass != s.Password {
		s.logger.Debug("authentication failed", "user", user)
		w.Header().Set("WWW-Authenticate", `Basic realm="davtest"`)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return false
	}
	return true
}

type resourceKind int

const (
	kindUnknown resourceKind = iota
	kindCollection
	kindPrincipal
	kindHome
	kindCalendar
	kindObject
)

type resource struct {
	kind   resourceKind
	calID  string
	object string
}

func (s *Server) resolve(path string) resource {
	switch path {
	case collectionPath, "/":
		return resource{kind: kindCollection}
	case s.principalPath():
		return resource{kind: kindPrincipal}
	case s.HomePath():
		return resource{kind: kindHome}
	}
	rest, ok := strings.CutPrefix(path, s.HomePath())
	if !ok || rest == "" {
		return resource{}
	}
	calID, object, _ := strings.Cut(rest, "/")
	if object == "" {
		return resource{kind: kindCalendar, calID: calID}
	}
	if strings.Contains(object, "/") {
		return resource{}
	}
	return resource{kind: kindObject, calID: calID, object: object}
}

func (s *Server) calendarHref(id string) string { return s.HomePath() + id + "/" }

// requestedProps returns the local names under <prop> in a PROPFIND body.
// An empty or allprop body yields nil, meaning every property.
func requestedProps(body []byte) (map[string]bool, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	root, err := xmltree.Parse(string(body))
	if err != nil {
		return nil, err
	}
	prop, ok := root.FindPath("propfind/prop").Get()
	if !ok {
		return nil, nil
	}
	names := make(map[string]bool)
	for _, child := range prop.Children {
		names[child.LocalName()] = true
	}
	return names, nil
}

func filterProps(props []*etree.Element, want map[string]bool) []*etree.Element {
	if want == nil {
		return props
	}
	var out []*etree.Element
	for _, p := range props {
		if want[p.Tag] {
			out = append(out, p)
		}
	}
	return out
}

func (s *Server) calendarProps(cal Calendar) []*etree.Element {
	props := []*etree.Element{
		xml.ResourceTypeProp(true, cal.Deleted),
		xml.TextProp(xml.PropDisplayName, cal.Name),
		xml.ComponentSetProp(cal.Components...),
	}
	if cal.Color != "" {
		props = append(props, xml.TextProp(xml.PropCalendarColor, cal.Color))
	}
	return props
}

func writeMultistatus(w http.ResponseWriter, ms *xml.MultistatusResponse) {
	w.Header().Set(headerContentType, mimeTypeXML)
	w.WriteHeader(http.StatusMultiStatus)
	_, _ = w.Write(ms.Bytes())
}

func (s *Server) handlePropfind(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	want, err := requestedProps(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	depth := r.Header.Get("Depth")

	var ms xml.MultistatusResponse
	res := s.resolve(r.URL.Path)
	switch res.kind {
	case kindCollection:
		ms.Add(r.URL.Path, filterProps([]*etree.Element{
			xml.ResourceTypeProp(false, false),
			xml.HrefProp(xml.PropCurrentUserPrincipal, s.principalPath()),
		}, want)...)
	case kindPrincipal:
		ms.Add(r.URL.Path, filterProps([]*etree.Element{
			xml.ResourceTypeProp(false, false),
			xml.HrefProp(xml.PropCurrentUserPrincipal, s.principalPath()),
			xml.HrefProp(xml.PropCalendarHomeSet, s.HomePath()),
		}, want)...)
	case kindHome:
		ms.Add(r.URL.Path, filterProps([]*etree.Element{xml.ResourceTypeProp(false, false)}, want)...)
		if depth != "0" {
			for _, cal := range s.store.listCalendars() {
				ms.Add(s.calendarHref(cal.ID), filterProps(s.calendarProps(cal), want)...)
			}
		}
	case kindCalendar:
		cal, ok := s.store.calendar(res.calID)
		if !ok {
			http.Error(w, "Calendar not found", http.StatusNotFound)
			return
		}
		ms.Add(r.URL.Path, filterProps(s.calendarProps(cal), want)...)
		if depth != "0" {
			for _, obj := range s.store.listObjects(cal.ID) {
				ms.Add(r.URL.Path+obj.Name, filterProps([]*etree.Element{
					xml.TextProp(xml.PropGetETag, obj.ETag),
				}, want)...)
			}
		}
	default:
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	writeMultistatus(w, &ms)
}

// queryComponents returns the component names nested in the VCALENDAR
// comp-filter of a calendar-query. Nil means no filtering.
func queryComponents(body []byte) (map[string]bool, error) {
	root, err := xmltree.Parse(string(body))
	if err != nil {
		return nil, err
	}
	filter, ok := root.Find("filter").Get()
	if !ok {
		return nil, nil
	}
	names := make(map[string]bool)
	for _, cf := range filter.FindAll("comp-filter") {
		if name, ok := cf.Attr("name").Get(); ok && name != ical.CompCalendar {
			names[name] = true
		}
	}
	if len(names) == 0 {
		return nil, nil
	}
	return names, nil
}

func matchesComponents(data []byte, want map[string]bool) bool {
	if want == nil {
		return true
	}
	cal, err := ical.NewDecoder(bytes.NewReader(data)).Decode()
	if err != nil {
		return false
	}
	for _, child := range cal.Children {
		if want[child.Name] {
			return true
		}
	}
	return false
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	res := s.resolve(r.URL.Path)
	if res.kind != kindCalendar {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	if _, ok := s.store.calendar(res.calID); !ok {
		http.Error(w, "Calendar not found", http.StatusNotFound)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	want, err := queryComponents(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var ms xml.MultistatusResponse
	ms.Add(r.URL.Path)
	for _, obj := range s.store.listObjects(res.calID) {
		if !matchesComponents(obj.Data, want) {
			continue
		}
		ms.Add(r.URL.Path+obj.Name,
			xml.TextProp(xml.PropGetETag, obj.ETag),
			xml.TextProp(xml.PropCalendarData, string(obj.Data)),
		)
	}
	writeMultistatus(w, &ms)
}

// collectionSettings reads displayname, color and component set from a
// MKCALENDAR or PROPPATCH body.
func collectionSettings(body []byte) (name, color *string, components []string, err error) {
	root, err := xmltree.Parse(string(body))
	if err != nil {
		return nil, nil, nil, err
	}
	var prop *xmltree.Node
	for _, n := range root.FindAll("prop") {
		if n.LocalName() == "prop" {
			prop = n
			break
		}
	}
	if prop == nil {
		return nil, nil, nil, errors.New("missing prop")
	}
	for _, child := range prop.Children {
		text := child.Text
		switch child.LocalName() {
		case "displayname":
			name = &text
		case "calendar-color":
			color = &text
		case "supported-calendar-component-set":
			for _, comp := range child.Children {
				if n, ok := comp.Attr("name").Get(); ok {
					components = append(components, n)
				}
			}
		}
	}
	return name, color, components, nil
}

func (s *Server) handleMkcalendar(w http.ResponseWriter, r *http.Request) {
	res := s.resolve(r.URL.Path)
	if res.kind != kindCalendar {
		http.Error(w, "Resource type not supported for MKCALENDAR", http.StatusForbidden)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	cal := Calendar{ID: res.calID, Components: []string{ical.CompEvent, ical.CompToDo}}
	if len(bytes.TrimSpace(body)) > 0 {
		name, color, components, err := collectionSettings(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if name != nil {
			cal.Name = *name
		}
		if color != nil {
			cal.Color = *color
		}
		if len(components) > 0 {
			cal.Components = components
		}
	}

	if err := s.store.createCalendar(cal); err != nil {
		var e *Error
		if errors.As(err, &e) && e.Type == ErrAlreadyExists {
			http.Error(w, "Calendar already exists", http.StatusMethodNotAllowed)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.logger.Debug("calendar created", "id", cal.ID, "name", cal.Name)
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleProppatch(w http.ResponseWriter, r *http.Request) {
	res := s.resolve(r.URL.Path)
	if res.kind != kindCalendar {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	name, color, _, err := collectionSettings(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.store.updateCalendar(res.calID, func(c *Calendar) {
		if name != nil {
			c.Name = *name
		}
		if color != nil {
			c.Color = *color
		}
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	var ms xml.MultistatusResponse
	var props []*etree.Element
	if name != nil {
		props = append(props, etree.NewElement("d:displayname"))
	}
	if color != nil {
		props = append(props, etree.NewElement("ic:calendar-color"))
	}
	ms.Add(r.URL.Path, props...)
	writeMultistatus(w, &ms)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	res := s.resolve(r.URL.Path)
	switch res.kind {
	case kindObject:
		obj, ok := s.store.object(res.calID, res.object)
		if !ok {
			http.Error(w, "Object not found", http.StatusNotFound)
			return
		}
		w.Header().Set(headerContentType, mimeTypeCalendar)
		w.Header().Set(headerETag, obj.ETag)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(obj.Data)
	case kindUnknown:
		http.Error(w, "Not found", http.StatusNotFound)
	default:
		w.Header().Set(headerContentType, "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "davtest CalDAV server\n")
	}
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	res := s.resolve(r.URL.Path)
	if res.kind != kindObject {
		http.Error(w, "Resource type not supported for PUT", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	if _, err := ical.NewDecoder(bytes.NewReader(body)).Decode(); err != nil {
		http.Error(w, "Invalid calendar data: "+err.Error(), http.StatusBadRequest)
		return
	}

	created, err := s.store.putObject(res.calID, res.object, body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.Header().Set(headerETag, generateETag(body))
	if created {
		w.WriteHeader(http.StatusCreated)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	res := s.resolve(r.URL.Path)
	var err error
	switch res.kind {
	case kindCalendar:
		err = s.store.deleteCalendar(res.calID)
	case kindObject:
		err = s.store.deleteObject(res.calID, res.object)
	default:
		http.Error(w, "Resource type not supported for DELETE", http.StatusMethodNotAllowed)
		return
	}
	if err != nil {
		var e *Error
		if errors.As(err, &e) && e.Type == ErrNotFound {
			http.Error(w, e.Message, http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
