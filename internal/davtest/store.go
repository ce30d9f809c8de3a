package davtest

import (
	"crypto/sha1"
	"encoding/hex"
	"sort"
	"sync"
)

// ErrorType classifies store failures.
type ErrorType int

const (
	ErrNotFound ErrorType = iota + 1
	ErrAlreadyExists
)

type Error struct {
	Type    ErrorType
	Message string
}

func (e *Error) Error() string { return e.Message }

// Calendar is a stored calendar collection.
type Calendar struct {
	ID         string
	Name       string
	Color      string
	Components []string
	Deleted    bool
}

// Object is a stored calendar object resource.
type Object struct {
	Name string
	Data []byte
	ETag string
}

// store keeps calendars and their objects in maps guarded by one mutex.
type store struct {
	mu        sync.RWMutex
	calendars map[string]*Calendar
	objects   map[string]map[string]*Object // calendar id -> object name
}

func newStore() *store {
	return &store{
		calendars: make(map[string]*Calendar),
		objects:   make(map[string]map[string]*Object),
	}
}

func generateETag(data []byte) string {
	hash := sha1.Sum(data)
	return `"` + hex.EncodeToString(hash[:]) + `"`
}

func (s *store) createCalendar(cal Calendar) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.calendars[cal.ID]; exists {
		return &Error{Type: ErrAlreadyExists, Message: "calendar already exists"}
	}
	s.calendars[cal.ID] = &cal
	s.objects[cal.ID] = make(map[string]*Object)
	return nil
}

func (s *store) updateCalendar(id string, update func(*Calendar)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cal, ok := s.calendars[id]
	if !ok {
		return &Error{Type: ErrNotFound, Message: "calendar not found"}
	}
	update(cal)
	return nil
}

func (s *store) deleteCalendar(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.calendars[id]; !ok {
		return &Error{Type: ErrNotFound, Message: "calendar not found"}
	}
	delete(s.calendars, id)
	delete(s.objects, id)
	return nil
}

func (s *store) calendar(id string) (Calendar, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cal, ok := s.calendars[id]
	if !ok {
		return Calendar{}, false
	}
	return *cal, true
}

// listCalendars returns calendars sorted by ID.
func (s *store) listCalendars() []Calendar {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Calendar, 0, len(s.calendars))
	for _, cal := range s.calendars {
		out = append(out, *cal)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// putObject stores data and reports whether the object is new.
func (s *store) putObject(calID, name string, data []byte) (created bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	objs, ok := s.objects[calID]
	if !ok {
		return false, &Error{Type: ErrNotFound, Message: "calendar not found"}
	}
	_, exists := objs[name]
	objs[name] = &Object{Name: name, Data: append([]byte(nil), data...), ETag: generateETag(data)}
	return !exists, nil
}

func (s *store) object(calID, name string) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[calID][name]
	if !ok {
		return Object{}, false
	}
	return *obj, true
}

func (s *store) deleteObject(calID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.objects[calID][name]; !ok {
		return &Error{Type: ErrNotFound, Message: "object not found"}
	}
	delete(s.objects[calID], name)
	return nil
}

// listObjects returns the objects of a calendar sorted by name.
func (s *store) listObjects(calID string) []Object {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Object, 0, len(s.objects[calID]))
	for _, obj := range s.objects[calID] {
		out = append(out, *obj)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
