package davclient

import (
	"strings"

	"github.com/emersion/go-ical"
)

// ComponentSet is a set of calendar component types.
type ComponentSet uint8

const (
	CompVEVENT ComponentSet = 1 << iota
	CompVTODO
	CompVJOURNAL

	CompAll = CompVEVENT | CompVTODO | CompVJOURNAL
)

var componentNames = []struct {
	flag ComponentSet
	name string
}{
	{CompVEVENT, ical.CompEvent},
	{CompVTODO, ical.CompToDo},
	{CompVJOURNAL, ical.CompJournal},
}

// ParseComponentSet builds a set from component names. Unknown names are
// ignored.
func ParseComponentSet(names ...string) ComponentSet {
	var set ComponentSet
	for _, n := range names {
		for _, c := range componentNames {
			if strings.EqualFold(strings.TrimSpace(n), c.name) {
				set |= c.flag
			}
		}
	}
	return set
}

// Names lists the members in VEVENT, VTODO, VJOURNAL order.
func (s ComponentSet) Names() []string {
	var out []string
	for _, c := range componentNames {
		if s&c.flag != 0 {
			out = append(out, c.name)
		}
	}
	return out
}

func (s ComponentSet) Has(other ComponentSet) bool { return s&other == other }

func (s ComponentSet) Intersects(other ComponentSet) bool { return s&other != 0 }

func (s ComponentSet) String() string {
	return strings.Join(s.Names(), ",")
}

// State marks a remote object as live or deleted. Deleted objects stay in
// their owning list until the next pull.
type State int

const (
	Active State = iota
	Deleted
)

func (s State) String() string {
	if s == Deleted {
		return "deleted"
	}
	return "active"
}
