// Package list provides the ordered growable container shared by the client
// and the local task layer.
package list

const initialCapacity = 4

// List is an ordered sequence of owned items. Capacity doubles on overflow
// and never shrinks. Removal shifts later items down so iteration order is
// always insertion order.
type List[T any] struct {
	items   []T
	release func(T)
}

// New creates an empty list. release, if non-nil, is invoked for every item
// dropped by Clear or RemoveAt.
func New[T any](release func(T)) *List[T] {
	return &List[T]{release: release}
}

// From creates a list holding items in order.
func From[T any](items []T, release func(T)) *List[T] {
	l := New(release)
	for _, item := range items {
		l.Append(item)
	}
	return l
}

func (l *List[T]) grow() {
	newCap := cap(l.items) * 2
	if newCap == 0 {
		newCap = initialCapacity
	}
	grown := make([]T, len(l.items), newCap)
	copy(grown, l.items)
	l.items = grown
}

// Append adds item at the end.
func (l *List[T]) Append(item T) {
	if len(l.items) == cap(l.items) {
		l.grow()
	}
	l.items = append(l.items, item)
}

// Get returns the item at i.
func (l *List[T]) Get(i int) (T, bool) {
	if i < 0 || i >= len(l.items) {
		var zero T
		return zero, false
	}
	return l.items[i], true
}

func (l *List[T]) Len() int { return len(l.items) }

func (l *List[T]) Cap() int { return cap(l.items) }

// Items returns a copy of the contents.
func (l *List[T]) Items() []T {
	out := make([]T, len(l.items))
	copy(out, l.items)
	return out
}

// Each calls fn for each item in order until fn returns false.
func (l *List[T]) Each(fn func(i int, item T) bool) {
	for i, item := range l.items {
		if !fn(i, item) {
			return
		}
	}
}

// Filter returns the items for which keep returns true, in order.
func (l *List[T]) Filter(keep func(T) bool) []T {
	var out []T
	for _, item := range l.items {
		if keep(item) {
			out = append(out, item)
		}
	}
	return out
}

// Index returns the position of the first item matching pred, or -1.
func (l *List[T]) Index(pred func(T) bool) int {
	for i, item := range l.items {
		if pred(item) {
			return i
		}
	}
	return -1
}

// RemoveAt drops the item at i, keeping the order of the rest.
func (l *List[T]) RemoveAt(i int) bool {
	if i < 0 || i >= len(l.items) {
		return false
	}
	item := l.items[i]
	copy(l.items[i:], l.items[i+1:])
	var zero T
	l.items[len(l.items)-1] = zero
	l.items = l.items[:len(l.items)-1]
	if l.release != nil {
		l.release(item)
	}
	return true
}

// Clear drops every item. Capacity is kept.
func (l *List[T]) Clear() {
	if l.release != nil {
		for _, item := range l.items {
			l.release(item)
		}
	}
	var zero T
	for i := range l.items {
		l.items[i] = zero
	}
	l.items = l.items[:0]
}
