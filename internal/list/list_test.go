package list

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppendDoublesCapacity(t *testing.T) {
	l := New[int](nil)
	assert.Equal(t, 0, l.Cap())

	caps := []int{}
	for i := 0; i < 9; i++ {
		l.Append(i)
		caps = append(caps, l.Cap())
	}

	assert.Equal(t, []int{4, 4, 4, 4, 8, 8, 8, 8, 16}, caps)
	assert.Equal(t, 9, l.Len())
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8}, l.Items())
}

func TestGet(t *testing.T) {
	l := From([]string{"a", "b"}, nil)

	v, ok := l.Get(1)
	assert.True(t, ok)
	assert.Equal(t, "b", v)

	_, ok = l.Get(2)
	assert.False(t, ok)
	_, ok = l.Get(-1)
	assert.False(t, ok)
}

func TestRemoveAtKeepsOrderAndNeverShrinks(t *testing.T) {
	var released []string
	l := From([]string{"a", "b", "c", "d", "e"}, func(s string) { released = append(released, s) })
	capBefore := l.Cap()

	assert.True(t, l.RemoveAt(1))
	assert.False(t, l.RemoveAt(10))

	assert.Equal(t, []string{"a", "c", "d", "e"}, l.Items())
	assert.Equal(t, []string{"b"}, released)
	assert.Equal(t, capBefore, l.Cap())
}

func TestClearReleasesEveryItem(t *testing.T) {
	released := 0
	l := From([]int{1, 2, 3}, func(int) { released++ })

	l.Clear()

	assert.Equal(t, 3, released)
	assert.Equal(t, 0, l.Len())
	assert.Equal(t, 4, l.Cap())
}

func TestFilterIndexEach(t *testing.T) {
	l := From([]int{1, 2, 3, 4, 5}, nil)

	assert.Equal(t, []int{2, 4}, l.Filter(func(v int) bool { return v%2 == 0 }))
	assert.Equal(t, 2, l.Index(func(v int) bool { return v == 3 }))
	assert.Equal(t, -1, l.Index(func(v int) bool { return v == 9 }))

	var seen []int
	l.Each(func(i, v int) bool {
		seen = append(seen, v)
		return i < 2
	})
	assert.Equal(t, []int{1, 2, 3}, seen)
}
