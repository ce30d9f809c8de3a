package tasks

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrint(t *testing.T) {
	l := TaskListData{UID: "L1", Name: "Groceries"}
	tasks := []TaskData{
		{UID: "a", ListUID: "L1", Text: "Milk", Completed: true},
		{UID: "b", ListUID: "L1", Text: "Oat", Parent: "a"},
		{UID: "c", ListUID: "L1", Text: "Bread"},
		{UID: "d", ListUID: "L1", Text: "Old", State: Deleted},
		{UID: "e", ListUID: "L1", Text: "Binned", Trash: true},
		{UID: "f", ListUID: "L2", Text: "Elsewhere"},
	}

	var buf bytes.Buffer
	require.NoError(t, Print(&buf, l, tasks, 30))

	want := strings.Join([]string{
		"+----------------------------+",
		"| Groceries                  |",
		"+----------------------------+",
		"[x] Milk",
		"    [ ] Oat",
		"[ ] Bread",
		"",
	}, "\n")
	assert.Equal(t, want, buf.String())
}

func TestPrintWrapsLongText(t *testing.T) {
	l := TaskListData{UID: "L1", Name: "A very long list title that will not fit"}
	tasks := []TaskData{
		{UID: "a", ListUID: "L1", Text: "one two three four five six"},
	}

	var buf bytes.Buffer
	require.NoError(t, Print(&buf, l, tasks, 16))

	want := strings.Join([]string{
		"+--------------+",
		"| A very lo... |",
		"+--------------+",
		"[ ] one two",
		"    three four",
		"    five six",
		"",
	}, "\n")
	assert.Equal(t, want, buf.String())
}

func TestWrap(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  []string
	}{
		{name: "fits", text: "hello world", limit: 20, want: []string{"hello world"}},
		{name: "breaks at spaces", text: "one two three four", limit: 9, want: []string{"one two", "three", "four"}},
		{name: "splits long words", text: "abcdefghij", limit: 4, want: []string{"abcd", "efgh", "ij"}},
		{name: "wide runes", text: "买牛奶 面包", limit: 6, want: []string{"买牛奶", "面包"}},
		{name: "empty", text: "", limit: 5, want: []string{""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, wrap(tt.text, tt.limit))
		})
	}
}
