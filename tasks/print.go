package tasks

import (
	"bufio"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
)

const (
	DefaultPrintWidth = 80
	minPrintWidth     = 16
	indentWidth       = 4
)

// Print writes a boxed title followed by the list's task outline, one
// checkbox per task, children indented under their parent. Lines are
// wrapped at width display columns. Deleted and trashed tasks are left
// out, and so are tasks of other lists.
func Print(w io.Writer, l TaskListData, tasks []TaskData, width int) error {
	if width <= 0 {
		width = DefaultPrintWidth
	}
	width = max(width, minPrintWidth)

	var visible []TaskData
	for _, t := range tasks {
		if t.ListUID == l.UID && t.State == Active && !t.Trash {
			visible = append(visible, t)
		}
	}

	bw := bufio.NewWriter(w)
	writeBanner(bw, l.Name, width)
	for _, n := range Tree(visible) {
		writeNode(bw, n, 0, width)
	}
	return bw.Flush()
}

func writeBanner(w *bufio.Writer, title string, width int) {
	inner := width - 4
	title = runewidth.Truncate(title, inner, "...")
	border := "+" + strings.Repeat("-", width-2) + "+\n"

	w.WriteString(border)
	w.WriteString("| ")
	w.WriteString(runewidth.FillRight(title, inner))
	w.WriteString(" |\n")
	w.WriteString(border)
}

func writeNode(w *bufio.Writer, n *Node, depth, width int) {
	box := "[ ] "
	if n.Task.Completed {
		box = "[x] "
	}
	indent := strings.Repeat(" ", depth*indentWidth)
	hanging := indent + strings.Repeat(" ", len(box))

	limit := max(width-runewidth.StringWidth(hanging), 1)
	for i, line := range wrap(n.Task.Text, limit) {
		if i == 0 {
			w.WriteString(indent + box)
		} else {
			w.WriteString(hanging)
		}
		w.WriteString(line)
		w.WriteByte('\n')
	}
	for _, c := range n.Children {
		writeNode(w, c, depth+1, width)
	}
}

// wrap splits text into lines no wider than limit columns, breaking at
// spaces and splitting words that do not fit on a line of their own.
func wrap(text string, limit int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{""}
	}

	var lines []string
	var cur strings.Builder
	curWidth := 0
	flush := func() {
		lines = append(lines, cur.String())
		cur.Reset()
		curWidth = 0
	}

	for _, word := range words {
		ww := runewidth.StringWidth(word)
		if curWidth > 0 && curWidth+1+ww <= limit {
			cur.WriteByte(' ')
			cur.WriteString(word)
			curWidth += 1 + ww
			continue
		}
		if curWidth > 0 {
			flush()
		}
		for ww > limit {
			head := runewidth.Truncate(word, limit, "")
			if head == "" {
				// a single rune wider than the line
				r := []rune(word)
				head = string(r[0])
			}
			lines = append(lines, head)
			word = word[len(head):]
			ww = runewidth.StringWidth(word)
		}
		cur.WriteString(word)
		curWidth = ww
	}
	if curWidth > 0 {
		flush()
	}
	return lines
}
