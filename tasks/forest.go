package tasks

import "fmt"

// Node is one task in a rendered forest.
type Node struct {
	Task     TaskData
	Children []*Node
}

// ValidateForest checks that every parent reference points at a task of the
// same list and that no task is its own ancestor.
func ValidateForest(tasks []TaskData) error {
	byUID := make(map[string]TaskData, len(tasks))
	for _, t := range tasks {
		byUID[t.UID] = t
	}
	for _, t := range tasks {
		if t.Parent == "" {
			continue
		}
		parent, ok := byUID[t.Parent]
		if !ok || parent.ListUID != t.ListUID {
			return fmt.Errorf("task %s: %w: %s", t.UID, ErrParentNotFound, t.Parent)
		}
		if wouldCycle(byUID, t.UID, t.Parent) {
			return fmt.Errorf("task %s: %w", t.UID, ErrCycle)
		}
	}
	return nil
}

// wouldCycle reports whether making parent the parent of uid closes a loop.
func wouldCycle(byUID map[string]TaskData, uid, parent string) bool {
	seen := make(map[string]bool)
	for cur := parent; cur != ""; {
		if cur == uid {
			return true
		}
		if seen[cur] {
			// a loop that does not pass through uid
			return false
		}
		seen[cur] = true
		next, ok := byUID[cur]
		if !ok {
			return false
		}
		cur = next.Parent
	}
	return false
}

// Tree arranges tasks into a forest, matching children to parents by UID.
// Tasks whose parent is missing become roots. A cycle is broken at the
// first of its members in input order.
func Tree(tasks []TaskData) []*Node {
	known := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		known[t.UID] = true
	}

	children := make(map[string][]int)
	var roots []int
	for i, t := range tasks {
		if t.Parent == "" || t.Parent == t.UID || !known[t.Parent] {
			roots = append(roots, i)
			continue
		}
		children[t.Parent] = append(children[t.Parent], i)
	}

	visited := make([]bool, len(tasks))
	var build func(i int) *Node
	build = func(i int) *Node {
		visited[i] = true
		n := &Node{Task: tasks[i]}
		for _, c := range children[tasks[i].UID] {
			if !visited[c] {
				n.Children = append(n.Children, build(c))
			}
		}
		return n
	}

	var forest []*Node
	for _, i := range roots {
		if !visited[i] {
			forest = append(forest, build(i))
		}
	}
	for i := range tasks {
		if !visited[i] {
			forest = append(forest, build(i))
		}
	}
	return forest
}

// descendants returns the UIDs of every task below uid.
func descendants(tasks []TaskData, uid string) []string {
	children := make(map[string][]string)
	for _, t := range tasks {
		if t.Parent != "" {
			children[t.Parent] = append(children[t.Parent], t.UID)
		}
	}
	seen := map[string]bool{uid: true}
	var out []string
	queue := []string{uid}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, c := range children[cur] {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
				queue = append(queue, c)
			}
		}
	}
	return out
}
