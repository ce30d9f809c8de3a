// Package xmltree is a small XML tree parser used to read WebDAV multistatus
// responses. Namespace prefixes are kept as part of the tag name, so lookups
// match on literal substrings such as "d:href".
package xmltree

import (
	"strings"

	"github.com/beevik/etree"
	"github.com/samber/mo"
)

// Attr is a single key/value attribute in document order.
type Attr struct {
	Key   string
	Value string
}

// Node is an element of a parsed document. The root returned by Parse is
// synthetic and carries no tag or text.
type Node struct {
	Tag      string
	Text     string
	Attrs    []Attr
	Children []*Node

	// parent is used for navigation only.
	parent *Node
}

// Parent returns the enclosing node, or nil for the root.
func (n *Node) Parent() *Node {
	return n.parent
}

// IsRoot reports whether n is the synthetic document root.
func (n *Node) IsRoot() bool {
	return n.parent == nil
}

// LocalName returns the tag without its namespace prefix.
func (n *Node) LocalName() string {
	if i := strings.LastIndexByte(n.Tag, ':'); i >= 0 {
		return n.Tag[i+1:]
	}
	return n.Tag
}

// Child returns the i-th child.
func (n *Node) Child(i int) mo.Option[*Node] {
	if i < 0 || i >= len(n.Children) {
		return mo.None[*Node]()
	}
	return mo.Some(n.Children[i])
}

// Attr returns the value of the first attribute named key.
func (n *Node) Attr(key string) mo.Option[string] {
	for _, a := range n.Attrs {
		if a.Key == key {
			return mo.Some(a.Value)
		}
	}
	return mo.None[string]()
}

// Find returns the first node in preorder, starting with n itself, whose tag
// equals or contains tag.
func (n *Node) Find(tag string) mo.Option[*Node] {
	if tag == "" {
		return mo.None[*Node]()
	}
	if strings.Contains(n.Tag, tag) {
		return mo.Some(n)
	}
	for _, c := range n.Children {
		if found := c.Find(tag); found.IsPresent() {
			return found
		}
	}
	return mo.None[*Node]()
}

// FindAll returns every descendant (excluding n) whose tag equals or contains
// tag, in preorder.
func (n *Node) FindAll(tag string) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if strings.Contains(c.Tag, tag) {
			out = append(out, c)
		}
		out = append(out, c.FindAll(tag)...)
	}
	return out
}

// FindPath descends one level per slash-separated segment. Among siblings an
// exact tag or local-name match wins over a substring match. An empty path
// resolves to n.
func (n *Node) FindPath(path string) mo.Option[*Node] {
	cur := n
	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			continue
		}
		next := cur.childMatching(seg)
		if next == nil {
			return mo.None[*Node]()
		}
		cur = next
	}
	return mo.Some(cur)
}

// ChildrenMatching returns the direct children whose tag equals or contains tag.
func (n *Node) ChildrenMatching(tag string) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if strings.Contains(c.Tag, tag) {
			out = append(out, c)
		}
	}
	return out
}

func (n *Node) childMatching(seg string) *Node {
	for _, c := range n.Children {
		if c.Tag == seg || c.LocalName() == seg {
			return c
		}
	}
	for _, c := range n.Children {
		if strings.Contains(c.Tag, seg) {
			return c
		}
	}
	return nil
}

// Element converts the subtree rooted at n into an etree element. The
// synthetic root has no element form; use String for whole documents.
func (n *Node) Element() *etree.Element {
	elem := etree.NewElement(n.Tag)
	for _, a := range n.Attrs {
		elem.CreateAttr(a.Key, a.Value)
	}
	if n.Text != "" {
		elem.SetText(n.Text)
	}
	for _, c := range n.Children {
		elem.AddChild(c.Element())
	}
	return elem
}

// String serializes the tree back to XML text.
func (n *Node) String() string {
	doc := etree.NewDocument()
	if n.IsRoot() && n.Tag == "" {
		for _, c := range n.Children {
			doc.AddChild(c.Element())
		}
	} else {
		doc.AddChild(n.Element())
	}
	s, err := doc.WriteToString()
	if err != nil {
		return ""
	}
	return s
}
