package xmltree

import (
	"fmt"
	"html"
	"strings"
)

// maxDepth bounds element nesting.
const maxDepth = 256

// SyntaxError reports malformed input and the byte offset where it was found.
type SyntaxError struct {
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("xml syntax error at offset %d: %s", e.Offset, e.Msg)
}

type parser struct {
	src   string
	pos   int
	depth int
}

// Parse reads text into a tree rooted at a synthetic node. Comments,
// processing instructions and DOCTYPE declarations are skipped. Every scan is
// bounded by the input length, so truncated documents produce a *SyntaxError.
func Parse(text string) (*Node, error) {
	root := &Node{}
	p := &parser{src: text}
	if err := p.parseContent(root); err != nil {
		return nil, err
	}
	return root, nil
}

func (p *parser) errorf(offset int, format string, args ...any) error {
	return &SyntaxError{Offset: offset, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) rest() string {
	return p.src[p.pos:]
}

// parseContent consumes children and text of parent up to its end tag, or up
// to the end of input for the root.
func (p *parser) parseContent(parent *Node) error {
	var text strings.Builder
	openedAt := p.pos

	for p.pos < len(p.src) {
		if p.src[p.pos] != '<' {
			end := strings.IndexByte(p.rest(), '<')
			if end < 0 {
				end = len(p.src) - p.pos
			}
			text.WriteString(html.UnescapeString(p.src[p.pos : p.pos+end]))
			p.pos += end
			continue
		}

		rest := p.rest()
		switch {
		case strings.HasPrefix(rest, "<!--"):
			if err := p.skipPast("<!--", "-->", "comment"); err != nil {
				return err
			}
		case strings.HasPrefix(rest, "<![CDATA["):
			start := p.pos
			end := strings.Index(rest, "]]>")
			if end < 0 {
				return p.errorf(start, "unterminated CDATA section")
			}
			text.WriteString(rest[len("<![CDATA["):end])
			p.pos += end + len("]]>")
		case strings.HasPrefix(rest, "<?"):
			if err := p.skipPast("<?", "?>", "processing instruction"); err != nil {
				return err
			}
		case strings.HasPrefix(rest, "<!"):
			if err := p.skipPast("<!", ">", "declaration"); err != nil {
				return err
			}
		case strings.HasPrefix(rest, "</"):
			return p.parseEndTag(parent, strings.TrimSpace(text.String()))
		default:
			if err := p.parseElement(parent); err != nil {
				return err
			}
		}
	}

	if parent.parent != nil {
		return p.errorf(openedAt, "unterminated element <%s>", parent.Tag)
	}
	return nil
}

func (p *parser) skipPast(open, close, what string) error {
	start := p.pos
	end := strings.Index(p.src[p.pos+len(open):], close)
	if end < 0 {
		return p.errorf(start, "unterminated %s", what)
	}
	p.pos += len(open) + end + len(close)
	return nil
}

func (p *parser) parseEndTag(parent *Node, text string) error {
	start := p.pos
	if parent.parent == nil {
		return p.errorf(start, "unexpected end tag")
	}
	end := strings.IndexByte(p.rest(), '>')
	if end < 0 {
		return p.errorf(start, "unterminated end tag")
	}
	name := strings.TrimSpace(p.src[p.pos+2 : p.pos+end])
	if name != parent.Tag {
		return p.errorf(start, "end tag </%s> does not match <%s>", name, parent.Tag)
	}
	parent.Text = text
	p.pos += end + 1
	return nil
}

func (p *parser) parseElement(parent *Node) error {
	start := p.pos
	p.pos++ // '<'
	name := p.readName()
	if name == "" {
		return p.errorf(start, "expected element name")
	}

	node := &Node{Tag: name, parent: parent}
	parent.Children = append(parent.Children, node)

	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			return p.errorf(start, "unterminated tag <%s", name)
		}
		switch p.src[p.pos] {
		case '/':
			if p.pos+1 >= len(p.src) || p.src[p.pos+1] != '>' {
				return p.errorf(p.pos, "expected '>' after '/' in <%s>", name)
			}
			p.pos += 2
			return nil
		case '>':
			p.pos++
			p.depth++
			if p.depth > maxDepth {
				return p.errorf(start, "elements nested deeper than %d", maxDepth)
			}
			err := p.parseContent(node)
			p.depth--
			return err
		}

		if err := p.parseAttr(node); err != nil {
			return err
		}
	}
}

func (p *parser) parseAttr(node *Node) error {
	start := p.pos
	key := p.readName()
	if key == "" {
		return p.errorf(start, "invalid character %q in <%s>", p.src[p.pos], node.Tag)
	}
	p.skipSpace()
	if p.pos >= len(p.src) || p.src[p.pos] != '=' {
		// Valueless attributes are tolerated.
		node.Attrs = append(node.Attrs, Attr{Key: key})
		return nil
	}
	p.pos++
	p.skipSpace()
	if p.pos >= len(p.src) {
		return p.errorf(start, "unterminated attribute %s", key)
	}
	quote := p.src[p.pos]
	if quote != '"' && quote != '\'' {
		return p.errorf(p.pos, "attribute %s value must be quoted", key)
	}

	i := p.pos + 1
	escaped := false
	for i < len(p.src) {
		c := p.src[i]
		if c == '\\' && i+1 < len(p.src) && p.src[i+1] == quote {
			escaped = true
			i += 2
			continue
		}
		if c == quote {
			break
		}
		i++
	}
	if i >= len(p.src) {
		return p.errorf(start, "unterminated value for attribute %s", key)
	}

	raw := p.src[p.pos+1 : i]
	if escaped {
		raw = strings.ReplaceAll(raw, `\`+string(quote), string(quote))
	}
	node.Attrs = append(node.Attrs, Attr{Key: key, Value: html.UnescapeString(raw)})
	p.pos = i + 1
	return nil
}

func (p *parser) readName() string {
	start := p.pos
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\r', '\n', '/', '>', '=', '<', '"', '\'':
			return p.src[start:p.pos]
		}
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\r', '\n':
			p.pos++
		default:
			return
		}
	}
}
