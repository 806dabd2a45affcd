// Package dom is the document tree rendering writes into. It wraps the
// golang.org/x/net/html node tree behind stable integer handles: a Node stays
// valid after it is detached or removed, so cursors that hold handles are
// never invalidated by mismatch recovery elsewhere in the tree.
package dom

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Node is a handle to a node of a Document.
type Node uint32

// Nil is the zero handle. It never refers to a node.
const Nil Node = 0

// Kind is the type of a node.
type Kind uint8

const (
	InvalidKind Kind = iota
	ElementKind
	TextKind
	CommentKind
	FragmentKind
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case ElementKind:
		return "element"
	case TextKind:
		return "text"
	case CommentKind:
		return "comment"
	case FragmentKind:
		return "fragment"
	default:
		return "invalid"
	}
}

// Attr is an attribute of an element.
type Attr struct {
	Namespace string
	Name      string
	Value     string
}

// Document owns a set of nodes and hands out handles to them.
type Document struct {
	nodes []*html.Node
	index map[*html.Node]Node
}

// NewDocument creates an empty document.
func NewDocument() *Document {
	return &Document{
		nodes: []*html.Node{nil},
		index: map[*html.Node]Node{},
	}
}

// handle returns the handle of n, registering it on first sight. Nodes built
// by the HTML parser are registered lazily as the tree is walked.
func (d *Document) handle(n *html.Node) Node {
	if n == nil {
		return Nil
	}
	if h, ok := d.index[n]; ok {
		return h
	}
	d.nodes = append(d.nodes, n)
	h := Node(len(d.nodes) - 1)
	d.index[n] = h
	return h
}

func (d *Document) node(h Node) *html.Node {
	if h == Nil || int(h) >= len(d.nodes) {
		return nil
	}
	return d.nodes[h]
}

func (d *Document) mustNode(h Node) *html.Node {
	n := d.node(h)
	if n == nil {
		panic(fmt.Sprintf("dom: invalid node handle %d", h))
	}
	return n
}

// Len returns the number of handles issued so far.
func (d *Document) Len() int {
	return len(d.nodes) - 1
}

// CreateElement creates a detached element. ns is empty for HTML, or "svg"
// or "math" for foreign content.
func (d *Document) CreateElement(tag, ns string) Node {
	n := &html.Node{Type: html.ElementNode, Data: tag, Namespace: ns}
	if ns == "" {
		n.DataAtom = atom.Lookup([]byte(strings.ToLower(tag)))
	}
	return d.handle(n)
}

// CreateTextNode creates a detached text node.
func (d *Document) CreateTextNode(text string) Node {
	return d.handle(&html.Node{Type: html.TextNode, Data: text})
}

// CreateComment creates a detached comment.
func (d *Document) CreateComment(text string) Node {
	return d.handle(&html.Node{Type: html.CommentNode, Data: text})
}

// CreateFragment creates a detached container whose children render without
// a wrapping tag.
func (d *Document) CreateFragment() Node {
	return d.handle(&html.Node{Type: html.DocumentNode})
}

// Kind returns the kind of a node.
func (d *Document) Kind(h Node) Kind {
	n := d.node(h)
	if n == nil {
		return InvalidKind
	}
	switch n.Type {
	case html.ElementNode:
		return ElementKind
	case html.TextNode:
		return TextKind
	case html.CommentNode:
		return CommentKind
	case html.DocumentNode:
		return FragmentKind
	default:
		return InvalidKind
	}
}

// TagName returns the tag of an element, or "" for other kinds.
func (d *Document) TagName(h Node) string {
	n := d.node(h)
	if n == nil || n.Type != html.ElementNode {
		return ""
	}
	return n.Data
}

// Namespace returns the namespace of an element.
func (d *Document) Namespace(h Node) string {
	if n := d.node(h); n != nil {
		return n.Namespace
	}
	return ""
}

// Data returns the text of a text or comment node.
func (d *Document) Data(h Node) string {
	n := d.node(h)
	if n == nil || (n.Type != html.TextNode && n.Type != html.CommentNode) {
		return ""
	}
	return n.Data
}

// SetData replaces the text of a text or comment node.
func (d *Document) SetData(h Node, text string) {
	d.mustNode(h).Data = text
}

// Parent returns the parent of a node, or Nil.
func (d *Document) Parent(h Node) Node {
	if n := d.node(h); n != nil {
		return d.handle(n.Parent)
	}
	return Nil
}

// FirstChild returns the first child of a node, or Nil.
func (d *Document) FirstChild(h Node) Node {
	if n := d.node(h); n != nil {
		return d.handle(n.FirstChild)
	}
	return Nil
}

// LastChild returns the last child of a node, or Nil.
func (d *Document) LastChild(h Node) Node {
	if n := d.node(h); n != nil {
		return d.handle(n.LastChild)
	}
	return Nil
}

// NextSibling returns the next sibling of a node, or Nil.
func (d *Document) NextSibling(h Node) Node {
	if n := d.node(h); n != nil {
		return d.handle(n.NextSibling)
	}
	return Nil
}

// PreviousSibling returns the previous sibling of a node, or Nil.
func (d *Document) PreviousSibling(h Node) Node {
	if n := d.node(h); n != nil {
		return d.handle(n.PrevSibling)
	}
	return Nil
}

// Children returns the children of a node in order.
func (d *Document) Children(h Node) []Node {
	var out []Node
	for c := d.FirstChild(h); c != Nil; c = d.NextSibling(c) {
		out = append(out, c)
	}
	return out
}

// AppendChild moves child to the end of parent's children.
func (d *Document) AppendChild(parent, child Node) {
	d.InsertBefore(parent, child, Nil)
}

// InsertBefore moves child into parent before ref. A Nil ref appends.
func (d *Document) InsertBefore(parent, child, ref Node) {
	p, c := d.mustNode(parent), d.mustNode(child)
	if c.Parent != nil {
		c.Parent.RemoveChild(c)
	}
	p.InsertBefore(c, d.node(ref))
}

// RemoveChild detaches child from parent. The handle remains valid.
func (d *Document) RemoveChild(parent, child Node) {
	d.mustNode(parent).RemoveChild(d.mustNode(child))
}

// Remove detaches a node from its parent, if it has one.
func (d *Document) Remove(h Node) {
	n := d.mustNode(h)
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// Attribute returns the value of an attribute.
func (d *Document) Attribute(h Node, name, ns string) (string, bool) {
	for _, a := range d.mustNode(h).Attr {
		if a.Key == name && a.Namespace == ns {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttribute sets an attribute, replacing any existing value.
func (d *Document) SetAttribute(h Node, name, ns, value string) {
	n := d.mustNode(h)
	for i, a := range n.Attr {
		if a.Key == name && a.Namespace == ns {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Namespace: ns, Key: name, Val: value})
}

// RemoveAttribute removes an attribute if present.
func (d *Document) RemoveAttribute(h Node, name, ns string) {
	n := d.mustNode(h)
	for i, a := range n.Attr {
		if a.Key == name && a.Namespace == ns {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

// Attributes returns the attributes of an element in document order.
func (d *Document) Attributes(h Node) []Attr {
	n := d.mustNode(h)
	out := make([]Attr, len(n.Attr))
	for i, a := range n.Attr {
		out[i] = Attr{Namespace: a.Namespace, Name: a.Key, Value: a.Val}
	}
	return out
}

// OuterHTML serializes a node and its subtree.
func (d *Document) OuterHTML(h Node) (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, d.mustNode(h)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// InnerHTML serializes the children of a node.
func (d *Document) InnerHTML(h Node) (string, error) {
	var buf bytes.Buffer
	for c := d.mustNode(h).FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

// ParseFragment parses markup as the content of context, following the HTML
// tree construction rules for that context. A Nil context parses as body
// content. The returned nodes are detached.
func (d *Document) ParseFragment(markup string, context Node) ([]Node, error) {
	ctx := d.node(context)
	if ctx == nil || ctx.Type != html.ElementNode {
		ctx = &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	}
	parsed, err := html.ParseFragment(strings.NewReader(markup), ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Node, len(parsed))
	for i, n := range parsed {
		out[i] = d.handle(n)
	}
	return out, nil
}

// ParseInto parses markup in the context of parent and appends the result
// to parent's children.
func (d *Document) ParseInto(parent Node, markup string) error {
	nodes, err := d.ParseFragment(markup, parent)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		d.AppendChild(parent, n)
	}
	return nil
}

// GetElementByID returns the first element under root, root included, whose
// id attribute equals id.
func (d *Document) GetElementByID(root Node, id string) Node {
	var found *html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if found != nil {
			return
		}
		if n.Type == html.ElementNode {
			for _, a := range n.Attr {
				if a.Key == "id" && a.Namespace == "" && a.Val == id {
					found = n
					return
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(d.mustNode(root))
	return d.handle(found)
}
