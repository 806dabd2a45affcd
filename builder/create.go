package builder

import (
	"github.com/deepnoodle-ai/rehydra/dom"
)

// Create builds new nodes for every instruction. It never reads what is
// already in the tree.
type Create struct {
	tree
	serialize bool
}

// NewCreate returns a builder that appends to root.
func NewCreate(doc *dom.Document, root dom.Node, cfg Config) *Create {
	return &Create{tree: newTree(doc, root, cfg), serialize: cfg.Serialize}
}

func (b *Create) OpenElement(tag, ns string) dom.Node {
	b.constructing = b.doc.CreateElement(tag, ns)
	return b.constructing
}

func (b *Create) SetAttribute(name, ns, value string) {
	b.doc.SetAttribute(b.mustConstructing(), name, ns, value)
}

func (b *Create) RemoveAttribute(name, ns string) {
	b.doc.RemoveAttribute(b.mustConstructing(), name, ns)
}

func (b *Create) FlushElement() {
	el := b.mustConstructing()
	b.constructing = dom.Nil
	b.created(el)
	b.pushCursor(&cursor{element: el, startDepth: b.depth, openDepth: b.depth - 1})
}

func (b *Create) CloseElement() {
	b.popCursor()
}

func (b *Create) AppendText(text string) dom.Node {
	if b.serialize && !b.inRawText() {
		if text == "" {
			return b.marker(EmptyTextMarker)
		}
		if b.doc.Kind(b.previous()) == dom.TextKind {
			b.marker(SeparatorMarker)
		}
	}
	return b.created(b.doc.CreateTextNode(text))
}

func (b *Create) AppendComment(text string) dom.Node {
	return b.created(b.doc.CreateComment(text))
}

func (b *Create) OpenBlock() {
	if b.inRawText() {
		return
	}
	if b.serialize {
		b.marker(OpenBlockMarker(b.depth))
	}
	b.depth++
}

func (b *Create) CloseBlock() {
	if b.inRawText() {
		return
	}
	b.depth--
	if b.serialize {
		b.marker(CloseBlockMarker(b.depth))
	}
}

func (b *Create) PushRemoteElement(id string, target, insertBefore dom.Node, replace bool) {
	if replace {
		for _, child := range b.doc.Children(target) {
			b.doc.Remove(child)
		}
		insertBefore = dom.Nil
	}
	b.pushRemoteDepth()
	b.pushCursor(&cursor{
		element:   target,
		next:      insertBefore,
		openDepth: -1,
		remote:    id,
		region:    b.newRegion(id),
	})
	if b.serialize {
		b.marker(OpenRemoteMarker(id))
	}
}

func (b *Create) PopRemoteElement() {
	c := b.current()
	if c.remote == "" {
		panic("builder: pop remote element while an element is open")
	}
	if b.serialize {
		b.marker(CloseRemoteMarker(c.remote))
	}
	b.popCursor()
	b.popRemoteDepth()
}

func (b *Create) Finish() Bounds {
	return b.bounds()
}
