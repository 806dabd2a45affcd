package builder

import (
	"slices"
	"strings"

	"github.com/deepnoodle-ai/rehydra/dom"
)

// Rehydrate reconciles a tree written by a serializing Create pass against
// the instructions of a new pass. Nodes that match are adopted and repaired
// in place; a mismatch removes the rest of the enclosing region and the
// pass creates from there until the region's end marker.
type Rehydrate struct {
	tree
	keepMarkers bool

	// Attributes of the adopted element not set again by the program.
	unmatched []dom.Attr
	adopting  bool

	// One entry per open block, set when the block's start marker was
	// written by this pass.
	marked []bool

	// Trees searched for remote regions at finish, and the regions this
	// pass opened.
	scan   []dom.Node
	opened map[string]bool
}

// NewRehydrate returns a builder that reconciles the children of root.
func NewRehydrate(doc *dom.Document, root dom.Node, cfg Config) *Rehydrate {
	b := &Rehydrate{
		tree:        newTree(doc, root, cfg),
		keepMarkers: cfg.KeepMarkers,
		opened:      map[string]bool{},
	}
	for _, n := range append([]dom.Node{root}, cfg.Targets...) {
		if top := topOf(doc, n); !slices.Contains(b.scan, top) {
			b.scan = append(b.scan, top)
		}
	}
	// Content ahead of the first region is not ours
	first := doc.FirstChild(root)
	for n := first; n != dom.Nil; n = doc.NextSibling(n) {
		if isOpenBlock(doc, n, 0) {
			first = n
			break
		}
	}
	b.root().candidate = first
	return b
}

// consume takes a marker out of the tree and returns the node after it.
func (b *Rehydrate) consume(marker dom.Node) dom.Node {
	next := b.doc.NextSibling(marker)
	if b.keepMarkers {
		b.record(b.current(), marker)
	} else {
		b.doc.Remove(marker)
	}
	return next
}

// discard removes a stale node and returns the node after it.
func (b *Rehydrate) discard(n dom.Node) dom.Node {
	next := b.doc.NextSibling(n)
	if b.doc.Kind(n) != dom.CommentKind {
		b.current().region.Removed++
	}
	b.doc.Remove(n)
	return next
}

func (b *Rehydrate) adopt(n dom.Node) dom.Node {
	c := b.current()
	c.candidate = b.doc.NextSibling(n)
	c.region.Adopted++
	b.record(c, n)
	return n
}

func (b *Rehydrate) disable(next dom.Node) {
	c := b.current()
	c.candidate = dom.Nil
	c.next = next
}

func (b *Rehydrate) enable(candidate dom.Node) {
	c := b.current()
	c.candidate = candidate
	c.next = dom.Nil
}

// clearMismatch removes candidate and everything after it up to the end of
// the innermost open region, or the end of the element when no region is
// open in it, then switches the cursor to creating.
func (b *Rehydrate) clearMismatch(candidate dom.Node) {
	c := b.current()
	removed := c.region.Removed
	n := candidate
	for n != dom.Nil {
		if c.openDepth >= c.startDepth {
			if m := markerOf(b.doc, n); m.Kind == MarkerCloseBlock && m.Depth <= c.openDepth {
				break
			}
		}
		if c.remote != "" && isCloseRemote(b.doc, n, c.remote) {
			break
		}
		n = b.discard(n)
	}
	b.disable(n)
	b.log.Debug().
		Str("parent", b.doc.TagName(c.element)).
		Int("depth", c.openDepth).
		Int("removed", c.region.Removed-removed).
		Msg("rehydrate mismatch")
}

func sameElement(doc *dom.Document, n dom.Node, tag, ns string) bool {
	return doc.Kind(n) == dom.ElementKind &&
		strings.EqualFold(doc.TagName(n), tag) &&
		doc.Namespace(n) == ns
}

func (b *Rehydrate) OpenElement(tag, ns string) dom.Node {
	c := b.current()
	if cand := c.candidate; cand != dom.Nil {
		if sameElement(b.doc, cand, tag, ns) {
			b.constructing = cand
			b.adopting = true
			b.unmatched = b.doc.Attributes(cand)
			return cand
		}
		// The HTML parser wraps rows placed directly in a table
		if strings.EqualFold(tag, "tr") && ns == "" && sameElement(b.doc, cand, "tbody", "") {
			c.candidate = b.doc.NextSibling(cand)
			b.pushCursor(&cursor{
				element:    cand,
				candidate:  b.doc.FirstChild(cand),
				startDepth: b.depth,
				openDepth:  b.depth - 1,
				injected:   true,
			})
			return b.OpenElement(tag, ns)
		}
		b.clearMismatch(cand)
	}
	b.constructing = b.doc.CreateElement(tag, ns)
	b.adopting = false
	b.unmatched = nil
	return b.constructing
}

func (b *Rehydrate) SetAttribute(name, ns, value string) {
	el := b.mustConstructing()
	if b.adopting {
		for i, a := range b.unmatched {
			if a.Name == name && a.Namespace == ns {
				if a.Value != value {
					b.doc.SetAttribute(el, name, ns, value)
				}
				b.unmatched = append(b.unmatched[:i], b.unmatched[i+1:]...)
				return
			}
		}
	}
	b.doc.SetAttribute(el, name, ns, value)
}

// RemoveAttribute leaves an adopted attribute unmatched, which removes it
// at flush.
func (b *Rehydrate) RemoveAttribute(name, ns string) {
	if !b.adopting {
		b.doc.RemoveAttribute(b.mustConstructing(), name, ns)
	}
}

func (b *Rehydrate) FlushElement() {
	el := b.mustConstructing()
	b.constructing = dom.Nil
	if b.adopting {
		for _, a := range b.unmatched {
			b.doc.RemoveAttribute(el, a.Name, a.Namespace)
		}
		b.unmatched = nil
		b.adopting = false
		b.adopt(el)
		b.pushCursor(&cursor{
			element:    el,
			candidate:  b.doc.FirstChild(el),
			startDepth: b.depth,
			openDepth:  b.depth - 1,
		})
		return
	}
	b.created(el)
	b.pushCursor(&cursor{element: el, startDepth: b.depth, openDepth: b.depth - 1})
}

func (b *Rehydrate) CloseElement() {
	if c := b.current(); c.candidate != dom.Nil {
		b.clearMismatch(c.candidate)
	}
	if b.current().injected {
		b.popCursor()
		if c := b.current(); c.candidate != dom.Nil {
			b.clearMismatch(c.candidate)
		}
	}
	b.popCursor()
}

func (b *Rehydrate) AppendText(text string) dom.Node {
	c := b.current()
	if cand := c.candidate; cand != dom.Nil {
		switch {
		case b.doc.Kind(cand) == dom.TextKind:
			if text == "" && b.keepMarkers && !b.inRawText() {
				// An empty text node does not survive serialization
				m := b.doc.CreateComment(EmptyTextMarker)
				b.doc.InsertBefore(c.element, m, cand)
				b.doc.Remove(cand)
				return b.adopt(m)
			}
			if b.doc.Data(cand) != text {
				b.doc.SetData(cand, text)
			}
			return b.adopt(cand)
		case markerOf(b.doc, cand).Kind == MarkerSeparator:
			c.candidate = b.consume(cand)
			return b.AppendText(text)
		case markerOf(b.doc, cand).Kind == MarkerEmptyText:
			if text == "" && b.keepMarkers {
				return b.adopt(cand)
			}
			return b.fillEmptyText(cand, text)
		default:
			b.clearMismatch(cand)
		}
	}
	if b.keepMarkers && !b.inRawText() {
		if text == "" {
			return b.marker(EmptyTextMarker)
		}
		if b.doc.Kind(b.previous()) == dom.TextKind {
			b.marker(SeparatorMarker)
		}
	}
	return b.created(b.doc.CreateTextNode(text))
}

// fillEmptyText replaces an empty text placeholder with a text node holding
// text. The position counts as adopted.
func (b *Rehydrate) fillEmptyText(marker dom.Node, text string) dom.Node {
	c := b.current()
	prev := b.doc.PreviousSibling(marker)
	c.candidate = b.doc.NextSibling(marker)
	b.doc.Remove(marker)
	if b.keepMarkers && text != "" && b.doc.Kind(prev) == dom.TextKind {
		sep := b.doc.CreateComment(SeparatorMarker)
		b.doc.InsertBefore(c.element, sep, c.candidate)
		b.record(c, sep)
	}
	n := b.doc.CreateTextNode(text)
	b.doc.InsertBefore(c.element, n, c.candidate)
	b.record(c, n)
	if b.keepMarkers && text != "" && b.doc.Kind(c.candidate) == dom.TextKind {
		b.doc.InsertBefore(c.element, b.doc.CreateComment(SeparatorMarker), c.candidate)
		c.candidate = b.doc.PreviousSibling(c.candidate)
	}
	c.region.Adopted++
	return n
}

func (b *Rehydrate) AppendComment(text string) dom.Node {
	c := b.current()
	if cand := c.candidate; cand != dom.Nil {
		if b.doc.Kind(cand) == dom.CommentKind && markerOf(b.doc, cand).Kind == NotMarker {
			if b.doc.Data(cand) != text {
				b.doc.SetData(cand, text)
			}
			return b.adopt(cand)
		}
		b.clearMismatch(cand)
	}
	return b.created(b.doc.CreateComment(text))
}

func (b *Rehydrate) OpenBlock() {
	if b.inRawText() {
		return
	}
	c := b.current()
	depth := b.depth
	b.depth++
	if cand := c.candidate; cand != dom.Nil {
		if isOpenBlock(b.doc, cand, depth) {
			c.candidate = b.consume(cand)
			c.openDepth = depth
			b.marked = append(b.marked, false)
			return
		}
		b.clearMismatch(cand)
	}
	b.marked = append(b.marked, b.keepMarkers)
	if b.keepMarkers {
		b.marker(OpenBlockMarker(depth))
	}
}

func (b *Rehydrate) CloseBlock() {
	if b.inRawText() {
		return
	}
	c := b.current()
	openDepth := c.openDepth
	b.depth--
	if len(b.marked) == 0 {
		panic("builder: close block without a matching open")
	}
	marked := b.marked[len(b.marked)-1]
	b.marked = b.marked[:len(b.marked)-1]
	if cand := c.candidate; cand != dom.Nil {
		if isCloseBlock(b.doc, cand, openDepth) {
			c.candidate = b.consume(cand)
			c.openDepth--
			return
		}
		b.clearMismatch(cand)
	}
	if marked {
		b.marker(CloseBlockMarker(b.depth))
	}
	// Creating: adoption resumes after the end marker of this region
	if next := c.next; next != dom.Nil && isCloseBlock(b.doc, next, b.depth) {
		b.enable(b.consume(next))
		c.openDepth--
	}
}

func (b *Rehydrate) PushRemoteElement(id string, target, insertBefore dom.Node, replace bool) {
	marker := dom.Nil
	for n := b.doc.FirstChild(target); n != dom.Nil; n = b.doc.NextSibling(n) {
		if m := markerOf(b.doc, n); m.Kind == MarkerOpenRemote && m.ID == id {
			marker = n
			break
		}
	}
	b.opened[id] = true
	region := b.newRegion(id)
	if replace {
		for n := b.doc.FirstChild(target); n != dom.Nil && n != marker; {
			next := b.doc.NextSibling(n)
			if b.doc.Kind(n) != dom.CommentKind {
				region.Removed++
			}
			b.doc.Remove(n)
			n = next
		}
		insertBefore = dom.Nil
	}
	b.pushRemoteDepth()
	c := &cursor{
		element:   target,
		next:      insertBefore,
		openDepth: -1,
		remote:    id,
		region:    region,
	}
	b.pushCursor(c)
	if marker == dom.Nil {
		b.log.Debug().Str("region", id).Msg("remote region has no marker")
		if b.keepMarkers {
			b.marker(OpenRemoteMarker(id))
		}
		return
	}
	c.candidate = b.consume(marker)
}

func (b *Rehydrate) PopRemoteElement() {
	c := b.current()
	if c.remote == "" {
		panic("builder: pop remote element while an element is open")
	}
	closed := false
	if c.candidate != dom.Nil {
		n := c.candidate
		for n != dom.Nil && !isCloseRemote(b.doc, n, c.remote) {
			n = b.discard(n)
		}
		if n != dom.Nil {
			b.consume(n)
			closed = true
		}
	} else if c.next != dom.Nil && isCloseRemote(b.doc, c.next, c.remote) {
		b.consume(c.next)
		closed = true
	}
	if !closed && b.keepMarkers {
		b.marker(CloseRemoteMarker(c.remote))
	}
	b.popCursor()
	b.popRemoteDepth()
}

// Finish removes whatever the pass did not reach at the root, and the
// remote regions of the previous pass that this pass did not open.
func (b *Rehydrate) Finish() Bounds {
	if c := b.root(); c.candidate != dom.Nil {
		b.clearMismatch(c.candidate)
	}
	b.sweepRemote()
	return b.bounds()
}

func (b *Rehydrate) sweepRemote() {
	var stale []dom.Node
	var walk func(n dom.Node)
	walk = func(n dom.Node) {
		for c := b.doc.FirstChild(n); c != dom.Nil; c = b.doc.NextSibling(c) {
			if b.doc.Kind(c) == dom.ElementKind {
				walk(c)
			} else if m := markerOf(b.doc, c); m.Kind == MarkerOpenRemote && !b.opened[m.ID] {
				stale = append(stale, c)
			}
		}
	}
	for _, top := range b.scan {
		walk(top)
	}
	for _, marker := range stale {
		// Gone with an enclosing stale region
		if !slices.Contains(b.scan, topOf(b.doc, marker)) {
			continue
		}
		id := markerOf(b.doc, marker).ID
		region := b.newRegion(id)
		for n := marker; n != dom.Nil; {
			next := b.doc.NextSibling(n)
			closing := isCloseRemote(b.doc, n, id)
			if b.doc.Kind(n) != dom.CommentKind {
				region.Removed++
			}
			b.doc.Remove(n)
			if closing {
				break
			}
			n = next
		}
		b.log.Debug().Str("region", id).Int("removed", region.Removed).Msg("stale remote region")
	}
}

// topOf returns the outermost ancestor of n, or n itself when detached.
func topOf(doc *dom.Document, n dom.Node) dom.Node {
	for {
		p := doc.Parent(n)
		if p == dom.Nil {
			return n
		}
		n = p
	}
}
