// Package builder implements the two strategies a render uses to write into
// a document: Create, which allocates every node, and Rehydrate, which walks
// a tree produced by an earlier Create pass and adopts what still matches.
//
// A Create pass configured to serialize brackets every dynamic region with
// marker comments (see markers.go). Rehydrate relies on those markers to
// find region boundaries. When a node at the cursor does not match what the
// program asks for, Rehydrate removes the rest of the enclosing region and
// creates from then on, until the region's end marker is reached.
package builder

import (
	"github.com/deepnoodle-ai/rehydra/dom"
	"github.com/rs/zerolog"
)

// Builder is the only way a render touches the document.
type Builder interface {
	// Document returns the document being written.
	Document() *dom.Document

	// OpenElement starts an element. Attributes may be set until
	// FlushElement attaches it.
	OpenElement(tag, ns string) dom.Node

	// Constructing returns the element opened by OpenElement and not yet
	// flushed.
	Constructing() dom.Node

	SetAttribute(name, ns, value string)
	RemoveAttribute(name, ns string)
	FlushElement()
	CloseElement()

	AppendText(text string) dom.Node
	AppendComment(text string) dom.Node

	// OpenBlock and CloseBlock bound a region whose node count can vary.
	OpenBlock()
	CloseBlock()

	// PushRemoteElement redirects output into target, before insertBefore
	// (Nil appends). With replace set, the existing content of target is
	// discarded. id names the region within one render.
	PushRemoteElement(id string, target, insertBefore dom.Node, replace bool)
	PopRemoteElement()

	// Finish completes the pass and returns the nodes written at the root.
	Finish() Bounds

	Stats() Stats
}

// Config configures a builder.
type Config struct {
	// Serialize emits marker comments so that the output can be rehydrated
	// after a round trip through HTML. Create only.
	Serialize bool

	// KeepMarkers leaves consumed markers in the tree and marks the regions
	// a pass creates, so the result can be rehydrated again. Rehydrate only.
	KeepMarkers bool

	// Targets are remote targets of the previous pass that are not in the
	// same tree as the root. Rehydrate removes the regions a pass does not
	// open from the root's tree and from these. Rehydrate only.
	Targets []dom.Node

	// Logger receives debug events about mismatches. Defaults to a no-op
	// logger.
	Logger *zerolog.Logger
}

func (c Config) logger() zerolog.Logger {
	if c.Logger == nil {
		return zerolog.Nop()
	}
	return *c.Logger
}

// Bounds are the first and last nodes a pass wrote into its root. Remote
// holds the bounds of every remote region the pass wrote, in the order the
// regions were closed.
type Bounds struct {
	Parent dom.Node
	First  dom.Node
	Last   dom.Node
	Remote []Bounds
}

// Nodes returns the nodes from First to Last.
func (b Bounds) Nodes(doc *dom.Document) []dom.Node {
	if b.First == dom.Nil {
		return nil
	}
	var out []dom.Node
	for n := b.First; n != dom.Nil; n = doc.NextSibling(n) {
		out = append(out, n)
		if n == b.Last {
			break
		}
	}
	return out
}

// RegionStats counts the nodes a pass adopted, removed and created in one
// tree: the root, or the target of one remote region.
type RegionStats struct {
	ID      string
	Adopted int
	Removed int
	Created int
}

// Stats summarizes a pass. Removed counts stale non-comment nodes taken out
// of the tree; nodes nested inside a removed node are not counted.
type Stats struct {
	Adopted int
	Removed int
	Created int
	Regions []RegionStats
}

// cursor is the position of a pass within one parent node.
type cursor struct {
	element dom.Node

	// next is the node new nodes are inserted before; Nil appends.
	next dom.Node

	// candidate is the existing node the next instruction is matched
	// against. Nil means the cursor creates.
	candidate dom.Node

	// Block depth when the cursor was pushed, and depth of the last block
	// whose start marker was consumed in it.
	startDepth int
	openDepth  int

	// Set for a tbody pushed to reach rows the HTML parser moved into it.
	injected bool

	// Remote region id, for cursors pushed by PushRemoteElement.
	remote string

	region *RegionStats

	// Nodes written directly under this cursor.
	first, last dom.Node
}

// tree is the state shared by both strategies.
type tree struct {
	doc          *dom.Document
	log          zerolog.Logger
	cursors      []*cursor
	constructing dom.Node
	depth        int
	savedDepths  []int
	regions      []*RegionStats
	remote       []Bounds
}

func newTree(doc *dom.Document, root dom.Node, cfg Config) tree {
	t := tree{doc: doc, log: cfg.logger()}
	region := &RegionStats{}
	t.regions = append(t.regions, region)
	t.cursors = append(t.cursors, &cursor{element: root, openDepth: -1, region: region})
	return t
}

func (t *tree) Document() *dom.Document {
	return t.doc
}

func (t *tree) Constructing() dom.Node {
	return t.constructing
}

func (t *tree) current() *cursor {
	if len(t.cursors) == 0 {
		panic("builder: no open cursor")
	}
	return t.cursors[len(t.cursors)-1]
}

func (t *tree) root() *cursor {
	return t.cursors[0]
}

// record notes that n now belongs directly to cursor c.
func (t *tree) record(c *cursor, n dom.Node) {
	if c.first == dom.Nil {
		c.first = n
	}
	c.last = n
}

// insert places a new node at the insertion point of the current cursor.
func (t *tree) insert(n dom.Node) dom.Node {
	c := t.current()
	t.doc.InsertBefore(c.element, n, c.next)
	t.record(c, n)
	return n
}

// marker inserts a marker comment at the insertion point.
func (t *tree) marker(text string) dom.Node {
	return t.insert(t.doc.CreateComment(text))
}

// previous returns the node just before the insertion point.
func (t *tree) previous() dom.Node {
	c := t.current()
	if c.next != dom.Nil {
		return t.doc.PreviousSibling(c.next)
	}
	return t.doc.LastChild(c.element)
}

// created inserts a new content node and counts it.
func (t *tree) created(n dom.Node) dom.Node {
	t.insert(n)
	c := t.current()
	c.region.Created++
	return n
}

func (t *tree) pushCursor(c *cursor) {
	if c.region == nil {
		c.region = t.current().region
	}
	t.cursors = append(t.cursors, c)
}

func (t *tree) popCursor() *cursor {
	if len(t.cursors) <= 1 {
		panic("builder: close without a matching open")
	}
	c := t.current()
	t.cursors = t.cursors[:len(t.cursors)-1]
	if c.remote != "" {
		t.remote = append(t.remote, Bounds{Parent: c.element, First: c.first, Last: c.last})
	}
	return c
}

func (t *tree) mustConstructing() dom.Node {
	if t.constructing == dom.Nil {
		panic("builder: no element is being constructed")
	}
	return t.constructing
}

// inRawText reports whether the current cursor is inside an element whose
// content the HTML parser does not tokenize.
func (t *tree) inRawText() bool {
	return rawText(t.doc.TagName(t.current().element))
}

func (t *tree) pushRemoteDepth() {
	t.savedDepths = append(t.savedDepths, t.depth)
	t.depth = 0
}

func (t *tree) popRemoteDepth() {
	if len(t.savedDepths) == 0 {
		panic("builder: pop remote element without a matching push")
	}
	t.depth = t.savedDepths[len(t.savedDepths)-1]
	t.savedDepths = t.savedDepths[:len(t.savedDepths)-1]
}

func (t *tree) newRegion(id string) *RegionStats {
	r := &RegionStats{ID: id}
	t.regions = append(t.regions, r)
	return r
}

func (t *tree) bounds() Bounds {
	r := t.root()
	return Bounds{Parent: r.element, First: r.first, Last: r.last, Remote: t.remote}
}

func (t *tree) Stats() Stats {
	var s Stats
	for _, r := range t.regions {
		s.Adopted += r.Adopted
		s.Removed += r.Removed
		s.Created += r.Created
		s.Regions = append(s.Regions, *r)
	}
	return s
}
