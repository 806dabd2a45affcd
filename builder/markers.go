package builder

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/deepnoodle-ai/rehydra/dom"
)

// Marker comments bound the dynamic regions of serialized output. They all
// have the form %...%, which templates may not use for their own comments.
const (
	SeparatorMarker = "%|%"
	EmptyTextMarker = "% %"
)

// MarkerKind identifies the role of a marker comment.
type MarkerKind uint8

const (
	NotMarker MarkerKind = iota
	MarkerOpenBlock
	MarkerCloseBlock
	MarkerSeparator
	MarkerEmptyText
	MarkerOpenRemote
	MarkerCloseRemote
)

// Marker is a parsed marker comment.
type Marker struct {
	Kind  MarkerKind
	Depth int
	ID    string
}

// OpenBlockMarker returns the text of the comment that starts a region at
// the given block depth.
func OpenBlockMarker(depth int) string {
	return "%+b:" + strconv.Itoa(depth) + "%"
}

// CloseBlockMarker returns the text of the comment that ends a region at the
// given block depth.
func CloseBlockMarker(depth int) string {
	return "%-b:" + strconv.Itoa(depth) + "%"
}

// OpenRemoteMarker returns the text of the comment that starts a remote
// region inside its target.
func OpenRemoteMarker(id string) string {
	return "%+r:" + id + "%"
}

// CloseRemoteMarker returns the text of the comment that ends a remote
// region inside its target.
func CloseRemoteMarker(id string) string {
	return "%-r:" + id + "%"
}

// ParseMarker parses comment text. The result has Kind NotMarker for text
// that is not a well-formed marker.
func ParseMarker(text string) Marker {
	switch text {
	case SeparatorMarker:
		return Marker{Kind: MarkerSeparator}
	case EmptyTextMarker:
		return Marker{Kind: MarkerEmptyText}
	}
	if len(text) < 6 || text[0] != '%' || text[len(text)-1] != '%' || text[3] != ':' {
		return Marker{}
	}
	body := text[4 : len(text)-1]
	switch text[1:3] {
	case "+b", "-b":
		depth, err := strconv.Atoi(body)
		if err != nil || depth < 0 {
			return Marker{}
		}
		if text[1] == '+' {
			return Marker{Kind: MarkerOpenBlock, Depth: depth}
		}
		return Marker{Kind: MarkerCloseBlock, Depth: depth}
	case "+r":
		return Marker{Kind: MarkerOpenRemote, ID: body}
	case "-r":
		return Marker{Kind: MarkerCloseRemote, ID: body}
	}
	return Marker{}
}

func markerOf(doc *dom.Document, n dom.Node) Marker {
	if n == dom.Nil || doc.Kind(n) != dom.CommentKind {
		return Marker{}
	}
	return ParseMarker(doc.Data(n))
}

func isOpenBlock(doc *dom.Document, n dom.Node, depth int) bool {
	m := markerOf(doc, n)
	return m.Kind == MarkerOpenBlock && m.Depth == depth
}

func isCloseBlock(doc *dom.Document, n dom.Node, depth int) bool {
	m := markerOf(doc, n)
	return m.Kind == MarkerCloseBlock && m.Depth == depth
}

func isCloseRemote(doc *dom.Document, n dom.Node, id string) bool {
	m := markerOf(doc, n)
	return m.Kind == MarkerCloseRemote && m.ID == id
}

// rawText elements hold text the HTML parser does not tokenize, so markers
// cannot be placed in them.
func rawText(tag string) bool {
	switch strings.ToLower(tag) {
	case "title", "script", "style", "textarea", "noscript", "xmp",
		"iframe", "noembed", "noframes", "plaintext":
		return true
	}
	return false
}

// VerifyMarkers checks that the markers under root are balanced: every
// block start has exactly one matching end at the same depth, regions nest
// without overlap, and remote regions are closed before the region that
// contains them.
func VerifyMarkers(doc *dom.Document, root dom.Node) error {
	type region struct {
		id     string
		blocks []int
	}
	stack := []*region{{}}
	var walk func(n dom.Node) error
	walk = func(n dom.Node) error {
		for c := doc.FirstChild(n); c != dom.Nil; c = doc.NextSibling(c) {
			if doc.Kind(c) == dom.ElementKind {
				if err := walk(c); err != nil {
					return err
				}
				continue
			}
			top := stack[len(stack)-1]
			m := markerOf(doc, c)
			switch m.Kind {
			case MarkerOpenBlock:
				if m.Depth != len(top.blocks) {
					return fmt.Errorf("block start at depth %d, expected depth %d", m.Depth, len(top.blocks))
				}
				top.blocks = append(top.blocks, m.Depth)
			case MarkerCloseBlock:
				if len(top.blocks) == 0 || top.blocks[len(top.blocks)-1] != m.Depth {
					return fmt.Errorf("unmatched block end at depth %d", m.Depth)
				}
				top.blocks = top.blocks[:len(top.blocks)-1]
			case MarkerOpenRemote:
				stack = append(stack, &region{id: m.ID})
			case MarkerCloseRemote:
				if len(stack) == 1 || top.id != m.ID {
					return fmt.Errorf("unmatched remote end %q", m.ID)
				}
				if len(top.blocks) > 0 {
					return fmt.Errorf("remote region %q closed with %d open block(s)", m.ID, len(top.blocks))
				}
				stack = stack[:len(stack)-1]
			}
		}
		return nil
	}
	if err := walk(root); err != nil {
		return err
	}
	if len(stack) > 1 {
		return fmt.Errorf("remote region %q is never closed", stack[len(stack)-1].id)
	}
	if n := len(stack[0].blocks); n > 0 {
		return fmt.Errorf("%d block(s) are never closed", n)
	}
	return nil
}
