package builder

import (
	"testing"

	"github.com/deepnoodle-ai/rehydra/dom"
	"github.com/stretchr/testify/require"
)

func newRoot() (*dom.Document, dom.Node) {
	doc := dom.NewDocument()
	return doc, doc.CreateElement("div", "")
}

func inner(t *testing.T, doc *dom.Document, n dom.Node) string {
	t.Helper()
	out, err := doc.InnerHTML(n)
	require.NoError(t, err)
	return out
}

// parsed returns a fresh document holding markup under a div root, the way
// a client receives server output.
func parsed(t *testing.T, markup string) (*dom.Document, dom.Node) {
	t.Helper()
	doc, root := newRoot()
	require.NoError(t, doc.ParseInto(root, markup))
	return doc, root
}

// paragraph writes a block holding one paragraph with the given class and
// text children.
func paragraph(b Builder, class string, texts ...string) {
	b.OpenBlock()
	b.OpenElement("p", "")
	b.SetAttribute("class", "", class)
	b.FlushElement()
	for _, text := range texts {
		b.AppendText(text)
	}
	b.CloseElement()
	b.CloseBlock()
}

const serializedParagraph = `<!--%+b:0%--><p class="x">a<!--%|%-->b<!--% %--></p><!--%-b:0%-->`

func TestCreateSerialize(t *testing.T) {
	doc, root := newRoot()
	b := NewCreate(doc, root, Config{Serialize: true})
	paragraph(b, "x", "a", "b", "")
	bounds := b.Finish()

	require.Equal(t, serializedParagraph, inner(t, doc, root))
	require.Equal(t, root, bounds.Parent)
	require.Equal(t, "%+b:0%", doc.Data(bounds.First))
	require.Equal(t, "%-b:0%", doc.Data(bounds.Last))
	require.Len(t, bounds.Nodes(doc), 3)
	require.Equal(t, 3, b.Stats().Created)
	require.NoError(t, VerifyMarkers(doc, root))
}

func TestCreateWithoutMarkers(t *testing.T) {
	doc, root := newRoot()
	b := NewCreate(doc, root, Config{})
	paragraph(b, "x", "a", "b", "")
	bounds := b.Finish()

	require.Equal(t, `<p class="x">ab</p>`, inner(t, doc, root))
	require.Equal(t, bounds.First, bounds.Last)
	require.Equal(t, 4, b.Stats().Created)
}

func TestCreateRawText(t *testing.T) {
	doc, root := newRoot()
	b := NewCreate(doc, root, Config{Serialize: true})
	b.OpenElement("script", "")
	b.FlushElement()
	b.OpenBlock()
	b.AppendText("a")
	b.AppendText("b")
	b.CloseBlock()
	b.CloseElement()
	b.Finish()
	require.Equal(t, `<script>ab</script>`, inner(t, doc, root))
}

func TestRehydrateAdoptsEverything(t *testing.T) {
	doc, root := parsed(t, serializedParagraph)
	b := NewRehydrate(doc, root, Config{})
	paragraph(b, "x", "a", "b", "")
	bounds := b.Finish()

	require.Equal(t, `<p class="x">ab</p>`, inner(t, doc, root))
	stats := b.Stats()
	require.Equal(t, 4, stats.Adopted)
	require.Zero(t, stats.Created)
	require.Zero(t, stats.Removed)
	require.Equal(t, bounds.First, bounds.Last)
	require.Equal(t, "p", doc.TagName(bounds.First))
}

func TestRehydrateKeepsIdentity(t *testing.T) {
	doc, root := parsed(t, `<!--%+b:0%--><p class="x">a</p><!--%-b:0%-->`)
	p := doc.NextSibling(doc.FirstChild(root))
	text := doc.FirstChild(p)

	b := NewRehydrate(doc, root, Config{})
	paragraph(b, "y", "changed")
	b.Finish()

	require.Equal(t, []dom.Node{p}, doc.Children(root))
	require.Equal(t, []dom.Node{text}, doc.Children(p))
	require.Equal(t, `<p class="y">changed</p>`, inner(t, doc, root))
	require.Equal(t, 2, b.Stats().Adopted)
}

func TestRehydrateRemovesUnmatchedAttributes(t *testing.T) {
	doc, root := parsed(t, `<!--%+b:0%--><p class="x" id="a"></p><!--%-b:0%-->`)
	b := NewRehydrate(doc, root, Config{})
	paragraph(b, "x")
	b.Finish()
	require.Equal(t, `<p class="x"></p>`, inner(t, doc, root))
}

func TestRehydrateMismatchClearsRegion(t *testing.T) {
	doc, root := parsed(t, `<!--%+b:0%--><p>old</p><!--%-b:0%-->`)
	b := NewRehydrate(doc, root, Config{})
	b.OpenBlock()
	b.OpenElement("span", "")
	b.FlushElement()
	b.AppendText("new")
	b.CloseElement()
	b.CloseBlock()
	b.Finish()

	require.Equal(t, `<span>new</span>`, inner(t, doc, root))
	stats := b.Stats()
	require.Equal(t, 1, stats.Removed)
	require.Equal(t, 2, stats.Created)
	require.Zero(t, stats.Adopted)
}

func TestRehydrateResumesAfterRegion(t *testing.T) {
	doc, root := parsed(t, `<!--%+b:0%--><p>old</p><!--%-b:0%--><em>kept</em>`)
	b := NewRehydrate(doc, root, Config{})
	b.OpenBlock()
	b.AppendText("replaced")
	b.CloseBlock()
	b.OpenElement("em", "")
	b.FlushElement()
	b.AppendText("kept")
	b.CloseElement()
	b.Finish()

	require.Equal(t, `replaced<em>kept</em>`, inner(t, doc, root))
	stats := b.Stats()
	require.Equal(t, 1, stats.Removed)
	require.Equal(t, 1, stats.Created)
	require.Equal(t, 2, stats.Adopted)
}

func TestRehydrateSweepsStaleNodes(t *testing.T) {
	doc, root := parsed(t, `<!--%+b:0%-->x<!--%-b:0%--><p>y</p>`)
	b := NewRehydrate(doc, root, Config{})
	bounds := b.Finish()

	require.Equal(t, "", inner(t, doc, root))
	require.Equal(t, 2, b.Stats().Removed)
	require.Equal(t, dom.Nil, bounds.First)
	require.Empty(t, bounds.Nodes(doc))
}

func TestRehydrateIgnoresForeignPrefix(t *testing.T) {
	doc, root := parsed(t, `<em>keep</em><!--%+b:0%-->x<!--%-b:0%-->`)
	b := NewRehydrate(doc, root, Config{})
	b.OpenBlock()
	b.AppendText("x")
	b.CloseBlock()
	b.Finish()

	require.Equal(t, `<em>keep</em>x`, inner(t, doc, root))
	require.Equal(t, 1, b.Stats().Adopted)
}

func TestRehydrateInjectedTbody(t *testing.T) {
	doc, root := newRoot()
	b := NewCreate(doc, root, Config{Serialize: true})
	table := func(b Builder) {
		b.OpenElement("table", "")
		b.FlushElement()
		b.OpenBlock()
		b.OpenElement("tr", "")
		b.FlushElement()
		b.CloseElement()
		b.CloseBlock()
		b.CloseElement()
	}
	table(b)
	b.Finish()
	markup := inner(t, doc, root)

	doc, root = parsed(t, markup)
	r := NewRehydrate(doc, root, Config{})
	table(r)
	r.Finish()

	require.Equal(t, `<table><tbody><tr></tr></tbody></table>`, inner(t, doc, root))
	stats := r.Stats()
	require.Equal(t, 2, stats.Adopted)
	require.Zero(t, stats.Removed)
	require.Zero(t, stats.Created)
}

func TestKeepMarkers(t *testing.T) {
	doc, root := parsed(t, serializedParagraph)
	b := NewRehydrate(doc, root, Config{KeepMarkers: true})
	paragraph(b, "x", "a", "b", "")
	bounds := b.Finish()

	require.Equal(t, serializedParagraph, inner(t, doc, root))
	require.NoError(t, VerifyMarkers(doc, root))
	require.Equal(t, "%+b:0%", doc.Data(bounds.First))
	require.Equal(t, "%-b:0%", doc.Data(bounds.Last))
}

func TestKeepMarkersOnCreatedRegions(t *testing.T) {
	doc, root := parsed(t, `<!--%+b:0%-->a<!--%-b:0%-->`)
	b := NewRehydrate(doc, root, Config{KeepMarkers: true})
	b.OpenBlock()
	b.AppendText("a")
	b.CloseBlock()
	b.OpenBlock()
	b.AppendText("b")
	b.CloseBlock()
	b.Finish()

	require.Equal(t, `<!--%+b:0%-->a<!--%-b:0%--><!--%+b:0%-->b<!--%-b:0%-->`, inner(t, doc, root))
	require.NoError(t, VerifyMarkers(doc, root))
	stats := b.Stats()
	require.Equal(t, 1, stats.Adopted)
	require.Equal(t, 1, stats.Created)
}

func TestRemoteReplace(t *testing.T) {
	doc, root := newRoot()
	outlet := doc.CreateElement("section", "")
	doc.AppendChild(outlet, doc.CreateElement("i", ""))

	b := NewCreate(doc, root, Config{Serialize: true})
	b.PushRemoteElement("1", outlet, dom.Nil, true)
	b.AppendText("r")
	b.PopRemoteElement()
	bounds := b.Finish()

	require.Equal(t, `<!--%+r:1%-->r<!--%-r:1%-->`, inner(t, doc, outlet))
	require.Equal(t, "", inner(t, doc, root))
	require.Len(t, bounds.Remote, 1)
	require.Equal(t, outlet, bounds.Remote[0].Parent)
	require.Len(t, bounds.Remote[0].Nodes(doc), 3)

	stats := b.Stats()
	require.Equal(t, []RegionStats{{}, {ID: "1", Created: 1}}, stats.Regions)
	require.NoError(t, VerifyMarkers(doc, outlet))
}

func TestRemoteInsertBefore(t *testing.T) {
	doc, root := newRoot()
	outlet := doc.CreateElement("ul", "")
	last := doc.CreateElement("li", "")
	doc.AppendChild(outlet, last)

	b := NewCreate(doc, root, Config{})
	b.PushRemoteElement("1", outlet, last, false)
	b.OpenElement("li", "")
	b.SetAttribute("class", "", "first")
	b.FlushElement()
	b.CloseElement()
	b.PopRemoteElement()
	b.Finish()

	require.Equal(t, `<li class="first"></li><li></li>`, inner(t, doc, outlet))
}

func TestRemoteRehydrate(t *testing.T) {
	doc, page := newRoot()
	root := doc.CreateElement("main", "")
	doc.SetAttribute(root, "id", "", "root")
	outlet := doc.CreateElement("section", "")
	doc.SetAttribute(outlet, "id", "", "out")
	doc.AppendChild(page, root)
	doc.AppendChild(page, outlet)

	remote := func(b Builder, outlet dom.Node, text string) {
		b.OpenBlock()
		b.PushRemoteElement("1", outlet, dom.Nil, true)
		b.AppendText(text)
		b.PopRemoteElement()
		b.CloseBlock()
	}
	b := NewCreate(doc, root, Config{Serialize: true})
	remote(b, outlet, "r")
	b.Finish()
	markup := inner(t, doc, page)

	doc, page = parsed(t, markup)
	root = doc.GetElementByID(page, "root")
	outlet = doc.GetElementByID(page, "out")
	r := NewRehydrate(doc, root, Config{})
	remote(r, outlet, "s")
	bounds := r.Finish()

	require.Equal(t, "s", inner(t, doc, outlet))
	require.Equal(t, "", inner(t, doc, root))
	stats := r.Stats()
	require.Equal(t, []RegionStats{{}, {ID: "1", Adopted: 1}}, stats.Regions)
	require.Len(t, bounds.Remote, 1)
	require.Equal(t, []dom.Node{doc.FirstChild(outlet)}, bounds.Remote[0].Nodes(doc))
}

func TestVerifyMarkers(t *testing.T) {
	tests := []struct {
		name   string
		markup string
		err    string
	}{
		{"balanced", `<!--%+b:0%--><p><!--%+b:1%--><!--%-b:1%--></p><!--%-b:0%-->`, ""},
		{"nested", `<!--%+b:0%--><!--%+b:1%--><!--%-b:1%--><!--%-b:0%-->`, ""},
		{"skipped depth", `<!--%+b:1%-->`, "block start at depth 1, expected depth 0"},
		{"unmatched end", `<!--%-b:0%-->`, "unmatched block end at depth 0"},
		{"unclosed block", `<!--%+b:0%-->`, "1 block(s) are never closed"},
		{"unclosed remote", `<!--%+r:1%-->`, `remote region "1" is never closed`},
		{"remote with open block", `<!--%+r:1%--><!--%+b:0%--><!--%-r:1%-->`, `remote region "1" closed with 1 open block(s)`},
		{"unmatched remote end", `<!--%-r:2%-->`, `unmatched remote end "2"`},
		{"plain comments", `<!--note--><!--%x%-->`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, root := parsed(t, tt.markup)
			err := VerifyMarkers(doc, root)
			if tt.err == "" {
				require.NoError(t, err)
				return
			}
			require.EqualError(t, err, tt.err)
		})
	}
}

func TestParseMarker(t *testing.T) {
	tests := []struct {
		text string
		want Marker
	}{
		{"%+b:0%", Marker{Kind: MarkerOpenBlock}},
		{"%-b:12%", Marker{Kind: MarkerCloseBlock, Depth: 12}},
		{"%|%", Marker{Kind: MarkerSeparator}},
		{"% %", Marker{Kind: MarkerEmptyText}},
		{"%+r:a1%", Marker{Kind: MarkerOpenRemote, ID: "a1"}},
		{"%-r:a1%", Marker{Kind: MarkerCloseRemote, ID: "a1"}},
		{"%+b:-1%", Marker{}},
		{"%+b:x%", Marker{}},
		{"%+q:1%", Marker{}},
		{"hello", Marker{}},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, ParseMarker(tt.text), tt.text)
	}
	require.Equal(t, "%+b:3%", OpenBlockMarker(3))
	require.Equal(t, "%-r:7%", CloseRemoteMarker("7"))
}

// textThenDiv writes a region holding text followed by an element that no
// change to the text may disturb.
func textThenDiv(b Builder, text string) {
	b.OpenBlock()
	b.AppendText(text)
	b.OpenElement("div", "")
	b.FlushElement()
	b.AppendText("keep")
	b.CloseElement()
	b.CloseBlock()
}

func serialized(t *testing.T, text string) string {
	t.Helper()
	doc, root := newRoot()
	b := NewCreate(doc, root, Config{Serialize: true})
	textThenDiv(b, text)
	b.Finish()
	return inner(t, doc, root)
}

func TestRehydrateFillsEmptyText(t *testing.T) {
	markup := serialized(t, "")
	require.Equal(t, `<!--%+b:0%--><!--% %--><div>keep</div><!--%-b:0%-->`, markup)

	doc, root := parsed(t, markup)
	div := doc.NextSibling(doc.NextSibling(doc.FirstChild(root)))
	r := NewRehydrate(doc, root, Config{})
	textThenDiv(r, "x")
	r.Finish()

	require.Equal(t, "x<div>keep</div>", inner(t, doc, root))
	require.Equal(t, div, doc.NextSibling(doc.FirstChild(root)))
	stats := r.Stats()
	require.Equal(t, 3, stats.Adopted)
	require.Equal(t, 0, stats.Removed)
	require.Equal(t, 0, stats.Created)
}

func TestRehydrateEmptiedTextKeepsPlaceholder(t *testing.T) {
	doc, root := parsed(t, serialized(t, "x"))
	r := NewRehydrate(doc, root, Config{KeepMarkers: true})
	textThenDiv(r, "")
	r.Finish()
	repaired := inner(t, doc, root)
	require.Equal(t, serialized(t, ""), repaired)

	for _, text := range []string{"", "y"} {
		doc, root = parsed(t, repaired)
		r = NewRehydrate(doc, root, Config{KeepMarkers: true})
		textThenDiv(r, text)
		r.Finish()
		require.Equal(t, serialized(t, text), inner(t, doc, root))
		require.Equal(t, 0, r.Stats().Removed)
		require.Equal(t, 0, r.Stats().Created)
	}
}

func TestRehydrateAdjacentTextsKeepSeparators(t *testing.T) {
	write := func(b Builder, texts ...string) {
		b.OpenElement("p", "")
		b.FlushElement()
		for _, text := range texts {
			b.AppendText(text)
		}
		b.CloseElement()
	}
	doc, root := newRoot()
	c := NewCreate(doc, root, Config{Serialize: true})
	write(c, "", "")
	c.Finish()
	require.Equal(t, `<p><!--% %--><!--% %--></p>`, inner(t, doc, root))

	doc, root = parsed(t, inner(t, doc, root))
	r := NewRehydrate(doc, root, Config{KeepMarkers: true})
	write(r, "a", "b")
	r.Finish()
	require.Equal(t, `<p>a<!--%|%-->b</p>`, inner(t, doc, root))
	require.Equal(t, 0, r.Stats().Created)

	doc, root = parsed(t, `<p><!--% %-->b</p>`)
	r = NewRehydrate(doc, root, Config{KeepMarkers: true})
	write(r, "a", "b")
	r.Finish()
	require.Equal(t, `<p>a<!--%|%-->b</p>`, inner(t, doc, root))
	require.Equal(t, 3, r.Stats().Adopted)
}

func TestRehydrateRemovesRegionsNotOpened(t *testing.T) {
	doc, root := newRoot()
	outlet := doc.CreateElement("section", "")
	c := NewCreate(doc, root, Config{Serialize: true})
	c.PushRemoteElement("gone", outlet, dom.Nil, true)
	c.AppendText("g")
	c.PopRemoteElement()
	c.PushRemoteElement("kept", outlet, dom.Nil, false)
	c.AppendText("k")
	c.PopRemoteElement()
	c.Finish()
	require.Equal(t, `<!--%+r:gone%-->g<!--%-r:gone%--><!--%+r:kept%-->k<!--%-r:kept%-->`, inner(t, doc, outlet))

	r := NewRehydrate(doc, root, Config{KeepMarkers: true, Targets: []dom.Node{outlet}})
	r.PushRemoteElement("kept", outlet, dom.Nil, false)
	r.AppendText("k")
	r.PopRemoteElement()
	r.Finish()

	require.Equal(t, `<!--%+r:kept%-->k<!--%-r:kept%-->`, inner(t, doc, outlet))
	require.Equal(t, []RegionStats{{}, {ID: "kept", Adopted: 1}, {ID: "gone", Removed: 1}}, r.Stats().Regions)
	require.NoError(t, VerifyMarkers(doc, outlet))
}

func TestRawTextElementsHaveNoMarkers(t *testing.T) {
	for _, tag := range []string{"title", "textarea", "noscript", "xmp", "iframe", "noembed", "noframes"} {
		t.Run(tag, func(t *testing.T) {
			doc, root := newRoot()
			b := NewCreate(doc, root, Config{Serialize: true})
			b.OpenElement(tag, "")
			b.FlushElement()
			b.OpenBlock()
			b.AppendText("a")
			b.AppendText("")
			b.AppendText("b")
			b.CloseBlock()
			b.CloseElement()
			b.Finish()
			require.Equal(t, "<"+tag+">ab</"+tag+">", inner(t, doc, root))
		})
	}
	require.True(t, rawText("PLAINTEXT"))
}
