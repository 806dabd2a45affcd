package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/deepnoodle-ai/rehydra"
	"github.com/deepnoodle-ai/rehydra/builder"
	"github.com/deepnoodle-ai/rehydra/dom"
	"github.com/spf13/cobra"
)

var markersCmd = &cobra.Command{
	Use:   "markers <page.html>",
	Short: "List the rehydration markers in server-rendered markup",
	Long: `List the rehydration markers in server-rendered markup and check that
they are balanced. Exits non-zero when they are not.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMarkers(args[0], cmd.OutOrStdout())
	},
}

// markerEntry is a marker comment and the element it sits in.
type markerEntry struct {
	Parent string `json:"parent"`
	Kind   string `json:"kind"`
	Depth  int    `json:"depth"`
	ID     string `json:"id,omitempty"`
	Nest   int    `json:"-"`
}

func runMarkers(path string, w io.Writer) error {
	format, err := outputFormat()
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	doc, root, err := rehydra.Parse(string(data))
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	entries := collectMarkers(doc, root)
	verr := builder.VerifyMarkers(doc, root)

	if format == "json" {
		out := map[string]any{"markers": entries, "balanced": verr == nil}
		if verr != nil {
			out["error"] = verr.Error()
		}
		if err := printJSON(w, out); err != nil {
			return err
		}
	} else {
		printMarkers(w, entries)
	}
	if verr != nil {
		return fmt.Errorf("%s: %w", path, verr)
	}
	return nil
}

// collectMarkers lists the marker comments under root in document order.
// Nest is the number of enclosing open regions, for display.
func collectMarkers(doc *dom.Document, root dom.Node) []markerEntry {
	var entries []markerEntry
	nest := 0
	var walk func(n dom.Node)
	walk = func(n dom.Node) {
		for c := doc.FirstChild(n); c != dom.Nil; c = doc.NextSibling(c) {
			switch doc.Kind(c) {
			case dom.ElementKind:
				walk(c)
				continue
			case dom.CommentKind:
			default:
				continue
			}
			m := builder.ParseMarker(doc.Data(c))
			if m.Kind == builder.NotMarker {
				continue
			}
			if m.Kind == builder.MarkerCloseBlock || m.Kind == builder.MarkerCloseRemote {
				nest = max(nest-1, 0)
			}
			entries = append(entries, markerEntry{
				Parent: doc.TagName(n),
				Kind:   markerKindName(m.Kind),
				Depth:  m.Depth,
				ID:     m.ID,
				Nest:   nest,
			})
			if m.Kind == builder.MarkerOpenBlock || m.Kind == builder.MarkerOpenRemote {
				nest++
			}
		}
	}
	walk(root)
	return entries
}

func markerKindName(kind builder.MarkerKind) string {
	switch kind {
	case builder.MarkerOpenBlock:
		return "open"
	case builder.MarkerCloseBlock:
		return "close"
	case builder.MarkerSeparator:
		return "separator"
	case builder.MarkerEmptyText:
		return "empty-text"
	case builder.MarkerOpenRemote:
		return "open-remote"
	case builder.MarkerCloseRemote:
		return "close-remote"
	}
	return "none"
}

func printMarkers(w io.Writer, entries []markerEntry) {
	for _, e := range entries {
		label := e.Kind
		switch e.Kind {
		case "open", "close":
			label = fmt.Sprintf("%s b:%d", e.Kind, e.Depth)
		case "open-remote", "close-remote":
			label = fmt.Sprintf("%s r:%s", e.Kind, e.ID)
		}
		fmt.Fprintf(w, "%s%s %s\n", strings.Repeat("  ", e.Nest), yellow(label), faint("in <"+e.Parent+">"))
	}
}
