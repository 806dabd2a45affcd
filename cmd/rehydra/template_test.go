package main

import (
	"testing"

	"github.com/deepnoodle-ai/rehydra/ast"
	"github.com/stretchr/testify/require"
)

const listJSON = `{
  "name": "list",
  "body": [
    {"element": "ul", "attrs": {"class": "items"}, "children": [
      {"each": {"path": "items"}, "key": "id", "as": ["item"], "body": [
        {"element": "li", "children": [{"append": {"path": "item.label"}}]}
      ], "else": ["empty"]}
    ]}
  ]
}`

func TestDecodeTemplate(t *testing.T) {
	u, err := decodeTemplate("fallback", []byte(listJSON))
	require.NoError(t, err)
	require.Equal(t, "list", u.Template.Name)
	require.Empty(t, u.Components)
	require.Len(t, u.Template.Body, 1)
	require.Equal(t,
		`<ul class="items">{{#each items key="id" as |item|}}<li>{{item.label}}</li>{{else}}empty{{/each}}</ul>`,
		u.Template.Body[0].String())
}

func TestDecodeDefaultName(t *testing.T) {
	u, err := decodeTemplate("page", []byte(`{"body": ["hi"]}`))
	require.NoError(t, err)
	require.Equal(t, "page", u.Template.Name)
	require.Equal(t, &ast.Text{Value: "hi"}, u.Template.Body[0])
}

func TestDecodeStatements(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{`{"text": "a"}`, `a`},
		{`{"comment": "c"}`, `<!--c-->`},
		{`{"append": 2}`, `{{2}}`},
		{`{"append": null}`, `{{null}}`},
		{`{"append": {"undefined": true}}`, `{{undefined}}`},
		{`{"if": {"path": "ok"}, "then": ["y"], "else": ["n"]}`, `{{#if ok}}y{{else}}n{{/if}}`},
		{`{"let": {"x": "v"}, "body": [{"append": {"path": "x"}}]}`, `{{#let  x="v"}}{{x}}{{/let}}`},
		{`{"dynamic-vars": {"theme": "dark"}, "body": [{"append": {"dynamic": "theme"}}]}`,
			`{{#-with-dynamic-vars  theme="dark"}}{{(-get-dynamic-var "theme")}}{{/-with-dynamic-vars}}`},
		{`{"invoke": "Card", "args": {"title": "t"}}`, `<Card @title={{"t"}} />`},
		{`{"yield": [{"path": "x"}], "to": "inverse"}`, `{{yield x to="inverse"}}`},
		{`{"in-element": {"path": "@target"}, "body": ["x"]}`, `{{#in-element @target}}x{{/in-element}}`},
		{`{"append": {"call": "upper", "args": [{"path": "name"}], "named": {"n": true}}}`, `{{(upper name n=true)}}`},
		{`{"append": {"concat": ["a", {"path": "b"}]}}`, `{{(concat "a" b)}}`},
		{`{"element": "svg", "ns": "svg", "attrs": {"xlink:href": "#i"}}`, `<svg xlink:href="#i"></svg>`},
		{`{"element": "p", "modifiers": [{"name": "attr", "named": {"title": "t"}}]}`, `<p {{attr title="t"}}></p>`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			u, err := decodeTemplate("t", []byte(`{"body": [`+tt.input+`]}`))
			require.NoError(t, err)
			require.Len(t, u.Template.Body, 1)
			require.Equal(t, tt.expected, u.Template.Body[0].String())
		})
	}
}

func TestDecodeAttributeNamespace(t *testing.T) {
	u, err := decodeTemplate("t", []byte(`{"body": [{"element": "use", "attrs": {"xlink:href": "#i", "id": {"path": "id"}}}]}`))
	require.NoError(t, err)
	el := u.Template.Body[0].(*ast.Element)
	require.Len(t, el.Attrs, 2)
	require.Equal(t, "id", el.Attrs[0].Name)
	require.Equal(t, ast.NewPath("id"), el.Attrs[0].Value)
	require.Equal(t, "href", el.Attrs[1].Name)
	require.Equal(t, "xlink", el.Attrs[1].Namespace)
}

func TestDecodeComponents(t *testing.T) {
	u, err := decodeTemplate("t", []byte(`{
	  "body": [{"invoke": "Card"}],
	  "components": {"Card": {"body": [{"element": "div", "children": [{"yield": []}]}]}}
	}`))
	require.NoError(t, err)
	require.Contains(t, u.Components, "Card")
	require.Equal(t, "Card", u.Components["Card"].Name)
	require.Equal(t, `<div>{{yield}}</div>`, u.Components["Card"].Body[0].String())
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		input string
		err   string
	}{
		{`{"body": [1]}`, "body[0]: expected a statement object"},
		{`{"body": [{"bogus": 1, "also": 2}]}`, "body[0]: unknown statement (keys: also, bogus)"},
		{`{"body": [{"if": {"bogus": 1}}]}`, "body[0].if: unknown expression (keys: bogus)"},
		{`{"body": [{"append": []}]}`, "body[0].append: expected an expression, got []interface {}"},
		{`{"body": [{"append": {"path": ""}}]}`, "body[0].append: empty path"},
		{`{"body": [{"each": {"path": "x"}, "as": "item"}]}`, "body[0].as: expected a list of strings"},
		{`{"body": [{"element": ""}]}`, "body[0]: empty element tag"},
		{`{"body": [{"element": "p", "children": [{"text": 3}]}]}`, "body[0].children[0].text: expected a string"},
		{`{"body": [{"let": []}]}`, "body[0].let: expected an object"},
		{`{"body": [], "components": {"C": {"body": [{"x": 1}]}}}`, "components.C[0]: unknown statement"},
		{`{"body": `, "unexpected end of JSON input"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := decodeTemplate("t", []byte(tt.input))
			require.ErrorContains(t, err, tt.err)
		})
	}
}
