package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/deepnoodle-ai/rehydra/ast"
	"github.com/deepnoodle-ai/rehydra/bytecode"
)

// templateFile is the JSON form of a template unit. Components are compiled
// as template-only components the unit can invoke by name.
//
//	{
//	  "name": "list",
//	  "body": [
//	    {"element": "ul", "children": [
//	      {"each": {"path": "items"}, "key": "id", "as": ["item"], "body": [
//	        {"element": "li", "children": [{"append": {"path": "item.label"}}]}
//	      ], "else": ["empty"]}
//	    ]}
//	  ],
//	  "components": {"Card": {"body": [{"yield": []}]}}
//	}
//
// A statement that is a bare JSON string is static text. In expressions,
// strings, numbers, booleans and null are literals, and objects select a
// path, helper call, dynamic variable or concatenation.
type templateFile struct {
	Name       string                   `json:"name"`
	Body       []json.RawMessage        `json:"body"`
	Components map[string]componentFile `json:"components"`
}

type componentFile struct {
	Body []json.RawMessage `json:"body"`
}

type unit struct {
	Template   *ast.Template
	Components map[string]*ast.Template
}

func loadTemplate(path string) (*unit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	u, err := decodeTemplate(name, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return u, nil
}

func decodeTemplate(defaultName string, data []byte) (*unit, error) {
	var file templateFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	name := file.Name
	if name == "" {
		name = defaultName
	}
	body, err := decodeStmts(file.Body, "body")
	if err != nil {
		return nil, err
	}
	u := &unit{
		Template:   &ast.Template{Name: name, Body: body},
		Components: map[string]*ast.Template{},
	}
	for cname, comp := range file.Components {
		body, err := decodeStmts(comp.Body, "components."+cname)
		if err != nil {
			return nil, err
		}
		u.Components[cname] = &ast.Template{Name: cname, Body: body}
	}
	return u, nil
}

var stmtKinds = []string{
	"text", "comment", "element", "append", "if", "each", "let",
	"dynamic-vars", "invoke", "yield", "in-element",
}

func decodeStmts(raws []json.RawMessage, path string) ([]ast.Stmt, error) {
	var stmts []ast.Stmt
	for i, raw := range raws {
		stmt, err := decodeStmt(raw, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	return stmts, nil
}

func decodeStmt(raw json.RawMessage, path string) (ast.Stmt, error) {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return &ast.Text{Value: text}, nil
	}
	var fields object
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%s: expected a statement object", path)
	}
	fields.path = path
	kind := ""
	for _, k := range stmtKinds {
		if _, ok := fields.m[k]; ok {
			kind = k
			break
		}
	}
	switch kind {
	case "text":
		value, err := fields.str("text")
		return &ast.Text{Value: value}, err
	case "comment":
		value, err := fields.str("comment")
		return &ast.Comment{Value: value}, err
	case "element":
		return fields.element()
	case "append":
		value, err := fields.expr("append")
		if err != nil {
			return nil, err
		}
		return &ast.Append{Value: value}, nil
	case "if":
		cond, err := fields.expr("if")
		if err != nil {
			return nil, err
		}
		x := &ast.If{Cond: cond}
		if x.Then, err = fields.stmts("then"); err != nil {
			return nil, err
		}
		if x.Else, err = fields.stmts("else"); err != nil {
			return nil, err
		}
		return x, nil
	case "each":
		items, err := fields.expr("each")
		if err != nil {
			return nil, err
		}
		x := &ast.Each{Items: items}
		if x.Key, err = fields.str("key"); err != nil {
			return nil, err
		}
		if x.Params, err = fields.strs("as"); err != nil {
			return nil, err
		}
		if x.Body, err = fields.stmts("body"); err != nil {
			return nil, err
		}
		if x.Inverse, err = fields.stmts("else"); err != nil {
			return nil, err
		}
		return x, nil
	case "let":
		bindings, err := fields.named("let")
		if err != nil {
			return nil, err
		}
		body, err := fields.stmts("body")
		if err != nil {
			return nil, err
		}
		return &ast.Let{Bindings: bindings, Body: body}, nil
	case "dynamic-vars":
		vars, err := fields.named("dynamic-vars")
		if err != nil {
			return nil, err
		}
		body, err := fields.stmts("body")
		if err != nil {
			return nil, err
		}
		return &ast.WithDynamicVars{Vars: vars, Body: body}, nil
	case "invoke":
		name, err := fields.str("invoke")
		if err != nil {
			return nil, err
		}
		x := &ast.Invoke{Component: name}
		if x.Args, err = fields.named("args"); err != nil {
			return nil, err
		}
		if x.Params, err = fields.strs("as"); err != nil {
			return nil, err
		}
		if x.Body, err = fields.stmts("body"); err != nil {
			return nil, err
		}
		if x.Inverse, err = fields.stmts("else"); err != nil {
			return nil, err
		}
		return x, nil
	case "yield":
		args, err := fields.exprs("yield")
		if err != nil {
			return nil, err
		}
		to, err := fields.str("to")
		if err != nil {
			return nil, err
		}
		return &ast.Yield{To: to, Args: args}, nil
	case "in-element":
		target, err := fields.expr("in-element")
		if err != nil {
			return nil, err
		}
		x := &ast.InElement{Target: target}
		if _, ok := fields.m["before"]; ok {
			if x.InsertBefore, err = fields.expr("before"); err != nil {
				return nil, err
			}
		}
		if x.Body, err = fields.stmts("body"); err != nil {
			return nil, err
		}
		return x, nil
	}
	return nil, fmt.Errorf("%s: unknown statement (keys: %s)", path, strings.Join(fields.keys(), ", "))
}

func decodeExpr(raw json.RawMessage, path string) (ast.Expr, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	switch v := v.(type) {
	case nil:
		return &ast.Literal{Value: bytecode.Null()}, nil
	case string:
		return ast.Str(v), nil
	case float64:
		return ast.Num(v), nil
	case bool:
		return ast.Bool(v), nil
	case map[string]any:
	default:
		return nil, fmt.Errorf("%s: expected an expression, got %T", path, v)
	}
	var fields object
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	fields.path = path
	switch {
	case fields.has("path"):
		p, err := fields.str("path")
		if err != nil {
			return nil, err
		}
		if p == "" {
			return nil, fmt.Errorf("%s: empty path", path)
		}
		return ast.NewPath(p), nil
	case fields.has("call"):
		helper, err := fields.str("call")
		if err != nil {
			return nil, err
		}
		x := &ast.Call{Helper: helper}
		if x.Positional, err = fields.exprs("args"); err != nil {
			return nil, err
		}
		if x.Named, err = fields.named("named"); err != nil {
			return nil, err
		}
		return x, nil
	case fields.has("dynamic"):
		name, err := fields.str("dynamic")
		return &ast.DynamicVar{Name: name}, err
	case fields.has("concat"):
		parts, err := fields.exprs("concat")
		return &ast.Concat{Parts: parts}, err
	case fields.has("undefined"):
		return &ast.Literal{Value: bytecode.Undefined()}, nil
	}
	return nil, fmt.Errorf("%s: unknown expression (keys: %s)", path, strings.Join(fields.keys(), ", "))
}

// object is a decoded JSON object that remembers where it came from, so
// field errors name their location.
type object struct {
	path string
	m    map[string]json.RawMessage
}

func (o *object) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &o.m)
}

func (o *object) has(key string) bool {
	_, ok := o.m[key]
	return ok
}

func (o *object) keys() []string {
	keys := make([]string, 0, len(o.m))
	for k := range o.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (o *object) str(key string) (string, error) {
	raw, ok := o.m[key]
	if !ok {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%s.%s: expected a string", o.path, key)
	}
	return s, nil
}

func (o *object) strs(key string) ([]string, error) {
	raw, ok := o.m[key]
	if !ok {
		return nil, nil
	}
	var s []string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%s.%s: expected a list of strings", o.path, key)
	}
	return s, nil
}

func (o *object) stmts(key string) ([]ast.Stmt, error) {
	raw, ok := o.m[key]
	if !ok {
		return nil, nil
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(raw, &raws); err != nil {
		return nil, fmt.Errorf("%s.%s: expected a list of statements", o.path, key)
	}
	return decodeStmts(raws, o.path+"."+key)
}

func (o *object) expr(key string) (ast.Expr, error) {
	raw, ok := o.m[key]
	if !ok {
		return nil, fmt.Errorf("%s: missing %s", o.path, key)
	}
	return decodeExpr(raw, o.path+"."+key)
}

func (o *object) exprs(key string) ([]ast.Expr, error) {
	raw, ok := o.m[key]
	if !ok {
		return nil, nil
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(raw, &raws); err != nil {
		return nil, fmt.Errorf("%s.%s: expected a list of expressions", o.path, key)
	}
	var out []ast.Expr
	for i, r := range raws {
		x, err := decodeExpr(r, fmt.Sprintf("%s.%s[%d]", o.path, key, i))
		if err != nil {
			return nil, err
		}
		out = append(out, x)
	}
	return out, nil
}

// named decodes an object of expressions. Arguments are ordered by name.
func (o *object) named(key string) ([]ast.NamedArg, error) {
	raw, ok := o.m[key]
	if !ok {
		return nil, nil
	}
	var fields object
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%s.%s: expected an object", o.path, key)
	}
	fields.path = o.path + "." + key
	var out []ast.NamedArg
	for _, name := range fields.keys() {
		value, err := fields.expr(name)
		if err != nil {
			return nil, err
		}
		out = append(out, ast.NamedArg{Name: name, Value: value})
	}
	return out, nil
}

// element decodes an element. Attribute names may carry a namespace prefix
// such as "xlink:href"; attributes are emitted in name order.
func (o *object) element() (ast.Stmt, error) {
	tag, err := o.str("element")
	if err != nil {
		return nil, err
	}
	if tag == "" {
		return nil, fmt.Errorf("%s: empty element tag", o.path)
	}
	x := &ast.Element{Tag: tag}
	if x.Namespace, err = o.str("ns"); err != nil {
		return nil, err
	}
	attrs, err := o.named("attrs")
	if err != nil {
		return nil, err
	}
	for _, a := range attrs {
		attr := &ast.Attr{Name: a.Name, Value: a.Value}
		if ns, name, ok := strings.Cut(a.Name, ":"); ok {
			attr.Namespace, attr.Name = ns, name
		}
		x.Attrs = append(x.Attrs, attr)
	}
	if raw, ok := o.m["modifiers"]; ok {
		var raws []json.RawMessage
		if err := json.Unmarshal(raw, &raws); err != nil {
			return nil, fmt.Errorf("%s.modifiers: expected a list", o.path)
		}
		for i, r := range raws {
			var fields object
			if err := json.Unmarshal(r, &fields); err != nil {
				return nil, fmt.Errorf("%s.modifiers[%d]: expected an object", o.path, i)
			}
			fields.path = fmt.Sprintf("%s.modifiers[%d]", o.path, i)
			m := &ast.Modifier{}
			if m.Name, err = fields.str("name"); err != nil {
				return nil, err
			}
			if m.Positional, err = fields.exprs("args"); err != nil {
				return nil, err
			}
			if m.Named, err = fields.named("named"); err != nil {
				return nil, err
			}
			x.Modifiers = append(x.Modifiers, m)
		}
	}
	if x.Children, err = o.stmts("children"); err != nil {
		return nil, err
	}
	return x, nil
}
