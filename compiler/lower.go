package compiler

import (
	"strings"
	"unicode"

	"github.com/deepnoodle-ai/rehydra/ast"
	"github.com/deepnoodle-ai/rehydra/bytecode"
	"github.com/deepnoodle-ai/rehydra/errors"
	"github.com/deepnoodle-ai/rehydra/op"
)

// CompileTemplate lowers every statement of t into the program as one unit.
func (c *Compiler) CompileTemplate(t *ast.Template) error {
	if err := validate(t); err != nil {
		c.fail(err)
		return err
	}
	if err := c.Unit(func() error {
		return c.compileStmts(t.Body, "")
	}); err != nil {
		return err
	}
	return c.Err()
}

func (c *Compiler) compileStmts(stmts []ast.Stmt, ns string) error {
	for _, s := range stmts {
		if err := c.compileStmt(s, ns); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) compileStmt(node ast.Stmt, ns string) error {
	prev := c.location
	c.location = node.Pos()
	defer func() { c.location = prev }()

	switch node := node.(type) {
	case *ast.Text:
		c.Text(node.Value)
	case *ast.Comment:
		c.Comment(node.Value)
	case *ast.Element:
		return c.compileElement(node, ns)
	case *ast.Append:
		if err := c.compileExpr(node.Value); err != nil {
			return err
		}
		c.Append()
	case *ast.If:
		return c.compileIf(node, ns)
	case *ast.Each:
		return c.compileEach(node, ns)
	case *ast.Let:
		return c.compileLet(node, ns)
	case *ast.WithDynamicVars:
		return c.compileWithDynamicVars(node, ns)
	case *ast.Invoke:
		return c.compileInvoke(node, ns)
	case *ast.Yield:
		return c.compileYield(node)
	case *ast.InElement:
		return c.compileInElement(node)
	default:
		err := errors.NewCompileError(errors.E2008, "unknown statement %T", node)
		c.fail(err)
		return err
	}
	return nil
}

// elementNamespace returns the namespace of an element and the namespace
// its children inherit.
func elementNamespace(el *ast.Element, parent string) (string, string) {
	ns := el.Namespace
	if ns == "" {
		switch {
		case el.Tag == "svg":
			ns = "svg"
		case el.Tag == "math":
			ns = "math"
		default:
			ns = parent
		}
	}
	if ns == "svg" && el.Tag == "foreignObject" {
		return ns, ""
	}
	return ns, ns
}

func (c *Compiler) compileElement(el *ast.Element, parentNS string) error {
	ns, childNS := elementNamespace(el, parentNS)
	c.OpenElement(el.Tag, ns)
	for _, attr := range el.Attrs {
		if lit, ok := attr.Value.(*ast.Literal); ok && lit.Value.Kind() == bytecode.PrimitiveString {
			c.StaticAttr(attr.Name, lit.Value.StringValue(), attr.Namespace)
			continue
		}
		if err := c.compileExpr(attr.Value); err != nil {
			return err
		}
		c.DynamicAttr(attr.Name, attr.Namespace)
	}
	for _, m := range el.Modifiers {
		if err := c.compileArgs(m.Positional, m.Named); err != nil {
			return err
		}
		c.Emit(op.Modifier, c.str(m.Name), uint32(len(m.Positional)), c.strArray(namedNames(m.Named)))
	}
	c.FlushElement()
	children := el.Children
	if ns == "" && strings.EqualFold(el.Tag, "table") {
		children = impliedTbody(children)
	}
	if err := c.compileStmts(children, childNS); err != nil {
		return err
	}
	c.CloseElement()
	return nil
}

// impliedTbody wraps runs of rows and control flow placed directly inside a
// table in a tbody element. The HTML parser inserts that tbody when it reads
// the serialized output, so the compiled structure must already contain it.
func impliedTbody(children []ast.Stmt) []ast.Stmt {
	var out, run []ast.Stmt
	flush := func() {
		if len(run) > 0 {
			out = append(out, &ast.Element{Tag: "tbody", Children: run})
			run = nil
		}
	}
	for _, child := range children {
		switch {
		case isRowContent(child):
			run = append(run, child)
		case len(run) > 0 && isWhitespaceText(child):
			run = append(run, child)
		default:
			flush()
			out = append(out, child)
		}
	}
	flush()
	return out
}

func isRowContent(s ast.Stmt) bool {
	switch s := s.(type) {
	case *ast.Element:
		return strings.EqualFold(s.Tag, "tr")
	case *ast.If, *ast.Each, *ast.Let, *ast.WithDynamicVars, *ast.Invoke, *ast.Yield, *ast.InElement:
		return true
	}
	return false
}

func isWhitespaceText(s ast.Stmt) bool {
	t, ok := s.(*ast.Text)
	return ok && strings.TrimFunc(t.Value, unicode.IsSpace) == ""
}

func (c *Compiler) compileIf(node *ast.If, ns string) error {
	return c.Enter(func() error {
		if err := c.compileExpr(node.Cond); err != nil {
			return err
		}
		c.JumpUnless("ELSE")
		if err := c.compileStmts(node.Then, ns); err != nil {
			return err
		}
		c.Jump("ENDIF")
		c.Label("ELSE")
		if err := c.compileStmts(node.Else, ns); err != nil {
			return err
		}
		c.Label("ENDIF")
		return nil
	})
}

func (c *Compiler) compileEach(node *ast.Each, ns string) error {
	key := node.Key
	if key == "" {
		key = "@identity"
	}
	var inverse func() error
	if len(node.Inverse) > 0 {
		inverse = func() error { return c.compileStmts(node.Inverse, ns) }
	}
	return c.Enter(func() error {
		if err := c.compileExpr(node.Items); err != nil {
			return err
		}
		return c.List(key, func() error {
			slots := c.symbols.pushLocals(node.Params)
			defer c.symbols.popLocals()
			// The index is on top of the item
			if len(slots) > 1 {
				c.SetVariable(slots[1])
			} else {
				c.Emit(op.Pop, 1)
			}
			if len(slots) > 0 {
				c.SetVariable(slots[0])
			} else {
				c.Emit(op.Pop, 1)
			}
			return c.compileStmts(node.Body, ns)
		}, inverse)
	})
}

func (c *Compiler) compileLet(node *ast.Let, ns string) error {
	names := make([]string, len(node.Bindings))
	for i, b := range node.Bindings {
		if err := c.compileExpr(b.Value); err != nil {
			return err
		}
		names[i] = b.Name
	}
	slots := c.symbols.pushLocals(names)
	defer c.symbols.popLocals()
	for i := len(slots) - 1; i >= 0; i-- {
		c.SetVariable(slots[i])
	}
	return c.compileStmts(node.Body, ns)
}

func (c *Compiler) compileWithDynamicVars(node *ast.WithDynamicVars, ns string) error {
	for _, v := range node.Vars {
		if err := c.compileExpr(v.Value); err != nil {
			return err
		}
	}
	c.Emit(op.PushDynamicScope)
	c.Emit(op.BindDynamicScope, c.strArray(namedNames(node.Vars)))
	if err := c.compileStmts(node.Body, ns); err != nil {
		return err
	}
	c.Emit(op.PopDynamicScope)
	return nil
}

// compileInvoke emits the component protocol. The register holds the
// component's state from resolution until the transaction is committed.
func (c *Compiler) compileInvoke(node *ast.Invoke, ns string) error {
	return c.Enter(func() error {
		return c.WithLocal(func(reg Register) error {
			defaultBlock, inverseBlock := -1, -1
			if len(node.Body) > 0 {
				h, err := c.Block(node.Params, func() error { return c.compileStmts(node.Body, ns) })
				if err != nil {
					return err
				}
				defaultBlock = int(h)
			}
			if len(node.Inverse) > 0 {
				h, err := c.Block(nil, func() error { return c.compileStmts(node.Inverse, ns) })
				if err != nil {
					return err
				}
				inverseBlock = int(h)
			}
			c.emitRegister(op.ResolveComponent, reg, c.str(node.Component))
			c.pushBlock(defaultBlock)
			c.pushBlock(inverseBlock)
			c.emitRegister(op.SetBlocks, reg)
			if err := c.compileArgs(nil, node.Args); err != nil {
				return err
			}
			c.emitRegister(op.PushArgs, reg, 0, c.strArray(namedNames(node.Args)))
			c.Emit(op.PushDynamicScope)
			c.emitRegister(op.CreateComponent, reg)
			c.emitRegister(op.RegisterDestructor, reg)
			c.Emit(op.BeginTransaction)
			c.emitRegister(op.ResolveLayout, reg)
			c.emitRegister(op.InvokeLayout, reg)
			c.emitRegister(op.DidRenderLayout, reg)
			c.Emit(op.PopDynamicScope)
			c.Emit(op.CommitTransaction)
			return nil
		})
	})
}

func (c *Compiler) pushBlock(handle int) {
	if handle < 0 {
		c.Emit(op.PushNullBlock)
		return
	}
	c.Emit(op.PushBlock, uint32(handle))
}

func (c *Compiler) compileYield(node *ast.Yield) error {
	to := node.To
	if to == "" {
		to = "default"
	}
	return c.Enter(func() error {
		c.GetVariable(c.symbols.named("&" + to))
		for _, arg := range node.Args {
			if err := c.compileExpr(arg); err != nil {
				return err
			}
		}
		c.Emit(op.InvokeYield, uint32(len(node.Args)))
		return nil
	})
}

func (c *Compiler) compileInElement(node *ast.InElement) error {
	return c.Enter(func() error {
		if err := c.compileExpr(node.Target); err != nil {
			return err
		}
		if node.InsertBefore != nil {
			if err := c.compileExpr(node.InsertBefore); err != nil {
				return err
			}
		} else {
			// Without insertBefore the target's content is replaced
			c.Primitive(bytecode.Undefined())
		}
		c.Emit(op.PushRemoteElement)
		if err := c.compileStmts(node.Body, ""); err != nil {
			return err
		}
		c.Emit(op.PopRemoteElement)
		return nil
	})
}

func (c *Compiler) compileExpr(node ast.Expr) error {
	switch node := node.(type) {
	case *ast.Literal:
		c.Primitive(node.Value)
	case *ast.Path:
		c.compilePath(node)
	case *ast.Call:
		if err := c.compileArgs(node.Positional, node.Named); err != nil {
			return err
		}
		c.Emit(op.Helper, c.helperHandle(node.Helper), uint32(len(node.Positional)),
			c.strArray(namedNames(node.Named)))
	case *ast.DynamicVar:
		c.Emit(op.GetDynamicVar, c.str(node.Name))
	case *ast.Concat:
		for _, part := range node.Parts {
			if err := c.compileExpr(part); err != nil {
				return err
			}
		}
		c.Emit(op.Concat, uint32(len(node.Parts)))
	case *ast.Opaque:
		c.Constant(node.Value)
	default:
		err := errors.NewCompileError(errors.E2008, "unknown expression %T", node)
		c.fail(err)
		return err
	}
	return nil
}

// compilePath resolves the head of a path: "this", an "@name" argument, a
// local binding, or else a property of "this".
func (c *Compiler) compilePath(node *ast.Path) {
	switch {
	case node.Head == "this":
		c.GetVariable(0)
	case strings.HasPrefix(node.Head, "@"):
		c.GetVariable(c.symbols.named(node.Head))
	default:
		if slot, ok := c.symbols.local(node.Head); ok {
			c.GetVariable(slot)
		} else {
			c.GetVariable(0)
			c.GetProperty(node.Head)
		}
	}
	for _, name := range node.Tail {
		c.GetProperty(name)
	}
}

// helperHandle returns a function handle for helpers bound at compile time
// and a name handle for helpers resolved when the program runs.
func (c *Compiler) helperHandle(name string) uint32 {
	if fn, ok := c.helpers[name]; ok {
		h, err := c.pool.function(name, fn)
		if err != nil {
			c.fail(err)
		}
		return h
	}
	return c.str(name)
}

func (c *Compiler) compileArgs(positional []ast.Expr, named []ast.NamedArg) error {
	for _, p := range positional {
		if err := c.compileExpr(p); err != nil {
			return err
		}
	}
	for _, n := range named {
		if err := c.compileExpr(n.Value); err != nil {
			return err
		}
	}
	return nil
}

func namedNames(args []ast.NamedArg) []string {
	names := make([]string, len(args))
	for i, a := range args {
		names[i] = a.Name
	}
	return names
}
