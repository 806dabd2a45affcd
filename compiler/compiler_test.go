package compiler

import (
	"context"
	"testing"

	"github.com/deepnoodle-ai/rehydra/ast"
	"github.com/deepnoodle-ai/rehydra/bytecode"
	"github.com/deepnoodle-ai/rehydra/env"
	"github.com/deepnoodle-ai/rehydra/errors"
	"github.com/deepnoodle-ai/rehydra/op"
	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/require"
)

func opcodes(p *bytecode.Program) []op.Code {
	codes := make([]op.Code, p.InstructionCount())
	for i := range codes {
		codes[i] = p.InstructionAt(i).Op
	}
	return codes
}

func find(t *testing.T, p *bytecode.Program, code op.Code) bytecode.Instruction {
	t.Helper()
	for i := 0; i < p.InstructionCount(); i++ {
		if ins := p.InstructionAt(i); ins.Op == code {
			return ins
		}
	}
	t.Fatalf("no %s instruction", op.GetInfo(code).Name)
	return bytecode.Instruction{}
}

func requireCode(t *testing.T, err error, code errors.ErrorCode) *errors.CompileError {
	t.Helper()
	var cerr *errors.CompileError
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, code, cerr.Code)
	return cerr
}

func compileBody(t *testing.T, body ...ast.Stmt) *bytecode.Program {
	t.Helper()
	p, err := Compile(&ast.Template{Name: "test", Body: body}, nil)
	require.NoError(t, err)
	return p
}

func TestEmptyTemplate(t *testing.T) {
	p := compileBody(t)
	require.Equal(t, "test", p.Name())
	require.Equal(t, []op.Code{op.Header, op.Cleanup}, opcodes(p))
	header := p.InstructionAt(0)
	require.Equal(t, uint32(0), header.A())
	require.Equal(t, uint32(1), header.B())
	require.Equal(t, "this", p.SymbolAt(0))
}

func TestCompileName(t *testing.T) {
	p, err := Compile(&ast.Template{Name: "page"}, &Config{})
	require.NoError(t, err)
	require.Equal(t, "page", p.Name())

	p, err = Compile(&ast.Template{Name: "page"}, &Config{Name: "override"})
	require.NoError(t, err)
	require.Equal(t, "override", p.Name())

	require.Equal(t, "main", New(nil).Name())
}

func TestLabelsArePatched(t *testing.T) {
	c := New(nil)
	err := c.Unit(func() error {
		c.Jump("END")
		c.Text("skipped")
		c.Label("END")
		return nil
	})
	require.NoError(t, err)
	p, err := c.Finalize()
	require.NoError(t, err)
	require.Equal(t, []op.Code{op.Header, op.Jump, op.Text, op.Cleanup}, opcodes(p))
	require.Equal(t, uint32(3), p.InstructionAt(1).A())
}

func TestBackwardLabel(t *testing.T) {
	c := New(nil)
	require.NoError(t, c.Unit(func() error {
		c.Label("TOP")
		c.Text("x")
		c.Jump("TOP")
		return nil
	}))
	p, err := c.Finalize()
	require.NoError(t, err)
	require.Equal(t, uint32(1), p.InstructionAt(2).A())
}

func TestUndefinedLabelsReportedTogether(t *testing.T) {
	c := New(&Config{Name: "labels"})
	err := c.Unit(func() error {
		c.Jump("ELSE")
		c.JumpUnless("ENDD")
		c.Label("END")
		return nil
	})
	require.Error(t, err)

	_, err = c.Finalize()
	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	require.Len(t, merr.Errors, 2)

	first := requireCode(t, merr.Errors[0], errors.E2001)
	require.Equal(t, 1, first.Offset)
	require.Empty(t, first.Suggestions)

	second := requireCode(t, merr.Errors[1], errors.E2001)
	require.Equal(t, 2, second.Offset)
	require.Equal(t, []errors.Suggestion{{Value: "END", Distance: 1}}, second.Suggestions)
}

func TestLabelsOfClosedScopesAreNotVisible(t *testing.T) {
	c := New(nil)
	err := c.Unit(func() error {
		if err := c.Labelled(func() error {
			c.Label("INNER")
			return nil
		}); err != nil {
			return err
		}
		c.Jump("INNER")
		return nil
	})
	requireCode(t, err, errors.E2001)
}

func TestSiblingScopesReuseNames(t *testing.T) {
	c := New(nil)
	require.NoError(t, c.Unit(func() error {
		for i := 0; i < 2; i++ {
			if err := c.Labelled(func() error {
				c.Jump("END")
				c.Text("x")
				c.Label("END")
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	}))
	p, err := c.Finalize()
	require.NoError(t, err)
	require.Equal(t, uint32(3), p.InstructionAt(1).A())
	require.Equal(t, uint32(5), p.InstructionAt(3).A())
}

func TestDuplicateLabel(t *testing.T) {
	c := New(nil)
	_ = c.Unit(func() error {
		c.Label("END")
		c.Label("END")
		return nil
	})
	requireCode(t, c.Err(), errors.E2002)
}

func TestLabelOutsideScope(t *testing.T) {
	c := New(nil)
	c.Label("END")
	requireCode(t, c.Err(), errors.E2003)
}

func TestUnitMustBeOutermost(t *testing.T) {
	c := New(nil)
	_ = c.Labelled(func() error {
		return c.Unit(func() error { return nil })
	})
	requireCode(t, c.Err(), errors.E2003)
}

func TestPrimitiveEncoding(t *testing.T) {
	tests := []struct {
		name  string
		value bytecode.Primitive
		want  any
	}{
		{"immediate", bytecode.Number(7), 7.0},
		{"negative", bytecode.Number(-1), -1.0},
		{"fraction", bytecode.Number(2.5), 2.5},
		{"string", bytecode.String("hi"), "hi"},
		{"true", bytecode.Bool(true), true},
		{"false", bytecode.Bool(false), false},
		{"null", bytecode.Null(), nil},
		{"undefined", bytecode.Undefined(), bytecode.UndefinedValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(nil)
			c.Primitive(tt.value)
			p, err := c.Finalize()
			require.NoError(t, err)
			ins := p.InstructionAt(1)
			require.Equal(t, op.Primitive, ins.Op)
			require.Equal(t, tt.want, p.Pool().Primitive(ins.A()))
		})
	}
}

func TestImmediateNumbersSkipThePool(t *testing.T) {
	c := New(nil)
	c.Primitive(bytecode.Number(42))
	p, err := c.Finalize()
	require.NoError(t, err)
	require.Equal(t, 0, p.Pool().Len())
}

func TestUnsupportedLiteral(t *testing.T) {
	c := New(nil)
	c.Primitive(bytecode.Primitive{})
	_, err := c.Finalize()
	requireCode(t, err, errors.E2004)
}

func TestPoolDeduplicates(t *testing.T) {
	c := New(nil)
	require.Equal(t, c.str("a"), c.str("a"))
	require.NotEqual(t, c.str("a"), c.str("b"))
	require.Equal(t, c.strArray([]string{"a", "b"}), c.strArray([]string{"a", "b"}))
	require.NotEqual(t, c.strArray([]string{"a", "b"}), c.strArray([]string{"b", "a"}))

	n1, err := c.pool.number(2.5)
	require.NoError(t, err)
	n2, err := c.pool.number(2.5)
	require.NoError(t, err)
	require.Equal(t, n1, n2)

	ptr := &struct{ n int }{}
	v1, err := c.pool.value(ptr)
	require.NoError(t, err)
	v2, err := c.pool.value(ptr)
	require.NoError(t, err)
	require.Equal(t, v1, v2)

	// Values that are not comparable are never shared
	s1, err := c.pool.value([]int{1})
	require.NoError(t, err)
	s2, err := c.pool.value([]int{1})
	require.NoError(t, err)
	require.NotEqual(t, s1, s2)

	b1, err := c.pool.block(&bytecode.BlockRef{Start: 1})
	require.NoError(t, err)
	b2, err := c.pool.block(&bytecode.BlockRef{Start: 1})
	require.NoError(t, err)
	require.NotEqual(t, b1, b2)
}

func TestOpaqueValuesWithUnhashableFields(t *testing.T) {
	type holder struct{ V any }
	p := compileBody(t,
		&ast.Append{Value: &ast.Opaque{Value: holder{V: []int{1}}}},
		&ast.Append{Value: &ast.Opaque{Value: holder{V: []int{1}}}},
		&ast.Append{Value: &ast.Opaque{Value: [1]any{map[string]int{}}}},
		&ast.Append{Value: &ast.Opaque{Value: holder{V: 1}}},
		&ast.Append{Value: &ast.Opaque{Value: holder{V: 1}}},
	)
	require.Equal(t, 4, p.Pool().Len())
}

func TestTextSharesHandles(t *testing.T) {
	p := compileBody(t, &ast.Text{Value: "a"}, &ast.Text{Value: "a"})
	require.Equal(t, p.InstructionAt(1).A(), p.InstructionAt(2).A())
	require.Equal(t, 1, p.Pool().Len())
}

func TestWithLocal(t *testing.T) {
	c := New(nil)
	var held Register
	require.NoError(t, c.WithLocal(func(reg Register) error {
		held = reg
		c.Primitive(bytecode.Number(1))
		c.Load(reg)
		return c.WithLocal(func(inner Register) error {
			require.Equal(t, reg+1, inner)
			c.Fetch(reg)
			c.Emit(op.Pop, 1)
			return nil
		})
	}))
	p, err := c.Finalize()
	require.NoError(t, err)
	require.Equal(t, uint32(2), p.InstructionAt(0).A())
	require.Equal(t, 2, p.Registers())
	require.Equal(t, Register(0), held)
}

func TestReleasedRegister(t *testing.T) {
	c := New(nil)
	var held Register
	_ = c.WithLocal(func(reg Register) error {
		held = reg
		return nil
	})
	c.Fetch(held)
	_, err := c.Finalize()
	requireCode(t, err, errors.E2005)
}

func TestRegisterReleasedOutOfOrder(t *testing.T) {
	c := New(nil)
	a := c.Local()
	b := c.Local()
	c.Release(a)
	requireCode(t, c.Err(), errors.E2005)
	c.Release(b)
}

func TestLeakedRegister(t *testing.T) {
	c := New(nil)
	c.Local()
	_, err := c.Finalize()
	requireCode(t, err, errors.E2005)
}

func TestFinalizeTwice(t *testing.T) {
	c := New(nil)
	_, err := c.Finalize()
	require.NoError(t, err)

	_, err = c.Finalize()
	requireCode(t, err, errors.E2009)

	c.Text("late")
	requireCode(t, c.Err(), errors.E2009)
}

func TestReservedComment(t *testing.T) {
	require.True(t, IsReservedComment("%+b:0%"))
	require.True(t, IsReservedComment("%%"))
	require.False(t, IsReservedComment("%"))
	require.False(t, IsReservedComment("note"))

	_, err := Compile(&ast.Template{Name: "t", Body: []ast.Stmt{
		&ast.Comment{Value: "%+b:0%"},
	}}, nil)
	requireCode(t, err, errors.E2007)

	c := New(nil)
	c.Comment("%-b:0%")
	requireCode(t, c.Err(), errors.E2007)
}

func TestValidateReportsEveryFault(t *testing.T) {
	_, err := Compile(&ast.Template{Name: "broken", Body: []ast.Stmt{
		&ast.Comment{Value: "%|%"},
		&ast.Element{},
		&ast.Append{Value: &ast.Literal{}},
		&ast.Invoke{},
		&ast.Yield{To: "sideways"},
	}}, nil)
	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	require.Len(t, merr.Errors, 5)
	var codes []errors.ErrorCode
	for _, e := range merr.Errors {
		cerr, ok := e.(*errors.CompileError)
		require.True(t, ok)
		require.Equal(t, "broken", cerr.Unit)
		codes = append(codes, cerr.Code)
	}
	require.Equal(t, []errors.ErrorCode{errors.E2007, errors.E2008, errors.E2004, errors.E2008, errors.E2008}, codes)
}

func TestErrorLocation(t *testing.T) {
	loc := bytecode.SourceLocation{Line: 3, Column: 7}
	_, err := Compile(&ast.Template{Name: "t", Body: []ast.Stmt{
		&ast.Comment{Loc: ast.Loc{Location: loc}, Value: "%x%"},
	}}, nil)
	cerr := requireCode(t, err, errors.E2007)
	require.Equal(t, 3, cerr.Line)
	require.Equal(t, 7, cerr.Column)
}

func TestIfShape(t *testing.T) {
	p := compileBody(t, &ast.If{
		Cond: ast.NewPath("this.ok"),
		Then: []ast.Stmt{&ast.Text{Value: "yes"}},
		Else: []ast.Stmt{&ast.Text{Value: "no"}},
	})
	require.Equal(t, []op.Code{
		op.Header,
		op.Enter,
		op.GetVariable,
		op.GetProperty,
		op.JumpUnless,
		op.Text,
		op.Jump,
		op.Text,
		op.Exit,
		op.Cleanup,
	}, opcodes(p))
	require.Equal(t, uint32(9), p.InstructionAt(1).A())
	require.Equal(t, uint32(7), p.InstructionAt(4).A())
	require.Equal(t, uint32(8), p.InstructionAt(6).A())
	require.Equal(t, "ok", p.Pool().String(p.InstructionAt(3).A()))
}

func TestEachShape(t *testing.T) {
	p := compileBody(t, &ast.Each{
		Items:  ast.NewPath("this.items"),
		Params: []string{"item"},
		Body:   []ast.Stmt{&ast.Text{Value: "x"}},
	})
	require.Equal(t, []op.Code{
		op.Header,
		op.Enter,
		op.GetVariable,
		op.GetProperty,
		op.EnterList,
		op.Iterate,
		op.Enter,
		op.Pop,
		op.SetVariable,
		op.Text,
		op.Exit,
		op.Jump,
		op.ExitList,
		op.Jump,
		op.Exit,
		op.Cleanup,
	}, opcodes(p))

	list := p.InstructionAt(4)
	require.Equal(t, "@identity", p.Pool().String(list.A()))
	require.Equal(t, uint32(14), list.B())
	require.Equal(t, uint32(14), list.C())
	require.Equal(t, uint32(12), p.InstructionAt(5).A())
	require.Equal(t, uint32(11), p.InstructionAt(6).A())
	require.Equal(t, uint32(5), p.InstructionAt(11).A())
	require.Equal(t, uint32(14), p.InstructionAt(13).A())
	require.Equal(t, uint32(15), p.InstructionAt(1).A())
	require.Equal(t, uint32(1), p.InstructionAt(8).A())
	require.Equal(t, "item", p.SymbolAt(1))
}

func TestEachBindsIndexAndInverse(t *testing.T) {
	p := compileBody(t, &ast.Each{
		Items:   ast.NewPath("this.items"),
		Key:     "id",
		Params:  []string{"item", "i"},
		Body:    []ast.Stmt{&ast.Append{Value: ast.NewPath("i")}},
		Inverse: []ast.Stmt{&ast.Text{Value: "empty"}},
	})
	list := find(t, p, op.EnterList)
	require.Equal(t, "id", p.Pool().String(list.A()))
	require.Less(t, list.B(), list.C())
	require.Equal(t, op.Text, p.InstructionAt(int(list.B())).Op)

	// Index is stored first, then the item
	codes := opcodes(p)
	require.Equal(t, []op.Code{op.SetVariable, op.SetVariable, op.GetVariable, op.AppendText}, codes[7:11])
	require.Equal(t, uint32(2), p.InstructionAt(7).A())
	require.Equal(t, uint32(1), p.InstructionAt(8).A())
	require.Equal(t, uint32(2), p.InstructionAt(9).A())
}

func TestLocalsShadowProperties(t *testing.T) {
	p := compileBody(t,
		&ast.Let{
			Bindings: []ast.NamedArg{{Name: "name", Value: ast.Str("x")}},
			Body:     []ast.Stmt{&ast.Append{Value: ast.NewPath("name")}},
		},
		&ast.Append{Value: ast.NewPath("name")},
	)
	require.Equal(t, []op.Code{
		op.Header,
		op.Primitive,
		op.SetVariable,
		op.GetVariable,
		op.AppendText,
		op.GetVariable,
		op.GetProperty,
		op.AppendText,
		op.Cleanup,
	}, opcodes(p))
	require.Equal(t, uint32(1), p.InstructionAt(3).A())
	require.Equal(t, uint32(0), p.InstructionAt(5).A())
}

func TestInvokeShape(t *testing.T) {
	p := compileBody(t, &ast.Invoke{
		Component: "Card",
		Args:      []ast.NamedArg{{Name: "title", Value: ast.Str("hi")}},
	})
	require.Equal(t, []op.Code{
		op.Header,
		op.Enter,
		op.ResolveComponent,
		op.PushNullBlock,
		op.PushNullBlock,
		op.SetBlocks,
		op.Primitive,
		op.PushArgs,
		op.PushDynamicScope,
		op.CreateComponent,
		op.RegisterDestructor,
		op.BeginTransaction,
		op.ResolveLayout,
		op.InvokeLayout,
		op.DidRenderLayout,
		op.PopDynamicScope,
		op.CommitTransaction,
		op.Exit,
		op.Cleanup,
	}, opcodes(p))
	require.Equal(t, 1, p.Registers())

	resolve := p.InstructionAt(2)
	require.Equal(t, uint32(0), resolve.A())
	require.Equal(t, "Card", p.Pool().String(resolve.B()))

	args := p.InstructionAt(7)
	require.Equal(t, uint32(0), args.B())
	require.Equal(t, []string{"title"}, p.Pool().Strings(args.C()))
}

func TestInvokeBlocks(t *testing.T) {
	p := compileBody(t, &ast.Invoke{
		Component: "Card",
		Params:    []string{"x"},
		Body:      []ast.Stmt{&ast.Text{Value: "b"}},
	})
	require.Equal(t, []op.Code{op.Header, op.Enter, op.Jump, op.Text, op.Return, op.ResolveComponent, op.PushBlock, op.PushNullBlock},
		opcodes(p)[:8])
	require.Equal(t, uint32(5), p.InstructionAt(2).A())

	ref := p.Pool().Block(p.InstructionAt(6).A())
	require.Equal(t, 3, ref.Start)
	require.Equal(t, []int{1}, ref.Params)
	require.Equal(t, "x", p.SymbolAt(1))
	require.Equal(t, 1, p.Stats().BlockCount)
}

func TestYieldSlots(t *testing.T) {
	p := compileBody(t,
		&ast.Yield{Args: []ast.Expr{ast.Num(1)}},
		&ast.Yield{To: "inverse"},
		&ast.Yield{},
	)
	var slots []uint32
	for i := 0; i < p.InstructionCount(); i++ {
		if ins := p.InstructionAt(i); ins.Op == op.GetVariable {
			slots = append(slots, ins.A())
		}
	}
	require.Equal(t, []uint32{1, 2, 1}, slots)
	require.Equal(t, "&default", p.SymbolAt(1))
	require.Equal(t, "&inverse", p.SymbolAt(2))
	require.Equal(t, uint32(1), find(t, p, op.InvokeYield).A())
}

func TestInElementReplacesByDefault(t *testing.T) {
	p := compileBody(t, &ast.InElement{
		Target: ast.NewPath("this.target"),
		Body:   []ast.Stmt{&ast.Text{Value: "x"}},
	})
	require.Equal(t, []op.Code{
		op.Header,
		op.Enter,
		op.GetVariable,
		op.GetProperty,
		op.Primitive,
		op.PushRemoteElement,
		op.Text,
		op.PopRemoteElement,
		op.Exit,
		op.Cleanup,
	}, opcodes(p))
	require.Equal(t, bytecode.UndefinedValue, p.Pool().Primitive(p.InstructionAt(4).A()))
}

func TestImpliedTbody(t *testing.T) {
	p := compileBody(t, &ast.Element{Tag: "table", Children: []ast.Stmt{
		&ast.Element{Tag: "caption"},
		&ast.Element{Tag: "tr"},
		&ast.Text{Value: " "},
		&ast.Element{Tag: "tr"},
	}})
	var tags []string
	for i := 0; i < p.InstructionCount(); i++ {
		if ins := p.InstructionAt(i); ins.Op == op.OpenElement {
			tags = append(tags, p.Pool().String(ins.A()))
		}
	}
	require.Equal(t, []string{"table", "caption", "tbody", "tr", "tr"}, tags)
}

func TestNamespaces(t *testing.T) {
	p := compileBody(t, &ast.Element{Tag: "svg", Children: []ast.Stmt{
		&ast.Element{Tag: "circle"},
		&ast.Element{Tag: "foreignObject", Children: []ast.Stmt{
			&ast.Element{Tag: "div"},
		}},
	}})
	namespaces := map[string]string{}
	for i := 0; i < p.InstructionCount(); i++ {
		ins := p.InstructionAt(i)
		if ins.Op != op.OpenElement {
			continue
		}
		ns := ""
		if ins.B() != 0 {
			ns = p.Pool().String(ins.B() - 1)
		}
		namespaces[p.Pool().String(ins.A())] = ns
	}
	require.Equal(t, map[string]string{
		"svg":           "svg",
		"circle":        "svg",
		"foreignObject": "svg",
		"div":           "",
	}, namespaces)
}

func TestAttributes(t *testing.T) {
	p := compileBody(t, &ast.Element{Tag: "a", Attrs: []*ast.Attr{
		{Name: "href", Value: ast.Str("/")},
		{Name: "title", Value: ast.NewPath("this.title")},
	}})
	static := find(t, p, op.StaticAttr)
	require.Equal(t, "href", p.Pool().String(static.A()))
	require.Equal(t, "/", p.Pool().String(static.B()))
	dynamic := find(t, p, op.DynamicAttr)
	require.Equal(t, "title", p.Pool().String(dynamic.A()))
}

func TestHelpersBoundAtCompileTime(t *testing.T) {
	upper := env.Helper(func(ctx context.Context, positional []any, named map[string]any) (any, error) {
		return nil, nil
	})
	p, err := Compile(&ast.Template{Name: "t", Body: []ast.Stmt{
		&ast.Append{Value: &ast.Call{Helper: "upper", Positional: []ast.Expr{ast.Str("a")}}},
		&ast.Append{Value: &ast.Call{Helper: "lower", Named: []ast.NamedArg{{Name: "n", Value: ast.Num(1)}}}},
	}}, &Config{Helpers: map[string]env.Helper{"upper": upper}})
	require.NoError(t, err)

	var calls []bytecode.Instruction
	for i := 0; i < p.InstructionCount(); i++ {
		if ins := p.InstructionAt(i); ins.Op == op.Helper {
			calls = append(calls, ins)
		}
	}
	require.Len(t, calls, 2)

	fn, ok := p.Pool().At(calls[0].A()).(*bytecode.Function)
	require.True(t, ok)
	require.Equal(t, "upper", fn.Name)
	require.Equal(t, uint32(1), calls[0].B())

	require.Equal(t, "lower", p.Pool().String(calls[1].A()))
	require.Equal(t, []string{"n"}, p.Pool().Strings(calls[1].C()))
}

func TestLocations(t *testing.T) {
	loc := bytecode.SourceLocation{Line: 2, Column: 1}
	p := compileBody(t, &ast.Text{Loc: ast.Loc{Location: loc}, Value: "x"})
	require.Equal(t, loc, p.LocationAt(1))
	require.True(t, p.LocationAt(0).IsZero())
}
