// Package op defines the opcodes executed by the rehydra virtual machine.
//
// The instruction set is closed: every opcode is declared here, and the VM
// dispatches on it with a single switch statement.
package op

// Code is an integer opcode that indicates an operation to execute.
type Code uint16

const (
	Invalid Code = 0

	// Program framing
	Header  Code = 1 // operands: register count, symbol count
	Cleanup Code = 2 // ends a compiled unit and releases its frame
	Nop     Code = 3
	Return  Code = 4 // ends an inline block body

	// Control flow
	Jump       Code = 10
	JumpIf     Code = 11
	JumpUnless Code = 12
	Enter      Code = 13 // operands: end offset
	Exit       Code = 14
	EnterList  Code = 15 // operands: key handle, else offset, end offset
	Iterate    Code = 16 // operands: break offset
	ExitList   Code = 17

	// Values
	Primitive        Code = 20
	Pop              Code = 21
	Dup              Code = 22
	GetVariable      Code = 23
	SetVariable      Code = 24
	GetProperty      Code = 25
	Helper           Code = 26
	Concat           Code = 27
	GetDynamicVar    Code = 28
	PushDynamicScope Code = 29
	PopDynamicScope  Code = 30
	BindDynamicScope Code = 31
	Load             Code = 32 // pop into register
	Fetch            Code = 33 // push from register
	Constant         Code = 34 // push an opaque pool value

	// Tree construction
	Text              Code = 40
	Comment           Code = 41
	OpenElement       Code = 42
	StaticAttr        Code = 43
	DynamicAttr       Code = 44
	FlushElement      Code = 45
	CloseElement      Code = 46
	AppendText        Code = 47
	Modifier          Code = 48
	PushRemoteElement Code = 49
	PopRemoteElement  Code = 50

	// Blocks
	PushBlock     Code = 60
	PushNullBlock Code = 61
	InvokeYield   Code = 62

	// Components
	ResolveComponent   Code = 70
	SetBlocks          Code = 71
	PushArgs           Code = 72
	CreateComponent    Code = 73
	RegisterDestructor Code = 74
	BeginTransaction   Code = 75
	CommitTransaction  Code = 76
	ResolveLayout      Code = 77
	InvokeLayout       Code = 78
	DidRenderLayout    Code = 79
)

// Info contains information about an opcode.
type Info struct {
	Code         Code
	Name         string
	OperandCount int
}

var infos = make([]Info, 256)

func init() {
	type opInfo struct {
		op    Code
		name  string
		count int
	}
	ops := []opInfo{
		{Header, "HEADER", 2},
		{Cleanup, "CLEANUP", 0},
		{Nop, "NOP", 0},
		{Return, "RETURN", 0},
		{Jump, "JUMP", 1},
		{JumpIf, "JUMP_IF", 1},
		{JumpUnless, "JUMP_UNLESS", 1},
		{Enter, "ENTER", 1},
		{Exit, "EXIT", 0},
		{EnterList, "ENTER_LIST", 3},
		{Iterate, "ITERATE", 1},
		{ExitList, "EXIT_LIST", 0},
		{Primitive, "PRIMITIVE", 1},
		{Pop, "POP", 1},
		{Dup, "DUP", 0},
		{GetVariable, "GET_VARIABLE", 1},
		{SetVariable, "SET_VARIABLE", 1},
		{GetProperty, "GET_PROPERTY", 1},
		{Helper, "HELPER", 3},
		{Concat, "CONCAT", 1},
		{GetDynamicVar, "GET_DYNAMIC_VAR", 1},
		{PushDynamicScope, "PUSH_DYNAMIC_SCOPE", 0},
		{PopDynamicScope, "POP_DYNAMIC_SCOPE", 0},
		{BindDynamicScope, "BIND_DYNAMIC_SCOPE", 1},
		{Load, "LOAD", 1},
		{Fetch, "FETCH", 1},
		{Constant, "CONSTANT", 1},
		{Text, "TEXT", 1},
		{Comment, "COMMENT", 1},
		{OpenElement, "OPEN_ELEMENT", 2},
		{StaticAttr, "STATIC_ATTR", 3},
		{DynamicAttr, "DYNAMIC_ATTR", 2},
		{FlushElement, "FLUSH_ELEMENT", 0},
		{CloseElement, "CLOSE_ELEMENT", 0},
		{AppendText, "APPEND_TEXT", 0},
		{Modifier, "MODIFIER", 3},
		{PushRemoteElement, "PUSH_REMOTE_ELEMENT", 0},
		{PopRemoteElement, "POP_REMOTE_ELEMENT", 0},
		{PushBlock, "PUSH_BLOCK", 1},
		{PushNullBlock, "PUSH_NULL_BLOCK", 0},
		{InvokeYield, "INVOKE_YIELD", 1},
		{ResolveComponent, "RESOLVE_COMPONENT", 2},
		{SetBlocks, "SET_BLOCKS", 1},
		{PushArgs, "PUSH_ARGS", 3},
		{CreateComponent, "CREATE_COMPONENT", 1},
		{RegisterDestructor, "REGISTER_DESTRUCTOR", 1},
		{BeginTransaction, "BEGIN_TRANSACTION", 0},
		{CommitTransaction, "COMMIT_TRANSACTION", 0},
		{ResolveLayout, "RESOLVE_LAYOUT", 1},
		{InvokeLayout, "INVOKE_LAYOUT", 1},
		{DidRenderLayout, "DID_RENDER_LAYOUT", 1},
	}
	for _, o := range ops {
		infos[o.op] = Info{
			Name:         o.name,
			Code:         o.op,
			OperandCount: o.count,
		}
	}
}

// GetInfo returns information about the given opcode.
func GetInfo(op Code) Info {
	if int(op) >= len(infos) {
		return Info{}
	}
	return infos[op]
}

// IsJump reports whether the opcode's operands include program offsets that
// the compiler must patch before the program is finalized.
func (c Code) IsJump() bool {
	switch c {
	case Jump, JumpIf, JumpUnless, Enter, EnterList, Iterate:
		return true
	default:
		return false
	}
}

// String returns the opcode's name, or "INVALID" for unknown opcodes.
func (c Code) String() string {
	if info := GetInfo(c); info.Name != "" {
		return info.Name
	}
	return "INVALID"
}
