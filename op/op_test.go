package op

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetInfo(t *testing.T) {
	info := GetInfo(EnterList)
	require.Equal(t, "ENTER_LIST", info.Name)
	require.Equal(t, 3, info.OperandCount)
	require.Equal(t, EnterList, info.Code)
}

func TestGetInfoAllOpcodes(t *testing.T) {
	tests := []struct {
		code     Code
		name     string
		operands int
	}{
		{Header, "HEADER", 2},
		{Cleanup, "CLEANUP", 0},
		{Return, "RETURN", 0},
		{Jump, "JUMP", 1},
		{JumpUnless, "JUMP_UNLESS", 1},
		{Enter, "ENTER", 1},
		{Exit, "EXIT", 0},
		{Iterate, "ITERATE", 1},
		{ExitList, "EXIT_LIST", 0},
		{Primitive, "PRIMITIVE", 1},
		{Helper, "HELPER", 3},
		{OpenElement, "OPEN_ELEMENT", 2},
		{StaticAttr, "STATIC_ATTR", 3},
		{DynamicAttr, "DYNAMIC_ATTR", 2},
		{PushRemoteElement, "PUSH_REMOTE_ELEMENT", 0},
		{ResolveComponent, "RESOLVE_COMPONENT", 2},
		{PushArgs, "PUSH_ARGS", 3},
		{InvokeLayout, "INVOKE_LAYOUT", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := GetInfo(tt.code)
			require.Equal(t, tt.name, info.Name)
			require.Equal(t, tt.operands, info.OperandCount)
			require.Equal(t, tt.name, tt.code.String())
		})
	}
}

func TestOperandCountsFitInstruction(t *testing.T) {
	for code := Code(0); code < 256; code++ {
		require.LessOrEqual(t, GetInfo(code).OperandCount, 3, code.String())
	}
}

func TestUnknownOpcode(t *testing.T) {
	require.Equal(t, "INVALID", Code(255).String())
	require.Equal(t, "INVALID", Invalid.String())
}

func TestIsJump(t *testing.T) {
	require.True(t, Jump.IsJump())
	require.True(t, Iterate.IsJump())
	require.True(t, EnterList.IsJump())
	require.False(t, Text.IsJump())
	require.False(t, Exit.IsJump())
}
