package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompileErrorMessage(t *testing.T) {
	err := NewCompileError(E2001, "undefined label %q", "ELSE")
	require.Equal(t, `compile error: undefined label "ELSE"`, err.Error())

	err.Unit = "main"
	err.Offset = 4
	require.Equal(t, `compile error: undefined label "ELSE" (main at offset 4)`, err.Error())
}

func TestCompileErrorFriendly(t *testing.T) {
	err := NewCompileError(E2001, "undefined label %q", "ELES")
	err.Unit = "main"
	err.Suggestions = SuggestSimilar("ELES", []string{"ELSE", "END", "BREAK"})
	msg := err.FriendlyErrorMessage()
	require.Contains(t, msg, "compile error[E2001]: undefined label \"ELES\"")
	require.Contains(t, msg, "--> main")
	require.Contains(t, msg, "hint: did you mean 'ELSE'?")
}

func TestListFormat(t *testing.T) {
	one := NewCompileError(E2001, "undefined label %q", "A")
	require.Equal(t, one.Error(), ListFormat([]error{one}))

	msg := ListFormat([]error{one, NewCompileError(E2001, "undefined label %q", "B"), fmt.Errorf("plain")})
	require.Contains(t, msg, `undefined label "A"`)
	require.Contains(t, msg, `undefined label "B"`)
	require.Contains(t, msg, "error[3/3]: plain")
	require.Contains(t, msg, "found 3 errors")
}

func TestRenderError(t *testing.T) {
	err := NewRenderError(E3002, "stack underflow")
	require.Equal(t, "render error: stack underflow", err.Error())
	require.True(t, err.IsFatal())

	err.Program = "main"
	err.Offset = 7
	err.Opcode = "POP"
	require.Equal(t, "render error: stack underflow (POP at main:7)", err.Error())

	wrapped := fmt.Errorf("outer: %w", err)
	require.True(t, errors.Is(wrapped, &RenderError{Code: E3002}))
	require.False(t, errors.Is(wrapped, &RenderError{Code: E3001}))
}

func TestErrorCodes(t *testing.T) {
	require.Equal(t, "compile", E2004.Category())
	require.Equal(t, "render", E3008.Category())
	require.Equal(t, "unsupported literal", E2004.Description())
	require.Equal(t, "unknown error", ErrorCode("E9999").Description())
}

func TestSuggestSimilar(t *testing.T) {
	tests := []struct {
		target     string
		candidates []string
		want       []string
	}{
		{"tilte", []string{"title", "subtitle", "name"}, []string{"title"}},
		{"x", []string{"y", "xyz"}, []string{"y"}},
		{"", []string{"a"}, nil},
		{"name", []string{"name"}, nil},
	}
	for _, tt := range tests {
		var got []string
		for _, s := range SuggestSimilar(tt.target, tt.candidates) {
			got = append(got, s.Value)
		}
		require.Equal(t, tt.want, got, tt.target)
	}
	require.Equal(t, "", FormatSuggestions(nil))
	require.Equal(t, "did you mean one of: 'a', 'b'?",
		FormatSuggestions([]Suggestion{{Value: "a"}, {Value: "b"}}))
}
