package errors

import (
	"fmt"
	"strings"
)

// CompileError is a fault raised while building a program. Compile errors
// always indicate a malformed emission request and abort compilation.
type CompileError struct {
	Code        ErrorCode
	Message     string
	Unit        string // name of the compiled unit
	Offset      int    // instruction offset, -1 when not tied to one
	Line        int
	Column      int
	Suggestions []Suggestion
	Note        string
}

// NewCompileError returns a CompileError with a formatted message and no
// instruction offset.
func NewCompileError(code ErrorCode, format string, args ...any) *CompileError {
	return &CompileError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Offset:  -1,
	}
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	var b strings.Builder
	b.WriteString("compile error: ")
	b.WriteString(e.Message)
	if e.Unit != "" || e.Offset >= 0 {
		b.WriteString(" (")
		if e.Unit != "" {
			b.WriteString(e.Unit)
			if e.Offset >= 0 {
				b.WriteString(" ")
			}
		}
		if e.Offset >= 0 {
			fmt.Fprintf(&b, "at offset %d", e.Offset)
		}
		b.WriteString(")")
	}
	if e.Line > 0 {
		fmt.Fprintf(&b, " (line %d, column %d)", e.Line, e.Column)
	}
	return b.String()
}

// FriendlyErrorMessage returns a human-friendly error message.
func (e *CompileError) FriendlyErrorMessage() string {
	return NewFormatter(false).Format(e.ToFormatted())
}

// ToFormatted converts to the FormattedError type for display.
func (e *CompileError) ToFormatted() *FormattedError {
	fe := &FormattedError{
		Code:     e.Code,
		Kind:     "compile error",
		Message:  e.Message,
		Filename: e.Unit,
		Line:     e.Line,
		Column:   e.Column,
		Note:     e.Note,
	}
	if len(e.Suggestions) > 0 {
		fe.Hint = FormatSuggestions(e.Suggestions)
	}
	return fe
}

// ListFormat renders a list of errors with the plain formatter. It has the
// signature of multierror.ErrorFormatFunc so aggregated compile faults print
// the same way a single fault does.
func ListFormat(errs []error) string {
	if len(errs) == 1 {
		return errs[0].Error()
	}
	var formatted []*FormattedError
	for _, err := range errs {
		if fe, ok := err.(FormattableError); ok {
			formatted = append(formatted, fe.ToFormatted())
			continue
		}
		formatted = append(formatted, &FormattedError{Message: err.Error()})
	}
	return NewFormatter(false).FormatMultiple(formatted)
}
