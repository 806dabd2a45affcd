package errors

// ErrorCode represents a unique identifier for error types.
// Codes are organized by category:
//   - E2xxx: Compile errors
//   - E3xxx: Render errors
type ErrorCode string

const (
	// Compile errors (E2xxx)
	E2001 ErrorCode = "E2001" // Undefined label
	E2002 ErrorCode = "E2002" // Duplicate label
	E2003 ErrorCode = "E2003" // Unbalanced label scope
	E2004 ErrorCode = "E2004" // Unsupported literal
	E2005 ErrorCode = "E2005" // Released register referenced
	E2006 ErrorCode = "E2006" // Too many constants
	E2007 ErrorCode = "E2007" // Reserved comment text
	E2008 ErrorCode = "E2008" // Unknown node
	E2009 ErrorCode = "E2009" // Program already finalized
	E2010 ErrorCode = "E2010" // Unbalanced region

	// Render errors (E3xxx)
	E3001 ErrorCode = "E3001" // Stack overflow
	E3002 ErrorCode = "E3002" // Stack underflow
	E3003 ErrorCode = "E3003" // Unknown helper
	E3004 ErrorCode = "E3004" // Unknown component
	E3005 ErrorCode = "E3005" // Unknown modifier
	E3006 ErrorCode = "E3006" // Invalid operation
	E3007 ErrorCode = "E3007" // Frame depth exceeded
	E3008 ErrorCode = "E3008" // Render handle torn down
	E3009 ErrorCode = "E3009" // Invalid remote target
)

// codeDescriptions maps error codes to their short descriptions.
var codeDescriptions = map[ErrorCode]string{
	E2001: "undefined label",
	E2002: "duplicate label",
	E2003: "unbalanced label scope",
	E2004: "unsupported literal",
	E2005: "released register referenced",
	E2006: "too many constants",
	E2007: "reserved comment text",
	E2008: "unknown node",
	E2009: "program already finalized",
	E2010: "unbalanced region",

	E3001: "stack overflow",
	E3002: "stack underflow",
	E3003: "unknown helper",
	E3004: "unknown component",
	E3005: "unknown modifier",
	E3006: "invalid operation",
	E3007: "frame depth exceeded",
	E3008: "render handle torn down",
	E3009: "invalid remote target",
}

// Description returns the short description for an error code.
func (c ErrorCode) Description() string {
	if desc, ok := codeDescriptions[c]; ok {
		return desc
	}
	return "unknown error"
}

// String returns the error code as a string.
func (c ErrorCode) String() string {
	return string(c)
}

// Category returns the error category based on the code prefix.
func (c ErrorCode) Category() string {
	if len(c) < 2 {
		return "unknown"
	}
	switch c[1] {
	case '2':
		return "compile"
	case '3':
		return "render"
	default:
		return "unknown"
	}
}
