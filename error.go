package minja

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jxt1234/minja/lexer"
)

// ErrorKind describes the internal, fine-grained class of error.
type ErrorKind int

const (
	ErrSyntax ErrorKind = iota
	ErrUndefinedVar
	ErrUnknownFilter
	ErrUnknownTest
	ErrUnknownFunction
	ErrInvalidOperation
	ErrTemplateNotFound
	ErrBadEscape
	ErrMissingArgument
	ErrTooManyArguments
	ErrOutOfFuel
	ErrRecursionLimit
)

func (k ErrorKind) String() string {
	switch k {
	case ErrSyntax:
		return "syntax error"
	case ErrUndefinedVar:
		return "undefined variable"
	case ErrUnknownFilter:
		return "unknown filter"
	case ErrUnknownTest:
		return "unknown test"
	case ErrUnknownFunction:
		return "unknown function"
	case ErrInvalidOperation:
		return "invalid operation"
	case ErrTemplateNotFound:
		return "template not found"
	case ErrBadEscape:
		return "bad escape"
	case ErrMissingArgument:
		return "missing argument"
	case ErrTooManyArguments:
		return "too many arguments"
	case ErrOutOfFuel:
		return "out of fuel"
	case ErrRecursionLimit:
		return "recursion limit exceeded"
	default:
		return "error"
	}
}

// PublicKind is the small, stable error taxonomy exposed to callers, onto
// which every internal ErrorKind maps.
type PublicKind int

const (
	PublicKindLexError PublicKind = iota
	PublicKindParseError
	PublicKindNameError
	PublicKindTypeError
	PublicKindArityError
	PublicKindValueError
)

func (k PublicKind) String() string {
	switch k {
	case PublicKindLexError:
		return "LexError"
	case PublicKindParseError:
		return "ParseError"
	case PublicKindNameError:
		return "NameError"
	case PublicKindTypeError:
		return "TypeError"
	case PublicKindArityError:
		return "ArityError"
	case PublicKindValueError:
		return "ValueError"
	default:
		return "ValueError"
	}
}

// PublicKind maps the detailed internal ErrorKind onto the six public kinds.
func (k ErrorKind) PublicKind() PublicKind {
	switch k {
	case ErrSyntax:
		return PublicKindParseError
	case ErrUndefinedVar, ErrUnknownFilter, ErrUnknownTest, ErrUnknownFunction, ErrTemplateNotFound:
		return PublicKindNameError
	case ErrInvalidOperation, ErrBadEscape:
		return PublicKindTypeError
	case ErrMissingArgument, ErrTooManyArguments:
		return PublicKindArityError
	case ErrOutOfFuel, ErrRecursionLimit:
		return PublicKindValueError
	default:
		return PublicKindValueError
	}
}

// Error represents an error that occurred during template compilation or
// rendering. Its Error() string follows the canonical
//
//	<kind>: <message> at row <R>, column <C>:
//	<line R-1>
//	<line R>
//	<caret>^
//	<line R+1>
//
// format, with the context lines omitted at source boundaries.
type Error struct {
	Kind    ErrorKind
	Message string
	Span    *lexer.Span
	Name    string // template name
	Source  string // template source (for error display)
}

func (e *Error) Error() string {
	header := fmt.Sprintf("%s: %s", e.Kind.PublicKind(), e.Message)
	if e.Name != "" {
		header = fmt.Sprintf("%s (in %s)", header, e.Name)
	}
	if e.Span == nil || e.Source == "" {
		return header
	}

	row := int(e.Span.StartLine)
	col := int(e.Span.StartCol) + 1 // spans carry 0-based columns
	lines := strings.Split(e.Source, "\n")
	if row < 1 || row > len(lines) {
		return header
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s at row %d, column %d:\n", header, row, col)
	if row-2 >= 0 && row-2 < len(lines) {
		b.WriteString(lines[row-2])
		b.WriteByte('\n')
	}
	b.WriteString(lines[row-1])
	b.WriteByte('\n')
	b.WriteString(strings.Repeat(" ", max(col-1, 0)))
	b.WriteString("^")
	if row < len(lines) {
		b.WriteByte('\n')
		b.WriteString(lines[row])
	}
	return b.String()
}

// NewError creates a new error.
func NewError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// NewErrorf creates a new error with a formatted message.
func NewErrorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithSpan adds span information to an error.
func (e *Error) WithSpan(span lexer.Span) *Error {
	e.Span = &span
	return e
}

// WithName adds template name to an error.
func (e *Error) WithName(name string) *Error {
	e.Name = name
	return e
}

// WithSource adds source to an error.
func (e *Error) WithSource(source string) *Error {
	e.Source = source
	return e
}

// suggestName formats a "did you mean %s?" hint, or "" if none was found.
func suggestName(hint string) string {
	if hint == "" {
		return ""
	}
	return " (did you mean " + strconv.Quote(hint) + "?)"
}
