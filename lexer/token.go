package lexer

import "fmt"

// TokenType identifies the lexical category of a Token.
type TokenType int

const (
	TokenTemplateData TokenType = iota

	TokenVariableStart // {{
	TokenVariableEnd   // }}
	TokenBlockStart    // {%
	TokenBlockEnd      // %}

	TokenIdent   // identifier (keywords are recognized by value, not a distinct type)
	TokenString  // "string" or 'string'
	TokenInteger // fits in int64
	TokenInt128  // integer literal too large for int64
	TokenFloat

	TokenPlus
	TokenMinus
	TokenMul
	TokenDiv
	TokenFloorDiv
	TokenMod
	TokenPow
	TokenTilde

	TokenEq
	TokenNe
	TokenLt
	TokenLe
	TokenGt
	TokenGe

	TokenAssign

	TokenDot
	TokenComma
	TokenColon
	TokenPipe
	TokenParenOpen
	TokenParenClose
	TokenBracketOpen
	TokenBracketClose
	TokenBraceOpen
	TokenBraceClose
)

var tokenTypeNames = map[TokenType]string{
	TokenTemplateData:  "TemplateData",
	TokenVariableStart: "VariableStart",
	TokenVariableEnd:   "VariableEnd",
	TokenBlockStart:    "BlockStart",
	TokenBlockEnd:      "BlockEnd",
	TokenIdent:         "Ident",
	TokenString:        "Str",
	TokenInteger:       "Int",
	TokenInt128:        "Int128",
	TokenFloat:         "Float",
	TokenPlus:          "Plus",
	TokenMinus:         "Minus",
	TokenMul:           "Mul",
	TokenDiv:           "Div",
	TokenFloorDiv:      "FloorDiv",
	TokenMod:           "Mod",
	TokenPow:           "Pow",
	TokenTilde:         "Tilde",
	TokenEq:            "Eq",
	TokenNe:            "Ne",
	TokenLt:            "Lt",
	TokenLe:            "Le",
	TokenGt:            "Gt",
	TokenGe:            "Ge",
	TokenAssign:        "Assign",
	TokenDot:           "Dot",
	TokenComma:         "Comma",
	TokenColon:         "Colon",
	TokenPipe:          "Pipe",
	TokenParenOpen:     "ParenOpen",
	TokenParenClose:    "ParenClose",
	TokenBracketOpen:   "BracketOpen",
	TokenBracketClose:  "BracketClose",
	TokenBraceOpen:     "BraceOpen",
	TokenBraceClose:    "BraceClose",
}

func (t TokenType) String() string {
	if name, ok := tokenTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TokenType(%d)", t)
}

// Span is a source location range: 1-based line numbers, 0-based columns,
// plus byte offsets for substring extraction.
type Span struct {
	StartLine   uint16
	StartCol    uint16
	StartOffset uint32
	EndLine     uint16
	EndCol      uint16
	EndOffset   uint32
}

// Token is a single lexical unit produced by the Lexer.
type Token struct {
	Type  TokenType
	Value string
	Span  Span
}

func (t Token) String() string {
	return fmt.Sprintf("%s(%q)", t.Type, t.Value)
}

// FormatForSnapshot renders a token the way the lexer's snapshot tests expect.
func (t Token) FormatForSnapshot(source string) string {
	tokenSource := source[t.Span.StartOffset:t.Span.EndOffset]

	switch t.Type {
	case TokenTemplateData:
		return fmt.Sprintf("TemplateData(%q)\n  %q", t.Value, tokenSource)
	case TokenIdent:
		return fmt.Sprintf("Ident(%q)\n  %q", t.Value, tokenSource)
	case TokenString:
		return fmt.Sprintf("Str(%q)\n  %q", t.Value, tokenSource)
	case TokenInteger:
		return fmt.Sprintf("Int(%s)\n  %q", t.Value, tokenSource)
	case TokenInt128:
		return fmt.Sprintf("Int128(%s)\n  %q", t.Value, tokenSource)
	case TokenFloat:
		return fmt.Sprintf("Float(%s)\n  %q", t.Value, tokenSource)
	default:
		return fmt.Sprintf("%s\n  %q", t.Type, tokenSource)
	}
}
