package lexer

import "testing"

func TestLexerBasic(t *testing.T) {
	input := "Hello {{ name }}!"
	tokens, err := Tokenize(input, DefaultSyntax(), DefaultWhitespace())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []struct {
		typ   TokenType
		value string
	}{
		{TokenTemplateData, "Hello "},
		{TokenVariableStart, "{{"},
		{TokenIdent, "name"},
		{TokenVariableEnd, "}}"},
		{TokenTemplateData, "!"},
	}

	if len(tokens) != len(expected) {
		t.Fatalf("expected %d tokens, got %d", len(expected), len(tokens))
	}

	for i, exp := range expected {
		if tokens[i].Type != exp.typ || tokens[i].Value != exp.value {
			t.Errorf("token %d: expected %s(%q), got %s(%q)",
				i, exp.typ, exp.value, tokens[i].Type, tokens[i].Value)
		}
	}
}

func TestLexerBlockTags(t *testing.T) {
	input := "{% if x %}a{% else %}b{% endif %}"
	tokens, err := Tokenize(input, DefaultSyntax(), DefaultWhitespace())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var idents []string
	for _, tok := range tokens {
		if tok.Type == TokenIdent {
			idents = append(idents, tok.Value)
		}
	}

	want := []string{"if", "x", "else", "endif"}
	if len(idents) != len(want) {
		t.Fatalf("expected idents %v, got %v", want, idents)
	}
	for i, w := range want {
		if idents[i] != w {
			t.Errorf("ident %d: expected %q, got %q", i, w, idents[i])
		}
	}
}

func TestLexerGenerationTag(t *testing.T) {
	input := "{% generation %}hi{% endgeneration %}"
	tokens, err := Tokenize(input, DefaultSyntax(), DefaultWhitespace())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var idents []string
	for _, tok := range tokens {
		if tok.Type == TokenIdent {
			idents = append(idents, tok.Value)
		}
	}
	if len(idents) != 2 || idents[0] != "generation" || idents[1] != "endgeneration" {
		t.Fatalf("expected [generation endgeneration], got %v", idents)
	}
}

func TestLexerWhitespaceTrim(t *testing.T) {
	input := "{% if x -%}\n  a\n{%- endif %}"
	tokens, err := Tokenize(input, DefaultSyntax(), DefaultWhitespace())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, tok := range tokens {
		if tok.Type == TokenTemplateData && tok.Value != "a" {
			t.Errorf("expected trimmed template data %q, got %q", "a", tok.Value)
		}
	}
}

func TestLexerStringEscapes(t *testing.T) {
	input := `{{ "a\nb\tc" }}`
	tokens, err := Tokenize(input, DefaultSyntax(), DefaultWhitespace())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, tok := range tokens {
		if tok.Type == TokenString && tok.Value != "a\nb\tc" {
			t.Errorf("expected decoded string %q, got %q", "a\nb\tc", tok.Value)
		}
	}
}

func TestLexerNumberLiterals(t *testing.T) {
	cases := []struct {
		src  string
		typ  TokenType
		want string
	}{
		{"{{ 42 }}", TokenInteger, "42"},
		{"{{ 0x2a }}", TokenInteger, "42"},
		{"{{ 3.14 }}", TokenFloat, "3.14"},
	}
	for _, c := range cases {
		tokens, err := Tokenize(c.src, DefaultSyntax(), DefaultWhitespace())
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", c.src, err)
		}
		found := false
		for _, tok := range tokens {
			if tok.Type == c.typ {
				found = true
				if tok.Value != c.want {
					t.Errorf("%s: expected value %q, got %q", c.src, c.want, tok.Value)
				}
			}
		}
		if !found {
			t.Errorf("%s: expected a token of type %s", c.src, c.typ)
		}
	}
}

func TestLexerUnterminatedStringError(t *testing.T) {
	_, err := Tokenize(`{{ "abc`, DefaultSyntax(), DefaultWhitespace())
	if err == nil {
		t.Fatalf("expected error for unterminated string literal")
	}
	lexErr, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *lexer.Error, got %T", err)
	}
	if lexErr.Line == 0 {
		t.Errorf("expected a non-zero line number in lexer error")
	}
}
