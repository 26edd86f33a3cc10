package parser

import "testing"

func TestParserBasic(t *testing.T) {
	result := ParseDefault("Hello {{ name }}!", "test.html")
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}

	tmpl := result.Template
	if len(tmpl.Children) != 3 {
		t.Fatalf("expected 3 children, got %d", len(tmpl.Children))
	}

	if raw, ok := tmpl.Children[0].(*EmitRaw); !ok || raw.Raw != "Hello " {
		t.Errorf("expected EmitRaw 'Hello ', got %T %v", tmpl.Children[0], tmpl.Children[0])
	}

	if emit, ok := tmpl.Children[1].(*EmitExpr); !ok {
		t.Errorf("expected EmitExpr, got %T", tmpl.Children[1])
	} else if v, ok := emit.Expr.(*Var); !ok || v.ID != "name" {
		t.Errorf("expected Var 'name', got %T %v", emit.Expr, emit.Expr)
	}

	if raw, ok := tmpl.Children[2].(*EmitRaw); !ok || raw.Raw != "!" {
		t.Errorf("expected EmitRaw '!', got %T %v", tmpl.Children[2], tmpl.Children[2])
	}
}

func TestParserForLoop(t *testing.T) {
	result := ParseDefault("{% for x in items if x %}{{ x }}{% else %}empty{% endfor %}", "t")
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if len(result.Template.Children) != 1 {
		t.Fatalf("expected 1 child, got %d", len(result.Template.Children))
	}
	loop, ok := result.Template.Children[0].(*ForLoop)
	if !ok {
		t.Fatalf("expected ForLoop, got %T", result.Template.Children[0])
	}
	if _, ok := loop.Target.(*Var); !ok {
		t.Errorf("expected Var target, got %T", loop.Target)
	}
	if loop.FilterExpr == nil {
		t.Errorf("expected filter expression to be set")
	}
	if len(loop.ElseBody) != 1 {
		t.Errorf("expected 1 else-body statement, got %d", len(loop.ElseBody))
	}
}

func TestParserIfElif(t *testing.T) {
	result := ParseDefault("{% if a %}x{% elif b %}y{% else %}z{% endif %}", "t")
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	cond, ok := result.Template.Children[0].(*IfCond)
	if !ok {
		t.Fatalf("expected IfCond, got %T", result.Template.Children[0])
	}
	if len(cond.FalseBody) != 1 {
		t.Fatalf("expected elif nested as a single FalseBody statement, got %d", len(cond.FalseBody))
	}
	if _, ok := cond.FalseBody[0].(*IfCond); !ok {
		t.Errorf("expected nested IfCond for elif, got %T", cond.FalseBody[0])
	}
}

func TestParserSetBlockWithFilter(t *testing.T) {
	result := ParseDefault("{% set x | upper %}hi{% endset %}", "t")
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	block, ok := result.Template.Children[0].(*SetBlock)
	if !ok {
		t.Fatalf("expected SetBlock, got %T", result.Template.Children[0])
	}
	f, ok := block.Filter.(*Filter)
	if !ok || f.Name != "upper" {
		t.Errorf("expected upper filter, got %#v", block.Filter)
	}
}

func TestParserGenerationBlock(t *testing.T) {
	result := ParseDefault("{% generation %}{{ answer }}{% endgeneration %}", "t")
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if len(result.Template.Children) != 1 {
		t.Fatalf("expected 1 child, got %d", len(result.Template.Children))
	}
	gen, ok := result.Template.Children[0].(*Generation)
	if !ok {
		t.Fatalf("expected Generation, got %T", result.Template.Children[0])
	}
	if len(gen.Body) != 1 {
		t.Fatalf("expected 1 body statement, got %d", len(gen.Body))
	}
}

func TestParserMacro(t *testing.T) {
	result := ParseDefault("{% macro greet(name, greeting='hi') %}{{ greeting }} {{ name }}{% endmacro %}", "t")
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	macro, ok := result.Template.Children[0].(*Macro)
	if !ok {
		t.Fatalf("expected Macro, got %T", result.Template.Children[0])
	}
	if macro.Name != "greet" {
		t.Errorf("expected name 'greet', got %q", macro.Name)
	}
	if len(macro.Args) != 2 {
		t.Fatalf("expected 2 args, got %d", len(macro.Args))
	}
	if len(macro.Defaults) != 1 {
		t.Errorf("expected 1 default, got %d", len(macro.Defaults))
	}
}

func TestParserBreakOutsideLoopIsError(t *testing.T) {
	result := ParseDefault("{% break %}", "t")
	if result.Err == nil {
		t.Fatalf("expected an error for break outside a loop")
	}
}

func TestParserUnknownStatementError(t *testing.T) {
	result := ParseDefault("{% frobnicate %}", "t")
	if result.Err == nil {
		t.Fatalf("expected an error for an unknown statement")
	}
	if result.Err.Line == 0 {
		t.Errorf("expected a non-zero line number in the parse error")
	}
}

func TestParserPrecedenceAndCallArgs(t *testing.T) {
	// Filters bind to the nearest unary operand, so this is
	// 1 + (2 * (3|default(value=4))), not the whole sum filtered.
	result := ParseDefault("{{ 1 + 2 * 3 | default(value=4) }}", "t")
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	emit, ok := result.Template.Children[0].(*EmitExpr)
	if !ok {
		t.Fatalf("expected EmitExpr, got %T", result.Template.Children[0])
	}
	sum, ok := emit.Expr.(*BinOp)
	if !ok || sum.Op != BinOpAdd {
		t.Fatalf("expected top-level addition, got %#v", emit.Expr)
	}
	mul, ok := sum.Right.(*BinOp)
	if !ok || mul.Op != BinOpMul {
		t.Fatalf("expected multiplication to bind tighter than addition, got %#v", sum.Right)
	}
	filter, ok := mul.Right.(*Filter)
	if !ok || filter.Name != "default" {
		t.Fatalf("expected a default filter on the innermost operand, got %#v", mul.Right)
	}
	if len(filter.Args) != 1 || filter.Args[0].Kind != CallArgKwarg || filter.Args[0].Name != "value" {
		t.Errorf("expected one kwarg 'value', got %#v", filter.Args)
	}
}

func TestFormatResultError(t *testing.T) {
	result := ParseDefault("{% break %}", "t")
	out := FormatResult(result)
	if out == "" {
		t.Errorf("expected a non-empty formatted error")
	}
}
