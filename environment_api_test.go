package minja

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestOperatorAliases(t *testing.T) {
	env := NewEnvironment()
	tmpl, err := env.TemplateFromString(`{{ [1,2,3]|select("==", 2)|join(",") }}|{{ [1,2,3]|select("!=", 2)|join(",") }}|{{ [1,2,3]|select("lessthan", 3)|join(",") }}|{{ [1,2,3]|select("greaterthan", 1)|join(",") }}`)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	result, err := tmpl.Render(nil)
	if err != nil {
		t.Fatalf("render error: %v", err)
	}

	expected := "2|1,3|1,2|2,3"
	if result != expected {
		t.Errorf("expected %q, got %q", expected, result)
	}
}

func TestTemplateManagementAPIs(t *testing.T) {
	env := NewEnvironment()
	if err := env.AddTemplate("a.txt", "A"); err != nil {
		t.Fatalf("add template error: %v", err)
	}
	if err := env.AddTemplate("b.txt", "B"); err != nil {
		t.Fatalf("add template error: %v", err)
	}

	if len(env.Templates()) != 2 {
		t.Fatalf("expected 2 templates, got %d", len(env.Templates()))
	}

	env.RemoveTemplate("a.txt")
	if _, err := env.GetTemplate("a.txt"); err == nil {
		t.Fatal("expected missing template error")
	}

	env.ClearTemplates()
	if len(env.Templates()) != 0 {
		t.Fatalf("expected 0 templates after clear, got %d", len(env.Templates()))
	}
}

func TestAutoEscapeDefaults(t *testing.T) {
	env := NewEnvironment()
	var captured AutoEscape
	env.AddFunction("capture", func(state *State, args []Value, kwargs Kwargs) (Value, error) {
		captured = state.AutoEscape()
		return FromString("ok"), nil
	})

	tmplHTML, err := env.TemplateFromNamedString("page.html", "{{ capture() }}")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if _, err := tmplHTML.Render(nil); err != nil {
		t.Fatalf("render error: %v", err)
	}
	if !captured.IsHTML() {
		t.Fatalf("expected HTML auto-escape, got %#v", captured)
	}

	tmplJSON, err := env.TemplateFromNamedString("data.json", "{{ capture() }}")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if _, err := tmplJSON.Render(nil); err != nil {
		t.Fatalf("render error: %v", err)
	}
	if !captured.IsJSON() {
		t.Fatalf("expected JSON auto-escape, got %#v", captured)
	}
}

func TestAutoEscapeJSONRendering(t *testing.T) {
	env := NewEnvironment()
	tmpl, err := env.TemplateFromNamedString("data.json", "{{ value }}")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	result, err := tmpl.Render(map[string]any{"value": "hello \"world\""})
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if result != `"hello \"world\""` {
		t.Fatalf("expected JSON serialized value, got %q", result)
	}
}

func TestAutoEscapeCustomWithoutFormatter(t *testing.T) {
	env := NewEnvironment()
	env.SetAutoEscapeFunc(func(name string) AutoEscape {
		return AutoEscapeCustom("custom")
	})

	tmpl, err := env.TemplateFromString("{{ value }}")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	_, err = tmpl.Render(map[string]any{"value": "hello"})
	if err == nil {
		t.Fatal("expected render error")
	}
	if tmplErr, ok := err.(*Error); !ok || tmplErr.Kind != ErrInvalidOperation {
		t.Fatalf("expected invalid operation error, got %v", err)
	}
}

func TestAutoEscapeCustomFormatter(t *testing.T) {
	env := NewEnvironment()
	env.SetAutoEscapeFunc(func(name string) AutoEscape {
		return AutoEscapeCustom("shout")
	})
	env.SetFormatter(func(state *State, val Value, escape func(string) string) string {
		return escape(val.String()) + "!"
	})

	tmpl, err := env.TemplateFromString("{{ value }}")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	result, err := tmpl.Render(map[string]any{"value": "hello"})
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if result != "hello!" {
		t.Fatalf("expected 'hello!', got %q", result)
	}
}

func TestFuelTracking(t *testing.T) {
	env := NewEnvironment()
	env.SetFuel(5)

	tmpl, err := env.TemplateFromString("Hello {{ name }}!")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	state, err := tmpl.EvalToState(map[string]any{"name": "World"})
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	consumed, remaining, ok := state.FuelLevels()
	if !ok {
		t.Fatal("expected fuel tracking to be enabled")
	}
	if consumed == 0 {
		t.Fatal("expected fuel consumption to be tracked")
	}
	if remaining >= 5 {
		t.Fatalf("expected remaining fuel to decrease, got %d", remaining)
	}
}

func TestOutOfFuel(t *testing.T) {
	env := NewEnvironment()
	env.SetFuel(1)
	tmpl, err := env.TemplateFromString("{{ 1 }}{{ 2 }}{{ 3 }}")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	_, err = tmpl.Render(nil)
	if err == nil {
		t.Fatal("expected out of fuel error")
	}
	if tmplErr, ok := err.(*Error); !ok || tmplErr.Kind != ErrOutOfFuel {
		t.Fatalf("expected out of fuel error, got %v", err)
	}
}

func TestLoggerReceivesFuelExhaustion(t *testing.T) {
	var buf bytes.Buffer
	env := NewEnvironment()
	env.SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	env.SetFuel(1)

	tmpl, err := env.TemplateFromString("{{ 1 }}{{ 2 }}")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if _, err := tmpl.Render(nil); err == nil {
		t.Fatal("expected out of fuel error")
	}

	if !strings.Contains(buf.String(), "fuel exhausted") {
		t.Fatalf("expected fuel exhaustion log entry, got %q", buf.String())
	}
}

func TestRecursionLimit(t *testing.T) {
	env := NewEnvironment()
	env.SetRecursionLimit(2)

	err := env.AddTemplate("loop.txt", `{% macro rec(n) %}{{ n }}{{ rec(n + 1) }}{% endmacro %}{{ rec(0) }}`)
	if err != nil {
		t.Fatalf("add template error: %v", err)
	}

	tmpl, err := env.GetTemplate("loop.txt")
	if err != nil {
		t.Fatalf("get template error: %v", err)
	}

	_, err = tmpl.Render(nil)
	if err == nil {
		t.Fatal("expected recursion error")
	}
	if tmplErr, ok := err.(*Error); !ok || tmplErr.Kind != ErrRecursionLimit {
		t.Fatalf("expected recursion limit error, got %v", err)
	}
}
