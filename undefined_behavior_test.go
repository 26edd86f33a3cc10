package minja

import (
	"errors"
	"testing"
)

func renderString(env *Environment, source string, ctx map[string]any) (string, error) {
	tmpl, err := env.TemplateFromString(source)
	if err != nil {
		return "", err
	}
	return tmpl.Render(ctx)
}

func assertRender(t *testing.T, env *Environment, source string, ctx map[string]any, expected string) {
	t.Helper()
	result, err := renderString(env, source, ctx)
	if err != nil {
		t.Fatalf("unexpected render error for %q: %v", source, err)
	}
	if result != expected {
		t.Fatalf("unexpected render result for %q: got %q, want %q", source, result, expected)
	}
}

func assertRenderErrorKind(t *testing.T, env *Environment, source string, ctx map[string]any, expected ErrorKind) {
	t.Helper()
	_, err := renderString(env, source, ctx)
	if err == nil {
		t.Fatalf("expected error for %q", source)
	}
	var mjErr *Error
	if !errors.As(err, &mjErr) {
		t.Fatalf("expected minijinja error for %q, got %T", source, err)
	}
	if mjErr.Kind != expected {
		t.Fatalf("unexpected error kind for %q: got %v, want %v", source, mjErr.Kind, expected)
	}
}

func TestLenientUndefinedBehavior(t *testing.T) {
	env := NewEnvironment()
	env.AddFilter("test", func(state *State, val Value, _ []Value, _ Kwargs) (Value, error) {
		if state.UndefinedBehavior() != UndefinedLenient {
			t.Fatalf("unexpected undefined behavior: %v", state.UndefinedBehavior())
		}
		return val, nil
	})

	assertRender(t, env, "<{{ true.missing_attribute }}>", nil, "<>")
	assertRender(t, env, "<{% for x in undefined %}...{% endfor %}>", nil, "<>")
	assertRender(t, env, "<{{ undefined }}>", nil, "<>")
	assertRender(t, env, "{{ not undefined }}", nil, "true")
	assertRender(t, env, "{{ undefined is undefined }}", nil, "true")
	assertRender(t, env, "{{ x.foo is undefined }}", map[string]any{"x": map[string]any{}}, "true")
	assertRender(t, env, "{{ undefined|list }}", nil, "[]")
	assertRender(t, env, "<{{ undefined|test }}>", nil, "<>")
	assertRender(t, env, "{{ 42 in undefined }}", nil, "false")
}

func TestStrictUndefinedBehavior(t *testing.T) {
	env := NewEnvironment()
	env.SetUndefinedBehavior(UndefinedStrict)

	assertRenderErrorKind(t, env, "<{{ undefined }}>", nil, ErrUndefinedVar)
	assertRenderErrorKind(t, env, "<{% for x in undefined %}...{% endfor %}>", nil, ErrUndefinedVar)
	assertRenderErrorKind(t, env, "<{% if undefined %}42{% endif %}>", nil, ErrUndefinedVar)
	assertRenderErrorKind(t, env, "{{ 42 in undefined }}", nil, ErrUndefinedVar)
	assertRenderErrorKind(t, env, "{{ undefined|list }}", nil, ErrUndefinedVar)

	// Explicit definedness checks never raise, even in strict mode.
	assertRender(t, env, "{{ undefined is undefined }}", nil, "true")
	assertRender(t, env, "{{ undefined is defined }}", nil, "false")
	assertRender(t, env, "{{ x.foo is undefined }}", map[string]any{"x": map[string]any{}}, "true")

	// Attribute access on a defined value that lacks the attribute yields an
	// ordinary (non-strict) undefined, since the receiver itself was defined.
	assertRender(t, env, "<{{ true.missing_attribute }}>", nil, "<>")
	assertRender(t, env, "<{% if x.foo %}...{% endif %}>", map[string]any{"x": map[string]any{}}, "<>")
}
