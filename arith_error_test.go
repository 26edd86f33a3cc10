package minja

import "testing"

func TestArithmeticErrorsUseCanonicalErrorType(t *testing.T) {
	env := NewEnvironment()

	assertRenderErrorKind(t, env, "{{ 1 / 0 }}", nil, ErrInvalidOperation)
	assertRenderErrorKind(t, env, `{{ [1] + "x" }}`, nil, ErrInvalidOperation)
	assertRenderErrorKind(t, env, "{{ 1 < [1] }}", nil, ErrInvalidOperation)
	assertRenderErrorKind(t, env, "{{ items[0:1:0] }}", map[string]any{"items": []any{1, 2, 3}}, ErrInvalidOperation)
}
