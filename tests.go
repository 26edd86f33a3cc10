package minja

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/jxt1234/minja/value"
)

// TestDefined checks if a value is defined.
//
// Many chat templates accept an optional system prompt or a tools list that
// the caller may not have supplied; "is defined" lets a template branch on
// that without raising an undefined-variable error.
//
// Example:
//
//	env := NewEnvironment()
//	env.AddTest("defined", TestDefined)
//
// Template usage:
//
//	{% if system_prompt is defined %}
//	  {{ system_prompt }}
//	{% endif %}
func TestDefined(_ *State, val value.Value, _ []value.Value) (bool, error) {
	return !val.IsUndefined(), nil
}

// TestUndefined checks if a value is undefined.
//
// Example:
//
//	env := NewEnvironment()
//	env.AddTest("undefined", TestUndefined)
//
// Template usage:
//
//	{% if tools is undefined %}
//	  {% set tools = [] %}
//	{% endif %}
func TestUndefined(_ *State, val value.Value, _ []value.Value) (bool, error) {
	return val.IsUndefined(), nil
}

// TestNone checks if a value is none/null.
//
// Registered under the alias "null" as well, since a message's tool_calls or
// function_call field frequently arrives as a JSON null rather than being
// absent altogether.
//
// Example:
//
//	env := NewEnvironment()
//	env.AddTest("none", TestNone)
//
// Template usage:
//
//	{% if message.tool_calls is none %}
//	  {% set message = message.copy(tool_calls=[]) %}
//	{% endif %}
func TestNone(_ *State, val value.Value, _ []value.Value) (bool, error) {
	return val.IsNone(), nil
}

// TestTrue checks if a value is the boolean true.
//
// This is a strict check for the boolean value true, not truthiness - a
// "strict" flag that arrives as the string "true" from a malformed request
// payload will not pass this test, only an actual boolean does.
//
// Example:
//
//	env := NewEnvironment()
//	env.AddTest("true", TestTrue)
//
// Template usage:
//
//	{% if message.stream is true %}
//	  streaming
//	{% endif %}
func TestTrue(_ *State, val value.Value, _ []value.Value) (bool, error) {
	if b, ok := val.AsBool(); ok {
		return b, nil
	}
	return false, nil
}

// TestFalse checks if a value is the boolean false.
//
// This is a strict check for the boolean value false, not falsiness.
//
// Example:
//
//	env := NewEnvironment()
//	env.AddTest("false", TestFalse)
//
// Template usage:
//
//	{% if message.cache is false %}
//	  {{ message.content }}
//	{% endif %}
func TestFalse(_ *State, val value.Value, _ []value.Value) (bool, error) {
	if b, ok := val.AsBool(); ok {
		return !b, nil
	}
	return false, nil
}

// TestOdd checks if a number is odd.
//
// Example:
//
//	env := NewEnvironment()
//	env.AddTest("odd", TestOdd)
//
// Template usage:
//
//	{% for message in messages %}
//	  {{ "user" if loop.index is odd else "assistant" }}: {{ message.content }}
//	{% endfor %}
//
//	{{ 41 is odd }}
//	  -> true
//	{{ 42 is odd }}
//	  -> false
func TestOdd(_ *State, val value.Value, args []value.Value) (bool, error) {
	if len(args) > 0 {
		return false, NewError(ErrInvalidOperation, "odd test expects no arguments")
	}
	if i, ok := val.AsInt(); ok {
		return i%2 != 0, nil
	}
	return false, nil
}

// TestEven checks if a number is even.
//
// Example:
//
//	env := NewEnvironment()
//	env.AddTest("even", TestEven)
//
// Template usage:
//
//	{% for message in messages %}
//	  {% if loop.index is even %}{{ message.content }}{% endif %}
//	{% endfor %}
//
//	{{ 42 is even }}
//	  -> true
//	{{ 41 is even }}
//	  -> false
func TestEven(_ *State, val value.Value, args []value.Value) (bool, error) {
	if len(args) > 0 {
		return false, NewError(ErrInvalidOperation, "even test expects no arguments")
	}
	if i, ok := val.AsInt(); ok {
		return i%2 == 0, nil
	}
	return false, nil
}

// TestDivisibleBy checks if a value is divisible by another number.
//
// Example:
//
//	env := NewEnvironment()
//	env.AddTest("divisibleby", TestDivisibleBy)
//
// Template usage:
//
//	{% if turn_index is divisibleby(2) %}
//	  {# every other turn is the user's #}
//	{% endif %}
//
//	{{ 42 is divisibleby(2) }}
//	  -> true
//	{{ 42 is divisibleby(5) }}
//	  -> false
func TestDivisibleBy(_ *State, val value.Value, args []value.Value) (bool, error) {
	if len(args) < 1 {
		return false, fmt.Errorf("divisibleby test requires argument")
	}
	if i, ok := val.AsInt(); ok {
		if d, ok := args[0].AsInt(); ok && d != 0 {
			return i%d == 0, nil
		}
	}
	return false, nil
}

// TestEq checks if two values are equal.
//
// This is the test version of the == operator. It's useful when combined
// with filters like select/reject, e.g. picking only the assistant turns
// out of a conversation.
//
// This test is also registered under the aliases "equalto" and "==".
//
// Example:
//
//	env := NewEnvironment()
//	env.AddTest("eq", TestEq)
//
// Template usage:
//
//	{{ messages|selectattr("role", "eq", "assistant")|list }}
//	{{ [1, 2, 3]|select("==", 1) }}
//	  -> [1]
func TestEq(_ *State, val value.Value, args []value.Value) (bool, error) {
	if len(args) < 1 {
		return false, nil
	}
	return val.Equal(args[0]), nil
}

// TestNe checks if two values are not equal.
//
// This is the test version of the != operator. It's useful when combined
// with filters like select/reject.
//
// This test is also registered under the alias "!=".
//
// Example:
//
//	env := NewEnvironment()
//	env.AddTest("ne", TestNe)
//
// Template usage:
//
//	{{ 2 is ne(1) }}
//	  -> true
//	{{ [1, 2, 3]|select("!=", 1) }}
//	  -> [2, 3]
func TestNe(_ *State, val value.Value, args []value.Value) (bool, error) {
	if len(args) < 1 {
		return false, nil
	}
	return !val.Equal(args[0]), nil
}

// TestLt checks if a value is less than another.
//
// This is the test version of the < operator. It's useful when combined
// with filters like select/reject.
//
// This test is also registered under the aliases "lessthan" and "<".
//
// Example:
//
//	env := NewEnvironment()
//	env.AddTest("lt", TestLt)
//
// Template usage:
//
//	{{ 1 is lt(2) }}
//	  -> true
//	{{ [1, 2, 3]|select("<", 2) }}
//	  -> [1]
func TestLt(_ *State, val value.Value, args []value.Value) (bool, error) {
	if len(args) < 1 {
		return false, nil
	}
	if cmp, ok := val.Compare(args[0]); ok {
		return cmp < 0, nil
	}
	return false, nil
}

// TestLe checks if a value is less than or equal to another.
//
// This is the test version of the <= operator. It's useful when combined
// with filters like select/reject.
//
// This test is also registered under the alias "<=".
//
// Example:
//
//	env := NewEnvironment()
//	env.AddTest("le", TestLe)
//
// Template usage:
//
//	{{ 1 is le(2) }}
//	  -> true
//	{{ [1, 2, 3]|select("<=", 2) }}
//	  -> [1, 2]
func TestLe(_ *State, val value.Value, args []value.Value) (bool, error) {
	if len(args) < 1 {
		return false, nil
	}
	if cmp, ok := val.Compare(args[0]); ok {
		return cmp <= 0, nil
	}
	return false, nil
}

// TestGt checks if a value is greater than another.
//
// This is the test version of the > operator. It's useful when combined
// with filters like select/reject.
//
// This test is also registered under the aliases "greaterthan" and ">".
//
// Example:
//
//	env := NewEnvironment()
//	env.AddTest("gt", TestGt)
//
// Template usage:
//
//	{{ 2 is gt(1) }}
//	  -> true
//	{{ [1, 2, 3]|select(">", 2) }}
//	  -> [3]
func TestGt(_ *State, val value.Value, args []value.Value) (bool, error) {
	if len(args) < 1 {
		return false, nil
	}
	if cmp, ok := val.Compare(args[0]); ok {
		return cmp > 0, nil
	}
	return false, nil
}

// TestGe checks if a value is greater than or equal to another.
//
// This is the test version of the >= operator. It's useful when combined
// with filters like select/reject.
//
// This test is also registered under the alias ">=".
//
// Example:
//
//	env := NewEnvironment()
//	env.AddTest("ge", TestGe)
//
// Template usage:
//
//	{{ 2 is ge(1) }}
//	  -> true
//	{{ [1, 2, 3]|select(">=", 2) }}
//	  -> [2, 3]
func TestGe(_ *State, val value.Value, args []value.Value) (bool, error) {
	if len(args) < 1 {
		return false, nil
	}
	if cmp, ok := val.Compare(args[0]); ok {
		return cmp >= 0, nil
	}
	return false, nil
}

// TestIn checks if a value is contained in a sequence.
//
// This is the test version of the "in" operator. It's useful when combined
// with filters like select/reject, e.g. to keep only the roles a model
// actually accepts.
//
// Example:
//
//	env := NewEnvironment()
//	env.AddTest("in", TestIn)
//
// Template usage:
//
//	{{ message.role is in(["user", "assistant"]) }}
//	{{ roles|select("in", ["system", "user"]) }}
//	  -> ["system", "user"]
func TestIn(_ *State, val value.Value, args []value.Value) (bool, error) {
	if len(args) < 1 {
		return false, nil
	}
	return args[0].Contains(val), nil
}

// TestString checks if a value is a string.
//
// A chat template often needs to tell a plain-text message apart from one
// whose content is a list of content-part objects (text plus image/audio
// parts), and this is the usual way to branch on it.
//
// Example:
//
//	env := NewEnvironment()
//	env.AddTest("string", TestString)
//
// Template usage:
//
//	{% if message.content is string %}
//	  {{ message.content }}
//	{% else %}
//	  {% for part in message.content %}{{ part.text }}{% endfor %}
//	{% endif %}
func TestString(_ *State, val value.Value, _ []value.Value) (bool, error) {
	return val.Kind() == value.KindString, nil
}

// TestNumber checks if a value is a number.
//
// Returns true if the value is a number (either integer or float).
//
// Example:
//
//	env := NewEnvironment()
//	env.AddTest("number", TestNumber)
//
// Template usage:
//
//	{{ 42 is number }}
//	  -> true
//	{{ "42" is number }}
//	  -> false
func TestNumber(_ *State, val value.Value, _ []value.Value) (bool, error) {
	return val.Kind() == value.KindNumber, nil
}

// TestInteger checks if a value is an integer.
//
// Returns true if the value is an actual integer (not a float).
// This test is also registered under the alias "int".
//
// Example:
//
//	env := NewEnvironment()
//	env.AddTest("integer", TestInteger)
//
// Template usage:
//
//	{{ 42 is integer }}
//	  -> true
//	{{ 42.0 is integer }}
//	  -> false
func TestInteger(_ *State, val value.Value, _ []value.Value) (bool, error) {
	_, ok := val.AsInt()
	if !ok {
		return false, nil
	}
	return val.IsActualInt(), nil
}

// TestFloat checks if a value is a float.
//
// Returns true if the value is a floating-point number.
//
// Example:
//
//	env := NewEnvironment()
//	env.AddTest("float", TestFloat)
//
// Template usage:
//
//	{{ 42.0 is float }}
//	  -> true
//	{{ 42 is float }}
//	  -> false
func TestFloat(_ *State, val value.Value, _ []value.Value) (bool, error) {
	return val.IsActualFloat(), nil
}

// TestBoolean checks if a value is a boolean.
//
// Returns true if the value is a boolean (true or false).
// This test is also registered under the alias "bool".
//
// Example:
//
//	env := NewEnvironment()
//	env.AddTest("boolean", TestBoolean)
//
// Template usage:
//
//	{{ true is boolean }}
//	  -> true
//	{{ 1 is boolean }}
//	  -> false
func TestBoolean(_ *State, val value.Value, _ []value.Value) (bool, error) {
	return val.Kind() == value.KindBool, nil
}

// TestSafe checks if a value is marked as safe.
//
// Chat templates that render into HTML chat UIs rely on this to avoid
// double-escaping content that a filter has already sanitized.
// This test is also registered under the alias "escaped".
//
// Example:
//
//	env := NewEnvironment()
//	env.AddTest("safe", TestSafe)
//
// Template usage:
//
//	{{ message.content|escape is safe }}
//	  -> true
func TestSafe(_ *State, val value.Value, _ []value.Value) (bool, error) {
	return val.IsSafe(), nil
}

// TestSameAs checks if two values are the exact same object.
//
// This is a stricter comparison than equality. Useful for checking whether
// a loop variable still refers to the same message the template started
// with, as opposed to a copy with the same fields.
//
// Example:
//
//	env := NewEnvironment()
//	env.AddTest("sameas", TestSameAs)
//
// Template usage:
//
//	{{ message is sameas(messages[-1]) }}
//	{{ false is sameas(false) }}
//	  -> true
func TestSameAs(_ *State, val value.Value, args []value.Value) (bool, error) {
	if len(args) < 1 {
		return false, nil
	}
	return val.SameAs(args[0]), nil
}

// TestLower checks if a string is all lowercase.
//
// Message roles ("user", "assistant", "system", "tool") are conventionally
// lowercase; this is the usual guard before normalizing a role string.
//
// Example:
//
//	env := NewEnvironment()
//	env.AddTest("lower", TestLower)
//
// Template usage:
//
//	{% if not message.role is lower %}
//	  {% set message = message.copy(role=message.role|lower) %}
//	{% endif %}
func TestLower(_ *State, val value.Value, _ []value.Value) (bool, error) {
	s, ok := val.AsString()
	if !ok {
		return false, nil
	}
	for _, r := range s {
		if !unicode.IsLower(r) && unicode.IsLetter(r) {
			return false, nil
		}
	}
	return true, nil
}

// TestUpper checks if a string is all uppercase.
//
// Returns true if all alphabetic characters in the string are uppercase.
//
// Example:
//
//	env := NewEnvironment()
//	env.AddTest("upper", TestUpper)
//
// Template usage:
//
//	{{ "FOO" is upper }}
//	  -> true
//	{{ "Foo" is upper }}
//	  -> false
func TestUpper(_ *State, val value.Value, _ []value.Value) (bool, error) {
	s, ok := val.AsString()
	if !ok {
		return false, nil
	}
	for _, r := range s {
		if !unicode.IsUpper(r) && unicode.IsLetter(r) {
			return false, nil
		}
	}
	return true, nil
}

// TestFilter checks if a filter with the given name exists.
//
// Chat templates shared across runtimes sometimes guard a filter call that
// isn't universally available, such as tojson, behind this test.
//
// Example:
//
//	env := NewEnvironment()
//	env.AddTest("filter", TestFilter)
//
// Template usage:
//
//	{% if "tojson" is filter %}
//	  {{ tool_call.arguments|tojson }}
//	{% endif %}
func TestFilter(state *State, val value.Value, _ []value.Value) (bool, error) {
	name, ok := val.AsString()
	if !ok {
		return false, nil
	}
	_, exists := state.env.getFilter(name)
	return exists, nil
}

// TestTest checks if a test with the given name exists.
//
// Example:
//
//	env := NewEnvironment()
//	env.AddTest("test", TestTest)
//
// Template usage:
//
//	{% if "containing" is test %}
//	  {{ tool_names is containing("search") }}
//	{% endif %}
func TestTest(state *State, val value.Value, _ []value.Value) (bool, error) {
	name, ok := val.AsString()
	if !ok {
		return false, nil
	}
	_, exists := state.env.getTest(name)
	return exists, nil
}

// TestSequence checks if a value is a sequence.
//
// A multimodal message's content field is sometimes a plain string and
// sometimes a list of content parts; "is sequence" is how a template tells
// the two shapes apart before looping.
//
// Example:
//
//	env := NewEnvironment()
//	env.AddTest("sequence", TestSequence)
//
// Template usage:
//
//	{% if message.content is sequence %}
//	  {% for part in message.content %}{{ part.text }}{% endfor %}
//	{% endif %}
//
//	{{ [1, 2, 3] is sequence }}
//	  -> true
//	{{ 42 is sequence }}
//	  -> false
func TestSequence(_ *State, val value.Value, _ []value.Value) (bool, error) {
	return val.Kind() == value.KindSeq, nil
}

// TestMapping checks if a value is a mapping/dict.
//
// Also registered under the aliases "dict" and "dictionary", since model
// templates ported from Python chat-template sources use all three names
// interchangeably.
//
// Example:
//
//	env := NewEnvironment()
//	env.AddTest("mapping", TestMapping)
//
// Template usage:
//
//	{% if message.content is mapping %}
//	  {{ message.content.text }}
//	{% endif %}
//
//	{{ {"role": "user"} is mapping }}
//	  -> true
//	{{ [1, 2, 3] is mapping }}
//	  -> false
func TestMapping(_ *State, val value.Value, _ []value.Value) (bool, error) {
	return val.Kind() == value.KindMap, nil
}

// TestIterable checks if a value can be iterated over.
//
// An empty tool_calls list or an empty conversation history is still
// iterable, just empty, so this checks the value's kind rather than
// whether iterating it happens to produce any items.
//
// Example:
//
//	env := NewEnvironment()
//	env.AddTest("iterable", TestIterable)
//
// Template usage:
//
//	{% if tool_calls is iterable %}
//	  {% for call in tool_calls %}{{ call.name }}{% endfor %}
//	{% endif %}
//
//	{{ [] is iterable }}
//	  -> true
//	{{ 42 is iterable }}
//	  -> false
func TestIterable(_ *State, val value.Value, _ []value.Value) (bool, error) {
	switch val.Kind() {
	case value.KindSeq, value.KindMap, value.KindString, value.KindIterable:
		return true, nil
	}
	return val.Iter() != nil, nil
}

// TestStartingWith checks if a string starts with a given prefix.
//
// Example:
//
//	env := NewEnvironment()
//	env.AddTest("startingwith", TestStartingWith)
//
// Template usage:
//
//	{% if tool_call.name is startingwith("search_") %}
//	  {{ tool_call.name }}
//	{% endif %}
func TestStartingWith(_ *State, val value.Value, args []value.Value) (bool, error) {
	if len(args) < 1 {
		return false, nil
	}
	if s, ok := val.AsString(); ok {
		if prefix, ok := args[0].AsString(); ok {
			return strings.HasPrefix(s, prefix), nil
		}
	}
	return false, nil
}

// TestEndingWith checks if a string ends with a given suffix.
//
// Example:
//
//	env := NewEnvironment()
//	env.AddTest("endingwith", TestEndingWith)
//
// Template usage:
//
//	{% if message.content is endingwith("?") %}
//	  {{ message.content }}
//	{% endif %}
func TestEndingWith(_ *State, val value.Value, args []value.Value) (bool, error) {
	if len(args) < 1 {
		return false, nil
	}
	if s, ok := val.AsString(); ok {
		if suffix, ok := args[0].AsString(); ok {
			return strings.HasSuffix(s, suffix), nil
		}
	}
	return false, nil
}

// TestContaining checks if a value contains another value.
//
// For strings, this checks if the substring is present. For sequences and
// maps, it checks if the item or key is present - handy for checking whether
// a tool's argument schema declares a particular parameter.
//
// Example:
//
//	env := NewEnvironment()
//	env.AddTest("containing", TestContaining)
//
// Template usage:
//
//	{% if tool.parameters.properties is containing("query") %}
//	  {{ tool.name }}
//	{% endif %}
func TestContaining(_ *State, val value.Value, args []value.Value) (bool, error) {
	if len(args) < 1 {
		return false, nil
	}
	return val.Contains(args[0]), nil
}
