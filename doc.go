// Package minja provides a Jinja2-compatible template engine for Go.
//
// MiniJinja-Go is a Go port of the MiniJinja template engine, providing
// a powerful and flexible templating system compatible with the Jinja2
// template language.
//
// # Quick Start
//
// Basic usage:
//
//	env := minja.NewEnvironment()
//	env.AddTemplate("hello", "Hello {{ name }}!")
//	tmpl, _ := env.GetTemplate("hello")
//	result, _ := tmpl.Render(map[string]any{"name": "World"})
//	fmt.Println(result) // Output: Hello World!
//
// # Template Syntax
//
// The template syntax follows Jinja2; the built-in filters and tests are
// documented in filters.go and tests.go.
//
// Key syntax elements:
//   - Variables: {{ variable }}
//   - Blocks: {% if condition %}...{% endif %}
//   - Comments: {# comment #}
//   - Filters: {{ value|filter }}
//   - Tests: {% if value is test %}
//   - Generation markers: {% generation %}...{% endgeneration %}
//
// # Environment Configuration
//
// The Environment is the central configuration object:
//
//	env := minja.NewEnvironment()
//
//	// Add templates
//	env.AddTemplate("base.html", baseTemplate)
//
//	// Configure auto-escaping
//	env.SetAutoEscapeFunc(func(name string) minja.AutoEscape {
//	    if strings.HasSuffix(name, ".html") {
//	        return minja.AutoEscapeHTML
//	    }
//	    return minja.AutoEscapeNone
//	})
//
//	// Add custom filters
//	env.AddFilter("reverse", minja.FilterReverse)
//
//	// Add custom functions
//	env.AddFunction("myfunc", MyFunction)
//
//	// Configure whitespace handling
//	env.SetWhitespace(lexer.WhitespaceConfig{TrimBlocks: true, LstripBlocks: true})
//
// # Custom Filters and Functions
//
// Filters transform values in templates:
//
//	func MyFilter(state *minja.State, value minja.Value, args []minja.Value, kwargs minja.Kwargs) (minja.Value, error) {
//	    // Transform value
//	    return minja.FromString("transformed"), nil
//	}
//	env.AddFilter("myfilter", MyFilter)
//	// In template: {{ value|myfilter }}
//
// Functions can be called from templates:
//
//	func MyFunction(state *minja.State, args []minja.Value, kwargs minja.Kwargs) (minja.Value, error) {
//	    // Process arguments
//	    return minja.FromString("result"), nil
//	}
//	env.AddFunction("myfunc", MyFunction)
//	// In template: {{ myfunc(arg1, arg2, key=value) }}
//
// # Error Handling
//
// Template errors provide detailed information:
//
//	tmpl, err := env.GetTemplate("example.html")
//	if err != nil {
//	    if e, ok := err.(*minja.Error); ok && e.Span != nil {
//	        fmt.Printf("%s at line %d: %s\n",
//	            e.Kind.PublicKind(), e.Span.StartLine, e.Message)
//	    }
//	}
//
// # Value System
//
// The Value type represents dynamically-typed template values:
//
//	// Create values
//	str := minja.FromString("hello")
//	num := minja.FromInt(42)
//	list := minja.FromSlice([]minja.Value{str, num})
//	dict := minja.FromMap(map[string]minja.Value{
//	    "name": str,
//	    "age": num,
//	})
//
//	// Type checking
//	if str.Kind() == minja.KindString {
//	    if s, ok := str.AsString(); ok {
//	        fmt.Println(s)
//	    }
//	}
//
// # Generation Markers
//
// Chat templates mark the spans of a conversation that an assistant
// generated, so callers can recover token offsets for masking or loss
// computation without re-tokenizing:
//
//	{% for message in messages %}
//	  {% if message.role == "assistant" %}
//	    {% generation %}{{ message.content }}{% endgeneration %}
//	  {% else %}
//	    {{ message.content }}
//	  {% endif %}
//	{% endfor %}
//
// Rendering a {% generation %} block is transparent: it contributes no
// markup of its own, matching the behavior expected at inference time
// rather than during training-time span extraction.
//
// # Macros
//
// Macros allow reusable template components:
//
//	{% macro render_user(user) %}
//	  <div class="user">
//	    <h3>{{ user.name }}</h3>
//	    <p>{{ user.email }}</p>
//	  </div>
//	{% endmacro %}
//
//	{% for user in users %}
//	  {{ render_user(user) }}
//	{% endfor %}
//
// # See Also
//
//   - environment.go: Environment configuration
//   - filters.go: Built-in filters
//   - tests.go: Built-in tests
//   - value package: Dynamic value system
package minja

// Re-export commonly used types from subpackages
import (
	"github.com/jxt1234/minja/value"
)

// Version is the current version of this package.
const Version = "0.1.0"

// Value is a dynamically typed value in the template engine.
type Value = value.Value

// ValueKind describes the type of a Value.
type ValueKind = value.ValueKind

// Kwargs is the ordered list of a call's keyword arguments, in the order
// the caller wrote them.
type Kwargs = value.Kwargs

// Common value kinds
const (
	KindUndefined = value.KindUndefined
	KindNone      = value.KindNone
	KindBool      = value.KindBool
	KindNumber    = value.KindNumber
	KindString    = value.KindString
	KindBytes     = value.KindBytes
	KindSeq       = value.KindSeq
	KindMap       = value.KindMap
)

// Value constructors
var (
	Undefined      = value.Undefined
	None           = value.None
	FromBool       = value.FromBool
	FromInt        = value.FromInt
	FromFloat      = value.FromFloat
	FromString     = value.FromString
	FromSafeString = value.FromSafeString
	FromBytes      = value.FromBytes
	FromSlice      = value.FromSlice
	FromMap        = value.FromMap
	FromAny        = value.FromAny
)
