package minja

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jxt1234/minja/lexer"
	"github.com/jxt1234/minja/parser"
	"github.com/jxt1234/minja/value"
)

// autoEscapeKind is the internal discriminant for AutoEscape.
type autoEscapeKind int

const (
	autoEscapeKindNone autoEscapeKind = iota
	autoEscapeKindHTML
	autoEscapeKindJSON
	autoEscapeKindCustom
)

// AutoEscape determines the auto-escaping strategy applied to emitted
// expressions that aren't already marked safe.
type AutoEscape struct {
	kind   autoEscapeKind
	custom string
}

var (
	// AutoEscapeNone disables auto-escaping.
	AutoEscapeNone = AutoEscape{kind: autoEscapeKindNone}
	// AutoEscapeHTML escapes <, >, &, ", ' and / the way Jinja2's html escaper does.
	AutoEscapeHTML = AutoEscape{kind: autoEscapeKindHTML}
	// AutoEscapeJSON serializes emitted values as JSON, matching the
	// behavior templates named "*.json" get by default.
	AutoEscapeJSON = AutoEscape{kind: autoEscapeKindJSON}
)

// AutoEscapeCustom names a formatter not known to the engine; rendering such
// a template fails unless Environment.SetFormatter supplies a handler for it.
func AutoEscapeCustom(name string) AutoEscape {
	return AutoEscape{kind: autoEscapeKindCustom, custom: name}
}

func (a AutoEscape) IsNone() bool { return a.kind == autoEscapeKindNone }
func (a AutoEscape) IsHTML() bool { return a.kind == autoEscapeKindHTML }
func (a AutoEscape) IsJSON() bool { return a.kind == autoEscapeKindJSON }

// Name returns the custom formatter name, or "" if this isn't a custom AutoEscape.
func (a AutoEscape) Name() string { return a.custom }

// UndefinedBehavior determines how undefined variables are handled.
type UndefinedBehavior int

const (
	UndefinedLenient UndefinedBehavior = iota
	UndefinedStrict
)

// FilterFunc is the signature for filter functions.
// It receives the value to filter, the arguments, and the state. kwargs
// preserves the order the caller wrote its keyword arguments in.
type FilterFunc func(state *State, val value.Value, args []value.Value, kwargs value.Kwargs) (value.Value, error)

// TestFunc is the signature for test functions.
type TestFunc func(state *State, val value.Value, args []value.Value) (bool, error)

// FunctionFunc is the signature for global functions. kwargs preserves
// call-site order, so functions like dict() can echo it straight back.
type FunctionFunc func(state *State, args []value.Value, kwargs value.Kwargs) (value.Value, error)

// LoaderFunc is a function that loads template source by name.
type LoaderFunc func(name string) (string, error)

// AutoEscapeFunc determines auto-escaping based on template name.
type AutoEscapeFunc func(name string) AutoEscape

// FormatterFunc overrides how a rendered expression's value is converted to
// the string written to the template output. escape applies the template's
// configured auto-escaping to a string that isn't already marked safe.
type FormatterFunc func(state *State, val value.Value, escape func(string) string) string

// Environment holds the configuration and templates.
type Environment struct {
	templates      map[string]*compiledTemplate
	templatesMu    sync.RWMutex
	filters        map[string]FilterFunc
	tests          map[string]TestFunc
	globals        map[string]value.Value
	functions      map[string]FunctionFunc
	loader         LoaderFunc
	autoEscapeFunc AutoEscapeFunc
	syntaxConfig      lexer.SyntaxConfig
	wsConfig          lexer.WhitespaceConfig
	undefinedBehavior UndefinedBehavior
	recursionLimit    int
	fuelLimit         uint64
	formatter         FormatterFunc
	logger            *slog.Logger
}

// log returns e.logger, or a handler-less logger that discards everything
// when none was configured, so call sites never need a nil check.
func (e *Environment) log() *slog.Logger {
	if e.logger != nil {
		return e.logger
	}
	return discardLogger
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// SetLogger attaches a structured logger that receives debug-level events
// for fuel exhaustion and template compile timing. A nil logger (the
// default) disables all logging.
func (e *Environment) SetLogger(logger *slog.Logger) {
	e.logger = logger
}

// defaultAutoEscapeFunc escapes HTML-ish templates and serializes JSON
// templates, matching the naming convention a chat-template loader uses to
// tell a rendered-markup prompt from a structured one.
func defaultAutoEscapeFunc(name string) AutoEscape {
	switch {
	case strings.HasSuffix(name, ".html"), strings.HasSuffix(name, ".htm"), strings.HasSuffix(name, ".xml"):
		return AutoEscapeHTML
	case strings.HasSuffix(name, ".json"), strings.HasSuffix(name, ".json.j2"):
		return AutoEscapeJSON
	default:
		return AutoEscapeNone
	}
}

type compiledTemplate struct {
	name   string
	source string
	ast    *parser.Template
}

// NewEnvironment creates a new environment with default settings.
func NewEnvironment() *Environment {
	env := &Environment{
		templates: make(map[string]*compiledTemplate),
		filters:   make(map[string]FilterFunc),
		tests:     make(map[string]TestFunc),
		globals:   make(map[string]value.Value),
		functions: make(map[string]FunctionFunc),
		autoEscapeFunc: defaultAutoEscapeFunc,
		syntaxConfig:      lexer.DefaultSyntax(),
		wsConfig:          lexer.DefaultWhitespace(),
		undefinedBehavior: UndefinedLenient,
		recursionLimit:    defaultRecursionLimit,
	}

	// Register default filters
	registerDefaultFilters(env)
	// Register default tests
	registerDefaultTests(env)
	// Register default functions
	registerDefaultFunctions(env)

	return env
}

// EmptyEnvironment creates an environment with no defaults.
func EmptyEnvironment() *Environment {
	return &Environment{
		templates: make(map[string]*compiledTemplate),
		filters:   make(map[string]FilterFunc),
		tests:     make(map[string]TestFunc),
		globals:   make(map[string]value.Value),
		functions: make(map[string]FunctionFunc),
		autoEscapeFunc: func(name string) AutoEscape {
			return AutoEscapeNone
		},
		syntaxConfig:      lexer.DefaultSyntax(),
		wsConfig:          lexer.DefaultWhitespace(),
		undefinedBehavior: UndefinedLenient,
		recursionLimit:    defaultRecursionLimit,
	}
}

// AddTemplate adds a template from source.
func (e *Environment) AddTemplate(name, source string) error {
	start := time.Now()
	ast, err := parser.Parse(source, name, e.syntaxConfig, e.wsConfig)
	if err != nil {
		return wrapParseError(err, source)
	}
	e.log().Debug("template compiled", "name", name, "duration", time.Since(start))

	e.templatesMu.Lock()
	e.templates[name] = &compiledTemplate{
		name:   name,
		source: source,
		ast:    ast,
	}
	e.templatesMu.Unlock()
	return nil
}

// GetTemplate retrieves a template by name.
func (e *Environment) GetTemplate(name string) (*Template, error) {
	e.templatesMu.RLock()
	compiled, ok := e.templates[name]
	e.templatesMu.RUnlock()

	if ok {
		return &Template{
			env:      e,
			compiled: compiled,
		}, nil
	}

	// Try loader
	if e.loader != nil {
		source, err := e.loader(name)
		if err != nil {
			return nil, NewError(ErrTemplateNotFound, name)
		}
		if err := e.AddTemplate(name, source); err != nil {
			return nil, err
		}
		e.templatesMu.RLock()
		compiled = e.templates[name]
		e.templatesMu.RUnlock()
		return &Template{
			env:      e,
			compiled: compiled,
		}, nil
	}

	return nil, NewError(ErrTemplateNotFound, name)
}

// TemplateFromString creates a template from source without storing it.
func (e *Environment) TemplateFromString(source string) (*Template, error) {
	return e.TemplateFromNamedString("<string>", source)
}

// TemplateFromNamedString creates a template from source with a name without storing it.
func (e *Environment) TemplateFromNamedString(name, source string) (*Template, error) {
	ast, err := parser.Parse(source, name, e.syntaxConfig, e.wsConfig)
	if err != nil {
		return nil, wrapParseError(err, source)
	}

	return &Template{
		env: e,
		compiled: &compiledTemplate{
			name:   name,
			source: source,
			ast:    ast,
		},
	}, nil
}

// wrapParseError converts a *parser.Error into the canonical *Error, carrying
// its position and the template source for the context lines.
func wrapParseError(err error, source string) error {
	pe, ok := err.(*parser.Error)
	if !ok {
		return err
	}
	return NewError(ErrSyntax, pe.Detail).WithSpan(lexer.Span{StartLine: pe.Line, StartCol: pe.Col}).WithSource(source)
}

// SetLoader sets the template loader function.
func (e *Environment) SetLoader(loader LoaderFunc) {
	e.loader = loader
}

// AddFilter registers a filter function.
func (e *Environment) AddFilter(name string, f FilterFunc) {
	e.filters[name] = f
}

// AddTest registers a test function.
func (e *Environment) AddTest(name string, f TestFunc) {
	e.tests[name] = f
}

// AddFunction registers a global function.
func (e *Environment) AddFunction(name string, f FunctionFunc) {
	e.functions[name] = f
}

// AddGlobal registers a global variable.
func (e *Environment) AddGlobal(name string, v value.Value) {
	e.globals[name] = v
}

// SetAutoEscapeFunc sets the auto-escape callback.
func (e *Environment) SetAutoEscapeFunc(f AutoEscapeFunc) {
	e.autoEscapeFunc = f
}

// SetSyntax sets the syntax configuration.
func (e *Environment) SetSyntax(config lexer.SyntaxConfig) {
	e.syntaxConfig = config
}

// SetWhitespace sets the whitespace configuration.
func (e *Environment) SetWhitespace(config lexer.WhitespaceConfig) {
	e.wsConfig = config
}

// SetUndefinedBehavior sets how undefined variables are handled.
func (e *Environment) SetUndefinedBehavior(behavior UndefinedBehavior) {
	e.undefinedBehavior = behavior
}

// SetRecursionLimit sets the maximum nesting depth for for-loops and macro
// calls before rendering aborts with ErrRecursionLimit.
func (e *Environment) SetRecursionLimit(limit int) {
	e.recursionLimit = limit
}

// SetFuel bounds the number of statements a single render may execute,
// returning ErrOutOfFuel once exhausted. A limit of 0 means unlimited.
func (e *Environment) SetFuel(limit uint64) {
	e.fuelLimit = limit
}

// SetFormatter overrides how rendered expression values are converted to
// output text, replacing the default string-then-escape behavior.
func (e *Environment) SetFormatter(f FormatterFunc) {
	e.formatter = f
}

// Templates returns the names of all templates currently registered on the
// environment (not including ones only reachable through the loader).
func (e *Environment) Templates() []string {
	e.templatesMu.RLock()
	defer e.templatesMu.RUnlock()
	names := make([]string, 0, len(e.templates))
	for name := range e.templates {
		names = append(names, name)
	}
	return names
}

// RemoveTemplate removes a registered template by name.
func (e *Environment) RemoveTemplate(name string) {
	e.templatesMu.Lock()
	delete(e.templates, name)
	e.templatesMu.Unlock()
}

// ClearTemplates removes every registered template.
func (e *Environment) ClearTemplates() {
	e.templatesMu.Lock()
	e.templates = make(map[string]*compiledTemplate)
	e.templatesMu.Unlock()
}

// getFilter returns a filter by name.
func (e *Environment) getFilter(name string) (FilterFunc, bool) {
	f, ok := e.filters[name]
	return f, ok
}

// getTest returns a test by name.
func (e *Environment) getTest(name string) (TestFunc, bool) {
	t, ok := e.tests[name]
	return t, ok
}

// getFunction returns a function by name.
func (e *Environment) getFunction(name string) (FunctionFunc, bool) {
	f, ok := e.functions[name]
	return f, ok
}

// getGlobal returns a global by name.
func (e *Environment) getGlobal(name string) (value.Value, bool) {
	v, ok := e.globals[name]
	return v, ok
}

func (e *Environment) filterNames() []string {
	names := make([]string, 0, len(e.filters))
	for name := range e.filters {
		names = append(names, name)
	}
	return names
}

func (e *Environment) testNames() []string {
	names := make([]string, 0, len(e.tests))
	for name := range e.tests {
		names = append(names, name)
	}
	return names
}

func (e *Environment) functionNames() []string {
	names := make([]string, 0, len(e.functions))
	for name := range e.functions {
		names = append(names, name)
	}
	return names
}

// Template represents a compiled template.
type Template struct {
	env      *Environment
	compiled *compiledTemplate
}

// Name returns the template name.
func (t *Template) Name() string {
	return t.compiled.name
}

// Source returns the template source.
func (t *Template) Source() string {
	return t.compiled.source
}

// Render renders the template with the given context.
func (t *Template) Render(ctx any) (string, error) {
	return t.RenderValue(value.FromAny(ctx))
}

// RenderValue renders the template with a Value context.
func (t *Template) RenderValue(ctx value.Value) (string, error) {
	return t.RenderValueContext(context.Background(), ctx)
}

// RenderContext renders the template with the given context and Go context.Context,
// which is reachable from callables and tests via value.State.Context().
func (t *Template) RenderContext(ctx context.Context, data any) (string, error) {
	return t.RenderValueContext(ctx, value.FromAny(data))
}

// RenderValueContext renders the template with a Value context under a Go context.Context.
func (t *Template) RenderValueContext(ctx context.Context, data value.Value) (string, error) {
	state := newState(t.env, t.compiled.name, t.compiled.source, data)
	state.ctx = ctx
	return state.eval(t.compiled.ast)
}

// RenderToWrite renders the template directly to w instead of building and
// returning a string.
func (t *Template) RenderToWrite(ctx any, w io.Writer) error {
	out, err := t.Render(ctx)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

// EvalToState renders the template and returns the State it ran in, so
// callers can introspect exported variables and invoke its macros directly.
func (t *Template) EvalToState(ctx any) (*State, error) {
	return t.EvalToStateValue(value.FromAny(ctx))
}

// EvalToStateValue is EvalToState taking a pre-built value.Value context.
func (t *Template) EvalToStateValue(ctx value.Value) (*State, error) {
	state := newState(t.env, t.compiled.name, t.compiled.source, ctx)
	out, err := state.eval(t.compiled.ast)
	if err != nil {
		return nil, err
	}
	state.output = out
	return state, nil
}

// EscapeHTML escapes a string for HTML.
// This escapes <, >, &, ", ', and / to match Rust MiniJinja behavior.
func EscapeHTML(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '&':
			b.WriteString("&amp;")
		case '"':
			b.WriteString("&quot;")
		case '\'':
			b.WriteString("&#x27;")
		case '/':
			b.WriteString("&#x2f;")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
