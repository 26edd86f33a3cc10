package minja

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jxt1234/minja/internal/suggest"
	"github.com/jxt1234/minja/parser"
	"github.com/jxt1234/minja/value"
)

// State holds the evaluation state during template rendering.
type State struct {
	env         *Environment
	ctx         context.Context
	name        string
	source      string
	autoEscape  AutoEscape
	scopes      []map[string]value.Value
	macros      map[string]*parser.Macro
	out         *strings.Builder
	depth       int
	loopRecurse func(value.Value) (string, error) // for {% for ... recursive %} self-calls
	fuel        *fuelTracker
	output      string // populated by Template.EvalToState after a full render
	writeErr    error  // set by writeValue when a custom auto-escape mode has no formatter
}

// AutoEscape reports the auto-escaping strategy in effect for this render.
func (s *State) AutoEscape() AutoEscape {
	return s.autoEscape
}

// UndefinedBehavior reports how this render treats undefined variables.
func (s *State) UndefinedBehavior() UndefinedBehavior {
	return s.env.undefinedBehavior
}

// Exports returns the top-level variables and macros visible at the end of
// the render, keyed by name.
func (s *State) Exports() map[string]value.Value {
	exports := make(map[string]value.Value, len(s.scopes[0])+len(s.macros))
	for k, v := range s.scopes[0] {
		exports[k] = v
	}
	for name, macro := range s.macros {
		m := macro
		exports[name] = value.FromCallable(&macroValueCallable{state: s, macro: m})
	}
	return exports
}

// MacroNames returns the names of macros defined at the top level of the template.
func (s *State) MacroNames() []string {
	names := make([]string, 0, len(s.macros))
	for name := range s.macros {
		names = append(names, name)
	}
	return names
}

// macroValueCallable adapts a *State-bound macro into a value.Callable so it
// can be exported as a regular value.
type macroValueCallable struct {
	state *State
	macro *parser.Macro
}

func (c *macroValueCallable) Call(_ value.State, args []value.Value, kwargs value.Kwargs) (value.Value, error) {
	return c.state.callMacroWithValues(c.macro, args, kwargs)
}

// CallMacro invokes a macro defined in this template by name with positional arguments.
func (s *State) CallMacro(name string, args ...value.Value) (value.Value, error) {
	return s.CallMacroKw(name, args, nil)
}

// CallMacroKw invokes a macro defined in this template by name with positional and keyword arguments.
func (s *State) CallMacroKw(name string, args []value.Value, kwargs value.Kwargs) (value.Value, error) {
	macro, ok := s.macros[name]
	if !ok {
		msg := name + suggestName(suggest.Find(name, s.MacroNames()))
		return value.Undefined(), NewError(ErrUnknownFunction, msg)
	}
	return s.callMacroWithValues(macro, args, kwargs)
}

// Context returns the Go context this render is running under. It satisfies
// value.State so objects and callables can access it without importing the
// root package.
func (s *State) Context() context.Context {
	if s.ctx != nil {
		return s.ctx
	}
	return context.Background()
}

// Name returns the name of the template currently being rendered, satisfying
// value.State.
func (s *State) Name() string {
	return s.name
}

// LoopState holds information about the current loop iteration.
type LoopState struct {
	Index     int // 1-based index
	Index0    int // 0-based index
	RevIndex  int // reverse 1-based index
	RevIndex0 int // reverse 0-based index
	First     bool
	Last      bool
	Length    int
	Depth     int // nesting depth (1-based)
	Depth0    int // nesting depth (0-based)
	PrevItem  value.Value
	NextItem  value.Value
	HasPrev   bool
	HasNext   bool
}

// loopCycle implements loop.cycle(*values), returning the argument at the
// current iteration index modulo the argument count.
type loopCycle struct {
	loop *LoopState
}

func (c *loopCycle) Call(st value.State, args []value.Value, kwargs value.Kwargs) (value.Value, error) {
	if len(args) == 0 {
		return value.Undefined(), NewError(ErrInvalidOperation, "cycle() requires at least one argument")
	}
	return args[c.loop.Index0%len(args)], nil
}

// loopSelfCallable lets `self(iterable)` recurse into a `{% for ... recursive %}`
// loop body, matching the rebinding of `self` inside recursive loops.
type loopSelfCallable struct {
	state *State
}

func (c *loopSelfCallable) Call(st value.State, args []value.Value, kwargs value.Kwargs) (value.Value, error) {
	if c.state.loopRecurse == nil {
		return value.Undefined(), NewError(ErrInvalidOperation, "self() can only be used inside a recursive loop")
	}
	if len(args) != 1 {
		return value.Undefined(), NewError(ErrInvalidOperation, "self() takes exactly 1 argument")
	}
	result, err := c.state.loopRecurse(args[0])
	if err != nil {
		return value.Undefined(), err
	}
	return value.FromSafeString(result), nil
}

// ToValue converts LoopState to a Value.
func (l *LoopState) ToValue() value.Value {
	m := map[string]value.Value{
		"index":     value.FromInt(int64(l.Index)),
		"index0":    value.FromInt(int64(l.Index0)),
		"revindex":  value.FromInt(int64(l.RevIndex)),
		"revindex0": value.FromInt(int64(l.RevIndex0)),
		"first":     value.FromBool(l.First),
		"last":      value.FromBool(l.Last),
		"length":    value.FromInt(int64(l.Length)),
		"depth":     value.FromInt(int64(l.Depth)),
		"depth0":    value.FromInt(int64(l.Depth0)),
		"cycle":     value.FromCallable(&loopCycle{loop: l}),
	}
	if l.HasPrev {
		m["previtem"] = l.PrevItem
	} else {
		m["previtem"] = value.Undefined()
	}
	if l.HasNext {
		m["nextitem"] = l.NextItem
	} else {
		m["nextitem"] = value.Undefined()
	}
	return value.FromMap(m)
}

const defaultRecursionLimit = 500

func newState(env *Environment, name, source string, ctx value.Value) *State {
	// Initialize root scope with context
	rootScope := make(map[string]value.Value)
	if m, ok := ctx.AsMap(); ok {
		for k, v := range m {
			rootScope[k] = v
		}
	}

	s := &State{
		env:        env,
		name:       name,
		source:     source,
		autoEscape: env.autoEscapeFunc(name),
		scopes:     []map[string]value.Value{rootScope},
		macros:     make(map[string]*parser.Macro),
		out:        &strings.Builder{},
	}
	if env.fuelLimit > 0 {
		s.fuel = newFuelTracker(env.fuelLimit)
	}
	return s
}

// FuelLevels reports the consumed and remaining fuel for this render. ok is
// false when the environment has no fuel limit configured.
func (s *State) FuelLevels() (consumed, remaining uint64, ok bool) {
	if s.fuel == nil {
		return 0, 0, false
	}
	return s.fuel.consumedFuel(), s.fuel.remainingFuel(), true
}

// Lookup looks up a variable in the current scope chain.
func (s *State) Lookup(name string) value.Value {
	// Search scopes from inner to outer
	for i := len(s.scopes) - 1; i >= 0; i-- {
		if v, ok := s.scopes[i][name]; ok {
			return v
		}
	}

	// Check globals
	if v, ok := s.env.getGlobal(name); ok {
		return v
	}

	return value.Undefined()
}

// Set sets a variable in the current scope.
func (s *State) Set(name string, val value.Value) {
	s.scopes[len(s.scopes)-1][name] = val
}

// pushScope creates a new scope.
func (s *State) pushScope() {
	s.scopes = append(s.scopes, make(map[string]value.Value))
}

// popScope removes the current scope.
func (s *State) popScope() {
	if len(s.scopes) > 1 {
		s.scopes = s.scopes[:len(s.scopes)-1]
	}
}

// eval evaluates a template AST.
func (s *State) eval(tmpl *parser.Template) (string, error) {
	for _, stmt := range tmpl.Children {
		if err := s.evalStmt(stmt); err != nil {
			return "", err
		}
	}
	return s.out.String(), nil
}

func (s *State) evalStmt(stmt parser.Stmt) error {
	if s.fuel != nil {
		if err := s.fuel.consume(1); err != nil {
			s.env.log().Debug("fuel exhausted", "template", s.name)
			return err
		}
		if s.fuel.lowFuel() {
			s.env.log().Warn("fuel running low", "template", s.name, "remaining", s.fuel.remainingFuel())
		}
	}
	switch st := stmt.(type) {
	case *parser.EmitRaw:
		s.out.WriteString(st.Raw)
		return nil

	case *parser.EmitExpr:
		val, err := s.evalExpr(st.Expr)
		if err != nil {
			return err
		}
		s.writeValue(val)
		if s.writeErr != nil {
			err := s.writeErr
			s.writeErr = nil
			return err
		}
		return nil

	case *parser.ForLoop:
		return s.evalForLoop(st)

	case *parser.IfCond:
		return s.evalIfCond(st)

	case *parser.Set:
		return s.evalSet(st)

	case *parser.SetBlock:
		return s.evalSetBlock(st)

	case *parser.Macro:
		s.macros[st.Name] = st
		return nil

	case *parser.FilterBlock:
		return s.evalFilterBlock(st)

	case *parser.Generation:
		for _, gs := range st.Body {
			if err := s.evalStmt(gs); err != nil {
				return err
			}
		}
		return nil

	case *parser.Continue:
		return errContinue

	case *parser.Break:
		return errBreak

	default:
		return fmt.Errorf("unsupported statement type: %T", stmt)
	}
}

// sentinel errors for loop control
var (
	errContinue = fmt.Errorf("continue")
	errBreak    = fmt.Errorf("break")
)

func (s *State) evalForLoop(loop *parser.ForLoop) error {
	iter, err := s.evalExpr(loop.Iter)
	if err != nil {
		return err
	}

	items := iter.Iter()
	if items == nil {
		// Not iterable, execute else body
		if loop.ElseBody != nil {
			for _, stmt := range loop.ElseBody {
				if err := s.evalStmt(stmt); err != nil {
					return err
				}
			}
		}
		return nil
	}

	// Apply filter if present
	if loop.FilterExpr != nil {
		filtered := make([]value.Value, 0, len(items))
		s.pushScope()
		for _, item := range items {
			s.unpackTarget(loop.Target, item)
			cond, err := s.evalExpr(loop.FilterExpr)
			if err != nil {
				s.popScope()
				return err
			}
			if cond.IsTrue() {
				filtered = append(filtered, item)
			}
		}
		s.popScope()
		items = filtered
	}

	if len(items) == 0 {
		// Execute else body
		if loop.ElseBody != nil {
			for _, stmt := range loop.ElseBody {
				if err := s.evalStmt(stmt); err != nil {
					return err
				}
			}
		}
		return nil
	}

	s.depth++
	limit := s.env.recursionLimit
	if limit <= 0 {
		limit = defaultRecursionLimit
	}
	if s.depth > limit {
		return NewError(ErrRecursionLimit, "recursion limit exceeded")
	}

	s.pushScope()
	defer func() {
		s.popScope()
		s.depth--
	}()

	// Set up recursive loop function if needed
	var oldRecurse func(value.Value) (string, error)
	if loop.Recursive {
		oldRecurse = s.loopRecurse
		s.loopRecurse = func(iterValue value.Value) (string, error) {
			nestedItems := iterValue.Iter()
			if nestedItems == nil {
				return "", nil
			}

			oldOut := s.out
			s.out = &strings.Builder{}
			
			for i, item := range nestedItems {
				s.unpackTarget(loop.Target, item)
				
				loopState := &LoopState{
					Index:     i + 1,
					Index0:    i,
					RevIndex:  len(nestedItems) - i,
					RevIndex0: len(nestedItems) - i - 1,
					First:     i == 0,
					Last:      i == len(nestedItems)-1,
					Length:    len(nestedItems),
					Depth:     s.depth,
					Depth0:    s.depth - 1,
					HasPrev:   i > 0,
					HasNext:   i < len(nestedItems)-1,
				}
				if loopState.HasPrev {
					loopState.PrevItem = nestedItems[i-1]
				}
				if loopState.HasNext {
					loopState.NextItem = nestedItems[i+1]
				}
				s.Set("loop", loopState.ToValue())
				s.Set("self", value.FromCallable(&loopSelfCallable{state: s}))

				for _, stmt := range loop.Body {
					err := s.evalStmt(stmt)
					if err == errContinue {
						break
					}
					if err == errBreak {
						result := s.out.String()
						s.out = oldOut
						return result, nil
					}
					if err != nil {
						s.out = oldOut
						return "", err
					}
				}
			}
			
			result := s.out.String()
			s.out = oldOut
			return result, nil
		}
		defer func() { s.loopRecurse = oldRecurse }()
	}

	for i, item := range items {
		s.unpackTarget(loop.Target, item)

		// Set loop variable
		loopState := &LoopState{
			Index:     i + 1,
			Index0:    i,
			RevIndex:  len(items) - i,
			RevIndex0: len(items) - i - 1,
			First:     i == 0,
			Last:      i == len(items)-1,
			Length:    len(items),
			Depth:     s.depth,
			Depth0:    s.depth - 1,
			HasPrev:   i > 0,
			HasNext:   i < len(items)-1,
		}
		if loopState.HasPrev {
			loopState.PrevItem = items[i-1]
		}
		if loopState.HasNext {
			loopState.NextItem = items[i+1]
		}
		s.Set("loop", loopState.ToValue())
		if loop.Recursive {
			s.Set("self", value.FromCallable(&loopSelfCallable{state: s}))
		}

		for _, stmt := range loop.Body {
			err := s.evalStmt(stmt)
			if err == errContinue {
				break
			}
			if err == errBreak {
				return nil
			}
			if err != nil {
				return err
			}
		}
	}

	return nil
}

func (s *State) unpackTarget(target parser.Expr, val value.Value) {
	switch t := target.(type) {
	case *parser.Var:
		s.Set(t.ID, val)
	case *parser.List:
		if items, ok := val.AsSlice(); ok {
			for i, item := range t.Items {
				if i < len(items) {
					s.unpackTarget(item, items[i])
				} else {
					s.unpackTarget(item, value.Undefined())
				}
			}
		}
	case *parser.GetAttr:
		// Handle attribute assignment (e.g., ns.count = value)
		obj, err := s.evalExpr(t.Expr)
		if err != nil {
			return
		}
		if mutableObj, ok := obj.AsMutableObject(); ok {
			mutableObj.SetAttr(t.Name, val)
		}
	}
}

func (s *State) evalIfCond(cond *parser.IfCond) error {
	val, err := s.evalExpr(cond.Expr)
	if err != nil {
		return err
	}

	if val.IsTrue() {
		for _, stmt := range cond.TrueBody {
			if err := s.evalStmt(stmt); err != nil {
				return err
			}
		}
	} else if cond.FalseBody != nil {
		for _, stmt := range cond.FalseBody {
			if err := s.evalStmt(stmt); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *State) evalSet(set *parser.Set) error {
	val, err := s.evalExpr(set.Expr)
	if err != nil {
		return err
	}
	s.unpackTarget(set.Target, val)
	return nil
}

func (s *State) evalSetBlock(block *parser.SetBlock) error {
	// Capture output
	oldOut := s.out
	s.out = &strings.Builder{}
	for _, stmt := range block.Body {
		if err := s.evalStmt(stmt); err != nil {
			s.out = oldOut
			return err
		}
	}
	captured := s.out.String()
	s.out = oldOut

	result := value.FromString(captured)

	// Apply filter if present
	if block.Filter != nil {
		var err error
		result, err = s.applyFilter(block.Filter, result)
		if err != nil {
			return err
		}
	}

	s.unpackTarget(block.Target, result)
	return nil
}

func (s *State) evalFilterBlock(block *parser.FilterBlock) error {
	// Capture output
	oldOut := s.out
	s.out = &strings.Builder{}
	for _, stmt := range block.Body {
		if err := s.evalStmt(stmt); err != nil {
			s.out = oldOut
			return err
		}
	}
	captured := s.out.String()
	s.out = oldOut

	result, err := s.applyFilter(block.Filter, value.FromString(captured))
	if err != nil {
		return err
	}

	s.writeValue(result)
	if s.writeErr != nil {
		err := s.writeErr
		s.writeErr = nil
		return err
	}
	return nil
}

func (s *State) writeValue(val value.Value) {
	if val.IsUndefined() {
		return
	}

	escape := func(str string) string {
		switch {
		case s.autoEscape.IsHTML():
			return EscapeHTML(str)
		case s.autoEscape.IsJSON():
			data, err := json.Marshal(str)
			if err != nil {
				return str
			}
			return string(data)
		default:
			return str
		}
	}

	if s.env.formatter != nil {
		s.out.WriteString(s.env.formatter(s, val, escape))
		return
	}

	if s.autoEscape.IsJSON() && !val.IsSafe() {
		data, err := json.Marshal(valueToNative(val))
		if err != nil {
			s.out.WriteString(escape(val.String()))
			return
		}
		s.out.WriteString(string(data))
		return
	}

	if !s.autoEscape.IsNone() && !s.autoEscape.IsHTML() && !s.autoEscape.IsJSON() {
		s.writeErr = NewError(ErrInvalidOperation, "no formatter registered for auto-escape mode "+strconv.Quote(s.autoEscape.Name()))
		return
	}

	str := val.String()
	if !val.IsSafe() {
		str = escape(str)
	}
	s.out.WriteString(str)
}

func (s *State) evalExpr(expr parser.Expr) (value.Value, error) {
	switch e := expr.(type) {
	case *parser.Const:
		return s.evalConst(e), nil

	case *parser.Var:
		val := s.Lookup(e.ID)
		if val.IsUndefined() && s.env.undefinedBehavior == UndefinedStrict {
			return value.Undefined(), NewError(ErrUndefinedVar, e.ID+" is undefined").WithSpan(e.Span())
		}
		return val, nil

	case *parser.UnaryOp:
		return s.evalUnaryOp(e)

	case *parser.BinOp:
		return s.evalBinOp(e)

	case *parser.IfExpr:
		return s.evalIfExpr(e)

	case *parser.Filter:
		val, err := s.evalExpr(e.Expr)
		if err != nil {
			return value.Undefined(), err
		}
		return s.applyFilterCallArgs(e.Name, val, e.Args)

	case *parser.Test:
		return s.evalTest(e)

	case *parser.GetAttr:
		return s.evalGetAttr(e)

	case *parser.GetItem:
		return s.evalGetItem(e)

	case *parser.Call:
		return s.evalCall(e)

	case *parser.List:
		return s.evalList(e)

	case *parser.Map:
		return s.evalMap(e)

	case *parser.Slice:
		return s.evalSlice(e)

	default:
		return value.Undefined(), fmt.Errorf("unsupported expression type: %T", expr)
	}
}

func (s *State) evalConst(c *parser.Const) value.Value {
	switch v := c.Value.(type) {
	case nil:
		return value.None()
	case bool:
		return value.FromBool(v)
	case int64:
		return value.FromInt(v)
	case float64:
		return value.FromFloat(v)
	case string:
		return value.FromString(v)
	default:
		return value.FromAny(v)
	}
}

func (s *State) evalUnaryOp(op *parser.UnaryOp) (value.Value, error) {
	val, err := s.evalExpr(op.Expr)
	if err != nil {
		return value.Undefined(), err
	}

	switch op.Op {
	case parser.UnaryNot:
		return value.FromBool(!val.IsTrue()), nil
	case parser.UnaryNeg:
		result, err := val.Neg()
		if err != nil {
			return value.Undefined(), wrapOpError(err, op.Span())
		}
		return result, nil
	default:
		return value.Undefined(), NewError(ErrInvalidOperation, "unknown unary operator").WithSpan(op.Span())
	}
}

// wrapOpError funnels the plain errors value/ops.go's arithmetic and
// comparison methods return into the module's single canonical error type.
func wrapOpError(err error, span parser.Span) error {
	var mjErr *Error
	if errors.As(err, &mjErr) {
		return err
	}
	return NewError(ErrInvalidOperation, err.Error()).WithSpan(span)
}

func (s *State) evalBinOp(op *parser.BinOp) (value.Value, error) {
	// Short-circuit evaluation for and/or
	if op.Op == parser.BinOpScAnd {
		left, err := s.evalExpr(op.Left)
		if err != nil {
			return value.Undefined(), err
		}
		if !left.IsTrue() {
			return left, nil
		}
		return s.evalExpr(op.Right)
	}

	if op.Op == parser.BinOpScOr {
		left, err := s.evalExpr(op.Left)
		if err != nil {
			return value.Undefined(), err
		}
		if left.IsTrue() {
			return left, nil
		}
		return s.evalExpr(op.Right)
	}

	left, err := s.evalExpr(op.Left)
	if err != nil {
		return value.Undefined(), err
	}
	right, err := s.evalExpr(op.Right)
	if err != nil {
		return value.Undefined(), err
	}

	switch op.Op {
	case parser.BinOpLt, parser.BinOpLte, parser.BinOpGt, parser.BinOpGte:
		if left.Kind() != right.Kind() {
			return value.Undefined(), NewError(ErrInvalidOperation, fmt.Sprintf("cannot compare %s and %s", left.Kind(), right.Kind())).WithSpan(op.Span())
		}
	}

	switch op.Op {
	case parser.BinOpEq:
		return value.FromBool(left.Equal(right)), nil
	case parser.BinOpNe:
		return value.FromBool(!left.Equal(right)), nil
	case parser.BinOpLt:
		if cmp, ok := left.Compare(right); ok {
			return value.FromBool(cmp < 0), nil
		}
		return value.Undefined(), NewError(ErrInvalidOperation, fmt.Sprintf("cannot compare %s and %s", left.Kind(), right.Kind())).WithSpan(op.Span())
	case parser.BinOpLte:
		if cmp, ok := left.Compare(right); ok {
			return value.FromBool(cmp <= 0), nil
		}
		return value.Undefined(), NewError(ErrInvalidOperation, fmt.Sprintf("cannot compare %s and %s", left.Kind(), right.Kind())).WithSpan(op.Span())
	case parser.BinOpGt:
		if cmp, ok := left.Compare(right); ok {
			return value.FromBool(cmp > 0), nil
		}
		return value.Undefined(), NewError(ErrInvalidOperation, fmt.Sprintf("cannot compare %s and %s", left.Kind(), right.Kind())).WithSpan(op.Span())
	case parser.BinOpGte:
		if cmp, ok := left.Compare(right); ok {
			return value.FromBool(cmp >= 0), nil
		}
		return value.Undefined(), NewError(ErrInvalidOperation, fmt.Sprintf("cannot compare %s and %s", left.Kind(), right.Kind())).WithSpan(op.Span())
	case parser.BinOpAdd:
		result, err := left.Add(right)
		return result, wrapOpErrorOrNil(err, op.Span())
	case parser.BinOpSub:
		result, err := left.Sub(right)
		return result, wrapOpErrorOrNil(err, op.Span())
	case parser.BinOpMul:
		result, err := left.Mul(right)
		return result, wrapOpErrorOrNil(err, op.Span())
	case parser.BinOpDiv:
		result, err := left.Div(right)
		return result, wrapOpErrorOrNil(err, op.Span())
	case parser.BinOpFloorDiv:
		result, err := left.FloorDiv(right)
		return result, wrapOpErrorOrNil(err, op.Span())
	case parser.BinOpRem:
		result, err := left.Rem(right)
		return result, wrapOpErrorOrNil(err, op.Span())
	case parser.BinOpPow:
		result, err := left.Pow(right)
		return result, wrapOpErrorOrNil(err, op.Span())
	case parser.BinOpConcat:
		return left.Concat(right), nil
	case parser.BinOpIn:
		return value.FromBool(right.Contains(left)), nil
	default:
		return value.Undefined(), NewError(ErrInvalidOperation, fmt.Sprintf("unknown binary operator: %v", op.Op)).WithSpan(op.Span())
	}
}

func wrapOpErrorOrNil(err error, span parser.Span) error {
	if err == nil {
		return nil
	}
	return wrapOpError(err, span)
}

func (s *State) evalIfExpr(ie *parser.IfExpr) (value.Value, error) {
	cond, err := s.evalExpr(ie.TestExpr)
	if err != nil {
		return value.Undefined(), err
	}

	if cond.IsTrue() {
		return s.evalExpr(ie.TrueExpr)
	}

	if ie.FalseExpr != nil {
		return s.evalExpr(ie.FalseExpr)
	}
	return value.Undefined(), nil
}

func (s *State) evalTest(test *parser.Test) (value.Value, error) {
	var val value.Value
	var err error
	if test.Name == "defined" || test.Name == "undefined" {
		if v, ok := test.Expr.(*parser.Var); ok {
			val = s.Lookup(v.ID)
		} else {
			val, err = s.evalExpr(test.Expr)
		}
	} else {
		val, err = s.evalExpr(test.Expr)
	}
	if err != nil {
		return value.Undefined(), err
	}

	var args []value.Value
	for _, arg := range test.Args {
		if arg.Kind == parser.CallArgPos {
			v, err := s.evalExpr(arg.Value)
			if err != nil {
				return value.Undefined(), err
			}
			args = append(args, v)
		}
	}

	testFn, ok := s.env.getTest(test.Name)
	if !ok {
		msg := test.Name + suggestName(suggest.Find(test.Name, s.env.testNames()))
		return value.Undefined(), NewError(ErrUnknownTest, msg).WithSpan(test.Span())
	}

	result, err := testFn(s, val, args)
	if err != nil {
		return value.Undefined(), err
	}

	return value.FromBool(result), nil
}

func (s *State) evalGetAttr(ga *parser.GetAttr) (value.Value, error) {
	val, err := s.evalExpr(ga.Expr)
	if err != nil {
		return value.Undefined(), err
	}
	return val.GetAttr(ga.Name), nil
}

func (s *State) evalGetItem(gi *parser.GetItem) (value.Value, error) {
	val, err := s.evalExpr(gi.Expr)
	if err != nil {
		return value.Undefined(), err
	}
	key, err := s.evalExpr(gi.SubscriptExpr)
	if err != nil {
		return value.Undefined(), err
	}
	return val.GetItem(key), nil
}

func (s *State) evalCall(call *parser.Call) (value.Value, error) {
	// Check if it's a function call
	if v, ok := call.Expr.(*parser.Var); ok {
		// Check for loop() recursive call
		if v.ID == "loop" && s.loopRecurse != nil {
			if len(call.Args) != 1 {
				return value.Undefined(), NewError(ErrInvalidOperation, "loop() takes exactly 1 argument")
			}
			arg, err := s.evalExpr(call.Args[0].Value)
			if err != nil {
				return value.Undefined(), err
			}
			result, err := s.loopRecurse(arg)
			if err != nil {
				return value.Undefined(), err
			}
			return value.FromSafeString(result), nil
		}

		// Check for macro
		if macro, ok := s.macros[v.ID]; ok {
			return s.callMacroWithArgs(macro, call.Args)
		}

		// Check for function
		if fn, ok := s.env.getFunction(v.ID); ok {
			args, kwargs, err := s.evalCallArgs(call.Args)
			if err != nil {
				return value.Undefined(), err
			}
			return fn(s, args, kwargs)
		}

		// Check if variable is callable
		val := s.Lookup(v.ID)
		if callable, ok := val.AsCallable(); ok {
			args, kwargs, err := s.evalCallArgs(call.Args)
			if err != nil {
				return value.Undefined(), err
			}
			return callable.Call(s, args, kwargs)
		}
	}

	// Evaluate the expression to get a callable
	expr, err := s.evalExpr(call.Expr)
	if err != nil {
		return value.Undefined(), err
	}

	// Check if it's a callable value
	if callable, ok := expr.AsCallable(); ok {
		args, kwargs, err := s.evalCallArgs(call.Args)
		if err != nil {
			return value.Undefined(), err
		}
		return callable.Call(s, args, kwargs)
	}

	// Check if it's a method call on a map (like a namespace object)
	if getAttr, ok := call.Expr.(*parser.GetAttr); ok {
		obj, err := s.evalExpr(getAttr.Expr)
		if err != nil {
			return value.Undefined(), err
		}
		attr := obj.GetAttr(getAttr.Name)
		if callable, ok := attr.AsCallable(); ok {
			args, kwargs, err := s.evalCallArgs(call.Args)
			if err != nil {
				return value.Undefined(), err
			}
			return callable.Call(s, args, kwargs)
		}
	}

	msg := "unknown callable"
	if v, ok := call.Expr.(*parser.Var); ok {
		msg = v.ID + suggestName(suggest.Find(v.ID, s.env.functionNames()))
	}
	return value.Undefined(), NewError(ErrUnknownFunction, msg).WithSpan(call.Span())
}

// expandCallArg evaluates a single call argument and appends it to args or
// kwargs, expanding *seq and **mapping splats into their individual entries
// instead of passing the container itself as one argument. kwargs is an
// ordered list rather than a Go map so that callees like dict() can see
// keyword arguments in the order the caller wrote them.
func (s *State) expandCallArg(arg parser.CallArg, args *[]value.Value, kwargs *value.Kwargs) error {
	val, err := s.evalExpr(arg.Value)
	if err != nil {
		return err
	}
	switch arg.Kind {
	case parser.CallArgKwarg:
		kwargs.Set(arg.Name, val)
	case parser.CallArgPosSplat:
		items := val.Iter()
		if items == nil {
			return NewError(ErrInvalidOperation, fmt.Sprintf("cannot unpack %s with *", val.Kind())).WithSpan(arg.Value.Span())
		}
		*args = append(*args, items...)
	case parser.CallArgKwargSplat:
		keys, ok := val.MapKeys()
		if !ok {
			return NewError(ErrInvalidOperation, fmt.Sprintf("cannot unpack %s with **", val.Kind())).WithSpan(arg.Value.Span())
		}
		for _, k := range keys {
			kwargs.Set(k, val.GetAttr(k))
		}
	default:
		*args = append(*args, val)
	}
	return nil
}

func (s *State) evalCallArgs(callArgs []parser.CallArg) ([]value.Value, value.Kwargs, error) {
	var args []value.Value
	var kwargs value.Kwargs
	for _, arg := range callArgs {
		if err := s.expandCallArg(arg, &args, &kwargs); err != nil {
			return nil, nil, err
		}
	}
	return args, kwargs, nil
}

func (s *State) callMacroWithArgs(macro *parser.Macro, callArgs []parser.CallArg) (value.Value, error) {
	// Separate positional and keyword arguments, expanding any splats
	var posArgs []value.Value
	var kwargs value.Kwargs
	for _, arg := range callArgs {
		if err := s.expandCallArg(arg, &posArgs, &kwargs); err != nil {
			return value.Undefined(), err
		}
	}
	return s.callMacroWithValues(macro, posArgs, kwargs)
}

// callMacroWithValues invokes a macro with already-evaluated arguments.
func (s *State) callMacroWithValues(macro *parser.Macro, posArgs []value.Value, kwargs value.Kwargs) (value.Value, error) {
	s.depth++
	limit := s.env.recursionLimit
	if limit <= 0 {
		limit = defaultRecursionLimit
	}
	if s.depth > limit {
		s.depth--
		return value.Undefined(), NewError(ErrRecursionLimit, "recursion limit exceeded")
	}
	defer func() { s.depth-- }()

	s.pushScope()
	defer s.popScope()

	if kwargs.Len() > 0 {
		declared := make(map[string]bool, len(macro.Args))
		names := make([]string, 0, len(macro.Args))
		for _, arg := range macro.Args {
			if varArg, ok := arg.(*parser.Var); ok {
				declared[varArg.ID] = true
				names = append(names, varArg.ID)
			}
		}
		for _, name := range kwargs.Names() {
			if !declared[name] {
				msg := "unknown keyword argument '" + name + "'" + suggestName(suggest.Find(name, names))
				return value.Undefined(), NewError(ErrTooManyArguments, msg)
			}
		}
	}

	// Bind arguments
	for i, arg := range macro.Args {
		if varArg, ok := arg.(*parser.Var); ok {
			// Check if provided as kwarg
			if val, ok := kwargs.Get(varArg.ID); ok {
				s.Set(varArg.ID, val)
				continue
			}
			// Check if provided as positional arg
			if i < len(posArgs) {
				s.Set(varArg.ID, posArgs[i])
			} else if i-len(macro.Args)+len(macro.Defaults) >= 0 {
				// Use default value
				defaultIdx := i - len(macro.Args) + len(macro.Defaults)
				if defaultIdx >= 0 && defaultIdx < len(macro.Defaults) {
					val, err := s.evalExpr(macro.Defaults[defaultIdx])
					if err != nil {
						return value.Undefined(), err
					}
					s.Set(varArg.ID, val)
				} else {
					s.Set(varArg.ID, value.Undefined())
				}
			} else {
				s.Set(varArg.ID, value.Undefined())
			}
		}
	}

	// Capture output
	oldOut := s.out
	s.out = &strings.Builder{}
	for _, stmt := range macro.Body {
		if err := s.evalStmt(stmt); err != nil {
			s.out = oldOut
			return value.Undefined(), err
		}
	}
	result := s.out.String()
	s.out = oldOut

	return value.FromSafeString(result), nil
}

func (s *State) evalList(list *parser.List) (value.Value, error) {
	items := make([]value.Value, len(list.Items))
	for i, item := range list.Items {
		var err error
		items[i], err = s.evalExpr(item)
		if err != nil {
			return value.Undefined(), err
		}
	}
	return value.FromSlice(items), nil
}

func (s *State) evalMap(m *parser.Map) (value.Value, error) {
	builder := value.NewMapBuilder(len(m.Keys))
	for i := range m.Keys {
		key, err := s.evalExpr(m.Keys[i])
		if err != nil {
			return value.Undefined(), err
		}
		val, err := s.evalExpr(m.Values[i])
		if err != nil {
			return value.Undefined(), err
		}
		keyStr, ok := key.AsString()
		if !ok {
			keyStr = key.String()
		}
		builder.Set(keyStr, val)
	}
	return builder.Build(), nil
}

func (s *State) evalSlice(sl *parser.Slice) (value.Value, error) {
	val, err := s.evalExpr(sl.Expr)
	if err != nil {
		return value.Undefined(), err
	}

	var start, stop *int64
	var step int64 = 1

	if sl.Start != nil {
		v, err := s.evalExpr(sl.Start)
		if err != nil {
			return value.Undefined(), err
		}
		if i, ok := v.AsInt(); ok {
			start = &i
		}
	}

	if sl.Stop != nil {
		v, err := s.evalExpr(sl.Stop)
		if err != nil {
			return value.Undefined(), err
		}
		if i, ok := v.AsInt(); ok {
			stop = &i
		}
	}

	if sl.Step != nil {
		v, err := s.evalExpr(sl.Step)
		if err != nil {
			return value.Undefined(), err
		}
		if i, ok := v.AsInt(); ok {
			step = i
		}
	}

	result, err := s.sliceValue(val, start, stop, step)
	if err != nil {
		return value.Undefined(), NewError(ErrInvalidOperation, err.Error()).WithSpan(sl.Span())
	}
	return result, nil
}

func (s *State) sliceValue(val value.Value, start, stop *int64, step int64) (value.Value, error) {
	if step == 0 {
		return value.Undefined(), fmt.Errorf("slice step cannot be zero")
	}
	if step != 1 && step != -1 {
		return value.Undefined(), fmt.Errorf("slicing with step other than 1 or -1 is not supported")
	}

	switch {
	case val.Kind() == value.KindSeq:
		items, _ := val.AsSlice()
		return value.FromSlice(sliceSlice(items, start, stop, step)), nil
	case val.Kind() == value.KindString:
		str, _ := val.AsString()
		runes := []rune(str)
		result := sliceRunes(runes, start, stop, step)
		if val.IsSafe() {
			return value.FromSafeString(string(result)), nil
		}
		return value.FromString(string(result)), nil
	default:
		return value.Undefined(), fmt.Errorf("cannot slice %s", val.Kind())
	}
}

func sliceSlice(items []value.Value, start, stop *int64, step int64) []value.Value {
	length := int64(len(items))
	s, e := resolveSliceIndices(length, start, stop, step)

	var result []value.Value
	if step > 0 {
		for i := s; i < e; i += step {
			result = append(result, items[i])
		}
	} else {
		for i := s; i > e; i += step {
			result = append(result, items[i])
		}
	}
	return result
}

func sliceRunes(runes []rune, start, stop *int64, step int64) []rune {
	length := int64(len(runes))
	s, e := resolveSliceIndices(length, start, stop, step)

	var result []rune
	if step > 0 {
		for i := s; i < e; i += step {
			result = append(result, runes[i])
		}
	} else {
		for i := s; i > e; i += step {
			result = append(result, runes[i])
		}
	}
	return result
}

func resolveSliceIndices(length int64, start, stop *int64, step int64) (int64, int64) {
	var s, e int64

	if step > 0 {
		if start == nil {
			s = 0
		} else {
			s = normalizeIndex(*start, length)
		}
		if stop == nil {
			e = length
		} else {
			e = normalizeIndex(*stop, length)
		}
		if s < 0 {
			s = 0
		}
		if e > length {
			e = length
		}
	} else {
		if start == nil {
			s = length - 1
		} else {
			s = normalizeIndex(*start, length)
		}
		if stop == nil {
			e = -1
		} else {
			e = normalizeIndex(*stop, length)
		}
		if s >= length {
			s = length - 1
		}
		if e < -1 {
			e = -1
		}
	}

	return s, e
}

func normalizeIndex(idx, length int64) int64 {
	if idx < 0 {
		idx = length + idx
	}
	return idx
}

func (s *State) applyFilter(filterExpr parser.Expr, val value.Value) (value.Value, error) {
	switch f := filterExpr.(type) {
	case *parser.Filter:
		return s.applyFilterCallArgs(f.Name, val, f.Args)
	case *parser.Var:
		return s.applyFilterCallArgs(f.ID, val, nil)
	default:
		return value.Undefined(), fmt.Errorf("invalid filter expression")
	}
}

func (s *State) applyFilterCallArgs(name string, val value.Value, callArgs []parser.CallArg) (value.Value, error) {
	filterFn, ok := s.env.getFilter(name)
	if !ok {
		msg := name + suggestName(suggest.Find(name, s.env.filterNames()))
		return value.Undefined(), NewError(ErrUnknownFilter, msg)
	}

	var args []value.Value
	var kwargs value.Kwargs
	for _, arg := range callArgs {
		if err := s.expandCallArg(arg, &args, &kwargs); err != nil {
			return value.Undefined(), err
		}
	}

	return filterFn(s, val, args, kwargs)
}
