package parser

import (
	"math/big"

	"github.com/jxt1234/minja/lexer"
)

// Span represents a location range in source code.
type Span = lexer.Span

// Node is the interface implemented by all AST nodes.
type Node interface {
	node()
	Span() Span
}

// Stmt represents a statement node.
type Stmt interface {
	Node
	stmt()
}

// Expr represents an expression node.
type Expr interface {
	Node
	expr()
}

// Template is the root node of a parsed template.
type Template struct {
	Children []Stmt
	span     Span
}

func (t *Template) node()      {}
func (t *Template) stmt()      {}
func (t *Template) Span() Span { return t.span }

// EmitRaw outputs raw template text copied verbatim from the source.
type EmitRaw struct {
	Raw  string
	span Span
}

func (e *EmitRaw) node()      {}
func (e *EmitRaw) stmt()      {}
func (e *EmitRaw) Span() Span { return e.span }

// EmitExpr outputs the rendered result of an expression.
type EmitExpr struct {
	Expr Expr
	span Span
}

func (e *EmitExpr) node()      {}
func (e *EmitExpr) stmt()      {}
func (e *EmitExpr) Span() Span { return e.span }

// ForLoop represents a for loop, with an optional filter-condition,
// optional else body, and optional recursive self-call support.
type ForLoop struct {
	Target     Expr
	Iter       Expr
	FilterExpr Expr // optional
	Recursive  bool
	Body       []Stmt
	ElseBody   []Stmt
	span       Span
}

func (f *ForLoop) node()      {}
func (f *ForLoop) stmt()      {}
func (f *ForLoop) Span() Span { return f.span }

// IfCond represents an if/elif/else cascade. elif branches are nested
// inside FalseBody as a single-element slice holding another *IfCond.
type IfCond struct {
	Expr      Expr
	TrueBody  []Stmt
	FalseBody []Stmt
	span      Span
}

func (i *IfCond) node()      {}
func (i *IfCond) stmt()      {}
func (i *IfCond) Span() Span { return i.span }

// Set represents the expression form of a variable assignment.
type Set struct {
	Target Expr
	Expr   Expr
	span   Span
}

func (s *Set) node()      {}
func (s *Set) stmt()      {}
func (s *Set) Span() Span { return s.span }

// SetBlock represents the block (capture) form of a variable assignment:
// {% set x %}...{% endset %}, with an optional filter chain applied to
// the captured output.
type SetBlock struct {
	Target Expr
	Filter Expr // optional
	Body   []Stmt
	span   Span
}

func (s *SetBlock) node()      {}
func (s *SetBlock) stmt()      {}
func (s *SetBlock) Span() Span { return s.span }

// FilterBlock pipes the rendered output of Body through Filter.
type FilterBlock struct {
	Filter Expr
	Body   []Stmt
	span   Span
}

func (f *FilterBlock) node()      {}
func (f *FilterBlock) stmt()      {}
func (f *FilterBlock) Span() Span { return f.span }

// Generation wraps its body transparently; it exists purely to mark a
// span of the rendered prompt as model-generated content and has no
// effect at render time.
type Generation struct {
	Body []Stmt
	span Span
}

func (g *Generation) node()      {}
func (g *Generation) stmt()      {}
func (g *Generation) Span() Span { return g.span }

// Macro represents a macro definition.
type Macro struct {
	Name     string
	Args     []Expr
	Defaults []Expr
	Body     []Stmt
	span     Span
}

func (m *Macro) node()      {}
func (m *Macro) stmt()      {}
func (m *Macro) Span() Span { return m.span }

// Continue represents a loop continue statement.
type Continue struct {
	span Span
}

func (c *Continue) node()      {}
func (c *Continue) stmt()      {}
func (c *Continue) Span() Span { return c.span }

// Break represents a loop break statement.
type Break struct {
	span Span
}

func (b *Break) node()      {}
func (b *Break) stmt()      {}
func (b *Break) Span() Span { return b.span }

// --- Expressions ---

// Var represents a variable reference.
type Var struct {
	ID   string
	span Span
}

func (v *Var) node()      {}
func (v *Var) expr()      {}
func (v *Var) Span() Span { return v.span }

// Const represents a literal value: string, int64, float64, bool, nil,
// or *BigInt for integers that overflow int64.
type Const struct {
	Value interface{}
	span  Span
}

func (c *Const) node()      {}
func (c *Const) expr()      {}
func (c *Const) Span() Span { return c.span }

// BigInt wraps big.Int for integer literals too large for int64.
type BigInt struct {
	*big.Int
}

func (b *BigInt) String() string {
	return b.Int.String()
}

// UnaryOpKind identifies a unary operator.
type UnaryOpKind int

const (
	UnaryNot UnaryOpKind = iota
	UnaryNeg
)

func (k UnaryOpKind) String() string {
	switch k {
	case UnaryNot:
		return "Not"
	case UnaryNeg:
		return "Neg"
	}
	return "?"
}

// UnaryOp represents a unary operation.
type UnaryOp struct {
	Op   UnaryOpKind
	Expr Expr
	span Span
}

func (u *UnaryOp) node()      {}
func (u *UnaryOp) expr()      {}
func (u *UnaryOp) Span() Span { return u.span }

// BinOpKind identifies a binary operator.
type BinOpKind int

const (
	BinOpEq BinOpKind = iota
	BinOpNe
	BinOpLt
	BinOpLte
	BinOpGt
	BinOpGte
	BinOpScAnd
	BinOpScOr
	BinOpAdd
	BinOpSub
	BinOpMul
	BinOpDiv
	BinOpFloorDiv
	BinOpRem
	BinOpPow
	BinOpConcat
	BinOpIn
)

func (k BinOpKind) String() string {
	switch k {
	case BinOpEq:
		return "Eq"
	case BinOpNe:
		return "Ne"
	case BinOpLt:
		return "Lt"
	case BinOpLte:
		return "Lte"
	case BinOpGt:
		return "Gt"
	case BinOpGte:
		return "Gte"
	case BinOpScAnd:
		return "ScAnd"
	case BinOpScOr:
		return "ScOr"
	case BinOpAdd:
		return "Add"
	case BinOpSub:
		return "Sub"
	case BinOpMul:
		return "Mul"
	case BinOpDiv:
		return "Div"
	case BinOpFloorDiv:
		return "FloorDiv"
	case BinOpRem:
		return "Rem"
	case BinOpPow:
		return "Pow"
	case BinOpConcat:
		return "Concat"
	case BinOpIn:
		return "In"
	}
	return "?"
}

// BinOp represents a binary operation.
type BinOp struct {
	Op    BinOpKind
	Left  Expr
	Right Expr
	span  Span
}

func (b *BinOp) node()      {}
func (b *BinOp) expr()      {}
func (b *BinOp) Span() Span { return b.span }

// IfExpr represents a ternary conditional: TrueExpr if TestExpr else FalseExpr.
type IfExpr struct {
	TestExpr  Expr
	TrueExpr  Expr
	FalseExpr Expr // optional
	span      Span
}

func (i *IfExpr) node()      {}
func (i *IfExpr) expr()      {}
func (i *IfExpr) Span() Span { return i.span }

// Filter represents a filter application in a filter chain.
type Filter struct {
	Name string
	Expr Expr // optional (nil at the head of a filter chain built from a block)
	Args []CallArg
	span Span
}

func (f *Filter) node()      {}
func (f *Filter) expr()      {}
func (f *Filter) Span() Span { return f.span }

// Test represents an `is` test expression.
type Test struct {
	Name string
	Expr Expr
	Args []CallArg
	span Span
}

func (t *Test) node()      {}
func (t *Test) expr()      {}
func (t *Test) Span() Span { return t.span }

// GetAttr represents attribute access (x.y).
type GetAttr struct {
	Expr Expr
	Name string
	span Span
}

func (g *GetAttr) node()      {}
func (g *GetAttr) expr()      {}
func (g *GetAttr) Span() Span { return g.span }

// GetItem represents subscript access (x[y]).
type GetItem struct {
	Expr          Expr
	SubscriptExpr Expr
	span          Span
}

func (g *GetItem) node()      {}
func (g *GetItem) expr()      {}
func (g *GetItem) Span() Span { return g.span }

// Slice represents a slice operation (x[start:stop:step]).
type Slice struct {
	Expr  Expr
	Start Expr // optional
	Stop  Expr // optional
	Step  Expr // optional
	span  Span
}

func (s *Slice) node()      {}
func (s *Slice) expr()      {}
func (s *Slice) Span() Span { return s.span }

// Call represents a function or method call.
type Call struct {
	Expr Expr
	Args []CallArg
	span Span
}

func (c *Call) node()      {}
func (c *Call) expr()      {}
func (c *Call) Span() Span { return c.span }

// CallArgKind identifies the shape of a call argument.
type CallArgKind int

const (
	CallArgPos CallArgKind = iota
	CallArgKwarg
	CallArgPosSplat
	CallArgKwargSplat
)

// CallArg represents a single call argument: positional, keyword, or
// one of the two expansion forms (*seq, **map).
type CallArg struct {
	Kind  CallArgKind
	Name  string // set for CallArgKwarg
	Value Expr
}

// List represents an array literal (and, internally, a parsed tuple).
type List struct {
	Items []Expr
	span  Span
}

func (l *List) node()      {}
func (l *List) expr()      {}
func (l *List) Span() Span { return l.span }

// Map represents a dict literal.
type Map struct {
	Keys   []Expr
	Values []Expr
	span   Span
}

func (m *Map) node()      {}
func (m *Map) expr()      {}
func (m *Map) Span() Span { return m.span }
