package compiler

import (
	"fmt"
	"math"

	"github.com/tliron/commonlog"

	"github.com/chazu/garnet/bytecode"
)

// ---------------------------------------------------------------------------
// MethodCompiler: the backend facade for one compilation unit
// ---------------------------------------------------------------------------

// MethodCompiler emits the instruction stream of one method, closure or
// top-level body. It implements StackEmitter, ControlFlowBuilder,
// ScopeCompiler and ValueBuilder over a single builder. A MethodCompiler is
// not safe for concurrent use; independent units get independent compilers.
type MethodCompiler struct {
	opts     Options
	log      commonlog.Logger
	unit     *bytecode.Unit
	b        *bytecode.Builder
	ctx      *compileContext
	literals map[literalKey]int
	handlers []pendingHandler
	lastLine int
	finished bool
}

// compileContext is the explicit per-unit state that the callbacks thread
// through: the active frame, the loop stack and the protected regions.
type compileContext struct {
	arena   *ScopeArena
	frame   int
	loops   []*loopContext
	regions []*region
	checks  []*region      // open defined? checks, a subset of regions
	restart bytecode.Label // closure body start, target of redo outside loops
}

type pendingHandler struct {
	start, end int
	target     bytecode.Label
	depth      int
	class      int
}

func newMethodCompiler(opts Options, log commonlog.Logger, arena *ScopeArena, frame int, name string, kind bytecode.Kind) *MethodCompiler {
	return &MethodCompiler{
		opts:     opts,
		log:      log,
		unit:     &bytecode.Unit{Name: name, Kind: kind},
		b:        bytecode.NewBuilder(),
		ctx:      &compileContext{arena: arena, frame: frame},
		literals: make(map[literalKey]int),
		lastLine: -1,
	}
}

// Name returns the unit name.
func (c *MethodCompiler) Name() string {
	return c.unit.Name
}

// Kind returns the unit kind.
func (c *MethodCompiler) Kind() bytecode.Kind {
	return c.unit.Kind
}

// Depth returns the simulated stack depth, or bytecode.Unreachable.
func (c *MethodCompiler) Depth() int {
	return c.b.Depth()
}

func (c *MethodCompiler) fail(op string, err error, format string, args ...any) {
	panic(&ContractError{Unit: c.unit.Name, Op: op, Err: err, Msg: fmt.Sprintf(format, args...)})
}

// call runs a callback that must change the stack depth by delta. A
// callback that ends in an unconditional exit is accepted.
func (c *MethodCompiler) call(op string, cb BranchCallback, delta int) {
	if cb == nil {
		c.fail(op, ErrNilCallback, "")
	}
	before := c.b.Depth()
	cb(c)
	after := c.b.Depth()
	if before == bytecode.Unreachable || after == bytecode.Unreachable {
		return
	}
	if after-before != delta {
		c.fail(op, ErrCallbackDepth, "want %+d, got %+d", delta, after-before)
	}
}

// arm runs one arm of a multi-way branch. Every reachable arm must end at
// the depth recorded in *end.
func (c *MethodCompiler) arm(op string, cb BranchCallback, end *int) {
	if cb == nil {
		c.fail(op, ErrNilCallback, "")
	}
	cb(c)
	d := c.b.Depth()
	switch {
	case d == bytecode.Unreachable:
	case *end == bytecode.Unreachable:
		*end = d
	case *end != d:
		c.fail(op, ErrBranchDepth, "arms end at depth %d and %d", *end, d)
	}
}

// ---------------------------------------------------------------------------
// Literal pool
// ---------------------------------------------------------------------------

// literalKey identifies a literal for interning. Floats are keyed by their
// bits so -0.0 and 0.0 stay distinct.
type literalKey struct {
	kind bytecode.LiteralKind
	i    int64
	f    uint64
	s    string
	lang string
}

func (c *MethodCompiler) literal(l bytecode.Literal) int {
	key := literalKey{kind: l.Kind, i: l.Int, f: math.Float64bits(l.Float), s: l.Str, lang: l.Lang}
	if idx, ok := c.literals[key]; ok {
		return idx
	}
	idx := len(c.unit.Literals)
	c.unit.Literals = append(c.unit.Literals, l)
	c.literals[key] = idx
	return idx
}

func (c *MethodCompiler) name(op, name string) int {
	if name == "" {
		c.fail(op, ErrEmptyName, "")
	}
	return c.literal(bytecode.Literal{Kind: bytecode.LitName, Str: name})
}

// emitName emits an instruction whose operand is an interned name.
func (c *MethodCompiler) emitName(op string, code bytecode.Opcode, name string) {
	c.b.EmitUint16(code, c.name(op, name))
}

// ---------------------------------------------------------------------------
// Child units
// ---------------------------------------------------------------------------

func (c *MethodCompiler) newChild(name string, kind bytecode.Kind, frame int) *MethodCompiler {
	child := newMethodCompiler(c.opts, c.log, c.ctx.arena, frame, name, kind)
	if c.unit.File != "" {
		child.unit.File = c.unit.File
	}
	return child
}

func (c *MethodCompiler) addUnit(u *bytecode.Unit) int {
	c.unit.Units = append(c.unit.Units, u)
	return len(c.unit.Units) - 1
}

// LineNumber records the source line for the next instruction. Consecutive
// calls for the same line add nothing.
func (c *MethodCompiler) LineNumber(pos SourcePosition) {
	if !c.opts.LineNumbers {
		return
	}
	if c.unit.File == "" {
		c.unit.File = pos.File
	}
	if pos.Line == c.lastLine {
		return
	}
	c.lastLine = pos.Line
	lines := c.unit.Lines
	if n := len(lines); n > 0 && lines[n-1].Pos == c.b.Len() {
		lines[n-1].Line = pos.Line
		return
	}
	c.unit.Lines = append(lines, bytecode.LineEntry{Pos: c.b.Len(), Line: pos.Line})
}

// EndMethod finalizes the unit. The body must leave exactly one value,
// which is returned, unless control cannot reach the end. Every label must
// be bound.
func (c *MethodCompiler) EndMethod() *bytecode.Unit {
	const op = "EndMethod"
	if c.finished {
		c.fail(op, ErrFinished, "")
	}
	if len(c.ctx.checks) > 0 {
		c.fail(op, ErrDefinedNesting, "%d checks left open", len(c.ctx.checks))
	}
	switch d := c.b.Depth(); d {
	case bytecode.Unreachable:
	case 1:
		c.b.Emit(bytecode.OpReturn)
	default:
		c.fail(op, ErrUnitDepth, "depth %d", d)
	}

	code, labels := c.b.Finish()
	u := c.unit
	u.Code = code
	u.Labels = labels
	u.MaxStack = c.b.MaxDepth()
	u.Locals = c.ctx.arena.Names(c.ctx.frame)
	for _, h := range c.handlers {
		u.Handlers = append(u.Handlers, bytecode.Handler{
			Start:  h.start,
			End:    h.end,
			Target: labels[h.target.Index()],
			Depth:  h.depth,
			Class:  h.class,
		})
	}
	c.finished = true

	c.log.Debugf("finished %s %s: %d bytes, %d literals, %d handlers, %d children",
		u.Kind, u.Name, len(u.Code), len(u.Literals), len(u.Handlers), len(u.Units))
	return u
}
