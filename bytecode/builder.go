package bytecode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Unreachable is the simulated depth after an unconditional transfer of
// control, until a label with a known depth is bound.
const Unreachable = -1

// Build errors. Builder methods panic with a *BuildError wrapping one of
// these; the compiler turns them into contract errors.
var (
	ErrLabelRebound   = errors.New("label bound twice")
	ErrLabelUnbound   = errors.New("label never bound")
	ErrUnknownLabel   = errors.New("label does not belong to this builder")
	ErrDepthMismatch  = errors.New("stack depth mismatch")
	ErrStackUnderflow = errors.New("stack underflow")
	ErrOperandRange   = errors.New("operand out of range")
	ErrJumpTooFar     = errors.New("jump too far")
)

// BuildError reports an invariant violation at a code position.
type BuildError struct {
	Pos int
	Err error
	Msg string
}

func (e *BuildError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("bytecode at %04d: %v", e.Pos, e.Err)
	}
	return fmt.Sprintf("bytecode at %04d: %v: %s", e.Pos, e.Err, e.Msg)
}

func (e *BuildError) Unwrap() error { return e.Err }

// ---------------------------------------------------------------------------
// Builder: instruction stream with simulated stack
// ---------------------------------------------------------------------------

// Label is a forward or backward jump target: an index into the fixup
// arena of the builder that created it. The zero Label belongs to no
// builder.
type Label struct {
	b  *Builder
	id int
}

// IsZero reports whether l was never created by a builder.
func (l Label) IsZero() bool { return l.b == nil }

// Index returns the label's position in its builder's label table.
func (l Label) Index() int { return l.id }

type labelRecord struct {
	bound    bool
	position int
	depth    int   // expected stack depth at the label
	refs     []int // operand positions that jump here
}

// Builder constructs a bytecode stream and tracks the stack depth each
// instruction leaves behind.
type Builder struct {
	code     []byte
	labels   []labelRecord
	depth    int
	maxDepth int
}

// NewBuilder creates a builder at depth 0.
func NewBuilder() *Builder {
	return &Builder{code: make([]byte, 0, 64)}
}

// Len returns the current length.
func (b *Builder) Len() int {
	return len(b.code)
}

// Depth returns the simulated stack depth, or Unreachable.
func (b *Builder) Depth() int {
	return b.depth
}

// MaxDepth returns the deepest simulated stack seen so far.
func (b *Builder) MaxDepth() int {
	return b.maxDepth
}

// Reachable reports whether the next instruction can execute.
func (b *Builder) Reachable() bool {
	return b.depth != Unreachable
}

// EnterAt resumes emission at a known depth after an unconditional
// transfer, e.g. at an exception handler entry.
func (b *Builder) EnterAt(depth int) {
	b.depth = depth
	b.track()
}

func (b *Builder) fail(err error, format string, args ...any) {
	panic(&BuildError{Pos: len(b.code), Err: err, Msg: fmt.Sprintf(format, args...)})
}

func (b *Builder) track() {
	if b.depth > b.maxDepth {
		b.maxDepth = b.depth
	}
}

func (b *Builder) adjust(op Opcode, operand int) {
	if b.depth == Unreachable {
		return
	}
	b.depth += op.Effect(operand)
	if b.depth < 0 {
		b.fail(ErrStackUnderflow, "%s", op)
	}
	b.track()
	if op.Info().Terminator {
		b.depth = Unreachable
	}
}

// Emit appends an opcode with no operands.
func (b *Builder) Emit(op Opcode) {
	b.code = append(b.code, byte(op))
	b.adjust(op, 0)
}

// EmitByte appends an opcode with a single byte operand.
func (b *Builder) EmitByte(op Opcode, operand byte) {
	b.code = append(b.code, byte(op), operand)
	b.adjust(op, int(operand))
}

// EmitInt8 appends an opcode with a signed 8-bit operand.
func (b *Builder) EmitInt8(op Opcode, operand int8) {
	b.code = append(b.code, byte(op), byte(operand))
	b.adjust(op, 0)
}

// EmitInt32 appends an opcode with a 32-bit operand (little-endian).
func (b *Builder) EmitInt32(op Opcode, operand int32) {
	b.code = append(b.code, byte(op))
	b.code = binary.LittleEndian.AppendUint32(b.code, uint32(operand))
	b.adjust(op, 0)
}

// EmitUint16 appends an opcode with a 16-bit operand (little-endian).
func (b *Builder) EmitUint16(op Opcode, operand int) {
	if operand < 0 || operand > math.MaxUint16 {
		b.fail(ErrOperandRange, "%s %d", op, operand)
	}
	b.code = append(b.code, byte(op), byte(operand), byte(operand>>8))
	b.adjust(op, operand)
}

// EmitPair appends an opcode with two byte operands.
func (b *Builder) EmitPair(op Opcode, first, second int) {
	if first < 0 || first > math.MaxUint8 || second < 0 || second > math.MaxUint8 {
		b.fail(ErrOperandRange, "%s %d %d", op, first, second)
	}
	b.code = append(b.code, byte(op), byte(first), byte(second))
	b.adjust(op, 0)
}

// EmitUint16Pair appends an opcode with two 16-bit operands.
func (b *Builder) EmitUint16Pair(op Opcode, first, second int) {
	if first < 0 || first > math.MaxUint16 || second < 0 || second > math.MaxUint16 {
		b.fail(ErrOperandRange, "%s %d %d", op, first, second)
	}
	b.code = append(b.code, byte(op), byte(first), byte(first>>8), byte(second), byte(second>>8))
	b.adjust(op, 0)
}

// EmitSend appends a SEND instruction.
func (b *Builder) EmitSend(name int, argc int, kind CallKind) {
	if name < 0 || name > math.MaxUint16 || argc < 0 || argc > math.MaxUint8 {
		b.fail(ErrOperandRange, "SEND %d/%d", name, argc)
	}
	b.code = append(b.code, byte(OpSend), byte(name), byte(name>>8), byte(argc), byte(kind))
	if kind.HasBlock() {
		argc++
	}
	b.adjust(OpSend, argc)
}

// ---------------------------------------------------------------------------
// Label management for jumps
// ---------------------------------------------------------------------------

// NewLabel creates an unbound label.
func (b *Builder) NewLabel() Label {
	b.labels = append(b.labels, labelRecord{depth: Unreachable})
	return Label{b: b, id: len(b.labels) - 1}
}

func (b *Builder) label(l Label) *labelRecord {
	if l.b != b || l.id < 0 || l.id >= len(b.labels) {
		b.fail(ErrUnknownLabel, "label %d", l.id)
	}
	return &b.labels[l.id]
}

// merge records an edge into l arriving with the given depth.
func (b *Builder) merge(rec *labelRecord, l Label, depth int) {
	if depth == Unreachable {
		return
	}
	if rec.depth == Unreachable {
		rec.depth = depth
		return
	}
	if rec.depth != depth {
		b.fail(ErrDepthMismatch, "label %d expects depth %d, got %d", l.id, rec.depth, depth)
	}
}

// Mark binds a label to the current position. Fallthrough and every jump
// into the label must agree on the stack depth.
func (b *Builder) Mark(l Label) {
	rec := b.label(l)
	if rec.bound {
		b.fail(ErrLabelRebound, "label %d", l.id)
	}
	rec.bound = true
	rec.position = len(b.code)
	b.merge(rec, l, b.depth)
	b.depth = rec.depth
}

// LabelDepth returns the depth recorded for a label, or Unreachable when no
// edge has reached it yet.
func (b *Builder) LabelDepth(l Label) int {
	return b.label(l).depth
}

// EmitJump emits a jump instruction targeting a label. The offset operand
// is patched by Finish.
func (b *Builder) EmitJump(op Opcode, l Label) {
	rec := b.label(l)
	b.code = append(b.code, byte(op))
	rec.refs = append(rec.refs, len(b.code))
	b.code = append(b.code, 0, 0) // placeholder
	reachable := b.depth != Unreachable
	if reachable {
		b.depth += op.Effect(0)
		if b.depth < 0 {
			b.fail(ErrStackUnderflow, "%s", op)
		}
	}
	b.merge(rec, l, b.depth)
	if op.Info().Terminator {
		b.depth = Unreachable
	}
}

// Finish patches every jump and returns the final code and label positions.
// Every label must have been bound. Positions is nil when no label was
// created.
func (b *Builder) Finish() ([]byte, []int) {
	var positions []int
	if len(b.labels) > 0 {
		positions = make([]int, len(b.labels))
	}
	for i := range b.labels {
		rec := &b.labels[i]
		if !rec.bound {
			b.fail(ErrLabelUnbound, "label %d (%d references)", i, len(rec.refs))
		}
		positions[i] = rec.position
		for _, ref := range rec.refs {
			offset := rec.position - (ref + 2) // offset from after the operand
			if offset < math.MinInt16 || offset > math.MaxInt16 {
				b.fail(ErrJumpTooFar, "label %d offset %d", i, offset)
			}
			binary.LittleEndian.PutUint16(b.code[ref:], uint16(int16(offset)))
		}
	}
	return b.code, positions
}
