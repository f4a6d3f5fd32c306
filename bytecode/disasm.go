package bytecode

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Reader for disassembly and interpretation
// ---------------------------------------------------------------------------

// Reader reads bytecode one operand at a time.
type Reader struct {
	bytes []byte
	pos   int
}

// NewReader creates a reader for bytecode.
func NewReader(bc []byte) *Reader {
	return &Reader{bytes: bc}
}

// Position returns the current read position.
func (r *Reader) Position() int {
	return r.pos
}

// HasMore returns true if there are more bytes to read.
func (r *Reader) HasMore() bool {
	return r.pos < len(r.bytes)
}

// Seek sets the read position.
func (r *Reader) Seek(pos int) {
	r.pos = pos
}

// ReadOpcode reads and returns the next opcode.
func (r *Reader) ReadOpcode() Opcode {
	return Opcode(r.ReadUint8())
}

// ReadUint8 reads a single byte operand.
func (r *Reader) ReadUint8() byte {
	if r.pos >= len(r.bytes) {
		panic("bytecode underflow")
	}
	b := r.bytes[r.pos]
	r.pos++
	return b
}

// ReadUint16 reads a 16-bit operand (little-endian).
func (r *Reader) ReadUint16() uint16 {
	if r.pos+2 > len(r.bytes) {
		panic("bytecode underflow")
	}
	v := binary.LittleEndian.Uint16(r.bytes[r.pos:])
	r.pos += 2
	return v
}

// ReadInt16 reads a signed 16-bit operand (little-endian).
func (r *Reader) ReadInt16() int16 {
	return int16(r.ReadUint16())
}

// ReadInt32 reads a 32-bit operand (little-endian).
func (r *Reader) ReadInt32() int32 {
	if r.pos+4 > len(r.bytes) {
		panic("bytecode underflow")
	}
	v := binary.LittleEndian.Uint32(r.bytes[r.pos:])
	r.pos += 4
	return int32(v)
}

// Instruction is one decoded instruction.
type Instruction struct {
	Pos      int
	Op       Opcode
	Operands []int
	Next     int // position of the following instruction
}

// Target returns the absolute jump target of a jump instruction.
func (in Instruction) Target() int {
	return in.Next + in.Operands[0]
}

// Decode reads the instruction at the reader's position.
func (r *Reader) Decode() (Instruction, error) {
	in := Instruction{Pos: r.pos}
	if r.pos >= len(r.bytes) {
		return in, fmt.Errorf("decode at %04d: end of code", r.pos)
	}
	in.Op = r.ReadOpcode()
	if !in.Op.Known() {
		return in, fmt.Errorf("decode at %04d: unknown opcode 0x%02X", in.Pos, byte(in.Op))
	}
	if r.pos+in.Op.OperandBytes() > len(r.bytes) {
		return in, fmt.Errorf("decode at %04d: truncated %s", in.Pos, in.Op)
	}
	switch in.Op {
	case OpPushInt8:
		in.Operands = []int{int(int8(r.ReadUint8()))}
	case OpPushInt32:
		in.Operands = []int{int(r.ReadInt32())}
	case OpPushLocal, OpStoreLocal:
		in.Operands = []int{int(r.ReadUint8()), int(r.ReadUint8())}
	case OpDefineAlias:
		in.Operands = []int{int(r.ReadUint16()), int(r.ReadUint16())}
	case OpSend:
		in.Operands = []int{int(r.ReadUint16()), int(r.ReadUint8()), int(r.ReadUint8())}
	default:
		switch {
		case in.Op.Info().Jump:
			in.Operands = []int{int(r.ReadInt16())}
		case in.Op.OperandBytes() == 1:
			in.Operands = []int{int(r.ReadUint8())}
		case in.Op.OperandBytes() == 2:
			in.Operands = []int{int(r.ReadUint16())}
		}
	}
	in.Next = r.pos
	return in, nil
}

// Effect returns the stack effect of a decoded instruction.
func (in Instruction) Effect() int {
	switch in.Op {
	case OpSend:
		argc := in.Operands[1]
		if CallKind(in.Operands[2]).HasBlock() {
			argc++
		}
		return in.Op.Effect(argc)
	case OpSLIDE, OpSendSuper, OpYield, OpObjectArray, OpConcatStrings, OpNewHash:
		return in.Op.Effect(in.Operands[0])
	}
	return in.Op.Info().StackEffect
}

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// nameOperand lists opcodes whose first operand indexes the literal pool.
var nameOperand = map[Opcode]bool{
	OpPushLiteral: true, OpNewString: true, OpNewRegexp: true,
	OpPushIvar: true, OpStoreIvar: true, OpPushIvarRaw: true,
	OpPushGlobal: true, OpStoreGlobal: true, OpPushCvar: true, OpStoreCvar: true,
	OpPushConst: true, OpPushConstFrom: true, OpStoreConst: true,
	OpStoreConstIn: true, OpStoreConstObject: true,
	OpInstanceOf: true, OpMethodBound: true, OpGlobalDefined: true,
	OpConstDefined: true, OpIvarDefined: true, OpCvarDefined: true,
	OpConstDefinedIn: true, OpVisibility: true, OpCvarDefinedIn: true,
	OpBackrefMethod: true, OpTrace: true,
}

// DisassembleInstruction formats a decoded instruction against its unit.
func DisassembleInstruction(u *Unit, in Instruction) string {
	name := in.Op.Name()
	switch {
	case in.Op.Info().Jump:
		return fmt.Sprintf("%04d  %s %d (-> %04d)", in.Pos, name, in.Operands[0], in.Target())
	case nameOperand[in.Op]:
		idx := in.Operands[0]
		if idx < len(u.Literals) {
			return fmt.Sprintf("%04d  %s %d (%s)", in.Pos, name, idx, u.Literals[idx])
		}
		return fmt.Sprintf("%04d  %s %d", in.Pos, name, idx)
	case in.Op == OpSend:
		return fmt.Sprintf("%04d  %s %s/%d %s", in.Pos, name, u.LiteralName(in.Operands[0]), in.Operands[1], CallKind(in.Operands[2]))
	case in.Op == OpDefineAlias:
		return fmt.Sprintf("%04d  %s %s %s", in.Pos, name, u.LiteralName(in.Operands[0]), u.LiteralName(in.Operands[1]))
	case in.Op == OpPushLocal || in.Op == OpStoreLocal:
		return fmt.Sprintf("%04d  %s %d@%d", in.Pos, name, in.Operands[0], in.Operands[1])
	case in.Op == OpCreateClosure || in.Op == OpDefineMethod:
		idx := in.Operands[0]
		if idx < len(u.Units) {
			return fmt.Sprintf("%04d  %s %d (%s)", in.Pos, name, idx, u.Units[idx].Name)
		}
	}
	if len(in.Operands) == 0 {
		return fmt.Sprintf("%04d  %s", in.Pos, name)
	}
	parts := make([]string, len(in.Operands))
	for i, v := range in.Operands {
		parts[i] = fmt.Sprint(v)
	}
	return fmt.Sprintf("%04d  %s %s", in.Pos, name, strings.Join(parts, " "))
}

// Disassemble renders a unit and its nested units as text.
func Disassemble(u *Unit) string {
	var sb strings.Builder
	disassemble(&sb, u, "")
	return sb.String()
}

func disassemble(sb *strings.Builder, u *Unit, indent string) {
	fmt.Fprintf(sb, "%s== %s %s (arity %d, locals %d, stack %d) ==\n",
		indent, u.Kind, u.Name, u.Arity, u.NumLocals(), u.MaxStack)
	r := NewReader(u.Code)
	for r.HasMore() {
		in, err := r.Decode()
		if err != nil {
			fmt.Fprintf(sb, "%s%v\n", indent, err)
			return
		}
		sb.WriteString(indent)
		sb.WriteString(DisassembleInstruction(u, in))
		sb.WriteByte('\n')
	}
	for _, h := range u.Handlers {
		kind := "ensure"
		if !h.Ensure() {
			kind = "rescue " + u.LiteralName(h.Class)
		}
		fmt.Fprintf(sb, "%s  [%04d, %04d) -> %04d %s depth %d\n", indent, h.Start, h.End, h.Target, kind, h.Depth)
	}
	for _, child := range u.Units {
		disassemble(sb, child, indent+"  ")
	}
}
