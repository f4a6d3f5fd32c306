package bytecode

import (
	"strings"
	"testing"
)

func sampleUnit() *Unit {
	b := NewBuilder()
	done := b.NewLabel()
	b.Emit(OpPushSelf)
	b.EmitUint16(OpPushLiteral, 0)
	b.EmitSend(1, 1, CallFunctional)
	b.Emit(OpDUP)
	b.EmitJump(OpJumpFalse, done)
	b.EmitPair(OpPushLocal, 0, 1)
	b.Emit(OpPOP)
	b.Mark(done)
	b.Emit(OpReturn)
	code, labels := b.Finish()
	return &Unit{
		Name:   "sample",
		Kind:   KindMethod,
		Arity:  1,
		Locals: []string{"x"},
		Code:   code,
		Literals: []Literal{
			{Kind: LitString, Str: "hi"},
			{Kind: LitName, Str: "puts"},
			{Kind: LitName, Str: "StandardError"},
		},
		Labels:   labels,
		MaxStack: b.MaxDepth(),
		Handlers: []Handler{{Start: 0, End: 5, Target: labels[done.Index()], Depth: 0, Class: 2}},
		Lines:    []LineEntry{{Pos: 0, Line: 3}, {Pos: 5, Line: 4}},
	}
}

func TestDisassemble(t *testing.T) {
	out := Disassemble(sampleUnit())
	for _, want := range []string{
		"== method sample (arity 1, locals 1, stack 2) ==",
		`PUSH_LITERAL 0 ("hi")`,
		"SEND puts/1 fcall",
		"PUSH_LOCAL 0@1",
		"JUMP_FALSE",
		"rescue StandardError depth 0",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("disassembly missing %q:\n%s", want, out)
		}
	}
}

func TestDecodeRejectsUnknownOpcode(t *testing.T) {
	r := NewReader([]byte{0xFF})
	if _, err := r.Decode(); err == nil {
		t.Error("Decode(0xFF) succeeded, want error")
	}
}

func TestDecodeRejectsTruncatedOperand(t *testing.T) {
	r := NewReader([]byte{byte(OpPushLiteral), 0x01})
	if _, err := r.Decode(); err == nil {
		t.Error("Decode of truncated PUSH_LITERAL succeeded, want error")
	}
}

func TestInstructionEffect(t *testing.T) {
	tests := []struct {
		code []byte
		want int
	}{
		{[]byte{byte(OpSend), 0, 0, 2, byte(CallNormal)}, -2},
		{[]byte{byte(OpSend), 0, 0, 2, byte(CallNormal | CallWithBlock)}, -3},
		{[]byte{byte(OpObjectArray), 3, 0}, -2},
		{[]byte{byte(OpNewHash), 2, 0}, -3},
		{[]byte{byte(OpSLIDE), 4}, -4},
		{[]byte{byte(OpPushNil)}, 1},
	}
	for _, tt := range tests {
		in, err := NewReader(tt.code).Decode()
		if err != nil {
			t.Fatalf("Decode(%v): %v", tt.code, err)
		}
		if got := in.Effect(); got != tt.want {
			t.Errorf("%s Effect() = %d, want %d", in.Op, got, tt.want)
		}
	}
}

func TestLineAt(t *testing.T) {
	u := sampleUnit()
	tests := []struct{ pos, want int }{{0, 3}, {4, 3}, {5, 4}, {9, 4}}
	for _, tt := range tests {
		if got := u.LineAt(tt.pos); got != tt.want {
			t.Errorf("LineAt(%d) = %d, want %d", tt.pos, got, tt.want)
		}
	}
}

func TestCallKindString(t *testing.T) {
	if got := (CallFunctional | CallWithBlock).String(); got != "fcall+block" {
		t.Errorf("String() = %q, want fcall+block", got)
	}
	if got := CallNormal.String(); got != "normal" {
		t.Errorf("String() = %q, want normal", got)
	}
}
