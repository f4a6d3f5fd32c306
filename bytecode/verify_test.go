package bytecode

import (
	"strings"
	"testing"
)

func TestVerifyAcceptsBuilderOutput(t *testing.T) {
	u := sampleUnit()
	if err := Verify(u); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifyRejects(t *testing.T) {
	tests := []struct {
		name string
		unit *Unit
		want string
	}{
		{
			name: "falls off the end",
			unit: &Unit{Name: "u", Code: []byte{byte(OpPushNil)}},
			want: "falls off the end",
		},
		{
			name: "underflow",
			unit: &Unit{Name: "u", Code: []byte{byte(OpPOP), byte(OpReturn)}},
			want: "underflow",
		},
		{
			name: "jump into operand",
			unit: &Unit{Name: "u", Code: []byte{
				byte(OpPushLiteral), 0, 0,
				byte(OpJump), 0xFB, 0xFF, // -5 lands on byte 1
			}},
			want: "not an instruction",
		},
		{
			name: "depth disagreement",
			unit: &Unit{Name: "u", Code: []byte{
				byte(OpPushTrue),
				byte(OpJumpTrue), 1, 0, // to RETURN at depth 0
				byte(OpPushNil),
				byte(OpReturn),
			}},
			want: "depth at",
		},
		{
			name: "bad handler",
			unit: &Unit{Name: "u", Code: []byte{byte(OpPushNil), byte(OpReturn)},
				Handlers: []Handler{{Start: 0, End: 9, Target: 0}}},
			want: "bad handler",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Verify(tt.unit)
			if err == nil {
				t.Fatal("Verify succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestVerifyNestedUnits(t *testing.T) {
	parent := sampleUnit()
	parent.Units = []*Unit{{Name: "child", Code: []byte{byte(OpPOP)}}}
	err := Verify(parent)
	if err == nil || !strings.Contains(err.Error(), "child") {
		t.Errorf("Verify = %v, want an error naming the child unit", err)
	}
}
