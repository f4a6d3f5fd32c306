package compiler

import (
	"errors"
	"math"
	"math/big"
	"testing"

	"github.com/chazu/garnet/bytecode"
)

func TestAggregateDepths(t *testing.T) {
	pushIndex := func(c *MethodCompiler, _ any, i int) { c.CreateNewFixnum(int64(i)) }
	pair := func(c *MethodCompiler, _ any, i int) { c.CreateNewSymbol("k"); c.CreateNewFixnum(int64(i)) }
	tests := []struct {
		name string
		emit BranchCallback
	}{
		{"object array", func(c *MethodCompiler) { c.CreateObjectArray(nil, 4, pushIndex); c.CreateNewArray(false) }},
		{"object array n", func(c *MethodCompiler) { one(c); two(c); c.CreateObjectArrayN(2) }},
		{"hash", func(c *MethodCompiler) { c.CreateNewHash(nil, pair, 3) }},
		{"range", func(c *MethodCompiler) { one(c); two(c); c.CreateNewRange(true) }},
		{"dynamic string", func(c *MethodCompiler) {
			c.CreateNewDynamicString(func(c *MethodCompiler, _ any, i int) { c.PushString("x"); c.AsString() }, 3)
		}},
		{"regexp", func(c *MethodCompiler) { c.CreateNewRegexp("a+", 1, "") }},
		{"splat", func(c *MethodCompiler) { lit(c); c.SplatCurrentValue(); c.SingleifySplattedValue() }},
		{"masgn", func(c *MethodCompiler) {
			c.CreateObjectArray(nil, 2, pushIndex)
			c.EnsureMultipleAssignableRubyArray(true)
			c.ForEachInValueArray(2, 0, nil, func(c *MethodCompiler, _ any, i int) {
				c.AssignLocal([]string{"a", "b"}[i])
				drop(c)
			})
		}},
		{"concat", func(c *MethodCompiler) {
			c.CreateEmptyArray()
			c.UnwrapRubyArray()
			c.CreateObjectArray(nil, 1, pushIndex)
			c.ConcatArrays()
			c.LoadRubyArraySize()
			drop(c)
		}},
		{"bignum", func(c *MethodCompiler) {
			n, _ := new(big.Int).SetString("99999999999999999999", 10)
			c.CreateNewBignum(n)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mc := New(DefaultOptions()).StartRoot(tt.name, nil)
			tt.emit(mc)
			if mc.Depth() != 1 {
				t.Fatalf("Depth() = %d, want 1", mc.Depth())
			}
			if err := bytecode.Verify(mc.EndMethod()); err != nil {
				t.Errorf("Verify: %v", err)
			}
		})
	}
}

func TestForEachCallbackMustConsume(t *testing.T) {
	_, err := New(DefaultOptions()).CompileRoot("each", nil, func(c *MethodCompiler) {
		c.CreateObjectArray(nil, 1, func(c *MethodCompiler, _ any, _ int) { one(c) })
		c.ForEachInValueArray(1, 0, nil, func(c *MethodCompiler, _ any, _ int) {})
	})
	if !errors.Is(err, ErrCallbackDepth) {
		t.Errorf("error = %v, want ErrCallbackDepth", err)
	}
}

func TestAggregateCountRange(t *testing.T) {
	_, err := New(DefaultOptions()).CompileRoot("huge", nil, func(c *MethodCompiler) {
		c.CreateObjectArray(nil, 70000, func(c *MethodCompiler, _ any, _ int) { one(c) })
	})
	if !errors.Is(err, bytecode.ErrOperandRange) {
		t.Errorf("error = %v, want ErrOperandRange", err)
	}
}

func TestCreateNewFixnumEncoding(t *testing.T) {
	tests := []struct {
		v    int64
		want bytecode.Opcode
	}{
		{0, bytecode.OpPushInt8},
		{-128, bytecode.OpPushInt8},
		{127, bytecode.OpPushInt8},
		{128, bytecode.OpPushLiteral},
		{1 << 40, bytecode.OpPushLiteral},
	}
	for _, tt := range tests {
		u := compile(t, func(c *MethodCompiler) { c.CreateNewFixnum(tt.v) })
		if got := ops(t, u)[0]; got != tt.want {
			t.Errorf("CreateNewFixnum(%d) = %s, want %s", tt.v, got, tt.want)
		}
	}
}

func TestFloatLiteralsKeepSign(t *testing.T) {
	u := compile(t, func(c *MethodCompiler) {
		c.CreateNewFloat(0)
		c.ConsumeCurrentValue()
		c.CreateNewFloat(math.Copysign(0, -1))
	})
	if len(u.Literals) != 2 {
		t.Fatalf("literals = %v, want 0.0 and -0.0", u.Literals)
	}
	if math.Signbit(u.Literals[0].Float) || !math.Signbit(u.Literals[1].Float) {
		t.Errorf("literals = %v, want 0.0 then -0.0", u.Literals)
	}
}
