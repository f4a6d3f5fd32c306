package compiler

import (
	"errors"
	"testing"

	"github.com/chazu/garnet/bytecode"
)

func compile(t *testing.T, body BranchCallback) *bytecode.Unit {
	t.Helper()
	u, err := New(DefaultOptions()).CompileRoot("test", nil, body)
	if err != nil {
		t.Fatalf("CompileRoot: %v", err)
	}
	return u
}

// ops decodes a unit's instruction stream into opcodes.
func ops(t *testing.T, u *bytecode.Unit) []bytecode.Opcode {
	t.Helper()
	var out []bytecode.Opcode
	r := bytecode.NewReader(u.Code)
	for r.HasMore() {
		in, err := r.Decode()
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		out = append(out, in.Op)
	}
	return out
}

func count(code []bytecode.Opcode, op bytecode.Opcode) int {
	n := 0
	for _, c := range code {
		if c == op {
			n++
		}
	}
	return n
}

func TestCompileRootReturnsValue(t *testing.T) {
	u := compile(t, func(c *MethodCompiler) {
		c.LoadSelf()
		c.CreateNewFixnum(1)
		c.CreateNewFixnum(1000)
		c.InvokeMethod("+", 1, bytecode.CallNormal)
		c.InvokeFunctional("puts", 1)
	})
	got := ops(t, u)
	want := []bytecode.Opcode{
		bytecode.OpPushSelf, bytecode.OpPushInt8, bytecode.OpPushLiteral,
		bytecode.OpSend, bytecode.OpSend, bytecode.OpReturn,
	}
	if len(got) != len(want) {
		t.Fatalf("ops = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("op %d = %s, want %s", i, got[i], want[i])
		}
	}
	if u.MaxStack != 3 {
		t.Errorf("MaxStack = %d, want 3", u.MaxStack)
	}
	if u.Kind != bytecode.KindTopLevel {
		t.Errorf("Kind = %s, want toplevel", u.Kind)
	}
}

func TestLiteralPoolInterns(t *testing.T) {
	u := compile(t, func(c *MethodCompiler) {
		c.CreateNewSymbol("a")
		c.CreateNewSymbol("a")
		c.ConsumeCurrentValue()
		c.PushString("a")
		c.SwapValues()
		c.ConsumeCurrentValue()
	})
	if len(u.Literals) != 2 {
		t.Errorf("literals = %v, want :a and \"a\"", u.Literals)
	}
}

func TestContractErrors(t *testing.T) {
	tests := []struct {
		name string
		opts func(*Options)
		body BranchCallback
		want error
	}{
		{
			name: "unbound label",
			body: func(c *MethodCompiler) {
				l := c.NewEnding()
				c.PushNull()
				c.IfNull(l)
				c.LoadNil()
			},
			want: bytecode.ErrLabelUnbound,
		},
		{
			name: "label bound twice",
			body: func(c *MethodCompiler) {
				l := c.NewEnding()
				c.SetEnding(l)
				c.SetEnding(l)
				c.LoadNil()
			},
			want: bytecode.ErrLabelRebound,
		},
		{
			name: "arms disagree",
			body: func(c *MethodCompiler) {
				c.LoadTrue()
				c.PerformBooleanBranch(
					func(c *MethodCompiler) { c.LoadNil() },
					func(c *MethodCompiler) { c.LoadNil(); c.LoadNil() },
				)
			},
			want: ErrBranchDepth,
		},
		{
			name: "callback leaves nothing",
			body: func(c *MethodCompiler) {
				c.LoadTrue()
				c.PerformLogicalAnd(func(c *MethodCompiler) {})
			},
			want: ErrCallbackDepth,
		},
		{
			name: "break outside loop",
			body: func(c *MethodCompiler) {
				c.LoadNil()
				c.IssueBreakEvent()
			},
			want: ErrNoLoop,
		},
		{
			name: "next outside loop",
			body: func(c *MethodCompiler) {
				c.LoadNil()
				c.IssueNextEvent()
			},
			want: ErrNoLoop,
		},
		{
			name: "empty constant name",
			body: func(c *MethodCompiler) { c.RetrieveConstant("") },
			want: ErrEmptyName,
		},
		{
			name: "unknown local",
			body: func(c *MethodCompiler) { c.RetrieveLocal("missing") },
			want: ErrUnknownVariable,
		},
		{
			name: "depth beyond chain",
			body: func(c *MethodCompiler) { c.RetrieveLocalVariable(0, 3) },
			want: ErrScopeDepth,
		},
		{
			name: "closures nested too deep",
			opts: func(o *Options) { o.MaxScopeDepth = 2 },
			body: func(c *MethodCompiler) {
				var nest func(c *MethodCompiler, n int)
				nest = func(c *MethodCompiler, n int) {
					if n == 0 {
						c.LoadNil()
						return
					}
					c.CreateNewClosure(nil, 0, func(c *MethodCompiler) { nest(c, n-1) }, nil)
				}
				nest(c, 3)
			},
			want: ErrScopeDepth,
		},
		{
			name: "unit leaves two values",
			body: func(c *MethodCompiler) { c.LoadNil(); c.LoadNil() },
			want: ErrUnitDepth,
		},
		{
			name: "missing loop body",
			body: func(c *MethodCompiler) {
				c.PerformBooleanLoop(func(c *MethodCompiler) { c.LoadTrue() }, nil, true)
			},
			want: ErrNilCallback,
		},
		{
			name: "stack underflow",
			body: func(c *MethodCompiler) { c.ConsumeCurrentValue(); c.LoadNil() },
			want: bytecode.ErrStackUnderflow,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			if tt.opts != nil {
				tt.opts(&opts)
			}
			_, err := New(opts).CompileRoot("bad", nil, tt.body)
			if err == nil {
				t.Fatal("CompileRoot succeeded, want error")
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
			var ce *ContractError
			if !errors.As(err, &ce) {
				t.Errorf("error = %T, want a *ContractError in the chain", err)
			}
		})
	}
}

func TestStartRootPanicsWithContractError(t *testing.T) {
	mc := New(DefaultOptions()).StartRoot("raw", nil)
	defer func() {
		ce, ok := recover().(*ContractError)
		if !ok {
			t.Fatal("want *ContractError panic")
		}
		if ce.Op != "IssueRedoEvent" || ce.Unit != "raw" {
			t.Errorf("ContractError = %+v", ce)
		}
	}()
	mc.LoadNil()
	mc.IssueRedoEvent()
}

func TestEndMethodTwice(t *testing.T) {
	mc := New(DefaultOptions()).StartRoot("twice", nil)
	mc.LoadNil()
	mc.EndMethod()
	defer func() {
		ce, ok := recover().(*ContractError)
		if !ok || !errors.Is(ce, ErrFinished) {
			t.Errorf("recover() = %v, want ErrFinished", ce)
		}
	}()
	mc.EndMethod()
}

func TestNewFillsDefaults(t *testing.T) {
	opts := New(Options{}).Options()
	if opts.MaxScopeDepth != DefaultMaxScopeDepth {
		t.Errorf("MaxScopeDepth = %d, want %d", opts.MaxScopeDepth, DefaultMaxScopeDepth)
	}
	if opts.Parallelism < 1 {
		t.Errorf("Parallelism = %d, want at least 1", opts.Parallelism)
	}
}
