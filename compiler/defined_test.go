package compiler

import (
	"errors"
	"testing"

	"github.com/chazu/garnet/bytecode"
)

func TestDefinedInstallsHandler(t *testing.T) {
	u := compile(t, func(c *MethodCompiler) {
		c.InDefined()
		c.LoadSelf()
		c.InvokeFunctional("frobnicate", 0)
		c.OutDefined()
	})
	if len(u.Handlers) != 1 {
		t.Fatalf("handlers = %+v, want one", u.Handlers)
	}
	h := u.Handlers[0]
	if h.Ensure() || u.LiteralName(h.Class) != "Exception" {
		t.Errorf("handler = %+v, want a rescue of Exception", h)
	}
	if h.Depth != 0 {
		t.Errorf("handler depth = %d, want 0", h.Depth)
	}
	code := ops(t, u)
	if count(code, bytecode.OpInDefined) != 1 || count(code, bytecode.OpOutDefined) != 1 {
		t.Errorf("ops = %v, want one IN_DEFINED and one OUT_DEFINED", code)
	}
}

func TestDefinedUnreachableOperandLeavesNil(t *testing.T) {
	u := compile(t, func(c *MethodCompiler) {
		c.InDefined()
		one(c)
		c.PerformReturn()
		c.OutDefined()
	})
	if got := count(ops(t, u), bytecode.OpPushNil); got != 1 {
		t.Errorf("PUSH_NIL count = %d, want 1", got)
	}
}

func TestDefinedNesting(t *testing.T) {
	tests := []struct {
		name string
		body BranchCallback
	}{
		{"close without open", func(c *MethodCompiler) {
			one(c)
			c.OutDefined()
		}},
		{"left open", func(c *MethodCompiler) {
			c.InDefined()
			one(c)
		}},
		{"closed inside rescue", func(c *MethodCompiler) {
			c.InDefined()
			c.Rescue(func(c *MethodCompiler) {
				one(c)
				c.OutDefined()
			}, "StandardError", two, ResultValue)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(DefaultOptions()).CompileRoot("test", nil, tt.body)
			if !errors.Is(err, ErrDefinedNesting) {
				t.Errorf("error = %v, want ErrDefinedNesting", err)
			}
		})
	}
}
