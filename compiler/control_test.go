package compiler

import (
	"errors"
	"testing"

	"github.com/chazu/garnet/bytecode"
)

func lit(c *MethodCompiler)  { c.LoadNil() }
func yes(c *MethodCompiler)  { c.LoadTrue() }
func one(c *MethodCompiler)  { c.CreateNewFixnum(1) }
func two(c *MethodCompiler)  { c.CreateNewFixnum(2) }
func drop(c *MethodCompiler) { c.ConsumeCurrentValue() }

func TestBranchesLeaveOneValue(t *testing.T) {
	tests := []struct {
		name string
		emit BranchCallback
	}{
		{"boolean", func(c *MethodCompiler) { c.LoadTrue(); c.PerformBooleanBranch(one, two) }},
		{"ge", func(c *MethodCompiler) { one(c); two(c); c.PerformGEBranch(one, two) }},
		{"gt", func(c *MethodCompiler) { one(c); two(c); c.PerformGTBranch(one, two) }},
		{"le", func(c *MethodCompiler) { one(c); two(c); c.PerformLEBranch(one, two) }},
		{"lt", func(c *MethodCompiler) { one(c); two(c); c.PerformLTBranch(one, two) }},
		{"nil", func(c *MethodCompiler) { c.LoadNil(); c.IsNil(one, two) }},
		{"null", func(c *MethodCompiler) { c.PushNull(); c.IsNull(one, two) }},
		{"instance", func(c *MethodCompiler) { one(c); c.IsInstanceOf("Integer", one, two) }},
		{"module", func(c *MethodCompiler) { c.BranchIfModule(func(c *MethodCompiler) { c.LoadObject() }, one, two) }},
		{"and", func(c *MethodCompiler) { c.LoadTrue(); c.PerformLogicalAnd(one) }},
		{"or", func(c *MethodCompiler) { c.LoadFalse(); c.PerformLogicalOr(one) }},
		{"method bound", func(c *MethodCompiler) { c.LoadSelf(); c.IsMethodBound("puts", one, two) }},
		{"has block", func(c *MethodCompiler) { c.HasBlock(one, two) }},
		{"captured", func(c *MethodCompiler) { c.IsCaptured(1, one, two) }},
		{"constant branch", func(c *MethodCompiler) {
			c.IsConstantBranch(func(c *MethodCompiler) { c.LoadObject() }, one, two, lit, "Foo")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mc := New(DefaultOptions()).StartRoot(tt.name, nil)
			tt.emit(mc)
			if mc.Depth() != 1 {
				t.Fatalf("Depth() = %d, want 1", mc.Depth())
			}
			u := mc.EndMethod()
			if err := bytecode.Verify(u); err != nil {
				t.Errorf("Verify: %v", err)
			}
		})
	}
}

func TestBranchArmEndingInExit(t *testing.T) {
	compile(t, func(c *MethodCompiler) {
		c.LoadTrue()
		c.PerformBooleanBranch(
			func(c *MethodCompiler) { one(c); c.PerformReturn() },
			two,
		)
	})
}

func TestLoopLayout(t *testing.T) {
	t.Run("while", func(t *testing.T) {
		u := compile(t, func(c *MethodCompiler) {
			c.PerformBooleanLoop(func(c *MethodCompiler) { c.LoadFalse() }, lit, true)
		})
		if got := ops(t, u)[0]; got != bytecode.OpPushFalse {
			t.Errorf("first op = %s, want the condition", got)
		}
	})
	t.Run("do while", func(t *testing.T) {
		u := compile(t, func(c *MethodCompiler) {
			c.PerformBooleanLoop(func(c *MethodCompiler) { c.LoadFalse() }, lit, false)
		})
		if got := ops(t, u)[0]; got != bytecode.OpPushNil {
			t.Errorf("first op = %s, want the body", got)
		}
	})
	t.Run("poll", func(t *testing.T) {
		opts := DefaultOptions()
		opts.PollLoops = true
		u, err := New(opts).CompileRoot("poll", nil, func(c *MethodCompiler) {
			c.PerformBooleanLoop(yes, lit, true)
		})
		if err != nil {
			t.Fatalf("CompileRoot: %v", err)
		}
		if n := count(ops(t, u), bytecode.OpPoll); n != 1 {
			t.Errorf("POLL count = %d, want 1", n)
		}
	})
}

func TestLoopEventsRestoreDepth(t *testing.T) {
	mc := New(DefaultOptions()).StartRoot("events", nil)
	one(mc) // operand beneath the loop
	mc.PerformBooleanLoop(yes, func(c *MethodCompiler) {
		two(c)
		c.LoadTrue()
		c.PerformBooleanBranch(
			func(c *MethodCompiler) {
				one(c)
				c.IssueBreakEvent()
				if c.Depth() != bytecode.Unreachable {
					t.Errorf("Depth() after break = %d, want Unreachable", c.Depth())
				}
			},
			lit,
		)
		drop(c)
		c.LoadTrue()
		c.PerformBooleanBranch(func(c *MethodCompiler) { one(c); c.IssueRedoEvent() }, lit)
		drop(c)
		c.LoadTrue()
		c.PerformBooleanBranch(func(c *MethodCompiler) { one(c); c.IssueNextEvent() }, lit)
		drop(c)
	}, true)
	if mc.Depth() != 2 {
		t.Fatalf("Depth() after loop = %d, want 2", mc.Depth())
	}
	mc.SwapValues()
	drop(mc)
	u := mc.EndMethod()
	if err := bytecode.Verify(u); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if count(ops(t, u), bytecode.OpSLIDE) == 0 {
		t.Error("want SLIDE to drop operands left by the body")
	}
}

func TestReturnThroughProtectInlinesEnsure(t *testing.T) {
	mc := New(DefaultOptions()).StartRoot("protect", nil)
	mc.Protect(
		func(c *MethodCompiler) { one(c); c.PerformReturn() },
		func(c *MethodCompiler) { c.CreateNewSymbol("ensured") },
		ResultValue,
	)
	u := mc.EndMethod()
	if err := bytecode.Verify(u); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	// One copy inlined before RETURN and one in the handler.
	if n := count(ops(t, u), bytecode.OpPushLiteral); n != 2 {
		t.Errorf("ensure copies = %d, want 2", n)
	}
	if len(u.Handlers) != 1 {
		t.Fatalf("handlers = %+v, want one", u.Handlers)
	}
	h := u.Handlers[0]
	if !h.Ensure() || h.Start != 0 || h.End != 2 {
		t.Errorf("handler = %+v, want an ensure covering only PUSH_INT8", h)
	}
}

func TestProtectNormalPath(t *testing.T) {
	u := compile(t, func(c *MethodCompiler) {
		c.Protect(one, func(c *MethodCompiler) { c.CreateNewSymbol("e") }, ResultValue)
	})
	code := ops(t, u)
	if n := count(code, bytecode.OpReraise); n != 1 {
		t.Errorf("RERAISE count = %d, want 1", n)
	}
	if u.Handlers[0].Depth != 0 {
		t.Errorf("handler depth = %d, want 0", u.Handlers[0].Depth)
	}
}

func TestBreakThroughNestedProtect(t *testing.T) {
	u := compile(t, func(c *MethodCompiler) {
		c.PerformBooleanLoop(yes, func(c *MethodCompiler) {
			c.Protect(func(c *MethodCompiler) {
				c.Protect(func(c *MethodCompiler) {
					one(c)
					c.IssueBreakEvent()
				}, func(c *MethodCompiler) { c.CreateNewSymbol("inner") }, ResultValue)
			}, func(c *MethodCompiler) { c.CreateNewSymbol("outer") }, ResultValue)
		}, true)
	})
	// Each ensure is inlined at the break and emitted once in its handler.
	syms := map[string]int{}
	r := bytecode.NewReader(u.Code)
	for r.HasMore() {
		in, _ := r.Decode()
		if in.Op == bytecode.OpPushLiteral {
			syms[u.Literals[in.Operands[0]].Str]++
		}
	}
	if syms["inner"] != 2 || syms["outer"] != 2 {
		t.Errorf("ensure copies = %v, want inner 2 and outer 2", syms)
	}
	for _, h := range u.Handlers {
		for _, other := range u.Handlers {
			if h.Target >= other.Start && h.Target < other.End && h.Target == other.Target {
				t.Errorf("handler %+v covers its own target", h)
			}
		}
	}
}

func TestRescueRecordsClass(t *testing.T) {
	u := compile(t, func(c *MethodCompiler) {
		c.Rescue(one, "ZeroDivisionError", two, ResultValue)
	})
	if len(u.Handlers) != 1 {
		t.Fatalf("handlers = %+v, want one", u.Handlers)
	}
	h := u.Handlers[0]
	if h.Ensure() || u.LiteralName(h.Class) != "ZeroDivisionError" {
		t.Errorf("handler = %+v, want a rescue of ZeroDivisionError", h)
	}
}

func TestClosureEvents(t *testing.T) {
	u := compile(t, func(c *MethodCompiler) {
		c.CreateNewClosure(&StaticScope{Variables: []string{"x"}, RequiredArgs: 1}, 1,
			func(c *MethodCompiler) {
				c.RetrieveLocal("x")
				c.PerformBooleanBranch(
					func(c *MethodCompiler) { one(c); c.IssueBreakEvent() },
					func(c *MethodCompiler) { two(c); c.IssueNextEvent() },
				)
			},
			func(c *MethodCompiler) { c.AssignLocalVariableBlockArg(0, 0) })
	})
	if len(u.Units) != 1 {
		t.Fatalf("children = %d, want 1", len(u.Units))
	}
	child := u.Units[0]
	if child.Kind != bytecode.KindClosure || child.Name != "test{0}" || child.Arity != 1 {
		t.Errorf("child = %s %s arity %d", child.Kind, child.Name, child.Arity)
	}
	code := ops(t, child)
	if count(code, bytecode.OpBreakNonLocal) != 1 || count(code, bytecode.OpReturn) != 1 {
		t.Errorf("closure ops = %v, want one BREAK_NONLOCAL and one RETURN", code)
	}
	if child.Flags&bytecode.FlagSimpleArgs == 0 {
		t.Error("closure with only required args lacks FlagSimpleArgs")
	}
}

func TestLabelFromEnclosingUnit(t *testing.T) {
	_, err := New(DefaultOptions()).CompileRoot("test", nil, func(c *MethodCompiler) {
		outer := c.NewEnding()
		c.CreateNewClosure(nil, 0, func(c *MethodCompiler) {
			c.Go(outer)
		}, nil)
		c.SetEnding(outer)
	})
	if !errors.Is(err, bytecode.ErrUnknownLabel) {
		t.Fatalf("err = %v, want %v", err, bytecode.ErrUnknownLabel)
	}
	var ce *ContractError
	if !errors.As(err, &ce) {
		t.Errorf("err = %T, want *ContractError", err)
	}
}

func TestClosureReturnIsNonLocal(t *testing.T) {
	u := compile(t, func(c *MethodCompiler) {
		c.CreateNewClosure(nil, 0, func(c *MethodCompiler) { one(c); c.PerformReturn() }, nil)
	})
	if n := count(ops(t, u.Units[0]), bytecode.OpReturnNonLocal); n != 1 {
		t.Errorf("RETURN_NONLOCAL count = %d, want 1", n)
	}
}

func TestClosureResolvesOuterVariable(t *testing.T) {
	u := compile(t, func(c *MethodCompiler) {
		one(c)
		c.AssignLocal("total")
		drop(c)
		c.CreateNewClosure(nil, 0, func(c *MethodCompiler) { c.RetrieveLocal("total") }, nil)
	})
	r := bytecode.NewReader(u.Units[0].Code)
	in, err := r.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if in.Op != bytecode.OpPushLocal || in.Operands[0] != 0 || in.Operands[1] != 1 {
		t.Errorf("first closure op = %s %v, want PUSH_LOCAL 0@1", in.Op, in.Operands)
	}
	if len(u.Locals) != 1 || u.Locals[0] != "total" {
		t.Errorf("Locals = %v, want [total]", u.Locals)
	}
}

func TestDefineNewMethodFlags(t *testing.T) {
	tests := []struct {
		name      string
		scope     *StaticScope
		inspector ASTInspector
		want      bytecode.Flags
	}{
		{"plain", &StaticScope{Variables: []string{"a"}, RequiredArgs: 1}, Inspection{}, bytecode.FlagNoHeapScope | bytecode.FlagSimpleArgs},
		{"closure", nil, Inspection{Closure: true}, bytecode.FlagSimpleArgs},
		{"optional", &StaticScope{Variables: []string{"a"}, OptionalArgs: 1}, Inspection{}, bytecode.FlagNoHeapScope},
		{"inspector args", nil, Inspection{ScopeAware: true, NonSimpleArgList: true}, 0},
		{"no inspector", nil, nil, bytecode.FlagSimpleArgs},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := compile(t, func(c *MethodCompiler) {
				c.DefineNewMethod("m", tt.scope, lit, nil, tt.inspector)
			})
			m := u.Units[0]
			if m.Flags != tt.want {
				t.Errorf("Flags = %b, want %b", m.Flags, tt.want)
			}
			if m.Kind != bytecode.KindMethod || m.Name != "m" {
				t.Errorf("child = %s %s", m.Kind, m.Name)
			}
		})
	}
}

func TestMethodDoesNotSeeOuterLocals(t *testing.T) {
	_, err := New(DefaultOptions()).CompileRoot("outer", nil, func(c *MethodCompiler) {
		one(c)
		c.AssignLocal("x")
		drop(c)
		c.DefineNewMethod("m", nil, func(c *MethodCompiler) { c.RetrieveLocal("x") }, nil, nil)
	})
	if err == nil {
		t.Fatal("method body resolved a top-level local")
	}
}

func TestLineNumbers(t *testing.T) {
	u := compile(t, func(c *MethodCompiler) {
		c.LineNumber(SourcePosition{File: "a.rb", Line: 1})
		c.LineNumber(SourcePosition{File: "a.rb", Line: 2}) // same position, replaces
		one(c)
		c.LineNumber(SourcePosition{File: "a.rb", Line: 2})
		drop(c)
		c.LineNumber(SourcePosition{File: "a.rb", Line: 5})
		two(c)
	})
	want := []bytecode.LineEntry{{Pos: 0, Line: 2}, {Pos: 3, Line: 5}}
	if len(u.Lines) != len(want) {
		t.Fatalf("Lines = %v, want %v", u.Lines, want)
	}
	for i := range want {
		if u.Lines[i] != want[i] {
			t.Errorf("Lines[%d] = %v, want %v", i, u.Lines[i], want[i])
		}
	}
	if u.File != "a.rb" {
		t.Errorf("File = %q, want a.rb", u.File)
	}
}

func TestLineNumbersDisabled(t *testing.T) {
	opts := DefaultOptions()
	opts.LineNumbers = false
	u, err := New(opts).CompileRoot("quiet", nil, func(c *MethodCompiler) {
		c.LineNumber(SourcePosition{File: "a.rb", Line: 1})
		one(c)
	})
	if err != nil {
		t.Fatalf("CompileRoot: %v", err)
	}
	if len(u.Lines) != 0 {
		t.Errorf("Lines = %v, want none", u.Lines)
	}
}
