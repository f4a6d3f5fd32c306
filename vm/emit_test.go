package vm

import (
	"math"
	"testing"

	"github.com/chazu/garnet/compiler"
)

func sym(name string) compiler.BranchCallback {
	return func(c *compiler.MethodCompiler) { c.CreateNewSymbol(name) }
}

func float(f float64) compiler.BranchCallback {
	return func(c *compiler.MethodCompiler) { c.CreateNewFloat(f) }
}

// items pushes element i with the i-th callback.
func items(cbs ...compiler.BranchCallback) compiler.ArrayCallback {
	return func(c *compiler.MethodCompiler, _ any, i int) { cbs[i](c) }
}

// array builds an array object from one callback per element.
func array(cbs ...compiler.BranchCallback) compiler.BranchCallback {
	return func(c *compiler.MethodCompiler) {
		c.CreateObjectArray(nil, len(cbs), items(cbs...))
		c.CreateNewArray(false)
	}
}

type emitCase struct {
	name string
	body compiler.BranchCallback
	want string
}

func runEmitCases(t *testing.T, tests []emitCase) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Inspect(mustRun(t, tt.body)); got != tt.want {
				t.Errorf("result = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestLogicalOperators(t *testing.T) {
	and := func(left compiler.BranchCallback) compiler.BranchCallback {
		return func(c *compiler.MethodCompiler) { left(c); c.PerformLogicalAnd(fixnum(1)) }
	}
	or := func(left compiler.BranchCallback) compiler.BranchCallback {
		return func(c *compiler.MethodCompiler) { left(c); c.PerformLogicalOr(fixnum(1)) }
	}
	no := func(c *compiler.MethodCompiler) { c.LoadFalse() }
	none := func(c *compiler.MethodCompiler) { c.LoadNil() }
	runEmitCases(t, []emitCase{
		{"and keeps false", and(no), "false"},
		{"and keeps nil", and(none), "nil"},
		{"and replaces truthy", and(fixnum(2)), "1"},
		{"or keeps truthy", or(fixnum(2)), "2"},
		{"or replaces nil", or(none), "1"},
		{"or replaces false", or(no), "1"},
	})
}

type branchFunc func(c *compiler.MethodCompiler, trueBranch, falseBranch compiler.BranchCallback)

func compareBranch(branch branchFunc, a, b compiler.BranchCallback) compiler.BranchCallback {
	return func(c *compiler.MethodCompiler) {
		a(c)
		b(c)
		branch(c, sym("yes"), sym("no"))
	}
}

func TestComparisonBranches(t *testing.T) {
	ge := (*compiler.MethodCompiler).PerformGEBranch
	gt := (*compiler.MethodCompiler).PerformGTBranch
	le := (*compiler.MethodCompiler).PerformLEBranch
	lt := (*compiler.MethodCompiler).PerformLTBranch
	nan := float(math.NaN())
	runEmitCases(t, []emitCase{
		{"2 >= 1", compareBranch(ge, fixnum(2), fixnum(1)), ":yes"},
		{"1 >= 1", compareBranch(ge, fixnum(1), fixnum(1)), ":yes"},
		{"1 >= 2", compareBranch(ge, fixnum(1), fixnum(2)), ":no"},
		{"1 > 1", compareBranch(gt, fixnum(1), fixnum(1)), ":no"},
		{"2 > 1", compareBranch(gt, fixnum(2), fixnum(1)), ":yes"},
		{"1 <= 2", compareBranch(le, fixnum(1), fixnum(2)), ":yes"},
		{"1 <= 1", compareBranch(le, fixnum(1), fixnum(1)), ":yes"},
		{"2 <= 1", compareBranch(le, fixnum(2), fixnum(1)), ":no"},
		{"1 < 1", compareBranch(lt, fixnum(1), fixnum(1)), ":no"},
		{"1 < 1.5", compareBranch(lt, fixnum(1), float(1.5)), ":yes"},
		{"NaN >= 1.0", compareBranch(ge, nan, float(1)), ":no"},
		{"NaN <= 1.0", compareBranch(le, nan, float(1)), ":no"},
		{"1 > NaN", compareBranch(gt, fixnum(1), nan), ":no"},
		{"1 < NaN", compareBranch(lt, fixnum(1), nan), ":no"},
		{"NaN >= NaN", compareBranch(ge, nan, nan), ":no"},
		{"NaN >= 1 as a send", func(c *compiler.MethodCompiler) { send(c, nan, ">=", fixnum(1)) }, "false"},
		{"NaN <=> 1", func(c *compiler.MethodCompiler) { send(c, nan, "<=>", fixnum(1)) }, "nil"},
	})
}

func TestNegativeZeroLiteral(t *testing.T) {
	v := mustRun(t, func(c *compiler.MethodCompiler) {
		c.CreateNewFloat(0)
		c.ConsumeCurrentValue()
		send(c, float(1), "/", float(math.Copysign(0, -1)))
	})
	if f, ok := v.(float64); !ok || !math.IsInf(f, -1) {
		t.Errorf("1.0 / -0.0 = %v, want -Inf", v)
	}
}

// destructure assigns the value built by rhs to names through a multiple
// assignment and returns the names as an array.
func destructure(rhs compiler.BranchCallback, hasHead bool, names ...string) compiler.BranchCallback {
	return func(c *compiler.MethodCompiler) {
		rhs(c)
		c.EnsureMultipleAssignableRubyArray(hasHead)
		c.ForEachInValueArray(len(names), 0, names, func(c *compiler.MethodCompiler, source any, i int) {
			c.AssignLocal(source.([]string)[i])
			c.ConsumeCurrentValue()
		})
		c.ConsumeCurrentValue()
		vars := make([]compiler.BranchCallback, len(names))
		for i, n := range names {
			vars[i] = local(n)
		}
		array(vars...)(c)
	}
}

func TestAggregates(t *testing.T) {
	pair := array(fixnum(1), fixnum(2))
	runEmitCases(t, []emitCase{
		{"masgn unpacks an array", destructure(pair, true, "a", "b"), "[1, 2]"},
		{"masgn pads with nil", destructure(pair, true, "a", "b", "c"), "[1, 2, nil]"},
		{"masgn without head wraps", destructure(pair, false, "a"), "[[1, 2]]"},
		{"masgn of a scalar", destructure(fixnum(9), true, "a", "b"), "[9, nil]"},
		{"each in value array from offset", func(c *compiler.MethodCompiler) {
			c.CreateObjectArray(nil, 3, items(fixnum(4), fixnum(5), fixnum(6)))
			c.ForEachInValueArray(2, 1, nil, func(c *compiler.MethodCompiler, _ any, i int) {
				c.AssignLocal([]string{"", "x", "y"}[i])
				c.ConsumeCurrentValue()
			})
			c.ConsumeCurrentValue()
			array(local("y"), local("x"))(c)
		}, "[6, 5]"},
		{"hash literal", func(c *compiler.MethodCompiler) {
			c.CreateNewHash(nil, func(c *compiler.MethodCompiler, _ any, i int) {
				c.CreateNewSymbol([]string{"a", "b"}[i])
				c.CreateNewFixnum(int64(i + 1))
			}, 2)
		}, "{:a=>1, :b=>2}"},
		{"hash lookup", func(c *compiler.MethodCompiler) {
			c.CreateNewHash(nil, func(c *compiler.MethodCompiler, _ any, _ int) {
				c.CreateNewSymbol("k")
				c.CreateNewFixnum(7)
			}, 1)
			c.AssignLocal("h")
			c.ConsumeCurrentValue()
			send(c, local("h"), "[]", sym("k"))
		}, "7"},
		{"later key wins", func(c *compiler.MethodCompiler) {
			c.CreateNewHash(nil, func(c *compiler.MethodCompiler, _ any, i int) {
				c.CreateNewSymbol("k")
				c.CreateNewFixnum(int64(i))
			}, 2)
		}, "{:k=>1}"},
		{"singleify empty value array", func(c *compiler.MethodCompiler) {
			c.CreateObjectArrayN(0)
			c.SingleifySplattedValue()
		}, "nil"},
		{"singleify one element", func(c *compiler.MethodCompiler) {
			c.CreateNewFixnum(9)
			c.CreateObjectArrayN(1)
			c.SingleifySplattedValue()
		}, "9"},
		{"singleify many elements", func(c *compiler.MethodCompiler) {
			c.CreateObjectArray(nil, 2, items(fixnum(3), fixnum(4)))
			c.SingleifySplattedValue()
		}, "3"},
	})
}

func TestDefinedQueries(t *testing.T) {
	bound := func(recv compiler.BranchCallback, name string) compiler.BranchCallback {
		return func(c *compiler.MethodCompiler) {
			recv(c)
			c.IsMethodBound(name, sym("yes"), sym("no"))
		}
	}
	constBranch := func(name string) compiler.BranchCallback {
		return func(c *compiler.MethodCompiler) {
			c.IsConstantBranch(func(c *compiler.MethodCompiler) { c.LoadObject() },
				sym("constant"), sym("method"), sym("none"), name)
		}
	}
	visibility := func(name string) compiler.BranchCallback {
		return func(c *compiler.MethodCompiler) {
			c.LoadObject()
			c.GetVisibilityFor(name)
		}
	}
	// privateJump leaves :hidden when name is private on Object, :open
	// otherwise. The private path consumes the extra operand beneath.
	privateJump := func(name string) compiler.BranchCallback {
		return func(c *compiler.MethodCompiler) {
			c.CreateNewFixnum(5)
			visibility(name)(c)
			hidden := c.NewEnding()
			end := c.NewEnding()
			c.IsPrivate(hidden, 1)
			c.ConsumeCurrentValue()
			c.CreateNewSymbol("open")
			c.Go(end)
			c.SetEnding(hidden)
			c.CreateNewSymbol("hidden")
			c.SetEnding(end)
		}
	}
	runEmitCases(t, []emitCase{
		{"public method is bound", bound(fixnum(1), "+"), ":yes"},
		{"missing method is not bound", bound(fixnum(1), "frobnicate"), ":no"},
		{"private method is not bound", bound(func(c *compiler.MethodCompiler) { c.LoadSelf() }, "puts"), ":no"},
		{"constant of a module", constBranch("Integer"), ":constant"},
		{"method of a module", constBranch("new"), ":method"},
		{"neither", constBranch("zzz"), ":none"},
		{"private visibility", visibility("puts"), ":private"},
		{"public visibility", visibility("=="), ":public"},
		{"unknown visibility", visibility("zzz"), "nil"},
		{"IsPrivate jumps for private", privateJump("puts"), ":hidden"},
		{"IsPrivate falls through for public", privateJump("=="), ":open"},
	})
}

func TestDefinedSuppressesErrors(t *testing.T) {
	defined := func(operand compiler.BranchCallback) compiler.BranchCallback {
		return func(c *compiler.MethodCompiler) {
			c.InDefined()
			operand(c)
			c.OutDefined()
		}
	}
	runEmitCases(t, []emitCase{
		{"value passes through", defined(fixnum(3)), "3"},
		{"native raise becomes nil", defined(func(c *compiler.MethodCompiler) {
			send(c, fixnum(1), "/", fixnum(0))
		}), "nil"},
		{"missing method becomes nil", defined(func(c *compiler.MethodCompiler) {
			send(c, fixnum(1), "frobnicate")
		}), "nil"},
		{"explicit raise becomes nil", defined(raise("boom")), "nil"},
		{"execution continues", func(c *compiler.MethodCompiler) {
			defined(raise("boom"))(c)
			c.ConsumeCurrentValue()
			c.CreateNewFixnum(4)
		}, "4"},
	})

	v, in, err := run(t, func(c *compiler.MethodCompiler) {
		defined(raise("boom"))(c)
		c.ConsumeCurrentValue()
		c.RetrieveGlobalVariable("$!")
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if v != nil {
		t.Errorf("$! after a suppressed raise = %s, want nil", Inspect(v))
	}
	if len(in.rescued) != 0 {
		t.Errorf("saved $! values after run = %d, want 0", len(in.rescued))
	}
}
