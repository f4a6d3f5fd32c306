package vm

import (
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strings"

	"github.com/chazu/garnet/bytecode"
)

// ---------------------------------------------------------------------------
// Core classes
// ---------------------------------------------------------------------------

func (in *Interpreter) bootstrap() {
	in.Object = NewModule("Object", true, nil)
	in.Object.Consts["Object"] = in.Object
	class := func(name string, super *Module) *Module {
		m := NewModule(name, true, super)
		in.Object.Consts[name] = m
		return m
	}
	in.ModuleClass = class("Module", in.Object)
	in.ClassClass = class("Class", in.ModuleClass)
	in.NilClass = class("NilClass", in.Object)
	in.TrueClass = class("TrueClass", in.Object)
	in.FalseClass = class("FalseClass", in.Object)
	numeric := class("Numeric", in.Object)
	in.Integer = class("Integer", numeric)
	in.Float = class("Float", numeric)
	in.StringClass = class("String", in.Object)
	in.SymbolClass = class("Symbol", in.Object)
	in.ArrayClass = class("Array", in.Object)
	in.HashClass = class("Hash", in.Object)
	in.RangeClass = class("Range", in.Object)
	in.RegexpClass = class("Regexp", in.Object)
	in.MatchDataClass = class("MatchData", in.Object)
	in.Proc = class("Proc", in.Object)

	in.Exception = class("Exception", in.Object)
	in.StandardError = class("StandardError", in.Exception)
	in.RuntimeError = class("RuntimeError", in.StandardError)
	in.ArgumentError = class("ArgumentError", in.StandardError)
	in.TypeError = class("TypeError", in.StandardError)
	in.NameError = class("NameError", in.StandardError)
	in.NoMethodError = class("NoMethodError", in.NameError)
	in.ZeroDivisionError = class("ZeroDivisionError", in.StandardError)
	in.LocalJumpError = class("LocalJumpError", in.StandardError)
	in.Interrupt = class("Interrupt", in.Exception)
	in.SystemStackError = class("SystemStackError", in.Exception)

	in.Main = &Object{Class: in.Object, Ivars: make(map[string]Value)}

	in.defineKernel()
	in.defineNumeric(numeric)
	in.defineString()
	in.defineCollections()
	in.defineRange()
	in.defineModules()
	in.defineException()
}

// ClassOf returns the class of a value.
func (in *Interpreter) ClassOf(v Value) *Module {
	switch x := v.(type) {
	case nil:
		return in.NilClass
	case bool:
		if x {
			return in.TrueClass
		}
		return in.FalseClass
	case int64, *big.Int:
		return in.Integer
	case float64:
		return in.Float
	case *String:
		return in.StringClass
	case Symbol:
		return in.SymbolClass
	case *Array, *ValueArray:
		return in.ArrayClass
	case *Hash:
		return in.HashClass
	case *Range:
		return in.RangeClass
	case *Regexp:
		return in.RegexpClass
	case *MatchData:
		return in.MatchDataClass
	case *Closure:
		return in.Proc
	case *Module:
		if x.IsClass {
			return in.ClassClass
		}
		return in.ModuleClass
	case *Object:
		return x.Class
	}
	return in.Object
}

func (in *Interpreter) argc(args []Value, min, max int) {
	if len(args) < min || (max >= 0 && len(args) > max) {
		in.Raise(in.ArgumentError, "wrong number of arguments (given %d, expected %d)", len(args), min)
	}
}

func (in *Interpreter) needBlock(blk *Closure) {
	if blk == nil {
		in.Raise(in.LocalJumpError, "no block given (yield)")
	}
}

func (in *Interpreter) intArg(v Value) int {
	i, ok := v.(int64)
	if !ok || i < math.MinInt32 || i > math.MaxInt32 {
		in.Raise(in.TypeError, "no implicit conversion of %s into Integer", in.ClassOf(v).Name)
	}
	return int(i)
}

// ---------------------------------------------------------------------------
// Kernel
// ---------------------------------------------------------------------------

func (in *Interpreter) defineKernel() {
	o := in.Object
	o.Define("==", func(in *Interpreter, self Value, args []Value, _ *Closure) Value {
		in.argc(args, 1, 1)
		return Equal(self, args[0])
	})
	o.Define("!=", func(in *Interpreter, self Value, args []Value, _ *Closure) Value {
		in.argc(args, 1, 1)
		return !Truthy(in.Send(self, "==", args[0]))
	})
	o.Define("equal?", func(in *Interpreter, self Value, args []Value, _ *Closure) Value {
		in.argc(args, 1, 1)
		return self == args[0]
	})
	o.Define("!", func(in *Interpreter, self Value, _ []Value, _ *Closure) Value {
		return !Truthy(self)
	})
	o.Define("class", func(in *Interpreter, self Value, _ []Value, _ *Closure) Value {
		return in.ClassOf(self)
	})
	kindOf := func(in *Interpreter, self Value, args []Value, _ *Closure) Value {
		in.argc(args, 1, 1)
		return in.ClassOf(self).IsA(in.module(args[0]))
	}
	o.Define("kind_of?", kindOf)
	o.Define("is_a?", kindOf)
	o.Define("respond_to?", func(in *Interpreter, self Value, args []Value, _ *Closure) Value {
		in.argc(args, 1, 1)
		m := in.ClassOf(self).Lookup(ToS(args[0]))
		return m != nil && m.Visibility == Public
	})
	o.Define("nil?", func(in *Interpreter, self Value, _ []Value, _ *Closure) Value {
		return self == nil
	})
	o.Define("to_s", func(in *Interpreter, self Value, _ []Value, _ *Closure) Value {
		return NewString(ToS(self))
	})
	o.Define("inspect", func(in *Interpreter, self Value, _ []Value, _ *Closure) Value {
		return NewString(Inspect(self))
	})
	o.Define("instance_variable_get", func(in *Interpreter, self Value, args []Value, _ *Closure) Value {
		in.argc(args, 1, 1)
		v, _ := in.ivar(self, ToS(args[0]))
		return v
	})
	o.DefinePrivate("puts", func(in *Interpreter, _ Value, args []Value, _ *Closure) Value {
		for _, a := range args {
			fmt.Fprintln(in.Out, in.toS(a).String())
		}
		if len(args) == 0 {
			fmt.Fprintln(in.Out)
		}
		return nil
	})
	o.DefinePrivate("p", func(in *Interpreter, _ Value, args []Value, _ *Closure) Value {
		for _, a := range args {
			fmt.Fprintln(in.Out, Inspect(a))
		}
		if len(args) == 1 {
			return args[0]
		}
		return nil
	})
	o.DefinePrivate("raise", func(in *Interpreter, _ Value, args []Value, _ *Closure) Value {
		in.argc(args, 0, 2)
		switch len(args) {
		case 0:
			if cur, ok := in.Globals["$!"]; ok && cur != nil {
				in.RaiseValue(cur)
			}
			in.Raise(in.RuntimeError, "unhandled exception")
		case 1:
			switch x := args[0].(type) {
			case *String:
				in.Raise(in.RuntimeError, "%s", x)
			case *Module:
				in.RaiseValue(in.Send(x, "new"))
			}
			in.RaiseValue(args[0])
		}
		in.RaiseValue(in.Send(in.module(args[0]), "new", args[1]))
		return nil
	})
	o.DefinePrivate("loop", func(in *Interpreter, _ Value, _ []Value, blk *Closure) Value {
		in.needBlock(blk)
		for {
			if err := in.ctx.Err(); err != nil {
				in.Raise(in.Interrupt, "%v", err)
			}
			in.CallClosure(blk)
		}
	})
	proc := func(in *Interpreter, _ Value, _ []Value, blk *Closure) Value {
		in.needBlock(blk)
		return blk
	}
	o.DefinePrivate("proc", proc)
	o.DefinePrivate("lambda", proc)
}

// ---------------------------------------------------------------------------
// Numbers
// ---------------------------------------------------------------------------

func asFloat(v Value) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	case *big.Int:
		f, _ := new(big.Float).SetInt(x).Float64()
		return f, true
	}
	return 0, false
}

// arith applies + - * / % with integer promotion to bignums and floor
// division.
func (in *Interpreter) arith(op string, a, b Value) Value {
	_, aFloat := a.(float64)
	_, bFloat := b.(float64)
	if aFloat || bFloat {
		x, ok1 := asFloat(a)
		y, ok2 := asFloat(b)
		if !ok1 || !ok2 {
			in.Raise(in.TypeError, "%s can't be coerced into Float", in.ClassOf(b).Name)
		}
		switch op {
		case "+":
			return x + y
		case "-":
			return x - y
		case "*":
			return x * y
		case "/":
			return x / y
		}
		return x - y*math.Floor(x/y)
	}
	x, ok1 := toBig(a)
	y, ok2 := toBig(b)
	if !ok1 || !ok2 {
		in.Raise(in.TypeError, "%s can't be coerced into Integer", in.ClassOf(b).Name)
	}
	r := new(big.Int)
	switch op {
	case "+":
		r.Add(x, y)
	case "-":
		r.Sub(x, y)
	case "*":
		r.Mul(x, y)
	default:
		if y.Sign() == 0 {
			in.Raise(in.ZeroDivisionError, "divided by 0")
		}
		q, m := new(big.Int).QuoRem(x, y, new(big.Int))
		if m.Sign() != 0 && m.Sign() != y.Sign() {
			q.Sub(q, big.NewInt(1))
			m.Add(m, y)
		}
		if op == "/" {
			r = q
		} else {
			r = m
		}
	}
	return normInt(r)
}

func (in *Interpreter) defineNumeric(numeric *Module) {
	for _, op := range []string{"+", "-", "*", "/", "%"} {
		numeric.Define(op, func(in *Interpreter, self Value, args []Value, _ *Closure) Value {
			in.argc(args, 1, 1)
			return in.arith(op, self, args[0])
		})
	}
	for _, op := range []string{"<", ">", "<=", ">=", "<=>"} {
		numeric.Define(op, func(in *Interpreter, self Value, args []Value, _ *Closure) Value {
			in.argc(args, 1, 1)
			c, ok := numCompare(self, args[0])
			if !ok {
				if op == "<=>" {
					return nil
				}
				in.Raise(in.ArgumentError, "comparison of %s with %s failed", in.ClassOf(self).Name, Inspect(args[0]))
			}
			if c == unordered {
				if op == "<=>" {
					return nil
				}
				return false
			}
			switch op {
			case "<":
				return c < 0
			case ">":
				return c > 0
			case "<=":
				return c <= 0
			case ">=":
				return c >= 0
			}
			return int64(c)
		})
	}
	numeric.Define("-@", func(in *Interpreter, self Value, _ []Value, _ *Closure) Value {
		return in.arith("-", int64(0), self)
	})
	numeric.Define("to_f", func(in *Interpreter, self Value, _ []Value, _ *Closure) Value {
		f, _ := asFloat(self)
		return f
	})
	in.Integer.Define("succ", func(in *Interpreter, self Value, _ []Value, _ *Closure) Value {
		return in.arith("+", self, int64(1))
	})
	in.Integer.Define("times", func(in *Interpreter, self Value, _ []Value, blk *Closure) Value {
		in.needBlock(blk)
		n, _ := self.(int64)
		for i := int64(0); i < n; i++ {
			in.CallClosure(blk, i)
		}
		return self
	})
	in.Integer.Define("upto", func(in *Interpreter, self Value, args []Value, blk *Closure) Value {
		in.argc(args, 1, 1)
		in.needBlock(blk)
		for i := self; Truthy(in.Send(i, "<=", args[0])); i = in.arith("+", i, int64(1)) {
			in.CallClosure(blk, i)
		}
		return self
	})
}

// ---------------------------------------------------------------------------
// Strings, symbols and regexps
// ---------------------------------------------------------------------------

func (in *Interpreter) defineString() {
	s := in.StringClass
	str := func(v Value) *String {
		x, ok := v.(*String)
		if !ok {
			in.Raise(in.TypeError, "no implicit conversion of %s into String", in.ClassOf(v).Name)
		}
		return x
	}
	s.Define("+", func(in *Interpreter, self Value, args []Value, _ *Closure) Value {
		in.argc(args, 1, 1)
		return NewString(str(self).String() + str(args[0]).String())
	})
	s.Define("<<", func(in *Interpreter, self Value, args []Value, _ *Closure) Value {
		in.argc(args, 1, 1)
		x := str(self)
		if x.Frozen {
			in.Raise(in.RuntimeError, "can't modify frozen String: %s", Inspect(x))
		}
		x.B = append(x.B, in.toS(args[0]).B...)
		return x
	})
	size := func(in *Interpreter, self Value, _ []Value, _ *Closure) Value {
		return int64(len([]rune(str(self).String())))
	}
	s.Define("size", size)
	s.Define("length", size)
	s.Define("to_s", func(in *Interpreter, self Value, _ []Value, _ *Closure) Value { return self })
	s.Define("to_sym", func(in *Interpreter, self Value, _ []Value, _ *Closure) Value {
		return Symbol(str(self).String())
	})
	s.Define("upcase", func(in *Interpreter, self Value, _ []Value, _ *Closure) Value {
		return NewString(strings.ToUpper(str(self).String()))
	})
	s.Define("frozen?", func(in *Interpreter, self Value, _ []Value, _ *Closure) Value {
		return str(self).Frozen
	})
	s.Define("=~", func(in *Interpreter, self Value, args []Value, _ *Closure) Value {
		in.argc(args, 1, 1)
		return in.match(args[0], self)
	})

	in.SymbolClass.Define("to_s", func(in *Interpreter, self Value, _ []Value, _ *Closure) Value {
		return NewString(string(self.(Symbol)))
	})
	in.SymbolClass.Define("to_sym", func(in *Interpreter, self Value, _ []Value, _ *Closure) Value { return self })

	re := in.RegexpClass
	matchOp := func(in *Interpreter, self Value, args []Value, _ *Closure) Value {
		in.argc(args, 1, 1)
		return in.match(self, args[0])
	}
	re.Define("=~", matchOp)
	re.Define("===", func(in *Interpreter, self Value, args []Value, blk *Closure) Value {
		return matchOp(in, self, args, blk) != nil
	})
	re.Define("match", func(in *Interpreter, self Value, args []Value, blk *Closure) Value {
		if matchOp(in, self, args, blk) == nil {
			return nil
		}
		return in.backref
	})
	re.Define("source", func(in *Interpreter, self Value, _ []Value, _ *Closure) Value {
		return NewString(self.(*Regexp).Source)
	})
	in.MatchDataClass.Define("[]", func(in *Interpreter, self Value, args []Value, _ *Closure) Value {
		in.argc(args, 1, 1)
		return self.(*MatchData).Group(in.intArg(args[0]))
	})
}

const (
	regexpIgnoreCase = 1
	regexpExtended   = 2
	regexpMultiline  = 4
)

func (in *Interpreter) newRegexp(l bytecode.Literal) *Regexp {
	key := fmt.Sprintf("%d/%s", l.Int, l.Str)
	re, ok := in.regexps[key]
	if !ok {
		var flags string
		if l.Int&regexpIgnoreCase != 0 {
			flags += "i"
		}
		if l.Int&regexpMultiline != 0 {
			flags += "s"
		}
		src := l.Str
		if flags != "" {
			src = "(?" + flags + ")" + src
		}
		var err error
		re, err = regexp.Compile(src)
		if err != nil {
			in.Raise(in.ArgumentError, "invalid regexp /%s/: %v", l.Str, err)
		}
		in.regexps[key] = re
	}
	return &Regexp{Source: l.Str, Options: int(l.Int), re: re}
}

// match runs re =~ v, updating $~. Returns the match offset or nil.
func (in *Interpreter) match(re, v Value) Value {
	r, ok := re.(*Regexp)
	if !ok {
		return in.Send(re, "=~", v)
	}
	s, ok := v.(*String)
	if !ok {
		in.backref = nil
		return nil
	}
	loc := r.re.FindStringSubmatchIndex(s.String())
	if loc == nil {
		in.backref = nil
		return nil
	}
	in.backref = &MatchData{Subject: s.String(), Groups: loc}
	return int64(loc[0])
}

func (in *Interpreter) backrefMethod(name string) Value {
	m := in.backref
	if m == nil {
		return nil
	}
	switch name {
	case "$&":
		return m.Group(0)
	case "$`":
		return NewString(m.Subject[:m.Groups[0]])
	case "$'":
		return NewString(m.Subject[m.Groups[1]:])
	case "$+":
		for n := len(m.Groups)/2 - 1; n > 0; n-- {
			if g := m.Group(n); g != nil {
				return g
			}
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Arrays and hashes
// ---------------------------------------------------------------------------

func (in *Interpreter) defineCollections() {
	a := in.ArrayClass
	elems := func(v Value) []Value { return in.valueArray(v).Elems }
	size := func(in *Interpreter, self Value, _ []Value, _ *Closure) Value {
		return int64(len(elems(self)))
	}
	a.Define("size", size)
	a.Define("length", size)
	a.Define("empty?", func(in *Interpreter, self Value, _ []Value, _ *Closure) Value {
		return len(elems(self)) == 0
	})
	a.Define("first", func(in *Interpreter, self Value, _ []Value, _ *Closure) Value {
		return Singleify(&ValueArray{Elems: elems(self)})
	})
	a.Define("last", func(in *Interpreter, self Value, _ []Value, _ *Closure) Value {
		e := elems(self)
		if len(e) == 0 {
			return nil
		}
		return e[len(e)-1]
	})
	a.Define("[]", func(in *Interpreter, self Value, args []Value, _ *Closure) Value {
		in.argc(args, 1, 1)
		e := elems(self)
		i := in.intArg(args[0])
		if i < 0 {
			i += len(e)
		}
		if i < 0 || i >= len(e) {
			return nil
		}
		return e[i]
	})
	a.Define("[]=", func(in *Interpreter, self Value, args []Value, _ *Closure) Value {
		in.argc(args, 2, 2)
		arr := in.mutableArray(self)
		i := in.intArg(args[0])
		if i < 0 {
			i += len(arr.Elems)
		}
		if i < 0 {
			in.Raise(in.ArgumentError, "index %d too small for array", i)
		}
		for len(arr.Elems) <= i {
			arr.Elems = append(arr.Elems, nil)
		}
		arr.Elems[i] = args[1]
		return args[1]
	})
	push := func(in *Interpreter, self Value, args []Value, _ *Closure) Value {
		arr := in.mutableArray(self)
		arr.Elems = append(arr.Elems, args...)
		return self
	}
	a.Define("<<", push)
	a.Define("push", push)
	a.Define("each", func(in *Interpreter, self Value, _ []Value, blk *Closure) Value {
		in.needBlock(blk)
		for _, e := range elems(self) {
			in.CallClosure(blk, e)
		}
		return self
	})
	a.Define("map", func(in *Interpreter, self Value, _ []Value, blk *Closure) Value {
		in.needBlock(blk)
		e := elems(self)
		out := make([]Value, len(e))
		for i, v := range e {
			out[i] = in.CallClosure(blk, v)
		}
		return &Array{Elems: out}
	})
	a.Define("include?", func(in *Interpreter, self Value, args []Value, _ *Closure) Value {
		in.argc(args, 1, 1)
		for _, e := range elems(self) {
			if Truthy(in.Send(e, "==", args[0])) {
				return true
			}
		}
		return false
	})
	a.Define("to_a", func(in *Interpreter, self Value, _ []Value, _ *Closure) Value {
		return &Array{Elems: append([]Value(nil), elems(self)...)}
	})
	a.Define("join", func(in *Interpreter, self Value, args []Value, _ *Closure) Value {
		sep := ""
		if len(args) > 0 {
			sep = ToS(args[0])
		}
		parts := make([]string, 0, len(elems(self)))
		for _, e := range elems(self) {
			parts = append(parts, in.toS(e).String())
		}
		return NewString(strings.Join(parts, sep))
	})

	h := in.HashClass
	hash := func(v Value) *Hash { return v.(*Hash) }
	h.Define("[]", func(in *Interpreter, self Value, args []Value, _ *Closure) Value {
		in.argc(args, 1, 1)
		v, _ := hash(self).Get(args[0])
		return v
	})
	h.Define("[]=", func(in *Interpreter, self Value, args []Value, _ *Closure) Value {
		in.argc(args, 2, 2)
		hash(self).Set(args[0], args[1])
		return args[1]
	})
	h.Define("size", func(in *Interpreter, self Value, _ []Value, _ *Closure) Value {
		return int64(hash(self).Len())
	})
	h.Define("key?", func(in *Interpreter, self Value, args []Value, _ *Closure) Value {
		in.argc(args, 1, 1)
		_, ok := hash(self).Get(args[0])
		return ok
	})
	h.Define("keys", func(in *Interpreter, self Value, _ []Value, _ *Closure) Value {
		return &Array{Elems: append([]Value(nil), hash(self).keys...)}
	})
	h.Define("values", func(in *Interpreter, self Value, _ []Value, _ *Closure) Value {
		return &Array{Elems: append([]Value(nil), hash(self).vals...)}
	})
	h.Define("each", func(in *Interpreter, self Value, _ []Value, blk *Closure) Value {
		in.needBlock(blk)
		x := hash(self)
		for i := range x.keys {
			in.CallClosure(blk, x.keys[i], x.vals[i])
		}
		return self
	})
}

func (in *Interpreter) mutableArray(v Value) *Array {
	arr, ok := v.(*Array)
	if !ok {
		in.Raise(in.TypeError, "%s is not an array", Inspect(v))
	}
	if arr.Frozen {
		in.Raise(in.RuntimeError, "can't modify frozen Array: %s", Inspect(arr))
	}
	return arr
}

// ---------------------------------------------------------------------------
// Ranges
// ---------------------------------------------------------------------------

// Covers reports whether v lies in r.
func (in *Interpreter) Covers(r *Range, v Value) bool {
	if !Truthy(in.Send(r.Begin, "<=", v)) {
		return false
	}
	if r.Exclusive {
		return Truthy(in.Send(v, "<", r.End))
	}
	return Truthy(in.Send(v, "<=", r.End))
}

func (in *Interpreter) defineRange() {
	r := in.RangeClass
	rng := func(v Value) *Range { return v.(*Range) }
	include := func(in *Interpreter, self Value, args []Value, _ *Closure) Value {
		in.argc(args, 1, 1)
		if _, ok := numCompare(rng(self).Begin, args[0]); !ok {
			return false
		}
		return in.Covers(rng(self), args[0])
	}
	r.Define("include?", include)
	r.Define("member?", include)
	r.Define("===", include)
	r.Define("begin", func(in *Interpreter, self Value, _ []Value, _ *Closure) Value { return rng(self).Begin })
	r.Define("first", func(in *Interpreter, self Value, _ []Value, _ *Closure) Value { return rng(self).Begin })
	r.Define("end", func(in *Interpreter, self Value, _ []Value, _ *Closure) Value { return rng(self).End })
	r.Define("last", func(in *Interpreter, self Value, _ []Value, _ *Closure) Value { return rng(self).End })
	r.Define("exclude_end?", func(in *Interpreter, self Value, _ []Value, _ *Closure) Value {
		return rng(self).Exclusive
	})
	each := func(self Value, fn func(Value)) {
		x := rng(self)
		for i := x.Begin; in.Covers(x, i); i = in.arith("+", i, int64(1)) {
			fn(i)
		}
	}
	r.Define("each", func(in *Interpreter, self Value, _ []Value, blk *Closure) Value {
		in.needBlock(blk)
		each(self, func(v Value) { in.CallClosure(blk, v) })
		return self
	})
	r.Define("to_a", func(in *Interpreter, self Value, _ []Value, _ *Closure) Value {
		out := &Array{}
		each(self, func(v Value) { out.Elems = append(out.Elems, v) })
		return out
	})
}

// ---------------------------------------------------------------------------
// Modules, classes and procs
// ---------------------------------------------------------------------------

func (in *Interpreter) defineModules() {
	m := in.ModuleClass
	m.Define("name", func(in *Interpreter, self Value, _ []Value, _ *Closure) Value {
		return NewString(self.(*Module).Name)
	})
	m.Define("===", func(in *Interpreter, self Value, args []Value, _ *Closure) Value {
		in.argc(args, 1, 1)
		return in.ClassOf(args[0]).IsA(self.(*Module))
	})
	m.Define("const_get", func(in *Interpreter, self Value, args []Value, _ *Closure) Value {
		in.argc(args, 1, 1)
		v, ok := constIn(self.(*Module), ToS(args[0]))
		if !ok {
			in.Raise(in.NameError, "uninitialized constant %s::%s", self.(*Module).Name, ToS(args[0]))
		}
		return v
	})
	m.Define("const_set", func(in *Interpreter, self Value, args []Value, _ *Closure) Value {
		in.argc(args, 2, 2)
		self.(*Module).Consts[ToS(args[0])] = args[1]
		return args[1]
	})
	m.Define("superclass", func(in *Interpreter, self Value, _ []Value, _ *Closure) Value {
		if s := self.(*Module).Super; s != nil {
			return s
		}
		return nil
	})
	m.Define("ancestors", func(in *Interpreter, self Value, _ []Value, _ *Closure) Value {
		out := &Array{}
		for _, a := range self.(*Module).Ancestors() {
			out.Elems = append(out.Elems, a)
		}
		return out
	})
	m.Define("method_defined?", func(in *Interpreter, self Value, args []Value, _ *Closure) Value {
		in.argc(args, 1, 1)
		return self.(*Module).Lookup(ToS(args[0])) != nil
	})
	in.ClassClass.Define("new", func(in *Interpreter, self Value, args []Value, blk *Closure) Value {
		cls := self.(*Module)
		obj := &Object{Class: cls, Ivars: make(map[string]Value)}
		if init := cls.Lookup("initialize"); init != nil {
			in.invoke(init, obj, args, blk)
		}
		return obj
	})

	p := in.Proc
	call := func(in *Interpreter, self Value, args []Value, _ *Closure) Value {
		return in.CallClosure(self.(*Closure), args...)
	}
	p.Define("call", call)
	p.Define("yield", call)
	p.Define("[]", call)
	p.Define("arity", func(in *Interpreter, self Value, _ []Value, _ *Closure) Value {
		return int64(self.(*Closure).Unit.Arity)
	})
}

func (in *Interpreter) defineException() {
	e := in.Exception
	e.Methods["initialize"] = &Method{Name: "initialize", Owner: e, Visibility: Private,
		Native: func(in *Interpreter, self Value, args []Value, _ *Closure) Value {
			in.argc(args, 0, 1)
			obj := self.(*Object)
			if len(args) == 1 {
				obj.Ivars["@message"] = args[0]
			} else {
				obj.Ivars["@message"] = NewString(obj.Class.Name)
			}
			return nil
		}}
	message := func(in *Interpreter, self Value, _ []Value, _ *Closure) Value {
		v, _ := in.ivar(self, "@message")
		return in.toS(v)
	}
	e.Define("message", message)
	e.Define("to_s", message)
}
