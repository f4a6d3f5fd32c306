// Package vm is a reference engine for garnet bytecode units. It exists to
// exercise what the compiler emits and implements a small core library.
package vm

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"math/big"
	"os"
	"regexp"

	"github.com/tliron/commonlog"

	"github.com/chazu/garnet/bytecode"
)

// DefaultMaxDepth bounds nested calls.
const DefaultMaxDepth = 10000

// ---------------------------------------------------------------------------
// Frames
// ---------------------------------------------------------------------------

type frame struct {
	unit    *bytecode.Unit
	code    []byte
	pc      int
	cur     int // start of the executing instruction
	stack   []Value
	env     *Env
	self    Value
	args    []Value
	block   *Closure
	method  *Method
	cref    *Cref
	closure *Closure // closure being run, nil for methods and top level
	home    *frame   // frame a non-local return leaves
	done    bool
}

func (f *frame) push(v Value) { f.stack = append(f.stack, v) }

func (f *frame) pop() Value {
	n := len(f.stack) - 1
	v := f.stack[n]
	f.stack = f.stack[:n]
	return v
}

func (f *frame) top() Value { return f.stack[len(f.stack)-1] }

func (f *frame) popN(n int) []Value {
	out := make([]Value, n)
	copy(out, f.stack[len(f.stack)-n:])
	f.stack = f.stack[:len(f.stack)-n]
	return out
}

func (f *frame) u8() int {
	v := f.code[f.pc]
	f.pc++
	return int(v)
}

func (f *frame) u16() int {
	v := binary.LittleEndian.Uint16(f.code[f.pc:])
	f.pc += 2
	return int(v)
}

func (f *frame) i16() int {
	return int(int16(f.u16()))
}

func (f *frame) i32() int64 {
	v := binary.LittleEndian.Uint32(f.code[f.pc:])
	f.pc += 4
	return int64(int32(v))
}

func (f *frame) name(idx int) string {
	return f.unit.LiteralName(idx)
}

// ---------------------------------------------------------------------------
// Interpreter
// ---------------------------------------------------------------------------

// Interpreter executes units. It is not safe for concurrent use.
type Interpreter struct {
	Object, ModuleClass, ClassClass                *Module
	NilClass, TrueClass, FalseClass                *Module
	Integer, Float, StringClass, SymbolClass       *Module
	ArrayClass, HashClass, RangeClass, RegexpClass *Module
	Proc, MatchDataClass                           *Module
	Exception, StandardError, RuntimeError         *Module
	ArgumentError, TypeError, NameError            *Module
	NoMethodError, ZeroDivisionError               *Module
	LocalJumpError, Interrupt, SystemStackError    *Module

	Globals  map[string]Value
	Main     *Object
	Out      io.Writer
	MaxDepth int

	log     commonlog.Logger
	ctx     context.Context
	backref *MatchData
	regexps map[string]*regexp.Regexp
	depth   int
	rescued []Value // $! saved by each open defined? check
}

// NewInterpreter creates an interpreter with the core library loaded.
func NewInterpreter() *Interpreter {
	in := &Interpreter{
		Globals:  make(map[string]Value),
		Out:      os.Stdout,
		MaxDepth: DefaultMaxDepth,
		log:      commonlog.GetLogger("garnet.vm"),
		ctx:      context.Background(),
		regexps:  make(map[string]*regexp.Regexp),
	}
	in.bootstrap()
	return in
}

// Run executes a top-level unit with self bound to the main object.
func (in *Interpreter) Run(ctx context.Context, u *bytecode.Unit) (Value, error) {
	return in.RunIn(ctx, u, in.Main)
}

// RunIn executes a top-level unit with the given self inside the given
// lexical modules, innermost first. Object is always the outermost.
func (in *Interpreter) RunIn(ctx context.Context, u *bytecode.Unit, self Value, lexical ...*Module) (result Value, err error) {
	in.ctx = ctx
	cref := NewCref(in.Object, nil)
	for i := len(lexical) - 1; i >= 0; i-- {
		cref = NewCref(lexical[i], cref)
	}
	f := in.newFrame(u, self, nil, nil, nil, cref, nil)
	f.home = f
	rescued := len(in.rescued)
	defer func() {
		if len(in.rescued) > rescued {
			in.rescued = in.rescued[:rescued]
		}
		if r := recover(); r != nil {
			sig, ok := r.(*Unwind)
			if !ok {
				panic(r)
			}
			result, err = nil, in.unwindError(sig)
		}
	}()
	return in.run(f), nil
}

func (in *Interpreter) newFrame(u *bytecode.Unit, self Value, args []Value, blk *Closure, m *Method, cref *Cref, parent *Env) *frame {
	return &frame{
		unit:   u,
		code:   u.Code,
		stack:  make([]Value, 0, u.MaxStack),
		env:    &Env{Slots: make([]Value, u.NumLocals()), Parent: parent},
		self:   self,
		args:   args,
		block:  blk,
		method: m,
		cref:   cref,
	}
}

// run executes f to completion, dispatching failures through its
// exception table.
func (in *Interpreter) run(f *frame) Value {
	defer func() { f.done = true }()
	for {
		v, sig := in.exec(f)
		if sig == nil {
			return v
		}
		h, ok := in.handlerFor(f, sig)
		if !ok {
			if sig.Kind == UnwindReturn && sig.target == f {
				return sig.Value
			}
			panic(sig)
		}
		f.stack = append(f.stack[:h.Depth], Value(sig))
		f.pc = h.Target
	}
}

func (in *Interpreter) exec(f *frame) (result Value, sig *Unwind) {
	defer func() {
		if r := recover(); r != nil {
			u, ok := r.(*Unwind)
			if !ok {
				panic(r)
			}
			sig = u
		}
	}()
	return in.loop(f), nil
}

func (in *Interpreter) enter() {
	in.depth++
	if in.depth > in.MaxDepth {
		in.depth--
		in.Raise(in.SystemStackError, "stack level too deep")
	}
}

// Send calls a public method.
func (in *Interpreter) Send(recv Value, name string, args ...Value) Value {
	return in.send(recv, name, args, nil, bytecode.CallNormal, recv)
}

func (in *Interpreter) send(recv Value, name string, args []Value, blk *Closure, kind bytecode.CallKind, caller Value) Value {
	m := in.ClassOf(recv).Lookup(name)
	if m == nil {
		in.Raise(in.NoMethodError, "undefined method '%s' for %s", name, Inspect(recv))
	}
	if kind == bytecode.CallNormal {
		switch m.Visibility {
		case Private:
			in.Raise(in.NoMethodError, "private method '%s' called for %s", name, Inspect(recv))
		case Protected:
			if !in.ClassOf(caller).IsA(m.Owner) {
				in.Raise(in.NoMethodError, "protected method '%s' called for %s", name, Inspect(recv))
			}
		}
	}
	return in.invoke(m, recv, args, blk)
}

func (in *Interpreter) invoke(m *Method, self Value, args []Value, blk *Closure) Value {
	in.enter()
	defer func() { in.depth-- }()
	if m.Native != nil {
		return m.Native(in, self, args, blk)
	}
	u := m.Unit
	if len(args) < u.Arity || (u.Flags&bytecode.FlagSimpleArgs != 0 && len(args) != u.Arity) || len(args) > u.NumLocals() {
		in.Raise(in.ArgumentError, "wrong number of arguments (given %d, expected %d)", len(args), u.Arity)
	}
	f := in.newFrame(u, self, args, blk, m, m.Cref, nil)
	f.home = f
	copy(f.env.Slots, args)
	return in.run(f)
}

// CallClosure calls a closure with arguments.
func (in *Interpreter) CallClosure(c *Closure, args ...Value) Value {
	if len(args) == 1 && c.Unit.Arity > 1 {
		if a, ok := args[0].(*Array); ok {
			args = a.Elems
		}
	}
	in.enter()
	defer func() { in.depth-- }()
	f := in.newFrame(c.Unit, c.Self, args, c.Block, c.Method, c.Cref, c.Env)
	f.closure = c
	f.home = c.home
	return in.run(f)
}

func (in *Interpreter) yield(f *frame, args []Value) Value {
	if f.block == nil {
		in.Raise(in.LocalJumpError, "no block given (yield)")
	}
	return in.CallClosure(f.block, args...)
}

func (in *Interpreter) superMethod(f *frame) *Method {
	if f.method == nil || f.method.Owner == nil || f.method.Owner.Super == nil {
		return nil
	}
	return f.method.Owner.Super.Lookup(f.method.Name)
}

// ---------------------------------------------------------------------------
// Main interpreter loop
// ---------------------------------------------------------------------------

func (in *Interpreter) loop(f *frame) Value {
	lits := f.unit.Literals
	for {
		f.cur = f.pc
		op := bytecode.Opcode(f.code[f.pc])
		f.pc++

		switch op {
		// --- Stack operations ---
		case bytecode.OpNOP:

		case bytecode.OpPOP:
			f.pop()

		case bytecode.OpDUP:
			f.push(f.top())

		case bytecode.OpSWAP:
			n := len(f.stack)
			f.stack[n-1], f.stack[n-2] = f.stack[n-2], f.stack[n-1]

		case bytecode.OpSLIDE:
			n := f.u8()
			v := f.pop()
			f.stack = f.stack[:len(f.stack)-n]
			f.push(v)

		// --- Push constants ---
		case bytecode.OpPushNil:
			f.push(nil)

		case bytecode.OpPushTrue:
			f.push(true)

		case bytecode.OpPushFalse:
			f.push(false)

		case bytecode.OpPushSelf:
			f.push(f.self)

		case bytecode.OpPushInt8:
			f.push(int64(int8(f.u8())))

		case bytecode.OpPushInt32:
			f.push(f.i32())

		case bytecode.OpPushLiteral:
			f.push(in.literal(lits[f.u16()]))

		case bytecode.OpPushNull:
			f.push(Null)

		case bytecode.OpPushSelfClass:
			f.push(in.ClassOf(f.self))

		case bytecode.OpPushObject:
			f.push(in.Object)

		case bytecode.OpPushModule:
			f.push(f.cref.Module)

		case bytecode.OpNewString:
			f.push(NewString(lits[f.u16()].Str))

		// --- Variables ---
		case bytecode.OpPushLocal:
			slot, depth := f.u8(), f.u8()
			f.push(f.env.At(depth).Slots[slot])

		case bytecode.OpStoreLocal:
			slot, depth := f.u8(), f.u8()
			f.env.At(depth).Slots[slot] = f.top()

		case bytecode.OpPushIvar:
			v, _ := in.ivar(f.self, f.name(f.u16()))
			f.push(v)

		case bytecode.OpPushIvarRaw:
			v, ok := in.ivar(f.self, f.name(f.u16()))
			if !ok {
				v = Null
			}
			f.push(v)

		case bytecode.OpStoreIvar:
			in.setIvar(f.self, f.name(f.u16()), f.top())

		case bytecode.OpPushGlobal:
			f.push(in.Globals[f.name(f.u16())])

		case bytecode.OpStoreGlobal:
			in.Globals[f.name(f.u16())] = f.top()

		case bytecode.OpPushCvar:
			name := f.name(f.u16())
			owner, ok := f.cref.Module.LookupCvar(name)
			if !ok {
				in.Raise(in.NameError, "uninitialized class variable %s in %s", name, f.cref.Module.Name)
			}
			f.push(owner.Cvars[name])

		case bytecode.OpStoreCvar:
			name := f.name(f.u16())
			owner, ok := f.cref.Module.LookupCvar(name)
			if !ok {
				owner = f.cref.Module
			}
			owner.Cvars[name] = f.top()

		case bytecode.OpPushConst:
			name := f.name(f.u16())
			v, ok := in.lookupConst(f.cref, name)
			if !ok {
				in.Raise(in.NameError, "uninitialized constant %s", name)
			}
			f.push(v)

		case bytecode.OpPushConstFrom:
			name := f.name(f.u16())
			m := in.module(f.pop())
			v, ok := constIn(m, name)
			if !ok {
				in.Raise(in.NameError, "uninitialized constant %s::%s", m.Name, name)
			}
			f.push(v)

		case bytecode.OpStoreConst:
			f.cref.Module.Consts[f.name(f.u16())] = f.top()

		case bytecode.OpStoreConstIn:
			name := f.name(f.u16())
			v := f.pop()
			in.module(f.pop()).Consts[name] = v
			f.push(v)

		case bytecode.OpStoreConstObject:
			in.Object.Consts[f.name(f.u16())] = f.top()

		case bytecode.OpPushBlockArg:
			i := f.u8()
			var v Value
			if i < len(f.args) {
				v = f.args[i]
			}
			f.push(v)

		// --- Message sends ---
		case bytecode.OpSend:
			name, argc := f.name(f.u16()), f.u8()
			kind := bytecode.CallKind(f.u8())
			var blk *Closure
			if kind.HasBlock() {
				blk = in.closure(f.pop())
			}
			args := f.popN(argc)
			recv := f.pop()
			f.push(in.catchBreak(blk, func() Value {
				return in.send(recv, name, args, blk, kind.Base(), f.self)
			}))

		case bytecode.OpSendSuper:
			args := f.popN(f.u8())
			m := in.superMethod(f)
			if m == nil {
				in.Raise(in.NoMethodError, "super: no superclass method")
			}
			f.push(in.invoke(m, f.self, args, f.block))

		case bytecode.OpYield:
			f.push(in.yield(f, f.popN(f.u8())))

		// --- Control flow ---
		case bytecode.OpJump:
			off := f.i16()
			f.pc += off

		case bytecode.OpJumpTrue, bytecode.OpJumpFalse, bytecode.OpJumpNil, bytecode.OpJumpNull, bytecode.OpJumpNotNull:
			off := f.i16()
			v := f.pop()
			var taken bool
			switch op {
			case bytecode.OpJumpTrue:
				taken = Truthy(v)
			case bytecode.OpJumpFalse:
				taken = !Truthy(v)
			case bytecode.OpJumpNil:
				taken = v == nil
			case bytecode.OpJumpNull:
				taken = v == Null
			default:
				taken = v != Null
			}
			if taken {
				f.pc += off
			}

		case bytecode.OpJumpNotGE, bytecode.OpJumpNotGT, bytecode.OpJumpNotLE, bytecode.OpJumpNotLT:
			off := f.i16()
			b := f.pop()
			a := f.pop()
			if !in.compare(op, a, b) {
				f.pc += off
			}

		// --- Returns and unwinding ---
		case bytecode.OpReturn:
			return f.pop()

		case bytecode.OpReturnNonLocal:
			v := f.pop()
			if f.home == nil || f.home.done {
				in.Raise(in.LocalJumpError, "unexpected return")
			}
			panic(&Unwind{Kind: UnwindReturn, Value: v, target: f.home})

		case bytecode.OpBreakNonLocal:
			v := f.pop()
			if f.closure == nil {
				in.Raise(in.LocalJumpError, "break from proc-closure")
			}
			panic(&Unwind{Kind: UnwindBreak, Value: v, closure: f.closure})

		case bytecode.OpReraise:
			v := f.pop()
			if sig, ok := v.(*Unwind); ok {
				panic(sig)
			}
			in.RaiseValue(v)

		// --- Closures and definitions ---
		case bytecode.OpCreateClosure:
			f.push(&Closure{
				Unit:   f.unit.Units[f.u16()],
				Env:    f.env,
				Self:   f.self,
				Block:  f.block,
				Method: f.method,
				Cref:   f.cref,
				home:   f.home,
			})

		case bytecode.OpDefineMethod:
			in.defineMethod(f, f.unit.Units[f.u16()])
			f.push(nil)

		case bytecode.OpDefineAlias:
			newName, oldName := f.name(f.u16()), f.name(f.u16())
			definee := f.cref.Module
			m := definee.Lookup(oldName)
			if m == nil {
				in.Raise(in.NameError, "undefined method '%s' for class '%s'", oldName, definee.Name)
			}
			alias := *m
			alias.Name = newName
			definee.Methods[newName] = &alias
			f.push(nil)

		// --- Aggregates ---
		case bytecode.OpObjectArray:
			f.push(&ValueArray{Elems: f.popN(f.u16())})

		case bytecode.OpNewArray:
			frozen := f.u8() != 0
			va := in.valueArray(f.pop())
			elems := va.Elems
			if !frozen {
				elems = append([]Value(nil), elems...)
			}
			f.push(&Array{Elems: elems, Frozen: frozen})

		case bytecode.OpEmptyArray:
			f.push(&Array{})

		case bytecode.OpEmptyHash:
			f.push(NewHash())

		case bytecode.OpNewHash:
			kv := f.popN(2 * f.u16())
			h := NewHash()
			for i := 0; i < len(kv); i += 2 {
				h.Set(kv[i], kv[i+1])
			}
			f.push(h)

		case bytecode.OpNewRange:
			exclusive := f.u8() != 0
			end := f.pop()
			begin := f.pop()
			f.push(&Range{Begin: begin, End: end, Exclusive: exclusive})

		case bytecode.OpConcatStrings:
			parts := f.popN(f.u16())
			s := NewString("")
			for _, p := range parts {
				s.B = append(s.B, in.toS(p).B...)
			}
			f.push(s)

		case bytecode.OpNewRegexp:
			f.push(in.newRegexp(lits[f.u16()]))

		case bytecode.OpSplat:
			f.push(Splat(f.pop()))

		case bytecode.OpSingleify:
			f.push(Singleify(f.pop()))

		case bytecode.OpEnsureArray:
			v := f.pop()
			if _, ok := v.(*ValueArray); !ok {
				v = &ValueArray{Elems: []Value{v}}
			}
			f.push(v)

		case bytecode.OpEnsureMasgn:
			f.push(EnsureMasgn(f.pop(), f.u8() != 0))

		case bytecode.OpArrayEntry:
			i := f.u16()
			elems := in.valueArray(f.pop()).Elems
			var v Value
			if i < len(elems) {
				v = elems[i]
			}
			f.push(v)

		case bytecode.OpArraySize:
			f.push(int64(len(in.valueArray(f.top()).Elems)))

		case bytecode.OpConcatArrays:
			b := Splat(f.pop())
			a := in.valueArray(f.pop())
			elems := append(append([]Value(nil), a.Elems...), b.(*ValueArray).Elems...)
			f.push(&ValueArray{Elems: elems})

		case bytecode.OpUnwrapArray:
			f.push(in.valueArray(f.pop()))

		// --- Tests and reflection ---
		case bytecode.OpNot:
			f.push(!Truthy(f.pop()))

		case bytecode.OpNullToNil:
			if f.top() == Null {
				f.stack[len(f.stack)-1] = nil
			}

		case bytecode.OpStringOrNil:
			v := f.pop()
			if v == Null {
				f.push(nil)
			} else {
				f.push(in.toS(v))
			}

		case bytecode.OpToS:
			f.push(in.toS(f.pop()))

		case bytecode.OpIsNil:
			f.push(f.pop() == nil)

		case bytecode.OpIsNull:
			f.push(f.pop() == Null)

		case bytecode.OpInstanceOf:
			name := f.name(f.u16())
			v := f.pop()
			cls, ok := in.lookupConst(f.cref, name)
			m, isModule := cls.(*Module)
			f.push(ok && isModule && in.ClassOf(v).IsA(m))

		case bytecode.OpIsModule:
			_, ok := f.pop().(*Module)
			f.push(ok)

		case bytecode.OpMetaclass:
			f.push(in.ClassOf(f.pop()))

		case bytecode.OpSuperclass:
			m := in.module(f.pop())
			if m.Super == nil {
				f.push(nil)
			} else {
				f.push(m.Super)
			}

		case bytecode.OpInDefined:
			in.rescued = append(in.rescued, in.Globals["$!"])

		case bytecode.OpOutDefined:
			if n := len(in.rescued); n > 0 {
				in.Globals["$!"] = in.rescued[n-1]
				in.rescued = in.rescued[:n-1]
			}

		case bytecode.OpMethodBound:
			name := f.name(f.u16())
			m := in.ClassOf(f.pop()).Lookup(name)
			f.push(m != nil && m.Visibility == Public)

		case bytecode.OpHasBlock:
			f.push(f.block != nil)

		case bytecode.OpGlobalDefined:
			_, ok := in.Globals[f.name(f.u16())]
			f.push(ok)

		case bytecode.OpConstDefined:
			_, ok := in.lookupConst(f.cref, f.name(f.u16()))
			f.push(ok)

		case bytecode.OpIvarDefined:
			_, ok := in.ivar(f.self, f.name(f.u16()))
			f.push(ok)

		case bytecode.OpCvarDefined:
			_, ok := f.cref.Module.LookupCvar(f.name(f.u16()))
			f.push(ok)

		case bytecode.OpConstDefinedIn:
			name := f.name(f.u16())
			m, ok := f.pop().(*Module)
			if ok {
				_, ok = constIn(m, name)
			}
			f.push(ok)

		case bytecode.OpVisibility:
			name := f.name(f.u16())
			m := in.module(f.pop()).Lookup(name)
			if m == nil {
				f.push(nil)
			} else {
				f.push(m.Visibility.Symbol())
			}

		case bytecode.OpIsPrivate:
			f.push(f.pop() == Value(Private.Symbol()))

		case bytecode.OpIsProtected:
			f.push(f.pop() == Value(Protected.Symbol()))

		case bytecode.OpSelfKindOf:
			f.push(in.ClassOf(f.self).IsA(in.module(f.pop())))

		case bytecode.OpCvarDefinedIn:
			name := f.name(f.u16())
			m, ok := f.pop().(*Module)
			if ok {
				_, ok = m.LookupCvar(name)
			}
			f.push(ok)

		case bytecode.OpIsSingleton:
			m, ok := f.pop().(*Module)
			f.push(ok && m.Singleton)

		case bytecode.OpSuperBound:
			f.push(in.superMethod(f) != nil)

		case bytecode.OpCaptured:
			n := f.u8()
			f.push(in.backref != nil && in.backref.Group(n) != nil)

		// --- Frame, regexp and runtime services ---
		case bytecode.OpPushFrameName:
			if f.method == nil {
				f.push(nil)
			} else {
				f.push(Symbol(f.method.Name))
			}

		case bytecode.OpPushFrameClass:
			if f.method == nil || f.method.Owner == nil {
				f.push(nil)
			} else {
				f.push(f.method.Owner)
			}

		case bytecode.OpPushBackref:
			if in.backref == nil {
				f.push(nil)
			} else {
				f.push(in.backref)
			}

		case bytecode.OpBackrefMethod:
			f.push(in.backrefMethod(f.name(f.u16())))

		case bytecode.OpNthRef:
			n := f.u8()
			if in.backref == nil {
				f.push(nil)
			} else {
				f.push(in.backref.Group(n))
			}

		case bytecode.OpMatch:
			re := f.pop()
			f.push(in.match(re, in.Globals["$_"]))

		case bytecode.OpMatch2:
			v := f.pop()
			re := f.pop()
			f.push(in.match(re, v))

		case bytecode.OpMatch3:
			re := f.pop()
			v := f.pop()
			f.push(in.match(re, v))

		case bytecode.OpPoll:
			if err := in.ctx.Err(); err != nil {
				in.Raise(in.Interrupt, "%v", err)
			}

		case bytecode.OpTrace:
			in.log.Debugf("trace %s: %s", f.unit.Name, lits[f.u16()].Str)

		default:
			panic(fmt.Sprintf("garnet vm: unknown opcode %s at %s:%04d", op, f.unit.Name, f.cur))
		}
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (in *Interpreter) literal(l bytecode.Literal) Value {
	switch l.Kind {
	case bytecode.LitFixnum:
		return l.Int
	case bytecode.LitFloat:
		return l.Float
	case bytecode.LitBignum:
		b, ok := l.Bignum()
		if !ok {
			in.Raise(in.ArgumentError, "bad bignum literal %q", l.Str)
		}
		return normInt(b)
	case bytecode.LitString:
		return &String{B: []byte(l.Str), Frozen: true}
	case bytecode.LitSymbol, bytecode.LitName:
		return Symbol(l.Str)
	case bytecode.LitRegexp:
		return in.newRegexp(l)
	}
	return nil
}

func (in *Interpreter) defineMethod(f *frame, u *bytecode.Unit) {
	definee := f.cref.Module
	vis := Public
	if f.unit.Kind == bytecode.KindTopLevel && definee == in.Object {
		vis = Private
	}
	definee.Methods[u.Name] = &Method{Name: u.Name, Unit: u, Owner: definee, Cref: f.cref, Visibility: vis}
	in.log.Debugf("defined %s#%s", definee.Name, u.Name)
}

func (in *Interpreter) lookupConst(cref *Cref, name string) (Value, bool) {
	for c := cref; c != nil && c.Parent != nil; c = c.Parent {
		if v, ok := c.Module.Consts[name]; ok {
			return v, true
		}
	}
	if v, ok := constIn(cref.Module, name); ok {
		return v, true
	}
	v, ok := in.Object.Consts[name]
	return v, ok
}

func constIn(m *Module, name string) (Value, bool) {
	for c := m; c != nil; c = c.Super {
		if v, ok := c.Consts[name]; ok {
			return v, true
		}
	}
	return nil, false
}

func (in *Interpreter) module(v Value) *Module {
	m, ok := v.(*Module)
	if !ok {
		in.Raise(in.TypeError, "%s is not a class/module", Inspect(v))
	}
	return m
}

func (in *Interpreter) closure(v Value) *Closure {
	switch c := v.(type) {
	case nil:
		return nil
	case *Closure:
		return c
	}
	in.Raise(in.TypeError, "wrong argument type %s (expected Proc)", in.ClassOf(v).Name)
	return nil
}

func (in *Interpreter) valueArray(v Value) *ValueArray {
	switch a := v.(type) {
	case *ValueArray:
		return a
	case *Array:
		return &ValueArray{Elems: a.Elems}
	}
	in.Raise(in.TypeError, "%s is not an array", Inspect(v))
	return nil
}

func (in *Interpreter) ivar(self Value, name string) (Value, bool) {
	if obj, ok := self.(*Object); ok {
		v, ok := obj.Ivars[name]
		return v, ok
	}
	return nil, false
}

func (in *Interpreter) setIvar(self Value, name string, v Value) {
	obj, ok := self.(*Object)
	if !ok {
		in.Raise(in.RuntimeError, "can't modify instance variables of %s", Inspect(self))
	}
	obj.Ivars[name] = v
}

func (in *Interpreter) toS(v Value) *String {
	if s, ok := v.(*String); ok {
		return s
	}
	if m := in.ClassOf(v).Lookup("to_s"); m != nil && m.Unit != nil {
		if s, ok := in.invoke(m, v, nil, nil).(*String); ok {
			return s
		}
	}
	return NewString(ToS(v))
}

var compareNames = map[bytecode.Opcode]string{
	bytecode.OpJumpNotGE: ">=",
	bytecode.OpJumpNotGT: ">",
	bytecode.OpJumpNotLE: "<=",
	bytecode.OpJumpNotLT: "<",
}

// compare evaluates a >= b, a > b, a <= b or a < b for a fused branch.
func (in *Interpreter) compare(op bytecode.Opcode, a, b Value) bool {
	c, ok := numCompare(a, b)
	if !ok {
		return Truthy(in.Send(a, compareNames[op], b))
	}
	if c == unordered {
		return false
	}
	switch op {
	case bytecode.OpJumpNotGE:
		return c >= 0
	case bytecode.OpJumpNotGT:
		return c > 0
	case bytecode.OpJumpNotLE:
		return c <= 0
	}
	return c < 0
}

// unordered is the numCompare result when either operand is NaN; every
// ordering test is false for it.
const unordered = 2

// numCompare compares two numbers, returning -1, 0, 1 or unordered. ok is
// false when either value is not a number.
func numCompare(a, b Value) (int, bool) {
	fa, aFloat := a.(float64)
	fb, bFloat := b.(float64)
	if aFloat || bFloat {
		if !aFloat {
			x, ok := toBig(a)
			if !ok {
				return 0, false
			}
			fa, _ = new(big.Float).SetInt(x).Float64()
		}
		if !bFloat {
			y, ok := toBig(b)
			if !ok {
				return 0, false
			}
			fb, _ = new(big.Float).SetInt(y).Float64()
		}
		if math.IsNaN(fa) || math.IsNaN(fb) {
			return unordered, true
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	if x, ok := a.(int64); ok {
		if y, ok := b.(int64); ok {
			switch {
			case x < y:
				return -1, true
			case x > y:
				return 1, true
			}
			return 0, true
		}
	}
	x, ok := toBig(a)
	if !ok {
		return 0, false
	}
	y, ok := toBig(b)
	if !ok {
		return 0, false
	}
	return x.Cmp(y), true
}

// Splat converts a value to a value array: an array gives its elements, nil
// gives none, anything else gives itself.
func Splat(v Value) Value {
	switch x := v.(type) {
	case *ValueArray:
		return x
	case *Array:
		return &ValueArray{Elems: append([]Value(nil), x.Elems...)}
	case nil:
		return &ValueArray{}
	}
	return &ValueArray{Elems: []Value{v}}
}

// Singleify reduces a value array to its first element or nil.
func Singleify(v Value) Value {
	va, ok := v.(*ValueArray)
	if !ok {
		return v
	}
	if len(va.Elems) == 0 {
		return nil
	}
	return va.Elems[0]
}

// EnsureMasgn prepares a multiple-assignment right-hand side.
func EnsureMasgn(v Value, hasHead bool) Value {
	switch x := v.(type) {
	case *ValueArray:
		return x
	case *Array:
		if hasHead {
			return &ValueArray{Elems: x.Elems}
		}
	}
	return &ValueArray{Elems: []Value{v}}
}
