package vm

import (
	"fmt"

	"github.com/chazu/garnet/bytecode"
)

// ---------------------------------------------------------------------------
// Unwinding: raises, non-local returns and breaks
// ---------------------------------------------------------------------------

// UnwindKind says why the stack is unwinding.
type UnwindKind uint8

const (
	UnwindRaise  UnwindKind = iota // an exception was raised
	UnwindReturn                   // a closure returned from its home method
	UnwindBreak                    // a closure broke out of the call it was passed to
)

// Unwind is panicked to unwind interpreter frames. Ensure handlers catch
// every kind; rescue handlers only catch raises whose exception matches.
type Unwind struct {
	Kind    UnwindKind
	Value   Value
	target  *frame   // UnwindReturn
	closure *Closure // UnwindBreak
}

// Error is an exception, or a stray non-local exit, that escaped the unit.
type Error struct {
	Class     string
	Message   string
	Exception Value
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Class
	}
	return e.Class + ": " + e.Message
}

// Raise raises a new exception of class cls.
func (in *Interpreter) Raise(cls *Module, format string, args ...any) {
	in.RaiseValue(in.NewException(cls, fmt.Sprintf(format, args...)))
}

// NewException creates an exception object with a message.
func (in *Interpreter) NewException(cls *Module, msg string) *Object {
	return &Object{Class: cls, Ivars: map[string]Value{"@message": NewString(msg)}}
}

// RaiseValue raises an exception object; $! is set to it.
func (in *Interpreter) RaiseValue(v Value) {
	obj, ok := v.(*Object)
	if !ok || !obj.Class.IsA(in.Exception) {
		in.Raise(in.TypeError, "exception object expected")
	}
	in.Globals["$!"] = v
	panic(&Unwind{Kind: UnwindRaise, Value: v})
}

// handlerFor finds the first exception table entry of f that covers the
// faulting instruction and accepts sig.
func (in *Interpreter) handlerFor(f *frame, sig *Unwind) (bytecode.Handler, bool) {
	for _, h := range f.unit.Handlers {
		if f.cur < h.Start || f.cur >= h.End {
			continue
		}
		if h.Ensure() {
			return h, true
		}
		if sig.Kind != UnwindRaise {
			continue
		}
		v, ok := in.lookupConst(f.cref, f.unit.LiteralName(h.Class))
		cls, isModule := v.(*Module)
		if ok && isModule && in.ClassOf(sig.Value).IsA(cls) {
			return h, true
		}
	}
	return bytecode.Handler{}, false
}

func (in *Interpreter) unwindError(u *Unwind) *Error {
	switch u.Kind {
	case UnwindReturn:
		return &Error{Class: "LocalJumpError", Message: "unexpected return"}
	case UnwindBreak:
		return &Error{Class: "LocalJumpError", Message: "break from proc-closure"}
	}
	e := &Error{Class: in.ClassOf(u.Value).Name, Exception: u.Value}
	if obj, ok := u.Value.(*Object); ok {
		e.Message = ToS(obj.Ivars["@message"])
	}
	return e
}

// catchBreak runs fn; a break out of blk ends fn with the break value.
func (in *Interpreter) catchBreak(blk *Closure, fn func() Value) (result Value) {
	if blk == nil {
		return fn()
	}
	defer func() {
		if r := recover(); r != nil {
			if u, ok := r.(*Unwind); ok && u.Kind == UnwindBreak && u.closure == blk {
				result = u.Value
				return
			}
			panic(r)
		}
	}()
	return fn()
}
