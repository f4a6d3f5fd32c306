package vm

import (
	"github.com/chazu/garnet/bytecode"
)

// ---------------------------------------------------------------------------
// Modules, classes and methods
// ---------------------------------------------------------------------------

// Visibility of a method.
type Visibility uint8

const (
	Public Visibility = iota
	Private
	Protected
)

var visibilityNames = [...]Symbol{"public", "private", "protected"}

// Symbol returns the visibility as a symbol value.
func (v Visibility) Symbol() Symbol { return visibilityNames[v] }

// NativeFunc implements a built-in method.
type NativeFunc func(in *Interpreter, self Value, args []Value, blk *Closure) Value

// Method is a user-defined or native method.
type Method struct {
	Name       string
	Unit       *bytecode.Unit // nil for natives
	Native     NativeFunc
	Visibility Visibility
	Owner      *Module
	Cref       *Cref // lexical modules where the method was defined
}

// Module is a module or class.
type Module struct {
	Name      string
	IsClass   bool
	Super     *Module // superclass, nil for modules and the root class
	Singleton bool
	Consts    map[string]Value
	Methods   map[string]*Method
	Cvars     map[string]Value
}

// NewModule creates an empty module or class.
func NewModule(name string, isClass bool, super *Module) *Module {
	return &Module{
		Name:    name,
		IsClass: isClass,
		Super:   super,
		Consts:  make(map[string]Value),
		Methods: make(map[string]*Method),
		Cvars:   make(map[string]Value),
	}
}

// Ancestors returns m and its superclasses, innermost first.
func (m *Module) Ancestors() []*Module {
	var out []*Module
	for c := m; c != nil; c = c.Super {
		out = append(out, c)
	}
	return out
}

// IsA reports whether m is other or inherits from it.
func (m *Module) IsA(other *Module) bool {
	for c := m; c != nil; c = c.Super {
		if c == other {
			return true
		}
	}
	return false
}

// Lookup finds a method along the superclass chain.
func (m *Module) Lookup(name string) *Method {
	for c := m; c != nil; c = c.Super {
		if meth, ok := c.Methods[name]; ok {
			return meth
		}
	}
	return nil
}

// Define adds a native method.
func (m *Module) Define(name string, fn NativeFunc) {
	m.Methods[name] = &Method{Name: name, Native: fn, Owner: m}
}

// DefinePrivate adds a private native method.
func (m *Module) DefinePrivate(name string, fn NativeFunc) {
	m.Methods[name] = &Method{Name: name, Native: fn, Owner: m, Visibility: Private}
}

// LookupCvar finds a class variable along the superclass chain.
func (m *Module) LookupCvar(name string) (*Module, bool) {
	for c := m; c != nil; c = c.Super {
		if _, ok := c.Cvars[name]; ok {
			return c, true
		}
	}
	return nil, false
}

// Cref is one link of the lexical module chain. The outermost link holds
// Object.
type Cref struct {
	Module *Module
	Parent *Cref
}

// NewCref nests m inside parent.
func NewCref(m *Module, parent *Cref) *Cref {
	return &Cref{Module: m, Parent: parent}
}
