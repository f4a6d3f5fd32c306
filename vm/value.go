package vm

import (
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"github.com/chazu/garnet/bytecode"
)

// ---------------------------------------------------------------------------
// Values
// ---------------------------------------------------------------------------

// Value is any runtime value. The Go nil interface is the language's nil;
// booleans are bool, integers int64 or *big.Int, floats float64.
type Value any

// Symbol is an interned name.
type Symbol string

// nullValue is the engine's "no value" marker, distinct from nil.
type nullValue struct{}

// Null is the only nullValue.
var Null Value = nullValue{}

// String is a mutable byte string.
type String struct {
	B      []byte
	Frozen bool
}

// NewString creates a mutable string.
func NewString(s string) *String {
	return &String{B: []byte(s)}
}

func (s *String) String() string { return string(s.B) }

// Array is an array object.
type Array struct {
	Elems  []Value
	Frozen bool // lightweight arrays share storage
}

// ValueArray is the engine's raw argument and splat sequence.
type ValueArray struct {
	Elems []Value
}

// Range is a begin/end pair.
type Range struct {
	Begin, End Value
	Exclusive  bool
}

// Hash is an insertion-ordered table.
type Hash struct {
	keys  []Value
	vals  []Value
	index map[string]int
}

// NewHash creates an empty hash.
func NewHash() *Hash {
	return &Hash{index: make(map[string]int)}
}

func hashKey(v Value) string {
	switch x := v.(type) {
	case nil:
		return "n"
	case bool:
		return "b" + strconv.FormatBool(x)
	case int64:
		return "i" + strconv.FormatInt(x, 10)
	case *big.Int:
		return "i" + x.String()
	case float64:
		return "f" + strconv.FormatFloat(x, 'g', -1, 64)
	case *String:
		return "s" + string(x.B)
	case Symbol:
		return "y" + string(x)
	}
	return fmt.Sprintf("p%p", v)
}

// Get returns the value stored under k.
func (h *Hash) Get(k Value) (Value, bool) {
	if i, ok := h.index[hashKey(k)]; ok {
		return h.vals[i], true
	}
	return nil, false
}

// Set stores v under k.
func (h *Hash) Set(k, v Value) {
	key := hashKey(k)
	if i, ok := h.index[key]; ok {
		h.vals[i] = v
		return
	}
	h.index[key] = len(h.keys)
	h.keys = append(h.keys, k)
	h.vals = append(h.vals, v)
}

// Len returns the number of entries.
func (h *Hash) Len() int { return len(h.keys) }

// Regexp is a compiled pattern.
type Regexp struct {
	Source  string
	Options int
	re      *regexp.Regexp
}

// MatchData is the result of a successful match ($~).
type MatchData struct {
	Subject string
	Groups  []int // start/end pairs, -1 for groups that did not participate
}

// Group returns group n, or nil.
func (m *MatchData) Group(n int) Value {
	if n < 0 || 2*n+1 >= len(m.Groups) || m.Groups[2*n] < 0 {
		return nil
	}
	return NewString(m.Subject[m.Groups[2*n]:m.Groups[2*n+1]])
}

// Closure is a block or proc: a child unit over a captured environment.
type Closure struct {
	Unit   *bytecode.Unit
	Env    *Env
	Self   Value
	Block  *Closure // block of the creating frame, for yield inside the body
	Method *Method  // method the closure was created in, for super and frame name
	Cref   *Cref
	home   *frame // frame that receives a non-local return
}

// Object is an instance of a user-defined class.
type Object struct {
	Class *Module
	Ivars map[string]Value
}

// Env is one frame's local variables plus the environment it closes over.
type Env struct {
	Slots  []Value
	Parent *Env
}

// At walks depth parent links.
func (e *Env) At(depth int) *Env {
	for ; depth > 0 && e != nil; depth-- {
		e = e.Parent
	}
	return e
}

// Truthy reports whether v counts as true: everything but nil and false.
func Truthy(v Value) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	}
	return true
}

func normInt(b *big.Int) Value {
	if b.IsInt64() {
		return b.Int64()
	}
	return b
}

func toBig(v Value) (*big.Int, bool) {
	switch x := v.(type) {
	case int64:
		return big.NewInt(x), true
	case *big.Int:
		return x, true
	}
	return nil, false
}

// Inspect formats a value the way p would.
func Inspect(v Value) string {
	switch x := v.(type) {
	case *String:
		return strconv.Quote(string(x.B))
	case Symbol:
		return ":" + string(x)
	case *Array:
		return inspectList("[", x.Elems, "]")
	case *ValueArray:
		return inspectList("[", x.Elems, "]")
	case *Hash:
		parts := make([]string, x.Len())
		for i := range x.keys {
			parts[i] = Inspect(x.keys[i]) + "=>" + Inspect(x.vals[i])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case nil:
		return "nil"
	}
	return ToS(v)
}

func inspectList(open string, elems []Value, close string) string {
	parts := make([]string, len(elems))
	for i, e := range elems {
		parts[i] = Inspect(e)
	}
	return open + strings.Join(parts, ", ") + close
}

// ToS formats a value the way to_s would.
func ToS(v Value) string {
	switch x := v.(type) {
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case *big.Int:
		return x.String()
	case float64:
		s := strconv.FormatFloat(x, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eEn") {
			s += ".0"
		}
		return s
	case *String:
		return string(x.B)
	case Symbol:
		return string(x)
	case *Array, *ValueArray, *Hash:
		return Inspect(v)
	case *Range:
		dots := ".."
		if x.Exclusive {
			dots = "..."
		}
		return Inspect(x.Begin) + dots + Inspect(x.End)
	case *Regexp:
		return "/" + x.Source + "/"
	case *Module:
		return x.Name
	case *Object:
		if msg, ok := x.Ivars["@message"]; ok {
			return ToS(msg)
		}
		return fmt.Sprintf("#<%s>", x.Class.Name)
	case *Closure:
		return "#<Proc>"
	case *MatchData:
		return ToS(x.Group(0))
	case nullValue:
		return "<null>"
	}
	return fmt.Sprint(v)
}

// Equal is the default == on values.
func Equal(a, b Value) bool {
	switch x := a.(type) {
	case int64, *big.Int:
		if fb, ok := b.(float64); ok {
			xb, _ := toBig(x)
			f, _ := new(big.Float).SetInt(xb).Float64()
			return f == fb
		}
		xb, _ := toBig(x)
		yb, ok := toBig(b)
		return ok && xb.Cmp(yb) == 0
	case float64:
		switch y := b.(type) {
		case float64:
			return x == y
		case int64:
			return x == float64(y)
		}
		return false
	case *String:
		y, ok := b.(*String)
		return ok && string(x.B) == string(y.B)
	case *Array:
		y, ok := b.(*Array)
		return ok && equalElems(x.Elems, y.Elems)
	case *ValueArray:
		y, ok := b.(*ValueArray)
		return ok && equalElems(x.Elems, y.Elems)
	case *Range:
		y, ok := b.(*Range)
		return ok && x.Exclusive == y.Exclusive && Equal(x.Begin, y.Begin) && Equal(x.End, y.End)
	}
	return a == b
}

func equalElems(a, b []Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}
