// Package compiler lowers method, closure and top-level bodies into
// bytecode units. An external driver walks the syntax tree and issues one
// MethodCompiler call per node; the backend owns the instruction stream,
// the simulated stack, labels, loop contexts and protected regions.
package compiler

import (
	"fmt"
	"runtime"

	"github.com/tliron/commonlog"

	"github.com/chazu/garnet/bytecode"
)

// DefaultMaxScopeDepth bounds closure nesting and variable lookup depth.
const DefaultMaxScopeDepth = 64

// Options configures a Compiler.
type Options struct {
	MaxScopeDepth int  // deepest closure nesting accepted
	LineNumbers   bool // record line tables
	PollLoops     bool // emit POLL at loop back edges
	Parallelism   int  // CompileBatch worker limit
}

// DefaultOptions returns the options used when no configuration is given.
func DefaultOptions() Options {
	return Options{
		MaxScopeDepth: DefaultMaxScopeDepth,
		LineNumbers:   true,
		Parallelism:   runtime.GOMAXPROCS(0),
	}
}

// Compiler creates MethodCompilers and turns contract violations into
// errors. It holds no mutable state and may be shared between goroutines.
type Compiler struct {
	opts Options
	log  commonlog.Logger
}

// New creates a compiler. Zero limits are replaced by defaults.
func New(opts Options) *Compiler {
	def := DefaultOptions()
	if opts.MaxScopeDepth <= 0 {
		opts.MaxScopeDepth = def.MaxScopeDepth
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = def.Parallelism
	}
	return &Compiler{
		opts: opts,
		log:  commonlog.GetLogger("garnet.compiler"),
	}
}

// Options returns the effective options.
func (c *Compiler) Options() Options {
	return c.opts
}

// StartRoot begins a top-level unit with its own scope arena. Contract
// violations panic with *ContractError; use CompileRoot to get them as
// errors.
func (c *Compiler) StartRoot(name string, scope *StaticScope) *MethodCompiler {
	arena := NewScopeArena(c.opts.MaxScopeDepth)
	frame, _ := arena.Push(NoFrame, bytecode.KindTopLevel, scope)
	return newMethodCompiler(c.opts, c.log, arena, frame, name, bytecode.KindTopLevel)
}

// CompileRoot compiles a top-level unit whose statements are emitted by
// body. The body must leave the unit's value on the stack. The finished
// unit is verified before it is returned.
func (c *Compiler) CompileRoot(name string, scope *StaticScope, body BranchCallback) (*bytecode.Unit, error) {
	u, err := c.compileRoot(name, scope, body)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}
	if err := bytecode.Verify(u); err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}
	return u, nil
}

func (c *Compiler) compileRoot(name string, scope *StaticScope, body BranchCallback) (u *bytecode.Unit, err error) {
	defer recoverContract(name, &err)
	mc := c.StartRoot(name, scope)
	if body == nil {
		mc.fail("CompileRoot", ErrNilCallback, "")
	}
	body(mc)
	return mc.EndMethod(), nil
}
