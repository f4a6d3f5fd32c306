package compiler

import (
	"errors"
	"fmt"

	"github.com/chazu/garnet/bytecode"
)

// Caller-contract violations. The backend panics with a *ContractError
// wrapping one of these; CompileRoot and CompileBatch return it.
var (
	ErrNilCallback     = errors.New("missing callback")
	ErrCallbackDepth   = errors.New("callback left the stack unbalanced")
	ErrBranchDepth     = errors.New("branch arms disagree on stack depth")
	ErrNoLoop          = errors.New("loop event outside any loop")
	ErrScopeDepth      = errors.New("scope depth out of range")
	ErrUnknownVariable = errors.New("unknown variable")
	ErrEmptyName       = errors.New("empty name")
	ErrUnitDepth       = errors.New("unit must leave exactly one value")
	ErrFinished        = errors.New("unit already finished")
	ErrDefinedNesting  = errors.New("unbalanced defined? check")
)

// ContractError reports a caller-contract violation while compiling a unit.
type ContractError struct {
	Unit string // unit being compiled
	Op   string // backend operation that detected the violation
	Err  error
	Msg  string
}

func (e *ContractError) Error() string {
	msg := fmt.Sprintf("%s: %s: %v", e.Unit, e.Op, e.Err)
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	return msg
}

func (e *ContractError) Unwrap() error { return e.Err }

// recoverContract converts a contract or build panic into *err. Any other
// panic is re-raised.
func recoverContract(unit string, err *error) {
	switch r := recover().(type) {
	case nil:
	case *ContractError:
		*err = r
	case *bytecode.BuildError:
		*err = &ContractError{Unit: unit, Op: "emit", Err: r}
	default:
		panic(r)
	}
}
