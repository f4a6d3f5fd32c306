package vm

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/chazu/garnet/bytecode"
	"github.com/chazu/garnet/compiler"
)

type conformanceCase struct {
	Name    string   `yaml:"name"`
	Program []string `yaml:"program"`
	Want    string   `yaml:"want"`
	Error   string   `yaml:"error"`
}

func loadConformance(t *testing.T) []conformanceCase {
	t.Helper()
	data, err := os.ReadFile("testdata/conformance.yaml")
	if err != nil {
		t.Fatalf("read fixtures: %v", err)
	}
	var cases []conformanceCase
	if err := yaml.Unmarshal(data, &cases); err != nil {
		t.Fatalf("parse fixtures: %v", err)
	}
	return cases
}

// emitOp compiles one instruction of the fixture language.
func emitOp(c *compiler.MethodCompiler, line string) error {
	op, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	fields := strings.Fields(arg)
	count := func(i int) (int, error) {
		if len(fields) <= i {
			return 0, errors.New("missing count")
		}
		return strconv.Atoi(fields[i])
	}
	switch op {
	case "int":
		n, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return err
		}
		c.CreateNewFixnum(n)
	case "float":
		f, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return err
		}
		c.CreateNewFloat(f)
	case "str":
		c.PushString(arg)
	case "sym":
		c.CreateNewSymbol(arg)
	case "nil":
		c.LoadNil()
	case "true":
		c.LoadTrue()
	case "false":
		c.LoadFalse()
	case "self":
		c.LoadSelf()
	case "const":
		c.RetrieveConstant(arg)
	case "get":
		c.RetrieveLocal(arg)
	case "set":
		c.AssignLocal(arg)
	case "gget":
		c.RetrieveGlobalVariable(arg)
	case "gset":
		c.AssignGlobalVariable(arg)
	case "pop":
		c.ConsumeCurrentValue()
	case "dup":
		c.DuplicateCurrentValue()
	case "swap":
		c.SwapValues()
	case "array":
		n, err := count(0)
		if err != nil {
			return err
		}
		c.CreateObjectArrayN(n)
		c.CreateNewArray(false)
	case "range", "xrange":
		c.CreateNewRange(op == "xrange")
	case "splat":
		c.SplatCurrentValue()
	case "single":
		c.SingleifySplattedValue()
	case "send", "call":
		n, err := count(1)
		if err != nil {
			return err
		}
		if op == "call" {
			c.InvokeFunctional(fields[0], n)
		} else {
			c.InvokeMethod(fields[0], n, bytecode.CallNormal)
		}
	default:
		return errors.New("unknown op " + strconv.Quote(op))
	}
	return nil
}

func TestConformance(t *testing.T) {
	for _, tc := range loadConformance(t) {
		t.Run(tc.Name, func(t *testing.T) {
			var opErr error
			u, err := compiler.New(compiler.DefaultOptions()).CompileRoot(tc.Name, nil, func(c *compiler.MethodCompiler) {
				for _, line := range tc.Program {
					if opErr = emitOp(c, line); opErr != nil {
						return
					}
				}
			})
			if opErr != nil {
				t.Fatalf("bad fixture: %v", opErr)
			}
			if err != nil {
				t.Fatalf("CompileRoot: %v", err)
			}

			in, _ := newTestInterpreter()
			v, err := in.Run(context.Background(), u)
			if tc.Error != "" {
				wantErrorClass(t, err, tc.Error)
				return
			}
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if got := Inspect(v); got != tc.Want {
				t.Errorf("result = %s, want %s", got, tc.Want)
			}
		})
	}
}
