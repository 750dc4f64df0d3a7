package script

import (
	"io"
	"os"

	"github.com/rc1405/fiddler/internal/value"
)

const maxRecursionDepth = 64

// signal distinguishes normal statement completion from a `return`
// propagating up through nested blocks.
type signal int

const (
	signalNone signal = iota
	signalReturn
)

// BuiltinFunc is a host- or language-provided built-in. Method syntax
// `x.f(a)` rewrites to a Call of the built-in or user function named
// f with x prepended to the argument list.
type BuiltinFunc func(interp *Interpreter, args []value.Value) (value.Value, error)

// Interpreter is a single FiddlerScript instance: lexer/parser output
// is transient, but the evaluator, its global environment and its
// registered built-ins persist across Run calls, so
// set_variable/get_value/register_builtin/run all operate against one
// long-lived Interpreter. An Interpreter is single-threaded: to run in
// parallel, a worker holds its own instance.
type Interpreter struct {
	global   *environment
	builtins map[string]BuiltinFunc
	depth    int

	// Writer receives print() output. Defaults to os.Stdout.
	Writer io.Writer
}

// New returns an Interpreter with the standard built-in library
// registered.
func New() *Interpreter {
	i := &Interpreter{
		global:   newEnvironment(nil),
		builtins: map[string]BuiltinFunc{},
		Writer:   os.Stdout,
	}
	registerStandardBuiltins(i)
	return i
}

// SetVariable implements the host interface's set_variable.
func (i *Interpreter) SetVariable(name string, v value.Value) {
	i.global.bind(name, v)
}

// GetValue implements the host interface's get_value.
func (i *Interpreter) GetValue(name string) (value.Value, bool) {
	return i.global.get(name)
}

// RegisterBuiltin implements the host interface's register_builtin.
func (i *Interpreter) RegisterBuiltin(name string, fn BuiltinFunc) {
	i.builtins[name] = fn
}

// Run lexes, parses and evaluates source against the interpreter's
// global scope, returning any LexError, ParseError or RuntimeError
// unified under one error return.
func (i *Interpreter) Run(source string) error {
	parser, err := NewParser(source)
	if err != nil {
		return err
	}
	prog, err := parser.ParseProgram()
	if err != nil {
		return err
	}
	_, sig, err := i.evalBlockStmts(prog.Stmts, i.global)
	if err != nil {
		return err
	}
	_ = sig // a top-level `return` simply ends the script early
	return nil
}

func (i *Interpreter) evalBlockStmts(stmts []Stmt, env *environment) (value.Value, signal, error) {
	var last value.Value
	for _, stmt := range stmts {
		v, sig, err := i.execStmt(stmt, env)
		if err != nil {
			return value.Value{}, signalNone, err
		}
		last = v
		if sig == signalReturn {
			return v, signalReturn, nil
		}
	}
	return last, signalNone, nil
}

func (i *Interpreter) execStmt(stmt Stmt, env *environment) (value.Value, signal, error) {
	switch s := stmt.(type) {
	case *LetStmt:
		v, err := i.eval(s.Expr, env)
		if err != nil {
			return value.Value{}, signalNone, err
		}
		env.bind(s.Name, v)
		return v, signalNone, nil

	case *AssignStmt:
		v, err := i.eval(s.Expr, env)
		if err != nil {
			return value.Value{}, signalNone, err
		}
		if err := i.assignTo(s.Target, v, env); err != nil {
			return value.Value{}, signalNone, err
		}
		return v, signalNone, nil

	case *ExprStmt:
		v, err := i.eval(s.Expr, env)
		return v, signalNone, err

	case *FnDecl:
		env.bindFn(s.Name, s)
		return value.Null(), signalNone, nil

	case *BlockStmt:
		child := newEnvironment(env)
		return i.evalBlockStmts(s.Stmts, child)

	case *IfStmt:
		cond, err := i.eval(s.Cond, env)
		if err != nil {
			return value.Value{}, signalNone, err
		}
		if cond.Truthy() {
			return i.execStmt(s.Then, env)
		} else if s.Else != nil {
			return i.execStmt(s.Else, env)
		}
		return value.Null(), signalNone, nil

	case *ForStmt:
		return i.execFor(s, env)

	case *ReturnStmt:
		if s.Expr == nil {
			return value.Null(), signalReturn, nil
		}
		v, err := i.eval(s.Expr, env)
		if err != nil {
			return value.Value{}, signalNone, err
		}
		return v, signalReturn, nil

	default:
		return value.Value{}, signalNone, newRuntimeErr(InvalidArgument, "unknown statement type %T", stmt)
	}
}

func (i *Interpreter) execFor(s *ForStmt, env *environment) (value.Value, signal, error) {
	loopEnv := newEnvironment(env)
	if s.Init != nil {
		if _, _, err := i.execStmt(s.Init, loopEnv); err != nil {
			return value.Value{}, signalNone, err
		}
	}
	var last value.Value
	for {
		if s.Cond != nil {
			cond, err := i.eval(s.Cond, loopEnv)
			if err != nil {
				return value.Value{}, signalNone, err
			}
			if !cond.Truthy() {
				break
			}
		}
		v, sig, err := i.execStmt(s.Body, loopEnv)
		if err != nil {
			return value.Value{}, signalNone, err
		}
		last = v
		if sig == signalReturn {
			return v, signalReturn, nil
		}
		if s.Update != nil {
			if _, _, err := i.execStmt(s.Update, loopEnv); err != nil {
				return value.Value{}, signalNone, err
			}
		}
	}
	return last, signalNone, nil
}

func (i *Interpreter) assignTo(target Expr, v value.Value, env *environment) error {
	switch t := target.(type) {
	case *Identifier:
		if !env.assign(t.Name, v) {
			return newRuntimeErr(UndefinedVariable, "cannot assign to undeclared variable %q", t.Name)
		}
		return nil
	case *Index:
		container, err := i.eval(t.Collection, env)
		if err != nil {
			return err
		}
		idx, err := i.eval(t.Idx, env)
		if err != nil {
			return err
		}
		updated, err := indexSet(container, idx, v)
		if err != nil {
			return err
		}
		return i.assignTo(t.Collection, updated, env)
	case *Member:
		container, err := i.eval(t.Target, env)
		if err != nil {
			return err
		}
		updated, err := memberSet(container, t.Key, v)
		if err != nil {
			return err
		}
		return i.assignTo(t.Target, updated, env)
	default:
		return newRuntimeErr(InvalidArgument, "invalid assignment target")
	}
}
