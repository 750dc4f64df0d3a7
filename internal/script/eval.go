package script

import (
	"github.com/rc1405/fiddler/internal/value"
)

// eval evaluates a single expression node against env.
func (i *Interpreter) eval(expr Expr, env *environment) (value.Value, error) {
	switch e := expr.(type) {
	case *IntLit:
		return value.Int(e.Value), nil
	case *FloatLit:
		return value.Float(e.Value), nil
	case *StringLit:
		return value.Str(e.Value), nil
	case *BoolLit:
		return value.Bool(e.Value), nil
	case *NullLit:
		return value.Null(), nil

	case *ArrayLit:
		items := make([]value.Value, len(e.Elements))
		for idx, el := range e.Elements {
			v, err := i.eval(el, env)
			if err != nil {
				return value.Value{}, err
			}
			items[idx] = v
		}
		return value.Array(items), nil

	case *DictLit:
		d := value.NewDict()
		for _, entry := range e.Entries {
			v, err := i.eval(entry.Value, env)
			if err != nil {
				return value.Value{}, err
			}
			d.Set(entry.Key, v)
		}
		return value.DictVal(d), nil

	case *Identifier:
		if v, ok := env.get(e.Name); ok {
			return v, nil
		}
		return value.Value{}, newRuntimeErr(UndefinedVariable, "undefined variable %q", e.Name)

	case *UnaryOp:
		v, err := i.eval(e.Expr, env)
		if err != nil {
			return value.Value{}, err
		}
		return i.evalUnary(e.Op, v)

	case *BinaryOp:
		return i.evalBinary(e, env)

	case *Index:
		container, err := i.eval(e.Collection, env)
		if err != nil {
			return value.Value{}, err
		}
		idx, err := i.eval(e.Idx, env)
		if err != nil {
			return value.Value{}, err
		}
		return indexGet(container, idx)

	case *Member:
		container, err := i.eval(e.Target, env)
		if err != nil {
			return value.Value{}, err
		}
		return memberGet(container, e.Key)

	case *Call:
		return i.evalCall(e, env)

	case *MethodCall:
		return i.evalMethodCall(e, env)

	default:
		return value.Value{}, newRuntimeErr(InvalidArgument, "unknown expression type %T", expr)
	}
}

func (i *Interpreter) evalUnary(op Type, v value.Value) (value.Value, error) {
	switch op {
	case MINUS:
		r, err := value.Neg(v)
		if err != nil {
			return value.Value{}, wrapTypeErr(err)
		}
		return r, nil
	case NOT:
		return value.Bool(!v.Truthy()), nil
	default:
		return value.Value{}, newRuntimeErr(InvalidArgument, "unknown unary operator")
	}
}

func (i *Interpreter) evalBinary(e *BinaryOp, env *environment) (value.Value, error) {
	// AND/OR short-circuit and never evaluate the right side unnecessarily.
	if e.Op == AND {
		left, err := i.eval(e.Left, env)
		if err != nil {
			return value.Value{}, err
		}
		if !left.Truthy() {
			return value.Bool(false), nil
		}
		right, err := i.eval(e.Right, env)
		if err != nil {
			return value.Value{}, err
		}
		return value.Bool(right.Truthy()), nil
	}
	if e.Op == OR {
		left, err := i.eval(e.Left, env)
		if err != nil {
			return value.Value{}, err
		}
		if left.Truthy() {
			return value.Bool(true), nil
		}
		right, err := i.eval(e.Right, env)
		if err != nil {
			return value.Value{}, err
		}
		return value.Bool(right.Truthy()), nil
	}

	left, err := i.eval(e.Left, env)
	if err != nil {
		return value.Value{}, err
	}
	right, err := i.eval(e.Right, env)
	if err != nil {
		return value.Value{}, err
	}

	switch e.Op {
	case PLUS:
		r, err := value.Add(left, right)
		if err != nil {
			return value.Value{}, wrapTypeErr(err)
		}
		return r, nil
	case MINUS:
		r, err := value.Sub(left, right)
		if err != nil {
			return value.Value{}, wrapTypeErr(err)
		}
		return r, nil
	case STAR:
		r, err := value.Mul(left, right)
		if err != nil {
			return value.Value{}, wrapTypeErr(err)
		}
		return r, nil
	case SLASH:
		r, err := value.Div(left, right)
		if err != nil {
			return value.Value{}, wrapArithErr(err)
		}
		return r, nil
	case PERCENT:
		r, err := value.Mod(left, right)
		if err != nil {
			return value.Value{}, wrapArithErr(err)
		}
		return r, nil
	case EQ:
		return value.Bool(left.Equal(right)), nil
	case NEQ:
		return value.Bool(!left.Equal(right)), nil
	case LT, LTE, GT, GTE:
		c, err := value.Compare(left, right)
		if err != nil {
			return value.Value{}, wrapTypeErr(err)
		}
		switch e.Op {
		case LT:
			return value.Bool(c < 0), nil
		case LTE:
			return value.Bool(c <= 0), nil
		case GT:
			return value.Bool(c > 0), nil
		default:
			return value.Bool(c >= 0), nil
		}
	default:
		return value.Value{}, newRuntimeErr(InvalidArgument, "unknown binary operator")
	}
}

func wrapTypeErr(err error) error {
	if _, ok := err.(*value.TypeError); ok {
		return newRuntimeErr(TypeMismatch, "%s", err.Error())
	}
	return err
}

func wrapArithErr(err error) error {
	if _, ok := err.(*value.DivisionByZeroError); ok {
		return newRuntimeErr(DivisionByZero, "%s", err.Error())
	}
	return wrapTypeErr(err)
}

// indexGet implements `[]` on Array (int index) and Dict (string key).
// Out-of-range or missing keys yield Null, not an error.
func indexGet(container, idx value.Value) (value.Value, error) {
	switch container.Kind() {
	case value.KindArray:
		arr := container.ArrayVal()
		n, err := indexToInt(idx)
		if err != nil {
			return value.Value{}, err
		}
		if n < 0 || n >= int64(len(arr)) {
			return value.Null(), nil
		}
		return arr[n], nil
	case value.KindDict:
		if idx.Kind() != value.KindString {
			return value.Value{}, newRuntimeErr(TypeMismatch, "dict key must be a string, got %s", idx.Kind())
		}
		v, ok := container.DictVal().Get(idx.String())
		if !ok {
			return value.Null(), nil
		}
		return v, nil
	case value.KindBytes:
		by := container.BytesVal()
		n, err := indexToInt(idx)
		if err != nil {
			return value.Value{}, err
		}
		if n < 0 || n >= int64(len(by)) {
			return value.Null(), nil
		}
		return value.Int(int64(by[n])), nil
	default:
		return value.Value{}, newRuntimeErr(TypeMismatch, "cannot index into %s", container.Kind())
	}
}

func indexToInt(idx value.Value) (int64, error) {
	if idx.Kind() != value.KindInteger {
		return 0, newRuntimeErr(TypeMismatch, "index must be an integer, got %s", idx.Kind())
	}
	return idx.Int(), nil
}

// indexSet implements assignment through `[]`, returning a new
// container value (copy-on-write).
func indexSet(container, idx, v value.Value) (value.Value, error) {
	switch container.Kind() {
	case value.KindArray:
		n, err := indexToInt(idx)
		if err != nil {
			return value.Value{}, err
		}
		src := container.ArrayVal()
		if n < 0 || n >= int64(len(src)) {
			return value.Value{}, newRuntimeErr(IndexOutOfRange, "index %d out of range for array of length %d", n, len(src))
		}
		out := append([]value.Value(nil), src...)
		out[n] = v
		return value.Array(out), nil
	case value.KindDict:
		if idx.Kind() != value.KindString {
			return value.Value{}, newRuntimeErr(TypeMismatch, "dict key must be a string, got %s", idx.Kind())
		}
		d := container.DictVal().Clone()
		d.Set(idx.String(), v)
		return value.DictVal(d), nil
	default:
		return value.Value{}, newRuntimeErr(TypeMismatch, "cannot assign by index into %s", container.Kind())
	}
}

// memberGet implements dotted field access on a Dict; it never errors
// for a missing key, mirroring indexGet.
func memberGet(container value.Value, key string) (value.Value, error) {
	if container.Kind() != value.KindDict {
		return value.Value{}, newRuntimeErr(TypeMismatch, "cannot access field %q on %s", key, container.Kind())
	}
	v, ok := container.DictVal().Get(key)
	if !ok {
		return value.Null(), nil
	}
	return v, nil
}

func memberSet(container value.Value, key string, v value.Value) (value.Value, error) {
	if container.Kind() != value.KindDict {
		return value.Value{}, newRuntimeErr(TypeMismatch, "cannot assign field %q on %s", key, container.Kind())
	}
	d := container.DictVal().Clone()
	d.Set(key, v)
	return value.DictVal(d), nil
}

func (i *Interpreter) evalCall(e *Call, env *environment) (value.Value, error) {
	ident, ok := e.Callee.(*Identifier)
	if !ok {
		return value.Value{}, newRuntimeErr(InvalidArgument, "call target must be a function name")
	}
	args, err := i.evalArgs(e.Args, env)
	if err != nil {
		return value.Value{}, err
	}
	return i.dispatch(ident.Name, args, env)
}

// evalMethodCall rewrites `x.f(a, b)` into a call of f with x
// prepended to the argument list.
func (i *Interpreter) evalMethodCall(e *MethodCall, env *environment) (value.Value, error) {
	recv, err := i.eval(e.Receiver, env)
	if err != nil {
		return value.Value{}, err
	}
	args, err := i.evalArgs(e.Args, env)
	if err != nil {
		return value.Value{}, err
	}
	full := append([]value.Value{recv}, args...)
	return i.dispatch(e.Name, full, env)
}

func (i *Interpreter) evalArgs(exprs []Expr, env *environment) ([]value.Value, error) {
	args := make([]value.Value, len(exprs))
	for idx, a := range exprs {
		v, err := i.eval(a, env)
		if err != nil {
			return nil, err
		}
		args[idx] = v
	}
	return args, nil
}

// dispatch resolves name against built-ins first, then user-declared
// functions, mirroring the call-resolution order of the language this
// interpreter reimplements.
func (i *Interpreter) dispatch(name string, args []value.Value, env *environment) (value.Value, error) {
	if fn, ok := i.builtins[name]; ok {
		return fn(i, args)
	}
	if decl, ok := env.getFn(name); ok {
		return i.callFn(decl, args, env)
	}
	return value.Value{}, newRuntimeErr(UndefinedVariable, "undefined function %q", name)
}

func (i *Interpreter) callFn(decl *FnDecl, args []value.Value, defEnv *environment) (value.Value, error) {
	i.depth++
	defer func() { i.depth-- }()
	if i.depth > maxRecursionDepth {
		return value.Value{}, newRuntimeErr(RecursionLimit, "exceeded maximum call depth of %d", maxRecursionDepth)
	}
	if len(args) != len(decl.Params) {
		return value.Value{}, newRuntimeErr(InvalidArgument, "function %q expects %d argument(s), got %d", decl.Name, len(decl.Params), len(args))
	}
	callEnv := newEnvironment(defEnv)
	for idx, p := range decl.Params {
		callEnv.bind(p, args[idx])
	}
	v, _, err := i.evalBlockStmts(decl.Body.Stmts, callEnv)
	if err != nil {
		return value.Value{}, err
	}
	return v, nil
}
