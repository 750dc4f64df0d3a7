package value

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
)

// Value is FiddlerScript's universal tagged value. The zero Value is
// Null. Values are treated as immutable by callers: Array and Dict
// mutators return a new Value rather than editing in place.
type Value struct {
	kind Kind
	i    int64
	f    float64
	b    bool
	s    string
	by   []byte
	arr  []Value
	dict *Dict
}

// Constructors.

func Null() Value                 { return Value{kind: KindNull} }
func Int(i int64) Value           { return Value{kind: KindInteger, i: i} }
func Float(f float64) Value       { return Value{kind: KindFloat, f: f} }
func Str(s string) Value          { return Value{kind: KindString, s: s} }
func Bool(b bool) Value           { return Value{kind: KindBoolean, b: b} }
func Bytes(b []byte) Value        { return Value{kind: KindBytes, by: b} }
func Array(items []Value) Value   { return Value{kind: KindArray, arr: items} }
func DictVal(d *Dict) Value       { return Value{kind: KindDict, dict: d} }
func EmptyArray() Value           { return Value{kind: KindArray, arr: []Value{}} }
func EmptyDict() Value            { return Value{kind: KindDict, dict: NewDict()} }

// Kind returns the discriminant.
func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

// Raw accessors. Callers should check Kind first; these panic-free
// accessors return the zero value for a mismatched kind.

func (v Value) Int() int64 {
	if v.kind == KindInteger {
		return v.i
	}
	return 0
}

func (v Value) Float64() float64 {
	if v.kind == KindFloat {
		return v.f
	}
	return 0
}

func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindInteger:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBoolean:
		return strconv.FormatBool(v.b)
	case KindBytes:
		return string(v.by)
	case KindNull:
		return "null"
	default:
		return fmt.Sprintf("<%s>", v.kind)
	}
}

func (v Value) Bool() bool { return v.b }

func (v Value) BytesVal() []byte { return v.by }

func (v Value) ArrayVal() []Value { return v.arr }

func (v Value) DictVal() *Dict { return v.dict }

// Truthy implements the language's falsy set: false, 0, 0.0, "", empty
// bytes, empty array, empty dict and null are falsy; everything else
// is truthy.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNull:
		return false
	case KindBoolean:
		return v.b
	case KindInteger:
		return v.i != 0
	case KindFloat:
		return v.f != 0
	case KindString:
		return v.s != ""
	case KindBytes:
		return len(v.by) != 0
	case KindArray:
		return len(v.arr) != 0
	case KindDict:
		return v.dict.Len() != 0
	default:
		return false
	}
}

// Equal implements structural equality.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		// Integer/Float are compared numerically like the arithmetic
		// promotion rules do, mirroring `1 == 1.0`.
		if v.kind == KindInteger && o.kind == KindFloat {
			return float64(v.i) == o.f
		}
		if v.kind == KindFloat && o.kind == KindInteger {
			return v.f == float64(o.i)
		}
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindInteger:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f
	case KindString:
		return v.s == o.s
	case KindBoolean:
		return v.b == o.b
	case KindBytes:
		return bytes.Equal(v.by, o.by)
	case KindArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	case KindDict:
		return v.dict.Equal(o.dict)
	default:
		return false
	}
}

// TypeError is raised by comparisons, arithmetic and coercions applied
// to incompatible kinds.
type TypeError struct {
	Op   string
	Kind Kind
	Want string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("type mismatch in %s: got %s, want %s", e.Op, e.Kind, e.Want)
}

// DivisionByZeroError is raised by / and % with a zero divisor.
type DivisionByZeroError struct{}

func (e *DivisionByZeroError) Error() string { return "division by zero" }

func isNumeric(k Kind) bool { return k == KindInteger || k == KindFloat }

func (v Value) asFloat() float64 {
	if v.kind == KindInteger {
		return float64(v.i)
	}
	return v.f
}

// Add implements `+`: numeric addition with int/float promotion,
// string concatenation, array concatenation and byte concatenation.
func Add(a, b Value) (Value, error) {
	switch {
	case isNumeric(a.kind) && isNumeric(b.kind):
		return arith(a, b, "+")
	case a.kind == KindString && b.kind == KindString:
		return Str(a.s + b.s), nil
	case a.kind == KindArray && b.kind == KindArray:
		out := make([]Value, 0, len(a.arr)+len(b.arr))
		out = append(out, a.arr...)
		out = append(out, b.arr...)
		return Array(out), nil
	case a.kind == KindBytes && b.kind == KindBytes:
		out := make([]byte, 0, len(a.by)+len(b.by))
		out = append(out, a.by...)
		out = append(out, b.by...)
		return Bytes(out), nil
	default:
		return Value{}, &TypeError{Op: "+", Kind: a.kind, Want: b.kind.String()}
	}
}

// Arith applies a numeric binary operator (+, -, *, /, %), promoting
// Integer/Integer to Integer and any Integer/Float mix to Float.
func arith(a, b Value, op string) (Value, error) {
	bothInt := a.kind == KindInteger && b.kind == KindInteger
	switch op {
	case "+":
		if bothInt {
			return Int(a.i + b.i), nil
		}
		return Float(a.asFloat() + b.asFloat()), nil
	case "-":
		if bothInt {
			return Int(a.i - b.i), nil
		}
		return Float(a.asFloat() - b.asFloat()), nil
	case "*":
		if bothInt {
			return Int(a.i * b.i), nil
		}
		return Float(a.asFloat() * b.asFloat()), nil
	case "/":
		if bothInt {
			if b.i == 0 {
				return Value{}, &DivisionByZeroError{}
			}
			return Int(a.i / b.i), nil // truncates toward zero, Go semantics
		}
		if b.asFloat() == 0 {
			return Value{}, &DivisionByZeroError{}
		}
		return Float(a.asFloat() / b.asFloat()), nil
	case "%":
		if bothInt {
			if b.i == 0 {
				return Value{}, &DivisionByZeroError{}
			}
			return Int(a.i % b.i), nil // sign follows dividend, Go semantics
		}
		if b.asFloat() == 0 {
			return Value{}, &DivisionByZeroError{}
		}
		return Float(math.Mod(a.asFloat(), b.asFloat())), nil
	}
	return Value{}, fmt.Errorf("unknown arithmetic op %q", op)
}

// Sub, Mul, Div, Mod mirror Add for the remaining arithmetic operators.
// They only accept numeric operands.
func Sub(a, b Value) (Value, error) { return numericOp(a, b, "-") }
func Mul(a, b Value) (Value, error) { return numericOp(a, b, "*") }
func Div(a, b Value) (Value, error) { return numericOp(a, b, "/") }
func Mod(a, b Value) (Value, error) { return numericOp(a, b, "%") }

func numericOp(a, b Value, op string) (Value, error) {
	if !isNumeric(a.kind) || !isNumeric(b.kind) {
		return Value{}, &TypeError{Op: op, Kind: a.kind, Want: "number"}
	}
	return arith(a, b, op)
}

// Neg implements unary `-`.
func Neg(a Value) (Value, error) {
	switch a.kind {
	case KindInteger:
		return Int(-a.i), nil
	case KindFloat:
		return Float(-a.f), nil
	default:
		return Value{}, &TypeError{Op: "unary -", Kind: a.kind, Want: "number"}
	}
}

// Compare implements <, <=, >, >= across two numeric or two string
// values; anything else is a TypeMismatch.
func Compare(a, b Value) (int, error) {
	switch {
	case isNumeric(a.kind) && isNumeric(b.kind):
		af, bf := a.asFloat(), b.asFloat()
		switch {
		case af < bf:
			return -1, nil
		case af > bf:
			return 1, nil
		default:
			return 0, nil
		}
	case a.kind == KindString && b.kind == KindString:
		switch {
		case a.s < b.s:
			return -1, nil
		case a.s > b.s:
			return 1, nil
		default:
			return 0, nil
		}
	default:
		return 0, &TypeError{Op: "comparison", Kind: a.kind, Want: b.kind.String()}
	}
}

// ToInt implements `int(x)`: truncates floats toward zero, parses
// strings as signed decimal, and coerces true/false/null to 1/0/0.
func ToInt(v Value) (Value, error) {
	switch v.kind {
	case KindInteger:
		return v, nil
	case KindFloat:
		return Int(int64(v.f)), nil
	case KindBoolean:
		if v.b {
			return Int(1), nil
		}
		return Int(0), nil
	case KindNull:
		return Int(0), nil
	case KindString:
		i, err := strconv.ParseInt(v.s, 10, 64)
		if err != nil {
			return Value{}, &TypeError{Op: "int()", Kind: v.kind, Want: "parseable integer string"}
		}
		return Int(i), nil
	default:
		return Value{}, &TypeError{Op: "int()", Kind: v.kind, Want: "number, bool, null or string"}
	}
}

// ToFloat implements `float(x)`, mirroring ToInt for the float target
// type; strings are parsed as IEEE-754.
func ToFloat(v Value) (Value, error) {
	switch v.kind {
	case KindFloat:
		return v, nil
	case KindInteger:
		return Float(float64(v.i)), nil
	case KindBoolean:
		if v.b {
			return Float(1), nil
		}
		return Float(0), nil
	case KindNull:
		return Float(0), nil
	case KindString:
		f, err := strconv.ParseFloat(v.s, 64)
		if err != nil {
			return Value{}, &TypeError{Op: "float()", Kind: v.kind, Want: "parseable float string"}
		}
		return Float(f), nil
	default:
		return Value{}, &TypeError{Op: "float()", Kind: v.kind, Want: "number, bool, null or string"}
	}
}

// ToBytes implements `bytes(x)`, the fallback coercion applied to any
// non-Bytes `this` returned from a fiddlerscript block.
func ToBytes(v Value) []byte {
	switch v.kind {
	case KindBytes:
		return v.by
	default:
		return []byte(v.String())
	}
}
