package script

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/jmespath/go-jmespath"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"

	"github.com/rc1405/fiddler/internal/value"
)

// registerStandardBuiltins wires the fixed built-in library: type
// coercions, copy-on-write collection accessors, JSON/JMESPath
// bridges and codec/encoding helpers.
func registerStandardBuiltins(i *Interpreter) {
	i.builtins["int"] = builtinArity1(func(v value.Value) (value.Value, error) { return checked(value.ToInt(v)) })
	i.builtins["float"] = builtinArity1(func(v value.Value) (value.Value, error) { return checked(value.ToFloat(v)) })
	i.builtins["bytes"] = builtinArity1(func(v value.Value) (value.Value, error) { return value.Bytes(value.ToBytes(v)), nil })
	i.builtins["str"] = builtinArity1(func(v value.Value) (value.Value, error) { return value.Str(v.String()), nil })
	i.builtins["bytes_to_string"] = builtinArity1(func(v value.Value) (value.Value, error) {
		if v.Kind() != value.KindBytes {
			return value.Value{}, newRuntimeErr(TypeMismatch, "bytes_to_string() requires bytes, got %s", v.Kind())
		}
		return value.Str(string(v.BytesVal())), nil
	})

	i.builtins["len"] = builtinArity1(builtinLen)
	i.builtins["keys"] = builtinArity1(builtinKeys)
	i.builtins["get"] = builtinGet
	i.builtins["set"] = builtinSet
	i.builtins["push"] = builtinPush
	i.builtins["delete"] = builtinDelete

	i.builtins["parse_json"] = builtinArity1(builtinParseJSON)
	i.builtins["jmespath"] = builtinJMESPath

	i.builtins["gzip_compress"] = builtinArity1(func(v value.Value) (value.Value, error) { return compressWith(v, newGzipWriter) })
	i.builtins["gzip_decompress"] = builtinArity1(func(v value.Value) (value.Value, error) {
		return decompressWith(v, func(r io.Reader) (io.ReadCloser, error) { return gzip.NewReader(r) })
	})
	i.builtins["zlib_compress"] = builtinArity1(func(v value.Value) (value.Value, error) { return compressWith(v, newZlibWriter) })
	i.builtins["zlib_decompress"] = builtinArity1(func(v value.Value) (value.Value, error) {
		return decompressWith(v, func(r io.Reader) (io.ReadCloser, error) { return zlib.NewReader(r) })
	})
	i.builtins["deflate_compress"] = builtinArity1(func(v value.Value) (value.Value, error) { return compressWith(v, newFlateWriter) })
	i.builtins["deflate_decompress"] = builtinArity1(func(v value.Value) (value.Value, error) {
		return decompressWith(v, func(r io.Reader) (io.ReadCloser, error) { return flate.NewReader(r), nil })
	})

	i.builtins["base64_encode"] = builtinArity1(func(v value.Value) (value.Value, error) {
		if v.Kind() != value.KindBytes {
			return value.Value{}, newRuntimeErr(TypeMismatch, "base64_encode() requires bytes, got %s", v.Kind())
		}
		return value.Str(base64.StdEncoding.EncodeToString(v.BytesVal())), nil
	})
	i.builtins["base64_decode"] = builtinArity1(func(v value.Value) (value.Value, error) {
		if v.Kind() != value.KindString {
			return value.Value{}, newRuntimeErr(TypeMismatch, "base64_decode() requires a string, got %s", v.Kind())
		}
		out, err := base64.StdEncoding.DecodeString(v.String())
		if err != nil {
			return value.Value{}, newRuntimeErr(InvalidArgument, "base64_decode(): %s", err)
		}
		return value.Bytes(out), nil
	})

	i.builtins["array"] = func(_ *Interpreter, args []value.Value) (value.Value, error) {
		return value.Array(append([]value.Value{}, args...)), nil
	}
	i.builtins["dict"] = builtinArity0(func() (value.Value, error) { return value.EmptyDict(), nil })
	i.builtins["is_array"] = builtinArity1(func(v value.Value) (value.Value, error) {
		return value.Bool(v.Kind() == value.KindArray), nil
	})
	i.builtins["is_dict"] = builtinArity1(func(v value.Value) (value.Value, error) {
		return value.Bool(v.Kind() == value.KindDict), nil
	})
	i.builtins["print"] = func(interp *Interpreter, args []value.Value) (value.Value, error) {
		parts := make([]string, len(args))
		for idx, a := range args {
			parts[idx] = a.String()
		}
		w := interp.Writer
		if w == nil {
			w = os.Stdout
		}
		fmt.Fprintln(w, strings.Join(parts, " "))
		return value.Null(), nil
	}
	i.builtins["getenv"] = builtinArity1(func(v value.Value) (value.Value, error) {
		if v.Kind() != value.KindString {
			return value.Value{}, newRuntimeErr(TypeMismatch, "getenv() requires a string argument, got %s", v.Kind())
		}
		val, ok := os.LookupEnv(v.String())
		if !ok {
			return value.Null(), nil
		}
		return value.Str(val), nil
	})

	i.builtins["abs"] = builtinArity1(builtinAbs)
	i.builtins["ceil"] = builtinArity1(func(v value.Value) (value.Value, error) { return roundingBuiltin(v, "ceil", math.Ceil) })
	i.builtins["floor"] = builtinArity1(func(v value.Value) (value.Value, error) { return roundingBuiltin(v, "floor", math.Floor) })
	i.builtins["round"] = builtinArity1(func(v value.Value) (value.Value, error) { return roundingBuiltin(v, "round", math.Round) })

	i.builtins["lines"] = builtinArity1(func(v value.Value) (value.Value, error) {
		s, err := stringOrBytesArg(v, "lines")
		if err != nil {
			return value.Value{}, err
		}
		parts := strings.Split(s, "\n")
		out := make([]value.Value, len(parts))
		for idx, p := range parts {
			out[idx] = value.Str(p)
		}
		return value.Array(out), nil
	})
	i.builtins["capitalize"] = builtinArity1(func(v value.Value) (value.Value, error) {
		s, err := stringOrBytesArg(v, "capitalize")
		if err != nil {
			return value.Value{}, err
		}
		if s == "" {
			return value.Str(""), nil
		}
		r, size := utf8.DecodeRuneInString(s)
		return value.Str(string(unicode.ToUpper(r)) + s[size:]), nil
	})
	i.builtins["lowercase"] = builtinArity1(func(v value.Value) (value.Value, error) {
		s, err := stringOrBytesArg(v, "lowercase")
		if err != nil {
			return value.Value{}, err
		}
		return value.Str(strings.ToLower(s)), nil
	})
	i.builtins["uppercase"] = builtinArity1(func(v value.Value) (value.Value, error) {
		s, err := stringOrBytesArg(v, "uppercase")
		if err != nil {
			return value.Value{}, err
		}
		return value.Str(strings.ToUpper(s)), nil
	})
	i.builtins["trim"] = builtinArity1(func(v value.Value) (value.Value, error) {
		s, err := stringOrBytesArg(v, "trim")
		if err != nil {
			return value.Value{}, err
		}
		return value.Str(strings.TrimSpace(s)), nil
	})
	i.builtins["trim_prefix"] = builtinArity2Strings("trim_prefix", func(s, prefix string) (value.Value, error) {
		return value.Str(strings.TrimPrefix(s, prefix)), nil
	})
	i.builtins["trim_suffix"] = builtinArity2Strings("trim_suffix", func(s, suffix string) (value.Value, error) {
		return value.Str(strings.TrimSuffix(s, suffix)), nil
	})
	i.builtins["has_prefix"] = builtinArity2Strings("has_prefix", func(s, prefix string) (value.Value, error) {
		return value.Bool(strings.HasPrefix(s, prefix)), nil
	})
	i.builtins["has_suffix"] = builtinArity2Strings("has_suffix", func(s, suffix string) (value.Value, error) {
		return value.Bool(strings.HasSuffix(s, suffix)), nil
	})
	i.builtins["split"] = builtinArity2Strings("split", func(s, delim string) (value.Value, error) {
		parts := strings.Split(s, delim)
		out := make([]value.Value, len(parts))
		for idx, p := range parts {
			out[idx] = value.Str(p)
		}
		return value.Array(out), nil
	})
	i.builtins["reverse"] = builtinArity1(builtinReverse)

	i.builtins["timestamp"] = builtinArity0(func() (value.Value, error) { return value.Int(time.Now().Unix()), nil })
	i.builtins["epoch"] = i.builtins["timestamp"]
	i.builtins["timestamp_millis"] = builtinArity0(func() (value.Value, error) { return value.Int(time.Now().UnixMilli()), nil })
	i.builtins["timestamp_micros"] = builtinArity0(func() (value.Value, error) { return value.Int(time.Now().UnixMicro()), nil })
	i.builtins["timestamp_iso8601"] = builtinArity0(func() (value.Value, error) {
		return value.Str(time.Now().UTC().Format(time.RFC3339Nano)), nil
	})
}

func builtinArity0(fn func() (value.Value, error)) BuiltinFunc {
	return func(_ *Interpreter, args []value.Value) (value.Value, error) {
		if len(args) != 0 {
			return value.Value{}, newRuntimeErr(InvalidArgument, "expected 0 arguments, got %d", len(args))
		}
		return fn()
	}
}

// builtinArity2Strings wraps a function of (subject, arg) where subject
// accepts string or bytes and arg must be a string, the shape shared by
// trim_prefix/trim_suffix/has_prefix/has_suffix/split.
func builtinArity2Strings(name string, fn func(s, arg string) (value.Value, error)) BuiltinFunc {
	return func(_ *Interpreter, args []value.Value) (value.Value, error) {
		if len(args) != 2 {
			return value.Value{}, newRuntimeErr(InvalidArgument, "%s() expects 2 arguments, got %d", name, len(args))
		}
		s, err := stringOrBytesArg(args[0], name)
		if err != nil {
			return value.Value{}, err
		}
		if args[1].Kind() != value.KindString {
			return value.Value{}, newRuntimeErr(TypeMismatch, "%s() requires a string as its second argument, got %s", name, args[1].Kind())
		}
		return fn(s, args[1].String())
	}
}

// stringOrBytesArg accepts a string or bytes value, the argument shape
// most string built-ins share with their FiddlerScript counterparts.
func stringOrBytesArg(v value.Value, name string) (string, error) {
	switch v.Kind() {
	case value.KindString:
		return v.String(), nil
	case value.KindBytes:
		return string(v.BytesVal()), nil
	default:
		return "", newRuntimeErr(TypeMismatch, "%s() requires a string or bytes argument, got %s", name, v.Kind())
	}
}

func builtinAbs(v value.Value) (value.Value, error) {
	switch v.Kind() {
	case value.KindInteger:
		n := v.Int()
		if n == math.MinInt64 {
			return value.Int(math.MaxInt64), nil
		}
		if n < 0 {
			n = -n
		}
		return value.Int(n), nil
	case value.KindFloat:
		return value.Float(math.Abs(v.Float64())), nil
	default:
		return value.Value{}, newRuntimeErr(TypeMismatch, "abs() requires a numeric argument, got %s", v.Kind())
	}
}

// roundingBuiltin implements ceil/floor/round: an integer argument
// passes through unchanged, a float argument rounds via fn and
// truncates to an integer.
func roundingBuiltin(v value.Value, name string, fn func(float64) float64) (value.Value, error) {
	switch v.Kind() {
	case value.KindInteger:
		return v, nil
	case value.KindFloat:
		return value.Int(int64(fn(v.Float64()))), nil
	default:
		return value.Value{}, newRuntimeErr(TypeMismatch, "%s() requires a numeric argument, got %s", name, v.Kind())
	}
}

func builtinReverse(v value.Value) (value.Value, error) {
	switch v.Kind() {
	case value.KindString:
		runes := []rune(v.String())
		for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
			runes[i], runes[j] = runes[j], runes[i]
		}
		return value.Str(string(runes)), nil
	case value.KindArray:
		src := v.ArrayVal()
		out := make([]value.Value, len(src))
		for i, item := range src {
			out[len(src)-1-i] = item
		}
		return value.Array(out), nil
	case value.KindBytes:
		src := v.BytesVal()
		out := make([]byte, len(src))
		for i, b := range src {
			out[len(src)-1-i] = b
		}
		return value.Bytes(out), nil
	default:
		return value.Value{}, newRuntimeErr(TypeMismatch, "reverse() requires a string, array, or bytes argument, got %s", v.Kind())
	}
}

func builtinArity1(fn func(value.Value) (value.Value, error)) BuiltinFunc {
	return func(_ *Interpreter, args []value.Value) (value.Value, error) {
		if len(args) != 1 {
			return value.Value{}, newRuntimeErr(InvalidArgument, "expected 1 argument, got %d", len(args))
		}
		return fn(args[0])
	}
}

func checked(v value.Value, err error) (value.Value, error) {
	if err != nil {
		return value.Value{}, wrapTypeErr(err)
	}
	return v, nil
}

func builtinLen(v value.Value) (value.Value, error) {
	switch v.Kind() {
	case value.KindString:
		return value.Int(int64(len(v.String()))), nil
	case value.KindBytes:
		return value.Int(int64(len(v.BytesVal()))), nil
	case value.KindArray:
		return value.Int(int64(len(v.ArrayVal()))), nil
	case value.KindDict:
		return value.Int(int64(v.DictVal().Len())), nil
	default:
		return value.Value{}, newRuntimeErr(TypeMismatch, "len() not defined for %s", v.Kind())
	}
}

func builtinKeys(v value.Value) (value.Value, error) {
	if v.Kind() != value.KindDict {
		return value.Value{}, newRuntimeErr(TypeMismatch, "keys() requires a dict, got %s", v.Kind())
	}
	ks := v.DictVal().Keys()
	out := make([]value.Value, len(ks))
	for idx, k := range ks {
		out[idx] = value.Str(k)
	}
	return value.Array(out), nil
}

// builtinGet mirrors the `[]` operator as a callable: get on a
// missing key/out-of-range index returns Null, never errors.
func builtinGet(_ *Interpreter, args []value.Value) (value.Value, error) {
	if len(args) != 2 {
		return value.Value{}, newRuntimeErr(InvalidArgument, "get() expects 2 arguments, got %d", len(args))
	}
	return indexGet(args[0], args[1])
}

// builtinSet returns a new collection with key/index replaced,
// leaving the argument untouched (copy-on-write).
func builtinSet(_ *Interpreter, args []value.Value) (value.Value, error) {
	if len(args) != 3 {
		return value.Value{}, newRuntimeErr(InvalidArgument, "set() expects 3 arguments, got %d", len(args))
	}
	return indexSet(args[0], args[1], args[2])
}

// builtinPush returns a new array with value appended.
func builtinPush(_ *Interpreter, args []value.Value) (value.Value, error) {
	if len(args) != 2 {
		return value.Value{}, newRuntimeErr(InvalidArgument, "push() expects 2 arguments, got %d", len(args))
	}
	arr, v := args[0], args[1]
	if arr.Kind() != value.KindArray {
		return value.Value{}, newRuntimeErr(TypeMismatch, "push() requires an array, got %s", arr.Kind())
	}
	src := arr.ArrayVal()
	out := make([]value.Value, len(src)+1)
	copy(out, src)
	out[len(src)] = v
	return value.Array(out), nil
}

// builtinDelete returns a new array/dict with the given index/key
// removed.
func builtinDelete(_ *Interpreter, args []value.Value) (value.Value, error) {
	if len(args) != 2 {
		return value.Value{}, newRuntimeErr(InvalidArgument, "delete() expects 2 arguments, got %d", len(args))
	}
	coll, key := args[0], args[1]
	switch coll.Kind() {
	case value.KindDict:
		if key.Kind() != value.KindString {
			return value.Value{}, newRuntimeErr(TypeMismatch, "dict key must be a string, got %s", key.Kind())
		}
		d := coll.DictVal().Clone()
		d.Delete(key.String())
		return value.DictVal(d), nil
	case value.KindArray:
		n, err := indexToInt(key)
		if err != nil {
			return value.Value{}, err
		}
		src := coll.ArrayVal()
		if n < 0 || n >= int64(len(src)) {
			return value.Value{}, newRuntimeErr(IndexOutOfRange, "index %d out of range for array of length %d", n, len(src))
		}
		out := make([]value.Value, 0, len(src)-1)
		out = append(out, src[:n]...)
		out = append(out, src[n+1:]...)
		return value.Array(out), nil
	default:
		return value.Value{}, newRuntimeErr(TypeMismatch, "delete() not defined for %s", coll.Kind())
	}
}

func builtinParseJSON(v value.Value) (value.Value, error) {
	var data []byte
	switch v.Kind() {
	case value.KindBytes:
		data = v.BytesVal()
	case value.KindString:
		data = []byte(v.String())
	default:
		return value.Value{}, newRuntimeErr(TypeMismatch, "parse_json() requires bytes or string, got %s", v.Kind())
	}
	out, err := value.ParseJSON(data)
	if err != nil {
		return value.Value{}, newRuntimeErr(InvalidArgument, "parse_json(): %s", err)
	}
	return out, nil
}

// builtinJMESPath evaluates expr (a compiled-per-call JMESPath query
// -- callers that hot-loop a fixed expression should cache the
// compiled query themselves via register_builtin) against value.
func builtinJMESPath(_ *Interpreter, args []value.Value) (value.Value, error) {
	if len(args) != 2 {
		return value.Value{}, newRuntimeErr(InvalidArgument, "jmespath() expects 2 arguments, got %d", len(args))
	}
	subject, exprArg := args[0], args[1]
	if exprArg.Kind() != value.KindString {
		return value.Value{}, newRuntimeErr(TypeMismatch, "jmespath() expression must be a string, got %s", exprArg.Kind())
	}
	result, err := jmespath.Search(exprArg.String(), value.ToInterface(subject))
	if err != nil {
		return value.Value{}, newRuntimeErr(InvalidArgument, "jmespath(): %s", err)
	}
	if result == nil {
		return value.Null(), nil
	}
	return value.FromInterface(result), nil
}

type writeCloserFactory func(io.Writer) (io.WriteCloser, error)

func newGzipWriter(w io.Writer) (io.WriteCloser, error)  { return gzip.NewWriter(w), nil }
func newZlibWriter(w io.Writer) (io.WriteCloser, error)  { return zlib.NewWriter(w), nil }
func newFlateWriter(w io.Writer) (io.WriteCloser, error) { return flate.NewWriter(w, flate.DefaultCompression) }

func compressWith(v value.Value, newWriter writeCloserFactory) (value.Value, error) {
	if v.Kind() != value.KindBytes {
		return value.Value{}, newRuntimeErr(TypeMismatch, "compression built-ins require bytes, got %s", v.Kind())
	}
	var buf bytes.Buffer
	wc, err := newWriter(&buf)
	if err != nil {
		return value.Value{}, newRuntimeErr(InvalidArgument, "compress: %s", err)
	}
	if _, err := wc.Write(v.BytesVal()); err != nil {
		return value.Value{}, newRuntimeErr(InvalidArgument, "compress: %s", err)
	}
	if err := wc.Close(); err != nil {
		return value.Value{}, newRuntimeErr(InvalidArgument, "compress: %s", err)
	}
	return value.Bytes(buf.Bytes()), nil
}

func decompressWith(v value.Value, newReader func(io.Reader) (io.ReadCloser, error)) (value.Value, error) {
	if v.Kind() != value.KindBytes {
		return value.Value{}, newRuntimeErr(TypeMismatch, "decompression built-ins require bytes, got %s", v.Kind())
	}
	rc, err := newReader(bytes.NewReader(v.BytesVal()))
	if err != nil {
		return value.Value{}, newRuntimeErr(InvalidArgument, "decompress: %s", err)
	}
	defer rc.Close()
	out, err := io.ReadAll(rc)
	if err != nil {
		return value.Value{}, newRuntimeErr(InvalidArgument, "decompress: %s", err)
	}
	return value.Bytes(out), nil
}
