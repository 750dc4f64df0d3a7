package script_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rc1405/fiddler/internal/script"
	"github.com/rc1405/fiddler/internal/value"
)

func TestRecursiveFunctionCall(t *testing.T) {
	// S6: fn f(n){ if (n<=1) return n; return f(n-1)+f(n-2); } let r = f(10);
	interp := script.New()
	err := interp.Run(`
		fn f(n) {
			if (n <= 1) {
				return n;
			}
			return f(n-1) + f(n-2);
		}
		let r = f(10);
	`)
	require.NoError(t, err)

	r, ok := interp.GetValue("r")
	require.True(t, ok)
	assert.Equal(t, int64(55), r.Int())
}

func TestLetShadowsAndAssignWritesEnclosingScope(t *testing.T) {
	interp := script.New()
	err := interp.Run(`
		let x = 1;
		if (true) {
			let x = 2;
			x = 3;
		}
		let y = x;
	`)
	require.NoError(t, err)
	y, ok := interp.GetValue("y")
	require.True(t, ok)
	assert.Equal(t, int64(1), y.Int(), "inner let-shadowed x must not leak back into the outer scope")
}

func TestFunctionCallSeesEnclosingBlockScope(t *testing.T) {
	interp := script.New()
	err := interp.Run(`
		fn double(n) { return n * factor; }
		let r = 0;
		if (true) {
			let factor = 2;
			r = double(21);
		}
	`)
	require.NoError(t, err)
	r, ok := interp.GetValue("r")
	require.True(t, ok)
	assert.Equal(t, int64(42), r.Int())
}

func TestBuiltinNameTakesPrecedenceOverUserFunctionOfSameName(t *testing.T) {
	interp := script.New()
	err := interp.Run(`
		fn len(x) { return -1; }
		let r = len([1, 2, 3]);
	`)
	require.NoError(t, err)
	r, ok := interp.GetValue("r")
	require.True(t, ok)
	assert.Equal(t, int64(3), r.Int(), "a built-in must resolve before a same-named user fn")
}

func TestAssignToUndeclaredVariableErrors(t *testing.T) {
	interp := script.New()
	err := interp.Run(`x = 1;`)
	assert.Error(t, err)
}

func TestForLoopAccumulates(t *testing.T) {
	interp := script.New()
	err := interp.Run(`
		let sum = 0;
		for (let i = 0; i < 5; i = i + 1) {
			sum = sum + i;
		}
	`)
	require.NoError(t, err)
	sum, ok := interp.GetValue("sum")
	require.True(t, ok)
	assert.Equal(t, int64(10), sum.Int())
}

func TestRecursionLimitRaisesRuntimeError(t *testing.T) {
	interp := script.New()
	err := interp.Run(`
		fn loop(n) { return loop(n+1); }
		let r = loop(0);
	`)
	require.Error(t, err)
	rerr, ok := err.(*script.RuntimeError)
	require.True(t, ok)
	assert.Equal(t, script.RecursionLimit, rerr.Kind)
}

func TestComparisonAcrossIncompatibleTypesIsTypeMismatch(t *testing.T) {
	interp := script.New()
	err := interp.Run(`let x = 1 < "a";`)
	require.Error(t, err)
	rerr, ok := err.(*script.RuntimeError)
	require.True(t, ok)
	assert.Equal(t, script.TypeMismatch, rerr.Kind)
}

func TestIndexOutOfRangeReadsAsNullNotError(t *testing.T) {
	interp := script.New()
	err := interp.Run(`
		let arr = [1, 2];
		let missing = arr[10];
	`)
	require.NoError(t, err)
	missing, ok := interp.GetValue("missing")
	require.True(t, ok)
	assert.True(t, missing.IsNull())
}

func TestCollectionBuiltinsAreCopyOnWrite(t *testing.T) {
	interp := script.New()
	err := interp.Run(`
		let a = [1, 2, 3];
		let b = push(a, 4);
		let c = set(a, 0, 99);
	`)
	require.NoError(t, err)

	a, _ := interp.GetValue("a")
	b, _ := interp.GetValue("b")
	c, _ := interp.GetValue("c")

	assert.Len(t, a.ArrayVal(), 3, "push must not mutate its argument")
	assert.Len(t, b.ArrayVal(), 4)
	assert.Equal(t, int64(1), a.ArrayVal()[0].Int(), "set must not mutate its argument")
	assert.Equal(t, int64(99), c.ArrayVal()[0].Int())
}

func TestDictLiteralAndKeysPreserveInsertionOrder(t *testing.T) {
	interp := script.New()
	err := interp.Run(`
		let d = {"z": 1, "a": 2};
		let ks = keys(d);
	`)
	require.NoError(t, err)
	ks, ok := interp.GetValue("ks")
	require.True(t, ok)
	require.Len(t, ks.ArrayVal(), 2)
	assert.Equal(t, "z", ks.ArrayVal()[0].String())
	assert.Equal(t, "a", ks.ArrayVal()[1].String())
}

func TestParseJSONAndJMESPathBuiltins(t *testing.T) {
	interp := script.New()
	err := interp.Run(`
		let doc = parse_json("{\"level\": \"error\", \"count\": 3}");
		let lvl = jmespath(doc, "level");
		let missing = jmespath(doc, "nope");
	`)
	require.NoError(t, err)

	lvl, _ := interp.GetValue("lvl")
	assert.Equal(t, "error", lvl.String())

	missing, _ := interp.GetValue("missing")
	assert.True(t, missing.IsNull())
}

func TestBase64AndCompressionRoundTrips(t *testing.T) {
	interp := script.New()
	err := interp.Run(`
		let payload = bytes("hello fiddler");
		let encoded = base64_encode(payload);
		let decoded = base64_decode(encoded);

		let gz = gzip_compress(payload);
		let ungz = gzip_decompress(gz);

		let zl = zlib_compress(payload);
		let unzl = zlib_decompress(zl);

		let fl = deflate_compress(payload);
		let unfl = deflate_decompress(fl);
	`)
	require.NoError(t, err)

	for _, name := range []string{"decoded", "ungz", "unzl", "unfl"} {
		v, ok := interp.GetValue(name)
		require.True(t, ok, name)
		assert.Equal(t, []byte("hello fiddler"), v.BytesVal(), name)
	}
}

func TestMethodCallSyntaxRewritesToFunctionCall(t *testing.T) {
	interp := script.New()
	err := interp.Run(`
		let arr = [1, 2];
		let n = arr.len();
	`)
	require.NoError(t, err)
	n, ok := interp.GetValue("n")
	require.True(t, ok)
	assert.Equal(t, int64(2), n.Int())
}

func TestHostEvalBindsThisAndMetadata(t *testing.T) {
	interp := script.New()
	prog, err := script.Compile(`this = bytes(metadata["level"]);`)
	require.NoError(t, err)

	md := value.NewDict()
	md.Set("level", value.Str("info"))

	result, err := interp.Eval(prog, value.Bytes([]byte("original")), value.DictVal(md))
	require.NoError(t, err)
	assert.Equal(t, []byte("info"), result.BytesVal())
}

func TestCollectionConstructorBuiltins(t *testing.T) {
	interp := script.New()
	err := interp.Run(`
		let a = array(1, 2, 3);
		let d = dict();
		let isa = is_array(a);
		let isd = is_dict(d);
		let notd = is_dict(a);
	`)
	require.NoError(t, err)

	a, _ := interp.GetValue("a")
	require.Len(t, a.ArrayVal(), 3)
	d, _ := interp.GetValue("d")
	assert.Equal(t, value.KindDict, d.Kind())
	isa, _ := interp.GetValue("isa")
	assert.True(t, isa.Bool())
	isd, _ := interp.GetValue("isd")
	assert.True(t, isd.Bool())
	notd, _ := interp.GetValue("notd")
	assert.False(t, notd.Bool())
}

func TestGetenvReadsProcessEnvironment(t *testing.T) {
	t.Setenv("FIDDLER_SCRIPT_TEST_VAR", "test_value")
	interp := script.New()
	err := interp.Run(`
		let found = getenv("FIDDLER_SCRIPT_TEST_VAR");
		let missing = getenv("FIDDLER_SCRIPT_TEST_VAR_NOPE");
	`)
	require.NoError(t, err)

	found, _ := interp.GetValue("found")
	assert.Equal(t, "test_value", found.String())
	missing, _ := interp.GetValue("missing")
	assert.True(t, missing.IsNull())
}

func TestPrintWritesToInterpreterWriter(t *testing.T) {
	interp := script.New()
	var buf bytes.Buffer
	interp.Writer = &buf
	err := interp.Run(`print("hello", 42);`)
	require.NoError(t, err)
	assert.Equal(t, "hello 42\n", buf.String())
}

func TestMathBuiltins(t *testing.T) {
	interp := script.New()
	err := interp.Run(`
		let a = abs(-42);
		let af = abs(-3.5);
		let c = ceil(3.14);
		let f = floor(3.99);
		let ru = round(3.5);
		let rd = round(-3.5);
		let ip = ceil(42);
	`)
	require.NoError(t, err)

	cases := map[string]int64{"a": 42, "c": 4, "f": 3, "ru": 4, "rd": -4, "ip": 42}
	for name, want := range cases {
		v, ok := interp.GetValue(name)
		require.True(t, ok, name)
		assert.Equal(t, want, v.Int(), name)
	}
	af, _ := interp.GetValue("af")
	assert.Equal(t, 3.5, af.Float64())
}

func TestStringShapingBuiltins(t *testing.T) {
	interp := script.New()
	err := interp.Run(`
		let ls = lines("a\nb\nc");
		let cap = capitalize("hello");
		let lo = lowercase("HELLO");
		let up = uppercase("hello");
		let tr = trim("  hi  ");
		let tp = trim_prefix("hello world", "hello ");
		let ts = trim_suffix("hello.txt", ".txt");
		let hp = has_prefix("hello world", "hello");
		let hs = has_suffix("hello.txt", ".txt");
		let sp = split("a,b,c", ",");
		let rs = reverse("hello");
		let ra = reverse([1, 2, 3]);
	`)
	require.NoError(t, err)

	ls, _ := interp.GetValue("ls")
	require.Len(t, ls.ArrayVal(), 3)
	assert.Equal(t, "b", ls.ArrayVal()[1].String())

	cap, _ := interp.GetValue("cap")
	assert.Equal(t, "Hello", cap.String())
	lo, _ := interp.GetValue("lo")
	assert.Equal(t, "hello", lo.String())
	up, _ := interp.GetValue("up")
	assert.Equal(t, "HELLO", up.String())
	tr, _ := interp.GetValue("tr")
	assert.Equal(t, "hi", tr.String())
	tp, _ := interp.GetValue("tp")
	assert.Equal(t, "world", tp.String())
	ts, _ := interp.GetValue("ts")
	assert.Equal(t, "hello", ts.String())
	hp, _ := interp.GetValue("hp")
	assert.True(t, hp.Bool())
	hs, _ := interp.GetValue("hs")
	assert.True(t, hs.Bool())
	sp, _ := interp.GetValue("sp")
	require.Len(t, sp.ArrayVal(), 3)
	assert.Equal(t, "c", sp.ArrayVal()[2].String())
	rs, _ := interp.GetValue("rs")
	assert.Equal(t, "olleh", rs.String())
	ra, _ := interp.GetValue("ra")
	require.Len(t, ra.ArrayVal(), 3)
	assert.Equal(t, int64(3), ra.ArrayVal()[0].Int())
}

func TestTimestampBuiltinsReturnConsistentWallClockReadings(t *testing.T) {
	interp := script.New()
	err := interp.Run(`
		let sec = timestamp();
		let ep = epoch();
		let ms = timestamp_millis();
		let us = timestamp_micros();
		let iso = timestamp_iso8601();
	`)
	require.NoError(t, err)

	sec, _ := interp.GetValue("sec")
	assert.Greater(t, sec.Int(), int64(1577836800))
	ep, _ := interp.GetValue("ep")
	assert.Greater(t, ep.Int(), int64(1577836800))
	ms, _ := interp.GetValue("ms")
	assert.InDelta(t, sec.Int()*1000, ms.Int(), 2000)
	us, _ := interp.GetValue("us")
	assert.Greater(t, us.Int(), ms.Int())
	iso, _ := interp.GetValue("iso")
	assert.Contains(t, iso.String(), "T")
}

func TestRegisterBuiltinIsCallableFromScript(t *testing.T) {
	interp := script.New()
	interp.RegisterBuiltin("double", func(_ *script.Interpreter, args []value.Value) (value.Value, error) {
		return value.Int(args[0].Int() * 2), nil
	})
	err := interp.Run(`let r = double(21);`)
	require.NoError(t, err)
	r, ok := interp.GetValue("r")
	require.True(t, ok)
	assert.Equal(t, int64(42), r.Int())
}
