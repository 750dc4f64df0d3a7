package value_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rc1405/fiddler/internal/value"
)

func TestTruthy(t *testing.T) {
	falsy := []value.Value{
		value.Null(),
		value.Bool(false),
		value.Int(0),
		value.Float(0),
		value.Str(""),
		value.Bytes(nil),
		value.EmptyArray(),
		value.EmptyDict(),
	}
	for _, v := range falsy {
		assert.False(t, v.Truthy(), "expected %s to be falsy", v.Kind())
	}

	truthy := []value.Value{
		value.Bool(true),
		value.Int(1),
		value.Float(0.1),
		value.Str("x"),
		value.Bytes([]byte{0}),
		value.Array([]value.Value{value.Null()}),
	}
	for _, v := range truthy {
		assert.True(t, v.Truthy(), "expected %s to be truthy", v.Kind())
	}
}

func TestArithPromotion(t *testing.T) {
	sum, err := value.Add(value.Int(1), value.Int(2))
	require.NoError(t, err)
	assert.Equal(t, value.KindInteger, sum.Kind())
	assert.Equal(t, int64(3), sum.Int())

	mixed, err := value.Add(value.Int(1), value.Float(2.5))
	require.NoError(t, err)
	assert.Equal(t, value.KindFloat, mixed.Kind())
	assert.Equal(t, 3.5, mixed.Float64())
}

func TestIntegerDivisionTruncatesAndModSignFollowsDividend(t *testing.T) {
	q, err := value.Div(value.Int(-7), value.Int(2))
	require.NoError(t, err)
	assert.Equal(t, int64(-3), q.Int())

	m, err := value.Mod(value.Int(-7), value.Int(2))
	require.NoError(t, err)
	assert.Equal(t, int64(-1), m.Int())
}

func TestDivisionByZero(t *testing.T) {
	_, err := value.Div(value.Int(1), value.Int(0))
	require.Error(t, err)
	assert.IsType(t, &value.DivisionByZeroError{}, err)
}

func TestCompareAcrossIncompatibleKindsErrors(t *testing.T) {
	_, err := value.Compare(value.Int(1), value.Str("a"))
	require.Error(t, err)
	assert.IsType(t, &value.TypeError{}, err)
}

func TestAddConcatenatesStringsArraysAndBytes(t *testing.T) {
	s, err := value.Add(value.Str("a"), value.Str("b"))
	require.NoError(t, err)
	assert.Equal(t, "ab", s.String())

	arr, err := value.Add(value.Array([]value.Value{value.Int(1)}), value.Array([]value.Value{value.Int(2)}))
	require.NoError(t, err)
	assert.Len(t, arr.ArrayVal(), 2)

	by, err := value.Add(value.Bytes([]byte("a")), value.Bytes([]byte("b")))
	require.NoError(t, err)
	assert.Equal(t, []byte("ab"), by.BytesVal())
}

func TestToIntAndToFloatCoercions(t *testing.T) {
	i, err := value.ToInt(value.Bool(true))
	require.NoError(t, err)
	assert.Equal(t, int64(1), i.Int())

	i, err = value.ToInt(value.Float(3.9))
	require.NoError(t, err)
	assert.Equal(t, int64(3), i.Int())

	f, err := value.ToFloat(value.Str("1.5"))
	require.NoError(t, err)
	assert.Equal(t, 1.5, f.Float64())

	_, err = value.ToInt(value.Str("not a number"))
	require.Error(t, err)
}

func TestDictPreservesInsertionOrderAcrossReassignment(t *testing.T) {
	d := value.NewDict()
	d.Set("b", value.Int(1))
	d.Set("a", value.Int(2))
	d.Set("b", value.Int(3)) // reassignment must not move "b"
	assert.Equal(t, []string{"b", "a"}, d.Keys())
	v, ok := d.Get("b")
	require.True(t, ok)
	assert.Equal(t, int64(3), v.Int())
}

func TestDictCloneIsIndependent(t *testing.T) {
	d := value.NewDict()
	d.Set("k", value.Int(1))
	c := d.Clone()
	c.Set("k", value.Int(2))
	orig, _ := d.Get("k")
	cloned, _ := c.Get("k")
	assert.Equal(t, int64(1), orig.Int())
	assert.Equal(t, int64(2), cloned.Int())
}
