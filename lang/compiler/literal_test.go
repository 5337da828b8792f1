package compiler_test

import (
	"fmt"
	"math"
	"testing"

	"github.com/mna/rbvm/lang/compiler"
	"github.com/stretchr/testify/require"
)

func TestLiteralPoolDedup(t *testing.T) {
	var pool compiler.LiteralPool

	i1 := pool.InternInt(42)
	i2 := pool.InternInt(42)
	require.Equal(t, i1, i2)

	f1 := pool.InternFloat(3.14)
	f2 := pool.InternFloat(3.14)
	require.Equal(t, f1, f2)

	s1 := pool.InternString("hi")
	s2 := pool.InternString("hi")
	require.Equal(t, s1, s2)

	require.Equal(t, 3, pool.Len())
	require.Equal(t, int64(42), pool.At(i1))
	require.Equal(t, 3.14, pool.At(f1))
	require.Equal(t, "hi", pool.At(s1))
}

func TestLiteralPoolFloatBitPattern(t *testing.T) {
	var pool compiler.LiteralPool

	zero := pool.InternFloat(0.0)
	negZero := pool.InternFloat(math.Copysign(0, -1))
	require.NotEqual(t, zero, negZero, "0.0 and -0.0 must be distinct entries")
}

func TestSymbolTableInternDedup(t *testing.T) {
	var syms compiler.SymbolTable

	a, err := syms.InternMethod("foo")
	require.NoError(t, err)
	b, err := syms.InternMethod("foo")
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Equal(t, "foo", syms.Name(a))
	require.Equal(t, 1, syms.Len())
}

func TestSymbolTableMethodOverflow(t *testing.T) {
	var syms compiler.SymbolTable
	for i := 0; i < compiler.MaxMethodSymbols; i++ {
		_, err := syms.InternMethod(fmt.Sprintf("m%d", i))
		require.NoError(t, err)
	}
	_, err := syms.InternMethod("overflow")
	require.Error(t, err)
}

func TestSymbolTableDensifiesPastMethodWindow(t *testing.T) {
	var syms compiler.SymbolTable
	for i := 0; i < 200; i++ {
		syms.Intern(fmt.Sprintf("g%d", i))
	}
	require.Equal(t, compiler.MaxMethodSymbols, 256)
	require.Equal(t, 65536, syms.Capacity())
}
