package value

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTruthy(t *testing.T) {
	require.False(t, Truthy(Nil{}))
	require.False(t, Truthy(Bool(false)))
	require.True(t, Truthy(Bool(true)))
	require.True(t, Truthy(Number(0)))
	require.True(t, Truthy(Number(1)))
}

func TestEqualAcrossTypes(t *testing.T) {
	require.True(t, Equal(Nil{}, Nil{}))
	require.False(t, Equal(Nil{}, Bool(false)))
	require.True(t, Equal(Bool(true), Bool(true)))
	require.False(t, Equal(Bool(true), Bool(false)))
	require.True(t, Equal(Number(1), Number(1)))
	require.False(t, Equal(Number(1), Number(2)))
	require.False(t, Equal(Number(1), Bool(true)))
}

func TestEqualHeapObjectsByIdentity(t *testing.T) {
	h := NewHeap()
	a := h.Intern("hi")
	b := h.Intern("hi")
	require.Same(t, a, b, "interning the same content must return the same object")
	require.True(t, Equal(a, b))

	c := h.Intern("bye")
	require.False(t, Equal(a, c))
}

func TestNumberFormatting(t *testing.T) {
	require.Equal(t, "1", Number(1).String())
	require.Equal(t, "1.5", Number(1.5).String())
	require.Equal(t, "0", Number(0).String())
	require.Equal(t, "-3", Number(-3).String())
}
