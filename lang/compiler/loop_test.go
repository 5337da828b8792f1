package compiler_test

import (
	"testing"

	"github.com/mna/rbvm/lang/compiler"
	"github.com/stretchr/testify/require"
)

func TestLoopStackPushPopOrder(t *testing.T) {
	var s compiler.LoopStack
	require.Nil(t, s.Top())

	outer := s.Push(compiler.LoopNormal, 10, 0)
	inner := s.Push(compiler.LoopFor, 20, 1)
	require.Same(t, inner, s.Top())

	require.Same(t, inner, s.Pop())
	require.Same(t, outer, s.Top())
	require.Same(t, outer, s.Pop())
	require.Nil(t, s.Pop())
}

func TestLoopStackFindRescueCountsInterveningBegins(t *testing.T) {
	var s compiler.LoopStack
	rescue := s.Push(compiler.LoopRescue, 0, 0)
	s.Push(compiler.LoopBegin, 0, 0)
	s.Push(compiler.LoopBegin, 0, 0)

	found, begins := s.FindRescue()
	require.Same(t, rescue, found)
	require.Equal(t, 2, begins)
}

func TestLoopStackFindRescueNotFound(t *testing.T) {
	var s compiler.LoopStack
	s.Push(compiler.LoopBegin, 0, 0)
	found, begins := s.FindRescue()
	require.Nil(t, found)
	require.Equal(t, 0, begins, "no rescue frame found resets the reported count to 0")
}

func TestLoopStackFindBreakableSkipsRescueCountsBegin(t *testing.T) {
	var s compiler.LoopStack
	loop := s.Push(compiler.LoopNormal, 0, 0)
	s.Push(compiler.LoopRescue, 0, 0)
	s.Push(compiler.LoopBegin, 0, 0)

	found, begins := s.FindBreakable()
	require.Same(t, loop, found)
	require.Equal(t, 1, begins)
}

func TestLoopStackFindBreakableBlockedByBlock(t *testing.T) {
	var s compiler.LoopStack
	s.Push(compiler.LoopNormal, 0, 0)
	s.Push(compiler.LoopBlock, 0, 0)

	found, _ := s.FindBreakable()
	require.Nil(t, found, "a block frame must stop the outward search for break's target")
}

func TestEnsureTrackerEnterExitAndDelta(t *testing.T) {
	var e compiler.EnsureTracker
	require.Equal(t, 0, e.Level())

	e.Enter()
	e.Enter()
	e.Enter()
	require.Equal(t, 3, e.Level())
	require.Equal(t, 2, e.Delta(1))
	require.Equal(t, 0, e.Delta(5))

	e.Exit()
	require.Equal(t, 2, e.Level())
}
