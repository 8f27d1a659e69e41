package resolve

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// simulate runs a serial schedule over symbolic locations seeded with
// their own names and returns the final contents.
func simulate(moves []Move) map[int]int {
	values := make(map[int]int)
	read := func(loc int) int {
		if v, ok := values[loc]; ok {
			return v
		}
		return loc
	}
	for _, mv := range moves {
		values[mv.To] = read(mv.From)
	}
	return values
}

func requireParallelSemantics(t *testing.T, parallel map[int]int, schedule []Move) {
	t.Helper()
	values := simulate(schedule)
	for from, to := range parallel {
		got, ok := values[to]
		require.True(t, ok, "destination %d never written", to)
		require.Equal(t, from, got, "destination %d", to)
	}
}

func TestScheduleLeavesFirst(t *testing.T) {
	moves := map[int]int{0: 1, 1: 2}
	schedule := Schedule(moves)
	require.Equal(t, []Move{{1, 2}, {0, 1}}, schedule)
	requireParallelSemantics(t, moves, schedule)
}

func TestScheduleIndependentMoves(t *testing.T) {
	moves := map[int]int{0: 4, 1: 5, 2: 6}
	schedule := Schedule(moves)
	require.Len(t, schedule, 3)
	requireParallelSemantics(t, moves, schedule)
}

func TestScheduleSwapUsesScratch(t *testing.T) {
	moves := map[int]int{0: 1, 1: 0}
	schedule := Schedule(moves)
	require.Len(t, schedule, 3)
	require.Equal(t, Move{0, Scratch}, schedule[0])
	requireParallelSemantics(t, moves, schedule)
}

func TestScheduleLongCycle(t *testing.T) {
	moves := map[int]int{0: 1, 1: 2, 2: 3, 3: 0}
	schedule := Schedule(moves)
	require.Len(t, schedule, 5)
	requireParallelSemantics(t, moves, schedule)
}

func TestScheduleChainIntoCycle(t *testing.T) {
	// 5 -> 6 hangs off the 0 <-> 1 swap's source.
	moves := map[int]int{0: 1, 1: 0, 5: 6}
	schedule := Schedule(moves)
	requireParallelSemantics(t, moves, schedule)
}

func TestScheduleSpillSlots(t *testing.T) {
	// Register 2 to slot 1, slot 2 to register 2: ordering matters.
	moves := map[int]int{2: -1, -2: 2}
	schedule := Schedule(moves)
	require.Equal(t, []Move{{2, -1}, {-2, 2}}, schedule)
	requireParallelSemantics(t, moves, schedule)
}

func TestScheduleEmpty(t *testing.T) {
	require.Empty(t, Schedule(nil))
	require.Empty(t, Schedule(map[int]int{}))
}
