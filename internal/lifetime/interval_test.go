package lifetime

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddLiveRangeMergesOverlap(t *testing.T) {
	in := NewInterval(0)
	in.AddLiveRange(4, 10)
	in.AddLiveRange(8, 12)
	require.Equal(t, []LiveRange{{4, 12}}, in.Ranges)
}

func TestAddLiveRangeMergesAdjacent(t *testing.T) {
	in := NewInterval(0)
	in.AddLiveRange(4, 8)
	in.AddLiveRange(8, 12)
	require.Equal(t, []LiveRange{{4, 12}}, in.Ranges)

	in.AddLiveRange(0, 4)
	require.Equal(t, []LiveRange{{0, 12}}, in.Ranges)
}

func TestAddLiveRangeKeepsDisjointSorted(t *testing.T) {
	in := NewInterval(0)
	in.AddLiveRange(20, 25)
	in.AddLiveRange(0, 5)
	in.AddLiveRange(10, 15)
	require.Equal(t, []LiveRange{{0, 5}, {10, 15}, {20, 25}}, in.Ranges)
}

func TestAddLiveRangeSubRangeIsNoOp(t *testing.T) {
	in := NewInterval(0)
	in.AddLiveRange(0, 100)
	in.AddLiveRange(10, 20)
	in.AddLiveRange(0, 100)
	require.Equal(t, []LiveRange{{0, 100}}, in.Ranges)
}

func TestAddLiveRangeSwallowsContained(t *testing.T) {
	in := NewInterval(0)
	in.AddLiveRange(2, 4)
	in.AddLiveRange(6, 8)
	in.AddLiveRange(10, 12)
	in.AddLiveRange(0, 20)
	require.Equal(t, []LiveRange{{0, 20}}, in.Ranges)
}

// The final interval depends only on the union of the inserted ranges,
// not on insertion order.
func TestAddLiveRangeOrderIndependent(t *testing.T) {
	ranges := []LiveRange{{0, 3}, {3, 6}, {10, 14}, {12, 18}, {25, 30}}
	rng := rand.New(rand.NewSource(1))
	for trial := 0; trial < 20; trial++ {
		in := NewInterval(0)
		for _, i := range rng.Perm(len(ranges)) {
			in.AddLiveRange(ranges[i].From, ranges[i].To)
		}
		require.Equal(t, []LiveRange{{0, 6}, {10, 18}, {25, 30}}, in.Ranges)
	}
}

func TestSplitAtRangeBoundary(t *testing.T) {
	in := NewInterval(7)
	in.AddLiveRange(0, 10)
	in.AddLiveRange(20, 30)
	in.AddUsage(2)
	in.AddUsage(25)

	tail := in.SplitAt(10)
	require.Equal(t, []LiveRange{{0, 10}}, in.Ranges)
	require.Equal(t, []LiveRange{{20, 30}}, tail.Ranges)
	require.Equal(t, []int{2}, in.Usages)
	require.Equal(t, []int{25}, tail.Usages)
	require.True(t, tail.IsSplit)
	require.Equal(t, uint32(7), tail.ValueNumber)
}

func TestSplitAtInsideRange(t *testing.T) {
	in := NewInterval(0)
	in.AddLiveRange(0, 10)
	in.AddUsage(3)
	in.AddUsage(7)

	tail := in.SplitAt(5)
	require.Equal(t, []LiveRange{{0, 5}}, in.Ranges)
	require.Equal(t, []LiveRange{{5, 10}}, tail.Ranges)
	require.Equal(t, []int{3}, in.Usages)
	require.Equal(t, []int{7}, tail.Usages)
}

func TestSplitAtBeforeStartMovesEverything(t *testing.T) {
	in := NewInterval(0)
	in.AddLiveRange(10, 20)
	tail := in.SplitAt(5)
	require.True(t, in.IsEmpty())
	require.Equal(t, []LiveRange{{10, 20}}, tail.Ranges)
}

// splitAt followed by merge restores the original interval for every
// split point at or after the start.
func TestSplitAtMergeRoundTrip(t *testing.T) {
	build := func() *Interval {
		in := NewInterval(0)
		in.AddLiveRange(2, 8)
		in.AddLiveRange(12, 20)
		in.AddUsage(2)
		in.AddUsage(6)
		in.AddUsage(15)
		return in
	}
	want := build()
	for pos := 2; pos <= 20; pos++ {
		in := build()
		tail := in.SplitAt(pos)
		in.Merge(tail)
		require.Equal(t, want.Ranges, in.Ranges, "split at %d", pos)
		require.Equal(t, want.Usages, in.Usages, "split at %d", pos)
	}
}

func TestCovers(t *testing.T) {
	in := NewInterval(0)
	in.AddLiveRange(2, 5)
	in.AddLiveRange(9, 12)
	require.False(t, in.Covers(1))
	require.True(t, in.Covers(2))
	require.True(t, in.Covers(4))
	require.False(t, in.Covers(5))
	require.False(t, in.Covers(7))
	require.True(t, in.Covers(9))
	require.False(t, in.Covers(12))
}

func TestFindFirstIntersection(t *testing.T) {
	a := NewInterval(0)
	a.AddLiveRange(0, 5)
	a.AddLiveRange(10, 15)
	b := NewInterval(1)
	b.AddLiveRange(5, 8)
	_, ok := a.FindFirstIntersection(b)
	require.False(t, ok)

	b.AddLiveRange(12, 20)
	pos, ok := a.FindFirstIntersection(b)
	require.True(t, ok)
	require.Equal(t, 12, pos)

	pos, ok = b.FindFirstIntersection(a)
	require.True(t, ok)
	require.Equal(t, 12, pos)
}

func TestUsageQueries(t *testing.T) {
	in := NewInterval(0)
	in.AddUsage(10)
	in.AddUsage(4)
	in.AddUsage(10)
	in.AddUsage(7)
	require.Equal(t, []int{4, 7, 10}, in.Usages)

	first, ok := in.FirstUsage()
	require.True(t, ok)
	require.Equal(t, 4, first)

	next, ok := in.NextUsageAfter(4)
	require.True(t, ok)
	require.Equal(t, 7, next)

	_, ok = in.NextUsageAfter(10)
	require.False(t, ok)
}
