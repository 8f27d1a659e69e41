// Package regalloc assigns every lifetime interval a register or a spill
// slot. The algorithm is the linear scan of Wimmer & Mössenböck,
// "Optimized Interval Splitting in a Linear Scan Register Allocator",
// with interval splitting and spill slot recycling.
package regalloc

import (
	"container/heap"
	"math"

	"github.com/hadron-sclang/hadron/internal/hir"
	"github.com/hadron-sclang/hadron/internal/lifetime"
	"github.com/hadron-sclang/hadron/internal/linear"
	"github.com/hadron-sclang/hadron/internal/report"
)

// intervalHeap is a min-heap of intervals by start position.
type intervalHeap []*lifetime.Interval

func (h intervalHeap) Len() int           { return len(h) }
func (h intervalHeap) Less(i, j int) bool { return h[i].Start() < h[j].Start() }
func (h intervalHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intervalHeap) Push(x any)        { *h = append(*h, x.(*lifetime.Interval)) }
func (h *intervalHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// RegisterAllocator runs one allocation over a linear frame. State follows
// the paper: unhandled ordered by start, active occupying registers at the
// current position, inactive assigned but in a lifetime hole, and the
// archived handled set, plus the spill-slot bookkeeping.
type RegisterAllocator struct {
	numberOfRegisters int

	unhandled    intervalHeap
	active       map[int]*lifetime.Interval
	inactive     map[int][]*lifetime.Interval
	activeSpills map[int]*lifetime.Interval
	freeSpills   []int
}

func NewRegisterAllocator() *RegisterAllocator {
	return &RegisterAllocator{
		active:       make(map[int]*lifetime.Interval),
		inactive:     make(map[int][]*lifetime.Interval),
		activeSpills: make(map[int]*lifetime.Interval),
	}
}

// AllocateRegisters assigns a register or spill slot to every nonempty
// value lifetime in lf, archiving the results back into lf.
func (ra *RegisterAllocator) AllocateRegisters(lf *linear.Frame) error {
	ra.numberOfRegisters = lf.NumberOfRegisters

	// unhandled = list of intervals sorted by increasing start positions.
	for i := len(lf.ValueLifetimes) - 1; i >= 0; i-- {
		if !lf.ValueLifetimes[i][0].IsEmpty() {
			ra.unhandled = append(ra.unhandled, lf.ValueLifetimes[i][0])
		}
		lf.ValueLifetimes[i] = lf.ValueLifetimes[i][:0]
	}
	heap.Init(&ra.unhandled)

	// The register reservations built during serialization seed inactive,
	// so allocation naturally avoids registers across dispatch calls.
	for reg, intervals := range lf.RegisterLifetimes {
		if !intervals[0].IsEmpty() {
			ra.inactive[reg] = append(ra.inactive[reg], intervals[0])
		}
		lf.RegisterLifetimes[reg] = lf.RegisterLifetimes[reg][:0]
	}

	for ra.unhandled.Len() > 0 {
		current := heap.Pop(&ra.unhandled).(*lifetime.Interval)
		position := current.Start()

		// Migrate active intervals that ended or entered a hole.
		for reg, it := range ra.active {
			if it.End() <= position {
				delete(ra.active, reg)
				if err := ra.handled(it, lf); err != nil {
					return err
				}
			} else if !it.Covers(position) {
				delete(ra.active, reg)
				ra.inactive[reg] = append(ra.inactive[reg], it)
			}
		}

		// Migrate inactive intervals that ended or became live again.
		for reg, intervals := range ra.inactive {
			kept := intervals[:0]
			for _, it := range intervals {
				switch {
				case it.End() <= position:
					if err := ra.handled(it, lf); err != nil {
						return err
					}
				case it.Covers(position):
					if _, occupied := ra.active[reg]; occupied {
						return report.Internalf("register allocator",
							"two intervals live in register %d at %d", reg, position)
					}
					ra.active[reg] = it
				default:
					kept = append(kept, it)
				}
			}
			ra.inactive[reg] = kept
		}

		if !ra.tryAllocateFreeReg(current) {
			if err := ra.allocateBlockedReg(current, lf); err != nil {
				return err
			}
		}
	}

	for _, it := range ra.active {
		if err := ra.handled(it, lf); err != nil {
			return err
		}
	}
	for _, intervals := range ra.inactive {
		for _, it := range intervals {
			if err := ra.handled(it, lf); err != nil {
				return err
			}
		}
	}
	for slot, it := range ra.activeSpills {
		lf.SpillLifetimes[slot] = append(lf.SpillLifetimes[slot], it)
		lf.ValueLifetimes[it.ValueNumber] = append(lf.ValueLifetimes[it.ValueNumber], it)
	}
	return nil
}

// tryAllocateFreeReg assigns current a register free for at least part of
// the interval, splitting if the register is only free for a prefix.
func (ra *RegisterAllocator) tryAllocateFreeReg(current *lifetime.Interval) bool {
	freeUntil := make([]int, ra.numberOfRegisters)
	for i := range freeUntil {
		freeUntil[i] = math.MaxInt
	}
	for reg := range ra.active {
		freeUntil[reg] = 0
	}
	for reg, intervals := range ra.inactive {
		for _, it := range intervals {
			if pos, ok := it.FindFirstIntersection(current); ok && pos < freeUntil[reg] {
				freeUntil[reg] = pos
			}
		}
	}

	reg, highest := 0, freeUntil[0]
	for i := 1; i < len(freeUntil); i++ {
		if freeUntil[i] > highest {
			reg, highest = i, freeUntil[i]
		}
	}

	if highest == 0 {
		return false
	}
	current.RegisterNumber = reg
	if current.End() > highest {
		// Register free only for the first part; the tail re-enters the
		// queue to be allocated elsewhere.
		tail := current.SplitAt(highest)
		heap.Push(&ra.unhandled, tail)
	}
	ra.active[reg] = current
	return true
}

// allocateBlockedReg spills: either current itself, when every register's
// occupant is used sooner than current, or the occupant of the register
// with the most distant next use.
func (ra *RegisterAllocator) allocateBlockedReg(current *lifetime.Interval, lf *linear.Frame) error {
	nextUse := make([]int, ra.numberOfRegisters)
	for i := range nextUse {
		nextUse[i] = math.MaxInt
	}
	for reg, it := range ra.active {
		if use, ok := it.NextUsageAfter(current.Start()); ok {
			nextUse[reg] = use
		} else {
			// No further usage recorded while still active; approximate
			// with the interval end, as at the bottom of a loop.
			nextUse[reg] = it.End()
		}
	}
	for reg, intervals := range ra.inactive {
		for _, it := range intervals {
			if _, ok := it.FindFirstIntersection(current); !ok {
				continue
			}
			use, ok := it.NextUsageAfter(current.Start())
			if !ok {
				use = it.End()
			}
			if use < nextUse[reg] {
				nextUse[reg] = use
			}
		}
	}

	reg, highest := 0, nextUse[0]
	for i := 1; i < len(nextUse); i++ {
		if nextUse[i] > highest {
			reg, highest = i, nextUse[i]
		}
	}

	currentFirstUsage, hasUsage := current.FirstUsage()
	if hasUsage && currentFirstUsage > highest {
		// Every register's occupant is used before current: spill current
		// itself and requeue the part from its first register use on.
		tail := current.SplitAt(currentFirstUsage)
		heap.Push(&ra.unhandled, tail)
		return ra.spill(current, lf)
	}

	current.RegisterNumber = reg
	if evicted, ok := ra.active[reg]; ok {
		spillPart := evicted.SplitAt(current.Start())
		if err := ra.handled(evicted, lf); err != nil {
			return err
		}
		if tail := spillPart.SplitAt(highest); !tail.IsEmpty() {
			heap.Push(&ra.unhandled, tail)
		}
		if err := ra.spill(spillPart, lf); err != nil {
			return err
		}
		ra.active[reg] = current
		return nil
	}

	// The blocking interval is inactive; split it at the end of its hole.
	intervals := ra.inactive[reg]
	for i, it := range intervals {
		if _, ok := it.FindFirstIntersection(current); !ok {
			continue
		}
		spillPart := it.SplitAt(current.Start())
		ra.inactive[reg] = append(intervals[:i], intervals[i+1:]...)
		if err := ra.handled(it, lf); err != nil {
			return err
		}
		if tail := spillPart.SplitAt(highest); !tail.IsEmpty() {
			heap.Push(&ra.unhandled, tail)
		}
		if err := ra.spill(spillPart, lf); err != nil {
			return err
		}
		ra.active[reg] = current
		return nil
	}
	return report.Internalf("register allocator",
		"register %d blocked with no blocking interval at %d", reg, current.Start())
}

// spill assigns interval a slot, recycling slots whose occupants ended.
// Slot 0 stays reserved for breaking parallel-move cycles.
func (ra *RegisterAllocator) spill(interval *lifetime.Interval, lf *linear.Frame) error {
	if interval.IsEmpty() {
		return nil
	}
	for slot, it := range ra.activeSpills {
		if it.End() <= interval.Start() {
			ra.freeSpills = append(ra.freeSpills, slot)
			lf.SpillLifetimes[slot] = append(lf.SpillLifetimes[slot], it)
			lf.ValueLifetimes[it.ValueNumber] = append(lf.ValueLifetimes[it.ValueNumber], it)
			delete(ra.activeSpills, slot)
		}
	}

	// A value spilled again right where its previous spill segment ended
	// reuses that slot: the bits are already parked there and no store is
	// needed. The slot was freed by the recycle sweep above.
	if prev := ra.previousSegment(lf, interval, interval.Start()); prev != nil && prev.IsSpill {
		for i, slot := range ra.freeSpills {
			if slot == prev.SpillSlot {
				ra.freeSpills = append(ra.freeSpills[:i], ra.freeSpills[i+1:]...)
				interval.IsSpill = true
				interval.SpillSlot = slot
				ra.activeSpills[slot] = interval
				return nil
			}
		}
		return report.Internalf("register allocator",
			"spill slot %d of v%d reassigned before its value was reloaded",
			prev.SpillSlot, interval.ValueNumber)
	}

	var slot int
	if len(ra.freeSpills) > 0 {
		slot = ra.freeSpills[len(ra.freeSpills)-1]
		ra.freeSpills = ra.freeSpills[:len(ra.freeSpills)-1]
	} else {
		slot = lf.NumberOfSpillSlots
		lf.NumberOfSpillSlots++
		lf.SpillLifetimes = append(lf.SpillLifetimes, nil)
	}

	// A spill starting at a block head gets its per-edge store from the
	// resolver instead of a predicate move here.
	if _, atLabel := lf.Instructions[interval.Start()].(*hir.Label); !atLabel {
		if err := lf.AddMove(interval.Start(), interval.RegisterNumber, -slot); err != nil {
			return err
		}
	}
	interval.IsSpill = true
	interval.SpillSlot = slot
	ra.activeSpills[slot] = interval
	return nil
}

// previousSegment finds the split sibling of the value whose coverage
// ends exactly where current begins: the location the value flows in
// from at an intra-block split. Transitions across lifetime holes land
// on block boundaries and are the resolver's job. Split siblings can
// still be anywhere in the allocator's working sets when the follower is
// archived, so all of them are searched.
func (ra *RegisterAllocator) previousSegment(lf *linear.Frame, current *lifetime.Interval, start int) *lifetime.Interval {
	var prev *lifetime.Interval
	consider := func(segment *lifetime.Interval) {
		if segment == current || segment.ValueNumber != current.ValueNumber || segment.IsEmpty() {
			return
		}
		if segment.End() == start {
			prev = segment
		}
	}
	for _, sp := range ra.activeSpills {
		consider(sp)
	}
	for _, it := range ra.active {
		consider(it)
	}
	for _, intervals := range ra.inactive {
		for _, it := range intervals {
			consider(it)
		}
	}
	for _, segment := range lf.ValueLifetimes[current.ValueNumber] {
		consider(segment)
	}
	return prev
}

// handled archives a finished interval: register reservations return to
// the register table, value intervals additionally unspill if their
// previous segment was spilled, and every covered instruction learns the
// value's register.
func (ra *RegisterAllocator) handled(interval *lifetime.Interval, lf *linear.Frame) error {
	if interval.IsSpill {
		return report.Internalf("register allocator", "spilled interval reached handled")
	}
	lf.RegisterLifetimes[interval.RegisterNumber] = append(
		lf.RegisterLifetimes[interval.RegisterNumber], interval)
	if interval.ValueNumber == lifetime.ReservedValueNumber {
		return nil
	}

	// If the value flows in from an earlier segment in a different
	// location, unspill or shuffle it as this interval begins. A segment
	// starting at a block head instead takes its per-edge moves from the
	// resolver, which knows each predecessor's location.
	if _, atLabel := lf.Instructions[interval.Start()].(*hir.Label); !atLabel {
		if err := ra.connectSplit(lf, interval); err != nil {
			return err
		}
	}
	lf.ValueLifetimes[interval.ValueNumber] = append(lf.ValueLifetimes[interval.ValueNumber], interval)

	for i := interval.Start(); i < interval.End(); i++ {
		if !interval.Covers(i) {
			continue
		}
		if h := lf.Instructions[i]; h != nil {
			h.Locations()[hir.ValueID(interval.ValueNumber)] = interval.RegisterNumber
		}
	}
	return nil
}

// connectSplit joins a register segment to the split sibling it follows.
func (ra *RegisterAllocator) connectSplit(lf *linear.Frame, interval *lifetime.Interval) error {
	prev := ra.previousSegment(lf, interval, interval.Start())
	if prev == nil {
		return nil
	}
	from := prev.RegisterNumber
	if prev.IsSpill {
		from = -prev.SpillSlot
	}
	if from == interval.RegisterNumber {
		return nil
	}
	return lf.AddMove(interval.Start(), from, interval.RegisterNumber)
}
