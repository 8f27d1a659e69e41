// Package linear flattens a Frame's CFG into a single instruction list in
// reverse postorder and computes per-value lifetimes over it. The linear
// frame is the working representation of the allocator, resolver, and
// emitter.
package linear

import (
	"github.com/hadron-sclang/hadron/internal/hir"
	"github.com/hadron-sclang/hadron/internal/lifetime"
	"github.com/hadron-sclang/hadron/internal/report"
)

// Frame is the flattened form of a CFG. Instruction index 0 is a sentinel
// nil, and a nil padding slot follows every instruction, reserving room
// for resolver-inserted moves.
type Frame struct {
	// Instructions in linear order; label-headed blocks, nil padded.
	Instructions []hir.HIR
	// BlockOrder is the reverse postorder of block numbers.
	BlockOrder []int
	// BlockRanges maps block number to the [first, last] instruction
	// index range the block occupies, trailing padding included.
	BlockRanges [][2]int
	// ValueLifetimes is indexed by value number; each entry is the
	// ordered list of interval segments the allocator produces (one
	// segment before allocation, possibly several after splitting).
	ValueLifetimes [][]*lifetime.Interval
	// RegisterLifetimes carries the reserved per-register intervals built
	// during serialization and the assignments archived by allocation.
	RegisterLifetimes [][]*lifetime.Interval
	// SpillLifetimes is indexed by spill slot.
	SpillLifetimes [][]*lifetime.Interval
	// NumberOfSpillSlots grows during allocation. Slot 0 is reserved for
	// scratch when breaking parallel-move cycles.
	NumberOfSpillSlots int

	NumberOfRegisters int
}

// Label returns the label heading the given block.
func (f *Frame) Label(blockNumber int) (*hir.Label, error) {
	first := f.BlockRanges[blockNumber][0]
	label, ok := f.Instructions[first].(*hir.Label)
	if !ok || label.BlockNumber != blockNumber {
		return nil, report.Internalf("linear frame", "block %d does not start with its label", blockNumber)
	}
	return label, nil
}

// LocationAt returns the allocated location of a value at an instruction
// index: a register number when >= 0, otherwise the negated spill slot.
// ok is false when no interval segment of the value covers pos.
func (f *Frame) LocationAt(valueNumber uint32, pos int) (int, bool) {
	for _, segment := range f.ValueLifetimes[valueNumber] {
		if segment.Covers(pos) {
			if segment.IsSpill {
				return -segment.SpillSlot, true
			}
			return segment.RegisterNumber, true
		}
	}
	return 0, false
}

// AddMove records a predicate move at the given instruction index. If the
// index holds a padding slot, a moves-only pseudo-op is materialized
// there; otherwise the move merges into the existing instruction.
func (f *Frame) AddMove(index, from, to int) error {
	h := f.Instructions[index]
	if h == nil {
		h = hir.NewMoves()
		f.Instructions[index] = h
	}
	if err := hir.AddMove(h, from, to); err != nil {
		return report.Internalf("linear frame", "move collision at %d: %v", index, err)
	}
	return nil
}
