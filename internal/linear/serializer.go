package linear

import (
	"github.com/hadron-sclang/hadron/internal/hir"
	"github.com/hadron-sclang/hadron/internal/lifetime"
	"github.com/hadron-sclang/hadron/internal/report"
)

// BlockSerializer flattens a Frame's CFG into a Frame of linear
// instructions. Serialization is reverse postorder, which keeps loop
// bodies contiguous and every forward jump targeting a later position,
// both prerequisites of the lifetime and allocation stages.
type BlockSerializer struct {
	visited []bool
}

// Serialize lays out baseFrame for the given register count.
func (s *BlockSerializer) Serialize(baseFrame *hir.Frame, numberOfRegisters int) (*Frame, error) {
	numberOfBlocks := baseFrame.NumberOfBlocks()
	lf := &Frame{
		BlockRanges:        make([][2]int, numberOfBlocks),
		ValueLifetimes:     make([][]*lifetime.Interval, baseFrame.NumberOfValues()),
		RegisterLifetimes:  make([][]*lifetime.Interval, numberOfRegisters),
		SpillLifetimes:     [][]*lifetime.Interval{nil},
		NumberOfSpillSlots: 1,
		NumberOfRegisters:  numberOfRegisters,
	}
	for i := range lf.ValueLifetimes {
		lf.ValueLifetimes[i] = []*lifetime.Interval{lifetime.NewInterval(uint32(i))}
	}
	for i := range lf.RegisterLifetimes {
		reg := lifetime.NewInterval(lifetime.ReservedValueNumber)
		reg.RegisterNumber = i
		lf.RegisterLifetimes[i] = []*lifetime.Interval{reg}
	}

	// Index 0 is a sentinel so later unsigned arithmetic never needs a
	// special case for position zero.
	lf.Instructions = append(lf.Instructions, nil)

	s.visited = make([]bool, numberOfBlocks)
	s.orderBlocks(baseFrame, baseFrame.Blocks[0], &lf.BlockOrder)
	for i, j := 0, len(lf.BlockOrder)-1; i < j; i, j = i+1, j-1 {
		lf.BlockOrder[i], lf.BlockOrder[j] = lf.BlockOrder[j], lf.BlockOrder[i]
	}

	for _, blockNumber := range lf.BlockOrder {
		block := baseFrame.Blocks[blockNumber]
		label := hir.NewLabel(block.Number)
		label.Predecessors = append(label.Predecessors, block.Predecessors...)
		label.Successors = append(label.Successors, block.Successors...)
		label.Phis = block.Phis

		first := len(lf.Instructions)
		lf.Instructions = append(lf.Instructions, label, nil)
		for _, h := range block.Statements {
			// Dispatch calls clobber every register; reserving them all
			// for the call instruction forces the allocator to preserve
			// caller values around it.
			if h.Opcode() == hir.OpcodeDispatchCall {
				line := len(lf.Instructions)
				for _, regIntervals := range lf.RegisterLifetimes {
					regIntervals[0].AddLiveRange(line, line+1)
					regIntervals[0].AddUsage(line)
				}
			}
			lf.Instructions = append(lf.Instructions, h, nil)
		}
		lf.BlockRanges[block.Number] = [2]int{first, len(lf.Instructions) - 1}
	}

	if len(lf.BlockOrder) != numberOfBlocks {
		return nil, report.Internalf("block serializer",
			"%d of %d blocks reachable from entry", len(lf.BlockOrder), numberOfBlocks)
	}
	return lf, nil
}

// orderBlocks performs the recursive postorder traversal. Successors are
// visited last-to-first so the reversed order keeps fallthrough paths,
// and in particular loop bodies, contiguous ahead of their exits.
func (s *BlockSerializer) orderBlocks(f *hir.Frame, block *hir.Block, order *[]int) {
	s.visited[block.Number] = true
	for i := len(block.Successors) - 1; i >= 0; i-- {
		succ := block.Successors[i]
		if !s.visited[succ] {
			s.orderBlocks(f, f.Blocks[succ], order)
		}
	}
	*order = append(*order, block.Number)
}
