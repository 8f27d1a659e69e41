package linear

import (
	"github.com/hadron-sclang/hadron/internal/hir"
	"github.com/hadron-sclang/hadron/internal/report"
)

// LifetimeAnalyzer computes, for every SSA value, the instruction indices
// at which it is live and the exact indices at which it is used. This is
// the BuildIntervals algorithm of Wimmer & Franz, "Linear Scan Register
// Allocation on SSA Form", iterating serialized blocks in reverse.
type LifetimeAnalyzer struct{}

// BuildLifetimes fills lf.ValueLifetimes in place.
func (a *LifetimeAnalyzer) BuildLifetimes(lf *Frame) error {
	liveIns := make([]map[hir.ValueID]struct{}, len(lf.BlockRanges))

	for i := len(lf.BlockOrder) - 1; i >= 0; i-- {
		blockNumber := lf.BlockOrder[i]
		blockRange := lf.BlockRanges[blockNumber]
		label, err := lf.Label(blockNumber)
		if err != nil {
			return err
		}

		// live = union of successor live-ins, plus the phi inputs each
		// successor expects from this block.
		live := make(map[hir.ValueID]struct{})
		for _, succ := range label.Successors {
			for v := range liveIns[succ] {
				live[v] = struct{}{}
			}
			succLabel, err := lf.Label(succ)
			if err != nil {
				return err
			}
			inputNumber := -1
			for n, pred := range succLabel.Predecessors {
				if pred == blockNumber {
					inputNumber = n
					break
				}
			}
			if inputNumber < 0 {
				return report.Internalf("lifetime analyzer",
					"block %d missing from predecessors of successor %d", blockNumber, succ)
			}
			for _, phi := range succLabel.Phis {
				if len(phi.Inputs) != len(succLabel.Predecessors) {
					return report.Internalf("lifetime analyzer",
						"phi input count %d != predecessor count %d in block %d",
						len(phi.Inputs), len(succLabel.Predecessors), succ)
				}
				live[phi.Inputs[inputNumber].Number] = struct{}{}
			}
		}

		for v := range live {
			lf.ValueLifetimes[v][0].AddLiveRange(blockRange[0], blockRange[1]+1)
		}

		// Walk instructions in reverse: definitions shorten the interval
		// and leave the live set, operands extend it and join.
		for index := blockRange[1]; index > blockRange[0]; index-- {
			h := lf.Instructions[index]
			if h == nil {
				continue
			}
			if out := h.Value(); out.Valid() {
				interval := lf.ValueLifetimes[out.Number][0]
				interval.SetFrom(index)
				interval.AddUsage(index)
				delete(live, out.Number)
			}
			for _, in := range h.Reads() {
				interval := lf.ValueLifetimes[in.Number][0]
				interval.AddLiveRange(blockRange[0], index+1)
				interval.AddUsage(index)
				live[in.Number] = struct{}{}
			}
		}

		// Phis define at the block head.
		for _, phi := range label.Phis {
			interval := lf.ValueLifetimes[phi.Value().Number][0]
			interval.SetFrom(blockRange[0])
			interval.AddUsage(blockRange[0])
			delete(live, phi.Value().Number)
		}

		// A loop header sees a back edge from a predecessor serialized
		// after it; everything still live must survive the whole loop.
		loopEnd := -1
		for _, pred := range label.Predecessors {
			if lf.BlockRanges[pred][0] >= blockRange[0] && lf.BlockRanges[pred][1] > loopEnd {
				loopEnd = lf.BlockRanges[pred][1]
			}
		}
		if loopEnd >= 0 {
			for v := range live {
				lf.ValueLifetimes[v][0].AddLiveRange(blockRange[0], loopEnd+1)
			}
		}

		liveIns[blockNumber] = live
	}
	return nil
}
