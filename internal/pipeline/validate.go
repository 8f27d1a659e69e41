package pipeline

import (
	"github.com/hadron-sclang/hadron/internal/hir"
	"github.com/hadron-sclang/hadron/internal/linear"
	"github.com/hadron-sclang/hadron/internal/report"
	"github.com/hadron-sclang/hadron/internal/resolve"
)

// validateFrame checks the SSA invariants: every value defined exactly
// once, every phi's input count equal to its block's predecessor count,
// and at most one block without successors.
func validateFrame(frame *hir.Frame) error {
	defined := make(map[hir.ValueID]bool)
	define := func(v hir.Value) error {
		if !v.Valid() {
			return nil
		}
		if defined[v.Number] {
			return report.Internalf("validate", "value v%d defined more than once", v.Number)
		}
		defined[v.Number] = true
		return nil
	}

	exits := 0
	for _, block := range frame.Blocks {
		if len(block.Successors) == 0 {
			exits++
		}
		for _, phi := range block.Phis {
			if len(phi.Inputs) != len(block.Predecessors) {
				return report.Internalf("validate",
					"phi v%d has %d inputs for %d predecessors in block %d",
					phi.Value().Number, len(phi.Inputs), len(block.Predecessors), block.Number)
			}
			if err := define(phi.Value()); err != nil {
				return err
			}
		}
		for _, h := range block.Statements {
			if err := define(h.Value()); err != nil {
				return err
			}
		}
	}
	if exits > 1 {
		return report.Internalf("validate", "%d blocks have no successors", exits)
	}
	return nil
}

// validateLinearFrame checks that block ranges are contiguous and
// non-overlapping and that every block starts with its own label.
func validateLinearFrame(lf *linear.Frame) error {
	expectedFirst := 1
	for _, blockNumber := range lf.BlockOrder {
		blockRange := lf.BlockRanges[blockNumber]
		if blockRange[0] != expectedFirst {
			return report.Internalf("validate",
				"block %d starts at %d, expected %d", blockNumber, blockRange[0], expectedFirst)
		}
		label, ok := lf.Instructions[blockRange[0]].(*hir.Label)
		if !ok || label.BlockNumber != blockNumber {
			return report.Internalf("validate", "block %d does not start with its label", blockNumber)
		}
		expectedFirst = blockRange[1] + 1
	}
	if expectedFirst != len(lf.Instructions) {
		return report.Internalf("validate", "trailing instructions after final block")
	}
	return nil
}

// validateLifetimes checks that every usage of every value lies within
// one of that value's live ranges.
func validateLifetimes(lf *linear.Frame) error {
	for valueNumber, segments := range lf.ValueLifetimes {
		for _, segment := range segments {
			for _, usage := range segment.Usages {
				if !segment.Covers(usage) {
					return report.Internalf("validate",
						"usage of v%d at %d outside its live ranges", valueNumber, usage)
				}
			}
		}
	}
	return nil
}

// validateAllocation checks that no two intervals assigned to the same
// register cover the same position.
func validateAllocation(lf *linear.Frame) error {
	for reg, intervals := range lf.RegisterLifetimes {
		for i := 0; i < len(intervals); i++ {
			for k := i + 1; k < len(intervals); k++ {
				if pos, overlap := intervals[i].FindFirstIntersection(intervals[k]); overlap {
					return report.Internalf("validate",
						"register %d double-booked at %d", reg, pos)
				}
			}
		}
	}
	return nil
}

// validateMoves simulates each instruction's scheduled moves and checks
// the serial order reproduces the parallel semantics.
func validateMoves(lf *linear.Frame) error {
	for index, h := range lf.Instructions {
		if h == nil || len(h.Moves()) == 0 {
			continue
		}
		moves := h.Moves()

		// Parallel semantics: every destination ends with its origin's
		// initial value. Simulate the serial schedule over symbolic
		// locations seeded with their own names.
		values := make(map[int]int)
		read := func(loc int) int {
			if v, ok := values[loc]; ok {
				return v
			}
			return loc
		}
		for _, mv := range resolve.Schedule(moves) {
			values[mv.To] = read(mv.From)
		}
		for from, to := range moves {
			if read(to) != from {
				return report.Internalf("validate",
					"move schedule at %d leaves %d holding %d, expected %d",
					index, to, read(to), from)
			}
		}
	}
	return nil
}
