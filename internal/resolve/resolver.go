package resolve

import (
	"github.com/hadron-sclang/hadron/internal/hir"
	"github.com/hadron-sclang/hadron/internal/linear"
	"github.com/hadron-sclang/hadron/internal/report"
)

// Resolver implements the RESOLVE pass of Wimmer & Franz: for every
// control flow edge and every value live at the successor's start, a move
// is recorded when the value's location at the predecessor's end differs
// from its location at the successor's start. Phi results take their
// input's location on each incoming edge.
//
// Moves ride as predicates: on an edge whose predecessor has a single
// successor they attach to the predecessor's branch, executing before the
// jump; otherwise the successor must have a single predecessor (CFG
// construction never produces critical edges) and they attach at the
// successor's leading padding slot.
type Resolver struct{}

func (r *Resolver) Resolve(lf *linear.Frame) error {
	for _, blockNumber := range lf.BlockOrder {
		label, err := lf.Label(blockNumber)
		if err != nil {
			return err
		}
		for _, succ := range label.Successors {
			if err := r.resolveEdge(lf, blockNumber, succ); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Resolver) resolveEdge(lf *linear.Frame, pred, succ int) error {
	predRange := lf.BlockRanges[pred]
	succRange := lf.BlockRanges[succ]
	predLabel, err := lf.Label(pred)
	if err != nil {
		return err
	}
	succLabel, err := lf.Label(succ)
	if err != nil {
		return err
	}

	inputNumber := -1
	for i, p := range succLabel.Predecessors {
		if p == pred {
			inputNumber = i
			break
		}
	}
	if inputNumber < 0 {
		return report.Internalf("resolver", "edge %d->%d not in predecessor list", pred, succ)
	}

	moves := make(map[int]int)
	addMove := func(from, to int) error {
		if from == to {
			return nil
		}
		if existing, ok := moves[from]; ok && existing != to {
			return report.Internalf("resolver",
				"conflicting moves from %d on edge %d->%d", from, pred, succ)
		}
		moves[from] = to
		return nil
	}

	// Phi results materialize from the input this edge supplies.
	phiResults := make(map[uint32]struct{}, len(succLabel.Phis))
	for _, phi := range succLabel.Phis {
		result := phi.Value()
		phiResults[uint32(result.Number)] = struct{}{}
		to, ok := lf.LocationAt(uint32(result.Number), succRange[0])
		if !ok {
			return report.Internalf("resolver",
				"phi v%d has no location at head of block %d", result.Number, succ)
		}
		input := phi.Inputs[inputNumber]
		from, ok := lf.LocationAt(uint32(input.Number), predRange[1])
		if !ok {
			return report.Internalf("resolver",
				"phi input v%d has no location at end of block %d", input.Number, pred)
		}
		if err := addMove(from, to); err != nil {
			return err
		}
	}

	// Every other value live into succ keeps its value but may have
	// changed location across a split.
	for valueNumber := range lf.ValueLifetimes {
		v := uint32(valueNumber)
		if _, isPhi := phiResults[v]; isPhi {
			continue
		}
		to, liveIn := lf.LocationAt(v, succRange[0])
		if !liveIn {
			continue
		}
		from, liveOut := lf.LocationAt(v, predRange[1])
		if !liveOut {
			// Defined at the head of succ rather than flowing in.
			continue
		}
		if err := addMove(from, to); err != nil {
			return err
		}
	}

	if len(moves) == 0 {
		return nil
	}

	if len(predLabel.Successors) == 1 {
		branchIndex, err := r.branchIndex(lf, predRange)
		if err != nil {
			return err
		}
		return mergeMoves(lf, branchIndex, moves)
	}
	if len(succLabel.Predecessors) == 1 {
		return mergeMoves(lf, succRange[0]+1, moves)
	}
	return report.Internalf("resolver", "critical edge %d->%d survived CFG construction", pred, succ)
}

// branchIndex locates the final instruction of a block, its branch.
func (r *Resolver) branchIndex(lf *linear.Frame, blockRange [2]int) (int, error) {
	for i := blockRange[1]; i > blockRange[0]; i-- {
		if lf.Instructions[i] != nil {
			return i, nil
		}
	}
	return 0, report.Internalf("resolver", "block with no instructions at %d", blockRange[0])
}

func mergeMoves(lf *linear.Frame, index int, moves map[int]int) error {
	for from, to := range moves {
		if err := lf.AddMove(index, from, to); err != nil {
			return err
		}
	}
	return nil
}

// ScheduledMoves returns the serial order for an instruction's predicate
// moves; exposed for the emitter and for validation.
func ScheduledMoves(h hir.HIR) []Move {
	return Schedule(h.Moves())
}
