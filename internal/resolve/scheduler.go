// Package resolve reconciles allocated locations across control flow: it
// inserts the moves that carry phi inputs and split intervals to the
// locations their consumers expect, and orders move sets so parallel
// semantics survive serial execution.
package resolve

import (
	"math"
	"sort"
)

// Scratch is the destination marker for cycle-breaking transfers. The
// emitter maps it to spill slot 0, reserved for exactly this purpose.
const Scratch = math.MinInt

// Move is one serial transfer between locations; values >= 0 are register
// numbers, negative values are negated spill slots, Scratch is the
// reserved cycle-breaking slot.
type Move struct {
	From int
	To   int
}

// Schedule orders a parallel move set for serial execution. Moves whose
// destination is no other move's source emit first; when only cycles
// remain, one is broken by routing its first source through Scratch.
// Origins are unique by construction, so the result reads every source
// exactly once before it is overwritten.
func Schedule(moves map[int]int) []Move {
	pending := make(map[int]int, len(moves))
	for from, to := range moves {
		pending[from] = to
	}

	var out []Move
	for len(pending) > 0 {
		sources := make([]int, 0, len(pending))
		for from := range pending {
			sources = append(sources, from)
		}
		sort.Ints(sources)

		progress := false
		for _, from := range sources {
			to, still := pending[from]
			if !still {
				continue
			}
			if _, blocked := pending[to]; !blocked {
				out = append(out, Move{From: from, To: to})
				delete(pending, from)
				progress = true
			}
		}
		if progress {
			continue
		}

		// Only cycles remain. Save the first source to scratch; its move
		// now reads the scratch copy, unblocking the rest of the cycle.
		from := sources[0]
		to := pending[from]
		out = append(out, Move{From: from, To: Scratch})
		delete(pending, from)
		pending[Scratch] = to
	}
	return out
}
