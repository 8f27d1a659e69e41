package hir

import "github.com/hadron-sclang/hadron/internal/hash"

// Block is one basic block in a frame's control flow graph. Blocks
// reference each other by number only; the frame owns them all.
type Block struct {
	Number       int
	Predecessors []int
	Successors   []int

	// Phis live at the block head, inputs ordered to match Predecessors.
	Phis []*Phi

	Statements []HIR

	// revisions maps a name to its latest definition visible in this
	// block during SSA construction.
	revisions map[hash.Symbol]Value

	// unknown holds placeholder phis created while the block was not yet
	// sealed, resolved by Seal once all predecessors are known.
	unknown map[hash.Symbol]*Phi

	sealed bool
}

// Frame is one stack frame's worth of HIR: the CFG, the value count, and
// the argument order. Block 0 is the entry.
type Frame struct {
	Blocks        []*Block
	ArgumentOrder []hash.Symbol

	numberOfValues ValueID

	// globalIndices assigns stable slots to ~global names for the class
	// variable table the runtime environment backs them with.
	globalIndices map[hash.Symbol]int
}

func (f *Frame) NumberOfBlocks() int { return len(f.Blocks) }

func (f *Frame) NumberOfValues() ValueID { return f.numberOfValues }

func (f *Frame) block(number int) *Block { return f.Blocks[number] }

func (f *Frame) globalIndex(name hash.Symbol) int {
	if f.globalIndices == nil {
		f.globalIndices = make(map[hash.Symbol]int)
	}
	if i, ok := f.globalIndices[name]; ok {
		return i
	}
	i := len(f.globalIndices)
	f.globalIndices[name] = i
	return i
}

// wire records the edge pred → succ on both sides.
func wire(pred, succ *Block) {
	pred.Successors = append(pred.Successors, succ.Number)
	succ.Predecessors = append(succ.Predecessors, pred.Number)
}
