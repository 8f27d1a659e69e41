// Package emit walks a resolved linear frame and drives the abstract JIT
// assembler: label addresses are captured as they appear, predicate moves
// are scheduled and lowered, and each HIR op becomes its native sequence.
// Forward branches are recorded and patched once every address is known.
package emit

import (
	"github.com/hadron-sclang/hadron/internal/hir"
	"github.com/hadron-sclang/hadron/internal/jit"
	"github.com/hadron-sclang/hadron/internal/linear"
	"github.com/hadron-sclang/hadron/internal/report"
	"github.com/hadron-sclang/hadron/internal/resolve"
	"github.com/hadron-sclang/hadron/internal/runtime"
	"github.com/hadron-sclang/hadron/internal/slot"
)

var (
	falseBits = slot.MakeBoolean(false).Bits()
	nilBits   = slot.MakeNil().Bits()
)

// Dispatch stack layout, in slots relative to the stack pointer: the
// spill area occupies [0, NumberOfSpillSlots) with slot 0 the scratch,
// then the dispatch frame follows.
const (
	dispatchReturnValue = 0
	dispatchReturnType  = 1
	dispatchSelector    = 2
	dispatchSelectorTyp = 3
	dispatchFirstArg    = 4
)

type Emitter struct{}

type patch struct {
	label       jit.Label
	blockNumber int
}

// Emit lowers lf through j.
func (e *Emitter) Emit(lf *linear.Frame, j jit.JIT) error {
	labelAddresses := make(map[int]jit.Address)
	var patches []patch

	// nextBlock[b] is the block serialized immediately after b, used to
	// omit branches that fall through.
	nextBlock := make(map[int]int)
	for i := 0; i+1 < len(lf.BlockOrder); i++ {
		nextBlock[lf.BlockOrder[i]] = lf.BlockOrder[i+1]
	}

	spillBase := 0
	dispatchBase := lf.NumberOfSpillSlots

	var pendingDispatch *hir.DispatchSetupStack
	currentBlock := -1

	branchTo := func(label jit.Label, blockNumber int) {
		if addr, known := labelAddresses[blockNumber]; known {
			j.PatchThere(label, addr)
		} else {
			patches = append(patches, patch{label, blockNumber})
		}
	}

	j.EnterABI()
	for _, h := range lf.Instructions {
		if h == nil {
			continue
		}

		// Labels capture their address before any predicate moves.
		if label, ok := h.(*hir.Label); ok {
			labelAddresses[label.BlockNumber] = j.Address()
			currentBlock = label.BlockNumber
		}

		if err := e.emitMoves(lf, h, j, spillBase); err != nil {
			return err
		}

		loc := func(v hir.Value) (jit.Reg, error) {
			reg, ok := h.Locations()[v.Number]
			if !ok {
				return 0, report.Internalf("emitter", "v%d has no register at %s", v.Number, opName(h))
			}
			return jit.Reg(reg), nil
		}

		switch op := h.(type) {
		case *hir.Label, *hir.MovesOnly:
			// Moves handled above; no code of their own.

		case *hir.Constant:
			dst, err := loc(op.Value())
			if err != nil {
				return err
			}
			j.Movi(dst, op.Constant.Bits())

		case *hir.LoadArgument:
			dst, err := loc(op.Value())
			if err != nil {
				return err
			}
			j.Ldxi(dst, jit.FramePointerReg, runtime.ArgumentSlot(op.Index)*8)

		case *hir.LoadArgumentType:
			dst, err := loc(op.Value())
			if err != nil {
				return err
			}
			j.Ldxi(dst, jit.FramePointerReg, (runtime.ArgumentSlot(op.Index)+1)*8)

		case *hir.BinaryOp:
			if err := e.emitBinary(op, j, loc); err != nil {
				return err
			}

		case *hir.ResolveType:
			dst, err := loc(op.Value())
			if err != nil {
				return err
			}
			src, err := loc(op.TypeOfValue)
			if err != nil {
				return err
			}
			j.Typr(dst, src)

		case *hir.StoreReturn:
			value, err := loc(op.ReturnValue)
			if err != nil {
				return err
			}
			typeValue, err := loc(op.ReturnType)
			if err != nil {
				return err
			}
			// Park the stack pointer, aim it at the frame head, write the
			// return pair, then restore it.
			j.Stxi(runtime.OffsetStackPointer, jit.ContextPointerReg, jit.StackPointerReg)
			j.Movr(jit.StackPointerReg, jit.FramePointerReg)
			j.Stxi(runtime.FrameSlotReturnValue*8, jit.StackPointerReg, value)
			j.Stxi(runtime.FrameSlotReturnType*8, jit.StackPointerReg, typeValue)
			j.Ldxi(jit.StackPointerReg, jit.ContextPointerReg, runtime.OffsetStackPointer)

		case *hir.Branch:
			// A jump to the block laid out immediately after this one is
			// a fallthrough; emit nothing.
			if next, ok := nextBlock[currentBlock]; ok && next == op.BlockNumber {
				continue
			}
			if addr, known := labelAddresses[op.BlockNumber]; known {
				j.Jmpi(addr)
			} else {
				branchTo(j.Jmp(), op.BlockNumber)
			}

		case *hir.BranchIfZero:
			cond, err := loc(op.Condition)
			if err != nil {
				return err
			}
			branchTo(j.Beqi(cond, falseBits), op.BlockNumber)
			branchTo(j.Beqi(cond, nilBits), op.BlockNumber)

		// Instance and class variable tables sit below the frame pointer
		// in value/type slot pairs.
		case *hir.LoadClassVariable:
			dst, err := loc(op.Value())
			if err != nil {
				return err
			}
			j.Ldxi(dst, jit.FramePointerReg, varSlotValue(op.Index))

		case *hir.LoadClassVariableType:
			dst, err := loc(op.Value())
			if err != nil {
				return err
			}
			j.Ldxi(dst, jit.FramePointerReg, varSlotType(op.Index))

		case *hir.StoreClassVariable:
			if err := e.emitVarStore(j, loc, op.Index, op.ToStore, op.StoreType); err != nil {
				return err
			}

		case *hir.LoadInstanceVariable:
			dst, err := loc(op.Value())
			if err != nil {
				return err
			}
			j.Ldxi(dst, jit.FramePointerReg, varSlotValue(op.Index))

		case *hir.LoadInstanceVariableType:
			dst, err := loc(op.Value())
			if err != nil {
				return err
			}
			j.Ldxi(dst, jit.FramePointerReg, varSlotType(op.Index))

		case *hir.StoreInstanceVariable:
			if err := e.emitVarStore(j, loc, op.Index, op.ToStore, op.StoreType); err != nil {
				return err
			}

		case *hir.DispatchSetupStack:
			pendingDispatch = op
			sel, err := loc(op.SelectorValue)
			if err != nil {
				return err
			}
			j.Stxi((dispatchBase+dispatchSelector)*8, jit.StackPointerReg, sel)
			selType, err := loc(op.SelectorType)
			if err != nil {
				return err
			}
			j.Stxi((dispatchBase+dispatchSelectorTyp)*8, jit.StackPointerReg, selType)

		case *hir.DispatchStoreArg:
			value, err := loc(op.ArgumentValue)
			if err != nil {
				return err
			}
			typeValue, err := loc(op.ArgumentType)
			if err != nil {
				return err
			}
			slotIndex := dispatchBase + dispatchFirstArg + 2*op.ArgumentNumber
			j.Stxi(slotIndex*8, jit.StackPointerReg, value)
			j.Stxi((slotIndex+1)*8, jit.StackPointerReg, typeValue)

		case *hir.DispatchStoreKeyArg:
			if pendingDispatch == nil {
				return report.Internalf("emitter", "keyword argument store outside dispatch")
			}
			base := dispatchBase + dispatchFirstArg + 2*pendingDispatch.NumberOfArguments +
				4*op.KeywordArgumentNumber
			fields := []hir.Value{op.Keyword, op.KeywordType, op.KeywordValue, op.KeywordValueType}
			for i, field := range fields {
				reg, err := loc(field)
				if err != nil {
					return err
				}
				j.Stxi((base+i)*8, jit.StackPointerReg, reg)
			}

		case *hir.DispatchCall:
			// All registers are preserved around the call, so clobbering
			// register 0 for the transfer is safe.
			j.Movi(0, runtime.InterruptDispatch)
			j.Stxi(runtime.OffsetInterruptCode, jit.ContextPointerReg, 0)
			j.Ldxi(0, jit.ContextPointerReg, runtime.OffsetExitMachineCode)
			j.Jmpr(0)

		case *hir.DispatchLoadReturn:
			dst, err := loc(op.Value())
			if err != nil {
				return err
			}
			j.Ldxi(dst, jit.StackPointerReg, (dispatchBase+dispatchReturnValue)*8)

		case *hir.DispatchLoadReturnType:
			dst, err := loc(op.Value())
			if err != nil {
				return err
			}
			j.Ldxi(dst, jit.StackPointerReg, (dispatchBase+dispatchReturnType)*8)

		case *hir.DispatchCleanup:
			pendingDispatch = nil

		case *hir.Phi:
			return report.Internalf("emitter", "phi reached the instruction stream")

		default:
			return report.Internalf("emitter", "no lowering for opcode %d", h.Opcode())
		}
	}
	j.LeaveABI()
	j.Ret()

	for _, pt := range patches {
		addr, known := labelAddresses[pt.blockNumber]
		if !known {
			return report.Internalf("emitter", "branch to unemitted block %d", pt.blockNumber)
		}
		j.PatchThere(pt.label, addr)
	}
	return nil
}

// varSlotValue and varSlotType give the byte offsets of a variable table
// entry's value and type words relative to the frame pointer.
func varSlotValue(index int) int { return -8 * (2*index + 2) }
func varSlotType(index int) int  { return -8 * (2*index + 1) }

func (e *Emitter) emitVarStore(j jit.JIT, loc func(hir.Value) (jit.Reg, error),
	index int, toStore, storeType hir.Value) error {
	src, err := loc(toStore)
	if err != nil {
		return err
	}
	j.Stxi(varSlotValue(index), jit.FramePointerReg, src)
	if storeType.Valid() {
		typeReg, err := loc(storeType)
		if err != nil {
			return err
		}
		j.Stxi(varSlotType(index), jit.FramePointerReg, typeReg)
	}
	return nil
}

func (e *Emitter) emitBinary(op *hir.BinaryOp, j jit.JIT, loc func(hir.Value) (jit.Reg, error)) error {
	dst, err := loc(op.Value())
	if err != nil {
		return err
	}
	left, err := loc(op.Left)
	if err != nil {
		return err
	}
	right, err := loc(op.Right)
	if err != nil {
		return err
	}
	switch op.Op {
	case hir.BinaryAdd:
		j.Addr(dst, left, right)
	case hir.BinarySubtract:
		j.Subr(dst, left, right)
	case hir.BinaryMultiply:
		j.Mulr(dst, left, right)
	case hir.BinaryDivide:
		j.Divr(dst, left, right)
	case hir.BinaryLessThan:
		j.Ltr(dst, left, right)
	case hir.BinaryGreaterThan:
		j.Gtr(dst, left, right)
	case hir.BinaryLessThanOrEqual:
		j.Ler(dst, left, right)
	case hir.BinaryGreaterThanOrEqual:
		j.Ger(dst, left, right)
	case hir.BinaryEqual:
		j.Eqr(dst, left, right)
	case hir.BinaryNotEqual:
		j.Ner(dst, left, right)
	default:
		return report.Internalf("emitter", "unknown binary op %d", op.Op)
	}
	return nil
}

// emitMoves schedules and lowers an instruction's predicate moves.
func (e *Emitter) emitMoves(lf *linear.Frame, h hir.HIR, j jit.JIT, spillBase int) error {
	moves := h.Moves()
	if len(moves) == 0 {
		return nil
	}
	for _, mv := range resolve.Schedule(moves) {
		if err := e.emitMove(j, mv, spillBase); err != nil {
			return err
		}
	}
	return nil
}

func (e *Emitter) emitMove(j jit.JIT, mv resolve.Move, spillBase int) error {
	slotOffset := func(loc int) int {
		if loc == resolve.Scratch {
			return spillBase * 8
		}
		return (spillBase - loc) * 8
	}
	fromSlot := mv.From < 0 || mv.From == resolve.Scratch
	toSlot := mv.To < 0 || mv.To == resolve.Scratch
	switch {
	case !fromSlot && !toSlot:
		j.Movr(jit.Reg(mv.To), jit.Reg(mv.From))
	case !fromSlot && toSlot:
		j.Stxi(slotOffset(mv.To), jit.StackPointerReg, jit.Reg(mv.From))
	case fromSlot && !toSlot:
		j.Ldxi(jit.Reg(mv.To), jit.StackPointerReg, slotOffset(mv.From))
	default:
		return report.Internalf("emitter", "memory to memory move %d -> %d", mv.From, mv.To)
	}
	return nil
}

func opName(h hir.HIR) string {
	return opNames[h.Opcode()]
}

var opNames = map[hir.Opcode]string{
	hir.OpcodeLoadArgument:             "load-argument",
	hir.OpcodeLoadArgumentType:         "load-argument-type",
	hir.OpcodeConstant:                 "constant",
	hir.OpcodeBinaryOp:                 "binary-op",
	hir.OpcodeStoreReturn:              "store-return",
	hir.OpcodeResolveType:              "resolve-type",
	hir.OpcodeLoadInstanceVariable:     "load-instance-variable",
	hir.OpcodeLoadInstanceVariableType: "load-instance-variable-type",
	hir.OpcodeLoadClassVariable:        "load-class-variable",
	hir.OpcodeLoadClassVariableType:    "load-class-variable-type",
	hir.OpcodeStoreInstanceVariable:    "store-instance-variable",
	hir.OpcodeStoreClassVariable:       "store-class-variable",
	hir.OpcodePhi:                      "phi",
	hir.OpcodeBranch:                   "branch",
	hir.OpcodeBranchIfZero:             "branch-if-zero",
	hir.OpcodeLabel:                    "label",
	hir.OpcodeDispatchSetupStack:       "dispatch-setup-stack",
	hir.OpcodeDispatchStoreArg:         "dispatch-store-arg",
	hir.OpcodeDispatchStoreKeyArg:      "dispatch-store-key-arg",
	hir.OpcodeDispatchCall:             "dispatch-call",
	hir.OpcodeDispatchLoadReturn:       "dispatch-load-return",
	hir.OpcodeDispatchLoadReturnType:   "dispatch-load-return-type",
	hir.OpcodeDispatchCleanup:          "dispatch-cleanup",
	hir.OpcodeMoves:                    "moves",
}
