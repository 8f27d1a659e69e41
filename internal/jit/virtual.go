package jit

import (
	"fmt"

	"github.com/hadron-sclang/hadron/internal/report"
	"github.com/hadron-sclang/hadron/internal/runtime"
	"github.com/hadron-sclang/hadron/internal/slot"
)

type opcode int8

const (
	opMovr opcode = iota
	opMovi
	opLdxi
	opStxi
	opAddr
	opSubr
	opMulr
	opDivr
	opLtr
	opGtr
	opLer
	opGer
	opEqr
	opNer
	opTypr
	opBeqi
	opJmp
	opJmpi
	opJmpr
	opEnter
	opLeave
	opRet
)

var opNames = [...]string{
	"movr", "movi", "ldxi", "stxi", "addr", "subr", "mulr", "divr",
	"ltr", "gtr", "ler", "ger", "eqr", "ner", "typr", "beqi", "jmp",
	"jmpi", "jmpr", "enter", "leave", "ret",
}

type instr struct {
	op     opcode
	dst    Reg
	a      Reg
	b      Reg
	imm    uint64
	offset int
	target Address
}

// Virtual is the recording JIT. It captures the emitted instruction
// stream, resolves patches, and can execute the result against a
// ThreadContext and a Hadron stack, which is what the pipeline tests and
// the diagnostic tools run. Execution is a straight fetch-decode loop
// over the recorded stream.
type Virtual struct {
	// NumRegisters is the allocatable register count; the three reserved
	// pointers live outside this range.
	NumRegisters int

	instrs []instr
}

func NewVirtual(numRegisters int) *Virtual {
	return &Virtual{NumRegisters: numRegisters}
}

func (v *Virtual) record(i instr) Label {
	v.instrs = append(v.instrs, i)
	return Label(len(v.instrs) - 1)
}

func (v *Virtual) Address() Address { return Address(len(v.instrs)) }

func (v *Virtual) Movr(dst, src Reg) { v.record(instr{op: opMovr, dst: dst, a: src}) }

func (v *Virtual) Movi(dst Reg, value uint64) { v.record(instr{op: opMovi, dst: dst, imm: value}) }

func (v *Virtual) Ldxi(dst, base Reg, offset int) {
	v.record(instr{op: opLdxi, dst: dst, a: base, offset: offset})
}

func (v *Virtual) Stxi(offset int, base Reg, src Reg) {
	v.record(instr{op: opStxi, a: base, b: src, offset: offset})
}

func (v *Virtual) Addr(dst, a, b Reg) { v.record(instr{op: opAddr, dst: dst, a: a, b: b}) }
func (v *Virtual) Subr(dst, a, b Reg) { v.record(instr{op: opSubr, dst: dst, a: a, b: b}) }
func (v *Virtual) Mulr(dst, a, b Reg) { v.record(instr{op: opMulr, dst: dst, a: a, b: b}) }
func (v *Virtual) Divr(dst, a, b Reg) { v.record(instr{op: opDivr, dst: dst, a: a, b: b}) }
func (v *Virtual) Ltr(dst, a, b Reg)  { v.record(instr{op: opLtr, dst: dst, a: a, b: b}) }
func (v *Virtual) Gtr(dst, a, b Reg)  { v.record(instr{op: opGtr, dst: dst, a: a, b: b}) }
func (v *Virtual) Ler(dst, a, b Reg)  { v.record(instr{op: opLer, dst: dst, a: a, b: b}) }
func (v *Virtual) Ger(dst, a, b Reg)  { v.record(instr{op: opGer, dst: dst, a: a, b: b}) }
func (v *Virtual) Eqr(dst, a, b Reg)  { v.record(instr{op: opEqr, dst: dst, a: a, b: b}) }
func (v *Virtual) Ner(dst, a, b Reg)  { v.record(instr{op: opNer, dst: dst, a: a, b: b}) }
func (v *Virtual) Typr(dst, src Reg)  { v.record(instr{op: opTypr, dst: dst, a: src}) }

func (v *Virtual) Beqi(r Reg, value uint64) Label {
	return v.record(instr{op: opBeqi, a: r, imm: value, target: -1})
}

func (v *Virtual) Jmp() Label { return v.record(instr{op: opJmp, target: -1}) }

func (v *Virtual) Jmpi(addr Address) { v.record(instr{op: opJmpi, target: addr}) }

func (v *Virtual) Jmpr(r Reg) { v.record(instr{op: opJmpr, a: r}) }

func (v *Virtual) PatchThere(label Label, addr Address) {
	v.instrs[label].target = addr
}

func (v *Virtual) EnterABI() { v.record(instr{op: opEnter}) }
func (v *Virtual) LeaveABI() { v.record(instr{op: opLeave}) }
func (v *Virtual) Ret()      { v.record(instr{op: opRet}) }

// Listing renders the recorded stream for the diagnostic tools.
func (v *Virtual) Listing() []string {
	out := make([]string, len(v.instrs))
	for i, in := range v.instrs {
		out[i] = fmt.Sprintf("%4d  %-6s dst=%d a=%d b=%d imm=%#x off=%d target=%d",
			i, opNames[in.op], in.dst, in.a, in.b, in.imm, in.offset, in.target)
	}
	return out
}

// maxSteps bounds one Execute call; a well-formed program that exceeds it
// is treated as runaway.
const maxSteps = 1 << 22

// Execute runs the recorded program. memory is the Hadron stack in slot
// words; the context's frame and stack pointers index into it. Execution
// ends at ret or at a register jump matching the context's exit address.
func (v *Virtual) Execute(ctx *runtime.ThreadContext, memory []uint64) error {
	regs := make([]uint64, v.NumRegisters)

	get := func(r Reg) uint64 {
		switch r {
		case ContextPointerReg:
			return 0
		case FramePointerReg:
			return ctx.FramePointer
		case StackPointerReg:
			return ctx.StackPointer
		default:
			return regs[r]
		}
	}
	set := func(r Reg, val uint64) {
		switch r {
		case ContextPointerReg:
			// The context pointer is pinned.
		case FramePointerReg:
			ctx.FramePointer = val
		case StackPointerReg:
			ctx.StackPointer = val
		default:
			regs[r] = val
		}
	}
	ctxField := func(offset int) *uint64 {
		switch offset {
		case runtime.OffsetCStackPointer:
			return &ctx.CStackPointer
		case runtime.OffsetFramePointer:
			return &ctx.FramePointer
		case runtime.OffsetStackPointer:
			return &ctx.StackPointer
		case runtime.OffsetInterruptCode:
			return &ctx.InterruptCode
		case runtime.OffsetExitMachineCode:
			return &ctx.ExitMachineCode
		}
		return nil
	}

	pc := 0
	for steps := 0; pc < len(v.instrs); steps++ {
		if steps > maxSteps {
			return report.Internalf("virtual jit", "step budget exhausted at pc %d", pc)
		}
		in := v.instrs[pc]
		switch in.op {
		case opMovr:
			set(in.dst, get(in.a))
		case opMovi:
			set(in.dst, in.imm)
		case opLdxi:
			if in.a == ContextPointerReg {
				field := ctxField(in.offset)
				if field == nil {
					return report.Internalf("virtual jit", "bad context offset %d", in.offset)
				}
				set(in.dst, *field)
			} else {
				index := int(get(in.a)) + in.offset/8
				if index < 0 || index >= len(memory) {
					return report.Internalf("virtual jit", "load outside stack at %d", index)
				}
				set(in.dst, memory[index])
			}
		case opStxi:
			if in.a == ContextPointerReg {
				field := ctxField(in.offset)
				if field == nil {
					return report.Internalf("virtual jit", "bad context offset %d", in.offset)
				}
				*field = get(in.b)
			} else {
				index := int(get(in.a)) + in.offset/8
				if index < 0 || index >= len(memory) {
					return report.Internalf("virtual jit", "store outside stack at %d", index)
				}
				memory[index] = get(in.b)
			}
		case opAddr, opSubr, opMulr, opDivr, opLtr, opGtr, opLer, opGer, opEqr, opNer:
			result, err := arith(in.op, slot.FromBits(get(in.a)), slot.FromBits(get(in.b)))
			if err != nil {
				return err
			}
			set(in.dst, result.Bits())
		case opTypr:
			set(in.dst, uint64(slot.FromBits(get(in.a)).Type()))
		case opBeqi:
			if get(in.a) == in.imm {
				if in.target < 0 {
					return report.Internalf("virtual jit", "unpatched branch at pc %d", pc)
				}
				pc = int(in.target)
				continue
			}
		case opJmp, opJmpi:
			if in.target < 0 {
				return report.Internalf("virtual jit", "unpatched jump at pc %d", pc)
			}
			pc = int(in.target)
			continue
		case opJmpr:
			if get(in.a) == ctx.ExitMachineCode {
				return nil
			}
			pc = int(get(in.a))
			continue
		case opEnter, opLeave:
			// ABI bracketing is a no-op in the virtual machine.
		case opRet:
			return nil
		}
		pc++
	}
	return nil
}

// arith evaluates one slot-encoded arithmetic instruction. Integer pairs
// stay integral, any float operand widens the result to float, and
// comparisons produce booleans.
func arith(op opcode, a, b slot.Slot) (slot.Slot, error) {
	aType, bType := a.Type(), b.Type()
	numeric := func(t slot.Type) bool { return t == slot.TypeInteger || t == slot.TypeFloat }
	if !numeric(aType) || !numeric(bType) {
		return slot.Slot{}, report.Internalf("virtual jit",
			"arithmetic on non-numeric slots %s and %s", aType, bType)
	}

	if aType == slot.TypeInteger && bType == slot.TypeInteger {
		x, y := a.Integer(), b.Integer()
		switch op {
		case opAddr:
			return slot.MakeInteger(x + y), nil
		case opSubr:
			return slot.MakeInteger(x - y), nil
		case opMulr:
			return slot.MakeInteger(x * y), nil
		case opDivr:
			if y == 0 {
				return slot.Slot{}, report.Internalf("virtual jit", "integer division by zero")
			}
			return slot.MakeInteger(x / y), nil
		case opLtr:
			return slot.MakeBoolean(x < y), nil
		case opGtr:
			return slot.MakeBoolean(x > y), nil
		case opLer:
			return slot.MakeBoolean(x <= y), nil
		case opGer:
			return slot.MakeBoolean(x >= y), nil
		case opEqr:
			return slot.MakeBoolean(x == y), nil
		case opNer:
			return slot.MakeBoolean(x != y), nil
		}
	}

	toFloat := func(s slot.Slot) float64 {
		if s.Type() == slot.TypeInteger {
			return float64(s.Integer())
		}
		return s.Float()
	}
	x, y := toFloat(a), toFloat(b)
	switch op {
	case opAddr:
		return slot.MakeFloat(x + y), nil
	case opSubr:
		return slot.MakeFloat(x - y), nil
	case opMulr:
		return slot.MakeFloat(x * y), nil
	case opDivr:
		return slot.MakeFloat(x / y), nil
	case opLtr:
		return slot.MakeBoolean(x < y), nil
	case opGtr:
		return slot.MakeBoolean(x > y), nil
	case opLer:
		return slot.MakeBoolean(x <= y), nil
	case opGer:
		return slot.MakeBoolean(x >= y), nil
	case opEqr:
		return slot.MakeBoolean(x == y), nil
	case opNer:
		return slot.MakeBoolean(x != y), nil
	}
	return slot.Slot{}, report.Internalf("virtual jit", "unknown arithmetic opcode %d", op)
}
