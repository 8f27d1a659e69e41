// Package jit defines the abstract assembler the emitter drives and a
// recording implementation that can also execute its instruction stream,
// used by the tools and the pipeline tests.
package jit

// Reg designates a register. Allocatable registers are small non-negative
// integers; the three pointers the calling convention reserves are
// addressed by the negative constants below.
type Reg int

const (
	// ContextPointerReg addresses the ThreadContext.
	ContextPointerReg Reg = -1
	// FramePointerReg addresses the current Hadron frame.
	FramePointerReg Reg = -2
	// StackPointerReg addresses the top of the Hadron stack.
	StackPointerReg Reg = -3
)

// Label identifies a forward branch site awaiting PatchThere.
type Label int

// Address is an instruction position in the emitted stream.
type Address int

// JIT is the instruction surface the emitter targets. Arithmetic operates
// on slot-encoded operands; a hardware backend lowers each to the
// untag/compute/retag sequence, the virtual backend computes directly.
type JIT interface {
	// Address returns the position the next instruction will occupy.
	Address() Address

	Movr(dst, src Reg)
	Movi(dst Reg, value uint64)
	// Ldxi loads the word at [base+offset] into dst.
	Ldxi(dst, base Reg, offset int)
	// Stxi stores src to the word at [base+offset].
	Stxi(offset int, base Reg, src Reg)

	Addr(dst, a, b Reg)
	Subr(dst, a, b Reg)
	Mulr(dst, a, b Reg)
	Divr(dst, a, b Reg)
	Ltr(dst, a, b Reg)
	Gtr(dst, a, b Reg)
	Ler(dst, a, b Reg)
	Ger(dst, a, b Reg)
	Eqr(dst, a, b Reg)
	Ner(dst, a, b Reg)
	// Typr extracts the type flags word of the slot in src.
	Typr(dst, src Reg)

	// Beqi branches when r equals the immediate; the target is patched
	// later via PatchThere.
	Beqi(r Reg, value uint64) Label
	// Jmp is an unconditional forward branch awaiting a patch.
	Jmp() Label
	// Jmpi jumps to a known (backward) address.
	Jmpi(addr Address)
	// Jmpr jumps through a register.
	Jmpr(r Reg)

	// PatchThere resolves a recorded label to a target address.
	PatchThere(label Label, addr Address)

	// EnterABI and LeaveABI bracket the prologue and epilogue emitted at
	// frame boundaries.
	EnterABI()
	LeaveABI()
	Ret()
}
