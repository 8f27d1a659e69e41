package jit

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hadron-sclang/hadron/internal/runtime"
	"github.com/hadron-sclang/hadron/internal/slot"
)

func newContext() (*runtime.ThreadContext, []uint64) {
	memory := make([]uint64, 64)
	return &runtime.ThreadContext{
		FramePointer:    32,
		StackPointer:    0,
		ExitMachineCode: ^uint64(0),
	}, memory
}

func TestMoveAndStore(t *testing.T) {
	v := NewVirtual(4)
	v.Movi(0, slot.MakeInteger(7).Bits())
	v.Movr(1, 0)
	v.Stxi(0, FramePointerReg, 1)
	v.Ret()

	ctx, memory := newContext()
	require.NoError(t, v.Execute(ctx, memory))
	require.Equal(t, int32(7), slot.FromBits(memory[32]).Integer())
}

func TestLoadIndirect(t *testing.T) {
	v := NewVirtual(2)
	v.Ldxi(0, FramePointerReg, 16)
	v.Stxi(0, FramePointerReg, 0)
	v.Ret()

	ctx, memory := newContext()
	memory[34] = slot.MakeInteger(99).Bits()
	require.NoError(t, v.Execute(ctx, memory))
	require.Equal(t, int32(99), slot.FromBits(memory[32]).Integer())
}

func TestSlotArithmetic(t *testing.T) {
	v := NewVirtual(4)
	v.Movi(0, slot.MakeInteger(6).Bits())
	v.Movi(1, slot.MakeFloat(0.5).Bits())
	v.Addr(2, 0, 1)
	v.Stxi(0, FramePointerReg, 2)
	v.Ret()

	ctx, memory := newContext()
	require.NoError(t, v.Execute(ctx, memory))
	result := slot.FromBits(memory[32])
	require.Equal(t, slot.TypeFloat, result.Type())
	require.Equal(t, 6.5, result.Float())
}

func TestBranchPatching(t *testing.T) {
	v := NewVirtual(2)
	v.Movi(0, slot.MakeBoolean(false).Bits())
	label := v.Beqi(0, slot.MakeBoolean(false).Bits())
	v.Movi(1, slot.MakeInteger(1).Bits())
	skip := v.Jmp()
	target := v.Address()
	v.Movi(1, slot.MakeInteger(2).Bits())
	end := v.Address()
	v.Stxi(0, FramePointerReg, 1)
	v.Ret()
	v.PatchThere(label, target)
	v.PatchThere(skip, end)

	ctx, memory := newContext()
	require.NoError(t, v.Execute(ctx, memory))
	require.Equal(t, int32(2), slot.FromBits(memory[32]).Integer())
}

func TestJumpThroughRegisterToExitHalts(t *testing.T) {
	v := NewVirtual(2)
	v.Ldxi(0, ContextPointerReg, runtime.OffsetExitMachineCode)
	v.Jmpr(0)
	v.Movi(1, 1)

	ctx, memory := newContext()
	require.NoError(t, v.Execute(ctx, memory))
}

func TestContextFieldAccess(t *testing.T) {
	v := NewVirtual(2)
	v.Movi(0, 42)
	v.Stxi(runtime.OffsetInterruptCode, ContextPointerReg, 0)
	v.Ret()

	ctx, memory := newContext()
	require.NoError(t, v.Execute(ctx, memory))
	require.Equal(t, uint64(42), ctx.InterruptCode)
}

func TestUnpatchedBranchIsAnError(t *testing.T) {
	v := NewVirtual(1)
	v.Movi(0, 1)
	v.Beqi(0, 1)
	v.Ret()

	ctx, memory := newContext()
	require.Error(t, v.Execute(ctx, memory))
}

func TestListing(t *testing.T) {
	v := NewVirtual(1)
	v.Movi(0, 5)
	v.Ret()
	listing := v.Listing()
	require.Len(t, listing, 2)
	require.Contains(t, listing[0], "movi")
	require.Contains(t, listing[1], "ret")
}
