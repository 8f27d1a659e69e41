package pipeline

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hadron-sclang/hadron/internal/jit"
	"github.com/hadron-sclang/hadron/internal/linear"
	"github.com/hadron-sclang/hadron/internal/report"
	"github.com/hadron-sclang/hadron/internal/runtime"
	"github.com/hadron-sclang/hadron/internal/slot"
)

func compile(t *testing.T, source string, registers int) (*linear.Frame, *jit.Virtual) {
	t.Helper()
	p := New(Options{NumberOfRegisters: registers, Validate: true})
	code := jit.NewVirtual(registers)
	lf, err := p.CompileBlock(source, code)
	require.NoError(t, err)
	require.NotNil(t, lf)
	return lf, code
}

func execute(t *testing.T, code *jit.Virtual) slot.Slot {
	t.Helper()
	memory := make([]uint64, 1024)
	framePointer := uint64(512)
	ctx := &runtime.ThreadContext{
		FramePointer:    framePointer,
		StackPointer:    0,
		ExitMachineCode: ^uint64(0),
	}
	memory[framePointer] = slot.MakeNil().Bits()
	require.NoError(t, code.Execute(ctx, memory))
	return slot.FromBits(memory[framePointer])
}

func run(t *testing.T, source string, registers int) slot.Slot {
	t.Helper()
	_, code := compile(t, source, registers)
	return execute(t, code)
}

// Scenario: `nil` compiles to a single block with a constant and a
// store-return, no phis, no spills.
func TestCompileNil(t *testing.T) {
	lf, code := compile(t, "nil", 16)
	require.GreaterOrEqual(t, len(lf.Instructions), 3)
	require.Equal(t, 1, lf.NumberOfSpillSlots)
	label, err := lf.Label(0)
	require.NoError(t, err)
	require.Empty(t, label.Phis)

	result := execute(t, code)
	require.Equal(t, slot.TypeNil, result.Type())
}

func TestCompileEmptySourceReturnsNil(t *testing.T) {
	result := run(t, "", 16)
	require.Equal(t, slot.TypeNil, result.Type())
}

// Scenario: `1 + 2` lowers to an add over two constants and needs at most
// two registers beyond the result.
func TestCompileIntegerAdd(t *testing.T) {
	result := run(t, "1 + 2", 16)
	require.Equal(t, slot.TypeInteger, result.Type())
	require.Equal(t, int32(3), result.Integer())
}

func TestCompileFloatArithmetic(t *testing.T) {
	result := run(t, "1.5 + 2.25", 16)
	require.Equal(t, slot.TypeFloat, result.Type())
	require.Equal(t, 3.75, result.Float())
}

// Scenario: `var x = 3; x + x` keeps one value for x across both reads.
func TestCompileSharedVariable(t *testing.T) {
	result := run(t, "var x = 3; x + x", 16)
	require.Equal(t, int32(6), result.Integer())
}

func TestCompileComparisonProducesBoolean(t *testing.T) {
	result := run(t, "3 < 5", 16)
	require.Equal(t, slot.TypeBoolean, result.Type())
	require.True(t, result.Boolean())
}

// Scenario: if with a bound condition joins both arms through a phi whose
// inputs arrive by resolver moves.
func TestCompileIfTakesTrueBranch(t *testing.T) {
	result := run(t, "var a = true; if (a) { 1 } { 2 }", 16)
	require.Equal(t, int32(1), result.Integer())
}

func TestCompileIfTakesFalseBranch(t *testing.T) {
	result := run(t, "var a = false; if (a) { 1 } { 2 }", 16)
	require.Equal(t, int32(2), result.Integer())
}

func TestCompileIfWithoutElseYieldsNil(t *testing.T) {
	result := run(t, "var a = false; if (a) { 1 }", 16)
	require.Equal(t, slot.TypeNil, result.Type())
}

func TestCompileIfConditionNilIsFalsey(t *testing.T) {
	result := run(t, "var a = nil; if (a) { 1 } { 2 }", 16)
	require.Equal(t, int32(2), result.Integer())
}

func TestCompileNestedIf(t *testing.T) {
	source := `var a = true; var b = false;
if (a) { if (b) { 10 } { 20 } } { 30 }`
	result := run(t, source, 16)
	require.Equal(t, int32(20), result.Integer())
}

// Scenario: a chain long enough to exceed the register file spills at
// least one interval, and the emitted store/load moves preserve the
// arithmetic result.
func TestCompileSpillingChainComputesCorrectly(t *testing.T) {
	source := `var a = 1; var b = 2; var c = 3; var d = 4;
var e = 5; var f = 6; var g = 7; var h = 8;
a + b + c + d + e + f + g + h`
	lf, code := compile(t, source, 4)
	require.Greater(t, lf.NumberOfSpillSlots, 1)

	spilled := false
	for _, segments := range lf.ValueLifetimes {
		for _, segment := range segments {
			spilled = spilled || segment.IsSpill
		}
	}
	require.True(t, spilled)

	result := execute(t, code)
	require.Equal(t, int32(36), result.Integer())
}

func TestCompileDeepSpillPressure(t *testing.T) {
	// Forty-plus live values across two register files' worth of vars.
	source := ""
	sum := 0
	for i := 0; i < 44; i++ {
		source += varDecl(i)
		sum += i
	}
	source += "v0"
	for i := 1; i < 44; i++ {
		source += " + v" + strconv.Itoa(i)
	}
	result := run(t, source, 8)
	require.Equal(t, int32(sum), result.Integer())
}

func TestCompileReturnExpression(t *testing.T) {
	result := run(t, "^42", 16)
	require.Equal(t, int32(42), result.Integer())
}

func TestCompileParenGrouping(t *testing.T) {
	result := run(t, "(1 + 2) * 3", 16)
	require.Equal(t, int32(9), result.Integer())
}

func TestCompileErrorsReturnNilArtifact(t *testing.T) {
	p := New(Options{Validate: true})
	code := jit.NewVirtual(DefaultNumberOfRegisters)
	lf, err := p.CompileBlock("zz + 1", code)
	require.Error(t, err)
	require.Nil(t, lf)
	require.False(t, p.Reporter().OK())
	require.Equal(t, report.KindSemantic, p.Reporter().Errors()[0].Kind)
}

func TestCompileLexErrorHalts(t *testing.T) {
	p := New(Options{Validate: true})
	lf, err := p.CompileBlock("....", nil)
	require.Error(t, err)
	require.Nil(t, lf)
	require.Equal(t, report.KindLex, p.Reporter().Errors()[0].Kind)
}

// Scenario: the while loop builds header, body, and exit blocks with a
// phi at the header fed by the entry and the back edge.
func TestCompileWhileLoopShape(t *testing.T) {
	p := New(Options{NumberOfRegisters: 16, Validate: true})
	frame, err := p.BuildFrame("var i = 0; while { i < 10 } { i = i + 1 }")
	require.NoError(t, err)
	require.Equal(t, 4, frame.NumberOfBlocks())
	header := frame.Blocks[1]
	require.Len(t, header.Phis, 1)
	require.Len(t, header.Phis[0].Inputs, 2)

	// The backend accepts the loop; dispatch lowering makes it
	// non-executable without a runtime, so only compile it.
	code := jit.NewVirtual(16)
	lf, err := p.CompileBlock("var i = 0; while { i < 10 } { i = i + 1 }", code)
	require.NoError(t, err)
	require.NotNil(t, lf)
}

func TestCompiledDispatchTrapsToExit(t *testing.T) {
	_, code := compile(t, "5.neg", 16)
	memory := make([]uint64, 1024)
	ctx := &runtime.ThreadContext{
		FramePointer:    512,
		StackPointer:    0,
		ExitMachineCode: ^uint64(0),
	}
	require.NoError(t, code.Execute(ctx, memory))
	require.Equal(t, uint64(runtime.InterruptDispatch), ctx.InterruptCode)
}

func TestValidatorAcceptsAllScenarios(t *testing.T) {
	sources := []string{
		"nil",
		"1 + 2",
		"var x = 3; x + x",
		"var a = true; if (a) { 1 } { 2 }",
		"var i = 0; while { i < 10 } { i = i + 1 }",
		"5.neg",
		"~depth = 3; ~depth",
	}
	for _, source := range sources {
		p := New(Options{Validate: true})
		_, err := p.CompileBlock(source, jit.NewVirtual(DefaultNumberOfRegisters))
		require.NoError(t, err, "source %q", source)
	}
}

func varDecl(i int) string {
	return "var v" + strconv.Itoa(i) + " = " + strconv.Itoa(i) + "; "
}
