package hir

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hadron-sclang/hadron/internal/lex"
	"github.com/hadron-sclang/hadron/internal/parse"
	"github.com/hadron-sclang/hadron/internal/report"
	"github.com/hadron-sclang/hadron/internal/slot"
)

func buildSource(t *testing.T, source string) (*Frame, *report.Reporter) {
	t.Helper()
	reporter := report.NewReporter()
	reporter.SetSource(source)
	lexer := lex.NewLexer(source, reporter)
	require.True(t, lexer.Lex(), "lex errors: %v", reporter.Errors())
	parser := parse.NewParser(lexer, reporter)
	root := parser.Parse()
	require.True(t, reporter.OK(), "parse errors: %v", reporter.Errors())
	blockNode, ok := root.(*parse.BlockNode)
	if !ok {
		blockNode = &parse.BlockNode{}
	}
	builder := NewBuilder(lexer, reporter)
	return builder.Build(blockNode), reporter
}

func mustBuild(t *testing.T, source string) *Frame {
	t.Helper()
	frame, reporter := buildSource(t, source)
	require.NotNil(t, frame, "build errors: %v", reporter.Errors())
	return frame
}

func countPhis(frame *Frame) int {
	n := 0
	for _, block := range frame.Blocks {
		n += len(block.Phis)
	}
	return n
}

func TestNilLiteralBuildsOneBlock(t *testing.T) {
	frame := mustBuild(t, "nil")
	require.Equal(t, 1, frame.NumberOfBlocks())
	require.Zero(t, countPhis(frame))

	block := frame.Blocks[0]
	constant, ok := block.Statements[0].(*Constant)
	require.True(t, ok)
	require.True(t, constant.Constant.IsNil())
	_, ok = block.Statements[len(block.Statements)-1].(*StoreReturn)
	require.True(t, ok)
}

func TestIntegerAddLowersToBinaryOp(t *testing.T) {
	frame := mustBuild(t, "1 + 2")
	block := frame.Blocks[0]
	var binop *BinaryOp
	for _, h := range block.Statements {
		if b, ok := h.(*BinaryOp); ok {
			binop = b
		}
	}
	require.NotNil(t, binop)
	require.Equal(t, BinaryAdd, binop.Op)
	require.Equal(t, slot.TypeInteger, binop.Value().TypeFlags)
	require.Len(t, binop.Reads(), 2)
}

func TestVariableReadsShareOneValue(t *testing.T) {
	frame := mustBuild(t, "var x = 3; x + x")
	block := frame.Blocks[0]
	var binop *BinaryOp
	for _, h := range block.Statements {
		if b, ok := h.(*BinaryOp); ok {
			binop = b
		}
	}
	require.NotNil(t, binop)
	require.Equal(t, binop.Left.Number, binop.Right.Number)
}

func TestAssignmentCreatesNoNewValueForName(t *testing.T) {
	frame := mustBuild(t, "var x = 1; x = 2; x")
	// The frame holds the two constants, the return type resolve, and
	// nothing extra for the name itself.
	var constants int
	for _, h := range frame.Blocks[0].Statements {
		if _, ok := h.(*Constant); ok {
			constants++
		}
	}
	require.Equal(t, 2, constants)
}

func TestUnknownSelectorLowersToDispatchSequence(t *testing.T) {
	frame := mustBuild(t, "5.neg")
	opcodes := make([]Opcode, 0)
	for _, h := range frame.Blocks[0].Statements {
		opcodes = append(opcodes, h.Opcode())
	}
	require.Contains(t, opcodes, OpcodeDispatchSetupStack)
	require.Contains(t, opcodes, OpcodeDispatchStoreArg)
	require.Contains(t, opcodes, OpcodeDispatchCall)
	require.Contains(t, opcodes, OpcodeDispatchLoadReturn)
	require.Contains(t, opcodes, OpcodeDispatchLoadReturnType)
	require.Contains(t, opcodes, OpcodeDispatchCleanup)
}

func TestIfBuildsDiamondWithJoinPhi(t *testing.T) {
	frame := mustBuild(t, "var a = true; if (a) { 1 } { 2 }")
	require.Equal(t, 4, frame.NumberOfBlocks())

	entry := frame.Blocks[0]
	require.Len(t, entry.Successors, 2)

	join := frame.Blocks[3]
	require.Len(t, join.Predecessors, 2)
	require.Len(t, join.Phis, 1)
	require.Len(t, join.Phis[0].Inputs, 2)
	require.NotEqual(t, join.Phis[0].Inputs[0].Number, join.Phis[0].Inputs[1].Number)
}

// An if with no else still joins both paths in one continuation block.
func TestIfWithoutElseSharesContinuation(t *testing.T) {
	frame := mustBuild(t, "var a = true; if (a) { 1 }")
	require.Equal(t, 4, frame.NumberOfBlocks())
	join := frame.Blocks[3]
	require.Len(t, join.Predecessors, 2)
}

func TestWhileBuildsLoopWithHeaderPhi(t *testing.T) {
	frame := mustBuild(t, "var i = 0; while { i < 10 } { i = i + 1 }")
	// entry, header, body, exit
	require.Equal(t, 4, frame.NumberOfBlocks())

	header := frame.Blocks[1]
	require.Len(t, header.Predecessors, 2)
	require.Len(t, header.Phis, 1)
	require.Len(t, header.Phis[0].Inputs, 2)

	// The body's back edge returns to the header.
	body := frame.Blocks[2]
	require.Contains(t, body.Successors, header.Number)
}

func TestTrivialPhiElimination(t *testing.T) {
	// Both arms leave the same value, so the join phi for the result of
	// reading x afterwards must collapse.
	frame := mustBuild(t, "var a = true; var x = 7; if (a) { 0 } { 1 }; x")
	for _, block := range frame.Blocks {
		for _, phi := range block.Phis {
			require.False(t, phi.TrivialValue().Valid(),
				"trivial phi v%d survived elimination", phi.Value().Number)
		}
	}
}

func TestEveryValueDefinedOnce(t *testing.T) {
	frame := mustBuild(t, "var a = true; var s = 0; while { a } { s = s + 1; a = false }; s")
	seen := make(map[ValueID]bool)
	for _, block := range frame.Blocks {
		for _, phi := range block.Phis {
			require.False(t, seen[phi.Value().Number])
			seen[phi.Value().Number] = true
		}
		for _, h := range block.Statements {
			if v := h.Value(); v.Valid() {
				require.False(t, seen[v.Number], "v%d defined twice", v.Number)
				seen[v.Number] = true
			}
		}
	}
}

func TestPhiInputCountsMatchPredecessors(t *testing.T) {
	frame := mustBuild(t, "var a = true; var x = 1; if (a) { x = 2 } { x = 3 }; x")
	for _, block := range frame.Blocks {
		for _, phi := range block.Phis {
			require.Len(t, phi.Inputs, len(block.Predecessors))
		}
	}
}

func TestUndefinedNameIsSemanticError(t *testing.T) {
	frame, reporter := buildSource(t, "zz + 1")
	require.Nil(t, frame)
	require.False(t, reporter.OK())
	require.Equal(t, report.KindSemantic, reporter.Errors()[0].Kind)
}

func TestRedefinitionIsSemanticError(t *testing.T) {
	frame, reporter := buildSource(t, "var x = 1; var x = 2; x")
	require.Nil(t, frame)
	require.Equal(t, report.KindSemantic, reporter.Errors()[0].Kind)
}

func TestArgumentsLoadInDeclarationOrder(t *testing.T) {
	frame := mustBuild(t, "{ arg a, b; a + b }.value")
	// The outer interpreted block wraps the literal; find no load
	// arguments there.
	for _, h := range frame.Blocks[0].Statements {
		require.NotEqual(t, OpcodeLoadArgument, h.Opcode())
	}

	// Method-style compilation of a block with arguments loads each.
	reporter := report.NewReporter()
	source := "arg a, b; a + b"
	reporter.SetSource(source)
	lexer := lex.NewLexer(source, reporter)
	require.True(t, lexer.Lex())
	parser := parse.NewParser(lexer, reporter)
	root := parser.Parse()
	require.True(t, reporter.OK(), "parse errors: %v", reporter.Errors())
	builder := NewBuilder(lexer, reporter)
	argFrame := builder.Build(root.(*parse.BlockNode))
	require.NotNil(t, argFrame)
	require.Len(t, argFrame.ArgumentOrder, 2)
	loads := 0
	for _, h := range argFrame.Blocks[0].Statements {
		if la, ok := h.(*LoadArgument); ok {
			require.Equal(t, loads, la.Index)
			loads++
		}
	}
	require.Equal(t, 2, loads)
}

func TestGlobalReadAndWriteUseClassVariableTable(t *testing.T) {
	frame := mustBuild(t, "~depth = 3; ~depth")
	var stores, loads int
	for _, h := range frame.Blocks[0].Statements {
		switch h.Opcode() {
		case OpcodeStoreClassVariable:
			stores++
		case OpcodeLoadClassVariable:
			loads++
		}
	}
	require.Equal(t, 1, stores)
	require.Equal(t, 1, loads)
}
