package parse

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hadron-sclang/hadron/internal/lex"
	"github.com/hadron-sclang/hadron/internal/report"
	"github.com/hadron-sclang/hadron/internal/slot"
)

func parseSource(t *testing.T, source string) (Node, *Parser, *report.Reporter) {
	t.Helper()
	reporter := report.NewReporter()
	reporter.SetSource(source)
	lexer := lex.NewLexer(source, reporter)
	require.True(t, lexer.Lex(), "lex errors: %v", reporter.Errors())
	parser := NewParser(lexer, reporter)
	root := parser.Parse()
	return root, parser, reporter
}

func parseBlock(t *testing.T, source string) *BlockNode {
	t.Helper()
	root, _, reporter := parseSource(t, source)
	require.True(t, reporter.OK(), "parse errors: %v", reporter.Errors())
	block, ok := root.(*BlockNode)
	require.True(t, ok, "root is %T", root)
	return block
}

func TestEmptyInputParsesToEmptyNode(t *testing.T) {
	root, _, reporter := parseSource(t, "")
	require.True(t, reporter.OK())
	_, ok := root.(*EmptyNode)
	require.True(t, ok)
}

func TestLiteralExpression(t *testing.T) {
	block := parseBlock(t, "nil")
	lit, ok := block.Body.Expr.(*LiteralNode)
	require.True(t, ok)
	require.Equal(t, slot.TypeNil, lit.Type)
	require.Nil(t, lit.Next())
}

func TestVarDeclarationsAndBody(t *testing.T) {
	block := parseBlock(t, "var x = 3, y; x + x")
	require.NotNil(t, block.Variables)
	def := block.Variables.Definitions
	require.NotNil(t, def.InitialValue)
	second, ok := def.Next().(*VarDefNode)
	require.True(t, ok)
	require.Nil(t, second.InitialValue)

	binop, ok := block.Body.Expr.(*BinopCallNode)
	require.True(t, ok)
	_, ok = binop.Left.(*NameNode)
	require.True(t, ok)
}

func TestBinopsAreLeftAssociative(t *testing.T) {
	block := parseBlock(t, "1 + 2 * 3")
	outer, ok := block.Body.Expr.(*BinopCallNode)
	require.True(t, ok)
	inner, ok := outer.Left.(*BinopCallNode)
	require.True(t, ok)
	_, ok = inner.Left.(*LiteralNode)
	require.True(t, ok)
	_, ok = outer.Right.(*LiteralNode)
	require.True(t, ok)
}

func TestExpressionSequenceThreadsSiblings(t *testing.T) {
	block := parseBlock(t, "1; 2; 3")
	first := block.Body.Expr
	second := first.Next()
	third := second.Next()
	require.NotNil(t, third)
	require.Nil(t, third.Next())
}

func TestDottedCallWithArguments(t *testing.T) {
	block := parseBlock(t, "x.play(1, 2, freq: 440)")
	call, ok := block.Body.Expr.(*CallNode)
	require.True(t, ok)
	_, ok = call.Target.(*NameNode)
	require.True(t, ok)
	require.NotNil(t, call.Arguments)
	require.NotNil(t, call.Arguments.Next())
	require.NotNil(t, call.KeywordArguments)
	require.Nil(t, call.Arguments.Next().Next())
}

func TestImplicitReceiverCall(t *testing.T) {
	block := parseBlock(t, "neg(5)")
	call, ok := block.Body.Expr.(*CallNode)
	require.True(t, ok)
	// foo(a) sends foo to a: the first argument becomes the receiver.
	_, ok = call.Target.(*LiteralNode)
	require.True(t, ok)
	require.Nil(t, call.Arguments)
}

func TestNewExpressionSugar(t *testing.T) {
	block := parseBlock(t, "Synth(1, 2)")
	newNode, ok := block.Body.Expr.(*NewNode)
	require.True(t, ok)
	require.NotNil(t, newNode.Arguments)

	block = parseBlock(t, "Routine { 5 }")
	newNode, ok = block.Body.Expr.(*NewNode)
	require.True(t, ok)
	_, ok = newNode.Arguments.(*BlockNode)
	require.True(t, ok)
}

func TestAssignForms(t *testing.T) {
	block := parseBlock(t, "x = 5")
	assign, ok := block.Body.Expr.(*AssignNode)
	require.True(t, ok)
	require.False(t, assign.Name.IsGlobal)

	block = parseBlock(t, "~depth = 1")
	assign, ok = block.Body.Expr.(*AssignNode)
	require.True(t, ok)
	require.True(t, assign.Name.IsGlobal)
}

func TestSetterAndArrayWrite(t *testing.T) {
	block := parseBlock(t, "point.x = 4")
	setter, ok := block.Body.Expr.(*SetterNode)
	require.True(t, ok)
	_, ok = setter.Target.(*NameNode)
	require.True(t, ok)

	block = parseBlock(t, "list[0] = 9")
	write, ok := block.Body.Expr.(*ArrayWriteNode)
	require.True(t, ok)
	require.NotNil(t, write.Indices)
	require.NotNil(t, write.Value)
}

func TestInvalidAssignmentTargetIsSemanticError(t *testing.T) {
	_, _, reporter := parseSource(t, "1 = 2")
	require.False(t, reporter.OK())
	require.Equal(t, report.KindSemantic, reporter.Errors()[0].Kind)
}

func TestArrayReadAndCopySeries(t *testing.T) {
	block := parseBlock(t, "list[1]")
	_, ok := block.Body.Expr.(*ArrayReadNode)
	require.True(t, ok)

	block = parseBlock(t, "list[1..4]")
	series, ok := block.Body.Expr.(*CopySeriesNode)
	require.True(t, ok)
	require.NotNil(t, series.First)
	require.NotNil(t, series.Last)
}

func TestParenForms(t *testing.T) {
	block := parseBlock(t, "(1..10)")
	series, ok := block.Body.Expr.(*SeriesNode)
	require.True(t, ok)
	require.Nil(t, series.Step)

	block = parseBlock(t, "(1, 3..9)")
	series, ok = block.Body.Expr.(*SeriesNode)
	require.True(t, ok)
	require.NotNil(t, series.Step)

	block = parseBlock(t, "(freq: 440, amp: 1)")
	event, ok := block.Body.Expr.(*EventNode)
	require.True(t, ok)
	require.NotNil(t, event.Elements.Next())

	block = parseBlock(t, "(1; 2)")
	seq, ok := block.Body.Expr.(*ExprSeqNode)
	require.True(t, ok)
	require.NotNil(t, seq.Expr.Next())
}

func TestDynListLiteral(t *testing.T) {
	block := parseBlock(t, "[1, 2, 3]")
	list, ok := block.Body.Expr.(*DynListNode)
	require.True(t, ok)
	count := 0
	for el := list.Elements; el != nil; el = el.Next() {
		count++
	}
	require.Equal(t, 3, count)
}

func TestIfStatementForm(t *testing.T) {
	block := parseBlock(t, "if (true) { 1 } { 2 }")
	ifNode, ok := block.Body.Expr.(*IfNode)
	require.True(t, ok)
	require.NotNil(t, ifNode.TrueBlock)
	require.NotNil(t, ifNode.FalseBlock)

	block = parseBlock(t, "if (true) { 1 }")
	ifNode, ok = block.Body.Expr.(*IfNode)
	require.True(t, ok)
	require.Nil(t, ifNode.FalseBlock)
}

func TestWhileStatementForm(t *testing.T) {
	block := parseBlock(t, "while { true } { 1 }")
	whileNode, ok := block.Body.Expr.(*WhileNode)
	require.True(t, ok)
	require.NotNil(t, whileNode.Condition)
	require.NotNil(t, whileNode.Body)
}

func TestReturnExpression(t *testing.T) {
	block := parseBlock(t, "^5")
	ret, ok := block.Body.Expr.(*ReturnNode)
	require.True(t, ok)
	_, ok = ret.Value.(*LiteralNode)
	require.True(t, ok)
}

func TestBlockLiteralWithArguments(t *testing.T) {
	block := parseBlock(t, "{ arg a, b; a + b }")
	inner, ok := block.Body.Expr.(*BlockNode)
	require.True(t, ok)
	require.NotNil(t, inner.Arguments)
	require.Equal(t, -1, inner.Arguments.VarArgsNameIndex)

	block = parseBlock(t, "{ |a, b ...rest| a }")
	inner, ok = block.Body.Expr.(*BlockNode)
	require.True(t, ok)
	require.NotNil(t, inner.Arguments)
	require.GreaterOrEqual(t, inner.Arguments.VarArgsNameIndex, 0)
}

func TestParseErrorReportsExpectation(t *testing.T) {
	_, _, reporter := parseSource(t, "var = 3")
	require.False(t, reporter.OK())
	require.Equal(t, report.KindParse, reporter.Errors()[0].Kind)
}

func TestParseClassDefinition(t *testing.T) {
	source := `Point : Object {
	var <>x, <>y;
	classvar count;

	dist { arg other; ^other }
	*new { ^super }
}
+Point {
	flipped { ^this }
}`
	reporter := report.NewReporter()
	reporter.SetSource(source)
	lexer := lex.NewLexer(source, reporter)
	require.True(t, lexer.Lex(), "lex errors: %v", reporter.Errors())
	parser := NewParser(lexer, reporter)
	root := parser.ParseClass()
	require.True(t, reporter.OK(), "parse errors: %v", reporter.Errors())

	class, ok := root.(*ClassNode)
	require.True(t, ok)
	require.GreaterOrEqual(t, class.SuperclassNameTokenIndex, 0)
	def := class.Variables.Definitions
	require.True(t, def.HasReadAccessor)
	require.True(t, def.HasWriteAccessor)

	method := class.Methods
	require.False(t, method.IsClassMethod)
	next, ok := method.Next().(*MethodNode)
	require.True(t, ok)
	require.True(t, next.IsClassMethod)

	ext, ok := root.Next().(*ClassExtNode)
	require.True(t, ok)
	require.NotNil(t, ext.Methods)
}
