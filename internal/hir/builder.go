package hir

import (
	"github.com/hadron-sclang/hadron/internal/hash"
	"github.com/hadron-sclang/hadron/internal/lex"
	"github.com/hadron-sclang/hadron/internal/parse"
	"github.com/hadron-sclang/hadron/internal/report"
	"github.com/hadron-sclang/hadron/internal/slot"
)

// Builder lowers a block parse tree into a Frame: a CFG of HIR blocks in
// SSA form with phis inserted at control-flow joins. Construction follows
// Braun et al., "Simple and Efficient Construction of Static Single
// Assignment Form": per-block revision maps, recursive lookup through
// predecessors, and sealing for blocks whose predecessor set is not yet
// complete (loop headers).
type Builder struct {
	lexer    *lex.Lexer
	reporter *report.Reporter

	frame     *Frame
	current   *Block
	nextValue ValueID
}

func NewBuilder(lexer *lex.Lexer, reporter *report.Reporter) *Builder {
	return &Builder{lexer: lexer, reporter: reporter}
}

// Build lowers blockNode. Returns nil if any semantic error was reported.
func (b *Builder) Build(blockNode *parse.BlockNode) *Frame {
	b.frame = &Frame{}
	b.current = b.newBlock()
	b.current.sealed = true

	b.loadArguments(blockNode)

	b.buildVarLists(blockNode.Variables)
	result := b.buildBody(blockNode.Body)
	if !result.Valid() {
		result = b.insert(NewConstant(slot.MakeNil()))
	}
	typeValue := b.insert(NewResolveType(result))
	b.insert(NewStoreReturn(result, typeValue))

	b.frame.numberOfValues = b.nextValue
	b.eliminateTrivialPhis()

	if !b.reporter.OK() {
		return nil
	}
	return b.frame
}

func (b *Builder) newBlock() *Block {
	blk := &Block{
		Number:    len(b.frame.Blocks),
		revisions: make(map[hash.Symbol]Value),
		unknown:   make(map[hash.Symbol]*Phi),
	}
	b.frame.Blocks = append(b.frame.Blocks, blk)
	return blk
}

// insert appends h to the current block, assigning its result value.
func (b *Builder) insert(h HIR) Value {
	v := h.ProposeValue(b.nextValue)
	if v.Valid() {
		b.nextValue++
	}
	b.current.Statements = append(b.current.Statements, h)
	return v
}

func (b *Builder) tokenHash(index int) hash.Symbol {
	return b.lexer.Tokens()[index].Hash
}

func (b *Builder) tokenOffset(index int) int {
	return b.lexer.Tokens()[index].Start
}

func (b *Builder) loadArguments(blockNode *parse.BlockNode) {
	if blockNode.Arguments == nil {
		return
	}
	index := 0
	if blockNode.Arguments.VarList != nil {
		for def := blockNode.Arguments.VarList.Definitions; def != nil; {
			name := b.tokenHash(def.TokenIndex())
			b.frame.ArgumentOrder = append(b.frame.ArgumentOrder, name)
			v := b.insert(NewLoadArgument(index, false))
			b.current.revisions[name] = v
			index++
			next, _ := def.Next().(*parse.VarDefNode)
			def = next
		}
	}
	if blockNode.Arguments.VarArgsNameIndex >= 0 {
		name := b.tokenHash(blockNode.Arguments.VarArgsNameIndex)
		b.frame.ArgumentOrder = append(b.frame.ArgumentOrder, name)
		v := b.insert(NewLoadArgument(index, true))
		b.current.revisions[name] = v
	}
}

func (b *Builder) buildVarLists(varList *parse.VarListNode) {
	for vl := varList; vl != nil; {
		for def := vl.Definitions; def != nil; {
			name := b.tokenHash(def.TokenIndex())
			if _, defined := b.current.revisions[name]; defined {
				b.reporter.AddSemanticError(b.tokenOffset(def.TokenIndex()),
					"variable %q redefined in the same scope", b.lexer.TokenText(def.TokenIndex()))
			}
			var v Value
			if def.InitialValue != nil {
				v = b.buildExpr(def.InitialValue)
			} else {
				v = b.insert(NewConstant(slot.MakeNil()))
			}
			b.current.revisions[name] = v
			next, _ := def.Next().(*parse.VarDefNode)
			def = next
		}
		next, _ := vl.Next().(*parse.VarListNode)
		vl = next
	}
}

// buildBody builds an expression sequence, returning the final value.
func (b *Builder) buildBody(seq *parse.ExprSeqNode) Value {
	result := InvalidValue
	if seq == nil {
		return result
	}
	for expr := seq.Expr; expr != nil; expr = expr.Next() {
		result = b.buildExpr(expr)
	}
	return result
}

func (b *Builder) buildExpr(node parse.Node) Value {
	switch n := node.(type) {
	case *parse.LiteralNode:
		return b.insert(NewTypedConstant(n.Value, n.Type))

	case *parse.NameNode:
		return b.buildName(n)

	case *parse.AssignNode:
		value := b.buildExpr(n.Value)
		if n.Name.IsGlobal {
			typeValue := b.insert(NewResolveType(value))
			b.insert(NewStoreClassVariable(b.frame.globalIndex(b.tokenHash(n.Name.TokenIndex())), value, typeValue))
			return value
		}
		// A write maps the name to the RHS value; the name itself gets no
		// new SSA id.
		b.current.revisions[b.tokenHash(n.Name.TokenIndex())] = value
		return value

	case *parse.BinopCallNode:
		return b.buildBinop(n)

	case *parse.CallNode:
		return b.buildCall(n)

	case *parse.NewNode:
		receiver := b.insert(NewTypedConstant(
			slot.MakeSymbol(b.tokenHash(n.TokenIndex())), slot.TypeClass))
		return b.buildDispatch(hash.Compute("new"), receiver, collectSiblings(n.Arguments), n.KeywordArguments)

	case *parse.IfNode:
		return b.buildIf(n)

	case *parse.WhileNode:
		return b.buildWhile(n)

	case *parse.ReturnNode:
		value := b.buildExpr(n.Value)
		typeValue := b.insert(NewResolveType(value))
		b.insert(NewStoreReturn(value, typeValue))
		return value

	case *parse.ExprSeqNode:
		return b.buildBody(n)

	case *parse.BlockNode:
		// A nested block literal becomes a block object; its body is
		// compiled as its own frame by the class-library pipeline.
		return b.insert(NewTypedConstant(
			slot.MakePointer(uint64(n.TokenIndex())), slot.TypeBlock))

	case *parse.DynListNode:
		receiver := b.insert(NewTypedConstant(slot.MakeSymbol(hash.Compute("Array")), slot.TypeClass))
		return b.buildDispatch(hash.Compute("with"), receiver, collectSiblings(n.Elements), nil)

	case *parse.EventNode:
		receiver := b.insert(NewTypedConstant(slot.MakeSymbol(hash.Compute("Event")), slot.TypeClass))
		return b.buildDispatch(hash.Compute("new"), receiver, nil, n.Elements)

	case *parse.SeriesNode:
		receiver := b.buildExpr(n.Start)
		args := []parse.Node{}
		if n.Step != nil {
			args = append(args, n.Step)
		}
		if n.Last != nil {
			args = append(args, n.Last)
		}
		return b.buildDispatch(hash.Compute("series"), receiver, args, nil)

	case *parse.CopySeriesNode:
		receiver := b.buildExpr(n.Target)
		args := []parse.Node{}
		if n.First != nil {
			args = append(args, n.First)
		}
		if n.Last != nil {
			args = append(args, n.Last)
		}
		return b.buildDispatch(hash.Compute("copySeries"), receiver, args, nil)

	case *parse.ArrayReadNode:
		receiver := b.buildExpr(n.Target)
		return b.buildDispatch(hash.Compute("at"), receiver, collectSiblings(n.Indices), nil)

	case *parse.ArrayWriteNode:
		receiver := b.buildExpr(n.Target)
		args := collectSiblings(n.Indices)
		args = append(args, n.Value)
		return b.buildDispatch(hash.Compute("put"), receiver, args, nil)

	case *parse.SetterNode:
		receiver := b.buildExpr(n.Target)
		return b.buildDispatch(b.setterSelector(n.TokenIndex()), receiver, []parse.Node{n.Value}, nil)

	case *parse.CurryArgumentNode:
		// Partial application is resolved by the dispatch runtime; the
		// placeholder lowers to nil here.
		return b.insert(NewConstant(slot.MakeNil()))

	case *parse.EmptyNode:
		return b.insert(NewConstant(slot.MakeNil()))

	default:
		b.reporter.AddSemanticError(b.tokenOffset(node.TokenIndex()),
			"expression form not valid here")
		return b.insert(NewConstant(slot.MakeNil()))
	}
}

// setterSelector appends the underscore convention for setter dispatch.
func (b *Builder) setterSelector(tokenIndex int) hash.Symbol {
	return hash.Compute(b.lexer.TokenText(tokenIndex) + "_")
}

func (b *Builder) buildName(n *parse.NameNode) Value {
	name := b.tokenHash(n.TokenIndex())
	if n.IsGlobal {
		return b.insert(NewLoadClassVariable(b.frame.globalIndex(name)))
	}
	tok := b.lexer.Tokens()[n.TokenIndex()]
	if tok.Kind == lex.KindClassName {
		return b.insert(NewTypedConstant(slot.MakeSymbol(name), slot.TypeClass))
	}
	v, ok := b.findValue(name, b.current)
	if !ok {
		b.reporter.AddSemanticError(tok.Start, "undefined name %q", b.lexer.TokenText(n.TokenIndex()))
		return b.insert(NewConstant(slot.MakeNil()))
	}
	return v
}

// findValue recursively locates the latest definition of name visible at
// blk, inserting phis at joins. The algorithm is section 2 of the Braun
// et al. paper, matching the sealed/unknown bookkeeping on Block.
func (b *Builder) findValue(name hash.Symbol, blk *Block) (Value, bool) {
	if v, ok := blk.revisions[name]; ok {
		return v, true
	}
	if !blk.sealed {
		// The block may gain predecessors later; leave a placeholder phi
		// to be resolved by seal.
		phi := NewPhi()
		phi.ProposeValue(b.nextValue)
		b.nextValue++
		phi.value.TypeFlags = slot.TypeAny
		blk.unknown[name] = phi
		blk.revisions[name] = phi.value
		return phi.value, true
	}
	if len(blk.Predecessors) == 1 {
		v, ok := b.findValue(name, b.frame.block(blk.Predecessors[0]))
		if ok {
			blk.revisions[name] = v
		}
		return v, ok
	}
	if len(blk.Predecessors) == 0 {
		return InvalidValue, false
	}

	// Multiple predecessors: create the phi before recursing so cyclic
	// lookups terminate.
	phi := NewPhi()
	v := phi.ProposeValue(b.nextValue)
	b.nextValue++
	blk.Phis = append(blk.Phis, phi)
	blk.revisions[name] = v
	for _, pred := range blk.Predecessors {
		pv, ok := b.findValue(name, b.frame.block(pred))
		if !ok {
			return InvalidValue, false
		}
		phi.AddInput(pv)
	}
	return phi.value, true
}

// seal declares blk's predecessor set complete, resolving placeholder phis.
func (b *Builder) seal(blk *Block) {
	blk.sealed = true
	for name, phi := range blk.unknown {
		phi.ProposeValue(phi.value.Number)
		blk.Phis = append(blk.Phis, phi)
		for _, pred := range blk.Predecessors {
			pv, ok := b.findValue(name, b.frame.block(pred))
			if !ok {
				b.reporter.AddSemanticError(0, "undefined name in loop")
				continue
			}
			phi.AddInput(pv)
		}
		delete(blk.unknown, name)
	}
}

func (b *Builder) buildBinop(n *parse.BinopCallNode) Value {
	left := b.buildExpr(n.Left)
	right := b.buildExpr(n.Right)

	if op, ok := binaryOpForToken(b.lexer.TokenText(n.TokenIndex())); ok &&
		left.TypeFlags.IsNumeric() && right.TypeFlags.IsNumeric() {
		return b.insert(NewBinaryOp(op, left, right))
	}
	return b.buildDispatch(b.tokenHash(n.TokenIndex()), left, []parse.Node{n.Right}, nil)
}

func binaryOpForToken(text string) (BinaryOpKind, bool) {
	switch text {
	case "+":
		return BinaryAdd, true
	case "-":
		return BinarySubtract, true
	case "*":
		return BinaryMultiply, true
	case "/":
		return BinaryDivide, true
	case "<":
		return BinaryLessThan, true
	case ">":
		return BinaryGreaterThan, true
	case "<=":
		return BinaryLessThanOrEqual, true
	case ">=":
		return BinaryGreaterThanOrEqual, true
	case "==":
		return BinaryEqual, true
	case "!=":
		return BinaryNotEqual, true
	}
	return 0, false
}

func (b *Builder) buildCall(n *parse.CallNode) Value {
	if n.Target == nil {
		b.reporter.AddSemanticError(b.tokenOffset(n.TokenIndex()),
			"message %q sent with no receiver", b.lexer.TokenText(n.TokenIndex()))
		return b.insert(NewConstant(slot.MakeNil()))
	}
	receiver := b.buildExpr(n.Target)
	return b.buildDispatch(b.tokenHash(n.TokenIndex()), receiver, collectSiblings(n.Arguments), n.KeywordArguments)
}

// buildDispatch emits the six-op message send sequence and returns the
// dispatch result value.
func (b *Builder) buildDispatch(selector hash.Symbol, receiver Value, args []parse.Node, keywords *parse.KeyValueNode) Value {
	type pair struct{ value, typeValue Value }

	argPairs := make([]pair, 0, len(args)+1)
	receiverType := b.insert(NewResolveType(receiver))
	argPairs = append(argPairs, pair{receiver, receiverType})
	for _, arg := range args {
		v := b.buildExpr(arg)
		argPairs = append(argPairs, pair{v, b.insert(NewResolveType(v))})
	}

	type keyPair struct{ key, keyType, value, valueType Value }
	var keyPairs []keyPair
	for kv := keywords; kv != nil; {
		key := b.buildExpr(kv.Key)
		keyType := b.insert(NewResolveType(key))
		value := b.buildExpr(kv.Value)
		valueType := b.insert(NewResolveType(value))
		keyPairs = append(keyPairs, keyPair{key, keyType, value, valueType})
		next, _ := kv.Next().(*parse.KeyValueNode)
		kv = next
	}

	selectorValue := b.insert(NewTypedConstant(slot.MakeSymbol(selector), slot.TypeSymbol))
	selectorType := b.insert(NewResolveType(selectorValue))
	b.insert(NewDispatchSetupStack(selectorValue, selectorType, len(argPairs), len(keyPairs)))
	for i, p := range argPairs {
		b.insert(NewDispatchStoreArg(i, p.value, p.typeValue))
	}
	for i, kp := range keyPairs {
		b.insert(NewDispatchStoreKeyArg(i, kp.key, kp.keyType, kp.value, kp.valueType))
	}
	b.insert(NewDispatchCall())
	result := b.insert(NewDispatchLoadReturn())
	b.insert(NewDispatchLoadReturnType())
	b.insert(NewDispatchCleanup())
	return result
}

// buildIf lowers the conditional. Both arms branch to a shared
// continuation; an absent else arm still gets its own block so no edge is
// critical at the join.
func (b *Builder) buildIf(n *parse.IfNode) Value {
	cond := b.buildExpr(n.Condition)

	condBlock := b.current
	trueBlock := b.newBlock()
	falseBlock := b.newBlock()
	wire(condBlock, trueBlock)
	wire(condBlock, falseBlock)
	trueBlock.sealed = true
	falseBlock.sealed = true

	condBlock.Statements = append(condBlock.Statements,
		NewBranchIfZero(cond, falseBlock.Number), NewBranch(trueBlock.Number))

	b.current = trueBlock
	trueValue := b.buildInlineBlock(n.TrueBlock)
	trueTail := b.current

	b.current = falseBlock
	var falseValue Value
	if n.FalseBlock != nil {
		falseValue = b.buildInlineBlock(n.FalseBlock)
	} else {
		falseValue = b.insert(NewConstant(slot.MakeNil()))
	}
	falseTail := b.current

	cont := b.newBlock()
	wire(trueTail, cont)
	wire(falseTail, cont)
	trueTail.Statements = append(trueTail.Statements, NewBranch(cont.Number))
	falseTail.Statements = append(falseTail.Statements, NewBranch(cont.Number))
	cont.sealed = true
	b.current = cont

	phi := NewPhi()
	phi.ProposeValue(b.nextValue)
	b.nextValue++
	for _, pred := range cont.Predecessors {
		if pred == trueTail.Number {
			phi.AddInput(trueValue)
		} else {
			phi.AddInput(falseValue)
		}
	}
	cont.Phis = append(cont.Phis, phi)
	return phi.value
}

// buildWhile lowers the loop. The header is left unsealed until the back
// edge from the body tail is wired, per the incomplete-CFG handling.
func (b *Builder) buildWhile(n *parse.WhileNode) Value {
	entry := b.current
	header := b.newBlock()
	wire(entry, header)
	entry.Statements = append(entry.Statements, NewBranch(header.Number))

	b.current = header
	cond := b.buildInlineBlock(n.Condition)
	condTail := b.current

	body := b.newBlock()
	exit := b.newBlock()
	wire(condTail, body)
	wire(condTail, exit)
	condTail.Statements = append(condTail.Statements,
		NewBranchIfZero(cond, exit.Number), NewBranch(body.Number))
	body.sealed = true

	b.current = body
	if n.Body != nil {
		b.buildInlineBlock(n.Body)
	}
	bodyTail := b.current
	wire(bodyTail, header)
	bodyTail.Statements = append(bodyTail.Statements, NewBranch(header.Number))
	b.seal(header)

	exit.sealed = true
	b.current = exit
	return b.insert(NewConstant(slot.MakeNil()))
}

// buildInlineBlock flattens a block literal used by if/while into the
// current frame: its variables and body build directly into the CFG, no
// closure is created.
func (b *Builder) buildInlineBlock(blockNode *parse.BlockNode) Value {
	if blockNode == nil {
		return b.insert(NewConstant(slot.MakeNil()))
	}
	b.buildVarLists(blockNode.Variables)
	v := b.buildBody(blockNode.Body)
	if !v.Valid() {
		v = b.insert(NewConstant(slot.MakeNil()))
	}
	return v
}

func collectSiblings(node parse.Node) []parse.Node {
	var out []parse.Node
	for n := node; n != nil; n = n.Next() {
		out = append(out, n)
	}
	return out
}
