package parse

import (
	"github.com/hadron-sclang/hadron/internal/lex"
	"github.com/hadron-sclang/hadron/internal/report"
	"github.com/hadron-sclang/hadron/internal/slot"
)

// Parser is a recursive-descent parser with one token of lookahead over a
// successfully lexed token stream.
type Parser struct {
	lexer    *lex.Lexer
	tokens   []lex.Token
	reporter *report.Reporter
	index    int
	failed   bool
}

func NewParser(lexer *lex.Lexer, reporter *report.Reporter) *Parser {
	return &Parser{lexer: lexer, tokens: lexer.Tokens(), reporter: reporter}
}

// Lexer returns the lexer whose tokens this parser consumes.
func (p *Parser) Lexer() *lex.Lexer { return p.lexer }

// Parse parses interpreted input. The root is a BlockNode wrapping the
// declarations and expression sequence, or an EmptyNode for empty input.
func (p *Parser) Parse() Node {
	if p.atEnd() {
		return &EmptyNode{}
	}
	block, _ := p.parseBlockInterior()
	if !p.atEnd() && !p.failed {
		p.errorExpected("end of input")
	}
	if p.failed {
		return nil
	}
	return block
}

// ParseClass parses a class-library file: a chain of class definitions and
// class extensions.
func (p *Parser) ParseClass() Node {
	if p.atEnd() {
		return &EmptyNode{}
	}
	var head, tail Node
	for !p.atEnd() && !p.failed {
		var n Node
		switch p.kind() {
		case lex.KindClassName:
			n = p.parseClassDef()
		case lex.KindPlus:
			n = p.parseClassExt()
		default:
			p.errorExpected("class definition or class extension")
			return nil
		}
		if n == nil {
			return nil
		}
		if head == nil {
			head, tail = n, n
		} else {
			tail.SetNext(n)
			tail = n
		}
	}
	if p.failed {
		return nil
	}
	return head
}

// --- token plumbing ---

func (p *Parser) atEnd() bool { return p.index >= len(p.tokens) }

func (p *Parser) kind() lex.Kind {
	if p.atEnd() {
		return lex.KindEmpty
	}
	return p.tokens[p.index].Kind
}

func (p *Parser) peekKind(ahead int) lex.Kind {
	if p.index+ahead >= len(p.tokens) {
		return lex.KindEmpty
	}
	return p.tokens[p.index+ahead].Kind
}

func (p *Parser) cur() lex.Token { return p.tokens[p.index] }

func (p *Parser) text() string { return p.lexer.TokenText(p.index) }

func (p *Parser) advance() int {
	i := p.index
	p.index++
	return i
}

func (p *Parser) accept(k lex.Kind) bool {
	if p.kind() == k {
		p.index++
		return true
	}
	return false
}

func (p *Parser) expect(k lex.Kind) int {
	if p.kind() != k {
		p.errorExpected(k.String())
		return -1
	}
	return p.advance()
}

func (p *Parser) errorExpected(expected string) {
	if p.failed {
		return
	}
	p.failed = true
	offset := len(p.lexer.Source())
	found := "end of input"
	if !p.atEnd() {
		offset = p.cur().Start
		found = p.kind().String()
	}
	p.reporter.AddParseError(offset, "expected %s, found %s", expected, found)
}

// --- class-library productions ---

func (p *Parser) parseClassDef() *ClassNode {
	class := &ClassNode{SuperclassNameTokenIndex: -1, OptionalNameTokenIndex: -1}
	class.tokenIndex = p.expect(lex.KindClassName)
	if p.accept(lex.KindOpenSquare) {
		class.OptionalNameTokenIndex = p.expect(lex.KindIdentifier)
		p.expect(lex.KindCloseSquare)
	}
	if p.accept(lex.KindColon) {
		class.SuperclassNameTokenIndex = p.expect(lex.KindClassName)
	}
	p.expect(lex.KindOpenCurly)
	class.Variables = p.parseVarLists()
	class.Methods = p.parseMethods()
	p.expect(lex.KindCloseCurly)
	if p.failed {
		return nil
	}
	return class
}

func (p *Parser) parseClassExt() *ClassExtNode {
	ext := &ClassExtNode{}
	ext.tokenIndex = p.expect(lex.KindPlus)
	p.expect(lex.KindClassName)
	p.expect(lex.KindOpenCurly)
	ext.Methods = p.parseMethods()
	p.expect(lex.KindCloseCurly)
	if p.failed {
		return nil
	}
	return ext
}

func (p *Parser) parseMethods() *MethodNode {
	var head, tail *MethodNode
	for !p.atEnd() && !p.failed && p.kind() != lex.KindCloseCurly {
		m := &MethodNode{PrimitiveTokenIndex: -1}
		if p.accept(lex.KindAsterisk) {
			m.IsClassMethod = true
		}
		if p.kind() != lex.KindIdentifier && !p.cur().CouldBeBinop {
			p.errorExpected("method name")
			return head
		}
		m.tokenIndex = p.advance()
		p.expect(lex.KindOpenCurly)
		m.Body, m.PrimitiveTokenIndex = p.parseBlockInterior()
		p.expect(lex.KindCloseCurly)
		if head == nil {
			head, tail = m, m
		} else {
			tail.SetNext(m)
			tail = m
		}
	}
	return head
}

// --- declarations ---

// parseVarLists parses consecutive var/classvar/const declaration
// statements, threading them into one sibling chain.
func (p *Parser) parseVarLists() *VarListNode {
	var head, tail *VarListNode
	for !p.failed {
		k := p.kind()
		if k != lex.KindVar && k != lex.KindClassVar && k != lex.KindConst {
			break
		}
		vl := &VarListNode{}
		vl.tokenIndex = p.advance()
		vl.Definitions = p.parseVarDefs(true)
		p.expect(lex.KindSemicolon)
		if head == nil {
			head, tail = vl, vl
		} else {
			tail.SetNext(vl)
			tail = vl
		}
	}
	return head
}

// parseVarDefs parses comma-separated variable definitions. Accessor
// markers <, >, <> precede the name in class variable declarations.
func (p *Parser) parseVarDefs(allowAccessors bool) *VarDefNode {
	var head, tail *VarDefNode
	for !p.failed {
		def := &VarDefNode{}
		if allowAccessors {
			switch p.kind() {
			case lex.KindLessThan:
				def.HasReadAccessor = true
				p.advance()
			case lex.KindGreaterThan:
				def.HasWriteAccessor = true
				p.advance()
			case lex.KindReadWriteVar:
				def.HasReadAccessor = true
				def.HasWriteAccessor = true
				p.advance()
			}
		}
		def.tokenIndex = p.expect(lex.KindIdentifier)
		if p.accept(lex.KindAssign) {
			def.InitialValue = p.parseExpr()
		}
		if head == nil {
			head, tail = def, def
		} else {
			tail.SetNext(def)
			tail = def
		}
		if !p.accept(lex.KindComma) {
			break
		}
	}
	return head
}

// parseBlockInterior parses argument declarations, variable declarations,
// an optional primitive name, and the body sequence. The caller consumes
// the surrounding braces. The returned token index locates the primitive
// name, or -1.
func (p *Parser) parseBlockInterior() (*BlockNode, int) {
	block := &BlockNode{}
	block.tokenIndex = p.index
	primitiveIndex := -1

	switch p.kind() {
	case lex.KindArg:
		args := &ArgListNode{VarArgsNameIndex: -1}
		args.tokenIndex = p.advance()
		args.VarList = &VarListNode{}
		args.VarList.tokenIndex = args.tokenIndex
		args.VarList.Definitions = p.parseVarDefs(false)
		if p.accept(lex.KindEllipses) {
			args.VarArgsNameIndex = p.expect(lex.KindIdentifier)
		}
		p.expect(lex.KindSemicolon)
		block.Arguments = args
	case lex.KindPipe:
		args := &ArgListNode{VarArgsNameIndex: -1}
		args.tokenIndex = p.advance()
		args.VarList = &VarListNode{}
		args.VarList.tokenIndex = args.tokenIndex
		args.VarList.Definitions = p.parseVarDefs(false)
		if p.accept(lex.KindEllipses) {
			args.VarArgsNameIndex = p.expect(lex.KindIdentifier)
		}
		p.expect(lex.KindPipe)
		block.Arguments = args
	}

	block.Variables = p.parseVarLists()

	if p.kind() == lex.KindPrimitive {
		primitiveIndex = p.advance()
		p.accept(lex.KindSemicolon)
	}

	if p.kind() != lex.KindCloseCurly && !p.atEnd() {
		block.Body = p.parseExprSeq(lex.KindCloseCurly)
	}
	return block, primitiveIndex
}

// --- expressions ---

// parseExprSeq parses expressions separated by semicolons until the stop
// kind (or end of input for KindEmpty). The sequence value is the final
// expression.
func (p *Parser) parseExprSeq(stop lex.Kind) *ExprSeqNode {
	seq := &ExprSeqNode{}
	seq.tokenIndex = p.index
	var tail Node
	for !p.failed && !p.atEnd() && p.kind() != stop {
		expr := p.parseExpr()
		if expr == nil {
			break
		}
		if seq.Expr == nil {
			seq.Expr = expr
		} else {
			tail.SetNext(expr)
		}
		tail = expr
		if !p.accept(lex.KindSemicolon) {
			break
		}
	}
	return seq
}

func (p *Parser) parseExpr() Node {
	// ~name = value assigns a global.
	if p.kind() == lex.KindTilde {
		tilde := p.advance()
		name := &NameNode{IsGlobal: true}
		name.tokenIndex = p.expect(lex.KindIdentifier)
		if p.accept(lex.KindAssign) {
			assign := &AssignNode{Name: name, Value: p.parseExpr()}
			assign.tokenIndex = tilde
			return assign
		}
		return p.parseBinopRest(p.parsePostfixFrom(name))
	}

	// name = value. '==' lexes as a single binop token so a bare '='
	// after an identifier is unambiguous with one token of lookahead.
	if p.kind() == lex.KindIdentifier && p.peekKind(1) == lex.KindAssign {
		name := &NameNode{}
		name.tokenIndex = p.advance()
		assignIndex := p.advance()
		assign := &AssignNode{Name: name, Value: p.parseExpr()}
		assign.tokenIndex = assignIndex
		return assign
	}

	left := p.parsePostfix()
	if left == nil {
		return nil
	}

	// Postfix chains ending in a dotted name or an index become setters
	// and array writes when followed by '='.
	if p.kind() == lex.KindAssign {
		assignIndex := p.cur().Start
		switch target := left.(type) {
		case *CallNode:
			if target.Arguments == nil && target.KeywordArguments == nil && target.Target != nil {
				p.advance()
				setter := &SetterNode{Target: target.Target, Value: p.parseExpr()}
				setter.tokenIndex = target.tokenIndex
				return setter
			}
		case *ArrayReadNode:
			p.advance()
			write := &ArrayWriteNode{Target: target.Target, Indices: target.Indices, Value: p.parseExpr()}
			write.tokenIndex = target.tokenIndex
			return write
		}
		p.failed = true
		p.reporter.AddSemanticError(assignIndex, "invalid assignment target")
		return nil
	}

	return p.parseBinopRest(left)
}

// parseBinopRest parses the left-associative infix chain. All binary
// operators have equal precedence; keyword tokens serve as adverb binops.
func (p *Parser) parseBinopRest(left Node) Node {
	for !p.failed && !p.atEnd() && p.cur().CouldBeBinop {
		opIndex := p.advance()
		binop := &BinopCallNode{Left: left}
		binop.tokenIndex = opIndex
		// A dotted adverb may follow the operator, e.g. +.s
		if p.kind() == lex.KindDot && p.peekKind(1) == lex.KindIdentifier {
			p.advance()
			adverb := &NameNode{}
			adverb.tokenIndex = p.advance()
			binop.Adverb = adverb
		}
		binop.Right = p.parsePostfix()
		left = binop
	}
	return left
}

func (p *Parser) parsePostfix() Node {
	primary := p.parsePrimary()
	if primary == nil {
		return nil
	}
	return p.parsePostfixFrom(primary)
}

func (p *Parser) parsePostfixFrom(node Node) Node {
	for !p.failed && !p.atEnd() {
		switch p.kind() {
		case lex.KindDot:
			if p.peekKind(1) != lex.KindIdentifier {
				return node
			}
			p.advance()
			call := &CallNode{Target: node}
			call.tokenIndex = p.advance()
			if p.accept(lex.KindOpenParen) {
				call.Arguments, call.KeywordArguments = p.parseCallArguments()
				p.expect(lex.KindCloseParen)
			} else if p.kind() == lex.KindOpenCurly {
				// Trailing block argument: target.do { ... }
				call.Arguments = p.parseBlockLiteral()
			}
			node = call
		case lex.KindOpenSquare:
			open := p.advance()
			var first Node
			if p.kind() != lex.KindDotDot {
				first = p.parseExpr()
			}
			if p.kind() == lex.KindDotDot {
				p.advance()
				series := &CopySeriesNode{Target: node, First: first}
				series.tokenIndex = open
				if p.kind() != lex.KindCloseSquare {
					series.Last = p.parseExpr()
				}
				p.expect(lex.KindCloseSquare)
				node = series
				continue
			}
			read := &ArrayReadNode{Target: node, Indices: first}
			read.tokenIndex = open
			tail := first
			for p.accept(lex.KindComma) {
				next := p.parseExpr()
				tail.SetNext(next)
				tail = next
			}
			p.expect(lex.KindCloseSquare)
			node = read
		default:
			return node
		}
	}
	return node
}

func (p *Parser) parsePrimary() Node {
	switch p.kind() {
	case lex.KindLiteral:
		return p.parseLiteral()
	case lex.KindIdentifier:
		return p.parseIdentifierPrimary()
	case lex.KindTilde:
		p.advance()
		name := &NameNode{IsGlobal: true}
		name.tokenIndex = p.expect(lex.KindIdentifier)
		return name
	case lex.KindClassName:
		return p.parseClassPrimary()
	case lex.KindOpenParen:
		return p.parseParen()
	case lex.KindOpenSquare:
		return p.parseDynList()
	case lex.KindHash:
		p.advance()
		return p.parseDynList()
	case lex.KindOpenCurly:
		return p.parseBlockLiteral()
	case lex.KindCaret:
		ret := &ReturnNode{}
		ret.tokenIndex = p.advance()
		ret.Value = p.parseExpr()
		return ret
	case lex.KindPrimitive:
		if p.cur().Length == 1 {
			curry := &CurryArgumentNode{}
			curry.tokenIndex = p.advance()
			return curry
		}
		p.errorExpected("expression")
		return nil
	default:
		p.errorExpected("expression")
		return nil
	}
}

func (p *Parser) parseLiteral() *LiteralNode {
	tok := p.cur()
	lit := &LiteralNode{Value: tok.Value, Type: tok.Value.Type()}
	if p.lexer.Source()[tok.Start] == '"' {
		lit.Type = slot.TypeString
	} else if p.lexer.Source()[tok.Start] == '\'' || p.lexer.Source()[tok.Start] == '\\' {
		lit.Type = slot.TypeSymbol
	}
	lit.tokenIndex = p.advance()
	return lit
}

// parseIdentifierPrimary handles plain names, implicit-receiver calls
// foo(a, b), and the if/while statement forms.
func (p *Parser) parseIdentifierPrimary() Node {
	text := p.text()

	if text == "if" && p.peekKind(1) == lex.KindOpenParen {
		return p.parseIfStatement()
	}
	if text == "while" && p.peekKind(1) == lex.KindOpenCurly {
		return p.parseWhileStatement()
	}

	name := &NameNode{}
	name.tokenIndex = p.advance()

	if p.kind() == lex.KindOpenParen {
		// foo(a, b) sends foo to the first argument.
		call := &CallNode{}
		call.tokenIndex = name.tokenIndex
		p.advance()
		call.Arguments, call.KeywordArguments = p.parseCallArguments()
		p.expect(lex.KindCloseParen)
		if call.Arguments != nil {
			call.Target = call.Arguments
			call.Arguments = call.Arguments.Next()
			call.Target.SetNext(nil)
		}
		return call
	}
	if p.kind() == lex.KindOpenCurly {
		// foo { ... } passes the block as the receiver, e.g. fork { }
		call := &CallNode{}
		call.tokenIndex = name.tokenIndex
		call.Target = p.parseBlockLiteral()
		return call
	}
	return name
}

func (p *Parser) parseIfStatement() Node {
	ifNode := &IfNode{}
	ifNode.tokenIndex = p.advance()
	p.expect(lex.KindOpenParen)
	cond := p.parseExprSeq(lex.KindCloseParen)
	p.expect(lex.KindCloseParen)
	ifNode.Condition = cond
	ifNode.TrueBlock = p.parseBlockLiteral()
	if p.kind() == lex.KindOpenCurly {
		ifNode.FalseBlock = p.parseBlockLiteral()
	}
	return ifNode
}

func (p *Parser) parseWhileStatement() Node {
	whileNode := &WhileNode{}
	whileNode.tokenIndex = p.advance()
	whileNode.Condition = p.parseBlockLiteral()
	if p.kind() == lex.KindOpenCurly {
		whileNode.Body = p.parseBlockLiteral()
	}
	return whileNode
}

func (p *Parser) parseClassPrimary() Node {
	nameIndex := p.index
	switch p.peekKind(1) {
	case lex.KindOpenParen:
		newNode := &NewNode{}
		newNode.tokenIndex = p.advance()
		p.advance()
		newNode.Arguments, newNode.KeywordArguments = p.parseCallArguments()
		p.expect(lex.KindCloseParen)
		return newNode
	case lex.KindOpenCurly:
		newNode := &NewNode{}
		newNode.tokenIndex = p.advance()
		newNode.Arguments = p.parseBlockLiteral()
		return newNode
	}
	name := &NameNode{}
	name.tokenIndex = nameIndex
	p.advance()
	return name
}

// parseParen disambiguates the three open-paren forms: event literals
// (key: value, ...), series (a..b) and (a, b..c), and grouped sequences.
func (p *Parser) parseParen() Node {
	open := p.expect(lex.KindOpenParen)

	if p.kind() == lex.KindCloseParen {
		event := &EventNode{}
		event.tokenIndex = open
		p.advance()
		return event
	}
	if p.kind() == lex.KindKeyword {
		return p.parseEvent(open)
	}

	first := p.parseExpr()
	switch p.kind() {
	case lex.KindDotDot:
		p.advance()
		series := &SeriesNode{Start: first}
		series.tokenIndex = open
		if p.kind() != lex.KindCloseParen {
			series.Last = p.parseExpr()
		}
		p.expect(lex.KindCloseParen)
		return series
	case lex.KindComma:
		p.advance()
		second := p.parseExpr()
		series := &SeriesNode{Start: first, Step: second}
		series.tokenIndex = open
		p.expect(lex.KindDotDot)
		if p.kind() != lex.KindCloseParen {
			series.Last = p.parseExpr()
		}
		p.expect(lex.KindCloseParen)
		return series
	case lex.KindSemicolon:
		p.advance()
		seq := p.parseExprSeq(lex.KindCloseParen)
		if first != nil {
			first.SetNext(seq.Expr)
			seq.Expr = first
		}
		seq.tokenIndex = open
		p.expect(lex.KindCloseParen)
		return seq
	default:
		p.expect(lex.KindCloseParen)
		return first
	}
}

func (p *Parser) parseEvent(open int) Node {
	event := &EventNode{}
	event.tokenIndex = open
	var tail *KeyValueNode
	for !p.failed {
		kv := &KeyValueNode{}
		kv.tokenIndex = p.expect(lex.KindKeyword)
		key := &LiteralNode{Type: slot.TypeSymbol}
		if kv.tokenIndex >= 0 {
			key.Value = slot.MakeSymbol(p.tokens[kv.tokenIndex].Hash)
			key.tokenIndex = kv.tokenIndex
		}
		kv.Key = key
		kv.Value = p.parseExpr()
		if event.Elements == nil {
			event.Elements = kv
		} else {
			tail.SetNext(kv)
		}
		tail = kv
		if !p.accept(lex.KindComma) {
			break
		}
	}
	p.expect(lex.KindCloseParen)
	return event
}

func (p *Parser) parseDynList() Node {
	list := &DynListNode{}
	list.tokenIndex = p.expect(lex.KindOpenSquare)
	var tail Node
	for !p.failed && p.kind() != lex.KindCloseSquare && !p.atEnd() {
		el := p.parseExpr()
		if el == nil {
			break
		}
		if list.Elements == nil {
			list.Elements = el
		} else {
			tail.SetNext(el)
		}
		tail = el
		if !p.accept(lex.KindComma) {
			break
		}
	}
	p.expect(lex.KindCloseSquare)
	return list
}

func (p *Parser) parseBlockLiteral() *BlockNode {
	if p.expect(lex.KindOpenCurly) < 0 {
		return nil
	}
	block, _ := p.parseBlockInterior()
	p.expect(lex.KindCloseCurly)
	return block
}

// parseCallArguments parses positional then keyword arguments inside a
// call's parentheses. The caller consumes both parens.
func (p *Parser) parseCallArguments() (Node, *KeyValueNode) {
	var args, argsTail Node
	var kwHead, kwTail *KeyValueNode
	for !p.failed && p.kind() != lex.KindCloseParen && !p.atEnd() {
		if p.kind() == lex.KindKeyword {
			kv := &KeyValueNode{}
			kv.tokenIndex = p.advance()
			key := &LiteralNode{Type: slot.TypeSymbol, Value: slot.MakeSymbol(p.tokens[kv.tokenIndex].Hash)}
			key.tokenIndex = kv.tokenIndex
			kv.Key = key
			kv.Value = p.parseExpr()
			if kwHead == nil {
				kwHead, kwTail = kv, kv
			} else {
				kwTail.SetNext(kv)
				kwTail = kv
			}
		} else {
			arg := p.parseExpr()
			if arg == nil {
				break
			}
			if args == nil {
				args, argsTail = arg, arg
			} else {
				argsTail.SetNext(arg)
				argsTail = arg
			}
		}
		if !p.accept(lex.KindComma) {
			break
		}
	}
	return args, kwHead
}
