// Package parse builds the parse tree from a lexed token stream. Nodes
// form a tagged family: each production is its own struct embedding base,
// which carries the index of the token naming the production and the Next
// pointer threading sibling sequences (statement lists, argument lists).
package parse

import "github.com/hadron-sclang/hadron/internal/slot"

// Node is implemented by every parse node.
type Node interface {
	// TokenIndex returns the index of the token that names this node.
	TokenIndex() int
	// Next returns the following sibling in the parent's child sequence.
	Next() Node
	// SetNext threads the sibling chain during construction.
	SetNext(Node)
}

// base carries the fields common to all nodes.
type base struct {
	tokenIndex int
	next       Node
}

func (b *base) TokenIndex() int { return b.tokenIndex }
func (b *base) Next() Node      { return b.next }
func (b *base) SetNext(n Node)  { b.next = n }

// EmptyNode is the root of whitespace-only input.
type EmptyNode struct{ base }

// LiteralNode is a literal token. Type disambiguates literals whose Slot
// encodings coincide (string spans box as pointers).
type LiteralNode struct {
	base
	Value slot.Slot
	Type  slot.Type
}

// NameNode references a variable; IsGlobal marks the ~name form.
type NameNode struct {
	base
	IsGlobal bool
}

// VarDefNode defines one variable, optionally with an initial value and
// accessor markers from class variable declarations.
type VarDefNode struct {
	base
	InitialValue     Node
	HasReadAccessor  bool
	HasWriteAccessor bool
}

// VarListNode groups the definitions of one var/arg/classvar/const
// declaration statement.
type VarListNode struct {
	base
	Definitions *VarDefNode
}

// ArgListNode declares a block's arguments. VarArgsNameIndex is the token
// index of the ...varargs tail name, or -1 when absent.
type ArgListNode struct {
	base
	VarList          *VarListNode
	VarArgsNameIndex int
}

// ExprSeqNode is a semicolon-separated expression sequence whose value is
// the final expression.
type ExprSeqNode struct {
	base
	Expr Node
}

// KeyValueNode is one keyword: value pair in calls and event literals.
type KeyValueNode struct {
	base
	Key   Node
	Value Node
}

// BlockNode is a code block: arguments, local variables, and body.
type BlockNode struct {
	base
	Arguments *ArgListNode
	Variables *VarListNode
	Body      *ExprSeqNode
}

// MethodNode is one method definition inside a class body.
type MethodNode struct {
	base
	IsClassMethod       bool
	PrimitiveTokenIndex int
	Body                *BlockNode
}

// ClassNode is a class definition. OptionalNameTokenIndex holds the
// bracketed metaclass name and SuperclassNameTokenIndex the superclass;
// both are -1 when absent.
type ClassNode struct {
	base
	SuperclassNameTokenIndex int
	OptionalNameTokenIndex   int
	Variables                *VarListNode
	Methods                  *MethodNode
}

// ClassExtNode is a class extension (+ClassName { ... }).
type ClassExtNode struct {
	base
	Methods *MethodNode
}

// ReturnNode is ^expr.
type ReturnNode struct {
	base
	Value Node
}

// DynListNode is an array literal [ ... ].
type DynListNode struct {
	base
	Elements Node
}

// EventNode is a dictionary literal ( key: value, ... ).
type EventNode struct {
	base
	Elements *KeyValueNode
}

// SeriesNode is an arithmetic progression (start..last) or
// (start, second..last); Step is the second element or nil.
type SeriesNode struct {
	base
	Start Node
	Step  Node
	Last  Node
}

// CopySeriesNode is the slice form target[first..last].
type CopySeriesNode struct {
	base
	Target Node
	First  Node
	Last   Node
}

// ArrayReadNode is target[indices].
type ArrayReadNode struct {
	base
	Target  Node
	Indices Node
}

// ArrayWriteNode is target[indices] = value.
type ArrayWriteNode struct {
	base
	Target  Node
	Indices Node
	Value   Node
}

// CallNode is a message send: target.selector(arguments, keyword: args).
// The selector token index is the node's TokenIndex.
type CallNode struct {
	base
	Target           Node
	Arguments        Node
	KeywordArguments *KeyValueNode
}

// BinopCallNode is an infix operator application. The operator token index
// is the node's TokenIndex; Adverb holds the trailing .adverb if present.
type BinopCallNode struct {
	base
	Left   Node
	Right  Node
	Adverb Node
}

// NewNode is the construction sugar ClassName(args) or ClassName { ... }.
type NewNode struct {
	base
	Arguments        Node
	KeywordArguments *KeyValueNode
}

// IfNode is the two-armed conditional. FalseBlock is nil when the else
// branch is absent.
type IfNode struct {
	base
	Condition  Node
	TrueBlock  *BlockNode
	FalseBlock *BlockNode
}

// WhileNode is the while loop; Condition is a block evaluated each trip.
type WhileNode struct {
	base
	Condition *BlockNode
	Body      *BlockNode
}

// CurryArgumentNode is the _ placeholder.
type CurryArgumentNode struct{ base }

// AssignNode is name = value, including ~global = value.
type AssignNode struct {
	base
	Name  *NameNode
	Value Node
}

// SetterNode is target.name = value.
type SetterNode struct {
	base
	Target Node
	Value  Node
}
