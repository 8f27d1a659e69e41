package lex

import (
	"github.com/hadron-sclang/hadron/internal/hash"
	"github.com/hadron-sclang/hadron/internal/slot"
)

// Kind identifies a token. Tokens that can also appear as infix operators
// additionally carry the CouldBeBinop flag.
type Kind int32

const (
	KindEmpty Kind = iota

	// KindLiteral covers integer, float, string, symbol, boolean and nil
	// literals; the parsed value is in Token.Value.
	KindLiteral

	// KindPrimitive is a leading-underscore name, e.g. _BasicNew.
	KindPrimitive

	// Named operators, lexed with distinct kinds even though they are also
	// valid binops.
	KindPlus         // +
	KindMinus        // -
	KindAsterisk     // *
	KindAssign       // =
	KindLessThan     // <
	KindGreaterThan  // >
	KindPipe         // |
	KindReadWriteVar // <>
	KindLeftArrow    // <-

	// KindBinop is any other run of the binop characters !@%&*-+=|<>?/.
	KindBinop

	// KindKeyword is an identifier immediately followed by a colon, lexed
	// as a single `name:` token.
	KindKeyword

	KindOpenParen   // (
	KindCloseParen  // )
	KindOpenCurly   // {
	KindCloseCurly  // }
	KindOpenSquare  // [
	KindCloseSquare // ]
	KindComma       // ,
	KindSemicolon   // ;
	KindColon       // :
	KindCaret       // ^
	KindTilde       // ~
	KindHash        // #
	KindGrave       // `
	KindDot         // .
	KindDotDot      // ..
	KindEllipses    // ...

	// Reserved words.
	KindVar
	KindArg
	KindConst
	KindClassVar

	KindIdentifier
	KindClassName
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindLiteral:
		return "literal"
	case KindPrimitive:
		return "primitive"
	case KindPlus:
		return "'+'"
	case KindMinus:
		return "'-'"
	case KindAsterisk:
		return "'*'"
	case KindAssign:
		return "'='"
	case KindLessThan:
		return "'<'"
	case KindGreaterThan:
		return "'>'"
	case KindPipe:
		return "'|'"
	case KindReadWriteVar:
		return "'<>'"
	case KindLeftArrow:
		return "'<-'"
	case KindBinop:
		return "binop"
	case KindKeyword:
		return "keyword"
	case KindOpenParen:
		return "'('"
	case KindCloseParen:
		return "')'"
	case KindOpenCurly:
		return "'{'"
	case KindCloseCurly:
		return "'}'"
	case KindOpenSquare:
		return "'['"
	case KindCloseSquare:
		return "']'"
	case KindComma:
		return "','"
	case KindSemicolon:
		return "';'"
	case KindColon:
		return "':'"
	case KindCaret:
		return "'^'"
	case KindTilde:
		return "'~'"
	case KindHash:
		return "'#'"
	case KindGrave:
		return "'`'"
	case KindDot:
		return "'.'"
	case KindDotDot:
		return "'..'"
	case KindEllipses:
		return "'...'"
	case KindVar:
		return "var"
	case KindArg:
		return "arg"
	case KindConst:
		return "const"
	case KindClassVar:
		return "classvar"
	case KindIdentifier:
		return "identifier"
	case KindClassName:
		return "classname"
	}
	return "unknown"
}

// Token is one lexed token. Start and Length reference the source string
// held by the Lexer; tokens stay valid as long as the source does.
type Token struct {
	Kind   Kind
	Start  int
	Length int

	// Value holds the parsed literal for KindLiteral tokens.
	Value slot.Slot

	// Hash is the symbol hash of the token text for identifiers, class
	// names, keywords, primitives, and binops.
	Hash hash.Symbol

	// CouldBeBinop is set on any token that may appear as an infix
	// operator, including keyword tokens used as adverbs.
	CouldBeBinop bool

	// EscapeString marks a string literal containing at least one
	// backslash escape, so later stages know the text needs unescaping.
	EscapeString bool
}

// End returns the offset one past the last byte of the token.
func (t Token) End() int { return t.Start + t.Length }
