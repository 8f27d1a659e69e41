// Package report collects compile diagnostics. Lex, parse, and semantic
// errors accumulate in a Reporter so a single compile attempt surfaces as
// many issues as possible; internal errors abort the job immediately.
package report

import (
	"fmt"
	"sort"
	"strings"
)

// Kind classifies a diagnostic per the compiler's error taxonomy.
type Kind int32

const (
	KindLex Kind = iota
	KindParse
	KindSemantic
	KindInternal
	KindResource
)

func (k Kind) String() string {
	switch k {
	case KindLex:
		return "lex"
	case KindParse:
		return "parse"
	case KindSemantic:
		return "semantic"
	case KindInternal:
		return "internal"
	case KindResource:
		return "resource"
	}
	return "unknown"
}

// Error is a single diagnostic. Line and Column are 1-based and computed
// lazily from the byte offset against the associated source.
type Error struct {
	Kind    Kind
	Offset  int
	Line    int
	Column  int
	Message string
}

func (e Error) Error() string {
	return fmt.Sprintf("line %d col %d: %s error: %s", e.Line, e.Column, e.Kind, e.Message)
}

// Reporter accumulates diagnostics for one compile job. It is not safe for
// concurrent use; each job owns its own Reporter.
type Reporter struct {
	source      string
	lineOffsets []int
	errors      []Error
}

func NewReporter() *Reporter {
	return &Reporter{}
}

// SetSource associates the source text so line/column positions can be
// computed for subsequent and already-recorded diagnostics.
func (r *Reporter) SetSource(source string) {
	r.source = source
	r.lineOffsets = r.lineOffsets[:0]
	r.lineOffsets = append(r.lineOffsets, 0)
	for i := 0; i < len(source); i++ {
		if source[i] == '\n' {
			r.lineOffsets = append(r.lineOffsets, i+1)
		}
	}
	for i := range r.errors {
		r.errors[i].Line, r.errors[i].Column = r.locate(r.errors[i].Offset)
	}
}

func (r *Reporter) locate(offset int) (line, column int) {
	i := sort.SearchInts(r.lineOffsets, offset+1) - 1
	if i < 0 {
		i = 0
	}
	return i + 1, offset - r.lineOffsets[i] + 1
}

func (r *Reporter) add(kind Kind, offset int, message string) {
	e := Error{Kind: kind, Offset: offset, Message: message}
	if len(r.lineOffsets) > 0 {
		e.Line, e.Column = r.locate(offset)
	}
	r.errors = append(r.errors, e)
}

func (r *Reporter) AddLexError(offset int, format string, args ...any) {
	r.add(KindLex, offset, fmt.Sprintf(format, args...))
}

func (r *Reporter) AddParseError(offset int, format string, args ...any) {
	r.add(KindParse, offset, fmt.Sprintf(format, args...))
}

func (r *Reporter) AddSemanticError(offset int, format string, args ...any) {
	r.add(KindSemantic, offset, fmt.Sprintf(format, args...))
}

func (r *Reporter) AddResourceError(offset int, format string, args ...any) {
	r.add(KindResource, offset, fmt.Sprintf(format, args...))
}

// OK reports whether no diagnostics have been recorded.
func (r *Reporter) OK() bool { return len(r.errors) == 0 }

func (r *Reporter) Errors() []Error { return r.errors }

// Err flattens recorded diagnostics into a single error, or nil if none.
func (r *Reporter) Err() error {
	if r.OK() {
		return nil
	}
	lines := make([]string, len(r.errors))
	for i, e := range r.errors {
		lines[i] = e.Error()
	}
	return fmt.Errorf("%s", strings.Join(lines, "\n"))
}

// InternalError signals a broken compiler invariant, a programming fault
// rather than bad user input. It aborts the pipeline immediately.
type InternalError struct {
	Stage   string
	Message string
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error in %s: %s", e.Stage, e.Message)
}

// Internalf builds an InternalError with a formatted diagnostic payload.
func Internalf(stage, format string, args ...any) *InternalError {
	return &InternalError{Stage: stage, Message: fmt.Sprintf(format, args...)}
}
