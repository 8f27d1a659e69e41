// Package hadron compiles source text for a dynamically-typed,
// class-based object language into executable code. The package exposes
// the compiler facade; the pipeline stages live under internal.
package hadron

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/hadron-sclang/hadron/internal/jit"
	"github.com/hadron-sclang/hadron/internal/lex"
	"github.com/hadron-sclang/hadron/internal/linear"
	"github.com/hadron-sclang/hadron/internal/parse"
	"github.com/hadron-sclang/hadron/internal/pipeline"
	"github.com/hadron-sclang/hadron/internal/report"
	"github.com/hadron-sclang/hadron/internal/runtime"
	"github.com/hadron-sclang/hadron/internal/slot"
)

// Config configures compilers created by NewCompiler.
type Config struct {
	// NumberOfRegisters overrides the allocatable register count.
	NumberOfRegisters int
	// Validate re-checks pipeline invariants between stages.
	Validate bool
	// Logger receives stage tracing at debug level; nil disables.
	Logger *zerolog.Logger
}

// Compiler creates one pipeline per compile job. A Compiler is safe to
// share across goroutines; each job owns its own state.
type Compiler struct {
	config Config
}

func NewCompiler(config Config) *Compiler {
	if config.NumberOfRegisters == 0 {
		config.NumberOfRegisters = pipeline.DefaultNumberOfRegisters
	}
	return &Compiler{config: config}
}

// Artifact is one compiled interpreted expression: the executable
// instruction stream and the linear frame it was emitted from.
type Artifact struct {
	Code  *jit.Virtual
	Frame *linear.Frame
}

// CompileBlock compiles one interpreted expression. On user errors the
// artifact is nil and the returned error carries the collected
// diagnostics.
func (c *Compiler) CompileBlock(source string) (*Artifact, error) {
	p := pipeline.New(pipeline.Options{
		NumberOfRegisters: c.config.NumberOfRegisters,
		Validate:          c.config.Validate,
		Logger:            c.config.Logger,
	})
	code := jit.NewVirtual(c.config.NumberOfRegisters)
	lf, err := p.CompileBlock(source, code)
	if err != nil {
		return nil, err
	}
	return &Artifact{Code: code, Frame: lf}, nil
}

// MethodArtifact is one compiled method from a class-library file.
type MethodArtifact struct {
	ClassName  string
	MethodName string
	Code       *jit.Virtual
	Frame      *linear.Frame
}

// CompileClassFile parses a class-library file and compiles every method
// body through the block pipeline.
func (c *Compiler) CompileClassFile(source string) ([]*MethodArtifact, error) {
	reporter := report.NewReporter()
	reporter.SetSource(source)
	lexer := lex.NewLexer(source, reporter)
	if !lexer.Lex() {
		return nil, errors.Wrap(reporter.Err(), "lexing failed")
	}
	parser := parse.NewParser(lexer, reporter)
	root := parser.ParseClass()
	if root == nil || !reporter.OK() {
		return nil, errors.Wrap(reporter.Err(), "parsing failed")
	}

	var artifacts []*MethodArtifact
	for node := root; node != nil; node = node.Next() {
		var className string
		var methods *parse.MethodNode
		switch class := node.(type) {
		case *parse.ClassNode:
			className = lexer.TokenText(class.TokenIndex())
			methods = class.Methods
		case *parse.ClassExtNode:
			className = lexer.TokenText(class.TokenIndex() + 1)
			methods = class.Methods
		default:
			continue
		}
		for m := methods; m != nil; {
			// Primitive-backed methods have no compiled body.
			if m.PrimitiveTokenIndex < 0 {
				p := pipeline.New(pipeline.Options{
					NumberOfRegisters: c.config.NumberOfRegisters,
					Validate:          c.config.Validate,
					Logger:            c.config.Logger,
				})
				p.Reporter().SetSource(source)
				code := jit.NewVirtual(c.config.NumberOfRegisters)
				lf, err := p.CompileMethod(lexer, m.Body, code)
				if err != nil {
					return nil, errors.Wrapf(err, "compiling %s:%s",
						className, lexer.TokenText(m.TokenIndex()))
				}
				artifacts = append(artifacts, &MethodArtifact{
					ClassName:  className,
					MethodName: lexer.TokenText(m.TokenIndex()),
					Code:       code,
					Frame:      lf,
				})
			}
			next, _ := m.Next().(*parse.MethodNode)
			m = next
		}
	}
	return artifacts, nil
}

// stackWords sizes the Hadron stack handed to executed artifacts.
const stackWords = 4096

// Execute runs the artifact on a fresh thread context and Hadron stack,
// returning the frame's result slot. Arguments occupy the frame's
// value/type pairs, matching the trampoline entry convention.
func (a *Artifact) Execute(args ...slot.Slot) (slot.Slot, error) {
	memory := make([]uint64, stackWords)
	framePointer := uint64(stackWords / 2)
	ctx := &runtime.ThreadContext{
		FramePointer:    framePointer,
		StackPointer:    0,
		ExitMachineCode: ^uint64(0),
	}
	for i, arg := range args {
		memory[int(framePointer)+runtime.ArgumentSlot(i)] = arg.Bits()
		memory[int(framePointer)+runtime.ArgumentSlot(i)+1] = uint64(arg.Type())
	}
	memory[framePointer] = slot.MakeNil().Bits()
	if err := a.Code.Execute(ctx, memory); err != nil {
		return slot.Slot{}, err
	}
	return slot.FromBits(memory[framePointer]), nil
}
