// Package pipeline sequences the compiler stages and, when asked,
// validates the inter-stage invariants after each one. A Pipeline is one
// compile job: it owns its reporter and stage instances and must not be
// shared across goroutines. Run N jobs with N pipelines.
package pipeline

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/hadron-sclang/hadron/internal/emit"
	"github.com/hadron-sclang/hadron/internal/hir"
	"github.com/hadron-sclang/hadron/internal/jit"
	"github.com/hadron-sclang/hadron/internal/lex"
	"github.com/hadron-sclang/hadron/internal/linear"
	"github.com/hadron-sclang/hadron/internal/parse"
	"github.com/hadron-sclang/hadron/internal/regalloc"
	"github.com/hadron-sclang/hadron/internal/report"
	"github.com/hadron-sclang/hadron/internal/resolve"
)

const DefaultNumberOfRegisters = 16

// Options configures one compile job.
type Options struct {
	// NumberOfRegisters is the allocatable register count; defaults to
	// DefaultNumberOfRegisters when zero.
	NumberOfRegisters int
	// Validate re-checks the pipeline invariants after every stage.
	Validate bool
	// Logger traces stage boundaries at debug level; nil disables.
	Logger *zerolog.Logger
}

// Pipeline runs source through lex, parse, SSA construction,
// serialization, lifetime analysis, allocation, resolution, and emission.
type Pipeline struct {
	opts     Options
	log      zerolog.Logger
	reporter *report.Reporter
}

func New(opts Options) *Pipeline {
	if opts.NumberOfRegisters == 0 {
		opts.NumberOfRegisters = DefaultNumberOfRegisters
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	return &Pipeline{opts: opts, log: log, reporter: report.NewReporter()}
}

func (p *Pipeline) Reporter() *report.Reporter { return p.reporter }

// CompileBlock compiles one interpreted expression, emitting through j.
// On any reported error the artifact is nil and the reporter holds the
// diagnostics.
func (p *Pipeline) CompileBlock(source string, j jit.JIT) (*linear.Frame, error) {
	frame, err := p.BuildFrame(source)
	if err != nil {
		return nil, err
	}
	return p.lower(frame, j)
}

// BuildFrame runs the frontend stages only: lex, parse, SSA construction.
func (p *Pipeline) BuildFrame(source string) (*hir.Frame, error) {
	p.reporter.SetSource(source)
	log := p.log

	lexer := lex.NewLexer(source, p.reporter)
	if !lexer.Lex() {
		return nil, errors.Wrap(p.reporter.Err(), "lexing failed")
	}
	log.Debug().Int("tokens", len(lexer.Tokens())).Msg("lexed")

	parser := parse.NewParser(lexer, p.reporter)
	root := parser.Parse()
	if root == nil || !p.reporter.OK() {
		return nil, errors.Wrap(p.reporter.Err(), "parsing failed")
	}
	log.Debug().Msg("parsed")

	blockNode, ok := root.(*parse.BlockNode)
	if !ok {
		// Empty input compiles as an empty block returning nil.
		blockNode = &parse.BlockNode{}
	}

	builder := hir.NewBuilder(lexer, p.reporter)
	frame := builder.Build(blockNode)
	if frame == nil {
		return nil, errors.Wrap(p.reporter.Err(), "SSA construction failed")
	}
	if p.opts.Validate {
		if err := validateFrame(frame); err != nil {
			return nil, err
		}
	}
	log.Debug().Int("blocks", frame.NumberOfBlocks()).
		Uint32("values", uint32(frame.NumberOfValues())).Msg("built SSA")
	return frame, nil
}

// lower runs the backend stages over a built frame.
func (p *Pipeline) lower(frame *hir.Frame, j jit.JIT) (*linear.Frame, error) {
	log := p.log

	serializer := &linear.BlockSerializer{}
	lf, err := serializer.Serialize(frame, p.opts.NumberOfRegisters)
	if err != nil {
		return nil, err
	}
	if p.opts.Validate {
		if err := validateLinearFrame(lf); err != nil {
			return nil, err
		}
	}
	log.Debug().Int("instructions", len(lf.Instructions)).Msg("serialized")

	analyzer := &linear.LifetimeAnalyzer{}
	if err := analyzer.BuildLifetimes(lf); err != nil {
		return nil, err
	}
	if p.opts.Validate {
		if err := validateLifetimes(lf); err != nil {
			return nil, err
		}
	}
	log.Debug().Msg("analyzed lifetimes")

	allocator := regalloc.NewRegisterAllocator()
	if err := allocator.AllocateRegisters(lf); err != nil {
		return nil, err
	}
	if p.opts.Validate {
		if err := validateAllocation(lf); err != nil {
			return nil, err
		}
	}
	log.Debug().Int("spillSlots", lf.NumberOfSpillSlots).Msg("allocated registers")

	resolver := &resolve.Resolver{}
	if err := resolver.Resolve(lf); err != nil {
		return nil, err
	}
	if p.opts.Validate {
		if err := validateMoves(lf); err != nil {
			return nil, err
		}
	}
	log.Debug().Msg("resolved")

	if j != nil {
		emitter := &emit.Emitter{}
		if err := emitter.Emit(lf, j); err != nil {
			return nil, err
		}
		log.Debug().Msg("emitted")
	}
	return lf, nil
}

// CompileMethod compiles one method body block from a class definition.
func (p *Pipeline) CompileMethod(lexer *lex.Lexer, body *parse.BlockNode, j jit.JIT) (*linear.Frame, error) {
	builder := hir.NewBuilder(lexer, p.reporter)
	frame := builder.Build(body)
	if frame == nil {
		return nil, errors.Wrap(p.reporter.Err(), "SSA construction failed")
	}
	if p.opts.Validate {
		if err := validateFrame(frame); err != nil {
			return nil, err
		}
	}
	return p.lower(frame, j)
}
