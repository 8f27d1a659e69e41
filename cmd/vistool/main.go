// Command vistool renders compiler intermediate structures as Graphviz
// dot graphs: --parseTree for the parse tree, --syntaxTree for the SSA
// control flow graph.
package main

import (
	"flag"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/hadron-sclang/hadron/internal/lex"
	"github.com/hadron-sclang/hadron/internal/parse"
	"github.com/hadron-sclang/hadron/internal/pipeline"
	"github.com/hadron-sclang/hadron/internal/report"
)

func main() {
	sourceFile := flag.String("sourceFile", "", "input file")
	outputFile := flag.String("outputFile", "", "output dot file, stdout when empty")
	parseTree := flag.Bool("parseTree", false, "render the parse tree")
	syntaxTree := flag.Bool("syntaxTree", false, "render the SSA control flow graph")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if *sourceFile == "" || (!*parseTree && !*syntaxTree) {
		log.Error().Msg("--sourceFile and one of --parseTree or --syntaxTree are required")
		os.Exit(1)
	}
	if err := run(*sourceFile, *outputFile, *parseTree, log); err != nil {
		log.Error().Err(err).Msg("vistool failed")
		os.Exit(1)
	}
}

func run(sourcePath, outputPath string, renderParseTree bool, log zerolog.Logger) error {
	source, err := os.ReadFile(sourcePath)
	if err != nil {
		return errors.Wrap(err, "reading source")
	}

	var dot string
	if renderParseTree {
		reporter := report.NewReporter()
		reporter.SetSource(string(source))
		lexer := lex.NewLexer(string(source), reporter)
		if !lexer.Lex() {
			return errors.Wrap(reporter.Err(), "lexing failed")
		}
		parser := parse.NewParser(lexer, reporter)
		root := parser.Parse()
		if root == nil || !reporter.OK() {
			return errors.Wrap(reporter.Err(), "parsing failed")
		}
		dot = parseTreeDot(lexer, root)
	} else {
		p := pipeline.New(pipeline.Options{Logger: &log})
		frame, err := p.BuildFrame(string(source))
		if err != nil {
			return err
		}
		dot = frameDot(frame)
	}

	if outputPath == "" {
		_, err = os.Stdout.WriteString(dot)
		return err
	}
	return errors.Wrap(os.WriteFile(outputPath, []byte(dot), 0o644), "writing output")
}
