// Command hadronc compiles a source file and reports diagnostics. Files
// ending in .sc compile as class-library files, anything else as an
// interpreted expression. Exit code is 0 on success, nonzero on any
// reported error.
package main

import (
	"flag"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/hadron-sclang/hadron"
)

func main() {
	sourceFile := flag.String("sourceFile", "", "input file to compile")
	validate := flag.Bool("validate", false, "validate pipeline invariants between stages")
	verbose := flag.Bool("verbose", false, "enable debug tracing")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if !*verbose {
		log = log.Level(zerolog.InfoLevel)
	}

	if *sourceFile == "" {
		log.Error().Msg("--sourceFile is required")
		os.Exit(1)
	}
	if err := run(*sourceFile, *validate, log); err != nil {
		log.Error().Err(err).Str("sourceFile", *sourceFile).Msg("compile failed")
		os.Exit(1)
	}
}

func run(path string, validate bool, log zerolog.Logger) error {
	source, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "reading source")
	}

	compiler := hadron.NewCompiler(hadron.Config{Validate: validate, Logger: &log})
	if strings.HasSuffix(path, ".sc") {
		artifacts, err := compiler.CompileClassFile(string(source))
		if err != nil {
			return err
		}
		for _, a := range artifacts {
			log.Info().Str("class", a.ClassName).Str("method", a.MethodName).
				Int("instructions", len(a.Code.Listing())).Msg("compiled")
		}
		return nil
	}

	artifact, err := compiler.CompileBlock(string(source))
	if err != nil {
		return err
	}
	log.Info().Int("instructions", len(artifact.Code.Listing())).
		Int("spillSlots", artifact.Frame.NumberOfSpillSlots).Msg("compiled")
	return nil
}
