// Package main implements the smplc compiler binary.
//
// Philosophy: Fast, minimal, elegant - one pass from source to SSA.
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/GriffinCanCode/smplc/pkg/config"
	"github.com/GriffinCanCode/smplc/pkg/frontend"
	"github.com/GriffinCanCode/smplc/pkg/logger"
	"github.com/GriffinCanCode/smplc/pkg/render"
	"github.com/GriffinCanCode/smplc/pkg/ssa"
)

const version = "0.1.0"

func main() {
	if err := newRootCommand(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "smplc",
		Short:         "Compile smpl programs to SSA form",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.AddCommand(
		newCompileCommand(),
		newTokensCommand(),
		newVersionCommand(),
	)
	return cmd
}

type compileOptions struct {
	configFile string
	format     string
	output     string
	verbose    bool
	strict     bool
}

func newCompileCommand() *cobra.Command {
	var opts compileOptions
	cmd := &cobra.Command{
		Use:   "compile SOURCE",
		Short: "Build the SSA graph of a program and print it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd, args[0], &opts)
		},
	}
	addCompileFlags(cmd.Flags(), &opts)
	return cmd
}

func addCompileFlags(flags *pflag.FlagSet, opts *compileOptions) {
	flags.StringVarP(&opts.configFile, "config", "c", "", "TOML configuration file")
	flags.StringVarP(&opts.format, "format", "f", "", "Output format (text, dot)")
	flags.StringVarP(&opts.output, "output", "o", "", "Write output to file instead of stdout")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output")
	flags.BoolVar(&opts.strict, "strict", false, "Reject variables that are not declared")
}

func loadConfig(cmd *cobra.Command, opts *compileOptions) (*config.Config, error) {
	cfg := config.Default()
	if opts.configFile != "" {
		var err error
		if cfg, err = config.Load(opts.configFile); err != nil {
			return nil, err
		}
	}
	if cmd.Flags().Changed("format") {
		cfg.Output.Format = opts.format
	}
	if opts.verbose {
		cfg.Log.Level = "debug"
	}
	if opts.strict {
		cfg.SSA.StrictDeclarations = true
	}
	return cfg, cfg.Validate()
}

func runCompile(cmd *cobra.Command, path string, opts *compileOptions) error {
	start := time.Now()
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.LoggerConfig(cmd.ErrOrStderr())); err != nil {
		return err
	}
	logger.LogCompilerStart(os.Args)
	logger.LogFileProcessing(path)

	prog, err := compile(path, cfg)
	logger.LogCompilerComplete(err == nil, time.Since(start).String())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.output != "" {
		f, err := os.Create(opts.output)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	if cfg.Output.Format == "dot" {
		return render.Dot(out, prog)
	}
	return render.Text(out, prog)
}

func compile(path string, cfg *config.Config) (*ssa.Program, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	logger.LogPhase("parse")
	comp, err := frontend.Parse(string(src))
	if err != nil {
		if se, ok := err.(*frontend.SyntaxError); ok {
			logger.LogError("parse", path, se.Pos.Line, se.Msg)
		}
		return nil, errors.Wrap(err, path)
	}
	logger.LogPhaseComplete("parse")

	logger.LogPhase("ssa")
	opts := append(cfg.BuilderOptions(logger.With("component", "ssa")), ssa.WithSourceName(path))
	prog, err := ssa.Build(comp, opts...)
	if err != nil {
		logger.LogError("ssa", path, 0, err.Error())
		return nil, err
	}
	for _, d := range prog.Diagnostics {
		logger.LogWarning("ssa", path, 0, d.String())
	}
	if err := ssa.Verify(prog); err != nil {
		return nil, err
	}
	logger.LogPhaseComplete("ssa")
	return prog, nil
}

func newTokensCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tokens SOURCE",
		Short: "Print the token stream of a program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			toks := frontend.NewLexer(string(src)).Tokens()
			logger.LogLexing(args[0], len(toks))
			for _, tok := range toks {
				fmt.Fprintln(cmd.OutOrStdout(), tok)
			}
			if last := toks[len(toks)-1]; last.Type == frontend.ERROR {
				return &frontend.SyntaxError{Pos: last.Pos(), Msg: last.Lexeme}
			}
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show compiler version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "smplc compiler version %s\n", version)
		},
	}
}
