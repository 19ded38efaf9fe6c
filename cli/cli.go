// Package cli wires the neba command tree: running scripts, the
// interactive REPL, the advisory type checker, and the bytecode
// debugging helpers.
package cli

import (
	"fmt"
	"os"
	"runtime"
	"sort"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sfenos/neba/runtime/lexer"
	"github.com/sfenos/neba/runtime/parser"
	"github.com/sfenos/neba/runtime/types"
	"github.com/sfenos/neba/runtime/vm"
)

// Version is stamped by the build.
var Version = "0.2.0"

// NewRootCommand builds the neba CLI. With a file argument it compiles
// and runs the script; with none it starts the REPL.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "neba [script.neba]",
		Short:         "The Neba programming language",
		Version:       Version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runREPL(cmd)
			}
			return runFile(cmd, args[0])
		},
	}

	root.AddCommand(newCheckCommand())
	root.AddCommand(newDisCommand())
	root.AddCommand(newTokensCommand())
	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func runFile(cmd *cobra.Command, path string) error {
	source, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("neba: cannot read '%s': %w", path, err)
	}

	program, lexErrs, parseErrs := parser.Parse(string(source))
	if len(lexErrs) > 0 || len(parseErrs) > 0 {
		for _, e := range lexErrs {
			fmt.Fprintln(cmd.ErrOrStderr(), e)
		}
		for _, e := range parseErrs {
			fmt.Fprintln(cmd.ErrOrStderr(), e)
		}
		return fmt.Errorf("%d error(s)", len(lexErrs)+len(parseErrs))
	}

	chunk, err := vm.Compile(program)
	if err != nil {
		return err
	}

	machine := vm.New()
	machine.Stdout = cmd.OutOrStdout()
	machine.Stderr = cmd.ErrOrStderr()
	if _, err := machine.Run(chunk); err != nil {
		return err
	}
	return nil
}

// newCheckCommand type-checks files in parallel. The checker is
// advisory when running scripts; here it is the product.
func newCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check <files...>",
		Short: "Type-check source files without running them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			type fileReport struct {
				path  string
				diags []types.Diagnostic
			}
			reports := make([]fileReport, len(args))

			var g errgroup.Group
			g.SetLimit(runtime.GOMAXPROCS(0))
			for i, path := range args {
				i, path := i, path
				g.Go(func() error {
					source, err := os.ReadFile(path)
					if err != nil {
						return fmt.Errorf("neba: cannot read '%s': %w", path, err)
					}
					reports[i] = fileReport{path: path, diags: types.Analyse(string(source))}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			failed := false
			for _, r := range reports {
				if len(r.diags) == 0 {
					continue
				}
				sort.SliceStable(r.diags, func(a, b int) bool {
					return r.diags[a].Span.Line < r.diags[b].Span.Line
				})
				fmt.Fprintf(cmd.OutOrStdout(), "%s:\n", r.path)
				for _, d := range r.diags {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", d)
					if d.Severity == types.SeverityError {
						failed = true
					}
				}
			}
			if failed {
				return fmt.Errorf("type check failed")
			}
			return nil
		},
	}
}

func newDisCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "dis <script.neba>",
		Short: "Compile a script and print its bytecode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("neba: cannot read '%s': %w", args[0], err)
			}
			chunk, err := vm.CompileSource(string(source))
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), chunk.Disassemble("<script>"))
			for _, proto := range chunk.FnProtos {
				fmt.Fprint(cmd.OutOrStdout(), proto.Chunk.Disassemble(proto.Name))
			}
			return nil
		},
	}
}

func newTokensCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tokens <script.neba>",
		Short: "Print the token stream of a script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("neba: cannot read '%s': %w", args[0], err)
			}
			tokens, lexErrs := lexer.Tokenize(string(source))
			for _, tok := range tokens {
				fmt.Fprintf(cmd.OutOrStdout(), "%4d:%-3d %-14s %q\n",
					tok.Span.Line, tok.Span.Column, tok.Type, tok.Lexeme)
			}
			for _, e := range lexErrs {
				fmt.Fprintln(cmd.ErrOrStderr(), e)
			}
			if len(lexErrs) > 0 {
				return fmt.Errorf("%d lex error(s)", len(lexErrs))
			}
			return nil
		},
	}
}
