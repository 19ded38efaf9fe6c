package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sfenos/neba/runtime/parser"
	"github.com/sfenos/neba/runtime/vm"
)

const banner = `
  ███╗   ██╗███████╗██████╗  █████╗
  ████╗  ██║██╔════╝██╔══██╗██╔══██╗
  ██╔██╗ ██║█████╗  ██████╔╝███████║
  ██║╚██╗██║██╔══╝  ██╔══██╗██╔══██║
  ██║ ╚████║███████╗██████╔╝██║  ██║
  ╚═╝  ╚═══╝╚══════╝╚═════╝ ╚═╝  ╚═╝
`

// blockOpeners are the keywords that start a multi-line block; a line
// beginning with one keeps the REPL accumulating input.
var blockOpeners = map[string]bool{
	"fn": true, "class": true, "trait": true, "if": true, "while": true,
	"for": true, "match": true, "async": true, "elif": true, "else": true,
	"impl": true,
}

// runREPL is the interactive read-eval loop. Globals persist across
// inputs on a single VM; multi-line blocks accumulate until complete.
func runREPL(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	fmt.Fprint(out, banner)
	fmt.Fprintf(out, "  Neba %s — type :help for commands\n\n", Version)

	machine := vm.New()
	machine.Stdout = out
	machine.Stderr = cmd.ErrOrStderr()

	scanner := bufio.NewScanner(cmd.InOrStdin())
	var pending strings.Builder

	for {
		prompt := ">>> "
		if pending.Len() > 0 {
			prompt = "... "
		}
		fmt.Fprint(out, prompt)

		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := scanner.Text()

		switch strings.TrimSpace(line) {
		case ":quit", ":q", "quit", "exit":
			fmt.Fprintln(out, "Goodbye!")
			return nil
		case ":clear":
			machine = vm.New()
			machine.Stdout = out
			machine.Stderr = cmd.ErrOrStderr()
			pending.Reset()
			fmt.Fprintln(out, "  Environment cleared.")
			continue
		case ":help":
			printHelp(out)
			continue
		}

		pending.WriteString(line)
		pending.WriteByte('\n')

		if needsMoreInput(pending.String()) {
			continue
		}

		source := pending.String()
		pending.Reset()
		evalAndPrint(machine, cmd, source)
	}
}

func evalAndPrint(machine *vm.VM, cmd *cobra.Command, source string) {
	result, err := machine.Interpret(source)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", err)
		return
	}
	if result.Kind != vm.KindNone {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", result)
	}
}

// needsMoreInput reports whether the accumulated input looks like an
// open block: the parse reports a missing indent, or the last non-blank
// line starts with a block-opening keyword.
func needsMoreInput(src string) bool {
	_, _, parseErrs := parser.Parse(src)
	for _, e := range parseErrs {
		if e.Kind == parser.ErrMissingIndent {
			return true
		}
	}

	lines := strings.Split(src, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" {
			continue
		}
		fields := strings.Fields(trimmed)
		return len(fields) > 0 && blockOpeners[fields[0]]
	}
	return false
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, "  Neba REPL commands:")
	fmt.Fprintln(out, "  :quit / :q    Exit the REPL")
	fmt.Fprintln(out, "  :clear        Reset the environment (variables/functions)")
	fmt.Fprintln(out, "  :help         Show this message")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "  Enter Neba code directly. After a line that opens a block (fn,")
	fmt.Fprintln(out, "  class, if, while, for, match, ...) input continues on following")
	fmt.Fprintln(out, "  lines; it runs as soon as it parses and its last line does not")
	fmt.Fprintln(out, "  open a block.")
}
