package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wippyai/wasm-bridge/script"
)

var replCmd = &cobra.Command{
	Use:   "repl [file.wasm]",
	Short: "Interactive command session",
	Long: `Start an interactive session accepting the same commands as "script".

Features:
  - Command history (up/down arrows)
  - Line editing (left/right, backspace, delete)
  - History search (Ctrl+R)

A module given as argument is loaded and instantiated as m1 and i1.
Type 'exit' or 'quit' to end the session, or press Ctrl+D.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRepl,
}

func init() {
	replCmd.Flags().String("history", "", "History file path (default: ~/.wasmbridge_history)")
	rootCmd.AddCommand(replCmd)
}

func runRepl(cmd *cobra.Command, args []string) (err error) {
	ctx, cancel := signalContext()
	defer cancel()

	rt, err := newContext(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.Close(ctx); err == nil {
			err = cerr
		}
	}()

	out := cmd.OutOrStdout()
	session := script.NewSession(rt, out)
	if len(args) == 1 {
		for _, line := range []string{"load " + args[0], "instantiate m1"} {
			if err := session.Exec(ctx, line); err != nil {
				return err
			}
		}
	}

	// Piped input runs as a script.
	if f, ok := cmd.InOrStdin().(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
		return session.Run(ctx, cmd.InOrStdin())
	}

	historyFile, _ := cmd.Flags().GetString("history")
	if historyFile == "" {
		home, _ := os.UserHomeDir()
		historyFile = filepath.Join(home, ".wasmbridge_history")
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "wasm> ",
		HistoryFile:       historyFile,
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		AutoComplete:      completer(),
		Stdout:            out,
	})
	if err != nil {
		return fmt.Errorf("initializing readline: %w", err)
	}
	defer rl.Close()

	fmt.Fprintf(cmd.ErrOrStderr(), "wasmbridge %s REPL (type 'help' for commands, 'exit' to quit)\n", rt.Backend())
	return repl(ctx, rl, session, cmd.ErrOrStderr())
}

func repl(ctx context.Context, rl *readline.Instance, session *script.Session, errOut io.Writer) error {
	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}

		if err := session.Exec(ctx, line); err != nil {
			fmt.Fprintf(errOut, "Error: %v\n", err)
		}
	}
}

func completer() *readline.PrefixCompleter {
	var items []readline.PrefixCompleterInterface
	for _, usage := range script.Commands() {
		name, _, _ := strings.Cut(usage, " ")
		items = append(items, readline.PcItem(name))
	}
	return readline.NewPrefixCompleter(items...)
}
