package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/lemonberrylabs/oida/pkg/lexer"
	"github.com/lemonberrylabs/oida/pkg/runtime"
	"github.com/lemonberrylabs/oida/pkg/stdlib"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"
)

const (
	historyFile = ".oida_history"
	promptMain  = "oida> "
	promptCont  = "  ... "
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start an interactive session",
	Args:  cobra.NoArgs,
	RunE:  repl,
}

func repl(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "oida %s. Mit :baba oder Ctrl-D beenden.\n", version)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	var histPath string
	if home, err := os.UserHomeDir(); err == nil {
		histPath = filepath.Join(home, historyFile)
		if f, err := os.Open(histPath); err == nil {
			_, _ = ln.ReadHistory(f)
			_ = f.Close()
		}
	}
	defer func() {
		if histPath == "" {
			return
		}
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		} else {
			logger.Warn("could not write history", "file", histPath, "error", err)
		}
	}()

	session := runtime.New(
		runtime.WithStdout(out),
		runtime.WithStderr(cmd.ErrOrStderr()),
		runtime.WithLogger(logger),
		runtime.WithFetcher(stdlib.NewHTTPFetcher(stdlib.DefaultFetchTimeout)),
	).Session()

	for {
		src, ok := readInput(ln)
		if !ok {
			fmt.Fprintln(out)
			return nil
		}
		trimmed := strings.TrimSpace(src)
		switch {
		case trimmed == "":
			continue
		case trimmed == ":baba" || trimmed == ":quit":
			return nil
		case strings.HasPrefix(trimmed, ":"):
			fmt.Fprintln(out, "Unbekannter Befehl. Mit :baba beenden.")
			continue
		}
		ln.AppendHistory(strings.ReplaceAll(src, "\n", " "))

		res, err := session.Eval(context.Background(), src)
		if err != nil {
			if res == nil {
				// Syntax errors are not reported by the interpreter.
				fmt.Fprintf(cmd.ErrOrStderr(), "Fehler: %v\n", err)
			}
			continue
		}
		if len(res.Errors) == 0 && !res.Value.IsNull() {
			fmt.Fprintf(out, "=> %s\n", res.Value.String())
		}
	}
}

// readInput reads lines until the braces, brackets and parentheses of the
// collected input are balanced. It returns false at end of input.
func readInput(ln *liner.State) (string, bool) {
	var b strings.Builder
	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}
		line, err := ln.Prompt(prompt)
		if errors.Is(err, io.EOF) {
			return "", false
		}
		if errors.Is(err, liner.ErrPromptAborted) {
			return "", true
		}
		if err != nil {
			return "", false
		}

		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
		if !needsMore(b.String()) {
			return b.String(), true
		}
	}
}

// needsMore reports whether src has more opening than closing delimiters.
func needsMore(src string) bool {
	depth := 0
	for _, tok := range lexer.Tokenize(src) {
		switch tok.Kind {
		case lexer.LBrace, lexer.LBracket, lexer.LParen:
			depth++
		case lexer.RBrace, lexer.RBracket, lexer.RParen:
			depth--
		}
	}
	return depth > 0
}
