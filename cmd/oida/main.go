// Package main is the entry point of the oida command line tool.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

var logger = slog.New(slog.NewTextHandler(io.Discard, nil))

var rootCmd = &cobra.Command{
	Use:           "oida",
	Short:         "Interpreter for the oida scripting language",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := envOrDefault("OIDA_LOG_LEVEL", "warn")
		if v, _ := cmd.Flags().GetString("log-level"); v != "" {
			level = v
		}
		l, err := newLogger(os.Stderr, level)
		if err != nil {
			return err
		}
		logger = l
		slog.SetDefault(l)
		return nil
	},
}

func init() {
	rootCmd.Version = version + " (commit=" + commit + ", built=" + date + ")"
	rootCmd.SetVersionTemplate("oida version {{.Version}}\n")

	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error (default warn, env OIDA_LOG_LEVEL)")

	rootCmd.AddCommand(runCmd, tokensCmd, astCmd, replCmd, serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exit exitError
		if !errors.As(err, &exit) {
			fmt.Fprintf(os.Stderr, "Fehler: %v\n", err)
			exit.code = 1
		}
		os.Exit(exit.code)
	}
}

// exitError ends the process with code after the error was already reported.
type exitError struct {
	code int
}

func (e exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// newLogger creates a text logger writing to w at the named level.
func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

// readSource reads a program from the named file, or from stdin for "-".
func readSource(name string) (string, error) {
	if name == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("reading program: %w", err)
	}
	return string(data), nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
