package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/lemonberrylabs/oida/pkg/ast"
	"github.com/lemonberrylabs/oida/pkg/lexer"
	"github.com/lemonberrylabs/oida/pkg/parser"
	"github.com/lemonberrylabs/oida/pkg/runtime"
	"github.com/lemonberrylabs/oida/pkg/stdlib"
	"github.com/lemonberrylabs/oida/pkg/types"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run FILE|-",
	Short: "Run an oida program",
	Args:  cobra.ExactArgs(1),
	RunE:  runProgram,
}

var tokensCmd = &cobra.Command{
	Use:   "tokens FILE|-",
	Short: "Print the tokens of a program",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := readSource(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, tok := range lexer.Tokenize(src) {
			fmt.Fprintln(out, tok.String())
		}
		return nil
	},
}

var astCmd = &cobra.Command{
	Use:   "ast FILE|-",
	Short: "Print the syntax tree of a program",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := readSource(args[0])
		if err != nil {
			return err
		}
		program, err := parser.ParseSource(src)
		if err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("format")
		return ast.Dump(cmd.OutOrStdout(), program, ast.Format(format))
	},
}

func init() {
	runCmd.Flags().Int("max-steps", 0, "Abort after this many executed statements (0 = unlimited)")
	runCmd.Flags().Duration("fetch-timeout", stdlib.DefaultFetchTimeout, "Timeout of a single holma request")

	astCmd.Flags().String("format", string(ast.FormatYAML), "Output format: yaml or json")
}

func runProgram(cmd *cobra.Command, args []string) error {
	src, err := readSource(args[0])
	if err != nil {
		return err
	}
	maxSteps, _ := cmd.Flags().GetInt("max-steps")
	fetchTimeout, _ := cmd.Flags().GetDuration("fetch-timeout")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	in := runtime.New(
		runtime.WithStdout(cmd.OutOrStdout()),
		runtime.WithStderr(cmd.ErrOrStderr()),
		runtime.WithLogger(logger),
		runtime.WithMaxSteps(maxSteps),
		runtime.WithFetcher(stdlib.NewHTTPFetcher(fetchTimeout)),
	)

	start := time.Now()
	res, err := in.Run(ctx, src)
	if res != nil {
		logger.Debug("program finished",
			"steps", res.Steps,
			"diagnostics", len(res.Diagnostics),
			"duration", time.Since(start))
	}
	if types.IsKind(err, types.KindStepLimit) {
		// Already reported on stderr like any other runtime error.
		return exitError{code: 1}
	}
	return err
}
