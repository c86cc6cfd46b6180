package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/lemonberrylabs/oida/pkg/ast"
	"github.com/lemonberrylabs/oida/pkg/parser"
	"github.com/lemonberrylabs/oida/pkg/stdlib"
	"github.com/lemonberrylabs/oida/pkg/types"
)

const (
	// DefaultMaxCallDepth bounds nested user function calls.
	DefaultMaxCallDepth = 1000
)

// Result describes a finished run.
type Result struct {
	// Diagnostics holds one message per statement that failed at runtime.
	Diagnostics []string
	// Errors holds the errors behind Diagnostics, in the same order.
	Errors []error
	// Returned is true when a top-level speicher ended the program.
	Returned bool
	// Value is the value of the last evaluated top-level statement, or the
	// value of the top-level speicher.
	Value types.Value
	// Steps is the number of statements executed.
	Steps int
}

// Interpreter runs oida programs.
type Interpreter struct {
	stdout       io.Writer
	stderr       io.Writer
	logger       *slog.Logger
	fetcher      stdlib.Fetcher
	rng          *rand.Rand
	maxSteps     int
	maxCallDepth int
	methods      *stdlib.Registry
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithStdout sets the writer that oida.sag prints to.
func WithStdout(w io.Writer) Option {
	return func(in *Interpreter) { in.stdout = w }
}

// WithStderr sets the writer that runtime diagnostics go to.
func WithStderr(w io.Writer) Option {
	return func(in *Interpreter) { in.stderr = w }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(in *Interpreter) { in.logger = l }
}

// WithFetcher sets the fetcher used by holma.
func WithFetcher(f stdlib.Fetcher) Option {
	return func(in *Interpreter) { in.fetcher = f }
}

// WithRand sets the random source used by nimmIrgendwas.
func WithRand(r *rand.Rand) Option {
	return func(in *Interpreter) { in.rng = r }
}

// WithMaxSteps limits the number of executed statements per run. Zero
// means unlimited.
func WithMaxSteps(n int) Option {
	return func(in *Interpreter) { in.maxSteps = n }
}

// WithMaxCallDepth limits nested function calls.
func WithMaxCallDepth(n int) Option {
	return func(in *Interpreter) { in.maxCallDepth = n }
}

// New creates an Interpreter. Output is discarded unless a writer is set.
func New(opts ...Option) *Interpreter {
	in := &Interpreter{
		stdout:       io.Discard,
		stderr:       io.Discard,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		fetcher:      stdlib.NewHTTPFetcher(stdlib.DefaultFetchTimeout),
		maxCallDepth: DefaultMaxCallDepth,
		methods:      stdlib.NewRegistry(),
	}
	for _, opt := range opts {
		opt(in)
	}
	if in.rng == nil {
		seed := uint64(time.Now().UnixNano())
		in.rng = rand.New(rand.NewPCG(seed, seed>>7))
	}
	if in.fetcher == nil {
		in.fetcher = stdlib.DisabledFetcher
	}
	if in.maxCallDepth <= 0 {
		in.maxCallDepth = DefaultMaxCallDepth
	}
	return in
}

func (in *Interpreter) newEvaluator(ctx context.Context) *evaluator {
	return &evaluator{
		ctx:      ctx,
		out:      in.stdout,
		logger:   in.logger,
		methods:  in.methods,
		fetcher:  in.fetcher,
		rng:      in.rng,
		maxSteps: in.maxSteps,
		maxDepth: in.maxCallDepth,
	}
}

// Run parses and executes source in a fresh root environment. A syntax error
// aborts before anything is evaluated and is returned as the error.
func (in *Interpreter) Run(ctx context.Context, source string) (*Result, error) {
	return in.Session().Eval(ctx, source)
}

// Evaluate evaluates a single node in env and returns its value. A
// speicher node yields the returned value.
func (in *Interpreter) Evaluate(ctx context.Context, node ast.Node, env *Environment) (types.Value, error) {
	return in.newEvaluator(ctx).eval(node, env)
}

// runProgram executes top-level statements one by one. A runtime error ends
// only the failing statement; the error is reported and the next statement
// runs. A step limit or a cancelled context stops the program.
func (in *Interpreter) runProgram(ev *evaluator, program []ast.Node, env *Environment) (*Result, error) {
	res := &Result{Value: types.Null}
	defer func() { res.Steps = ev.steps }()

	for _, stmt := range program {
		if err := ev.ctx.Err(); err != nil {
			return res, fmt.Errorf("run cancelled: %w", err)
		}
		step, err := ev.exec(stmt, env)
		if err != nil {
			if ctxErr := ev.ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				return res, fmt.Errorf("run cancelled: %w", err)
			}
			in.report(res, stmt, err)
			if types.IsKind(err, types.KindStepLimit) {
				return res, err
			}
			continue
		}
		res.Value = step.Value
		if step.Flow == FlowReturn {
			res.Returned = true
			break
		}
	}
	return res, nil
}

func (in *Interpreter) report(res *Result, stmt ast.Node, err error) {
	res.Diagnostics = append(res.Diagnostics, err.Error())
	res.Errors = append(res.Errors, err)
	fmt.Fprintf(in.stderr, "Fehler: %s\n", err.Error())

	in.logger.Warn("statement failed",
		"node", string(stmt.Kind()),
		"kind", string(types.KindOf(err)),
		"error", err)
}

// Session keeps one root environment alive across several Eval calls.
type Session struct {
	in  *Interpreter
	env *Environment
}

// Session starts a new session with an empty root environment.
func (in *Interpreter) Session() *Session {
	return &Session{in: in, env: NewEnvironment()}
}

// Env returns the session's root environment.
func (s *Session) Env() *Environment {
	return s.env
}

// Eval parses and runs source against the session environment. Step limits
// apply per call.
func (s *Session) Eval(ctx context.Context, source string) (*Result, error) {
	program, err := parser.ParseSource(source)
	if err != nil {
		s.in.logger.Debug("parse failed", "error", err)
		return nil, err
	}
	return s.in.runProgram(s.in.newEvaluator(ctx), program, s.env)
}
