package runtime

import (
	"bytes"
	"context"

	"github.com/lemonberrylabs/oida/pkg/types"
)

// Outcome is a run whose output was captured in memory.
type Outcome struct {
	Output      string
	Diagnostics []string
	Steps       int
	// Value is the value of the last statement that completed, or the
	// value handed to a top-level speicher.
	Value types.Value
	// Err is a syntax error, a step limit or a cancellation. Runtime errors
	// of single statements only appear in Diagnostics.
	Err error
}

// Execute runs source with stdout captured. Hosting surfaces use it so that
// each request gets its own interpreter.
func Execute(ctx context.Context, source string, opts ...Option) Outcome {
	var out bytes.Buffer
	in := New(append(opts[:len(opts):len(opts)], WithStdout(&out))...)
	res, err := in.Run(ctx, source)

	o := Outcome{Err: err}
	if res != nil {
		o.Diagnostics = res.Diagnostics
		o.Steps = res.Steps
		o.Value = res.Value
	}
	o.Output = out.String()
	return o
}
