// Package integration runs complete oida programs through the interpreter
// and through a live API server.
package integration

import (
	"bytes"
	"context"
	"flag"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lemonberrylabs/oida/pkg/runtime"
)

var update = flag.Bool("update", false, "rewrite the .out and .err golden files")

// program is one testdata/*.oida file with its expected output.
type program struct {
	Name   string
	Source string
	Stdout string
	Stderr string
}

func loadPrograms(t *testing.T) []program {
	t.Helper()
	paths, err := filepath.Glob(filepath.Join("testdata", "*.oida"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(paths) == 0 {
		t.Fatal("no programs in testdata")
	}

	var programs []program
	for _, path := range paths {
		src, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to load program %s: %v", path, err)
		}
		base := strings.TrimSuffix(path, ".oida")
		programs = append(programs, program{
			Name:   filepath.Base(base),
			Source: string(src),
			Stdout: readOptional(t, base+".out"),
			Stderr: readOptional(t, base+".err"),
		})
	}
	return programs
}

func readOptional(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return ""
	}
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}

func writeGolden(t *testing.T, path, content string) {
	t.Helper()
	if content == "" {
		os.Remove(path)
		return
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestGoldenPrograms(t *testing.T) {
	for _, p := range loadPrograms(t) {
		t.Run(p.Name, func(t *testing.T) {
			var out, errOut bytes.Buffer
			in := runtime.New(
				runtime.WithStdout(&out),
				runtime.WithStderr(&errOut),
				runtime.WithRand(rand.New(rand.NewPCG(1, 2))),
				runtime.WithMaxSteps(100_000),
			)
			if _, err := in.Run(context.Background(), p.Source); err != nil {
				t.Fatalf("run error: %v", err)
			}

			if *update {
				base := filepath.Join("testdata", p.Name)
				writeGolden(t, base+".out", out.String())
				writeGolden(t, base+".err", errOut.String())
				return
			}
			if out.String() != p.Stdout {
				t.Errorf("stdout mismatch\ngot:\n%s\nwant:\n%s", out.String(), p.Stdout)
			}
			if errOut.String() != p.Stderr {
				t.Errorf("stderr mismatch\ngot:\n%s\nwant:\n%s", errOut.String(), p.Stderr)
			}
		})
	}
}

// TestGoldenProgramsInOneSession runs every program in a single session, as
// a REPL user pasting them one after another would.
func TestGoldenProgramsInOneSession(t *testing.T) {
	var out bytes.Buffer
	session := runtime.New(runtime.WithStdout(&out)).Session()

	for _, p := range loadPrograms(t) {
		out.Reset()
		if _, err := session.Eval(context.Background(), p.Source); err != nil {
			t.Fatalf("%s: run error: %v", p.Name, err)
		}
		if out.String() != p.Stdout {
			t.Errorf("%s: stdout mismatch\ngot:\n%s\nwant:\n%s", p.Name, out.String(), p.Stdout)
		}
	}
}
