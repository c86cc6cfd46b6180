package runtime

import (
	"bytes"
	"context"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/lemonberrylabs/oida/pkg/ast"
	"github.com/lemonberrylabs/oida/pkg/parser"
	"github.com/lemonberrylabs/oida/pkg/stdlib"
	"github.com/lemonberrylabs/oida/pkg/types"
)

// runProgram runs source and returns what it printed and the result.
func runProgram(t *testing.T, source string, opts ...Option) (string, *Result) {
	t.Helper()

	var out bytes.Buffer
	opts = append([]Option{
		WithStdout(&out),
		WithRand(rand.New(rand.NewPCG(1, 2))),
		WithFetcher(stdlib.DisabledFetcher),
	}, opts...)
	res, err := New(opts...).Run(context.Background(), source)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	return out.String(), res
}

func errorKinds(res *Result) []types.ErrorKind {
	kinds := make([]types.ErrorKind, len(res.Errors))
	for i, err := range res.Errors {
		kinds[i] = types.KindOf(err)
	}
	return kinds
}

func TestPrograms(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
		errs   []types.ErrorKind
	}{
		{
			name:   "declaration and print",
			source: `heast x = 5; oida.sag(x)`,
			want:   "5\n",
		},
		{
			name:   "print joins with one space",
			source: `oida.sag("a", 1, basst, sichaned)`,
			want:   "a 1 basst sichaned\n",
		},
		{
			name:   "exact division stays integer",
			source: `oida.sag(6 dividier 3)`,
			want:   "2\n",
		},
		{
			name:   "fractional division",
			source: `oida.sag(7 dividier 2)`,
			want:   "3.5\n",
		},
		{
			name:   "arithmetic is right leaning",
			source: `oida.sag(2 mal 3 plus 1)`,
			want:   "8\n",
		},
		{
			name:   "plus concatenates strings",
			source: `heast n = 1; oida.sag("Nummer " plus n)`,
			want:   "Nummer 1\n",
		},
		{
			name:   "division by zero isolates the statement",
			source: `heast x = 1; oida.sag(x dividier 0); oida.sag("weiter")`,
			want:   "weiter\n",
			errs:   []types.ErrorKind{types.KindArithmeticFailure},
		},
		{
			name:   "arrays are values",
			source: `heast a = [1,2,3]; heast b = a; b.ane(4); oida.sag(a); oida.sag(b)`,
			want:   "[1, 2, 3]\n[1, 2, 3, 4]\n",
		},
		{
			name:   "for loop",
			source: `heast i = 0; aufi (i = 0; i klana 3; i plusplus) { oida.sag(i); }`,
			want:   "0\n1\n2\n",
		},
		{
			name:   "while loop",
			source: `heast i = 3; geh weida (i größer 0) { oida.sag(i); i = i minus 1 }`,
			want:   "3\n2\n1\n",
		},
		{
			name:   "filter keeps order and source",
			source: `heast nums = [1,2,3,4,5]; heast big = nums.nimmAusse(n => { n größer 2 }); oida.sag(big); oida.sag(nums)`,
			want:   "[3, 4, 5]\n[1, 2, 3, 4, 5]\n",
		},
		{
			name:   "filter with logical chain",
			source: `heast nums = [1,2,3,4,5]; oida.sag(nums.nimmAusse(n => { n gleich 1 oda n gleich 5 }))`,
			want:   "[1, 5]\n",
		},
		{
			name:   "filter over assoc keeps keys",
			source: `heast m = ["a", "b"] : [1, 5]; oida.sag(m.nimmAusse(v => { v größer 2 }))`,
			want:   "[\"b\"] : [5]\n",
		},
		{
			name:   "foreach",
			source: `fiaOis ([1, 2] als x) { oida.sag(x mal 10) }`,
			want:   "10\n20\n",
		},
		{
			name:   "foreach over assoc iterates values",
			source: `heast m = ["a", "b"] : ["x", "y"]; fiaOis (m als v) { oida.sag(v) }`,
			want:   "x\ny\n",
		},
		{
			name:   "foreach over a number",
			source: `heast n = 3; fiaOis (n als x) { oida.sag(x) }; oida.sag("weiter")`,
			want:   "weiter\n",
			errs:   []types.ErrorKind{types.KindTypeMismatch},
		},
		{
			name:   "explicit return",
			source: `hawara verdoppel(n) { speicher n mal 2 } oida.sag(verdoppel(4))`,
			want:   "8\n",
		},
		{
			name:   "last statement value",
			source: `hawara f(n) { n plus 1 } oida.sag(f(1))`,
			want:   "2\n",
		},
		{
			name:   "arity mismatch",
			source: `hawara f(n) { n } f(); f(1, 2); oida.sag(f(3))`,
			want:   "3\n",
			errs:   []types.ErrorKind{types.KindArityMismatch, types.KindArityMismatch},
		},
		{
			name:   "unknown identifier isolates the statement",
			source: `oida.sag(unbekannt); oida.sag("weiter")`,
			want:   "weiter\n",
			errs:   []types.ErrorKind{types.KindUnknownIdentifier},
		},
		{
			name:   "unknown function",
			source: `gibtsned(1)`,
			errs:   []types.ErrorKind{types.KindUnknownIdentifier},
		},
		{
			name:   "return unwinds loops",
			source: `hawara such(xs) { fiaOis (xs als x) { wenn (x größer 2) { speicher x } } speicher 0 } oida.sag(such([1, 5, 3]), such([1]))`,
			want:   "5 0\n",
		},
		{
			name:   "top level return ends the program",
			source: `oida.sag(1); speicher; oida.sag(2)`,
			want:   "1\n",
		},
		{
			name:   "call sees the caller environment",
			source: `hawara zeig() { oida.sag(y) } hawara aufruf() { heast y = "innen"; zeig() } aufruf()`,
			want:   "innen\n",
		},
		{
			name:   "caller locals are not visible after the call",
			source: `hawara zeig() { oida.sag(y) } hawara aufruf() { heast y = "innen" } aufruf(); zeig()`,
			errs:   []types.ErrorKind{types.KindUnknownIdentifier},
		},
		{
			name:   "parameters do not leak",
			source: `hawara f(a) { a } f(1); oida.sag(a)`,
			errs:   []types.ErrorKind{types.KindUnknownIdentifier},
		},
		{
			name:   "assignment inside a call is local",
			source: `heast x = 1; hawara f() { x = 2 } f(); oida.sag(x)`,
			want:   "1\n",
		},
		{
			name:   "recursion",
			source: `hawara fak(n) { wenn (n klana 2) { speicher 1 } speicher n mal fak(n minus 1) } oida.sag(fak(5))`,
			want:   "120\n",
		},
		{
			name:   "index assignment and append",
			source: `heast xs = [1, 2]; xs[0] = 9; xs[2] = 3; oida.sag(xs); oida.sag(xs[1])`,
			want:   "[9, 2, 3]\n2\n",
		},
		{
			name:   "index out of range",
			source: `heast xs = [1]; xs[5] = 1; oida.sag(xs[3]); oida.sag(xs)`,
			want:   "[1]\n",
			errs:   []types.ErrorKind{types.KindIndexOutOfRange, types.KindIndexOutOfRange},
		},
		{
			name:   "indexing a number",
			source: `heast n = 1; oida.sag(n[0])`,
			errs:   []types.ErrorKind{types.KindTypeMismatch},
		},
		{
			name:   "associative array",
			source: `heast m = ["a", "b"] : [1, 2]; m["c"] = 3; oida.sag(m["b"]); oida.sag(m)`,
			want:   "2\n[\"a\", \"b\", \"c\"] : [1, 2, 3]\n",
		},
		{
			name:   "associative mismatch binds nothing",
			source: `heast m = ["a"] : [1, 2]; oida.sag(m)`,
			errs:   []types.ErrorKind{types.KindUnknownIdentifier},
		},
		{
			name:   "nested structures",
			source: `heast n = [[1, 2], ["x"] : [basst]]; oida.sag(n); oida.sag(n[0][1])`,
			want:   "[[1, 2], [\"x\"] : [basst]]\n2\n",
		},
		{
			name:   "comparisons share one equality",
			source: `oida.sag(1 gleich 1, "1" gleich 1, 1 isned 2, 2 klana 3, "a" klana "b", 3 größerglei 3, 2 klanaglei 1)`,
			want:   "basst sichaned basst basst basst basst sichaned\n",
		},
		{
			name:   "ordering across kinds",
			source: `oida.sag(1 klana "a")`,
			errs:   []types.ErrorKind{types.KindTypeMismatch},
		},
		{
			name:   "logical chain folds left to right",
			source: `oida.sag(basst oda basst und sichaned)`,
			want:   "sichaned\n",
		},
		{
			name:   "condition truthiness",
			source: `wenn ("") { oida.sag(1) } sonst { oida.sag(2) }`,
			want:   "2\n",
		},
		{
			name:   "else if chain",
			source: `heast x = 2; wenn (x gleich 1) { oida.sag("eins") } sonst wenn (x gleich 2) { oida.sag("zwei") } sonst { oida.sag("viel") }`,
			want:   "zwei\n",
		},
		{
			name:   "increment writes back",
			source: `heast i = 1; i plusplus; i plusplus; i minusminus; oida.sag(i)`,
			want:   "2\n",
		},
		{
			name:   "sort stores back",
			source: `heast xs = [3, 1, 2]; xs.ordne; oida.sag(xs)`,
			want:   "[1, 2, 3]\n",
		},
		{
			name:   "sort on mixed kinds",
			source: `heast xs = [3, "a"]; xs.ordne; oida.sag(xs)`,
			want:   "[3, \"a\"]\n",
			errs:   []types.ErrorKind{types.KindTypeMismatch},
		},
		{
			name:   "string methods",
			source: `heast s = "äbc"; oida.sag(s.umfang, s.ausse(1), s.gibts("bc"), s.isText)`,
			want:   "3 bc basst basst\n",
		},
		{
			name:   "conversions",
			source: `heast xs = [1, "a"]; heast s = "42"; oida.sag(xs.zuText); oida.sag(s.zuNumma plus 1)`,
			want:   "1 a\n43\n",
		},
		{
			name:   "property on index access",
			source: `heast m = ["k"] : [[1, 2, 3]]; oida.sag(m["k"].umfang)`,
			want:   "3\n",
		},
		{
			name:   "unknown property",
			source: `heast s = 1; s.wasAnderes`,
			errs:   []types.ErrorKind{types.KindUnknownIdentifier},
		},
		{
			name:   "method arity",
			source: `heast xs = [1]; xs.ane()`,
			errs:   []types.ErrorKind{types.KindArityMismatch},
		},
		{
			name:   "function reference",
			source: `hawara f() { 1 } oida.sag(f)`,
			want:   "<hawara f>\n",
		},
		{
			name:   "variable wins over function",
			source: `hawara f() { 1 } heast f = 2; oida.sag(f, f())`,
			want:   "2 1\n",
		},
		{
			name:   "comments do nothing",
			source: `kommentar "nix zum sagen"; oida.sag("da")`,
			want:   "da\n",
		},
		{
			name:   "fetch disabled",
			source: `heast d = holma("http://example.invalid/"); oida.sag("weiter")`,
			want:   "weiter\n",
			errs:   []types.ErrorKind{types.KindFetchFailure},
		},
		{
			name:   "fetch needs a string",
			source: `holma(1)`,
			errs:   []types.ErrorKind{types.KindTypeMismatch},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, res := runProgram(t, tt.source)
			if got != tt.want {
				t.Errorf("output = %q, want %q", got, tt.want)
			}
			kinds := errorKinds(res)
			if len(kinds) != len(tt.errs) {
				t.Fatalf("errors = %v (%v), want kinds %v", kinds, res.Diagnostics, tt.errs)
			}
			for i := range kinds {
				if kinds[i] != tt.errs[i] {
					t.Errorf("error %d kind = %s, want %s", i, kinds[i], tt.errs[i])
				}
			}
		})
	}
}

func TestDeclaredLiteralIsReturnedByLookup(t *testing.T) {
	literals := []string{`42`, `"text"`, `basst`, `sichaned`, `[1, [2, 3]]`, `["a"] : [[1]]`}
	for _, lit := range literals {
		t.Run(lit, func(t *testing.T) {
			in := New()
			s := in.Session()
			if _, err := s.Eval(context.Background(), "heast x = "+lit); err != nil {
				t.Fatalf("eval error: %v", err)
			}
			want, err := s.Env().GetVariable("x")
			if err != nil {
				t.Fatalf("x not bound: %v", err)
			}
			res, err := s.Eval(context.Background(), "hawara lies() { x } lies()")
			if err != nil {
				t.Fatalf("eval error: %v", err)
			}
			if !res.Value.Equal(want) {
				t.Errorf("nested lookup = %v, want %v", res.Value, want)
			}
		})
	}
}

func TestDisplayRoundTrip(t *testing.T) {
	sources := []string{
		`[1, 2, 3]`,
		`[[1, 2], ["a", "b"], []]`,
		`["name", "tags"] : ["Ferdl", ["a", "b"]]`,
		`[["x"] : [basst], sichaned, "Grüß di"]`,
		`["outer"] : [["inner"] : [[1, [2]]]]`,
		`["C:\temp", "a\\b"]`,
		"[\"a\tb\", \"\\n\"]",
		"[\"C:\\pfad\", \"tab\tkey\"] : [1, \"x\ty\"]",
	}
	for _, src := range sources {
		t.Run(src, func(t *testing.T) {
			var out bytes.Buffer
			s := New(WithStdout(&out)).Session()
			if _, err := s.Eval(context.Background(), "heast orig = "+src+"; oida.sag(orig)"); err != nil {
				t.Fatalf("eval error: %v", err)
			}
			printed := strings.TrimSuffix(out.String(), "\n")
			if _, err := s.Eval(context.Background(), "heast copy = "+printed); err != nil {
				t.Fatalf("re-parse of %q failed: %v", printed, err)
			}
			orig, _ := s.Env().GetVariable("orig")
			cp, err := s.Env().GetVariable("copy")
			if err != nil {
				t.Fatalf("copy not bound after re-parse of %q", printed)
			}
			if !orig.Equal(cp) {
				t.Errorf("round trip changed value: %v -> %v", orig, cp)
			}
		})
	}
}

func TestArithmetic(t *testing.T) {
	tests := []struct {
		op          string
		left, right types.Value
		want        types.Value
		kind        types.ErrorKind
	}{
		{"plus", types.NewInt(2), types.NewInt(3), types.NewInt(5), ""},
		{"minus", types.NewInt(2), types.NewInt(3), types.NewInt(-1), ""},
		{"mal", types.NewInt(4), types.NewDouble(0.5), types.NewDouble(2), ""},
		{"dividier", types.NewInt(9), types.NewInt(3), types.NewInt(3), ""},
		{"dividier", types.NewInt(1), types.NewInt(4), types.NewDouble(0.25), ""},
		{"dividier", types.NewDouble(1), types.NewDouble(0), types.Null, types.KindArithmeticFailure},
		{"plus", types.NewString("a"), types.NewBool(true), types.NewString("abasst"), ""},
		{"minus", types.NewString("a"), types.NewInt(1), types.Null, types.KindTypeMismatch},
		{"hoch", types.NewInt(1), types.NewInt(1), types.Null, types.KindUnknownOperator},
	}
	for _, tt := range tests {
		t.Run(tt.op+" "+tt.left.String()+" "+tt.right.String(), func(t *testing.T) {
			got, err := Arithmetic(tt.op, tt.left, tt.right)
			if tt.kind != "" {
				if !types.IsKind(err, tt.kind) {
					t.Fatalf("expected %s, got %v", tt.kind, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Type() != tt.want.Type() || !got.Equal(tt.want) {
				t.Errorf("got %v (%s), want %v (%s)", got, got.Type(), tt.want, tt.want.Type())
			}
		})
	}
}

type bogusNode struct{}

func (bogusNode) Kind() ast.NodeKind { return "bogus" }

func TestEvaluateUnknownNode(t *testing.T) {
	_, err := New().Evaluate(context.Background(), bogusNode{}, NewEnvironment())
	if !types.IsKind(err, types.KindUnknownNodeKind) {
		t.Fatalf("expected UnknownNodeKind, got %v", err)
	}
}

func TestEvaluateSingleNode(t *testing.T) {
	program, err := parser.ParseSource(`3 plus 4`)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	v, err := New().Evaluate(context.Background(), program[0], NewEnvironment())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v.Equal(types.NewInt(7)) {
		t.Errorf("got %v, want 7", v)
	}
}
