package runtime

import (
	"testing"

	"github.com/lemonberrylabs/oida/pkg/ast"
	"github.com/lemonberrylabs/oida/pkg/types"
)

func TestEnvironmentDefineAndGet(t *testing.T) {
	env := NewEnvironment()
	env.DefineVariable("x", types.NewInt(42))

	v, err := env.GetVariable("x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v.Equal(types.NewInt(42)) {
		t.Errorf("got %v, want 42", v)
	}
}

func TestEnvironmentChildSeesParent(t *testing.T) {
	parent := NewEnvironment()
	parent.DefineVariable("x", types.NewString("draußen"))
	child := parent.NewChild()

	v, err := child.GetVariable("x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.AsString() != "draußen" {
		t.Errorf("got %q, want %q", v.AsString(), "draußen")
	}
}

func TestEnvironmentDefineIsLocal(t *testing.T) {
	parent := NewEnvironment()
	parent.DefineVariable("x", types.NewInt(1))
	child := parent.NewChild()
	child.DefineVariable("x", types.NewInt(2))

	if v, _ := parent.GetVariable("x"); !v.Equal(types.NewInt(1)) {
		t.Errorf("parent x = %v, want 1", v)
	}
	if v, _ := child.GetVariable("x"); !v.Equal(types.NewInt(2)) {
		t.Errorf("child x = %v, want 2", v)
	}
}

func TestEnvironmentUnknownVariable(t *testing.T) {
	env := NewEnvironment().NewChild()
	_, err := env.GetVariable("nirgends")
	if !types.IsKind(err, types.KindUnknownIdentifier) {
		t.Fatalf("expected UnknownIdentifier, got %v", err)
	}
	if _, ok := env.LookupVariable("nirgends"); ok {
		t.Error("LookupVariable found an undefined name")
	}
}

func TestEnvironmentSeparateNamespaces(t *testing.T) {
	env := NewEnvironment()
	env.DefineVariable("f", types.NewInt(1))
	env.DefineFunction("f", []ast.Node{&ast.Literal{Value: types.NewInt(2)}}, []string{"a"})

	fn, err := env.GetFunction("f")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fn.Params) != 1 || fn.Params[0] != "a" {
		t.Errorf("params = %v, want [a]", fn.Params)
	}
	if v, _ := env.GetVariable("f"); !v.Equal(types.NewInt(1)) {
		t.Errorf("variable f = %v, want 1", v)
	}

	_, err = env.GetFunction("g")
	if !types.IsKind(err, types.KindUnknownIdentifier) {
		t.Errorf("expected UnknownIdentifier, got %v", err)
	}
}

func TestEnvironmentSetParent(t *testing.T) {
	a := NewEnvironment()
	a.DefineVariable("x", types.NewInt(1))
	b := NewEnvironment()
	b.SetParent(a)

	if b.Parent() != a {
		t.Fatal("parent not set")
	}
	if _, err := b.GetVariable("x"); err != nil {
		t.Errorf("lookup through new parent failed: %v", err)
	}
}

func TestEnvironmentSnapshotShadows(t *testing.T) {
	root := NewEnvironment()
	root.DefineVariable("x", types.NewInt(1))
	root.DefineVariable("y", types.NewInt(2))
	child := root.NewChild()
	child.DefineVariable("x", types.NewInt(10))
	child.DefineFunction("f", nil, nil)
	root.DefineFunction("g", nil, nil)

	snap := child.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot has %d entries, want 2", len(snap))
	}
	if !snap["x"].Equal(types.NewInt(10)) {
		t.Errorf("x = %v, want 10", snap["x"])
	}
	names := child.FunctionNames()
	if len(names) != 2 || names[0] != "f" || names[1] != "g" {
		t.Errorf("FunctionNames() = %v, want [f g]", names)
	}
}
