package runtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"

	"github.com/lemonberrylabs/oida/pkg/ast"
	"github.com/lemonberrylabs/oida/pkg/stdlib"
	"github.com/lemonberrylabs/oida/pkg/types"
)

// FlowControl represents special flow control signals during execution.
type FlowControl int

const (
	FlowNone   FlowControl = iota
	FlowReturn             // speicher: unwind to the enclosing call
)

// StepResult is the result of executing a single statement.
type StepResult struct {
	Flow  FlowControl
	Value types.Value
}

// evaluator walks the AST. One evaluator serves one run or session; it is
// not safe for concurrent use.
type evaluator struct {
	ctx      context.Context
	out      io.Writer
	logger   *slog.Logger
	methods  *stdlib.Registry
	fetcher  stdlib.Fetcher
	rng      *rand.Rand
	maxSteps int
	maxDepth int

	steps int
	depth int
}

// execBlock runs statements in order and yields the last statement's value,
// or the value of a speicher reached inside them.
func (e *evaluator) execBlock(stmts []ast.Node, env *Environment) (StepResult, error) {
	last := types.Null
	for _, stmt := range stmts {
		res, err := e.exec(stmt, env)
		if err != nil {
			return StepResult{}, err
		}
		if res.Flow == FlowReturn {
			return res, nil
		}
		last = res.Value
	}
	return StepResult{Flow: FlowNone, Value: last}, nil
}

// exec runs one statement. Control-flow statements are handled here; all
// other nodes are evaluated as expressions.
func (e *evaluator) exec(node ast.Node, env *Environment) (StepResult, error) {
	e.steps++
	if e.maxSteps > 0 && e.steps > e.maxSteps {
		return StepResult{}, types.NewStepLimitError(e.maxSteps)
	}
	if err := e.ctx.Err(); err != nil {
		return StepResult{}, err
	}

	switch n := node.(type) {
	case *ast.Return:
		v := types.Null
		if n.Value != nil {
			var err error
			if v, err = e.eval(n.Value, env); err != nil {
				return StepResult{}, err
			}
		}
		return StepResult{Flow: FlowReturn, Value: v}, nil
	case *ast.If:
		return e.execIf(n, env)
	case *ast.While:
		return e.execWhile(n, env)
	case *ast.For:
		return e.execFor(n, env)
	case *ast.ForEach:
		return e.execForEach(n, env)
	default:
		v, err := e.eval(node, env)
		if err != nil {
			return StepResult{}, err
		}
		return StepResult{Value: v}, nil
	}
}

func (e *evaluator) execIf(n *ast.If, env *Environment) (StepResult, error) {
	ok, err := e.condition(n.Cond, env)
	if err != nil {
		return StepResult{}, err
	}
	if ok {
		return e.execBlock(n.Body, env)
	}
	if n.Else != nil {
		return e.execBlock(n.Else, env)
	}
	return StepResult{Value: types.Null}, nil
}

func (e *evaluator) execWhile(n *ast.While, env *Environment) (StepResult, error) {
	for {
		ok, err := e.condition(n.Cond, env)
		if err != nil {
			return StepResult{}, err
		}
		if !ok {
			return StepResult{Value: types.Null}, nil
		}
		res, err := e.execBlock(n.Body, env)
		if err != nil || res.Flow == FlowReturn {
			return res, err
		}
	}
}

func (e *evaluator) execFor(n *ast.For, env *Environment) (StepResult, error) {
	if _, err := e.eval(n.Init, env); err != nil {
		return StepResult{}, err
	}
	for {
		ok, err := e.condition(n.Cond, env)
		if err != nil {
			return StepResult{}, err
		}
		if !ok {
			return StepResult{Value: types.Null}, nil
		}
		res, err := e.execBlock(n.Body, env)
		if err != nil || res.Flow == FlowReturn {
			return res, err
		}
		if _, err := e.eval(n.Update, env); err != nil {
			return StepResult{}, err
		}
	}
}

func (e *evaluator) execForEach(n *ast.ForEach, env *Environment) (StepResult, error) {
	coll, err := e.eval(n.Array, env)
	if err != nil {
		return StepResult{}, err
	}
	if !coll.IsCollection() {
		return StepResult{}, types.NewTypeError("fiaOis braucht an Array, ned %s", coll.Type())
	}
	for _, item := range coll.Elements() {
		env.DefineVariable(n.Item, item.Clone())
		res, err := e.execBlock(n.Body, env)
		if err != nil || res.Flow == FlowReturn {
			return res, err
		}
	}
	return StepResult{Value: types.Null}, nil
}

// condition evaluates a condition form: a comparison and a logical chain
// yield booleans, any other expression is tested for truthiness.
func (e *evaluator) condition(node ast.Node, env *Environment) (bool, error) {
	v, err := e.eval(node, env)
	if err != nil {
		return false, err
	}
	return v.Truthy(), nil
}

// eval evaluates an expression node.
func (e *evaluator) eval(node ast.Node, env *Environment) (types.Value, error) {
	switch n := node.(type) {
	case *ast.Literal:
		return n.Value, nil
	case *ast.Identifier:
		return e.evalIdentifier(n, env)
	case *ast.VarDecl:
		return e.evalDeclaration(n, env)
	case *ast.Assign:
		v, err := e.eval(n.Value, env)
		if err != nil {
			return types.Null, err
		}
		env.DefineVariable(n.Name, v)
		return v, nil
	case *ast.ArrayLiteral:
		return e.evalArray(n, env)
	case *ast.AssocLiteral:
		v, _, err := e.evalAssoc(n, env)
		return v, err
	case *ast.IndexAccess:
		return e.evalIndex(n, env)
	case *ast.IndexAssign:
		return e.evalIndexAssign(n, env)
	case *ast.PropertyAccess:
		return e.evalProperty(n, env)
	case *ast.Filter:
		return e.evalFilter(n, env)
	case *ast.BinaryArith:
		return e.evalBinary(n, env)
	case *ast.UnaryArith:
		return e.evalUnary(n, env)
	case *ast.Comparison:
		return e.evalComparison(n, env)
	case *ast.LogicalChain:
		return e.evalLogical(n, env)
	case *ast.FuncDef:
		env.DefineFunction(n.Name, n.Body, n.Params)
		return types.Null, nil
	case *ast.FuncCall:
		return e.evalCall(n, env)
	case *ast.Print:
		return e.evalPrint(n, env)
	case *ast.Fetch:
		return e.evalFetch(n, env)
	case *ast.Comment:
		return types.Null, nil
	case *ast.If, *ast.While, *ast.For, *ast.ForEach, *ast.Return:
		res, err := e.exec(node, env)
		return res.Value, err
	case nil:
		return types.Null, types.NewUnknownNodeError("nil")
	default:
		return types.Null, types.NewUnknownNodeError(string(node.Kind()))
	}
}

// evalIdentifier resolves a name as a variable first, then as a function.
func (e *evaluator) evalIdentifier(n *ast.Identifier, env *Environment) (types.Value, error) {
	if v, ok := env.LookupVariable(n.Name); ok {
		return v, nil
	}
	if _, ok := env.LookupFunction(n.Name); ok {
		return types.NewFunc(n.Name), nil
	}
	return types.Null, types.NewUnknownIdentifierError(n.Name)
}

func (e *evaluator) evalDeclaration(n *ast.VarDecl, env *Environment) (types.Value, error) {
	if assoc, ok := n.Init.(*ast.AssocLiteral); ok {
		v, complete, err := e.evalAssoc(assoc, env)
		if err != nil {
			return types.Null, err
		}
		if !complete {
			e.logger.Debug("associative literal with mismatched keys and values, no binding",
				"name", n.Name, "keys", len(assoc.Keys), "values", len(assoc.Values))
			return types.Null, nil
		}
		env.DefineVariable(n.Name, v)
		return v, nil
	}
	v, err := e.eval(n.Init, env)
	if err != nil {
		return types.Null, err
	}
	env.DefineVariable(n.Name, v)
	return v, nil
}

func (e *evaluator) evalArray(n *ast.ArrayLiteral, env *Environment) (types.Value, error) {
	items := make([]types.Value, len(n.Elements))
	for i, el := range n.Elements {
		v, err := e.eval(el, env)
		if err != nil {
			return types.Null, err
		}
		items[i] = v.Clone()
	}
	return types.NewList(items), nil
}

// evalAssoc pairs keys with values positionally. When the counts differ the
// literal has no value and complete is false.
func (e *evaluator) evalAssoc(n *ast.AssocLiteral, env *Environment) (v types.Value, complete bool, err error) {
	if len(n.Keys) != len(n.Values) {
		return types.Null, false, nil
	}
	m := types.NewOrderedMap()
	for i := range n.Keys {
		k, err := e.eval(n.Keys[i], env)
		if err != nil {
			return types.Null, false, err
		}
		key, ok := types.MapKey(k)
		if !ok {
			return types.Null, false, types.NewTypeError("%s taugt ned als Schlüssel", k.Type())
		}
		val, err := e.eval(n.Values[i], env)
		if err != nil {
			return types.Null, false, err
		}
		m.Set(key, val.Clone())
	}
	return types.NewMap(m), true, nil
}

func (e *evaluator) evalIndex(n *ast.IndexAccess, env *Environment) (types.Value, error) {
	coll, err := e.eval(n.Array, env)
	if err != nil {
		return types.Null, err
	}
	idx, err := e.eval(n.Index, env)
	if err != nil {
		return types.Null, err
	}
	switch coll.Type() {
	case types.TypeList:
		items := coll.AsList()
		i, err := listIndex(idx, len(items))
		if err != nil {
			return types.Null, err
		}
		return items[i], nil
	case types.TypeMap:
		key, ok := types.MapKey(idx)
		if !ok {
			return types.Null, types.NewTypeError("%s taugt ned als Schlüssel", idx.Type())
		}
		v, found := coll.AsMap().Get(key)
		if !found {
			return types.Null, types.NewIndexError("Schlüssel %q gibt's ned", key)
		}
		return v, nil
	case types.TypeString:
		runes := []rune(coll.AsString())
		i, err := listIndex(idx, len(runes))
		if err != nil {
			return types.Null, err
		}
		return types.NewString(string(runes[i])), nil
	default:
		return types.Null, types.NewTypeError("%s kann ma ned indizieren", coll.Type())
	}
}

// listIndex validates idx as a position in a sequence of length n.
func listIndex(idx types.Value, n int) (int, error) {
	if idx.Type() != types.TypeInt {
		return 0, types.NewTypeError("Index muss a ganze Zahl sein, ned %s", idx.Type())
	}
	i := idx.AsInt()
	if i < 0 || i >= int64(n) {
		return 0, types.NewIndexError("Index %d außerhalb von 0..%d", i, n-1)
	}
	return int(i), nil
}

// evalIndexAssign reads the variable, updates a copy and stores the copy
// back under the same name. Assigning at index len appends.
func (e *evaluator) evalIndexAssign(n *ast.IndexAssign, env *Environment) (types.Value, error) {
	current, err := env.GetVariable(n.Name)
	if err != nil {
		return types.Null, err
	}
	idx, err := e.eval(n.Index, env)
	if err != nil {
		return types.Null, err
	}
	v, err := e.eval(n.Value, env)
	if err != nil {
		return types.Null, err
	}
	v = v.Clone()

	var updated types.Value
	switch current.Type() {
	case types.TypeList:
		items := current.Clone().AsList()
		if idx.Type() != types.TypeInt {
			return types.Null, types.NewTypeError("Index muss a ganze Zahl sein, ned %s", idx.Type())
		}
		i := idx.AsInt()
		switch {
		case i >= 0 && i < int64(len(items)):
			items[i] = v
		case i == int64(len(items)):
			items = append(items, v)
		default:
			return types.Null, types.NewIndexError("Index %d außerhalb von 0..%d", i, len(items))
		}
		updated = types.NewList(items)
	case types.TypeMap:
		key, ok := types.MapKey(idx)
		if !ok {
			return types.Null, types.NewTypeError("%s taugt ned als Schlüssel", idx.Type())
		}
		m := current.Clone().AsMap()
		m.Set(key, v)
		updated = types.NewMap(m)
	default:
		return types.Null, types.NewTypeError("%s is ka Array", n.Name)
	}
	env.DefineVariable(n.Name, updated)
	return v, nil
}

func (e *evaluator) evalProperty(n *ast.PropertyAccess, env *Environment) (types.Value, error) {
	method, ok := e.methods.Lookup(n.Property)
	if !ok {
		return types.Null, types.NewUnknownPropertyError(n.Property)
	}
	receiver, err := e.eval(n.Object, env)
	if err != nil {
		return types.Null, err
	}
	call := &stdlib.Call{Name: n.Property, Receiver: receiver, Rand: e.rng}
	if n.Arg != nil {
		if call.Arg, err = e.eval(n.Arg, env); err != nil {
			return types.Null, err
		}
		call.HasArg = true
	}

	var target *ast.Identifier
	if method.StoreBack {
		if target, ok = n.Object.(*ast.Identifier); !ok {
			return types.Null, types.NewTypeError(".%s braucht a Variable", n.Property)
		}
	}
	_, result, err := e.methods.Invoke(call)
	if err != nil {
		return types.Null, err
	}
	if target != nil {
		env.DefineVariable(target.Name, result)
		return types.Null, nil
	}
	return result, nil
}

// evalFilter keeps the elements for which the predicate holds. The item name
// is bound in the current environment; the source is left untouched.
func (e *evaluator) evalFilter(n *ast.Filter, env *Environment) (types.Value, error) {
	coll, err := e.eval(n.Array, env)
	if err != nil {
		return types.Null, err
	}
	keep := func(item types.Value) (bool, error) {
		env.DefineVariable(n.Item, item.Clone())
		return e.condition(n.Predicate, env)
	}
	switch coll.Type() {
	case types.TypeList:
		out := []types.Value{}
		for _, item := range coll.AsList() {
			ok, err := keep(item)
			if err != nil {
				return types.Null, err
			}
			if ok {
				out = append(out, item.Clone())
			}
		}
		return types.NewList(out), nil
	case types.TypeMap:
		src := coll.AsMap()
		out := types.NewOrderedMap()
		for _, k := range src.Keys() {
			item, _ := src.Get(k)
			ok, err := keep(item)
			if err != nil {
				return types.Null, err
			}
			if ok {
				out.Set(k, item.Clone())
			}
		}
		return types.NewMap(out), nil
	default:
		return types.Null, types.NewTypeError("nimmAusse braucht an Array, ned %s", coll.Type())
	}
}

func (e *evaluator) evalBinary(n *ast.BinaryArith, env *Environment) (types.Value, error) {
	left, err := e.eval(n.Left, env)
	if err != nil {
		return types.Null, err
	}
	right, err := e.eval(n.Right, env)
	if err != nil {
		return types.Null, err
	}
	return Arithmetic(n.Op, left, right)
}

// Arithmetic applies a binary arithmetic operator. plus concatenates when
// either side is a string. Integer plus, minus and mal stay integers;
// dividier yields an integer only when the division is exact.
func Arithmetic(op string, left, right types.Value) (types.Value, error) {
	if op == "plus" && (left.Type() == types.TypeString || right.Type() == types.TypeString) {
		return types.NewString(left.String() + right.String()), nil
	}
	if !left.IsNumber() || !right.IsNumber() {
		return types.Null, types.NewTypeError("'%s' geht ned mit %s und %s", op, left.Type(), right.Type())
	}
	bothInt := left.Type() == types.TypeInt && right.Type() == types.TypeInt
	switch op {
	case "plus":
		if bothInt {
			return types.NewInt(left.AsInt() + right.AsInt()), nil
		}
		return numeric(left, right, func(a, b float64) float64 { return a + b }), nil
	case "minus":
		if bothInt {
			return types.NewInt(left.AsInt() - right.AsInt()), nil
		}
		return numeric(left, right, func(a, b float64) float64 { return a - b }), nil
	case "mal":
		if bothInt {
			return types.NewInt(left.AsInt() * right.AsInt()), nil
		}
		return numeric(left, right, func(a, b float64) float64 { return a * b }), nil
	case "dividier":
		if r, _ := right.AsNumber(); r == 0 {
			return types.Null, types.NewZeroDivisionError()
		}
		if bothInt && left.AsInt()%right.AsInt() == 0 {
			return types.NewInt(left.AsInt() / right.AsInt()), nil
		}
		return numeric(left, right, func(a, b float64) float64 { return a / b }), nil
	default:
		return types.Null, types.NewUnknownOperatorError(op)
	}
}

func numeric(left, right types.Value, f func(a, b float64) float64) types.Value {
	a, _ := left.AsNumber()
	b, _ := right.AsNumber()
	return types.NewDouble(f(a, b))
}

// evalUnary applies plusplus or minusminus. On an identifier the new value
// is written back to the variable.
func (e *evaluator) evalUnary(n *ast.UnaryArith, env *Environment) (types.Value, error) {
	v, err := e.eval(n.Operand, env)
	if err != nil {
		return types.Null, err
	}
	var delta int64
	switch n.Op {
	case "plusplus":
		delta = 1
	case "minusminus":
		delta = -1
	default:
		return types.Null, types.NewUnknownOperatorError(n.Op)
	}
	var result types.Value
	switch v.Type() {
	case types.TypeInt:
		result = types.NewInt(v.AsInt() + delta)
	case types.TypeDouble:
		result = types.NewDouble(v.AsDouble() + float64(delta))
	default:
		return types.Null, types.NewTypeError("'%s' geht ned mit %s", n.Op, v.Type())
	}
	if id, ok := n.Operand.(*ast.Identifier); ok {
		env.DefineVariable(id.Name, result)
	}
	return result, nil
}

func (e *evaluator) evalComparison(n *ast.Comparison, env *Environment) (types.Value, error) {
	left, err := e.eval(n.Left, env)
	if err != nil {
		return types.Null, err
	}
	right, err := e.eval(n.Right, env)
	if err != nil {
		return types.Null, err
	}
	ok, err := Compare(n.Op, left, right)
	if err != nil {
		return types.Null, err
	}
	return types.NewBool(ok), nil
}

// Compare applies a comparison operator. gleich and isned use the one
// equality of Value.Equal; ordering is defined for numbers and for strings.
func Compare(op string, left, right types.Value) (bool, error) {
	switch op {
	case "gleich":
		return left.Equal(right), nil
	case "isned":
		return !left.Equal(right), nil
	}
	c, ok := types.Compare(left, right)
	switch op {
	case "klana", "größer", "klanaglei", "größerglei", "gößerglei":
		if !ok {
			return false, types.NewTypeError("%s und %s kann ma ned mit '%s' vergleichen", left.Type(), right.Type(), op)
		}
	default:
		return false, types.NewUnknownOperatorError(op)
	}
	switch op {
	case "klana":
		return c < 0, nil
	case "größer":
		return c > 0, nil
	case "klanaglei":
		return c <= 0, nil
	default:
		return c >= 0, nil
	}
}

// evalLogical evaluates every operand, then folds strictly left to right
// with no precedence between und and oda.
func (e *evaluator) evalLogical(n *ast.LogicalChain, env *Environment) (types.Value, error) {
	results := make([]bool, len(n.Operands))
	for i, op := range n.Operands {
		ok, err := e.condition(op, env)
		if err != nil {
			return types.Null, err
		}
		results[i] = ok
	}
	acc := results[0]
	for i, op := range n.Ops {
		switch op {
		case "und":
			acc = acc && results[i+1]
		case "oda":
			acc = acc || results[i+1]
		default:
			return types.Null, types.NewUnknownOperatorError(op)
		}
	}
	return types.NewBool(acc), nil
}

// evalCall invokes a user function. Arguments are evaluated in the caller's
// environment and the body runs in a child of the caller's environment.
func (e *evaluator) evalCall(n *ast.FuncCall, env *Environment) (types.Value, error) {
	fn, err := env.GetFunction(n.Name)
	if err != nil {
		return types.Null, err
	}
	args := make([]types.Value, len(n.Args))
	for i, a := range n.Args {
		v, err := e.eval(a, env)
		if err != nil {
			return types.Null, err
		}
		args[i] = v.Clone()
	}
	if len(args) != len(fn.Params) {
		return types.Null, types.NewArityError(fn.Name, len(fn.Params), len(args))
	}
	if e.depth >= e.maxDepth {
		return types.Null, types.NewRecursionError(e.maxDepth)
	}
	e.depth++
	defer func() { e.depth-- }()

	callEnv := env.NewChild()
	for i, p := range fn.Params {
		callEnv.DefineVariable(p, args[i])
	}
	res, err := e.execBlock(fn.Body, callEnv)
	if err != nil {
		return types.Null, err
	}
	return res.Value, nil
}

func (e *evaluator) evalPrint(n *ast.Print, env *Environment) (types.Value, error) {
	vals := make([]types.Value, len(n.Values))
	for i, node := range n.Values {
		v, err := e.eval(node, env)
		if err != nil {
			return types.Null, err
		}
		vals[i] = v
	}
	if _, err := fmt.Fprintln(e.out, types.DisplayJoin(vals)); err != nil {
		return types.Null, fmt.Errorf("writing output: %w", err)
	}
	return types.Null, nil
}

func (e *evaluator) evalFetch(n *ast.Fetch, env *Environment) (types.Value, error) {
	u, err := e.eval(n.URL, env)
	if err != nil {
		return types.Null, err
	}
	if u.Type() != types.TypeString {
		return types.Null, types.NewTypeError("holma braucht a URL als Text, ned %s", u.Type())
	}
	e.logger.Debug("fetching", "url", u.AsString())
	v, err := e.fetcher.Fetch(e.ctx, u.AsString())
	if err != nil {
		e.logger.Warn("fetch failed", "url", u.AsString(), "error", err)
		return types.Null, err
	}
	return v, nil
}
