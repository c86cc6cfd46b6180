// Package ast defines the Abstract Syntax Tree of oida programs.
// A program is an ordered list of statement nodes; expressions and
// statements share the Node interface.
package ast

import "github.com/lemonberrylabs/oida/pkg/types"

// NodeKind identifies a node variant.
type NodeKind string

const (
	KindLiteral        NodeKind = "literal"
	KindIdentifier     NodeKind = "identifier"
	KindVarDecl        NodeKind = "variable_declaration"
	KindAssign         NodeKind = "assignment"
	KindArrayLiteral   NodeKind = "array"
	KindAssocLiteral   NodeKind = "associative_array"
	KindIndexAccess    NodeKind = "array_access"
	KindIndexAssign    NodeKind = "array_assignment"
	KindPropertyAccess NodeKind = "property_access"
	KindBinaryArith    NodeKind = "arithmetic"
	KindUnaryArith     NodeKind = "unary_arithmetic"
	KindComparison     NodeKind = "comparison"
	KindLogicalChain   NodeKind = "logical_chain"
	KindIf             NodeKind = "if"
	KindFor            NodeKind = "for"
	KindWhile          NodeKind = "while"
	KindForEach        NodeKind = "foreach"
	KindFilter         NodeKind = "filter"
	KindFuncDef        NodeKind = "function"
	KindFuncCall       NodeKind = "function_call"
	KindPrint          NodeKind = "print"
	KindReturn         NodeKind = "return"
	KindFetch          NodeKind = "fetch"
	KindComment        NodeKind = "comment"
)

// Node is the interface for all AST nodes.
type Node interface {
	Kind() NodeKind
}

// Literal represents a string, number or boolean literal.
type Literal struct {
	Value types.Value
}

// Identifier represents a variable or function reference.
type Identifier struct {
	Name string
}

// VarDecl represents `heast name = init`.
type VarDecl struct {
	Name string
	Init Node
}

// Assign represents `name = value`.
type Assign struct {
	Name  string
	Value Node
}

// ArrayLiteral represents `[e1, e2, ...]`.
type ArrayLiteral struct {
	Elements []Node
}

// AssocLiteral represents `[k1, k2] : [v1, v2]`. Keys and values pair up
// positionally.
type AssocLiteral struct {
	Keys   []Node
	Values []Node
}

// IndexAccess represents `array[index]`. Array is an Identifier or, for
// chained reads such as `m["k"][0]`, another IndexAccess.
type IndexAccess struct {
	Array Node
	Index Node
}

// IndexAssign represents `name[index] = value`.
type IndexAssign struct {
	Name  string
	Index Node
	Value Node
}

// PropertyAccess represents `object.property`, `object.property()` or
// `object.property(arg)`.
type PropertyAccess struct {
	Object   Node
	Property string
	Arg      Node // nil when no argument was given
	HasCall  bool // parentheses were present
}

// BinaryArith represents `left op right` for plus, minus, mal and dividier.
type BinaryArith struct {
	Left  Node
	Op    string
	Right Node
}

// UnaryArith represents `operand plusplus` or `operand minusminus`.
type UnaryArith struct {
	Op      string
	Operand Node
}

// Comparison represents `left op right` for the comparison operators.
type Comparison struct {
	Left  Node
	Op    string
	Right Node
}

// LogicalChain is a flat sequence of operands joined by und/oda, folded
// left to right. len(Ops) == len(Operands)-1.
type LogicalChain struct {
	Operands []Node
	Ops      []string
}

// If represents `wenn (cond) { body } sonst { else }`.
type If struct {
	Cond Node
	Body []Node
	Else []Node // nil when there is no sonst branch
}

// For represents `aufi (init; cond; update) { body }`.
type For struct {
	Init   Node
	Cond   Node
	Update Node
	Body   []Node
}

// While represents `geh weida (cond) { body }`.
type While struct {
	Cond Node
	Body []Node
}

// ForEach represents `fiaOis (array als item) { body }`.
type ForEach struct {
	Array Node
	Item  string
	Body  []Node
}

// Filter represents `array.nimmAusse(item => { predicate })`.
type Filter struct {
	Array     Node
	Item      string
	Predicate Node
}

// FuncDef represents `hawara name(params) { body }`.
type FuncDef struct {
	Name   string
	Params []string
	Body   []Node
}

// FuncCall represents `name(args)`.
type FuncCall struct {
	Name string
	Args []Node
}

// Print represents `oida.sag(values)`.
type Print struct {
	Values []Node
}

// Return represents `speicher [value]`.
type Return struct {
	Value Node // nil for a bare speicher
}

// Fetch represents `holma(url)`.
type Fetch struct {
	URL Node
}

// Comment represents `kommentar "text"`. It evaluates to nothing.
type Comment struct {
	Text string
}

func (*Literal) Kind() NodeKind        { return KindLiteral }
func (*Identifier) Kind() NodeKind     { return KindIdentifier }
func (*VarDecl) Kind() NodeKind        { return KindVarDecl }
func (*Assign) Kind() NodeKind         { return KindAssign }
func (*ArrayLiteral) Kind() NodeKind   { return KindArrayLiteral }
func (*AssocLiteral) Kind() NodeKind   { return KindAssocLiteral }
func (*IndexAccess) Kind() NodeKind    { return KindIndexAccess }
func (*IndexAssign) Kind() NodeKind    { return KindIndexAssign }
func (*PropertyAccess) Kind() NodeKind { return KindPropertyAccess }
func (*BinaryArith) Kind() NodeKind    { return KindBinaryArith }
func (*UnaryArith) Kind() NodeKind     { return KindUnaryArith }
func (*Comparison) Kind() NodeKind     { return KindComparison }
func (*LogicalChain) Kind() NodeKind   { return KindLogicalChain }
func (*If) Kind() NodeKind             { return KindIf }
func (*For) Kind() NodeKind            { return KindFor }
func (*While) Kind() NodeKind          { return KindWhile }
func (*ForEach) Kind() NodeKind        { return KindForEach }
func (*Filter) Kind() NodeKind         { return KindFilter }
func (*FuncDef) Kind() NodeKind        { return KindFuncDef }
func (*FuncCall) Kind() NodeKind       { return KindFuncCall }
func (*Print) Kind() NodeKind          { return KindPrint }
func (*Return) Kind() NodeKind         { return KindReturn }
func (*Fetch) Kind() NodeKind          { return KindFetch }
func (*Comment) Kind() NodeKind        { return KindComment }
