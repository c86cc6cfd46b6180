package ast

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/lemonberrylabs/oida/pkg/types"
	"gopkg.in/yaml.v3"
)

// Format selects the output encoding of Dump.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Dump writes a program as a tree of mappings, one per node, each carrying
// a "kind" discriminator followed by the node's fields.
func Dump(w io.Writer, program []Node, format Format) error {
	root := seq(program)
	switch format {
	case FormatYAML, "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(root); err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		return enc.Close()
	case FormatJSON:
		var buf bytes.Buffer
		if err := writeJSON(&buf, root); err != nil {
			return err
		}
		var out bytes.Buffer
		if err := json.Indent(&out, buf.Bytes(), "", "  "); err != nil {
			return fmt.Errorf("encoding json: %w", err)
		}
		out.WriteByte('\n')
		_, err := out.WriteTo(w)
		return err
	default:
		return fmt.Errorf("unknown dump format %q", format)
	}
}

// Tree converts a single node into its yaml.Node representation.
func Tree(n Node) *yaml.Node {
	if n == nil {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	}
	m := mapping("kind", str(string(n.Kind())))
	switch n := n.(type) {
	case *Literal:
		add(m, "value", literal(n.Value))
	case *Identifier:
		add(m, "name", str(n.Name))
	case *VarDecl:
		add(m, "name", str(n.Name), "init", Tree(n.Init))
	case *Assign:
		add(m, "name", str(n.Name), "value", Tree(n.Value))
	case *ArrayLiteral:
		add(m, "elements", seq(n.Elements))
	case *AssocLiteral:
		add(m, "keys", seq(n.Keys), "values", seq(n.Values))
	case *IndexAccess:
		add(m, "array", Tree(n.Array), "index", Tree(n.Index))
	case *IndexAssign:
		add(m, "name", str(n.Name), "index", Tree(n.Index), "value", Tree(n.Value))
	case *PropertyAccess:
		add(m, "object", Tree(n.Object), "property", str(n.Property))
		if n.HasCall {
			add(m, "arg", Tree(n.Arg))
		}
	case *BinaryArith:
		add(m, "left", Tree(n.Left), "op", str(n.Op), "right", Tree(n.Right))
	case *UnaryArith:
		add(m, "op", str(n.Op), "operand", Tree(n.Operand))
	case *Comparison:
		add(m, "left", Tree(n.Left), "op", str(n.Op), "right", Tree(n.Right))
	case *LogicalChain:
		ops := &yaml.Node{Kind: yaml.SequenceNode}
		for _, op := range n.Ops {
			ops.Content = append(ops.Content, str(op))
		}
		add(m, "operands", seq(n.Operands), "ops", ops)
	case *If:
		add(m, "cond", Tree(n.Cond), "body", seq(n.Body))
		if n.Else != nil {
			add(m, "else", seq(n.Else))
		}
	case *For:
		add(m, "init", Tree(n.Init), "cond", Tree(n.Cond), "update", Tree(n.Update), "body", seq(n.Body))
	case *While:
		add(m, "cond", Tree(n.Cond), "body", seq(n.Body))
	case *ForEach:
		add(m, "array", Tree(n.Array), "item", str(n.Item), "body", seq(n.Body))
	case *Filter:
		add(m, "array", Tree(n.Array), "item", str(n.Item), "predicate", Tree(n.Predicate))
	case *FuncDef:
		params := &yaml.Node{Kind: yaml.SequenceNode}
		for _, p := range n.Params {
			params.Content = append(params.Content, str(p))
		}
		add(m, "name", str(n.Name), "params", params, "body", seq(n.Body))
	case *FuncCall:
		add(m, "name", str(n.Name), "args", seq(n.Args))
	case *Print:
		add(m, "values", seq(n.Values))
	case *Return:
		if n.Value != nil {
			add(m, "value", Tree(n.Value))
		}
	case *Fetch:
		add(m, "url", Tree(n.URL))
	case *Comment:
		add(m, "text", str(n.Text))
	}
	return m
}

func seq(nodes []Node) *yaml.Node {
	s := &yaml.Node{Kind: yaml.SequenceNode}
	for _, n := range nodes {
		s.Content = append(s.Content, Tree(n))
	}
	return s
}

func mapping(kv ...any) *yaml.Node {
	m := &yaml.Node{Kind: yaml.MappingNode}
	add(m, kv...)
	return m
}

// add appends alternating key/value pairs to a mapping node.
func add(m *yaml.Node, kv ...any) {
	for i := 0; i+1 < len(kv); i += 2 {
		m.Content = append(m.Content, str(kv[i].(string)), kv[i+1].(*yaml.Node))
	}
}

func str(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

func literal(v types.Value) *yaml.Node {
	switch v.Type() {
	case types.TypeBool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(v.AsBool())}
	case types.TypeInt:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: v.String()}
	case types.TypeDouble:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: v.String()}
	case types.TypeString:
		return str(v.AsString())
	default:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	}
}

// writeJSON renders a yaml.Node tree as compact JSON, keeping mapping order.
func writeJSON(buf *bytes.Buffer, n *yaml.Node) error {
	switch n.Kind {
	case yaml.MappingNode:
		buf.WriteByte('{')
		for i := 0; i+1 < len(n.Content); i += 2 {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, _ := json.Marshal(n.Content[i].Value)
			buf.Write(key)
			buf.WriteByte(':')
			if err := writeJSON(buf, n.Content[i+1]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case yaml.SequenceNode:
		buf.WriteByte('[')
		for i, c := range n.Content {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(buf, c); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case yaml.ScalarNode:
		switch n.Tag {
		case "!!int", "!!float", "!!bool":
			buf.WriteString(n.Value)
		case "!!null":
			buf.WriteString("null")
		default:
			b, err := json.Marshal(n.Value)
			if err != nil {
				return err
			}
			buf.Write(b)
		}
	default:
		return fmt.Errorf("unexpected yaml node kind %d", n.Kind)
	}
	return nil
}
