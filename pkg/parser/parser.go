// Package parser builds an oida AST from a token sequence using ordered-choice
// recursive descent with backtracking.
//
// Every production has the shape func(pos int) (ast.Node, int, error). A nil
// node means "no match": the caller keeps its position and tries the next
// alternative. A non-nil error is a syntax failure and aborts the whole parse.
package parser

import (
	"fmt"
	"strconv"

	"github.com/lemonberrylabs/oida/pkg/ast"
	"github.com/lemonberrylabs/oida/pkg/lexer"
	"github.com/lemonberrylabs/oida/pkg/types"
)

// filterProperty is the property name that turns a property access into a filter.
const filterProperty = "nimmAusse"

// Parser holds the token stream of one program.
type Parser struct {
	tokens []lexer.Token
}

// production is the common signature of every grammar rule.
type production func(pos int) (ast.Node, int, error)

// ParseSource tokenizes and parses source text.
func ParseSource(source string) ([]ast.Node, error) {
	return Parse(lexer.Tokenize(source))
}

// Parse parses a complete program. Tokens left over after the top-level
// code block are a syntax failure.
func Parse(tokens []lexer.Token) ([]ast.Node, error) {
	p := &Parser{tokens: tokens}
	program, pos, err := p.parseBlock(0)
	if err != nil {
		return nil, err
	}
	if pos < len(p.tokens) {
		return nil, p.errorf(pos, "unerwartetes Token %s %q", p.tokens[pos].Kind, p.tokens[pos].Value)
	}
	return program, nil
}

// --- token helpers ---

func (p *Parser) is(pos int, kind lexer.Kind) bool {
	return pos < len(p.tokens) && p.tokens[pos].Kind == kind
}

func (p *Parser) value(pos int) string {
	if pos < len(p.tokens) {
		return p.tokens[pos].Value
	}
	return ""
}

// expect requires a token of the given kind at pos and returns the position after it.
func (p *Parser) expect(pos int, kind lexer.Kind, context string) (int, error) {
	if !p.is(pos, kind) {
		return pos, p.errorf(pos, "%s erwartet %s", context, kind)
	}
	return pos + 1, nil
}

func (p *Parser) errorf(pos int, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if pos < len(p.tokens) {
		return types.NewSyntaxError("Syntaxfehler bei Position %d: %s", p.tokens[pos].Pos, msg)
	}
	return types.NewSyntaxError("Syntaxfehler am Ende: %s", msg)
}

// first tries alternatives in order and returns the first match.
func first(pos int, alternatives ...production) (ast.Node, int, error) {
	for _, alt := range alternatives {
		node, next, err := alt(pos)
		if err != nil {
			return nil, pos, err
		}
		if node != nil {
			return node, next, nil
		}
	}
	return nil, pos, nil
}

// --- blocks and statements ---

// parseBlock parses statements until none matches. Each statement may be
// followed by one semicolon.
func (p *Parser) parseBlock(pos int) ([]ast.Node, int, error) {
	block := []ast.Node{}
	for {
		stmt, next, err := p.parseStatement(pos)
		if err != nil {
			return nil, pos, err
		}
		if stmt == nil {
			return block, pos, nil
		}
		block = append(block, stmt)
		pos = next
		if p.is(pos, lexer.Semicolon) {
			pos++
		}
	}
}

// parseBody parses `{ block }` and rejects an empty block.
func (p *Parser) parseBody(pos int, construct string) ([]ast.Node, int, error) {
	pos, err := p.expect(pos, lexer.LBrace, construct)
	if err != nil {
		return nil, pos, err
	}
	body, pos, err := p.parseBlock(pos)
	if err != nil {
		return nil, pos, err
	}
	if pos, err = p.expect(pos, lexer.RBrace, construct); err != nil {
		return nil, pos, err
	}
	if len(body) == 0 {
		return nil, pos, p.errorf(pos-1, "Körper von %s is leer", construct)
	}
	return body, pos, nil
}

func (p *Parser) parseStatement(pos int) (ast.Node, int, error) {
	return first(pos,
		p.parseIf,
		p.parseFor,
		p.parseWhile,
		p.parseForEach,
		p.parseFuncDef,
		p.parseIndexAssign,
		p.parseVarDecl,
		p.parseAssign,
		p.parseReturn,
		p.parseComment,
		p.parsePrint,
		p.parseExpression,
	)
}

func (p *Parser) parseIf(pos int) (ast.Node, int, error) {
	if !p.is(pos, lexer.If) {
		return nil, pos, nil
	}
	cond, pos, err := p.parseParenCondition(pos+1, "wenn")
	if err != nil {
		return nil, pos, err
	}
	body, pos, err := p.parseBody(pos, "wenn")
	if err != nil {
		return nil, pos, err
	}
	node := &ast.If{Cond: cond, Body: body}
	if !p.is(pos, lexer.Else) {
		return node, pos, nil
	}
	pos++
	if p.is(pos, lexer.If) {
		// sonst wenn chains into a nested if as the else branch.
		nested, next, err := p.parseIf(pos)
		if err != nil {
			return nil, pos, err
		}
		node.Else = []ast.Node{nested}
		return node, next, nil
	}
	node.Else, pos, err = p.parseBody(pos, "sonst")
	if err != nil {
		return nil, pos, err
	}
	return node, pos, nil
}

// parseParenCondition parses `( expression )`.
func (p *Parser) parseParenCondition(pos int, construct string) (ast.Node, int, error) {
	pos, err := p.expect(pos, lexer.LParen, construct)
	if err != nil {
		return nil, pos, err
	}
	cond, pos, err := p.parseExpression(pos)
	if err != nil {
		return nil, pos, err
	}
	if cond == nil {
		return nil, pos, p.errorf(pos, "%s erwartet a Bedingung", construct)
	}
	if pos, err = p.expect(pos, lexer.RParen, construct); err != nil {
		return nil, pos, err
	}
	return cond, pos, nil
}

func (p *Parser) parseFor(pos int) (ast.Node, int, error) {
	if !p.is(pos, lexer.For) {
		return nil, pos, nil
	}
	pos, err := p.expect(pos+1, lexer.LParen, "aufi")
	if err != nil {
		return nil, pos, err
	}
	start, pos, err := first(pos, p.parseVarDecl, p.parseAssign)
	if err != nil {
		return nil, pos, err
	}
	if start == nil {
		return nil, pos, p.errorf(pos, "aufi erwartet a Zuweisung")
	}
	if pos, err = p.expect(pos, lexer.Semicolon, "aufi"); err != nil {
		return nil, pos, err
	}
	cond, pos, err := p.parseExpression(pos)
	if err != nil {
		return nil, pos, err
	}
	if _, ok := cond.(*ast.Comparison); !ok {
		return nil, pos, p.errorf(pos, "aufi erwartet an Vergleich als Bedingung")
	}
	if pos, err = p.expect(pos, lexer.Semicolon, "aufi"); err != nil {
		return nil, pos, err
	}
	update, pos, err := first(pos, p.parseAssign, p.parseExpression)
	if err != nil {
		return nil, pos, err
	}
	if update == nil {
		return nil, pos, p.errorf(pos, "aufi erwartet an Schritt")
	}
	if pos, err = p.expect(pos, lexer.RParen, "aufi"); err != nil {
		return nil, pos, err
	}
	body, pos, err := p.parseBody(pos, "aufi")
	if err != nil {
		return nil, pos, err
	}
	return &ast.For{Init: start, Cond: cond, Update: update, Body: body}, pos, nil
}

func (p *Parser) parseWhile(pos int) (ast.Node, int, error) {
	if !p.is(pos, lexer.While) {
		return nil, pos, nil
	}
	cond, pos, err := p.parseParenCondition(pos+1, "geh weida")
	if err != nil {
		return nil, pos, err
	}
	body, pos, err := p.parseBody(pos, "geh weida")
	if err != nil {
		return nil, pos, err
	}
	return &ast.While{Cond: cond, Body: body}, pos, nil
}

func (p *Parser) parseForEach(pos int) (ast.Node, int, error) {
	if !p.is(pos, lexer.ForEach) {
		return nil, pos, nil
	}
	pos, err := p.expect(pos+1, lexer.LParen, "fiaOis")
	if err != nil {
		return nil, pos, err
	}
	array, pos, err := p.parseOperand(pos)
	if err != nil {
		return nil, pos, err
	}
	if array == nil {
		return nil, pos, p.errorf(pos, "fiaOis erwartet a Array")
	}
	if pos, err = p.expect(pos, lexer.As, "fiaOis"); err != nil {
		return nil, pos, err
	}
	if !p.is(pos, lexer.Identifier) {
		return nil, pos, p.errorf(pos, "fiaOis erwartet an Namen nach als")
	}
	item := p.value(pos)
	if pos, err = p.expect(pos+1, lexer.RParen, "fiaOis"); err != nil {
		return nil, pos, err
	}
	body, pos, err := p.parseBody(pos, "fiaOis")
	if err != nil {
		return nil, pos, err
	}
	return &ast.ForEach{Array: array, Item: item, Body: body}, pos, nil
}

func (p *Parser) parseFuncDef(pos int) (ast.Node, int, error) {
	if !p.is(pos, lexer.Function) {
		return nil, pos, nil
	}
	if !p.is(pos+1, lexer.Identifier) {
		return nil, pos, p.errorf(pos+1, "hawara erwartet an Namen")
	}
	name := p.value(pos + 1)
	pos, err := p.expect(pos+2, lexer.LParen, "hawara")
	if err != nil {
		return nil, pos, err
	}
	params := []string{}
	for p.is(pos, lexer.Identifier) {
		params = append(params, p.value(pos))
		pos++
		if !p.is(pos, lexer.Separator) {
			break
		}
		pos++
	}
	if pos, err = p.expect(pos, lexer.RParen, "hawara "+name); err != nil {
		return nil, pos, err
	}
	body, pos, err := p.parseBody(pos, "hawara "+name)
	if err != nil {
		return nil, pos, err
	}
	return &ast.FuncDef{Name: name, Params: params, Body: body}, pos, nil
}

// checkAssignOp rejects the compound assignment operators, which tokenize
// but have no meaning.
func (p *Parser) checkAssignOp(pos int) error {
	if op := p.value(pos); op != "=" {
		return p.errorf(pos, "Operator '%s' wird ned unterstützt, nur '='", op)
	}
	return nil
}

func (p *Parser) parseIndexAssign(pos int) (ast.Node, int, error) {
	if !p.is(pos, lexer.Identifier) || !p.is(pos+1, lexer.LBracket) {
		return nil, pos, nil
	}
	name := p.value(pos)
	index, next, err := p.parseExpression(pos + 2)
	if err != nil || index == nil {
		return nil, pos, err
	}
	if !p.is(next, lexer.RBracket) || !p.is(next+1, lexer.Assign) {
		return nil, pos, nil
	}
	if err := p.checkAssignOp(next + 1); err != nil {
		return nil, pos, err
	}
	value, end, err := p.parseExpression(next + 2)
	if err != nil {
		return nil, pos, err
	}
	if value == nil {
		return nil, pos, p.errorf(next+2, "Zuweisung an %s[...] erwartet an Wert", name)
	}
	return &ast.IndexAssign{Name: name, Index: index, Value: value}, end, nil
}

func (p *Parser) parseVarDecl(pos int) (ast.Node, int, error) {
	if !p.is(pos, lexer.Let) {
		return nil, pos, nil
	}
	if !p.is(pos+1, lexer.Identifier) {
		return nil, pos, p.errorf(pos+1, "heast erwartet an Namen")
	}
	name := p.value(pos + 1)
	if !p.is(pos+2, lexer.Assign) {
		return nil, pos, p.errorf(pos+2, "heast %s erwartet '='", name)
	}
	if err := p.checkAssignOp(pos + 2); err != nil {
		return nil, pos, err
	}
	init, next, err := p.parseExpression(pos + 3)
	if err != nil {
		return nil, pos, err
	}
	if init == nil {
		return nil, pos, p.errorf(pos+3, "heast %s erwartet an Wert", name)
	}
	return &ast.VarDecl{Name: name, Init: init}, next, nil
}

func (p *Parser) parseAssign(pos int) (ast.Node, int, error) {
	if !p.is(pos, lexer.Identifier) || !p.is(pos+1, lexer.Assign) {
		return nil, pos, nil
	}
	name := p.value(pos)
	if err := p.checkAssignOp(pos + 1); err != nil {
		return nil, pos, err
	}
	value, next, err := p.parseExpression(pos + 2)
	if err != nil {
		return nil, pos, err
	}
	if value == nil {
		return nil, pos, p.errorf(pos+2, "Zuweisung an %s erwartet an Wert", name)
	}
	return &ast.Assign{Name: name, Value: value}, next, nil
}

func (p *Parser) parseReturn(pos int) (ast.Node, int, error) {
	if !p.is(pos, lexer.Return) {
		return nil, pos, nil
	}
	value, next, err := p.parseExpression(pos + 1)
	if err != nil {
		return nil, pos, err
	}
	if value == nil {
		return &ast.Return{}, pos + 1, nil
	}
	return &ast.Return{Value: value}, next, nil
}

func (p *Parser) parseComment(pos int) (ast.Node, int, error) {
	if !p.is(pos, lexer.Comment) {
		return nil, pos, nil
	}
	if !p.is(pos+1, lexer.String) {
		return nil, pos, p.errorf(pos+1, "kommentar erwartet an Text in Anführungszeichen")
	}
	return &ast.Comment{Text: p.value(pos + 1)}, pos + 2, nil
}

func (p *Parser) parsePrint(pos int) (ast.Node, int, error) {
	if !p.is(pos, lexer.Print) {
		return nil, pos, nil
	}
	pos, err := p.expect(pos+1, lexer.LParen, "oida.sag")
	if err != nil {
		return nil, pos, err
	}
	values, pos, err := p.parseList(pos, lexer.RParen)
	if err != nil {
		return nil, pos, err
	}
	if pos, err = p.expect(pos, lexer.RParen, "oida.sag"); err != nil {
		return nil, pos, err
	}
	return &ast.Print{Values: values}, pos, nil
}

// parseList parses a possibly empty, comma separated list of expressions
// and stops in front of the closing token.
func (p *Parser) parseList(pos int, closing lexer.Kind) ([]ast.Node, int, error) {
	items := []ast.Node{}
	if p.is(pos, closing) {
		return items, pos, nil
	}
	for {
		item, next, err := p.parseExpression(pos)
		if err != nil {
			return nil, pos, err
		}
		if item == nil {
			return items, pos, nil
		}
		items = append(items, item)
		pos = next
		if !p.is(pos, lexer.Separator) {
			return items, pos, nil
		}
		pos++
	}
}

// --- expressions ---

// parseExpression parses an operand, then extends it into a comparison and
// a flat und/oda chain when the corresponding operators follow.
func (p *Parser) parseExpression(pos int) (ast.Node, int, error) {
	left, pos, err := p.parseComparison(pos)
	if err != nil || left == nil {
		return nil, pos, err
	}
	if !p.is(pos, lexer.And) && !p.is(pos, lexer.Or) {
		return left, pos, nil
	}
	chain := &ast.LogicalChain{Operands: []ast.Node{left}}
	for p.is(pos, lexer.And) || p.is(pos, lexer.Or) {
		op := p.value(pos)
		operand, next, err := p.parseComparison(pos + 1)
		if err != nil {
			return nil, pos, err
		}
		if operand == nil {
			return nil, pos, p.errorf(pos+1, "nach '%s' fehlt a Bedingung", op)
		}
		chain.Ops = append(chain.Ops, op)
		chain.Operands = append(chain.Operands, operand)
		pos = next
	}
	return chain, pos, nil
}

// parseComparison parses `operand [cmp operand]`.
func (p *Parser) parseComparison(pos int) (ast.Node, int, error) {
	left, next, err := p.parseOperand(pos)
	if err != nil || left == nil {
		return nil, pos, err
	}
	if !p.is(next, lexer.Comparison) {
		return left, next, nil
	}
	op := p.value(next)
	right, end, err := p.parseOperand(next + 1)
	if err != nil {
		return nil, pos, err
	}
	if right == nil {
		return nil, pos, p.errorf(next+1, "nach '%s' fehlt a Ausdruck", op)
	}
	return &ast.Comparison{Left: left, Op: op, Right: right}, end, nil
}

// parseOperand parses a primary expression and, when an arithmetic
// operator follows, the right-leaning arithmetic built on it: the right
// side recursively consumes the rest of the arithmetic expression, so
// `a plus b mal c` is `a plus (b mal c)` and `a mal b plus c` is
// `a mal (b plus c)`.
func (p *Parser) parseOperand(pos int) (ast.Node, int, error) {
	left, next, err := p.parsePrimary(pos)
	if err != nil || left == nil {
		return nil, pos, err
	}
	if !p.is(next, lexer.Arithmetic) {
		return left, next, nil
	}
	op := p.value(next)
	if op == "plusplus" || op == "minusminus" {
		return &ast.UnaryArith{Op: op, Operand: left}, next + 1, nil
	}
	right, end, err := p.parseOperand(next + 1)
	if err != nil {
		return nil, pos, err
	}
	if right == nil {
		return nil, pos, p.errorf(next+1, "nach '%s' fehlt a Operand", op)
	}
	return &ast.BinaryArith{Left: left, Op: op, Right: right}, end, nil
}

func (p *Parser) parsePrimary(pos int) (ast.Node, int, error) {
	// Property access is tried before index access so that `m["k"].umfang`
	// is not cut short after the index.
	return first(pos,
		p.parseArrayLiteral,
		p.parsePropertyAccess,
		p.parseIndexAccess,
		p.parseFetch,
		p.parseFuncCall,
		p.parseLiteral,
		p.parseIdentifier,
	)
}

// parseArrayLiteral parses `[e1, e2]` and the associative form
// `[k1, k2] : [v1, v2]`.
func (p *Parser) parseArrayLiteral(pos int) (ast.Node, int, error) {
	if !p.is(pos, lexer.LBracket) {
		return nil, pos, nil
	}
	elements, next, err := p.parseList(pos+1, lexer.RBracket)
	if err != nil {
		return nil, pos, err
	}
	if !p.is(next, lexer.RBracket) {
		return nil, pos, nil
	}
	next++
	if !p.is(next, lexer.Colon) {
		return &ast.ArrayLiteral{Elements: elements}, next, nil
	}
	if !p.is(next+1, lexer.LBracket) {
		return nil, pos, p.errorf(next+1, "nach ':' erwartet a Werteliste")
	}
	values, end, err := p.parseList(next+2, lexer.RBracket)
	if err != nil {
		return nil, pos, err
	}
	if end, err = p.expect(end, lexer.RBracket, "Werteliste"); err != nil {
		return nil, pos, err
	}
	return &ast.AssocLiteral{Keys: elements, Values: values}, end, nil
}

// parseIndexAccess parses `name[index]`, possibly chained.
func (p *Parser) parseIndexAccess(pos int) (ast.Node, int, error) {
	if !p.is(pos, lexer.Identifier) || !p.is(pos+1, lexer.LBracket) {
		return nil, pos, nil
	}
	var node ast.Node = &ast.Identifier{Name: p.value(pos)}
	next := pos + 1
	for p.is(next, lexer.LBracket) {
		index, end, err := p.parseExpression(next + 1)
		if err != nil {
			return nil, pos, err
		}
		if index == nil || !p.is(end, lexer.RBracket) {
			break
		}
		node = &ast.IndexAccess{Array: node, Index: index}
		next = end + 1
	}
	if _, ok := node.(*ast.IndexAccess); !ok {
		return nil, pos, nil
	}
	return node, next, nil
}

// parsePropertyAccess parses `object.property[(arg)]` and the filter form
// `object.nimmAusse(item => { predicate })`. The object is an identifier or
// an index access.
func (p *Parser) parsePropertyAccess(pos int) (ast.Node, int, error) {
	object, next, err := first(pos, p.parseIndexAccess, p.parseIdentifier)
	if err != nil || object == nil {
		return nil, pos, err
	}
	if !p.is(next, lexer.Dot) {
		return nil, pos, nil
	}
	if !p.is(next+1, lexer.Identifier) {
		return nil, pos, p.errorf(next+1, "nach '.' erwartet an Eigenschaftsnamen")
	}
	property := p.value(next + 1)
	next += 2
	if property == filterProperty {
		return p.parseFilter(next, object)
	}
	if !p.is(next, lexer.LParen) {
		return &ast.PropertyAccess{Object: object, Property: property}, next, nil
	}
	node := &ast.PropertyAccess{Object: object, Property: property, HasCall: true}
	if p.is(next+1, lexer.RParen) {
		return node, next + 2, nil
	}
	arg, end, err := p.parseExpression(next + 1)
	if err != nil {
		return nil, pos, err
	}
	if arg == nil {
		return nil, pos, p.errorf(next+1, "%s erwartet an Ausdruck", property)
	}
	if end, err = p.expect(end, lexer.RParen, property); err != nil {
		return nil, pos, err
	}
	node.Arg = arg
	return node, end, nil
}

// parseFilter parses `(item => { predicate })` after `.nimmAusse`.
func (p *Parser) parseFilter(pos int, array ast.Node) (ast.Node, int, error) {
	pos, err := p.expect(pos, lexer.LParen, filterProperty)
	if err != nil {
		return nil, pos, err
	}
	if !p.is(pos, lexer.Identifier) {
		return nil, pos, p.errorf(pos, "%s erwartet an Namen", filterProperty)
	}
	item := p.value(pos)
	if pos, err = p.expect(pos+1, lexer.FilterArrow, filterProperty); err != nil {
		return nil, pos, err
	}
	if pos, err = p.expect(pos, lexer.LBrace, filterProperty); err != nil {
		return nil, pos, err
	}
	predicate, pos, err := p.parseExpression(pos)
	if err != nil {
		return nil, pos, err
	}
	if predicate == nil {
		return nil, pos, p.errorf(pos, "Bedingung von %s is leer", filterProperty)
	}
	if pos, err = p.expect(pos, lexer.RBrace, filterProperty); err != nil {
		return nil, pos, err
	}
	if pos, err = p.expect(pos, lexer.RParen, filterProperty); err != nil {
		return nil, pos, err
	}
	return &ast.Filter{Array: array, Item: item, Predicate: predicate}, pos, nil
}

func (p *Parser) parseFetch(pos int) (ast.Node, int, error) {
	if !p.is(pos, lexer.Fetch) {
		return nil, pos, nil
	}
	pos, err := p.expect(pos+1, lexer.LParen, "holma")
	if err != nil {
		return nil, pos, err
	}
	url, pos, err := p.parseExpression(pos)
	if err != nil {
		return nil, pos, err
	}
	if url == nil {
		return nil, pos, p.errorf(pos, "holma erwartet a URL")
	}
	if pos, err = p.expect(pos, lexer.RParen, "holma"); err != nil {
		return nil, pos, err
	}
	return &ast.Fetch{URL: url}, pos, nil
}

func (p *Parser) parseFuncCall(pos int) (ast.Node, int, error) {
	if !p.is(pos, lexer.Identifier) || !p.is(pos+1, lexer.LParen) {
		return nil, pos, nil
	}
	args, next, err := p.parseList(pos+2, lexer.RParen)
	if err != nil {
		return nil, pos, err
	}
	if !p.is(next, lexer.RParen) {
		return nil, pos, nil
	}
	return &ast.FuncCall{Name: p.value(pos), Args: args}, next + 1, nil
}

func (p *Parser) parseLiteral(pos int) (ast.Node, int, error) {
	if pos >= len(p.tokens) {
		return nil, pos, nil
	}
	tok := p.tokens[pos]
	switch tok.Kind {
	case lexer.String:
		return &ast.Literal{Value: types.NewString(tok.Value)}, pos + 1, nil
	case lexer.Number:
		n, err := strconv.ParseInt(tok.Value, 10, 64)
		if err != nil {
			f, ferr := strconv.ParseFloat(tok.Value, 64)
			if ferr != nil {
				return nil, pos, p.errorf(pos, "ungültige Zahl %q", tok.Value)
			}
			return &ast.Literal{Value: types.NewDouble(f)}, pos + 1, nil
		}
		return &ast.Literal{Value: types.NewInt(n)}, pos + 1, nil
	case lexer.True:
		return &ast.Literal{Value: types.NewBool(true)}, pos + 1, nil
	case lexer.False:
		return &ast.Literal{Value: types.NewBool(false)}, pos + 1, nil
	}
	return nil, pos, nil
}

func (p *Parser) parseIdentifier(pos int) (ast.Node, int, error) {
	if !p.is(pos, lexer.Identifier) {
		return nil, pos, nil
	}
	return &ast.Identifier{Name: p.value(pos)}, pos + 1, nil
}
