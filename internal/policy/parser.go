package policy

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/formulapm/access-management/internal"
)

// Parse turns a predicate string into an expression tree. The accepted
// grammar covers the subset of SQL the stored policies actually use:
// equality comparisons, AND/OR/NOT, parentheses, string literals,
// identity-function calls, and the hoisted (SELECT fn()) form.
func Parse(input string) (Expr, error) {
	tokens, err := lex(input)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens, input: input}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.atEnd() {
		t := p.peek()
		return nil, parseError(input, t.pos, fmt.Sprintf("unexpected token %q", t.text))
	}
	return expr, nil
}

func parseError(input string, pos int, msg string) error {
	return internal.NewValidationFieldError(
		"predicate",
		fmt.Sprintf("cannot parse predicate %q at offset %d: %s", input, pos, msg),
		internal.ErrCodePolicyParse,
	)
}

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokString
	tokNumber
	tokLParen
	tokRParen
	tokEq
	tokNeq
	tokAnd
	tokOr
	tokNot
	tokSelect
)

// pos is the rune offset of the token in the predicate, carried so parse
// errors can point at the offending spot.
type token struct {
	kind tokenKind
	text string
	pos  int
}

func lex(input string) ([]token, error) {
	var tokens []token
	runes := []rune(input)
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			tokens = append(tokens, token{tokLParen, "(", i})
			i++
		case r == ')':
			tokens = append(tokens, token{tokRParen, ")", i})
			i++
		case r == '=':
			tokens = append(tokens, token{tokEq, "=", i})
			i++
		case r == '<' && i+1 < len(runes) && runes[i+1] == '>':
			tokens = append(tokens, token{tokNeq, "<>", i})
			i += 2
		case r == '!' && i+1 < len(runes) && runes[i+1] == '=':
			tokens = append(tokens, token{tokNeq, "<>", i})
			i += 2
		case r == '\'':
			j := i + 1
			for j < len(runes) && runes[j] != '\'' {
				j++
			}
			if j >= len(runes) {
				return nil, parseError(input, i, "unterminated string literal")
			}
			tokens = append(tokens, token{tokString, string(runes[i+1 : j]), i})
			i = j + 1
		case unicode.IsDigit(r):
			j := i
			for j < len(runes) && (unicode.IsDigit(runes[j]) || runes[j] == '.') {
				j++
			}
			tokens = append(tokens, token{tokNumber, string(runes[i:j]), i})
			i = j
		case unicode.IsLetter(r) || r == '_':
			j := i
			for j < len(runes) && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j]) || runes[j] == '_' || runes[j] == '.') {
				j++
			}
			word := string(runes[i:j])
			switch strings.ToUpper(word) {
			case "AND":
				tokens = append(tokens, token{tokAnd, word, i})
			case "OR":
				tokens = append(tokens, token{tokOr, word, i})
			case "NOT":
				tokens = append(tokens, token{tokNot, word, i})
			case "SELECT":
				tokens = append(tokens, token{tokSelect, word, i})
			default:
				tokens = append(tokens, token{tokIdent, word, i})
			}
			i = j
		default:
			return nil, parseError(input, i, fmt.Sprintf("unexpected character %q", string(r)))
		}
	}
	return tokens, nil
}

type parser struct {
	tokens []token
	pos    int
	input  string
}

func (p *parser) atEnd() bool { return p.pos >= len(p.tokens) }

func (p *parser) peek() token {
	if p.atEnd() {
		return token{kind: -1, pos: len([]rune(p.input))}
	}
	return p.tokens[p.pos]
}

func (p *parser) peekAt(offset int) token {
	if p.pos+offset >= len(p.tokens) {
		return token{kind: -1, pos: len([]rune(p.input))}
	}
	return p.tokens[p.pos+offset]
}

func (p *parser) next() token {
	t := p.peek()
	p.pos++
	return t
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	t := p.peek()
	if t.kind != kind {
		return token{}, parseError(p.input, t.pos, fmt.Sprintf("expected %s, got %q", what, t.text))
	}
	return p.next(), nil
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = Or{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = And{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Expr, error) {
	if p.peek().kind == tokNot {
		p.next()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return Not{Inner: inner}, nil
	}
	return p.parsePrimary()
}

// parsePrimary disambiguates a grouped predicate from a hoisted scalar
// subquery: both open with "(", but only the latter starts with SELECT.
func (p *parser) parsePrimary() (Expr, error) {
	if p.peek().kind == tokLParen && p.peekAt(1).kind != tokSelect {
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "closing parenthesis"); err != nil {
			return nil, err
		}
		return inner, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (Expr, error) {
	left, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	op := p.peek()
	if op.kind != tokEq && op.kind != tokNeq {
		return nil, parseError(p.input, op.pos, fmt.Sprintf("expected comparison operator, got %q", op.text))
	}
	p.next()
	right, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	opText := "="
	if op.kind == tokNeq {
		opText = "<>"
	}
	return Compare{Left: left, Op: opText, Right: right}, nil
}

func (p *parser) parseValue() (ValueExpr, error) {
	t := p.peek()
	switch t.kind {
	case tokString, tokNumber:
		p.next()
		return Literal{Val: t.text}, nil
	case tokLParen:
		// (SELECT fn())
		p.next()
		if _, err := p.expect(tokSelect, "SELECT"); err != nil {
			return nil, err
		}
		fn, err := p.parseCall()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "closing parenthesis"); err != nil {
			return nil, err
		}
		return Hoisted{Fn: fn}, nil
	case tokIdent:
		if p.peekAt(1).kind == tokLParen {
			fn, err := p.parseCall()
			if err != nil {
				return nil, err
			}
			return IdentCall{Fn: fn}, nil
		}
		p.next()
		return Attr{Name: t.text}, nil
	default:
		return nil, parseError(p.input, t.pos, fmt.Sprintf("expected value, got %q", t.text))
	}
}

func (p *parser) parseCall() (string, error) {
	name, err := p.expect(tokIdent, "function name")
	if err != nil {
		return "", err
	}
	if _, err := p.expect(tokLParen, "opening parenthesis"); err != nil {
		return "", err
	}
	if _, err := p.expect(tokRParen, "closing parenthesis"); err != nil {
		return "", err
	}
	return strings.ToUpper(name.text), nil
}
