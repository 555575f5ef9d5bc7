package calculator

import (
	"fmt"
	"math"
	"strconv"
)

const opEvaluate = "evaluate"

func invalidExpression(format string, args ...any) *Error {
	return wrapError(InvalidExpression, opEvaluate, GenericMessage, fmt.Errorf(format, args...))
}

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenNumber
	tokenPlus
	tokenMinus
	tokenMultiply
	tokenDivide
	tokenPower
	tokenLParen
	tokenRParen
)

type token struct {
	kind  tokenKind
	text  string
	value float64
	pos   int
}

// lex turns expr into tokens. It is also the grammar gate: only digits,
// whitespace, '.', '+', '-', '*', '/', '^', '(' and ')' get through.
func lex(expr string) ([]token, error) {
	tokens := make([]token, 0, len(expr)/2+1)

	for i := 0; i < len(expr); {
		c := expr[i]
		switch {
		case isSpace(c):
			i++
			continue
		case isDigit(c) || c == '.':
			start := i
			dots := 0
			for i < len(expr) && (isDigit(expr[i]) || expr[i] == '.') {
				if expr[i] == '.' {
					dots++
				}
				i++
			}
			text := expr[start:i]
			if dots > 1 || text == "." {
				return nil, invalidExpression("malformed number %q", text)
			}
			v, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, wrapError(InvalidExpression, opEvaluate, GenericMessage, err)
			}
			tokens = append(tokens, token{kind: tokenNumber, text: text, value: v, pos: start})
			continue
		}

		var kind tokenKind
		switch c {
		case '+':
			kind = tokenPlus
		case '-':
			kind = tokenMinus
		case '*':
			kind = tokenMultiply
		case '/':
			kind = tokenDivide
		case '^':
			kind = tokenPower
		case '(':
			kind = tokenLParen
		case ')':
			kind = tokenRParen
		default:
			return nil, invalidExpression("unexpected character %q at offset %d", rune(c), i)
		}
		tokens = append(tokens, token{kind: kind, text: string(c), pos: i})
		i++
	}

	return append(tokens, token{kind: tokenEOF, pos: len(expr)}), nil
}

func isDigit(c byte) bool { return '0' <= c && c <= '9' }

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

// Evaluate computes the value of an infix expression over
// `+ - * / ^ ( )` with the usual precedence; `^` binds tightest and
// associates to the right.
func Evaluate(expr string) (float64, error) {
	tokens, err := lex(expr)
	if err != nil {
		return 0, err
	}

	for i := 0; i+1 < len(tokens); i++ {
		if tokens[i].kind == tokenDivide && tokens[i+1].kind == tokenNumber && tokens[i+1].value == 0 {
			return 0, newError(DivideByZero, opEvaluate, "Can't divide by zero")
		}
	}

	p := &parser{tokens: tokens}
	if p.peek().kind == tokenEOF {
		return 0, invalidExpression("empty expression")
	}

	v, err := p.parseSum()
	if err != nil {
		return 0, err
	}
	if t := p.peek(); t.kind != tokenEOF {
		return 0, invalidExpression("unexpected %q at offset %d", t.text, t.pos)
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, newError(ArithmeticOverflow, opEvaluate, GenericMessage)
	}
	return v, nil
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokenEOF {
		p.pos++
	}
	return t
}

// sum := product (('+' | '-') product)*
func (p *parser) parseSum() (float64, error) {
	left, err := p.parseProduct()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek().kind {
		case tokenPlus:
			p.next()
			right, err := p.parseProduct()
			if err != nil {
				return 0, err
			}
			left += right
		case tokenMinus:
			p.next()
			right, err := p.parseProduct()
			if err != nil {
				return 0, err
			}
			left -= right
		default:
			return left, nil
		}
	}
}

// product := unary (('*' | '/') unary)*
func (p *parser) parseProduct() (float64, error) {
	left, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek().kind {
		case tokenMultiply:
			p.next()
			right, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			left *= right
		case tokenDivide:
			p.next()
			right, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			// a zero divisor left after the literal check yields Inf or NaN,
			// which Evaluate reports as overflow
			left /= right
		default:
			return left, nil
		}
	}
}

// unary := ('+' | '-') unary | power
func (p *parser) parseUnary() (float64, error) {
	switch p.peek().kind {
	case tokenPlus:
		p.next()
		return p.parseUnary()
	case tokenMinus:
		p.next()
		v, err := p.parseUnary()
		return -v, err
	}
	return p.parsePower()
}

// power := primary ('^' unary)?
func (p *parser) parsePower() (float64, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return 0, err
	}
	if p.peek().kind != tokenPower {
		return base, nil
	}
	p.next()
	exp, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	return math.Pow(base, exp), nil
}

// primary := number | '(' sum ')'
func (p *parser) parsePrimary() (float64, error) {
	t := p.next()
	switch t.kind {
	case tokenNumber:
		return t.value, nil
	case tokenLParen:
		v, err := p.parseSum()
		if err != nil {
			return 0, err
		}
		if closing := p.next(); closing.kind != tokenRParen {
			return 0, invalidExpression("missing ')' at offset %d", closing.pos)
		}
		return v, nil
	case tokenEOF:
		return 0, invalidExpression("unexpected end of expression")
	default:
		return 0, invalidExpression("unexpected %q at offset %d", t.text, t.pos)
	}
}
