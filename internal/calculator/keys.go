package calculator

import (
	"context"
	"fmt"
	"unicode/utf8"
)

// Key names accepted by Press besides digits, operators, parentheses and
// function names.
const (
	KeyDecimal    = "."
	KeyEquals     = "="
	KeyClear      = "C"
	KeyClearEntry = "CE"
	KeySign       = "±"
	KeyAngle      = "DRG"
)

var keyAliases = map[string]string{
	"AC":    KeyClear,
	"Enter": KeyEquals,
	"neg":   KeySign,
	"T":     KeySign,
	"x":     OpMultiply,
	"×":     OpMultiply,
	"÷":     OpDivide,
	"%":     FuncPercent,
	"√":     FuncSqrt,
	"n!":    FuncFactorial,
	"deg":   KeyAngle,
	"rad":   KeyAngle,
}

// Press dispatches a single key to the matching event.
func (s *Session) Press(ctx context.Context, key string) error {
	if alias, ok := keyAliases[key]; ok {
		key = alias
	}

	switch {
	case key == KeyDecimal:
		return s.Decimal()
	case key == KeyEquals:
		return s.Equals(ctx)
	case key == KeyClear:
		return s.Clear()
	case key == KeyClearEntry:
		return s.ClearEntry()
	case key == KeySign:
		return s.Sign()
	case key == KeyAngle:
		return s.ToggleAngleMode()
	case key == "(" || key == ")":
		r, _ := utf8.DecodeRuneInString(key)
		return s.Parenthesis(r)
	case IsBinaryOperator(key):
		return s.Operator(key)
	case IsFunction(key):
		return s.Function(key)
	case len(key) == 1 && key[0] >= '0' && key[0] <= '9':
		return s.Digit(rune(key[0]))
	}

	return wrapError(InvalidOperand, "press", GenericMessage, fmt.Errorf("unknown key %q", key))
}

// PressAll feeds keys in order and stops at the first input error. Errors
// from calculations are shown on the display and do not stop the sequence.
func (s *Session) PressAll(ctx context.Context, keys []string) error {
	for _, key := range keys {
		err := s.Press(ctx, key)
		if err == nil {
			continue
		}
		if k, ok := KindOf(err); ok && k != InvalidOperand {
			continue
		}
		return err
	}
	return nil
}
