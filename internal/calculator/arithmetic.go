package calculator

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Two-operand operator symbols.
const (
	OpAdd      = "+"
	OpSubtract = "-"
	OpMultiply = "*"
	OpDivide   = "/"
	OpPower    = "^"
)

// IsBinaryOperator reports whether op is accepted by Calculate.
func IsBinaryOperator(op string) bool {
	switch op {
	case OpAdd, OpSubtract, OpMultiply, OpDivide, OpPower:
		return true
	}
	return false
}

// ToNumber coerces v to a finite float64.
func ToNumber(v any) (float64, error) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		return ToNumber(string(n))
	case Operand:
		return ToNumber(string(n))
	case string:
		s := strings.TrimSpace(n)
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil || s == "" {
			return 0, wrapError(InvalidOperand, "coerce", GenericMessage, fmt.Errorf("not a number: %q", n))
		}
		f = parsed
	default:
		return 0, wrapError(InvalidOperand, "coerce", GenericMessage, fmt.Errorf("unsupported operand type %T", v))
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, wrapError(InvalidOperand, "coerce", GenericMessage, fmt.Errorf("operand is not finite: %v", f))
	}
	return f, nil
}

// Calculate applies the binary operator op to a and b. `^` is handed to the
// default Scientific ops.
func Calculate(a, b any, op string) (float64, error) {
	x, err := ToNumber(a)
	if err != nil {
		return 0, err
	}
	y, err := ToNumber(b)
	if err != nil {
		return 0, err
	}

	var result float64
	switch op {
	case OpAdd:
		result = x + y
	case OpSubtract:
		result = x - y
	case OpMultiply:
		result = x * y
	case OpDivide:
		if y == 0 {
			return 0, newError(DivideByZero, op, "Can't divide by zero")
		}
		result = x / y
	case OpPower:
		return Scientific{}.Power(x, y)
	default:
		return 0, wrapError(InvalidOperand, op, GenericMessage, fmt.Errorf("unknown operator %q", op))
	}

	if math.IsNaN(result) || math.IsInf(result, 0) {
		return 0, newError(ArithmeticOverflow, op, GenericMessage)
	}
	return result, nil
}
