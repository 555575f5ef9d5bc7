package calculator

import (
	"fmt"
	"math"
)

// Scientific function names.
const (
	FuncSin       = "sin"
	FuncCos       = "cos"
	FuncTan       = "tan"
	FuncSqrt      = "sqrt"
	FuncLog       = "log"
	FuncLn        = "ln"
	FuncFactorial = "factorial"
	FuncPercent   = "percent"
)

// MaxFactorial is the largest argument whose factorial fits in a float64.
const MaxFactorial = 170

// AngleMode selects how trigonometric arguments are read.
type AngleMode int

const (
	Degrees AngleMode = iota
	Radians
)

func (m AngleMode) String() string {
	if m == Radians {
		return "rad"
	}
	return "deg"
}

// IsFunction reports whether name is a scientific function.
func IsFunction(name string) bool {
	switch name {
	case FuncSin, FuncCos, FuncTan, FuncSqrt, FuncLog, FuncLn, FuncFactorial, FuncPercent:
		return true
	}
	return false
}

// Scientific evaluates one-operand functions. The zero value works in degrees.
type Scientific struct {
	Angle AngleMode
}

func (s Scientific) radians(x float64) float64 {
	if s.Angle == Degrees {
		return x * (math.Pi / 180)
	}
	return x
}

// Apply runs fn on x after checking its domain.
func (s Scientific) Apply(fn string, x float64) (float64, error) {
	var result float64

	switch fn {
	case FuncSin:
		result = math.Sin(s.radians(x))
	case FuncCos:
		result = math.Cos(s.radians(x))
	case FuncTan:
		result = math.Tan(s.radians(x))
	case FuncSqrt:
		if x < 0 {
			return 0, newError(DomainError, fn, "Can't sqrt negative")
		}
		result = math.Sqrt(x)
	case FuncLog:
		if x <= 0 {
			return 0, newError(DomainError, fn, "Log undefined")
		}
		result = math.Log10(x)
	case FuncLn:
		if x <= 0 {
			return 0, newError(DomainError, fn, "Ln undefined")
		}
		result = math.Log(x)
	case FuncFactorial:
		f, err := Factorial(x)
		if err != nil {
			return 0, err
		}
		result = f
	case FuncPercent:
		result = x / 100
	default:
		return 0, wrapError(InvalidOperand, fn, GenericMessage, fmt.Errorf("unknown function %q", fn))
	}

	if math.IsNaN(result) || math.IsInf(result, 0) {
		return 0, newError(ArithmeticOverflow, fn, GenericMessage)
	}
	return result, nil
}

// Factorial computes n! for integral 0 <= n <= MaxFactorial.
func Factorial(n float64) (float64, error) {
	if n < 0 || n != math.Trunc(n) || math.IsNaN(n) {
		return 0, newError(DomainError, FuncFactorial, "Invalid factorial")
	}
	if n > MaxFactorial {
		return 0, newError(TooLarge, FuncFactorial, "Too large")
	}

	result := 1.0
	for i := 2.0; i <= n; i++ {
		result *= i
	}
	return result, nil
}

// Power raises base to exponent.
func (s Scientific) Power(base, exponent float64) (float64, error) {
	result := math.Pow(base, exponent)
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return 0, newError(ArithmeticOverflow, OpPower, GenericMessage)
	}
	return result, nil
}
