package calculator

import (
	"strings"
	"testing"

	"github.com/Knetic/govaluate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		expr string
		want float64
	}{
		{expr: "2+3*4", want: 14},
		{expr: "(2+3)*4", want: 20},
		{expr: "10/2", want: 5},
		{expr: " 1 + 2 ", want: 3},
		{expr: "2^3", want: 8},
		{expr: "2^3^2", want: 512},
		{expr: "-2^2", want: -4},
		{expr: "2^-1", want: 0.5},
		{expr: "2*3^2", want: 18},
		{expr: "-(2+3)", want: -5},
		{expr: "((1+2)*(3+4))/7", want: 3},
		{expr: ".5+.5", want: 1},
		{expr: "5.", want: 5},
		{expr: "10/0.5", want: 20},
		{expr: "10/05", want: 2},
		{expr: "100-2*3+4", want: 98},
		{expr: "8/4/2", want: 1},
		{expr: "2--3", want: 5},
	}

	for _, tc := range tests {
		t.Run(tc.expr, func(t *testing.T) {
			got, err := Evaluate(tc.expr)
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, 1e-12)
		})
	}
}

func TestEvaluateDeepNesting(t *testing.T) {
	expr := strings.Repeat("(", 500) + "1+1" + strings.Repeat(")", 500)

	got, err := Evaluate(expr)
	require.NoError(t, err)
	assert.Equal(t, 2.0, got)
}

func TestEvaluateErrors(t *testing.T) {
	tests := []struct {
		expr string
		kind Kind
	}{
		{expr: "10/0", kind: DivideByZero},
		{expr: "10/ 0", kind: DivideByZero},
		{expr: "10/0.0", kind: DivideByZero},
		{expr: "(1+2)/0+3", kind: DivideByZero},
		{expr: "1/(2-2)", kind: ArithmeticOverflow},
		{expr: "1/(0)", kind: ArithmeticOverflow},
		{expr: "0/(1-1)", kind: ArithmeticOverflow},
		{expr: "", kind: InvalidExpression},
		{expr: "   ", kind: InvalidExpression},
		{expr: "2+a", kind: InvalidExpression},
		{expr: "alert(1)", kind: InvalidExpression},
		{expr: "1e5", kind: InvalidExpression},
		{expr: "(1+2", kind: InvalidExpression},
		{expr: "1+2)", kind: InvalidExpression},
		{expr: "2(3)", kind: InvalidExpression},
		{expr: "()", kind: InvalidExpression},
		{expr: "1.2.3", kind: InvalidExpression},
		{expr: ".", kind: InvalidExpression},
		{expr: "3*", kind: InvalidExpression},
		{expr: "10^400", kind: ArithmeticOverflow},
		{expr: "0^-1", kind: ArithmeticOverflow},
	}

	for _, tc := range tests {
		t.Run(tc.expr, func(t *testing.T) {
			_, err := Evaluate(tc.expr)
			require.Error(t, err)
			assert.True(t, IsKind(err, tc.kind), "expected %s, got %v", tc.kind, err)
		})
	}
}

func TestEvaluateDisplayMessages(t *testing.T) {
	_, err := Evaluate("4/0")
	assert.Equal(t, "Can't divide by zero", DisplayMessage(err))

	_, err = Evaluate("4+x")
	assert.Equal(t, GenericMessage, DisplayMessage(err))
}

// govaluate implements the same precedence for + - * / and parentheses, so
// it serves as an independent reference for expressions without '^' (which
// it reads as XOR).
func TestEvaluateMatchesReferenceEvaluator(t *testing.T) {
	exprs := []string{
		"2+3*4",
		"(2+3)*4",
		"10/4",
		"1.5*(2-7)/3",
		"((1+2)*(3+4))/7",
		"100-2*3+4",
		"7-(3-(2-1))",
		"0.1+0.2",
		"12345678*87654321",
		"(((9)))/(3)",
	}

	for _, expr := range exprs {
		t.Run(expr, func(t *testing.T) {
			ref, err := govaluate.NewEvaluableExpression(expr)
			require.NoError(t, err)
			want, err := ref.Evaluate(nil)
			require.NoError(t, err)

			got, err := Evaluate(expr)
			require.NoError(t, err)
			assert.InDelta(t, want.(float64), got, 1e-9)
		})
	}
}
