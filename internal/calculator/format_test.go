package calculator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want string
	}{
		{name: "integer", in: 5, want: "5"},
		{name: "zero", in: 0, want: "0"},
		{name: "negative zero", in: math.Copysign(0, -1), want: "0"},
		{name: "upper bound", in: 99999999, want: "99999999"},
		{name: "lower bound", in: -99999999, want: "-99999999"},
		{name: "above upper bound", in: 123456789, want: "1.2346e+8"},
		{name: "below lower bound", in: -123456789, want: "-1.2346e+8"},
		{name: "tiny positive", in: 0.00000001, want: "1.0000e-8"},
		{name: "tiny negative", in: -0.00000001, want: "-1.000e-8"},
		{name: "fraction clamp", in: 1.0 / 3.0, want: "0.3333333"},
		{name: "exact tie rounds up", in: 0.00390625, want: "0.0039063"},
		{name: "negative exact tie", in: -0.00390625, want: "-0.0039063"},
		{name: "below tie rounds down", in: 0.12345674, want: "0.1234567"},
		{name: "float noise", in: 0.1 + 0.2, want: "0.3"},
		{name: "short fraction", in: 2.5, want: "2.5"},
		{name: "seven digits kept", in: 0.1234567, want: "0.1234567"},
		{name: "threshold", in: 0.0000001, want: "1e-7"},
		{name: "infinity", in: math.Inf(1), want: "Infinity"},
		{name: "negative infinity", in: math.Inf(-1), want: "-Infinity"},
		{name: "nan", in: math.NaN(), want: "NaN"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FormatNumber(tc.in))
		})
	}
}

func TestNumberString(t *testing.T) {
	assert.Equal(t, "0.30000000000000004", NumberString(0.1+0.2))
	assert.Equal(t, "1e+21", NumberString(1e21))
	assert.Equal(t, "-42", NumberString(-42))
	assert.Equal(t, "120", NumberString(120))
}
