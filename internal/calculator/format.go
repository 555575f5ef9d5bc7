package calculator

import (
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"
)

const (
	displayMax        = 99999999
	displayMinFrac    = 0.0000001
	displayFracDigits = 7
)

// FormatNumber renders v for the display.
//
// Magnitudes above 99999999 and non-zero magnitudes below 1e-7 switch to
// exponential notation; anything else keeps at most seven fractional digits.
func FormatNumber(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "Infinity"
	case math.IsInf(v, -1):
		return "-Infinity"
	case v > displayMax, v < -displayMax:
		return exponential(v, 4)
	case v > 0 && v < displayMinFrac:
		return exponential(v, 4)
	case v < 0 && v > -displayMinFrac:
		return exponential(v, 3)
	}

	s := NumberString(v)
	if _, frac, ok := strings.Cut(s, "."); ok && len(frac) > displayFracDigits {
		s = NumberString(roundFixed(v, displayFracDigits))
	}
	return s
}

// roundFixed rounds v to digits fractional digits the way toFixed does:
// exact halves of the binary value go away from zero.
func roundFixed(v float64, digits int) float64 {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)

	scaled := new(big.Rat).SetFloat64(math.Abs(v))
	scaled.Mul(scaled, new(big.Rat).SetInt(scale))

	n, rem := new(big.Int).QuoRem(scaled.Num(), scaled.Denom(), new(big.Int))
	if rem.Lsh(rem, 1).Cmp(scaled.Denom()) >= 0 {
		n.Add(n, big.NewInt(1))
	}

	rounded, _ := new(big.Rat).SetFrac(n, scale).Float64()
	return math.Copysign(rounded, v)
}

// NumberString is the shortest round-trip text for v, written the way a
// JSON number is canonically written. It is the form operands take when a
// computed value becomes the current entry.
func NumberString(v float64) string {
	s, err := jsoncanonicalizer.NumberToJSON(v)
	if err != nil {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return s
}

// exponential mirrors toExponential: a signed exponent without zero padding.
func exponential(v float64, digits int) string {
	s := strconv.FormatFloat(v, 'e', digits, 64)
	mant, exp, ok := strings.Cut(s, "e")
	if !ok {
		return s
	}
	sign := exp[:1]
	exp = strings.TrimLeft(exp[1:], "0")
	if exp == "" {
		exp = "0"
	}
	return mant + "e" + sign + exp
}
