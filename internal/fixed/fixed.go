// Package fixed implements the deterministic fixed-point number used for
// every value that can affect simulation state.
//
// Fixed is a signed 64-bit integer scaled by 1000, giving three decimal
// digits of fraction. All arithmetic is integer arithmetic, so results are
// bit-identical on every CPU, compiler, and optimization level. No IEEE
// float participates in any state-affecting calculation; the float helpers
// exist only for presentation (tooltips, debug output) and must never feed
// back into state.
//
// CRITICAL PATTERNS:
//
// Rounding: Mul and Div round toward zero (truncation). This is the single
// documented rounding rule; callers must not rely on any other behavior.
//
// Overflow: Add, Sub, and Mul saturate to Max/Min instead of wrapping.
// Saturation keeps a runaway economy deterministic rather than undefined.
// Div by zero saturates in the direction of the dividend's sign (Zero/0 is
// Zero). Division never faults: the simulation loop must not crash on data.
package fixed

import (
	"fmt"
	"math"
	"math/bits"
	"strconv"
	"strings"
)

// Scale is the number of raw units per whole unit.
const Scale = 1000

// Fixed is a fixed-point rational with three fractional decimal digits,
// stored as a scaled int64. The zero value is Zero.
type Fixed int64

// Canonical constants. One is the multiplicative identity.
const (
	Zero Fixed = 0
	One  Fixed = Scale

	// Max and Min are the saturation bounds.
	Max Fixed = math.MaxInt64
	Min Fixed = math.MinInt64
)

// FromInt converts a whole number to Fixed, saturating on overflow.
func FromInt(n int64) Fixed {
	if n > math.MaxInt64/Scale {
		return Max
	}
	if n < math.MinInt64/Scale {
		return Min
	}
	return Fixed(n * Scale)
}

// FromRaw interprets n as an already-scaled raw value.
// Used by serialization code; everything else should use FromInt or Parse.
func FromRaw(n int64) Fixed {
	return Fixed(n)
}

// Raw returns the underlying scaled integer for serialization.
func (f Fixed) Raw() int64 {
	return int64(f)
}

// Int returns the whole part, truncated toward zero.
func (f Fixed) Int() int64 {
	return int64(f) / Scale
}

// Add returns f+g, saturating to Max/Min on overflow.
func (f Fixed) Add(g Fixed) Fixed {
	sum := int64(f) + int64(g)
	// Overflow iff operands share a sign and the sum's sign differs.
	if f >= 0 && g >= 0 && sum < 0 {
		return Max
	}
	if f < 0 && g < 0 && sum >= 0 {
		return Min
	}
	return Fixed(sum)
}

// Sub returns f-g, saturating to Max/Min on overflow.
func (f Fixed) Sub(g Fixed) Fixed {
	if g == Min {
		// -Min overflows; f - Min == f + (Max + 1).
		return f.Add(Max).Add(1)
	}
	return f.Add(-g)
}

// Neg returns -f. Negating Min saturates to Max.
func (f Fixed) Neg() Fixed {
	if f == Min {
		return Max
	}
	return -f
}

// Abs returns the absolute value, saturating Abs(Min) to Max.
func (f Fixed) Abs() Fixed {
	if f < 0 {
		return f.Neg()
	}
	return f
}

// Mul returns f*g rounded toward zero, saturating on overflow.
//
// The full 128-bit product is computed with bits.Mul64 before descaling,
// so intermediate overflow cannot corrupt the result.
func (f Fixed) Mul(g Fixed) Fixed {
	if f == 0 || g == 0 {
		return Zero
	}
	neg := (f < 0) != (g < 0)

	fa := absU64(int64(f))
	ga := absU64(int64(g))

	hi, lo := bits.Mul64(fa, ga)
	// Descale: divide the 128-bit product by Scale.
	if hi >= Scale {
		// Quotient does not fit in 64 bits.
		return saturate(neg)
	}
	q, _ := bits.Div64(hi, lo, Scale)
	return clampU64(q, neg)
}

// Div returns f/g rounded toward zero, saturating on overflow.
// Division by zero saturates toward the dividend's sign; Zero/0 is Zero.
func (f Fixed) Div(g Fixed) Fixed {
	if g == 0 {
		if f == 0 {
			return Zero
		}
		return saturate(f < 0)
	}
	neg := (f < 0) != (g < 0)

	fa := absU64(int64(f))
	ga := absU64(int64(g))

	// Rescale the dividend first: (f*Scale)/g, in 128 bits.
	hi, lo := bits.Mul64(fa, Scale)
	if hi >= ga {
		return saturate(neg)
	}
	q, _ := bits.Div64(hi, lo, ga)
	return clampU64(q, neg)
}

// Cmp returns -1, 0, or +1 as f is less than, equal to, or greater than g.
func (f Fixed) Cmp(g Fixed) int {
	switch {
	case f < g:
		return -1
	case f > g:
		return 1
	default:
		return 0
	}
}

// IsZero reports whether f is exactly Zero.
func (f Fixed) IsZero() bool {
	return f == 0
}

// String formats f as a decimal with up to three fractional digits,
// trailing zeros trimmed ("2.5", "-0.125", "3").
func (f Fixed) String() string {
	whole := int64(f) / Scale
	frac := int64(f) % Scale
	if frac == 0 {
		return strconv.FormatInt(whole, 10)
	}
	if frac < 0 {
		frac = -frac
	}
	sign := ""
	if f < 0 && whole == 0 {
		sign = "-"
	}
	s := fmt.Sprintf("%s%d.%03d", sign, whole, frac)
	return strings.TrimRight(s, "0")
}

// Parse converts a decimal string ("2.5", "-0.125") to Fixed.
// At most three fractional digits are accepted; more is an error, not a
// silent rounding, because input data must be exactly representable.
func Parse(s string) (Fixed, error) {
	if s == "" {
		return Zero, fmt.Errorf("parse fixed: empty string")
	}
	neg := false
	rest := s
	switch s[0] {
	case '-':
		neg = true
		rest = s[1:]
	case '+':
		rest = s[1:]
	}

	wholePart := rest
	fracPart := ""
	if i := strings.IndexByte(rest, '.'); i >= 0 {
		wholePart = rest[:i]
		fracPart = rest[i+1:]
	}
	if wholePart == "" && fracPart == "" {
		return Zero, fmt.Errorf("parse fixed %q: no digits", s)
	}
	if len(fracPart) > 3 {
		return Zero, fmt.Errorf("parse fixed %q: more than 3 fractional digits", s)
	}

	var whole int64
	if wholePart != "" {
		var err error
		whole, err = strconv.ParseInt(wholePart, 10, 64)
		if err != nil {
			return Zero, fmt.Errorf("parse fixed %q: %w", s, err)
		}
	}

	var frac int64
	if fracPart != "" {
		var err error
		frac, err = strconv.ParseInt(fracPart, 10, 64)
		if err != nil {
			return Zero, fmt.Errorf("parse fixed %q: %w", s, err)
		}
		for i := len(fracPart); i < 3; i++ {
			frac *= 10
		}
	}

	if whole < 0 || whole > (math.MaxInt64-frac)/Scale {
		return Zero, fmt.Errorf("parse fixed %q: out of range", s)
	}
	raw := whole*Scale + frac
	if neg {
		raw = -raw
	}
	return Fixed(raw), nil
}

// Float64 returns an approximate float for PRESENTATION ONLY.
// The result must never be written back into simulation state.
func (f Fixed) Float64() float64 {
	return float64(f) / Scale
}

// FromFloat64 converts a float for PRESENTATION-LAYER input (sliders, debug
// tools), truncating toward zero. State-affecting values must come from
// FromInt, Parse, or arithmetic on existing Fixed values instead.
func FromFloat64(v float64) Fixed {
	if v >= float64(math.MaxInt64)/Scale {
		return Max
	}
	if v <= float64(math.MinInt64)/Scale {
		return Min
	}
	return Fixed(int64(v * Scale))
}

func absU64(n int64) uint64 {
	if n < 0 {
		// Two's complement negation is correct even for MinInt64.
		return uint64(-(n + 1)) + 1
	}
	return uint64(n)
}

func saturate(neg bool) Fixed {
	if neg {
		return Min
	}
	return Max
}

func clampU64(q uint64, neg bool) Fixed {
	if neg {
		if q > uint64(math.MaxInt64)+1 {
			return Min
		}
		if q == uint64(math.MaxInt64)+1 {
			return Min
		}
		return Fixed(-int64(q))
	}
	if q > uint64(math.MaxInt64) {
		return Max
	}
	return Fixed(q)
}
