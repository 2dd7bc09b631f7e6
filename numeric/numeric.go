// Package numeric supplies the 64-bit integer and double-precision
// arithmetic the interpreter consumes through small fixed interfaces.
//
// Targets without hardware support plug in soft implementations; the Native
// implementations here use Go's int64 and float64 and follow Java semantics
// for overflow, NaN and float-to-integer conversion.
package numeric

import "math"

// Long is 64-bit two's complement arithmetic. Division by zero is checked by
// the caller before Div or Rem is reached.
type Long interface {
	Add(a, b int64) int64
	Sub(a, b int64) int64
	Mul(a, b int64) int64
	Div(a, b int64) int64
	Rem(a, b int64) int64
	Neg(a int64) int64
	Shl(a int64, n uint) int64
	Shr(a int64, n uint) int64
	Ushr(a int64, n uint) int64
	Cmp(a, b int64) int32
}

// Double is IEEE-754 double precision arithmetic.
type Double interface {
	Add(a, b float64) float64
	Sub(a, b float64) float64
	Mul(a, b float64) float64
	Div(a, b float64) float64
	Rem(a, b float64) float64
	Neg(a float64) float64
	// Cmp returns -1, 0 or 1; nan is returned when either operand is NaN.
	Cmp(a, b float64, nan int32) int32
	ToInt(a float64) int32
	ToLong(a float64) int64
}

// ---------------------------------------------------------------------------
// Native implementations
// ---------------------------------------------------------------------------

// NativeLong implements Long with Go int64.
type NativeLong struct{}

func (NativeLong) Add(a, b int64) int64 { return a + b }
func (NativeLong) Sub(a, b int64) int64 { return a - b }
func (NativeLong) Mul(a, b int64) int64 { return a * b }

// Div follows Java: MinInt64 / -1 overflows back to MinInt64.
func (NativeLong) Div(a, b int64) int64 {
	if b == -1 {
		return -a
	}
	return a / b
}

func (NativeLong) Rem(a, b int64) int64 {
	if b == -1 {
		return 0
	}
	return a % b
}

func (NativeLong) Neg(a int64) int64 { return -a }
func (NativeLong) Shl(a int64, n uint) int64 { return a << (n & 63) }
func (NativeLong) Shr(a int64, n uint) int64 { return a >> (n & 63) }
func (NativeLong) Ushr(a int64, n uint) int64 { return int64(uint64(a) >> (n & 63)) }

func (NativeLong) Cmp(a, b int64) int32 {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// NativeDouble implements Double with Go float64.
type NativeDouble struct{}

func (NativeDouble) Add(a, b float64) float64 { return a + b }
func (NativeDouble) Sub(a, b float64) float64 { return a - b }
func (NativeDouble) Mul(a, b float64) float64 { return a * b }
func (NativeDouble) Div(a, b float64) float64 { return a / b }
func (NativeDouble) Rem(a, b float64) float64 { return math.Mod(a, b) }
func (NativeDouble) Neg(a float64) float64 { return -a }

func (NativeDouble) Cmp(a, b float64, nan int32) int32 {
	switch {
	case math.IsNaN(a) || math.IsNaN(b):
		return nan
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (NativeDouble) ToInt(a float64) int32 { return DoubleToInt(a) }
func (NativeDouble) ToLong(a float64) int64 { return DoubleToLong(a) }

// ---------------------------------------------------------------------------
// Saturating conversions (JLS 5.1.3)
// ---------------------------------------------------------------------------

// DoubleToInt converts with NaN mapping to 0 and saturation at the int bounds.
func DoubleToInt(a float64) int32 {
	switch {
	case math.IsNaN(a):
		return 0
	case a >= math.MaxInt32:
		return math.MaxInt32
	case a <= math.MinInt32:
		return math.MinInt32
	}
	return int32(a)
}

// DoubleToLong converts with NaN mapping to 0 and saturation at the long bounds.
func DoubleToLong(a float64) int64 {
	switch {
	case math.IsNaN(a):
		return 0
	case a >= math.MaxInt64:
		return math.MaxInt64
	case a <= math.MinInt64:
		return math.MinInt64
	}
	return int64(a)
}

// FloatToInt is DoubleToInt for single precision operands.
func FloatToInt(a float32) int32 { return DoubleToInt(float64(a)) }

// FloatToLong is DoubleToLong for single precision operands.
func FloatToLong(a float32) int64 { return DoubleToLong(float64(a)) }

// FloatCmp is the fcmpl/fcmpg comparison.
func FloatCmp(a, b float32, nan int32) int32 {
	return NativeDouble{}.Cmp(float64(a), float64(b), nan)
}
