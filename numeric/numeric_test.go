package numeric

import (
	"math"
	"testing"
)

func TestNativeLongOverflowEdges(t *testing.T) {
	var l NativeLong
	if got := l.Div(math.MinInt64, -1); got != math.MinInt64 {
		t.Errorf("MinInt64 / -1 = %d, want MinInt64", got)
	}
	if got := l.Rem(math.MinInt64, -1); got != 0 {
		t.Errorf("MinInt64 %% -1 = %d, want 0", got)
	}
	if got := l.Shl(1, 65); got != 2 {
		t.Errorf("1 << 65 = %d, want 2 (shift masked to 6 bits)", got)
	}
	if got := l.Ushr(-1, 60); got != 15 {
		t.Errorf("-1 >>> 60 = %d, want 15", got)
	}
}

func TestNativeLongCmp(t *testing.T) {
	var l NativeLong
	tests := []struct {
		a, b int64
		want int32
	}{
		{1, 2, -1},
		{2, 1, 1},
		{7, 7, 0},
		{math.MinInt64, math.MaxInt64, -1},
	}
	for _, tt := range tests {
		if got := l.Cmp(tt.a, tt.b); got != tt.want {
			t.Errorf("Cmp(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestDoubleCmpNaN(t *testing.T) {
	var d NativeDouble
	nan := math.NaN()
	if got := d.Cmp(nan, 1, -1); got != -1 {
		t.Errorf("dcmpl with NaN = %d, want -1", got)
	}
	if got := d.Cmp(1, nan, 1); got != 1 {
		t.Errorf("dcmpg with NaN = %d, want 1", got)
	}
	if got := d.Cmp(1.5, 1.5, 1); got != 0 {
		t.Errorf("Cmp equal = %d, want 0", got)
	}
}

func TestSaturatingConversions(t *testing.T) {
	if got := DoubleToInt(math.NaN()); got != 0 {
		t.Errorf("NaN -> int = %d", got)
	}
	if got := DoubleToInt(1e20); got != math.MaxInt32 {
		t.Errorf("1e20 -> int = %d", got)
	}
	if got := DoubleToInt(-1e20); got != math.MinInt32 {
		t.Errorf("-1e20 -> int = %d", got)
	}
	if got := DoubleToLong(math.Inf(1)); got != math.MaxInt64 {
		t.Errorf("+Inf -> long = %d", got)
	}
	if got := FloatToInt(-3.9); got != -3 {
		t.Errorf("-3.9f -> int = %d, want -3", got)
	}
	if got := FloatToLong(float32(math.Inf(-1))); got != math.MinInt64 {
		t.Errorf("-Inf f -> long = %d", got)
	}
}
