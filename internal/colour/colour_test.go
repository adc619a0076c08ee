package colour

import (
	"math"
	"testing"
)

func TestBin_KeepsEndpointsAndMergesNeighbours(t *testing.T) {
	for _, res := range []int{2, 8, 32, 64, 255} {
		if got := White.Bin(res); got != White {
			t.Fatalf("res=%d white binned to %+v", res, got)
		}
		if got := (RGBA{0, 0, 0, 0}).Bin(res); got != (RGBA{}) {
			t.Fatalf("res=%d zero binned to %+v", res, got)
		}
	}
	a := RGBA{0.50, 0.50, 0.50, 1}.Bin(8)
	b := RGBA{0.52, 0.51, 0.53, 1}.Bin(8)
	if a.Hash() != b.Hash() {
		t.Fatalf("expected near colours to share a bin: %+v vs %+v", a, b)
	}
}

func TestSqDistRGB_IgnoresAlpha(t *testing.T) {
	d := SqDistRGB(RGBA{1, 0, 0, 0}, RGBA{0, 0, 0, 1})
	if math.Abs(d-1) > 1e-9 {
		t.Fatalf("dist=%v want 1", d)
	}
}

func TestMean(t *testing.T) {
	m := Mean([]RGBA{{1, 0, 0, 1}, {0, 1, 0, 1}})
	if m != (RGBA{0.5, 0.5, 0, 1}) {
		t.Fatalf("mean=%+v", m)
	}
	if Mean(nil) != (RGBA{}) {
		t.Fatalf("mean of nothing should be zero")
	}
}

func TestIsNaN(t *testing.T) {
	nan := float32(math.NaN())
	if !(RGBA{nan, 0, 0, 1}).IsNaN() {
		t.Fatalf("expected NaN detection")
	}
	if Error.IsNaN() {
		t.Fatalf("error colour must be finite")
	}
}
