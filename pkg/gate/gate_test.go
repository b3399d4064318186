package gate

import (
	"math"
	"testing"

	"github.com/menta2k/fruit-ripeness/pkg/types"
)

// solidBuffer creates a uniformly colored RGB buffer
func solidBuffer(t *testing.T, width, height int, r, g, b uint8) types.PixelBuffer {
	t.Helper()
	pix := make([]uint8, 0, width*height*3)
	for i := 0; i < width*height; i++ {
		pix = append(pix, r, g, b)
	}
	buf, err := types.NewPixelBuffer(height, width, 3, pix)
	if err != nil {
		t.Fatalf("NewPixelBuffer failed: %v", err)
	}
	return buf
}

// stripedBuffer paints the first greenRows rows mid-green and the rest red
func stripedBuffer(t *testing.T, width, height, greenRows int) types.PixelBuffer {
	t.Helper()
	pix := make([]uint8, 0, width*height*3)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if y < greenRows {
				pix = append(pix, 0, 160, 0)
			} else {
				pix = append(pix, 220, 20, 20)
			}
		}
	}
	buf, err := types.NewPixelBuffer(height, width, 3, pix)
	if err != nil {
		t.Fatalf("NewPixelBuffer failed: %v", err)
	}
	return buf
}

func TestNew(t *testing.T) {
	g := New()
	if g == nil {
		t.Fatal("New() returned nil")
	}
	if !g.Enabled() {
		t.Error("Expected gate to be enabled by default")
	}
	if g.Threshold() != DefaultThreshold {
		t.Errorf("Expected threshold %f, got %f", DefaultThreshold, g.Threshold())
	}
}

func TestRGBToHSV(t *testing.T) {
	tests := []struct {
		name    string
		r, g, b uint8
		h, s, v uint8
	}{
		{"red", 255, 0, 0, 0, 255, 255},
		{"yellow", 255, 255, 0, 30, 255, 255},
		{"green", 0, 255, 0, 60, 255, 255},
		{"mid green", 0, 128, 0, 60, 255, 128},
		{"blue", 0, 0, 255, 120, 255, 255},
		{"gray", 128, 128, 128, 0, 0, 128},
		{"black", 0, 0, 0, 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, s, v := RGBToHSV(tt.r, tt.g, tt.b)
			if h != tt.h || s != tt.s || v != tt.v {
				t.Errorf("RGBToHSV(%d,%d,%d) = (%d,%d,%d), want (%d,%d,%d)",
					tt.r, tt.g, tt.b, h, s, v, tt.h, tt.s, tt.v)
			}
		})
	}
}

func TestBandContainsIsInclusive(t *testing.T) {
	if !GuavaBand.Contains(25, 40, 40) {
		t.Error("Expected lower corner to be inside the band")
	}
	if !GuavaBand.Contains(85, 255, 255) {
		t.Error("Expected upper corner to be inside the band")
	}
	if GuavaBand.Contains(24, 255, 255) || GuavaBand.Contains(86, 255, 255) {
		t.Error("Expected hues outside 25-85 to be rejected")
	}
	if GuavaBand.Contains(60, 39, 255) || GuavaBand.Contains(60, 255, 39) {
		t.Error("Expected low saturation or value to be rejected")
	}
}

func TestCheckRejectsRed(t *testing.T) {
	decision := Check(solidBuffer(t, 100, 100, 255, 0, 0), DefaultThreshold, true)

	if decision.IsMatch {
		t.Error("Expected red image to be rejected")
	}
	if decision.MatchFraction != 0 {
		t.Errorf("Expected match fraction 0, got %f", decision.MatchFraction)
	}
	if decision.Message != "Not a guava" {
		t.Errorf("Unexpected message %q", decision.Message)
	}
}

func TestCheckAcceptsGreen(t *testing.T) {
	decision := Check(solidBuffer(t, 100, 100, 0, 128, 0), DefaultThreshold, true)

	if !decision.IsMatch {
		t.Error("Expected mid-green image to pass")
	}
	if math.Abs(decision.MatchFraction-100.0) > 1e-9 {
		t.Errorf("Expected match fraction 100, got %f", decision.MatchFraction)
	}
	if decision.Message != "Guava confirmed (100.0% green/yellow pixels)" {
		t.Errorf("Unexpected message %q", decision.Message)
	}
}

func TestCheckThresholdBoundary(t *testing.T) {
	tests := []struct {
		greenRows int
		want      bool
	}{
		{greenRows: 19, want: false},
		{greenRows: 20, want: true},
		{greenRows: 21, want: true},
	}

	for _, tt := range tests {
		decision := Check(stripedBuffer(t, 100, 100, tt.greenRows), 20.0, true)
		if decision.IsMatch != tt.want {
			t.Errorf("greenRows=%d: IsMatch = %v, want %v (fraction %.2f)",
				tt.greenRows, decision.IsMatch, tt.want, decision.MatchFraction)
		}
		if math.Abs(decision.MatchFraction-float64(tt.greenRows)) > 1e-9 {
			t.Errorf("greenRows=%d: fraction = %f", tt.greenRows, decision.MatchFraction)
		}
	}
}

func TestCheckDisabledPassesEverything(t *testing.T) {
	inputs := []types.PixelBuffer{
		solidBuffer(t, 10, 10, 255, 0, 0),
		solidBuffer(t, 10, 10, 0, 0, 255),
		solidBuffer(t, 0, 0, 0, 0, 0),
	}

	for i, buf := range inputs {
		decision := Check(buf, 99.0, false)
		if !decision.IsMatch || decision.MatchFraction != 100.0 {
			t.Errorf("input %d: expected pass-through, got %+v", i, decision)
		}
	}
}

func TestCheckEmptyBuffer(t *testing.T) {
	decision := New().Check(solidBuffer(t, 0, 0, 0, 0, 0))
	if decision.IsMatch {
		t.Error("Expected empty buffer to be rejected")
	}
	if decision.MatchFraction != 0 {
		t.Errorf("Expected match fraction 0, got %f", decision.MatchFraction)
	}
}

func TestCheckLuminanceBuffer(t *testing.T) {
	buf, err := types.NewPixelBuffer(2, 2, 1, []uint8{10, 200, 30, 255})
	if err != nil {
		t.Fatalf("NewPixelBuffer failed: %v", err)
	}
	if pct := MatchPercent(buf, GuavaBand); pct != 0 {
		t.Errorf("Expected gray pixels to never match, got %f", pct)
	}
}

func BenchmarkCheck(b *testing.B) {
	pix := make([]uint8, 640*480*3)
	for i := 1; i < len(pix); i += 3 {
		pix[i] = 180
	}
	buf, _ := types.NewPixelBuffer(480, 640, 3, pix)
	g := New()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		g.Check(buf)
	}
}
