// Package gate rejects images whose colors do not fall in the guava spectrum.
//
// Guavas range from green to yellow, which is hue 25-85 on the 0-179 OpenCV hue
// scale. When too few pixels fall in that band the image is rejected before any
// model inference runs.
package gate

import (
	"fmt"
	"math"

	"github.com/menta2k/fruit-ripeness/pkg/types"
)

// DefaultThreshold is the minimum percentage (0-100) of in-band pixels
const DefaultThreshold = 20.0

// Band is an inclusive HSV range. Hue uses the 0-179 scale, saturation and value 0-255.
type Band struct {
	HueMin, HueMax uint8
	SatMin, SatMax uint8
	ValMin, ValMax uint8
}

// GuavaBand is the green-to-yellow band of the target fruit
var GuavaBand = Band{
	HueMin: 25, HueMax: 85,
	SatMin: 40, SatMax: 255,
	ValMin: 40, ValMax: 255,
}

// Contains reports whether an HSV triple lies inside the band
func (b Band) Contains(h, s, v uint8) bool {
	return h >= b.HueMin && h <= b.HueMax &&
		s >= b.SatMin && s <= b.SatMax &&
		v >= b.ValMin && v <= b.ValMax
}

// Config controls the gate
type Config struct {
	Enabled   bool
	Threshold float64
	Band      Band
}

// Gate is a configured color-spectrum check
type Gate struct {
	config Config
}

// New creates a gate with the guava band and default threshold
func New() *Gate {
	return &Gate{
		config: Config{
			Enabled:   true,
			Threshold: DefaultThreshold,
			Band:      GuavaBand,
		},
	}
}

// NewWithConfig creates a gate with custom configuration. A zero band falls back to GuavaBand.
func NewWithConfig(config Config) *Gate {
	if config.Band == (Band{}) {
		config.Band = GuavaBand
	}
	return &Gate{config: config}
}

// Enabled reports whether the gate filters anything
func (g *Gate) Enabled() bool {
	return g.config.Enabled
}

// Threshold returns the match percentage required to pass
func (g *Gate) Threshold() float64 {
	return g.config.Threshold
}

// Check runs the gate against a pixel buffer
func (g *Gate) Check(pixels types.PixelBuffer) types.GateDecision {
	if !g.config.Enabled {
		return types.GateDecision{
			IsMatch:       true,
			MatchFraction: 100.0,
			Message:       "Gate disabled — all images pass",
		}
	}

	pct := MatchPercent(pixels, g.config.Band)
	if pct >= g.config.Threshold {
		return types.GateDecision{
			IsMatch:       true,
			MatchFraction: pct,
			Message:       fmt.Sprintf("Guava confirmed (%.1f%% green/yellow pixels)", pct),
		}
	}

	return types.GateDecision{
		IsMatch:       false,
		MatchFraction: pct,
		Message:       "Not a guava",
	}
}

// Check is the stateless form: threshold is a percentage, not a 0-1 fraction
func Check(pixels types.PixelBuffer, thresholdPct float64, enabled bool) types.GateDecision {
	return NewWithConfig(Config{Enabled: enabled, Threshold: thresholdPct}).Check(pixels)
}

// MatchPercent returns the share of pixels inside band, in percent
func MatchPercent(pixels types.PixelBuffer, band Band) float64 {
	total := pixels.Len()
	if total == 0 {
		return 0
	}

	matching := 0
	for y := 0; y < pixels.Height(); y++ {
		for x := 0; x < pixels.Width(); x++ {
			h, s, v := RGBToHSV(pixels.RGB(x, y))
			if band.Contains(h, s, v) {
				matching++
			}
		}
	}

	return float64(matching) / float64(total) * 100.0
}

// RGBToHSV converts 8-bit RGB to OpenCV's 8-bit HSV: H in 0-179, S and V in 0-255
func RGBToHSV(r, g, b uint8) (uint8, uint8, uint8) {
	rf, gf, bf := float64(r), float64(g), float64(b)
	maxC := math.Max(rf, math.Max(gf, bf))
	minC := math.Min(rf, math.Min(gf, bf))
	delta := maxC - minC

	v := maxC
	s := 0.0
	if maxC > 0 {
		s = delta * 255.0 / maxC
	}

	h := 0.0
	if delta > 0 {
		switch maxC {
		case rf:
			h = 60.0 * (gf - bf) / delta
		case gf:
			h = 120.0 + 60.0*(bf-rf)/delta
		default:
			h = 240.0 + 60.0*(rf-gf)/delta
		}
		if h < 0 {
			h += 360.0
		}
	}

	hue := math.Round(h / 2.0)
	if hue >= 180 {
		hue -= 180
	}

	return uint8(hue), uint8(math.Round(s)), uint8(math.Round(v))
}
