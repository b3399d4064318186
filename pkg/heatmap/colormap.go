package heatmap

import (
	"fmt"
	"image/color"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Colormap maps an 8-bit intensity to a color
type Colormap [256]color.NRGBA

// inferno key colors at 0.0, 0.1, ..., 1.0
var infernoStops = []string{
	"#000004", "#160b39", "#420a68", "#6a176e", "#932667", "#bc3754",
	"#dd513a", "#f37819", "#fca50a", "#f6d746", "#fcffa4",
}

// Inferno runs from near-black purple (cool) through red and orange to pale yellow (hot)
var Inferno = buildColormap(infernoStops)

func buildColormap(stops []string) Colormap {
	keys := make([]colorful.Color, len(stops))
	for i, hex := range stops {
		c, err := colorful.Hex(hex)
		if err != nil {
			panic(fmt.Sprintf("heatmap: bad colormap stop %q: %v", hex, err))
		}
		keys[i] = c
	}

	var cm Colormap
	segments := float64(len(keys) - 1)
	for i := 0; i < 256; i++ {
		pos := float64(i) / 255.0 * segments
		seg := int(pos)
		if seg >= len(keys)-1 {
			seg = len(keys) - 2
		}
		c := keys[seg].BlendLab(keys[seg+1], pos-float64(seg)).Clamped()
		r, g, b := c.RGB255()
		cm[i] = color.NRGBA{R: r, G: g, B: b, A: 255}
	}
	return cm
}

// At returns the color for intensity v
func (cm *Colormap) At(v uint8) color.NRGBA {
	return cm[v]
}
