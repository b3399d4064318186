package types

import (
	"fmt"
	"image"
	"image/color"
)

// PixelBuffer is an immutable height x width x channels grid of 8-bit samples.
// Channels is 1 (luminance) or 3 (RGB, in that order).
type PixelBuffer struct {
	height   int
	width    int
	channels int
	pix      []uint8
}

// NewPixelBuffer copies pix into a new buffer
func NewPixelBuffer(height, width, channels int, pix []uint8) (PixelBuffer, error) {
	if channels != 1 && channels != 3 {
		return PixelBuffer{}, fmt.Errorf("unsupported channel count %d", channels)
	}
	if height < 0 || width < 0 {
		return PixelBuffer{}, fmt.Errorf("invalid dimensions %dx%d", width, height)
	}
	if len(pix) != height*width*channels {
		return PixelBuffer{}, fmt.Errorf("expected %d samples, got %d", height*width*channels, len(pix))
	}
	return PixelBuffer{
		height:   height,
		width:    width,
		channels: channels,
		pix:      append([]uint8(nil), pix...),
	}, nil
}

// FromImage converts any image.Image into an RGB PixelBuffer
func FromImage(img image.Image) PixelBuffer {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	pix := make([]uint8, 0, w*h*3)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			pix = append(pix, c.R, c.G, c.B)
		}
	}

	return PixelBuffer{height: h, width: w, channels: 3, pix: pix}
}

// Height returns the number of rows
func (p PixelBuffer) Height() int { return p.height }

// Width returns the number of columns
func (p PixelBuffer) Width() int { return p.width }

// Channels returns 1 or 3
func (p PixelBuffer) Channels() int { return p.channels }

// Len returns the number of pixels
func (p PixelBuffer) Len() int { return p.height * p.width }

// RGB returns the color at (x, y). Luminance buffers report the same value on all channels.
func (p PixelBuffer) RGB(x, y int) (uint8, uint8, uint8) {
	i := (y*p.width + x) * p.channels
	if p.channels == 1 {
		v := p.pix[i]
		return v, v, v
	}
	return p.pix[i], p.pix[i+1], p.pix[i+2]
}

// Image returns a fresh NRGBA copy of the buffer
func (p PixelBuffer) Image() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, p.width, p.height))
	for y := 0; y < p.height; y++ {
		for x := 0; x < p.width; x++ {
			r, g, b := p.RGB(x, y)
			i := img.PixOffset(x, y)
			img.Pix[i+0] = r
			img.Pix[i+1] = g
			img.Pix[i+2] = b
			img.Pix[i+3] = 255
		}
	}
	return img
}

// Geometry is the input contract a model declares
type Geometry struct {
	Height   int `json:"height"`
	Width    int `json:"width"`
	Channels int `json:"channels"`
}

// Shape returns the NHWC shape with a batch of one
func (g Geometry) Shape() []int64 {
	return []int64{1, int64(g.Height), int64(g.Width), int64(g.Channels)}
}

// GateDecision is the outcome of the color gate
type GateDecision struct {
	IsMatch       bool    `json:"is_match"`
	MatchFraction float64 `json:"match_fraction"`
	Message       string  `json:"message"`
}

// PredictionItem is one labeled class probability
type PredictionItem struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}
