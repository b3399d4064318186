// Package heatmap renders a single-channel spatial tensor as a false-color PNG.
package heatmap

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"

	"github.com/menta2k/fruit-ripeness/pkg/tensor"
)

// ErrEncode means the heat-map could not be produced. Callers treat it as non-fatal.
var ErrEncode = errors.New("cannot render heat-map")

const flatEpsilon = 1e-6

// Rendered is an encoded heat-map and its data URI
type Rendered struct {
	PNG     []byte
	DataURI string
}

// MarshalJSON emits the data URI so the image can be embedded directly
func (r Rendered) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.DataURI)
}

// Renderer converts spatial tensors into images
type Renderer struct {
	colormap *Colormap
	encoder  png.Encoder
}

// New creates a renderer using the inferno colormap
func New() *Renderer {
	return &Renderer{
		colormap: &Inferno,
		encoder:  png.Encoder{CompressionLevel: png.DefaultCompression},
	}
}

// NewWithColormap creates a renderer with a custom colormap
func NewWithColormap(cm *Colormap) *Renderer {
	r := New()
	if cm != nil {
		r.colormap = cm
	}
	return r
}

// Render is the package-level form with default settings
func Render(thermal tensor.Array) (Rendered, error) {
	return New().Render(thermal)
}

// Render rescales the tensor to 0-255, applies the colormap and encodes a PNG
func (r *Renderer) Render(thermal tensor.Array) (Rendered, error) {
	img, err := r.Colorize(thermal)
	if err != nil {
		return Rendered{}, err
	}

	var buf bytes.Buffer
	if err := r.encoder.Encode(&buf, img); err != nil {
		return Rendered{}, fmt.Errorf("%w: png encode: %v", ErrEncode, err)
	}

	return Rendered{
		PNG:     buf.Bytes(),
		DataURI: "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}

// Colorize returns the false-color image without encoding it
func (r *Renderer) Colorize(thermal tensor.Array) (*image.NRGBA, error) {
	grid, err := Intensities(thermal)
	if err != nil {
		return nil, err
	}
	h, w := int(grid.Shape[0]), int(grid.Shape[1])

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, r.colormap.At(uint8(grid.Data[y*w+x])))
		}
	}
	return img, nil
}

// Intensities squeezes the tensor to 2-D and linearly rescales it to 0-255.
// A flat tensor yields all zeros.
func Intensities(thermal tensor.Array) (tensor.Array, error) {
	if err := thermal.Validate(); err != nil {
		return tensor.Array{}, fmt.Errorf("%w: %v", ErrEncode, err)
	}

	shape := squeeze(thermal.Shape)
	if len(shape) != 2 {
		return tensor.Array{}, fmt.Errorf("%w: shape %v is not a 2-D grid", ErrEncode, thermal.Shape)
	}
	if shape[0] == 0 || shape[1] == 0 {
		return tensor.Array{}, fmt.Errorf("%w: empty grid %v", ErrEncode, thermal.Shape)
	}

	lo, hi := thermal.MinMax()
	out := make([]float32, len(thermal.Data))
	if span := float64(hi) - float64(lo); span > flatEpsilon {
		for i, v := range thermal.Data {
			out[i] = float32(uint8((float64(v) - float64(lo)) / span * 255))
		}
	}

	return tensor.Array{Shape: shape, Data: out}, nil
}

// squeeze collapses the batch and channel singletons of an NHWC, NHW or HWC map.
// Spatial singletons are kept, so a [1,1,W,1] map stays a single row.
func squeeze(shape []int64) []int64 {
	s := append([]int64(nil), shape...)
	if len(s) == 4 && s[0] == 1 {
		s = s[1:]
	}
	if len(s) == 3 {
		switch {
		case s[2] == 1:
			s = s[:2]
		case s[0] == 1:
			s = s[1:]
		}
	}
	return s
}
