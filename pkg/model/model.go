// Package model defines the predictive model capability consumed by the pipeline.
package model

import (
	"context"

	"github.com/menta2k/fruit-ripeness/pkg/tensor"
	"github.com/menta2k/fruit-ripeness/pkg/types"
)

// DefaultGeometry is used when a model does not declare a usable input shape
var DefaultGeometry = types.Geometry{Height: 224, Width: 224, Channels: 3}

// Model is an opaque, stateless callable. Invoke must be safe for concurrent use.
type Model interface {
	// Geometry is the declared input contract, queryable before the first Invoke
	Geometry() types.Geometry
	// Invoke runs inference on a [1,H,W,C] tensor
	Invoke(ctx context.Context, input tensor.Array) (tensor.RawOutputSet, error)
}

// Func adapts a plain function into a Model
type Func struct {
	Input types.Geometry
	Fn    func(ctx context.Context, input tensor.Array) (tensor.RawOutputSet, error)
}

// Geometry returns the declared input geometry
func (f Func) Geometry() types.Geometry {
	return f.Input
}

// Invoke calls the wrapped function
func (f Func) Invoke(ctx context.Context, input tensor.Array) (tensor.RawOutputSet, error) {
	return f.Fn(ctx, input)
}

// GeometryFromShape reads an NHWC input shape. Height and width fall back to
// 224x224 when they are dynamic or missing, channels fall back to 3.
func GeometryFromShape(dims []int64) (types.Geometry, bool) {
	g := DefaultGeometry
	if len(dims) != 4 || dims[1] <= 0 || dims[2] <= 0 {
		return g, false
	}
	g.Height = int(dims[1])
	g.Width = int(dims[2])
	if dims[3] == 1 || dims[3] == 3 {
		g.Channels = int(dims[3])
	}
	return g, true
}
