// Package resolver maps unnamed model outputs onto semantic roles.
//
// The exported model graph does not keep output names stable across export and
// reload, so only shapes and positional order are trusted:
//
//   - a bare single array is the ripeness head
//   - the largest rank-4 output is the thermal heat-map, ties go to the lowest position
//   - rank-1/2 outputs, in declared order, are ripeness then guard
//
// Two scalar heads are assumed to be ordered [ripeness, guard]. That matches the
// training-time head order as far as it is known but has not been verified against
// a labeled fixture.
package resolver

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/menta2k/fruit-ripeness/pkg/tensor"
)

// ErrMalformedOutput means the model returned something the resolver cannot interpret
var ErrMalformedOutput = errors.New("malformed model output")

// Outputs holds the resolved roles. Any field may be nil.
type Outputs struct {
	Ripeness *tensor.Array
	Thermal  *tensor.Array
	Guard    *tensor.Array
}

// Resolver assigns roles to raw outputs
type Resolver struct {
	logger *zap.Logger
}

// New creates a resolver. A nil logger discards output.
func New(logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{logger: logger}
}

// Resolve is the package-level form without logging
func Resolve(raw tensor.RawOutputSet) (Outputs, error) {
	return New(nil).Resolve(raw)
}

// Resolve assigns ripeness, thermal and guard roles from shapes and positions
func (r *Resolver) Resolve(raw tensor.RawOutputSet) (Outputs, error) {
	if len(raw.Arrays) == 0 {
		return Outputs{}, fmt.Errorf("%w: empty output set", ErrMalformedOutput)
	}
	for i, a := range raw.Arrays {
		if err := a.Validate(); err != nil {
			return Outputs{}, fmt.Errorf("%w: output %d: %v", ErrMalformedOutput, i, err)
		}
	}

	if raw.Single {
		if len(raw.Arrays) != 1 {
			return Outputs{}, fmt.Errorf("%w: single output set holds %d arrays", ErrMalformedOutput, len(raw.Arrays))
		}
		ripeness := raw.Arrays[0]
		r.logger.Debug("single output model", zap.Int64s("ripeness_shape", ripeness.Shape))
		return Outputs{Ripeness: &ripeness}, nil
	}

	var spatial, scalar []Candidate
	for i, a := range raw.Arrays {
		c := Classify(i, a)
		switch c.Kind {
		case Spatial:
			spatial = append(spatial, c)
		case Scalar:
			scalar = append(scalar, c)
		default:
			r.logger.Debug("ignoring output", zap.Int("index", i), zap.Int64s("shape", a.Shape))
		}
	}

	var out Outputs

	if best, ok := largest(spatial); ok {
		out.Thermal = &best.Array
		r.logger.Info("thermal output",
			zap.Int("index", best.Index), zap.Int64s("shape", best.Array.Shape))
	}

	// Candidates were collected in positional order, which is the only stable signal.
	if len(scalar) >= 1 {
		out.Ripeness = &scalar[0].Array
		r.logger.Info("ripeness output",
			zap.Int("index", scalar[0].Index), zap.Int64s("shape", scalar[0].Array.Shape))
	}
	if len(scalar) >= 2 {
		out.Guard = &scalar[1].Array
		fields := []zap.Field{zap.Int("index", scalar[1].Index), zap.Int64s("shape", scalar[1].Array.Shape)}
		if len(scalar[1].Array.Data) > 0 {
			fields = append(fields, zap.Float32("value", scalar[1].Array.Data[0]))
		}
		r.logger.Info("guard output", fields...)
	}
	if len(scalar) > 2 {
		r.logger.Debug("ignoring extra scalar outputs", zap.Int("count", len(scalar)-2))
	}

	return out, nil
}

// largest picks the candidate with the most elements, keeping the earliest on ties
func largest(candidates []Candidate) (Candidate, bool) {
	if len(candidates) == 0 {
		return Candidate{}, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Array.Size() > best.Array.Size() {
			best = c
		}
	}
	return best, true
}
