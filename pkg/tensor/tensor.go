// Package tensor holds the numeric arrays exchanged with a predictive model.
package tensor

import (
	"fmt"
	"math"
)

// Array is a dense row-major float32 array with an explicit shape
type Array struct {
	Shape []int64   `json:"shape"`
	Data  []float32 `json:"data"`
}

// New creates an Array and checks that the data fits the shape
func New(shape []int64, data []float32) (Array, error) {
	a := Array{Shape: append([]int64(nil), shape...), Data: data}
	if err := a.Validate(); err != nil {
		return Array{}, err
	}
	return a, nil
}

// Rank returns the number of dimensions
func (a Array) Rank() int {
	return len(a.Shape)
}

// Size returns the total element count implied by the shape, or -1 when the
// product does not fit in an int64 or a dimension is negative
func (a Array) Size() int64 {
	n, ok := checkedSize(a.Shape)
	if !ok {
		return -1
	}
	return n
}

func checkedSize(shape []int64) (int64, bool) {
	n := int64(1)
	for _, d := range shape {
		if d < 0 {
			return 0, false
		}
		if d != 0 && n > math.MaxInt64/d {
			return 0, false
		}
		n *= d
	}
	return n, true
}

// Validate reports whether the array is a well-formed numeric array
func (a Array) Validate() error {
	for i, d := range a.Shape {
		if d < 0 {
			return fmt.Errorf("dimension %d is negative (%d)", i, d)
		}
	}
	if _, ok := checkedSize(a.Shape); !ok {
		return fmt.Errorf("shape %v overflows the element count", a.Shape)
	}
	if a.Data == nil && a.Size() > 0 {
		return fmt.Errorf("shape %v has no data", a.Shape)
	}
	if got := int64(len(a.Data)); got != a.Size() {
		return fmt.Errorf("shape %v needs %d values, got %d", a.Shape, a.Size(), got)
	}
	return nil
}

// Reshape returns a view of the same data with a new shape
func (a Array) Reshape(shape ...int64) (Array, error) {
	return New(shape, a.Data)
}

// Flatten returns the underlying values in row-major order
func (a Array) Flatten() []float32 {
	return a.Data
}

// MinMax returns the smallest and largest values. Both are zero for an empty array.
func (a Array) MinMax() (float32, float32) {
	if len(a.Data) == 0 {
		return 0, 0
	}
	lo, hi := a.Data[0], a.Data[0]
	for _, v := range a.Data[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// String renders the shape, useful in logs
func (a Array) String() string {
	return fmt.Sprintf("tensor%v", a.Shape)
}

// RawOutputSet is what a model invocation returns: an ordered list of arrays whose
// shapes are not known in advance. Single is set when the model produced one bare
// array instead of a sequence.
type RawOutputSet struct {
	Arrays []Array
	Single bool
}

// SingleOutput wraps one bare array
func SingleOutput(a Array) RawOutputSet {
	return RawOutputSet{Arrays: []Array{a}, Single: true}
}

// MultiOutput wraps an ordered sequence of arrays
func MultiOutput(arrays ...Array) RawOutputSet {
	return RawOutputSet{Arrays: arrays}
}

// Shapes lists the shape of every array, in order
func (r RawOutputSet) Shapes() [][]int64 {
	shapes := make([][]int64, len(r.Arrays))
	for i, a := range r.Arrays {
		shapes[i] = a.Shape
	}
	return shapes
}
