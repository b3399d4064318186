package resolver

import (
	"github.com/menta2k/fruit-ripeness/pkg/tensor"
)

// Kind is the role family an output tensor can belong to, judged from its shape alone
type Kind int

const (
	// Ignored outputs have a rank the resolver does not interpret
	Ignored Kind = iota
	// Spatial outputs are rank 4 (batch x H x W x C) heat-map candidates
	Spatial
	// Scalar outputs are rank 1 or 2 per-class probability candidates
	Scalar
)

func (k Kind) String() string {
	switch k {
	case Spatial:
		return "spatial"
	case Scalar:
		return "scalar"
	default:
		return "ignored"
	}
}

// Candidate is one classified output, remembering where the model emitted it
type Candidate struct {
	Kind  Kind
	Index int
	Array tensor.Array
}

// Classify tags one output by rank. Rank-1 scalars are reshaped to a single row.
func Classify(index int, a tensor.Array) Candidate {
	switch a.Rank() {
	case 4:
		return Candidate{Kind: Spatial, Index: index, Array: a}
	case 2:
		return Candidate{Kind: Scalar, Index: index, Array: a}
	case 1:
		row := tensor.Array{Shape: []int64{1, a.Shape[0]}, Data: a.Data}
		return Candidate{Kind: Scalar, Index: index, Array: row}
	default:
		return Candidate{Kind: Ignored, Index: index, Array: a}
	}
}
