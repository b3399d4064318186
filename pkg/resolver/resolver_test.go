package resolver

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/menta2k/fruit-ripeness/pkg/tensor"
)

func filled(shape []int64, v float32) tensor.Array {
	a := tensor.Array{Shape: shape}
	a.Data = make([]float32, a.Size())
	for i := range a.Data {
		a.Data[i] = v
	}
	return a
}

func sameArray(a, b *tensor.Array) bool {
	if a == nil || b == nil {
		return a == b
	}
	if len(a.Shape) != len(b.Shape) || len(a.Data) != len(b.Data) {
		return false
	}
	for i := range a.Shape {
		if a.Shape[i] != b.Shape[i] {
			return false
		}
	}
	for i := range a.Data {
		if a.Data[i] != b.Data[i] {
			return false
		}
	}
	return true
}

func TestClassify(t *testing.T) {
	tests := []struct {
		shape []int64
		kind  Kind
	}{
		{[]int64{1, 8, 8, 1}, Spatial},
		{[]int64{1, 1}, Scalar},
		{[]int64{3}, Scalar},
		{[]int64{1, 8, 8}, Ignored},
		{[]int64{}, Ignored},
		{[]int64{1, 1, 2, 2, 1}, Ignored},
	}

	for _, tt := range tests {
		c := Classify(7, filled(tt.shape, 0.5))
		if c.Kind != tt.kind {
			t.Errorf("Classify(%v) kind = %s, want %s", tt.shape, c.Kind, tt.kind)
		}
		if c.Index != 7 {
			t.Errorf("Classify(%v) index = %d, want 7", tt.shape, c.Index)
		}
	}
}

func TestClassifyReshapesRankOne(t *testing.T) {
	c := Classify(0, filled([]int64{3}, 0.1))
	if len(c.Array.Shape) != 2 || c.Array.Shape[0] != 1 || c.Array.Shape[1] != 3 {
		t.Errorf("Expected shape [1 3], got %v", c.Array.Shape)
	}
}

func TestResolveSingleArray(t *testing.T) {
	raw := tensor.SingleOutput(filled([]int64{1, 8, 8, 1}, 0.3))

	out, err := Resolve(raw)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if out.Ripeness == nil {
		t.Fatal("Expected ripeness to be populated")
	}
	if out.Thermal != nil || out.Guard != nil {
		t.Error("Expected thermal and guard to be absent for a single-array output")
	}
}

func TestResolveSingleScalarInSequence(t *testing.T) {
	out, err := Resolve(tensor.MultiOutput(filled([]int64{1, 1}, 0.9)))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if out.Ripeness == nil {
		t.Error("Expected ripeness to be populated")
	}
	if out.Thermal != nil || out.Guard != nil {
		t.Error("Expected thermal and guard to be absent")
	}
}

func TestResolveThreeHeads(t *testing.T) {
	thermal := filled([]int64{1, 16, 16, 1}, 0.5)
	ripeness := filled([]int64{1, 1}, 0.01)
	guard := filled([]int64{1, 1}, 0.99)

	out, err := Resolve(tensor.MultiOutput(thermal, ripeness, guard))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if !sameArray(out.Thermal, &thermal) {
		t.Error("Expected thermal to be the rank-4 output")
	}
	if !sameArray(out.Ripeness, &ripeness) {
		t.Error("Expected ripeness to be the output at position 1")
	}
	if !sameArray(out.Guard, &guard) {
		t.Error("Expected guard to be the output at position 2")
	}
}

func TestResolveOrderIndependentOfMagnitude(t *testing.T) {
	// Scalars first, heat-map last, with values that would swap roles if sorted by value
	ripeness := filled([]int64{2}, 0.9)
	guard := filled([]int64{1, 4}, 0.1)
	thermal := filled([]int64{1, 4, 4, 1}, 0.2)

	out, err := Resolve(tensor.MultiOutput(ripeness, guard, thermal))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if out.Ripeness == nil || out.Ripeness.Shape[1] != 2 {
		t.Errorf("Expected ripeness from position 0 reshaped to [1 2], got %v", out.Ripeness)
	}
	if out.Guard == nil || out.Guard.Shape[1] != 4 {
		t.Errorf("Expected guard from position 1, got %v", out.Guard)
	}
	if !sameArray(out.Thermal, &thermal) {
		t.Error("Expected thermal from position 2")
	}
}

func TestResolveLargestSpatialWins(t *testing.T) {
	small := filled([]int64{1, 4, 4, 1}, 1)
	big := filled([]int64{1, 8, 8, 1}, 2)

	out, err := Resolve(tensor.MultiOutput(small, big))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !sameArray(out.Thermal, &big) {
		t.Error("Expected the larger spatial output to be chosen")
	}
	if out.Ripeness != nil {
		t.Error("Expected ripeness to be absent with no scalar outputs")
	}
}

func TestResolveSpatialTieBreaksByPosition(t *testing.T) {
	first := filled([]int64{1, 4, 4, 1}, 1)
	second := filled([]int64{1, 4, 4, 1}, 2)

	out, err := Resolve(tensor.MultiOutput(filled([]int64{1, 1}, 0.5), first, second))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !sameArray(out.Thermal, &first) {
		t.Error("Expected the earliest equal-sized spatial output to win")
	}
}

func TestResolveIgnoresExtraAndUnknownRanks(t *testing.T) {
	a := filled([]int64{1, 1}, 0.1)
	b := filled([]int64{1, 1}, 0.2)
	c := filled([]int64{1, 1}, 0.3)
	rank3 := filled([]int64{1, 4, 4}, 0.4)

	out, err := Resolve(tensor.MultiOutput(rank3, a, b, c))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if out.Thermal != nil {
		t.Error("Expected rank-3 output to be ignored")
	}
	if !sameArray(out.Ripeness, &a) || !sameArray(out.Guard, &b) {
		t.Error("Expected first two scalars as ripeness and guard")
	}
}

func TestResolveMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  tensor.RawOutputSet
	}{
		{"empty", tensor.MultiOutput()},
		{"empty single", tensor.RawOutputSet{Single: true}},
		{"short data", tensor.MultiOutput(tensor.Array{Shape: []int64{1, 2}, Data: []float32{1}})},
		{"negative dim", tensor.MultiOutput(tensor.Array{Shape: []int64{1, -1}, Data: nil})},
		{"nil data", tensor.MultiOutput(filled([]int64{1, 1}, 0), tensor.Array{Shape: []int64{1, 4, 4, 1}})},
		{"overflowing spatial", tensor.MultiOutput(tensor.Array{Shape: []int64{1, 1 << 32, 1 << 32, 1}})},
		{"overflowing single", tensor.SingleOutput(tensor.Array{Shape: []int64{1 << 40, 1 << 40}})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(tt.raw)
			if !errors.Is(err, ErrMalformedOutput) {
				t.Errorf("Expected ErrMalformedOutput, got %v", err)
			}
		})
	}
}

func TestResolveLogsRoles(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := New(zap.New(core))

	_, err := r.Resolve(tensor.MultiOutput(
		filled([]int64{1, 4, 4, 1}, 0),
		filled([]int64{1, 1}, 0.4),
		filled([]int64{1, 1}, 0.6),
	))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	for _, msg := range []string{"thermal output", "ripeness output", "guard output"} {
		if logs.FilterMessage(msg).Len() != 1 {
			t.Errorf("Expected one %q log entry, got %d", msg, logs.FilterMessage(msg).Len())
		}
	}
}
