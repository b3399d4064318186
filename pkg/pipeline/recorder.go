package pipeline

import (
	"time"

	"github.com/menta2k/fruit-ripeness/pkg/types"
)

// Recorder receives per-request observations, usually to feed metrics
type Recorder interface {
	ObserveGate(decision types.GateDecision)
	ObserveInference(elapsed time.Duration, err error)
	ObserveRender(err error)
}

type nopRecorder struct{}

func (nopRecorder) ObserveGate(types.GateDecision)         {}
func (nopRecorder) ObserveInference(time.Duration, error) {}
func (nopRecorder) ObserveRender(error)                   {}
