// Package pipeline runs one inference request end to end:
// decode, color gate, normalize, invoke, resolve, then rank and render.
//
// A gate rejection is a normal result, not an error. Heat-map rendering is
// best-effort and never invalidates the ripeness predictions. Nothing is retried.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/menta2k/fruit-ripeness/pkg/gate"
	"github.com/menta2k/fruit-ripeness/pkg/heatmap"
	"github.com/menta2k/fruit-ripeness/pkg/model"
	"github.com/menta2k/fruit-ripeness/pkg/processing"
	"github.com/menta2k/fruit-ripeness/pkg/ranker"
	"github.com/menta2k/fruit-ripeness/pkg/resolver"
	"github.com/menta2k/fruit-ripeness/pkg/tensor"
	"github.com/menta2k/fruit-ripeness/pkg/types"
)

// GateSummary is the gate part of a result
type GateSummary struct {
	MatchFraction float64 `json:"match_fraction"`
	Message       string  `json:"message"`
}

// Meta carries request diagnostics
type Meta struct {
	RequestID        string   `json:"request_id,omitempty"`
	ModelInputShape  []int64  `json:"model_input_shape"`
	ProcessingTimeMS float64  `json:"processing_time_ms"`
	GateConfidence   float64  `json:"gate_confidence"`
	GateMessage      string   `json:"gate_message"`
	GuardConfidence  *float64 `json:"guard_confidence,omitempty"`
}

// Result is the structured outcome of one request
type Result struct {
	Success      bool                   `json:"success"`
	IsGuava      bool                   `json:"is_guava"`
	Message      string                 `json:"message,omitempty"`
	Predictions  []types.PredictionItem `json:"predictions"`
	ThermalImage *heatmap.Rendered      `json:"thermal_image"`
	Gate         GateSummary            `json:"gate"`
	Meta         Meta                   `json:"meta"`
}

// Pipeline holds everything a request needs. It is safe for concurrent use.
type Pipeline struct {
	model     model.Model
	gate      *gate.Gate
	processor *processing.Processor
	resolver  *resolver.Resolver
	renderer  *heatmap.Renderer
	labels    []string
	topK      int
	slots     *semaphore.Weighted
	recorder  Recorder
	logger    *zap.Logger
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithLabels sets the class labels, by position
func WithLabels(labels []string) Option {
	return func(p *Pipeline) {
		p.labels = append([]string(nil), labels...)
	}
}

// WithTopK limits the number of predictions returned
func WithTopK(k int) Option {
	return func(p *Pipeline) {
		if k > 0 {
			p.topK = k
		}
	}
}

// WithMaxConcurrent bounds how many model invocations run at once
func WithMaxConcurrent(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.slots = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithRecorder attaches a metrics recorder
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.recorder = r
		}
	}
}

// WithLogger sets the logger for the pipeline and its stages
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithRenderer replaces the heat-map renderer
func WithRenderer(r *heatmap.Renderer) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.renderer = r
		}
	}
}

// New builds a pipeline around a loaded model and a configured gate
func New(m model.Model, g *gate.Gate, opts ...Option) (*Pipeline, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: no model loaded", ErrPrecondition)
	}
	if g == nil {
		return nil, fmt.Errorf("%w: no gate configured", ErrPrecondition)
	}

	p := &Pipeline{
		model:    m,
		gate:     g,
		renderer: heatmap.New(),
		topK:     ranker.DefaultTopK,
		slots:    semaphore.NewWeighted(int64(runtime.NumCPU())),
		recorder: nopRecorder{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.processor = processing.NewProcessor(processing.WithLogger(p.logger))
	p.resolver = resolver.New(p.logger)

	return p, nil
}

// Geometry returns the model input geometry
func (p *Pipeline) Geometry() types.Geometry {
	return p.model.Geometry()
}

// InputShape returns the declared model input shape
func (p *Pipeline) InputShape() []int64 {
	if s, ok := p.model.(interface{ InputShape() []int64 }); ok {
		return s.InputShape()
	}
	return p.model.Geometry().Shape()
}

// Labels returns the configured labels
func (p *Pipeline) Labels() []string {
	return p.labels
}

// Run processes one uploaded image. ctx only bounds the wait for an inference
// slot and is handed to the model; stages are not interrupted once running.
func (p *Pipeline) Run(ctx context.Context, data []byte) (*Result, error) {
	start := time.Now()

	pixels, err := p.processor.Decode(data)
	if err != nil {
		return nil, err
	}

	decision := p.gate.Check(pixels)
	p.recorder.ObserveGate(decision)

	result := &Result{
		Success:     true,
		IsGuava:     decision.IsMatch,
		Message:     decision.Message,
		Predictions: []types.PredictionItem{},
		Gate: GateSummary{
			MatchFraction: decision.MatchFraction,
			Message:       decision.Message,
		},
		Meta: Meta{
			ModelInputShape: p.InputShape(),
			GateConfidence:  round(decision.MatchFraction/100.0, 4),
			GateMessage:     decision.Message,
		},
	}

	if !decision.IsMatch {
		p.logger.Info("color gate rejected image",
			zap.Float64("match_pct", decision.MatchFraction),
			zap.String("message", decision.Message))
		result.Meta.ProcessingTimeMS = elapsedMS(start)
		return result, nil
	}

	geometry := p.model.Geometry()
	input, err := p.processor.Normalize(pixels, geometry.Height, geometry.Width, geometry.Channels)
	if err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}

	raw, inferElapsed, err := p.invoke(ctx, input)
	if errors.Is(err, errNoSlot) {
		return nil, err
	}

	p.recorder.ObserveInference(inferElapsed, err)
	if err != nil {
		p.logger.Error("inference error", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}

	outputs, err := p.resolver.Resolve(raw)
	if err != nil {
		p.logger.Error("cannot interpret model output",
			zap.Any("shapes", raw.Shapes()), zap.Error(err))
		return nil, err
	}

	p.logger.Info("inference complete",
		zap.Duration("elapsed", inferElapsed),
		zap.Bool("ripeness", outputs.Ripeness != nil),
		zap.Bool("thermal", outputs.Thermal != nil),
		zap.Bool("guard", outputs.Guard != nil))

	if outputs.Ripeness != nil {
		result.Predictions = ranker.Rank(outputs.Ripeness.Flatten(), p.labels, p.topK)
	}

	if outputs.Guard != nil && len(outputs.Guard.Data) > 0 {
		guard := round(float64(outputs.Guard.Data[0]), 4)
		result.Meta.GuardConfidence = &guard
	}

	if outputs.Thermal != nil {
		rendered, err := p.renderer.Render(*outputs.Thermal)
		p.recorder.ObserveRender(err)
		if err != nil {
			p.logger.Warn("could not render thermal image", zap.Error(err))
		} else {
			result.ThermalImage = &rendered
		}
	}

	result.Meta.ProcessingTimeMS = elapsedMS(start)
	return result, nil
}

var errNoSlot = errors.New("waiting for inference slot")

// invoke holds an inference slot for the duration of the model call, released even if the model panics
func (p *Pipeline) invoke(ctx context.Context, input tensor.Array) (tensor.RawOutputSet, time.Duration, error) {
	if err := p.slots.Acquire(ctx, 1); err != nil {
		return tensor.RawOutputSet{}, 0, fmt.Errorf("%w: %w", errNoSlot, err)
	}
	defer p.slots.Release(1)

	start := time.Now()
	raw, err := p.model.Invoke(ctx, input)
	return raw, time.Since(start), err
}

func elapsedMS(start time.Time) float64 {
	return round(float64(time.Since(start).Microseconds())/1000.0, 2)
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
