// Package ripeness classifies the ripeness of guava photographs.
//
// A Service wires the color gate, the image preprocessor, the model and the
// output post-processing into one request path:
//
//	cfg := config.Default()
//	svc, err := ripeness.Open(*cfg, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer svc.Close()
//
//	result, err := svc.Predict(ctx, imageBytes)
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(result.IsGuava, result.Predictions)
//
// The packages under pkg/ can also be used on their own:
//
//  1. Gate (pkg/gate): HSV color pre-filter that rejects non-guava images
//  2. Processing (pkg/processing): decoding and tensor normalization
//  3. Resolver (pkg/resolver): assigns ripeness, thermal and guard roles to raw outputs
//  4. Heatmap (pkg/heatmap): renders a thermal output as an inferno PNG
//  5. Ranker (pkg/ranker): turns scores into labeled top-k predictions
//
// A gate rejection is reported as a successful result with IsGuava false.
package ripeness

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/menta2k/fruit-ripeness/internal/config"
	"github.com/menta2k/fruit-ripeness/pkg/gate"
	"github.com/menta2k/fruit-ripeness/pkg/model"
	"github.com/menta2k/fruit-ripeness/pkg/pipeline"
)

// Version of the ripeness service
const Version = "1.0.0"

// HealthStatus describes what the service has loaded
type HealthStatus struct {
	Status          string  `json:"status"`
	ModelLoaded     bool    `json:"model_loaded"`
	ModelInputShape []int64 `json:"model_input_shape"`
	GateEnabled     bool    `json:"gate_enabled"`
	GateThreshold   float64 `json:"gate_threshold"`
	LabelsLoaded    bool    `json:"labels_loaded"`
	NumClasses      int     `json:"num_classes"`
	Version         string  `json:"version"`
}

// Service owns the loaded model and the pipeline built around it
type Service struct {
	cfg      config.Config
	model    model.Model
	gate     *gate.Gate
	pipeline *pipeline.Pipeline
	labels   []string
	logger   *zap.Logger
}

// Option configures a Service
type Option func(*serviceOptions)

type serviceOptions struct {
	labels   []string
	recorder pipeline.Recorder
}

// WithLabels sets class labels instead of reading cfg.Model.LabelsPath
func WithLabels(labels []string) Option {
	return func(o *serviceOptions) {
		o.labels = labels
	}
}

// WithRecorder attaches a metrics recorder to the pipeline
func WithRecorder(r pipeline.Recorder) Option {
	return func(o *serviceOptions) {
		o.recorder = r
	}
}

// New builds a service around an already loaded model. m may be nil, in which
// case Predict fails with pipeline.ErrPrecondition and Health reports no model.
func New(cfg config.Config, m model.Model, logger *zap.Logger, opts ...Option) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var o serviceOptions
	for _, opt := range opts {
		opt(&o)
	}

	s := &Service{
		cfg:    cfg,
		model:  m,
		labels: o.labels,
		logger: logger,
		gate: gate.NewWithConfig(gate.Config{
			Enabled:   cfg.Gate.Enabled,
			Threshold: cfg.Gate.Threshold,
		}),
	}

	if s.labels == nil && cfg.Model.LabelsPath != "" {
		labels, err := config.LoadLabels(cfg.Model.LabelsPath)
		if err != nil {
			logger.Warn("labels not loaded, falling back to class indices",
				zap.String("path", cfg.Model.LabelsPath), zap.Error(err))
		} else {
			s.labels = labels
		}
	}

	if m == nil {
		logger.Warn("service started without a model")
		return s, nil
	}

	p, err := pipeline.New(m, s.gate,
		pipeline.WithLabels(s.labels),
		pipeline.WithTopK(cfg.Pipeline.TopK),
		pipeline.WithMaxConcurrent(cfg.Pipeline.MaxConcurrentInferences),
		pipeline.WithRecorder(o.recorder),
		pipeline.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	s.pipeline = p

	logger.Info("service ready",
		zap.Int64s("model_input_shape", p.InputShape()),
		zap.Bool("gate_enabled", s.gate.Enabled()),
		zap.Float64("gate_threshold", s.gate.Threshold()),
		zap.Int("labels", len(s.labels)))

	return s, nil
}

// Open loads the ONNX model named by cfg and builds a service around it
func Open(cfg config.Config, logger *zap.Logger, opts ...Option) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := os.Stat(cfg.Model.Path); err != nil {
		return nil, fmt.Errorf("model not found at %s: %w", cfg.Model.Path, err)
	}

	m, err := model.NewONNX(model.ONNXConfig{
		ModelPath:      cfg.Model.Path,
		LibraryPath:    cfg.Model.LibraryPath,
		IntraOpThreads: cfg.Model.IntraOpThreads,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}

	s, err := New(cfg, m, logger, opts...)
	if err != nil {
		m.Close()
		return nil, err
	}
	return s, nil
}

// Predict runs the full pipeline on one encoded image
func (s *Service) Predict(ctx context.Context, data []byte) (*pipeline.Result, error) {
	if s.pipeline == nil {
		return nil, fmt.Errorf("%w: model not loaded", pipeline.ErrPrecondition)
	}
	return s.pipeline.Run(ctx, data)
}

// Health reports the loaded model and gate state
func (s *Service) Health() HealthStatus {
	h := HealthStatus{
		Status:        "ok",
		ModelLoaded:   s.pipeline != nil,
		GateEnabled:   s.gate.Enabled(),
		GateThreshold: s.gate.Threshold(),
		LabelsLoaded:  len(s.labels) > 0,
		NumClasses:    len(s.labels),
		Version:       Version,
	}
	if s.pipeline != nil {
		h.ModelInputShape = s.pipeline.InputShape()
	} else {
		h.Status = "degraded"
	}
	return h
}

// Config returns the configuration the service was built with
func (s *Service) Config() config.Config {
	return s.cfg
}

// Close releases the model if it holds native resources
func (s *Service) Close() error {
	if c, ok := s.model.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
