package model

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/menta2k/fruit-ripeness/pkg/tensor"
	"github.com/menta2k/fruit-ripeness/pkg/types"
)

// ONNXConfig controls how an ONNX model is loaded
type ONNXConfig struct {
	ModelPath      string
	LibraryPath    string
	IntraOpThreads int
}

// ONNX serves a model through ONNX Runtime
type ONNX struct {
	session     *ort.DynamicAdvancedSession
	inputName   string
	outputNames []string
	inputShape  []int64
	geometry    types.Geometry
	logger      *zap.Logger
	closeOnce   sync.Once
}

// NewONNX initializes the runtime environment and opens a session for every model output
func NewONNX(cfg ONNXConfig, logger *zap.Logger) (*ONNX, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ModelPath == "" {
		return nil, errors.New("empty model path")
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model not found: %w", err)
	}

	if cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
	}
	ownsEnv := false
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
		ownsEnv = true
	}

	m, err := openSession(cfg, logger)
	if err != nil {
		if ownsEnv {
			if dErr := ort.DestroyEnvironment(); dErr != nil {
				logger.Warn("failed to destroy ONNX environment", zap.Error(dErr))
			}
		}
		return nil, err
	}
	return m, nil
}

// openSession reads the model signature and creates the session. The environment must be initialized.
func openSession(cfg ONNXConfig, logger *zap.Logger) (*ONNX, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model io info: %w", err)
	}
	if len(inputs) != 1 {
		return nil, fmt.Errorf("expected exactly one model input, got %d", len(inputs))
	}
	if len(outputs) == 0 {
		return nil, errors.New("model declares no outputs")
	}

	outputNames := make([]string, len(outputs))
	for i, o := range outputs {
		outputNames[i] = o.Name
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer func() {
		if err := opts.Destroy(); err != nil {
			logger.Warn("failed to destroy session options", zap.Error(err))
		}
	}()
	if cfg.IntraOpThreads > 0 {
		if err := opts.SetIntraOpNumThreads(cfg.IntraOpThreads); err != nil {
			return nil, fmt.Errorf("failed to set intra-op threads: %w", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{inputs[0].Name}, outputNames, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	inputShape := []int64(inputs[0].Dimensions)
	geometry, ok := GeometryFromShape(inputShape)
	if !ok {
		logger.Warn("could not determine model input shape, using default",
			zap.Int64s("declared", inputShape),
			zap.Int("height", geometry.Height),
			zap.Int("width", geometry.Width))
	}

	logger.Info("model loaded",
		zap.String("path", cfg.ModelPath),
		zap.String("input", inputs[0].Name),
		zap.Int64s("input_shape", inputShape),
		zap.Strings("outputs", outputNames))

	return &ONNX{
		session:     session,
		inputName:   inputs[0].Name,
		outputNames: outputNames,
		inputShape:  inputShape,
		geometry:    geometry,
		logger:      logger,
	}, nil
}

// Geometry returns the declared input geometry
func (m *ONNX) Geometry() types.Geometry {
	return m.geometry
}

// InputShape returns the raw declared input dims, -1 for dynamic
func (m *ONNX) InputShape() []int64 {
	return append([]int64(nil), m.inputShape...)
}

// Invoke runs the session. The set is marked Single when the model has one output.
func (m *ONNX) Invoke(_ context.Context, input tensor.Array) (tensor.RawOutputSet, error) {
	in, err := ort.NewTensor(ort.NewShape(input.Shape...), input.Data)
	if err != nil {
		return tensor.RawOutputSet{}, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer func() {
		if err := in.Destroy(); err != nil {
			m.logger.Warn("failed to destroy input tensor", zap.Error(err))
		}
	}()

	outputs := make([]ort.ArbitraryTensor, len(m.outputNames))
	if err := m.session.Run([]ort.ArbitraryTensor{in}, outputs); err != nil {
		return tensor.RawOutputSet{}, fmt.Errorf("inference failed: %w", err)
	}
	defer func() {
		for _, o := range outputs {
			if o == nil {
				continue
			}
			if err := o.Destroy(); err != nil {
				m.logger.Warn("failed to destroy output tensor", zap.Error(err))
			}
		}
	}()

	arrays := make([]tensor.Array, len(outputs))
	for i, o := range outputs {
		a, err := toArray(o)
		if err != nil {
			return tensor.RawOutputSet{}, fmt.Errorf("output %q: %w", m.outputNames[i], err)
		}
		arrays[i] = a
	}

	return tensor.RawOutputSet{Arrays: arrays, Single: len(arrays) == 1}, nil
}

// toArray copies an ORT value out of runtime-owned memory
func toArray(v ort.ArbitraryTensor) (tensor.Array, error) {
	switch t := v.(type) {
	case *ort.Tensor[float32]:
		data := append([]float32(nil), t.GetData()...)
		return tensor.Array{Shape: append([]int64(nil), t.GetShape()...), Data: data}, nil
	case *ort.Tensor[float64]:
		src := t.GetData()
		data := make([]float32, len(src))
		for i, f := range src {
			data[i] = float32(f)
		}
		return tensor.Array{Shape: append([]int64(nil), t.GetShape()...), Data: data}, nil
	case nil:
		return tensor.Array{}, errors.New("runtime returned no value")
	default:
		return tensor.Array{}, fmt.Errorf("unsupported output type %T", v)
	}
}

// Close releases the session and the runtime environment
func (m *ONNX) Close() error {
	var err error
	m.closeOnce.Do(func() {
		if m.session != nil {
			err = m.session.Destroy()
		}
		if dErr := ort.DestroyEnvironment(); dErr != nil && err == nil {
			err = dErr
		}
	})
	return err
}
