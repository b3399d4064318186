package pipeline

import "errors"

var (
	// ErrPrecondition means the pipeline was built without a model or gate
	ErrPrecondition = errors.New("pipeline not initialized")
	// ErrInference wraps a failure inside the model invocation
	ErrInference = errors.New("inference failed")
)
