package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"slices"
	"strings"

	"go.uber.org/zap"

	ripeness "github.com/menta2k/fruit-ripeness"
	"github.com/menta2k/fruit-ripeness/pkg/pipeline"
	"github.com/menta2k/fruit-ripeness/pkg/processing"
	"github.com/menta2k/fruit-ripeness/pkg/resolver"
)

// allowedContentTypes lists the upload types accepted by /predict.
// An absent part content type is treated as application/octet-stream.
var allowedContentTypes = []string{
	"image/jpeg",
	"image/jpg",
	"image/png",
	"image/webp",
	"image/bmp",
	"image/tiff",
	"application/octet-stream",
}

// multipart overhead allowed on top of the file limit
const formOverhead = 1 << 20

type errorResponse struct {
	Detail string `json:"detail"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "fruit-ripeness",
		"version": ripeness.Version,
		"endpoints": map[string]string{
			"health":  "GET /health",
			"predict": "POST /predict",
			"metrics": "GET /metrics",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.backend.Health())
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.MaxUploadBytes
	r.Body = http.MaxBytesReader(w, r.Body, limit+formOverhead)

	data, status, err := readUpload(r, limit)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}

	result, err := s.backend.Predict(r.Context(), data)
	if err != nil {
		status := statusFor(err)
		s.logger.Warn("prediction failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Int("status", status),
			zap.Error(err))
		writeError(w, status, detailFor(err))
		return
	}

	result.Meta.RequestID = GetRequestID(r.Context())
	writeJSON(w, http.StatusOK, result)
}

// readUpload extracts the image bytes from the "file" or "image" form field
func readUpload(r *http.Request, limit int64) ([]byte, int, error) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, http.StatusBadRequest, fmt.Errorf("File too large (max %d MB)", limit>>20)
		}
		return nil, http.StatusBadRequest, fmt.Errorf("expected multipart form with a file field")
	}

	var (
		file   multipart.File
		header *multipart.FileHeader
		err    error
	)
	for _, field := range []string{"file", "image"} {
		file, header, err = r.FormFile(field)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, http.StatusBadRequest, fmt.Errorf("missing file field")
	}
	defer file.Close()

	contentType := strings.ToLower(header.Header.Get("Content-Type"))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	if !slices.Contains(allowedContentTypes, contentType) {
		return nil, http.StatusBadRequest, fmt.Errorf("Invalid file type: %s", contentType)
	}

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return nil, http.StatusBadRequest, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, http.StatusBadRequest, fmt.Errorf("Empty file")
	}
	if int64(len(data)) > limit {
		return nil, http.StatusBadRequest, fmt.Errorf("File too large (max %d MB)", limit>>20)
	}

	return data, 0, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, processing.ErrDecode), errors.Is(err, processing.ErrGeometry):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrPrecondition):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func detailFor(err error) string {
	switch {
	case errors.Is(err, processing.ErrDecode):
		return fmt.Sprintf("Could not decode image: %v", err)
	case errors.Is(err, processing.ErrGeometry):
		return fmt.Sprintf("Could not process image: %v", err)
	case errors.Is(err, pipeline.ErrPrecondition):
		return "Model not loaded"
	case errors.Is(err, pipeline.ErrInference):
		return "Inference failed"
	case errors.Is(err, resolver.ErrMalformedOutput):
		return "Model returned unexpected outputs"
	default:
		return "Internal server error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}
