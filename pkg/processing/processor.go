package processing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/fruit-ripeness/internal/utils"
	"github.com/menta2k/fruit-ripeness/pkg/tensor"
	"github.com/menta2k/fruit-ripeness/pkg/types"
)

var (
	// ErrDecode means no decoder could parse the byte stream
	ErrDecode = errors.New("cannot decode image")
	// ErrGeometry means the requested model geometry is unusable
	ErrGeometry = errors.New("invalid target geometry")
)

// Decoder is one strategy for turning bytes into an image
type Decoder interface {
	Name() string
	Decode(data []byte) (image.Image, error)
}

// nativeDecoder goes through the registered image formats and applies EXIF orientation
type nativeDecoder struct{}

func (nativeDecoder) Name() string { return "native" }

func (nativeDecoder) Decode(data []byte) (image.Image, error) {
	return imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
}

// webpDecoder is the permissive fallback for WebP containers the native path rejects
type webpDecoder struct{}

func (webpDecoder) Name() string { return "webp" }

func (webpDecoder) Decode(data []byte) (image.Image, error) {
	return webp.Decode(bytes.NewReader(data))
}

// DefaultDecoders returns the fast native path followed by the permissive fallback
func DefaultDecoders() []Decoder {
	return []Decoder{nativeDecoder{}, webpDecoder{}}
}

// Processor decodes uploads and prepares model input tensors
type Processor struct {
	decoders []Decoder
	logger   *zap.Logger
}

// Option configures a Processor
type Option func(*Processor)

// WithLogger sets the logger used for decode diagnostics
func WithLogger(logger *zap.Logger) Option {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithDecoders replaces the decoding strategies, tried in order
func WithDecoders(decoders ...Decoder) Option {
	return func(p *Processor) {
		p.decoders = decoders
	}
}

// NewProcessor creates a new image processor
func NewProcessor(opts ...Option) *Processor {
	p := &Processor{
		decoders: DefaultDecoders(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Decode parses raw bytes into an RGB pixel buffer, trying each decoder in turn
func (p *Processor) Decode(data []byte) (types.PixelBuffer, error) {
	if len(data) == 0 {
		return types.PixelBuffer{}, fmt.Errorf("%w: empty input", ErrDecode)
	}

	var lastErr error
	for _, d := range p.decoders {
		img, err := d.Decode(data)
		if err != nil {
			p.logger.Debug("decoder rejected input",
				zap.String("decoder", d.Name()), zap.Error(err))
			lastErr = err
			continue
		}

		buf := types.FromImage(img)
		p.logger.Info("image decoded",
			zap.String("decoder", d.Name()),
			zap.Int("width", buf.Width()),
			zap.Int("height", buf.Height()))
		return buf, nil
	}

	if lastErr == nil {
		lastErr = errors.New("no decoders configured")
	}
	return types.PixelBuffer{}, fmt.Errorf("%w: %v", ErrDecode, lastErr)
}

// Normalize resizes pixels to the target geometry with area averaging and scales
// samples to [0,1]. The result has shape [1, height, width, channels].
func (p *Processor) Normalize(pixels types.PixelBuffer, height, width, channels int) (tensor.Array, error) {
	if height <= 0 || width <= 0 {
		return tensor.Array{}, fmt.Errorf("%w: %dx%d", ErrGeometry, width, height)
	}
	if channels != 1 && channels != 3 {
		return tensor.Array{}, fmt.Errorf("%w: %d channels", ErrGeometry, channels)
	}
	if pixels.Len() == 0 {
		return tensor.Array{}, fmt.Errorf("%w: empty source image", ErrGeometry)
	}

	var img image.Image = pixels.Image()
	if channels == 1 {
		img = imaging.Grayscale(img)
	}

	resized := imaging.Resize(img, width, height, imaging.Box)

	data := make([]float32, 0, height*width*channels)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := resized.PixOffset(x, y)
			if channels == 1 {
				data = append(data, float32(resized.Pix[i])/255.0)
				continue
			}
			data = append(data,
				float32(resized.Pix[i+0])/255.0,
				float32(resized.Pix[i+1])/255.0,
				float32(resized.Pix[i+2])/255.0)
		}
	}

	p.logger.Debug("image normalized",
		zap.Int64s("shape", []int64{1, int64(height), int64(width), int64(channels)}))

	return tensor.New([]int64{1, int64(height), int64(width), int64(channels)}, data)
}

// LoadFile reads and decodes an image from disk
func (p *Processor) LoadFile(path string) (types.PixelBuffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.PixelBuffer{}, fmt.Errorf("failed to read image file: %w", err)
	}
	return p.Decode(data)
}

// ReadSource returns the raw bytes of a file path or an http(s) URL
func (p *Processor) ReadSource(ctx context.Context, source string) ([]byte, error) {
	if utils.IsURL(source) {
		return p.fetch(ctx, source)
	}
	return os.ReadFile(source)
}

// fetch downloads an image over HTTP
func (p *Processor) fetch(ctx context.Context, imageURL string) ([]byte, error) {
	if _, err := url.Parse(imageURL); err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "fruit-ripeness/1.0")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d %s", resp.StatusCode, resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") && contentType != "application/octet-stream" {
		return nil, fmt.Errorf("URL does not point to an image (Content-Type: %s)", contentType)
	}

	return io.ReadAll(resp.Body)
}
