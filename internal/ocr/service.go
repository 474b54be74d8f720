package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	xdraw "golang.org/x/image/draw"

	"github.com/local/pdfmend/internal/metrics"
)

// Renderer is the page rasterization capability the service depends on.
type Renderer interface {
	RenderPage(i int, dpi float64) (image.Image, error)
}

// Options configures a Service.
type Options struct {
	Engine    Engine
	Language  string
	RenderDPI float64
	Grayscale bool
}

// Service renders a page and recovers its text through an OCR engine.
type Service struct {
	engine    Engine
	language  string
	renderDPI float64
	grayscale bool
}

// NewService builds a Service. A nil engine defaults to Tesseract; a
// non-positive DPI defaults to 72, which rasters at media-box size.
func NewService(opts Options) *Service {
	engine := opts.Engine
	if engine == nil {
		engine = NewTesseractEngine()
	}
	dpi := opts.RenderDPI
	if dpi <= 0 {
		dpi = 72
	}
	return &Service{
		engine:    engine,
		language:  opts.Language,
		renderDPI: dpi,
		grayscale: opts.Grayscale,
	}
}

// RecognizePage renders page i of r and runs recognition on the raster.
// Region strings are joined with single newlines in the engine's detection
// order. Any failure along the way, including zero detected regions, yields
// ErrNotRecognized so the caller can fall back to a placeholder.
func (s *Service) RecognizePage(ctx context.Context, r Renderer, i int) (string, error) {
	start := time.Now()

	img, err := r.RenderPage(i, s.renderDPI)
	if err != nil {
		log.Warn().Err(err).Int("page", i+1).Msg("page render failed")
		metrics.ObserveOCR(s.engine.Name(), "render_error", time.Since(start))
		return "", fmt.Errorf("%w: %v", ErrNotRecognized, err)
	}

	encoded, err := s.encode(img)
	if err != nil {
		metrics.ObserveOCR(s.engine.Name(), "encode_error", time.Since(start))
		return "", fmt.Errorf("%w: %v", ErrNotRecognized, err)
	}

	in := Input{
		ID:    fmt.Sprintf("page-%d", i),
		Image: encoded,
		DPI:   int(s.renderDPI),
	}
	if s.language != "" {
		in.Languages = []string{s.language}
	}

	res, err := s.engine.Recognize(ctx, in)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		log.Warn().Err(err).Int("page", i+1).Str("engine", s.engine.Name()).Msg("recognition failed")
		metrics.ObserveOCR(s.engine.Name(), "engine_error", time.Since(start))
		return "", fmt.Errorf("%w: %v", ErrNotRecognized, err)
	}
	if len(res.Regions) == 0 {
		metrics.ObserveOCR(s.engine.Name(), "no_regions", time.Since(start))
		return "", ErrNotRecognized
	}

	lines := make([]string, 0, len(res.Regions))
	for _, reg := range res.Regions {
		lines = append(lines, reg.Text)
	}

	metrics.ObserveOCR(s.engine.Name(), "ok", time.Since(start))
	log.Debug().
		Int("page", i+1).
		Int("regions", len(res.Regions)).
		Str("engine", s.engine.Name()).
		Msg("page text recovered")

	return strings.Join(lines, "\n"), nil
}

// encode converts the raster to the PNG payload the engine consumes,
// optionally collapsing it to grayscale first.
func (s *Service) encode(img image.Image) ([]byte, error) {
	if s.grayscale {
		gray := image.NewGray(img.Bounds())
		xdraw.Draw(gray, gray.Bounds(), img, img.Bounds().Min, xdraw.Src)
		img = gray
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
