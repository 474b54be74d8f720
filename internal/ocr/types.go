package ocr

import (
	"context"
	"errors"
	"image"
)

// ErrNotRecognized reports that a page produced no usable text: rendering
// failed, the engine errored, or zero text regions were detected. It is a
// recoverable, per-page condition.
var ErrNotRecognized = errors.New("ocr: no text recognized")

// Input encapsulates a single encoded image submitted for recognition.
type Input struct {
	// ID is an optional caller-provided identifier echoed back in the Result.
	ID string
	// Image is the PNG-encoded page raster.
	Image []byte
	// Languages holds trained-data hints for the engine (e.g. "eng").
	Languages []string
	// DPI carries the effective dots-per-inch of the raster; zero means unknown.
	DPI int
}

// Region is one recognized text region: the engine's single top-confidence
// candidate string plus its pixel bounds.
type Region struct {
	Text       string
	Bounds     image.Rectangle
	Confidence float64
}

// Result captures the engine output for one input image. Regions appear in
// the engine's native detection order; no reading-order sort is applied.
type Result struct {
	InputID string
	Regions []Region
}

// Engine is the OCR provider contract: one image in, one result out.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, in Input) (Result, error)
}
