package pdf

import (
	"fmt"
	"image"

	fitz "github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"
)

// Document wraps an open PDF for per-page text extraction and rendering.
// Pages are 0-based and stable for the lifetime of the document.
type Document struct {
	doc *fitz.Document
}

// Open opens a PDF from a filesystem path.
func Open(path string) (*Document, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", path, err)
	}
	return &Document{doc: doc}, nil
}

// NumPages returns the page count.
func (d *Document) NumPages() int { return d.doc.NumPage() }

// PageText extracts the embedded text layer of page i. The text may be empty
// when the page has no text layer at all.
func (d *Document) PageText(i int) (string, error) {
	if i < 0 || i >= d.doc.NumPage() {
		return "", fmt.Errorf("page %d out of range (document has %d pages)", i, d.doc.NumPage())
	}
	text, err := d.doc.Text(i)
	if err != nil {
		return "", fmt.Errorf("extract text from page %d: %w", i, err)
	}
	return text, nil
}

// RenderPage rasterizes page i at the given DPI. At 72 dpi the raster matches
// the media-box size in points.
func (d *Document) RenderPage(i int, dpi float64) (image.Image, error) {
	if i < 0 || i >= d.doc.NumPage() {
		return nil, fmt.Errorf("page %d out of range", i)
	}
	img, err := d.doc.ImageDPI(i, dpi)
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", i, err)
	}
	log.Debug().
		Int("page", i+1).
		Float64("dpi", dpi).
		Int("width", img.Bounds().Dx()).
		Int("height", img.Bounds().Dy()).
		Msg("rendered page")
	return img, nil
}

// Close releases the underlying document.
func (d *Document) Close() error { return d.doc.Close() }
