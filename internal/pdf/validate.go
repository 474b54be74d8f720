package pdf

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// PageCount returns the number of pages of the PDF at path using pdfcpu,
// independent of the render library. Used as a cross-check when a document is
// admitted into the pipeline.
func PageCount(path string) (int, error) {
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("pdf page count failed: %w", err)
	}
	return n, nil
}

// Validate runs pdfcpu's structural validation on the file.
func Validate(path string) error {
	if err := api.ValidateFile(path, nil); err != nil {
		return fmt.Errorf("pdf validation failed: %w", err)
	}
	return nil
}
