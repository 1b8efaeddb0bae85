// Package rasterize converts a PDF document into an ordered sequence of page
// images for OCR.
//
// The default implementation shells out to poppler's pdftoppm, after
// validating the document and establishing the expected page count with
// pdfcpu. A document that cannot be opened, validated or rendered fails with
// a RasterizationError; the batch layer skips such documents entirely.
package rasterize

import (
	"context"
	"fmt"

	"github.com/gardar/ocrbatch/pkg/ocr"
)

// Rasterizer renders a PDF into its pages, in ascending page order.
type Rasterizer interface {
	Rasterize(ctx context.Context, pdfPath string) ([]ocr.Page, error)
}

// RasterizationError reports that a document could not be rendered at all.
type RasterizationError struct {
	Path string
	Err  error
}

func (e *RasterizationError) Error() string {
	return fmt.Sprintf("failed to rasterize %s: %v", e.Path, e.Err)
}

func (e *RasterizationError) Unwrap() error { return e.Err }
