// Package ocr defines the engine abstraction shared by the remote and local
// OCR providers, along with the error taxonomy and credential resolution used
// throughout the batch extraction pipeline.
//
// The interface is intentionally small and transport-agnostic: an engine takes
// one rendered page image and returns the recognized text. Providers can be
// backed by remote APIs (Typhoon OCR, Google Document AI) or local libraries
// (Tesseract) without leaking provider-specific concerns into callers.
//
// Engines report failures through the error types in this package so that the
// retry and batch layers can tell recoverable conditions (rate limits,
// transient network faults) apart from fatal ones (bad credentials, malformed
// requests) without inspecting provider internals.
package ocr

import "context"

// Page is a single rendered page of a source document submitted for OCR.
type Page struct {
	Index int    // 1-based page number within the source document
	PNG   []byte // encoded PNG image of the page
}

// Engine recognizes text on one page image.
//
// Extract returns the recognized text, which may be empty for blank pages.
// Failures are reported with the error types of this package where the
// condition is known; any other error is treated as a non-retryable
// page-level failure by callers.
type Engine interface {
	Name() string
	Extract(ctx context.Context, page Page) (string, error)
}
