// Package batch drives multi-page, multi-file OCR extraction: one Extractor
// per worker turns PDFs into page-delimited text files, and a Coordinator (or
// a Pool of in-process workers) walks a directory of documents, records
// per-document outcomes and produces a summary.
//
// Failure containment follows a strict ladder: a failed page never fails its
// document outright (partial results are kept, with an error placeholder in
// the output), a failed document never fails the batch, and only fatal engine
// errors (a bad credential, a malformed request) abort the remaining work for
// a worker.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/gardar/ocrbatch/pkg/ocr"
	"github.com/gardar/ocrbatch/pkg/rasterize"
	"github.com/gardar/ocrbatch/pkg/retry"
)

// pageMarker delimits each page's text in the output file. N is the 1-based
// page index; no marker is omitted, even for empty or failed pages.
const pageMarker = "--- Page %d ---"

// Extractor drives one document end to end: rasterize, OCR each page in
// order, assemble page-delimited text, write the output file.
type Extractor struct {
	Engine     ocr.Engine
	Rasterizer rasterize.Rasterizer
	Retry      retry.Policy

	// PageDelay is slept between consecutive page calls to keep remote API
	// usage predictable. Zero disables pacing (local engines).
	PageDelay time.Duration

	// SkipExisting makes re-runs idempotent: a document whose output file
	// already exists and is non-empty is skipped without any OCR call.
	SkipExisting bool

	Logger *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error // test seam
}

// Extract processes one document and writes outDir/<base>.txt.
//
// The returned error is non-nil only when the document as a whole failed:
// rasterization errors, output write errors, fatal engine errors and context
// cancellation. Page-level failures are absorbed into the Result.
func (x *Extractor) Extract(ctx context.Context, pdfPath, outDir string) (Result, error) {
	logger := x.logger().With("document", filepath.Base(pdfPath))
	outPath := OutputPath(pdfPath, outDir)
	res := Result{Path: pdfPath}

	if x.SkipExisting && hasNonEmptyFile(outPath) {
		logger.Info("output already exists, skipping")
		res.Status = StatusSkipped
		res.OutputPath = outPath
		return res, nil
	}

	pages, err := x.Rasterizer.Rasterize(ctx, pdfPath)
	if err != nil {
		res.Status = StatusFailure
		res.Err = err
		return res, err
	}
	logger.Info("rasterized document", "pages", len(pages))

	succeeded := 0
	for i, page := range pages {
		if i > 0 && x.PageDelay > 0 {
			if err := x.sleepFn()(ctx, x.PageDelay); err != nil {
				res.Status = StatusFailure
				res.Err = err
				return res, err
			}
		}

		text, err := x.Retry.Do(ctx, func(ctx context.Context) (string, error) {
			return x.Engine.Extract(ctx, page)
		})
		switch {
		case err == nil:
			succeeded++
			res.Pages = append(res.Pages, PageResult{
				Index: page.Index,
				Text:  norm.NFC.String(strings.TrimSpace(text)),
			})
			logger.Debug("page done", "page", page.Index)
		case ocr.IsFatal(err) || ctx.Err() != nil:
			res.Status = StatusFailure
			res.Err = err
			return res, err
		default:
			logger.Warn("page failed", "page", page.Index, "error", err)
			res.Pages = append(res.Pages, PageResult{
				Index:  page.Index,
				Failed: true,
				Reason: err.Error(),
			})
		}
	}

	if succeeded == 0 {
		// No usable text. Leave no output file, so a later run retries the
		// document instead of skipping it as already processed.
		logger.Warn("no pages recognized, document failed")
		res.Status = StatusFailure
		return res, nil
	}
	if succeeded == len(pages) {
		res.Status = StatusSuccess
	} else {
		res.Status = StatusPartial
	}

	if err := writeOutput(outPath, res.Pages); err != nil {
		res.Status = StatusFailure
		res.Err = err
		return res, err
	}
	res.OutputPath = outPath
	logger.Info("wrote output", "path", outPath, "status", res.Status)
	return res, nil
}

// OutputPath returns the output text file path for a source document.
func OutputPath(pdfPath, outDir string) string {
	base := strings.TrimSuffix(filepath.Base(pdfPath), filepath.Ext(pdfPath))
	return filepath.Join(outDir, base+".txt")
}

// writeOutput assembles the page-delimited text and writes it in one shot,
// overwriting any previous file of the same name.
func writeOutput(outPath string, pages []PageResult) error {
	var sb strings.Builder
	for _, page := range pages {
		fmt.Fprintf(&sb, pageMarker+"\n", page.Index)
		if page.Failed {
			fmt.Fprintf(&sb, "[OCR FAILED: %s]", page.Reason)
		} else {
			sb.WriteString(page.Text)
		}
		sb.WriteString("\n\n")
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(outPath, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func hasNonEmptyFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

func (x *Extractor) logger() *slog.Logger {
	if x.Logger != nil {
		return x.Logger
	}
	return slog.Default()
}

func (x *Extractor) sleepFn() func(ctx context.Context, d time.Duration) error {
	if x.sleep != nil {
		return x.sleep
	}
	return sleepCtx
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// abortsBatch reports whether an extraction error must stop the remaining
// batch for this worker rather than just fail the one document.
func abortsBatch(err error) bool {
	return ocr.IsFatal(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
