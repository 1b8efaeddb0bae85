package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gardar/ocrbatch/pkg/ocr"
	"github.com/gardar/ocrbatch/pkg/rasterize"
	"github.com/gardar/ocrbatch/pkg/retry"
)

// fakeRasterizer yields a fixed number of pages per document, or an error for
// paths listed in broken.
type fakeRasterizer struct {
	pages  int
	broken map[string]bool
}

func (f *fakeRasterizer) Rasterize(ctx context.Context, pdfPath string) ([]ocr.Page, error) {
	if f.broken[filepath.Base(pdfPath)] {
		return nil, &rasterize.RasterizationError{Path: pdfPath, Err: errors.New("unreadable")}
	}
	pages := make([]ocr.Page, f.pages)
	for i := range pages {
		pages[i] = ocr.Page{Index: i + 1, PNG: []byte{byte(i + 1)}}
	}
	return pages, nil
}

// fakeEngine recognizes pages with a scripted per-page function.
type fakeEngine struct {
	extract func(page ocr.Page) (string, error)
	calls   int
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Extract(ctx context.Context, page ocr.Page) (string, error) {
	f.calls++
	return f.extract(page)
}

func quickRetry() retry.Policy {
	// Single attempt, so retryable page failures surface as exhaustion
	// without any real sleeping.
	return retry.Policy{MaxAttempts: 1}
}

func TestExtractHappyPath(t *testing.T) {
	outDir := t.TempDir()
	x := &Extractor{
		Engine: &fakeEngine{extract: func(page ocr.Page) (string, error) {
			return fmt.Sprintf("text of page %d", page.Index), nil
		}},
		Rasterizer: &fakeRasterizer{pages: 2},
		Retry:      quickRetry(),
	}

	res, err := x.Extract(context.Background(), "in/doc.pdf", outDir)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Status != StatusSuccess {
		t.Errorf("status = %s", res.Status)
	}

	data, err := os.ReadFile(filepath.Join(outDir, "doc.txt"))
	if err != nil {
		t.Fatalf("output file: %v", err)
	}
	content := string(data)
	for i := 1; i <= 2; i++ {
		marker := fmt.Sprintf("--- Page %d ---", i)
		if !strings.Contains(content, marker+"\n"+fmt.Sprintf("text of page %d", i)) {
			t.Errorf("output missing %q followed by its text:\n%s", marker, content)
		}
	}
}

func TestExtractPartialFailure(t *testing.T) {
	outDir := t.TempDir()
	x := &Extractor{
		Engine: &fakeEngine{extract: func(page ocr.Page) (string, error) {
			if page.Index == 2 {
				return "", &ocr.RateLimitedError{Message: "quota"}
			}
			return fmt.Sprintf("page %d text", page.Index), nil
		}},
		Rasterizer: &fakeRasterizer{pages: 3},
		Retry:      quickRetry(),
	}

	res, err := x.Extract(context.Background(), "in/report.pdf", outDir)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Status != StatusPartial {
		t.Errorf("status = %s, want %s", res.Status, StatusPartial)
	}

	data, err := os.ReadFile(filepath.Join(outDir, "report.txt"))
	if err != nil {
		t.Fatalf("output file: %v", err)
	}
	content := string(data)
	for i := 1; i <= 3; i++ {
		if got := strings.Count(content, fmt.Sprintf("--- Page %d ---", i)); got != 1 {
			t.Errorf("marker for page %d appears %d times", i, got)
		}
	}
	if !strings.Contains(content, "page 1 text") || !strings.Contains(content, "page 3 text") {
		t.Error("surviving pages should keep their text")
	}
	if !strings.Contains(content, "[OCR FAILED:") {
		t.Error("failed page should carry an error placeholder")
	}

	if len(res.Pages) != 3 {
		t.Fatalf("expected 3 page results, got %d", len(res.Pages))
	}
	if !res.Pages[1].Failed || res.Pages[0].Failed || res.Pages[2].Failed {
		t.Errorf("only page 2 should be marked failed: %+v", res.Pages)
	}
}

func TestExtractRasterizationFailure(t *testing.T) {
	outDir := t.TempDir()
	x := &Extractor{
		Engine:     &fakeEngine{extract: func(ocr.Page) (string, error) { return "", nil }},
		Rasterizer: &fakeRasterizer{broken: map[string]bool{"bad.pdf": true}},
		Retry:      quickRetry(),
	}

	res, err := x.Extract(context.Background(), "in/bad.pdf", outDir)
	var re *rasterize.RasterizationError
	if !errors.As(err, &re) {
		t.Fatalf("expected RasterizationError, got %v", err)
	}
	if res.Status != StatusFailure {
		t.Errorf("status = %s", res.Status)
	}
	if _, statErr := os.Stat(filepath.Join(outDir, "bad.txt")); !os.IsNotExist(statErr) {
		t.Error("no output file may be written for a document that failed to rasterize")
	}
}

func TestExtractAllPagesFailed(t *testing.T) {
	outDir := t.TempDir()
	x := &Extractor{
		Engine: &fakeEngine{extract: func(ocr.Page) (string, error) {
			return "", errors.New("blank scan")
		}},
		Rasterizer: &fakeRasterizer{pages: 2},
		Retry:      quickRetry(),
	}
	res, err := x.Extract(context.Background(), "in/doc.pdf", outDir)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Status != StatusFailure {
		t.Errorf("status = %s, want %s when every page failed", res.Status, StatusFailure)
	}
	if _, statErr := os.Stat(filepath.Join(outDir, "doc.txt")); !os.IsNotExist(statErr) {
		t.Error("a document with no recognized pages must not leave an output file")
	}
}

func TestExtractRetriesFailedDocumentOnResume(t *testing.T) {
	outDir := t.TempDir()
	x := &Extractor{
		Engine: &fakeEngine{extract: func(ocr.Page) (string, error) {
			return "", &ocr.TransientError{Message: "provider outage"}
		}},
		Rasterizer:   &fakeRasterizer{pages: 2},
		Retry:        quickRetry(),
		SkipExisting: true,
	}

	res, err := x.Extract(context.Background(), "in/doc.pdf", outDir)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if res.Status != StatusFailure {
		t.Fatalf("first run status = %s, want %s", res.Status, StatusFailure)
	}

	// The provider recovers; the re-run must process the document again
	// rather than treat it as already done.
	recovered := &fakeEngine{extract: func(page ocr.Page) (string, error) {
		return fmt.Sprintf("page %d text", page.Index), nil
	}}
	x.Engine = recovered

	res, err = x.Extract(context.Background(), "in/doc.pdf", outDir)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if res.Status != StatusSuccess {
		t.Errorf("second run status = %s, want %s", res.Status, StatusSuccess)
	}
	if recovered.calls != 2 {
		t.Errorf("second run should OCR both pages, got %d calls", recovered.calls)
	}
	data, err := os.ReadFile(filepath.Join(outDir, "doc.txt"))
	if err != nil {
		t.Fatalf("output file: %v", err)
	}
	if !strings.Contains(string(data), "page 1 text") || !strings.Contains(string(data), "page 2 text") {
		t.Errorf("output missing recovered text:\n%s", data)
	}
}

func TestExtractFatalAborts(t *testing.T) {
	outDir := t.TempDir()
	engine := &fakeEngine{extract: func(page ocr.Page) (string, error) {
		return "", &ocr.FatalError{Message: "invalid credential"}
	}}
	x := &Extractor{
		Engine:     engine,
		Rasterizer: &fakeRasterizer{pages: 3},
		Retry:      quickRetry(),
	}

	res, err := x.Extract(context.Background(), "in/doc.pdf", outDir)
	if !ocr.IsFatal(err) {
		t.Fatalf("expected fatal error to propagate, got %v", err)
	}
	if res.Status != StatusFailure {
		t.Errorf("status = %s", res.Status)
	}
	if engine.calls != 1 {
		t.Errorf("fatal error must stop further page calls, got %d", engine.calls)
	}
	if _, statErr := os.Stat(filepath.Join(outDir, "doc.txt")); !os.IsNotExist(statErr) {
		t.Error("no output file should be written after a fatal abort")
	}
}

func TestExtractSkipsExistingOutput(t *testing.T) {
	outDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(outDir, "doc.txt"), []byte("previous run"), 0644); err != nil {
		t.Fatal(err)
	}
	engine := &fakeEngine{extract: func(ocr.Page) (string, error) { return "new text", nil }}
	x := &Extractor{
		Engine:       engine,
		Rasterizer:   &fakeRasterizer{pages: 1},
		Retry:        quickRetry(),
		SkipExisting: true,
	}

	res, err := x.Extract(context.Background(), "in/doc.pdf", outDir)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Status != StatusSkipped {
		t.Errorf("status = %s", res.Status)
	}
	if engine.calls != 0 {
		t.Errorf("skipped document must not trigger OCR calls, got %d", engine.calls)
	}
	data, _ := os.ReadFile(filepath.Join(outDir, "doc.txt"))
	if string(data) != "previous run" {
		t.Error("existing output must be left untouched")
	}
}

func TestExtractOverwritesWhenSkipDisabled(t *testing.T) {
	outDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(outDir, "doc.txt"), []byte("previous run"), 0644); err != nil {
		t.Fatal(err)
	}
	x := &Extractor{
		Engine:     &fakeEngine{extract: func(ocr.Page) (string, error) { return "new text", nil }},
		Rasterizer: &fakeRasterizer{pages: 1},
		Retry:      quickRetry(),
	}

	if _, err := x.Extract(context.Background(), "in/doc.pdf", outDir); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(outDir, "doc.txt"))
	if !strings.Contains(string(data), "new text") {
		t.Error("output should be overwritten when skipping is disabled")
	}
}

func TestExtractNormalizesText(t *testing.T) {
	outDir := t.TempDir()
	// "é" as combining sequence (e + U+0301) should come out precomposed.
	x := &Extractor{
		Engine:     &fakeEngine{extract: func(ocr.Page) (string, error) { return "résumé", nil }},
		Rasterizer: &fakeRasterizer{pages: 1},
		Retry:      quickRetry(),
	}
	if _, err := x.Extract(context.Background(), "in/doc.pdf", outDir); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(outDir, "doc.txt"))
	if !strings.Contains(string(data), "résumé") {
		t.Errorf("text should be NFC normalized, got %q", string(data))
	}
}

func TestOutputPath(t *testing.T) {
	got := OutputPath(filepath.Join("in", "Annual Report.PDF"), "out")
	if got != filepath.Join("out", "Annual Report.txt") {
		t.Errorf("OutputPath = %q", got)
	}
}
