package batch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gardar/ocrbatch/pkg/ocr"
)

func TestPoolPartitionsWithoutOverlap(t *testing.T) {
	inDir := writeInputDir(t, "a.pdf", "b.pdf", "c.pdf", "d.pdf", "e.pdf", "f.pdf", "g.pdf")
	outDir := t.TempDir()

	var mu sync.Mutex
	processed := make(map[string]int) // document -> times extracted

	p := &Pool{
		Workers: 3,
		NewExtractor: func(workerID int) (*Extractor, error) {
			// Each worker owns its own engine instance.
			return &Extractor{
				Engine: &fakeEngine{extract: func(page ocr.Page) (string, error) {
					return fmt.Sprintf("worker %d", workerID), nil
				}},
				Rasterizer: &trackingRasterizer{mu: &mu, processed: processed},
				Retry:      quickRetry(),
			}, nil
		},
	}

	summary, err := p.Run(context.Background(), inDir, outDir)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Succeeded != 7 {
		t.Errorf("summary = %+v", summary)
	}
	if len(processed) != 7 {
		t.Errorf("processed %d distinct documents, want 7", len(processed))
	}
	for doc, count := range processed {
		if count != 1 {
			t.Errorf("%s processed %d times", doc, count)
		}
	}

	outputs, _ := filepath.Glob(filepath.Join(outDir, "*.txt"))
	if len(outputs) != 7 {
		t.Errorf("expected 7 output files, got %d", len(outputs))
	}
}

type trackingRasterizer struct {
	mu        *sync.Mutex
	processed map[string]int
}

func (r *trackingRasterizer) Rasterize(ctx context.Context, pdfPath string) ([]ocr.Page, error) {
	r.mu.Lock()
	r.processed[filepath.Base(pdfPath)]++
	r.mu.Unlock()
	return []ocr.Page{{Index: 1, PNG: []byte{1}}}, nil
}

func TestPoolSurvivesOneWorkerFailing(t *testing.T) {
	inDir := writeInputDir(t, "a.pdf", "b.pdf", "c.pdf", "d.pdf")
	outDir := t.TempDir()

	p := &Pool{
		Workers: 2,
		NewExtractor: func(workerID int) (*Extractor, error) {
			engine := &fakeEngine{extract: func(ocr.Page) (string, error) { return "ok", nil }}
			if workerID == 2 {
				engine.extract = func(ocr.Page) (string, error) {
					return "", &ocr.FatalError{Message: "worker 2 key revoked"}
				}
			}
			return &Extractor{
				Engine:     engine,
				Rasterizer: &fakeRasterizer{pages: 1},
				Retry:      quickRetry(),
			}, nil
		},
	}

	summary, err := p.Run(context.Background(), inDir, outDir)
	if err == nil {
		t.Fatal("expected the failing worker's error to be reported")
	}
	// Worker 1's share (2 documents) still completes.
	if summary.Succeeded != 2 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestPoolValidation(t *testing.T) {
	if _, err := (&Pool{Workers: 0}).Run(context.Background(), ".", "."); err == nil {
		t.Error("zero workers should be rejected")
	}
	if _, err := (&Pool{Workers: 1}).Run(context.Background(), ".", "."); err == nil {
		t.Error("missing extractor factory should be rejected")
	}
}
