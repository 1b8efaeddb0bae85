package batch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gardar/ocrbatch/pkg/assign"
)

// Coordinator iterates one worker's assigned share of an input directory and
// invokes the Extractor per document, sequentially. Parallelism comes from
// running several workers with disjoint assignments, not from intra-worker
// concurrency; that keeps API usage per key predictable.
type Coordinator struct {
	Extractor *Extractor

	// WorkerID and WorkerCount select this coordinator's partition of the
	// input; zero values mean the single default worker (1 of 1).
	WorkerID    int
	WorkerCount int

	Logger *slog.Logger
}

// Run discovers the PDFs in inputDir (non-recursive), takes this worker's
// share and extracts each document. A document failure is recorded and the
// run continues; only fatal engine errors or context cancellation abort, in
// which case the summary covers the documents processed so far.
func (c *Coordinator) Run(ctx context.Context, inputDir, outDir string) (Summary, error) {
	workerID, workerCount := c.WorkerID, c.WorkerCount
	if workerCount == 0 {
		workerID, workerCount = 1, 1
	}
	logger := c.logger().With("worker", workerID)

	files, err := DiscoverPDFs(inputDir)
	if err != nil {
		return Summary{}, err
	}
	subset, err := assign.Assign(files, workerID, workerCount)
	if err != nil {
		return Summary{}, err
	}
	logger.Info("starting batch",
		"input", inputDir,
		"output", outDir,
		"total_files", len(files),
		"assigned_files", len(subset))

	return c.runFiles(ctx, subset, outDir, logger)
}

// runFiles processes an already-assigned file list sequentially.
func (c *Coordinator) runFiles(ctx context.Context, files []string, outDir string, logger *slog.Logger) (Summary, error) {
	var summary Summary
	for i, path := range files {
		if err := ctx.Err(); err != nil {
			logger.Error("aborting batch", "error", err)
			return summary, err
		}
		res, err := c.Extractor.Extract(ctx, path, outDir)
		summary.add(res)
		if err != nil {
			if abortsBatch(err) {
				logger.Error("aborting batch", "document", filepath.Base(path), "error", err)
				return summary, err
			}
			logger.Error("document failed", "document", filepath.Base(path), "error", err)
			continue
		}
		logger.Info("document done",
			"progress", fmt.Sprintf("%d/%d", i+1, len(files)),
			"document", filepath.Base(path),
			"status", res.Status)
	}
	return summary, nil
}

func (c *Coordinator) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// DiscoverPDFs lists the .pdf files directly inside dir (non-recursive,
// case-insensitive extension), sorted by path.
func DiscoverPDFs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read input directory: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
