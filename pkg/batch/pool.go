package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gardar/ocrbatch/pkg/assign"
)

// Pool runs several workers inside one process. Each worker owns its own
// Extractor, and with it its own engine, credential and rate-limit state, and
// processes its static partition of the input sequentially. Workers share
// nothing mutable; isolation is structural, via the deterministic assignment,
// not via locks.
type Pool struct {
	// Workers is the number of concurrent workers; must be at least 1.
	Workers int

	// NewExtractor builds the extractor owned by the given worker
	// (workerID in [1, Workers]).
	NewExtractor func(workerID int) (*Extractor, error)

	Logger *slog.Logger
}

// Run partitions the PDFs in inputDir across the workers and runs them
// concurrently, merging their summaries. Worker failures (fatal engine
// errors, cancellation) are joined into the returned error; the other workers
// still run to completion.
func (p *Pool) Run(ctx context.Context, inputDir, outDir string) (Summary, error) {
	if p.Workers < 1 {
		return Summary{}, fmt.Errorf("pool requires at least 1 worker, got %d", p.Workers)
	}
	if p.NewExtractor == nil {
		return Summary{}, fmt.Errorf("pool requires a NewExtractor factory")
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	files, err := DiscoverPDFs(inputDir)
	if err != nil {
		return Summary{}, err
	}
	logger.Info("starting pool", "workers", p.Workers, "total_files", len(files))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		summary Summary
		errs    []error
	)
	for id := 1; id <= p.Workers; id++ {
		subset, err := assign.Assign(files, id, p.Workers)
		if err != nil {
			return Summary{}, err
		}
		if len(subset) == 0 {
			continue
		}

		wg.Add(1)
		go func(id int, subset []string) {
			defer wg.Done()
			workerLogger := logger.With("worker", id)

			extractor, err := p.NewExtractor(id)
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("worker %d: %w", id, err))
				mu.Unlock()
				return
			}

			c := Coordinator{Extractor: extractor, WorkerID: id, WorkerCount: p.Workers}
			s, err := c.runFiles(ctx, subset, outDir, workerLogger)

			mu.Lock()
			summary.merge(s)
			if err != nil {
				errs = append(errs, fmt.Errorf("worker %d: %w", id, err))
			}
			mu.Unlock()
		}(id, subset)
	}
	wg.Wait()

	return summary, errors.Join(errs...)
}
