// Package assign deterministically partitions a batch of input files across
// workers.
//
// The assignment is a pure function of the file list, the worker ID and the
// worker count: the list is sorted and sliced by index modulo the worker
// count. Workers computing their own subsets independently therefore never
// overlap and never miss a file, and re-running a worker after an
// interruption reproduces the exact same subset.
package assign

import (
	"fmt"
	"sort"
)

// Assign returns the subset of files owned by workerID out of workerCount
// workers. workerID is 1-based and must lie in [1, workerCount]. With a
// single worker the assignment is the whole (sorted) list.
//
// The subsets for worker IDs 1..workerCount partition the input exactly, and
// their sizes differ by at most one file.
func Assign(files []string, workerID, workerCount int) ([]string, error) {
	if workerCount < 1 {
		return nil, fmt.Errorf("worker count must be at least 1, got %d", workerCount)
	}
	if workerID < 1 || workerID > workerCount {
		return nil, fmt.Errorf("worker ID must be in [1, %d], got %d", workerCount, workerID)
	}

	sorted := append([]string(nil), files...)
	sort.Strings(sorted)

	if workerCount == 1 {
		return sorted, nil
	}

	var subset []string
	for i, f := range sorted {
		if i%workerCount == workerID-1 {
			subset = append(subset, f)
		}
	}
	return subset, nil
}
