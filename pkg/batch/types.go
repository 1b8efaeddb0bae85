package batch

// Status is the overall outcome for one document.
type Status string

const (
	// StatusSuccess means every page was recognized.
	StatusSuccess Status = "success"
	// StatusPartial means some but not all pages were recognized; the output
	// file carries error placeholders for the failed pages.
	StatusPartial Status = "partial_failure"
	// StatusFailure means the document produced no usable text: it could not
	// be rasterized, every page failed, or the output could not be written.
	StatusFailure Status = "failure"
	// StatusSkipped means a non-empty output file already existed and the
	// document was not reprocessed.
	StatusSkipped Status = "skipped"
)

// PageResult is the outcome for a single page of a document.
type PageResult struct {
	Index  int    // 1-based page number
	Text   string // recognized text, empty when the page failed
	Failed bool
	Reason string // failure description, empty when the page succeeded
}

// Result is the per-document outcome. It is written once and never mutated
// afterward.
type Result struct {
	Path       string
	OutputPath string // populated when an output file was written or found
	Status     Status
	Pages      []PageResult
	Err        error // rasterization or output-write failure, nil otherwise
}

// PageFailure identifies one failed page for the operator report.
type PageFailure struct {
	Path string
	Page int
}

// Summary aggregates the outcomes of a batch run.
type Summary struct {
	Succeeded int
	Partial   int
	Failed    int
	Skipped   int

	// FailedPaths lists documents that ended in StatusFailure, for re-running
	// just the failed subset.
	FailedPaths []string

	// PageFailures lists every failed page across partially failed documents.
	PageFailures []PageFailure
}

// Total returns the number of documents accounted for.
func (s *Summary) Total() int {
	return s.Succeeded + s.Partial + s.Failed + s.Skipped
}

func (s *Summary) add(res Result) {
	switch res.Status {
	case StatusSuccess:
		s.Succeeded++
	case StatusPartial:
		s.Partial++
	case StatusFailure:
		s.Failed++
		s.FailedPaths = append(s.FailedPaths, res.Path)
	case StatusSkipped:
		s.Skipped++
	}
	for _, page := range res.Pages {
		if page.Failed {
			s.PageFailures = append(s.PageFailures, PageFailure{Path: res.Path, Page: page.Index})
		}
	}
}

func (s *Summary) merge(other Summary) {
	s.Succeeded += other.Succeeded
	s.Partial += other.Partial
	s.Failed += other.Failed
	s.Skipped += other.Skipped
	s.FailedPaths = append(s.FailedPaths, other.FailedPaths...)
	s.PageFailures = append(s.PageFailures, other.PageFailures...)
}
