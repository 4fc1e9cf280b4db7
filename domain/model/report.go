package model

import (
	"sync"
	"time"

	"go.uber.org/multierr"
)

// Status is the terminal state of one file's processing.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// ProcessingResult records the outcome for one input file. Immutable once
// produced.
type ProcessingResult struct {
	InputPath    string
	OutputPath   string
	Status       Status
	Err          error
	FallbackUsed bool
	Elapsed      time.Duration
}

// PipelineReport aggregates all per-file results for a batch run. It is the
// only object mutated from multiple workers; Add is safe for concurrent use.
type PipelineReport struct {
	mu        sync.Mutex
	succeeded int
	failed    int
	skipped   int
	elapsed   time.Duration
	results   []ProcessingResult
	errs      error
	final     bool
}

// NewPipelineReport returns an empty report ready for incremental updates.
func NewPipelineReport() *PipelineReport {
	return &PipelineReport{}
}

// Add records one file result. Results arrive in completion order, which
// need not match submission order.
func (r *PipelineReport) Add(res ProcessingResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.final {
		return
	}
	switch res.Status {
	case StatusSuccess:
		r.succeeded++
	case StatusFailed:
		r.failed++
		if res.Err != nil {
			r.errs = multierr.Append(r.errs, res.Err)
		}
	case StatusSkipped:
		r.skipped++
	}
	r.results = append(r.results, res)
}

// Finalize seals the report with the total elapsed time.
func (r *PipelineReport) Finalize(elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.elapsed = elapsed
	r.final = true
}

// Counts returns the success/failed/skipped totals.
func (r *PipelineReport) Counts() (succeeded, failed, skipped int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.succeeded, r.failed, r.skipped
}

// Total returns the number of recorded results.
func (r *PipelineReport) Total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results)
}

// Elapsed returns the total wall-clock time of the run.
func (r *PipelineReport) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.elapsed
}

// Results returns a copy of the per-file results.
func (r *PipelineReport) Results() []ProcessingResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ProcessingResult, len(r.results))
	copy(out, r.results)
	return out
}

// Err returns the combined error of all failed files, or nil.
func (r *PipelineReport) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errs
}
