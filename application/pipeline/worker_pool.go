package pipeline

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/GraysonQuartech/audioProcessing/domain/model"
	pkgerrors "github.com/GraysonQuartech/audioProcessing/pkg/errors"
	"github.com/GraysonQuartech/audioProcessing/pkg/logger"
)

// BatchJob names one input/output pair in a batch.
type BatchJob struct {
	InputPath  string
	OutputPath string
}

// WorkerPool fans batch jobs out to a bounded number of workers. Files
// are independent; ordering inside the report follows completion, not
// submission, but the aggregate counts are exact.
type WorkerPool struct {
	executor *Executor
	workers  int
	haltOnce bool
	log      *logger.Logger
}

// NewWorkerPool creates a pool of the given width. When haltOnFailure is
// set the first failed file cancels the rest of the batch.
func NewWorkerPool(executor *Executor, workers int, haltOnFailure bool, log *logger.Logger) *WorkerPool {
	if workers <= 0 {
		workers = 4
	}
	return &WorkerPool{
		executor: executor,
		workers:  workers,
		haltOnce: haltOnFailure,
		log:      log,
	}
}

// Run processes all jobs and records every outcome in report. Jobs not
// yet started when the context is cancelled are recorded as skipped;
// the in-flight chunk of a running job completes before the worker stops.
func (wp *WorkerPool) Run(ctx context.Context, jobs []BatchJob, report *model.PipelineReport) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, wp.workers)

	for _, job := range jobs {
		if runCtx.Err() != nil {
			report.Add(model.ProcessingResult{
				InputPath:  job.InputPath,
				OutputPath: job.OutputPath,
				Status:     model.StatusSkipped,
				Err:        runCtx.Err(),
			})
			continue
		}

		select {
		case <-runCtx.Done():
			report.Add(model.ProcessingResult{
				InputPath:  job.InputPath,
				OutputPath: job.OutputPath,
				Status:     model.StatusSkipped,
				Err:        runCtx.Err(),
			})
			continue
		case semaphore <- struct{}{}:
		}

		wg.Add(1)
		go func(j BatchJob) {
			defer wg.Done()
			defer func() { <-semaphore }()

			res := wp.runJob(runCtx, j)
			report.Add(*res)

			if res.Status == model.StatusFailed && wp.haltOnce {
				wp.log.Warn("halting batch on first failure", zap.String("file", j.InputPath))
				cancel()
			}
		}(job)
	}

	wg.Wait()
}

// runJob isolates one file: a panic inside a stage is converted to a
// failed result instead of tearing down the batch.
func (wp *WorkerPool) runJob(ctx context.Context, job BatchJob) (res *model.ProcessingResult) {
	defer func() {
		if r := recover(); r != nil {
			wp.log.Error("panic while processing file",
				zap.String("file", job.InputPath), zap.Any("panic", r))
			res = &model.ProcessingResult{
				InputPath:  job.InputPath,
				OutputPath: job.OutputPath,
				Status:     model.StatusFailed,
				Err: pkgerrors.NewStageError("pipeline",
					fmt.Sprintf("panic: %v", r), nil),
			}
		}
	}()

	result, err := wp.executor.Run(ctx, job.InputPath, job.OutputPath)
	if err != nil {
		// Only cancellation reaches here; the file never started or was
		// stopped mid-flight with its partial output discarded.
		return &model.ProcessingResult{
			InputPath:  job.InputPath,
			OutputPath: job.OutputPath,
			Status:     model.StatusSkipped,
			Err:        err,
		}
	}
	return result
}
