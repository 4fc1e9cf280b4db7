// Package usecase wires the batch orchestrator: input discovery, output
// naming, dispatch across the worker pool and the final report.
package usecase

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/GraysonQuartech/audioProcessing/application/pipeline"
	"github.com/GraysonQuartech/audioProcessing/application/stages"
	"github.com/GraysonQuartech/audioProcessing/domain/model"
	"github.com/GraysonQuartech/audioProcessing/domain/ports"
	"github.com/GraysonQuartech/audioProcessing/infrastructure/codec"
	"github.com/GraysonQuartech/audioProcessing/infrastructure/config"
	pkgerrors "github.com/GraysonQuartech/audioProcessing/pkg/errors"
	"github.com/GraysonQuartech/audioProcessing/pkg/logger"
	"github.com/GraysonQuartech/audioProcessing/pkg/progress"
)

// AudioService is the main application service implementing
// ports.AudioProcessor.
type AudioService struct {
	codecs   *codec.Registry
	storage  ports.StorageProvider
	engine   *stages.DenoiseEngine
	opts     *model.ProcessingOptions
	reporter progress.Reporter
	log      *logger.Logger
}

// Config holds AudioService dependencies.
type Config struct {
	Storage  ports.StorageProvider
	Reporter progress.Reporter
	Logger   *logger.Logger

	// Primary and Fallback override the built-in denoise backends.
	Primary  ports.DenoiseBackend
	Fallback ports.DenoiseBackend

	// Accelerator overrides device detection.
	Accelerator *stages.Accelerator
}

// NewAudioService validates opts and builds the service.
func NewAudioService(cfg Config, opts ...ports.Option) (*AudioService, error) {
	options := model.DefaultProcessingOptions()
	for _, o := range opts {
		o(options)
	}
	if err := config.ValidateOptions(options); err != nil {
		return nil, err
	}

	if cfg.Storage == nil {
		return nil, fmt.Errorf("StorageProvider is required")
	}

	log := cfg.Logger
	if log == nil {
		var err error
		log, err = logger.New(false)
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}

	reporter := cfg.Reporter
	if reporter == nil {
		reporter = progress.NoopReporter{}
	}

	primary := cfg.Primary
	if primary == nil {
		primary = stages.NewSpectralGate()
	}
	fallback := cfg.Fallback
	if fallback == nil {
		fallback = stages.NewSpectralSubtraction()
	}
	accel := cfg.Accelerator
	if accel == nil {
		accel = stages.DetectAccelerator()
	}

	return &AudioService{
		codecs:   codec.NewRegistry(),
		storage:  cfg.Storage,
		engine:   stages.NewDenoiseEngine(primary, fallback, accel, log),
		opts:     options,
		reporter: reporter,
		log:      log,
	}, nil
}

// Options returns the service's validated processing options.
func (s *AudioService) Options() *model.ProcessingOptions { return s.opts }

// ProcessFile runs the configured stage list over a single file.
func (s *AudioService) ProcessFile(ctx context.Context, inputPath, outputPath string) (*model.ProcessingResult, error) {
	if err := s.checkInput(ctx, inputPath); err != nil {
		return nil, err
	}

	s.log.Info("processing file",
		zap.String("input", inputPath),
		zap.String("output", outputPath))

	exec := pipeline.NewExecutor(s.codecs, s.storage, s.engine, s.opts, s.reporter, s.log)
	res, err := exec.Run(ctx, inputPath, outputPath)
	if err != nil {
		return nil, err
	}
	if res.Status == model.StatusFailed {
		return res, res.Err
	}
	return res, nil
}

// ProcessBatch processes every supported file directly under inputDir,
// writing prefixed outputs to outputDir.
func (s *AudioService) ProcessBatch(ctx context.Context, inputDir, outputDir string) (*model.PipelineReport, error) {
	start := time.Now()

	inputs, err := s.storage.ListAudio(ctx, inputDir, s.codecs.Extensions())
	if err != nil {
		return nil, pkgerrors.NewIOError(inputDir, "failed to enumerate input directory", err)
	}

	report := model.NewPipelineReport()
	if len(inputs) == 0 {
		s.log.Warn("no supported audio files found", zap.String("dir", inputDir))
		report.Finalize(time.Since(start))
		return report, nil
	}

	jobs := make([]pipeline.BatchJob, 0, len(inputs))
	for _, in := range inputs {
		out := s.outputPath(outputDir, in)
		if s.opts.SkipExisting {
			if exists, err := s.storage.Exists(ctx, out); err == nil && exists {
				s.log.Info("output exists, skipping", zap.String("file", in))
				report.Add(model.ProcessingResult{
					InputPath:  in,
					OutputPath: out,
					Status:     model.StatusSkipped,
				})
				continue
			}
		}
		jobs = append(jobs, pipeline.BatchJob{InputPath: in, OutputPath: out})
	}

	s.log.Info("starting batch",
		zap.Int("files", len(jobs)),
		zap.Int("workers", s.opts.Workers),
		zap.Bool("continue_on_error", s.opts.ContinueOnError))

	exec := pipeline.NewExecutor(s.codecs, s.storage, s.engine, s.opts, s.reporter, s.log)
	pool := pipeline.NewWorkerPool(exec, s.opts.Workers, !s.opts.ContinueOnError, s.log)
	pool.Run(ctx, jobs, report)

	report.Finalize(time.Since(start))
	s.logSummary(report)
	return report, nil
}

// outputPath builds the prefixed output filename. Compressed inputs get a
// .wav extension since output is always PCM.
func (s *AudioService) outputPath(outputDir, inputPath string) string {
	name := s.opts.OutputPrefix + filepath.Base(inputPath)
	return s.codecs.OutputPath(filepath.Join(outputDir, name))
}

func (s *AudioService) checkInput(ctx context.Context, inputPath string) error {
	if inputPath == "" {
		return pkgerrors.NewConfigError("inputPath", "", "input path must not be empty")
	}
	if !s.codecs.Supported(inputPath) {
		return pkgerrors.NewDecodeError(inputPath, "unsupported audio format", nil)
	}
	exists, err := s.storage.Exists(ctx, inputPath)
	if err != nil {
		return pkgerrors.NewIOError(inputPath, "failed to check input file", err)
	}
	if !exists {
		return pkgerrors.NewIOError(inputPath, "input file does not exist", nil)
	}
	return nil
}

func (s *AudioService) logSummary(report *model.PipelineReport) {
	succeeded, failed, skipped := report.Counts()
	total := report.Total()
	rate := 0.0
	if total > 0 {
		rate = float64(succeeded) / float64(total) * 100
	}
	s.log.Info("batch complete",
		zap.Int("total", total),
		zap.Int("succeeded", succeeded),
		zap.Int("failed", failed),
		zap.Int("skipped", skipped),
		zap.String("success_rate", fmt.Sprintf("%.1f%%", rate)),
		zap.Duration("elapsed", report.Elapsed()))
}
