// Package audioproc cleans batches of courtroom audio recordings: noise
// gating, noise reduction with a deterministic fallback, loudness
// normalization and optional resampling, streamed in bounded-memory
// chunks across a pool of workers.
package audioproc

import (
	"context"

	"go.uber.org/zap"

	"github.com/GraysonQuartech/audioProcessing/application/stages"
	"github.com/GraysonQuartech/audioProcessing/application/usecase"
	"github.com/GraysonQuartech/audioProcessing/domain/model"
	"github.com/GraysonQuartech/audioProcessing/domain/ports"
	"github.com/GraysonQuartech/audioProcessing/infrastructure/config"
	"github.com/GraysonQuartech/audioProcessing/infrastructure/storage"
	"github.com/GraysonQuartech/audioProcessing/pkg/logger"
	"github.com/GraysonQuartech/audioProcessing/pkg/progress"
)

// Re-export types for convenient use by callers
type (
	ProcessingResult  = model.ProcessingResult
	PipelineReport    = model.PipelineReport
	ProcessingOptions = model.ProcessingOptions
	StageConfig       = model.StageConfig
	StageDescriptor   = model.StageDescriptor
	StageName         = model.StageName
	NormalizeMode     = model.NormalizeMode
	Device            = model.Device
	BackendSettings   = model.BackendSettings
	Status            = model.Status
	ProgressUpdate    = progress.Update
	ProgressStage     = progress.Stage
	Option            = ports.Option
)

// Re-export constants
const (
	StageNormalize = model.StageNormalize
	StageNoiseGate = model.StageNoiseGate
	StageDenoise   = model.StageDenoise
	StageResample  = model.StageResample

	NormalizeRMS  = model.NormalizeRMS
	NormalizePeak = model.NormalizePeak

	DeviceCPU         = model.DeviceCPU
	DeviceAccelerator = model.DeviceAccelerator

	StatusSuccess = model.StatusSuccess
	StatusFailed  = model.StatusFailed
	StatusSkipped = model.StatusSkipped
)

// Re-export option functions
var (
	WithStrength         = ports.WithStrength
	WithStages           = ports.WithStages
	WithTargetDB         = ports.WithTargetDB
	WithMaxAmplitude     = ports.WithMaxAmplitude
	WithNormalizeMode    = ports.WithNormalizeMode
	WithNoiseGate        = ports.WithNoiseGate
	WithBackendSettings  = ports.WithBackendSettings
	WithDevice           = ports.WithDevice
	WithForceCPU         = ports.WithForceCPU
	WithOutputSampleRate = ports.WithOutputSampleRate
	WithChunkSizeMB      = ports.WithChunkSizeMB
	WithWorkers          = ports.WithWorkers
	WithFileTimeout      = ports.WithFileTimeout
	WithContinueOnError  = ports.WithContinueOnError
	WithSkipExisting     = ports.WithSkipExisting
	WithOutputPrefix     = ports.WithOutputPrefix
)

// Config holds top-level configuration for the processor.
type Config struct {
	// ConfigFile is an optional YAML configuration file applied over the
	// defaults before any functional options.
	ConfigFile string

	// Logger is an optional custom logger. Uses production zap if nil.
	Logger *logger.Logger

	// ZapLogger allows passing a *zap.Logger directly.
	ZapLogger *zap.Logger

	// LogFile tees log output to a file in addition to stderr.
	LogFile string

	// Verbose switches to development logging.
	Verbose bool

	// ProgressCh is an optional channel for receiving progress updates.
	ProgressCh chan<- ProgressUpdate

	// Reporter overrides progress reporting entirely.
	Reporter progress.Reporter
}

// Processor is the public entry point.
type Processor struct {
	service *usecase.AudioService
	log     *logger.Logger
}

// New creates a Processor. Option precedence: defaults, then the config
// file, then functional options.
func New(cfg Config, opts ...Option) (*Processor, error) {
	log := cfg.Logger
	if log == nil && cfg.ZapLogger != nil {
		log = logger.FromZap(cfg.ZapLogger)
	}
	if log == nil {
		var err error
		log, err = logger.NewWithFile(cfg.Verbose, cfg.LogFile)
		if err != nil {
			return nil, err
		}
	}

	if cfg.ConfigFile != "" {
		file, err := config.Load(cfg.ConfigFile)
		if err != nil {
			return nil, err
		}
		// Probe once against a scratch copy so a bad stage name fails
		// here instead of being swallowed inside the option.
		if err := file.Apply(model.DefaultProcessingOptions()); err != nil {
			return nil, err
		}
		fileOpt := Option(func(o *model.ProcessingOptions) { _ = file.Apply(o) })
		opts = append([]Option{fileOpt}, opts...)
	}

	reporter := cfg.Reporter
	if reporter == nil && cfg.ProgressCh != nil {
		reporter = progress.NewChannelReporter(cfg.ProgressCh)
	}

	service, err := usecase.NewAudioService(usecase.Config{
		Storage:  storage.NewLocalStorage(),
		Reporter: reporter,
		Logger:   log,
	}, opts...)
	if err != nil {
		return nil, err
	}

	return &Processor{service: service, log: log}, nil
}

// ProcessFile cleans a single audio file.
func (p *Processor) ProcessFile(ctx context.Context, inputPath, outputPath string) (*ProcessingResult, error) {
	return p.service.ProcessFile(ctx, inputPath, outputPath)
}

// ProcessBatch cleans every supported file directly under inputDir.
func (p *Processor) ProcessBatch(ctx context.Context, inputDir, outputDir string) (*PipelineReport, error) {
	return p.service.ProcessBatch(ctx, inputDir, outputDir)
}

// Options returns the resolved processing options.
func (p *Processor) Options() *ProcessingOptions {
	return p.service.Options()
}

// AcceleratorAvailable reports whether an accelerator was detected.
func AcceleratorAvailable() bool {
	return stages.DetectAccelerator().Available()
}

// Close flushes buffered log output.
func (p *Processor) Close() error {
	return p.log.Sync()
}
