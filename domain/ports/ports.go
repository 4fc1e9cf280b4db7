package ports

import (
	"context"
	"time"

	"github.com/GraysonQuartech/audioProcessing/domain/model"
)

// AudioProcessor defines the main processing interface
type AudioProcessor interface {
	// ProcessFile runs the configured stage list over a single file
	ProcessFile(ctx context.Context, inputPath, outputPath string) (*model.ProcessingResult, error)

	// ProcessBatch processes every supported file under inputDir
	ProcessBatch(ctx context.Context, inputDir, outputDir string) (*model.PipelineReport, error)
}

// DenoiseBackend is the shared capability of the primary and fallback
// noise-reduction variants. The engine, not the caller, decides which
// variant runs.
type DenoiseBackend interface {
	Name() model.Backend
	Denoise(ctx context.Context, buf *model.AudioBuffer, params model.NoiseReductionParams) (*model.AudioBuffer, error)
}

// ChunkReader is a lazy, finite sequence of frame-aligned AudioBuffer
// chunks. Restartable only by reopening the file.
type ChunkReader interface {
	// Next returns the next chunk, or io.EOF when the stream is exhausted.
	Next(ctx context.Context) (*model.AudioBuffer, error)
	SampleRate() int
	Channels() int
	Close() error
}

// ChunkWriter streams chunks to an output file in arrival order.
type ChunkWriter interface {
	Write(ctx context.Context, buf *model.AudioBuffer) error
	Close() error
}

// Codec decodes and encodes one container/codec family.
type Codec interface {
	// Open returns a reader whose chunks are bounded by chunkBytes.
	Open(path string, chunkBytes int) (ChunkReader, error)
	Create(path string, sampleRate, channels int) (ChunkWriter, error)
	Extensions() []string
}

// StorageProvider abstracts filesystem operations
type StorageProvider interface {
	Exists(ctx context.Context, path string) (bool, error)
	Size(ctx context.Context, path string) (int64, error)
	Remove(ctx context.Context, path string) error
	Rename(ctx context.Context, oldPath, newPath string) error
	TempFile(ctx context.Context, dir, pattern string) (string, error)

	// ListAudio enumerates files directly under dir whose extension is in exts.
	ListAudio(ctx context.Context, dir string, exts []string) ([]string, error)
}

// Option is the functional option type
type Option func(*model.ProcessingOptions)

// WithStrength sets the global noise-reduction strength in [0, 1]
func WithStrength(s float64) Option {
	return func(o *model.ProcessingOptions) {
		o.Strength = s
	}
}

// WithStages replaces the ordered stage list
func WithStages(cfg model.StageConfig) Option {
	return func(o *model.ProcessingOptions) {
		o.Stages = cfg
	}
}

// WithTargetDB sets the normalization target level
func WithTargetDB(db float64) Option {
	return func(o *model.ProcessingOptions) {
		o.TargetDB = db
	}
}

// WithMaxAmplitude sets the hard clip ceiling
func WithMaxAmplitude(a float64) Option {
	return func(o *model.ProcessingOptions) {
		o.MaxAmplitude = a
	}
}

// WithNormalizeMode selects the RMS or peak level detector
func WithNormalizeMode(m model.NormalizeMode) Option {
	return func(o *model.ProcessingOptions) {
		o.NormalizeMode = m
	}
}

// WithNoiseGate sets the gate threshold and envelope times
func WithNoiseGate(thresholdDB, attackMs, releaseMs float64) Option {
	return func(o *model.ProcessingOptions) {
		o.GateThresholdDB = thresholdDB
		o.GateAttackMs = attackMs
		o.GateReleaseMs = releaseMs
	}
}

// WithBackendSettings overrides backend-specific tuning
func WithBackendSettings(s model.BackendSettings) Option {
	return func(o *model.ProcessingOptions) {
		o.Backend = s
	}
}

// WithDevice selects cpu or accelerator for the primary backend
func WithDevice(d model.Device) Option {
	return func(o *model.ProcessingOptions) {
		o.Device = d
	}
}

// WithForceCPU disables accelerator use entirely
func WithForceCPU(force bool) Option {
	return func(o *model.ProcessingOptions) {
		o.ForceCPU = force
	}
}

// WithOutputSampleRate enables the resample stage toward the given rate
func WithOutputSampleRate(hz int) Option {
	return func(o *model.ProcessingOptions) {
		o.OutputSampleRate = hz
	}
}

// WithChunkSizeMB sets the I/O chunk memory budget
func WithChunkSizeMB(mb int) Option {
	return func(o *model.ProcessingOptions) {
		if mb > 0 {
			o.ChunkSizeMB = mb
		}
	}
}

// WithWorkers sets the number of concurrent batch workers
func WithWorkers(n int) Option {
	return func(o *model.ProcessingOptions) {
		if n > 0 {
			o.Workers = n
		}
	}
}

// WithFileTimeout sets the per-file processing time budget
func WithFileTimeout(d time.Duration) Option {
	return func(o *model.ProcessingOptions) {
		o.FileTimeout = d
	}
}

// WithContinueOnError selects per-file vs whole-batch failure policy
func WithContinueOnError(cont bool) Option {
	return func(o *model.ProcessingOptions) {
		o.ContinueOnError = cont
	}
}

// WithSkipExisting skips inputs whose output file already exists
func WithSkipExisting(skip bool) Option {
	return func(o *model.ProcessingOptions) {
		o.SkipExisting = skip
	}
}

// WithOutputPrefix sets the prefix applied to output filenames
func WithOutputPrefix(prefix string) Option {
	return func(o *model.ProcessingOptions) {
		o.OutputPrefix = prefix
	}
}
