package stages

import (
	"context"

	"github.com/GraysonQuartech/audioProcessing/domain/model"
)

// Stage is one transform in a file's processing chain. Stateful stages
// (gate, resampler) are built per file; stateless ones could be shared
// but are built per file anyway for uniform ownership.
type Stage interface {
	Name() model.StageName
	Process(ctx context.Context, buf *model.AudioBuffer) (*model.AudioBuffer, error)
}

// Flusher is implemented by stages that hold samples back (the
// resampler's filter tail). Drained once after the last chunk.
type Flusher interface {
	Flush(ctx context.Context) (*model.AudioBuffer, error)
}

// DenoiseStage adapts the shared engine to the Stage interface and
// remembers whether any chunk of this file took the fallback path.
type DenoiseStage struct {
	engine       *DenoiseEngine
	opts         *model.ProcessingOptions
	fallbackUsed bool
}

// NewDenoiseStage builds the stage with an effective strength, which may
// be a per-stage override of the global value.
func NewDenoiseStage(engine *DenoiseEngine, opts *model.ProcessingOptions, strength float64) *DenoiseStage {
	if strength != opts.Strength {
		o := *opts
		o.Strength = strength
		opts = &o
	}
	return &DenoiseStage{engine: engine, opts: opts}
}

func (s *DenoiseStage) Name() model.StageName { return model.StageDenoise }

func (s *DenoiseStage) Process(ctx context.Context, buf *model.AudioBuffer) (*model.AudioBuffer, error) {
	out, fallback, err := s.engine.Denoise(ctx, buf, s.opts)
	if fallback {
		s.fallbackUsed = true
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FallbackUsed reports whether the fallback produced any of this file's
// output.
func (s *DenoiseStage) FallbackUsed() bool { return s.fallbackUsed }
