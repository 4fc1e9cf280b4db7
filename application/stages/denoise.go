package stages

import (
	"context"

	"go.uber.org/zap"

	"github.com/GraysonQuartech/audioProcessing/domain/model"
	"github.com/GraysonQuartech/audioProcessing/domain/ports"
	pkgerrors "github.com/GraysonQuartech/audioProcessing/pkg/errors"
	"github.com/GraysonQuartech/audioProcessing/pkg/logger"
	"github.com/GraysonQuartech/audioProcessing/pkg/retry"
)

// peakTolerance is how far (linear) a denoised peak may exceed the input
// peak before the output counts as invalid.
const peakTolerance = 0.01

// DenoiseEngine runs the primary backend, validates its output and falls
// back to spectral subtraction when the primary fails or produces invalid
// samples. One engine instance is shared by all files in a batch.
type DenoiseEngine struct {
	primary  ports.DenoiseBackend
	fallback ports.DenoiseBackend
	accel    *Accelerator
	log      *logger.Logger
}

func NewDenoiseEngine(primary, fallback ports.DenoiseBackend, accel *Accelerator, log *logger.Logger) *DenoiseEngine {
	return &DenoiseEngine{
		primary:  primary,
		fallback: fallback,
		accel:    accel,
		log:      log,
	}
}

// Denoise processes one chunk and reports whether the fallback produced
// the result. A resource failure on the accelerator is retried once on
// the CPU before the fallback is considered.
func (e *DenoiseEngine) Denoise(ctx context.Context, buf *model.AudioBuffer, opts *model.ProcessingOptions) (*model.AudioBuffer, bool, error) {
	if opts.Strength <= 0 {
		return buf, false, nil
	}

	params := model.NoiseReductionParams{
		Backend:  model.BackendPrimary,
		Strength: opts.Strength,
		Device:   opts.Device,
		Settings: opts.Backend,
	}
	if opts.ForceCPU || !e.accel.Available() {
		params.Device = model.DeviceCPU
	}

	out, err := e.runPrimary(ctx, buf, params)
	if err == nil {
		if verr := validateOutput(buf, out); verr == nil {
			return out, false, nil
		} else {
			e.log.Warn("primary denoise produced invalid output, falling back",
				zap.Error(verr))
		}
	} else {
		if ctx.Err() != nil {
			return nil, false, err
		}
		e.log.Warn("primary denoise failed, falling back", zap.Error(err))
	}

	params.Backend = model.BackendFallback
	out, err = e.fallback.Denoise(ctx, buf, params)
	if err != nil {
		return nil, true, pkgerrors.NewStageError(string(model.StageDenoise), "fallback denoise failed", err)
	}
	if out.HasNonFinite() {
		return nil, true, pkgerrors.NewStageError(string(model.StageDenoise), "fallback produced non-finite samples", nil)
	}
	return out, true, nil
}

// runPrimary invokes the primary backend, holding the accelerator lease
// when running on the device. A ResourceError drops to the CPU path and
// retries the same chunk there.
func (e *DenoiseEngine) runPrimary(ctx context.Context, buf *model.AudioBuffer, params model.NoiseReductionParams) (*model.AudioBuffer, error) {
	var out *model.AudioBuffer

	cfg := retry.DefaultConfig()
	cfg.RetryIf = pkgerrors.IsResource

	err := retry.Do(ctx, cfg, func() error {
		var runErr error
		if params.Device == model.DeviceAccelerator {
			release, acqErr := e.accel.Acquire(ctx)
			if acqErr != nil {
				if pkgerrors.IsResource(acqErr) {
					e.log.Warn("accelerator unavailable, retrying on cpu")
					params.Device = model.DeviceCPU
				}
				return acqErr
			}
			defer release()
		}
		out, runErr = e.primary.Denoise(ctx, buf, params)
		if pkgerrors.IsResource(runErr) {
			e.log.Warn("accelerator failure during denoise, retrying on cpu", zap.Error(runErr))
			params.Device = model.DeviceCPU
		}
		return runErr
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// validateOutput rejects primary results containing non-finite values or
// clipping the input did not already have.
func validateOutput(in, out *model.AudioBuffer) error {
	if out == nil || len(out.Samples) != len(in.Samples) {
		return pkgerrors.NewStageError(string(model.StageDenoise), "output length does not match input", nil)
	}
	if out.HasNonFinite() {
		return pkgerrors.NewStageError(string(model.StageDenoise), "output contains non-finite samples", nil)
	}
	if out.Peak() > in.Peak()+peakTolerance {
		return pkgerrors.NewStageError(string(model.StageDenoise), "output peak exceeds input peak", nil)
	}
	return nil
}
