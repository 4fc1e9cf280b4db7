package stages

import (
	"context"

	resampler "github.com/tphakala/go-audio-resampler"

	"github.com/GraysonQuartech/audioProcessing/domain/model"
	pkgerrors "github.com/GraysonQuartech/audioProcessing/pkg/errors"
)

// Resampler converts a file to a target sample rate using a streaming
// polyphase converter. Like the gate it is stateful: one instance per
// file, chunks fed in order, Flush drains the filter tail at end of
// stream.
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int
	conv       resampler.Resampler
}

func NewResampler(inputRate, outputRate, channels int) (*Resampler, error) {
	conv, err := resampler.New(&resampler.Config{
		InputRate:  float64(inputRate),
		OutputRate: float64(outputRate),
		Channels:   channels,
		Quality:    resampler.QualitySpec{Preset: resampler.QualityHigh},
	})
	if err != nil {
		return nil, pkgerrors.NewStageError(string(model.StageResample), "failed to initialize resampler", err)
	}
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		conv:       conv,
	}, nil
}

func (r *Resampler) Name() model.StageName { return model.StageResample }

// Process converts one chunk. Output length varies with the conversion
// ratio and filter latency; an empty output buffer early in the stream is
// normal while the filter fills.
func (r *Resampler) Process(ctx context.Context, buf *model.AudioBuffer) (*model.AudioBuffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := buf.Validate(); err != nil {
		return nil, pkgerrors.NewStageError(string(model.StageResample), "invalid buffer", err)
	}
	if buf.SampleRate != r.inputRate || buf.Channels != r.channels {
		return nil, pkgerrors.NewStageError(string(model.StageResample), "stream format changed mid-file", nil)
	}
	if r.inputRate == r.outputRate {
		return buf, nil
	}

	out, err := r.conv.Process(buf.Samples)
	if err != nil {
		return nil, pkgerrors.NewStageError(string(model.StageResample), "resampling failed", err)
	}
	return &model.AudioBuffer{
		Samples:    out,
		SampleRate: r.outputRate,
		Channels:   r.channels,
	}, nil
}

// Flush returns the samples still buffered in the filter after the last
// chunk. May return an empty buffer.
func (r *Resampler) Flush(ctx context.Context) (*model.AudioBuffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.inputRate == r.outputRate {
		return &model.AudioBuffer{SampleRate: r.outputRate, Channels: r.channels}, nil
	}

	out, err := r.conv.Flush()
	if err != nil {
		return nil, pkgerrors.NewStageError(string(model.StageResample), "failed to drain resampler", err)
	}
	return &model.AudioBuffer{
		Samples:    out,
		SampleRate: r.outputRate,
		Channels:   r.channels,
	}, nil
}
