package stages

import (
	"context"
	"math"

	"github.com/GraysonQuartech/audioProcessing/domain/model"
	pkgerrors "github.com/GraysonQuartech/audioProcessing/pkg/errors"
)

// gatePhase is the gate's position in its open/close cycle.
type gatePhase int

const (
	gateClosed gatePhase = iota
	gateOpening
	gateOpen
	gateClosing
)

// gateChannel is the per-channel mutable gate state. It survives chunk
// boundaries so gating stays click-free at chunk edges.
type gateChannel struct {
	envelope float64
	gain     float64
	phase    gatePhase
}

// NoiseGate attenuates passages below a level threshold. One instance
// gates exactly one file; state is scoped to that file's lifetime.
type NoiseGate struct {
	thresholdLin float64
	attackCoeff  float64
	releaseCoeff float64
	channels     []gateChannel
}

// NewNoiseGate builds a gate for the given sample rate. Attack and release
// of 0 ms degenerate to an instantaneous hard gate.
func NewNoiseGate(thresholdDB, attackMs, releaseMs float64, sampleRate int) *NoiseGate {
	return &NoiseGate{
		thresholdLin: math.Pow(10, thresholdDB/20),
		attackCoeff:  smoothingCoeff(attackMs, sampleRate),
		releaseCoeff: smoothingCoeff(releaseMs, sampleRate),
	}
}

// smoothingCoeff converts a time constant in milliseconds to a one-pole
// smoothing coefficient. Zero milliseconds yields 1.0: no smoothing.
func smoothingCoeff(ms float64, sampleRate int) float64 {
	if ms <= 0 {
		return 1.0
	}
	samples := ms * float64(sampleRate) / 1000.0
	return 1.0 - math.Exp(-1.0/samples)
}

func (g *NoiseGate) Name() model.StageName { return model.StageNoiseGate }

// Process gates one chunk in place. Channels are gated independently so a
// quiet channel closes while a loud one stays open.
func (g *NoiseGate) Process(ctx context.Context, buf *model.AudioBuffer) (*model.AudioBuffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := buf.Validate(); err != nil {
		return nil, pkgerrors.NewStageError(string(model.StageNoiseGate), "invalid buffer", err)
	}

	if len(g.channels) == 0 {
		g.channels = make([]gateChannel, buf.Channels)
	}
	if len(g.channels) != buf.Channels {
		return nil, pkgerrors.NewStageError(string(model.StageNoiseGate), "channel count changed mid-file", nil)
	}

	frames := buf.Frames()
	for i := 0; i < frames; i++ {
		for ch := 0; ch < buf.Channels; ch++ {
			idx := i*buf.Channels + ch
			buf.Samples[idx] *= g.channels[ch].step(math.Abs(buf.Samples[idx]), g)
		}
	}
	return buf, nil
}

// step advances the state machine by one sample and returns the gain to
// apply. The envelope follows the rectified input with the attack
// coefficient while rising and the release coefficient while falling; the
// gain ramps toward fully open or fully closed at the same rates.
func (c *gateChannel) step(level float64, g *NoiseGate) float64 {
	if level > c.envelope {
		c.envelope += g.attackCoeff * (level - c.envelope)
	} else {
		c.envelope += g.releaseCoeff * (level - c.envelope)
	}

	if c.envelope >= g.thresholdLin {
		c.gain += g.attackCoeff * (1.0 - c.gain)
		if c.gain >= 0.999 {
			c.gain = 1.0
			c.phase = gateOpen
		} else {
			c.phase = gateOpening
		}
	} else {
		c.gain += g.releaseCoeff * (0.0 - c.gain)
		if c.gain <= 0.001 {
			c.gain = 0.0
			c.phase = gateClosed
		} else {
			c.phase = gateClosing
		}
	}
	return c.gain
}
