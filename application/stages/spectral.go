package stages

import (
	"context"
	"math"
	"sort"

	"github.com/GraysonQuartech/audioProcessing/domain/model"
	pkgerrors "github.com/GraysonQuartech/audioProcessing/pkg/errors"
)

// SpectralGate is the primary noise-reduction backend: a spectral-gating
// transform that estimates a per-bin noise threshold, builds a smoothed
// time-frequency mask and suppresses bins below threshold. Stationary mode
// thresholds against whole-signal statistics; nonstationary mode tracks a
// moving mean so the threshold follows a drifting noise floor.
type SpectralGate struct{}

func NewSpectralGate() *SpectralGate { return &SpectralGate{} }

func (b *SpectralGate) Name() model.Backend { return model.BackendPrimary }

func (b *SpectralGate) Denoise(ctx context.Context, buf *model.AudioBuffer, params model.NoiseReductionParams) (*model.AudioBuffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := buf.Validate(); err != nil {
		return nil, pkgerrors.NewStageError(string(model.StageDenoise), "invalid buffer", err)
	}

	out := model.NewAudioBuffer(buf.Frames(), buf.SampleRate, buf.Channels)
	tf := newSTFT(params.Settings.FFTSize, params.Settings.HopSize)

	planes := deinterleave(buf.Samples, buf.Channels)
	for ch, plane := range planes {
		frames := tf.analyze(plane)
		mags := magnitudes(frames)

		var mask [][]float64
		if params.Settings.Nonstationary {
			mask = nonstationaryMask(mags, params)
		} else {
			mask = stationaryMask(mags, params)
		}
		smoothMask(mask, buf.SampleRate, params.Settings)

		// prop is the suppression proportion: gain 1.0 where the mask
		// keeps a bin, (1-prop) where it rejects one.
		prop := params.Strength
		for f := range frames {
			for bin := range frames[f] {
				gain := (1 - prop) + prop*mask[f][bin]
				frames[f][bin] *= complex(gain, 0)
			}
		}
		planes[ch] = tf.synthesize(frames, len(plane))
	}

	interleave(planes, out.Samples)
	return out, nil
}

// stationaryMask keeps bins whose magnitude exceeds the per-bin mean plus
// nStd standard deviations. The threshold is fixed by configuration;
// strength only scales how hard rejected bins are suppressed.
func stationaryMask(mags [][]float64, params model.NoiseReductionParams) [][]float64 {
	nStd := params.Settings.StdThreshStationary

	numFrames := len(mags)
	numBins := len(mags[0])

	mask := make([][]float64, numFrames)
	for f := range mask {
		mask[f] = make([]float64, numBins)
	}

	for bin := 0; bin < numBins; bin++ {
		mean := 0.0
		for f := 0; f < numFrames; f++ {
			mean += mags[f][bin]
		}
		mean /= float64(numFrames)

		variance := 0.0
		for f := 0; f < numFrames; f++ {
			d := mags[f][bin] - mean
			variance += d * d
		}
		std := math.Sqrt(variance / float64(numFrames))

		threshold := mean + nStd*std
		for f := 0; f < numFrames; f++ {
			if mags[f][bin] > threshold {
				mask[f][bin] = 1
			}
		}
	}
	return mask
}

// nonstationaryMask thresholds each bin against a centered moving mean of
// its own recent history, then smooths the mask over time so the gate does
// not chatter frame to frame.
func nonstationaryMask(mags [][]float64, params model.NoiseReductionParams) [][]float64 {
	numFrames := len(mags)
	numBins := len(mags[0])
	width := params.Settings.MovemeanNonstationary
	if width < 1 {
		width = 1
	}
	thresh := params.Settings.ThreshNonstationary + params.Strength
	coeff := params.Settings.TempCoeffNonstationary

	mask := make([][]float64, numFrames)
	for f := range mask {
		mask[f] = make([]float64, numBins)
	}

	for bin := 0; bin < numBins; bin++ {
		prev := 0.0
		for f := 0; f < numFrames; f++ {
			lo := f - width/2
			if lo < 0 {
				lo = 0
			}
			hi := lo + width
			if hi > numFrames {
				hi = numFrames
			}
			sum := 0.0
			for i := lo; i < hi; i++ {
				sum += mags[i][bin]
			}
			movmean := sum / float64(hi-lo)

			raw := 0.0
			if mags[f][bin] > movmean*thresh {
				raw = 1
			}
			prev = coeff*raw + (1-coeff)*prev
			mask[f][bin] = prev
		}
	}
	return mask
}

// smoothMask applies moving-average smoothing over frequency then time,
// with widths derived from the configured smoothing extents. Smoothing
// softens mask edges so suppression fades in and out without artifacts.
func smoothMask(mask [][]float64, sampleRate int, s model.BackendSettings) {
	binHz := float64(sampleRate) / float64(s.FFTSize)
	freqWidth := int(math.Round(s.FreqMaskSmoothHz / binHz))
	frameMs := float64(s.HopSize) / float64(sampleRate) * 1000
	timeWidth := int(math.Round(s.TimeMaskSmoothMs / frameMs))

	if freqWidth > 1 {
		row := make([]float64, len(mask[0]))
		for f := range mask {
			movingAverage(mask[f], row, freqWidth)
			copy(mask[f], row)
		}
	}
	if timeWidth > 1 {
		col := make([]float64, len(mask))
		out := make([]float64, len(mask))
		for bin := range mask[0] {
			for f := range mask {
				col[f] = mask[f][bin]
			}
			movingAverage(col, out, timeWidth)
			for f := range mask {
				mask[f][bin] = out[f]
			}
		}
	}
}

func movingAverage(in, out []float64, width int) {
	for i := range in {
		lo := i - width/2
		if lo < 0 {
			lo = 0
		}
		hi := lo + width
		if hi > len(in) {
			hi = len(in)
		}
		sum := 0.0
		for j := lo; j < hi; j++ {
			sum += in[j]
		}
		out[i] = sum / float64(hi-lo)
	}
}

// SpectralSubtraction is the deterministic fallback backend. It estimates
// a noise profile from the quietest frames, subtracts a scaled copy from
// every frame's magnitude and blends the result by strength.
type SpectralSubtraction struct{}

func NewSpectralSubtraction() *SpectralSubtraction { return &SpectralSubtraction{} }

func (b *SpectralSubtraction) Name() model.Backend { return model.BackendFallback }

// Subtraction coefficient and mask floor. The floor keeps a residual bed
// of the original signal, which limits musical-noise artifacts.
const (
	subtractionAlpha = 2.0
	maskFloor        = 0.05
)

func (b *SpectralSubtraction) Denoise(ctx context.Context, buf *model.AudioBuffer, params model.NoiseReductionParams) (*model.AudioBuffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := buf.Validate(); err != nil {
		return nil, pkgerrors.NewStageError(string(model.StageDenoise), "invalid buffer", err)
	}

	out := model.NewAudioBuffer(buf.Frames(), buf.SampleRate, buf.Channels)
	tf := newSTFT(params.Settings.FFTSize, params.Settings.HopSize)

	planes := deinterleave(buf.Samples, buf.Channels)
	for ch, plane := range planes {
		frames := tf.analyze(plane)
		mags := magnitudes(frames)
		noise := noiseProfile(mags)

		p := params.Strength
		for f := range frames {
			for bin := range frames[f] {
				mag := mags[f][bin]
				mask := 1.0
				if mag > 0 {
					mask = (mag - subtractionAlpha*noise[bin]) / mag
					if mask < maskFloor {
						mask = maskFloor
					} else if mask > 1 {
						mask = 1
					}
				}
				gain := (1 - p) + p*mask
				frames[f][bin] *= complex(gain, 0)
			}
		}
		planes[ch] = tf.synthesize(frames, len(plane))
	}

	interleave(planes, out.Samples)
	return out, nil
}

// noiseProfile averages the per-bin magnitudes of the quietest tenth of
// frames, the best available stand-in for a noise-only recording.
func noiseProfile(mags [][]float64) []float64 {
	numFrames := len(mags)
	numBins := len(mags[0])

	type frameEnergy struct {
		index  int
		energy float64
	}
	energies := make([]frameEnergy, numFrames)
	for f, row := range mags {
		e := 0.0
		for _, m := range row {
			e += m * m
		}
		energies[f] = frameEnergy{index: f, energy: e}
	}
	sort.Slice(energies, func(i, j int) bool { return energies[i].energy < energies[j].energy })

	quiet := numFrames / 10
	if quiet < 1 {
		quiet = 1
	}

	profile := make([]float64, numBins)
	for _, fe := range energies[:quiet] {
		for bin, m := range mags[fe.index] {
			profile[bin] += m
		}
	}
	for bin := range profile {
		profile[bin] /= float64(quiet)
	}
	return profile
}
