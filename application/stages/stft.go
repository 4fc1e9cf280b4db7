// Package stages implements the DSP transforms applied to audio chunks:
// noise gate, noise reduction, normalization and resampling.
package stages

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// stft performs a Hann-windowed short-time Fourier transform with
// overlap-add reconstruction. Both denoise backends share it.
type stft struct {
	fftSize int
	hop     int
	win     []float64
}

func newSTFT(fftSize, hop int) *stft {
	return &stft{
		fftSize: fftSize,
		hop:     hop,
		win:     window.Hann(fftSize),
	}
}

// analyze splits a single-channel signal into overlapping windowed frames
// and transforms each. The signal is zero-padded so the last frame is full.
func (s *stft) analyze(signal []float64) [][]complex128 {
	numFrames := 1
	if len(signal) > s.fftSize {
		numFrames = 1 + (len(signal)-s.fftSize+s.hop-1)/s.hop
	}

	frames := make([][]complex128, numFrames)
	buf := make([]float64, s.fftSize)
	for f := 0; f < numFrames; f++ {
		off := f * s.hop
		for i := 0; i < s.fftSize; i++ {
			if off+i < len(signal) {
				buf[i] = signal[off+i] * s.win[i]
			} else {
				buf[i] = 0
			}
		}
		frames[f] = fft.FFTReal(buf)
	}
	return frames
}

// synthesize reconstructs a signal of length outLen from spectral frames by
// inverse transform and windowed overlap-add, normalizing by the summed
// squared window so unmodified frames reconstruct the input.
func (s *stft) synthesize(frames [][]complex128, outLen int) []float64 {
	out := make([]float64, outLen)
	wsum := make([]float64, outLen)

	for f, frame := range frames {
		off := f * s.hop
		td := fft.IFFT(frame)
		for i := 0; i < s.fftSize && off+i < outLen; i++ {
			out[off+i] += real(td[i]) * s.win[i]
			wsum[off+i] += s.win[i] * s.win[i]
		}
	}

	const eps = 1e-9
	for i := range out {
		if wsum[i] > eps {
			out[i] /= wsum[i]
		}
	}
	return out
}

// magnitudes returns the per-frame, per-bin spectral magnitudes.
func magnitudes(frames [][]complex128) [][]float64 {
	mags := make([][]float64, len(frames))
	for f, frame := range frames {
		row := make([]float64, len(frame))
		for b, c := range frame {
			row[b] = cmplx.Abs(c)
		}
		mags[f] = row
	}
	return mags
}

// deinterleave splits interleaved samples into per-channel planes.
func deinterleave(samples []float64, channels int) [][]float64 {
	frames := len(samples) / channels
	planes := make([][]float64, channels)
	for ch := 0; ch < channels; ch++ {
		plane := make([]float64, frames)
		for i := 0; i < frames; i++ {
			plane[i] = samples[i*channels+ch]
		}
		planes[ch] = plane
	}
	return planes
}

// interleave merges per-channel planes back into interleaved order.
func interleave(planes [][]float64, out []float64) {
	channels := len(planes)
	for ch, plane := range planes {
		for i, v := range plane {
			out[i*channels+ch] = v
		}
	}
}
