package stages

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/GraysonQuartech/audioProcessing/domain/model"
	"github.com/GraysonQuartech/audioProcessing/internal/mocks"
	pkgerrors "github.com/GraysonQuartech/audioProcessing/pkg/errors"
	"github.com/GraysonQuartech/audioProcessing/pkg/logger"
)

func noisySpeech(frames, sampleRate int) *model.AudioBuffer {
	rng := rand.New(rand.NewSource(42))
	buf := model.NewAudioBuffer(frames, sampleRate, 1)
	for i := range buf.Samples {
		tone := 0.3 * math.Sin(2*math.Pi*300*float64(i)/float64(sampleRate))
		noise := 0.05 * (rng.Float64()*2 - 1)
		buf.Samples[i] = tone + noise
	}
	return buf
}

func testOptions(strength float64) *model.ProcessingOptions {
	opts := model.DefaultProcessingOptions()
	opts.Strength = strength
	opts.Backend.FFTSize = 512
	opts.Backend.HopSize = 128
	return opts
}

func TestDenoiseEngineZeroStrengthIsNoop(t *testing.T) {
	primary := &mocks.MockDenoiseBackend{}
	engine := NewDenoiseEngine(primary, NewSpectralSubtraction(), NewAccelerator(false), logger.Nop())

	buf := noisySpeech(4800, 48000)
	out, fallback, err := engine.Denoise(context.Background(), buf, testOptions(0))
	if err != nil {
		t.Fatalf("Denoise() error = %v", err)
	}
	if fallback {
		t.Fatal("fallback used at zero strength")
	}
	if primary.Calls != 0 {
		t.Fatalf("primary called %d times at zero strength, want 0", primary.Calls)
	}
	if out != buf {
		t.Fatal("zero strength should pass the buffer through")
	}
}

func TestDenoiseEngineFallsBackOnNonFiniteOutput(t *testing.T) {
	engine := NewDenoiseEngine(mocks.NaNBackend(), NewSpectralSubtraction(), NewAccelerator(false), logger.Nop())

	buf := noisySpeech(4800, 48000)
	out, fallback, err := engine.Denoise(context.Background(), buf, testOptions(0.5))
	if err != nil {
		t.Fatalf("Denoise() error = %v", err)
	}
	if !fallback {
		t.Fatal("fallback not used for non-finite primary output")
	}
	if out.HasNonFinite() {
		t.Fatal("fallback output contains non-finite samples")
	}
}

func TestDenoiseEngineFallsBackOnClippingOutput(t *testing.T) {
	amplifier := &mocks.MockDenoiseBackend{
		DenoiseFunc: func(_ context.Context, buf *model.AudioBuffer, _ model.NoiseReductionParams) (*model.AudioBuffer, error) {
			out := buf.Clone()
			for i := range out.Samples {
				out.Samples[i] *= 3
			}
			return out, nil
		},
	}
	engine := NewDenoiseEngine(amplifier, NewSpectralSubtraction(), NewAccelerator(false), logger.Nop())

	buf := noisySpeech(4800, 48000)
	_, fallback, err := engine.Denoise(context.Background(), buf, testOptions(0.5))
	if err != nil {
		t.Fatalf("Denoise() error = %v", err)
	}
	if !fallback {
		t.Fatal("fallback not used for clipping primary output")
	}
}

func TestDenoiseEngineFallsBackOnPrimaryError(t *testing.T) {
	failing := &mocks.MockDenoiseBackend{
		DenoiseFunc: func(_ context.Context, _ *model.AudioBuffer, _ model.NoiseReductionParams) (*model.AudioBuffer, error) {
			return nil, pkgerrors.NewStageError("denoise", "unsupported parameter", nil)
		},
	}
	engine := NewDenoiseEngine(failing, NewSpectralSubtraction(), NewAccelerator(false), logger.Nop())

	buf := noisySpeech(4800, 48000)
	_, fallback, err := engine.Denoise(context.Background(), buf, testOptions(0.5))
	if err != nil {
		t.Fatalf("Denoise() error = %v", err)
	}
	if !fallback {
		t.Fatal("fallback not used after primary error")
	}
}

func TestDenoiseEngineFatalWhenFallbackFails(t *testing.T) {
	failing := &mocks.MockDenoiseBackend{
		BackendName: model.BackendFallback,
		DenoiseFunc: func(_ context.Context, _ *model.AudioBuffer, _ model.NoiseReductionParams) (*model.AudioBuffer, error) {
			return nil, pkgerrors.NewStageError("denoise", "boom", nil)
		},
	}
	engine := NewDenoiseEngine(mocks.NaNBackend(), failing, NewAccelerator(false), logger.Nop())

	_, _, err := engine.Denoise(context.Background(), noisySpeech(4800, 48000), testOptions(0.5))
	if err == nil {
		t.Fatal("Denoise() = nil error, want fatal per-file error")
	}
}

func TestDenoiseEngineDropsToCPUWithoutAccelerator(t *testing.T) {
	var devices []model.Device
	primary := &mocks.MockDenoiseBackend{
		DenoiseFunc: func(_ context.Context, buf *model.AudioBuffer, params model.NoiseReductionParams) (*model.AudioBuffer, error) {
			devices = append(devices, params.Device)
			return buf.Clone(), nil
		},
	}
	engine := NewDenoiseEngine(primary, NewSpectralSubtraction(), NewAccelerator(false), logger.Nop())

	opts := testOptions(0.5)
	opts.Device = model.DeviceAccelerator
	if _, _, err := engine.Denoise(context.Background(), noisySpeech(4800, 48000), opts); err != nil {
		t.Fatalf("Denoise() error = %v", err)
	}
	if len(devices) != 1 || devices[0] != model.DeviceCPU {
		t.Fatalf("devices = %v, want single cpu invocation", devices)
	}
}

func TestSpectralGateValidOutput(t *testing.T) {
	gate := NewSpectralGate()
	buf := noisySpeech(16384, 48000)

	params := model.NoiseReductionParams{
		Backend:  model.BackendPrimary,
		Strength: 0.8,
		Device:   model.DeviceCPU,
		Settings: testOptions(0.8).Backend,
	}
	out, err := gate.Denoise(context.Background(), buf, params)
	if err != nil {
		t.Fatalf("Denoise() error = %v", err)
	}
	if out.HasNonFinite() {
		t.Fatal("output contains non-finite samples")
	}
	if len(out.Samples) != len(buf.Samples) {
		t.Fatalf("output length = %d, want %d", len(out.Samples), len(buf.Samples))
	}
}

func TestSpectralGateStationaryStrengthMonotonic(t *testing.T) {
	gate := NewSpectralGate()

	rng := rand.New(rand.NewSource(7))
	buf := model.NewAudioBuffer(16384, 48000, 1)
	for i := range buf.Samples {
		buf.Samples[i] = 0.1 * (rng.Float64()*2 - 1)
	}

	var prev = math.Inf(1)
	for _, strength := range []float64{0.1, 0.3, 0.7, 0.9} {
		params := model.NoiseReductionParams{
			Backend:  model.BackendPrimary,
			Strength: strength,
			Device:   model.DeviceCPU,
			Settings: testOptions(strength).Backend,
		}
		out, err := gate.Denoise(context.Background(), buf.Clone(), params)
		if err != nil {
			t.Fatalf("Denoise(strength=%v) error = %v", strength, err)
		}
		energy := out.RMS()
		if energy > prev+1e-9 {
			t.Fatalf("RMS at strength %v = %v, exceeds lower strength's %v", strength, energy, prev)
		}
		prev = energy
	}
}

func TestDenoiseStagePerStageStrengthOverride(t *testing.T) {
	var strengths []float64
	primary := &mocks.MockDenoiseBackend{
		DenoiseFunc: func(_ context.Context, buf *model.AudioBuffer, params model.NoiseReductionParams) (*model.AudioBuffer, error) {
			strengths = append(strengths, params.Strength)
			return buf.Clone(), nil
		},
	}
	engine := NewDenoiseEngine(primary, NewSpectralSubtraction(), NewAccelerator(false), logger.Nop())

	// A per-stage strength engages the stage even when the global knob
	// is zero.
	stage := NewDenoiseStage(engine, testOptions(0), 0.6)
	if _, err := stage.Process(context.Background(), noisySpeech(4800, 48000)); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(strengths) != 1 || strengths[0] != 0.6 {
		t.Fatalf("backend strengths = %v, want [0.6]", strengths)
	}

	// And an override of zero disables it regardless of the global value.
	strengths = nil
	stage = NewDenoiseStage(engine, testOptions(0.5), 0)
	if _, err := stage.Process(context.Background(), noisySpeech(4800, 48000)); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(strengths) != 0 {
		t.Fatalf("backend called with strengths %v, want no calls", strengths)
	}
}

func TestSpectralSubtractionStrengthMonotonic(t *testing.T) {
	sub := NewSpectralSubtraction()
	buf := noisySpeech(16384, 48000)

	var prev float64 = math.Inf(1)
	for _, strength := range []float64{0.2, 0.5, 0.9} {
		params := model.NoiseReductionParams{
			Backend:  model.BackendFallback,
			Strength: strength,
			Device:   model.DeviceCPU,
			Settings: testOptions(strength).Backend,
		}
		out, err := sub.Denoise(context.Background(), buf.Clone(), params)
		if err != nil {
			t.Fatalf("Denoise(strength=%v) error = %v", strength, err)
		}
		energy := out.RMS()
		if energy > prev+1e-9 {
			t.Fatalf("RMS at strength %v = %v, exceeds lower strength's %v", strength, energy, prev)
		}
		prev = energy
	}
}

func TestSpectralGateNonstationaryMode(t *testing.T) {
	gate := NewSpectralGate()
	buf := noisySpeech(16384, 48000)

	settings := testOptions(0.5).Backend
	settings.Nonstationary = true
	params := model.NoiseReductionParams{
		Backend:  model.BackendPrimary,
		Strength: 0.5,
		Device:   model.DeviceCPU,
		Settings: settings,
	}
	out, err := gate.Denoise(context.Background(), buf, params)
	if err != nil {
		t.Fatalf("Denoise() error = %v", err)
	}
	if out.HasNonFinite() {
		t.Fatal("output contains non-finite samples")
	}
}

func TestAcceleratorLeaseIsExclusive(t *testing.T) {
	accel := NewAccelerator(true)

	release, err := accel.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := accel.Acquire(ctx); err == nil {
		t.Fatal("second Acquire() succeeded while lease held")
	}

	release()
	release2, err := accel.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() after release error = %v", err)
	}
	release2()
}
