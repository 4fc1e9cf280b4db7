package model

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// AudioBuffer holds interleaved floating-point samples in the nominal
// range [-1.0, 1.0]. Length must be evenly divisible by the channel count
// so that a buffer always contains whole sample frames.
type AudioBuffer struct {
	Samples    []float64
	SampleRate int
	Channels   int
}

// NewAudioBuffer allocates a buffer of n frames.
func NewAudioBuffer(frames, sampleRate, channels int) *AudioBuffer {
	return &AudioBuffer{
		Samples:    make([]float64, frames*channels),
		SampleRate: sampleRate,
		Channels:   channels,
	}
}

// Frames returns the number of complete multi-channel sample frames.
func (b *AudioBuffer) Frames() int {
	if b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Duration returns the playback duration of the buffer.
func (b *AudioBuffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(b.Frames()) / float64(b.SampleRate) * float64(time.Second))
}

// Validate checks the buffer invariants.
func (b *AudioBuffer) Validate() error {
	if b.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", b.SampleRate)
	}
	if b.Channels <= 0 {
		return fmt.Errorf("channel count must be positive, got %d", b.Channels)
	}
	if len(b.Samples)%b.Channels != 0 {
		return fmt.Errorf("sample count %d not divisible by %d channels", len(b.Samples), b.Channels)
	}
	return nil
}

// Clone returns a deep copy of the buffer.
func (b *AudioBuffer) Clone() *AudioBuffer {
	samples := make([]float64, len(b.Samples))
	copy(samples, b.Samples)
	return &AudioBuffer{
		Samples:    samples,
		SampleRate: b.SampleRate,
		Channels:   b.Channels,
	}
}

// Peak returns the maximum absolute sample value.
func (b *AudioBuffer) Peak() float64 {
	peak := 0.0
	for _, s := range b.Samples {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	return peak
}

// RMS returns the root-mean-square level across all channels.
func (b *AudioBuffer) RMS() float64 {
	if len(b.Samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range b.Samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(b.Samples)))
}

// HasNonFinite reports whether any sample is NaN or infinite.
func (b *AudioBuffer) HasNonFinite() bool {
	for _, s := range b.Samples {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return true
		}
	}
	return false
}

// StageName identifies a pipeline stage. The set is closed: configuration
// naming any other stage is rejected at load time.
type StageName string

const (
	StageNormalize StageName = "normalize"
	StageNoiseGate StageName = "noise_gate"
	StageDenoise   StageName = "denoise"
	StageResample  StageName = "resample"
)

// ParseStageName converts a string to a StageName, rejecting unknown names.
func ParseStageName(s string) (StageName, error) {
	switch StageName(strings.TrimSpace(strings.ToLower(s))) {
	case StageNormalize:
		return StageNormalize, nil
	case StageNoiseGate:
		return StageNoiseGate, nil
	case StageDenoise:
		return StageDenoise, nil
	case StageResample:
		return StageResample, nil
	default:
		return "", fmt.Errorf("unknown stage name %q", s)
	}
}

// StageDescriptor describes one entry in the ordered stage list.
// Parameters holds optional per-stage overrides of the matching global
// option; a stage without an entry uses the global value.
type StageDescriptor struct {
	Name       StageName
	Enabled    bool
	Parameters map[string]float64
}

// Param returns the override for key when set, def otherwise.
func (d StageDescriptor) Param(key string, def float64) float64 {
	if v, ok := d.Parameters[key]; ok {
		return v
	}
	return def
}

// stageParamKeys enumerates the parameter keys each stage accepts.
var stageParamKeys = map[StageName]map[string]bool{
	StageNormalize: {"target_db": true, "max_amplitude": true},
	StageNoiseGate: {"threshold_db": true, "attack_ms": true, "release_ms": true},
	StageDenoise:   {"strength": true},
	StageResample:  {},
}

// StageConfig is the ordered, immutable stage list. Order is significant
// and defines execution order.
type StageConfig struct {
	Stages []StageDescriptor
}

// DefaultStageConfig mirrors the original processing order: gate before
// denoise, normalization after, resample at the very end. The gate ships
// disabled because it cut into quiet speakers on summed courtroom feeds.
func DefaultStageConfig() StageConfig {
	return StageConfig{Stages: []StageDescriptor{
		{Name: StageNoiseGate, Enabled: false},
		{Name: StageDenoise, Enabled: true},
		{Name: StageNormalize, Enabled: true},
		{Name: StageResample, Enabled: false},
	}}
}

// Validate rejects unknown or duplicate stage names and out-of-range
// per-stage parameters.
func (c StageConfig) Validate() error {
	seen := map[StageName]bool{}
	for _, d := range c.Stages {
		if _, err := ParseStageName(string(d.Name)); err != nil {
			return err
		}
		if seen[d.Name] {
			return fmt.Errorf("stage %q listed more than once", d.Name)
		}
		seen[d.Name] = true

		for key, v := range d.Parameters {
			if !stageParamKeys[d.Name][key] {
				return fmt.Errorf("stage %q has no parameter %q", d.Name, key)
			}
			switch key {
			case "strength":
				if v < 0 || v > 1 {
					return fmt.Errorf("stage %q strength %v outside [0.0, 1.0]", d.Name, v)
				}
			case "max_amplitude":
				if v <= 0 || v > 1 {
					return fmt.Errorf("stage %q max_amplitude %v outside (0.0, 1.0]", d.Name, v)
				}
			case "target_db":
				if v > 0 {
					return fmt.Errorf("stage %q target_db %v above 0 dBFS", d.Name, v)
				}
			case "attack_ms", "release_ms":
				if v < 0 {
					return fmt.Errorf("stage %q %s %v must be non-negative", d.Name, key, v)
				}
			}
		}
	}
	return nil
}

// StageEnabled reports whether the named stage is present and enabled.
func (c StageConfig) StageEnabled(name StageName) bool {
	for _, d := range c.Stages {
		if d.Name == name {
			return d.Enabled
		}
	}
	return false
}

// Backend selects a noise-reduction implementation.
type Backend string

const (
	BackendPrimary  Backend = "primary"
	BackendFallback Backend = "fallback"
)

// Device selects where the primary backend runs.
type Device string

const (
	DeviceCPU         Device = "cpu"
	DeviceAccelerator Device = "accelerator"
)

// ParseDevice converts a string to a Device, rejecting unknown values.
func ParseDevice(s string) (Device, error) {
	switch Device(strings.TrimSpace(strings.ToLower(s))) {
	case DeviceCPU:
		return DeviceCPU, nil
	case DeviceAccelerator:
		return DeviceAccelerator, nil
	default:
		return "", fmt.Errorf("unknown device %q", s)
	}
}

// BackendSettings carries backend-specific tuning. Field names follow the
// original control surface; the strength knob maps onto these deterministically.
type BackendSettings struct {
	Nonstationary          bool
	StdThreshStationary    float64
	ThreshNonstationary    float64
	TempCoeffNonstationary float64
	MovemeanNonstationary  int
	FreqMaskSmoothHz       float64
	TimeMaskSmoothMs       float64
	FFTSize                int
	HopSize                int
}

// DefaultBackendSettings returns conservative tuning for both backends.
func DefaultBackendSettings() BackendSettings {
	return BackendSettings{
		Nonstationary:          false,
		StdThreshStationary:    1.5,
		ThreshNonstationary:    1.3,
		TempCoeffNonstationary: 0.1,
		MovemeanNonstationary:  20,
		FreqMaskSmoothHz:       500,
		TimeMaskSmoothMs:       50,
		FFTSize:                2048,
		HopSize:                512,
	}
}

// NoiseReductionParams is the full parameter set handed to a denoise backend.
// Strength is the single user-facing knob in [0.0, 1.0]; higher means more
// aggressive suppression for both backends.
type NoiseReductionParams struct {
	Backend  Backend
	Strength float64
	Device   Device
	Settings BackendSettings
}

// NormalizeMode selects the level detector used by normalization.
type NormalizeMode string

const (
	NormalizeRMS  NormalizeMode = "rms"
	NormalizePeak NormalizeMode = "peak"
)

// ProcessingOptions holds the validated, immutable configuration for a run.
type ProcessingOptions struct {
	Stages StageConfig

	// Noise reduction
	Strength float64
	Device   Device
	ForceCPU bool
	Backend  BackendSettings

	// Normalization
	TargetDB      float64
	MaxAmplitude  float64
	NormalizeMode NormalizeMode

	// Noise gate
	GateThresholdDB float64
	GateAttackMs    float64
	GateReleaseMs   float64

	// Resample
	OutputSampleRate int

	// Execution
	ChunkSizeMB     int
	Workers         int
	FileTimeout     time.Duration
	ContinueOnError bool
	SkipExisting    bool
	OutputPrefix    string
}

// DefaultProcessingOptions returns the defaults used by the original system.
func DefaultProcessingOptions() *ProcessingOptions {
	return &ProcessingOptions{
		Stages:          DefaultStageConfig(),
		Strength:        0.5,
		Device:          DeviceAccelerator,
		Backend:         DefaultBackendSettings(),
		TargetDB:        -24.0,
		MaxAmplitude:    1.0,
		NormalizeMode:   NormalizeRMS,
		GateThresholdDB: -40.0,
		GateAttackMs:    5,
		GateReleaseMs:   100,
		ChunkSizeMB:     1,
		Workers:         4,
		FileTimeout:     10 * time.Minute,
		ContinueOnError: true,
		OutputPrefix:    "cleaned_",
	}
}
