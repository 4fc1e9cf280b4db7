// Package config loads the on-disk YAML configuration file. The schema is a
// closed, enumerated set of options; unknown keys are rejected at load time.
package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/GraysonQuartech/audioProcessing/domain/model"
	pkgerrors "github.com/GraysonQuartech/audioProcessing/pkg/errors"
)

// File mirrors the recognized option names. Pointer fields distinguish
// "absent" from zero so a config file only overrides what it sets.
type File struct {
	NoiseReductionStrength *float64 `yaml:"NOISE_REDUCTION_STRENGTH"`

	TargetDB          *float64 `yaml:"TARGET_DB"`
	MaxAmplitude      *float64 `yaml:"MAX_AMPLITUDE"`
	NormalizationMode *string  `yaml:"NORMALIZATION_MODE"`

	NoiseGateThresholdDB *float64 `yaml:"NOISE_GATE_THRESHOLD_DB"`
	NoiseGateAttackMs    *float64 `yaml:"NOISE_GATE_ATTACK_MS"`
	NoiseGateReleaseMs   *float64 `yaml:"NOISE_GATE_RELEASE_MS"`

	BackendSettings *backendSettings `yaml:"BACKEND_SETTINGS"`

	EnableNormalize *bool `yaml:"ENABLE_NORMALIZE"`
	EnableNoiseGate *bool `yaml:"ENABLE_NOISE_GATE"`
	EnableDenoise   *bool `yaml:"ENABLE_DENOISE"`
	EnableResample  *bool `yaml:"ENABLE_RESAMPLE"`

	StageOrder      []string                      `yaml:"STAGE_ORDER"`
	StageParameters map[string]map[string]float64 `yaml:"STAGE_PARAMETERS"`

	OutputSampleRate *int `yaml:"OUTPUT_SAMPLE_RATE"`

	ChunkSizeMB        *int  `yaml:"CHUNK_SIZE_MB"`
	Workers            *int  `yaml:"WORKERS"`
	FileTimeoutMinutes *int  `yaml:"FILE_TIMEOUT_MINUTES"`
	ForceCPUProcessing *bool `yaml:"FORCE_CPU_PROCESSING"`

	ContinueOnError   *bool   `yaml:"CONTINUE_ON_ERROR"`
	SkipExistingFiles *bool   `yaml:"SKIP_EXISTING_FILES"`
	OutputFilePrefix  *string `yaml:"OUTPUT_FILE_PREFIX"`
}

type backendSettings struct {
	Nonstationary          *bool    `yaml:"NONSTATIONARY"`
	NStdThreshStationary   *float64 `yaml:"N_STD_THRESH_STATIONARY"`
	NThreshNonstationary   *float64 `yaml:"N_THRESH_NONSTATIONARY"`
	TempCoeffNonstationary *float64 `yaml:"TEMP_COEFF_NONSTATIONARY"`
	NMovemeanNonstationary *int     `yaml:"N_MOVEMEAN_NONSTATIONARY"`
	FreqMaskSmoothHz       *float64 `yaml:"FREQ_MASK_SMOOTH_HZ"`
	TimeMaskSmoothMs       *float64 `yaml:"TIME_MASK_SMOOTH_MS"`
	NFFT                   *int     `yaml:"N_FFT"`
	HopLength              *int     `yaml:"HOP_LENGTH"`
}

// Load reads and strictly decodes a config file.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pkgerrors.NewConfigError("config", path, "failed to open config file: "+err.Error())
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var cfg File
	if err := dec.Decode(&cfg); err != nil {
		return nil, pkgerrors.NewConfigError("config", path, "failed to parse config file: "+err.Error())
	}
	return &cfg, nil
}

// Apply merges the file's set values onto opts.
func (c *File) Apply(opts *model.ProcessingOptions) error {
	if c.NoiseReductionStrength != nil {
		opts.Strength = *c.NoiseReductionStrength
	}
	if c.TargetDB != nil {
		opts.TargetDB = *c.TargetDB
	}
	if c.MaxAmplitude != nil {
		opts.MaxAmplitude = *c.MaxAmplitude
	}
	if c.NormalizationMode != nil {
		opts.NormalizeMode = model.NormalizeMode(*c.NormalizationMode)
	}
	if c.NoiseGateThresholdDB != nil {
		opts.GateThresholdDB = *c.NoiseGateThresholdDB
	}
	if c.NoiseGateAttackMs != nil {
		opts.GateAttackMs = *c.NoiseGateAttackMs
	}
	if c.NoiseGateReleaseMs != nil {
		opts.GateReleaseMs = *c.NoiseGateReleaseMs
	}
	if c.BackendSettings != nil {
		c.BackendSettings.apply(&opts.Backend)
	}
	if c.OutputSampleRate != nil {
		opts.OutputSampleRate = *c.OutputSampleRate
	}
	if c.ChunkSizeMB != nil {
		opts.ChunkSizeMB = *c.ChunkSizeMB
	}
	if c.Workers != nil {
		opts.Workers = *c.Workers
	}
	if c.FileTimeoutMinutes != nil {
		opts.FileTimeout = time.Duration(*c.FileTimeoutMinutes) * time.Minute
	}
	if c.ForceCPUProcessing != nil {
		opts.ForceCPU = *c.ForceCPUProcessing
	}
	if c.ContinueOnError != nil {
		opts.ContinueOnError = *c.ContinueOnError
	}
	if c.SkipExistingFiles != nil {
		opts.SkipExisting = *c.SkipExistingFiles
	}
	if c.OutputFilePrefix != nil {
		opts.OutputPrefix = *c.OutputFilePrefix
	}

	if len(c.StageOrder) > 0 {
		stages := make([]model.StageDescriptor, 0, len(c.StageOrder))
		for _, name := range c.StageOrder {
			parsed, err := model.ParseStageName(name)
			if err != nil {
				return pkgerrors.NewConfigError("STAGE_ORDER", name, err.Error())
			}
			stages = append(stages, model.StageDescriptor{
				Name:    parsed,
				Enabled: opts.Stages.StageEnabled(parsed),
			})
		}
		opts.Stages = model.StageConfig{Stages: stages}
	}

	if err := c.applyStageParameters(opts); err != nil {
		return err
	}

	c.applyToggles(opts)
	return nil
}

// applyStageParameters attaches per-stage overrides to their descriptors.
// Keys are case-insensitive so the file can use the schema's UPPER_SNAKE
// style; range checks happen later in StageConfig.Validate.
func (c *File) applyStageParameters(opts *model.ProcessingOptions) error {
	for rawName, params := range c.StageParameters {
		name, err := model.ParseStageName(rawName)
		if err != nil {
			return pkgerrors.NewConfigError("STAGE_PARAMETERS", rawName, err.Error())
		}
		idx := -1
		for i := range opts.Stages.Stages {
			if opts.Stages.Stages[i].Name == name {
				idx = i
				break
			}
		}
		if idx < 0 {
			return pkgerrors.NewConfigError("STAGE_PARAMETERS", rawName, "stage is not in the stage order")
		}
		d := &opts.Stages.Stages[idx]
		if d.Parameters == nil {
			d.Parameters = make(map[string]float64, len(params))
		}
		for key, v := range params {
			d.Parameters[strings.ToLower(key)] = v
		}
	}
	return nil
}

func (c *File) applyToggles(opts *model.ProcessingOptions) {
	toggles := map[model.StageName]*bool{
		model.StageNormalize: c.EnableNormalize,
		model.StageNoiseGate: c.EnableNoiseGate,
		model.StageDenoise:   c.EnableDenoise,
		model.StageResample:  c.EnableResample,
	}
	for i := range opts.Stages.Stages {
		if t := toggles[opts.Stages.Stages[i].Name]; t != nil {
			opts.Stages.Stages[i].Enabled = *t
		}
	}
}

func (b *backendSettings) apply(s *model.BackendSettings) {
	if b.Nonstationary != nil {
		s.Nonstationary = *b.Nonstationary
	}
	if b.NStdThreshStationary != nil {
		s.StdThreshStationary = *b.NStdThreshStationary
	}
	if b.NThreshNonstationary != nil {
		s.ThreshNonstationary = *b.NThreshNonstationary
	}
	if b.TempCoeffNonstationary != nil {
		s.TempCoeffNonstationary = *b.TempCoeffNonstationary
	}
	if b.NMovemeanNonstationary != nil {
		s.MovemeanNonstationary = *b.NMovemeanNonstationary
	}
	if b.FreqMaskSmoothHz != nil {
		s.FreqMaskSmoothHz = *b.FreqMaskSmoothHz
	}
	if b.TimeMaskSmoothMs != nil {
		s.TimeMaskSmoothMs = *b.TimeMaskSmoothMs
	}
	if b.NFFT != nil {
		s.FFTSize = *b.NFFT
	}
	if b.HopLength != nil {
		s.HopSize = *b.HopLength
	}
}

// ValidateOptions checks the merged options at startup. A failure here
// aborts the run before any file is processed.
func ValidateOptions(opts *model.ProcessingOptions) error {
	if opts.Strength < 0.0 || opts.Strength > 1.0 {
		return pkgerrors.NewConfigError("NOISE_REDUCTION_STRENGTH", opts.Strength, "strength must be in [0.0, 1.0]")
	}
	if opts.MaxAmplitude <= 0.0 || opts.MaxAmplitude > 1.0 {
		return pkgerrors.NewConfigError("MAX_AMPLITUDE", opts.MaxAmplitude, "max amplitude must be in (0.0, 1.0]")
	}
	if opts.TargetDB > 0.0 {
		return pkgerrors.NewConfigError("TARGET_DB", opts.TargetDB, "target level must be at or below 0 dBFS")
	}
	if opts.NormalizeMode != model.NormalizeRMS && opts.NormalizeMode != model.NormalizePeak {
		return pkgerrors.NewConfigError("NORMALIZATION_MODE", opts.NormalizeMode, "mode must be rms or peak")
	}
	if opts.GateAttackMs < 0 || opts.GateReleaseMs < 0 {
		return pkgerrors.NewConfigError("NOISE_GATE_ATTACK_MS", opts.GateAttackMs, "gate times must be non-negative")
	}
	if err := opts.Stages.Validate(); err != nil {
		return pkgerrors.NewConfigError("STAGE_ORDER", "", err.Error())
	}
	if opts.Device != model.DeviceCPU && opts.Device != model.DeviceAccelerator {
		return pkgerrors.NewConfigError("DEVICE", opts.Device, "device must be cpu or accelerator")
	}
	if opts.ChunkSizeMB <= 0 {
		return pkgerrors.NewConfigError("CHUNK_SIZE_MB", opts.ChunkSizeMB, "chunk size must be positive")
	}
	if opts.Workers <= 0 {
		return pkgerrors.NewConfigError("WORKERS", opts.Workers, "worker count must be positive")
	}
	if opts.OutputSampleRate < 0 {
		return pkgerrors.NewConfigError("OUTPUT_SAMPLE_RATE", opts.OutputSampleRate, "sample rate must be non-negative")
	}
	if opts.Backend.FFTSize <= 0 || opts.Backend.HopSize <= 0 || opts.Backend.HopSize > opts.Backend.FFTSize {
		return pkgerrors.NewConfigError("BACKEND_SETTINGS", opts.Backend.FFTSize, "FFT size and hop length must be positive with hop <= FFT size")
	}
	return nil
}
