package stages

import (
	"context"
	"math"

	"github.com/GraysonQuartech/audioProcessing/domain/model"
	pkgerrors "github.com/GraysonQuartech/audioProcessing/pkg/errors"
)

// Normalizer brings a buffer's level to a target in dBFS and hard-clips to
// a configured ceiling. Stateless, so one instance serves any buffer.
type Normalizer struct {
	targetDB     float64
	maxAmplitude float64
	mode         model.NormalizeMode
}

func NewNormalizer(targetDB, maxAmplitude float64, mode model.NormalizeMode) *Normalizer {
	return &Normalizer{
		targetDB:     targetDB,
		maxAmplitude: maxAmplitude,
		mode:         mode,
	}
}

func (n *Normalizer) Name() model.StageName { return model.StageNormalize }

// Process applies one uniform gain across all channels, then clips. An
// empty buffer is an input error rather than a silent no-op. A silent
// buffer passes through unchanged since it has no level to move.
func (n *Normalizer) Process(ctx context.Context, buf *model.AudioBuffer) (*model.AudioBuffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(buf.Samples) == 0 {
		return nil, pkgerrors.NewStageError(string(model.StageNormalize), "cannot normalize an empty buffer", nil)
	}
	if err := buf.Validate(); err != nil {
		return nil, pkgerrors.NewStageError(string(model.StageNormalize), "invalid buffer", err)
	}

	var level float64
	switch n.mode {
	case model.NormalizePeak:
		level = buf.Peak()
	default:
		level = buf.RMS()
	}
	if level <= 0 {
		return buf, nil
	}

	currentDB := 20 * math.Log10(level)
	gain := math.Pow(10, (n.targetDB-currentDB)/20)

	// Cap the gain so the scaled peak cannot exceed the ceiling. The hard
	// clip below then only catches floating-point residue.
	if peak := buf.Peak(); peak > 0 && peak*gain > n.maxAmplitude {
		gain = n.maxAmplitude / peak
	}

	for i, s := range buf.Samples {
		v := s * gain
		if v > n.maxAmplitude {
			v = n.maxAmplitude
		} else if v < -n.maxAmplitude {
			v = -n.maxAmplitude
		}
		buf.Samples[i] = v
	}
	return buf, nil
}
