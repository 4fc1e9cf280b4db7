package usecase

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/GraysonQuartech/audioProcessing/domain/model"
	"github.com/GraysonQuartech/audioProcessing/domain/ports"
	"github.com/GraysonQuartech/audioProcessing/infrastructure/codec"
	"github.com/GraysonQuartech/audioProcessing/infrastructure/storage"
	pkgerrors "github.com/GraysonQuartech/audioProcessing/pkg/errors"
	"github.com/GraysonQuartech/audioProcessing/pkg/logger"
)

func newTestService(t *testing.T, opts ...ports.Option) *AudioService {
	t.Helper()
	base := []ports.Option{
		ports.WithStages(model.StageConfig{Stages: []model.StageDescriptor{
			{Name: model.StageNormalize, Enabled: true},
		}}),
	}
	svc, err := NewAudioService(Config{
		Storage: storage.NewLocalStorage(),
		Logger:  logger.Nop(),
	}, append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewAudioService() error = %v", err)
	}
	return svc
}

func writeTone(t *testing.T, path string, frames, sampleRate, channels int, amp float64) {
	t.Helper()
	w, _, err := codec.NewRegistry().Create(path, sampleRate, channels)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	buf := model.NewAudioBuffer(frames, sampleRate, channels)
	for i := 0; i < frames; i++ {
		v := amp * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate))
		for ch := 0; ch < channels; ch++ {
			buf.Samples[i*channels+ch] = v
		}
	}
	if err := w.Write(context.Background(), buf); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNewAudioServiceRejectsInvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opt  ports.Option
	}{
		{"strength above one", ports.WithStrength(1.5)},
		{"negative strength", ports.WithStrength(-0.1)},
		{"positive target", ports.WithTargetDB(3)},
		{"zero ceiling", ports.WithMaxAmplitude(0)},
		{"bad mode", ports.WithNormalizeMode("loudest")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAudioService(Config{
				Storage: storage.NewLocalStorage(),
				Logger:  logger.Nop(),
			}, tt.opt)
			if !pkgerrors.IsConfig(err) {
				t.Fatalf("error = %v, want config error", err)
			}
		})
	}
}

func TestProcessFileEndToEnd(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "hearing.wav")
	out := filepath.Join(dir, "cleaned_hearing.wav")
	writeTone(t, in, 96000, 48000, 2, 0.05)

	svc := newTestService(t)
	res, err := svc.ProcessFile(context.Background(), in, out)
	if err != nil {
		t.Fatalf("ProcessFile() error = %v", err)
	}
	if res.Status != model.StatusSuccess {
		t.Fatalf("status = %s, want success", res.Status)
	}

	reader, err := codec.NewRegistry().Open(out, 1<<20)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer reader.Close()
	if reader.SampleRate() != 48000 || reader.Channels() != 2 {
		t.Fatalf("output format = %d Hz %d ch, want 48000 Hz 2 ch",
			reader.SampleRate(), reader.Channels())
	}
	var all []float64
	for {
		buf, err := reader.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		all = append(all, buf.Samples...)
	}
	whole := &model.AudioBuffer{Samples: all, SampleRate: 48000, Channels: 2}
	if gotDB := 20 * math.Log10(whole.RMS()); math.Abs(gotDB-(-24.0)) > 0.5 {
		t.Fatalf("output level = %.2f dB, want -24 ±0.5", gotDB)
	}
}

// toneResidualRatio fits the channel-0 component at freq and returns the
// residual-to-tone energy ratio, a proxy for the noise floor.
func toneResidualRatio(samples []float64, channels, sampleRate int, freq float64) float64 {
	n := len(samples) / channels
	var cs, ss float64
	for i := 0; i < n; i++ {
		ph := 2 * math.Pi * freq * float64(i) / float64(sampleRate)
		v := samples[i*channels]
		cs += v * math.Cos(ph)
		ss += v * math.Sin(ph)
	}
	a := 2 * cs / float64(n)
	b := 2 * ss / float64(n)

	var tone, res float64
	for i := 0; i < n; i++ {
		ph := 2 * math.Pi * freq * float64(i) / float64(sampleRate)
		fit := a*math.Cos(ph) + b*math.Sin(ph)
		tone += fit * fit
		r := samples[i*channels] - fit
		res += r * r
	}
	if tone == 0 {
		return math.Inf(1)
	}
	return res / tone
}

// Gate, denoise and normalize together over a multi-chunk file: the
// output must sit at the target level with a lower noise floor than the
// input, without the fallback backend kicking in.
func TestProcessFileFullChainScenario(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "hearing.wav")
	out := filepath.Join(dir, "cleaned_hearing.wav")

	const frames, sampleRate, channels = 288000, 48000, 2
	const toneHz = 440.0
	rng := rand.New(rand.NewSource(11))
	src := model.NewAudioBuffer(frames, sampleRate, channels)
	for i := 0; i < frames; i++ {
		v := 0.1 * math.Sin(2*math.Pi*toneHz*float64(i)/float64(sampleRate))
		for ch := 0; ch < channels; ch++ {
			src.Samples[i*channels+ch] = v + 0.03*(rng.Float64()*2-1)
		}
	}
	w, _, err := codec.NewRegistry().Create(in, sampleRate, channels)
	if err != nil {
		t.Fatalf("create input: %v", err)
	}
	if err := w.Write(context.Background(), src); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	svc, err := NewAudioService(Config{
		Storage: storage.NewLocalStorage(),
		Logger:  logger.Nop(),
	},
		ports.WithStages(model.StageConfig{Stages: []model.StageDescriptor{
			{Name: model.StageNoiseGate, Enabled: true},
			{Name: model.StageDenoise, Enabled: true},
			{Name: model.StageNormalize, Enabled: true},
		}}),
		ports.WithNoiseGate(-25, 5, 100),
		ports.WithStrength(0.4),
		ports.WithTargetDB(-24),
	)
	if err != nil {
		t.Fatalf("NewAudioService() error = %v", err)
	}

	res, err := svc.ProcessFile(context.Background(), in, out)
	if err != nil {
		t.Fatalf("ProcessFile() error = %v", err)
	}
	if res.Status != model.StatusSuccess {
		t.Fatalf("status = %s (err=%v), want success", res.Status, res.Err)
	}
	if res.FallbackUsed {
		t.Fatal("fallback used on a well-formed input")
	}

	reader, err := codec.NewRegistry().Open(out, 1<<20)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer reader.Close()
	var all []float64
	for {
		buf, err := reader.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		all = append(all, buf.Samples...)
	}

	whole := &model.AudioBuffer{Samples: all, SampleRate: sampleRate, Channels: channels}
	if gotDB := 20 * math.Log10(whole.RMS()); math.Abs(gotDB-(-24.0)) > 0.5 {
		t.Fatalf("output level = %.2f dB, want -24 ±0.5", gotDB)
	}

	inRatio := toneResidualRatio(src.Samples, channels, sampleRate, toneHz)
	outRatio := toneResidualRatio(all, channels, sampleRate, toneHz)
	if outRatio >= inRatio {
		t.Fatalf("noise floor not reduced: residual/tone %.4f in, %.4f out", inRatio, outRatio)
	}
}

func TestProcessFileRejectsUnsupportedFormat(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.ProcessFile(context.Background(), "/tmp/notes.txt", "/tmp/out.wav")
	if err == nil {
		t.Fatal("ProcessFile(.txt) = nil error, want unsupported format")
	}
}

func TestProcessFileMissingInput(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.ProcessFile(context.Background(), "/does/not/exist.wav", "/tmp/out.wav")
	if err == nil {
		t.Fatal("ProcessFile(missing) = nil error, want IO error")
	}
}

func TestProcessBatch(t *testing.T) {
	inDir := t.TempDir()
	outDir := t.TempDir()

	for _, name := range []string{"one.wav", "two.wav"} {
		writeTone(t, filepath.Join(inDir, name), 4800, 48000, 1, 0.1)
	}
	// Unsupported files are not discovered at all.
	if err := os.WriteFile(filepath.Join(inDir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	svc := newTestService(t)
	report, err := svc.ProcessBatch(context.Background(), inDir, outDir)
	if err != nil {
		t.Fatalf("ProcessBatch() error = %v", err)
	}

	succeeded, failed, skipped := report.Counts()
	if succeeded != 2 || failed != 0 || skipped != 0 {
		t.Fatalf("counts = %d/%d/%d, want 2/0/0", succeeded, failed, skipped)
	}
	for _, name := range []string{"cleaned_one.wav", "cleaned_two.wav"} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Errorf("missing output %s: %v", name, err)
		}
	}
}

func TestProcessBatchEmptyDirectory(t *testing.T) {
	svc := newTestService(t)
	report, err := svc.ProcessBatch(context.Background(), t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatalf("ProcessBatch() error = %v", err)
	}
	if report.Total() != 0 {
		t.Fatalf("total = %d, want 0", report.Total())
	}
}

func TestProcessBatchSkipExisting(t *testing.T) {
	inDir := t.TempDir()
	outDir := t.TempDir()

	writeTone(t, filepath.Join(inDir, "one.wav"), 4800, 48000, 1, 0.1)
	writeTone(t, filepath.Join(inDir, "two.wav"), 4800, 48000, 1, 0.1)
	// Pre-existing output for one.wav.
	writeTone(t, filepath.Join(outDir, "cleaned_one.wav"), 10, 48000, 1, 0.1)

	svc := newTestService(t, ports.WithSkipExisting(true))
	report, err := svc.ProcessBatch(context.Background(), inDir, outDir)
	if err != nil {
		t.Fatalf("ProcessBatch() error = %v", err)
	}
	succeeded, failed, skipped := report.Counts()
	if succeeded != 1 || failed != 0 || skipped != 1 {
		t.Fatalf("counts = %d/%d/%d, want 1/0/1", succeeded, failed, skipped)
	}
}

func TestOutputPathConvertsFlacToWav(t *testing.T) {
	svc := newTestService(t)
	got := svc.outputPath("/out", "/in/session.flac")
	want := filepath.Join("/out", "cleaned_session.wav")
	if got != want {
		t.Fatalf("outputPath = %q, want %q", got, want)
	}
}
