package pipeline

import (
	"context"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/GraysonQuartech/audioProcessing/application/stages"
	"github.com/GraysonQuartech/audioProcessing/domain/model"
	"github.com/GraysonQuartech/audioProcessing/infrastructure/codec"
	"github.com/GraysonQuartech/audioProcessing/infrastructure/storage"
	pkgerrors "github.com/GraysonQuartech/audioProcessing/pkg/errors"
	"github.com/GraysonQuartech/audioProcessing/pkg/logger"
)

// writeTestWAV creates a WAV file containing a 440 Hz tone.
func writeTestWAV(t *testing.T, path string, frames, sampleRate, channels int, amp float64) {
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
		t.Fatalf("write %s: %v", path, err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close %s: %v", path, err)
	}
}

func testExecutor(t *testing.T, opts *model.ProcessingOptions) *Executor {
	t.Helper()
	engine := stages.NewDenoiseEngine(
		stages.NewSpectralGate(), stages.NewSpectralSubtraction(),
		stages.NewAccelerator(false), logger.Nop())
	return NewExecutor(codec.NewRegistry(), storage.NewLocalStorage(), engine, opts, nil, logger.Nop())
}

func normalizeOnlyOptions() *model.ProcessingOptions {
	opts := model.DefaultProcessingOptions()
	opts.Stages = model.StageConfig{Stages: []model.StageDescriptor{
		{Name: model.StageNormalize, Enabled: true},
	}}
	return opts
}

func TestExecutorNormalizesFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "hearing.wav")
	out := filepath.Join(dir, "cleaned_hearing.wav")
	writeTestWAV(t, in, 48000, 48000, 2, 0.05)

	exec := testExecutor(t, normalizeOnlyOptions())
	res, err := exec.Run(context.Background(), in, out)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Status != model.StatusSuccess {
		t.Fatalf("status = %s (err=%v), want success", res.Status, res.Err)
	}

	// Output must exist, hit the target level and leave no temp files.
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
			t.Fatalf("read output: %v", err)
		}
		all = append(all, buf.Samples...)
	}
	whole := &model.AudioBuffer{Samples: all, SampleRate: 48000, Channels: 2}
	gotDB := 20 * math.Log10(whole.RMS())
	if math.Abs(gotDB-(-24.0)) > 0.5 {
		t.Fatalf("output RMS = %.2f dB, want -24 ±0.5", gotDB)
	}

	assertNoTempFiles(t, dir)
}

func TestExecutorCorruptInputFailsCleanly(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "broken.wav")
	out := filepath.Join(dir, "cleaned_broken.wav")
	if err := os.WriteFile(in, []byte("definitely not audio"), 0o644); err != nil {
		t.Fatal(err)
	}

	exec := testExecutor(t, normalizeOnlyOptions())
	res, err := exec.Run(context.Background(), in, out)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Status != model.StatusFailed {
		t.Fatalf("status = %s, want failed", res.Status)
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Fatal("failed file left an output behind")
	}
	assertNoTempFiles(t, dir)
}

func TestExecutorTimeout(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "slow.wav")
	out := filepath.Join(dir, "cleaned_slow.wav")
	writeTestWAV(t, in, 48000, 48000, 1, 0.2)

	opts := normalizeOnlyOptions()
	opts.FileTimeout = time.Nanosecond
	exec := testExecutor(t, opts)

	res, err := exec.Run(context.Background(), in, out)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Status != model.StatusFailed {
		t.Fatalf("status = %s, want failed", res.Status)
	}
	if !pkgerrors.IsTimeout(res.Err) {
		t.Fatalf("err = %v, want timeout error", res.Err)
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Fatal("timed-out file left an output behind")
	}
	assertNoTempFiles(t, dir)
}

func TestExecutorCancellationDiscardsPartialOutput(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "hearing.wav")
	out := filepath.Join(dir, "cleaned_hearing.wav")
	writeTestWAV(t, in, 48000, 48000, 1, 0.2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := testExecutor(t, normalizeOnlyOptions())
	if _, err := exec.Run(ctx, in, out); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Fatal("cancelled file left an output behind")
	}
	assertNoTempFiles(t, dir)
}

func TestExecutorSkipsDisabledStages(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "hearing.wav")
	out := filepath.Join(dir, "cleaned_hearing.wav")
	writeTestWAV(t, in, 4800, 48000, 1, 0.2)

	opts := model.DefaultProcessingOptions()
	opts.Stages = model.StageConfig{Stages: []model.StageDescriptor{
		{Name: model.StageDenoise, Enabled: false},
		{Name: model.StageNormalize, Enabled: true},
	}}
	opts.ContinueOnError = true

	exec := testExecutor(t, opts)
	res, err := exec.Run(context.Background(), in, out)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Status != model.StatusSuccess {
		t.Fatalf("status = %s (err=%v), want success", res.Status, res.Err)
	}
	if res.FallbackUsed {
		t.Fatal("disabled denoise stage reported fallback use")
	}
}

func TestExecutorResamples(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "hearing.wav")
	out := filepath.Join(dir, "cleaned_hearing.wav")
	writeTestWAV(t, in, 48000, 48000, 1, 0.2)

	opts := model.DefaultProcessingOptions()
	opts.Stages = model.StageConfig{Stages: []model.StageDescriptor{
		{Name: model.StageResample, Enabled: true},
	}}
	opts.OutputSampleRate = 16000

	exec := testExecutor(t, opts)
	res, err := exec.Run(context.Background(), in, out)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Status != model.StatusSuccess {
		t.Fatalf("status = %s (err=%v), want success", res.Status, res.Err)
	}

	reader, err := codec.NewRegistry().Open(out, 1<<20)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer reader.Close()
	if reader.SampleRate() != 16000 {
		t.Fatalf("output rate = %d, want 16000", reader.SampleRate())
	}

	// One second in, roughly one second out.
	total := 0
	for {
		buf, err := reader.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("read output: %v", err)
		}
		total += buf.Frames()
	}
	if total < 15000 || total > 17000 {
		t.Fatalf("output frames = %d, want ~16000", total)
	}
}

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".audioproc-") {
			t.Fatalf("temp file %s left behind", e.Name())
		}
	}
}
