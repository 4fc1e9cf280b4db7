package stages

import (
	"context"
	"math"
	"testing"

	"github.com/GraysonQuartech/audioProcessing/domain/model"
)

func TestResamplerConvertsChunkedStream(t *testing.T) {
	r, err := NewResampler(48000, 16000, 1)
	if err != nil {
		t.Fatalf("NewResampler() error = %v", err)
	}

	const chunkFrames, chunks = 4800, 3
	total := 0
	for c := 0; c < chunks; c++ {
		in := model.NewAudioBuffer(chunkFrames, 48000, 1)
		for i := range in.Samples {
			n := c*chunkFrames + i
			in.Samples[i] = 0.2 * math.Sin(2*math.Pi*200*float64(n)/48000)
		}
		out, err := r.Process(context.Background(), in)
		if err != nil {
			t.Fatalf("Process(chunk %d) error = %v", c, err)
		}
		if out.SampleRate != 16000 {
			t.Fatalf("output rate = %d, want 16000", out.SampleRate)
		}
		total += out.Frames()
	}

	tail, err := r.Flush(context.Background())
	if err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if tail.SampleRate != 16000 {
		t.Fatalf("tail rate = %d, want 16000", tail.SampleRate)
	}
	total += tail.Frames()

	// 14400 frames at a 3:1 ratio, allowing for filter latency.
	if total < 4400 || total > 5200 {
		t.Fatalf("output frames = %d, want ~4800", total)
	}
}

func TestResamplerRejectsFormatChange(t *testing.T) {
	r, err := NewResampler(48000, 16000, 1)
	if err != nil {
		t.Fatalf("NewResampler() error = %v", err)
	}
	buf := model.NewAudioBuffer(100, 44100, 1)
	if _, err := r.Process(context.Background(), buf); err == nil {
		t.Fatal("Process(mismatched rate) = nil error, want stage error")
	}
}
