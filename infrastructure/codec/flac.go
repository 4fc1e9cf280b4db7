package codec

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/mewkiz/flac"

	"github.com/GraysonQuartech/audioProcessing/domain/model"
	"github.com/GraysonQuartech/audioProcessing/domain/ports"
	pkgerrors "github.com/GraysonQuartech/audioProcessing/pkg/errors"
)

// FLACCodec reads FLAC files. Decode-only: outputs for FLAC inputs are
// written as WAV by the registry.
type FLACCodec struct{}

func (c *FLACCodec) Extensions() []string {
	return []string{".flac"}
}

// Open returns a chunked FLAC reader
func (c *FLACCodec) Open(path string, chunkBytes int) (ports.ChunkReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pkgerrors.NewIOError(path, "failed to open input file", err)
	}

	stream, err := flac.New(f)
	if err != nil {
		f.Close()
		return nil, pkgerrors.NewDecodeError(path, "failed to parse FLAC stream", err)
	}
	info := stream.Info
	if info == nil || info.NChannels == 0 || info.SampleRate == 0 {
		f.Close()
		return nil, pkgerrors.NewDecodeError(path, "missing FLAC stream info", nil)
	}

	channels := int(info.NChannels)
	return &flacReader{
		path:       path,
		file:       f,
		stream:     stream,
		channels:   channels,
		sampleRate: int(info.SampleRate),
		maxVal:     float64(int(1) << uint(info.BitsPerSample-1)),
		frames:     chunkFrames(chunkBytes, channels),
	}, nil
}

type flacReader struct {
	path       string
	file       *os.File
	stream     *flac.Stream
	channels   int
	sampleRate int
	maxVal     float64
	frames     int
	eof        bool
}

func (r *flacReader) SampleRate() int { return r.sampleRate }
func (r *flacReader) Channels() int   { return r.channels }

// Next accumulates decoded FLAC frames until the chunk budget is reached.
// FLAC frames are whole multi-channel blocks, so chunk boundaries always
// fall on frame boundaries.
func (r *flacReader) Next(ctx context.Context) (*model.AudioBuffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.eof {
		return nil, io.EOF
	}

	samples := make([]float64, 0, r.frames*r.channels)
	for len(samples) < r.frames*r.channels {
		frame, err := r.stream.ParseNext()
		if err != nil {
			if errors.Is(err, io.EOF) {
				r.eof = true
				break
			}
			return nil, pkgerrors.NewDecodeError(r.path, "failed to decode FLAC frame", err)
		}

		n := len(frame.Subframes[0].Samples)
		for i := 0; i < n; i++ {
			for ch := 0; ch < r.channels; ch++ {
				samples = append(samples, float64(frame.Subframes[ch].Samples[i])/r.maxVal)
			}
		}
	}

	if len(samples) == 0 {
		return nil, io.EOF
	}
	return &model.AudioBuffer{
		Samples:    samples,
		SampleRate: r.sampleRate,
		Channels:   r.channels,
	}, nil
}

func (r *flacReader) Close() error {
	return r.file.Close()
}

// Create is unsupported: the registry routes all output through WAV.
func (c *FLACCodec) Create(path string, sampleRate, channels int) (ports.ChunkWriter, error) {
	return nil, pkgerrors.NewIOError(path, "FLAC encoding not supported, output is written as WAV", nil)
}
