package codec

import (
	"context"
	"io"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/GraysonQuartech/audioProcessing/domain/model"
	"github.com/GraysonQuartech/audioProcessing/domain/ports"
	pkgerrors "github.com/GraysonQuartech/audioProcessing/pkg/errors"
)

// WAVCodec reads and writes PCM WAV files
type WAVCodec struct{}

func (c *WAVCodec) Extensions() []string {
	return []string{".wav"}
}

// Open returns a chunked WAV reader
func (c *WAVCodec) Open(path string, chunkBytes int) (ports.ChunkReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pkgerrors.NewIOError(path, "failed to open input file", err)
	}

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		f.Close()
		return nil, pkgerrors.NewDecodeError(path, "invalid WAV file", nil)
	}

	channels := int(dec.NumChans)
	sampleRate := int(dec.SampleRate)
	bitDepth := int(dec.BitDepth)
	if channels <= 0 || sampleRate <= 0 || bitDepth <= 0 {
		f.Close()
		return nil, pkgerrors.NewDecodeError(path, "missing or corrupt WAV format header", nil)
	}

	return &wavReader{
		path:       path,
		file:       f,
		dec:        dec,
		channels:   channels,
		sampleRate: sampleRate,
		bitDepth:   bitDepth,
		frames:     chunkFrames(chunkBytes, channels),
	}, nil
}

type wavReader struct {
	path       string
	file       *os.File
	dec        *wav.Decoder
	channels   int
	sampleRate int
	bitDepth   int
	frames     int
}

func (r *wavReader) SampleRate() int { return r.sampleRate }
func (r *wavReader) Channels() int   { return r.channels }

func (r *wavReader) Next(ctx context.Context) (*model.AudioBuffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	intBuf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: r.channels, SampleRate: r.sampleRate},
		Data:   make([]int, r.frames*r.channels),
	}
	n, err := r.dec.PCMBuffer(intBuf)
	if err != nil {
		return nil, pkgerrors.NewDecodeError(r.path, "failed to decode PCM data", err)
	}
	if n == 0 {
		return nil, io.EOF
	}
	// Truncate to whole frames in case of a ragged tail.
	n -= n % r.channels

	maxVal := float64(int(1) << uint(r.bitDepth-1))
	buf := &model.AudioBuffer{
		Samples:    make([]float64, n),
		SampleRate: r.sampleRate,
		Channels:   r.channels,
	}
	for i := 0; i < n; i++ {
		buf.Samples[i] = float64(intBuf.Data[i]) / maxVal
	}
	return buf, nil
}

func (r *wavReader) Close() error {
	return r.file.Close()
}

// Create returns a streaming 16-bit PCM WAV writer
func (c *WAVCodec) Create(path string, sampleRate, channels int) (ports.ChunkWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, pkgerrors.NewIOError(path, "failed to create output file", err)
	}
	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	return &wavWriter{
		path:       path,
		file:       f,
		enc:        enc,
		sampleRate: sampleRate,
		channels:   channels,
	}, nil
}

type wavWriter struct {
	path       string
	file       *os.File
	enc        *wav.Encoder
	sampleRate int
	channels   int
}

func (w *wavWriter) Write(ctx context.Context, buf *model.AudioBuffer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	const maxVal = 1 << 15
	data := make([]int, len(buf.Samples))
	for i, s := range buf.Samples {
		v := int(math.Round(s * (maxVal - 1)))
		if v > maxVal-1 {
			v = maxVal - 1
		} else if v < -maxVal {
			v = -maxVal
		}
		data[i] = v
	}

	intBuf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: w.channels, SampleRate: w.sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := w.enc.Write(intBuf); err != nil {
		return pkgerrors.NewIOError(w.path, "failed to write PCM data", err)
	}
	return nil
}

func (w *wavWriter) Close() error {
	if err := w.enc.Close(); err != nil {
		w.file.Close()
		return pkgerrors.NewIOError(w.path, "failed to finalize WAV file", err)
	}
	return w.file.Close()
}
