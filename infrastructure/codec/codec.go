// Package codec provides chunked, bounded-memory audio file IO.
package codec

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/GraysonQuartech/audioProcessing/domain/ports"
	pkgerrors "github.com/GraysonQuartech/audioProcessing/pkg/errors"
)

// bytesPerSample is the in-memory cost of one decoded sample; the chunk
// budget is expressed against decoded float64 data, not the on-disk size.
const bytesPerSample = 8

// Registry maps file extensions to codecs
type Registry struct {
	codecs map[string]ports.Codec
}

// NewRegistry creates a registry with the built-in WAV and FLAC codecs
func NewRegistry() *Registry {
	r := &Registry{codecs: make(map[string]ports.Codec)}
	r.Register(&WAVCodec{})
	r.Register(&FLACCodec{})
	return r
}

// Register adds a codec for each of its extensions
func (r *Registry) Register(c ports.Codec) {
	for _, ext := range c.Extensions() {
		r.codecs[strings.ToLower(ext)] = c
	}
}

// Extensions returns the sorted list of supported extensions (with dots).
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.codecs))
	for ext := range r.codecs {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Supported reports whether the path has a supported extension.
func (r *Registry) Supported(path string) bool {
	_, ok := r.codecs[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Open returns a chunked reader for the file. Chunks are bounded by
// chunkBytes and never split a multi-channel sample frame.
func (r *Registry) Open(path string, chunkBytes int) (ports.ChunkReader, error) {
	c, ok := r.codecs[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, pkgerrors.NewDecodeError(path, "unsupported audio format", nil)
	}
	return c.Open(path, chunkBytes)
}

// OutputPath returns the path an output will actually be written to.
// Output is always encoded as WAV: FLAC support is decode-only, so the
// extension is converted when the input was compressed.
func (r *Registry) OutputPath(path string) string {
	if strings.ToLower(filepath.Ext(path)) != ".wav" {
		return strings.TrimSuffix(path, filepath.Ext(path)) + ".wav"
	}
	return path
}

// Create returns a chunked WAV writer for the output path, converting the
// extension if needed. The final path is returned alongside the writer.
func (r *Registry) Create(path string, sampleRate, channels int) (ports.ChunkWriter, string, error) {
	path = r.OutputPath(path)
	w, err := (&WAVCodec{}).Create(path, sampleRate, channels)
	if err != nil {
		return nil, "", err
	}
	return w, path, nil
}

// chunkFrames converts a byte budget into a frame count, guaranteeing at
// least one whole frame so a chunk can never split one.
func chunkFrames(chunkBytes, channels int) int {
	if channels <= 0 {
		channels = 1
	}
	frames := chunkBytes / (bytesPerSample * channels)
	if frames < 1 {
		frames = 1
	}
	return frames
}
