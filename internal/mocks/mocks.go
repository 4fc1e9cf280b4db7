package mocks

import (
	"context"
	"math"
	"os"
	"path/filepath"

	"github.com/GraysonQuartech/audioProcessing/domain/model"
)

// MockDenoiseBackend is a test double for ports.DenoiseBackend
type MockDenoiseBackend struct {
	BackendName model.Backend
	DenoiseFunc func(ctx context.Context, buf *model.AudioBuffer, params model.NoiseReductionParams) (*model.AudioBuffer, error)
	Calls       int
}

func (m *MockDenoiseBackend) Name() model.Backend {
	if m.BackendName == "" {
		return model.BackendPrimary
	}
	return m.BackendName
}

func (m *MockDenoiseBackend) Denoise(ctx context.Context, buf *model.AudioBuffer, params model.NoiseReductionParams) (*model.AudioBuffer, error) {
	m.Calls++
	if m.DenoiseFunc != nil {
		return m.DenoiseFunc(ctx, buf, params)
	}
	return buf.Clone(), nil
}

// NaNBackend always produces a NaN sample, simulating a numerically
// unstable primary backend.
func NaNBackend() *MockDenoiseBackend {
	return &MockDenoiseBackend{
		DenoiseFunc: func(_ context.Context, buf *model.AudioBuffer, _ model.NoiseReductionParams) (*model.AudioBuffer, error) {
			out := buf.Clone()
			if len(out.Samples) > 0 {
				out.Samples[0] = math.NaN()
			}
			return out, nil
		},
	}
}

// MockStorageProvider is a test double for ports.StorageProvider. The
// zero value delegates to the real filesystem, letting tests override
// single operations.
type MockStorageProvider struct {
	ExistsFunc    func(ctx context.Context, path string) (bool, error)
	SizeFunc      func(ctx context.Context, path string) (int64, error)
	RemoveFunc    func(ctx context.Context, path string) error
	RenameFunc    func(ctx context.Context, oldPath, newPath string) error
	TempFileFunc  func(ctx context.Context, dir, pattern string) (string, error)
	ListAudioFunc func(ctx context.Context, dir string, exts []string) ([]string, error)
}

func (m *MockStorageProvider) Exists(ctx context.Context, path string) (bool, error) {
	if m.ExistsFunc != nil {
		return m.ExistsFunc(ctx, path)
	}
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

func (m *MockStorageProvider) Size(ctx context.Context, path string) (int64, error) {
	if m.SizeFunc != nil {
		return m.SizeFunc(ctx, path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (m *MockStorageProvider) Remove(ctx context.Context, path string) error {
	if m.RemoveFunc != nil {
		return m.RemoveFunc(ctx, path)
	}
	return os.Remove(path)
}

func (m *MockStorageProvider) Rename(ctx context.Context, oldPath, newPath string) error {
	if m.RenameFunc != nil {
		return m.RenameFunc(ctx, oldPath, newPath)
	}
	return os.Rename(oldPath, newPath)
}

func (m *MockStorageProvider) TempFile(ctx context.Context, dir, pattern string) (string, error) {
	if m.TempFileFunc != nil {
		return m.TempFileFunc(ctx, dir, pattern)
	}
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return filepath.Abs(f.Name())
}

func (m *MockStorageProvider) ListAudio(ctx context.Context, dir string, exts []string) ([]string, error) {
	if m.ListAudioFunc != nil {
		return m.ListAudioFunc(ctx, dir, exts)
	}
	var files []string
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	supported := map[string]bool{}
	for _, e := range exts {
		supported[e] = true
	}
	for _, e := range entries {
		if !e.IsDir() && supported[filepath.Ext(e.Name())] {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}
