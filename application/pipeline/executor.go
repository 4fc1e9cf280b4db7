// Package pipeline runs the per-file stage chain and fans files out
// across a bounded worker pool.
package pipeline

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/GraysonQuartech/audioProcessing/application/stages"
	"github.com/GraysonQuartech/audioProcessing/domain/model"
	"github.com/GraysonQuartech/audioProcessing/domain/ports"
	"github.com/GraysonQuartech/audioProcessing/infrastructure/codec"
	pkgerrors "github.com/GraysonQuartech/audioProcessing/pkg/errors"
	"github.com/GraysonQuartech/audioProcessing/pkg/logger"
	"github.com/GraysonQuartech/audioProcessing/pkg/progress"
)

// Executor processes one file at a time: decode in chunks, run each
// enabled stage in configured order, stream the result to a temp file and
// atomically publish it. A failed or cancelled file never leaves a
// partial output behind.
type Executor struct {
	codecs   *codec.Registry
	storage  ports.StorageProvider
	engine   *stages.DenoiseEngine
	opts     *model.ProcessingOptions
	reporter progress.Reporter
	log      *logger.Logger
}

func NewExecutor(codecs *codec.Registry, storage ports.StorageProvider, engine *stages.DenoiseEngine,
	opts *model.ProcessingOptions, reporter progress.Reporter, log *logger.Logger) *Executor {
	return &Executor{
		codecs:   codecs,
		storage:  storage,
		engine:   engine,
		opts:     opts,
		reporter: reporter,
		log:      log,
	}
}

// Run processes inputPath into outputPath (extension may be converted to
// .wav). Per-file failures are encoded in the result; a non-nil error is
// returned only when the batch context was cancelled.
func (e *Executor) Run(ctx context.Context, inputPath, outputPath string) (*model.ProcessingResult, error) {
	start := time.Now()
	log := e.log.With(zap.String("file", filepath.Base(inputPath)))

	fileCtx := ctx
	var cancel context.CancelFunc
	if e.opts.FileTimeout > 0 {
		fileCtx, cancel = context.WithTimeout(ctx, e.opts.FileTimeout)
		defer cancel()
	}

	res, err := e.process(fileCtx, inputPath, outputPath, log)
	elapsed := time.Since(start)

	if err != nil {
		// Batch cancellation is not a per-file failure.
		if ctx.Err() != nil && errors.Is(err, context.Canceled) {
			return nil, err
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = pkgerrors.NewTimeoutError(inputPath, e.opts.FileTimeout)
		}
		log.Error("file processing failed", zap.Error(err), zap.Duration("elapsed", elapsed))
		return &model.ProcessingResult{
			InputPath:  inputPath,
			OutputPath: outputPath,
			Status:     model.StatusFailed,
			Err:        err,
			Elapsed:    elapsed,
		}, nil
	}

	res.Elapsed = elapsed
	e.report(inputPath, progress.StageFileDone, 100, "done")
	log.Info("file processed",
		zap.Duration("elapsed", elapsed),
		zap.Bool("fallback_used", res.FallbackUsed))
	return res, nil
}

func (e *Executor) process(ctx context.Context, inputPath, outputPath string, log *logger.Logger) (*model.ProcessingResult, error) {
	chunkBytes := e.opts.ChunkSizeMB * 1024 * 1024
	reader, err := e.codecs.Open(inputPath, chunkBytes)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	e.report(inputPath, progress.StageDecode, 0, "decoding")

	chain, denoise, err := e.buildChain(reader.SampleRate(), reader.Channels())
	if err != nil {
		return nil, err
	}

	outRate := reader.SampleRate()
	if e.resampleActive(reader.SampleRate()) {
		outRate = e.opts.OutputSampleRate
	}

	tempPath, err := e.storage.TempFile(ctx, filepath.Dir(outputPath), ".audioproc-*.wav")
	if err != nil {
		return nil, pkgerrors.NewIOError(outputPath, "failed to create temp file", err)
	}
	writer, _, err := e.codecs.Create(tempPath, outRate, reader.Channels())
	if err != nil {
		e.storage.Remove(ctx, tempPath)
		return nil, err
	}

	discard := func() {
		writer.Close()
		e.storage.Remove(context.WithoutCancel(ctx), tempPath)
	}

	for {
		buf, err := reader.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			discard()
			return nil, err
		}

		buf, err = e.runChain(ctx, chain, 0, buf, inputPath, log)
		if err != nil {
			discard()
			return nil, err
		}
		if err := writer.Write(ctx, buf); err != nil {
			discard()
			return nil, err
		}
	}

	if err := e.flushChain(ctx, chain, writer, inputPath, log); err != nil {
		discard()
		return nil, err
	}

	e.report(inputPath, progress.StageEncode, 95, "finalizing")
	if err := writer.Close(); err != nil {
		e.storage.Remove(context.WithoutCancel(ctx), tempPath)
		return nil, err
	}
	finalPath := e.codecs.OutputPath(outputPath)
	if err := e.storage.Rename(ctx, tempPath, finalPath); err != nil {
		e.storage.Remove(context.WithoutCancel(ctx), tempPath)
		return nil, pkgerrors.NewIOError(finalPath, "failed to publish output file", err)
	}

	res := &model.ProcessingResult{
		InputPath:  inputPath,
		OutputPath: finalPath,
		Status:     model.StatusSuccess,
	}
	if denoise != nil {
		res.FallbackUsed = denoise.FallbackUsed()
	}
	return res, nil
}

// buildChain instantiates the enabled stages in configured order. Stages
// with cross-chunk state are scoped to this one file.
func (e *Executor) buildChain(sampleRate, channels int) ([]stages.Stage, *stages.DenoiseStage, error) {
	var chain []stages.Stage
	var denoise *stages.DenoiseStage

	for _, d := range e.opts.Stages.Stages {
		if !d.Enabled {
			continue
		}
		switch d.Name {
		case model.StageNoiseGate:
			chain = append(chain, stages.NewNoiseGate(
				d.Param("threshold_db", e.opts.GateThresholdDB),
				d.Param("attack_ms", e.opts.GateAttackMs),
				d.Param("release_ms", e.opts.GateReleaseMs),
				sampleRate))
		case model.StageDenoise:
			denoise = stages.NewDenoiseStage(e.engine, e.opts,
				d.Param("strength", e.opts.Strength))
			chain = append(chain, denoise)
		case model.StageNormalize:
			chain = append(chain, stages.NewNormalizer(
				d.Param("target_db", e.opts.TargetDB),
				d.Param("max_amplitude", e.opts.MaxAmplitude),
				e.opts.NormalizeMode))
		case model.StageResample:
			if !e.resampleActive(sampleRate) {
				continue
			}
			r, err := stages.NewResampler(sampleRate, e.opts.OutputSampleRate, channels)
			if err != nil {
				return nil, nil, err
			}
			chain = append(chain, r)
		}
	}
	return chain, denoise, nil
}

// runChain applies chain[from:] to buf. A stage failure under
// continue_on_error passes the untouched buffer to the next stage.
func (e *Executor) runChain(ctx context.Context, chain []stages.Stage, from int, buf *model.AudioBuffer,
	inputPath string, log *logger.Logger) (*model.AudioBuffer, error) {
	for i := from; i < len(chain); i++ {
		st := chain[i]
		e.report(inputPath, progress.Stage(st.Name()), 0, "")

		out, err := st.Process(ctx, buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			if !e.opts.ContinueOnError {
				return nil, err
			}
			log.Warn("stage failed, passing buffer through",
				zap.String("stage", string(st.Name())), zap.Error(err))
			continue
		}
		buf = out
	}
	return buf, nil
}

// flushChain drains stages that buffer samples, pushing each tail through
// the stages downstream of its producer before writing it out.
func (e *Executor) flushChain(ctx context.Context, chain []stages.Stage, writer ports.ChunkWriter,
	inputPath string, log *logger.Logger) error {
	for i, st := range chain {
		f, ok := st.(stages.Flusher)
		if !ok {
			continue
		}
		tail, err := f.Flush(ctx)
		if err != nil {
			if ctx.Err() != nil || !e.opts.ContinueOnError {
				return err
			}
			log.Warn("stage flush failed",
				zap.String("stage", string(st.Name())), zap.Error(err))
			continue
		}
		if tail == nil || len(tail.Samples) == 0 {
			continue
		}
		tail, err = e.runChain(ctx, chain, i+1, tail, inputPath, log)
		if err != nil {
			return err
		}
		if err := writer.Write(ctx, tail); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) resampleActive(inputRate int) bool {
	return e.opts.OutputSampleRate > 0 && e.opts.OutputSampleRate != inputRate
}

func (e *Executor) report(file string, stage progress.Stage, percent float64, msg string) {
	if e.reporter == nil {
		return
	}
	e.reporter.Report(progress.Update{
		File:      file,
		Stage:     stage,
		Percent:   percent,
		Message:   msg,
		Timestamp: time.Now(),
	})
}
