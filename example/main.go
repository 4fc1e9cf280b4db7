package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	audioproc "github.com/GraysonQuartech/audioProcessing"
)

func main() {
	// ── Graceful shutdown via signal ──────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Progress channel ──────────────────────────────────────────────────
	progressCh := make(chan audioproc.ProgressUpdate, 32)
	go func() {
		for upd := range progressCh {
			fmt.Printf("[%s] stage=%-10s %s\n",
				filepath.Base(upd.File), upd.Stage, upd.Message)
		}
	}()

	// ── Create processor ──────────────────────────────────────────────────
	processor, err := audioproc.New(audioproc.Config{
		ProgressCh: progressCh,
	},
		audioproc.WithStrength(0.7),
		audioproc.WithTargetDB(-24.0),
		audioproc.WithNormalizeMode(audioproc.NormalizeRMS),
		audioproc.WithNoiseGate(-40.0, 5, 100),
		audioproc.WithWorkers(4),
	)
	if err != nil {
		log.Fatalf("failed to create processor: %v", err)
	}
	defer func() {
		close(progressCh)
		processor.Close()
	}()

	// ── Example 1: Single file processing ────────────────────────────────
	fmt.Println("\n── Example 1: Single File Processing ──")
	singleExample(ctx, processor)

	// ── Example 2: Batch processing ──────────────────────────────────────
	fmt.Println("\n── Example 2: Batch Processing ──")
	batchExample(ctx, processor)
}

func singleExample(ctx context.Context, p *audioproc.Processor) {
	inputPath := os.Getenv("AUDIOPROC_INPUT")
	if inputPath == "" {
		inputPath = "/tmp/hearing.wav"
	}
	outputPath := "/tmp/cleaned_hearing.wav"

	result, err := p.ProcessFile(ctx, inputPath, outputPath)
	if err != nil {
		fmt.Printf("processing failed: %v\n", err)
		return
	}

	fmt.Printf("Done! took=%s output=%s fallback=%v\n",
		result.Elapsed, result.OutputPath, result.FallbackUsed)
}

func batchExample(ctx context.Context, p *audioproc.Processor) {
	inputDir := os.Getenv("AUDIOPROC_INPUT_DIR")
	if inputDir == "" {
		inputDir = "/tmp/hearings"
	}
	outputDir := "/tmp/hearings_cleaned"

	report, err := p.ProcessBatch(ctx, inputDir, outputDir)
	if err != nil {
		fmt.Printf("batch failed: %v\n", err)
		return
	}

	succeeded, failed, skipped := report.Counts()
	fmt.Printf("Batch done in %s: %d ok, %d failed, %d skipped\n",
		report.Elapsed(), succeeded, failed, skipped)
	for _, res := range report.Results() {
		if res.Status == audioproc.StatusFailed {
			fmt.Printf("  failed: %s (%v)\n", res.InputPath, res.Err)
		}
	}
}
