// Command audioproc batch-cleans courtroom audio recordings.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	audioproc "github.com/GraysonQuartech/audioProcessing"
	"github.com/GraysonQuartech/audioProcessing/domain/model"
	"github.com/GraysonQuartech/audioProcessing/infrastructure/codec"
	pkgerrors "github.com/GraysonQuartech/audioProcessing/pkg/errors"
	"github.com/GraysonQuartech/audioProcessing/pkg/progress"
)

var (
	inputDir        string
	outputDir       string
	configFile      string
	strength        float64
	steps           []string
	device          string
	targetDB        float64
	outputRate      int
	workers         int
	chunkSizeMB     int
	timeoutMin      int
	continueOnError bool
	skipExisting    bool
	forceCPU        bool
	outputPrefix    string
	logFile         string
	verbose         bool
	noProgress      bool

	version = "1.0.0"
)

var rootCmd = &cobra.Command{
	Use:   "audioproc",
	Short: "Batch noise reduction and normalization for court recordings",
	Long: `audioproc cleans a directory of courtroom audio recordings:
noise gating, AI noise reduction with a deterministic fallback, loudness
normalization and optional resampling. WAV and FLAC inputs are supported;
all output is 16-bit PCM WAV.`,
	SilenceUsage: true,
	RunE:         run,
}

func main() {
	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		if pkgerrors.IsConfig(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&inputDir, "input", "i", "", "input directory (required)")
	f.StringVarP(&outputDir, "output", "o", "", "output directory (required)")
	f.StringVar(&configFile, "config", "", "YAML configuration file")
	f.Float64VarP(&strength, "strength", "s", 0.5, "noise reduction strength in [0.0, 1.0]")
	f.StringSliceVar(&steps, "steps", nil, "ordered stage list, e.g. noise_gate,denoise,normalize")
	f.StringVar(&device, "device", "", "processing device: cpu or accelerator")
	f.Float64Var(&targetDB, "target-db", -24.0, "normalization target level in dBFS")
	f.IntVar(&outputRate, "output-sample-rate", 0, "resample output to this rate (0 keeps input rate)")
	f.IntVarP(&workers, "workers", "w", 4, "number of parallel workers")
	f.IntVar(&chunkSizeMB, "chunk-size-mb", 1, "I/O chunk memory budget in MB")
	f.IntVar(&timeoutMin, "timeout", 10, "per-file time budget in minutes")
	f.BoolVar(&continueOnError, "continue-on-error", true, "keep processing after a file fails")
	f.BoolVar(&skipExisting, "skip-existing", false, "skip inputs whose output already exists")
	f.BoolVar(&forceCPU, "force-cpu", false, "never use the accelerator")
	f.StringVar(&outputPrefix, "prefix", "cleaned_", "output filename prefix")
	f.StringVar(&logFile, "log-file", "", "tee log output to this file")
	f.BoolVarP(&verbose, "verbose", "v", false, "development logging")
	f.BoolVar(&noProgress, "no-progress", false, "disable the terminal progress bar")

	rootCmd.MarkFlagRequired("input")
	rootCmd.MarkFlagRequired("output")
}

func run(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := buildOptions(cmd)

	var reporter progress.Reporter
	if !noProgress {
		reporter = progress.NewMultiReporter()
	}

	proc, err := audioproc.New(audioproc.Config{
		ConfigFile: configFile,
		LogFile:    logFile,
		Verbose:    verbose,
		Reporter:   reporter,
	}, opts...)
	if err != nil {
		return err
	}
	defer proc.Close()

	if mr, ok := reporter.(*progress.MultiReporter); ok {
		// Sized after option resolution is not possible before discovery;
		// count the files the same way the batch will.
		if n := countInputs(inputDir); n > 0 {
			mr.Add(progress.NewBarReporter(n, "processing"))
		}
	}

	report, err := proc.ProcessBatch(ctx, inputDir, outputDir)
	if err != nil {
		return err
	}

	printSummary(report)
	return runStatus(ctx.Err(), report, inputDir, proc.Options().ContinueOnError)
}

// runStatus decides the process exit. An aborted run and an empty input
// set always fail; per-file failures tolerated by continue-on-error do
// not.
func runStatus(ctxErr error, report *audioproc.PipelineReport, dir string, tolerateFailures bool) error {
	if ctxErr != nil {
		return fmt.Errorf("run aborted: %w", ctxErr)
	}
	if report.Total() == 0 {
		return fmt.Errorf("no supported audio files found in %q", dir)
	}
	if _, failed, _ := report.Counts(); failed > 0 && !tolerateFailures {
		return fmt.Errorf("%d file(s) failed", failed)
	}
	return nil
}

// buildOptions translates only the flags the user actually set, so CLI
// flags override the config file without clobbering it with defaults.
func buildOptions(cmd *cobra.Command) []audioproc.Option {
	var opts []audioproc.Option
	set := cmd.Flags().Changed

	if set("strength") {
		opts = append(opts, audioproc.WithStrength(strength))
	}
	if set("target-db") {
		opts = append(opts, audioproc.WithTargetDB(targetDB))
	}
	if set("output-sample-rate") {
		opts = append(opts, audioproc.WithOutputSampleRate(outputRate))
	}
	if set("workers") {
		opts = append(opts, audioproc.WithWorkers(workers))
	}
	if set("chunk-size-mb") {
		opts = append(opts, audioproc.WithChunkSizeMB(chunkSizeMB))
	}
	if set("timeout") {
		opts = append(opts, audioproc.WithFileTimeout(time.Duration(timeoutMin)*time.Minute))
	}
	if set("continue-on-error") {
		opts = append(opts, audioproc.WithContinueOnError(continueOnError))
	}
	if set("skip-existing") {
		opts = append(opts, audioproc.WithSkipExisting(skipExisting))
	}
	if set("force-cpu") {
		opts = append(opts, audioproc.WithForceCPU(forceCPU))
	}
	if set("prefix") {
		opts = append(opts, audioproc.WithOutputPrefix(outputPrefix))
	}
	if set("device") {
		if d, err := model.ParseDevice(device); err == nil {
			opts = append(opts, audioproc.WithDevice(d))
		} else {
			opts = append(opts, func(o *model.ProcessingOptions) { o.Device = model.Device(device) })
		}
	}
	if set("steps") {
		opts = append(opts, withSteps(steps))
	}
	return opts
}

// withSteps enables exactly the named stages, in the given order.
func withSteps(names []string) audioproc.Option {
	return func(o *model.ProcessingOptions) {
		var stages []model.StageDescriptor
		for _, raw := range names {
			for _, name := range strings.Split(raw, ",") {
				name = strings.TrimSpace(name)
				if name == "" {
					continue
				}
				// Unknown names are kept so validation rejects them with
				// a proper config error instead of silently dropping.
				stages = append(stages, model.StageDescriptor{
					Name:    model.StageName(strings.ToLower(name)),
					Enabled: true,
				})
			}
		}
		o.Stages = model.StageConfig{Stages: stages}
	}
}

// countInputs sizes the progress bar the same way discovery will: by
// asking the codec registry which files it can open.
func countInputs(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	reg := codec.NewRegistry()
	n := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if reg.Supported(e.Name()) {
			n++
		}
	}
	return n
}

func printSummary(report *audioproc.PipelineReport) {
	succeeded, failed, skipped := report.Counts()
	total := report.Total()
	rate := 0.0
	if total > 0 {
		rate = float64(succeeded) / float64(total) * 100
	}
	fmt.Printf("\nProcessed %d file(s) in %s\n", total, report.Elapsed().Round(time.Millisecond))
	fmt.Printf("  succeeded: %d\n  failed:    %d\n  skipped:   %d\n", succeeded, failed, skipped)
	fmt.Printf("  success rate: %.1f%%\n", rate)

	for _, res := range report.Results() {
		if res.Status == audioproc.StatusFailed {
			fmt.Printf("  FAILED %s: %v\n", res.InputPath, res.Err)
		}
	}
}
