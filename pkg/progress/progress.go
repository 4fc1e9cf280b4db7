package progress

import (
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Stage represents a pipeline stage transition
type Stage string

const (
	StageDecode    Stage = "decode"
	StageNoiseGate Stage = "noise_gate"
	StageDenoise   Stage = "denoise"
	StageNormalize Stage = "normalize"
	StageResample  Stage = "resample"
	StageEncode    Stage = "encode"
	StageFileDone  Stage = "file_done"
	StageDone      Stage = "done"
)

// Update holds a progress update
type Update struct {
	File      string
	Stage     Stage
	Percent   float64
	Message   string
	Timestamp time.Time
}

// Reporter is the interface for progress reporting
type Reporter interface {
	Report(update Update)
}

// ChannelReporter sends updates to a channel
type ChannelReporter struct {
	ch chan<- Update
}

// NewChannelReporter creates a reporter that sends updates to ch
func NewChannelReporter(ch chan<- Update) *ChannelReporter {
	return &ChannelReporter{ch: ch}
}

func (r *ChannelReporter) Report(update Update) {
	select {
	case r.ch <- update:
	default: // non-blocking: drop if channel is full
	}
}

// BarReporter renders a terminal progress bar, advancing one tick per
// completed file.
type BarReporter struct {
	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

// NewBarReporter creates a bar sized to the number of files in the batch.
func NewBarReporter(totalFiles int, description string) *BarReporter {
	return &BarReporter{
		bar: progressbar.NewOptions(totalFiles,
			progressbar.OptionSetDescription(description),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		),
	}
}

func (r *BarReporter) Report(update Update) {
	if update.Stage != StageFileDone {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.bar.Add(1)
}

// MultiReporter fans out to multiple reporters
type MultiReporter struct {
	mu        sync.RWMutex
	reporters []Reporter
}

func NewMultiReporter(reporters ...Reporter) *MultiReporter {
	return &MultiReporter{reporters: reporters}
}

func (m *MultiReporter) Add(r Reporter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reporters = append(m.reporters, r)
}

func (m *MultiReporter) Report(update Update) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.reporters {
		r.Report(update)
	}
}

// NoopReporter discards all updates
type NoopReporter struct{}

func (n NoopReporter) Report(_ Update) {}
