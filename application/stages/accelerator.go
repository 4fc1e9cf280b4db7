package stages

import (
	"context"
	"os"
	"strconv"

	pkgerrors "github.com/GraysonQuartech/audioProcessing/pkg/errors"
)

// acceleratorEnv advertises accelerator availability to the process. The
// hardware probe lives outside this codebase; a launcher that detects a
// usable device exports AUDIOPROC_ACCELERATOR=1.
const acceleratorEnv = "AUDIOPROC_ACCELERATOR"

// Accelerator models the single shared hardware device the primary
// backend may run on. Only one file's denoise stage holds the lease at a
// time; all other stages run without coordination.
type Accelerator struct {
	available bool
	lease     chan struct{}
}

// DetectAccelerator probes for an accelerator via the environment hook.
func DetectAccelerator() *Accelerator {
	ok, _ := strconv.ParseBool(os.Getenv(acceleratorEnv))
	return NewAccelerator(ok)
}

// NewAccelerator builds an accelerator handle with fixed availability.
func NewAccelerator(available bool) *Accelerator {
	a := &Accelerator{available: available}
	if available {
		a.lease = make(chan struct{}, 1)
		a.lease <- struct{}{}
	}
	return a
}

// Available reports whether a device was detected at startup.
func (a *Accelerator) Available() bool { return a.available }

// Acquire takes the exclusive device lease, blocking until it is free or
// ctx is done. Returns a ResourceError when no device exists, which the
// engine treats as a signal to retry on the CPU.
func (a *Accelerator) Acquire(ctx context.Context) (release func(), err error) {
	if !a.available {
		return nil, pkgerrors.NewResourceError("accelerator", "no accelerator device available", nil)
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-a.lease:
		return func() { a.lease <- struct{}{} }, nil
	}
}
