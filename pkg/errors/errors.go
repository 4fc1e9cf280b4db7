package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode categorizes errors
type ErrorCode string

const (
	ErrCodeConfig    ErrorCode = "CONFIG_ERROR"
	ErrCodeDecode    ErrorCode = "DECODE_ERROR"
	ErrCodeIO        ErrorCode = "IO_ERROR"
	ErrCodeAlgorithm ErrorCode = "ALGORITHM_ERROR"
	ErrCodeResource  ErrorCode = "RESOURCE_ERROR"
	ErrCodeTimeout   ErrorCode = "TIMEOUT_ERROR"
	ErrCodeCanceled  ErrorCode = "CANCELED_ERROR"
)

// PipelineError is the base structured error
type PipelineError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// ConfigError represents an invalid or out-of-range parameter. Fatal at
// startup; no file is processed after one of these.
type ConfigError struct {
	PipelineError
	Field string
	Value interface{}
}

func NewConfigError(field string, value interface{}, message string) *ConfigError {
	return &ConfigError{
		PipelineError: PipelineError{
			Code:    ErrCodeConfig,
			Message: message,
		},
		Field: field,
		Value: value,
	}
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("[%s] field=%s value=%v: %s", e.Code, e.Field, e.Value, e.Message)
}

// DecodeError represents an unreadable or corrupt input file
type DecodeError struct {
	PipelineError
	Path string
}

func NewDecodeError(path, message string, cause error) *DecodeError {
	return &DecodeError{
		PipelineError: PipelineError{
			Code:    ErrCodeDecode,
			Message: message,
			Cause:   cause,
		},
		Path: path,
	}
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s (path=%s)", e.PipelineError.Error(), e.Path)
}

// IOError represents an unwritable destination or other filesystem failure
type IOError struct {
	PipelineError
	Path string
}

func NewIOError(path, message string, cause error) *IOError {
	return &IOError{
		PipelineError: PipelineError{
			Code:    ErrCodeIO,
			Message: message,
			Cause:   cause,
		},
		Path: path,
	}
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s (path=%s)", e.PipelineError.Error(), e.Path)
}

// StageError represents a DSP stage failure, including a denoise backend
// that produced invalid samples after all recovery paths were exhausted.
type StageError struct {
	PipelineError
	Stage string
}

func NewStageError(stage, message string, cause error) *StageError {
	return &StageError{
		PipelineError: PipelineError{
			Code:    ErrCodeAlgorithm,
			Message: message,
			Cause:   cause,
		},
		Stage: stage,
	}
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s (stage=%s)", e.PipelineError.Error(), e.Stage)
}

// ResourceError represents an unavailable accelerator or exhausted memory.
// Recovered by retrying the same operation on the CPU path.
type ResourceError struct {
	PipelineError
	Resource string
}

func NewResourceError(resource, message string, cause error) *ResourceError {
	return &ResourceError{
		PipelineError: PipelineError{
			Code:    ErrCodeResource,
			Message: message,
			Cause:   cause,
		},
		Resource: resource,
	}
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("%s (resource=%s)", e.PipelineError.Error(), e.Resource)
}

// TimeoutError represents a file exceeding its processing time budget
type TimeoutError struct {
	PipelineError
	Path   string
	Budget time.Duration
}

func NewTimeoutError(path string, budget time.Duration) *TimeoutError {
	return &TimeoutError{
		PipelineError: PipelineError{
			Code:    ErrCodeTimeout,
			Message: "processing exceeded time budget",
		},
		Path:   path,
		Budget: budget,
	}
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s (path=%s, budget=%s)", e.PipelineError.Error(), e.Path, e.Budget)
}

// IsResource reports whether err is (or wraps) a ResourceError
func IsResource(err error) bool {
	var re *ResourceError
	return errors.As(err, &re)
}

// IsConfig reports whether err is (or wraps) a ConfigError
func IsConfig(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsTimeout reports whether err is (or wraps) a TimeoutError
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// Is enables errors.Is checks
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As enables errors.As checks
func As[T error](err error) (T, bool) {
	var target T
	ok := errors.As(err, &target)
	return target, ok
}
