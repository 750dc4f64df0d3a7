// Package component defines the three plugin capability contracts
// (Input, Processor, Output) that the executor consumes, along with
// an error taxonomy and a process-wide plugin registry keyed by
// config tag.
package component

import (
	"errors"
	"fmt"
)

// Error kinds map to distinct recovery strategies: a ConfigError
// aborts startup, a ProcessingError/OutputError is per-message, a
// TransientError is retried inside the plugin, a FatalError tears the
// pipeline down.

// ConfigError wraps a configuration-time failure: an unknown plugin, a
// schema violation, or a malformed script that failed to compile.
type ConfigError struct {
	Component string
	Cause     error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error in %s: %v", e.Component, e.Cause)
}

func (e *ConfigError) Unwrap() error { return e.Cause }

// ConnectError is raised by Input.Open when the plugin cannot reach
// its target.
type ConnectError struct {
	Component string
	Cause     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect error in %s: %v", e.Component, e.Cause)
}

func (e *ConnectError) Unwrap() error { return e.Cause }

// TransientError signals a temporary failure a plugin should retry
// with backoff before escalating to a per-message error.
type TransientError struct {
	Cause error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient error: %v", e.Cause) }
func (e *TransientError) Unwrap() error { return e.Cause }

// FatalError signals an unrecoverable input failure; the executor
// stops the pipeline.
type FatalError struct {
	Cause error
}

func (e *FatalError) Error() string { return fmt.Sprintf("fatal input error: %v", e.Cause) }
func (e *FatalError) Unwrap() error { return e.Cause }

// ConditionalCheckFailed is not a real error: it drives branch
// selection in `switch` and `try` containers.
var ErrConditionalCheckFailed = errors.New("conditional check failed")

// IsConditionalCheckFailed reports whether err is (or wraps) the
// branch-skip sentinel.
func IsConditionalCheckFailed(err error) bool {
	return errors.Is(err, ErrConditionalCheckFailed)
}

// ProcessingError wraps a processor failure that is fatal for the
// current message but never for the pipeline: the message is nacked
// and the failure is counted in total_process_errors.
type ProcessingError struct {
	Component string
	Cause     error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing error in %s: %v", e.Component, e.Cause)
}

func (e *ProcessingError) Unwrap() error { return e.Cause }

// NewProcessingError is a convenience constructor.
func NewProcessingError(component string, cause error) error {
	return &ProcessingError{Component: component, Cause: cause}
}

// OutputError wraps a write failure that is fatal for the current
// message but not the pipeline: counted in total_output_errors.
type OutputError struct {
	Component string
	Cause     error
}

func (e *OutputError) Error() string {
	return fmt.Sprintf("output error in %s: %v", e.Component, e.Cause)
}

func (e *OutputError) Unwrap() error { return e.Cause }

// Sentinel errors used throughout the executor and registry.
var (
	ErrAlreadyStarted   = errors.New("component has already been started")
	ErrNotConnected     = errors.New("not connected to target source or sink")
	ErrTypeClosed       = errors.New("component was closed")
	ErrTimeout          = errors.New("action timed out")
	ErrPluginNotFound   = errors.New("plugin not registered")
	ErrDuplicatePlugin  = errors.New("plugin already registered under this tag")
	ErrMultiKeyConfig   = errors.New("plugin selector must be a single-key object")
)
