package provgraph

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// Sentinel errors shared by the graph operators and their hosts.
// These errors can be used with errors.Is() for error checking.
var (
	// ErrInvalidConfig indicates an operator configuration is missing a
	// required value or contains a forbidden one. Operators are never
	// constructed from a configuration that fails with this error.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidItem indicates a vertex or edge that cannot be processed,
	// for example a nil edge or an edge with a nil endpoint.
	ErrInvalidItem = errors.New("invalid graph item")

	// ErrCopyFailed indicates a deep copy of a vertex or edge failed.
	ErrCopyFailed = errors.New("copy failed")

	// ErrQueueUnavailable indicates the item queue backing a pipeline stage
	// could not be reached.
	ErrQueueUnavailable = errors.New("queue unavailable")
)

// Error kinds categorize errors by their type.
const (
	// KindConfiguration represents errors related to operator configuration.
	KindConfiguration = "configuration"

	// KindValidation represents errors related to input item validation.
	KindValidation = "validation"

	// KindCopy represents errors raised while copying graph items.
	KindCopy = "copy"

	// KindNetwork represents errors related to queue or registry access.
	KindNetwork = "network"

	// KindInternal represents internal errors.
	KindInternal = "internal"
)

// Error wraps an underlying error with the operation that failed and the
// category of the failure.
//
// Error supports unwrapping, so errors.Is() matches both the sentinel it
// wraps and another *Error with the same Kind.
//
// Example usage:
//
//	err := &provgraph.Error{
//		Op:   "DropKeys.Init",
//		Kind: provgraph.KindConfiguration,
//		Err:  provgraph.ErrInvalidConfig,
//	}
type Error struct {
	// Op is the operation that failed (e.g., "DropKeys.Init", "MergeVertex.Transform").
	Op string

	// Kind categorizes the error (e.g., KindConfiguration, KindValidation).
	Kind string

	// Err is the underlying error that caused this error.
	Err error

	// Context carries optional debugging attributes such as the offending key.
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("provgraph: %s: %s", e.Op, e.Kind)
	}

	if len(e.Context) > 0 {
		return fmt.Sprintf("provgraph: %s (%s): %v [context: %+v]", e.Op, e.Kind, e.Err, e.Context)
	}

	return fmt.Sprintf("provgraph: %s (%s): %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by Kind (and Op, when the target sets one),
// then falls back to the wrapped error.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}

	if t, ok := target.(*Error); ok {
		if t.Kind != "" && e.Kind == t.Kind {
			if t.Op == "" || e.Op == t.Op {
				return true
			}
		}
	}

	return errors.Is(e.Err, target)
}

// WithContext returns a copy of the error with the given attributes merged in.
func (e *Error) WithContext(ctx map[string]any) *Error {
	newErr := *e
	newErr.Context = make(map[string]any, len(e.Context)+len(ctx))
	for k, v := range e.Context {
		newErr.Context[k] = v
	}
	for k, v := range ctx {
		newErr.Context[k] = v
	}
	return &newErr
}

// NewConfigError creates an Error of KindConfiguration wrapping ErrInvalidConfig
// with the given reason.
func NewConfigError(op, reason string) *Error {
	return &Error{
		Op:   op,
		Kind: KindConfiguration,
		Err:  fmt.Errorf("%w: %s", ErrInvalidConfig, reason),
	}
}

// NewValidationError creates an Error of KindValidation.
func NewValidationError(op string, err error) *Error {
	return &Error{
		Op:   op,
		Kind: KindValidation,
		Err:  err,
	}
}

// NewCopyError creates an Error of KindCopy wrapping ErrCopyFailed.
func NewCopyError(op string, err error) *Error {
	return &Error{
		Op:   op,
		Kind: KindCopy,
		Err:  fmt.Errorf("%w: %w", ErrCopyFailed, err),
	}
}

// NewNetworkError creates an Error of KindNetwork.
func NewNetworkError(op string, err error) *Error {
	return &Error{
		Op:   op,
		Kind: KindNetwork,
		Err:  err,
	}
}

// CloseWithLog closes the resource and logs any error at warning level.
// If logger is nil, slog.Default() is used.
//
//	defer provgraph.CloseWithLog(client, logger, "redis client")
func CloseWithLog(closer io.Closer, logger *slog.Logger, name string) {
	if closer == nil {
		return
	}

	if logger == nil {
		logger = slog.Default()
	}

	if err := closer.Close(); err != nil {
		logger.Warn("failed to close resource",
			"resource", name,
			"error", err)
	}
}
