package gc

import (
	"fmt"

	"github.com/tephra-lang/tephra/internal/allocator"
)

// ErrorCode classifies collector errors.
type ErrorCode int

const (
	ErrCodeOutOfMemory ErrorCode = iota // Backing allocator exhausted
	ErrCodeInvalidSize                  // Non-positive allocation size
	ErrCodeInvalidRef                   // Stale or foreign handle
)

// String returns the error code name.
func (ec ErrorCode) String() string {
	switch ec {
	case ErrCodeOutOfMemory:
		return "OutOfMemory"
	case ErrCodeInvalidSize:
		return "InvalidSize"
	case ErrCodeInvalidRef:
		return "InvalidRef"
	default:
		return fmt.Sprintf("Unknown(%d)", int(ec))
	}
}

// CollectorError reports a failed collector operation.
type CollectorError struct {
	Message string
	Code    ErrorCode
	Size    int
	cause   error
}

// Error implements the error interface.
func (e *CollectorError) Error() string {
	if e.Size > 0 {
		return fmt.Sprintf("gc: %s: %s (size=%d)", e.Code, e.Message, e.Size)
	}

	return fmt.Sprintf("gc: %s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause. Out-of-memory failures unwrap to
// allocator.ErrOutOfMemory so callers can match the class with errors.Is.
func (e *CollectorError) Unwrap() error {
	if e.cause != nil {
		return e.cause
	}

	if e.Code == ErrCodeOutOfMemory {
		return allocator.ErrOutOfMemory
	}

	return nil
}

// outOfMemory wraps a backing-allocator failure. Chunk exhaustion is fatal
// and propagated: the collector performs no retry with a smaller request.
func outOfMemory(size int, cause error) *CollectorError {
	return &CollectorError{
		Message: "backing allocation failed",
		Code:    ErrCodeOutOfMemory,
		Size:    size,
		cause:   cause,
	}
}
