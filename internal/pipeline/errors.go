package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is returned when an operation is not allowed in the current state
	ErrInvalidTransition = errors.New("invalid pipeline transition")

	// ErrPermissionDenied is wrapped by capture devices when access was refused
	ErrPermissionDenied = errors.New("capture permission denied")

	// ErrDeviceUnavailable is wrapped by capture devices when no device can be used
	ErrDeviceUnavailable = errors.New("capture device unavailable")
)

// AcquisitionReason says why a document could not be acquired
type AcquisitionReason string

const (
	PermissionDenied  AcquisitionReason = "permission_denied"
	UnsupportedType   AcquisitionReason = "unsupported_type"
	SizeExceeded      AcquisitionReason = "size_exceeded"
	DeviceUnavailable AcquisitionReason = "device_unavailable"
)

// AcquisitionError ends a session before extraction started
type AcquisitionError struct {
	Reason AcquisitionReason
	Err    error
}

func (e *AcquisitionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("acquisition failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("acquisition failed (%s)", e.Reason)
}

func (e *AcquisitionError) Unwrap() error {
	return e.Err
}

// ExtractionReason says why recognition failed
type ExtractionReason string

const (
	Unreadable            ExtractionReason = "unreadable"
	MissingRequiredFields ExtractionReason = "missing_required_fields"
	InternalFailure       ExtractionReason = "internal_failure"
	TimedOut              ExtractionReason = "timed_out"
)

// Retryable reports whether the staged document is kept for Retry
func (r ExtractionReason) Retryable() bool {
	return r == InternalFailure || r == TimedOut
}

// ExtractionError ends a session during extraction
type ExtractionError struct {
	Reason ExtractionReason
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extraction failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("extraction failed (%s)", e.Reason)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}
