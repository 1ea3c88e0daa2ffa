package tts

import (
	"errors"
	"fmt"
)

// ErrorCode identifies specific error types
type ErrorCode string

const (
	// Local, deterministic errors. These indicate a logic or setup bug.
	ErrorCodeInvalidConfiguration ErrorCode = "INVALID_CONFIGURATION"
	ErrorCodeIntegrityViolation   ErrorCode = "INTEGRITY_VIOLATION"

	// Collaborator errors
	ErrorCodeSynthesisFailure ErrorCode = "SYNTHESIS_FAILURE"
	ErrorCodeSynthesisTimeout ErrorCode = "SYNTHESIS_TIMEOUT"
	ErrorCodeMuxingFailure    ErrorCode = "MUXING_FAILURE"
	ErrorCodeUploadFailure    ErrorCode = "UPLOAD_FAILURE"
	ErrorCodeStoreFailure     ErrorCode = "STORE_FAILURE"
	ErrorCodeTokenFailure     ErrorCode = "TOKEN_FAILURE"

	// System errors
	ErrorCodeCanceled ErrorCode = "CANCELED"
)

// NoSegment is the Segment value of errors not tied to a single segment.
const NoSegment = -1

// Sentinel errors, one per code. Match them with errors.Is.
var (
	ErrInvalidConfiguration = &Error{Code: ErrorCodeInvalidConfiguration, Segment: NoSegment}
	ErrIntegrityViolation   = &Error{Code: ErrorCodeIntegrityViolation, Segment: NoSegment}
	ErrSynthesisFailure     = &Error{Code: ErrorCodeSynthesisFailure, Segment: NoSegment}
	ErrSynthesisTimeout     = &Error{Code: ErrorCodeSynthesisTimeout, Segment: NoSegment}
	ErrMuxingFailure        = &Error{Code: ErrorCodeMuxingFailure, Segment: NoSegment}
	ErrUploadFailure        = &Error{Code: ErrorCodeUploadFailure, Segment: NoSegment}
	ErrStoreFailure         = &Error{Code: ErrorCodeStoreFailure, Segment: NoSegment}
	ErrTokenFailure         = &Error{Code: ErrorCodeTokenFailure, Segment: NoSegment}
	ErrCanceled             = &Error{Code: ErrorCodeCanceled, Segment: NoSegment}
)

// ErrEmptyAudio is the cause attached when a collaborator returns zero bytes.
var ErrEmptyAudio = errors.New("collaborator returned empty audio")

// Error is the error type shared by the segmenter, the pipeline and the
// collaborator adapters.
type Error struct {
	Code    ErrorCode
	Message string
	Segment int // segment index, or NoSegment
	Cause   error
	Context map[string]interface{}
}

// NewError creates an error that is not tied to a segment.
func NewError(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Segment: NoSegment,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// NewSegmentError creates an error for the segment at index.
func NewSegmentError(code ErrorCode, index int, cause error) *Error {
	e := NewError(code, fmt.Sprintf("segment %d", index), cause)
	e.Segment = index
	return e
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code. A timeout also
// matches ErrSynthesisFailure, since it is handled as one for retries.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code == e.Code {
		return true
	}
	return e.Code == ErrorCodeSynthesisTimeout && t.Code == ErrorCodeSynthesisFailure
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// IsFatal returns true if the error must stop the whole run rather than the
// current article.
func (e *Error) IsFatal() bool {
	switch e.Code {
	case ErrorCodeInvalidConfiguration,
		ErrorCodeIntegrityViolation,
		ErrorCodeCanceled:
		return true
	default:
		return false
	}
}

// IsRetryable returns true if the operation can be retried
func (e *Error) IsRetryable() bool {
	switch e.Code {
	case ErrorCodeSynthesisTimeout,
		ErrorCodeTokenFailure,
		ErrorCodeUploadFailure:
		return true
	case ErrorCodeSynthesisFailure:
		return !errors.Is(e.Cause, ErrEmptyAudio)
	default:
		return false
	}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// SegmentOf returns the segment index carried by err, or NoSegment.
func SegmentOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Segment
	}
	return NoSegment
}

// IsFatal reports whether err carries a code that halts a whole run.
func IsFatal(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.IsFatal()
}

// IsRetryable reports whether err is worth another attempt. Errors that do
// not carry a code are treated as transient collaborator failures.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.IsRetryable()
	}
	return true
}
