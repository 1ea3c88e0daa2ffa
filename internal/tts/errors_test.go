package tts

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"code only", NewError(ErrorCodeCanceled, "", nil), "CANCELED"},
		{"message", NewError(ErrorCodeStoreFailure, "update reading 3", nil), "STORE_FAILURE: update reading 3"},
		{"cause", NewSegmentError(ErrorCodeSynthesisFailure, 2, errors.New("HTTP 500")), "SYNTHESIS_FAILURE: segment 2: HTTP 500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestError_Is(t *testing.T) {
	timeout := NewSegmentError(ErrorCodeSynthesisTimeout, 1, context.DeadlineExceeded)
	wrapped := fmt.Errorf("article 7: %w", timeout)

	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{"same code", wrapped, ErrSynthesisTimeout, true},
		{"timeout is a synthesis failure", wrapped, ErrSynthesisFailure, true},
		{"failure is not a timeout", NewError(ErrorCodeSynthesisFailure, "", nil), ErrSynthesisTimeout, false},
		{"different code", wrapped, ErrUploadFailure, false},
		{"cause still visible", wrapped, context.DeadlineExceeded, true},
		{"plain error", errors.New("x"), ErrCanceled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Is(tt.err, tt.target); got != tt.want {
				t.Errorf("errors.Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		fatal     bool
		retryable bool
	}{
		{"nil", nil, false, false},
		{"uncoded", errors.New("connection reset"), false, true},
		{"integrity", NewError(ErrorCodeIntegrityViolation, "", nil), true, false},
		{"configuration", NewError(ErrorCodeInvalidConfiguration, "", nil), true, false},
		{"canceled", NewError(ErrorCodeCanceled, "", nil), true, false},
		{"synthesis", NewSegmentError(ErrorCodeSynthesisFailure, 0, errors.New("500")), false, true},
		{"empty audio", NewSegmentError(ErrorCodeSynthesisFailure, 0, ErrEmptyAudio), false, false},
		{"timeout", NewError(ErrorCodeSynthesisTimeout, "", nil), false, true},
		{"token", NewError(ErrorCodeTokenFailure, "", nil), false, true},
		{"upload", NewError(ErrorCodeUploadFailure, "", nil), false, true},
		{"muxing", NewError(ErrorCodeMuxingFailure, "", nil), false, false},
		{"store", NewError(ErrorCodeStoreFailure, "", nil), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFatal(tt.err); got != tt.fatal {
				t.Errorf("IsFatal() = %v, want %v", got, tt.fatal)
			}
			if got := IsRetryable(tt.err); got != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.retryable)
			}
		})
	}
}

func TestCodeAndSegmentOf(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewSegmentError(ErrorCodeSynthesisFailure, 4, nil))
	if got := CodeOf(err); got != ErrorCodeSynthesisFailure {
		t.Errorf("CodeOf() = %q", got)
	}
	if got := SegmentOf(err); got != 4 {
		t.Errorf("SegmentOf() = %d", got)
	}

	plain := errors.New("x")
	if CodeOf(plain) != "" || SegmentOf(plain) != NoSegment {
		t.Error("plain errors carry no code or segment")
	}
	if SegmentOf(NewError(ErrorCodeMuxingFailure, "", nil)) != NoSegment {
		t.Error("run-level error has a segment")
	}
}

func TestWithContext(t *testing.T) {
	e := (&Error{Code: ErrorCodeIntegrityViolation}).WithContext("divergence", 12)
	if e.Context["divergence"] != 12 {
		t.Errorf("Context = %v", e.Context)
	}
}
