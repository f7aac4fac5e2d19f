package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"testing"
)

// lmStatusError is a minimal httpStatusError stand-in for the LM fallback
// client's real status error (internal/lm's statusError), used here so
// ClassifyError can be tested without importing the HTTP client.
type lmStatusError struct {
	code int
}

func (e *lmStatusError) Error() string   { return fmt.Sprintf("lm: status %d", e.code) }
func (e *lmStatusError) HTTPStatus() int { return e.code }

func TestClassifyError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want float64
	}{
		{"nil", nil, 0},
		{"429_rate_limited", &lmStatusError{429}, 0.5},
		{"500_lm_error", &lmStatusError{500}, 1.0},
		{"502_bad_gateway", &lmStatusError{502}, 1.0},
		{"503_unavailable", &lmStatusError{503}, 1.0},
		{"504_gateway_timeout", &lmStatusError{504}, 1.0},
		{"400_bad_request", &lmStatusError{400}, 0.0},
		{"401_unauthorized", &lmStatusError{401}, 0.0},
		{"403_forbidden", &lmStatusError{403}, 0.0},
		{"404_not_found", &lmStatusError{404}, 0.0},
		{"context_deadline", context.DeadlineExceeded, 1.5},
		{"os_deadline", os.ErrDeadlineExceeded, 1.5},
		{"wrapped_deadline", fmt.Errorf("wrap: %w", context.DeadlineExceeded), 1.5},
		{"dial_error", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, 1.0},
		{"generic_error", errors.New("lm endpoint unreachable"), 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ClassifyError(tt.err)
			if got != tt.want {
				t.Errorf("ClassifyError(%v) = %f, want %f", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassifyError_WrappedStatus(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("lm fallback call: %w", &lmStatusError{502})
	if got := ClassifyError(wrapped); got != 1.0 {
		t.Errorf("wrapped 502 = %f, want 1.0", got)
	}
}
