package reliability

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestIsTransientTransportReset(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"sentinel", ErrTransportReset, true},
		{"wrapped sentinel", fmt.Errorf("stream ended: %w", ErrTransportReset), true},
		{"rst_stream code zero", errors.New("rpc error: Received RST_STREAM with error code 0"), true},
		{"rst_stream closed", errors.New("RST_STREAM closed stream ID 5"), true},
		{"genuine failure", errors.New("connection refused"), false},
		{"rst_stream nonzero code", errors.New("received rst_stream with error code 2"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsTransientTransportReset(tc.err); got != tc.want {
				t.Fatalf("IsTransientTransportReset(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestIsRetryableRealtimeMessageType(t *testing.T) {
	for _, code := range []string{"rate_limited", "resource_exhausted", "queue_overflow", "error"} {
		if !IsRetryableRealtimeMessageType(code) {
			t.Fatalf("IsRetryableRealtimeMessageType(%q) = false, want true", code)
		}
	}
	for _, code := range []string{"", "auth_failed", "invalid_request"} {
		if IsRetryableRealtimeMessageType(code) {
			t.Fatalf("IsRetryableRealtimeMessageType(%q) = true, want false", code)
		}
	}
}

func TestExponentialBackoff(t *testing.T) {
	base := 100 * time.Millisecond
	capDur := 700 * time.Millisecond
	if got := ExponentialBackoff(0, base, capDur); got != base {
		t.Fatalf("attempt 0 = %v, want %v", got, base)
	}
	if got := ExponentialBackoff(1, base, capDur); got != 200*time.Millisecond {
		t.Fatalf("attempt 1 = %v, want 200ms", got)
	}
	if got := ExponentialBackoff(2, base, capDur); got != 400*time.Millisecond {
		t.Fatalf("attempt 2 = %v, want 400ms", got)
	}
	if got := ExponentialBackoff(10, base, capDur); got != capDur {
		t.Fatalf("attempt 10 = %v, want %v", got, capDur)
	}
}
