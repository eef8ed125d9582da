package reliability

import (
	"errors"
	"strings"
	"time"
)

// ErrTransportReset is the structured form of the upstream stream reset.
// Wrapped errors are classified without string matching.
var ErrTransportReset = errors.New("transport stream reset")

// Known textual signatures of benign stream resets. The remote service
// tears the stream down with RST_STREAM code 0 after long silence; the
// dialogue is simply over, not failed.
var transientResetSignatures = []string{
	"received rst_stream with error code 0",
	"rst_stream closed stream",
}

// IsTransientTransportReset classifies errors that end a conversation
// stream without indicating a real failure. Matching is kept in this one
// function so the strategy can move to structured codes without touching
// the session state machine.
func IsTransientTransportReset(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransportReset) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range transientResetSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

// IsRetryableRealtimeMessageType classifies retryable upstream realtime errors.
func IsRetryableRealtimeMessageType(messageType string) bool {
	switch messageType {
	case "rate_limited", "resource_exhausted", "queue_overflow", "error":
		return true
	default:
		return false
	}
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}
