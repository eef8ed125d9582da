// Package eventlog records completed speech sessions for the status API and
// offline inspection.
package eventlog

import (
	"context"
	"time"
)

// Record captures one speech session from hotword trigger to teardown.
type Record struct {
	ID          string    `json:"id"`
	HotwordID   string    `json:"hotword_id"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at"`
	EndReason   string    `json:"end_reason"`
	Transcript  string    `json:"transcript,omitempty"`
	SpokenBytes int64     `json:"spoken_bytes"`
	SpokenMS    int64     `json:"spoken_ms"`
	Continued   bool      `json:"continued"`
	Error       string    `json:"error,omitempty"`
}

// Store persists session records.
type Store interface {
	Insert(ctx context.Context, record Record) error
	Recent(ctx context.Context, limit int) ([]Record, error)
	Close() error
}
