package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/antoniostano/ascolta/internal/assistant"
	"github.com/antoniostano/ascolta/internal/audio"
	"github.com/antoniostano/ascolta/internal/eventlog"
	"github.com/antoniostano/ascolta/internal/hotword"
	"github.com/antoniostano/ascolta/internal/logging"
	"github.com/antoniostano/ascolta/internal/messaging"
	"github.com/antoniostano/ascolta/internal/observability"
	"github.com/antoniostano/ascolta/internal/reliability"
)

type Phase string

const (
	PhaseArmed   Phase = "armed"
	PhaseSession Phase = "session"
	PhaseBackoff Phase = "backoff"
	PhaseStopped Phase = "stopped"
)

// Chime plays the trigger acknowledgement sound.
type Chime interface {
	Play()
}

type OrchestratorConfig struct {
	HotwordID            string
	SampleRateIn         int
	SampleRateOut        int
	ConversationDeadline time.Duration
	ResetBackoffBase     time.Duration
	ResetBackoffCap      time.Duration
}

// Orchestrator alternates the daemon between hotword listening and speech
// sessions. Exactly one of the gate or the active session owns the capture
// device at any moment, and at most one session runs at a time.
type Orchestrator struct {
	cfg     OrchestratorConfig
	gate    *hotword.Gate
	capture audio.CaptureSource
	output  audio.Output
	service assistant.Service
	chime   Chime
	clock   Clock
	metrics *observability.Metrics
	store   eventlog.Store
	bus     *messaging.Publisher

	mu        sync.Mutex
	phase     Phase
	current   *Session
	completed int64
	last      *Result
}

func NewOrchestrator(
	cfg OrchestratorConfig,
	gate *hotword.Gate,
	capture audio.CaptureSource,
	output audio.Output,
	service assistant.Service,
	chime Chime,
	clock Clock,
	metrics *observability.Metrics,
	store eventlog.Store,
	bus *messaging.Publisher,
) *Orchestrator {
	if clock == nil {
		clock = SystemClock
	}
	if cfg.ResetBackoffBase <= 0 {
		cfg.ResetBackoffBase = 500 * time.Millisecond
	}
	if cfg.ResetBackoffCap <= 0 {
		cfg.ResetBackoffCap = 15 * time.Second
	}
	return &Orchestrator{
		cfg:     cfg,
		gate:    gate,
		capture: capture,
		output:  output,
		service: service,
		chime:   chime,
		clock:   clock,
		metrics: metrics,
		store:   store,
		bus:     bus,
		phase:   PhaseStopped,
	}
}

// StatusSnapshot is the state exposed on the HTTP status endpoint.
type StatusSnapshot struct {
	Phase             Phase  `json:"phase"`
	ActiveSessionID   string `json:"active_session_id,omitempty"`
	ActiveState       State  `json:"active_state,omitempty"`
	CompletedSessions int64  `json:"completed_sessions"`
	LastEndReason     string `json:"last_end_reason,omitempty"`
	LastContinued     bool   `json:"last_continued,omitempty"`
}

func (o *Orchestrator) Status() StatusSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	snap := StatusSnapshot{Phase: o.phase, CompletedSessions: o.completed}
	if o.current != nil {
		snap.ActiveSessionID = o.current.ID()
		snap.ActiveState = o.current.State()
	}
	if o.last != nil {
		snap.LastEndReason = string(o.last.EndReason)
		snap.LastContinued = o.last.ContinuationRequested
	}
	return snap
}

func (o *Orchestrator) setPhase(p Phase) {
	o.mu.Lock()
	o.phase = p
	o.mu.Unlock()
}

// Run loops between the armed gate and sessions until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer o.setPhase(PhaseStopped)
	resetStreak := 0

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := o.gate.Arm(); err != nil {
			return fmt.Errorf("arm hotword gate: %w", err)
		}
		o.setPhase(PhaseArmed)

		select {
		case <-ctx.Done():
			o.gate.Disarm()
			return ctx.Err()
		case err := <-o.gate.Faults():
			// The gate already released itself; the device is gone and
			// re-arming would spin. Treat it as fatal.
			return fmt.Errorf("hotword gate device fault: %w", err)
		case det := <-o.gate.Triggers():
			triggeredAt := o.clock.Now()
			if o.metrics != nil {
				o.metrics.HotwordTriggers.WithLabelValues(det.HotwordID).Inc()
			}
			o.bus.Publish(messaging.SubjectHotword, det)
			if o.chime != nil {
				o.chime.Play()
			}
			o.metrics.ObserveStage(observability.StageTriggerToOpen, o.clock.Now().Sub(triggeredAt))
			transient := o.converse(ctx, det)
			if transient {
				backoff := reliability.ExponentialBackoff(resetStreak, o.cfg.ResetBackoffBase, o.cfg.ResetBackoffCap)
				resetStreak++
				logging.LogWarn("transient transport reset, delaying re-arm",
					zap.Duration("backoff", backoff), zap.Int("streak", resetStreak))
				o.setPhase(PhaseBackoff)
				if !o.sleep(ctx, backoff) {
					return ctx.Err()
				}
			} else {
				resetStreak = 0
			}
		}
	}
}

// converse runs one session plus any follow-ups the assistant requests. It
// reports whether the last session failed on a transient transport reset.
func (o *Orchestrator) converse(ctx context.Context, det hotword.Detection) bool {
	for {
		sess := New(Config{
			HotwordID:            det.HotwordID,
			SampleRateIn:         o.cfg.SampleRateIn,
			SampleRateOut:        o.cfg.SampleRateOut,
			ConversationDeadline: o.cfg.ConversationDeadline,
		}, o.capture, o.output, o.service, o.clock, o.metrics)

		o.mu.Lock()
		o.current = sess
		o.phase = PhaseSession
		o.mu.Unlock()
		if o.metrics != nil {
			o.metrics.SessionActive.Set(1)
		}
		o.bus.Publish(messaging.SubjectSessionStarted, map[string]any{
			"session_id": sess.ID(),
			"hotword_id": det.HotwordID,
		})

		res := sess.Run(ctx)

		if o.metrics != nil {
			o.metrics.SessionActive.Set(0)
		}
		o.record(ctx, res)

		o.mu.Lock()
		o.current = nil
		o.completed++
		o.last = &res
		o.mu.Unlock()

		// A requested follow-up chains straight into a new session with no
		// hotword in between.
		if res.ContinuationRequested && ctx.Err() == nil {
			logging.LogSessionEvent(res.ID, "continuation")
			continue
		}
		return res.TransientReset
	}
}

func (o *Orchestrator) record(ctx context.Context, res Result) {
	rec := eventlog.Record{
		ID:          res.ID,
		HotwordID:   res.HotwordID,
		StartedAt:   res.StartedAt,
		EndedAt:     res.EndedAt,
		EndReason:   string(res.EndReason),
		Transcript:  res.Transcript,
		SpokenBytes: res.SpokenBytes,
		SpokenMS:    res.SpokenMS,
		Continued:   res.ContinuationRequested,
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	if o.store != nil {
		if err := o.store.Insert(ctx, rec); err != nil {
			logging.LogError(err, "persist session record", zap.String("session_id", res.ID))
		}
	}
	o.bus.Publish(messaging.SubjectSessionEnded, rec)
	if rec.Transcript != "" {
		o.bus.Publish(messaging.SubjectTranscript, map[string]any{
			"session_id": rec.ID,
			"transcript": rec.Transcript,
		})
	}
}

func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	done := make(chan struct{})
	t := o.clock.AfterFunc(d, func() { close(done) })
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-done:
		return true
	}
}
