// Package session implements the speech session state machine: it forwards
// microphone audio to the assistant, renders synthesized replies, and times
// teardown off the estimated playback completion instant.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/antoniostano/ascolta/internal/assistant"
	"github.com/antoniostano/ascolta/internal/audio"
	"github.com/antoniostano/ascolta/internal/logging"
	"github.com/antoniostano/ascolta/internal/observability"
	"github.com/antoniostano/ascolta/internal/reliability"
)

type State string

const (
	// StateListening: microphone chunks are forwarded to the assistant.
	StateListening State = "listening"
	// StateUtteranceComplete: the user is done speaking, capture released,
	// awaiting the synthesized reply.
	StateUtteranceComplete State = "utterance_complete"
	// StateSpeaking: reply audio is being rendered.
	StateSpeaking State = "speaking"
	// StateEnded is terminal.
	StateEnded State = "ended"
)

type EndReason string

const (
	EndCompleted EndReason = "completed"
	EndDeadline  EndReason = "deadline_expired"
	EndCancelled EndReason = "cancelled"
	EndFailed    EndReason = "failed"
)

const (
	deadlinePurposeResponse = "awaiting_response"
	deadlinePurposeTerminal = "awaiting_terminal_event"
	deadlinePurposeDrain    = "awaiting_playback_drain"
)

// playbackDrainGrace bounds how long the closed-but-not-exited player may
// take after everything written has had time to play out.
const playbackDrainGrace = 2 * time.Second

// Result summarizes one finished session.
type Result struct {
	ID                    string
	HotwordID             string
	StartedAt             time.Time
	EndedAt               time.Time
	EndReason             EndReason
	ContinuationRequested bool
	TransientReset        bool
	Transcript            string
	SpokenBytes           int64
	SpokenMS              int64
	Err                   error
}

type Config struct {
	HotwordID            string
	SampleRateIn         int
	SampleRateOut        int
	ConversationDeadline time.Duration
}

// Session drives a single exchange. All state transitions happen on the Run
// goroutine; timers and collaborators deliver into Run through channels.
type Session struct {
	id      string
	cfg     Config
	clock   Clock
	capture audio.CaptureSource
	output  audio.Output
	service assistant.Service
	metrics *observability.Metrics

	mu    sync.Mutex
	state State
}

func New(cfg Config, capture audio.CaptureSource, output audio.Output, service assistant.Service, clock Clock, metrics *observability.Metrics) *Session {
	if clock == nil {
		clock = SystemClock
	}
	if cfg.ConversationDeadline <= 0 {
		cfg.ConversationDeadline = 10 * time.Second
	}
	return &Session{
		id:      uuid.NewString(),
		cfg:     cfg,
		clock:   clock,
		capture: capture,
		output:  output,
		service: service,
		metrics: metrics,
		state:   StateListening,
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	logging.LogSessionEvent(s.id, "state", zap.String("state", string(st)))
	if s.metrics != nil {
		s.metrics.SessionEvents.WithLabelValues(string(st)).Inc()
	}
}

// Run owns the exchange from capture start to teardown and returns exactly
// one Result. The first terminal cause wins; later causes are ignored.
func (s *Session) Run(ctx context.Context) Result {
	startedAt := s.clock.Now()
	res := Result{ID: s.id, HotwordID: s.cfg.HotwordID, StartedAt: startedAt}

	finish := func(reason EndReason, err error) Result {
		res.EndReason = reason
		res.Err = err
		res.EndedAt = s.clock.Now()
		res.TransientReset = err != nil && reliability.IsTransientTransportReset(err)
		s.setState(StateEnded)
		if s.metrics != nil && res.TransientReset {
			s.metrics.TransientResets.Inc()
		}
		return res
	}

	chunks, err := s.capture.Start()
	if err != nil {
		return finish(EndFailed, fmt.Errorf("start capture: %w", err))
	}
	micActive := true
	stopCapture := func() {
		if !micActive {
			return
		}
		micActive = false
		// Dropping the channel discards chunks already in flight.
		chunks = nil
		if err := s.capture.Stop(); err != nil {
			logging.LogSessionEvent(s.id, "capture_stop_error", zap.Error(err))
		}
	}
	defer stopCapture()

	conv, events, err := s.service.StartConversation(ctx, assistant.ConversationConfig{
		SampleRateIn:  s.cfg.SampleRateIn,
		SampleRateOut: s.cfg.SampleRateOut,
	})
	if err != nil {
		return finish(EndFailed, fmt.Errorf("start conversation: %w", err))
	}
	endConversation := func() {
		if conv == nil {
			return
		}
		if err := conv.End(); err != nil {
			logging.LogSessionEvent(s.id, "conversation_end_error", zap.Error(err))
		}
		conv = nil
	}
	defer endConversation()

	guard := newDeadlineGuard(s.clock)
	guard.arm(deadlinePurposeResponse, s.cfg.ConversationDeadline)
	defer guard.cancel()

	window := newPlaybackWindow(s.clock, s.cfg.SampleRateOut)
	defer window.cancel()

	var (
		sink         audio.PlaybackSink
		sinkClosed   <-chan struct{}
		sinkEnded    bool
		sinkDone     bool
		transcript   []string
		wantCont     bool
		utteranceAt  time.Time
		firstAudioAt time.Time
	)
	markUtteranceEnd := func() {
		if utteranceAt.IsZero() {
			utteranceAt = s.clock.Now()
			s.metrics.ObserveStage(observability.StageOpenToUtteranceEnd, utteranceAt.Sub(startedAt))
		}
	}
	endSink := func() {
		if sink == nil || sinkEnded {
			return
		}
		sinkEnded = true
		if err := sink.End(); err != nil {
			logging.LogSessionEvent(s.id, "playback_end_error", zap.Error(err))
		}
	}
	defer endSink()

	collect := func(reason EndReason, err error) Result {
		res.Transcript = strings.Join(transcript, "\n")
		res.SpokenBytes = window.bytes
		res.SpokenMS = window.audibleMS()
		res.ContinuationRequested = wantCont && reason == EndCompleted
		if s.metrics != nil && res.SpokenMS > 0 {
			s.metrics.ObserveSpokenAudio(window.audible())
		}
		out := finish(reason, err)
		s.metrics.ObserveStage(observability.StageSessionTotal, out.EndedAt.Sub(out.StartedAt))
		if reason == EndCompleted && !firstAudioAt.IsZero() {
			s.metrics.ObserveStage(observability.StageFirstAudioToClose, out.EndedAt.Sub(firstAudioAt))
		}
		return out
	}

	s.setState(StateListening)
	logging.LogSessionEvent(s.id, "started", zap.String("hotword_id", s.cfg.HotwordID))

	for {
		select {
		case <-ctx.Done():
			return collect(EndCancelled, ctx.Err())

		case chunk, ok := <-chunks:
			if !ok {
				return collect(EndFailed, errors.New("capture stream closed"))
			}
			if err := conv.Write(ctx, chunk); err != nil {
				return collect(EndFailed, fmt.Errorf("forward microphone chunk: %w", err))
			}

		case purpose := <-guard.expiries():
			logging.LogSessionEvent(s.id, "deadline_expired", zap.String("purpose", purpose))
			if s.metrics != nil {
				s.metrics.DeadlineExpirations.Inc()
			}
			if purpose == deadlinePurposeDrain {
				return collect(EndFailed, errors.New("playback sink did not close after drain"))
			}
			return collect(EndDeadline, fmt.Errorf("no remote progress while %s", purpose))

		case ev, ok := <-events:
			if !ok {
				if sinkDone {
					// The stream was asked to end after playback drained;
					// closure without a terminal frame is a normal end.
					return collect(EndCompleted, nil)
				}
				return collect(EndFailed, errors.New("assistant stream closed without terminal event"))
			}
			switch ev.Type {
			case assistant.EventEndOfUtterance:
				if s.State() == StateListening {
					s.setState(StateUtteranceComplete)
					stopCapture()
					guard.cancel()
					markUtteranceEnd()
				}

			case assistant.EventTranscript:
				if ev.Transcript != "" {
					transcript = append(transcript, ev.Transcript)
					logging.LogSessionEvent(s.id, "transcript", zap.String("text", ev.Transcript))
				}

			case assistant.EventAudio:
				if sink == nil {
					// Reply audio implies the utterance is over even if no
					// explicit marker arrived.
					stopCapture()
					guard.cancel()
					markUtteranceEnd()
					firstAudioAt = s.clock.Now()
					s.metrics.ObserveStage(observability.StageUtteranceToFirstAudio, firstAudioAt.Sub(utteranceAt))
					opened, err := s.output.Open()
					if err != nil {
						return collect(EndFailed, fmt.Errorf("open playback sink: %w", err))
					}
					sink = opened
					sinkClosed = opened.Closed()
					window.open()
					s.setState(StateSpeaking)
				}
				if !sinkEnded {
					if err := sink.Write(ev.Audio); err != nil {
						return collect(EndFailed, fmt.Errorf("render reply audio: %w", err))
					}
					delay := window.observe(len(ev.Audio))
					if s.metrics != nil {
						s.metrics.ObservePlaybackCloseDelay(delay)
					}
				}

			case assistant.EventEnded:
				wantCont = ev.Continue
				endConversation()
				if sink == nil || sinkDone {
					// Nothing left to play out.
					return collect(EndCompleted, nil)
				}
				// The stream is done; only playback completion remains.
				// Bound that wait in case the player never exits.
				events = nil
				guard.arm(deadlinePurposeDrain, window.remaining()+playbackDrainGrace)

			case assistant.EventError:
				return collect(EndFailed, ev.Err)
			}

		case <-window.closeDue():
			// Everything written so far has had time to play out.
			endSink()
			guard.arm(deadlinePurposeDrain, playbackDrainGrace)

		case <-sinkClosed: // nil until a sink exists, so this arm stays disabled
			if !sinkEnded {
				return collect(EndFailed, errors.New("playback sink closed early"))
			}
			if events == nil {
				return collect(EndCompleted, nil)
			}
			// Playback drained while the remote stream is still open. Sink
			// closure is not terminal: ask the remote to finish and wait
			// for its verdict so a continue flag is not lost.
			sinkDone = true
			sinkClosed = nil
			guard.arm(deadlinePurposeTerminal, s.cfg.ConversationDeadline)
			endConversation()
		}
	}
}
