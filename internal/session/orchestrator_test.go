package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/antoniostano/ascolta/internal/assistant"
	"github.com/antoniostano/ascolta/internal/eventlog"
	"github.com/antoniostano/ascolta/internal/hotword"
)

// chainService scripts one conversation per StartConversation call: each
// entry is the terminal event the conversation delivers immediately.
type chainService struct {
	mu     sync.Mutex
	script []assistant.Event
	errs   []error
	starts int
}

func (s *chainService) StartConversation(_ context.Context, _ assistant.ConversationConfig) (assistant.Conversation, <-chan assistant.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.starts
	s.starts++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, nil, s.errs[i]
	}
	events := make(chan assistant.Event, 4)
	if i < len(s.script) {
		events <- s.script[i]
	}
	close(events)
	return &convFake{}, events, nil
}

func (s *chainService) startCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}

// hitDetector fires on the first chunk of each armed period.
type hitDetector struct{}

func (hitDetector) Feed(_ []byte) (hotword.Detection, bool, error) {
	return hotword.Detection{HotwordID: "ascolta", Confidence: 0.9, At: time.Now()}, true, nil
}

func (hitDetector) Reset() {}

type chimeFake struct {
	mu    sync.Mutex
	plays int
}

func (c *chimeFake) Play() {
	c.mu.Lock()
	c.plays++
	c.mu.Unlock()
}

func (c *chimeFake) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.plays
}

func newTestOrchestrator(svc assistant.Service, capture *captureFake, store eventlog.Store, chime Chime) *Orchestrator {
	gate := hotword.NewGate(capture, hitDetector{})
	return NewOrchestrator(OrchestratorConfig{
		HotwordID:            "ascolta",
		SampleRateIn:         16000,
		SampleRateOut:        24000,
		ConversationDeadline: 10 * time.Second,
		ResetBackoffBase:     time.Millisecond,
		ResetBackoffCap:      4 * time.Millisecond,
	}, gate, capture, &outputFake{}, svc, chime, SystemClock, nil, store, nil)
}

func TestOrchestratorChainsContinuation(t *testing.T) {
	svc := &chainService{script: []assistant.Event{
		{Type: assistant.EventEnded, Continue: true},
		{Type: assistant.EventEnded},
	}}
	capture := &captureFake{}
	store := eventlog.NewInMemoryStore(16)
	chime := &chimeFake{}
	o := newTestOrchestrator(svc, capture, store, chime)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	waitFor(t, "gate armed", func() bool {
		capture.mu.Lock()
		defer capture.mu.Unlock()
		return capture.starts == 1 && capture.ch != nil
	})
	capture.send(make([]byte, 3200))

	waitFor(t, "two chained conversations", func() bool { return svc.startCount() == 2 })
	waitFor(t, "gate re-armed after the chain", func() bool {
		starts, _ := capture.counts()
		return starts == 4 // gate, session, session, gate again
	})

	if got := chime.count(); got != 1 {
		t.Fatalf("chime plays = %d, want 1 for the whole chain", got)
	}
	recs, err := store.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("recorded sessions = %d, want 2", len(recs))
	}
	if !recs[1].Continued || recs[0].Continued {
		t.Fatalf("continuation flags = [%v %v], want first true, second false",
			recs[1].Continued, recs[0].Continued)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}
}

func TestOrchestratorBacksOffAfterTransientReset(t *testing.T) {
	resetErr := errors.New("Received RST_STREAM with error code 0")
	svc := &chainService{errs: []error{resetErr, nil}, script: []assistant.Event{
		{}, // unused: first start fails
		{Type: assistant.EventEnded},
	}}
	capture := &captureFake{}
	store := eventlog.NewInMemoryStore(16)
	o := newTestOrchestrator(svc, capture, store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = o.Run(ctx) }()

	waitFor(t, "gate armed", func() bool {
		capture.mu.Lock()
		defer capture.mu.Unlock()
		return capture.starts == 1 && capture.ch != nil
	})
	capture.send(make([]byte, 3200))

	// First session fails on the reset; the gate must come back regardless.
	waitFor(t, "gate re-armed after transient reset", func() bool {
		starts, _ := capture.counts()
		return starts >= 3 // gate, failed session, gate again
	})

	recs, err := store.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("recorded sessions = %d, want 1", len(recs))
	}
	if recs[0].EndReason != string(EndFailed) {
		t.Fatalf("end reason = %s, want %s", recs[0].EndReason, EndFailed)
	}
	if recs[0].Error == "" {
		t.Fatal("failed session must record its error")
	}
}

func TestOrchestratorStopsOnGateFault(t *testing.T) {
	svc := &chainService{}
	capture := &captureFake{}
	o := newTestOrchestrator(svc, capture, eventlog.NewInMemoryStore(4), nil)

	done := make(chan error, 1)
	go func() { done <- o.Run(context.Background()) }()

	waitFor(t, "gate armed", func() bool {
		capture.mu.Lock()
		defer capture.mu.Unlock()
		return capture.starts == 1 && capture.ch != nil
	})
	// Recorder death closes the chunk stream under the armed gate.
	capture.mu.Lock()
	close(capture.ch)
	capture.mu.Unlock()

	select {
	case err := <-done:
		if err == nil || errors.Is(err, context.Canceled) {
			t.Fatalf("Run = %v, want device fault error", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after gate device fault")
	}
	if _, stops := capture.counts(); stops != 1 {
		t.Fatalf("capture stops = %d, want 1 (gate released on fault)", stops)
	}
}

func TestOrchestratorStatusSnapshot(t *testing.T) {
	svc := &chainService{script: []assistant.Event{{Type: assistant.EventEnded}}}
	capture := &captureFake{}
	o := newTestOrchestrator(svc, capture, eventlog.NewInMemoryStore(4), nil)

	if got := o.Status(); got.Phase != PhaseStopped {
		t.Fatalf("initial phase = %s, want %s", got.Phase, PhaseStopped)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	waitFor(t, "armed phase", func() bool { return o.Status().Phase == PhaseArmed })
	capture.send(make([]byte, 3200))
	waitFor(t, "completed session in status", func() bool {
		s := o.Status()
		return s.CompletedSessions == 1 && s.LastEndReason == string(EndCompleted)
	})

	cancel()
	<-done
	if got := o.Status(); got.Phase != PhaseStopped {
		t.Fatalf("phase after shutdown = %s, want %s", got.Phase, PhaseStopped)
	}
}
