package assistant

import (
	"bytes"
	"context"
	"sync"
)

// MockService is a local fallback used when no websocket endpoint is
// configured. After a fixed number of microphone chunks it declares the
// utterance complete, emits a canned transcript and reply audio, and ends the
// exchange.
type MockService struct {
	// ChunksPerUtterance sets how many mic chunks count as one utterance.
	ChunksPerUtterance int
	// ReplyAudio is the PCM served back as assistant speech.
	ReplyAudio []byte
	// ContinueFirst makes the first exchange request a follow-up.
	ContinueFirst bool

	mu       sync.Mutex
	sessions int
}

func NewMockService() *MockService {
	return &MockService{
		ChunksPerUtterance: 8,
		ReplyAudio:         bytes.Repeat([]byte{0x00, 0x10}, 2400),
	}
}

func (m *MockService) StartConversation(_ context.Context, _ ConversationConfig) (Conversation, <-chan Event, error) {
	m.mu.Lock()
	m.sessions++
	cont := m.ContinueFirst && m.sessions == 1
	m.mu.Unlock()

	events := make(chan Event, 64)
	c := &mockConversation{
		events:    events,
		remaining: m.ChunksPerUtterance,
		reply:     m.ReplyAudio,
		cont:      cont,
	}
	return c, events, nil
}

type mockConversation struct {
	mu        sync.Mutex
	events    chan Event
	remaining int
	reply     []byte
	cont      bool
	done      bool
}

func (c *mockConversation) Write(_ context.Context, chunk []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done || len(chunk) == 0 {
		return nil
	}
	c.remaining--
	if c.remaining > 0 {
		return nil
	}
	c.done = true
	c.events <- Event{Type: EventEndOfUtterance}
	c.events <- Event{Type: EventTranscript, Transcript: "simulated voice input"}
	if len(c.reply) > 0 {
		c.events <- Event{Type: EventAudio, Audio: c.reply}
	}
	c.events <- Event{Type: EventEnded, Continue: c.cont}
	close(c.events)
	return nil
}

func (c *mockConversation) End() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return nil
	}
	c.done = true
	c.events <- Event{Type: EventEnded}
	close(c.events)
	return nil
}
