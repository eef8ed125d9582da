// Package assistant defines the contract between the session controller and a
// remote voice assistant service, plus the concrete websocket-backed client.
package assistant

import "context"

type EventType string

const (
	// EventAudio carries a chunk of synthesized PCM16LE speech.
	EventAudio EventType = "audio"
	// EventEndOfUtterance marks that the service considers the user done
	// speaking; microphone forwarding stops at this point.
	EventEndOfUtterance EventType = "end_of_utterance"
	// EventTranscript carries recognized user text or spoken assistant text.
	EventTranscript EventType = "transcript"
	// EventEnded is terminal: the exchange is over. Continue asks the
	// controller to open a follow-up conversation immediately.
	EventEnded EventType = "ended"
	// EventError is terminal and carries the underlying failure.
	EventError EventType = "error"
)

type Event struct {
	Type       EventType
	Audio      []byte
	Transcript string
	Continue   bool
	Err        error
}

// ConversationConfig fixes the audio formats for one exchange.
type ConversationConfig struct {
	SampleRateIn  int
	SampleRateOut int
}

// Conversation is the upstream half of one exchange: the controller writes
// captured microphone chunks and closes the stream when the session ends.
type Conversation interface {
	Write(ctx context.Context, chunk []byte) error
	End() error
}

// Service opens conversations with the remote assistant. Implementations
// must close the event channel after delivering a terminal event.
type Service interface {
	StartConversation(ctx context.Context, cfg ConversationConfig) (Conversation, <-chan Event, error)
}
