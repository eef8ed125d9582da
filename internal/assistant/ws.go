package assistant

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/antoniostano/ascolta/internal/reliability"
)

type WSConfig struct {
	URL    string
	APIKey string
}

// WSService talks to the assistant over a JSON websocket protocol: the client
// streams base64 microphone chunks up, the server streams audio, transcripts
// and lifecycle frames back.
type WSService struct {
	cfg WSConfig
}

func NewWSService(cfg WSConfig) (*WSService, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("assistant websocket url is required")
	}
	return &WSService{cfg: cfg}, nil
}

func (s *WSService) StartConversation(ctx context.Context, cfg ConversationConfig) (Conversation, <-chan Event, error) {
	headers := http.Header{}
	if s.cfg.APIKey != "" {
		headers.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.cfg.URL, headers)
	if err != nil {
		return nil, nil, fmt.Errorf("dial assistant websocket: %w", err)
	}

	events := make(chan Event, 256)
	c := &wsConversation{conn: conn, events: events}
	if err := c.writeJSON(map[string]any{
		"type":            "config",
		"sample_rate_in":  cfg.SampleRateIn,
		"sample_rate_out": cfg.SampleRateOut,
		"encoding":        "LINEAR16",
	}); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("send conversation config: %w", err)
	}
	go c.readLoop()
	return c, events, nil
}

type wsConversation struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	events    chan Event

	mu      sync.Mutex
	closing bool
}

func (c *wsConversation) Write(_ context.Context, chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	return c.writeJSON(map[string]any{
		"type":  "audio",
		"audio": base64.StdEncoding.EncodeToString(chunk),
	})
}

func (c *wsConversation) End() error {
	c.mu.Lock()
	c.closing = true
	c.mu.Unlock()
	err := c.writeJSON(map[string]any{"type": "end"})
	c.safeClose()
	return err
}

func (c *wsConversation) isClosing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closing
}

func (c *wsConversation) writeJSON(payload map[string]any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(payload)
}

// readLoop is the sole sender on events and the only place the channel is
// closed, so terminal delivery can never race a concurrent close.
func (c *wsConversation) readLoop() {
	defer close(c.events)
	defer c.safeClose()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !c.isClosing() {
				c.events <- Event{Type: EventError, Err: fmt.Errorf("assistant stream: %w", err)}
			}
			return
		}
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			continue
		}
		switch asString(raw["type"]) {
		case "audio":
			pcm, err := base64.StdEncoding.DecodeString(asString(raw["audio"]))
			if err != nil || len(pcm) == 0 {
				continue
			}
			c.events <- Event{Type: EventAudio, Audio: pcm}
		case "end_of_utterance":
			c.events <- Event{Type: EventEndOfUtterance}
		case "transcript":
			c.events <- Event{Type: EventTranscript, Transcript: asString(raw["text"])}
		case "ended":
			c.events <- Event{Type: EventEnded, Continue: asBool(raw["continue"])}
			return
		case "error":
			code := asString(raw["code"])
			if reliability.IsRetryableRealtimeMessageType(code) {
				// Overload and benign resets end this conversation but
				// should not be treated as daemon faults.
				c.events <- Event{Type: EventError, Err: fmt.Errorf("assistant %s: %s: %w",
					code, asString(raw["error"]), reliability.ErrTransportReset)}
				return
			}
			c.events <- Event{Type: EventError, Err: fmt.Errorf("assistant: %s", asString(raw["error"]))}
			return
		}
	}
}

func (c *wsConversation) safeClose() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func asBool(v any) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return false
}
