package audio

// CaptureSource wraps a microphone as a push-based chunk producer with an
// explicit start/stop lifecycle. At most one consumer holds the stream at a
// time; chunks buffered in flight when Stop returns must be discarded by the
// consumer, not the source.
type CaptureSource interface {
	Start() (<-chan []byte, error)
	Stop() error
}

// PlaybackSink renders raw PCM16LE mono audio. End drains remaining bytes;
// Closed is closed exactly once after draining completes.
type PlaybackSink interface {
	Write(p []byte) error
	End() error
	Closed() <-chan struct{}
}

// Output opens playback sinks. Each speech session opens its own sink on the
// first synthesized audio chunk.
type Output interface {
	Open() (PlaybackSink, error)
}
