package session

import "time"

const bytesPerSample = 2 // PCM16LE mono

// playbackWindow estimates when the speaker has finished rendering everything
// written so far. Synthesized audio arrives faster than it plays, so the wall
// clock since the sink opened lags the audible total; the close timer is
// re-armed on every chunk to fire at the currently estimated completion
// instant. It is owned by the session loop and is not goroutine-safe.
type playbackWindow struct {
	clock      Clock
	sampleRate int

	openedAt time.Time
	bytes    int64
	timer    Timer
	due      chan struct{}
}

func newPlaybackWindow(clock Clock, sampleRate int) *playbackWindow {
	return &playbackWindow{
		clock:      clock,
		sampleRate: sampleRate,
		due:        make(chan struct{}, 1),
	}
}

// open marks the instant the sink opened. Elapsed playback time is measured
// from here.
func (w *playbackWindow) open() {
	w.openedAt = w.clock.Now()
	w.bytes = 0
}

// observe accounts a written chunk and re-arms the close timer for the new
// estimated completion instant. It returns the armed delay, clamped at zero
// when playback is already behind the audible total.
func (w *playbackWindow) observe(n int) time.Duration {
	w.bytes += int64(n)
	delay := w.audible() - w.clock.Now().Sub(w.openedAt)
	if delay < 0 {
		delay = 0
	}
	if w.timer == nil {
		w.timer = w.clock.AfterFunc(delay, w.fire)
	} else {
		w.timer.Reset(delay)
	}
	return delay
}

func (w *playbackWindow) fire() {
	select {
	case w.due <- struct{}{}:
	default:
	}
}

// closeDue fires once the estimated completion instant passes.
func (w *playbackWindow) closeDue() <-chan struct{} { return w.due }

// audible is the total duration of audio written so far.
func (w *playbackWindow) audible() time.Duration {
	if w.sampleRate <= 0 {
		return 0
	}
	return time.Duration(w.bytes) * time.Second / time.Duration(int64(w.sampleRate)*bytesPerSample)
}

func (w *playbackWindow) audibleMS() int64 { return w.audible().Milliseconds() }

// remaining is the estimated playback time still owed for the audio written
// so far, clamped at zero.
func (w *playbackWindow) remaining() time.Duration {
	if w.openedAt.IsZero() {
		return 0
	}
	d := w.audible() - w.clock.Now().Sub(w.openedAt)
	if d < 0 {
		d = 0
	}
	return d
}

// cancel stops the pending close timer, if any.
func (w *playbackWindow) cancel() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}
