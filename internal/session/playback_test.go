package session

import (
	"testing"
	"time"
)

func TestPlaybackWindowArmsForAudibleTotal(t *testing.T) {
	clock := newFakeClock()
	w := newPlaybackWindow(clock, 24000)
	w.open()

	// 1s of PCM16LE mono at 24kHz.
	delay := w.observe(48000)
	if delay != time.Second {
		t.Fatalf("armed delay = %v, want 1s", delay)
	}
	if got := w.audibleMS(); got != 1000 {
		t.Fatalf("audibleMS = %d, want 1000", got)
	}
}

func TestPlaybackWindowSubtractsElapsed(t *testing.T) {
	clock := newFakeClock()
	w := newPlaybackWindow(clock, 24000)
	w.open()
	w.observe(48000)

	clock.Advance(400 * time.Millisecond)
	select {
	case <-w.closeDue():
		t.Fatal("close fired before the audible total elapsed")
	default:
	}

	// Another second of audio: total 2s audible, 400ms already elapsed.
	delay := w.observe(48000)
	if delay != 1600*time.Millisecond {
		t.Fatalf("re-armed delay = %v, want 1.6s", delay)
	}
}

func TestPlaybackWindowClampsToZero(t *testing.T) {
	clock := newFakeClock()
	w := newPlaybackWindow(clock, 24000)
	w.open()
	w.observe(4800) // 100ms audible
	clock.Advance(5 * time.Second)
	<-w.due // drain the fire from the advance
	if delay := w.observe(4800); delay != 0 {
		t.Fatalf("delay = %v, want 0 when playback is already behind", delay)
	}
}

func TestPlaybackWindowCloseFiresOnceDue(t *testing.T) {
	clock := newFakeClock()
	w := newPlaybackWindow(clock, 24000)
	w.open()
	w.observe(48000)
	clock.Advance(time.Second)
	select {
	case <-w.closeDue():
	default:
		t.Fatal("close did not fire at the estimated completion instant")
	}
}

func TestPlaybackWindowCancelStopsTimer(t *testing.T) {
	clock := newFakeClock()
	w := newPlaybackWindow(clock, 24000)
	w.open()
	w.observe(48000)
	w.cancel()
	clock.Advance(2 * time.Second)
	select {
	case <-w.closeDue():
		t.Fatal("cancelled close timer fired")
	default:
	}
}
