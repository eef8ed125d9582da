package hotword

import (
	"math"
	"time"
)

// Detection reports a recognized hotword in the capture stream.
type Detection struct {
	HotwordID  string
	Confidence float64
	At         time.Time
}

// Detector classifies successive PCM16LE capture chunks. Feed returns the
// detection and true when the chunk completes a hotword, false otherwise.
// Classification errors are soft: the caller logs them and keeps feeding.
type Detector interface {
	Feed(chunk []byte) (Detection, bool, error)
	Reset()
}

// EnergyDetector is a self-contained stand-in for a trained keyword model: it
// fires when the signal stays above an RMS threshold for a sustained window,
// then requires silence before it can fire again. Confidence is the peak RMS
// seen during the window.
type EnergyDetector struct {
	hotwordID  string
	threshold  float64
	window     time.Duration
	sampleRate int

	loudFor time.Duration
	peak    float64
	latched bool
}

// NewEnergyDetector builds a detector for the given hotword identity.
// threshold is a full-scale RMS fraction in (0, 1].
func NewEnergyDetector(hotwordID string, threshold float64, window time.Duration, sampleRate int) *EnergyDetector {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.7
	}
	if window <= 0 {
		window = 700 * time.Millisecond
	}
	return &EnergyDetector{
		hotwordID:  hotwordID,
		threshold:  threshold,
		window:     window,
		sampleRate: sampleRate,
	}
}

func (d *EnergyDetector) Feed(chunk []byte) (Detection, bool, error) {
	if len(chunk) < 2 || d.sampleRate <= 0 {
		return Detection{}, false, nil
	}
	rms := rmsPCM16LE(chunk)
	dur := time.Duration(len(chunk)/2) * time.Second / time.Duration(d.sampleRate)

	if rms < d.threshold {
		d.loudFor = 0
		d.peak = 0
		d.latched = false
		return Detection{}, false, nil
	}
	if d.latched {
		return Detection{}, false, nil
	}
	d.loudFor += dur
	if rms > d.peak {
		d.peak = rms
	}
	if d.loudFor <= d.window {
		return Detection{}, false, nil
	}
	det := Detection{HotwordID: d.hotwordID, Confidence: d.peak, At: time.Now()}
	d.latched = true
	d.loudFor = 0
	d.peak = 0
	return det, true, nil
}

func (d *EnergyDetector) Reset() {
	d.loudFor = 0
	d.peak = 0
	d.latched = false
}

func rmsPCM16LE(chunk []byte) float64 {
	n := len(chunk) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := int16(uint16(chunk[i*2]) | uint16(chunk[i*2+1])<<8)
		v := float64(s) / 32768
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
