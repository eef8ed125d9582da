package hotword

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/antoniostano/ascolta/internal/audio"
	"github.com/antoniostano/ascolta/internal/logging"
)

// Gate owns the capture device while the daemon waits for a hotword. Arm
// starts capture and feeds chunks to the detector; on a detection the gate
// stops capture first and only then publishes the trigger, so the next owner
// always finds the microphone released.
type Gate struct {
	capture  audio.CaptureSource
	detector Detector

	triggers chan Detection
	faults   chan error

	mu     sync.Mutex
	armed  bool
	stop   chan struct{}
	looped chan struct{}

	// ClassifierError is invoked for soft detector failures, if set.
	ClassifierError func(err error)
}

func NewGate(capture audio.CaptureSource, detector Detector) *Gate {
	return &Gate{
		capture:  capture,
		detector: detector,
		triggers: make(chan Detection, 1),
		faults:   make(chan error, 1),
	}
}

// Triggers delivers at most one detection per Arm.
func (g *Gate) Triggers() <-chan Detection { return g.triggers }

// Faults delivers a device fault that disarmed the gate, such as the
// recorder process dying while armed.
func (g *Gate) Faults() <-chan error { return g.faults }

// Arm takes ownership of the capture device and begins listening.
func (g *Gate) Arm() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.armed {
		return fmt.Errorf("hotword gate already armed")
	}
	chunks, err := g.capture.Start()
	if err != nil {
		return fmt.Errorf("arm hotword gate: %w", err)
	}
	g.detector.Reset()
	g.armed = true
	g.stop = make(chan struct{})
	g.looped = make(chan struct{})
	go g.listen(chunks, g.stop, g.looped)
	logging.LogHotword("armed")
	return nil
}

func (g *Gate) listen(chunks <-chan []byte, stop, looped chan struct{}) {
	defer close(looped)
	for {
		select {
		case <-stop:
			return
		case chunk, ok := <-chunks:
			if !ok {
				// The capture stream died underneath an armed gate. Release
				// the device state and surface the fault; an armed gate with
				// no microphone would otherwise wait forever.
				g.release()
				logging.LogHotword("capture_stream_lost")
				select {
				case g.faults <- errors.New("capture stream closed while armed"):
				default:
				}
				return
			}
			det, hit, err := g.detector.Feed(chunk)
			if err != nil {
				logging.LogHotword("classifier_error", zap.Error(err))
				if g.ClassifierError != nil {
					g.ClassifierError(err)
				}
				continue
			}
			if !hit {
				continue
			}
			g.release()
			logging.LogHotword("triggered", zap.String("hotword_id", det.HotwordID), zap.Float64("confidence", det.Confidence))
			select {
			case g.triggers <- det:
			default:
			}
			return
		}
	}
}

// Disarm releases the capture device without a trigger.
func (g *Gate) Disarm() {
	g.mu.Lock()
	if !g.armed {
		g.mu.Unlock()
		return
	}
	stop := g.stop
	looped := g.looped
	g.mu.Unlock()

	close(stop)
	<-looped
	g.release()
	logging.LogHotword("disarmed")
}

func (g *Gate) release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.armed {
		return
	}
	g.armed = false
	if err := g.capture.Stop(); err != nil {
		logging.LogHotword("capture_stop_error", zap.Error(err))
	}
}
