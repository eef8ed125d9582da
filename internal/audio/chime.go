package audio

import (
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/antoniostano/ascolta/internal/logging"
)

// Chime plays a short acknowledgement sound when the hotword fires. Playback
// is fire-and-forget: a missing player or asset degrades to silence, never to
// a failed session.
type Chime struct {
	command string
	path    string
}

// NewChime builds a chime around a WAV asset and an optional player command.
// If the asset does not exist it is synthesized as a two-note tone.
func NewChime(command, path string, sampleRate int) *Chime {
	c := &Chime{command: command, path: path}
	if err := c.ensureAsset(sampleRate); err != nil {
		logging.LogWarn("chime asset unavailable", zap.String("path", path), zap.Error(err))
	}
	return c
}

func (c *Chime) ensureAsset(sampleRate int) error {
	if _, err := os.Stat(c.path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}
	pcm := append(
		sineTonePCM16LE(880, sampleRate, 90*time.Millisecond, 0.25),
		sineTonePCM16LE(1320, sampleRate, 120*time.Millisecond, 0.25)...,
	)
	return WriteWAVPCM16LEFile(c.path, pcm, sampleRate)
}

func (c *Chime) argv() []string {
	if strings.TrimSpace(c.command) != "" {
		return append(strings.Fields(c.command), c.path)
	}
	if runtime.GOOS == "darwin" {
		return []string{"afplay", c.path}
	}
	return []string{"aplay", "-q", c.path}
}

// Play starts chime playback without waiting for it to finish.
func (c *Chime) Play() {
	if _, err := os.Stat(c.path); err != nil {
		return
	}
	argv := c.argv()
	go func() {
		if err := exec.Command(argv[0], argv[1:]...).Run(); err != nil {
			logging.LogWarn("chime playback failed", zap.String("player", argv[0]), zap.Error(err))
		}
	}()
}

func sineTonePCM16LE(freqHz, sampleRate int, d time.Duration, amp float64) []byte {
	if freqHz <= 0 || sampleRate <= 0 || d <= 0 {
		return nil
	}
	if amp <= 0 || amp > 1 {
		amp = 0.2
	}
	samples := int(float64(sampleRate) * d.Seconds())
	out := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		t := float64(i) / float64(sampleRate)
		v := amp * math.Sin(2*math.Pi*float64(freqHz)*t)
		s := int16(v * 32767)
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}
