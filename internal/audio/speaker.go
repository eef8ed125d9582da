package audio

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/antoniostano/ascolta/internal/logging"
)

// CommandOutput opens playback sinks backed by an external player process
// reading raw s16le from stdin. The default player is ffplay.
type CommandOutput struct {
	command    string
	sampleRate int
}

// NewCommandOutput builds a playback output around the given player command
// line. An empty command selects ffplay with flags for raw mono PCM16LE.
func NewCommandOutput(command string, sampleRate int) *CommandOutput {
	return &CommandOutput{command: command, sampleRate: sampleRate}
}

func (o *CommandOutput) argv() []string {
	if strings.TrimSpace(o.command) != "" {
		return strings.Fields(o.command)
	}
	// ffplay takes -ch_layout rather than ffmpeg's -ac for channel count.
	return []string{
		"ffplay",
		"-hide_banner", "-loglevel", "error", "-nostats", "-nodisp", "-autoexit",
		"-f", "s16le",
		"-ch_layout", "mono",
		"-ar", strconv.Itoa(o.sampleRate),
		"-i", "-",
	}
}

// Open starts a fresh player process and returns a sink bound to it.
func (o *CommandOutput) Open() (PlaybackSink, error) {
	argv := o.argv()
	cmd := exec.Command(argv[0], argv[1:]...)
	if runtime.GOOS == "darwin" && os.Getenv("SDL_AUDIODRIVER") == "" {
		// SDL can pick a silent dummy backend on macOS; pin CoreAudio.
		cmd.Env = append(os.Environ(), "SDL_AUDIODRIVER=coreaudio")
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("player stdin pipe: %w", err)
	}
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("start player %q: %w", argv[0], err)
	}

	s := &processSink{cmd: cmd, stdin: stdin, closed: make(chan struct{})}
	go s.wait()
	logging.LogAudio(argv[0], "playback_opened", zap.Int("sample_rate", o.sampleRate))
	return s, nil
}

type processSink struct {
	cmd    *exec.Cmd
	closed chan struct{}

	mu     sync.Mutex
	stdin  io.WriteCloser
	ending bool
}

func (s *processSink) wait() {
	_ = s.cmd.Wait()
	close(s.closed)
}

func (s *processSink) Write(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	s.mu.Lock()
	stdin := s.stdin
	ending := s.ending
	s.mu.Unlock()
	if stdin == nil || ending {
		return fmt.Errorf("playback sink closed")
	}
	if _, err := stdin.Write(p); err != nil {
		return fmt.Errorf("playback write: %w", err)
	}
	return nil
}

// End closes the player's stdin so it drains buffered audio and exits. The
// Closed channel fires once the process is gone.
func (s *processSink) End() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ending {
		return nil
	}
	s.ending = true
	if s.stdin != nil {
		err := s.stdin.Close()
		s.stdin = nil
		if err != nil {
			return fmt.Errorf("playback end: %w", err)
		}
	}
	return nil
}

func (s *processSink) Closed() <-chan struct{} { return s.closed }
