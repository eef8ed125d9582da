package audio

import (
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/antoniostano/ascolta/internal/logging"
)

const captureChunkSize = 4096

// CommandCapture records microphone audio by running an external recorder
// process and streaming raw PCM16LE from its stdout. It is restartable: each
// Start spawns a fresh process, and Stop tears it down synchronously.
type CommandCapture struct {
	command    string
	sampleRate int
	dropped    atomic.Uint64

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdout  io.ReadCloser
	done    chan struct{}
	running bool
}

// NewCommandCapture builds a capture source around the given recorder command
// line. An empty command selects a platform default.
func NewCommandCapture(command string, sampleRate int) *CommandCapture {
	return &CommandCapture{command: command, sampleRate: sampleRate}
}

func defaultRecorderArgs(sampleRate int) []string {
	rate := strconv.Itoa(sampleRate)
	if runtime.GOOS == "linux" {
		return []string{"arecord", "-q", "-f", "S16_LE", "-r", rate, "-c", "1", "-t", "raw", "-"}
	}
	// sox ships the rec front end on macOS and elsewhere.
	return []string{"rec", "-q", "-t", "raw", "-r", rate, "-e", "signed", "-b", "16", "-c", "1", "-"}
}

func (c *CommandCapture) argv() []string {
	if strings.TrimSpace(c.command) == "" {
		return defaultRecorderArgs(c.sampleRate)
	}
	return strings.Fields(c.command)
}

// Start launches the recorder process and returns the chunk stream. The
// channel is closed when the process exits or Stop is called.
func (c *CommandCapture) Start() (<-chan []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil, fmt.Errorf("capture already running")
	}

	argv := c.argv()
	cmd := exec.Command(argv[0], argv[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("capture stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start recorder %q: %w", argv[0], err)
	}

	c.cmd = cmd
	c.stdout = stdout
	c.done = make(chan struct{})
	c.running = true

	out := make(chan []byte, 16)
	go c.pump(cmd, stdout, out, c.done)
	logging.LogAudio(argv[0], "capture_started", zap.Int("sample_rate", c.sampleRate))
	return out, nil
}

func (c *CommandCapture) pump(cmd *exec.Cmd, stdout io.ReadCloser, out chan<- []byte, done chan struct{}) {
	defer close(out)
	defer close(done)
	buf := make([]byte, captureChunkSize)
	var droppedHere uint64
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case out <- chunk:
			default:
				// Stop must not wait behind a stalled consumer; drop,
				// but keep the gap countable.
				droppedHere++
				c.dropped.Add(1)
			}
		}
		if err != nil {
			if err != io.EOF {
				logging.LogAudio(cmd.Path, "capture_read_error", zap.Error(err))
			}
			if droppedHere > 0 {
				logging.LogAudio(cmd.Path, "capture_chunks_dropped", zap.Uint64("count", droppedHere))
			}
			_ = cmd.Wait()
			return
		}
	}
}

// Dropped reports how many chunks have been discarded across all runs
// because the consumer lagged behind the recorder.
func (c *CommandCapture) Dropped() uint64 { return c.dropped.Load() }

// Stop kills the recorder process and waits for the stream goroutine to
// finish. Chunks already buffered on the channel remain for the consumer to
// drain or discard.
func (c *CommandCapture) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	cmd := c.cmd
	stdout := c.stdout
	done := c.done
	c.cmd = nil
	c.stdout = nil
	c.done = nil
	c.running = false
	c.mu.Unlock()

	_ = stdout.Close()
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	<-done
	logging.LogAudio(cmd.Path, "capture_stopped")
	return nil
}
