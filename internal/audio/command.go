package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// bufferFrames bounds how much unread capture is held: 5s of audio. Older
// frames are dropped first.
const bufferFrames = 500

// CommandSource captures from a long-running process writing raw PCM16LE
// 16kHz mono to stdout, e.g. "arecord -q -f S16_LE -r 16000 -c 1 -t raw".
// A pump goroutine keeps the pipe drained so Discard can drop whatever was
// captured while nobody was listening.
type CommandSource struct {
	argv []string
	log  *zap.Logger

	mu  sync.Mutex
	cur *capture
}

// capture is one run of the capture process.
type capture struct {
	cmd    *exec.Cmd
	frames chan Frame
	done   chan struct{}
	err    error // set before done is closed
}

func NewCommandSource(command string, log *zap.Logger) (*CommandSource, error) {
	argv := strings.Fields(command)
	if len(argv) == 0 {
		return nil, errors.New("audio: empty capture command")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CommandSource{argv: argv, log: log.Named("capture")}, nil
}

func (s *CommandSource) startLocked() (*capture, error) {
	if s.cur != nil {
		return s.cur, nil
	}
	cmd := exec.Command(s.argv[0], s.argv[1:]...)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("audio: capture pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("audio: start %s: %w", s.argv[0], err)
	}
	s.log.Info("capture started", zap.Strings("argv", s.argv))
	c := &capture{cmd: cmd, frames: make(chan Frame, bufferFrames), done: make(chan struct{})}
	go c.pump(out)
	s.cur = c
	return c, nil
}

func (c *capture) pump(out io.Reader) {
	defer close(c.done)
	buf := make([]byte, FrameSamples*2)
	for {
		if _, err := io.ReadFull(out, buf); err != nil {
			c.err = fmt.Errorf("audio: capture read: %w", err)
			return
		}
		f := Decode(buf)[0]
		select {
		case c.frames <- f:
		default:
			// full: drop the oldest frame
			select {
			case <-c.frames:
			default:
			}
			select {
			case c.frames <- f:
			default:
			}
		}
	}
}

// ReadFrame starts the capture process on first use.
func (s *CommandSource) ReadFrame(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	c, err := s.startLocked()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	select {
	case f := <-c.frames:
		return f, nil
	case <-c.done:
		select {
		case f := <-c.frames:
			return f, nil
		default:
		}
		s.mu.Lock()
		if s.cur == c {
			s.stopLocked()
		}
		s.mu.Unlock()
		return nil, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Discard drops every frame captured but not yet read and reports how many.
func (s *CommandSource) Discard() int {
	s.mu.Lock()
	c := s.cur
	s.mu.Unlock()
	if c == nil {
		return 0
	}
	n := 0
	for {
		select {
		case <-c.frames:
			n++
		default:
			return n
		}
	}
}

// Close stops the capture process.
func (s *CommandSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	return nil
}

func (s *CommandSource) stopLocked() {
	c := s.cur
	if c == nil {
		return
	}
	s.cur = nil
	if c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
	<-c.done
	_ = c.cmd.Wait()
}

// CommandPlayer pipes each buffer into a fresh playback process. "{rate}" in
// the command is replaced with the buffer's sample rate, e.g.
// "aplay -q -f S16_LE -r {rate} -c 1 -t raw".
type CommandPlayer struct {
	command string
}

func NewCommandPlayer(command string) (*CommandPlayer, error) {
	if strings.TrimSpace(command) == "" {
		return nil, errors.New("audio: empty playback command")
	}
	return &CommandPlayer{command: command}, nil
}

func (p *CommandPlayer) Play(ctx context.Context, pcm []byte, sampleRate int) error {
	if len(pcm) == 0 {
		return nil
	}
	argv := strings.Fields(strings.ReplaceAll(p.command, "{rate}", strconv.Itoa(sampleRate)))
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = bytes.NewReader(pcm)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("audio: play: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
