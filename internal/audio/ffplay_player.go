package audio

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"sync"

	"upitquest/internal/ports"
)

// FFPlayPlayer plays encoded audio clips through ffplay, one at a time.
type FFPlayPlayer struct {
	command string

	mu      sync.Mutex
	current *clip
}

func NewFFPlayPlayer(command string) *FFPlayPlayer {
	if command == "" {
		command = "ffplay"
	}
	return &FFPlayPlayer{command: command}
}

// Play replaces whatever clip is playing with audio at volume (0..1).
func (p *FFPlayPlayer) Play(audio []byte, volume float64) (ports.PlaybackSession, error) {
	if len(audio) == 0 {
		return nil, errors.New("no audio to play")
	}

	p.mu.Lock()
	previous := p.current
	p.current = nil
	p.mu.Unlock()
	if previous != nil {
		_ = previous.Stop()
	}

	cmd := exec.Command(p.command,
		"-nodisp",
		"-autoexit",
		"-hide_banner",
		"-loglevel", "error",
		"-volume", strconv.Itoa(ffplayVolume(volume)),
		"-i", "pipe:0",
	)
	cmd.Stdin = bytes.NewReader(audio)

	proc, err := startProcess(cmd, "ffplay")
	if err != nil {
		return nil, err
	}
	if err := proc.failedEarly("playback"); err != nil {
		return nil, err
	}

	c := &clip{proc: proc}
	p.mu.Lock()
	p.current = c
	p.mu.Unlock()
	return c, nil
}

// ffplayVolume maps 0..1 onto ffplay's 0..100 scale.
func ffplayVolume(volume float64) int {
	if math.IsNaN(volume) || volume < 0 {
		volume = 0
	}
	if volume > 1 {
		volume = 1
	}
	return int(math.Round(volume * 100))
}

type clip struct {
	proc *process
}

func (c *clip) Done() <-chan struct{} {
	return c.proc.exited
}

func (c *clip) Stop() error {
	if err := c.proc.stop(); err != nil {
		return fmt.Errorf("failed to stop playback: %w", err)
	}
	return nil
}
