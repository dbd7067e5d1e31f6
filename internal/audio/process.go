// Package audio drives ffmpeg for microphone capture and ffplay for speech
// playback.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"
)

const (
	startupGrace = 250 * time.Millisecond
	stopGrace    = 1200 * time.Millisecond
)

// process tracks one child command and its exit.
type process struct {
	cmd    *exec.Cmd
	stderr *bytes.Buffer
	exited chan struct{}

	waitErr error

	stopOnce sync.Once
	stopErr  error
}

func startProcess(cmd *exec.Cmd, name string) (*process, error) {
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", name, err)
	}

	p := &process{cmd: cmd, stderr: stderr, exited: make(chan struct{})}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.exited)
	}()
	return p, nil
}

// failedEarly reports a process that exits with an error within the startup
// grace period, which means the device or input was rejected.
func (p *process) failedEarly(name string) error {
	select {
	case <-p.exited:
		if p.waitErr != nil {
			return fmt.Errorf("%s exited before %s started: %w: %s", p.cmd.Path, name, p.waitErr, trimOutput(p.stderr.String()))
		}
		return nil
	case <-time.After(startupGrace):
		return nil
	}
}

// stop interrupts the process, escalating to kill after stopGrace.
func (p *process) stop() error {
	p.stopOnce.Do(func() {
		select {
		case <-p.exited:
		default:
			if p.cmd.Process != nil {
				_ = p.cmd.Process.Signal(os.Interrupt)
			}
			select {
			case <-p.exited:
			case <-time.After(stopGrace):
				if p.cmd.Process != nil {
					_ = p.cmd.Process.Kill()
				}
				<-p.exited
			}
		}

		p.stopErr = normalizeStopErr(p.waitErr)
		if p.stopErr != nil && p.stderr.Len() > 0 {
			p.stopErr = fmt.Errorf("%w: %s", p.stopErr, trimOutput(p.stderr.String()))
		}
	})
	return p.stopErr
}

// normalizeStopErr ignores exit statuses caused by our own signals.
func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func trimOutput(input string) string {
	if input == "" {
		return input
	}
	return string(bytes.TrimSpace([]byte(input)))
}
