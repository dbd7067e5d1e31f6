package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"

	"upitquest/internal/ports"
)

// FFMPEGCapture records microphone audio as raw s16le PCM.
type FFMPEGCapture struct {
	command string
}

func NewFFMPEGCapture(command string) *FFMPEGCapture {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFMPEGCapture{command: command}
}

func (c *FFMPEGCapture) Start(ctx context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	cfg = withCaptureDefaults(cfg)

	cmd := exec.CommandContext(ctx, c.command,
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-",
	)
	// A pipe we own, unlike cmd.StdoutPipe, stays readable after Wait so
	// the tail of the recording drains to EOF.
	reader, writer, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	cmd.Stdout = writer

	proc, err := startProcess(cmd, "ffmpeg")
	_ = writer.Close()
	if err != nil {
		_ = reader.Close()
		return nil, err
	}
	if err := proc.failedEarly("capture"); err != nil {
		_ = reader.Close()
		return nil, err
	}
	select {
	case <-proc.exited:
		_ = reader.Close()
		return nil, errors.New("ffmpeg exited before capture started")
	default:
	}

	return &captureSession{stdout: reader, proc: proc}, nil
}

func withCaptureDefaults(cfg ports.AudioConfig) ports.AudioConfig {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}
	return cfg
}

type captureSession struct {
	stdout io.ReadCloser
	proc   *process
}

func (s *captureSession) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

// Stop ends the recording; buffered audio stays readable until EOF.
func (s *captureSession) Stop() error {
	return s.proc.stop()
}

func (s *captureSession) Close() error {
	err := s.Stop()
	if closeErr := s.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) && err == nil {
		err = closeErr
	}
	return err
}
