package usecase

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"upitquest/internal/audio"
	"upitquest/internal/domain"
	"upitquest/internal/ports"
)

// RecorderConfig controls microphone capture.
type RecorderConfig struct {
	Audio     ports.AudioConfig
	ChunkSize int
}

// SpeechSender transcribes a recording and sends the transcript.
type SpeechSender interface {
	TranscribeAndSend(ctx context.Context, audio []byte) (domain.Turn, error)
}

// Recorder captures push-to-talk audio and hands the WAV to the tutor.
type Recorder struct {
	capture ports.AudioCapture
	sender  SpeechSender
	events  ports.EventSink
	cfg     RecorderConfig

	mu      sync.Mutex
	state   domain.RecorderState
	current *recording
}

type recording struct {
	cancel    context.CancelFunc
	audio     ports.AudioSession
	pcm       bytes.Buffer
	audioDone chan struct{}
}

func NewRecorder(capture ports.AudioCapture, sender SpeechSender, events ports.EventSink, cfg RecorderConfig) *Recorder {
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = 4096
	}
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	return &Recorder{
		capture: capture,
		sender:  sender,
		events:  events,
		cfg:     cfg,
		state:   domain.RecorderIdle,
	}
}

// Start begins capturing. A capture already running is discarded, and of two
// overlapping starts the later one to open its device wins.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	previous := r.current
	r.current = nil
	r.mu.Unlock()

	if previous != nil {
		r.discard(previous)
	}

	captureCtx, cancel := context.WithCancel(ctx)
	session, err := r.capture.Start(captureCtx, r.cfg.Audio)
	if err != nil {
		cancel()
		r.mu.Lock()
		idle := r.current == nil
		if idle {
			r.state = domain.RecorderIdle
		}
		r.mu.Unlock()
		if previous != nil && idle {
			r.events.LoadingChanged(domain.LoadingRecording, false)
		}
		r.events.SessionError(domain.ErrorCodeAudioCapture, err.Error())
		return fmt.Errorf("failed to start audio capture: %w", err)
	}

	active := &recording{
		cancel:    cancel,
		audio:     session,
		audioDone: make(chan struct{}),
	}

	r.mu.Lock()
	loser := r.current
	r.current = active
	r.state = domain.RecorderRecording
	r.mu.Unlock()

	go pumpAudioChunks(active.audio, &active.pcm, r.cfg.ChunkSize, r.events, active.audioDone)

	if loser != nil {
		r.discard(loser)
	}
	if previous == nil && loser == nil {
		r.events.LoadingChanged(domain.LoadingRecording, true)
	}
	return nil
}

// Stop ends the capture, then transcribes and sends what was said.
func (r *Recorder) Stop(ctx context.Context) (domain.Turn, error) {
	active, err := r.take(domain.RecorderTranscribing)
	if err != nil {
		return domain.Turn{}, err
	}
	defer r.settle()

	if err := active.audio.Stop(); err != nil {
		r.events.SessionError(domain.ErrorCodeAudioCapture, "failed to stop audio capture cleanly")
	}
	<-active.audioDone
	_ = active.audio.Close()
	active.cancel()
	r.events.LoadingChanged(domain.LoadingRecording, false)

	if active.pcm.Len() == 0 {
		return domain.Turn{}, fmt.Errorf("no audio captured: %w", domain.ErrEmptyInput)
	}

	wav := audio.WrapPCMAsWAV(active.pcm.Bytes(), r.cfg.Audio.SampleRate, r.cfg.Audio.Channels, 16)
	return r.sender.TranscribeAndSend(ctx, wav)
}

// Abort discards the capture without transcription.
func (r *Recorder) Abort() error {
	active, err := r.take(domain.RecorderIdle)
	if err != nil {
		return err
	}
	r.discard(active)
	r.events.LoadingChanged(domain.LoadingRecording, false)
	return nil
}

func (r *Recorder) Status() domain.RecorderState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Recorder) take(next domain.RecorderState) (*recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return nil, domain.ErrNoActiveRecording
	}
	active := r.current
	r.current = nil
	r.state = next
	return active, nil
}

// settle returns to idle unless a new capture started meanwhile.
func (r *Recorder) settle() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		r.state = domain.RecorderIdle
	}
}

func (r *Recorder) discard(active *recording) {
	active.cancel()
	_ = active.audio.Stop()
	<-active.audioDone
	_ = active.audio.Close()
}
