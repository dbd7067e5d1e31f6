package ports

import (
	"context"
	"io"

	"upitquest/internal/domain"
)

// ChatCompleter sends the wire conversation and returns the tutor's reply.
type ChatCompleter interface {
	CompleteChat(ctx context.Context, apiKey string, messages []domain.Turn) (domain.Turn, error)
}

// SpeechSynthesizer turns text into an encoded audio payload.
type SpeechSynthesizer interface {
	SynthesizeSpeech(ctx context.Context, apiKey string, text string) ([]byte, error)
}

// SpeechTranscriber turns a recorded WAV payload into text.
type SpeechTranscriber interface {
	TranscribeSpeech(ctx context.Context, apiKey string, audio []byte) (string, error)
}

// Gateway is the boundary over the three remote AI services.
type Gateway interface {
	ChatCompleter
	SpeechSynthesizer
	SpeechTranscriber
}

// PlaybackSession is one audio clip being played.
type PlaybackSession interface {
	// Done is closed when the clip ends naturally or is stopped.
	Done() <-chan struct{}
	Stop() error
}

// AudioPlayer is the single shared audio output.
type AudioPlayer interface {
	Play(audio []byte, volume float64) (PlaybackSession, error)
}

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// SpeechNormalizer prepares assistant text for synthesis.
type SpeechNormalizer interface {
	Normalize(text string) string
}

// PreferenceSource exposes the current credential and autoplay flag.
type PreferenceSource interface {
	Current() domain.Preferences
}

// Speaker plays text aloud.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// EventSink emits backend state to the Interaction Surface.
type EventSink interface {
	ConversationChanged(display []domain.Turn)
	LoadingChanged(kind domain.LoadingKind, loading bool)
	PlaybackStateChanged(state domain.PlaybackState)
	PendingInputChanged(text string)
	QuestionChanged(question string)
	SessionError(code domain.ErrorCode, detail string)
}

// QuestionBank looks up interview questions by id.
type QuestionBank interface {
	Get(id string) (domain.Question, bool)
}
